package consensus

import (
	"testing"
)

func TestInlierCountScorer(t *testing.T) {
	s := inlierCountScorer{threshold: 1.0}
	score := s.score([]float64{0.1, 0.5, 1.0, 2.0, 0.9})
	if score.numInliers != 3 {
		t.Errorf("numInliers = %d, want 3 (threshold is exclusive)", score.numInliers)
	}
	if score.value != -3 {
		t.Errorf("value = %v, want -3", score.value)
	}
	want := []bool{true, true, false, false, true}
	for i, w := range want {
		if score.inliers[i] != w {
			t.Errorf("inliers[%d] = %v, want %v", i, score.inliers[i], w)
		}
	}
}

func TestMSACScorer(t *testing.T) {
	s := msacScorer{threshold: 1.0}
	score := s.score([]float64{0.5, 2.0})
	// 0.5² for the inlier, threshold² for the outlier.
	if want := 0.25 + 1.0; score.value != want {
		t.Errorf("value = %v, want %v", score.value, want)
	}
	if score.numInliers != 1 {
		t.Errorf("numInliers = %d, want 1", score.numInliers)
	}
}

func TestMedianScorer(t *testing.T) {
	s := &medianScorer{subsetSize: 3}
	score := s.score([]float64{1, 2, 3, 4, 100})
	// Median of squared residuals {1,4,9,16,10000} is 9.
	if score.value != 9 {
		t.Errorf("value = %v, want 9", score.value)
	}
	// The gross outlier must fall outside the robust inlier band.
	if score.inliers[4] {
		t.Error("residual 100 classified as inlier")
	}
	if score.numInliers < 3 {
		t.Errorf("numInliers = %d, want at least the small residuals", score.numInliers)
	}
}

func TestMedianScorerExactFit(t *testing.T) {
	s := &medianScorer{subsetSize: 3}
	score := s.score([]float64{0, 0, 0, 0})
	if score.value != 0 {
		t.Errorf("value = %v, want 0", score.value)
	}
	if score.numInliers != 4 {
		t.Errorf("numInliers = %d, want 4: zero residuals are inliers of a zero band", score.numInliers)
	}
}

func TestMedianScorerRoundoffResiduals(t *testing.T) {
	// A minimal set solved exactly leaves residuals at machine-epsilon scale
	// with no finite-sample correction. The band must not collapse below
	// them, or an exact fit loses its own support.
	// The largest residual is well past 2.5 robust sigmas of the median,
	// so only the absolute floor keeps it in the band.
	s := &medianScorer{subsetSize: 3}
	score := s.score([]float64{0, 1e-16, 2e-15})
	if score.numInliers != 3 {
		t.Errorf("numInliers = %d, want 3", score.numInliers)
	}
	for i, in := range score.inliers {
		if !in {
			t.Errorf("inliers[%d] = false for a round-off residual", i)
		}
	}
}
