package lateration

import (
	"math"
	"math/rand"
	"testing"

	"github.com/waypost-data/radioloc/internal/geom"
)

func TestRefineExact(t *testing.T) {
	refs := []geom.Point{{0, 0}, {10, 0}, {0, 10}}
	truth := geom.Point{3, 4}
	ms := exactMeasurements(refs, truth)

	got, _, err := Refine(ms, 2, geom.Point{1, 1}, DefaultRefineOptions())
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if truth.DistanceTo(got) > 1e-6 {
		t.Errorf("position %v, want %v", got, truth)
	}
}

func TestRefineImprovesNoisyLinearSeed(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	refs := []geom.Point{{0, 0}, {10, 0}, {0, 10}, {10, 10}, {-5, 5}, {5, -5}}
	truth := geom.Point{4, 6}

	var linearErrSum, refinedErrSum float64
	const trials = 50
	for trial := 0; trial < trials; trial++ {
		ms := make([]Measurement, len(refs))
		for i, r := range refs {
			ms[i] = Measurement{
				Position:       r,
				Distance:       math.Max(0, truth.DistanceTo(r)+rng.NormFloat64()*0.1),
				DistanceStdDev: 0.1,
				Quality:        1,
			}
		}

		linear, err := SolveLinear(ms, 2, false)
		if err != nil {
			t.Fatalf("SolveLinear: %v", err)
		}
		refined, _, err := Refine(ms, 2, linear, DefaultRefineOptions())
		if err != nil {
			t.Fatalf("Refine: %v", err)
		}
		linearErrSum += truth.DistanceTo(linear)
		refinedErrSum += truth.DistanceTo(refined)
	}

	// The nonlinear path minimises the right objective; averaged over trials
	// it should not be worse than the linearized solution.
	if refinedErrSum > linearErrSum*1.05 {
		t.Errorf("refined mean error %v exceeds linear mean error %v",
			refinedErrSum/trials, linearErrSum/trials)
	}
	if refinedErrSum/trials > 0.2 {
		t.Errorf("refined mean error %v too large", refinedErrSum/trials)
	}
}

func TestRefineCovariance(t *testing.T) {
	refs := []geom.Point{{0, 0}, {10, 0}, {0, 10}, {10, 10}}
	truth := geom.Point{5, 5}
	ms := exactMeasurements(refs, truth)
	for i := range ms {
		ms[i].DistanceStdDev = 0.5
	}

	opts := DefaultRefineOptions()
	opts.ComputeCovariance = true
	got, cov, err := Refine(ms, 2, geom.Point{4, 4}, opts)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if truth.DistanceTo(got) > 1e-6 {
		t.Errorf("position %v, want %v", got, truth)
	}
	if cov == nil {
		t.Fatal("expected covariance")
	}
	r, c := cov.Dims()
	if r != 2 || c != 2 {
		t.Fatalf("covariance dims %dx%d, want 2x2", r, c)
	}
	// Diagonal must be positive; tighter measurements would shrink it.
	if cov.At(0, 0) <= 0 || cov.At(1, 1) <= 0 {
		t.Errorf("covariance diagonal not positive: %v, %v", cov.At(0, 0), cov.At(1, 1))
	}
}

func TestRefineBadSeedDimension(t *testing.T) {
	refs := []geom.Point{{0, 0}, {10, 0}, {0, 10}}
	ms := exactMeasurements(refs, geom.Point{1, 2})
	if _, _, err := Refine(ms, 2, geom.Point{1, 2, 3}, DefaultRefineOptions()); err == nil {
		t.Error("expected error for mismatched seed dimension")
	}
}
