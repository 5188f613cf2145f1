package consensus

import (
	"math/rand"
	"testing"

	"github.com/waypost-data/radioloc/internal/geom"
	"github.com/waypost-data/radioloc/internal/lateration"
)

func distinct(idx []int) bool {
	seen := make(map[int]bool, len(idx))
	for _, i := range idx {
		if seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

func TestUniformSamplerDrawsDistinctIndices(t *testing.T) {
	s := newUniformSampler(rand.New(rand.NewSource(1)), 10)
	dst := make([]int, 4)
	for trial := 0; trial < 100; trial++ {
		s.draw(dst)
		if !distinct(dst) {
			t.Fatalf("duplicate indices in draw: %v", dst)
		}
		for _, i := range dst {
			if i < 0 || i >= 10 {
				t.Fatalf("index %d out of range", i)
			}
		}
	}
}

func TestProgressiveSamplerPrefersHighQuality(t *testing.T) {
	// Qualities descend with index, so the quality ordering equals the
	// natural index ordering.
	ms := make([]lateration.Measurement, 10)
	for i := range ms {
		ms[i] = lateration.Measurement{
			Position: geom.Point{float64(i), 0},
			Quality:  float64(10 - i),
		}
	}

	s := newProgressiveSampler(rand.New(rand.NewSource(2)), ms, 3)
	dst := make([]int, 3)

	// First draw: window is exactly the subset size, so the subset must be
	// the top three quality measurements.
	s.draw(dst)
	if !distinct(dst) {
		t.Fatalf("duplicate indices: %v", dst)
	}
	for _, i := range dst {
		if i > 2 {
			t.Errorf("first draw picked rank %d, want only the top 3", i)
		}
	}

	// Subsequent draws stay within the widening window.
	for step := 0; step < 20; step++ {
		s.draw(dst)
		if !distinct(dst) {
			t.Fatalf("duplicate indices: %v", dst)
		}
		maxAllowed := 3 + step // window after this many widenings
		if maxAllowed >= len(ms) {
			maxAllowed = len(ms) - 1
		}
		for _, i := range dst {
			if i > maxAllowed {
				t.Errorf("draw %d picked rank %d outside window %d", step, i, maxAllowed)
			}
		}
	}
}

func TestProgressiveSamplerUniformQualityStableOrder(t *testing.T) {
	ms := make([]lateration.Measurement, 5)
	for i := range ms {
		ms[i] = lateration.Measurement{Position: geom.Point{float64(i), 0}, Quality: 1}
	}
	s := newProgressiveSampler(rand.New(rand.NewSource(3)), ms, 3)
	for i, idx := range s.order {
		if idx != i {
			t.Errorf("order[%d] = %d, want caller order preserved for equal quality", i, idx)
		}
	}
}
