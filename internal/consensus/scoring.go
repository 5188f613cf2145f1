package consensus

import (
	"math"
	"sort"
)

// lmedsSigmaFactor converts a median squared residual into a robust standard
// deviation estimate (1.4826 is the consistency constant for the Gaussian
// median absolute deviation).
const lmedsSigmaFactor = 1.4826

// lmedsInlierSigmas is the inlier band width, in robust standard deviations,
// used to derive an inlier mask from a median-scored model.
const lmedsInlierSigmas = 2.5

// lmedsMinBand floors the inlier band. An exact fit of a minimal set has a
// median squared residual at machine-epsilon scale, and residuals above the
// median would otherwise fall outside a vanishing band.
const lmedsMinBand = 1e-9

// modelScore is the outcome of evaluating one candidate model against all
// measurements. Lower value is better for every scoring policy.
type modelScore struct {
	value      float64
	inliers    []bool
	numInliers int
}

// modelScorer evaluates absolute residuals of every measurement against a
// candidate position. The returned inlier slice is owned by the caller's
// buffer discipline: scorers allocate a fresh mask per call.
type modelScorer interface {
	score(residuals []float64) modelScore
}

// inlierCountScorer implements the RANSAC/PROSAC rule: more residuals below
// the threshold is better. The value is the negated inlier count so that
// lower-is-better holds uniformly across scorers.
type inlierCountScorer struct {
	threshold float64
}

func (s inlierCountScorer) score(residuals []float64) modelScore {
	mask := make([]bool, len(residuals))
	count := 0
	for i, r := range residuals {
		if r < s.threshold {
			mask[i] = true
			count++
		}
	}
	return modelScore{value: -float64(count), inliers: mask, numInliers: count}
}

// msacScorer implements the MSAC rule: sum of squared residuals truncated at
// the squared threshold, so inliers contribute their actual error and
// outliers a fixed penalty.
type msacScorer struct {
	threshold float64
}

func (s msacScorer) score(residuals []float64) modelScore {
	mask := make([]bool, len(residuals))
	count := 0
	t2 := s.threshold * s.threshold
	var sum float64
	for i, r := range residuals {
		r2 := r * r
		if r < s.threshold {
			mask[i] = true
			count++
			sum += r2
		} else {
			sum += t2
		}
	}
	return modelScore{value: sum, inliers: mask, numInliers: count}
}

// medianScorer implements the LMedS/PROMedS rule: the median squared residual
// is the score, no threshold required. The inlier mask is derived afterwards
// from a robust sigma estimate so that refinement has a concrete subset to
// work with.
type medianScorer struct {
	subsetSize int
	scratch    []float64
}

func (s *medianScorer) score(residuals []float64) modelScore {
	n := len(residuals)
	if cap(s.scratch) < n {
		s.scratch = make([]float64, n)
	}
	sq := s.scratch[:n]
	for i, r := range residuals {
		sq[i] = r * r
	}
	sort.Float64s(sq)
	var med float64
	if n%2 == 0 {
		med = (sq[n/2-1] + sq[n/2]) / 2
	} else {
		med = sq[n/2]
	}

	// Rousseeuw's finite-sample corrected robust scale.
	correction := 1.0
	if n > s.subsetSize {
		correction = 1 + 5/float64(n-s.subsetSize)
	}
	sigma := lmedsSigmaFactor * correction * math.Sqrt(med)
	band := math.Max(lmedsInlierSigmas*sigma, lmedsMinBand)

	mask := make([]bool, n)
	count := 0
	for i, r := range residuals {
		if r <= band {
			mask[i] = true
			count++
		}
	}
	return modelScore{value: med, inliers: mask, numInliers: count}
}
