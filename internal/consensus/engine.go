package consensus

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/waypost-data/radioloc/internal/geom"
	"github.com/waypost-data/radioloc/internal/lateration"
)

// ErrNoConsensus is returned when the loop exhausts its iteration bound
// without ever finding a model supported by at least the minimum number of
// inliers. Typical causes: every subset degenerate, or the outlier fraction
// too high for the configured bound.
var ErrNoConsensus = errors.New("consensus: no acceptable model found")

// Default configuration values, matching the usual RANSAC-family settings.
const (
	DefaultConfidence    = 0.99
	DefaultMaxIterations = 5000
	DefaultThreshold     = 1.0
)

// Config parameterizes one consensus estimation. Zero values for Confidence,
// MaxIterations and SubsetSize select defaults; everything else is explicit.
type Config struct {
	// Dim is the spatial dimension, 2 or 3.
	Dim int

	// Variant selects the sampling/scoring policy pair.
	Variant Variant

	// Threshold is the residual below which a measurement counts as an
	// inlier for RANSAC, MSAC and PROSAC; the median-scored variants ignore
	// it. Zero selects DefaultThreshold, negative values are rejected.
	Threshold float64

	// Confidence in (0,1) drives the adaptive iteration bound.
	Confidence float64

	// MaxIterations caps the loop regardless of the adaptive bound.
	MaxIterations int

	// SubsetSize is the preliminary subset size; 0 means the minimal
	// Dim+1. Must be at least Dim+1 otherwise.
	SubsetSize int

	// UseLinearSolver selects the closed-form path for preliminary solves;
	// otherwise each subset is solved with the nonlinear iteration seeded at
	// InitialPosition (or the subset centroid).
	UseLinearSolver bool

	// HomogeneousLinear selects the homogeneous normalization of the linear
	// system.
	HomogeneousLinear bool

	// RefinePreliminary runs the nonlinear iteration on top of each
	// preliminary linear solution.
	RefinePreliminary bool

	// RefineResult re-solves with all inliers of the best model before
	// returning.
	RefineResult bool

	// KeepCovariance propagates the covariance from the final refinement.
	// Requires RefineResult.
	KeepCovariance bool

	// InitialPosition optionally seeds nonlinear solves.
	InitialPosition geom.Point

	// ProgressDelta in [0,1) is the minimum progress change between
	// OnProgress callbacks. 0 reports every change.
	ProgressDelta float64

	// Rand supplies subset randomness. Nil selects a time-seeded source;
	// tests pass a fixed seed for reproducibility.
	Rand *rand.Rand

	// OnIteration, when non-nil, is called after every completed iteration.
	OnIteration func(iteration int)

	// OnProgress, when non-nil, reports estimated progress in [0,1].
	OnProgress func(progress float64)
}

// withDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Confidence == 0 {
		c.Confidence = DefaultConfidence
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.SubsetSize == 0 {
		c.SubsetSize = lateration.MinRequiredMeasurements(c.Dim)
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	return c
}

// validate checks the configuration against a measurement count n.
func (c Config) validate(n int) error {
	if c.Dim != 2 && c.Dim != 3 {
		return fmt.Errorf("consensus: dimension must be 2 or 3, got %d", c.Dim)
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return fmt.Errorf("consensus: confidence must be in (0,1), got %v", c.Confidence)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("consensus: max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.ProgressDelta < 0 || c.ProgressDelta >= 1 {
		return fmt.Errorf("consensus: progress delta must be in [0,1), got %v", c.ProgressDelta)
	}
	min := lateration.MinRequiredMeasurements(c.Dim)
	if c.SubsetSize < min {
		return fmt.Errorf("consensus: subset size %d below minimum %d", c.SubsetSize, min)
	}
	if n < c.SubsetSize {
		return fmt.Errorf("consensus: %d measurements but subset size %d", n, c.SubsetSize)
	}
	if !c.Variant.MedianScored() && c.Threshold <= 0 {
		return fmt.Errorf("consensus: %s requires a positive threshold, got %v", c.Variant, c.Threshold)
	}
	if c.KeepCovariance && !c.RefineResult {
		return fmt.Errorf("consensus: covariance requires result refinement")
	}
	if c.InitialPosition != nil && c.InitialPosition.Dim() != c.Dim {
		return fmt.Errorf("consensus: initial position dimension %d, want %d", c.InitialPosition.Dim(), c.Dim)
	}
	return nil
}

// InliersData describes the best model's support over the measurement set.
type InliersData struct {
	// Mask marks, per measurement index, membership in the best consensus.
	Mask []bool

	// BestScore is the winning model's score (lower is better; negated
	// inlier count for count-scored variants).
	BestScore float64

	// NumInliers is the number of set bits in Mask.
	NumInliers int

	// Iterations is the number of consensus iterations actually run.
	Iterations int
}

// Result is a consensus estimate: position, optional covariance and the
// supporting inlier data.
type Result struct {
	Position   geom.Point
	Covariance *mat.SymDense
	Inliers    InliersData
}

// Estimate runs the sample-consensus loop over the measurement set.
//
// The loop draws subsets with the variant's sampling policy, solves each with
// the lateration solver, scores the candidate against all measurements and
// keeps the best-scoring model (ties resolved to the earlier iteration). For
// threshold-scored variants the iteration bound adapts to the running best
// inlier ratio w: required = log(1-confidence)/log(1-w^subsetSize). Degenerate
// subsets are expected and skipped; only total failure produces
// ErrNoConsensus.
func Estimate(ms []lateration.Measurement, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(len(ms)); err != nil {
		return Result{}, err
	}
	if err := lateration.ValidateMeasurements(ms, cfg.Dim); err != nil {
		return Result{}, err
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	var sampler subsetSampler
	if cfg.Variant.qualityOrdered() {
		sampler = newProgressiveSampler(rng, ms, cfg.SubsetSize)
	} else {
		sampler = newUniformSampler(rng, len(ms))
	}

	var scorer modelScorer
	switch {
	case cfg.Variant.MedianScored():
		scorer = &medianScorer{subsetSize: cfg.SubsetSize}
	case cfg.Variant == MSAC:
		scorer = msacScorer{threshold: cfg.Threshold}
	default:
		scorer = inlierCountScorer{threshold: cfg.Threshold}
	}

	n := len(ms)
	minInliers := lateration.MinRequiredMeasurements(cfg.Dim)
	subsetIdx := make([]int, cfg.SubsetSize)
	subset := make([]lateration.Measurement, cfg.SubsetSize)
	residuals := make([]float64, n)

	var (
		best         *modelScore
		bestPosition geom.Point
		required     = cfg.MaxIterations
		lastProgress float64
		iterations   int
	)

	for iter := 0; iter < cfg.MaxIterations && iter < required; iter++ {
		iterations = iter + 1

		sampler.draw(subsetIdx)
		for i, idx := range subsetIdx {
			subset[i] = ms[idx]
		}

		candidate, err := preliminarySolve(subset, cfg)
		if err != nil {
			// Degenerate subset geometry: tolerated, try another draw.
			reportIteration(cfg, iter, required, &lastProgress)
			continue
		}

		for i, m := range ms {
			residuals[i] = m.Residual(candidate)
		}
		score := scorer.score(residuals)

		// Strict comparison keeps the earlier iteration on ties.
		if best == nil || score.value < best.value {
			s := score
			best = &s
			bestPosition = candidate.Clone()

			if cfg.Variant.adaptiveBound() && score.numInliers >= minInliers {
				required = requiredIterations(float64(score.numInliers)/float64(n),
					cfg.SubsetSize, cfg.Confidence, cfg.MaxIterations)
			}
		}

		reportIteration(cfg, iter, required, &lastProgress)
	}

	if best == nil || best.numInliers < minInliers {
		return Result{}, fmt.Errorf("%w after %d iterations", ErrNoConsensus, iterations)
	}

	result := Result{
		Position: bestPosition,
		Inliers: InliersData{
			Mask:       best.inliers,
			BestScore:  best.value,
			NumInliers: best.numInliers,
			Iterations: iterations,
		},
	}

	if cfg.RefineResult {
		inlierMs := make([]lateration.Measurement, 0, best.numInliers)
		for i, in := range best.inliers {
			if in {
				inlierMs = append(inlierMs, ms[i])
			}
		}
		opts := lateration.DefaultRefineOptions()
		opts.ComputeCovariance = cfg.KeepCovariance
		refined, cov, err := lateration.Refine(inlierMs, cfg.Dim, bestPosition, opts)
		if err != nil {
			return Result{}, fmt.Errorf("consensus: refining best model: %w", err)
		}
		result.Position = refined
		result.Covariance = cov
	}

	return result, nil
}

// preliminarySolve computes a candidate position from one subset.
func preliminarySolve(subset []lateration.Measurement, cfg Config) (geom.Point, error) {
	if !cfg.UseLinearSolver {
		seed := cfg.InitialPosition
		if seed == nil {
			seed = subsetCentroid(subset, cfg.Dim)
		}
		p, _, err := lateration.Refine(subset, cfg.Dim, seed, lateration.DefaultRefineOptions())
		return p, err
	}

	p, err := lateration.SolveLinear(subset, cfg.Dim, cfg.HomogeneousLinear)
	if err != nil {
		return nil, err
	}
	if cfg.RefinePreliminary {
		refined, _, err := lateration.Refine(subset, cfg.Dim, p, lateration.DefaultRefineOptions())
		if err == nil {
			return refined, nil
		}
		// Refinement failing on a valid linear solution is rare; the linear
		// candidate still scores.
	}
	return p, nil
}

// subsetCentroid seeds nonlinear subset solves when no caller seed exists.
func subsetCentroid(subset []lateration.Measurement, dim int) geom.Point {
	c := geom.NewPoint(dim)
	for _, m := range subset {
		for j := 0; j < dim; j++ {
			c[j] += m.Position[j]
		}
	}
	for j := 0; j < dim; j++ {
		c[j] /= float64(len(subset))
	}
	return c
}

// requiredIterations computes the adaptive bound from the inlier ratio w:
// the number of draws needed to pick at least one all-inlier subset with the
// requested confidence. Clamped to [1, max].
func requiredIterations(w float64, subsetSize int, confidence float64, max int) int {
	if w >= 1 {
		return 1
	}
	if w <= 0 {
		return max
	}
	denom := 1 - math.Pow(w, float64(subsetSize))
	if denom <= 0 {
		return 1
	}
	if denom >= 1 {
		return max
	}
	req := math.Ceil(math.Log(1-confidence) / math.Log(denom))
	if req < 1 {
		return 1
	}
	if req > float64(max) {
		return max
	}
	return int(req)
}

// reportIteration drives the iteration and progress callbacks.
func reportIteration(cfg Config, iter, required int, lastProgress *float64) {
	if cfg.OnIteration != nil {
		cfg.OnIteration(iter)
	}
	if cfg.OnProgress == nil {
		return
	}
	bound := required
	if cfg.MaxIterations < bound {
		bound = cfg.MaxIterations
	}
	if bound <= 0 {
		return
	}
	progress := float64(iter+1) / float64(bound)
	if progress > 1 {
		progress = 1
	}
	if progress <= *lastProgress {
		return
	}
	if progress-*lastProgress >= cfg.ProgressDelta || progress == 1 {
		*lastProgress = progress
		cfg.OnProgress(progress)
	}
}
