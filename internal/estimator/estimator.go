// Package estimator wraps the consensus engine in the stateful, lockable
// API applications use: configure sources and a fingerprint, register a
// listener, call Estimate. A single estimate runs at a time; every
// configuration mutator fails with ErrLocked while one is in flight, and the
// lock is released on every exit path.
package estimator

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/waypost-data/radioloc/internal/consensus"
	"github.com/waypost-data/radioloc/internal/fingerprint"
	"github.com/waypost-data/radioloc/internal/geom"
	"github.com/waypost-data/radioloc/internal/lateration"
)

var (
	// ErrNotReady is returned by Estimate when sources, fingerprint or the
	// measurements derived from them are insufficient.
	ErrNotReady = errors.New("estimator: not ready")

	// ErrLocked is returned by every mutator (and re-entrant Estimate)
	// while an estimate is in flight.
	ErrLocked = errors.New("estimator: estimation in progress")
)

// State is the estimator lifecycle state.
type State int

const (
	// NotReady means required inputs are missing or insufficient.
	NotReady State = iota
	// Ready means Estimate may be called.
	Ready
	// Estimating means a call is in flight and configuration is locked.
	Estimating
)

// String returns a short lowercase state name.
func (s State) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	case Estimating:
		return "estimating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Listener receives estimation lifecycle callbacks. All callbacks run
// synchronously on the Estimate caller's goroutine; a callback that calls a
// mutator on the estimator gets ErrLocked, never a deadlock.
type Listener interface {
	OnEstimateStart(e *Estimator)
	OnEstimateEnd(e *Estimator)
	OnEstimateNextIteration(e *Estimator, iteration int)
	OnEstimateProgressChange(e *Estimator, progress float64)
}

// Config collects every estimation knob with defaultable fields, replacing
// the combinatorial constructor surface such APIs tend to grow.
type Config struct {
	// Dim is the spatial dimension, 2 or 3.
	Dim int

	// Variant selects the consensus flavour.
	Variant consensus.Variant

	// Threshold, Confidence, MaxIterations, ProgressDelta and SubsetSize
	// mirror the consensus configuration; zero values select defaults.
	Threshold     float64
	Confidence    float64
	MaxIterations int
	ProgressDelta float64
	SubsetSize    int

	// Solver selection, as in consensus.Config.
	UseLinearSolver   bool
	HomogeneousLinear bool
	RefinePreliminary bool
	RefineResult      bool
	KeepCovariance    bool

	// InitialPosition optionally seeds nonlinear solves.
	InitialPosition geom.Point

	// FallbackDistanceStdDev replaces unknown measurement uncertainties;
	// zero selects the lateration default.
	FallbackDistanceStdDev float64

	// Seed fixes the subset randomness for reproducible runs; zero draws a
	// fresh seed per estimate.
	Seed int64
}

// DefaultConfig returns a ready-to-use configuration for the dimension:
// RANSAC over the linear solver with refined, covariance-carrying results.
func DefaultConfig(dim int) Config {
	return Config{
		Dim:             dim,
		Variant:         consensus.RANSAC,
		Threshold:       consensus.DefaultThreshold,
		Confidence:      consensus.DefaultConfidence,
		MaxIterations:   consensus.DefaultMaxIterations,
		UseLinearSolver: true,
		RefineResult:    true,
		KeepCovariance:  true,
	}
}

// Validate performs the eager configuration checks shared with the engine.
func (c Config) Validate() error {
	if c.Dim != 2 && c.Dim != 3 {
		return fmt.Errorf("estimator: dimension must be 2 or 3, got %d", c.Dim)
	}
	if c.Confidence != 0 && (c.Confidence <= 0 || c.Confidence >= 1) {
		return fmt.Errorf("estimator: confidence must be in (0,1), got %v", c.Confidence)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("estimator: max iterations must not be negative, got %d", c.MaxIterations)
	}
	if c.ProgressDelta < 0 || c.ProgressDelta >= 1 {
		return fmt.Errorf("estimator: progress delta must be in [0,1), got %v", c.ProgressDelta)
	}
	if c.SubsetSize != 0 && c.SubsetSize < lateration.MinRequiredMeasurements(c.Dim) {
		return fmt.Errorf("estimator: subset size %d below minimum %d",
			c.SubsetSize, lateration.MinRequiredMeasurements(c.Dim))
	}
	if !c.Variant.MedianScored() && c.Threshold < 0 {
		return fmt.Errorf("estimator: threshold must not be negative, got %v", c.Threshold)
	}
	if c.FallbackDistanceStdDev < 0 {
		return fmt.Errorf("estimator: negative fallback distance std dev %v", c.FallbackDistanceStdDev)
	}
	if c.InitialPosition != nil && c.InitialPosition.Dim() != c.Dim {
		return fmt.Errorf("estimator: initial position dimension %d, want %d",
			c.InitialPosition.Dim(), c.Dim)
	}
	return nil
}

// Result is the outcome of one Estimate call.
type Result struct {
	Position   geom.Point
	Covariance *mat.SymDense
	Inliers    consensus.InliersData
}

// Estimator holds the mutable configuration and the snapshot of the most
// recent measurement set. All exported methods are safe for concurrent use;
// mutation during an in-flight estimate is rejected, not serialized.
type Estimator struct {
	mu    sync.Mutex
	state State

	cfg              Config
	sources          []fingerprint.RadioSource
	fp               *fingerprint.Fingerprint
	sourceQualities  []float64
	readingQualities []float64
	listener         Listener

	// measurements built for the most recent Estimate call.
	measurements []lateration.Measurement
}

// New constructs an estimator from a validated configuration. The estimator
// starts NotReady until sources and a fingerprint are supplied.
func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg, state: NotReady}, nil
}

// State returns the current lifecycle state.
func (e *Estimator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// MinRequiredSources is the minimum number of matched sources for a solve.
func (e *Estimator) MinRequiredSources() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lateration.MinRequiredMeasurements(e.cfg.Dim)
}

// Config returns a copy of the current configuration.
func (e *Estimator) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig replaces the configuration. Fails with ErrLocked mid-estimate
// and validates eagerly.
func (e *Estimator) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Estimating {
		return ErrLocked
	}
	if cfg.Dim != e.cfg.Dim && e.sources != nil {
		return fmt.Errorf("estimator: cannot change dimension with sources set")
	}
	e.cfg = cfg
	e.refreshReadinessLocked()
	return nil
}

// SetSources replaces the located radio sources. The slice must hold at
// least MinRequiredSources entries with distinct, non-empty ids and positions
// of the configured dimension. Quality scores are cleared if their length no
// longer matches.
func (e *Estimator) SetSources(sources []fingerprint.RadioSource) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Estimating {
		return ErrLocked
	}
	min := lateration.MinRequiredMeasurements(e.cfg.Dim)
	if len(sources) < min {
		return fmt.Errorf("estimator: need at least %d sources, got %d", min, len(sources))
	}
	seen := make(map[fingerprint.SourceID]bool, len(sources))
	for i, s := range sources {
		if s.ID == "" {
			return fmt.Errorf("estimator: source %d has empty id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("estimator: duplicate source %q", s.ID)
		}
		seen[s.ID] = true
		if s.Position.Dim() != e.cfg.Dim {
			return fmt.Errorf("estimator: source %q position dimension %d, want %d",
				s.ID, s.Position.Dim(), e.cfg.Dim)
		}
	}
	e.sources = append([]fingerprint.RadioSource(nil), sources...)
	if e.sourceQualities != nil && len(e.sourceQualities) != len(sources) {
		e.sourceQualities = nil
	}
	if e.readingQualities != nil && len(e.readingQualities) != len(sources) {
		e.readingQualities = nil
	}
	e.refreshReadinessLocked()
	return nil
}

// SetFingerprint replaces the current fingerprint.
func (e *Estimator) SetFingerprint(fp *fingerprint.Fingerprint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Estimating {
		return ErrLocked
	}
	if fp == nil || fp.Len() == 0 {
		return fmt.Errorf("estimator: fingerprint must carry readings")
	}
	e.fp = fp
	e.refreshReadinessLocked()
	return nil
}

// SetSourceQualityScores installs per-source quality weights. The length
// must equal the source count; nil clears them (uniform weight, which
// degrades PROSAC/PROMedS to their unordered counterparts).
func (e *Estimator) SetSourceQualityScores(scores []float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Estimating {
		return ErrLocked
	}
	if scores != nil && len(scores) != len(e.sources) {
		return fmt.Errorf("estimator: %d quality scores for %d sources", len(scores), len(e.sources))
	}
	e.sourceQualities = append([]float64(nil), scores...)
	if scores == nil {
		e.sourceQualities = nil
	}
	return nil
}

// SetReadingQualityScores installs per-reading quality weights, parallel to
// the source slice. Semantics as SetSourceQualityScores.
func (e *Estimator) SetReadingQualityScores(scores []float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Estimating {
		return ErrLocked
	}
	if scores != nil && len(scores) != len(e.sources) {
		return fmt.Errorf("estimator: %d quality scores for %d sources", len(scores), len(e.sources))
	}
	e.readingQualities = append([]float64(nil), scores...)
	if scores == nil {
		e.readingQualities = nil
	}
	return nil
}

// SetListener installs the lifecycle listener; nil removes it.
func (e *Estimator) SetListener(l Listener) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Estimating {
		return ErrLocked
	}
	e.listener = l
	return nil
}

// ClearSources drops the sources, returning the estimator to NotReady.
func (e *Estimator) ClearSources() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Estimating {
		return ErrLocked
	}
	e.sources = nil
	e.sourceQualities = nil
	e.readingQualities = nil
	e.refreshReadinessLocked()
	return nil
}

// refreshReadinessLocked recomputes NotReady/Ready. Caller holds mu and the
// state is never Estimating here.
func (e *Estimator) refreshReadinessLocked() {
	min := lateration.MinRequiredMeasurements(e.cfg.Dim)
	matched := 0
	if e.fp != nil {
		for _, s := range e.sources {
			if _, ok := e.fp.Reading(s.ID); ok {
				matched++
			}
		}
	}
	if len(e.sources) >= min && matched >= min {
		e.state = Ready
	} else {
		e.state = NotReady
	}
}

// Positions returns the reference positions of the measurements built for
// the most recent Estimate call.
func (e *Estimator) Positions() []geom.Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]geom.Point, len(e.measurements))
	for i, m := range e.measurements {
		out[i] = m.Position.Clone()
	}
	return out
}

// Distances returns the distances of the most recent measurement set.
func (e *Estimator) Distances() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]float64, len(e.measurements))
	for i, m := range e.measurements {
		out[i] = m.Distance
	}
	return out
}

// DistanceStandardDeviations returns the uncertainties of the most recent
// measurement set.
func (e *Estimator) DistanceStandardDeviations() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]float64, len(e.measurements))
	for i, m := range e.measurements {
		out[i] = m.DistanceStdDev
	}
	return out
}

// Estimate runs one blocking consensus estimation on the caller's goroutine.
//
// It fails with ErrNotReady before taking the lock when inputs are missing,
// with ErrLocked when another estimate is in flight, and with the engine's
// error when no consensus exists. The configuration lock is released on
// every exit path; OnEstimateEnd fires whenever OnEstimateStart did.
func (e *Estimator) Estimate() (Result, error) {
	e.mu.Lock()
	if e.state == Estimating {
		e.mu.Unlock()
		return Result{}, ErrLocked
	}
	if e.state == NotReady {
		e.mu.Unlock()
		return Result{}, ErrNotReady
	}
	e.state = Estimating
	cfg := e.cfg
	sources := e.sources
	fp := e.fp
	sourceQualities := e.sourceQualities
	readingQualities := e.readingQualities
	listener := e.listener
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.state = NotReady
		e.refreshReadinessLocked()
		e.mu.Unlock()
	}()

	if listener != nil {
		listener.OnEstimateStart(e)
		defer listener.OnEstimateEnd(e)
	}

	ms, err := fingerprint.BuildMeasurements(sources, fp, fingerprint.BuildOptions{
		FallbackDistanceStdDev: cfg.FallbackDistanceStdDev,
		SourceQualityScores:    sourceQualities,
		ReadingQualityScores:   readingQualities,
	})
	if err != nil {
		return Result{}, fmt.Errorf("estimator: building measurements: %w", err)
	}
	if len(ms) < lateration.MinRequiredMeasurements(cfg.Dim) {
		return Result{}, fmt.Errorf("%w: %d usable measurements, need %d",
			ErrNotReady, len(ms), lateration.MinRequiredMeasurements(cfg.Dim))
	}

	e.mu.Lock()
	e.measurements = ms
	e.mu.Unlock()

	engineCfg := consensus.Config{
		Dim:               cfg.Dim,
		Variant:           cfg.Variant,
		Threshold:         cfg.Threshold,
		Confidence:        cfg.Confidence,
		MaxIterations:     cfg.MaxIterations,
		SubsetSize:        cfg.SubsetSize,
		UseLinearSolver:   cfg.UseLinearSolver,
		HomogeneousLinear: cfg.HomogeneousLinear,
		RefinePreliminary: cfg.RefinePreliminary,
		RefineResult:      cfg.RefineResult,
		KeepCovariance:    cfg.KeepCovariance,
		InitialPosition:   cfg.InitialPosition,
		ProgressDelta:     cfg.ProgressDelta,
	}
	if cfg.Seed != 0 {
		engineCfg.Rand = rand.New(rand.NewSource(cfg.Seed))
	}
	if listener != nil {
		engineCfg.OnIteration = func(iter int) { listener.OnEstimateNextIteration(e, iter) }
		engineCfg.OnProgress = func(p float64) { listener.OnEstimateProgressChange(e, p) }
	}

	res, err := consensus.Estimate(ms, engineCfg)
	if err != nil {
		return Result{}, err
	}
	return Result{Position: res.Position, Covariance: res.Covariance, Inliers: res.Inliers}, nil
}
