// Package scenario loads the JSON scenario files the CLIs consume: located
// sources, one fingerprint of readings, estimator configuration overrides
// and an optional ground-truth position for error reporting.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/waypost-data/radioloc/internal/consensus"
	"github.com/waypost-data/radioloc/internal/estimator"
	"github.com/waypost-data/radioloc/internal/fingerprint"
	"github.com/waypost-data/radioloc/internal/geom"
)

// Source describes one located radio source.
type Source struct {
	ID               string    `json:"id"`
	Position         []float64 `json:"position"`
	TxPowerDBm       float64   `json:"tx_power_dbm,omitempty"`
	PathLossExponent float64   `json:"path_loss_exponent,omitempty"`
}

// Reading describes one observation; pointers distinguish absent from zero.
type Reading struct {
	Source         string   `json:"source"`
	Distance       *float64 `json:"distance,omitempty"`
	DistanceStdDev float64  `json:"distance_std_dev,omitempty"`
	RSSI           *float64 `json:"rssi,omitempty"`
	RSSIStdDev     float64  `json:"rssi_std_dev,omitempty"`
}

// Scenario is the on-disk document. Estimator fields mirror
// estimator.Config; absent fields keep the defaults.
type Scenario struct {
	Dim     int    `json:"dim"`
	Variant string `json:"variant,omitempty"`

	Threshold     *float64 `json:"threshold,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	MaxIterations *int     `json:"max_iterations,omitempty"`
	SubsetSize    *int     `json:"subset_size,omitempty"`

	LinearSolver      *bool `json:"linear_solver,omitempty"`
	HomogeneousLinear *bool `json:"homogeneous_linear,omitempty"`
	RefinePreliminary *bool `json:"refine_preliminary,omitempty"`
	RefineResult      *bool `json:"refine_result,omitempty"`
	KeepCovariance    *bool `json:"keep_covariance,omitempty"`

	Seed int64 `json:"seed,omitempty"`

	Sources  []Source  `json:"sources"`
	Readings []Reading `json:"readings"`

	SourceQualityScores  []float64 `json:"source_quality_scores,omitempty"`
	ReadingQualityScores []float64 `json:"reading_quality_scores,omitempty"`

	TruePosition []float64 `json:"true_position,omitempty"`
}

// Load reads and minimally validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: reading %s: %w", path, err)
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: parsing %s: %w", path, err)
	}
	if sc.Dim == 0 {
		sc.Dim = 2
	}
	if len(sc.Sources) == 0 {
		return nil, fmt.Errorf("scenario: %s declares no sources", path)
	}
	if len(sc.Readings) == 0 {
		return nil, fmt.Errorf("scenario: %s declares no readings", path)
	}
	return &sc, nil
}

// Config resolves the estimator configuration with scenario overrides.
func (sc *Scenario) Config() (estimator.Config, error) {
	cfg := estimator.DefaultConfig(sc.Dim)
	if sc.Variant != "" {
		v, err := consensus.ParseVariant(sc.Variant)
		if err != nil {
			return estimator.Config{}, err
		}
		cfg.Variant = v
	}
	if sc.Threshold != nil {
		cfg.Threshold = *sc.Threshold
	}
	if sc.Confidence != nil {
		cfg.Confidence = *sc.Confidence
	}
	if sc.MaxIterations != nil {
		cfg.MaxIterations = *sc.MaxIterations
	}
	if sc.SubsetSize != nil {
		cfg.SubsetSize = *sc.SubsetSize
	}
	if sc.LinearSolver != nil {
		cfg.UseLinearSolver = *sc.LinearSolver
	}
	if sc.HomogeneousLinear != nil {
		cfg.HomogeneousLinear = *sc.HomogeneousLinear
	}
	if sc.RefinePreliminary != nil {
		cfg.RefinePreliminary = *sc.RefinePreliminary
	}
	if sc.RefineResult != nil {
		cfg.RefineResult = *sc.RefineResult
	}
	if sc.KeepCovariance != nil {
		cfg.KeepCovariance = *sc.KeepCovariance
	}
	cfg.Seed = sc.Seed
	return cfg, nil
}

// RadioSources converts the declared sources.
func (sc *Scenario) RadioSources() ([]fingerprint.RadioSource, error) {
	out := make([]fingerprint.RadioSource, len(sc.Sources))
	for i, s := range sc.Sources {
		if len(s.Position) != sc.Dim {
			return nil, fmt.Errorf("scenario: source %q has %d coordinates, want %d",
				s.ID, len(s.Position), sc.Dim)
		}
		out[i] = fingerprint.RadioSource{
			ID:               fingerprint.SourceID(s.ID),
			Position:         geom.Point(s.Position).Clone(),
			TxPowerDBm:       s.TxPowerDBm,
			PathLossExponent: s.PathLossExponent,
		}
	}
	return out, nil
}

// Fingerprint converts the declared readings.
func (sc *Scenario) Fingerprint() (*fingerprint.Fingerprint, error) {
	readings := make([]fingerprint.Reading, len(sc.Readings))
	for i, r := range sc.Readings {
		fr := fingerprint.Reading{
			Source:         fingerprint.SourceID(r.Source),
			DistanceStdDev: r.DistanceStdDev,
			RSSIStdDev:     r.RSSIStdDev,
		}
		if r.Distance != nil {
			fr.Distance = *r.Distance
			fr.HasDistance = true
		}
		if r.RSSI != nil {
			fr.RSSI = *r.RSSI
			fr.HasRSSI = true
		}
		readings[i] = fr
	}
	return fingerprint.New(readings)
}

// Estimator assembles a ready estimator from the scenario.
func (sc *Scenario) Estimator() (*estimator.Estimator, error) {
	cfg, err := sc.Config()
	if err != nil {
		return nil, err
	}
	e, err := estimator.New(cfg)
	if err != nil {
		return nil, err
	}
	sources, err := sc.RadioSources()
	if err != nil {
		return nil, err
	}
	if err := e.SetSources(sources); err != nil {
		return nil, err
	}
	fp, err := sc.Fingerprint()
	if err != nil {
		return nil, err
	}
	if err := e.SetFingerprint(fp); err != nil {
		return nil, err
	}
	if sc.SourceQualityScores != nil {
		if err := e.SetSourceQualityScores(sc.SourceQualityScores); err != nil {
			return nil, err
		}
	}
	if sc.ReadingQualityScores != nil {
		if err := e.SetReadingQualityScores(sc.ReadingQualityScores); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Truth returns the declared ground-truth position, if any.
func (sc *Scenario) Truth() geom.Point {
	if len(sc.TruePosition) != sc.Dim {
		return nil
	}
	return geom.Point(sc.TruePosition).Clone()
}
