// Package lateration solves the multilateration problem: recovering a
// position from distances to known reference points. It provides a linear
// closed-form solver for speed and a Levenberg-Marquardt refinement path for
// accuracy, both backed by gonum matrices. The consensus engine layers its
// outlier rejection on top of these solvers.
package lateration

import (
	"errors"
	"fmt"

	"github.com/waypost-data/radioloc/internal/geom"
)

// DefaultFallbackDistanceStdDev is used when a measurement carries no
// uncertainty of its own. Small but non-zero so weighted solvers stay finite.
const DefaultFallbackDistanceStdDev = 1e-3

// ErrDegenerateGeometry is returned when the reference geometry does not
// constrain the position (collinear or coincident references) and the system
// matrix is singular.
var ErrDegenerateGeometry = errors.New("lateration: degenerate reference geometry")

// Measurement is one (reference position, distance) observation with its
// uncertainty and an optional quality weight used by quality-ordered
// consensus sampling.
type Measurement struct {
	// Position is the known location of the reference (radio source).
	Position geom.Point

	// Distance is the measured or derived distance to the reference, metres.
	Distance float64

	// DistanceStdDev is the 1-sigma uncertainty of Distance. Must be > 0;
	// use DefaultFallbackDistanceStdDev when nothing better is known.
	DistanceStdDev float64

	// Quality expresses caller confidence in this measurement, higher is
	// better. 1.0 when the caller has no opinion.
	Quality float64
}

// MinRequiredMeasurements returns the minimum number of measurements needed
// for a unique lateration solution in the given dimension.
func MinRequiredMeasurements(dim int) int { return dim + 1 }

// ValidateMeasurements checks that a measurement set is usable for a solve in
// the given dimension. Validation is eager and complete: the solvers assume
// it has been run.
func ValidateMeasurements(ms []Measurement, dim int) error {
	if dim != 2 && dim != 3 {
		return fmt.Errorf("lateration: dimension must be 2 or 3, got %d", dim)
	}
	if len(ms) < MinRequiredMeasurements(dim) {
		return fmt.Errorf("lateration: need at least %d measurements for dimension %d, got %d",
			MinRequiredMeasurements(dim), dim, len(ms))
	}
	for i, m := range ms {
		if m.Position.Dim() != dim {
			return fmt.Errorf("lateration: measurement %d has position dimension %d, want %d",
				i, m.Position.Dim(), dim)
		}
		if m.Distance < 0 {
			return fmt.Errorf("lateration: measurement %d has negative distance %v", i, m.Distance)
		}
		if m.DistanceStdDev <= 0 {
			return fmt.Errorf("lateration: measurement %d has non-positive distance std dev %v",
				i, m.DistanceStdDev)
		}
	}
	return nil
}

// Residual returns the predicted-distance error of m against a candidate
// position: |‖candidate − reference‖ − distance|.
func (m Measurement) Residual(candidate geom.Point) float64 {
	r := candidate.DistanceTo(m.Position) - m.Distance
	if r < 0 {
		return -r
	}
	return r
}
