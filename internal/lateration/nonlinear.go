package lateration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/waypost-data/radioloc/internal/geom"
)

// RefineOptions controls the iterative nonlinear solver.
type RefineOptions struct {
	// MaxIterations bounds the Levenberg-Marquardt loop.
	MaxIterations int

	// Tolerance is the parameter-update norm below which the solver is
	// considered converged.
	Tolerance float64

	// ComputeCovariance requests the position covariance, estimated as the
	// inverse of the weighted normal-equations matrix at convergence.
	ComputeCovariance bool
}

// DefaultRefineOptions returns the solver defaults used by the consensus
// engine: enough iterations for any sane geometry, tight convergence.
func DefaultRefineOptions() RefineOptions {
	return RefineOptions{
		MaxIterations: 50,
		Tolerance:     1e-10,
	}
}

// Refine minimises Σ ((‖x − p_i‖ − d_i) / σ_i)² over the position x with a
// Levenberg-Marquardt iteration seeded at initial. The seed is typically the
// linear closed-form solution; any finite point of the right dimension works
// but a poor seed can converge to a local minimum.
//
// When opts.ComputeCovariance is set the second return value holds the
// dim x dim covariance (JᵀWJ)⁻¹ at the solution; it is nil otherwise.
func Refine(ms []Measurement, dim int, initial geom.Point, opts RefineOptions) (geom.Point, *mat.SymDense, error) {
	if err := ValidateMeasurements(ms, dim); err != nil {
		return nil, nil, err
	}
	if initial.Dim() != dim {
		return nil, nil, fmt.Errorf("lateration: initial position dimension %d, want %d", initial.Dim(), dim)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultRefineOptions().MaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultRefineOptions().Tolerance
	}

	n := len(ms)
	x := initial.Clone()

	jac := mat.NewDense(n, dim, nil)
	res := mat.NewVecDense(n, nil)
	lambda := 1e-3
	cost := weightedCost(ms, x)

	for iter := 0; iter < opts.MaxIterations; iter++ {
		buildJacobian(ms, x, jac, res)

		// Normal equations with LM damping: (JᵀJ + λ diag(JᵀJ)) δ = -Jᵀr
		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var jtr mat.VecDense
		jtr.MulVec(jac.T(), res)

		damped := mat.NewDense(dim, dim, nil)
		damped.Copy(&jtj)
		for j := 0; j < dim; j++ {
			d := jtj.At(j, j)
			if d == 0 {
				d = 1
			}
			damped.Set(j, j, d+lambda*d)
		}

		var step mat.VecDense
		if err := step.SolveVec(damped, &jtr); err != nil {
			// Singular even with damping: geometry does not constrain x.
			return nil, nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
		}

		trial := x.Clone()
		for j := 0; j < dim; j++ {
			trial[j] -= step.AtVec(j)
		}
		trialCost := weightedCost(ms, trial)

		if trialCost < cost {
			x = trial
			cost = trialCost
			lambda = math.Max(lambda*0.1, 1e-12)
		} else {
			lambda = math.Min(lambda*10, 1e12)
			continue
		}

		stepNorm := 0.0
		for j := 0; j < dim; j++ {
			stepNorm += step.AtVec(j) * step.AtVec(j)
		}
		if math.Sqrt(stepNorm) < opts.Tolerance {
			break
		}
	}

	for j := 0; j < dim; j++ {
		if math.IsNaN(x[j]) || math.IsInf(x[j], 0) {
			return nil, nil, fmt.Errorf("%w: refinement diverged", ErrDegenerateGeometry)
		}
	}

	if !opts.ComputeCovariance {
		return x, nil, nil
	}

	cov, err := covarianceAt(ms, x, dim)
	if err != nil {
		// Position is still usable; only the uncertainty is not.
		return x, nil, nil
	}
	return x, cov, nil
}

// buildJacobian fills the weighted Jacobian and residual vector at x.
// Row i: r_i = (‖x − p_i‖ − d_i)/σ_i, ∂r_i/∂x_j = (x_j − p_ij)/(‖x − p_i‖ σ_i).
func buildJacobian(ms []Measurement, x geom.Point, jac *mat.Dense, res *mat.VecDense) {
	dim := x.Dim()
	for i, m := range ms {
		dist := x.DistanceTo(m.Position)
		if dist < 1e-12 {
			// Candidate sits on a reference: direction is undefined, damp to
			// a tiny norm so the row stays finite.
			dist = 1e-12
		}
		w := 1.0 / m.DistanceStdDev
		res.SetVec(i, (dist-m.Distance)*w)
		for j := 0; j < dim; j++ {
			jac.Set(i, j, (x[j]-m.Position[j])/dist*w)
		}
	}
}

// weightedCost is the objective Σ ((‖x − p_i‖ − d_i)/σ_i)².
func weightedCost(ms []Measurement, x geom.Point) float64 {
	var sum float64
	for _, m := range ms {
		r := (x.DistanceTo(m.Position) - m.Distance) / m.DistanceStdDev
		sum += r * r
	}
	return sum
}

// covarianceAt inverts the undamped weighted normal-equations matrix at x.
func covarianceAt(ms []Measurement, x geom.Point, dim int) (*mat.SymDense, error) {
	n := len(ms)
	jac := mat.NewDense(n, dim, nil)
	res := mat.NewVecDense(n, nil)
	buildJacobian(ms, x, jac, res)

	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)

	sym := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			sym.SetSym(i, j, jtj.At(i, j))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return nil, fmt.Errorf("%w: normal equations not positive definite", ErrDegenerateGeometry)
	}
	cov := mat.NewSymDense(dim, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}
	return cov, nil
}
