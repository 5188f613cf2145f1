package lateration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/waypost-data/radioloc/internal/geom"
)

// dehomogenizeEps is the smallest homogeneous scale component accepted before
// the solution is declared degenerate.
const dehomogenizeEps = 1e-12

// SolveLinear computes a closed-form least-squares lateration solution.
//
// Subtracting the squared-distance equation of a reference measurement from
// every other one eliminates the quadratic term and leaves a linear system
// A x = b in the unknown position. With exact, non-degenerate inputs the
// solution is exact; with noise it is the least-squares minimiser.
//
// When homogeneous is true the system is solved in homogeneous coordinates
// via SVD: the solution is the right singular vector of the smallest singular
// value, dehomogenized by its last component. This trades a final division
// for better conditioning on poorly scaled inputs.
//
// Returns ErrDegenerateGeometry when the references are collinear (2D) /
// coplanar (3D) or coincident so that no unique position exists.
func SolveLinear(ms []Measurement, dim int, homogeneous bool) (geom.Point, error) {
	if err := ValidateMeasurements(ms, dim); err != nil {
		return nil, err
	}
	if homogeneous {
		return solveLinearHomogeneous(ms, dim)
	}
	return solveLinearInhomogeneous(ms, dim)
}

// solveLinearInhomogeneous builds the (n-1) x dim system against the last
// measurement as reference and solves it by QR least squares.
func solveLinearInhomogeneous(ms []Measurement, dim int) (geom.Point, error) {
	n := len(ms)
	ref := ms[n-1]
	refNormSq := ref.Position.NormSq()
	refDistSq := ref.Distance * ref.Distance

	rows := n - 1
	a := mat.NewDense(rows, dim, nil)
	b := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		m := ms[i]
		for j := 0; j < dim; j++ {
			a.Set(i, j, 2*(ref.Position[j]-m.Position[j]))
		}
		b.SetVec(i, m.Distance*m.Distance-refDistSq-m.Position.NormSq()+refNormSq)
	}

	var qr mat.QR
	qr.Factorize(a)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}

	p := geom.NewPoint(dim)
	for j := 0; j < dim; j++ {
		v := x.AtVec(j)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite solution component", ErrDegenerateGeometry)
		}
		p[j] = v
	}
	return p, nil
}

// solveLinearHomogeneous solves the same pairwise-difference system in
// homogeneous coordinates [x; 1] using the SVD null-space vector.
func solveLinearHomogeneous(ms []Measurement, dim int) (geom.Point, error) {
	n := len(ms)
	ref := ms[n-1]
	refNormSq := ref.Position.NormSq()
	refDistSq := ref.Distance * ref.Distance

	rows := n - 1
	// Columns: dim position components plus the homogeneous scale.
	a := mat.NewDense(rows, dim+1, nil)
	for i := 0; i < rows; i++ {
		m := ms[i]
		for j := 0; j < dim; j++ {
			a.Set(i, j, 2*(ref.Position[j]-m.Position[j]))
		}
		a.Set(i, dim, refDistSq-m.Distance*m.Distance+m.Position.NormSq()-refNormSq)
	}

	// Full SVD: with a minimal subset the system has more columns than rows
	// and the null-space vector is absent from the thin factorization.
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, fmt.Errorf("%w: SVD factorization failed", ErrDegenerateGeometry)
	}
	var v mat.Dense
	svd.VTo(&v)

	_, cols := v.Dims()
	// Null-space direction: right singular vector of the smallest singular value.
	last := cols - 1
	scale := v.At(dim, last)
	if math.Abs(scale) < dehomogenizeEps {
		return nil, fmt.Errorf("%w: homogeneous scale vanished", ErrDegenerateGeometry)
	}

	p := geom.NewPoint(dim)
	for j := 0; j < dim; j++ {
		p[j] = v.At(j, last) / scale
	}
	return p, nil
}
