// Package geom provides the small fixed-dimension point arithmetic shared by
// the lateration solvers and the consensus engine. Points are plain float64
// slices so they convert cheaply to and from gonum vectors.
package geom

import "math"

// Point is a position in 2 or 3 dimensional space. The slice length is the
// dimension; callers are expected to keep it consistent within one problem.
type Point []float64

// NewPoint returns a zero point of the given dimension.
func NewPoint(dim int) Point {
	return make(Point, dim)
}

// Dim returns the dimensionality of the point.
func (p Point) Dim() int { return len(p) }

// Clone returns an independent copy of the point.
func (p Point) Clone() Point {
	if p == nil {
		return nil
	}
	q := make(Point, len(p))
	copy(q, p)
	return q
}

// DistanceTo returns the Euclidean distance between p and q.
// Dimensions must match; extra coordinates in the longer point are ignored.
func (p Point) DistanceTo(q Point) float64 {
	return math.Sqrt(p.SquaredDistanceTo(q))
}

// SquaredDistanceTo returns the squared Euclidean distance between p and q.
func (p Point) SquaredDistanceTo(q Point) float64 {
	n := len(p)
	if len(q) < n {
		n = len(q)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := p[i] - q[i]
		sum += d * d
	}
	return sum
}

// NormSq returns the squared Euclidean norm of the point treated as a vector.
func (p Point) NormSq() float64 {
	var sum float64
	for _, v := range p {
		sum += v * v
	}
	return sum
}
