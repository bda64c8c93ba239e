package spline

import "fmt"

// MaxDegree bounds the size of the kernels' fixed scratch table.
const MaxDegree = 8

// ScratchSize is the number of entries in the triangular table used to
// evaluate a single basis function of degree MaxDegree.
const ScratchSize = MaxDegree * (MaxDegree + 1) / 2

// Plateau selects the value the tail of a knot vector is clamped to.
type Plateau int

const (
	// PlateauInterpolating clamps the tail to len-degree+1. The curve
	// interpolates the first and last control points and the basis
	// functions of all len control points sum to one on the whole domain.
	PlateauInterpolating Plateau = iota
	// PlateauExtended clamps the tail to len-degree+2, matching the layout
	// of the web demos. The last knot span is then only partially covered by
	// the len evaluated basis functions.
	PlateauExtended
)

func (p Plateau) String() string {
	switch p {
	case PlateauInterpolating:
		return "interpolating"
	case PlateauExtended:
		return "extended"
	default:
		return fmt.Sprintf("Plateau(%d)", int(p))
	}
}

func ParsePlateau(s string) (Plateau, error) {
	switch s {
	case "interpolating", "":
		return PlateauInterpolating, nil
	case "extended":
		return PlateauExtended, nil
	default:
		return 0, fmt.Errorf("spline: unknown plateau %q", s)
	}
}

// KnotVector is an open, clamped, non-decreasing knot vector with
// len+degree+1 entries.
type KnotVector []int

// Max returns the last knot, which is the upper bound of the parametric
// domain and the normalization constant of the UV stage.
func (kv KnotVector) Max() int {
	if len(kv) == 0 {
		return 0
	}
	return kv[len(kv)-1]
}

func (kv KnotVector) Float32() []float32 {
	out := make([]float32, len(kv))
	for i, k := range kv {
		out[i] = float32(k)
	}
	return out
}

// BuildKnotVector computes the knot vector for len control points per axis.
// The first degree entries are 0, entries degree through len count up from 1,
// and the remaining entries are clamped to the plateau.
func BuildKnotVector(n, degree int, plateau Plateau) (KnotVector, error) {
	if degree < 1 || degree > MaxDegree {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidDegree, degree, MaxDegree)
	}
	if n < degree+1 {
		return nil, fmt.Errorf("%w: len %d < degree+1 (%d)", ErrTooFewControlPoints, n, degree+1)
	}

	var top int
	switch plateau {
	case PlateauInterpolating:
		top = n - degree + 1
	case PlateauExtended:
		top = n - degree + 2
	default:
		return nil, fmt.Errorf("spline: unknown plateau %d", plateau)
	}

	kv := make(KnotVector, n+degree+1)
	for i := range kv {
		switch {
		case i < degree:
			kv[i] = 0
		case i <= n:
			kv[i] = min(i-degree+1, top)
		default:
			kv[i] = top
		}
	}
	return kv, nil
}
