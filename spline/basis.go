package spline

import "honnef.co/go/bsurf/jmath"

// TierOffset returns the index in the scratch table at which the tier
// preceding tier deg starts. Tier 1 holds degree entries and every following
// tier holds one entry less.
func TierOffset(degree, deg int) int {
	off := 0
	for d := 0; d <= deg-3; d++ {
		off += degree - d
	}
	return off
}

// Basis evaluates the i-th basis function at t using the Cox-de Boor
// recursion. It mirrors the blend kernel: tier 1 holds the knot span
// indicators, every higher tier combines two neighbouring entries of the tier
// below, and the last tier's single entry is the result. Zero-length knot
// spans contribute zero.
//
// The last non-empty knot span is treated as closed, so that the basis
// functions are defined at t == knots[len(knots)-1].
func Basis(i int, t float32, knots []float32, degree int) float32 {
	var scratch [ScratchSize]float32
	kmax := knots[len(knots)-1]

	idx := 0
	for deg := 1; deg <= degree; deg++ {
		offset := TierOffset(degree, deg)
		for num := 0; num < degree+1-deg; num++ {
			k := i + num
			if deg == 1 {
				lo, hi := knots[k], knots[k+1]
				if (lo <= t && t < hi) || (t == kmax && lo < hi && hi == kmax) {
					scratch[idx] = 1
				} else {
					scratch[idx] = 0
				}
			} else {
				var term1, term2 float32
				if d := knots[k+deg-1] - knots[k]; d != 0 {
					term1 = (t - knots[k]) / d
				}
				if d := knots[k+deg] - knots[k+1]; d != 0 {
					term2 = (knots[k+deg] - t) / d
				}
				scratch[idx] = term1*scratch[offset+num] + term2*scratch[offset+num+1]
			}
			idx++
		}
	}
	return scratch[idx-1]
}

// SupportWindow returns the first control point index of the degree+1 wide
// window of basis functions that can be non-zero at t. The index is clamped
// to [0, n-degree-1] so the window never leaves the grid. NaN maps to 0.
func SupportWindow(t float32, n, degree int) int {
	if t != t {
		return 0
	}
	f := jmath.Floor32(t)
	hi := n - degree - 1
	if f <= 0 {
		return 0
	}
	if f >= float32(hi) {
		return hi
	}
	return int(f)
}

// MapUV maps a point in world space into the parametric domain [0, kmax],
// using the undisplaced lattice from start to end as the reference frame.
func MapUV(p, start, end jmath.Vec2, kmax float32) jmath.Vec2 {
	return p.Sub(start).Scale(kmax).Div(end.Sub(start))
}

// Evaluate computes the surface position for a single UV coordinate. It is
// the scalar reference for the three kernels. Products are accumulated in
// float64.
func Evaluate(uv jmath.Vec2, knots []float32, n, degree int, ctrl []jmath.Vec2) jmath.Vec2 {
	u0 := SupportWindow(uv.X, n, degree)
	v0 := SupportWindow(uv.Y, n, degree)
	var bu, bv [MaxDegree + 1]float32
	for o := 0; o <= degree; o++ {
		bu[o] = Basis(u0+o, uv.X, knots, degree)
		bv[o] = Basis(v0+o, uv.Y, knots, degree)
	}
	var x, y float64
	for a := 0; a <= degree; a++ {
		for b := 0; b <= degree; b++ {
			w := float64(bu[a]) * float64(bv[b])
			p := ctrl[(u0+a)*n+v0+b]
			x += w * float64(p.X)
			y += w * float64(p.Y)
		}
	}
	return jmath.V2(float32(x), float32(y))
}
