package spline

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"honnef.co/go/bsurf/jmath"
)

func knots(t *testing.T, n, degree int, plateau Plateau) []float32 {
	t.Helper()
	kv, err := BuildKnotVector(n, degree, plateau)
	require.NoError(t, err)
	return kv.Float32()
}

func TestTierOffset(t *testing.T) {
	assert := assert.New(t)

	// Tier 1 holds degree entries, tier 2 degree-1, and so on.
	assert.Equal(0, TierOffset(3, 1))
	assert.Equal(0, TierOffset(3, 2))
	assert.Equal(3, TierOffset(3, 3))
	assert.Equal(0, TierOffset(2, 2))
	assert.Equal(8+7+6+5+4+3, TierOffset(8, 8))

	// The table of the largest degree fits the scratch space.
	assert.LessOrEqual(TierOffset(MaxDegree, MaxDegree)+2+1, ScratchSize)
}

func TestBasis_PartitionOfUnity(t *testing.T) {
	for _, tc := range []struct{ n, degree int }{{9, 3}, {3, 2}, {4, 3}, {5, 1}, {9, 2}, {12, 5}} {
		kv := knots(t, tc.n, tc.degree, PlateauInterpolating)
		kmax := kv[len(kv)-1]
		for step := 0; step <= 700; step++ {
			x := kmax * float32(step) / 700
			var sum float64
			for i := range tc.n {
				sum += float64(Basis(i, x, kv, tc.degree))
			}
			assert.InDelta(t, 1, sum, 1e-5, "n=%d degree=%d t=%v", tc.n, tc.degree, x)
		}
	}
}

func TestBasis_LocalSupport(t *testing.T) {
	const n, degree = 9, 3
	kv := knots(t, n, degree, PlateauInterpolating)
	kmax := kv[len(kv)-1]
	for i := range n {
		lo, hi := kv[i], kv[i+degree+1]
		for step := 0; step <= 140; step++ {
			x := kmax * float32(step) / 140
			if x >= lo && x < hi || x == kmax {
				continue
			}
			assert.Zero(t, Basis(i, x, kv, degree), "B_%d(%v)", i, x)
		}
	}
}

func TestBasis_NonNegative(t *testing.T) {
	kv := knots(t, 9, 3, PlateauExtended)
	for i := range 9 {
		for step := 0; step <= 160; step++ {
			assert.GreaterOrEqual(t, Basis(i, float32(step)/20, kv, 3), float32(0))
		}
	}
}

func TestBasis_Endpoints(t *testing.T) {
	assert := assert.New(t)

	kv := knots(t, 9, 3, PlateauInterpolating)
	assert.Equal(float32(1), Basis(0, 0, kv, 3))
	assert.Equal(float32(1), Basis(8, 7, kv, 3))
	for i := 1; i < 9; i++ {
		assert.Zero(Basis(i, 0, kv, 3))
	}
	for i := range 8 {
		assert.Zero(Basis(i, 7, kv, 3))
	}
}

func TestBasis_Values(t *testing.T) {
	assert := assert.New(t)

	kv := knots(t, 9, 3, PlateauInterpolating)
	assert.InDelta(0.125, Basis(3, 3.5, kv, 3), 1e-6)
	assert.InDelta(0.75, Basis(4, 3.5, kv, 3), 1e-6)
	assert.InDelta(0.125, Basis(5, 3.5, kv, 3), 1e-6)

	kv = knots(t, 3, 2, PlateauExtended)
	assert.InDelta(0.5, Basis(1, 1.5, kv, 2), 1e-6)
	assert.InDelta(0.5, Basis(2, 1.5, kv, 2), 1e-6)
}

func TestSupportWindow(t *testing.T) {
	assert := assert.New(t)

	const n, degree = 9, 3
	assert.Equal(0, SupportWindow(0, n, degree))
	assert.Equal(0, SupportWindow(0.99, n, degree))
	assert.Equal(3, SupportWindow(3.5, n, degree))
	assert.Equal(5, SupportWindow(5, n, degree))
	// Clamped so that the window stays inside the grid.
	assert.Equal(5, SupportWindow(6.5, n, degree))
	assert.Equal(5, SupportWindow(7, n, degree))
	assert.Equal(5, SupportWindow(100, n, degree))
	assert.Equal(0, SupportWindow(-3, n, degree))
	assert.Equal(0, SupportWindow(float32(math.NaN()), n, degree))
	assert.Equal(5, SupportWindow(float32(math.Inf(1)), n, degree))
}

// The window of degree+1 basis functions captures every non-zero basis
// function.
func TestSupportWindow_CoversSupport(t *testing.T) {
	const n, degree = 9, 3
	kv := knots(t, n, degree, PlateauInterpolating)
	for step := 0; step <= 700; step++ {
		x := float32(7) * float32(step) / 700
		u0 := SupportWindow(x, n, degree)
		for i := range n {
			if i >= u0 && i <= u0+degree {
				continue
			}
			assert.Zero(t, Basis(i, x, kv, degree), "B_%d(%v) outside window at %d", i, x, u0)
		}
	}
}

func TestMapUV(t *testing.T) {
	assert := assert.New(t)

	start := jmath.V2(200, 100)
	end := jmath.V2(600, 500)
	assert.Equal(jmath.V2(0, 0), MapUV(start, start, end, 7))
	assert.Equal(jmath.V2(7, 7), MapUV(end, start, end, 7))
	assert.Equal(jmath.V2(3.5, 3.5), MapUV(jmath.V2(400, 300), start, end, 7))
	// No clamping.
	assert.Equal(jmath.V2(-3.5, 8.75), MapUV(jmath.V2(0, 600), start, end, 7))
}

func lattice(n int, origin jmath.Vec2, spacing float32) []jmath.Vec2 {
	out := make([]jmath.Vec2, n*n)
	for col := range n {
		for row := range n {
			out[col*n+row] = origin.Add(jmath.V2(float32(col)*spacing, float32(row)*spacing))
		}
	}
	return out
}

func TestEvaluate_Corners(t *testing.T) {
	assert := assert.New(t)

	const n, degree = 9, 3
	kv := knots(t, n, degree, PlateauInterpolating)
	ctrl := lattice(n, jmath.V2(200, 100), 50)
	ctrl[0] = jmath.V2(190, 95)
	ctrl[n*n-1] = jmath.V2(612, 480)

	assert.Equal(ctrl[0], Evaluate(jmath.V2(0, 0), kv, n, degree, ctrl))
	assert.Equal(ctrl[n*n-1], Evaluate(jmath.V2(7, 7), kv, n, degree, ctrl))
	// Corner (K, 0) is control point (len-1, 0).
	assert.Equal(ctrl[(n-1)*n], Evaluate(jmath.V2(7, 0), kv, n, degree, ctrl))
}

func TestEvaluate_Center3x3(t *testing.T) {
	assert := assert.New(t)

	ctrl := lattice(3, jmath.V2(0, 0), 10)
	ctrl[4] = jmath.V2(14, 12)

	kv := knots(t, 3, 2, PlateauInterpolating)
	assert.Equal(ctrl[4], Evaluate(jmath.V2(1, 1), kv, 3, 2, ctrl))

	// With the extended plateau the lattice center maps to 1.5, where the
	// four control points (1..2, 1..2) contribute a quarter each.
	kv = knots(t, 3, 2, PlateauExtended)
	got := Evaluate(jmath.V2(1.5, 1.5), kv, 3, 2, ctrl)
	want := ctrl[4].Add(ctrl[5]).Add(ctrl[7]).Add(ctrl[8]).Scale(0.25)
	assert.InDelta(want.X, got.X, 1e-4)
	assert.InDelta(want.Y, got.Y, 1e-4)
}

func TestConfigUniform_Size(t *testing.T) {
	assert.Equal(t, uintptr(48), unsafe.Sizeof(ConfigUniform{}))
}
