package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"honnef.co/go/bsurf/jmath"
	"honnef.co/go/bsurf/spline"
	"honnef.co/go/curve"
	"honnef.co/go/safeish"
)

type fixture struct {
	cfg     spline.Config
	knots   []float32
	uniform CPUBuffer
	n       int
}

func newFixture(t *testing.T, cfg spline.Config, n int) *fixture {
	t.Helper()
	kv, err := cfg.Knots()
	require.NoError(t, err)
	u := cfg.Uniform(kv, n)
	return &fixture{
		cfg:     cfg,
		knots:   kv.Float32(),
		uniform: CPUBuffer(safeish.AsBytes(&u)),
		n:       n,
	}
}

func vec2Buffer(n int) (CPUBuffer, []jmath.Vec2) {
	s := make([]jmath.Vec2, n)
	return CPUBuffer(safeish.SliceCast[[]byte](s)), s
}

func TestUV(t *testing.T) {
	assert := assert.New(t)

	f := newFixture(t, spline.DefaultConfig(), 3)
	samples := []jmath.Vec4{
		{X: 200, Y: 100, W: 1},
		{X: 400, Y: 300, W: 1},
		{X: 600, Y: 500, W: 1},
		// padding
		{},
	}
	uvBuf, uv := vec2Buffer(3)
	UV(1, []CPUBinding{f.uniform, CPUBuffer(safeish.SliceCast[[]byte](samples)), uvBuf})

	assert.Equal(jmath.V2(0, 0), uv[0])
	assert.Equal(jmath.V2(3.5, 3.5), uv[1])
	assert.Equal(jmath.V2(7, 7), uv[2])
}

func TestBlend(t *testing.T) {
	assert := assert.New(t)

	f := newFixture(t, spline.DefaultConfig(), 2)
	uvBuf, uv := vec2Buffer(2)
	uv[0] = jmath.V2(0, 3.5)
	uv[1] = jmath.V2(7, 1.25)
	blendBuf, blend := vec2Buffer(2 * 9)
	Blend(1, []CPUBinding{f.uniform, CPUBuffer(safeish.SliceCast[[]byte](f.knots)), uvBuf, blendBuf})

	for s := range 2 {
		for i := range 9 {
			want := jmath.V2(
				spline.Basis(i, uv[s].X, f.knots, 3),
				spline.Basis(i, uv[s].Y, f.knots, 3),
			)
			assert.Equal(want, blend[s*9+i], "sample %d index %d", s, i)
		}
	}
	assert.Equal(float32(1), blend[0].X)
	assert.Equal(float32(1), blend[9+8].X)
}

func TestSum(t *testing.T) {
	assert := assert.New(t)

	cfg := spline.DefaultConfig()
	const n = 3
	f := newFixture(t, cfg, n)

	ctrlBuf, ctrl := vec2Buffer(81)
	for col := range 9 {
		for row := range 9 {
			ctrl[col*9+row] = jmath.Vec2FromPoint(cfg.Origin.Translate(curve.Vec(float64(col)*cfg.Spacing, float64(row)*cfg.Spacing)))
		}
	}
	ctrl[0] = jmath.V2(150, 60)

	uvBuf, uv := vec2Buffer(n)
	uv[0] = jmath.V2(0, 0)
	uv[1] = jmath.V2(2.25, 5.5)
	uv[2] = jmath.V2(7, 7)

	blendBuf, blend := vec2Buffer(n * 9)
	for s := range n {
		for i := range 9 {
			blend[s*9+i] = jmath.V2(
				spline.Basis(i, uv[s].X, f.knots, 3),
				spline.Basis(i, uv[s].Y, f.knots, 3),
			)
		}
	}
	posBuf, pos := vec2Buffer(n)
	Sum(1, []CPUBinding{f.uniform, uvBuf, blendBuf, ctrlBuf, posBuf})

	assert.Equal(ctrl[0], pos[0])
	assert.Equal(ctrl[80], pos[2])
	want := spline.Evaluate(uv[1], f.knots, 9, 3, ctrl)
	assert.InDelta(want.X, pos[1].X, 1e-3)
	assert.InDelta(want.Y, pos[1].Y, 1e-3)
}

func TestParallelFor(t *testing.T) {
	const n = minParallelInvocations*3 + 17
	hits := make([]int32, n)
	parallelFor(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			hits[i]++
		}
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestKernels_Large(t *testing.T) {
	// Enough samples to take the parallel path.
	cfg := spline.DefaultConfig()
	n := minParallelInvocations + 5
	f := newFixture(t, cfg, n)

	samples := make([]jmath.Vec4, n)
	for i := range samples {
		samples[i] = jmath.Vec4{X: 200 + float32(i%400), Y: 100 + float32(i/400), W: 1}
	}
	uvBuf, uv := vec2Buffer(n)
	UV(0, []CPUBinding{f.uniform, CPUBuffer(safeish.SliceCast[[]byte](samples)), uvBuf})
	for i, s := range samples {
		want := spline.MapUV(jmath.V2(s.X, s.Y), jmath.V2(200, 100), jmath.V2(600, 500), 7)
		if uv[i] != want {
			t.Fatalf("sample %d: got %v, want %v", i, uv[i], want)
		}
	}
}
