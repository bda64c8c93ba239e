package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"honnef.co/go/bsurf/jmath"
	"honnef.co/go/bsurf/mem"
	"honnef.co/go/curve"
	"honnef.co/go/safeish"
)

func TestStagedSize(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(256, StagedSize(0, 256))
	assert.Equal(256, StagedSize(1, 256))
	assert.Equal(256, StagedSize(16, 256))
	assert.Equal(512, StagedSize(17, 256))
	assert.Equal(1792, StagedSize(100, 256))
	assert.Equal(1600, StagedSize(100, 16))

	assert.Panics(func() { StagedSize(1, 100) })
	assert.Panics(func() { StagedSize(1, 8) })
}

func TestStageSamples(t *testing.T) {
	assert := assert.New(t)

	arena := mem.NewArena()
	points := []curve.Point{curve.Pt(1, 2), curve.Pt(3.5, -4), curve.Pt(400, 300)}
	b := StageSamples(arena, points, DefaultAlignment)
	assert.Len(b, DefaultAlignment)
	assert.Zero(len(b) % DefaultAlignment)

	vs := safeish.SliceCast[[]jmath.Vec4](b)
	assert.Equal(jmath.Vec4{X: 1, Y: 2, Z: 0, W: 1}, vs[0])
	assert.Equal(jmath.Vec4{X: 3.5, Y: -4, Z: 0, W: 1}, vs[1])
	assert.Equal(jmath.Vec4{X: 400, Y: 300, Z: 0, W: 1}, vs[2])
	// Padding is zeroed.
	for _, v := range vs[len(points):] {
		assert.Equal(jmath.Vec4{}, v)
	}
}

func TestEncoding_Reuse(t *testing.T) {
	assert := assert.New(t)

	arena := mem.NewArena()
	var enc Encoding
	enc.AppendSamples(curve.Pt(1, 1), curve.Pt(2, 2))
	enc.Reset()
	enc.AppendSamples(curve.Pt(5, 6))
	assert.Equal(1, enc.NumSamples())

	b := enc.SamplesData(arena, 64)
	assert.Len(b, 64)
	assert.Equal(jmath.Vec4{X: 5, Y: 6, W: 1}, safeish.SliceCast[[]jmath.Vec4](b)[0])
}

func TestControlPoints(t *testing.T) {
	assert := assert.New(t)

	arena := mem.NewArena()
	points := []curve.Point{curve.Pt(200, 100), curve.Pt(250, 100), curve.Pt(200.5, 150.25)}

	var enc Encoding
	enc.SetControl(points)
	a := enc.ControlData(arena)
	b := EncodeControlPoints(arena, points)
	assert.Equal(a, b)
	assert.Len(b, len(points)*8)
	assert.Equal(points, DecodePositions(b, len(points)))
}

func TestEncodeKnots(t *testing.T) {
	arena := mem.NewArena()
	b := EncodeKnots(arena, []float32{0, 0, 1, 2, 2})
	assert.Equal(t, []float32{0, 0, 1, 2, 2}, safeish.SliceCast[[]float32](b))
}

func TestDecodePositions(t *testing.T) {
	assert := assert.New(t)

	vs := []jmath.Vec2{jmath.V2(1, 2), jmath.V2(3, 4), jmath.V2(5, 6)}
	b := safeish.SliceCast[[]byte](vs)

	// Trailing entries beyond the sample count are ignored.
	got := DecodePositions(b, 2)
	assert.Equal([]curve.Point{curve.Pt(1, 2), curve.Pt(3, 4)}, got)

	got[0] = curve.Pt(0, 0)
	assert.Equal(jmath.V2(1, 2), vs[0])

	assert.Panics(func() { DecodePositions(b, 4) })
}
