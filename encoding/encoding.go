// Package encoding converts sample points and control points into the byte
// layouts consumed by the kernels, and back.
package encoding

import (
	"fmt"

	"honnef.co/go/bsurf/jmath"
	"honnef.co/go/bsurf/mem"
	"honnef.co/go/curve"
	"honnef.co/go/safeish"
)

// DefaultAlignment is the minStorageBufferOffsetAlignment guaranteed by
// WebGPU.
const DefaultAlignment = 256

const sampleSize = 16

// Encoding accumulates the inputs of one evaluation.
type Encoding struct {
	Samples []jmath.Vec4
	Control []jmath.Vec2
}

func (enc *Encoding) Reset() {
	enc.Samples = enc.Samples[:0]
	enc.Control = enc.Control[:0]
}

func (enc *Encoding) NumSamples() int { return len(enc.Samples) }

// AppendSamples appends points as (x, y, 0, 1).
func (enc *Encoding) AppendSamples(points ...curve.Point) {
	for _, pt := range points {
		enc.Samples = append(enc.Samples, jmath.Vec4{X: float32(pt.X), Y: float32(pt.Y), Z: 0, W: 1})
	}
}

func (enc *Encoding) SetControl(points []curve.Point) {
	enc.Control = enc.Control[:0]
	for _, pt := range points {
		enc.Control = append(enc.Control, jmath.Vec2FromPoint(pt))
	}
}

// SamplesData returns the staged samples, padded with zeroed entries to a
// multiple of alignment bytes.
func (enc *Encoding) SamplesData(arena *mem.Arena, alignment int) []byte {
	n := StagedSize(len(enc.Samples), alignment)
	out := mem.Bytes(arena, n)
	copy(out, safeish.SliceCast[[]byte](enc.Samples))
	return out
}

func (enc *Encoding) ControlData(arena *mem.Arena) []byte {
	out := mem.Bytes(arena, len(enc.Control)*8)
	copy(out, safeish.SliceCast[[]byte](enc.Control))
	return out
}

// StagedSize returns the size in bytes of n staged samples, rounded up to
// alignment. alignment has to be a power of two no smaller than a single
// sample.
func StagedSize(n int, alignment int) int {
	if !jmath.IsPowerOfTwo(alignment) || alignment < sampleSize {
		panic(fmt.Sprintf("invalid staging alignment %d", alignment))
	}
	return jmath.AlignUp(max(n, 1)*sampleSize, alignment)
}

// StageSamples is a shorthand for encoding points on their own.
func StageSamples(arena *mem.Arena, points []curve.Point, alignment int) []byte {
	var enc Encoding
	enc.Samples = mem.NewSlice[[]jmath.Vec4](arena, 0, len(points))
	enc.AppendSamples(points...)
	return enc.SamplesData(arena, alignment)
}

func EncodeControlPoints(arena *mem.Arena, points []curve.Point) []byte {
	out := mem.NewSlice[[]jmath.Vec2](arena, len(points), len(points))
	for i, pt := range points {
		out[i] = jmath.Vec2FromPoint(pt)
	}
	return safeish.SliceCast[[]byte](out)
}

// EncodeKnots copies the knot vector into the arena as array<f32>.
func EncodeKnots(arena *mem.Arena, knots []float32) []byte {
	out := mem.MakeSlice(arena, knots)
	return safeish.SliceCast[[]byte](out)
}

// DecodeVec2 interprets the first n entries of b as vec2<f32>.
func DecodeVec2(b []byte, n int) []jmath.Vec2 {
	if len(b) < n*8 {
		panic(fmt.Sprintf("buffer of size %d cannot hold %d vec2s", len(b), n))
	}
	return safeish.SliceCast[[]jmath.Vec2](b[:n*8])
}

// DecodePositions converts the first n positions in b to points. The
// returned slice doesn't alias b.
func DecodePositions(b []byte, n int) []curve.Point {
	vs := DecodeVec2(b, n)
	out := make([]curve.Point, n)
	for i, v := range vs {
		out[i] = v.Point()
	}
	return out
}
