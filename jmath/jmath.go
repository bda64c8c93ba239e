package jmath

import (
	"math"
	"structs"

	"golang.org/x/exp/constraints"
	"honnef.co/go/curve"
)

func Abs32(f float32) float32 {
	return float32(math.Abs(float64(f)))
}

func Floor32(f float32) float32 {
	return float32(math.Floor(float64(f)))
}

func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// Vec2 matches WGSL's vec2<f32>.
type Vec2 struct {
	_ structs.HostLayout

	X float32
	Y float32
}

// Vec4 matches WGSL's vec4<f32>.
type Vec4 struct {
	_ structs.HostLayout

	X, Y, Z, W float32
}

func V2(x, y float32) Vec2 { return Vec2{X: x, Y: y} }

func Vec2FromPoint(pt curve.Point) Vec2 {
	return Vec2{X: float32(pt.X), Y: float32(pt.Y)}
}

func (v Vec2) Point() curve.Point {
	return curve.Pt(float64(v.X), float64(v.Y))
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vec2) Mul(o Vec2) Vec2 { return Vec2{X: v.X * o.X, Y: v.Y * o.Y} }
func (v Vec2) Div(o Vec2) Vec2 { return Vec2{X: v.X / o.X, Y: v.Y / o.Y} }
func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// AlignUp rounds n up to a multiple of alignment, which has to be a power of
// two.
func AlignUp[T constraints.Integer](n T, alignment T) T {
	return (n + alignment - 1) & -alignment
}

func IsPowerOfTwo[T constraints.Integer](n T) bool {
	return n > 0 && n&(n-1) == 0
}
