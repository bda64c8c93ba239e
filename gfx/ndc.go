package gfx

import (
	"image"
	"math"

	"honnef.co/go/bsurf/jmath"
	"honnef.co/go/curve"
)

// Sizes of the squares that mark points.
const (
	ControlPointSize = 4
	SamplePointSize  = 2
)

// VerticesPerSquare is the number of vertices of the two triangles that make
// up a square.
const VerticesPerSquare = 6

// ToNDC maps a canvas position to normalized device coordinates. The y axis
// is flipped: the top of the canvas is at +1.
func ToNDC(p curve.Point, canvas image.Point) jmath.Vec2 {
	return jmath.V2(
		float32((p.X/float64(canvas.X)-0.5)*2),
		float32(-(p.Y/float64(canvas.Y)-0.5)*2),
	)
}

// SquareVertices returns, for every point, the six vertices in NDC of two
// triangles covering a square of the given size centered on the point. The
// vertices of a square are ordered
//
//	0--1 4
//	| / /|
//	|/ / |
//	2 3--5
func SquareVertices(points []curve.Point, canvas image.Point, size float64) []jmath.Vec2 {
	off := math.Floor(size / 2)
	out := make([]jmath.Vec2, 0, len(points)*VerticesPerSquare)
	add := func(x, y float64) {
		out = append(out, ToNDC(curve.Pt(x, y), canvas))
	}
	for _, p := range points {
		add(p.X-off, p.Y-off)
		add(p.X+off, p.Y-off)
		add(p.X-off, p.Y+off)

		add(p.X-off, p.Y+off)
		add(p.X+off, p.Y-off)
		add(p.X+off, p.Y+off)
	}
	return out
}
