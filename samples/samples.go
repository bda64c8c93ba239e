// Package samples generates sets of points to evaluate a surface at.
package samples

import (
	"image"
	"math"

	"honnef.co/go/curve"
)

// Defaults of the circle demo.
const (
	DefaultCircleSamples = 100
	DefaultCircleRadius  = 125
)

var DefaultCircleCenter = curve.Pt(400, 300)

// Circle returns n points evenly spaced on a circle, starting at angle 0 and
// proceeding clockwise in screen coordinates.
func Circle(center curve.Point, radius float64, n int) []curve.Point {
	out := make([]curve.Point, n)
	for i := range out {
		rad := 2 * math.Pi * float64(i) / float64(n)
		out[i] = curve.Pt(center.X+radius*math.Cos(rad), center.Y+radius*math.Sin(rad))
	}
	return out
}

// Grid returns nx*ny points evenly covering the rectangle from p0 to p1,
// including its edges. Points are ordered column by column.
func Grid(p0, p1 curve.Point, nx, ny int) []curve.Point {
	if nx <= 0 || ny <= 0 {
		return nil
	}
	step := func(lo, hi float64, i, n int) float64 {
		if n == 1 {
			return lo
		}
		return lo + (hi-lo)*float64(i)/float64(n-1)
	}
	out := make([]curve.Point, 0, nx*ny)
	for x := range nx {
		for y := range ny {
			out = append(out, curve.Pt(step(p0.X, p1.X, x, nx), step(p0.Y, p1.Y, y, ny)))
		}
	}
	return out
}

// Place maps points in the coordinate space of an image onto a canvas. The
// image is scaled by scale and centered on the canvas.
func Place(points []curve.Point, canvas, img image.Point, scale float64) []curve.Point {
	tx := float64(canvas.X)/2 - float64(img.X)*scale/2
	ty := float64(canvas.Y)/2 - float64(img.Y)*scale/2
	out := make([]curve.Point, len(points))
	for i, p := range points {
		out[i] = curve.Pt(p.X*scale+tx, p.Y*scale+ty)
	}
	return out
}
