package samples

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"honnef.co/go/curve"
)

func TestCircle(t *testing.T) {
	assert := assert.New(t)

	pts := Circle(DefaultCircleCenter, DefaultCircleRadius, DefaultCircleSamples)
	assert.Len(pts, DefaultCircleSamples)
	assert.Equal(curve.Pt(525, 300), pts[0])
	// A quarter turn later, y grows downwards.
	assert.InDelta(400, pts[25].X, 1e-9)
	assert.InDelta(425, pts[25].Y, 1e-9)
	for _, p := range pts {
		assert.InDelta(DefaultCircleRadius, math.Hypot(p.X-400, p.Y-300), 1e-9)
	}

	assert.Empty(Circle(DefaultCircleCenter, 1, 0))
}

func TestGrid(t *testing.T) {
	assert := assert.New(t)

	pts := Grid(curve.Pt(0, 0), curve.Pt(10, 20), 3, 2)
	assert.Equal([]curve.Point{
		curve.Pt(0, 0), curve.Pt(0, 20),
		curve.Pt(5, 0), curve.Pt(5, 20),
		curve.Pt(10, 0), curve.Pt(10, 20),
	}, pts)

	assert.Equal([]curve.Point{curve.Pt(1, 2)}, Grid(curve.Pt(1, 2), curve.Pt(5, 5), 1, 1))
	assert.Nil(Grid(curve.Pt(0, 0), curve.Pt(1, 1), 0, 4))
	assert.Nil(Grid(curve.Pt(0, 0), curve.Pt(1, 1), 4, -1))
}

func TestPlace(t *testing.T) {
	assert := assert.New(t)

	canvas := image.Pt(800, 600)
	img := image.Pt(400, 200)
	pts := Place([]curve.Point{curve.Pt(0, 0), curve.Pt(400, 200), curve.Pt(200, 100)}, canvas, img, 0.5)
	// The scaled image is 200x100, centered on the canvas.
	assert.Equal([]curve.Point{curve.Pt(300, 250), curve.Pt(500, 350), curve.Pt(400, 300)}, pts)

	assert.Empty(Place(nil, canvas, img, 1))
}
