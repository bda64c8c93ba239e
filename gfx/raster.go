package gfx

import (
	"image"
	stdcolor "image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/vector"
	"honnef.co/go/color"
	"honnef.co/go/curve"
)

// Raster draws points and triangles onto an image, for inspecting evaluated
// surfaces without a display.
type Raster struct {
	Image *image.RGBA
	z     vector.Rasterizer
}

func NewRaster(size image.Point, background stdcolor.Color) *Raster {
	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Rect, image.NewUniform(background), image.Point{}, draw.Src)
	return &Raster{Image: img}
}

func (r *Raster) fill(c stdcolor.Color) {
	r.z.Draw(r.Image, r.Image.Rect, image.NewUniform(c), image.Point{})
}

func (r *Raster) begin() {
	b := r.Image.Rect.Size()
	r.z.Reset(b.X, b.Y)
	r.z.DrawOp = draw.Over
}

func pt32(p curve.Point) (float32, float32) {
	return float32(p.X), float32(p.Y)
}

// Squares draws a square of the given size centered on every point.
func (r *Raster) Squares(points []curve.Point, size float64, c stdcolor.Color) {
	off := float32(math.Floor(size / 2))
	if off == 0 {
		off = 0.5
	}
	r.begin()
	for _, p := range points {
		x, y := pt32(p)
		r.z.MoveTo(x-off, y-off)
		r.z.LineTo(x+off, y-off)
		r.z.LineTo(x+off, y+off)
		r.z.LineTo(x-off, y+off)
		r.z.ClosePath()
	}
	r.fill(c)
}

// Triangle fills a single triangle.
func (r *Raster) Triangle(tri [3]curve.Point, c stdcolor.Color) {
	r.begin()
	r.z.MoveTo(pt32(tri[0]))
	r.z.LineTo(pt32(tri[1]))
	r.z.LineTo(pt32(tri[2]))
	r.z.ClosePath()
	r.fill(c)
}

// Triangles fills every triangle of a triangle soup, three points per
// triangle, with the triangle's color.
func (r *Raster) Triangles(soup []curve.Point, colors []color.Color) {
	for i := 0; i+2 < len(soup); i += 3 {
		c := NRGBA(&colors[i/3])
		r.Triangle([3]curve.Point{soup[i], soup[i+1], soup[i+2]}, c)
	}
}

// Polyline strokes the closed polygon through points with hairlines of the
// given width.
func (r *Raster) Polyline(points []curve.Point, width float64, c stdcolor.Color) {
	if len(points) < 2 {
		return
	}
	r.begin()
	hw := width / 2
	for i, p := range points {
		q := points[(i+1)%len(points)]
		d := q.Sub(p)
		l := math.Hypot(d.X, d.Y)
		if l == 0 {
			continue
		}
		nx, ny := -d.Y/l*hw, d.X/l*hw
		r.z.MoveTo(float32(p.X+nx), float32(p.Y+ny))
		r.z.LineTo(float32(q.X+nx), float32(q.Y+ny))
		r.z.LineTo(float32(q.X-nx), float32(q.Y-ny))
		r.z.LineTo(float32(p.X-nx), float32(p.Y-ny))
		r.z.ClosePath()
	}
	r.fill(c)
}

func (r *Raster) EncodePNG(w io.Writer) error {
	return png.Encode(w, r.Image)
}
