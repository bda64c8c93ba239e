// Package mesh approximates an image with a triangle mesh. Starting from a
// regular lattice of vertices, it repeatedly triangulates the vertices and
// adds a vertex to every triangle whose corners differ too much from the
// triangle's average color.
package mesh

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/delaunay"
	"honnef.co/go/color"
	"honnef.co/go/curve"
)

var ErrEmptyImage = errors.New("mesh: image is empty")

// Options configures Triangulate. Zero fields select the defaults.
type Options struct {
	// Number of lattice cells along each axis. The initial vertices are the
	// (GridX+1)*(GridY+1) cell corners. Defaults to 20.
	GridX, GridY int
	// Number of triangulations. All but the last one refine the vertex set.
	// Defaults to 3.
	Depth int
	// A triangle is refined if the summed per-channel difference between
	// its corners and its average color exceeds Threshold. Defaults to 100.
	Threshold int
	// The image is resized by Scale before triangulation. Defaults to 0.5.
	Scale float64
	Logger *slog.Logger
}

func (opts *Options) withDefaults() Options {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.GridX <= 0 {
		o.GridX = 20
	}
	if o.GridY <= 0 {
		o.GridY = 20
	}
	if o.Depth <= 0 {
		o.Depth = 3
	}
	if o.Threshold <= 0 {
		o.Threshold = 100
	}
	if o.Scale <= 0 {
		o.Scale = 0.5
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Mesh is a triangulated image.
type Mesh struct {
	// Size of the resized image the mesh was computed on.
	Size   image.Point
	Points []curve.Point
	// Indices into Points, three per triangle.
	Triangles []int
	// Average color of every triangle, in sRGB.
	Colors []color.Color
}

func (m *Mesh) NumTriangles() int { return len(m.Triangles) / 3 }

// Soup returns the corners of every triangle, three points per triangle.
func (m *Mesh) Soup() []curve.Point {
	out := make([]curve.Point, len(m.Triangles))
	for i, idx := range m.Triangles {
		out[i] = m.Points[idx]
	}
	return out
}

// Triangle returns the corners of triangle i.
func (m *Mesh) Triangle(i int) [3]curve.Point {
	return [3]curve.Point{
		m.Points[m.Triangles[3*i]],
		m.Points[m.Triangles[3*i+1]],
		m.Points[m.Triangles[3*i+2]],
	}
}

type rgb [3]int

type vertex struct{ x, y int }

type triangle [3]vertex

func (t triangle) bounds() (minX, minY, maxX, maxY int) {
	minX, maxX = t[0].x, t[0].x
	minY, maxY = t[0].y, t[0].y
	for _, v := range t[1:] {
		minX = min(minX, v.x)
		maxX = max(maxX, v.x)
		minY = min(minY, v.y)
		maxY = max(maxY, v.y)
	}
	return minX, minY, maxX, maxY
}

// contains reports whether (px, py) lies inside t or on its boundary, using
// barycentric coordinates. Degenerate triangles contain nothing.
func (t triangle) contains(px, py int) bool {
	x1, y1 := float64(t[0].x), float64(t[0].y)
	x2, y2 := float64(t[1].x), float64(t[1].y)
	x3, y3 := float64(t[2].x), float64(t[2].y)
	x, y := float64(px), float64(py)

	area := 0.5 * (-y2*x3 + y1*(-x2+x3) + x1*(y2-y3) + x2*y3)
	if area == 0 {
		return false
	}
	s := 1 / (2 * area) * (y1*x3 - x1*y3 + (y3-y1)*x + (x1-x3)*y)
	u := 1 / (2 * area) * (x1*y2 - y1*x2 + (y1-y2)*x + (x2-x1)*y)
	return s >= 0 && u >= 0 && s+u <= 1
}

func (t triangle) isVertex(x, y int) bool {
	for _, v := range t {
		if v.x == x && v.y == y {
			return true
		}
	}
	return false
}

type raster struct {
	img *image.NRGBA
}

func (r raster) at(x, y int) rgb {
	x = max(0, min(x, r.img.Rect.Dx()-1))
	y = max(0, min(y, r.img.Rect.Dy()-1))
	off := y*r.img.Stride + x*4
	p := r.img.Pix[off : off+3 : off+3]
	return rgb{int(p[0]), int(p[1]), int(p[2])}
}

func diff(a, b rgb) int {
	abs := func(v int) int {
		if v < 0 {
			return -v
		}
		return v
	}
	return abs(a[0]-b[0]) + abs(a[1]-b[1]) + abs(a[2]-b[2])
}

// average returns the truncated mean color of all pixels inside t, or black
// if t covers no pixel.
func (r raster) average(t triangle) rgb {
	var total rgb
	count := 0
	minX, minY, maxX, maxY := t.bounds()
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if !t.contains(x, y) {
				continue
			}
			c := r.at(x, y)
			total[0] += c[0]
			total[1] += c[1]
			total[2] += c[2]
			count++
		}
	}
	if count == 0 {
		return rgb{}
	}
	return rgb{total[0] / count, total[1] / count, total[2] / count}
}

func (r raster) vertexError(t triangle, avg rgb) int {
	e := 0
	for _, v := range t {
		e += diff(r.at(v.x, v.y), avg)
	}
	return e
}

// lowestError returns the pixel inside t, other than its corners, that is
// closest to avg. It returns (0, 0) if there is no such pixel.
func (r raster) lowestError(t triangle, avg rgb) vertex {
	var best vertex
	bestErr := math.MaxInt
	minX, minY, maxX, maxY := t.bounds()
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if !t.contains(x, y) || t.isVertex(x, y) {
				continue
			}
			if e := diff(r.at(x, y), avg); e < bestErr {
				best = vertex{x, y}
				bestErr = e
			}
		}
	}
	return best
}

// Triangulate computes a mesh for img.
func Triangulate(img image.Image, opts *Options) (*Mesh, error) {
	o := opts.withDefaults()
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}
	w := max(int(float64(b.Dx())*o.Scale), 1)
	h := max(int(float64(b.Dy())*o.Scale), 1)
	r := raster{img: imaging.Resize(img, w, h, imaging.Linear)}

	verts := make([]vertex, 0, (o.GridX+1)*(o.GridY+1))
	seen := make(map[vertex]struct{}, cap(verts))
	add := func(v vertex) bool {
		if _, ok := seen[v]; ok {
			return false
		}
		seen[v] = struct{}{}
		verts = append(verts, v)
		return true
	}
	for x := 0; x <= o.GridX; x++ {
		for y := 0; y <= o.GridY; y++ {
			add(vertex{(w - 1) * x / o.GridX, (h - 1) * y / o.GridY})
		}
	}

	for d := 0; ; d++ {
		tri, err := triangulate(verts)
		if err != nil {
			return nil, err
		}
		if d == o.Depth-1 {
			m := &Mesh{
				Size:      image.Pt(w, h),
				Points:    make([]curve.Point, len(verts)),
				Triangles: tri.Triangles,
				Colors:    make([]color.Color, len(tri.Triangles)/3),
			}
			for i, v := range verts {
				m.Points[i] = curve.Pt(float64(v.x), float64(v.y))
			}
			for i := range m.Colors {
				avg := r.average(corners(verts, tri.Triangles, i))
				m.Colors[i] = color.Make(color.SRGB,
					float64(avg[0])/255, float64(avg[1])/255, float64(avg[2])/255, 1)
			}
			o.Logger.Debug("triangulated image",
				"width", w, "height", h,
				"vertices", len(verts), "triangles", m.NumTriangles())
			return m, nil
		}

		added := 0
		n := len(tri.Triangles) / 3
		for i := range n {
			t := corners(verts, tri.Triangles, i)
			avg := r.average(t)
			if r.vertexError(t, avg) <= o.Threshold {
				continue
			}
			v := r.lowestError(t, avg)
			if v.x > 0 && v.y > 0 && add(v) {
				added++
			}
		}
		o.Logger.Debug("refined mesh", "iteration", d, "triangles", n, "added", added)
	}
}

func corners(verts []vertex, triangles []int, i int) triangle {
	return triangle{verts[triangles[3*i]], verts[triangles[3*i+1]], verts[triangles[3*i+2]]}
}

func triangulate(verts []vertex) (*delaunay.Triangulation, error) {
	pts := make([]delaunay.Point, len(verts))
	for i, v := range verts {
		pts[i] = delaunay.Point{X: float64(v.x), Y: float64(v.y)}
	}
	tri, err := delaunay.Triangulate(pts)
	if err != nil {
		return nil, fmt.Errorf("mesh: triangulating %d vertices: %w", len(verts), err)
	}
	return tri, nil
}
