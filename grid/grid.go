// Package grid models the editable control grid of a surface: a square
// lattice of control points, each displaced by an offset.
package grid

import (
	"fmt"
	"math"
	"slices"

	"honnef.co/go/bsurf/spline"
	"honnef.co/go/curve"
)

// OffsetMargin is the distance SetOffset keeps between a control point and
// its neighbours' lattice positions.
const OffsetMargin = 10

// Grid holds len*len control points. Point (col, row) sits at
// origin + (col*spacing, row*spacing) on the undisplaced lattice and is
// stored at index col*len+row, the order the sum kernel expects.
type Grid struct {
	cfg     spline.Config
	offsets []curve.Vec2
}

func New(cfg spline.Config) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Grid{
		cfg:     cfg,
		offsets: make([]curve.Vec2, cfg.NumControlPoints()),
	}, nil
}

func (g *Grid) Config() spline.Config { return g.cfg }

func (g *Grid) Len() int { return g.cfg.Len }

// Index returns the index of control point (col, row). It panics if either
// coordinate is out of range.
func (g *Grid) Index(col, row int) int {
	if col < 0 || col >= g.cfg.Len || row < 0 || row >= g.cfg.Len {
		panic(fmt.Sprintf("control point (%d, %d) out of range for %dx%d grid", col, row, g.cfg.Len, g.cfg.Len))
	}
	return col*g.cfg.Len + row
}

// Coords is the inverse of Index.
func (g *Grid) Coords(idx int) (col, row int) {
	return idx / g.cfg.Len, idx % g.cfg.Len
}

// Lattice returns the undisplaced position of control point idx.
func (g *Grid) Lattice(idx int) curve.Point {
	col, row := g.Coords(idx)
	s := g.cfg.Spacing
	return g.cfg.Origin.Translate(curve.Vec(float64(col)*s, float64(row)*s))
}

// Point returns the current position of control point idx.
func (g *Grid) Point(idx int) curve.Point {
	return g.Lattice(idx).Translate(g.offsets[idx])
}

func (g *Grid) Offset(idx int) curve.Vec2 { return g.offsets[idx] }

// MaxOffset returns the largest offset SetOffset allows along either axis.
func (g *Grid) MaxOffset() float64 {
	return math.Max(math.Abs(g.cfg.Spacing)-OffsetMargin, 0)
}

// SetOffset sets the offset of control point idx, clamping each component to
// [-MaxOffset, MaxOffset].
func (g *Grid) SetOffset(idx int, off curve.Vec2) {
	m := g.MaxOffset()
	g.offsets[idx] = curve.Vec(
		math.Max(-m, math.Min(m, off.X)),
		math.Max(-m, math.Min(m, off.Y)),
	)
}

// Displace moves control point idx by d. Unlike SetOffset it doesn't clamp.
func (g *Grid) Displace(idx int, d curve.Vec2) {
	o := g.offsets[idx]
	g.offsets[idx] = curve.Vec(o.X+d.X, o.Y+d.Y)
}

// MoveTo places control point idx at p.
func (g *Grid) MoveTo(idx int, p curve.Point) {
	g.offsets[idx] = p.Sub(g.Lattice(idx))
}

// Reset removes all offsets.
func (g *Grid) Reset() {
	clear(g.offsets)
}

// Points returns the current positions of all control points.
func (g *Grid) Points() []curve.Point {
	out := make([]curve.Point, len(g.offsets))
	for i := range out {
		out[i] = g.Point(i)
	}
	return out
}

// LatticePoints returns the undisplaced positions of all control points.
func (g *Grid) LatticePoints() []curve.Point {
	out := make([]curve.Point, len(g.offsets))
	for i := range out {
		out[i] = g.Lattice(i)
	}
	return out
}

// Snapshot is a copy of a grid's offsets.
type Snapshot struct {
	offsets []curve.Vec2
}

func (g *Grid) Snapshot() Snapshot {
	return Snapshot{offsets: slices.Clone(g.offsets)}
}

// Restore replaces the grid's offsets with those of s. It panics if s was
// taken from a grid of a different size.
func (g *Grid) Restore(s Snapshot) {
	if len(s.offsets) != len(g.offsets) {
		panic(fmt.Sprintf("restoring snapshot of %d points into grid of %d points", len(s.offsets), len(g.offsets)))
	}
	copy(g.offsets, s.offsets)
}

// Pick returns the first control point whose square of the given size
// contains p.
func (g *Grid) Pick(p curve.Point, size float64) (int, bool) {
	half := math.Floor(size / 2)
	for i := range g.offsets {
		pt := g.Point(i)
		if math.Abs(pt.X-p.X) <= half && math.Abs(pt.Y-p.Y) <= half {
			return i, true
		}
	}
	return -1, false
}

// Drag moves a picked control point along with the cursor, keeping the
// distance between the cursor and the point that existed when it was
// grabbed.
type Drag struct {
	grid  *Grid
	index int
	grab  curve.Vec2
}

// Grab starts dragging the control point under p, if any.
func (g *Grid) Grab(p curve.Point, size float64) (*Drag, bool) {
	idx, ok := g.Pick(p, size)
	if !ok {
		return nil, false
	}
	return &Drag{
		grid:  g,
		index: idx,
		grab:  g.Point(idx).Sub(p),
	}, true
}

func (d *Drag) Index() int { return d.index }

// Move places the dragged point relative to the cursor at p. It does nothing
// after Release.
func (d *Drag) Move(p curve.Point) {
	if d.grid == nil {
		return
	}
	d.grid.MoveTo(d.index, p.Translate(d.grab))
}

func (d *Drag) Release() {
	d.grid = nil
	d.index = -1
	d.grab = curve.Vec2{}
}
