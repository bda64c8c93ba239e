package spline

import (
	"errors"
	"fmt"
	"math"
	"structs"

	"honnef.co/go/curve"
)

var (
	ErrInvalidDegree       = errors.New("spline: invalid degree")
	ErrTooFewControlPoints = errors.New("spline: too few control points for degree")
	ErrDegenerateGrid      = errors.New("spline: degenerate control grid")
)

// Default geometry of the interactive demo.
const (
	DefaultLen     = 9
	DefaultDegree  = 3
	DefaultSpacing = 50
)

var DefaultOrigin = curve.Pt(200, 100)

// Config describes the geometry of a tensor-product surface. It is immutable
// once validated and is passed by value into every stage.
type Config struct {
	// Number of control points along each axis.
	Len    int
	Degree int
	// Position of control point (0, 0) on the undisplaced lattice.
	Origin  curve.Point
	Spacing float64
	Plateau Plateau
}

// DefaultConfig returns a 9x9 cubic grid with interpolating knots. The
// interactive demos used PlateauExtended instead.
func DefaultConfig() Config {
	return Config{
		Len:     DefaultLen,
		Degree:  DefaultDegree,
		Origin:  DefaultOrigin,
		Spacing: DefaultSpacing,
	}
}

func (cfg Config) Validate() error {
	if cfg.Degree < 1 || cfg.Degree > MaxDegree {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidDegree, cfg.Degree, MaxDegree)
	}
	if cfg.Len < cfg.Degree+1 {
		return fmt.Errorf("%w: len %d < degree+1 (%d)", ErrTooFewControlPoints, cfg.Len, cfg.Degree+1)
	}
	if cfg.Spacing == 0 || math.IsNaN(cfg.Spacing) || math.IsInf(cfg.Spacing, 0) {
		return fmt.Errorf("%w: spacing %v", ErrDegenerateGrid, cfg.Spacing)
	}
	switch cfg.Plateau {
	case PlateauInterpolating, PlateauExtended:
	default:
		return fmt.Errorf("spline: unknown plateau %d", cfg.Plateau)
	}
	return nil
}

// NumControlPoints returns len*len.
func (cfg Config) NumControlPoints() int { return cfg.Len * cfg.Len }

// GridEnd returns the position of the last control point on the undisplaced
// lattice.
func (cfg Config) GridEnd() curve.Point {
	ext := cfg.Spacing * float64(cfg.Len-1)
	return cfg.Origin.Translate(curve.Vec(ext, ext))
}

// Knots builds the configuration's knot vector.
func (cfg Config) Knots() (KnotVector, error) {
	return BuildKnotVector(cfg.Len, cfg.Degree, cfg.Plateau)
}

// ConfigUniform is the uniform buffer shared by all kernels. Its layout
// mirrors the Config struct in shared/config.wgsl.
type ConfigUniform struct {
	_ structs.HostLayout

	GridStart  [2]float32
	GridEnd    [2]float32
	KnotMax    float32
	Len        uint32
	Degree     uint32
	NumSamples uint32
	NumKnots   uint32

	_ [3]uint32
}

func (cfg Config) Uniform(knots KnotVector, numSamples int) ConfigUniform {
	end := cfg.GridEnd()
	return ConfigUniform{
		GridStart:  [2]float32{float32(cfg.Origin.X), float32(cfg.Origin.Y)},
		GridEnd:    [2]float32{float32(end.X), float32(end.Y)},
		KnotMax:    float32(knots.Max()),
		Len:        uint32(cfg.Len),
		Degree:     uint32(cfg.Degree),
		NumSamples: uint32(numSamples),
		NumKnots:   uint32(len(knots)),
	}
}
