// Command bsurf deforms a set of points with a B-spline surface and renders
// the result to a PNG.
//
// Control points are displaced with -drag col,row,dx,dy, which may be given
// multiple times. Without -image the surface is evaluated at the points of a
// circle or a grid; with -image it is evaluated at the vertices of a triangle
// mesh approximating the image.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	stdcolor "image/color"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
	"honnef.co/go/bsurf"
	"honnef.co/go/bsurf/engine/wgpu_engine"
	"honnef.co/go/bsurf/gfx"
	"honnef.co/go/bsurf/grid"
	"honnef.co/go/bsurf/mesh"
	"honnef.co/go/bsurf/samples"
	"honnef.co/go/bsurf/spline"
	"honnef.co/go/curve"
)

// pipeName is the file name that indicates stdout is being used.
const pipeName = "-"

var canvasSize = image.Pt(800, 600)

type drag struct {
	col, row int
	d        curve.Vec2
}

type drags []drag

func (ds *drags) String() string {
	var parts []string
	for _, d := range *ds {
		parts = append(parts, fmt.Sprintf("%d,%d,%g,%g", d.col, d.row, d.d.X, d.d.Y))
	}
	return strings.Join(parts, " ")
}

func (ds *drags) Set(s string) error {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return fmt.Errorf("want col,row,dx,dy, got %q", s)
	}
	col, err := strconv.Atoi(fields[0])
	if err != nil {
		return err
	}
	row, err := strconv.Atoi(fields[1])
	if err != nil {
		return err
	}
	dx, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return err
	}
	dy, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return err
	}
	*ds = append(*ds, drag{col, row, curve.Vec(dx, dy)})
	return nil
}

var (
	length     = flag.Int("len", spline.DefaultLen, "Control points per axis")
	degree     = flag.Int("degree", spline.DefaultDegree, "Degree of the basis functions")
	numSamples = flag.Int("samples", samples.DefaultCircleSamples, "Number of circle samples, or grid samples per axis")
	source     = flag.String("source", "circle", "Sample source without -image: circle or grid")
	plateau    = flag.String("plateau", "interpolating", "Knot vector tail: interpolating or extended")
	mode       = flag.String("mode", "fused", "Pipeline mode: fused or staged")
	useCPU     = flag.Bool("cpu", true, "Run the kernels on the CPU")
	imagePath  = flag.String("image", "", "Triangulate this image and deform its mesh")
	depth      = flag.Int("depth", 3, "Refinement iterations of the image mesh")
	scale      = flag.Float64("scale", 1, "Scale of the image mesh on the canvas")
	output     = flag.String("o", pipeName, "Destination PNG")
	timeout    = flag.Duration("timeout", 10*time.Second, "Timeout of every readback")
	verbose    = flag.Bool("v", false, "Log debug output")
	dragFlags  drags
)

func main() {
	log.SetFlags(0)
	flag.Var(&dragFlags, "drag", "Displace control point: col,row,dx,dy (repeatable)")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	bsurf.SetLogger(logger)

	if err := run(context.Background(), logger); err != nil {
		log.Fatalf("bsurf: %s", err)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	pl, err := spline.ParsePlateau(*plateau)
	if err != nil {
		return err
	}
	m, err := bsurf.ParseMode(*mode)
	if err != nil {
		return err
	}
	if !*useCPU {
		// Acquiring an adapter and device needs a windowing surface on most
		// platforms, which this command doesn't have.
		return errors.New("only the CPU engine is available from the command line")
	}

	cfg := spline.DefaultConfig()
	cfg.Len = *length
	cfg.Degree = *degree
	cfg.Plateau = pl

	g, err := grid.New(cfg)
	if err != nil {
		return err
	}
	for _, d := range dragFlags {
		if d.col < 0 || d.col >= cfg.Len || d.row < 0 || d.row >= cfg.Len {
			return fmt.Errorf("control point (%d, %d) out of range", d.col, d.row)
		}
		g.Displace(g.Index(d.col, d.row), d.d)
	}

	eng, err := wgpu_engine.New(nil, &wgpu_engine.Options{UseCPU: true})
	if err != nil {
		return err
	}
	ev, err := bsurf.NewEvaluator(eng, cfg, &bsurf.Options{
		Mode:    m,
		Timeout: *timeout,
		Profile: *verbose,
	})
	if err != nil {
		return err
	}

	dst, closeDst, err := openOutput(*output)
	if err != nil {
		return err
	}
	defer closeDst()

	r := gfx.NewRaster(canvasSize, stdcolor.White)
	if *imagePath != "" {
		if err := renderMesh(ctx, logger, ev, g.Points(), r); err != nil {
			return err
		}
	} else {
		pts, err := sourcePoints()
		if err != nil {
			return err
		}
		start := time.Now()
		out, err := ev.Evaluate(ctx, pts, g.Points())
		if err != nil {
			return err
		}
		logger.Info("evaluated surface", "samples", len(pts), "elapsed", time.Since(start))
		r.Squares(out, gfx.SamplePointSize, stdcolor.NRGBA{G: 0xFF, A: 0xFF})
	}
	r.Squares(g.Points(), gfx.ControlPointSize, stdcolor.NRGBA{R: 0xFF, A: 0xFF})
	return r.EncodePNG(dst)
}

func sourcePoints() ([]curve.Point, error) {
	switch *source {
	case "circle":
		return samples.Circle(samples.DefaultCircleCenter, samples.DefaultCircleRadius, *numSamples), nil
	case "grid":
		return samples.Grid(curve.Pt(0, 0), curve.Pt(float64(canvasSize.X), float64(canvasSize.Y)), *numSamples, *numSamples), nil
	default:
		return nil, fmt.Errorf("unknown sample source %q", *source)
	}
}

func renderMesh(ctx context.Context, logger *slog.Logger, ev *bsurf.Evaluator, ctrl []curve.Point, r *gfx.Raster) error {
	img, err := mesh.Load(*imagePath)
	if err != nil {
		return err
	}
	msh, err := mesh.Triangulate(img, &mesh.Options{Depth: *depth, Logger: logger})
	if err != nil {
		return err
	}
	soup := samples.Place(msh.Soup(), canvasSize, msh.Size, *scale)
	out, err := ev.Evaluate(ctx, soup, ctrl)
	if err != nil {
		return err
	}
	logger.Info("evaluated mesh", "triangles", msh.NumTriangles(), "samples", len(soup))
	r.Triangles(out, msh.Colors)
	return nil
}

// openOutput opens the destination file. Writing to a terminal is refused.
func openOutput(out string) (io.Writer, func(), error) {
	if out == pipeName {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return nil, nil, errors.New("`-` should be used with a pipe for stdout")
		}
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(out)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create the destination file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
