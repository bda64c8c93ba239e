// Package bsurf evaluates tensor-product B-spline surfaces for arbitrary sets
// of sample points.
//
// Evaluation runs as three dependent compute stages. The UV stage maps sample
// points into the parametric domain of the surface, the blend stage evaluates
// the basis functions of every control point index at every sample, and the
// sum stage combines them with the current control points. The stages are
// recorded by package spline and executed by a wgpu_engine.Engine, on a GPU
// or on the CPU.
package bsurf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"honnef.co/go/bsurf/encoding"
	"honnef.co/go/bsurf/engine/wgpu_engine"
	"honnef.co/go/bsurf/jmath"
	"honnef.co/go/bsurf/mem"
	"honnef.co/go/bsurf/spline"
	"honnef.co/go/curve"
	"honnef.co/go/wgpu"
)

var (
	ErrControlPointCount = errors.New("bsurf: wrong number of control points")
	ErrTimeout           = errors.New("bsurf: evaluation timed out")
	ErrNoQueue           = errors.New("bsurf: GPU engine needs a queue")
	ErrInvalidAlignment  = errors.New("bsurf: invalid staging alignment")
	ErrUnpreparedSurface = errors.New("bsurf: surface was not created by Prepare")
)

type Mode int

const (
	// ModeFused records all three stages into one submission and reads back
	// only the final positions.
	ModeFused Mode = iota
	// ModeStaged submits every stage on its own and waits for its results
	// before recording the next one.
	ModeStaged
)

func (m Mode) String() string {
	switch m {
	case ModeFused:
		return "fused"
	case ModeStaged:
		return "staged"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "fused", "":
		return ModeFused, nil
	case "staged":
		return ModeStaged, nil
	default:
		return 0, fmt.Errorf("bsurf: unknown mode %q", s)
	}
}

type Options struct {
	Mode Mode
	// Timeout bounds every readback. Zero means no timeout.
	Timeout time.Duration
	// Alignment in bytes of the staged sample buffer. Zero selects
	// encoding.DefaultAlignment.
	Alignment int
	// Queue to submit to. Required unless the engine runs on the CPU.
	Queue *wgpu.Queue
	// Profile logs stage timings at debug level.
	Profile bool
}

// Evaluator is the pipeline orchestrator. Evaluations are serialized; it is
// safe to call its methods from multiple goroutines.
type Evaluator struct {
	engine   *wgpu_engine.Engine
	pipeline *spline.Pipeline
	opts     Options
	logger   *slog.Logger

	// state of the most recent evaluation
	state atomic.Int32

	mu       sync.Mutex
	arena    *mem.Arena
	enc      encoding.Encoding
	profiler *wgpu_engine.Profiler
	runs     uint64
	history  []Step
}

func NewEvaluator(eng *wgpu_engine.Engine, cfg spline.Config, opts *Options) (*Evaluator, error) {
	if eng == nil {
		return nil, wgpu_engine.ErrNoDevice
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Alignment == 0 {
		o.Alignment = encoding.DefaultAlignment
	}
	if !jmath.IsPowerOfTwo(o.Alignment) || o.Alignment < spline.SampleStride {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAlignment, o.Alignment)
	}
	if !eng.UseCPU && o.Queue == nil {
		return nil, ErrNoQueue
	}
	pipeline, err := spline.NewPipeline(cfg, eng.Kernels())
	if err != nil {
		return nil, err
	}

	ev := &Evaluator{
		engine:   eng,
		pipeline: pipeline,
		opts:     o,
		logger:   Logger(),
		arena:    mem.NewArena(),
	}
	if o.Profile {
		ev.profiler = wgpu_engine.NewProfiler()
	}
	propagateLogger(eng, ev.logger)
	ev.logger.Info("evaluator ready",
		"backend", eng.Backend(),
		"mode", o.Mode,
		"len", cfg.Len,
		"degree", cfg.Degree,
		"knots", pipeline.Knots)
	return ev, nil
}

func (ev *Evaluator) Config() spline.Config { return ev.pipeline.Config }

func (ev *Evaluator) Knots() spline.KnotVector { return slices.Clone(ev.pipeline.Knots) }

// State returns the state of the most recent evaluation.
func (ev *Evaluator) State() State { return State(ev.state.Load()) }

// History returns the transitions of the most recent finished evaluation.
func (ev *Evaluator) History() []Step {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return slices.Clone(ev.history)
}

func (ev *Evaluator) checkControl(ctrl []curve.Point) error {
	if want := ev.pipeline.Config.NumControlPoints(); len(ctrl) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrControlPointCount, len(ctrl), want)
	}
	return nil
}

type run struct {
	ev      *Evaluator
	id      uint64
	state   State
	history []Step
	pgroup  *wgpu_engine.ProfilerGroup
	start   time.Time
}

// begin must be called with ev.mu held.
func (ev *Evaluator) begin(kind string) *run {
	ev.runs++
	r := &run{
		ev:     ev,
		id:     ev.runs,
		state:  Idle,
		pgroup: ev.profiler.Start(ev.runs),
		start:  time.Now(),
	}
	ev.state.Store(int32(Idle))
	ev.logger.Debug("evaluation started", "run", r.id, "kind", kind)
	return r
}

func (r *run) advance(to State) {
	if !CanTransition(r.state, to) {
		panic(fmt.Sprintf("invalid transition from %s to %s", r.state, to))
	}
	r.history = append(r.history, Step{From: r.state, To: to})
	r.ev.logger.Debug("evaluation state", "run", r.id, "from", r.state, "to", to)
	r.state = to
	r.ev.state.Store(int32(to))
}

func (r *run) fail(err error) error {
	r.advance(Failed)
	r.ev.logger.Debug("evaluation failed", "run", r.id, "err", err)
	return err
}

// end must be called with ev.mu held.
func (ev *Evaluator) end(r *run) {
	r.pgroup.End()
	for _, res := range ev.profiler.Collect() {
		ev.logProfile(r.id, &res)
	}
	ev.engine.DiscardDownloads()
	ev.history = r.history
	ev.logger.Debug("evaluation finished",
		"run", r.id,
		"state", r.state,
		"arena_bytes", ev.arena.Allocated(),
		"elapsed", time.Since(r.start))
	ev.arena.Reset()
}

func (ev *Evaluator) logProfile(id uint64, res *wgpu_engine.ProfilerResult) {
	ev.logger.Debug("profile", "run", id, "span", res.Label, "duration", res.Duration())
	for i := range res.Children {
		ev.logProfile(id, &res.Children[i])
	}
}

func (ev *Evaluator) readback(ctx context.Context, proxy spline.BufferProxy) ([]byte, error) {
	if ev.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ev.opts.Timeout)
		defer cancel()
	}
	data, err := ev.engine.Download(ctx, proxy)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrTimeout, proxy.Name, err)
	}
	return data, err
}

func (ev *Evaluator) submit(rec *spline.Recording, label string, pgroup *wgpu_engine.ProfilerGroup) {
	ev.engine.RunRecording(ev.arena, ev.opts.Queue, rec, label, pgroup)
}

// stage encodes samples and control points into the arena.
func (ev *Evaluator) stage(samples, ctrl []curve.Point) (sampleData, ctrlData []byte) {
	ev.enc.Reset()
	if samples != nil {
		ev.enc.AppendSamples(samples...)
		sampleData = ev.enc.SamplesData(ev.arena, ev.opts.Alignment)
		ev.logger.Debug("staged samples", "samples", len(samples), "bytes", len(sampleData))
	}
	if ctrl != nil {
		ev.enc.SetControl(ctrl)
		ctrlData = ev.enc.ControlData(ev.arena)
	}
	return sampleData, ctrlData
}

// Evaluate computes one surface position per sample point, for the given
// control points. ctrl is copied before waiting for other evaluations to
// finish, so later changes to it don't affect the result.
func (ev *Evaluator) Evaluate(ctx context.Context, samples, ctrl []curve.Point) ([]curve.Point, error) {
	if ev.opts.Mode == ModeStaged {
		st, err := ev.EvaluateStages(ctx, samples, ctrl)
		if err != nil {
			return nil, err
		}
		return st.Positions, nil
	}

	if err := ev.checkControl(ctrl); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return []curve.Point{}, nil
	}
	ctrl = slices.Clone(ctrl)

	ev.mu.Lock()
	defer ev.mu.Unlock()
	r := ev.begin("fused")
	defer ev.end(r)

	if err := ctx.Err(); err != nil {
		return nil, r.fail(err)
	}
	n := len(samples)
	sampleData, ctrlData := ev.stage(samples, ctrl)
	rec, out := ev.pipeline.RecordFull(ev.arena, sampleData, n, ctrlData, r.pgroup)
	ev.submit(&rec, "evaluate", r.pgroup)
	data, err := ev.readback(ctx, out)
	if err != nil {
		return nil, r.fail(err)
	}
	// All three stages completed as part of the same submission.
	r.advance(UVMapped)
	r.advance(BlendComputed)
	r.advance(Summed)
	positions := encoding.DecodePositions(data, n)
	r.advance(Done)
	return positions, nil
}

// Stages holds the outputs of every stage of an evaluation.
type Stages struct {
	// One UV coordinate per sample.
	UV []jmath.Vec2
	// Entry s*len+i holds the basis function values of control point index
	// i for sample s, for the u and v axes.
	Blend     []jmath.Vec2
	Positions []curve.Point
}

// BlendAt returns the basis values of index i for sample s.
func (st *Stages) BlendAt(s, i int) jmath.Vec2 {
	n := len(st.Blend) / max(len(st.UV), 1)
	return st.Blend[s*n+i]
}

// EvaluateStages runs the three stages one after another, waiting for every
// stage's results before recording the next one, and returns all
// intermediate results.
func (ev *Evaluator) EvaluateStages(ctx context.Context, samples, ctrl []curve.Point) (*Stages, error) {
	if err := ev.checkControl(ctrl); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return &Stages{Positions: []curve.Point{}}, nil
	}
	ctrl = slices.Clone(ctrl)

	ev.mu.Lock()
	defer ev.mu.Unlock()
	r := ev.begin("staged")
	defer ev.end(r)

	n := len(samples)
	sampleData, ctrlData := ev.stage(samples, ctrl)
	uv, blend, err := ev.runUVAndBlend(ctx, r, sampleData, n)
	if err != nil {
		return nil, err
	}
	positions, err := ev.runSum(ctx, r, uv, blend, ctrlData, n)
	if err != nil {
		return nil, err
	}
	return &Stages{
		UV:        encoding.DecodeVec2(uv, n),
		Blend:     encoding.DecodeVec2(blend, n*ev.pipeline.Config.Len),
		Positions: positions,
	}, nil
}

func (ev *Evaluator) runUVAndBlend(ctx context.Context, r *run, sampleData []byte, n int) (uv, blend []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, r.fail(err)
	}
	rec, uvBuf := ev.pipeline.RecordUV(ev.arena, sampleData, n, r.pgroup)
	ev.submit(&rec, "uv", r.pgroup)
	uv, err = ev.readback(ctx, uvBuf)
	if err != nil {
		return nil, nil, r.fail(err)
	}
	r.advance(UVMapped)

	rec, blendBuf := ev.pipeline.RecordBlend(ev.arena, uv, n, r.pgroup)
	ev.submit(&rec, "blend", r.pgroup)
	blend, err = ev.readback(ctx, blendBuf)
	if err != nil {
		return nil, nil, r.fail(err)
	}
	r.advance(BlendComputed)
	return uv, blend, nil
}

func (ev *Evaluator) runSum(ctx context.Context, r *run, uv, blend, ctrlData []byte, n int) ([]curve.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, r.fail(err)
	}
	rec, out := ev.pipeline.RecordSum(ev.arena, uv, blend, ctrlData, n, r.pgroup)
	ev.submit(&rec, "sum", r.pgroup)
	data, err := ev.readback(ctx, out)
	if err != nil {
		return nil, r.fail(err)
	}
	r.advance(Summed)
	positions := encoding.DecodePositions(data, n)
	r.advance(Done)
	return positions, nil
}

// Surface is a set of sample points whose UV coordinates and basis values
// have already been computed. Since neither depends on the control points,
// evaluating a surface only runs the sum stage.
type Surface struct {
	ev         *Evaluator
	numSamples int
	uv         []byte
	blend      []byte
}

// Prepare runs the UV and blend stages for samples.
func (ev *Evaluator) Prepare(ctx context.Context, samples []curve.Point) (*Surface, error) {
	if len(samples) == 0 {
		return &Surface{ev: ev}, nil
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	r := ev.begin("prepare")
	defer ev.end(r)

	n := len(samples)
	sampleData, _ := ev.stage(samples, nil)
	uv, blend, err := ev.runUVAndBlend(ctx, r, sampleData, n)
	if err != nil {
		return nil, err
	}
	return &Surface{
		ev:         ev,
		numSamples: n,
		uv:         uv,
		blend:      blend,
	}, nil
}

func (s *Surface) NumSamples() int { return s.numSamples }

// UV returns the UV coordinates of the prepared samples.
func (s *Surface) UV() []jmath.Vec2 {
	if s.numSamples == 0 {
		return nil
	}
	return slices.Clone(encoding.DecodeVec2(s.uv, s.numSamples))
}

// Evaluate computes the surface positions of the prepared samples for the
// given control points.
func (s *Surface) Evaluate(ctx context.Context, ctrl []curve.Point) ([]curve.Point, error) {
	ev := s.ev
	if ev == nil {
		return nil, ErrUnpreparedSurface
	}
	if err := ev.checkControl(ctrl); err != nil {
		return nil, err
	}
	if s.numSamples == 0 {
		return []curve.Point{}, nil
	}
	ctrl = slices.Clone(ctrl)

	ev.mu.Lock()
	defer ev.mu.Unlock()
	r := ev.begin("prepared")
	defer ev.end(r)

	// UV coordinates and basis values come from Prepare.
	r.advance(UVMapped)
	r.advance(BlendComputed)
	_, ctrlData := ev.stage(nil, ctrl)
	return ev.runSum(ctx, r, s.uv, s.blend, ctrlData, s.numSamples)
}
