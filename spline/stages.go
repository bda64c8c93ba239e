package spline

import (
	"fmt"
	"unsafe"

	"honnef.co/go/bsurf/encoding"
	"honnef.co/go/bsurf/jmath"
	"honnef.co/go/bsurf/mem"
	"honnef.co/go/bsurf/profiler"
	"honnef.co/go/safeish"
)

// WorkgroupSize is the number of invocations per workgroup of every kernel.
const WorkgroupSize = 64

// maxWorkgroupsPerDimension is WebGPU's default limit.
const maxWorkgroupsPerDimension = 65535

// Kernels holds the shader IDs an engine assigned to the three kernels.
type Kernels struct {
	UV    ShaderID
	Blend ShaderID
	Sum   ShaderID
}

// Sizes of the elements of the stage buffers.
const (
	SampleStride = int(unsafe.Sizeof(jmath.Vec4{}))
	Vec2Stride   = int(unsafe.Sizeof(jmath.Vec2{}))
)

// Pipeline records the three stages of surface evaluation for a fixed
// configuration.
type Pipeline struct {
	Config  Config
	Knots   KnotVector
	Kernels *Kernels

	knots []float32
}

func NewPipeline(cfg Config, kernels *Kernels) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	knots, err := cfg.Knots()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Config:  cfg,
		Knots:   knots,
		Kernels: kernels,
		knots:   knots.Float32(),
	}, nil
}

// KnotsFloat32 returns the knot vector as uploaded to the device. The
// returned slice must not be modified.
func (p *Pipeline) KnotsFloat32() []float32 { return p.knots }

// WorkgroupCount returns the dispatch size for n invocations. Counts that
// exceed the per-dimension limit spill into the y dimension; kernels
// linearize the invocation ID accordingly.
func WorkgroupCount(n int) [3]uint32 {
	wgs := (n + WorkgroupSize - 1) / WorkgroupSize
	if wgs <= maxWorkgroupsPerDimension {
		return [3]uint32{uint32(max(wgs, 1)), 1, 1}
	}
	y := (wgs + maxWorkgroupsPerDimension - 1) / maxWorkgroupsPerDimension
	return [3]uint32{maxWorkgroupsPerDimension, uint32(y), 1}
}

func (p *Pipeline) uploadConfig(arena *mem.Arena, rec *Recording, numSamples int) BufferProxy {
	u := mem.Make(arena, p.Config.Uniform(p.Knots, numSamples))
	return rec.UploadUniform(arena, "config", safeish.AsBytes(u))
}

func (p *Pipeline) checkSamples(numSamples int) {
	if numSamples <= 0 {
		panic(fmt.Sprintf("recording stages for %d samples", numSamples))
	}
}

// UVSize, BlendSize and PositionsSize return the sizes in bytes of the
// respective stage outputs.
func (p *Pipeline) UVSize(numSamples int) int { return numSamples * Vec2Stride }
func (p *Pipeline) BlendSize(numSamples int) int {
	return numSamples * p.Config.Len * Vec2Stride
}
func (p *Pipeline) PositionsSize(numSamples int) int { return numSamples * Vec2Stride }

func (p *Pipeline) dispatchUV(arena *mem.Arena, rec *Recording, config, samples BufferProxy, numSamples int) BufferProxy {
	uv := NewBufferProxy(uint64(p.UVSize(numSamples)), "uv")
	rec.Dispatch(arena, p.Kernels.UV, WorkgroupCount(numSamples), mem.Varargs(arena, config, samples, uv))
	return uv
}

func (p *Pipeline) dispatchBlend(arena *mem.Arena, rec *Recording, config, knots, uv BufferProxy, numSamples int) BufferProxy {
	blend := NewBufferProxy(uint64(p.BlendSize(numSamples)), "blend")
	rec.Dispatch(
		arena,
		p.Kernels.Blend,
		WorkgroupCount(numSamples*p.Config.Len),
		mem.Varargs(arena, config, knots, uv, blend),
	)
	return blend
}

func (p *Pipeline) dispatchSum(arena *mem.Arena, rec *Recording, config, uv, blend, ctrl BufferProxy, numSamples int) BufferProxy {
	out := NewBufferProxy(uint64(p.PositionsSize(numSamples)), "positions")
	rec.Dispatch(arena, p.Kernels.Sum, WorkgroupCount(numSamples), mem.Varargs(arena, config, uv, blend, ctrl, out))
	return out
}

func (p *Pipeline) uploadKnots(arena *mem.Arena, rec *Recording) BufferProxy {
	return rec.Upload(arena, "knots", encoding.EncodeKnots(arena, p.knots))
}

func (p *Pipeline) checkControl(ctrl []byte) {
	if want := p.Config.NumControlPoints() * Vec2Stride; len(ctrl) != want {
		panic(fmt.Sprintf("control point buffer has %d bytes, want %d", len(ctrl), want))
	}
}

// RecordFull records all three stages into a single recording. Only the
// final positions are downloaded.
func (p *Pipeline) RecordFull(
	arena *mem.Arena,
	samples []byte,
	numSamples int,
	ctrl []byte,
	pgroup profiler.ProfilerGroup,
) (Recording, BufferProxy) {
	pgroup = pgroup.Start("RecordFull")
	defer pgroup.End()
	p.checkSamples(numSamples)
	p.checkControl(ctrl)

	var rec Recording
	config := p.uploadConfig(arena, &rec, numSamples)
	knots := p.uploadKnots(arena, &rec)
	samplesBuf := rec.Upload(arena, "samples", samples)
	ctrlBuf := rec.Upload(arena, "control_points", ctrl)

	uv := p.dispatchUV(arena, &rec, config, samplesBuf, numSamples)
	blend := p.dispatchBlend(arena, &rec, config, knots, uv, numSamples)
	out := p.dispatchSum(arena, &rec, config, uv, blend, ctrlBuf, numSamples)
	rec.Download(arena, out)

	for _, buf := range [...]BufferProxy{config, knots, samplesBuf, ctrlBuf, uv, blend, out} {
		rec.FreeBuffer(arena, buf)
	}
	return rec, out
}

// RecordUV records the UV stage on its own.
func (p *Pipeline) RecordUV(
	arena *mem.Arena,
	samples []byte,
	numSamples int,
	pgroup profiler.ProfilerGroup,
) (Recording, BufferProxy) {
	pgroup = pgroup.Start("RecordUV")
	defer pgroup.End()
	p.checkSamples(numSamples)

	var rec Recording
	config := p.uploadConfig(arena, &rec, numSamples)
	samplesBuf := rec.Upload(arena, "samples", samples)
	uv := p.dispatchUV(arena, &rec, config, samplesBuf, numSamples)
	rec.Download(arena, uv)
	rec.FreeBuffer(arena, config)
	rec.FreeBuffer(arena, samplesBuf)
	rec.FreeBuffer(arena, uv)
	return rec, uv
}

// RecordBlend records the blend stage, consuming the output of the UV stage.
func (p *Pipeline) RecordBlend(
	arena *mem.Arena,
	uv []byte,
	numSamples int,
	pgroup profiler.ProfilerGroup,
) (Recording, BufferProxy) {
	pgroup = pgroup.Start("RecordBlend")
	defer pgroup.End()
	p.checkSamples(numSamples)

	var rec Recording
	config := p.uploadConfig(arena, &rec, numSamples)
	knots := p.uploadKnots(arena, &rec)
	uvBuf := rec.Upload(arena, "uv", uv)
	blend := p.dispatchBlend(arena, &rec, config, knots, uvBuf, numSamples)
	rec.Download(arena, blend)
	for _, buf := range [...]BufferProxy{config, knots, uvBuf, blend} {
		rec.FreeBuffer(arena, buf)
	}
	return rec, blend
}

// RecordSum records the weighted sum stage, consuming the outputs of the UV
// and blend stages and the current control points.
func (p *Pipeline) RecordSum(
	arena *mem.Arena,
	uv []byte,
	blend []byte,
	ctrl []byte,
	numSamples int,
	pgroup profiler.ProfilerGroup,
) (Recording, BufferProxy) {
	pgroup = pgroup.Start("RecordSum")
	defer pgroup.End()
	p.checkSamples(numSamples)
	p.checkControl(ctrl)

	var rec Recording
	config := p.uploadConfig(arena, &rec, numSamples)
	uvBuf := rec.Upload(arena, "uv", uv)
	blendBuf := rec.Upload(arena, "blend", blend)
	ctrlBuf := rec.Upload(arena, "control_points", ctrl)
	out := p.dispatchSum(arena, &rec, config, uvBuf, blendBuf, ctrlBuf, numSamples)
	rec.Download(arena, out)
	for _, buf := range [...]BufferProxy{config, uvBuf, blendBuf, ctrlBuf, out} {
		rec.FreeBuffer(arena, buf)
	}
	return rec, out
}
