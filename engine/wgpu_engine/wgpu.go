package wgpu_engine

// OPT reuse bind groups

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"time"

	"honnef.co/go/bsurf/engine/wgpu_engine/shaders/cpu"
	"honnef.co/go/bsurf/mem"
	"honnef.co/go/bsurf/spline"
	"honnef.co/go/wgpu"
)

// Engine executes recordings. It is not safe for concurrent use.
type Engine struct {
	Device    *wgpu.Device
	UseCPU    bool
	shaders   []shader
	pool      resourcePool
	downloads map[spline.ResourceID]download
	kernels   *spline.Kernels
	logger    *slog.Logger

	// mapRead starts mapping a download for reading. The channel receives
	// the result of the mapping.
	mapRead func(d download) <-chan error

	// poll drives the delivery of map results.
	poll func()

	readbackDelay time.Duration
	abandoned     []abandonedReadback
}

// abandonedReadback is a download whose caller stopped waiting before the
// mapping finished.
type abandonedReadback struct {
	download
	ch <-chan error
}

// pollInterval is the time between device polls while waiting for a mapping.
const pollInterval = 200 * time.Microsecond

type wgpuShader struct {
	label           string
	pipeline        *wgpu.ComputePipeline
	bindGroupLayout *wgpu.BindGroupLayout
}

type cpuShader struct {
	shader func(uint32, []cpu.CPUBinding)
}

type shader struct {
	Label string
	WGPU  *wgpuShader
	CPU   *cpuShader
}

func (s shader) Select() any {
	if s.CPU != nil {
		return s.CPU
	} else if s.WGPU != nil {
		return s.WGPU
	} else {
		panic(fmt.Sprintf("no available shader for %s", s.Label))
	}
}

// download is a pending readback. Exactly one of gpu and cpu is set.
type download struct {
	gpu  *wgpu.Buffer
	cpu  []byte
	size uint64
}

type bindMap struct {
	bufMap        mem.BinaryTreeMap[spline.ResourceID, *wgpu.Buffer]
	pendingClears mem.BinaryTreeMap[spline.ResourceID, struct{}]
}

type bufferProperties struct {
	size   uint64
	usages wgpu.BufferUsage
}

type resourcePool struct {
	bufs map[bufferProperties][]*wgpu.Buffer
}

func (eng *Engine) addShader(
	label string,
	wgsl []byte,
	layout []spline.BindType,
	cpuFn func(uint32, []cpu.CPUBinding),
) spline.ShaderID {
	add := func(shader shader) spline.ShaderID {
		id := len(eng.shaders)
		eng.shaders = append(eng.shaders, shader)
		return spline.ShaderID(id)
	}

	if eng.UseCPU {
		if cpuFn == nil {
			panic(fmt.Sprintf("shader %q has no CPU implementation", label))
		}
		return add(shader{
			Label: label,
			CPU:   &cpuShader{cpuFn},
		})
	}

	entries := make([]wgpu.BindGroupLayoutEntry, len(layout))
	for i, bindType := range layout {
		var typ wgpu.BufferBindingType
		switch bindType {
		case spline.BindTypeBuffer:
			typ = wgpu.BufferBindingTypeStorage
		case spline.BindTypeBufReadOnly:
			typ = wgpu.BufferBindingTypeReadOnlyStorage
		case spline.BindTypeUniform:
			typ = wgpu.BufferBindingTypeUniform
		default:
			panic(fmt.Sprintf("invalid bind type %d", bindType))
		}
		entries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageCompute,
			Buffer: &wgpu.BufferBindingLayout{
				Type:             typ,
				HasDynamicOffset: false,
				MinBindingSize:   0,
			},
		}
	}

	wgpu := eng.createComputePipeline(label, wgsl, entries)
	return add(shader{
		Label: label,
		WGPU:  &wgpu,
	})
}

// RunRecording executes all commands of the recording. queue may be nil when
// the engine uses the CPU. Downloaded buffers have to be retrieved with
// Download.
func (eng *Engine) RunRecording(
	arena *mem.Arena,
	queue *wgpu.Queue,
	recording *spline.Recording,
	label string,
	pgroup *ProfilerGroup,
) {
	pgroup = pgroup.Nest("RunRecording")
	eng.reclaim()
	defer pgroup.End()

	eng.logger.Debug("running recording",
		"label", label,
		"backend", eng.Backend(),
		"commands", len(recording.Commands))

	if eng.UseCPU {
		eng.runCPU(arena, recording, pgroup)
		return
	}
	if queue == nil {
		panic("GPU recording without a queue")
	}

	var freeBufs mem.BinaryTreeMap[spline.ResourceID, struct{}]
	bindMap := bindMap{}

	encoder := eng.Device.CreateCommandEncoder(mem.Make(arena, wgpu.CommandEncoderDescriptor{Label: label}))

	for _, cmd := range recording.Commands {
		switch cmd := cmd.(type) {
		case *spline.Upload:
			usage := wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst | wgpu.BufferUsageStorage
			buf := eng.pool.getBuf(cmd.Buffer.Size, cmd.Buffer.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, cmd.Data)
			bindMap.bufMap.Insert(arena, cmd.Buffer.ID, buf)

		case *spline.UploadUniform:
			usage := wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(cmd.Buffer.Size, cmd.Buffer.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, cmd.Data)
			bindMap.bufMap.Insert(arena, cmd.Buffer.ID, buf)

		case *spline.Dispatch:
			shader := eng.shaders[cmd.Shader]
			s, ok := shader.Select().(*wgpuShader)
			if !ok {
				panic(fmt.Sprintf("shader %s has no GPU implementation", shader.Label))
			}
			span := pgroup.Nest(shader.Label)
			bindGroup := bindMap.createBindGroup(arena, &eng.pool, eng.Device, encoder, s.bindGroupLayout, cmd.Bindings)

			cpass := encoder.BeginComputePass(mem.Make(arena, wgpu.ComputePassDescriptor{
				Label: shader.Label,
			}))
			cpass.SetPipeline(s.pipeline)
			cpass.SetBindGroup(0, bindGroup, nil)
			wg := cmd.WorkgroupCount
			cpass.DispatchWorkgroups(wg[0], wg[1], wg[2])
			cpass.End()
			bindGroup.Release()
			cpass.Release()
			span.End()

		case *spline.Download:
			proxy := cmd.Buffer
			srcBuf, ok := bindMap.bufMap.Get(proxy.ID)
			if !ok {
				panic("tried using unavailable buffer for download")
			}
			usage := wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(proxy.Size, "download", usage, eng.Device)
			encoder.CopyBufferToBuffer(srcBuf, 0, buf, 0, proxy.Size)
			eng.downloads[proxy.ID] = download{gpu: buf, size: proxy.Size}

		case *spline.Clear:
			if buf, ok := bindMap.bufMap.Get(cmd.Buffer.ID); ok {
				size := uint64(cmd.Size)
				if cmd.Size < 0 {
					size = buf.Size() - cmd.Offset
				}
				encoder.ClearBuffer(buf, cmd.Offset, size)
			} else {
				bindMap.pendingClears.Insert(arena, cmd.Buffer.ID, struct{}{})
			}

		case *spline.FreeBuffer:
			freeBufs.Insert(arena, cmd.Buffer.ID, struct{}{})

		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}

	cmd := encoder.Finish(nil)
	encoder.Release()
	queue.Submit(cmd)
	cmd.Release()

	for id := range freeBufs.Keys() {
		if buf, ok := bindMap.bufMap.Get(id); ok {
			bindMap.bufMap.Delete(id)
			eng.pool.putBuf(buf)
		}
	}
}

func (eng *Engine) runCPU(arena *mem.Arena, recording *spline.Recording, pgroup *ProfilerGroup) {
	var bufs mem.BinaryTreeMap[spline.ResourceID, cpu.CPUBuffer]

	for _, cmd := range recording.Commands {
		switch cmd := cmd.(type) {
		case *spline.Upload:
			bufs.Insert(arena, cmd.Buffer.ID, cpu.CPUBuffer(cmd.Data))

		case *spline.UploadUniform:
			bufs.Insert(arena, cmd.Buffer.ID, cpu.CPUBuffer(cmd.Data))

		case *spline.Dispatch:
			shader := eng.shaders[cmd.Shader]
			s, ok := shader.Select().(*cpuShader)
			if !ok {
				panic(fmt.Sprintf("shader %s has no CPU implementation", shader.Label))
			}
			span := pgroup.Nest(shader.Label)
			resources := make([]cpu.CPUBinding, len(cmd.Bindings))
			for i, proxy := range cmd.Bindings {
				buf, ok := bufs.Get(proxy.ID)
				if !ok {
					buf = make(cpu.CPUBuffer, proxy.Size)
					bufs.Insert(arena, proxy.ID, buf)
				}
				resources[i] = buf
			}
			wg := cmd.WorkgroupCount
			s.shader(wg[0]*wg[1]*wg[2], resources)
			span.End()

		case *spline.Download:
			buf, ok := bufs.Get(cmd.Buffer.ID)
			if !ok {
				panic("tried using unavailable buffer for download")
			}
			eng.downloads[cmd.Buffer.ID] = download{cpu: bytes.Clone(buf), size: cmd.Buffer.Size}

		case *spline.Clear:
			if buf, ok := bufs.Get(cmd.Buffer.ID); ok {
				slice := buf[cmd.Offset:]
				if cmd.Size >= 0 {
					slice = slice[:cmd.Size]
				}
				clear(slice)
			}

		case *spline.FreeBuffer:
			bufs.Delete(cmd.Buffer.ID)

		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}
}

// Download waits for the contents of a buffer that a previous recording
// requested to be downloaded. The returned slice is owned by the caller. If
// ctx is done before the data is available, the readback is abandoned and its
// buffer is reclaimed once the mapping finishes.
func (eng *Engine) Download(ctx context.Context, proxy spline.BufferProxy) ([]byte, error) {
	eng.reclaim()
	d, ok := eng.downloads[proxy.ID]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %q was not downloaded", ErrReadback, proxy.Name)
	}
	delete(eng.downloads, proxy.ID)

	if err := ctx.Err(); err != nil {
		eng.release(d, false)
		return nil, err
	}

	ch := eng.mapRead(d)
	done, err := eng.await(ctx, ch)
	if !done {
		eng.logger.Warn("abandoning readback", "buffer", proxy.Name, "err", ctx.Err())
		eng.abandoned = append(eng.abandoned, abandonedReadback{d, ch})
		return nil, ctx.Err()
	}
	if err != nil {
		eng.release(d, false)
		return nil, fmt.Errorf("%w: %w", ErrReadback, err)
	}
	if d.gpu == nil {
		return d.cpu, nil
	}
	out := bytes.Clone(d.gpu.ReadOnlyMappedRange(0, int(d.size)))
	eng.release(d, true)
	return out, nil
}

// await polls the device until ch delivers or ctx is done. done is false if
// ctx ended first.
func (eng *Engine) await(ctx context.Context, ch <-chan error) (done bool, err error) {
	var tick *time.Ticker
	for {
		eng.poll()
		select {
		case err := <-ch:
			return true, err
		case <-ctx.Done():
			return false, nil
		default:
		}

		if tick == nil {
			tick = time.NewTicker(pollInterval)
			defer tick.Stop()
		}
		select {
		case err := <-ch:
			return true, err
		case <-ctx.Done():
			return false, nil
		case <-tick.C:
		}
	}
}

func (eng *Engine) mapDownload(d download) <-chan error {
	if d.gpu != nil {
		return d.gpu.Map(eng.Device, wgpu.MapModeRead, 0, int(d.size))
	}
	ch := make(chan error, 1)
	if eng.readbackDelay <= 0 {
		ch <- nil
	} else {
		time.AfterFunc(eng.readbackDelay, func() { ch <- nil })
	}
	return ch
}

func (eng *Engine) pollDevice() {
	if eng.Device != nil {
		eng.Device.Poll(false)
	}
}

// release returns the buffer of a download to the pool.
func (eng *Engine) release(d download, mapped bool) {
	if d.gpu == nil {
		return
	}
	if mapped {
		d.gpu.Unmap()
	}
	eng.pool.putBuf(d.gpu)
}

// reclaim releases abandoned readbacks whose mapping has finished.
func (eng *Engine) reclaim() {
	if len(eng.abandoned) == 0 {
		return
	}
	eng.poll()
	kept := eng.abandoned[:0]
	for _, a := range eng.abandoned {
		select {
		case err := <-a.ch:
			eng.logger.Debug("reclaimed abandoned readback", "size", a.size, "err", err)
			eng.release(a.download, err == nil)
		default:
			kept = append(kept, a)
		}
	}
	clear(eng.abandoned[len(kept):])
	eng.abandoned = kept
}

// PendingDownloads returns the number of downloads that haven't been
// retrieved yet.
func (eng *Engine) PendingDownloads() int {
	return len(eng.downloads)
}

// AbandonedReadbacks returns the number of abandoned readbacks whose mapping
// hasn't finished yet.
func (eng *Engine) AbandonedReadbacks() int {
	return len(eng.abandoned)
}

// DiscardDownloads drops all pending downloads.
func (eng *Engine) DiscardDownloads() {
	for id, d := range eng.downloads {
		eng.release(d, false)
		delete(eng.downloads, id)
	}
	eng.reclaim()
}

func (eng *Engine) createComputePipeline(
	label string,
	wgsl []byte,
	entries []wgpu.BindGroupLayoutEntry,
) wgpuShader {
	shaderModule := eng.Device.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  label,
		Source: wgpu.ShaderSourceWGSL(wgsl),
	})
	bindGroupLayout := eng.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: entries,
	})
	computePipelineLayout := eng.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	pipeline := eng.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: computePipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: "main",
		},
	})
	computePipelineLayout.Release()

	return wgpuShader{
		label:           label,
		pipeline:        pipeline,
		bindGroupLayout: bindGroupLayout,
	}
}

func (pool *resourcePool) getBuf(
	size uint64,
	name string,
	usage wgpu.BufferUsage,
	dev *wgpu.Device,
) *wgpu.Buffer {
	const sizeClassBits = 1

	roundedSize := poolSizeClass(size, sizeClassBits)
	props := bufferProperties{
		size:   roundedSize,
		usages: usage,
	}
	if bufVec := pool.bufs[props]; len(bufVec) > 0 {
		buf := bufVec[len(bufVec)-1]
		pool.bufs[props] = bufVec[:len(bufVec)-1]
		return buf
	}
	return dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: name,
		Size:  roundedSize,
		Usage: usage,
	})
}

func (pool *resourcePool) putBuf(buf *wgpu.Buffer) {
	props := bufferProperties{
		size:   buf.Size(),
		usages: buf.Usage(),
	}
	pool.bufs[props] = append(pool.bufs[props], buf)
}

// poolSizeClass rounds x up so that only the numBits most significant bits
// can be set, reducing the number of distinct buffer sizes in the pool.
func poolSizeClass(x uint64, numBits uint32) uint64 {
	if x > 1<<numBits {
		a := bits.LeadingZeros64(x - 1)
		b := (x - 1) | (((math.MaxUint64 / 2) >> numBits) >> a)
		return b + 1
	} else {
		return 1 << numBits
	}
}

func (m *bindMap) createBindGroup(
	arena *mem.Arena,
	pool *resourcePool,
	dev *wgpu.Device,
	encoder *wgpu.CommandEncoder,
	layout *wgpu.BindGroupLayout,
	bindings []spline.BufferProxy,
) *wgpu.BindGroup {
	for _, proxy := range bindings {
		if _, ok := m.bufMap.Get(proxy.ID); ok {
			continue
		}
		usage := wgpu.BufferUsageCopySrc |
			wgpu.BufferUsageCopyDst |
			wgpu.BufferUsageStorage
		buf := pool.getBuf(proxy.Size, proxy.Name, usage, dev)
		if _, ok := m.pendingClears.Get(proxy.ID); ok {
			m.pendingClears.Delete(proxy.ID)
			encoder.ClearBuffer(buf, 0, buf.Size())
		}
		m.bufMap.Insert(arena, proxy.ID, buf)
	}

	entries := mem.NewSlice[[]wgpu.BindGroupEntry](arena, len(bindings), len(bindings))
	for i, proxy := range bindings {
		buf, ok := m.bufMap.Get(proxy.ID)
		if !ok {
			panic("unexpected ok == false")
		}
		entries[i] = wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  buf,
			Size:    ^uint64(0),
		}
	}

	return dev.CreateBindGroup(mem.Make(arena, wgpu.BindGroupDescriptor{
		Layout:  layout,
		Entries: entries,
	}))
}
