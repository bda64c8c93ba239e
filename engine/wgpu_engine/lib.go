// Package wgpu_engine replays recordings, either on a wgpu device or with the
// CPU versions of the kernels.
package wgpu_engine

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"honnef.co/go/bsurf/engine/wgpu_engine/shaders"
	"honnef.co/go/bsurf/spline"
	"honnef.co/go/wgpu"
)

var (
	ErrNoDevice = errors.New("wgpu_engine: no device")
	ErrReadback = errors.New("wgpu_engine: readback failed")
)

type Options struct {
	// UseCPU runs all kernels on the CPU. No device is needed in that case.
	UseCPU bool
	// ReadbackDelay delays CPU readbacks, emulating a device that is slow to
	// map buffers. It has no effect on the GPU.
	ReadbackDelay time.Duration
}

var bindTypeMapping = [...]spline.BindType{
	shaders.Buffer:      spline.BindTypeBuffer,
	shaders.BufReadOnly: spline.BindTypeBufReadOnly,
	shaders.Uniform:     spline.BindTypeUniform,
}

// New creates an engine and compiles all kernels. dev may be nil if
// options.UseCPU is set.
func New(dev *wgpu.Device, options *Options) (*Engine, error) {
	if options == nil {
		options = &Options{}
	}
	if dev == nil && !options.UseCPU {
		return nil, ErrNoDevice
	}
	eng := &Engine{
		Device: dev,
		pool: resourcePool{
			bufs: make(map[bufferProperties][]*wgpu.Buffer),
		},
		downloads:     make(map[spline.ResourceID]download),
		UseCPU:        options.UseCPU,
		readbackDelay: options.ReadbackDelay,
		logger:        slog.New(slog.DiscardHandler),
	}
	eng.mapRead = eng.mapDownload
	eng.poll = eng.pollDevice
	eng.kernels = eng.newKernels()
	return eng, nil
}

// SetLogger sets the logger used for diagnostics. A nil logger disables
// logging.
func (eng *Engine) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	eng.logger = l
}

// Kernels returns the IDs of the registered kernels, for use in recordings.
func (eng *Engine) Kernels() *spline.Kernels {
	return eng.kernels
}

// Backend returns "cpu" or "wgpu".
func (eng *Engine) Backend() string {
	if eng.UseCPU {
		return "cpu"
	}
	return "wgpu"
}

func (eng *Engine) newKernels() *spline.Kernels {
	var out spline.Kernels
	outV := reflect.ValueOf(&out).Elem()
	v := reflect.ValueOf(&shaders.Collection).Elem()
	for i := range v.NumField() {
		fieldName := v.Type().Field(i).Name
		outField := outV.FieldByName(fieldName)
		if !outField.IsValid() {
			continue
		}
		shader := v.Field(i).Addr().Interface().(*shaders.ComputeShader)
		bindings := make([]spline.BindType, len(shader.Bindings))
		for i, b := range shader.Bindings {
			bindings[i] = bindTypeMapping[b]
		}
		if len(shader.WGSL) == 0 {
			panic(fmt.Sprintf("shader %q has no code", shader.Name))
		}
		id := eng.addShader(shader.Name, shader.WGSL, bindings, shader.CPU)
		outField.Set(reflect.ValueOf(id))
	}
	return &out
}
