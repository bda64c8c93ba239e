// Package shaders describes the compute kernels of the evaluation pipeline.
//
// The WGSL in gen/ is generated from src/ by compile-shaders and must not be
// edited by hand.
package shaders

import (
	_ "embed"

	"honnef.co/go/bsurf/engine/wgpu_engine/shaders/cpu"
)

//go:generate go run honnef.co/go/bsurf/internal/cmd/compile-shaders -in src -out gen -check

type BindType int

const (
	Buffer BindType = iota + 1
	BufReadOnly
	Uniform
)

func (typ BindType) IsMutable() bool {
	return typ == Buffer
}

type ComputeShader struct {
	Name          string
	WorkgroupSize [3]uint32
	Bindings      []BindType
	WGSL          []byte
	CPU           func(numWgs uint32, resources []cpu.CPUBinding)
}

var (
	//go:embed gen/uv.wgsl
	uvWGSL []byte
	//go:embed gen/blend.wgsl
	blendWGSL []byte
	//go:embed gen/sum.wgsl
	sumWGSL []byte
)

// Collection lists all kernels. Field names match those of spline.Kernels.
var Collection = struct {
	UV    ComputeShader
	Blend ComputeShader
	Sum   ComputeShader
}{
	UV: ComputeShader{
		Name:          "uv",
		WorkgroupSize: [3]uint32{64, 1, 1},
		Bindings:      []BindType{Uniform, BufReadOnly, Buffer},
		WGSL:          uvWGSL,
		CPU:           cpu.UV,
	},
	Blend: ComputeShader{
		Name:          "blend",
		WorkgroupSize: [3]uint32{64, 1, 1},
		Bindings:      []BindType{Uniform, BufReadOnly, BufReadOnly, Buffer},
		WGSL:          blendWGSL,
		CPU:           cpu.Blend,
	},
	Sum: ComputeShader{
		Name:          "sum",
		WorkgroupSize: [3]uint32{64, 1, 1},
		Bindings:      []BindType{Uniform, BufReadOnly, BufReadOnly, BufReadOnly, Buffer},
		WGSL:          sumWGSL,
		CPU:           cpu.Sum,
	},
}
