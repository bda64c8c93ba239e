package shaders

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/gogpu/naga"
)

func kernels() []*ComputeShader {
	return []*ComputeShader{&Collection.UV, &Collection.Blend, &Collection.Sum}
}

func TestCollection(t *testing.T) {
	for _, s := range kernels() {
		if len(s.WGSL) == 0 {
			t.Errorf("%s: no WGSL", s.Name)
		}
		if s.CPU == nil {
			t.Errorf("%s: no CPU implementation", s.Name)
		}
		if s.WorkgroupSize != [3]uint32{64, 1, 1} {
			t.Errorf("%s: unexpected workgroup size %v", s.Name, s.WorkgroupSize)
		}
		if n := len(s.Bindings); n == 0 || s.Bindings[n-1] != Buffer {
			t.Errorf("%s: last binding must be the mutable output", s.Name)
		}
		// Generated code has all imports resolved.
		if bytes.Contains(s.WGSL, []byte("#import")) {
			t.Errorf("%s: unresolved import", s.Name)
		}
	}
}

func TestCompile(t *testing.T) {
	for _, s := range kernels() {
		t.Run(s.Name, func(t *testing.T) {
			spirv, err := naga.Compile(string(s.WGSL))
			if err != nil {
				msg := err.Error()
				if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
					t.Skipf("naga limitation: %v", err)
				}
				t.Fatalf("compiling %s: %v", s.Name, err)
			}
			if len(spirv) < 4 {
				t.Fatal("SPIR-V too short")
			}
			if magic := binary.LittleEndian.Uint32(spirv); magic != 0x07230203 {
				t.Errorf("bad SPIR-V magic %#x", magic)
			}
		})
	}
}
