// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package cpu provides CPU implementations of the compute shaders.
//
// The kernels replicate the WGSL statement by statement, including float32
// arithmetic and evaluation order, so that both backends produce the same
// results. Invocations are spread over GOMAXPROCS goroutines.
package cpu

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"honnef.co/go/bsurf/jmath"
	"honnef.co/go/bsurf/spline"
	"honnef.co/go/safeish"
)

// Below this many invocations kernels run on the calling goroutine.
const minParallelInvocations = 4096

type CPUBinding interface {
	// Currently always CPUBuffer
}

type CPUBuffer []byte

func fromBytes[E any, T *E](b []byte) T {
	if uintptr(len(b)) < unsafe.Sizeof(*new(E)) {
		panic(fmt.Sprintf(
			"buffer of size %d cannot represent object of size %d", len(b), unsafe.Sizeof(*new(E))))
	}
	return safeish.Cast[T](&b[0])
}

func sliceFromBytes[E any](b []byte, n int) []E {
	s := safeish.SliceCast[[]E](b)
	if len(s) < n {
		panic(fmt.Sprintf("buffer holds %d elements, need %d", len(s), n))
	}
	return s[:n]
}

// parallelFor calls fn with disjoint, contiguous ranges that together cover
// [0, n).
func parallelFor(n int, fn func(lo, hi int)) {
	workers := runtime.GOMAXPROCS(0)
	if n < minParallelInvocations || workers == 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

func gridFrame(config *spline.ConfigUniform) (start, end jmath.Vec2) {
	start = jmath.V2(config.GridStart[0], config.GridStart[1])
	end = jmath.V2(config.GridEnd[0], config.GridEnd[1])
	return start, end
}

// UV is the CPU version of uv.wgsl.
func UV(_ uint32, resources []CPUBinding) {
	config := fromBytes[spline.ConfigUniform](resources[0].(CPUBuffer))
	n := int(config.NumSamples)
	samples := sliceFromBytes[jmath.Vec4](resources[1].(CPUBuffer), n)
	uv := sliceFromBytes[jmath.Vec2](resources[2].(CPUBuffer), n)

	start, end := gridFrame(config)
	parallelFor(n, func(lo, hi int) {
		for ix := lo; ix < hi; ix++ {
			s := samples[ix]
			uv[ix] = spline.MapUV(jmath.V2(s.X, s.Y), start, end, config.KnotMax)
		}
	})
}

// Blend is the CPU version of blend.wgsl.
func Blend(_ uint32, resources []CPUBinding) {
	config := fromBytes[spline.ConfigUniform](resources[0].(CPUBuffer))
	n := int(config.NumSamples)
	ctrlLen := int(config.Len)
	degree := int(config.Degree)
	knots := sliceFromBytes[float32](resources[1].(CPUBuffer), int(config.NumKnots))
	uv := sliceFromBytes[jmath.Vec2](resources[2].(CPUBuffer), n)
	blend := sliceFromBytes[jmath.Vec2](resources[3].(CPUBuffer), n*ctrlLen)

	parallelFor(n*ctrlLen, func(lo, hi int) {
		for ix := lo; ix < hi; ix++ {
			s := ix / ctrlLen
			i := ix % ctrlLen
			t := uv[s]
			blend[ix] = jmath.V2(
				spline.Basis(i, t.X, knots, degree),
				spline.Basis(i, t.Y, knots, degree),
			)
		}
	})
}

// Sum is the CPU version of sum.wgsl.
func Sum(_ uint32, resources []CPUBinding) {
	config := fromBytes[spline.ConfigUniform](resources[0].(CPUBuffer))
	n := int(config.NumSamples)
	ctrlLen := int(config.Len)
	degree := int(config.Degree)
	uv := sliceFromBytes[jmath.Vec2](resources[1].(CPUBuffer), n)
	blend := sliceFromBytes[jmath.Vec2](resources[2].(CPUBuffer), n*ctrlLen)
	ctrl := sliceFromBytes[jmath.Vec2](resources[3].(CPUBuffer), ctrlLen*ctrlLen)
	positions := sliceFromBytes[jmath.Vec2](resources[4].(CPUBuffer), n)

	parallelFor(n, func(lo, hi int) {
		for ix := lo; ix < hi; ix++ {
			t := uv[ix]
			u0 := spline.SupportWindow(t.X, ctrlLen, degree)
			v0 := spline.SupportWindow(t.Y, ctrlLen, degree)
			base := ix * ctrlLen

			var pos jmath.Vec2
			for a := 0; a <= degree; a++ {
				ki := u0 + a
				bu := blend[base+ki].X
				for b := 0; b <= degree; b++ {
					kj := v0 + b
					bv := blend[base+kj].Y
					pos = pos.Add(ctrl[ki*ctrlLen+kj].Scale(bu * bv))
				}
			}
			positions[ix] = pos
		}
	})
}
