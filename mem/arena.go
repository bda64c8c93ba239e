// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package mem provides a bump allocator for per-run scratch memory.
//
// Only pointer-free values are carved out of the arena's slabs. Values that
// contain pointers are allocated on the regular heap, so that the garbage
// collector never has to look inside arena memory.
package mem

import (
	"reflect"
	"sync"
	"unsafe"
)

const slabSize = 1024 * 1024

type Arena struct {
	slabs []slab
}

type slab struct {
	// Backed by []uint64 so that every slab is 8-byte aligned.
	data   unsafe.Pointer
	size   int
	offset int
}

func NewArena() *Arena {
	return &Arena{}
}

// Reset makes all of the arena's memory available again. Values allocated
// before the call to Reset must no longer be used.
func (a *Arena) Reset() {
	if a == nil {
		return
	}
	for i := range a.slabs {
		a.slabs[i].offset = 0
	}
}

// Allocated returns the number of bytes currently handed out by the arena.
func (a *Arena) Allocated() int {
	n := 0
	for _, sl := range a.slabs {
		n += sl.offset
	}
	return n
}

func New[T any](a *Arena) *T {
	if a == nil || hasPointers(reflect.TypeFor[T]()) {
		return new(T)
	}
	var zero T
	return (*T)(a.alloc(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero))))
}

func Make[T any](a *Arena, v T) *T {
	ptr := New[T](a)
	*ptr = v
	return ptr
}

func NewSlice[T ~[]E, E any](a *Arena, len, cap int) T {
	if cap == 0 {
		return nil
	}
	if a == nil || hasPointers(reflect.TypeFor[E]()) {
		return make(T, len, cap)
	}
	var zero E
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return make(T, len, cap)
	}
	ptr := a.alloc(size*cap, int(unsafe.Alignof(zero)))
	return T(unsafe.Slice((*E)(ptr), cap)[:len])
}

func MakeSlice[T ~[]E, E any](a *Arena, values T) T {
	s := NewSlice[T](a, len(values), len(values))
	copy(s, values)
	return s
}

func Varargs[E any](a *Arena, values ...E) []E {
	return MakeSlice(a, values)
}

// Bytes returns n zeroed bytes, aligned to 16 bytes so that they can be
// reinterpreted as slices of vectors.
func Bytes(a *Arena, n int) []byte {
	if n == 0 {
		return nil
	}
	if a == nil {
		buf := make([]uint64, (n+7)/8)
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(buf))), n)
	}
	return unsafe.Slice((*byte)(a.alloc(n, 16)), n)
}

func Append[T ~[]E, E any](a *Arena, s T, data ...E) T {
	if n := len(s) + len(data); n > cap(s) {
		newCap := max(n, 2*cap(s), 4)
		s2 := NewSlice[T](a, len(s), newCap)
		copy(s2, s)
		s = s2
	}
	return append(s, data...)
}

func (a *Arena) alloc(size, align int) unsafe.Pointer {
	if size > slabSize {
		buf := make([]uint64, (size+7)/8)
		return unsafe.Pointer(unsafe.SliceData(buf))
	}
	for i := range a.slabs {
		sl := &a.slabs[i]
		off := alignUp(sl.offset, align)
		if sl.size-off >= size {
			sl.offset = off + size
			ptr := unsafe.Add(sl.data, off)
			clear(unsafe.Slice((*byte)(ptr), size))
			return ptr
		}
	}
	buf := make([]uint64, slabSize/8)
	a.slabs = append(a.slabs, slab{
		data:   unsafe.Pointer(unsafe.SliceData(buf)),
		size:   slabSize,
		offset: size,
	})
	return a.slabs[len(a.slabs)-1].data
}

// align has to be a power of two.
func alignUp(v int, align int) int {
	return v + (-v & (align - 1))
}

var pointerTypes sync.Map // reflect.Type -> bool

func hasPointers(typ reflect.Type) bool {
	if v, ok := pointerTypes.Load(typ); ok {
		return v.(bool)
	}
	b := computeHasPointers(typ)
	pointerTypes.Store(typ, b)
	return b
}

func computeHasPointers(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return typ.Len() > 0 && computeHasPointers(typ.Elem())
	case reflect.Struct:
		for i := range typ.NumField() {
			if computeHasPointers(typ.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
