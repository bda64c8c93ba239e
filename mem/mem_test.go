package mem

import (
	"slices"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestArena_Bytes(t *testing.T) {
	assert := assert.New(t)

	a := NewArena()
	b1 := Bytes(a, 3)
	b2 := Bytes(a, 40)
	assert.Len(b1, 3)
	assert.Len(b2, 40)
	assert.Zero(uintptr(unsafe.Pointer(&b2[0])) % 16)
	assert.GreaterOrEqual(a.Allocated(), 43)

	for i := range b2 {
		b2[i] = 0xFF
	}
	a.Reset()
	assert.Zero(a.Allocated())
	// Memory handed out after a reset is zeroed again.
	b3 := Bytes(a, 40)
	assert.Equal(make([]byte, 40), b3)

	assert.Nil(Bytes(a, 0))
	assert.Len(Bytes(nil, 24), 24)
}

func TestArena_Large(t *testing.T) {
	a := NewArena()
	b := Bytes(a, slabSize+1)
	assert.Len(t, b, slabSize+1)
}

func TestArena_Slices(t *testing.T) {
	assert := assert.New(t)

	a := NewArena()
	s := NewSlice[[]uint32](a, 2, 8)
	assert.Len(s, 2)
	assert.Equal(8, cap(s))

	s = Append(a, s, 1, 2, 3, 4, 5, 6, 7, 8)
	assert.Equal([]uint32{0, 0, 1, 2, 3, 4, 5, 6, 7, 8}, s)

	v := Varargs(a, 1.5, 2.5)
	assert.Equal([]float64{1.5, 2.5}, v)

	// Types containing pointers live on the heap.
	strs := MakeSlice(a, []string{"a", "b"})
	assert.Equal([]string{"a", "b"}, strs)
	p := Make(a, struct{ s []int }{[]int{1}})
	assert.Equal([]int{1}, p.s)
}

func TestArena_Nil(t *testing.T) {
	var a *Arena
	a.Reset()
	x := Make(a, 42)
	assert.Equal(t, 42, *x)
}

func TestBinaryTreeMap(t *testing.T) {
	assert := assert.New(t)

	a := NewArena()
	var m BinaryTreeMap[uint64, string]
	for _, k := range []uint64{5, 1, 9, 3, 7} {
		m.Insert(a, k, "v")
	}
	m.Insert(a, 3, "three")
	assert.Equal(5, m.Len())
	assert.Equal([]uint64{1, 3, 5, 7, 9}, slices.Collect(m.Keys()))

	v, ok := m.Get(3)
	assert.True(ok)
	assert.Equal("three", v)
	_, ok = m.Get(4)
	assert.False(ok)

	assert.True(m.Delete(5))
	assert.False(m.Delete(5))
	assert.Equal([]uint64{1, 3, 7, 9}, slices.Collect(m.Keys()))

	n := 0
	for k, v := range m.All() {
		assert.NotZero(k)
		assert.NotEmpty(v)
		n++
	}
	assert.Equal(4, n)
}
