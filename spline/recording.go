package spline

import (
	"sync/atomic"

	"honnef.co/go/bsurf/mem"
)

var resourceID atomic.Uint64

func nextResourceID() ResourceID {
	return ResourceID(resourceID.Add(1))
}

type ResourceID uint64

// Recording is a list of commands for an engine to replay. Buffers are
// referred to by proxies and only materialized by the engine.
type Recording struct {
	Commands []Command
}

func (rec *Recording) push(arena *mem.Arena, cmd Command) {
	rec.Commands = mem.Append(arena, rec.Commands, cmd)
}

func (rec *Recording) Upload(arena *mem.Arena, name string, data []byte) BufferProxy {
	buf := NewBufferProxy(uint64(len(data)), name)
	rec.push(arena, mem.Make(arena, Upload{buf, data}))
	return buf
}

func (rec *Recording) UploadUniform(arena *mem.Arena, name string, data []byte) BufferProxy {
	buf := NewBufferProxy(uint64(len(data)), name)
	rec.push(arena, mem.Make(arena, UploadUniform{buf, data}))
	return buf
}

func (rec *Recording) Dispatch(arena *mem.Arena, shader ShaderID, wgCount [3]uint32, bindings []BufferProxy) {
	rec.push(arena, mem.Make(arena, Dispatch{shader, wgCount, bindings}))
}

// Download requests that the contents of buf be made available for reading
// once the recording has been submitted.
func (rec *Recording) Download(arena *mem.Arena, buf BufferProxy) {
	rec.push(arena, mem.Make(arena, Download{buf}))
}

func (rec *Recording) ClearAll(arena *mem.Arena, buf BufferProxy) {
	rec.push(arena, mem.Make(arena, Clear{buf, 0, -1}))
}

func (rec *Recording) FreeBuffer(arena *mem.Arena, buf BufferProxy) {
	rec.push(arena, mem.Make(arena, FreeBuffer{buf}))
}

// Dispatches returns the number of dispatch commands in the recording.
func (rec *Recording) Dispatches() int {
	n := 0
	for _, cmd := range rec.Commands {
		if _, ok := cmd.(*Dispatch); ok {
			n++
		}
	}
	return n
}

func NewBufferProxy(size uint64, name string) BufferProxy {
	return BufferProxy{size, nextResourceID(), name}
}

type BufferProxy struct {
	Size uint64
	ID   ResourceID
	Name string
}

type ShaderID int

type Command interface {
	isCommand()
}

func (*Upload) isCommand()        {}
func (*UploadUniform) isCommand() {}
func (*Dispatch) isCommand()      {}
func (*Download) isCommand()      {}
func (*Clear) isCommand()         {}
func (*FreeBuffer) isCommand()    {}

type BindType int

const (
	BindTypeBuffer BindType = iota + 1
	BindTypeBufReadOnly
	BindTypeUniform
)

type Upload struct {
	Buffer BufferProxy
	Data   []byte
}

type UploadUniform struct {
	Buffer BufferProxy
	Data   []byte
}

type Dispatch struct {
	Shader         ShaderID
	WorkgroupCount [3]uint32
	Bindings       []BufferProxy
}

type Download struct {
	Buffer BufferProxy
}

type Clear struct {
	Buffer BufferProxy
	Offset uint64
	Size   int64
}

type FreeBuffer struct {
	Buffer BufferProxy
}
