// Package raycaster implements the device-neutral core of the sample
// resolution stage: the GPU-visible data model, per-frame camera state,
// tile partitioning, and recordings of the two resolve kernels. Actual
// execution lives in the engine packages.
package raycaster

import (
	"sync/atomic"

	"github.com/caomw/hvvr/mem"
)

var resourceID atomic.Uint64

func nextResourceID() ResourceID {
	return ResourceID(resourceID.Add(1))
}

type ResourceID uint64

// BufferProxy names a device buffer before it has been materialized by an
// execution engine.
type BufferProxy struct {
	Size uint64
	ID   ResourceID
	Name string
}

func NewBufferProxy(size uint64, name string) BufferProxy {
	return BufferProxy{Size: size, ID: nextResourceID(), Name: name}
}

type ShaderID int

// FullShaders holds the engine-assigned IDs of the resolve kernels.
type FullShaders struct {
	ClearEmptyTiles     ShaderID
	DeferredMSAAResolve ShaderID
}

// Recording is an ordered list of commands to be replayed against a device
// execution queue. Recordings are cheap to build; all ordering guarantees
// come from queue submission order, not from the recording itself.
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

func (rec *Recording) Dispatch(arena *mem.Arena, shader ShaderID, wgSize [3]uint32, bindings []BufferProxy) {
	rec.push(arena, mem.Make(arena, Dispatch{shader, wgSize, bindings}))
}

func (rec *Recording) Download(arena *mem.Arena, buf BufferProxy) {
	rec.push(arena, mem.Make(arena, Download{buf}))
}

func (rec *Recording) ClearAll(arena *mem.Arena, buf BufferProxy) {
	rec.push(arena, mem.Make(arena, Clear{buf, 0, -1}))
}

func (rec *Recording) FreeBuffer(arena *mem.Arena, buf BufferProxy) {
	rec.push(arena, mem.Make(arena, FreeBuffer{buf}))
}

type Command interface {
	isCommand()
}

func (*Upload) isCommand()        {}
func (*UploadUniform) isCommand() {}
func (*Dispatch) isCommand()      {}
func (*Download) isCommand()      {}
func (*Clear) isCommand()         {}
func (*FreeBuffer) isCommand()    {}

type Upload struct {
	Buffer BufferProxy
	Data   []byte
}

type UploadUniform struct {
	Buffer BufferProxy
	Data   []byte
}

type Dispatch struct {
	Shader        ShaderID
	WorkgroupSize [3]uint32
	Bindings      []BufferProxy
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
