// Package cpu_engine executes recordings on the CPU. Each queue is a
// goroutine that replays submitted recordings in order, standing in for
// a GPU command stream. It is the reference backend: deterministic,
// debuggable, and good enough for tests and headless use.
package cpu_engine

import (
	"fmt"

	"github.com/caomw/hvvr/engine/shaders"
	"github.com/caomw/hvvr/engine/shaders/cpu"
	"github.com/caomw/hvvr/raycaster"
)

type Engine struct {
	shaders raycaster.FullShaders
	kernels []kernel
	descs   []shaders.ComputeShader
}

type kernel func(numWgs uint32, resources []cpu.CPUBinding)

func New() *Engine {
	eng := &Engine{}
	eng.shaders = raycaster.FullShaders{
		ClearEmptyTiles:     eng.addKernel(shaders.Collection.ClearEmptyTiles, cpu.ClearEmptyTiles),
		DeferredMSAAResolve: eng.addKernel(shaders.Collection.DeferredMSAAResolve, cpu.DeferredMSAAResolve),
	}
	return eng
}

func (eng *Engine) addKernel(desc shaders.ComputeShader, k kernel) raycaster.ShaderID {
	id := raycaster.ShaderID(len(eng.kernels))
	eng.kernels = append(eng.kernels, k)
	eng.descs = append(eng.descs, desc)
	return id
}

func (eng *Engine) FullShaders() *raycaster.FullShaders {
	return &eng.shaders
}

// ExternalBuffer binds caller-owned memory to a buffer proxy for one
// submission. The kernels read and write Data in place; the caller must
// not touch it until the submission's fence has signalled.
type ExternalBuffer struct {
	Proxy raycaster.BufferProxy
	Data  []byte
}

// Fence signals completion of one submission.
type Fence struct {
	done      chan struct{}
	downloads map[raycaster.ResourceID][]byte
}

func (f *Fence) Wait() {
	<-f.done
}

// Download returns the contents of a buffer captured by a Download
// command in the submitted recording. Only valid after Wait.
func (f *Fence) Download(buf raycaster.BufferProxy) ([]byte, bool) {
	data, ok := f.downloads[buf.ID]
	return data, ok
}

type submission struct {
	recording *raycaster.Recording
	external  []ExternalBuffer
	fence     *Fence
}

// Queue replays recordings in submission order, like a GPU stream. A
// queue owns no buffers between submissions except those uploaded and
// not freed, which persist for later recordings on the same queue.
type Queue struct {
	eng  *Engine
	subs chan submission
	quit chan struct{}

	// Owned by the queue goroutine.
	buffers map[raycaster.ResourceID][]byte
}

func (eng *Engine) NewQueue() *Queue {
	q := &Queue{
		eng:     eng,
		subs:    make(chan submission, 16),
		quit:    make(chan struct{}),
		buffers: make(map[raycaster.ResourceID][]byte),
	}
	go q.run()
	return q
}

// Submit enqueues a recording. The returned fence signals once every
// command in it has executed. Recordings on one queue execute in
// submission order; ordering across queues is up to the caller.
func (q *Queue) Submit(recording *raycaster.Recording, external []ExternalBuffer) *Fence {
	fence := &Fence{
		done:      make(chan struct{}),
		downloads: make(map[raycaster.ResourceID][]byte),
	}
	q.subs <- submission{recording, external, fence}
	return fence
}

// Close drains the queue and stops its goroutine. Pending submissions
// still execute; their fences still signal.
func (q *Queue) Close() {
	close(q.subs)
	<-q.quit
}

func (q *Queue) run() {
	defer close(q.quit)
	for sub := range q.subs {
		q.replay(sub)
		close(sub.fence.done)
	}
}

func (q *Queue) replay(sub submission) {
	external := func(id raycaster.ResourceID) ([]byte, bool) {
		for _, ext := range sub.external {
			if ext.Proxy.ID == id {
				return ext.Data, true
			}
		}
		return nil, false
	}
	bind := func(proxy raycaster.BufferProxy) []byte {
		if data, ok := external(proxy.ID); ok {
			return data
		}
		if data, ok := q.buffers[proxy.ID]; ok {
			return data
		}
		// Never uploaded; materialize a zeroed buffer.
		data := make([]byte, proxy.Size)
		q.buffers[proxy.ID] = data
		return data
	}

	for _, cmd := range sub.recording.Commands {
		switch cmd := cmd.(type) {
		case *raycaster.Upload:
			q.upload(cmd.Buffer, cmd.Data)
		case *raycaster.UploadUniform:
			q.upload(cmd.Buffer, cmd.Data)
		case *raycaster.Dispatch:
			if int(cmd.Shader) >= len(q.eng.kernels) {
				panic(fmt.Sprintf("dispatch of unknown shader %d", cmd.Shader))
			}
			desc := q.eng.descs[cmd.Shader]
			if len(cmd.Bindings) != len(desc.Bindings) {
				panic(fmt.Sprintf("%s dispatched with %d bindings, want %d",
					desc.Name, len(cmd.Bindings), len(desc.Bindings)))
			}
			resources := make([]cpu.CPUBinding, len(cmd.Bindings))
			for i, proxy := range cmd.Bindings {
				resources[i] = cpu.CPUBuffer(bind(proxy))
			}
			q.eng.kernels[cmd.Shader](cmd.WorkgroupSize[0], resources)
		case *raycaster.Clear:
			data := bind(cmd.Buffer)
			if cmd.Size >= 0 {
				data = data[cmd.Offset : cmd.Offset+uint64(cmd.Size)]
			} else {
				data = data[cmd.Offset:]
			}
			clear(data)
		case *raycaster.Download:
			data := bind(cmd.Buffer)
			cp := make([]byte, len(data))
			copy(cp, data)
			sub.fence.downloads[cmd.Buffer.ID] = cp
		case *raycaster.FreeBuffer:
			delete(q.buffers, cmd.Buffer.ID)
		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}
}

// upload copies the data so the caller can reuse or free its memory the
// moment Submit returns.
func (q *Queue) upload(proxy raycaster.BufferProxy, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	q.buffers[proxy.ID] = cp
}
