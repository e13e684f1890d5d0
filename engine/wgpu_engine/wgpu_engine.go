// Package wgpu_engine executes recordings on a GPU through wgpu. The
// resolve kernels only ever touch buffers, so the engine deals in
// storage and uniform buffers exclusively.
package wgpu_engine

import (
	"fmt"
	"math"
	"math/bits"

	"honnef.co/go/wgpu"

	"github.com/caomw/hvvr/engine/shaders"
	"github.com/caomw/hvvr/mem"
	"github.com/caomw/hvvr/profiler"
	"github.com/caomw/hvvr/raycaster"
)

type Engine struct {
	Device *wgpu.Device

	shaders   raycaster.FullShaders
	pipelines []pipeline
	pool      resourcePool
	downloads map[raycaster.ResourceID]*wgpu.Buffer
}

type pipeline struct {
	label           string
	wgpu            *wgpu.ComputePipeline
	bindGroupLayout *wgpu.BindGroupLayout
}

type bufferProperties struct {
	size   uint64
	usages wgpu.BufferUsage
}

// resourcePool recycles buffers between recordings. Buffers are grouped
// by usage and a rounded size class.
type resourcePool struct {
	bufs map[bufferProperties][]*wgpu.Buffer
}

type bindMapBuffer struct {
	Buffer *wgpu.Buffer
	Label  string
}

type bindMap struct {
	bufMap        mem.Map[raycaster.ResourceID, *bindMapBuffer]
	pendingClears mem.Map[raycaster.ResourceID, struct{}]
}

// ExternalResource binds a caller-provided GPU resource to a proxy for
// one recording.
type ExternalResource interface {
	// Either ExternalBuffer, or nothing else yet.
}

type ExternalBuffer struct {
	Proxy  raycaster.BufferProxy
	Buffer *wgpu.Buffer
}

func New(dev *wgpu.Device) *Engine {
	eng := &Engine{
		Device: dev,
		pool: resourcePool{
			bufs: make(map[bufferProperties][]*wgpu.Buffer),
		},
		downloads: make(map[raycaster.ResourceID]*wgpu.Buffer),
	}
	eng.shaders = raycaster.FullShaders{
		ClearEmptyTiles:     eng.addShader(shaders.Collection.ClearEmptyTiles),
		DeferredMSAAResolve: eng.addShader(shaders.Collection.DeferredMSAAResolve),
	}
	return eng
}

func (eng *Engine) FullShaders() *raycaster.FullShaders {
	return &eng.shaders
}

func (eng *Engine) addShader(desc shaders.ComputeShader) raycaster.ShaderID {
	entries := make([]wgpu.BindGroupLayoutEntry, len(desc.Bindings))
	for i, b := range desc.Bindings {
		var typ wgpu.BufferBindingType
		switch b {
		case shaders.Buffer:
			typ = wgpu.BufferBindingTypeStorage
		case shaders.BufReadOnly:
			typ = wgpu.BufferBindingTypeReadOnlyStorage
		case shaders.Uniform:
			typ = wgpu.BufferBindingTypeUniform
		default:
			panic(fmt.Sprintf("unhandled bind type %d", b))
		}
		entries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageCompute,
			Buffer: &wgpu.BufferBindingLayout{
				Type: typ,
			},
		}
	}

	id := raycaster.ShaderID(len(eng.pipelines))
	eng.pipelines = append(eng.pipelines, eng.createComputePipeline(desc.Name, desc.WGSL, entries))
	return id
}

func (eng *Engine) createComputePipeline(
	label string,
	wgsl []byte,
	entries []wgpu.BindGroupLayoutEntry,
) pipeline {
	shaderModule := eng.Device.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  label,
		Source: wgpu.ShaderSourceWGSL(wgsl),
	})
	bindGroupLayout := eng.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: entries,
	})
	pipelineLayout := eng.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	p := eng.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: "main",
		},
	})
	pipelineLayout.Release()

	return pipeline{
		label:           label,
		wgpu:            p,
		bindGroupLayout: bindGroupLayout,
	}
}

// RunRecording replays a recording on the given queue. External
// resources take precedence over buffers materialized by the recording
// itself.
func (eng *Engine) RunRecording(
	arena *mem.Arena,
	queue *wgpu.Queue,
	recording *raycaster.Recording,
	externalResources []ExternalResource,
	label string,
	pgroup profiler.ProfilerGroup,
) {
	pgroup = pgroup.Start("RunRecording")
	defer pgroup.End()

	var freeBufs mem.Map[raycaster.ResourceID, struct{}]
	external := newExternalBindMap(arena, externalResources)
	bindMap := bindMap{}

	encoder := eng.Device.CreateCommandEncoder(mem.Make(arena, wgpu.CommandEncoderDescriptor{Label: label}))

	for _, cmd := range recording.Commands {
		switch cmd := cmd.(type) {
		case *raycaster.Upload:
			usage := wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst | wgpu.BufferUsageStorage
			buf := eng.pool.getBuf(cmd.Buffer.Size, cmd.Buffer.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, cmd.Data)
			bindMap.insertBuf(arena, cmd.Buffer, buf)

		case *raycaster.UploadUniform:
			usage := wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(cmd.Buffer.Size, cmd.Buffer.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, cmd.Data)
			bindMap.insertBuf(arena, cmd.Buffer, buf)

		case *raycaster.Dispatch:
			p := eng.pipelines[cmd.Shader]
			bindGroup := external.createBindGroup(
				arena,
				&bindMap,
				&eng.pool,
				eng.Device,
				encoder,
				p.bindGroupLayout,
				cmd.Bindings,
			)

			cpass := encoder.BeginComputePass(mem.Make(arena, wgpu.ComputePassDescriptor{
				Label: p.label,
			}))
			cpass.SetPipeline(p.wgpu)
			cpass.SetBindGroup(0, bindGroup, nil)
			cpass.DispatchWorkgroups(cmd.WorkgroupSize[0], cmd.WorkgroupSize[1], cmd.WorkgroupSize[2])
			cpass.End()
			bindGroup.Release()
			cpass.Release()

		case *raycaster.Download:
			srcBuf, ok := bindMap.getBuf(cmd.Buffer)
			if !ok {
				panic("tried using unavailable buffer for download")
			}
			usage := wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(cmd.Buffer.Size, "download", usage, eng.Device)
			encoder.CopyBufferToBuffer(srcBuf.Buffer, 0, buf, 0, cmd.Buffer.Size)
			eng.downloads[cmd.Buffer.ID] = buf

		case *raycaster.Clear:
			if buf, ok := bindMap.getBuf(cmd.Buffer); ok {
				encoder.ClearBuffer(buf.Buffer, cmd.Offset, uint64(cmd.Size))
			} else {
				bindMap.pendingClears.Insert(arena, cmd.Buffer.ID, struct{}{})
			}

		case *raycaster.FreeBuffer:
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
			props := bufferProperties{
				size:   buf.Buffer.Size(),
				usages: buf.Buffer.Usage(),
			}
			eng.pool.bufs[props] = append(eng.pool.bufs[props], buf.Buffer)
		}
	}
}

func (eng *Engine) GetDownload(buf raycaster.BufferProxy) (*wgpu.Buffer, bool) {
	got, ok := eng.downloads[buf.ID]
	return got, ok
}

func (eng *Engine) FreeDownload(buf raycaster.BufferProxy) {
	delete(eng.downloads, buf.ID)
}

func (m *bindMap) insertBuf(arena *mem.Arena, proxy raycaster.BufferProxy, buffer *wgpu.Buffer) {
	m.bufMap.Insert(arena, proxy.ID, &bindMapBuffer{
		Buffer: buffer,
		Label:  proxy.Name,
	})
}

func (m *bindMap) getBuf(proxy raycaster.BufferProxy) (*bindMapBuffer, bool) {
	return m.bufMap.Get(proxy.ID)
}

type externalBindMap struct {
	bufs mem.Map[raycaster.ResourceID, *wgpu.Buffer]
}

func newExternalBindMap(arena *mem.Arena, externalResources []ExternalResource) externalBindMap {
	bufs := mem.Map[raycaster.ResourceID, *wgpu.Buffer]{}
	for _, res := range externalResources {
		switch res := res.(type) {
		case ExternalBuffer:
			bufs.Insert(arena, res.Proxy.ID, res.Buffer)
		default:
			panic(fmt.Sprintf("unhandled type %T", res))
		}
	}
	return externalBindMap{bufs: bufs}
}

func (m *externalBindMap) createBindGroup(
	arena *mem.Arena,
	bindMap *bindMap,
	pool *resourcePool,
	dev *wgpu.Device,
	encoder *wgpu.CommandEncoder,
	layout *wgpu.BindGroupLayout,
	bindings []raycaster.BufferProxy,
) *wgpu.BindGroup {
	for _, proxy := range bindings {
		if _, ok := m.bufs.Get(proxy.ID); ok {
			continue
		}
		if _, ok := bindMap.bufMap.Get(proxy.ID); ok {
			continue
		}
		usage := wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst | wgpu.BufferUsageStorage
		buf := pool.getBuf(proxy.Size, proxy.Name, usage, dev)
		if _, ok := bindMap.pendingClears.Get(proxy.ID); ok {
			bindMap.pendingClears.Delete(proxy.ID)
			encoder.ClearBuffer(buf, 0, buf.Size())
		}
		bindMap.bufMap.Insert(arena, proxy.ID, &bindMapBuffer{
			Buffer: buf,
			Label:  proxy.Name,
		})
	}

	entries := mem.NewSlice[[]wgpu.BindGroupEntry](arena, len(bindings), len(bindings))
	for i, proxy := range bindings {
		buf, ok := m.bufs.Get(proxy.ID)
		if !ok {
			b, ok := bindMap.bufMap.Get(proxy.ID)
			if !ok {
				panic("unexpected ok == false")
			}
			buf = b.Buffer
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
	if bufVec, ok := pool.bufs[props]; ok {
		if len(bufVec) > 0 {
			buf := bufVec[len(bufVec)-1]
			pool.bufs[props] = bufVec[:len(bufVec)-1]
			return buf
		}
	}
	return dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: name,
		Size:  roundedSize,
		Usage: usage,
	})
}

func poolSizeClass(x uint64, numBits uint32) uint64 {
	if x > 1<<numBits {
		a := bits.LeadingZeros64(x - 1)
		b := (x - 1) | (((math.MaxUint64 / 2) >> numBits) >> a)
		return b + 1
	}
	return 1 << numBits
}
