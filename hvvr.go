// Package hvvr ties the sample resolution stage together: cameras with
// foveated sample layouts in, resolved premultiplied RGBA8 images out.
//
// The package-level API runs on the CPU engine. Callers that want to
// drive a GPU directly can use the raycaster and wgpu_engine packages
// themselves; the recordings are identical.
package hvvr

import (
	"honnef.co/go/safeish"

	"github.com/caomw/hvvr/engine/cpu_engine"
	"github.com/caomw/hvvr/hmath"
	"github.com/caomw/hvvr/mem"
	"github.com/caomw/hvvr/profiler"
	"github.com/caomw/hvvr/raycaster"
)

type Raycaster struct {
	eng     *cpu_engine.Engine
	shaders *raycaster.FullShaders

	// queue is the default stream for resolve work. Clears may run on
	// their own stream, mirroring how the two kernels overlap on real
	// hardware.
	queue *cpu_engine.Queue

	Profiler profiler.ProfilerGroup
}

func New() *Raycaster {
	eng := cpu_engine.New()
	return &Raycaster{
		eng:      eng,
		shaders:  eng.FullShaders(),
		queue:    eng.NewQueue(),
		Profiler: profiler.Nop,
	}
}

// NewQueue returns an additional stream on the same engine, for callers
// that want to overlap clears with resolves.
func (rc *Raycaster) NewQueue() *cpu_engine.Queue {
	return rc.eng.NewQueue()
}

// Close shuts down the default queue. Pending work still completes.
func (rc *Raycaster) Close() {
	rc.queue.Close()
}

// ClearEmptyTiles fills every tile without a ray hit with the camera's
// background color, on the given queue. queue may be nil to use the
// default one.
func (rc *Raycaster) ClearEmptyTiles(
	arena *mem.Arena,
	cam *raycaster.Camera,
	samples []raycaster.GBufferSample,
	queue *cpu_engine.Queue,
) *cpu_engine.Fence {
	if queue == nil {
		queue = rc.queue
	}
	var rec raycaster.Recording
	raycaster.RecordClearEmptyTiles(arena, &rec, rc.shaders, cam, samples, rc.Profiler)
	return rc.submit(cam, queue, &rec)
}

// DeferredMSAAResolve filters the camera's live tiles down to one pixel
// each on the default queue. layout may be nil to use the frame's
// layout; the transforms are the frame's final ones, which may differ
// from those captured at BeginFrame when the eye pose was re-sampled.
func (rc *Raycaster) DeferredMSAAResolve(
	arena *mem.Arena,
	cam *raycaster.Camera,
	samples []raycaster.GBufferSample,
	layout *raycaster.SampleLayout,
	sampleToCamera hmath.Matrix3x3,
	cameraToWorld hmath.Matrix4x4,
) *cpu_engine.Fence {
	var rec raycaster.Recording
	raycaster.RecordDeferredMSAAResolve(arena, &rec, rc.shaders, cam, samples, layout, sampleToCamera, cameraToWorld, rc.Profiler)
	return rc.submit(cam, rc.queue, &rec)
}

func (rc *Raycaster) submit(cam *raycaster.Camera, queue *cpu_engine.Queue, rec *raycaster.Recording) *cpu_engine.Fence {
	proxy, out := cam.FrameOutput()
	return queue.Submit(rec, []cpu_engine.ExternalBuffer{
		{Proxy: proxy, Data: safeish.SliceCast[[]byte](out)},
	})
}
