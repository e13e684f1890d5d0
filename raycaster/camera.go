package raycaster

import (
	"fmt"

	"github.com/caomw/hvvr/gfx"
	"github.com/caomw/hvvr/hmath"
	"github.com/caomw/hvvr/mem"
)

// Camera owns the per-view frame state of the resolve stage: the raw
// subsample buffer filled by the shading stage, the optional per-tile hit
// counters filled by traversal, and a double-buffered resolved image so
// presentation can read the previous frame while the next one resolves.
type Camera struct {
	width      uint32
	height     uint32
	background gfx.Color

	samples   []GBufferSample
	hitCounts []uint32

	resolved [2][]uint32
	front    int

	frameActive bool
	frame       frameState
}

type frameState struct {
	layout         *SampleLayout
	sampleToCamera hmath.Matrix3x3
	cameraToWorld  hmath.Matrix4x4

	partition *TilePartition

	cleared  bool
	resolved bool

	// hitCountsWritten records whether traversal fetched the counters this
	// frame. Untouched counters are all zero and must not be trusted.
	hitCountsWritten bool

	resolvedProxy BufferProxy
}

func NewCamera(width, height uint32, background gfx.Color) *Camera {
	if width == 0 || height == 0 {
		panic("camera with empty render target")
	}
	c := &Camera{
		width:      width,
		height:     height,
		background: background,
		hitCounts:  make([]uint32, int(tilesAcross(width))*int(tilesDown(height))),
	}
	for i := range c.resolved {
		c.resolved[i] = make([]uint32, int(width)*int(height))
	}
	return c
}

func (c *Camera) Width() uint32         { return c.width }
func (c *Camera) Height() uint32        { return c.height }
func (c *Camera) Background() gfx.Color { return c.background }

// RawSamples returns the subsample buffer for the current frame, sized to
// the frame's layout. The shading stage writes it; the resolve kernels
// only read it.
func (c *Camera) RawSamples() []GBufferSample {
	if !c.frameActive {
		panic("raw sample buffer requested outside a frame")
	}
	return c.samples
}

// TileHitCounts returns the per-tile hit counters for the current frame,
// one per tile in row-major order. Traversal increments them; they are
// zeroed by BeginFrame and are only meaningful for the frame they were
// written in.
func (c *Camera) TileHitCounts() []uint32 {
	if !c.frameActive {
		panic("tile hit counts requested outside a frame")
	}
	c.frame.hitCountsWritten = true
	return c.hitCounts
}

// BeginFrame rotates the double buffer and arms the camera for one
// clear + resolve pass. The layout must match the camera's dimensions.
func (c *Camera) BeginFrame(layout *SampleLayout, sampleToCamera hmath.Matrix3x3, cameraToWorld hmath.Matrix4x4) {
	if layout.Width != c.width || layout.Height != c.height {
		panic(fmt.Sprintf("layout is %dx%d, camera is %dx%d", layout.Width, layout.Height, c.width, c.height))
	}
	layout.Validate()

	c.front = 1 - c.front
	if n := layout.NumSamples(); cap(c.samples) < n {
		c.samples = make([]GBufferSample, n)
	} else {
		c.samples = c.samples[:n]
	}
	clear(c.hitCounts)

	c.frameActive = true
	c.frame = frameState{
		layout:         layout,
		sampleToCamera: sampleToCamera,
		cameraToWorld:  cameraToWorld,
		resolvedProxy:  NewBufferProxy(uint64(len(c.resolved[c.front]))*4, "resolved"),
	}
}

// FrameOutput returns the proxy and backing memory of the current frame's
// resolved image, for binding as an external buffer at submission.
func (c *Camera) FrameOutput() (BufferProxy, []uint32) {
	if !c.frameActive {
		panic("frame output requested outside a frame")
	}
	return c.frame.resolvedProxy, c.resolved[c.front]
}

// Present returns the most recently completed resolved image. The caller
// must only read it between the previous frame's fence and the next
// frame's kernels, which the double buffer makes safe as long as no more
// than one frame is in flight.
func (c *Camera) Present() []uint32 {
	return c.resolved[1-c.front]
}

func (c *Camera) frameLayout() *SampleLayout {
	if !c.frameActive {
		panic("resolve recorded outside a frame")
	}
	return c.frame.layout
}

// partitionTiles computes the frame's empty/live split once and caches it,
// so that both kernels in one frame agree on the partition even if
// recording order varies.
func (c *Camera) partitionTiles(arena *mem.Arena, samples []GBufferSample) *TilePartition {
	if c.frame.partition == nil {
		var hitCounts []uint32
		if c.frame.hitCountsWritten && !samplesIsForeign(samples, c.samples) {
			hitCounts = c.hitCounts
		}
		part := PartitionTiles(arena, c.frame.layout, samples, hitCounts)
		c.frame.partition = mem.Make(arena, part)
	}
	return c.frame.partition
}

func samplesIsForeign(samples, own []GBufferSample) bool {
	if len(own) == 0 {
		return len(samples) != 0
	}
	return len(samples) == 0 || &samples[0] != &own[0]
}
