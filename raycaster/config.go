package raycaster

import (
	"fmt"
	"structs"
	"unsafe"

	"github.com/caomw/hvvr/gfx"
	"github.com/caomw/hvvr/hmath"
)

// ConfigUniform is the uniform block shared by both resolve kernels. The
// field order and padding match the WGSL declaration; mat3x3 columns are
// padded to vec4.
type ConfigUniform struct {
	_ structs.HostLayout

	TargetWidth   uint32
	TargetHeight  uint32
	WidthInTiles  uint32
	HeightInTiles uint32
	NumSamples    uint32
	// Background is the frame's clear color, premultiplied RGBA8.
	Background uint32
	_          uint32
	_          uint32

	SampleToCamera [12]float32
	CameraToWorld  [16]float32
}

// WorkgroupSize is the number of workgroups to dispatch in each dimension.
type WorkgroupSize [3]uint32

type WorkgroupCounts struct {
	ClearEmptyTiles WorkgroupSize
	Resolve         WorkgroupSize
}

// BufferSize is the size of a buffer in number of elements of type T.
type BufferSize[T any] uint32

func NewBufferSize[T any](n int) BufferSize[T] {
	if n < 1 {
		n = 1
	}
	return BufferSize[T](n)
}

func (self BufferSize[T]) Len() uint32 {
	return uint32(self)
}

func (self BufferSize[T]) SizeInBytes() uint32 {
	var t T
	return uint32(unsafe.Sizeof(t)) * uint32(self)
}

// CheckFits panics if the buffer cannot hold the expected number of
// elements. Recording with an undersized buffer would make the kernels read
// or write out of bounds.
func (self BufferSize[T]) CheckFits(buf BufferProxy) {
	if buf.Size < uint64(self.SizeInBytes()) {
		panic(fmt.Sprintf("buffer %s holds %d bytes, expected at least %d", buf.Name, buf.Size, self.SizeInBytes()))
	}
}

type BufferSizes struct {
	Ranges     BufferSize[SampleRange]
	Offsets    BufferSize[SampleOffset]
	Samples    BufferSize[GBufferSample]
	EmptyTiles BufferSize[uint32]
	LiveTiles  BufferSize[uint32]
	Resolved   BufferSize[uint32]
}

// ResolveConfig gathers everything needed to record one frame's resolve
// work: the GPU uniform, per-kernel workgroup counts, and the sizes of all
// buffers involved.
type ResolveConfig struct {
	Gpu             ConfigUniform
	WorkgroupCounts WorkgroupCounts
	BufferSizes     BufferSizes
}

func NewResolveConfig(
	layout *SampleLayout,
	background gfx.Color,
	sampleToCamera hmath.Matrix3x3,
	cameraToWorld hmath.Matrix4x4,
	part TilePartition,
) *ResolveConfig {
	return &ResolveConfig{
		Gpu: ConfigUniform{
			TargetWidth:    layout.Width,
			TargetHeight:   layout.Height,
			WidthInTiles:   tilesAcross(layout.Width),
			HeightInTiles:  tilesDown(layout.Height),
			NumSamples:     uint32(layout.NumSamples()),
			Background:     background.PremulUint32(),
			SampleToCamera: sampleToCamera.Uniform(),
			CameraToWorld:  cameraToWorld.Uniform(),
		},
		WorkgroupCounts: WorkgroupCounts{
			ClearEmptyTiles: WorkgroupSize{uint32(len(part.Empty)), 1, 1},
			Resolve:         WorkgroupSize{uint32(len(part.Live)), 1, 1},
		},
		BufferSizes: BufferSizes{
			Ranges:     NewBufferSize[SampleRange](len(layout.Ranges)),
			Offsets:    NewBufferSize[SampleOffset](len(layout.Offsets)),
			Samples:    NewBufferSize[GBufferSample](layout.NumSamples()),
			EmptyTiles: NewBufferSize[uint32](len(part.Empty)),
			LiveTiles:  NewBufferSize[uint32](len(part.Live)),
			Resolved:   NewBufferSize[uint32](layout.NumPixels()),
		},
	}
}
