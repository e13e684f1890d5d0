package raycaster

import (
	"fmt"

	"honnef.co/go/safeish"

	"github.com/caomw/hvvr/hmath"
	"github.com/caomw/hvvr/mem"
	"github.com/caomw/hvvr/profiler"
)

// RecordClearEmptyTiles records the pass that fills every empty tile of
// the current frame's resolved image with the camera's background color.
// It writes only tiles without any ray hit; RecordDeferredMSAAResolve
// writes the rest, so together the two passes touch every pixel exactly
// once per frame. Recording it twice for one frame is a caller error and
// panics.
func RecordClearEmptyTiles(
	arena *mem.Arena,
	rec *Recording,
	shaders *FullShaders,
	cam *Camera,
	samples []GBufferSample,
	pgroup profiler.ProfilerGroup,
) {
	pgroup = pgroup.Start("ClearEmptyTiles")
	defer pgroup.End()

	layout := cam.frameLayout()
	if cam.frame.cleared {
		panic("empty tiles cleared twice in one frame")
	}
	cam.frame.cleared = true
	checkSampleCount(layout, samples)

	part := cam.partitionTiles(arena, samples)
	if len(part.Empty) == 0 {
		return
	}

	cfg := mem.Make(arena, *NewResolveConfig(layout, cam.background, cam.frame.sampleToCamera, cam.frame.cameraToWorld, *part))
	configBuf := rec.UploadUniform(arena, "config", safeish.AsBytes(&cfg.Gpu))
	tileBuf := rec.Upload(arena, "emptyTiles", safeish.SliceCast[[]byte](part.Empty))
	cfg.BufferSizes.EmptyTiles.CheckFits(tileBuf)
	cfg.BufferSizes.Resolved.CheckFits(cam.frame.resolvedProxy)

	rec.Dispatch(arena, shaders.ClearEmptyTiles, [3]uint32(cfg.WorkgroupCounts.ClearEmptyTiles), mem.MakeSlice(arena, []BufferProxy{
		configBuf,
		tileBuf,
		cam.frame.resolvedProxy,
	}))

	rec.FreeBuffer(arena, configBuf)
	rec.FreeBuffer(arena, tileBuf)
}

// RecordDeferredMSAAResolve records the pass that filters each live
// tile's subsamples down to one premultiplied RGBA8 value per pixel.
// samples is the raw subsample stream, typically the camera's own buffer.
// The transforms override the ones captured at BeginFrame, mirroring how
// late-latched eye poses arrive after shading has started. Recording it
// twice for one frame panics.
func RecordDeferredMSAAResolve(
	arena *mem.Arena,
	rec *Recording,
	shaders *FullShaders,
	cam *Camera,
	samples []GBufferSample,
	layout *SampleLayout,
	sampleToCamera hmath.Matrix3x3,
	cameraToWorld hmath.Matrix4x4,
	pgroup profiler.ProfilerGroup,
) {
	pgroup = pgroup.Start("DeferredMSAAResolve")
	defer pgroup.End()

	frameLayout := cam.frameLayout()
	if cam.frame.resolved {
		panic("frame resolved twice")
	}
	cam.frame.resolved = true
	if layout == nil {
		layout = frameLayout
	} else if layout.Width != frameLayout.Width || layout.Height != frameLayout.Height {
		panic(fmt.Sprintf("resolve layout is %dx%d, frame layout is %dx%d",
			layout.Width, layout.Height, frameLayout.Width, frameLayout.Height))
	}
	checkSampleCount(layout, samples)

	part := cam.partitionTiles(arena, samples)
	if len(part.Live) == 0 {
		return
	}

	cfg := mem.Make(arena, *NewResolveConfig(layout, cam.background, sampleToCamera, cameraToWorld, *part))
	configBuf := rec.UploadUniform(arena, "config", safeish.AsBytes(&cfg.Gpu))
	tileBuf := rec.Upload(arena, "liveTiles", safeish.SliceCast[[]byte](part.Live))
	rangeBuf := rec.Upload(arena, "sampleRanges", safeish.SliceCast[[]byte](layout.Ranges))
	offsetBuf := rec.Upload(arena, "sampleOffsets", safeish.SliceCast[[]byte](layout.Offsets))
	sampleBuf := rec.Upload(arena, "gbufferSamples", safeish.SliceCast[[]byte](samples))
	cfg.BufferSizes.LiveTiles.CheckFits(tileBuf)
	cfg.BufferSizes.Ranges.CheckFits(rangeBuf)
	cfg.BufferSizes.Offsets.CheckFits(offsetBuf)
	cfg.BufferSizes.Samples.CheckFits(sampleBuf)
	cfg.BufferSizes.Resolved.CheckFits(cam.frame.resolvedProxy)

	rec.Dispatch(arena, shaders.DeferredMSAAResolve, [3]uint32(cfg.WorkgroupCounts.Resolve), mem.MakeSlice(arena, []BufferProxy{
		configBuf,
		tileBuf,
		rangeBuf,
		offsetBuf,
		sampleBuf,
		cam.frame.resolvedProxy,
	}))

	rec.FreeBuffer(arena, configBuf)
	rec.FreeBuffer(arena, tileBuf)
	rec.FreeBuffer(arena, rangeBuf)
	rec.FreeBuffer(arena, offsetBuf)
	rec.FreeBuffer(arena, sampleBuf)
}

func checkSampleCount(layout *SampleLayout, samples []GBufferSample) {
	if len(samples) != layout.NumSamples() {
		panic(fmt.Sprintf("%d raw samples for a layout with %d", len(samples), layout.NumSamples()))
	}
}
