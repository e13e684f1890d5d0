package raycaster_test

import (
	"testing"

	"honnef.co/go/curve"

	"github.com/caomw/hvvr"
	"github.com/caomw/hvvr/gfx"
	"github.com/caomw/hvvr/hmath"
	"github.com/caomw/hvvr/mem"
	"github.com/caomw/hvvr/raycaster"
)

const sentinel = 0xdeadbeef

var (
	red  = gfx.Color{R: 1, A: 1}
	blue = gfx.Color{B: 1, A: 1}
	gray = gfx.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}
)

// frame bundles everything needed to run one clear + resolve pass.
type frame struct {
	rc     *hvvr.Raycaster
	arena  *mem.Arena
	cam    *raycaster.Camera
	layout *raycaster.SampleLayout
}

func newFrame(t *testing.T, layout *raycaster.SampleLayout, background gfx.Color) *frame {
	t.Helper()
	rc := hvvr.New()
	t.Cleanup(rc.Close)
	cam := raycaster.NewCamera(layout.Width, layout.Height, background)
	cam.BeginFrame(layout, hmath.Identity3x3, hmath.Identity4x4)
	return &frame{
		rc:     rc,
		arena:  mem.NewArena(),
		cam:    cam,
		layout: layout,
	}
}

func (f *frame) fillSentinel() {
	_, out := f.cam.FrameOutput()
	for i := range out {
		out[i] = sentinel
	}
}

func (f *frame) clear() {
	f.rc.ClearEmptyTiles(f.arena, f.cam, f.cam.RawSamples(), nil).Wait()
}

func (f *frame) resolve() {
	f.rc.DeferredMSAAResolve(f.arena, f.cam, f.cam.RawSamples(), nil, hmath.Identity3x3, hmath.Identity4x4).Wait()
}

func (f *frame) run() {
	f.clear()
	f.resolve()
}

func (f *frame) pixel(x, y uint32) uint32 {
	_, out := f.cam.FrameOutput()
	return out[y*f.layout.Width+x]
}

// missAll marks every subsample a miss.
func missAll(samples []raycaster.GBufferSample) {
	for i := range samples {
		samples[i] = raycaster.GBufferSample{Key: raycaster.MissKey}
	}
}

// setPixel overwrites one pixel's subsamples, padding with the last
// given sample.
func setPixel(l *raycaster.SampleLayout, samples []raycaster.GBufferSample, x, y uint32, ss ...raycaster.GBufferSample) {
	r := l.Ranges[y*l.Width+x]
	for i := range r.Count {
		s := ss[min(int(i), len(ss)-1)]
		samples[r.Start+i] = s
	}
}

func hit(c gfx.Color, key uint32, depth float32) raycaster.GBufferSample {
	return raycaster.GBufferSample{Color: c.PremulUint32(), Key: key, Depth: depth}
}

func miss() raycaster.GBufferSample {
	return raycaster.GBufferSample{Key: raycaster.MissKey}
}

func TestAllMissFrameIsBackground(t *testing.T) {
	f := newFrame(t, raycaster.UniformLayout(64, 48, 4), gray)
	missAll(f.cam.RawSamples())
	f.fillSentinel()
	f.run()

	want := gray.PremulUint32()
	_, out := f.cam.FrameOutput()
	for i, p := range out {
		if p != want {
			t.Fatalf("pixel %d = %#08x, want background %#08x", i, p, want)
		}
	}
}

func TestSingleSampleIdentity(t *testing.T) {
	f := newFrame(t, raycaster.UniformLayout(32, 32, 1), gray)
	missAll(f.cam.RawSamples())
	setPixel(f.layout, f.cam.RawSamples(), 3, 7, hit(red, 1, 1))
	f.run()

	if got := f.pixel(3, 7); got != red.PremulUint32() {
		t.Errorf("hit pixel = %#08x, want %#08x", got, red.PremulUint32())
	}
	if got := f.pixel(4, 7); got != gray.PremulUint32() {
		t.Errorf("neighbor = %#08x, want background", got)
	}
}

func TestUniformClusterIsExact(t *testing.T) {
	f := newFrame(t, raycaster.UniformLayout(32, 32, 8), gray)
	missAll(f.cam.RawSamples())
	// All 8 subsamples on the same surface with the same color must
	// quantize back to that exact color.
	setPixel(f.layout, f.cam.RawSamples(), 10, 10, hit(red, 1, 2))
	f.run()

	if got := f.pixel(10, 10); got != red.PremulUint32() {
		t.Errorf("uniform cluster = %#08x, want %#08x", got, red.PremulUint32())
	}
}

func TestMissBlendIsStrict(t *testing.T) {
	black := gfx.Color{A: 1}
	white := gfx.Color{R: 1, G: 1, B: 1, A: 1}
	f := newFrame(t, raycaster.UniformLayout(32, 32, 4), black)
	missAll(f.cam.RawSamples())
	// Three white hits and one miss must blend: never pure white, never
	// pure background.
	setPixel(f.layout, f.cam.RawSamples(), 5, 5,
		hit(white, 1, 1), hit(white, 1, 1), hit(white, 1, 1), miss())
	f.run()

	got := f.pixel(5, 5)
	if got == white.PremulUint32() {
		t.Error("edge pixel resolved to pure surface color, miss ignored")
	}
	if got == black.PremulUint32() {
		t.Error("edge pixel resolved to pure background")
	}
	// The white cluster dominates, so the result must be bright.
	if r := got & 0xff; r < 0x80 {
		t.Errorf("edge pixel %#08x darker than expected", got)
	}
}

func TestNoBleedAcrossSurfaceEdge(t *testing.T) {
	f := newFrame(t, raycaster.UniformLayout(32, 32, 4), gray)
	missAll(f.cam.RawSamples())
	// Three samples on surface 1, one on surface 2. Surface 1 wins and
	// surface 2 must contribute nothing at all.
	setPixel(f.layout, f.cam.RawSamples(), 8, 8,
		hit(red, 1, 1), hit(red, 1, 1), hit(red, 1, 1), hit(blue, 2, 5))
	f.run()

	if got := f.pixel(8, 8); got != red.PremulUint32() {
		t.Errorf("edge pixel = %#08x, want pure %#08x with no bleed", got, red.PremulUint32())
	}
}

func TestNearestDepthWinsWithoutMajority(t *testing.T) {
	f := newFrame(t, raycaster.UniformLayout(32, 32, 2), gray)
	missAll(f.cam.RawSamples())
	// Two singleton clusters; the nearer surface must win outright.
	setPixel(f.layout, f.cam.RawSamples(), 2, 2,
		hit(blue, 2, 1.5), hit(red, 1, 9))
	f.run()

	if got := f.pixel(2, 2); got != blue.PremulUint32() {
		t.Errorf("pixel = %#08x, want nearer surface %#08x", got, blue.PremulUint32())
	}
}

func TestKernelsWriteDisjointTiles(t *testing.T) {
	layout := raycaster.UniformLayout(64, 64, 2)
	background := gray.PremulUint32()

	live := func(f *frame) {
		// Tile (1, 1) is the only live one.
		setPixel(f.layout, f.cam.RawSamples(), 20, 20, hit(red, 1, 1))
	}

	// Clear alone must leave every live-tile pixel untouched.
	f := newFrame(t, layout, gray)
	missAll(f.cam.RawSamples())
	live(f)
	f.fillSentinel()
	f.clear()
	if got := f.pixel(20, 20); got != sentinel {
		t.Errorf("clear wrote a live tile: %#08x", got)
	}
	if got := f.pixel(0, 0); got != background {
		t.Errorf("clear missed an empty tile: %#08x", got)
	}

	// Resolve alone must leave every empty-tile pixel untouched.
	f = newFrame(t, layout, gray)
	missAll(f.cam.RawSamples())
	live(f)
	f.fillSentinel()
	f.resolve()
	if got := f.pixel(0, 0); got != sentinel {
		t.Errorf("resolve wrote an empty tile: %#08x", got)
	}
	if got := f.pixel(20, 20); got != red.PremulUint32() {
		t.Errorf("resolve missed a live tile: %#08x", got)
	}

	// Together they must touch every pixel exactly once.
	f = newFrame(t, layout, gray)
	missAll(f.cam.RawSamples())
	live(f)
	f.fillSentinel()
	f.run()
	_, out := f.cam.FrameOutput()
	for i, p := range out {
		if p == sentinel {
			t.Fatalf("pixel %d untouched by both kernels", i)
		}
	}
}

func TestFoveatedFrameResolves(t *testing.T) {
	layout := raycaster.FoveatedLayout(64, 64, curve.Vec(32, 32), raycaster.FoveationParams{
		MaxSamples:    8,
		MinSamples:    1,
		FalloffRadius: 8,
	})
	f := newFrame(t, layout, gray)
	samples := f.cam.RawSamples()
	missAll(samples)
	// Fill the left half with one surface, regardless of per-pixel rate.
	for y := uint32(0); y < 64; y++ {
		for x := uint32(0); x < 32; x++ {
			setPixel(layout, samples, x, y, hit(red, 1, 2))
		}
	}
	f.fillSentinel()
	f.run()

	if got := f.pixel(5, 5); got != red.PremulUint32() {
		t.Errorf("low-rate pixel = %#08x, want %#08x", got, red.PremulUint32())
	}
	if got := f.pixel(30, 32); got != red.PremulUint32() {
		t.Errorf("high-rate pixel = %#08x, want %#08x", got, red.PremulUint32())
	}
	if got := f.pixel(50, 32); got != gray.PremulUint32() {
		t.Errorf("right half = %#08x, want background", got)
	}
}

func TestDoubleResolvePanics(t *testing.T) {
	f := newFrame(t, raycaster.UniformLayout(16, 16, 1), gray)
	missAll(f.cam.RawSamples())
	f.resolve()
	defer func() {
		if recover() == nil {
			t.Fatal("second resolve in one frame did not panic")
		}
	}()
	f.resolve()
}

func TestDoubleClearPanics(t *testing.T) {
	f := newFrame(t, raycaster.UniformLayout(16, 16, 1), gray)
	missAll(f.cam.RawSamples())
	f.clear()
	defer func() {
		if recover() == nil {
			t.Fatal("second clear in one frame did not panic")
		}
	}()
	f.clear()
}

func TestDoubleBufferingAcrossFrames(t *testing.T) {
	layout := raycaster.UniformLayout(16, 16, 1)
	f := newFrame(t, layout, gray)
	missAll(f.cam.RawSamples())
	setPixel(layout, f.cam.RawSamples(), 0, 0, hit(red, 1, 1))
	f.run()

	// The next frame must write the other buffer and leave this result
	// readable through Present.
	f.cam.BeginFrame(layout, hmath.Identity3x3, hmath.Identity4x4)
	f.arena.Reset()
	missAll(f.cam.RawSamples())
	setPixel(layout, f.cam.RawSamples(), 0, 0, hit(blue, 1, 1))
	f.run()

	if got := f.cam.Present()[0]; got != red.PremulUint32() {
		t.Errorf("presented pixel = %#08x, want previous frame's %#08x", got, red.PremulUint32())
	}
	if got := f.pixel(0, 0); got != blue.PremulUint32() {
		t.Errorf("current pixel = %#08x, want %#08x", got, blue.PremulUint32())
	}
}

func TestHitCountPartitionMatchesScan(t *testing.T) {
	layout := raycaster.UniformLayout(32, 32, 2)
	f := newFrame(t, layout, gray)
	samples := f.cam.RawSamples()
	missAll(samples)
	setPixel(layout, samples, 17, 3, hit(red, 1, 1))

	// Report the hit through the per-tile counters; tile (1, 0).
	f.cam.TileHitCounts()[1] = 2
	f.fillSentinel()
	f.run()

	if got := f.pixel(17, 3); got != red.PremulUint32() {
		t.Errorf("counted tile pixel = %#08x, want %#08x", got, red.PremulUint32())
	}
	if got := f.pixel(0, 0); got != gray.PremulUint32() {
		t.Errorf("empty tile pixel = %#08x, want background", got)
	}
}

func BenchmarkResolveUniform4x(b *testing.B) {
	layout := raycaster.UniformLayout(256, 256, 4)
	rc := hvvr.New()
	defer rc.Close()
	cam := raycaster.NewCamera(256, 256, gray)
	arena := mem.NewArena()

	b.ReportAllocs()
	for b.Loop() {
		cam.BeginFrame(layout, hmath.Identity3x3, hmath.Identity4x4)
		samples := cam.RawSamples()
		for i := range samples {
			samples[i] = raycaster.GBufferSample{Color: 0xff0000ff, Key: uint32(i % 3), Depth: 1}
		}
		clearFence := rc.ClearEmptyTiles(arena, cam, samples, nil)
		resolveFence := rc.DeferredMSAAResolve(arena, cam, samples, nil, hmath.Identity3x3, hmath.Identity4x4)
		clearFence.Wait()
		resolveFence.Wait()
		arena.Reset()
	}
}
