package raycaster

import (
	"fmt"
	"structs"

	"honnef.co/go/curve"

	"github.com/caomw/hvvr/hmath"
)

// MissKey marks a subsample whose ray hit nothing. Its Color and Depth are
// undefined and must not be read.
const MissKey = ^uint32(0)

// GBufferSample is one shaded subsample as written by the shading stage.
// The layout matches the storage buffer layout used by the resolve kernels.
type GBufferSample struct {
	_ structs.HostLayout

	// Color is premultiplied RGBA8, one channel per byte, R in the low byte.
	Color uint32
	// Key identifies the surface cluster the sample belongs to. Samples on
	// the same continuous surface share a key; MissKey marks a miss.
	Key   uint32
	Depth float32
	_     uint32
}

// SampleRange locates one pixel's subsamples inside the flat sample stream.
type SampleRange struct {
	_ structs.HostLayout

	Start uint32
	Count uint32
}

// SampleOffset is a subpixel position relative to the pixel center, in
// pixel units, each component in [-0.5, 0.5].
type SampleOffset struct {
	_ structs.HostLayout

	X float32
	Y float32
}

// SampleLayout describes how the flat subsample stream maps onto the image
// grid. Ranges has one entry per pixel in row-major order; Offsets has one
// entry per subsample, indexed by the ranges. A layout is immutable once
// built and is typically reused across many frames.
type SampleLayout struct {
	Width   uint32
	Height  uint32
	Ranges  []SampleRange
	Offsets []SampleOffset
}

func (l *SampleLayout) NumPixels() int  { return int(l.Width) * int(l.Height) }
func (l *SampleLayout) NumSamples() int { return len(l.Offsets) }

// Validate panics if the layout is internally inconsistent. Layouts are
// produced by trusted code, so a malformed one is a programming error.
func (l *SampleLayout) Validate() {
	if len(l.Ranges) != l.NumPixels() {
		panic(fmt.Sprintf("sample layout has %d ranges for %d pixels", len(l.Ranges), l.NumPixels()))
	}
	n := uint32(len(l.Offsets))
	for i, r := range l.Ranges {
		if r.Count > 0 && (r.Start >= n || r.Start+r.Count > n) {
			panic(fmt.Sprintf("range %d [%d, %d) exceeds %d offsets", i, r.Start, r.Start+r.Count, n))
		}
	}
}

// Standard subsample positions in 1/16 pixel units, matching the
// conventional rotated-grid MSAA patterns.
var msaaPatterns = map[uint32][][2]int8{
	1: {{0, 0}},
	2: {{4, 4}, {-4, -4}},
	4: {{-2, -6}, {6, -2}, {-6, 2}, {2, 6}},
	8: {
		{1, -3}, {-1, 3}, {5, 1}, {-3, -5},
		{-5, 5}, {-7, -1}, {3, 7}, {7, -7},
	},
	16: {
		{1, 1}, {-1, -3}, {-3, 2}, {4, -1},
		{-5, -2}, {2, 5}, {5, 3}, {3, -5},
		{-2, 6}, {0, -7}, {-4, -6}, {-6, 4},
		{-8, 0}, {7, -4}, {6, 7}, {-7, -8},
	},
}

// PatternOffsets returns the standard subsample offsets for a power-of-two
// sample count between 1 and 16.
func PatternOffsets(count uint32) []SampleOffset {
	pat, ok := msaaPatterns[count]
	if !ok {
		panic(fmt.Sprintf("no sample pattern for count %d", count))
	}
	out := make([]SampleOffset, len(pat))
	for i, p := range pat {
		out[i] = SampleOffset{X: float32(p[0]) / 16, Y: float32(p[1]) / 16}
	}
	return out
}

// FoveationParams controls how the per-pixel sample rate falls off with
// distance from the gaze point.
type FoveationParams struct {
	// MaxSamples is the rate at the gaze point, a power of two in [1, 16].
	MaxSamples uint32
	// MinSamples is the floor rate in the periphery, a power of two.
	MinSamples uint32
	// FalloffRadius is the eccentricity, in pixels, over which the rate
	// halves.
	FalloffRadius float32
}

// UniformLayout builds a layout with the same sample count at every pixel.
func UniformLayout(width, height, count uint32) *SampleLayout {
	pat := PatternOffsets(count)
	l := &SampleLayout{
		Width:   width,
		Height:  height,
		Ranges:  make([]SampleRange, int(width)*int(height)),
		Offsets: make([]SampleOffset, 0, int(width)*int(height)*int(count)),
	}
	for i := range l.Ranges {
		l.Ranges[i] = SampleRange{Start: uint32(len(l.Offsets)), Count: count}
		l.Offsets = append(l.Offsets, pat...)
	}
	return l
}

// FoveatedLayout builds a layout whose per-pixel sample rate decays from
// params.MaxSamples at the gaze point down to params.MinSamples in the
// periphery, halving every params.FalloffRadius pixels of eccentricity.
func FoveatedLayout(width, height uint32, gaze curve.Vec2, params FoveationParams) *SampleLayout {
	if params.MaxSamples < params.MinSamples {
		panic("foveation max rate below min rate")
	}
	if params.FalloffRadius <= 0 {
		panic("foveation falloff radius must be positive")
	}
	l := &SampleLayout{
		Width:  width,
		Height: height,
		Ranges: make([]SampleRange, int(width)*int(height)),
	}
	for y := uint32(0); y < height; y++ {
		for x := uint32(0); x < width; x++ {
			d := hmath.Hypot32(float32(x)+0.5-float32(gaze.X), float32(y)+0.5-float32(gaze.Y))
			count := params.MaxSamples
			for steps := int(d / params.FalloffRadius); steps > 0 && count > params.MinSamples; steps-- {
				count >>= 1
			}
			count = max(count, params.MinSamples)
			l.Ranges[int(y)*int(width)+int(x)] = SampleRange{
				Start: uint32(len(l.Offsets)),
				Count: count,
			}
			l.Offsets = append(l.Offsets, PatternOffsets(count)...)
		}
	}
	return l
}
