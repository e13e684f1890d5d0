// Package gfx provides the color handling shared by the resolve kernels and
// their callers.
package gfx

import (
	"honnef.co/go/color"
)

// Color is a linear-light RGBA color with straight (non-premultiplied)
// alpha.
type Color struct {
	R, G, B, A float32
}

// FromColor converts a managed color to linear sRGB.
func FromColor(c *color.Color) Color {
	cc := c.Convert(color.LinearSRGB)
	return Color{
		R: float32(cc.Values[0]),
		G: float32(cc.Values[1]),
		B: float32(cc.Values[2]),
		A: float32(cc.Values[3]),
	}
}

// PremulUint32 packs the color as premultiplied 8-bit RGBA, the format of
// the raw sample buffer and the resolved color buffer.
func (c Color) PremulUint32() uint32 {
	r := quantize(c.R * c.A)
	g := quantize(c.G * c.A)
	b := quantize(c.B * c.A)
	a := quantize(c.A)
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24
}

func quantize(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

// UnpackUint32 expands a packed premultiplied RGBA8 value to floats in
// [0, 1].
func UnpackUint32(c uint32) [4]float32 {
	return [4]float32{
		float32(c&0xff) / 255,
		float32(c>>8&0xff) / 255,
		float32(c>>16&0xff) / 255,
		float32(c>>24&0xff) / 255,
	}
}

// PackUint32 quantizes premultiplied float components back to RGBA8.
func PackUint32(c [4]float32) uint32 {
	return uint32(quantize(c[0])) |
		uint32(quantize(c[1]))<<8 |
		uint32(quantize(c[2]))<<16 |
		uint32(quantize(c[3]))<<24
}
