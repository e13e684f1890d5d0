// Command resolvedemo renders a synthetic foveated frame through the
// resolve stage and writes the result as a WebP image. It exists to
// eyeball filtering behavior: surface edges should stay sharp while
// interiors stay smooth, and the sample rate falloff away from the gaze
// point should be invisible in the output.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
	"honnef.co/go/color"
	"honnef.co/go/curve"
	"honnef.co/go/safeish"

	"github.com/caomw/hvvr"
	"github.com/caomw/hvvr/gfx"
	"github.com/caomw/hvvr/hmath"
	"github.com/caomw/hvvr/mem"
	"github.com/caomw/hvvr/raycaster"
)

func main() {
	width := flag.Uint("width", 640, "render target width")
	height := flag.Uint("height", 480, "render target height")
	gazeX := flag.Float64("gaze-x", -1, "gaze point x in pixels (default center)")
	gazeY := flag.Float64("gaze-y", -1, "gaze point y in pixels (default center)")
	zoom := flag.Int("zoom", 1, "nearest-neighbor upscale factor")
	out := flag.String("out", "resolved.webp", "output image path")
	dump := flag.String("dump", "", "also write a raw sample dump to this path")
	flag.Parse()

	if *gazeX < 0 {
		*gazeX = float64(*width) / 2
	}
	if *gazeY < 0 {
		*gazeY = float64(*height) / 2
	}

	if err := run(uint32(*width), uint32(*height), curve.Vec(*gazeX, *gazeY), *zoom, *out, *dump); err != nil {
		log.Fatal(err)
	}
}

func run(width, height uint32, gaze curve.Vec2, zoom int, out, dump string) error {
	layout := raycaster.FoveatedLayout(width, height, gaze, raycaster.FoveationParams{
		MaxSamples:    8,
		MinSamples:    1,
		FalloffRadius: float32(width) / 8,
	})

	background := gfx.FromColor(&color.Color{
		Space:  color.LinearSRGB,
		Values: [4]float64{0.1, 0.1, 0.12, 1},
	})
	cam := raycaster.NewCamera(width, height, background)
	cam.BeginFrame(layout, hmath.Identity3x3, hmath.Identity4x4)
	shadeScene(cam, layout)

	rc := hvvr.New()
	defer rc.Close()
	arena := mem.NewArena()

	clearQueue := rc.NewQueue()
	defer clearQueue.Close()
	clearFence := rc.ClearEmptyTiles(arena, cam, cam.RawSamples(), clearQueue)
	resolveFence := rc.DeferredMSAAResolve(arena, cam, cam.RawSamples(), layout, hmath.Identity3x3, hmath.Identity4x4)
	clearFence.Wait()
	resolveFence.Wait()

	if dump != "" {
		f, err := os.Create(dump)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := raycaster.WriteSamples(f, cam.RawSamples()); err != nil {
			return err
		}
	}

	_, resolved := cam.FrameOutput()
	img := &image.RGBA{
		Pix:    safeish.SliceCast[[]uint8](resolved),
		Stride: int(width) * 4,
		Rect:   image.Rect(0, 0, int(width), int(height)),
	}

	var final image.Image = img
	if zoom > 1 {
		dst := image.NewRGBA(image.Rect(0, 0, int(width)*zoom, int(height)*zoom))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		final = dst
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := nativewebp.Encode(f, final, nil); err != nil {
		return fmt.Errorf("encoding %s: %w", out, err)
	}
	return nil
}

// shadeScene stands in for the traversal and shading stages: a sphere
// in front of a slanted quad, everything else background.
func shadeScene(cam *raycaster.Camera, layout *raycaster.SampleLayout) {
	samples := cam.RawSamples()
	hitCounts := cam.TileHitCounts()
	wTiles := (layout.Width + raycaster.TileWidth - 1) / raycaster.TileWidth

	cx := float32(layout.Width) * 0.45
	cy := float32(layout.Height) * 0.5
	radius := float32(layout.Height) * 0.3

	for y := uint32(0); y < layout.Height; y++ {
		for x := uint32(0); x < layout.Width; x++ {
			r := layout.Ranges[y*layout.Width+x]
			tile := (y/raycaster.TileHeight)*wTiles + x/raycaster.TileWidth
			for i := r.Start; i < r.Start+r.Count; i++ {
				off := layout.Offsets[i]
				sx := float32(x) + 0.5 + off.X
				sy := float32(y) + 0.5 + off.Y
				samples[i] = shadeSample(layout, sx, sy, cx, cy, radius)
				if samples[i].Key != raycaster.MissKey {
					hitCounts[tile]++
				}
			}
		}
	}
}

func shadeSample(layout *raycaster.SampleLayout, sx, sy, cx, cy, radius float32) raycaster.GBufferSample {
	dx := sx - cx
	dy := sy - cy
	if d2 := dx*dx + dy*dy; d2 < radius*radius {
		// Crude lambert shading off the sphere normal.
		nz := hmath.Sqrt32(1 - d2/(radius*radius))
		shade := 0.2 + 0.8*nz
		c := gfx.Color{R: 0.9 * shade, G: 0.25 * shade, B: 0.2 * shade, A: 1}
		return raycaster.GBufferSample{
			Color: c.PremulUint32(),
			Key:   1,
			Depth: 5 - nz,
		}
	}
	if sx > float32(layout.Width)*0.55 {
		fade := 1 - (sy / float32(layout.Height) * 0.5)
		c := gfx.Color{R: 0.2 * fade, G: 0.4 * fade, B: 0.85 * fade, A: 1}
		return raycaster.GBufferSample{
			Color: c.PremulUint32(),
			Key:   2,
			Depth: 10,
		}
	}
	return raycaster.GBufferSample{Key: raycaster.MissKey}
}
