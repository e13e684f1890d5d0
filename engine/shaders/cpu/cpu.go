// Package cpu provides CPU implementations of the resolve kernels.
//
// These intentionally replicate the compute shaders instruction for
// instruction instead of using more CPU-friendly formulations, so that
// the two backends can be compared pixel by pixel.
package cpu

import (
	"fmt"
	"unsafe"

	"honnef.co/go/safeish"

	"github.com/caomw/hvvr/gfx"
	"github.com/caomw/hvvr/hmath"
	"github.com/caomw/hvvr/raycaster"
)

const TILE_WIDTH = 16
const TILE_HEIGHT = 16

const MAX_CLUSTERS = 8

// Gaussian filter sigma in pixel units.
const SIGMA = 0.5

func assert(b bool) {
	if !b {
		panic("failed assert")
	}
}

type CPUBinding interface {
	// One of CPUBuffer, for now.
}

type CPUBuffer []byte

func fromBytes[E any, T *E](b []byte) T {
	if uintptr(len(b)) < unsafe.Sizeof(*new(E)) {
		panic(fmt.Sprintf(
			"buffer of size %d cannot represent object of size %d", len(b), unsafe.Sizeof(*new(E))))
	}

	return safeish.Cast[T](&b[0])
}

// ClearEmptyTiles fills tiles without any ray hit with the background
// color. One workgroup per empty tile.
func ClearEmptyTiles(numWgs uint32, resources []CPUBinding) {
	config := fromBytes[raycaster.ConfigUniform](resources[0].(CPUBuffer))
	empty_tiles := safeish.SliceCast[[]uint32](resources[1].(CPUBuffer))
	resolved := safeish.SliceCast[[]uint32](resources[2].(CPUBuffer))

	assert(int(numWgs) <= len(empty_tiles))
	for wg := range numWgs {
		tile := empty_tiles[wg]
		tile_x := tile % config.WidthInTiles
		tile_y := tile / config.WidthInTiles
		for dy := range uint32(TILE_HEIGHT) {
			y := tile_y*TILE_HEIGHT + dy
			if y >= config.TargetHeight {
				break
			}
			for dx := range uint32(TILE_WIDTH) {
				x := tile_x*TILE_WIDTH + dx
				if x >= config.TargetWidth {
					break
				}
				resolved[y*config.TargetWidth+x] = config.Background
			}
		}
	}
}

type cluster struct {
	key           uint32
	wsum          float32
	csum          [4]float32
	members       uint32
	min_depth     float32
	first_color   uint32
	uniform_color bool
}

// DeferredMSAAResolve filters each live tile's subsamples down to one
// premultiplied RGBA8 value per pixel. One workgroup per live tile.
func DeferredMSAAResolve(numWgs uint32, resources []CPUBinding) {
	config := fromBytes[raycaster.ConfigUniform](resources[0].(CPUBuffer))
	live_tiles := safeish.SliceCast[[]uint32](resources[1].(CPUBuffer))
	ranges := safeish.SliceCast[[]raycaster.SampleRange](resources[2].(CPUBuffer))
	offsets := safeish.SliceCast[[]raycaster.SampleOffset](resources[3].(CPUBuffer))
	samples := safeish.SliceCast[[]raycaster.GBufferSample](resources[4].(CPUBuffer))
	resolved := safeish.SliceCast[[]uint32](resources[5].(CPUBuffer))

	assert(int(numWgs) <= len(live_tiles))
	s2c := matrixFromUniform(config.SampleToCamera)
	for wg := range numWgs {
		tile := live_tiles[wg]
		tile_x := tile % config.WidthInTiles
		tile_y := tile / config.WidthInTiles
		for dy := range uint32(TILE_HEIGHT) {
			y := tile_y*TILE_HEIGHT + dy
			if y >= config.TargetHeight {
				break
			}
			for dx := range uint32(TILE_WIDTH) {
				x := tile_x*TILE_WIDTH + dx
				if x >= config.TargetWidth {
					break
				}
				pix := y*config.TargetWidth + x
				resolved[pix] = resolvePixel(config, s2c, ranges[pix], offsets, samples, x, y)
			}
		}
	}
}

func resolvePixel(
	config *raycaster.ConfigUniform,
	s2c hmath.Matrix3x3,
	r raycaster.SampleRange,
	offsets []raycaster.SampleOffset,
	samples []raycaster.GBufferSample,
	x, y uint32,
) uint32 {
	if r.Count == 0 {
		return config.Background
	}
	if r.Count == 1 {
		s := samples[r.Start]
		if s.Key == raycaster.MissKey {
			return config.Background
		}
		return s.Color
	}

	pcx := float32(x) + 0.5
	pcy := float32(y) + 0.5
	center := cameraPlane(s2c, pcx, pcy)
	// Local pixel extents on the camera plane; foveated layouts make
	// these vary strongly across the image.
	du := cameraPlane(s2c, pcx+1, pcy).Sub(center)
	dv := cameraPlane(s2c, pcx, pcy+1).Sub(center)
	uu := max(du.Dot(du), 1e-12)
	vv := max(dv.Dot(dv), 1e-12)

	var clusters [MAX_CLUSTERS]cluster
	num_clusters := uint32(0)
	w_miss := float32(0)
	for i := range r.Count {
		s := samples[r.Start+i]
		off := offsets[r.Start+i]
		d := cameraPlane(s2c, pcx+off.X, pcy+off.Y).Sub(center)
		a := d.Dot(du) / uu
		b := d.Dot(dv) / vv
		r2 := a*a + b*b
		w := hmath.Exp32(-r2 / (2 * SIGMA * SIGMA))

		if s.Key == raycaster.MissKey {
			w_miss += w
			continue
		}
		c := num_clusters
		for j := range num_clusters {
			if clusters[j].key == s.Key {
				c = j
				break
			}
		}
		if c == num_clusters {
			if num_clusters == MAX_CLUSTERS {
				// Table overflow, merge into the last cluster.
				c = MAX_CLUSTERS - 1
				clusters[c].uniform_color = false
			} else {
				num_clusters++
				clusters[c] = cluster{
					key:           s.Key,
					min_depth:     s.Depth,
					first_color:   s.Color,
					uniform_color: true,
				}
			}
		}
		cl := &clusters[c]
		cl.wsum += w
		col := gfx.UnpackUint32(s.Color)
		for k := range cl.csum {
			cl.csum[k] += w * col[k]
		}
		cl.members++
		cl.min_depth = min(cl.min_depth, s.Depth)
		if s.Color != cl.first_color {
			cl.uniform_color = false
		}
	}

	if num_clusters == 0 {
		return config.Background
	}

	// The winning cluster has the largest summed weight among clusters
	// with at least two members, falling back to the nearest-depth one.
	// Losing clusters contribute nothing, so color never bleeds across
	// a surface edge.
	best := uint32(MAX_CLUSTERS)
	for j := range num_clusters {
		if clusters[j].members < 2 {
			continue
		}
		if best == MAX_CLUSTERS || clusters[j].wsum > clusters[best].wsum ||
			(clusters[j].wsum == clusters[best].wsum && clusters[j].min_depth < clusters[best].min_depth) {
			best = j
		}
	}
	if best == MAX_CLUSTERS {
		best = 0
		for j := uint32(1); j < num_clusters; j++ {
			if clusters[j].min_depth < clusters[best].min_depth {
				best = j
			}
		}
	}

	win := &clusters[best]
	if w_miss == 0 && win.uniform_color {
		return win.first_color
	}
	total := win.wsum + w_miss
	bg := gfx.UnpackUint32(config.Background)
	var blended [4]float32
	for k := range blended {
		blended[k] = (win.csum[k] + w_miss*bg[k]) / total
	}
	return gfx.PackUint32(blended)
}

func cameraPlane(s2c hmath.Matrix3x3, x, y float32) hmath.Vector2 {
	d := s2c.MulVector(hmath.Vector3{X: x, Y: y, Z: 1})
	z := d.Z
	if hmath.Abs32(z) < 1e-6 {
		z = 1e-6
	}
	return hmath.Vector2{X: d.X / z, Y: d.Y / z}
}

func matrixFromUniform(u [12]float32) hmath.Matrix3x3 {
	var m hmath.Matrix3x3
	for col := range 3 {
		m.Cols[col] = hmath.Vector3{
			X: u[col*4+0],
			Y: u[col*4+1],
			Z: u[col*4+2],
		}
	}
	return m
}
