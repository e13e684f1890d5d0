package raycaster

import (
	"github.com/caomw/hvvr/mem"
)

// Tiles are fixed 16x16 pixel blocks. A tile either had at least one ray
// hit this frame (live) or none (empty); the two resolve kernels write
// mutually exclusive tile sets.
const (
	TileWidth  = 16
	TileHeight = 16
)

func tilesAcross(pixels uint32) uint32 {
	return (pixels + TileWidth - 1) / TileWidth
}

func tilesDown(pixels uint32) uint32 {
	return (pixels + TileHeight - 1) / TileHeight
}

// TilePartition splits the image's tiles into the empty and live sets for
// one frame. Every tile index appears in exactly one of the two lists.
type TilePartition struct {
	Empty []uint32
	Live  []uint32
}

// PartitionTiles classifies tiles for the current frame. hitCounts, when
// non-nil, holds one per-tile hit count written by the traversal stage and
// is trusted as-is. Without hit counts the raw sample buffer is scanned:
// a tile is live iff any subsample of any of its pixels landed on a
// surface.
func PartitionTiles(arena *mem.Arena, layout *SampleLayout, samples []GBufferSample, hitCounts []uint32) TilePartition {
	wTiles := tilesAcross(layout.Width)
	hTiles := tilesDown(layout.Height)
	numTiles := int(wTiles) * int(hTiles)

	part := TilePartition{
		Empty: mem.NewSlice[[]uint32](arena, 0, numTiles),
		Live:  mem.NewSlice[[]uint32](arena, 0, numTiles),
	}
	for tile := 0; tile < numTiles; tile++ {
		live := false
		if hitCounts != nil {
			live = hitCounts[tile] != 0
		} else {
			live = tileHasHit(layout, samples, uint32(tile), wTiles)
		}
		if live {
			part.Live = append(part.Live, uint32(tile))
		} else {
			part.Empty = append(part.Empty, uint32(tile))
		}
	}
	return part
}

func tileHasHit(layout *SampleLayout, samples []GBufferSample, tile, wTiles uint32) bool {
	tileX := tile % wTiles
	tileY := tile / wTiles
	for dy := uint32(0); dy < TileHeight; dy++ {
		y := tileY*TileHeight + dy
		if y >= layout.Height {
			break
		}
		for dx := uint32(0); dx < TileWidth; dx++ {
			x := tileX*TileWidth + dx
			if x >= layout.Width {
				break
			}
			r := layout.Ranges[y*layout.Width+x]
			for s := r.Start; s < r.Start+r.Count; s++ {
				if samples[s].Key != MissKey {
					return true
				}
			}
		}
	}
	return false
}
