// Package stitching fuses overlapping, positioned tiles into mosaic blocks.
//
// A mosaic is produced block by block: for each block the tiles that
// intersect it are translated into the block's frame (TranslateTiles),
// combined by a fusion policy (FuseLinear, FuseMean, FuseSum) and written out
// as one block (AssembleBlock). Blocks do not share state, so callers may
// assemble them in any order and in parallel.
package stitching

import (
	"errors"

	"mosaicfuse/internal/models"
)

// ErrNoTiles is returned when an operation needs at least one tile.
var ErrNoTiles = errors.New("stitching: no tiles")

// ShiftToOrigin moves all tiles so that the component-wise minimum position
// becomes (0, 0, 0, 0, 0). Relative offsets, shapes and order are kept, and
// the input slice is left untouched.
func ShiftToOrigin(tiles []models.Tile) ([]models.Tile, error) {
	if len(tiles) == 0 {
		return nil, ErrNoTiles
	}

	minPos := tiles[0].Position.Array()
	for _, tile := range tiles[1:] {
		pos := tile.Position.Array()
		for k := range minPos {
			minPos[k] = min(minPos[k], pos[k])
		}
	}

	shifted := make([]models.Tile, len(tiles))
	for i, tile := range tiles {
		pos := tile.Position.Array()
		for k := range pos {
			pos[k] -= minPos[k]
		}
		shifted[i] = tile.WithPosition(models.PositionFromArray(pos))
	}
	return shifted, nil
}
