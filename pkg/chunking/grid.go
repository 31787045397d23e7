// Package chunking partitions a mosaic into blocks, maps tiles onto the
// blocks they intersect and drives block assembly across a pool of workers.
package chunking

import (
	"fmt"

	"mosaicfuse/internal/models"
	"mosaicfuse/pkg/stitching"
)

// Grid is the block layout of a 5-D mosaic. Time, channel and z are chunked
// one index per block; y and x are chunked by ChunkShape, with edge blocks
// clipped to the mosaic.
type Grid struct {
	Shape      [5]int
	ChunkShape [2]int
}

// NewGrid builds the grid covering all tiles. Tiles must already be shifted
// to a non-negative origin.
func NewGrid(tiles []models.Tile, chunkHeight, chunkWidth int) (*Grid, error) {
	if len(tiles) == 0 {
		return nil, stitching.ErrNoTiles
	}

	var shape [5]int
	for _, tile := range tiles {
		pos := tile.Position
		if pos.Time < 0 || pos.Channel < 0 || pos.Z < 0 || pos.Y < 0 || pos.X < 0 {
			return nil, fmt.Errorf("tile at %v lies outside the non-negative mosaic frame", pos)
		}
		shape[0] = max(shape[0], pos.Time+1)
		shape[1] = max(shape[1], pos.Channel+1)
		shape[2] = max(shape[2], pos.Z+1)
		shape[3] = max(shape[3], pos.Y+tile.Shape.Height)
		shape[4] = max(shape[4], pos.X+tile.Shape.Width)
	}

	return NewGridFromShape(shape, chunkHeight, chunkWidth)
}

// NewGridFromShape builds a grid for a known mosaic shape.
func NewGridFromShape(shape [5]int, chunkHeight, chunkWidth int) (*Grid, error) {
	if chunkHeight <= 0 || chunkWidth <= 0 {
		return nil, fmt.Errorf("chunk shape must be positive, got %dx%d", chunkHeight, chunkWidth)
	}
	for k, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("mosaic dimension %d must be positive, got %d", k, s)
		}
	}
	return &Grid{Shape: shape, ChunkShape: [2]int{chunkHeight, chunkWidth}}, nil
}

// NumBlocks returns the number of blocks along each axis.
func (g *Grid) NumBlocks() [5]int {
	return [5]int{
		g.Shape[0],
		g.Shape[1],
		g.Shape[2],
		ceilDiv(g.Shape[3], g.ChunkShape[0]),
		ceilDiv(g.Shape[4], g.ChunkShape[1]),
	}
}

// Blocks enumerates every block location in row-major order.
func (g *Grid) Blocks() []models.Location {
	n := g.NumBlocks()
	locs := make([]models.Location, 0, n[0]*n[1]*n[2]*n[3]*n[4])
	for t := 0; t < n[0]; t++ {
		for c := 0; c < n[1]; c++ {
			for z := 0; z < n[2]; z++ {
				for y := 0; y < n[3]; y++ {
					for x := 0; x < n[4]; x++ {
						locs = append(locs, models.Location{t, c, z, y, x})
					}
				}
			}
		}
	}
	return locs
}

// Contains reports whether loc is a valid block of the grid.
func (g *Grid) Contains(loc models.Location) bool {
	n := g.NumBlocks()
	for k := range loc {
		if loc[k] < 0 || loc[k] >= n[k] {
			return false
		}
	}
	return true
}

// Origin returns the mosaic yx coordinate of the block's first pixel.
func (g *Grid) Origin(loc models.Location) [2]int {
	return [2]int{loc[3] * g.ChunkShape[0], loc[4] * g.ChunkShape[1]}
}

// BlockShape returns the 5-D shape of the block at loc.
func (g *Grid) BlockShape(loc models.Location) [5]int {
	origin := g.Origin(loc)
	return [5]int{
		1, 1, 1,
		min(g.ChunkShape[0], g.Shape[3]-origin[0]),
		min(g.ChunkShape[1], g.Shape[4]-origin[1]),
	}
}

// Info bundles what AssembleBlock needs to know about loc.
func (g *Grid) Info(loc models.Location) stitching.BlockInfo {
	return stitching.BlockInfo{
		Location: loc,
		Origin:   g.Origin(loc),
		Shape:    g.BlockShape(loc),
	}
}

// BuildTileMap lists for every block the tiles intersecting it, keeping the
// input order of tiles within each list. Blocks without tiles have no entry.
func BuildTileMap(g *Grid, tiles []models.Tile) (models.TileMap, error) {
	tileMap := make(models.TileMap)
	for _, tile := range tiles {
		pos := tile.Position
		if tile.Shape.Height <= 0 || tile.Shape.Width <= 0 {
			return nil, fmt.Errorf("tile at %v has empty shape %v", pos, tile.Shape)
		}

		first := models.Location{pos.Time, pos.Channel, pos.Z, pos.Y / g.ChunkShape[0], pos.X / g.ChunkShape[1]}
		if !g.Contains(first) {
			return nil, fmt.Errorf("tile at %v lies outside the grid", pos)
		}

		n := g.NumBlocks()
		lastY := min((pos.Y+tile.Shape.Height-1)/g.ChunkShape[0], n[3]-1)
		lastX := min((pos.X+tile.Shape.Width-1)/g.ChunkShape[1], n[4]-1)
		for y := first[3]; y <= lastY; y++ {
			for x := first[4]; x <= lastX; x++ {
				loc := models.Location{first[0], first[1], first[2], y, x}
				tileMap[loc] = append(tileMap[loc], tile)
			}
		}
	}
	return tileMap, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
