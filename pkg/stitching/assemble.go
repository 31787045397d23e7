package stitching

import (
	"fmt"

	"mosaicfuse/internal/models"
)

// BlockInfo describes the block to assemble: where it sits in the block grid,
// the mosaic coordinates of its first yx pixel, and its 5-D shape.
type BlockInfo struct {
	Location models.Location
	Origin   [2]int
	Shape    [5]int
}

// AssembleBlock produces the content of one block from the tiles the tile map
// lists for its location. A location without tiles yields a zero block of
// the requested shape and neither warp nor fuse is called.
//
// The result only depends on info, the tile map and the two functions, so
// blocks can be assembled concurrently and in any order.
func AssembleBlock(info BlockInfo, tileMap models.TileMap, warp WarpFunc, fuse FuseFunc, dtype models.DType) (*models.Block, error) {
	block := models.NewBlock(info.Shape, dtype)

	tiles := tileMap[info.Location]
	if len(tiles) == 0 {
		return block, nil
	}

	plane, err := block.Plane()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	yxShape := [2]int{info.Shape[3], info.Shape[4]}
	stack, err := warp(info.Origin, yxShape, dtype, tiles)
	if err != nil {
		return nil, fmt.Errorf("failed to warp tiles for block %s: %w", info.Location.Key(), err)
	}

	fused := fuse(stack)
	if r, c := fused.Dims(); r != yxShape[0] || c != yxShape[1] {
		return nil, fmt.Errorf("%w: fused %dx%d for block %v", ErrShapeMismatch, r, c, yxShape)
	}

	for r := 0; r < yxShape[0]; r++ {
		for c := 0; c < yxShape[1]; c++ {
			plane.Set(r, c, dtype.Cast(fused.At(r, c)))
		}
	}
	return block, nil
}
