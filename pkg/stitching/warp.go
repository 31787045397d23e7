package stitching

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"mosaicfuse/internal/models"
)

// ErrShapeMismatch is returned when a block shape is empty or a fused plane
// does not have the shape of its block.
var ErrShapeMismatch = errors.New("stitching: warped shape does not match block shape")

// WarpFunc places tiles into the frame of a block with the given yx origin
// and yx shape.
type WarpFunc func(origin, shape [2]int, dtype models.DType, tiles []models.Tile) (*models.Stack, error)

// Translation is a rigid, translation-only transform mapping output pixel
// (r, c) to input pixel (r+Y, c+X).
type Translation struct {
	Y, X float64
}

// blockTranslation returns the transform taking block-local coordinates to
// tile-local coordinates.
func blockTranslation(blockOrigin, tileOrigin [2]int) Translation {
	return Translation{
		Y: float64(blockOrigin[0] - tileOrigin[0]),
		X: float64(blockOrigin[1] - tileOrigin[1]),
	}
}

// TranslateTiles loads every tile and resamples it, together with an all-true
// foreground mask, into a block of the given shape whose top-left pixel sits
// at origin in mosaic coordinates. Resampling is nearest-neighbour with a
// constant fill of 0 outside the tile.
//
// The work runs on the calling goroutine only and uses no multi-threaded
// numeric kernels; parallelism belongs to whoever schedules blocks.
func TranslateTiles(origin, shape [2]int, dtype models.DType, tiles []models.Tile) (*models.Stack, error) {
	if shape[0] <= 0 || shape[1] <= 0 {
		return nil, fmt.Errorf("%w: block shape %v", ErrShapeMismatch, shape)
	}

	stack := &models.Stack{
		DType: dtype,
		Rows:  shape[0],
		Cols:  shape[1],
		Tiles: make([]*mat.Dense, 0, len(tiles)),
		Masks: make([]*models.Mask, 0, len(tiles)),
	}

	for _, tile := range tiles {
		data, err := tile.LoadData()
		if err != nil {
			return nil, fmt.Errorf("failed to load tile at %v: %w", tile.Position, err)
		}

		tr := blockTranslation(origin, tile.Position.YX())
		warped, maskChannel := warpWithMask(data, tr, shape)

		warped.Apply(func(_, _ int, v float64) float64 {
			return dtype.Cast(v)
		}, warped)

		mask := models.NewMask(shape[0], shape[1])
		for i, v := range maskChannel {
			mask.Bits[i] = maskValue(v)
		}

		stack.Tiles = append(stack.Tiles, warped)
		stack.Masks = append(stack.Masks, mask)
	}

	return stack, nil
}

// warpWithMask resamples src and an implicit all-ones mask channel in a single
// pass so both share exactly the same geometry. The mask channel is returned
// row-major as raw floats.
func warpWithMask(src *mat.Dense, tr Translation, shape [2]int) (*mat.Dense, []float64) {
	srcRows, srcCols := src.Dims()
	out := mat.NewDense(shape[0], shape[1], nil)
	mask := make([]float64, shape[0]*shape[1])

	for r := 0; r < shape[0]; r++ {
		sr := nearest(float64(r) + tr.Y)
		if sr < 0 || sr >= srcRows {
			continue
		}
		for c := 0; c < shape[1]; c++ {
			sc := nearest(float64(c) + tr.X)
			if sc < 0 || sc >= srcCols {
				continue
			}
			out.Set(r, c, src.At(sr, sc))
			mask[r*shape[1]+c] = 1
		}
	}
	return out, mask
}

func nearest(v float64) int {
	return int(math.Floor(v + 0.5))
}

// maskValue converts a resampled mask sample to a boolean. NaN and -Inf are
// background, +Inf is foreground.
func maskValue(v float64) bool {
	switch {
	case math.IsNaN(v):
		return false
	case math.IsInf(v, 1):
		return true
	case math.IsInf(v, -1):
		return false
	}
	return v != 0
}
