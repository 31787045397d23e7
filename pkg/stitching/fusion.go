package stitching

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"mosaicfuse/internal/models"
)

// ErrUnknownFusion is returned by FusionByName for unsupported policies.
var ErrUnknownFusion = errors.New("stitching: unknown fusion method")

// FuseFunc combines a stack of warped tiles into one plane of the stack's
// shape, narrowed to the stack's dtype.
type FuseFunc func(stack *models.Stack) *mat.Dense

// Fusion method names accepted by FusionByName.
const (
	FusionLinear = "linear"
	FusionMean   = "mean"
	FusionSum    = "sum"
)

var fusions = map[string]FuseFunc{
	FusionLinear: FuseLinear,
	FusionMean:   FuseMean,
	FusionSum:    FuseSum,
}

// FusionByName resolves a fusion policy. It should be called once, before
// any block is assembled.
func FusionByName(name string) (FuseFunc, error) {
	fuse, ok := fusions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownFusion, name, FusionNames())
	}
	return fuse, nil
}

// FusionNames lists the supported fusion policies in sorted order.
func FusionNames() []string {
	names := make([]string, 0, len(fusions))
	for name := range fusions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FuseLinear blends overlapping tiles with weights that grow with the
// distance from each tile's mask boundary, giving smooth transitions across
// seams. A single tile is weighted by its mask alone.
func FuseLinear(stack *models.Stack) *mat.Dense {
	var weights []*mat.Dense
	if stack.Len() > 1 {
		weights = make([]*mat.Dense, stack.Len())
		for i, mask := range stack.Masks {
			weights[i] = DistanceTransform(mask)
		}
		normalizeWeights(weights)
	} else {
		weights = maskWeights(stack)
	}
	return weightedSum(stack, weights)
}

// FuseMean averages the tiles covering each pixel. Uncovered pixels are 0.
func FuseMean(stack *models.Stack) *mat.Dense {
	weights := maskWeights(stack)
	normalizeWeights(weights)
	return weightedSum(stack, weights)
}

// FuseSum adds all tiles pixel by pixel. Masks are not consulted, so
// overlapping regions accumulate; this is meant for intensity sums rather
// than seamless mosaics.
func FuseSum(stack *models.Stack) *mat.Dense {
	out := mat.NewDense(stack.Rows, stack.Cols, nil)
	for _, tile := range stack.Tiles {
		out.Add(out, tile)
	}
	return castPlane(out, stack.DType)
}

func maskWeights(stack *models.Stack) []*mat.Dense {
	weights := make([]*mat.Dense, len(stack.Masks))
	for i, mask := range stack.Masks {
		weights[i] = mask.Dense()
	}
	return weights
}

// normalizeWeights divides every weight by the per-pixel sum across tiles.
// Pixels where the sum is not positive get weight 0 in all tiles. Results
// go through sanitizeWeight.
func normalizeWeights(weights []*mat.Dense) {
	if len(weights) == 0 {
		return
	}
	rows, cols := weights[0].Dims()
	denominator := mat.NewDense(rows, cols, nil)
	for _, w := range weights {
		denominator.Add(denominator, w)
	}

	for _, w := range weights {
		w.Apply(func(i, j int, v float64) float64 {
			den := denominator.At(i, j)
			if !(den > 0) {
				return 0
			}
			return sanitizeWeight(v / den)
		}, w)
	}
}

// sanitizeWeight maps NaN and -Inf to 0, +Inf to 1 and clips to [0, 1].
func sanitizeWeight(v float64) float64 {
	switch {
	case math.IsNaN(v), math.IsInf(v, -1):
		return 0
	case math.IsInf(v, 1):
		return 1
	}
	return math.Min(math.Max(v, 0), 1)
}

func weightedSum(stack *models.Stack, weights []*mat.Dense) *mat.Dense {
	out := mat.NewDense(stack.Rows, stack.Cols, nil)
	term := mat.NewDense(stack.Rows, stack.Cols, nil)
	for i, tile := range stack.Tiles {
		term.MulElem(tile, weights[i])
		out.Add(out, term)
	}
	return castPlane(out, stack.DType)
}

func castPlane(m *mat.Dense, dtype models.DType) *mat.Dense {
	m.Apply(func(_, _ int, v float64) float64 {
		return dtype.Cast(v)
	}, m)
	return m
}
