package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Mask marks which pixels of a warped plane came from real tile data.
type Mask struct {
	Rows, Cols int
	Bits       []bool
}

// NewMask allocates an all-false mask.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, Bits: make([]bool, rows*cols)}
}

// At reports whether pixel (i, j) is foreground.
func (m *Mask) At(i, j int) bool {
	return m.Bits[i*m.Cols+j]
}

// Set marks pixel (i, j).
func (m *Mask) Set(i, j int, v bool) {
	m.Bits[i*m.Cols+j] = v
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Dense converts the mask to a 0/1 matrix.
func (m *Mask) Dense() *mat.Dense {
	data := make([]float64, len(m.Bits))
	for i, b := range m.Bits {
		if b {
			data[i] = 1
		}
	}
	return mat.NewDense(m.Rows, m.Cols, data)
}

// Stack holds the tiles of one block after they were warped into the block's
// frame, together with their foreground masks. Tiles[i] and Masks[i] belong
// to the same input tile.
type Stack struct {
	DType DType
	Rows  int
	Cols  int
	Tiles []*mat.Dense
	Masks []*Mask
}

// Len returns the number of tiles in the stack.
func (s *Stack) Len() int {
	return len(s.Tiles)
}

// Location indexes one block of the mosaic in (t, c, z, y, x) block units.
type Location [5]int

// Key renders the location the way chunk files are named, e.g. "0.0.0.3.1".
func (l Location) Key() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d", l[0], l[1], l[2], l[3], l[4])
}

// TileMap lists, per block location, the tiles whose footprint intersects
// that block. It is read-only once built.
type TileMap map[Location][]Tile

// Block is the pixel content of one mosaic block, stored row-major over a
// 5-D shape. Values are already narrowed to DType.
type Block struct {
	Shape [5]int
	DType DType
	Data  []float64
}

// NewBlock allocates a zero-filled block.
func NewBlock(shape [5]int, dtype DType) *Block {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Block{Shape: shape, DType: dtype, Data: make([]float64, n)}
}

// Plane returns a view of the yx plane of a block whose leading dimensions
// are all 1. The returned matrix shares storage with the block.
func (b *Block) Plane() (*mat.Dense, error) {
	if b.Shape[0] != 1 || b.Shape[1] != 1 || b.Shape[2] != 1 {
		return nil, fmt.Errorf("block shape %v has non-singleton leading dimensions", b.Shape)
	}
	return mat.NewDense(b.Shape[3], b.Shape[4], b.Data), nil
}
