package models

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrNoLoader is returned when a tile has no pixel source attached.
var ErrNoLoader = errors.New("models: tile has no loader")

// Position is the top-left corner of a tile in (time, channel, z, y, x) space.
// Y and X are mosaic pixel coordinates, the leading three axes are indices.
type Position struct {
	Time    int
	Channel int
	Z       int
	Y       int
	X       int
}

// Array returns the position as a 5-vector in (t, c, z, y, x) order.
func (p Position) Array() [5]int {
	return [5]int{p.Time, p.Channel, p.Z, p.Y, p.X}
}

// YX returns only the spatial part of the position.
func (p Position) YX() [2]int {
	return [2]int{p.Y, p.X}
}

// PositionFromArray is the inverse of Position.Array.
func PositionFromArray(a [5]int) Position {
	return Position{Time: a[0], Channel: a[1], Z: a[2], Y: a[3], X: a[4]}
}

func (p Position) String() string {
	return fmt.Sprintf("(t=%d c=%d z=%d y=%d x=%d)", p.Time, p.Channel, p.Z, p.Y, p.X)
}

// Shape is the height and width of a tile's 2D pixel data.
type Shape struct {
	Height int
	Width  int
}

// Loader produces the raw pixel plane of a tile. Implementations must be
// safe to call repeatedly and from several goroutines.
type Loader interface {
	LoadData() (*mat.Dense, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func() (*mat.Dense, error)

// LoadData calls f.
func (f LoaderFunc) LoadData() (*mat.Dense, error) {
	return f()
}

// DenseLoader serves an in-memory plane. Each call returns a fresh copy so
// callers can't alter the source.
type DenseLoader struct {
	Data *mat.Dense
}

// LoadData returns a copy of the held plane.
func (l DenseLoader) LoadData() (*mat.Dense, error) {
	if l.Data == nil {
		return nil, ErrNoLoader
	}
	return mat.DenseCopyOf(l.Data), nil
}

// Tile is one acquired 2D image placed in the mosaic.
//
// Tiles are passed by value. Code that needs a tile at a different position
// builds a new value with WithPosition instead of mutating a shared one.
type Tile struct {
	// Position of the tile's top-left corner in the current coordinate frame.
	Position Position

	// Shape of the pixel data returned by LoadData.
	Shape Shape

	// Identifiers carried through from the acquisition, not used by fusion.
	Well  string
	Field string
	Path  string

	loader Loader
}

// NewTile creates a tile backed by the given loader.
func NewTile(pos Position, shape Shape, loader Loader) Tile {
	return Tile{Position: pos, Shape: shape, loader: loader}
}

// LoadData loads the tile's pixel plane.
func (t Tile) LoadData() (*mat.Dense, error) {
	if t.loader == nil {
		return nil, ErrNoLoader
	}
	return t.loader.LoadData()
}

// WithPosition returns a copy of t placed at pos.
func (t Tile) WithPosition(pos Position) Tile {
	t.Position = pos
	return t
}

// Intersects reports whether the tile's yx footprint overlaps the rectangle
// starting at origin with the given height and width.
func (t Tile) Intersects(origin [2]int, height, width int) bool {
	return t.Position.Y < origin[0]+height && origin[0] < t.Position.Y+t.Shape.Height &&
		t.Position.X < origin[1]+width && origin[1] < t.Position.X+t.Shape.Width
}
