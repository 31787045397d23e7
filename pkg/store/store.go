// Package store persists mosaic blocks. A store is a chunked 5-D array: its
// metadata names the full shape, the chunk shape and the sample type, and
// each block is stored under its location key.
package store

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"mosaicfuse/internal/models"
	"mosaicfuse/pkg/chunking"
)

// ErrBlockNotFound is returned when a block was never written.
var ErrBlockNotFound = errors.New("store: block not found")

// Meta describes a chunked mosaic array.
type Meta struct {
	Shape       []int  `yaml:"shape"`
	Chunks      []int  `yaml:"chunks"`
	DType       string `yaml:"dtype"`
	Compression string `yaml:"compression"`
	Level       int    `yaml:"level"`
}

// NewMeta derives the metadata for a grid.
func NewMeta(grid *chunking.Grid, dtype models.DType) Meta {
	return Meta{
		Shape:  append([]int(nil), grid.Shape[:]...),
		Chunks: []int{1, 1, 1, grid.ChunkShape[0], grid.ChunkShape[1]},
		DType:  dtype.String(),
	}
}

// Grid rebuilds the block grid described by the metadata.
func (m Meta) Grid() (*chunking.Grid, error) {
	if len(m.Shape) != 5 || len(m.Chunks) != 5 {
		return nil, fmt.Errorf("store: expected 5-D shape and chunks, got %v and %v", m.Shape, m.Chunks)
	}
	var shape [5]int
	copy(shape[:], m.Shape)
	return chunking.NewGridFromShape(shape, m.Chunks[3], m.Chunks[4])
}

// SampleType parses the metadata dtype.
func (m Meta) SampleType() (models.DType, error) {
	return models.ParseDType(m.DType)
}

// Store is a chunked block array. It satisfies chunking.Sink.
type Store interface {
	Meta() Meta
	WriteBlock(loc models.Location, block *models.Block) error
	ReadBlock(loc models.Location) (*models.Block, error)
}

// MemoryStore keeps blocks in memory. It is safe for concurrent use.
type MemoryStore struct {
	meta   Meta
	mu     sync.RWMutex
	blocks map[models.Location]*models.Block
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(meta Meta) *MemoryStore {
	meta.Compression = "none"
	return &MemoryStore{meta: meta, blocks: make(map[models.Location]*models.Block)}
}

func (s *MemoryStore) Meta() Meta {
	return s.meta
}

func (s *MemoryStore) WriteBlock(loc models.Location, block *models.Block) error {
	cp := *block
	cp.Data = append([]float64(nil), block.Data...)

	s.mu.Lock()
	s.blocks[loc] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ReadBlock(loc models.Location) (*models.Block, error) {
	s.mu.RLock()
	block, ok := s.blocks[loc]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, loc.Key())
	}
	cp := *block
	cp.Data = append([]float64(nil), block.Data...)
	return &cp, nil
}

// ReadPlane stitches the blocks of one (t, c, z) plane back into a full yx
// matrix.
func ReadPlane(s Store, t, c, z int) (*mat.Dense, error) {
	grid, err := s.Meta().Grid()
	if err != nil {
		return nil, err
	}
	if t < 0 || t >= grid.Shape[0] || c < 0 || c >= grid.Shape[1] || z < 0 || z >= grid.Shape[2] {
		return nil, fmt.Errorf("plane (t=%d c=%d z=%d) outside mosaic shape %v", t, c, z, grid.Shape)
	}

	plane := mat.NewDense(grid.Shape[3], grid.Shape[4], nil)
	n := grid.NumBlocks()
	for y := 0; y < n[3]; y++ {
		for x := 0; x < n[4]; x++ {
			loc := models.Location{t, c, z, y, x}
			block, err := s.ReadBlock(loc)
			if err != nil {
				return nil, err
			}
			src, err := block.Plane()
			if err != nil {
				return nil, err
			}
			origin := grid.Origin(loc)
			rows, cols := src.Dims()
			dst := plane.Slice(origin[0], origin[0]+rows, origin[1], origin[1]+cols).(*mat.Dense)
			dst.Copy(src)
		}
	}
	return plane, nil
}
