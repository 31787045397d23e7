// Package mosaic runs the full stitching pipeline: load an acquisition,
// normalise tile positions, partition the mosaic into blocks, fuse every
// block in parallel and persist the result.
package mosaic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"mosaicfuse/internal/models"
	"mosaicfuse/pkg/acquisition"
	"mosaicfuse/pkg/chunking"
	"mosaicfuse/pkg/config"
	"mosaicfuse/pkg/preview"
	"mosaicfuse/pkg/stitching"
	"mosaicfuse/pkg/store"
)

// Metrics summarises a finished mosaic.
type Metrics struct {
	// Tiles is the number of input tiles.
	Tiles int

	// Blocks and EmptyBlocks count assembled blocks and those no tile touched.
	Blocks      int
	EmptyBlocks int

	// Coverage is the fraction of mosaic pixels with a non-zero value.
	Coverage float64

	// Mean and StdDev of all mosaic pixels.
	Mean   float64
	StdDev float64

	// Elapsed is the wall time of block assembly.
	Elapsed time.Duration
}

// Params holds the inputs of one stitching run.
type Params struct {
	// ManifestPath points at an acquisition manifest. Ignored when Tiles is set.
	ManifestPath string

	// Well restricts the run to one well of the manifest. Empty uses all tiles.
	Well string

	// Tiles supplies tiles directly instead of reading a manifest.
	Tiles []models.Tile

	// DType of the input tiles when Tiles is set. Defaults to uint16.
	DType models.DType

	// OutputDir receives the block store. Empty keeps the mosaic in memory.
	OutputDir string

	// PreviewDir receives one image per plane when previews are enabled.
	PreviewDir string

	Config *config.Config
}

// Stitcher assembles a mosaic from positioned tiles.
type Stitcher struct {
	params *Params

	// tiles after origin normalisation
	tiles []models.Tile
	dtype models.DType

	grid    *chunking.Grid
	tileMap models.TileMap
	store   store.Store

	metrics Metrics
}

// NewStitcher creates a stitcher. A nil config is replaced by the defaults.
func NewStitcher(params *Params) *Stitcher {
	if params.Config == nil {
		params.Config = config.DefaultConfig()
	}
	return &Stitcher{params: params}
}

func (s *Stitcher) logf(format string, args ...any) {
	if s.params.Config.Output.Verbose {
		fmt.Printf(format, args...)
	}
}

// Process runs the complete stitching pipeline
func (s *Stitcher) Process(ctx context.Context) error {
	cfg := s.params.Config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Resolve the fusion policy before any block work begins
	fuse, err := stitching.FusionByName(cfg.Processing.Fusion)
	if err != nil {
		return err
	}

	s.logf("Step 1: Loading tiles...\n")
	tiles, err := s.loadTiles()
	if err != nil {
		return fmt.Errorf("failed to load tiles: %w", err)
	}

	s.logf("Step 2: Shifting %d tiles to the mosaic origin...\n", len(tiles))
	s.tiles, err = stitching.ShiftToOrigin(tiles)
	if err != nil {
		return fmt.Errorf("failed to normalise tile positions: %w", err)
	}

	s.logf("Step 3: Partitioning mosaic into blocks...\n")
	s.grid, err = chunking.NewGrid(s.tiles, cfg.Processing.ChunkHeight, cfg.Processing.ChunkWidth)
	if err != nil {
		return fmt.Errorf("failed to build block grid: %w", err)
	}
	s.tileMap, err = chunking.BuildTileMap(s.grid, s.tiles)
	if err != nil {
		return fmt.Errorf("failed to map tiles to blocks: %w", err)
	}
	s.logf("Mosaic shape %v, %d blocks of %dx%d\n", s.grid.Shape, len(s.grid.Blocks()), cfg.Processing.ChunkHeight, cfg.Processing.ChunkWidth)

	if err := s.openStore(); err != nil {
		return err
	}

	s.logf("Step 4: Fusing blocks with %s fusion...\n", cfg.Processing.Fusion)
	start := time.Now()
	stats, err := chunking.Run(ctx, s.grid, s.tileMap, chunking.Options{
		Workers: cfg.Processing.NumWorkers,
		Warp:    stitching.TranslateTiles,
		Fuse:    fuse,
		DType:   s.dtype,
		Progress: func(done, total int) {
			s.logf("\rAssembling blocks: %.1f%% complete", float64(done)/float64(total)*100)
		},
	}, s.store)
	s.logf("\n")
	if err != nil {
		return fmt.Errorf("failed to assemble mosaic: %w", err)
	}

	s.metrics = Metrics{
		Tiles:       len(s.tiles),
		Blocks:      stats.Blocks,
		EmptyBlocks: stats.EmptyBlocks,
		Elapsed:     time.Since(start),
	}

	s.logf("Step 5: Calculating mosaic metrics...\n")
	if err := s.calculateMetrics(); err != nil {
		return fmt.Errorf("failed to calculate metrics: %w", err)
	}

	if cfg.Output.SavePreviews {
		s.logf("Step 6: Saving plane previews...\n")
		if err := s.savePreviews(); err != nil {
			fmt.Printf("Warning: Failed to save previews: %v\n", err)
		}
	}

	return nil
}

func (s *Stitcher) loadTiles() ([]models.Tile, error) {
	if len(s.params.Tiles) > 0 {
		s.dtype = s.params.DType
		if s.dtype == 0 {
			s.dtype = models.Uint16
		}
		return s.overrideDType(s.params.Tiles)
	}

	if s.params.ManifestPath == "" {
		return nil, errors.New("no tiles and no manifest given")
	}
	manifest, err := acquisition.LoadManifest(s.params.ManifestPath)
	if err != nil {
		return nil, err
	}
	s.dtype = manifest.SampleType()

	tiles, err := manifest.TilesForWell(s.params.Well)
	if err != nil {
		return nil, err
	}
	s.logf("Loaded %d tiles from %s (dtype %s)\n", len(tiles), filepath.Base(s.params.ManifestPath), s.dtype)
	return s.overrideDType(tiles)
}

func (s *Stitcher) overrideDType(tiles []models.Tile) ([]models.Tile, error) {
	if name := s.params.Config.Processing.DType; name != "" {
		dtype, err := models.ParseDType(name)
		if err != nil {
			return nil, err
		}
		s.dtype = dtype
	}
	return tiles, nil
}

func (s *Stitcher) openStore() error {
	meta := store.NewMeta(s.grid, s.dtype)
	if s.params.OutputDir == "" {
		s.store = store.NewMemoryStore(meta)
		return nil
	}

	dirStore, err := store.CreateDirStore(s.params.OutputDir, meta, s.params.Config.Output.CompressionLevel)
	if err != nil {
		return fmt.Errorf("failed to create block store: %w", err)
	}
	s.store = dirStore
	return nil
}

// calculateMetrics reads the finished mosaic back one block at a time and
// merges per-block moments, so at most one block is held in memory.
func (s *Stitcher) calculateMetrics() error {
	var acc moments
	for _, loc := range s.grid.Blocks() {
		block, err := s.store.ReadBlock(loc)
		if err != nil {
			return fmt.Errorf("failed to read block %s: %w", loc.Key(), err)
		}
		acc.add(block.Data)
	}

	if acc.n == 0 {
		return nil
	}
	s.metrics.Coverage = float64(acc.nonZero) / acc.n
	s.metrics.Mean, s.metrics.StdDev = acc.meanStdDev()
	return nil
}

// moments accumulates pixel statistics over blocks using the pairwise
// update of Chan et al.
type moments struct {
	n       float64
	sum     float64
	m2      float64
	nonZero int
}

func (m *moments) add(values []float64) {
	if len(values) == 0 {
		return
	}
	n := float64(len(values))
	mean, variance := stat.MeanVariance(values, nil)
	m2 := 0.0
	if len(values) > 1 {
		m2 = variance * (n - 1)
	}

	if m.n > 0 {
		delta := mean - m.sum/m.n
		m2 += delta * delta * m.n * n / (m.n + n)
	}
	m.m2 += m2
	m.n += n
	m.sum += floats.Sum(values)
	m.nonZero += floats.Count(func(v float64) bool { return v != 0 }, values)
}

// meanStdDev returns the mean and the unbiased standard deviation, matching
// stat.MeanStdDev over the concatenated values.
func (m *moments) meanStdDev() (float64, float64) {
	mean := m.sum / m.n
	if m.n < 2 {
		return mean, math.NaN()
	}
	return mean, math.Sqrt(m.m2 / (m.n - 1))
}

func (s *Stitcher) savePreviews() error {
	dir := s.params.PreviewDir
	if dir == "" {
		if s.params.OutputDir == "" {
			return errors.New("no preview directory")
		}
		dir = filepath.Join(s.params.OutputDir, "previews")
	}

	viewer, err := preview.NewViewer(s.store)
	if err != nil {
		return err
	}
	written, err := viewer.SavePlaneSequence(dir)
	if err != nil {
		return err
	}
	s.logf("Saved %d previews to %s\n", len(written), dir)
	return nil
}

// GetMetrics returns the metrics of the last successful Process call
func (s *Stitcher) GetMetrics() Metrics {
	return s.metrics
}

// Store returns the mosaic store written by Process
func (s *Stitcher) Store() store.Store {
	return s.store
}

// Tiles returns the tiles after origin normalisation
func (s *Stitcher) Tiles() []models.Tile {
	return s.tiles
}
