package mosaic

import (
	"context"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"mosaicfuse/internal/models"
	"mosaicfuse/pkg/acquisition"
	"mosaicfuse/pkg/config"
	"mosaicfuse/pkg/store"
)

// constTile creates an in-memory tile filled with a single value
func constTile(y, x, height, width int, value float64) models.Tile {
	data := mat.NewDense(height, width, nil)
	data.Apply(func(_, _ int, _ float64) float64 { return value }, data)
	return models.NewTile(models.Position{Y: y, X: x}, models.Shape{Height: height, Width: width}, models.DenseLoader{Data: data})
}

// quietConfig returns defaults with logging disabled
func quietConfig(fusion string, chunkHeight, chunkWidth int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Processing.Fusion = fusion
	cfg.Processing.ChunkHeight = chunkHeight
	cfg.Processing.ChunkWidth = chunkWidth
	cfg.Processing.NumWorkers = 3
	cfg.Output.Verbose = false
	return cfg
}

// TestProcessMeanExample verifies the two-tile example across several block sizes
func TestProcessMeanExample(t *testing.T) {
	for _, chunk := range [][2]int{{4, 6}, {2, 2}, {3, 5}, {1, 1}} {
		// positions are offset so the origin has to be normalised first
		stitcher := NewStitcher(&Params{
			Tiles: []models.Tile{
				constTile(-3, 7, 4, 4, 10),
				constTile(-3, 9, 4, 4, 20),
			},
			DType:  models.Uint16,
			Config: quietConfig("mean", chunk[0], chunk[1]),
		})

		if err := stitcher.Process(context.Background()); err != nil {
			t.Fatalf("Process failed for chunk %v: %v", chunk, err)
		}

		plane, err := store.ReadPlane(stitcher.Store(), 0, 0, 0)
		if err != nil {
			t.Fatalf("ReadPlane failed: %v", err)
		}
		rows, cols := plane.Dims()
		if rows != 4 || cols != 6 {
			t.Fatalf("Expected 4x6 mosaic, got %dx%d", rows, cols)
		}

		want := []float64{10, 10, 15, 15, 20, 20}
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				if plane.At(r, c) != want[c] {
					t.Errorf("Chunk %v pixel (%d,%d): expected %v, got %v", chunk, r, c, want[c], plane.At(r, c))
				}
			}
		}

		metrics := stitcher.GetMetrics()
		if metrics.Tiles != 2 || metrics.Coverage != 1 || metrics.Mean != 15 {
			t.Errorf("Unexpected metrics for chunk %v: %+v", chunk, metrics)
		}
		if stitcher.Tiles()[0].Position.Y != 0 || stitcher.Tiles()[0].Position.X != 0 {
			t.Errorf("Expected first tile at origin, got %v", stitcher.Tiles()[0].Position)
		}
	}
}

// TestProcessBlockIndependence verifies sum fusion gives the same mosaic for any block layout
func TestProcessBlockIndependence(t *testing.T) {
	tiles := []models.Tile{
		constTile(0, 0, 5, 5, 100),
		constTile(3, 3, 5, 5, 200),
		constTile(10, 10, 2, 2, 50),
	}

	run := func(chunkHeight, chunkWidth int) *mat.Dense {
		stitcher := NewStitcher(&Params{Tiles: tiles, DType: models.Float64, Config: quietConfig("sum", chunkHeight, chunkWidth)})
		if err := stitcher.Process(context.Background()); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		plane, err := store.ReadPlane(stitcher.Store(), 0, 0, 0)
		if err != nil {
			t.Fatalf("ReadPlane failed: %v", err)
		}

		metrics := stitcher.GetMetrics()
		if metrics.EmptyBlocks == 0 && chunkHeight < 6 {
			t.Errorf("Expected empty blocks for chunk %dx%d", chunkHeight, chunkWidth)
		}
		return plane
	}

	whole := run(12, 12)
	if whole.At(4, 4) != 300 {
		t.Errorf("Expected sum 300 in the overlap, got %v", whole.At(4, 4))
	}
	if whole.At(9, 9) != 0 {
		t.Errorf("Expected uncovered pixel to be 0, got %v", whole.At(9, 9))
	}
	if !mat.Equal(whole, run(4, 3)) {
		t.Error("Sum mosaic differs between block layouts")
	}
}

// TestProcessMetricsMatchWholeMosaic verifies block-wise metrics agree with
// statistics over the whole mosaic read back at once
func TestProcessMetricsMatchWholeMosaic(t *testing.T) {
	ramp := func(y, x, height, width int, offset float64) models.Tile {
		data := mat.NewDense(height, width, nil)
		data.Apply(func(i, j int, _ float64) float64 { return offset + float64(3*i+j) }, data)
		return models.NewTile(models.Position{Y: y, X: x}, models.Shape{Height: height, Width: width}, models.DenseLoader{Data: data})
	}
	tiles := []models.Tile{
		ramp(0, 0, 6, 7, 10),
		ramp(4, 5, 5, 6, 200),
		ramp(12, 1, 3, 3, 55),
	}

	for _, chunk := range [][2]int{{4, 5}, {1, 1}, {3, 16}} {
		stitcher := NewStitcher(&Params{Tiles: tiles, DType: models.Float64, Config: quietConfig("linear", chunk[0], chunk[1])})
		if err := stitcher.Process(context.Background()); err != nil {
			t.Fatalf("Process failed for chunk %v: %v", chunk, err)
		}

		plane, err := store.ReadPlane(stitcher.Store(), 0, 0, 0)
		if err != nil {
			t.Fatalf("ReadPlane failed: %v", err)
		}
		values := plane.RawMatrix().Data
		wantMean, wantStd := stat.MeanStdDev(values, nil)
		wantCoverage := float64(floats.Count(func(v float64) bool { return v != 0 }, values)) / float64(len(values))

		metrics := stitcher.GetMetrics()
		if math.Abs(metrics.Mean-wantMean) > 1e-9 {
			t.Errorf("Chunk %v: expected mean %v, got %v", chunk, wantMean, metrics.Mean)
		}
		if math.Abs(metrics.StdDev-wantStd) > 1e-9 {
			t.Errorf("Chunk %v: expected stddev %v, got %v", chunk, wantStd, metrics.StdDev)
		}
		if metrics.Coverage != wantCoverage {
			t.Errorf("Chunk %v: expected coverage %v, got %v", chunk, wantCoverage, metrics.Coverage)
		}
		if metrics.Coverage >= 1 {
			t.Errorf("Chunk %v: expected gaps in the mosaic, got coverage %v", chunk, metrics.Coverage)
		}
	}
}

// TestMomentsMerge verifies merged moments equal those of the concatenated values
func TestMomentsMerge(t *testing.T) {
	parts := [][]float64{{4}, {1, 2, 3}, {}, {10, 0, 0, 7, 5}, {-2}}

	var acc moments
	var all []float64
	for _, p := range parts {
		acc.add(p)
		all = append(all, p...)
	}

	wantMean, wantStd := stat.MeanStdDev(all, nil)
	mean, std := acc.meanStdDev()
	if math.Abs(mean-wantMean) > 1e-12 || math.Abs(std-wantStd) > 1e-12 {
		t.Errorf("Expected mean %v stddev %v, got %v and %v", wantMean, wantStd, mean, std)
	}
	if acc.nonZero != 8 {
		t.Errorf("Expected 8 non-zero values, got %d", acc.nonZero)
	}
}

// TestProcessRejectsUnknownFusion verifies the policy is checked before any work
func TestProcessRejectsUnknownFusion(t *testing.T) {
	loads := 0
	tile := models.NewTile(models.Position{}, models.Shape{Height: 2, Width: 2}, models.LoaderFunc(func() (*mat.Dense, error) {
		loads++
		return mat.NewDense(2, 2, nil), nil
	}))

	stitcher := NewStitcher(&Params{Tiles: []models.Tile{tile}, Config: quietConfig("median", 2, 2)})
	if err := stitcher.Process(context.Background()); err == nil {
		t.Fatal("Expected error for unknown fusion")
	}
	if loads != 0 {
		t.Errorf("Expected no tile loads, got %d", loads)
	}
}

// TestProcessManifest runs the pipeline from files on disk into a directory store
func TestProcessManifest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file-backed pipeline test in short mode")
	}

	dir := t.TempDir()
	for i, name := range []string{"s1.tif", "s2.tif"} {
		img := image.NewGray16(image.Rect(0, 0, 8, 6))
		for y := 0; y < 6; y++ {
			for x := 0; x < 8; x++ {
				img.SetGray16(x, y, color.Gray16{Y: uint16(1000 * (i + 1))})
			}
		}
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Failed to create tile: %v", err)
		}
		if err := tiff.Encode(f, img, nil); err != nil {
			t.Fatalf("Failed to encode tile: %v", err)
		}
		f.Close()
	}

	manifestPath := filepath.Join(dir, "manifest.yaml")
	err := acquisition.SaveManifest(&acquisition.Manifest{
		Name:  "test",
		DType: "uint16",
		Tiles: []acquisition.TileEntry{
			{Path: "s1.tif", Well: "B02", Field: "s1", Y: 100, X: 100},
			{Path: "s2.tif", Well: "B02", Field: "s2", Y: 100, X: 104},
		},
	}, manifestPath)
	if err != nil {
		t.Fatalf("Failed to save manifest: %v", err)
	}

	cfg := quietConfig("linear", 4, 4)
	cfg.Output.SavePreviews = true
	outputDir := filepath.Join(dir, "mosaic")
	stitcher := NewStitcher(&Params{ManifestPath: manifestPath, Well: "B02", OutputDir: outputDir, Config: cfg})
	if err := stitcher.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	reopened, err := store.OpenDirStore(outputDir)
	if err != nil {
		t.Fatalf("OpenDirStore failed: %v", err)
	}
	plane, err := store.ReadPlane(reopened, 0, 0, 0)
	if err != nil {
		t.Fatalf("ReadPlane failed: %v", err)
	}
	rows, cols := plane.Dims()
	if rows != 6 || cols != 12 {
		t.Fatalf("Expected 6x12 mosaic, got %dx%d", rows, cols)
	}
	if plane.At(3, 0) != 1000 || plane.At(3, 11) != 2000 {
		t.Errorf("Unexpected non-overlap values %v and %v", plane.At(3, 0), plane.At(3, 11))
	}
	for c := 4; c < 8; c++ {
		v := plane.At(3, c)
		if v < 1000 || v > 2000 {
			t.Errorf("Blended value %v at column %d outside tile range", v, c)
		}
	}

	if _, err := os.Stat(filepath.Join(outputDir, "previews", "plane_t000_c000_z000.tif")); err != nil {
		t.Errorf("Expected preview file: %v", err)
	}
}
