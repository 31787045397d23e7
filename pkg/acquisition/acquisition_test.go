package acquisition

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

// writeGrayTile writes a 16-bit gray image whose pixel (x, y) holds base+10*y+x
func writeGrayTile(t *testing.T, path string, width, height int, base uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: base + uint16(10*y+x)})
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	switch filepath.Ext(path) {
	case ".png":
		require.NoError(t, png.Encode(f, img))
	default:
		require.NoError(t, tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}))
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeGrayTile(t, filepath.Join(dir, "a.tif"), 4, 3, 100)
	writeGrayTile(t, filepath.Join(dir, "b.png"), 4, 3, 200)
	writeGrayTile(t, filepath.Join(dir, "c.tif"), 2, 2, 300)

	m := &Manifest{
		Name:  "plate",
		DType: "uint16",
		Tiles: []TileEntry{
			{Path: "a.tif", Well: "C05", Field: "s1", Y: 10, X: 20},
			{Path: "b.png", Well: "C05", Field: "s2", Y: 10, X: 22, Height: 3, Width: 4},
			{Path: "c.tif", Well: "C06", Field: "s1", Channel: 1},
		},
	}
	manifestPath := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, SaveManifest(m, manifestPath))

	loaded, err := LoadManifest(manifestPath)
	require.NoError(t, err)
	require.Equal(t, "plate", loaded.Name)
	require.Equal(t, []string{"C05", "C06"}, loaded.Wells())

	tiles, err := loaded.TilesForWell("C05")
	require.NoError(t, err)
	require.Len(t, tiles, 2)

	require.Equal(t, 3, tiles[0].Shape.Height, "shape is probed from the file")
	require.Equal(t, 4, tiles[0].Shape.Width)
	require.Equal(t, 20, tiles[0].Position.X)
	require.Equal(t, "s2", tiles[1].Field)

	data, err := tiles[0].LoadData()
	require.NoError(t, err)
	require.Equal(t, 100.0, data.At(0, 0))
	require.Equal(t, 123.0, data.At(2, 3))

	data, err = tiles[1].LoadData()
	require.NoError(t, err)
	require.Equal(t, 211.0, data.At(1, 1))

	all, err := loaded.TilesForWell("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 1, all[2].Position.Channel)

	_, err = loaded.TilesForWell("D01")
	require.Error(t, err)
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadManifest(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("name: x\ntiles: []\n"), 0644))
	_, err = LoadManifest(empty)
	require.Error(t, err)

	badType := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badType, []byte("dtype: int7\ntiles:\n  - path: a.tif\n"), 0644))
	_, err = LoadManifest(badType)
	require.Error(t, err)
}

func TestFileLoaderUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.bmp")
	require.NoError(t, os.WriteFile(path, []byte("BM"), 0644))

	_, err := FileLoader{Path: path}.LoadData()
	require.Error(t, err)

	_, err = FileLoader{Path: filepath.Join(t.TempDir(), "nope.tif")}.LoadData()
	require.Error(t, err)
}
