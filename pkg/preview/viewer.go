package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/floats"

	"mosaicfuse/pkg/store"
)

// Viewer renders planes of a stored mosaic as 16-bit gray images
type Viewer struct {
	// store holds the mosaic blocks
	store store.Store

	// shape of the mosaic in (t, c, z, y, x)
	shape [5]int
}

// NewViewer creates a viewer over a mosaic store
func NewViewer(s store.Store) (*Viewer, error) {
	grid, err := s.Meta().Grid()
	if err != nil {
		return nil, err
	}
	return &Viewer{store: s, shape: grid.Shape}, nil
}

// ExtractPlane reads the (t, c, z) plane and stretches its value range onto
// 0..65535. A constant plane renders black.
func (v *Viewer) ExtractPlane(t, c, z int) (*image.Gray16, error) {
	plane, err := store.ReadPlane(v.store, t, c, z)
	if err != nil {
		return nil, err
	}

	rows, cols := plane.Dims()
	data := plane.RawMatrix().Data
	lo, hi := floats.Min(data), floats.Max(data)
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}

	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			value := math.Max(0, math.Min(65535, (plane.At(y, x)-lo)*scale))
			img.SetGray16(x, y, color.Gray16{Y: uint16(value)})
		}
	}
	return img, nil
}

// SavePlane writes an image as TIFF or PNG depending on the file extension
func (v *Viewer) SavePlane(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		return tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	case ".png":
		return png.Encode(file, img)
	default:
		return fmt.Errorf("unsupported preview format: %s", filename)
	}
}

// SavePlaneSequence writes every (t, c, z) plane of the mosaic to outputDir
func (v *Viewer) SavePlaneSequence(outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var written []string
	for t := 0; t < v.shape[0]; t++ {
		for c := 0; c < v.shape[1]; c++ {
			for z := 0; z < v.shape[2]; z++ {
				img, err := v.ExtractPlane(t, c, z)
				if err != nil {
					return written, err
				}

				filename := filepath.Join(outputDir, fmt.Sprintf("plane_t%03d_c%03d_z%03d.tif", t, c, z))
				if err := v.SavePlane(img, filename); err != nil {
					return written, err
				}
				written = append(written, filename)
			}
		}
	}

	return written, nil
}
