package acquisition

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrjoshuak/go-jpeg2000"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

// FileLoader decodes a single-channel tile image from disk each time
// LoadData is called. TIFF, PNG and JPEG 2000 files are supported; colour
// images are reduced to 16-bit gray.
type FileLoader struct {
	Path string
}

// LoadData decodes the file into a matrix of gray values.
func (l FileLoader) LoadData() (*mat.Dense, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := decodeImage(f, filepath.Ext(l.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", l.Path, err)
	}
	return imageToDense(img), nil
}

func decodeImage(r io.Reader, ext string) (image.Image, error) {
	switch strings.ToLower(ext) {
	case ".tif", ".tiff":
		return tiff.Decode(r)
	case ".png":
		return png.Decode(r)
	case ".j2k", ".jp2", ".j2c":
		return jpeg2000.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported tile format %q", ext)
	}
}

func imageToDense(img image.Image) *mat.Dense {
	b := img.Bounds()
	out := mat.NewDense(b.Dy(), b.Dx(), nil)

	switch src := img.(type) {
	case *image.Gray16:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out.Set(y-b.Min.Y, x-b.Min.X, float64(src.Gray16At(x, y).Y))
			}
		}
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out.Set(y-b.Min.Y, x-b.Min.X, float64(src.GrayAt(x, y).Y))
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
				out.Set(y-b.Min.Y, x-b.Min.X, float64(g.Y))
			}
		}
	}
	return out
}
