package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"
	"gopkg.in/yaml.v3"

	"mosaicfuse/internal/models"
)

// MetaFile is the name of the metadata document inside a store directory.
const MetaFile = "array.yaml"

// DirStore keeps one zlib-compressed file of little-endian samples per
// block, named after the block location, next to an array.yaml metadata
// file. Writes of distinct blocks may run concurrently.
type DirStore struct {
	dir   string
	meta  Meta
	dtype models.DType
}

// CreateDirStore initialises a store directory, overwriting existing
// metadata. level is a zlib compression level.
func CreateDirStore(dir string, meta Meta, level int) (*DirStore, error) {
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	meta.Compression = "zlib"
	meta.Level = level

	dtype, err := meta.SampleType()
	if err != nil {
		return nil, err
	}
	if _, err := meta.Grid(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal store metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFile), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write store metadata: %w", err)
	}

	return &DirStore{dir: dir, meta: meta, dtype: dtype}, nil
}

// OpenDirStore opens a store created by CreateDirStore.
func OpenDirStore(dir string) (*DirStore, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read store metadata: %w", err)
	}
	var meta Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse store metadata: %w", err)
	}
	if meta.Compression != "zlib" {
		return nil, fmt.Errorf("unsupported compression %q", meta.Compression)
	}
	dtype, err := meta.SampleType()
	if err != nil {
		return nil, err
	}
	if _, err := meta.Grid(); err != nil {
		return nil, err
	}
	return &DirStore{dir: dir, meta: meta, dtype: dtype}, nil
}

func (s *DirStore) Meta() Meta {
	return s.meta
}

// Dir returns the store's root directory.
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) WriteBlock(loc models.Location, block *models.Block) error {
	if block.DType != s.dtype {
		return fmt.Errorf("block dtype %s does not match store dtype %s", block.DType, s.dtype)
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, s.meta.Level)
	if err != nil {
		return err
	}
	if _, err := w.Write(encodeSamples(block.Data, s.dtype)); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, loc.Key())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write block %s: %w", loc.Key(), err)
	}
	return os.Rename(tmp, path)
}

func (s *DirStore) ReadBlock(loc models.Location) (*models.Block, error) {
	grid, err := s.meta.Grid()
	if err != nil {
		return nil, err
	}
	if !grid.Contains(loc) {
		return nil, fmt.Errorf("%w: %s outside grid", ErrBlockNotFound, loc.Key())
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, loc.Key()))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, loc.Key())
	}
	if err != nil {
		return nil, err
	}

	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", loc.Key(), err)
	}
	defer r.Close()
	samples, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", loc.Key(), err)
	}

	block := models.NewBlock(grid.BlockShape(loc), s.dtype)
	if len(samples) != len(block.Data)*s.dtype.Size() {
		return nil, fmt.Errorf("block %s: expected %d bytes, got %d", loc.Key(), len(block.Data)*s.dtype.Size(), len(samples))
	}
	decodeSamples(samples, s.dtype, block.Data)
	return block, nil
}

func encodeSamples(data []float64, dtype models.DType) []byte {
	size := dtype.Size()
	out := make([]byte, len(data)*size)
	for i, v := range data {
		b := out[i*size : (i+1)*size]
		switch dtype {
		case models.Uint8:
			b[0] = uint8(v)
		case models.Uint16:
			binary.LittleEndian.PutUint16(b, uint16(v))
		case models.Uint32:
			binary.LittleEndian.PutUint32(b, uint32(v))
		case models.Float32:
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		default:
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		}
	}
	return out
}

func decodeSamples(raw []byte, dtype models.DType, dst []float64) {
	size := dtype.Size()
	for i := range dst {
		b := raw[i*size : (i+1)*size]
		switch dtype {
		case models.Uint8:
			dst[i] = float64(b[0])
		case models.Uint16:
			dst[i] = float64(binary.LittleEndian.Uint16(b))
		case models.Uint32:
			dst[i] = float64(binary.LittleEndian.Uint32(b))
		case models.Float32:
			dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		default:
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
	}
}
