// Package acquisition reads tile manifests produced by an acquisition and
// loads tile pixel data from image files.
package acquisition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mosaicfuse/internal/models"
)

// Manifest lists the tiles of one acquisition.
//
// Example:
//
//	name: plate-1
//	dtype: uint16
//	tiles:
//	  - path: C05/s1_w1.tif
//	    well: C05
//	    field: s1
//	    channelName: w1
//	    y: 0
//	    x: 0
type Manifest struct {
	Name  string      `yaml:"name"`
	DType string      `yaml:"dtype"`
	Tiles []TileEntry `yaml:"tiles"`

	// root is the directory relative tile paths resolve against.
	root string
}

// TileEntry describes one tile file and where it sits in the mosaic.
type TileEntry struct {
	Path        string `yaml:"path"`
	Well        string `yaml:"well,omitempty"`
	Field       string `yaml:"field,omitempty"`
	ChannelName string `yaml:"channelName,omitempty"`

	Time    int `yaml:"time"`
	Channel int `yaml:"channel"`
	Z       int `yaml:"z"`
	Y       int `yaml:"y"`
	X       int `yaml:"x"`

	// Height and Width may be omitted; the file is then probed.
	Height int `yaml:"height,omitempty"`
	Width  int `yaml:"width,omitempty"`
}

// LoadManifest reads a YAML manifest. Relative tile paths are resolved
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %w", err)
	}
	if len(m.Tiles) == 0 {
		return nil, errors.New("manifest lists no tiles")
	}
	if m.DType == "" {
		m.DType = models.Uint16.String()
	}
	if _, err := models.ParseDType(m.DType); err != nil {
		return nil, err
	}
	m.root = filepath.Dir(path)
	return &m, nil
}

// SampleType returns the acquisition's dtype.
func (m *Manifest) SampleType() models.DType {
	d, err := models.ParseDType(m.DType)
	if err != nil {
		return models.Uint16
	}
	return d
}

// Wells returns the distinct well identifiers in order of first appearance.
func (m *Manifest) Wells() []string {
	seen := make(map[string]bool)
	var wells []string
	for _, e := range m.Tiles {
		if !seen[e.Well] {
			seen[e.Well] = true
			wells = append(wells, e.Well)
		}
	}
	return wells
}

// TilesForWell builds file-backed tiles for the given well. An empty well selects
// every tile.
func (m *Manifest) TilesForWell(well string) ([]models.Tile, error) {
	var tiles []models.Tile
	for _, e := range m.Tiles {
		if well != "" && e.Well != well {
			continue
		}

		path := e.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.root, path)
		}
		loader := FileLoader{Path: path}

		shape := models.Shape{Height: e.Height, Width: e.Width}
		if shape.Height <= 0 || shape.Width <= 0 {
			data, err := loader.LoadData()
			if err != nil {
				return nil, err
			}
			shape.Height, shape.Width = data.Dims()
		}

		pos := models.Position{Time: e.Time, Channel: e.Channel, Z: e.Z, Y: e.Y, X: e.X}
		tile := models.NewTile(pos, shape, loader)
		tile.Well = e.Well
		tile.Field = e.Field
		tile.Path = path
		tiles = append(tiles, tile)
	}

	if len(tiles) == 0 {
		return nil, fmt.Errorf("no tiles for well %q", well)
	}
	return tiles, nil
}

// SaveManifest writes m as YAML.
func SaveManifest(m *Manifest, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating manifest directory: %w", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	return nil
}
