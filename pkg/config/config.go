// Package config provides configuration loading and management for mosaicfuse.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"mosaicfuse/internal/models"
	"mosaicfuse/pkg/stitching"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers is how many blocks are assembled concurrently
		NumWorkers int `yaml:"numWorkers"`

		// ChunkHeight and ChunkWidth set the yx size of a mosaic block in pixels
		ChunkHeight int `yaml:"chunkHeight"`
		ChunkWidth  int `yaml:"chunkWidth"`

		// Fusion selects how overlapping tiles are combined: linear, mean or sum
		Fusion string `yaml:"fusion"`

		// DType overrides the sample type of the output; empty keeps the acquisition's
		DType string `yaml:"dtype"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// CompressionLevel is the zlib level used for stored blocks
		CompressionLevel int `yaml:"compressionLevel"`

		// SavePreviews writes one image per mosaic plane next to the store
		SavePreviews bool `yaml:"savePreviews"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.ChunkHeight = 1024
	cfg.Processing.ChunkWidth = 1024
	cfg.Processing.Fusion = stitching.FusionLinear

	cfg.Output.CompressionLevel = 6
	cfg.Output.SavePreviews = false
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks values that would otherwise only fail once blocks are
// being assembled.
func (c *Config) Validate() error {
	if c.Processing.NumWorkers < 0 {
		return fmt.Errorf("numWorkers must not be negative, got %d", c.Processing.NumWorkers)
	}
	if c.Processing.ChunkHeight <= 0 || c.Processing.ChunkWidth <= 0 {
		return fmt.Errorf("chunk size must be positive, got %dx%d", c.Processing.ChunkHeight, c.Processing.ChunkWidth)
	}
	if _, err := stitching.FusionByName(c.Processing.Fusion); err != nil {
		return err
	}
	if c.Processing.DType != "" {
		if _, err := models.ParseDType(c.Processing.DType); err != nil {
			return err
		}
	}
	if c.Output.CompressionLevel < -2 || c.Output.CompressionLevel > 9 {
		return fmt.Errorf("compressionLevel must be between -2 and 9, got %d", c.Output.CompressionLevel)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
