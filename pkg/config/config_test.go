package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadConfigMissingFile verifies that defaults are returned for a missing file
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Processing.Fusion != "linear" {
		t.Errorf("Expected default fusion linear, got %q", cfg.Processing.Fusion)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

// TestSaveAndLoadConfig verifies values survive a save/load cycle
func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Processing.Fusion = "mean"
	cfg.Processing.ChunkHeight = 256
	cfg.Processing.DType = "float32"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Processing.Fusion != "mean" || loaded.Processing.ChunkHeight != 256 || loaded.Processing.DType != "float32" {
		t.Errorf("Unexpected loaded processing section: %+v", loaded.Processing)
	}
	if loaded.Processing.ChunkWidth != 1024 {
		t.Errorf("Expected unchanged chunk width 1024, got %d", loaded.Processing.ChunkWidth)
	}
}

// TestLoadConfigPartialFile verifies that omitted keys keep their defaults
func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("processing:\n  fusion: sum\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Processing.Fusion != "sum" {
		t.Errorf("Expected fusion sum, got %q", cfg.Processing.Fusion)
	}
	if cfg.Output.CompressionLevel != 6 {
		t.Errorf("Expected default compression level, got %d", cfg.Output.CompressionLevel)
	}
}

// TestValidate verifies that invalid settings are rejected before any work starts
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown fusion", func(c *Config) { c.Processing.Fusion = "median" }},
		{"zero chunk", func(c *Config) { c.Processing.ChunkWidth = 0 }},
		{"bad dtype", func(c *Config) { c.Processing.DType = "int7" }},
		{"negative workers", func(c *Config) { c.Processing.NumWorkers = -1 }},
		{"compression level", func(c *Config) { c.Output.CompressionLevel = 11 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("processing:\n  fusion: median\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected LoadConfig to reject unknown fusion")
	}
}
