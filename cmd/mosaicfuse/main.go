package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"mosaicfuse/pkg/chunking"
	"mosaicfuse/pkg/config"
	"mosaicfuse/pkg/mosaic"
	"mosaicfuse/pkg/stitching"
)

func main() {
	// Parse command line arguments
	manifestPath := flag.String("manifest", "", "Acquisition manifest (YAML) listing tiles and positions")
	configPath := flag.String("config", "mosaicfuse.yaml", "Configuration file (defaults are used if it does not exist)")
	outputDir := flag.String("output", "mosaic", "Directory for the chunked mosaic store")
	well := flag.String("well", "", "Only stitch tiles of this well")
	fusion := flag.String("fusion", "", fmt.Sprintf("Fusion method, one of %v (overrides config)", stitching.FusionNames()))
	workers := flag.Int("workers", 0, "Number of blocks fused concurrently (overrides config)")
	previews := flag.Bool("preview", false, "Save one TIFF preview per mosaic plane")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *manifestPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *fusion != "" {
		cfg.Processing.Fusion = *fusion
	}
	if *workers > 0 {
		cfg.Processing.NumWorkers = *workers
	}
	if *previews {
		cfg.Output.SavePreviews = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	absOutput, err := filepath.Abs(*outputDir)
	if err != nil {
		log.Fatalf("Failed to resolve output directory: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("MOSAIC FUSION OF OVERLAPPING MICROSCOPY TILES")
	fmt.Println("================================")

	stitcher := mosaic.NewStitcher(&mosaic.Params{
		ManifestPath: *manifestPath,
		Well:         *well,
		OutputDir:    absOutput,
		Config:       cfg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startTime := time.Now()
	if err := stitcher.Process(ctx); err != nil {
		log.Fatalf("Stitching failed: %v", err)
	}
	processingTime := time.Since(startTime)

	metrics := stitcher.GetMetrics()
	fmt.Printf("\nStitching completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Mosaic store saved to: %s\n\n", absOutput)

	fmt.Printf("Mosaic Metrics:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Tiles: %d\n", metrics.Tiles)
	fmt.Printf("Blocks: %d (%d without tiles)\n", metrics.Blocks, metrics.EmptyBlocks)
	fmt.Printf("Coverage: %.2f%%\n", metrics.Coverage*100)
	fmt.Printf("Mean intensity: %.3f\n", metrics.Mean)
	fmt.Printf("Intensity std dev: %.3f\n", metrics.StdDev)
	fmt.Printf("Block assembly time: %.2f seconds using %d workers\n", metrics.Elapsed.Seconds(), chunking.EffectiveWorkers(cfg.Processing.NumWorkers))
}
