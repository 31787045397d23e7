package chunking

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"mosaicfuse/internal/models"
	"mosaicfuse/pkg/stitching"
)

// Sink receives assembled blocks. Run calls WriteBlock from a single
// goroutine, so implementations need not be safe for concurrent use.
type Sink interface {
	WriteBlock(loc models.Location, block *models.Block) error
}

// Options configures Run.
type Options struct {
	// Workers is the number of blocks assembled concurrently.
	// Zero means runtime.NumCPU().
	Workers int

	Warp  stitching.WarpFunc
	Fuse  stitching.FuseFunc
	DType models.DType

	// Progress, if set, is called after every written block.
	Progress func(done, total int)
}

// Stats summarises a run.
type Stats struct {
	Blocks      int
	EmptyBlocks int
}

type blockResult struct {
	loc   models.Location
	block *models.Block
	empty bool
	err   error
}

// EffectiveWorkers resolves a configured worker count. Zero or less means
// one worker per CPU.
func EffectiveWorkers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Run assembles every block of the grid and hands it to sink. Blocks are
// distributed over a pool of workers; the first failure stops the run and is
// returned.
func Run(ctx context.Context, grid *Grid, tileMap models.TileMap, opts Options, sink Sink) (Stats, error) {
	if opts.Warp == nil || opts.Fuse == nil {
		return Stats{}, errors.New("chunking: warp and fuse functions are required")
	}
	workers := EffectiveWorkers(opts.Workers)

	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	blocks := grid.Blocks()
	jobs := make(chan models.Location)
	results := make(chan blockResult)

	go func() {
		defer close(jobs)
		for _, loc := range blocks {
			select {
			case jobs <- loc:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for loc := range jobs {
				block, err := stitching.AssembleBlock(grid.Info(loc), tileMap, opts.Warp, opts.Fuse, opts.DType)
				res := blockResult{loc: loc, block: block, empty: len(tileMap[loc]) == 0, err: err}
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var stats Stats
	var firstErr error
	for res := range results {
		if firstErr != nil {
			continue
		}
		if res.err != nil {
			firstErr = fmt.Errorf("block %s: %w", res.loc.Key(), res.err)
			cancel()
			continue
		}
		if err := sink.WriteBlock(res.loc, res.block); err != nil {
			firstErr = fmt.Errorf("failed to write block %s: %w", res.loc.Key(), err)
			cancel()
			continue
		}

		stats.Blocks++
		if res.empty {
			stats.EmptyBlocks++
		}
		if opts.Progress != nil {
			opts.Progress(stats.Blocks, len(blocks))
		}
	}

	if firstErr != nil {
		return stats, firstErr
	}
	if stats.Blocks < len(blocks) {
		return stats, fmt.Errorf("assembled %d of %d blocks: %w", stats.Blocks, len(blocks), ctx.Err())
	}
	return stats, nil
}
