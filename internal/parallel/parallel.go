// Package parallel splits index ranges across goroutines for the kernels of
// the interpreter backend.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	return NewConfig(0)
}

// NewConfig returns a config using threads workers, or one per CPU when
// threads is not positive.
func NewConfig(threads int) Config {
	n := threads
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1024,
	}
}

// For calls f on consecutive chunks [start, end) covering [0, n).
// Chunks run concurrently when cfg allows it and n is large enough.
// The first error cancels ctx for the remaining chunks and is returned.
func For(ctx context.Context, n int, f func(start, end int) error, cfg Config) error {
	if n <= 0 {
		return nil
	}
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < 2*cfg.MinChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		return f(0, n)
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.NumWorkers)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return f(start, end)
		})
	}
	return g.Wait()
}
