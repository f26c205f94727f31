// internal/runutil/runutil.go
package runutil

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// EffectiveThreads returns threads, or the number of CPUs when threads <= 0.
func EffectiveThreads(threads int) int {
	if threads <= 0 {
		return runtime.NumCPU()
	}
	return threads
}

// Blocks splits [0,n) into at most parts contiguous half-open ranges of
// near-equal size. Empty ranges are never returned.
func Blocks(n, parts int) [][2]int {
	if n <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}
	per := (n + parts - 1) / parts
	out := make([][2]int, 0, parts)
	for lo := 0; lo < n; lo += per {
		hi := lo + per
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

// ParallelRange runs fn over contiguous blocks of [0,n) on up to threads
// goroutines. The first error cancels ctx for the remaining blocks and is
// returned. fn must only write to slots in its own range.
func ParallelRange(ctx context.Context, threads, n int, fn func(ctx context.Context, lo, hi int) error) error {
	threads = EffectiveThreads(threads)
	// A few blocks per thread keeps the tail short when rows differ in cost.
	blocks := Blocks(n, threads*4)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for _, b := range blocks {
		lo, hi := b[0], b[1]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// SplitSeed derives a child seed for stream i from a base seed. Every derived
// stream is fixed by (seed, i) so results do not depend on scheduling.
func SplitSeed(seed uint64, i int) uint64 {
	z := seed + uint64(i+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
