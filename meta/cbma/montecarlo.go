package cbma

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/neurometa/gocbma/stats"
)

// RunSeeded executes nIters independent Monte Carlo iterations across up to
// nCores workers and returns the per-iteration outputs indexed by iteration.
// Each iteration gets its own random stream derived from seed and the
// iteration index, so the pooled output is identical regardless of worker
// count or scheduling. nCores <= 0 uses all CPUs.
func RunSeeded[T any](ctx context.Context, nIters, nCores int, seed int64, fn func(iter int, rng *rand.Rand) (T, error)) ([]T, error) {
	if nIters <= 0 {
		return nil, fmt.Errorf("iteration count must be positive, got %d", nIters)
	}
	if nCores <= 0 {
		nCores = runtime.NumCPU()
	}

	out := make([]T, nIters)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(nCores)
	for iter := 0; iter < nIters; iter++ {
		iter := iter
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			rng := rand.New(rand.NewSource(seed + int64(iter)))
			v, err := fn(iter, rng)
			if err != nil {
				return fmt.Errorf("iteration %d: %w", iter, err)
			}
			out[iter] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// pooledValueNull builds a Monte Carlo null histogram by pooling the
// statistic values of every permutation's map. statFor produces the permuted
// statistic map for one iteration; maxValue bounds the achievable statistic
// so every iteration bins onto the same axis. Each worker accumulates bin
// counts into its own histogram and the partials are summed afterward, so
// peak memory stays at one histogram per worker. Counts are whole numbers,
// exactly representable in float64, so the merged result is independent of
// worker count and scheduling.
func pooledValueNull(ctx context.Context, nIters, nCores int, seed int64, step, maxValue float64, statFor func(iter int, rng *rand.Rand) ([]float64, error)) (*stats.Histogram, error) {
	if nIters <= 0 {
		return nil, fmt.Errorf("iteration count must be positive, got %d", nIters)
	}
	if nCores <= 0 {
		nCores = runtime.NumCPU()
	}
	if nCores > nIters {
		nCores = nIters
	}

	partial := make([][]float64, nCores)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < nCores; w++ {
		w := w
		g.Go(func() error {
			h, err := stats.NewHistogram(step, int(maxValue/step)+1)
			if err != nil {
				return err
			}
			for iter := w; iter < nIters; iter += nCores {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				rng := rand.New(rand.NewSource(seed + int64(iter)))
				permStat, err := statFor(iter, rng)
				if err != nil {
					return fmt.Errorf("iteration %d: %w", iter, err)
				}
				for _, v := range permStat {
					h.Add(v, 1)
				}
			}
			partial[w] = h.Mass
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	null, err := stats.NewHistogram(step, int(maxValue/step)+1)
	if err != nil {
		return nil, err
	}
	for _, m := range partial {
		floats.Add(null.Mass, m)
	}
	null.Normalize()
	return null, nil
}
