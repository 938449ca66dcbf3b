package pairwise

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// PairFunc computes the cell for the unordered pair (i, j) with i <= j
type PairFunc func(i, j int) Cell

// Fill creates an n×n matrix and visits every unordered pair (i <= j)
// exactly once. Pairs are spread over at most workers goroutines; each pair
// owns its two mirrored cells, so no two goroutines write the same cell.
// A workers value below 1 means runtime.NumCPU().
//
// Fill returns the context error if ctx is cancelled before all pairs are
// visited.
func Fill(ctx context.Context, n, workers int, fn PairFunc) (*Matrix, error) {
	m := New(n)
	if n == 0 {
		return m, ctx.Err()
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	// SymDense.SetSym writes to a single backing slot per unordered pair,
	// which keeps concurrent writes disjoint.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if err := gctx.Err(); err != nil {
				break
			}
			i, j := i, j
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				m.SetCell(i, j, fn(i, j))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
