package routing

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/azybler/ch_router/pkg/graph"
	"github.com/azybler/ch_router/pkg/search"
)

// bucketEntry records that target index t is reachable from a vertex with
// the given backward weight.
type bucketEntry struct {
	target int
	weight float64
}

// Matrix returns the weights of the shortest paths from every source to
// every target, +Inf where no path exists. Backward searches from the
// targets fill per-vertex buckets that the forward searches from the
// sources then scan.
func (e *Engine) Matrix(ctx context.Context, sources, targets []uint32) ([][]float64, error) {
	for _, list := range [][]uint32{sources, targets} {
		for _, v := range list {
			if !e.g.Has(v) {
				return nil, fmt.Errorf("%w: %d", graph.ErrVertexNotFound, v)
			}
		}
	}

	start := time.Now()
	out, err := e.matrix(ctx, sources, targets)
	e.observe(kindMatrix, start, Result{}, err)
	return out, err
}

func (e *Engine) matrix(ctx context.Context, sources, targets []uint32) ([][]float64, error) {
	workers := runtime.GOMAXPROCS(0)

	// Phase 1: backward search spaces, one per target.
	spaces := make([]map[uint32]float64, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, t := range targets {
		g.Go(func() error {
			space := make(map[uint32]float64)
			err := e.upwardSearch(gctx, t, graph.Backward, func(s *search.Segment) bool {
				space[s.Vertex] = s.Weight
				return true
			})
			spaces[i] = space
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Buckets are filled in target order so scans are deterministic.
	buckets := make(map[uint32][]bucketEntry)
	for i, space := range spaces {
		for v, w := range space {
			buckets[v] = append(buckets[v], bucketEntry{target: i, weight: w})
		}
	}

	// Phase 2: forward searches, one row per source.
	out := make([][]float64, len(sources))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, s := range sources {
		g.Go(func() error {
			row := make([]float64, len(targets))
			for j := range row {
				row[j] = math.Inf(1)
			}
			open := len(targets)
			final := make([]bool, len(targets))
			err := e.upwardSearch(gctx, s, graph.Forward, func(seg *search.Segment) bool {
				for _, b := range buckets[seg.Vertex] {
					if w := seg.Weight + b.weight; w < row[b.target] {
						row[b.target] = w
					}
				}
				// A target is final once the settled weight reaches it.
				for j := range row {
					if !final[j] && row[j] <= seg.Weight {
						final[j] = true
						open--
					}
				}
				return open > 0
			})
			out[i] = row
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// upwardSearch runs a single-direction search from root and calls visit for
// every settled vertex in order of weight until visit returns false.
func (e *Engine) upwardSearch(ctx context.Context, root uint32, d graph.Direction, visit func(*search.Segment) bool) error {
	f := search.NewFrontier()
	f.Push(search.NewRoot(root))
	settled := make(map[uint32]bool)

	for iterations := 1; f.Len() > 0; iterations++ {
		if iterations%ctxCheckInterval == 0 && ctx.Err() != nil {
			return fmt.Errorf("matrix cancelled: %w", ctx.Err())
		}
		s, err := f.Pop()
		if err != nil {
			return err
		}
		if settled[s.Vertex] {
			continue
		}
		settled[s.Vertex] = true
		if !visit(s) {
			return nil
		}
		relax(e.g, f, s, d, graph.NoVertex, func(v uint32) bool { return settled[v] })
	}
	return nil
}
