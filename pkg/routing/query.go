package routing

import (
	"context"
	"fmt"
	"math"

	"github.com/azybler/ch_router/pkg/graph"
	"github.com/azybler/ch_router/pkg/search"
)

// ctxCheckInterval is how many settles pass between context checks.
const ctxCheckInterval = 100

// Seed starts a search at Vertex with an initial Weight, e.g. the remaining
// part of an edge when a query starts between two vertices.
type Seed struct {
	Vertex uint32
	Weight float64
}

// Result is the outcome of a point-to-point query. A query without a route
// is not an error: Path is nil and Weight is +Inf.
type Result struct {
	// Path runs from the source to the target. Its weights are cumulative
	// from the source seed; with vertex sources and targets the tip weight
	// equals Weight.
	Path    *search.Segment
	Weight  float64
	Settled int // vertices settled by both searches
}

// Found reports whether a route was found.
func (r Result) Found() bool { return r.Path != nil }

type queryConfig struct {
	exception  uint32
	maxWeight  float64
	maxSettled int
}

// QueryOption configures a single query.
type QueryOption func(*queryConfig)

// WithException excludes v from both searches without modifying the graph.
func WithException(v uint32) QueryOption {
	return func(c *queryConfig) { c.exception = v }
}

// WithMaxWeight stops the query once no route lighter than w can be found.
func WithMaxWeight(w float64) QueryOption {
	return func(c *queryConfig) { c.maxWeight = w }
}

// WithMaxSettled stops the query after n vertices have been settled.
func WithMaxSettled(n int) QueryOption {
	return func(c *queryConfig) { c.maxSettled = n }
}

func newQueryConfig(opts []QueryOption) queryConfig {
	cfg := queryConfig{exception: graph.NoVertex, maxWeight: math.Inf(1)}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// bidirectional runs the forward search from sources and the backward search
// from targets until the best meeting point can no longer improve.
func (e *Engine) bidirectional(ctx context.Context, sources, targets []Seed, cfg queryConfig) (Result, error) {
	res := Result{Weight: math.Inf(1)}

	fwd := search.NewFrontier()
	bwd := search.NewFrontier()
	for _, s := range sources {
		if s.Vertex != cfg.exception {
			fwd.Push(search.NewSeed(s.Vertex, s.Weight))
		}
	}
	for _, t := range targets {
		if t.Vertex != cfg.exception {
			bwd.Push(search.NewSeed(t.Vertex, t.Weight))
		}
	}

	pair := search.NewPair()

	for iterations := 1; ; iterations++ {
		if iterations%ctxCheckInterval == 0 && ctx.Err() != nil {
			return res, fmt.Errorf("query cancelled: %w", ctx.Err())
		}

		_, best, _ := pair.Best()
		fMin := frontierMin(fwd, cfg.maxWeight)
		bMin := frontierMin(bwd, cfg.maxWeight)

		// Termination check.
		if math.IsInf(fMin, 1) && math.IsInf(bMin, 1) {
			break
		}
		if best <= fMin && best <= bMin {
			break
		}
		if cfg.maxSettled > 0 && res.Settled >= cfg.maxSettled {
			break
		}

		// Advance the side with the lighter frontier among those that can
		// still improve the best meeting point.
		var err error
		var settled bool
		if fMin < best && (fMin <= bMin || bMin >= best) {
			settled, err = e.step(fwd, pair, graph.Forward, cfg.exception)
		} else {
			settled, err = e.step(bwd, pair, graph.Backward, cfg.exception)
		}
		if err != nil {
			return res, err
		}
		if settled {
			res.Settled++
		}
	}

	v, best, ok := pair.Best()
	if !ok || best > cfg.maxWeight {
		return res, nil
	}
	path, err := pair.Path(v)
	if err != nil {
		return res, fmt.Errorf("join at %d: %w", v, err)
	}
	res.Path = path
	res.Weight = best
	return res, nil
}

// frontierMin returns the frontier's minimum weight, or +Inf if it is empty
// or beyond maxWeight.
func frontierMin(f *search.Frontier, maxWeight float64) float64 {
	w, err := f.PeekWeight()
	if err != nil || w > maxWeight {
		return math.Inf(1)
	}
	return w
}

// step settles the lightest vertex of f in direction d and relaxes its arcs.
// Returns false if the popped vertex was already settled.
func (e *Engine) step(f *search.Frontier, pair *search.Pair, d graph.Direction, exception uint32) (bool, error) {
	s, err := f.Pop()
	if err != nil {
		return false, err
	}
	if _, ok := pair.Settled(d, s.Vertex); ok {
		return false, nil
	}
	pair.Settle(d, s)
	relax(e.g, f, s, d, exception, func(v uint32) bool {
		_, ok := pair.Settled(d, v)
		return ok
	})
	return true, nil
}

// relax pushes every neighbour of s reachable in direction d. On a
// contracted graph the stored arcs of a vertex lead upward only, so this is
// the upward relaxation of a CH search.
func relax(g *graph.Graph, f *search.Frontier, s *search.Segment, d graph.Direction, exception uint32, settled func(uint32) bool) {
	for _, a := range g.Arcs(s.Vertex) {
		if !a.Allows(d) || a.To == exception || settled(a.To) {
			continue
		}
		f.Push(s.Extend(a.To, a.Weight))
	}
}
