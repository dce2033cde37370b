package routing

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"github.com/azybler/ch_router/pkg/geo"
	"github.com/azybler/ch_router/pkg/graph"
)

const (
	maxSnapDistMeters    = 500.0
	initialSnapRadius    = 25.0
	defaultMaxDoublings  = 6
	ratioEndpointEpsilon = 1e-9
)

// ErrPointTooFar is returned when the query point is too far from any road.
var ErrPointTooFar = errors.New("point too far from road")

// Resolved is a coordinate placed on the closest road edge.
type Resolved struct {
	From, To uint32     // endpoints of Edge
	Edge     graph.Edge // the edge as it was added, before any shortcut
	Ratio    float64    // 0.0 = at From, 1.0 = at To
	Point    orb.Point  // projected point on the edge
	Dist     float64    // meters from the query point to Point
	Vertex   uint32     // the nearer endpoint
	OnVertex bool       // the projection coincides with Vertex
}

// ResolverOptions tunes the search box of a Resolver.
type ResolverOptions struct {
	InitialRadius float64 // meters
	MaxDoublings  int
	MaxDistance   float64 // meters; farther points are rejected
}

// DefaultResolverOptions returns the defaults used by NewEngine.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		InitialRadius: initialSnapRadius,
		MaxDoublings:  defaultMaxDoublings,
		MaxDistance:   maxSnapDistMeters,
	}
}

// Resolver places coordinates on the nearest road edge of a graph using an
// R-tree over edge bounding boxes. It is safe for concurrent use once built.
type Resolver struct {
	g     *graph.Graph
	index rtree.RTreeG[uint32] // edge ids
	opts  ResolverOptions
	size  int
}

// NewResolver indexes every edge of g. Edges keep their original direction
// flags and weight after contraction, so shortcuts do not hide roads.
func NewResolver(g *graph.Graph, opts ResolverOptions) *Resolver {
	if opts.InitialRadius <= 0 {
		opts.InitialRadius = initialSnapRadius
	}
	if opts.MaxDoublings < 0 {
		opts.MaxDoublings = defaultMaxDoublings
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = maxSnapDistMeters
	}

	r := &Resolver{g: g, opts: opts}
	for i, e := range g.Edges() {
		a, _ := g.Coordinate(e.From)
		b, _ := g.Coordinate(e.To)
		bound := orb.MultiPoint{a, b}.Bound()
		r.index.Insert(bound.Min, bound.Max, uint32(i))
		r.size++
	}
	return r
}

// Len returns the number of indexed edges.
func (r *Resolver) Len() int { return r.size }

// Resolve returns the projection of p onto the closest indexed edge. The
// search box doubles until it contains an edge, then grows once more to the
// found distance so that no closer arc outside the box is missed.
func (r *Resolver) Resolve(p orb.Point) (Resolved, error) {
	radius := r.opts.InitialRadius
	for i := 0; i <= r.opts.MaxDoublings; i++ {
		best, ok := r.nearestInBox(p, radius)
		if ok {
			if best.Dist > radius {
				best, _ = r.nearestInBox(p, best.Dist)
			}
			if best.Dist > r.opts.MaxDistance {
				resolveTotal.WithLabelValues("too_far").Inc()
				return Resolved{}, ErrPointTooFar
			}
			resolveTotal.WithLabelValues("ok").Inc()
			return best, nil
		}
		radius *= 2
	}
	resolveTotal.WithLabelValues("too_far").Inc()
	return Resolved{}, ErrPointTooFar
}

// nearestInBox scans the edges whose bounding boxes meet the square of the
// given radius around p.
func (r *Resolver) nearestInBox(p orb.Point, radius float64) (Resolved, bool) {
	dLat := geo.MetersToDegrees(radius)
	dLon := dLat
	if c := math.Cos(p.Lat() * math.Pi / 180); c > 1e-6 {
		dLon = dLat / c
	}
	lo := [2]float64{p.Lon() - dLon, p.Lat() - dLat}
	hi := [2]float64{p.Lon() + dLon, p.Lat() + dLat}

	var best Resolved
	found := false
	edges := r.g.Edges()
	r.index.Search(lo, hi, func(_, _ [2]float64, id uint32) bool {
		e := edges[id]
		a, _ := r.g.Coordinate(e.From)
		b, _ := r.g.Coordinate(e.To)
		proj := geo.Project(p, a, b)
		if found && proj.Dist >= best.Dist {
			return true
		}
		best = Resolved{
			From:  e.From,
			To:    e.To,
			Edge:  e,
			Ratio: proj.Ratio,
			Point: proj.Point,
			Dist:  proj.Dist,
		}
		found = true
		return true
	})
	if !found {
		return best, false
	}

	switch {
	case best.Ratio <= ratioEndpointEpsilon:
		best.Vertex, best.OnVertex = best.From, true
	case best.Ratio >= 1-ratioEndpointEpsilon:
		best.Vertex, best.OnVertex = best.To, true
	case best.Ratio < 0.5:
		best.Vertex = best.From
	default:
		best.Vertex = best.To
	}
	return best, true
}

// sourceSeeds are the vertices reachable from the resolved point with the
// weight of the partial edge leading there.
func (res Resolved) sourceSeeds() []Seed {
	if res.OnVertex {
		return []Seed{{Vertex: res.Vertex}}
	}
	var seeds []Seed
	if res.Edge.Forward {
		seeds = append(seeds, Seed{Vertex: res.To, Weight: res.Edge.Weight * (1 - res.Ratio)})
	}
	if res.Edge.Backward {
		seeds = append(seeds, Seed{Vertex: res.From, Weight: res.Edge.Weight * res.Ratio})
	}
	return seeds
}

// targetSeeds are the vertices from which the resolved point is reachable.
func (res Resolved) targetSeeds() []Seed {
	if res.OnVertex {
		return []Seed{{Vertex: res.Vertex}}
	}
	var seeds []Seed
	if res.Edge.Forward {
		seeds = append(seeds, Seed{Vertex: res.From, Weight: res.Edge.Weight * res.Ratio})
	}
	if res.Edge.Backward {
		seeds = append(seeds, Seed{Vertex: res.To, Weight: res.Edge.Weight * (1 - res.Ratio)})
	}
	return seeds
}

// directWeight returns the weight of travelling along a single edge from
// start to end when both lie on it.
func directWeight(start, end Resolved) (float64, bool) {
	if start.OnVertex || end.OnVertex {
		return 0, false
	}
	if start.Edge != end.Edge {
		return 0, false
	}
	delta := end.Ratio - start.Ratio
	switch {
	case delta >= 0 && start.Edge.Forward:
		return delta * start.Edge.Weight, true
	case delta <= 0 && start.Edge.Backward:
		return -delta * start.Edge.Weight, true
	}
	return 0, false
}
