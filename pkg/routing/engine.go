package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/azybler/ch_router/pkg/graph"
	"github.com/azybler/ch_router/pkg/search"
)

// ErrNoRoute is returned when no route exists between the two points.
var ErrNoRoute = errors.New("no route found")

// Segment is a run of consecutive arcs sharing one tag set, usually one
// street.
type Segment struct {
	Name           string
	Highway        string
	DistanceMeters float64
	Geometry       orb.LineString
}

// RouteResult is the output of a route query.
type RouteResult struct {
	TotalDistanceMeters float64
	Segments            []Segment
	Vertices            []uint32 // expanded vertex sequence, empty for single-arc routes
}

// Router is the interface for route queries.
type Router interface {
	Route(ctx context.Context, start, end orb.Point) (*RouteResult, error)
}

// Engine answers queries on a contracted graph. It is safe for concurrent
// use; every query owns its search state.
type Engine struct {
	g        *graph.Graph
	tags     *graph.TagStore
	resolver *Resolver
	logger   *zap.Logger
}

// NewEngine creates a routing engine over a contracted graph. tags may be
// nil, in which case route segments carry no names.
func NewEngine(g *graph.Graph, tags *graph.TagStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tags == nil {
		tags = graph.NewTagStore()
	}
	e := &Engine{
		g:        g,
		tags:     tags,
		resolver: NewResolver(g, DefaultResolverOptions()),
		logger:   logger,
	}
	logger.Info("routing engine ready",
		zap.Uint32("vertices", g.NumVertices()),
		zap.Int("arcs", g.NumArcs()),
		zap.Int("indexed_arcs", e.resolver.Len()),
	)
	return e
}

// Graph returns the underlying graph.
func (e *Engine) Graph() *graph.Graph { return e.g }

// Resolver returns the coordinate resolver.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// Resolve places p on the nearest arc.
func (e *Engine) Resolve(p orb.Point) (Resolved, error) { return e.resolver.Resolve(p) }

// CalculateRaw returns the shortest path from s to t with shortcuts left in
// place.
func (e *Engine) CalculateRaw(ctx context.Context, s, t uint32, opts ...QueryOption) (Result, error) {
	return e.CalculateSeeds(ctx, []Seed{{Vertex: s}}, []Seed{{Vertex: t}}, opts...)
}

// Calculate returns the shortest path from s to t expanded to atomic arcs.
func (e *Engine) Calculate(ctx context.Context, s, t uint32, opts ...QueryOption) (Result, error) {
	res, err := e.CalculateRaw(ctx, s, t, opts...)
	if err != nil || !res.Found() {
		return res, err
	}
	expanded, err := Expand(e.g, res.Path)
	if err != nil {
		return res, err
	}
	res.Path = expanded
	return res, nil
}

// CalculateWeight returns only the weight of the shortest path from s to t.
func (e *Engine) CalculateWeight(ctx context.Context, s, t uint32, opts ...QueryOption) (float64, bool, error) {
	res, err := e.CalculateRaw(ctx, s, t, opts...)
	if err != nil {
		return math.Inf(1), false, err
	}
	return res.Weight, res.Found(), nil
}

// CalculateSeeds runs a query between sets of weighted seeds. Seed weights
// are added to the route weight.
func (e *Engine) CalculateSeeds(ctx context.Context, sources, targets []Seed, opts ...QueryOption) (Result, error) {
	for _, list := range [][]Seed{sources, targets} {
		for _, s := range list {
			if !e.g.Has(s.Vertex) {
				return Result{Weight: math.Inf(1)}, fmt.Errorf("%w: %d", graph.ErrVertexNotFound, s.Vertex)
			}
		}
	}

	start := time.Now()
	res, err := e.bidirectional(ctx, sources, targets, newQueryConfig(opts))
	e.observe(kindPointToPoint, start, res, err)
	return res, err
}

func (e *Engine) observe(kind string, start time.Time, res Result, err error) {
	queryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	outcome := outcomeFound
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = outcomeCancelled
	case err != nil:
		outcome = outcomeError
	case kind == kindPointToPoint && !res.Found():
		outcome = outcomeNotFound
	}
	queryTotal.WithLabelValues(kind, outcome).Inc()
	if kind == kindPointToPoint {
		querySettled.Observe(float64(res.Settled))
	}
	if err != nil && outcome == outcomeError {
		e.logger.Warn("query failed", zap.String("kind", kind), zap.Error(err))
	}
}

// Route computes the shortest path between two coordinates. Both points are
// placed on their nearest arc and the search starts from the partial arcs.
func (e *Engine) Route(ctx context.Context, start, end orb.Point) (*RouteResult, error) {
	// Step 1: Resolve both points onto the road network.
	from, err := e.resolver.Resolve(start)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	to, err := e.resolver.Resolve(end)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}

	// Step 2: Both points on the same arc may be joined directly.
	direct, hasDirect := directWeight(from, to)
	var opts []QueryOption
	if hasDirect {
		opts = append(opts, WithMaxWeight(direct))
	}

	// Step 3: Bidirectional CH search between the partial arcs.
	res, err := e.CalculateSeeds(ctx, from.sourceSeeds(), to.targetSeeds(), opts...)
	if err != nil {
		return nil, err
	}

	if hasDirect && (!res.Found() || direct <= res.Weight) {
		return &RouteResult{
			TotalDistanceMeters: direct,
			Segments: e.group([]leg{{
				from: from.Point, to: to.Point, weight: direct, tags: from.Edge.Tags,
			}}),
		}, nil
	}
	if !res.Found() {
		return nil, ErrNoRoute
	}

	// Step 4: Expand shortcuts and build per-street geometry.
	path, err := Expand(e.g, res.Path)
	if err != nil {
		return nil, err
	}
	legs, err := e.legs(from, to, path, res.Weight)
	if err != nil {
		return nil, err
	}

	return &RouteResult{
		TotalDistanceMeters: res.Weight,
		Segments:            e.group(legs),
		Vertices:            path.Vertices(),
	}, nil
}

// leg is a straight piece of a route.
type leg struct {
	from, to orb.Point
	weight   float64
	tags     uint32
}

// legs turns an expanded path into straight pieces, including the partial
// arcs between the resolved points and the first and last vertex.
func (e *Engine) legs(from, to Resolved, path *search.Segment, total float64) ([]leg, error) {
	vertices := path.Vertices()
	weights := path.Weights()

	coord := func(v uint32) orb.Point {
		p, _ := e.g.Coordinate(v)
		return p
	}

	out := make([]leg, 0, len(vertices)+1)
	if w := weights[0]; w > 0 {
		out = append(out, leg{from: from.Point, to: coord(vertices[0]), weight: w, tags: from.Edge.Tags})
	}
	for i := 0; i+1 < len(vertices); i++ {
		a, ok := e.g.ArcBetween(vertices[i], vertices[i+1])
		if !ok {
			return nil, &ReconstructionError{From: vertices[i], To: vertices[i+1], Reason: "no arc"}
		}
		out = append(out, leg{
			from:   coord(vertices[i]),
			to:     coord(vertices[i+1]),
			weight: weights[i+1] - weights[i],
			tags:   a.Tags,
		})
	}
	last := vertices[len(vertices)-1]
	if w := total - weights[len(weights)-1]; w > 0 && !to.OnVertex {
		out = append(out, leg{from: coord(last), to: to.Point, weight: w, tags: to.Edge.Tags})
	}
	return out, nil
}

// group merges consecutive legs with the same tag set into segments.
func (e *Engine) group(legs []leg) []Segment {
	var segments []Segment
	var curTags uint32
	for i, l := range legs {
		if i == 0 || l.tags != curTags {
			seg := Segment{Geometry: orb.LineString{l.from}}
			if tags, ok := e.tags.Get(l.tags); ok {
				seg.Name = tags.Find("name")
				if seg.Name == "" {
					seg.Name = tags.Find("ref")
				}
				seg.Highway = tags.Find("highway")
			}
			segments = append(segments, seg)
			curTags = l.tags
		}
		seg := &segments[len(segments)-1]
		seg.Geometry = append(seg.Geometry, l.to)
		seg.DistanceMeters += l.weight
	}
	return segments
}
