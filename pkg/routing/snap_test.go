package routing

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/ch_router/pkg/geo"
	"github.com/azybler/ch_router/pkg/graph"
)

// streetGraph is an east-west street 0-1-2-3 along the equator, 0.001
// degrees per block. Blocks 0-1 and 1-2 are "Main Street", 2-3 is
// "Side Street".
func streetGraph(t *testing.T, oneWay bool) (*graph.Graph, *graph.TagStore) {
	t.Helper()
	tags := graph.NewTagStore()
	mainSt := tags.Add(osm.Tags{{Key: "highway", Value: "residential"}, {Key: "name", Value: "Main Street"}})
	sideSt := tags.Add(osm.Tags{{Key: "highway", Value: "service"}, {Key: "name", Value: "Side Street"}})

	g := graph.New(4)
	for i := 0; i < 4; i++ {
		g.AddVertex(orb.Point{float64(i) * 0.001, 0})
	}
	for i, id := range []uint32{mainSt, mainSt, sideSt} {
		from, to := uint32(i), uint32(i+1)
		a, _ := g.Coordinate(from)
		b, _ := g.Coordinate(to)
		require.NoError(t, g.AddEdge(from, to, geo.Distance(a, b), true, !oneWay, id))
	}
	return g, tags
}

// bypassedRoad is a two-way road 0-2 of weight 10 with a lighter detour
// through vertex 1 (4.5 + 4.5). Contracting 1 first replaces the road's
// arcs with shortcuts: both of them when the detour is two-way, the forward
// one otherwise.
func bypassedRoad(t *testing.T, twoWayDetour bool) *graph.Graph {
	t.Helper()
	g := graph.New(3)
	g.AddVertex(orb.Point{0, 0})
	g.AddVertex(orb.Point{0.001, 0.0005})
	g.AddVertex(orb.Point{0.002, 0})
	require.NoError(t, g.AddEdge(0, 2, 10, true, true, graph.NoTags))
	require.NoError(t, g.AddEdge(0, 1, 4.5, true, twoWayDetour, graph.NoTags))
	require.NoError(t, g.AddEdge(1, 2, 4.5, true, twoWayDetour, graph.NoTags))
	return contract(t, g, []uint32{1, 0, 2})
}

func TestResolverIndexesEachEdgeOnce(t *testing.T) {
	g, _ := streetGraph(t, false)
	assert.Equal(t, 3, NewResolver(g, DefaultResolverOptions()).Len())

	contract(t, g, nil)
	assert.Equal(t, 3, NewResolver(g, DefaultResolverOptions()).Len(), "shortcuts are not indexed")
}

func TestResolve(t *testing.T) {
	g, _ := streetGraph(t, false)
	r := NewResolver(g, DefaultResolverOptions())

	t.Run("between vertices", func(t *testing.T) {
		res, err := r.Resolve(orb.Point{0.00025, 0.0001})
		require.NoError(t, err)
		assert.ElementsMatch(t, []uint32{0, 1}, []uint32{res.From, res.To})
		assert.InDelta(t, 0.00025, res.Point.Lon(), 1e-9)
		assert.InDelta(t, 0, res.Point.Lat(), 1e-9)
		assert.InDelta(t, 11.1, res.Dist, 0.1)
		assert.Equal(t, uint32(0), res.Vertex)
		assert.False(t, res.OnVertex)
	})

	t.Run("on a vertex", func(t *testing.T) {
		res, err := r.Resolve(orb.Point{0.002, 0})
		require.NoError(t, err)
		assert.True(t, res.OnVertex)
		assert.Equal(t, uint32(2), res.Vertex)
		assert.InDelta(t, 0, res.Dist, 1e-9)
	})

	t.Run("beyond the end", func(t *testing.T) {
		res, err := r.Resolve(orb.Point{0.0035, 0})
		require.NoError(t, err)
		assert.True(t, res.OnVertex)
		assert.Equal(t, uint32(3), res.Vertex)
		assert.InDelta(t, 55.6, res.Dist, 0.2)
	})

	t.Run("too far", func(t *testing.T) {
		_, err := r.Resolve(orb.Point{1, 1})
		assert.ErrorIs(t, err, ErrPointTooFar)
	})
}

func TestResolveRoadReplacedByShortcuts(t *testing.T) {
	g := bypassedRoad(t, true)
	fwd, ok := g.ArcBetween(0, 2)
	require.True(t, ok)
	require.True(t, fwd.IsShortcut())
	bwd, ok := g.ArcBetween(2, 0)
	require.True(t, ok)
	require.True(t, bwd.IsShortcut())

	r := NewResolver(g, DefaultResolverOptions())
	assert.Equal(t, 3, r.Len())

	res, err := r.Resolve(orb.Point{0.001, 0})
	require.NoError(t, err)
	assert.Equal(t, graph.Edge{From: 0, To: 2, Weight: 10, Forward: true, Backward: true, Tags: graph.NoTags}, res.Edge)
	assert.InDelta(t, 0.5, res.Ratio, 1e-9)
	assert.InDelta(t, 0, res.Dist, 1e-6)
}

func TestResolveFindsCloserArcOutsideFirstBox(t *testing.T) {
	// The 320 m box first sees a short arc in its corner, about 425 m away.
	// A closer arc 356 m due east lies just outside the box.
	g := graph.New(4)
	g.AddVertex(orb.Point{0.0027, 0.0027})
	g.AddVertex(orb.Point{0.0028, 0.0027})
	g.AddVertex(orb.Point{0.0032, -0.0001})
	g.AddVertex(orb.Point{0.0032, 0.0001})
	require.NoError(t, g.AddEdge(0, 1, 10, true, true, graph.NoTags))
	require.NoError(t, g.AddEdge(2, 3, 20, true, true, graph.NoTags))

	r := NewResolver(g, ResolverOptions{InitialRadius: 320, MaxDoublings: 0, MaxDistance: 1000})
	res, err := r.Resolve(orb.Point{0, 0})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{2, 3}, []uint32{res.From, res.To})
	assert.InDelta(t, 355.8, res.Dist, 0.5)
}

func TestResolvedSeeds(t *testing.T) {
	twoWayEdge := graph.Edge{From: 0, To: 1, Weight: 100, Forward: true, Backward: true}
	oneWayEdge := graph.Edge{From: 0, To: 1, Weight: 100, Forward: true}
	reverseEdge := graph.Edge{From: 0, To: 1, Weight: 100, Backward: true}

	tests := []struct {
		name            string
		res             Resolved
		sources, target []Seed
	}{
		{
			name:    "two-way",
			res:     Resolved{From: 0, To: 1, Edge: twoWayEdge, Ratio: 0.25},
			sources: []Seed{{Vertex: 1, Weight: 75}, {Vertex: 0, Weight: 25}},
			target:  []Seed{{Vertex: 0, Weight: 25}, {Vertex: 1, Weight: 75}},
		},
		{
			name:    "one-way",
			res:     Resolved{From: 0, To: 1, Edge: oneWayEdge, Ratio: 0.25},
			sources: []Seed{{Vertex: 1, Weight: 75}},
			target:  []Seed{{Vertex: 0, Weight: 25}},
		},
		{
			name:    "one-way against storage",
			res:     Resolved{From: 0, To: 1, Edge: reverseEdge, Ratio: 0.25},
			sources: []Seed{{Vertex: 0, Weight: 25}},
			target:  []Seed{{Vertex: 1, Weight: 75}},
		},
		{
			name:    "on vertex",
			res:     Resolved{From: 0, To: 1, Edge: oneWayEdge, Ratio: 1, Vertex: 1, OnVertex: true},
			sources: []Seed{{Vertex: 1}},
			target:  []Seed{{Vertex: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.sources, tt.res.sourceSeeds())
			assert.Equal(t, tt.target, tt.res.targetSeeds())
		})
	}
}

func TestDirectWeight(t *testing.T) {
	twoWayEdge := graph.Edge{From: 0, To: 1, Weight: 100, Forward: true, Backward: true}
	oneWayEdge := graph.Edge{From: 0, To: 1, Weight: 100, Forward: true}
	at := func(e graph.Edge, ratio float64) Resolved {
		return Resolved{From: 0, To: 1, Edge: e, Ratio: ratio}
	}

	w, ok := directWeight(at(twoWayEdge, 0.2), at(twoWayEdge, 0.6))
	assert.True(t, ok)
	assert.InDelta(t, 40, w, 1e-9)

	w, ok = directWeight(at(twoWayEdge, 0.6), at(twoWayEdge, 0.2))
	assert.True(t, ok)
	assert.InDelta(t, 40, w, 1e-9)

	_, ok = directWeight(at(oneWayEdge, 0.6), at(oneWayEdge, 0.2))
	assert.False(t, ok, "cannot travel against a one-way arc")

	other := Resolved{From: 1, To: 2, Edge: graph.Edge{From: 1, To: 2, Weight: 100, Forward: true}, Ratio: 0.5}
	_, ok = directWeight(at(oneWayEdge, 0.2), other)
	assert.False(t, ok)
}
