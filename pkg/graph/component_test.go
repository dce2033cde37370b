package graph

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	osmparser "github.com/azybler/ch_router/pkg/osm"
)

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind(5)

	for i := range uint32(5) {
		assert.Equal(t, i, uf.Find(i))
	}

	assert.True(t, uf.Union(0, 1))
	assert.Equal(t, uf.Find(0), uf.Find(1))

	assert.True(t, uf.Union(2, 3))
	assert.Equal(t, uf.Find(2), uf.Find(3))
	assert.NotEqual(t, uf.Find(0), uf.Find(2))

	assert.True(t, uf.Union(1, 3))
	assert.Equal(t, uf.Find(0), uf.Find(3))
	assert.False(t, uf.Union(0, 2), "already joined")
}

func twoComponents() *osmparser.ParseResult {
	return &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			// Component 1: one-way triangle
			{FromNodeID: 10, ToNodeID: 20, Weight: 100, Forward: true},
			{FromNodeID: 20, ToNodeID: 30, Weight: 200, Forward: true},
			{FromNodeID: 30, ToNodeID: 10, Weight: 300, Forward: true},
			// Component 2: isolated pair
			{FromNodeID: 40, ToNodeID: 50, Weight: 400, Forward: true, Backward: true},
		},
		Coords: map[osm.NodeID]orb.Point{
			10: {103.0, 1.0},
			20: {103.1, 1.1},
			30: {103.2, 1.2},
			40: {104.0, 2.0},
			50: {104.1, 2.1},
		},
	}
}

func TestLargestComponent(t *testing.T) {
	g, _ := Build(twoComponents())
	members := LargestComponent(g)

	assert.Equal(t, uint64(3), members.GetCardinality())
	assert.Equal(t, []uint32{0, 1, 2}, members.ToArray())
}

func TestFilterToComponent(t *testing.T) {
	g, _ := Build(twoComponents())
	filtered := FilterToComponent(g, LargestComponent(g))

	require.Equal(t, uint32(3), filtered.NumVertices())
	assert.Equal(t, 6, filtered.NumArcs())

	// Only the triangle survives: 100+200+300.
	var total float64
	for i := uint32(0); i < filtered.NumVertices(); i++ {
		for _, a := range filtered.Neighbours(i, Forward) {
			total += a.Weight
		}
	}
	assert.Equal(t, 600.0, total)

	a, ok := filtered.ArcBetween(2, 0)
	require.True(t, ok)
	assert.Equal(t, 300.0, a.Weight)
	_, ok = filtered.ArcBetween(0, 2)
	assert.False(t, ok, "direction flags survive filtering")
}

func TestFilterToComponentEmptyGraph(t *testing.T) {
	g := New(0)
	members := LargestComponent(g)
	assert.True(t, members.IsEmpty())

	filtered := FilterToComponent(g, nil)
	assert.Zero(t, filtered.NumVertices())
	assert.Zero(t, filtered.NumArcs())
}
