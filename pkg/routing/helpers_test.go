package routing

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/azybler/ch_router/pkg/ch"
	"github.com/azybler/ch_router/pkg/graph"
)

type edge struct {
	from, to          uint32
	weight            float64
	forward, backward bool
}

func twoWay(from, to uint32, w float64) edge { return edge{from, to, w, true, true} }
func oneWay(from, to uint32, w float64) edge { return edge{from, to, w, true, false} }

// buildGraph lays n vertices out on a grid ten wide, 0.001 degrees apart.
func buildGraph(t *testing.T, n int, edges []edge) *graph.Graph {
	t.Helper()
	g := graph.New(n)
	for i := 0; i < n; i++ {
		g.AddVertex(orb.Point{float64(i%10) * 0.001, float64(i/10) * 0.001})
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e.from, e.to, e.weight, e.forward, e.backward, graph.NoTags))
	}
	return g
}

// contract builds the hierarchy in place, in the given order if any.
func contract(t *testing.T, g *graph.Graph, order []uint32) *graph.Graph {
	t.Helper()
	opts := ch.DefaultOptions()
	opts.Order = order
	_, err := ch.Contract(context.Background(), g, opts)
	require.NoError(t, err)
	return g
}

func newTestEngine(t *testing.T, g *graph.Graph, tags *graph.TagStore) *Engine {
	t.Helper()
	return NewEngine(g, tags, zaptest.NewLogger(t))
}

// gridEdges connects a w x h grid with two-way unit arcs.
func gridEdges(w, h int) []edge {
	var edges []edge
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint32(y*w + x)
			if x+1 < w {
				edges = append(edges, twoWay(v, v+1, 1))
			}
			if y+1 < h {
				edges = append(edges, twoWay(v, v+uint32(w), 1))
			}
		}
	}
	return edges
}

// randomEdges returns m random edges with integral weights so that sums
// compare exactly.
func randomEdges(rng *rand.Rand, n, m int) []edge {
	edges := make([]edge, 0, m)
	for len(edges) < m {
		u := uint32(rng.Intn(n))
		v := uint32(rng.Intn(n))
		if u == v {
			continue
		}
		edges = append(edges, edge{
			from:     u,
			to:       v,
			weight:   float64(1 + rng.Intn(100)),
			forward:  true,
			backward: rng.Intn(2) == 0,
		})
	}
	return edges
}

// lightestArcs maps every directed pair to the weight of its lightest
// uncontracted arc.
func lightestArcs(edges []edge) map[[2]uint32]float64 {
	out := make(map[[2]uint32]float64)
	set := func(u, v uint32, w float64) {
		if cur, ok := out[[2]uint32{u, v}]; !ok || w < cur {
			out[[2]uint32{u, v}] = w
		}
	}
	for _, e := range edges {
		if e.forward {
			set(e.from, e.to, e.weight)
		}
		if e.backward {
			set(e.to, e.from, e.weight)
		}
	}
	return out
}

// oracleWeights answers every pair with gonum's Dijkstra on the
// uncontracted edges.
func oracleWeights(n int, edges []edge) [][]float64 {
	og := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for i := 0; i < n; i++ {
		og.AddNode(simple.Node(i))
	}
	for pair, w := range lightestArcs(edges) {
		og.SetWeightedEdge(og.NewWeightedEdge(simple.Node(pair[0]), simple.Node(pair[1]), w))
	}

	out := make([][]float64, n)
	for s := 0; s < n; s++ {
		sh := path.DijkstraFrom(simple.Node(s), og)
		out[s] = make([]float64, n)
		for t := 0; t < n; t++ {
			out[s][t] = sh.WeightTo(int64(t))
		}
	}
	return out
}
