package ch

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/azybler/ch_router/pkg/graph"
)

type edge struct {
	from, to          uint32
	weight            float64
	forward, backward bool
}

func buildGraph(t *testing.T, n int, edges []edge) *graph.Graph {
	t.Helper()
	g := graph.New(n)
	for i := 0; i < n; i++ {
		g.AddVertex(orb.Point{float64(i%10) * 0.01, float64(i/10) * 0.01})
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e.from, e.to, e.weight, e.forward, e.backward, graph.NoTags))
	}
	return g
}

func twoWay(from, to uint32, w float64) edge { return edge{from, to, w, true, true} }
func oneWay(from, to uint32, w float64) edge { return edge{from, to, w, true, false} }

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

// oracle builds a gonum graph of the uncontracted edges, keeping the
// lightest of parallel edges.
func oracle(n int, edges []edge) *simple.WeightedDirectedGraph {
	og := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for i := 0; i < n; i++ {
		og.AddNode(simple.Node(i))
	}
	set := func(u, v uint32, w float64) {
		if cur, ok := og.Weight(int64(u), int64(v)); ok && cur <= w {
			return
		}
		og.SetWeightedEdge(og.NewWeightedEdge(simple.Node(u), simple.Node(v), w))
	}
	for _, e := range edges {
		if e.forward {
			set(e.from, e.to, e.weight)
		}
		if e.backward {
			set(e.to, e.from, e.weight)
		}
	}
	return og
}

func oracleWeights(og *simple.WeightedDirectedGraph, n int) [][]float64 {
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

// upward runs an exhaustive Dijkstra from src over arcs allowing d.
func upward(g *graph.Graph, src uint32, d graph.Direction) map[uint32]float64 {
	dist := map[uint32]float64{src: 0}
	done := map[uint32]bool{}
	for {
		cur, best := graph.NoVertex, math.Inf(1)
		for v, w := range dist {
			if !done[v] && w < best {
				cur, best = v, w
			}
		}
		if cur == graph.NoVertex {
			return dist
		}
		done[cur] = true
		for _, a := range g.Arcs(cur) {
			if !a.Allows(d) {
				continue
			}
			if w, ok := dist[a.To]; !ok || best+a.Weight < w {
				dist[a.To] = best + a.Weight
			}
		}
	}
}

// chDistance answers s -> t on a contracted graph by meeting an upward
// forward search from s with an upward backward search from t.
func chDistance(g *graph.Graph, s, t uint32) float64 {
	fwd := upward(g, s, graph.Forward)
	bwd := upward(g, t, graph.Backward)
	best := math.Inf(1)
	for v, w := range fwd {
		if b, ok := bwd[v]; ok && w+b < best {
			best = w + b
		}
	}
	return best
}

func assertMatchesOracle(t *testing.T, g *graph.Graph, want [][]float64) {
	t.Helper()
	n := int(g.NumVertices())
	for s := 0; s < n; s++ {
		for d := 0; d < n; d++ {
			got := chDistance(g, uint32(s), uint32(d))
			if math.IsInf(want[s][d], 1) {
				require.True(t, math.IsInf(got, 1), "%d -> %d: want unreachable, got %v", s, d, got)
				continue
			}
			require.InDelta(t, want[s][d], got, 1e-9, "%d -> %d", s, d)
		}
	}
}
