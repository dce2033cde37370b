package graph

import "github.com/RoaringBitmap/roaring/v2"

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte // max rank stays around 30 on real graphs
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}

	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// LargestComponent returns the vertices of the largest weakly connected
// component (arcs treated as undirected).
func LargestComponent(g *Graph) *roaring.Bitmap {
	members := roaring.New()
	n := g.NumVertices()
	if n == 0 {
		return members
	}

	uf := NewUnionFind(n)
	for u := uint32(0); u < n; u++ {
		for _, a := range g.Arcs(u) {
			uf.Union(u, a.To)
		}
	}

	bestRoot := uint32(0)
	bestSize := uint32(0)
	for i := uint32(0); i < n; i++ {
		root := uf.Find(i)
		if uf.size[root] > bestSize {
			bestRoot = root
			bestSize = uf.size[root]
		}
	}

	for i := uint32(0); i < n; i++ {
		if uf.Find(i) == bestRoot {
			members.Add(i)
		}
	}
	return members
}

// FilterToComponent creates a new graph containing only the given vertices
// and the edges between them. New ids follow the ascending order of the old
// ones. The result is unleveled and carries no shortcuts.
func FilterToComponent(g *Graph, members *roaring.Bitmap) *Graph {
	if members == nil || members.IsEmpty() {
		return New(0)
	}

	nodes := members.ToArray()
	out := New(len(nodes))
	for _, old := range nodes {
		out.AddVertex(g.vertices[old].Coord)
	}

	newID := func(old uint32) uint32 { return uint32(members.Rank(old) - 1) }

	for _, e := range g.edges {
		if !members.Contains(e.From) || !members.Contains(e.To) {
			continue
		}
		_ = out.AddEdge(newID(e.From), newID(e.To), e.Weight, e.Forward, e.Backward, e.Tags)
	}
	return out
}
