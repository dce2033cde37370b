package graph

import (
	"github.com/paulmach/osm"

	osmparser "github.com/azybler/ch_router/pkg/osm"
)

// Build creates a Graph from parsed OSM edges. Vertex ids are assigned in
// order of first appearance. Edges whose endpoints lack a coordinate are
// skipped.
func Build(result *osmparser.ParseResult) (*Graph, *TagStore) {
	tags := NewTagStore()
	edges := result.Edges
	if len(edges) == 0 {
		return New(0), tags
	}

	// Step 1: Compact mapping from OSM node ids to vertex ids.
	nodeSet := make(map[osm.NodeID]uint32, len(result.Coords))
	g := New(len(result.Coords))

	addNode := func(id osm.NodeID) (uint32, bool) {
		if idx, ok := nodeSet[id]; ok {
			return idx, true
		}
		coord, ok := result.Coords[id]
		if !ok {
			return 0, false
		}
		idx := g.AddVertex(coord)
		nodeSet[id] = idx
		return idx, true
	}

	// Step 2: Add edges with interned tag sets.
	for _, e := range edges {
		from, ok := addNode(e.FromNodeID)
		if !ok {
			continue
		}
		to, ok := addNode(e.ToNodeID)
		if !ok {
			continue
		}
		tagID := NoTags
		if len(e.Tags) > 0 {
			tagID = tags.Add(e.Tags)
		}
		// Weights are validated by the parser; AddEdge only fails on bad ids.
		_ = g.AddEdge(from, to, e.Weight, e.Forward, e.Backward, tagID)
	}

	return g, tags
}
