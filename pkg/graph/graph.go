package graph

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

const (
	// NoVertex marks an atomic arc (not a shortcut) and "no vertex" results.
	NoVertex = ^uint32(0)
	// NoLevel is the level of a vertex that has not been contracted.
	NoLevel = ^uint32(0)
	// NoTags is the tag-set id of arcs without tags (shortcuts).
	NoTags = ^uint32(0)
)

var (
	// ErrVertexNotFound is returned when a vertex id is outside the graph.
	ErrVertexNotFound = errors.New("graph: vertex not found")

	// ErrNegativeWeight is returned when an edge is added with a negative or NaN weight.
	ErrNegativeWeight = errors.New("graph: negative edge weight")
)

// Direction selects which arcs Neighbours yields.
type Direction uint8

const (
	// Forward selects arcs traversable from the owning vertex to Arc.To.
	Forward Direction = iota
	// Backward selects arcs traversable from Arc.To to the owning vertex.
	Backward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// Arc is one endpoint's view of an edge. Every edge is stored twice, once in
// each endpoint's list, with the direction flags mirrored.
type Arc struct {
	To         uint32
	Weight     float64
	Forward    bool   // owner -> To is traversable
	Backward   bool   // To -> owner is traversable
	Contracted uint32 // NoVertex for atomic arcs, else the vertex this shortcut bypasses
	Tags       uint32 // tag-set id, NoTags for shortcuts
}

// IsShortcut reports whether the arc was added during contraction.
func (a Arc) IsShortcut() bool { return a.Contracted != NoVertex }

// Allows reports whether the arc can be traversed in direction d.
func (a Arc) Allows(d Direction) bool {
	if d == Forward {
		return a.Forward
	}
	return a.Backward
}

// Edge is a road segment as it was added, independent of the shortcuts that
// later replace its arcs. Resolving and partial-arc seeding use edges.
type Edge struct {
	From, To uint32
	Weight   float64
	Forward  bool // From -> To is traversable
	Backward bool // To -> From is traversable
	Tags     uint32
}

// Vertex is a node of the road network.
type Vertex struct {
	Coord orb.Point
	Level uint32
	Arcs  []Arc
}

// Graph is a directed weighted graph keyed by dense vertex ids.
//
// Until contraction every edge is present in both endpoints' arc lists. When
// a vertex is contracted its mirrors are dropped from its neighbours, so a
// contracted vertex keeps only arcs towards vertices contracted after it.
// Once leveled the graph must not be mutated; concurrent reads are safe.
type Graph struct {
	vertices []Vertex
	edges    []Edge
	spatial  rtree.RTreeG[uint32]
	numArcs  int
}

// New creates an empty graph with room for capacity vertices.
func New(capacity int) *Graph {
	return &Graph{vertices: make([]Vertex, 0, capacity)}
}

// AddVertex appends a vertex at the given coordinate and returns its id.
func (g *Graph) AddVertex(coord orb.Point) uint32 {
	id := uint32(len(g.vertices))
	g.vertices = append(g.vertices, Vertex{Coord: coord, Level: NoLevel})
	g.spatial.Insert(coord, coord, id)
	return id
}

// NumVertices returns the number of vertices.
func (g *Graph) NumVertices() uint32 { return uint32(len(g.vertices)) }

// NumArcs returns the number of stored arcs across all vertices.
func (g *Graph) NumArcs() int { return g.numArcs }

// NumShortcuts counts stored shortcut arcs.
func (g *Graph) NumShortcuts() int {
	n := 0
	for i := range g.vertices {
		for _, a := range g.vertices[i].Arcs {
			if a.IsShortcut() {
				n++
			}
		}
	}
	return n
}

// Edges returns every atomic edge in insertion order. The slice must not be
// modified.
func (g *Graph) Edges() []Edge { return g.edges }

// Has reports whether id names a vertex of g.
func (g *Graph) Has(id uint32) bool { return id < uint32(len(g.vertices)) }

// Coordinate returns the position of vertex id.
func (g *Graph) Coordinate(id uint32) (orb.Point, error) {
	if !g.Has(id) {
		return orb.Point{}, fmt.Errorf("%w: %d", ErrVertexNotFound, id)
	}
	return g.vertices[id].Coord, nil
}

// Level returns the contraction level of id, NoLevel if uncontracted.
func (g *Graph) Level(id uint32) uint32 { return g.vertices[id].Level }

// SetLevel assigns the contraction level of id.
func (g *Graph) SetLevel(id, level uint32) error {
	if !g.Has(id) {
		return fmt.Errorf("%w: %d", ErrVertexNotFound, id)
	}
	g.vertices[id].Level = level
	return nil
}

// Arcs returns the stored arc list of id. The slice must not be modified.
func (g *Graph) Arcs(id uint32) []Arc { return g.vertices[id].Arcs }

// Neighbours returns the arcs of id traversable in direction d.
func (g *Graph) Neighbours(id uint32, d Direction) []Arc {
	var out []Arc
	for _, a := range g.vertices[id].Arcs {
		if a.Allows(d) {
			out = append(out, a)
		}
	}
	return out
}

// AddEdge adds an atomic edge between from and to. Self loops are ignored.
func (g *Graph) AddEdge(from, to uint32, weight float64, forward, backward bool, tags uint32) error {
	if !g.Has(from) {
		return fmt.Errorf("%w: %d", ErrVertexNotFound, from)
	}
	if !g.Has(to) {
		return fmt.Errorf("%w: %d", ErrVertexNotFound, to)
	}
	if weight < 0 || math.IsNaN(weight) {
		return fmt.Errorf("%w: %d->%d weight=%f", ErrNegativeWeight, from, to, weight)
	}
	if from == to || (!forward && !backward) {
		return nil
	}
	g.edges = append(g.edges, Edge{From: from, To: to, Weight: weight, Forward: forward, Backward: backward, Tags: tags})
	g.appendPair(from, to, Arc{To: to, Weight: weight, Forward: forward, Backward: backward, Contracted: NoVertex, Tags: tags})
	return nil
}

// appendPair stores a on from and its mirror on a.To.
func (g *Graph) appendPair(from, to uint32, a Arc) {
	g.vertices[from].Arcs = append(g.vertices[from].Arcs, a)
	g.vertices[to].Arcs = append(g.vertices[to].Arcs, mirror(from, a))
	g.numArcs += 2
}

func mirror(owner uint32, a Arc) Arc {
	return Arc{To: owner, Weight: a.Weight, Forward: a.Backward, Backward: a.Forward, Contracted: a.Contracted, Tags: a.Tags}
}

// AddShortcut adds the directed shortcut from->to bypassing via. An existing
// from->to arc is only replaced when the shortcut is strictly lighter; a
// heavier or equal shortcut is never inserted. Returns whether the graph
// changed.
func (g *Graph) AddShortcut(from, to uint32, weight float64, via uint32) bool {
	arcs := g.vertices[from].Arcs
	best := -1
	for i, a := range arcs {
		if a.To == to && a.Forward && (best < 0 || a.Weight < arcs[best].Weight) {
			best = i
		}
	}

	if best >= 0 {
		existing := arcs[best]
		if existing.Weight <= weight {
			return false
		}
		if existing.Backward {
			// Keep the reverse direction, hand the forward one to the shortcut.
			g.rewrite(from, existing, func(a *Arc) { a.Forward = false })
		} else {
			g.remove(from, existing)
		}
		arcs = g.vertices[from].Arcs
	}

	// Merge with a reverse shortcut through the same vertex.
	for i, a := range arcs {
		if a.To == to && !a.Forward && a.Backward && a.Contracted == via && a.Weight == weight {
			g.rewrite(from, arcs[i], func(a *Arc) { a.Forward = true })
			return true
		}
	}

	g.appendPair(from, to, Arc{To: to, Weight: weight, Forward: true, Contracted: via, Tags: NoTags})
	return true
}

// remove drops the first arc on owner equal to old and its mirror.
func (g *Graph) remove(owner uint32, old Arc) {
	g.vertices[owner].Arcs = dropArc(g.vertices[owner].Arcs, old)
	g.vertices[old.To].Arcs = dropArc(g.vertices[old.To].Arcs, mirror(owner, old))
	g.numArcs -= 2
}

func dropArc(arcs []Arc, old Arc) []Arc {
	for i := range arcs {
		if arcs[i] == old {
			return append(arcs[:i], arcs[i+1:]...)
		}
	}
	return arcs
}

// rewrite applies fn to the first arc on owner equal to old and to its mirror.
func (g *Graph) rewrite(owner uint32, old Arc, fn func(*Arc)) {
	arcs := g.vertices[owner].Arcs
	for i := range arcs {
		if arcs[i] == old {
			fn(&arcs[i])
			break
		}
	}
	m := mirror(owner, old)
	back := g.vertices[old.To].Arcs
	for i := range back {
		if back[i] == m {
			updated := mirror(old.To, back[i])
			fn(&updated)
			back[i] = mirror(owner, updated)
			break
		}
	}
}

// RemoveEdgesOf drops the mirror arcs pointing at id from all of its
// neighbours. The arcs stored on id itself are kept: they remain the
// vertex's upward search arcs and are needed for shortcut expansion.
func (g *Graph) RemoveEdgesOf(id uint32) {
	for _, a := range g.vertices[id].Arcs {
		list := g.vertices[a.To].Arcs
		kept := list[:0]
		for _, b := range list {
			if b.To != id {
				kept = append(kept, b)
			}
		}
		g.numArcs -= len(list) - len(kept)
		g.vertices[a.To].Arcs = kept
	}
}

// ArcBetween returns the lightest arc traversable from -> to: a forward arc
// stored on from, or else a backward arc stored on to.
func (g *Graph) ArcBetween(from, to uint32) (Arc, bool) {
	var best Arc
	found := false
	for _, a := range g.vertices[from].Arcs {
		if a.To == to && a.Forward && (!found || a.Weight < best.Weight) {
			best, found = a, true
		}
	}
	if found {
		return best, true
	}
	for _, a := range g.vertices[to].Arcs {
		if a.To == from && a.Backward && (!found || a.Weight < best.Weight) {
			best, found = a, true
		}
	}
	if found {
		// Present it from the caller's perspective.
		best = mirror(to, best)
	}
	return best, found
}

// VerticesInBox returns the ids of all vertices inside b.
func (g *Graph) VerticesInBox(b orb.Bound) []uint32 {
	var ids []uint32
	g.spatial.Search(b.Min, b.Max, func(_, _ [2]float64, id uint32) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := New(len(g.vertices))
	for _, v := range g.vertices {
		id := c.AddVertex(v.Coord)
		c.vertices[id].Level = v.Level
		c.vertices[id].Arcs = append([]Arc(nil), v.Arcs...)
	}
	c.edges = append([]Edge(nil), g.edges...)
	c.numArcs = g.numArcs
	return c
}
