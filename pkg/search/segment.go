package search

import "fmt"

// Segment is one link of an immutable path chain: the tip vertex, the
// cumulative weight from the chain root and the preceding link. Chains share
// their prefixes; a Segment is never modified after construction.
type Segment struct {
	Vertex uint32
	Weight float64
	From   *Segment
}

// NewRoot starts a chain at v with weight 0.
func NewRoot(v uint32) *Segment { return &Segment{Vertex: v} }

// NewSeed starts a chain at v with an initial weight, used when a search
// starts part way along an edge.
func NewSeed(v uint32, weight float64) *Segment { return &Segment{Vertex: v, Weight: weight} }

// Extend returns a new tip reached from s over an arc of the given weight.
func (s *Segment) Extend(v uint32, arcWeight float64) *Segment {
	return &Segment{Vertex: v, Weight: s.Weight + arcWeight, From: s}
}

// Root returns the first link of the chain.
func (s *Segment) Root() *Segment {
	for s.From != nil {
		s = s.From
	}
	return s
}

// Len returns the number of vertices in the chain.
func (s *Segment) Len() int {
	n := 0
	for ; s != nil; s = s.From {
		n++
	}
	return n
}

// Vertices returns the chain's vertices from root to tip.
func (s *Segment) Vertices() []uint32 {
	out := make([]uint32, s.Len())
	i := len(out) - 1
	for ; s != nil; s = s.From {
		out[i] = s.Vertex
		i--
	}
	return out
}

// Weights returns the cumulative weights from root to tip.
func (s *Segment) Weights() []float64 {
	out := make([]float64, s.Len())
	i := len(out) - 1
	for ; s != nil; s = s.From {
		out[i] = s.Weight
		i--
	}
	return out
}

// Reverse returns the chain walked from tip to root, with weights measured
// from the old tip. The new root has weight 0.
func (s *Segment) Reverse() *Segment {
	total := s.Weight
	r := &Segment{Vertex: s.Vertex}
	for cur := s.From; cur != nil; cur = cur.From {
		r = &Segment{Vertex: cur.Vertex, Weight: total - cur.Weight, From: r}
	}
	return r
}

// Concatenate appends tail to head. The root of tail must be the tip vertex
// of head; tail's weights are rebased onto head's tip weight.
func Concatenate(head, tail *Segment) (*Segment, error) {
	root := tail.Root()
	if root.Vertex != head.Vertex {
		return nil, fmt.Errorf("%w: head ends at %d, tail starts at %d", ErrSegmentMismatch, head.Vertex, root.Vertex)
	}

	// Collect tail root..tip, skipping the shared root.
	links := make([]*Segment, 0, tail.Len())
	for cur := tail; cur != root; cur = cur.From {
		links = append(links, cur)
	}

	out := head
	for i := len(links) - 1; i >= 0; i-- {
		out = &Segment{Vertex: links[i].Vertex, Weight: head.Weight + links[i].Weight - root.Weight, From: out}
	}
	return out, nil
}

func (s *Segment) String() string {
	return fmt.Sprintf("%v (%.3f)", s.Vertices(), s.Weight)
}
