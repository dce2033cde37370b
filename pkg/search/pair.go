package search

import (
	"fmt"
	"math"

	"github.com/azybler/ch_router/pkg/graph"
)

// Pair holds the settled vertices of a forward and a backward search and
// tracks the vertices settled by both, which are the candidate meeting
// points of a bidirectional query.
type Pair struct {
	forward  map[uint32]*Segment
	backward map[uint32]*Segment
	meet     map[uint32]float64

	bestVertex uint32
	bestWeight float64
}

// NewPair creates an empty pair.
func NewPair() *Pair {
	return &Pair{
		forward:    make(map[uint32]*Segment),
		backward:   make(map[uint32]*Segment),
		meet:       make(map[uint32]float64),
		bestVertex: graph.NoVertex,
		bestWeight: math.Inf(1),
	}
}

func (p *Pair) side(d graph.Direction) (own, other map[uint32]*Segment) {
	if d == graph.Forward {
		return p.forward, p.backward
	}
	return p.backward, p.forward
}

// Settle records s as settled in direction d. A vertex that is already
// settled at a lower or equal weight keeps its segment. Returns whether s
// was recorded.
func (p *Pair) Settle(d graph.Direction, s *Segment) bool {
	own, other := p.side(d)
	if cur, ok := own[s.Vertex]; ok && cur.Weight <= s.Weight {
		return false
	}
	own[s.Vertex] = s

	if o, ok := other[s.Vertex]; ok {
		w := s.Weight + o.Weight
		p.meet[s.Vertex] = w
		if w < p.bestWeight {
			p.bestWeight = w
			p.bestVertex = s.Vertex
		}
	}
	return true
}

// Settled returns the segment with which v was settled in direction d.
func (p *Pair) Settled(d graph.Direction, v uint32) (*Segment, bool) {
	own, _ := p.side(d)
	s, ok := own[v]
	return s, ok
}

// Meeting returns the combined weight of v if it was settled in both directions.
func (p *Pair) Meeting(v uint32) (float64, bool) {
	w, ok := p.meet[v]
	return w, ok
}

// NumMeetings returns the number of vertices settled in both directions.
func (p *Pair) NumMeetings() int { return len(p.meet) }

// NumSettled returns the number of settled vertices in direction d.
func (p *Pair) NumSettled(d graph.Direction) int {
	own, _ := p.side(d)
	return len(own)
}

// Best returns the meeting vertex with the lowest combined weight.
func (p *Pair) Best() (uint32, float64, bool) {
	if p.bestVertex == graph.NoVertex {
		return graph.NoVertex, math.Inf(1), false
	}
	return p.bestVertex, p.bestWeight, true
}

// Path joins the forward and backward chains at v into one chain running
// from the forward root to the backward root.
func (p *Pair) Path(v uint32) (*Segment, error) {
	fwd, ok := p.forward[v]
	if !ok {
		return nil, fmt.Errorf("%w: %d not settled forward", ErrSegmentMismatch, v)
	}
	bwd, ok := p.backward[v]
	if !ok {
		return nil, fmt.Errorf("%w: %d not settled backward", ErrSegmentMismatch, v)
	}
	return Concatenate(fwd, bwd.Reverse())
}
