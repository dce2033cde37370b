package routing

import (
	"errors"
	"fmt"

	"github.com/azybler/ch_router/pkg/graph"
	"github.com/azybler/ch_router/pkg/search"
)

const maxUnpackDepth = 200

// ErrEdgeReconstructionMismatch is returned when a shortcut cannot be
// replaced by the arcs it was built from.
var ErrEdgeReconstructionMismatch = errors.New("routing: edge reconstruction mismatch")

// ReconstructionError reports the hop that failed to expand.
type ReconstructionError struct {
	From, To uint32
	Reason   string
}

func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("routing: cannot expand %d -> %d: %s", e.From, e.To, e.Reason)
}

func (e *ReconstructionError) Unwrap() error { return ErrEdgeReconstructionMismatch }

// Expand replaces every shortcut hop of path by the atomic arcs it stands
// for. The root weight is kept, so the expanded tip weight equals the tip
// weight of path up to rounding.
func Expand(g *graph.Graph, path *search.Segment) (*search.Segment, error) {
	if path == nil {
		return nil, nil
	}
	vertices := path.Vertices()
	out := search.NewSeed(vertices[0], path.Root().Weight)
	for i := 0; i+1 < len(vertices); i++ {
		var err error
		out, err = expandHop(g, out, vertices[i], vertices[i+1])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// expandHop appends the atomic arcs of the hop from -> to onto out. It uses
// an explicit stack to avoid recursion.
func expandHop(g *graph.Graph, out *search.Segment, from, to uint32) (*search.Segment, error) {
	type item struct {
		from, to uint32
		depth    int
	}

	stack := []item{{from, to, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.depth > maxUnpackDepth {
			return nil, &ReconstructionError{From: from, To: to, Reason: "shortcut nesting too deep"}
		}

		a, ok := g.ArcBetween(it.from, it.to)
		if !ok {
			return nil, &ReconstructionError{From: it.from, To: it.to, Reason: "no arc"}
		}
		if !a.IsShortcut() {
			if out.Vertex != it.from {
				return nil, &ReconstructionError{From: it.from, To: it.to, Reason: fmt.Sprintf("does not continue from %d", out.Vertex)}
			}
			out = out.Extend(it.to, a.Weight)
			continue
		}

		m := a.Contracted
		// Push right half first so the left half is expanded first.
		stack = append(stack, item{m, it.to, it.depth + 1})
		stack = append(stack, item{it.from, m, it.depth + 1})
	}
	return out, nil
}
