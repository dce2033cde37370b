package ch

import "github.com/azybler/ch_router/pkg/graph"

// neighbour is a distinct live neighbour with the lightest connecting arc.
type neighbour struct {
	id     uint32
	weight float64
}

// shortcut represents a shortcut edge to be added.
type shortcut struct {
	from, to uint32
	weight   float64
}

// neighbours returns the distinct live neighbours of v in direction d,
// in order of first appearance, keeping the lightest arc weight for each.
func neighbours(g *graph.Graph, v uint32, d graph.Direction) []neighbour {
	var out []neighbour
	for _, a := range g.Arcs(v) {
		if !a.Allows(d) || a.To == v {
			continue
		}
		found := false
		for i := range out {
			if out[i].id == a.To {
				if a.Weight < out[i].weight {
					out[i].weight = a.Weight
				}
				found = true
				break
			}
		}
		if !found {
			out = append(out, neighbour{id: a.To, weight: a.Weight})
		}
	}
	return out
}

// findShortcuts determines which shortcuts contracting v needs and how many
// neighbour arcs contracting it removes. It runs one batch witness search per
// incoming neighbour instead of one per (incoming, outgoing) pair.
func findShortcuts(wc *WitnessCalculator, v uint32) (shortcuts []shortcut, removed int) {
	incoming := neighbours(wc.g, v, graph.Backward)
	outgoing := neighbours(wc.g, v, graph.Forward)
	removed = len(incoming) + len(outgoing)

	if len(incoming) == 0 || len(outgoing) == 0 {
		return nil, removed
	}

	bounds := make(map[uint32]float64, len(outgoing))
	for _, in := range incoming {
		clear(bounds)
		for _, out := range outgoing {
			if out.id != in.id {
				bounds[out.id] = in.weight + out.weight
			}
		}
		if len(bounds) == 0 {
			continue // every outgoing arc leads back to in.id
		}

		found := wc.Witnesses(in.id, v, bounds)
		for _, out := range outgoing {
			if out.id == in.id || found[out.id] {
				continue
			}
			shortcuts = append(shortcuts, shortcut{
				from:   in.id,
				to:     out.id,
				weight: in.weight + out.weight,
			})
		}
	}
	return shortcuts, removed
}

// EdgeDifference returns the number of shortcuts contracting v would add
// minus the number of arcs it would remove, on the calculator's live graph.
// Incoming and outgoing neighbours are counted separately, so a two-way
// neighbour counts twice. Lower values are contracted first.
func EdgeDifference(wc *WitnessCalculator, v uint32) int {
	shortcuts, removed := findShortcuts(wc, v)
	return len(shortcuts) - removed
}
