package ch

import (
	"math"

	"github.com/azybler/ch_router/pkg/graph"
)

const (
	defaultMaxSettled = 500 // max vertices settled during a witness search
	defaultMaxHops    = 5   // max hops from source
)

// witnessHeapItem is an entry in the witness search min-heap.
type witnessHeapItem struct {
	node uint32
	dist float64
	hops int
}

// witnessHeap is a concrete-typed binary min-heap for witness search.
type witnessHeap struct {
	items []witnessHeapItem
}

func (h *witnessHeap) Len() int { return len(h.items) }

func (h *witnessHeap) Push(node uint32, dist float64, hops int) {
	h.items = append(h.items, witnessHeapItem{node, dist, hops})
	h.siftUp(len(h.items) - 1)
}

func (h *witnessHeap) Pop() witnessHeapItem {
	top := h.items[0]
	n := len(h.items) - 1
	h.items[0] = h.items[n]
	h.items = h.items[:n]
	if n > 0 {
		h.siftDown(0)
	}
	return top
}

// siftUp and siftDown use hole-sift: they save the floating item and do 1
// assignment per level instead of 3 (swap).
func (h *witnessHeap) siftUp(i int) {
	item := h.items[i]
	for i > 0 {
		parent := (i - 1) / 2
		if item.dist >= h.items[parent].dist {
			break
		}
		h.items[i] = h.items[parent]
		i = parent
	}
	h.items[i] = item
}

func (h *witnessHeap) siftDown(i int) {
	n := len(h.items)
	item := h.items[i]
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if right := child + 1; right < n && h.items[right].dist < h.items[child].dist {
			child = right
		}
		if item.dist <= h.items[child].dist {
			break
		}
		h.items[i] = h.items[child]
		i = child
	}
	h.items[i] = item
}

func (h *witnessHeap) Reset() {
	h.items = h.items[:0]
}

// WitnessCalculator answers whether a path between two vertices avoiding a
// third exists within a weight bound. It searches the live graph only: arcs
// of contracted vertices have already been removed from their neighbours.
//
// A search that hits its settle or hop limit before resolving reports "no
// witness", which at worst adds a redundant shortcut.
//
// A WitnessCalculator reuses its buffers between calls and is not safe for
// concurrent use.
type WitnessCalculator struct {
	g          *graph.Graph
	maxSettled int
	maxHops    int

	dist    []float64 // tentative distance indexed by vertex id
	touched []uint32  // vertices with a finite dist (for fast reset)
	heap    witnessHeap
}

// NewWitnessCalculator creates a calculator for g. Non-positive limits fall
// back to the defaults.
func NewWitnessCalculator(g *graph.Graph, maxSettled, maxHops int) *WitnessCalculator {
	if maxSettled <= 0 {
		maxSettled = defaultMaxSettled
	}
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	dist := make([]float64, g.NumVertices())
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	return &WitnessCalculator{
		g:          g,
		maxSettled: maxSettled,
		maxHops:    maxHops,
		dist:       dist,
		heap:       witnessHeap{items: make([]witnessHeapItem, 0, 256)},
	}
}

func (wc *WitnessCalculator) reset() {
	for _, n := range wc.touched {
		wc.dist[n] = math.Inf(1)
	}
	wc.touched = wc.touched[:0]
	wc.heap.Reset()
}

// Exists reports whether a path source -> target avoiding avoid with weight
// <= bound was found.
func (wc *WitnessCalculator) Exists(source, target, avoid uint32, bound float64) bool {
	wc.run(source, avoid, bound, map[uint32]struct{}{target: {}})
	return wc.dist[target] <= bound
}

// Witnesses runs one search from source and reports, for every target in
// bounds, whether a path avoiding avoid within that target's bound was found.
func (wc *WitnessCalculator) Witnesses(source, avoid uint32, bounds map[uint32]float64) map[uint32]bool {
	found := make(map[uint32]bool, len(bounds))
	if len(bounds) == 0 {
		return found
	}

	maxWeight := 0.0
	pending := make(map[uint32]struct{}, len(bounds))
	for t, b := range bounds {
		pending[t] = struct{}{}
		if b > maxWeight {
			maxWeight = b
		}
	}

	wc.run(source, avoid, maxWeight, pending)

	for t, b := range bounds {
		found[t] = wc.dist[t] <= b
	}
	return found
}

// run is a forward Dijkstra from source that never enters avoid. It stops
// once every pending vertex is settled, the frontier minimum exceeds
// maxWeight, or the settle limit is reached. Hop-limited vertices are
// settled but not expanded.
func (wc *WitnessCalculator) run(source, avoid uint32, maxWeight float64, pending map[uint32]struct{}) {
	wc.reset()

	wc.dist[source] = 0
	wc.touched = append(wc.touched, source)
	wc.heap.Push(source, 0, 0)

	remaining := len(pending)
	settled := 0

	for wc.heap.Len() > 0 {
		cur := wc.heap.Pop()

		// Skip stale entries.
		if cur.dist > wc.dist[cur.node] {
			continue
		}
		if cur.dist > maxWeight {
			break
		}

		if _, ok := pending[cur.node]; ok {
			remaining--
			if remaining == 0 {
				break
			}
		}

		settled++
		if settled >= wc.maxSettled {
			break
		}

		if cur.hops >= wc.maxHops {
			continue
		}

		for _, a := range wc.g.Arcs(cur.node) {
			if !a.Forward || a.To == avoid {
				continue
			}

			newDist := cur.dist + a.Weight
			if newDist > maxWeight {
				continue
			}

			if newDist < wc.dist[a.To] {
				if math.IsInf(wc.dist[a.To], 1) {
					wc.touched = append(wc.touched, a.To)
				}
				wc.dist[a.To] = newDist
				wc.heap.Push(a.To, newDist, cur.hops+1)
			}
		}
	}
}
