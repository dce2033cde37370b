package search

// Frontier is a weight-ordered set of path tips with at most one live entry
// per vertex. Segments are grouped in buckets of equal weight; a min-heap
// orders the distinct bucket weights. Superseded entries stay in their bucket
// and are skipped when they reach the top.
//
// Within a bucket the most recent push is popped first.
type Frontier struct {
	buckets map[float64][]*Segment
	weights weightHeap
	live    map[uint32]*Segment // vertex -> its current best entry
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		buckets: make(map[float64][]*Segment),
		live:    make(map[uint32]*Segment),
	}
}

// Push inserts s, or replaces the entry for s.Vertex if s is lighter.
// It reports false, leaving the frontier unchanged, when the vertex already
// has an entry with weight <= s.Weight.
func (f *Frontier) Push(s *Segment) bool {
	if cur, ok := f.live[s.Vertex]; ok && cur.Weight <= s.Weight {
		return false
	}
	f.live[s.Vertex] = s

	b, ok := f.buckets[s.Weight]
	if !ok {
		f.weights.Push(s.Weight)
	}
	f.buckets[s.Weight] = append(b, s)
	return true
}

// Pop removes and returns the lightest entry.
func (f *Frontier) Pop() (*Segment, error) {
	if !f.prune() {
		return nil, ErrEmptyFrontier
	}
	w := f.weights.Peek()
	b := f.buckets[w]
	s := b[len(b)-1]
	b[len(b)-1] = nil
	b = b[:len(b)-1]
	if len(b) == 0 {
		delete(f.buckets, w)
		f.weights.Pop()
	} else {
		f.buckets[w] = b
	}
	delete(f.live, s.Vertex)
	return s, nil
}

// PeekWeight returns the weight of the lightest entry without removing it.
func (f *Frontier) PeekWeight() (float64, error) {
	if !f.prune() {
		return 0, ErrEmptyFrontier
	}
	return f.weights.Peek(), nil
}

// Len returns the number of live entries.
func (f *Frontier) Len() int { return len(f.live) }

// Get returns the live entry for v.
func (f *Frontier) Get(v uint32) (*Segment, bool) {
	s, ok := f.live[v]
	return s, ok
}

// prune drops superseded entries from the top bucket until a live entry is
// on top. Returns false if the frontier is empty.
func (f *Frontier) prune() bool {
	for f.weights.Len() > 0 {
		w := f.weights.Peek()
		b := f.buckets[w]
		for len(b) > 0 {
			top := b[len(b)-1]
			if f.live[top.Vertex] == top {
				f.buckets[w] = b
				return true
			}
			b[len(b)-1] = nil
			b = b[:len(b)-1]
		}
		delete(f.buckets, w)
		f.weights.Pop()
	}
	return false
}

// weightHeap is a concrete-typed min-heap of bucket weights.
// Avoids interface boxing overhead of container/heap.
type weightHeap struct {
	items []float64
}

func (h *weightHeap) Len() int { return len(h.items) }

func (h *weightHeap) Peek() float64 { return h.items[0] }

func (h *weightHeap) Push(w float64) {
	h.items = append(h.items, w)
	h.siftUp(len(h.items) - 1)
}

func (h *weightHeap) Pop() float64 {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

func (h *weightHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i] >= h.items[parent] {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *weightHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.items[left] < h.items[smallest] {
			smallest = left
		}
		if right < n && h.items[right] < h.items[smallest] {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
