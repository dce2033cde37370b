package ch

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/bits-and-blooms/bitset"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/azybler/ch_router/pkg/graph"
)

// defaultMaxShortcutsPerVertex is the limit on shortcuts a single contraction
// can create. Vertices exceeding it form an uncontracted "core" at the top of
// the hierarchy.
const defaultMaxShortcutsPerVertex = 1000

// ErrInvalidOrder is returned when Options.Order is not a permutation of the
// graph's vertices.
var ErrInvalidOrder = errors.New("ch: contraction order is not a permutation of the vertices")

// Observer is notified around every contraction with a snapshot of the
// contracted vertex's arcs.
type Observer interface {
	BeforeContraction(v uint32, arcs []graph.Arc)
	AfterContraction(v uint32, arcs []graph.Arc)
}

// Options configures contraction.
type Options struct {
	// MaxSettled and MaxHops bound each witness search.
	MaxSettled int
	MaxHops    int

	// MaxShortcutsPerVertex stops contraction when the next vertex would add
	// more shortcuts. Zero disables the limit.
	MaxShortcutsPerVertex int

	// ContractedNeighbourFactor and DepthFactor weight the number of already
	// contracted neighbours and the hierarchy depth into the priority.
	// Zero keeps the priority the plain edge difference.
	ContractedNeighbourFactor int
	DepthFactor               int

	// Order, if set, contracts vertices in exactly this sequence and skips
	// priority computation.
	Order []uint32

	// Workers bounds the goroutines computing initial priorities.
	Workers int

	Observer Observer
	Logger   *zap.Logger
}

// DefaultOptions returns the options used by the preprocess command.
func DefaultOptions() Options {
	return Options{
		MaxSettled:            defaultMaxSettled,
		MaxHops:               defaultMaxHops,
		MaxShortcutsPerVertex: defaultMaxShortcutsPerVertex,
	}
}

// Stats summarizes a contraction run.
type Stats struct {
	Contracted int // vertices contracted
	Core       int // vertices left uncontracted at the top
	Shortcuts  int // shortcuts added
	Lazy       int // pops re-queued because their priority went stale
}

// Contractor turns a graph into a contraction hierarchy in place.
type Contractor struct {
	g       *graph.Graph
	opts    Options
	logger  *zap.Logger
	witness *WitnessCalculator

	contracted          *bitset.BitSet
	contractedNeighbors []int
	depth               []int

	queue   priorityQueue
	entries []*pqEntry // by vertex id
	order   uint32
	stats   Stats
}

// NewContractor prepares g for contraction.
func NewContractor(g *graph.Graph, opts Options) *Contractor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	n := g.NumVertices()
	return &Contractor{
		g:                   g,
		opts:                opts,
		logger:              logger,
		witness:             NewWitnessCalculator(g, opts.MaxSettled, opts.MaxHops),
		contracted:          bitset.New(uint(n)),
		contractedNeighbors: make([]int, n),
		depth:               make([]int, n),
	}
}

// Contract performs Contraction Hierarchies preprocessing on g: shortcuts are
// added, every vertex gets a level and the arcs of each contracted vertex
// are removed from its neighbours. g must not be queried until it returns.
func Contract(ctx context.Context, g *graph.Graph, opts Options) (Stats, error) {
	return NewContractor(g, opts).Run(ctx)
}

// Contracted reports whether v has been contracted.
func (c *Contractor) Contracted(v uint32) bool { return c.contracted.Test(uint(v)) }

// Priority returns the current contraction priority of v (lower = contract
// first).
func (c *Contractor) Priority(v uint32) int {
	return c.priority(c.witness, v)
}

func (c *Contractor) priority(wc *WitnessCalculator, v uint32) int {
	return EdgeDifference(wc, v) +
		c.opts.ContractedNeighbourFactor*c.contractedNeighbors[v] +
		c.opts.DepthFactor*c.depth[v]
}

// Run contracts every vertex, or stops early at the shortcut limit leaving an
// uncontracted core.
func (c *Contractor) Run(ctx context.Context) (Stats, error) {
	n := c.g.NumVertices()
	if n == 0 {
		return c.stats, nil
	}

	c.logger.Info("starting contraction",
		zap.Uint32("vertices", n),
		zap.Int("arcs", c.g.NumArcs()))

	var err error
	if c.opts.Order != nil {
		err = c.runOrdered(ctx)
	} else {
		err = c.runByPriority(ctx)
	}
	if err != nil {
		return c.stats, err
	}

	// Assign levels to remaining uncontracted core vertices.
	for v := uint32(0); v < n; v++ {
		if !c.Contracted(v) {
			_ = c.g.SetLevel(v, c.order)
			c.order++
			c.stats.Core++
		}
	}

	c.logger.Info("contraction complete",
		zap.Int("contracted", c.stats.Contracted),
		zap.Int("shortcuts", c.stats.Shortcuts),
		zap.Int("core", c.stats.Core),
		zap.Int("lazy_updates", c.stats.Lazy))

	return c.stats, nil
}

func (c *Contractor) runOrdered(ctx context.Context) error {
	n := c.g.NumVertices()
	if uint32(len(c.opts.Order)) != n {
		return fmt.Errorf("%w: %d entries for %d vertices", ErrInvalidOrder, len(c.opts.Order), n)
	}
	seen := bitset.New(uint(n))
	for _, v := range c.opts.Order {
		if v >= n || seen.Test(uint(v)) {
			return fmt.Errorf("%w: vertex %d", ErrInvalidOrder, v)
		}
		seen.Set(uint(v))
	}

	for i, v := range c.opts.Order {
		if i%100 == 0 && ctx.Err() != nil {
			return fmt.Errorf("contraction cancelled: %w", ctx.Err())
		}
		shortcuts, _ := findShortcuts(c.witness, v)
		c.contract(v, shortcuts)
	}
	return nil
}

func (c *Contractor) runByPriority(ctx context.Context) error {
	if err := c.initQueue(ctx); err != nil {
		return err
	}

	iterations := 0
	for c.queue.Len() > 0 {
		iterations++
		if iterations%100 == 0 && ctx.Err() != nil {
			return fmt.Errorf("contraction cancelled: %w", ctx.Err())
		}

		// Pop minimum-priority vertex.
		entry := heap.Pop(&c.queue).(*pqEntry)
		v := entry.node

		if c.Contracted(v) {
			continue
		}

		// Lazy update: recompute priority and re-insert if it is no longer
		// the minimum.
		shortcuts, removed := findShortcuts(c.witness, v)
		fresh := len(shortcuts) - removed +
			c.opts.ContractedNeighbourFactor*c.contractedNeighbors[v] +
			c.opts.DepthFactor*c.depth[v]
		if c.queue.Len() > 0 && fresh > c.queue[0].priority {
			entry.priority = fresh
			heap.Push(&c.queue, entry)
			c.stats.Lazy++
			continue
		}

		// If contracting this vertex would produce too many shortcuts,
		// stop contraction entirely. Remaining vertices form a core at the
		// top of the hierarchy with their arcs preserved.
		if limit := c.opts.MaxShortcutsPerVertex; limit > 0 && len(shortcuts) > limit {
			c.logger.Info("stopping contraction at shortcut limit",
				zap.Uint32("vertex", v),
				zap.Int("shortcuts", len(shortcuts)),
				zap.Int("limit", limit),
				zap.Int("core", c.queue.Len()+1))
			return nil
		}

		nbrs := c.contract(v, shortcuts)

		// Neighbour priorities changed: recompute them before their next pop.
		for _, u := range nbrs {
			e := c.entries[u]
			if e.index < 0 {
				continue
			}
			e.priority = c.Priority(u)
			heap.Fix(&c.queue, e.index)
		}
	}
	return nil
}

// initQueue computes every initial priority. The graph is read-only during
// this phase, so the vertex range is split across workers, each with its own
// witness calculator.
func (c *Contractor) initQueue(ctx context.Context) error {
	n := c.g.NumVertices()
	workers := c.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if uint32(workers) > n {
		workers = int(n)
	}

	c.entries = make([]*pqEntry, n)
	c.queue = make(priorityQueue, n)

	eg, egCtx := errgroup.WithContext(ctx)
	chunk := (n + uint32(workers) - 1) / uint32(workers)
	for start := uint32(0); start < n; start += chunk {
		end := min(start+chunk, n)
		eg.Go(func() error {
			wc := NewWitnessCalculator(c.g, c.opts.MaxSettled, c.opts.MaxHops)
			for v := start; v < end; v++ {
				if (v-start)%100 == 0 && egCtx.Err() != nil {
					return egCtx.Err()
				}
				e := &pqEntry{node: v, priority: c.priority(wc, v), index: int(v)}
				c.entries[v] = e
				c.queue[v] = e
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("initial priorities: %w", err)
	}

	heap.Init(&c.queue)
	return nil
}

// contract adds the shortcuts for v, removes v from the live graph and
// assigns its level. Returns v's live neighbours at contraction time.
func (c *Contractor) contract(v uint32, shortcuts []shortcut) []uint32 {
	if c.opts.Observer != nil {
		c.opts.Observer.BeforeContraction(v, snapshot(c.g.Arcs(v)))
	}

	for _, sc := range shortcuts {
		if c.g.AddShortcut(sc.from, sc.to, sc.weight, v) {
			c.stats.Shortcuts++
		}
	}

	// Every arc still stored on v leads to a live vertex.
	var nbrs []uint32
	for _, a := range c.g.Arcs(v) {
		if !containsVertex(nbrs, a.To) {
			nbrs = append(nbrs, a.To)
		}
	}

	c.g.RemoveEdgesOf(v)
	c.contracted.Set(uint(v))
	_ = c.g.SetLevel(v, c.order)
	c.order++
	c.stats.Contracted++

	for _, u := range nbrs {
		c.contractedNeighbors[u]++
		if c.depth[v]+1 > c.depth[u] {
			c.depth[u] = c.depth[v] + 1
		}
	}

	if c.opts.Observer != nil {
		c.opts.Observer.AfterContraction(v, snapshot(c.g.Arcs(v)))
	}

	c.logProgress()
	return nbrs
}

// logProgress logs with an adaptive interval: more frequent near the end.
func (c *Contractor) logProgress() {
	n := c.g.NumVertices()
	remaining := n - c.order
	var logInterval uint32
	switch {
	case remaining < 1000:
		logInterval = 100
	case remaining < 10000:
		logInterval = 1000
	case remaining < 100000:
		logInterval = 10000
	default:
		logInterval = 50000
	}

	if c.order%logInterval == 0 {
		c.logger.Info("contraction progress",
			zap.Uint32("contracted", c.order),
			zap.Uint32("vertices", n),
			zap.Int("shortcuts", c.stats.Shortcuts))
	}
}

func snapshot(arcs []graph.Arc) []graph.Arc {
	return append([]graph.Arc(nil), arcs...)
}

func containsVertex(ids []uint32, v uint32) bool {
	for _, id := range ids {
		if id == v {
			return true
		}
	}
	return false
}

// Priority queue implementation for contraction ordering.

type pqEntry struct {
	node     uint32
	priority int
	index    int
}

type priorityQueue []*pqEntry

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].node < pq[j].node
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	entry := x.(*pqEntry)
	entry.index = len(*pq)
	*pq = append(*pq, entry)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*pq = old[:n-1]
	return entry
}
