package callgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrency bounds in-flight resolver queries when no option is
// given.
const DefaultMaxConcurrency = 16

// Request describes one exploration.
type Request struct {
	Direction Direction
	Roots     []SymbolNode

	// MaxDepth < 0 means unlimited. A node at depth >= MaxDepth is not
	// expanded; roots are at depth 0.
	MaxDepth int

	// Seen pre-marks canonical keys as already expanded, per direction
	// (rehydrated state). Only the ledgers of the matching direction are
	// seeded. The roots of this request are always expanded regardless.
	Seen map[Direction][]string

	// OnExpanded, if set, is called once for every node whose neighbors were
	// resolved, including nodes with no accepted neighbors. It may be called
	// from multiple goroutines.
	OnExpanded func(Direction, SymbolNode)
}

// Stats summarizes a finished exploration.
type Stats struct {
	Expanded  int64         `json:"expanded"`
	Edges     int64         `json:"edges"`
	Filtered  int64         `json:"filtered"`
	Errors    int64         `json:"errors"`
	Cancelled bool          `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxConcurrency bounds the number of resolver queries in flight across
// the whole engine. n <= 0 keeps the default.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrency = int64(n)
		}
	}
}

// WithErrorHandler registers fn to receive every *ResolutionError. fn may be
// called from multiple goroutines.
func WithErrorHandler(fn func(error)) Option {
	return func(e *Engine) { e.onError = fn }
}

// WithSharedLedger makes all roots of one direction share a single ledger
// instead of one ledger per root.
func WithSharedLedger(shared bool) Option {
	return func(e *Engine) { e.shareLedger = shared }
}

// WithLogger overrides the slog logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine walks a lazily discovered call graph. One Engine may serve many
// concurrent Explore calls; the concurrency bound is shared between them.
type Engine struct {
	resolver       Resolver
	filter         *PathFilter
	maxConcurrency int64
	onError        func(error)
	shareLedger    bool
	logger         *slog.Logger

	sem *semaphore.Weighted
}

// NewEngine returns an engine querying resolver. filter may be nil to keep
// every neighbor.
func NewEngine(resolver Resolver, filter *PathFilter, opts ...Option) *Engine {
	e := &Engine{
		resolver:       resolver,
		filter:         filter,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sem = semaphore.NewWeighted(e.maxConcurrency)
	return e
}

// Explore runs req and calls onEdge for every accepted edge. onEdge calls are
// serialized and, for one parent, arrive in resolver order.
//
// Resolution errors never fail Explore; they only prune the affected
// subtree. Explore returns ctx.Err() if the context was cancelled, in which
// case every edge already delivered is still valid.
func (e *Engine) Explore(ctx context.Context, req Request, onEdge func(CallEdge)) (*Stats, error) {
	if len(req.Roots) == 0 {
		return nil, ErrNoRoot
	}
	var dirs []Direction
	switch req.Direction {
	case Outgoing, Incoming:
		dirs = []Direction{req.Direction}
	case Both:
		dirs = []Direction{Outgoing, Incoming}
	default:
		return nil, fmt.Errorf("explore: unknown direction %q", req.Direction)
	}

	start := time.Now()
	run := &run{
		engine:     e,
		maxDepth:   req.MaxDepth,
		onEdge:     onEdge,
		onExpanded: req.OnExpanded,
	}

	var g errgroup.Group
	for _, dir := range dirs {
		var shared *Ledger
		if e.shareLedger {
			shared = seededLedger(req.Seen[dir], req.Roots...)
		}
		for _, root := range req.Roots {
			ledger := shared
			if ledger == nil {
				ledger = seededLedger(req.Seen[dir], root)
			}
			t := &traversal{run: run, dir: dir, ledger: ledger}
			g.Go(func() error {
				t.expand(ctx, root, "", 0)
				return nil
			})
		}
	}
	_ = g.Wait()

	stats := run.stats()
	stats.Duration = time.Since(start)
	result := "ok"
	var err error
	if ctx.Err() != nil {
		stats.Cancelled = true
		result = "cancelled"
		err = ctx.Err()
	}
	exploreTotal.WithLabelValues(string(req.Direction), result).Inc()
	exploreDuration.WithLabelValues(string(req.Direction)).Observe(stats.Duration.Seconds())

	e.logger.Debug("explore finished",
		slog.String("direction", string(req.Direction)),
		slog.Int("roots", len(req.Roots)),
		slog.Int64("expanded", stats.Expanded),
		slog.Int64("edges", stats.Edges),
		slog.Int64("errors", stats.Errors),
		slog.Bool("cancelled", stats.Cancelled),
	)
	return stats, err
}

func seededLedger(seen []string, roots ...SymbolNode) *Ledger {
	l := NewLedger(seen...)
	for _, r := range roots {
		l.Forget(r.Key())
	}
	return l
}

// run is the state shared by every traversal of one Explore call.
type run struct {
	engine   *Engine
	maxDepth int

	emitMu     sync.Mutex
	onEdge     func(CallEdge)
	onExpanded func(Direction, SymbolNode)

	expanded atomic.Int64
	edges    atomic.Int64
	filtered atomic.Int64
	errs     atomic.Int64
}

func (r *run) emit(edge CallEdge) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.edges.Add(1)
	edgesEmitted.WithLabelValues(string(edge.Direction)).Inc()
	if r.onEdge != nil {
		r.onEdge(edge)
	}
}

func (r *run) stats() *Stats {
	return &Stats{
		Expanded: r.expanded.Load(),
		Edges:    r.edges.Load(),
		Filtered: r.filtered.Load(),
		Errors:   r.errs.Load(),
	}
}

// traversal is one direction from one root (or one direction from all roots
// when the ledger is shared).
type traversal struct {
	*run
	dir    Direction
	ledger *Ledger
}

type child struct {
	node  SymbolNode
	label string
}

func (t *traversal) expand(ctx context.Context, node SymbolNode, label string, depth int) {
	if ctx.Err() != nil {
		return
	}
	if t.maxDepth >= 0 && depth >= t.maxDepth {
		return
	}
	if !t.ledger.TryVisit(node.Key()) {
		return
	}

	calls, err := t.engine.query(ctx, t.dir, node)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		t.fail(node, err)
		return
	}
	t.expanded.Add(1)
	if t.onExpanded != nil {
		t.onExpanded(t.dir, node)
	}

	// Ordinals and labels are fixed here, before any child runs, so labels
	// do not depend on goroutine scheduling.
	children := make([]child, 0, len(calls))
	for _, call := range calls {
		if skip, reason := t.engine.filter.ShouldSkipReason(call.Symbol.URI); skip {
			t.filtered.Add(1)
			neighborsFiltered.WithLabelValues(string(reason)).Inc()
			continue
		}
		lbl := Label(t.dir, label, len(children)+1)
		t.emit(CallEdge{
			From:      node,
			To:        call.Symbol,
			Direction: t.dir,
			Label:     lbl,
			Depth:     depth,
		})
		children = append(children, child{node: call.Symbol, label: lbl})
	}

	var g errgroup.Group
	for _, c := range children {
		g.Go(func() error {
			t.expand(ctx, c.node, c.label, depth+1)
			return nil
		})
	}
	_ = g.Wait()
}

func (t *traversal) fail(node SymbolNode, err error) {
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		rerr = &ResolutionError{Symbol: node, Direction: t.dir, Err: err}
	}
	t.errs.Add(1)
	resolveErrors.WithLabelValues(string(t.dir)).Inc()
	t.engine.logger.Warn("resolve failed",
		slog.String("direction", string(t.dir)),
		slog.String("symbol", node.Key()),
		slog.String("error", err.Error()),
	)
	if t.engine.onError != nil {
		t.engine.onError(rerr)
	}
}

// query holds a semaphore slot only for the duration of the resolver call.
func (e *Engine) query(ctx context.Context, dir Direction, node SymbolNode) ([]Call, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	start := time.Now()
	calls, err := e.resolver.Calls(ctx, dir, node)
	resolveDuration.WithLabelValues(string(dir)).Observe(time.Since(start).Seconds())
	return calls, err
}
