package callgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sym builds a function symbol in /ws/<file> declared at line.
func sym(file, name string, line int) SymbolNode {
	return SymbolNode{
		URI:  "file:///ws/" + file,
		Name: name,
		Kind: SymbolKindFunction,
		Range: Range{
			Start: Position{Line: line},
			End:   Position{Line: line + 3},
		},
	}
}

// collector gathers edges delivered by Explore.
type collector struct {
	mu    sync.Mutex
	edges []CallEdge
}

func (c *collector) add(e CallEdge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edges = append(c.edges, e)
}

// pairs returns "from->to" names in delivery order.
func (c *collector) pairs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.edges))
	for _, e := range c.edges {
		out = append(out, e.From.Name+"->"+e.To.Name)
	}
	return out
}

// labels maps "from->to" to its sequence label.
func (c *collector) labels() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.edges))
	for _, e := range c.edges {
		out[e.From.Name+"->"+e.To.Name] = e.Label
	}
	return out
}

func explore(t *testing.T, e *Engine, req Request) (*collector, *Stats) {
	t.Helper()
	c := &collector{}
	stats, err := e.Explore(context.Background(), req, c.add)
	require.NoError(t, err)
	return c, stats
}

// ---------- Cycles ----------

func TestExplore_CycleExpandsOnce(t *testing.T) {
	a, b, c := sym("a.go", "A", 1), sym("b.go", "B", 1), sym("c.go", "C", 1)
	r := NewMemResolver()
	r.AddCall(a, b)
	r.AddCall(b, a)
	r.AddCall(a, c)

	e := NewEngine(r, nil)
	col, stats := explore(t, e, Request{Direction: Outgoing, Roots: []SymbolNode{a}, MaxDepth: -1})

	assert.ElementsMatch(t, []string{"A->B", "A->C", "B->A"}, col.pairs())
	assert.Equal(t, 1, r.Queries(Outgoing, a), "A must be expanded exactly once")
	assert.Equal(t, 1, r.Queries(Outgoing, b))
	assert.Equal(t, int64(3), stats.Expanded)
	assert.Equal(t, int64(3), stats.Edges)
}

func TestExplore_SelfRecursion(t *testing.T) {
	f := sym("f.go", "fact", 10)
	r := NewMemResolver()
	r.AddCall(f, f)

	col, _ := explore(t, NewEngine(r, nil), Request{Direction: Outgoing, Roots: []SymbolNode{f}, MaxDepth: -1})
	assert.Equal(t, []string{"fact->fact"}, col.pairs(), "self edge is emitted once, node not re-expanded")
	assert.Equal(t, 1, r.Queries(Outgoing, f))
}

// ---------- Depth ----------

func TestExplore_DepthBound(t *testing.T) {
	a, b, c := sym("a.go", "A", 1), sym("b.go", "B", 1), sym("c.go", "C", 1)
	r := NewMemResolver()
	r.AddCall(a, b)
	r.AddCall(b, c)

	col, _ := explore(t, NewEngine(r, nil), Request{Direction: Outgoing, Roots: []SymbolNode{a}, MaxDepth: 1})
	assert.Equal(t, []string{"A->B"}, col.pairs())
	assert.Zero(t, r.Queries(Outgoing, b), "nodes at the depth bound are never queried")

	col, _ = explore(t, NewEngine(r, nil), Request{Direction: Outgoing, Roots: []SymbolNode{a}, MaxDepth: 0})
	assert.Empty(t, col.pairs())

	col, _ = explore(t, NewEngine(r, nil), Request{Direction: Outgoing, Roots: []SymbolNode{a}, MaxDepth: -1})
	assert.Equal(t, []string{"A->B", "B->C"}, col.pairs())
}

// ---------- Labels ----------

func TestExplore_OutgoingLabels(t *testing.T) {
	a, b, c, d := sym("a.go", "A", 1), sym("b.go", "B", 1), sym("c.go", "C", 1), sym("d.go", "D", 1)
	r := NewMemResolver()
	r.AddCall(a, b)
	r.AddCall(a, c)
	r.AddCall(b, d)

	// Run repeatedly: labels must not depend on scheduling.
	for i := 0; i < 20; i++ {
		col, _ := explore(t, NewEngine(r, nil), Request{Direction: Outgoing, Roots: []SymbolNode{a}, MaxDepth: -1})
		assert.Equal(t, map[string]string{
			"A->B": "1",
			"A->C": "2",
			"B->D": "1.1",
		}, col.labels())
	}
}

func TestExplore_IncomingLabels(t *testing.T) {
	a, b, c, d := sym("a.go", "A", 1), sym("b.go", "B", 1), sym("c.go", "C", 1), sym("d.go", "D", 1)
	r := NewMemResolver()
	r.AddCall(b, d)
	r.AddCall(c, d)
	r.AddCall(a, b)

	col, _ := explore(t, NewEngine(r, nil), Request{Direction: Incoming, Roots: []SymbolNode{d}, MaxDepth: -1})
	assert.Equal(t, map[string]string{
		"D->B": "↣ 1",
		"D->C": "↣ 2",
		"B->A": "1 ↣ 1",
	}, col.labels())

	for _, e := range col.edges {
		assert.Equal(t, Incoming, e.Direction)
		assert.Equal(t, e.To.Name, e.Caller().Name, "incoming neighbors are callers")
	}
}

func TestExplore_ParentEdgesArriveInResolverOrder(t *testing.T) {
	root := sym("root.go", "root", 0)
	r := NewMemResolver()
	for i := 1; i <= 10; i++ {
		leaf := sym("leaf.go", fmt.Sprintf("leaf%d", i), i*10)
		r.AddCall(root, leaf)
		r.AddCall(leaf, sym("deep.go", fmt.Sprintf("deep%d", i), i*10))
	}

	col, _ := explore(t, NewEngine(r, nil), Request{Direction: Outgoing, Roots: []SymbolNode{root}, MaxDepth: -1})
	require.Len(t, col.edges, 20)
	for i := 0; i < 10; i++ {
		assert.Equal(t, "root", col.edges[i].From.Name)
		assert.Equal(t, fmt.Sprintf("%d", i+1), col.edges[i].Label)
		assert.Equal(t, 0, col.edges[i].Depth)
	}
}

// ---------- Filtering ----------

func TestExplore_FilteredNeighborsAreNeitherEmittedNorExpanded(t *testing.T) {
	a := sym("a.go", "A", 1)
	v := sym("vendor/lib/v.go", "V", 1)
	w := sym("vendor/lib/w.go", "W", 1)
	c := sym("c.go", "C", 1)
	r := NewMemResolver()
	r.AddCall(a, v)
	r.AddCall(v, w)
	r.AddCall(a, c)

	filter := NewPathFilter(FilterOptions{
		IgnoreGlobs:    []string{"vendor/**"},
		WorkspaceRoots: []string{"/ws"},
	}, StaticIgnoreSource{})
	col, stats := explore(t, NewEngine(r, filter), Request{Direction: Outgoing, Roots: []SymbolNode{a}, MaxDepth: -1})

	assert.Equal(t, []string{"A->C"}, col.pairs())
	assert.Equal(t, "1", col.labels()["A->C"], "ordinals count accepted neighbors only")
	assert.Zero(t, r.Queries(Outgoing, v))
	assert.Equal(t, int64(1), stats.Filtered)
}

// ---------- Errors ----------

func TestExplore_ResolutionErrorPrunesSubtreeOnly(t *testing.T) {
	a, b, c := sym("a.go", "A", 1), sym("b.go", "B", 1), sym("c.go", "C", 1)
	d, e := sym("d.go", "D", 1), sym("e.go", "E", 1)
	r := NewMemResolver()
	r.AddCall(a, b)
	r.AddCall(a, c)
	r.AddCall(b, d)
	r.AddCall(c, e)
	boom := errors.New("server crashed")
	r.FailOn(b, boom)

	var mu sync.Mutex
	var reported []error
	eng := NewEngine(r, nil, WithErrorHandler(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	}))

	col, stats := explore(t, eng, Request{Direction: Outgoing, Roots: []SymbolNode{a}, MaxDepth: -1})
	assert.ElementsMatch(t, []string{"A->B", "A->C", "C->E"}, col.pairs())
	assert.Equal(t, int64(1), stats.Errors)

	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], boom)
	var rerr *ResolutionError
	require.ErrorAs(t, reported[0], &rerr)
	assert.Equal(t, "B", rerr.Symbol.Name)
	assert.Equal(t, Outgoing, rerr.Direction)
}

func TestExplore_UnknownSymbolIsResolutionError(t *testing.T) {
	ghost := sym("ghost.go", "ghost", 1)
	var got error
	eng := NewEngine(NewMemResolver(), nil, WithErrorHandler(func(err error) { got = err }))

	_, err := eng.Explore(context.Background(), Request{Direction: Outgoing, Roots: []SymbolNode{ghost}, MaxDepth: -1}, nil)
	require.NoError(t, err, "resolution errors are reported, not returned")
	assert.ErrorIs(t, got, ErrSymbolNotFound)
}

func TestExplore_InvalidRequests(t *testing.T) {
	eng := NewEngine(NewMemResolver(), nil)

	_, err := eng.Explore(context.Background(), Request{Direction: Outgoing, MaxDepth: -1}, nil)
	assert.ErrorIs(t, err, ErrNoRoot)

	_, err = eng.Explore(context.Background(), Request{Direction: "up", Roots: []SymbolNode{sym("a.go", "A", 1)}}, nil)
	assert.Error(t, err)
}

// ---------- Cancellation ----------

func TestExplore_CancellationStopsAndReturnsCanceled(t *testing.T) {
	r := NewMemResolver()
	prev := sym("chain.go", "f0", 0)
	for i := 1; i <= 50; i++ {
		next := sym("chain.go", fmt.Sprintf("f%d", i), i*5)
		r.AddCall(prev, next)
		prev = next
	}
	root := sym("chain.go", "f0", 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var edges atomic.Int32
	stats, err := NewEngine(r, nil).Explore(ctx, Request{Direction: Outgoing, Roots: []SymbolNode{root}, MaxDepth: -1}, func(CallEdge) {
		if edges.Add(1) == 3 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	assert.True(t, stats.Cancelled)
	assert.Equal(t, int32(3), edges.Load(), "no edges after cancellation")
}

func TestExplore_CancelDuringSlowQuery(t *testing.T) {
	a, b := sym("a.go", "A", 1), sym("b.go", "B", 1)
	r := NewMemResolver()
	r.AddCall(a, b)
	r.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var got []CallEdge
	_, err := NewEngine(r, nil).Explore(ctx, Request{Direction: Outgoing, Roots: []SymbolNode{a}, MaxDepth: -1}, func(e CallEdge) {
		got = append(got, e)
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, got)
}

// ---------- Multiple roots, Both, seeding ----------

func TestExplore_MultipleRootsIndependentLedgers(t *testing.T) {
	a, x, c, d := sym("a.go", "A", 1), sym("x.go", "X", 1), sym("c.go", "C", 1), sym("d.go", "D", 1)
	r := NewMemResolver()
	r.AddCall(a, c)
	r.AddCall(x, c)
	r.AddCall(c, d)

	col, _ := explore(t, NewEngine(r, nil), Request{Direction: Outgoing, Roots: []SymbolNode{a, x}, MaxDepth: -1})
	assert.ElementsMatch(t, []string{"A->C", "X->C", "C->D", "C->D"}, col.pairs())
	assert.Equal(t, 2, r.Queries(Outgoing, c))
}

func TestExplore_SharedLedger(t *testing.T) {
	a, x, c, d := sym("a.go", "A", 1), sym("x.go", "X", 1), sym("c.go", "C", 1), sym("d.go", "D", 1)
	r := NewMemResolver()
	r.AddCall(a, c)
	r.AddCall(x, c)
	r.AddCall(c, d)

	col, _ := explore(t, NewEngine(r, nil, WithSharedLedger(true)), Request{Direction: Outgoing, Roots: []SymbolNode{a, x}, MaxDepth: -1})
	assert.ElementsMatch(t, []string{"A->C", "X->C", "C->D"}, col.pairs())
	assert.Equal(t, 1, r.Queries(Outgoing, c))
}

func TestExplore_BothRunsIndependentDirections(t *testing.T) {
	a, b, z := sym("a.go", "A", 1), sym("b.go", "B", 1), sym("z.go", "Z", 1)
	r := NewMemResolver()
	r.AddCall(a, b)
	r.AddCall(z, a)

	col, _ := explore(t, NewEngine(r, nil), Request{Direction: Both, Roots: []SymbolNode{a}, MaxDepth: -1})
	require.Len(t, col.edges, 2)

	byDir := map[Direction]CallEdge{}
	for _, e := range col.edges {
		byDir[e.Direction] = e
	}
	assert.Equal(t, "B", byDir[Outgoing].Callee().Name)
	assert.Equal(t, "1", byDir[Outgoing].Label)
	assert.Equal(t, "Z", byDir[Incoming].Caller().Name)
	assert.Equal(t, "↣ 1", byDir[Incoming].Label)

	// Each direction expands A once with its own ledger.
	assert.Equal(t, 1, r.Queries(Outgoing, a))
	assert.Equal(t, 1, r.Queries(Incoming, a))
}

func TestExplore_SeenKeysSuppressReexpansionButNotRoot(t *testing.T) {
	a, b, c := sym("a.go", "A", 1), sym("b.go", "B", 1), sym("c.go", "C", 1)
	r := NewMemResolver()
	r.AddCall(a, b)
	r.AddCall(b, c)

	col, _ := explore(t, NewEngine(r, nil), Request{
		Direction: Outgoing,
		Roots:     []SymbolNode{a},
		MaxDepth:  -1,
		Seen:      map[Direction][]string{Outgoing: {a.Key(), b.Key()}},
	})
	assert.Equal(t, []string{"A->B"}, col.pairs(), "root re-expanded, seen child not")
	assert.Zero(t, r.Queries(Outgoing, b))
}

func TestExplore_SeenKeysOnlySeedTheirDirection(t *testing.T) {
	a, b, c := sym("a.go", "A", 1), sym("b.go", "B", 1), sym("c.go", "C", 1)
	r := NewMemResolver()
	r.AddCall(a, b)
	r.AddCall(b, c)

	col, _ := explore(t, NewEngine(r, nil), Request{
		Direction: Outgoing,
		Roots:     []SymbolNode{a},
		MaxDepth:  -1,
		Seen:      map[Direction][]string{Incoming: {b.Key()}},
	})
	assert.Equal(t, []string{"A->B", "B->C"}, col.pairs())
	assert.Equal(t, 1, r.Queries(Outgoing, b))
}

func TestExplore_OnExpandedReportsLeaves(t *testing.T) {
	a, b := sym("a.go", "A", 1), sym("b.go", "B", 1)
	r := NewMemResolver()
	r.AddCall(a, b)

	var mu sync.Mutex
	var got []string
	_, stats := explore(t, NewEngine(r, nil), Request{
		Direction: Outgoing,
		Roots:     []SymbolNode{a},
		MaxDepth:  -1,
		OnExpanded: func(dir Direction, n SymbolNode) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, string(dir)+" "+n.Name)
		},
	})
	assert.Equal(t, int64(2), stats.Expanded)
	assert.ElementsMatch(t, []string{"outgoing A", "outgoing B"}, got)
}

// ---------- Concurrency ----------

func TestExplore_ConcurrencyBound(t *testing.T) {
	mem := NewMemResolver()
	root := sym("root.go", "root", 0)
	for i := 0; i < 12; i++ {
		mid := sym("mid.go", fmt.Sprintf("mid%d", i), i*10)
		mem.AddCall(root, mid)
		for j := 0; j < 3; j++ {
			mem.AddCall(mid, sym("leaf.go", fmt.Sprintf("leaf%d_%d", i, j), i*100+j))
		}
	}

	var inFlight, peak atomic.Int32
	slow := ResolverFunc(func(ctx context.Context, dir Direction, node SymbolNode) ([]Call, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return mem.Calls(ctx, dir, node)
	})

	col, stats := explore(t, NewEngine(slow, nil, WithMaxConcurrency(2)), Request{Direction: Outgoing, Roots: []SymbolNode{root}, MaxDepth: -1})
	assert.Len(t, col.edges, 12+36)
	assert.Equal(t, int64(1+12+36), stats.Expanded)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExplore_OnEdgeIsSerialized(t *testing.T) {
	mem := NewMemResolver()
	root := sym("root.go", "root", 0)
	for i := 0; i < 8; i++ {
		mid := sym("mid.go", fmt.Sprintf("mid%d", i), i*10)
		mem.AddCall(root, mid)
		for j := 0; j < 4; j++ {
			mem.AddCall(mid, sym("leaf.go", fmt.Sprintf("leaf%d_%d", i, j), i*100+j))
		}
	}

	var inside atomic.Bool
	var overlaps atomic.Int32
	_, err := NewEngine(mem, nil).Explore(context.Background(), Request{Direction: Outgoing, Roots: []SymbolNode{root}, MaxDepth: -1}, func(CallEdge) {
		if inside.Swap(true) {
			overlaps.Add(1)
		}
		time.Sleep(50 * time.Microsecond)
		inside.Store(false)
	})
	require.NoError(t, err)
	assert.Zero(t, overlaps.Load())
}
