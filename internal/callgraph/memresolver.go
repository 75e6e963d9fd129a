package callgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time assertions.
var (
	_ Resolver     = (*MemResolver)(nil)
	_ RootResolver = (*MemResolver)(nil)
)

// MemResolver is an in-memory call graph used by tests and by callers that
// already hold a materialized graph.
type MemResolver struct {
	mu      sync.RWMutex
	symbols map[string]SymbolNode
	out     map[string][]string // caller key -> callee keys, insertion order
	in      map[string][]string // callee key -> caller keys, insertion order
	fail    map[string]error
	delay   time.Duration
	queries map[string]int
}

// NewMemResolver returns an empty resolver.
func NewMemResolver() *MemResolver {
	return &MemResolver{
		symbols: make(map[string]SymbolNode),
		out:     make(map[string][]string),
		in:      make(map[string][]string),
		fail:    make(map[string]error),
		queries: make(map[string]int),
	}
}

// AddSymbol registers s so it can be found by Prepare.
func (m *MemResolver) AddSymbol(s SymbolNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols[s.Key()] = s
}

// AddCall records that caller calls callee. Both symbols are registered.
func (m *MemResolver) AddCall(caller, callee SymbolNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ck, ek := caller.Key(), callee.Key()
	m.symbols[ck] = caller
	m.symbols[ek] = callee
	m.out[ck] = append(m.out[ck], ek)
	m.in[ek] = append(m.in[ek], ck)
}

// FailOn makes every query for node return err.
func (m *MemResolver) FailOn(node SymbolNode, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[node.Key()] = err
}

// SetDelay makes every query sleep d (or until ctx is done).
func (m *MemResolver) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Queries returns how many times node was queried in dir.
func (m *MemResolver) Queries(dir Direction, node SymbolNode) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queries[string(dir)+"|"+node.Key()]
}

// Calls implements Resolver.
func (m *MemResolver) Calls(ctx context.Context, dir Direction, node SymbolNode) ([]Call, error) {
	key := node.Key()

	m.mu.Lock()
	m.queries[string(dir)+"|"+key]++
	delay := m.delay
	failErr := m.fail[key]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if failErr != nil {
		return nil, &ResolutionError{Symbol: node, Direction: dir, Err: failErr}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.symbols[key]; !ok {
		return nil, &ResolutionError{Symbol: node, Direction: dir, Err: ErrSymbolNotFound}
	}
	var keys []string
	switch dir {
	case Outgoing:
		keys = m.out[key]
	case Incoming:
		keys = m.in[key]
	default:
		return nil, fmt.Errorf("mem resolver: direction %q not queryable", dir)
	}
	calls := make([]Call, 0, len(keys))
	for _, k := range keys {
		calls = append(calls, Call{Symbol: m.symbols[k], Direction: dir})
	}
	return calls, nil
}

// Prepare implements RootResolver: it returns every symbol in file whose
// range contains pos, sorted by key.
func (m *MemResolver) Prepare(_ context.Context, file string, pos Position) ([]SymbolNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found []SymbolNode
	for _, s := range m.symbols {
		if !sameFile(s.URI, file) {
			continue
		}
		if s.Range.Start == pos || s.Range.Contains(pos) {
			found = append(found, s)
		}
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%s:%d:%d: %w", file, pos.Line, pos.Character, ErrNoRoot)
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].Key() < found[j].Key()
	})
	return found, nil
}

// Symbols returns every registered symbol sorted by key.
func (m *MemResolver) Symbols() []SymbolNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SymbolNode, 0, len(m.symbols))
	for _, s := range m.symbols {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func sameFile(a, b string) bool {
	return a == b || URIToPath(a) == URIToPath(b)
}
