package callgraph

import "sync"

// Ledger records which canonical keys a traversal has expanded. TryVisit is
// an atomic check-and-set so concurrent goroutines never expand a node twice.
type Ledger struct {
	mu      sync.Mutex
	visited map[string]struct{}
}

// NewLedger returns a ledger pre-marked with seed.
func NewLedger(seed ...string) *Ledger {
	l := &Ledger{visited: make(map[string]struct{}, len(seed))}
	for _, k := range seed {
		l.visited[k] = struct{}{}
	}
	return l
}

// TryVisit marks key visited and reports whether the caller won the claim.
func (l *Ledger) TryVisit(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.visited[key]; ok {
		return false
	}
	l.visited[key] = struct{}{}
	return true
}

// Visited reports whether key is marked.
func (l *Ledger) Visited(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.visited[key]
	return ok
}

// Forget unmarks key. Used to let an explicit root be re-expanded after the
// ledger was seeded from persisted state.
func (l *Ledger) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.visited, key)
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visited)
}
