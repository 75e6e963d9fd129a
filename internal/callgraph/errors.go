package callgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for call graph resolution.
var (
	// ErrNoRoot means the root resolver found no symbol at the requested
	// position. It is fatal for the invocation.
	ErrNoRoot = errors.New("no call hierarchy root at position")

	// ErrSymbolNotFound means the resolver no longer knows the symbol being
	// expanded (stale position, file changed).
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrUnsupportedLanguage means no resolver handles the symbol's language.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrResolveTimeout means the resolver did not answer in time.
	ErrResolveTimeout = errors.New("resolve timed out")
)

// ResolutionError reports a failed neighbor query for one node. It aborts
// only that node's subtree.
type ResolutionError struct {
	Symbol    SymbolNode
	Direction Direction
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s calls of %s: %v", e.Direction, e.Symbol.Key(), e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
