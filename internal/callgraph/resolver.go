package callgraph

import "context"

// Resolver answers "who does this call" and "who calls this" for one symbol.
// Implementations: lsp.CallHierarchy (language server), index.Index
// (tree-sitter), MemResolver (tests).
type Resolver interface {
	// Calls returns the neighbors of node in direction dir (Outgoing or
	// Incoming), in the resolver's native order. Failures should wrap one of
	// ErrSymbolNotFound, ErrUnsupportedLanguage or ErrResolveTimeout.
	Calls(ctx context.Context, dir Direction, node SymbolNode) ([]Call, error)
}

// RootResolver maps a file position to the symbol(s) a traversal starts from.
type RootResolver interface {
	// Prepare returns every symbol at pos in file. Zero candidates must be
	// reported as ErrNoRoot.
	Prepare(ctx context.Context, file string, pos Position) ([]SymbolNode, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, dir Direction, node SymbolNode) ([]Call, error)

func (f ResolverFunc) Calls(ctx context.Context, dir Direction, node SymbolNode) ([]Call, error) {
	return f(ctx, dir, node)
}

// IgnoreSource supplies version-control ignore patterns for a workspace root.
type IgnoreSource interface {
	VCSIgnore(root string) ([]string, error)
}
