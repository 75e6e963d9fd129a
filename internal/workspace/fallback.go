package workspace

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// Compile-time checks.
var (
	_ callgraph.Resolver     = (*FallbackResolver)(nil)
	_ callgraph.RootResolver = (*FallbackResolver)(nil)
)

// Source is a call hierarchy capability that can both find roots and answer
// neighbor queries.
type Source interface {
	callgraph.Resolver
	callgraph.RootResolver
}

// FallbackResolver asks primary first and degrades to secondary when primary
// cannot handle a file. Prepare also falls back when primary finds no root.
type FallbackResolver struct {
	primary   Source
	secondary Source
}

// NewFallbackResolver chains primary and secondary.
func NewFallbackResolver(primary, secondary Source) *FallbackResolver {
	return &FallbackResolver{primary: primary, secondary: secondary}
}

// Calls implements callgraph.Resolver.
func (f *FallbackResolver) Calls(ctx context.Context, dir callgraph.Direction, node callgraph.SymbolNode) ([]callgraph.Call, error) {
	calls, err := f.primary.Calls(ctx, dir, node)
	if err == nil || !errors.Is(err, callgraph.ErrUnsupportedLanguage) {
		return calls, err
	}
	slog.Debug("fallback: calls", slog.String("symbol", node.Key()), slog.String("error", err.Error()))
	return f.secondary.Calls(ctx, dir, node)
}

// Prepare implements callgraph.RootResolver.
func (f *FallbackResolver) Prepare(ctx context.Context, file string, pos callgraph.Position) ([]callgraph.SymbolNode, error) {
	roots, err := f.primary.Prepare(ctx, file, pos)
	if err == nil {
		return roots, nil
	}
	if !errors.Is(err, callgraph.ErrUnsupportedLanguage) && !errors.Is(err, callgraph.ErrNoRoot) {
		return nil, err
	}
	slog.Debug("fallback: prepare", slog.String("file", file), slog.String("error", err.Error()))
	return f.secondary.Prepare(ctx, file, pos)
}
