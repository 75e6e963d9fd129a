package lsp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// Compile-time assertions.
var (
	_ callgraph.Resolver     = (*CallHierarchy)(nil)
	_ callgraph.RootResolver = (*CallHierarchy)(nil)
)

// CallHierarchy resolves calls through a language server's call hierarchy
// requests.
type CallHierarchy struct {
	client  *Client
	root    string
	timeout time.Duration
}

// NewCallHierarchy wraps a connected client. Relative paths given to Prepare
// resolve against cfg.RootPath.
func NewCallHierarchy(client *Client) *CallHierarchy {
	return &CallHierarchy{
		client:  client,
		root:    client.cfg.RootPath,
		timeout: client.cfg.requestTimeout(),
	}
}

// Prepare implements callgraph.RootResolver.
func (h *CallHierarchy) Prepare(ctx context.Context, file string, pos callgraph.Position) ([]callgraph.SymbolNode, error) {
	if !h.client.caps.HasCallHierarchy() {
		return nil, fmt.Errorf("%w: %w", callgraph.ErrUnsupportedLanguage, ErrNoCallHierarchy)
	}
	path := callgraph.URIToPath(file)
	if !filepath.IsAbs(path) && h.root != "" {
		path = filepath.Join(h.root, path)
	}
	uri := callgraph.PathToURI(path)
	if err := h.client.EnsureOpen(ctx, uri); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", callgraph.ErrSymbolNotFound, err)
		}
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	items, err := h.client.PrepareCallHierarchy(qctx, uri, pos)
	if err != nil {
		return nil, h.classify(ctx, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s:%d:%d: %w", path, pos.Line, pos.Character, callgraph.ErrNoRoot)
	}
	roots := make([]callgraph.SymbolNode, 0, len(items))
	for _, item := range items {
		roots = append(roots, item.ToSymbol())
	}
	return roots, nil
}

// Calls implements callgraph.Resolver.
func (h *CallHierarchy) Calls(ctx context.Context, dir callgraph.Direction, node callgraph.SymbolNode) ([]callgraph.Call, error) {
	if err := h.client.EnsureOpen(ctx, node.URI); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &callgraph.ResolutionError{Symbol: node, Direction: dir, Err: err}
	}

	qctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	item := ItemFromSymbol(node)

	var (
		neighbors []CallHierarchyItem
		err       error
	)
	switch dir {
	case callgraph.Outgoing:
		var calls []CallHierarchyOutgoingCall
		calls, err = h.client.OutgoingCalls(qctx, item)
		for _, c := range calls {
			neighbors = append(neighbors, c.To)
		}
	case callgraph.Incoming:
		var calls []CallHierarchyIncomingCall
		calls, err = h.client.IncomingCalls(qctx, item)
		for _, c := range calls {
			neighbors = append(neighbors, c.From)
		}
	default:
		return nil, fmt.Errorf("lsp: direction %q not queryable", dir)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &callgraph.ResolutionError{Symbol: node, Direction: dir, Err: h.classify(ctx, err)}
	}

	out := make([]callgraph.Call, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, callgraph.Call{Symbol: n.ToSymbol(), Direction: dir})
	}
	return out, nil
}

// classify maps protocol failures onto the callgraph sentinels.
func (h *CallHierarchy) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrRequestTimeout) {
		return fmt.Errorf("%w: %w", callgraph.ErrResolveTimeout, err)
	}
	var lerr *LSPError
	if errors.As(err, &lerr) {
		switch {
		case lerr.IsMethodNotFound():
			return fmt.Errorf("%w: %w", callgraph.ErrUnsupportedLanguage, err)
		case lerr.IsContentModified(), lerr.Code == CodeInternalError:
			return fmt.Errorf("%w: %w", callgraph.ErrSymbolNotFound, err)
		}
	}
	return err
}
