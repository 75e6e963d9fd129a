// Package workspace wires one project directory to its call hierarchy
// source, traversal engine, session store, and open sessions.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/chartographer/internal/callgraph"
	"github.com/dusk-indust/chartographer/internal/config"
	"github.com/dusk-indust/chartographer/internal/graph"
	"github.com/dusk-indust/chartographer/internal/index"
	"github.com/dusk-indust/chartographer/internal/lsp"
	"github.com/dusk-indust/chartographer/internal/session"
)

// ErrNoEntry is returned when a request names neither a file nor a symbol.
var ErrNoEntry = errors.New("an entry file or symbol is required")

// Options configures Open.
type Options struct {
	// Root is the workspace directory.
	Root string

	// Config defaults to config.Load(Root).
	Config *config.Config

	// Source replaces the configured resolver (tests, embedders).
	Source Source

	// Store replaces the configured store. The caller keeps ownership.
	Store graph.Store

	Detector  Detector
	Navigator session.Navigator
	Logger    *slog.Logger
}

// OpenRequest describes the entry points of a new exploration.
type OpenRequest struct {
	// File and Position locate the entry symbol. Symbol may be given
	// instead (or to pick among functions of File) as "name" or "Type.name".
	File     string
	Position callgraph.Position
	Symbol   string

	Direction callgraph.Direction
	// MaxDepth nil uses the configured bound.
	MaxDepth *int
	Title    string
}

// Workspace is the long-lived state behind every surface (CLI, HTTP, MCP).
type Workspace struct {
	root       string
	cfg        *config.Config
	source     Source
	index      *index.Index
	server     *lsp.Server
	engine     *callgraph.Engine
	store      graph.Store
	ownsStore  bool
	registry   *session.Registry
	nav        session.Navigator
	capability Capability
	logger     *slog.Logger
}

// Open prepares the workspace at opts.Root: it builds the static index,
// starts the language server when configured and installed, and opens the
// session store.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	root, err := filepath.Abs(callgraph.URIToPath(opts.Root))
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve root: %w", err)
	}
	cfg := opts.Config
	if cfg == nil {
		if cfg, err = config.Load(root); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Workspace{
		root:     root,
		cfg:      cfg,
		registry: session.NewRegistry(),
		nav:      opts.Navigator,
		logger:   logger,
	}

	w.source = opts.Source
	if w.source == nil {
		if err := w.openSource(ctx, opts.Detector); err != nil {
			return nil, err
		}
	}

	filter := callgraph.NewPathFilter(cfg.FilterOptions(root), nil)
	engineOpts := append(cfg.EngineOptions(), callgraph.WithLogger(logger))
	w.engine = callgraph.NewEngine(w.source, filter, engineOpts...)

	if opts.Store != nil {
		w.store = opts.Store
	} else {
		store, err := graph.OpenStore(ctx, cfg.Store.Driver, cfg.StorePath(root))
		if err != nil {
			w.stopServer(ctx)
			return nil, fmt.Errorf("workspace: %w", err)
		}
		w.store, w.ownsStore = store, true
	}

	logger.Info("workspace opened",
		slog.String("root", root),
		slog.String("capability", w.capability.String()),
		slog.String("store", cfg.Store.Driver),
	)
	return w, nil
}

func (w *Workspace) openSource(ctx context.Context, detector Detector) error {
	idx, err := index.Build(ctx, w.root, index.BuildOptions{
		Concurrency: w.cfg.MaxConcurrency,
		Logger:      w.logger,
	})
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	w.index = idx
	w.source = idx
	w.capability = CapStatic

	if detector == nil {
		detector = NewDefaultDetector()
	}
	if detector.Detect(ctx, w.cfg.Resolver) != CapLanguageServer {
		return nil
	}

	lc := w.cfg.Resolver.LSP
	srv := lsp.NewServer(lsp.Config{
		Command:               lc.Command,
		Args:                  lc.Args,
		LanguageID:            lc.LanguageID,
		RootPath:              w.root,
		InitializationOptions: lc.InitializationOptions,
		RequestTimeout:        lc.RequestTimeout,
	})
	if err := srv.Start(ctx); err != nil {
		w.logger.Warn("language server failed to start, using static index",
			slog.String("command", lc.Command),
			slog.String("error", err.Error()),
		)
		return nil
	}
	w.server = srv
	w.source = NewFallbackResolver(lsp.NewCallHierarchy(srv.Client()), idx)
	w.capability = CapLanguageServer
	return nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Config returns the effective configuration.
func (w *Workspace) Config() *config.Config { return w.cfg }

// Capability reports which call hierarchy source is active.
func (w *Workspace) Capability() Capability { return w.capability }

// Engine returns the shared traversal engine.
func (w *Workspace) Engine() *callgraph.Engine { return w.engine }

// Registry returns the open sessions.
func (w *Workspace) Registry() *session.Registry { return w.registry }

// Store returns the session store.
func (w *Workspace) Store() graph.Store { return w.store }

// ResolveRoots maps req to entry symbols.
func (w *Workspace) ResolveRoots(ctx context.Context, req OpenRequest) ([]callgraph.SymbolNode, error) {
	if req.Symbol == "" {
		if req.File == "" {
			return nil, ErrNoEntry
		}
		return w.source.Prepare(ctx, w.abs(req.File), req.Position)
	}
	if w.index == nil {
		return nil, fmt.Errorf("symbol lookup needs the static index: %w", callgraph.ErrUnsupportedLanguage)
	}
	found := w.index.Find(req.Symbol)
	if req.File != "" {
		want := w.abs(req.File)
		kept := found[:0]
		for _, s := range found {
			if s.Path() == want {
				kept = append(kept, s)
			}
		}
		found = kept
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("symbol %q: %w", req.Symbol, callgraph.ErrNoRoot)
	}
	return found, nil
}

// OpenSession resolves the entry points of req into a new registered,
// focused session. Nothing is explored until the session is told to.
func (w *Workspace) OpenSession(ctx context.Context, req OpenRequest) (*session.Session, error) {
	roots, err := w.ResolveRoots(ctx, req)
	if err != nil {
		return nil, err
	}
	dir := req.Direction
	if dir == "" {
		dir = callgraph.Both
	}
	depth := w.cfg.MaxDepth
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}
	title := req.Title
	if title == "" {
		title = rootsTitle(roots)
	}

	cfg := w.sessionConfig()
	cfg.Title = title
	cfg.Direction = dir
	cfg.Roots = roots
	cfg.MaxDepth = depth
	s := session.New(cfg)
	w.registry.Register(s)
	w.logger.Info("session opened",
		slog.String("session", s.ID()),
		slog.String("title", title),
		slog.String("direction", string(dir)),
		slog.Int("roots", len(roots)),
	)
	return s, nil
}

// AppendToFocused explores req's entry points into the focused session, or
// opens and explores a new session when none is focused.
func (w *Workspace) AppendToFocused(ctx context.Context, req OpenRequest) (*session.Session, *callgraph.Stats, error) {
	s, ok := w.registry.Focused()
	if !ok {
		s, err := w.OpenSession(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		stats, err := s.Explore(ctx)
		return s, stats, err
	}
	roots, err := w.ResolveRoots(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	dir := req.Direction
	if dir == "" {
		dir = callgraph.Both
	}
	depth := w.cfg.MaxDepth
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}
	stats, err := s.AddRoots(ctx, dir, roots, depth)
	return s, stats, err
}

// Session returns the open session with id.
func (w *Workspace) Session(id string) (*session.Session, error) {
	return w.registry.Get(id)
}

// Sessions summarizes the open sessions.
func (w *Workspace) Sessions() []session.Info {
	list := w.registry.List()
	out := make([]session.Info, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	return out
}

// CloseSession unregisters and closes the session with id.
func (w *Workspace) CloseSession(id string) error {
	s, ok := w.registry.Unregister(id)
	if !ok {
		return fmt.Errorf("close %s: %w", id, session.ErrSessionNotFound)
	}
	s.Close()
	return nil
}

// SaveSession persists the open session with id.
func (w *Workspace) SaveSession(ctx context.Context, id string) (graph.SnapshotInfo, error) {
	s, err := w.registry.Get(id)
	if err != nil {
		return graph.SnapshotInfo{}, err
	}
	snap := s.Snapshot()
	if err := w.store.SaveState(ctx, snap); err != nil {
		return graph.SnapshotInfo{}, fmt.Errorf("save session %s: %w", id, err)
	}
	return snap.SnapshotInfo, nil
}

// RestoreSession reopens a saved session. An already open session with the
// same id is focused and returned as is.
func (w *Workspace) RestoreSession(ctx context.Context, id string) (*session.Session, error) {
	if s, err := w.registry.Get(id); err == nil {
		_ = w.registry.Focus(id)
		return s, nil
	}
	s, err := session.Restore(ctx, w.store, id, w.sessionConfig())
	if err != nil {
		return nil, err
	}
	w.registry.Register(s)
	return s, nil
}

// SavedSessions lists the persisted sessions, newest first.
func (w *Workspace) SavedSessions(ctx context.Context) ([]graph.SnapshotInfo, error) {
	return w.store.ListStates(ctx)
}

// DeleteSaved removes a persisted session.
func (w *Workspace) DeleteSaved(ctx context.Context, id string) error {
	return w.store.DeleteState(ctx, id)
}

// Close ends every session, stops the language server, and closes the
// store if the workspace opened it.
func (w *Workspace) Close(ctx context.Context) error {
	w.registry.CloseAll()
	w.stopServer(ctx)
	if w.ownsStore {
		return w.store.Close()
	}
	return nil
}

func (w *Workspace) stopServer(ctx context.Context) {
	if w.server == nil {
		return
	}
	if err := w.server.Shutdown(ctx); err != nil {
		w.logger.Warn("language server shutdown", slog.String("error", err.Error()))
	}
}

func (w *Workspace) sessionConfig() session.Config {
	return session.Config{
		Engine:       w.engine,
		RootResolver: w.source,
		Navigator:    w.nav,
		Model:        w.cfg.ModelOptions(w.root),
		Renderer:     w.cfg.Renderer,
		Logger:       w.logger,
	}
}

// abs resolves file (path or URI) against the workspace root.
func (w *Workspace) abs(file string) string {
	p := callgraph.URIToPath(file)
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	return filepath.Clean(p)
}

func rootsTitle(roots []callgraph.SymbolNode) string {
	names := make([]string, 0, len(roots))
	for _, r := range roots {
		names = append(names, r.Name)
	}
	return strings.Join(names, ", ")
}
