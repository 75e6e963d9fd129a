package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dusk-indust/chartographer/internal/callgraph"
	"github.com/dusk-indust/chartographer/internal/config"
	"github.com/dusk-indust/chartographer/internal/graph"
)

var (
	ErrClosed          = errors.New("session closed")
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownMessage  = errors.New("unknown message type")
	ErrUnresolvedEntry = errors.New("can't resolve entry function")
)

// DefaultBufferSize is the per-subscriber message buffer.
const DefaultBufferSize = 256

// Navigator moves an editor to a source location.
type Navigator interface {
	Navigate(ctx context.Context, loc graph.Location) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, loc graph.Location) error

func (f NavigatorFunc) Navigate(ctx context.Context, loc graph.Location) error {
	return f(ctx, loc)
}

// Config describes a new session.
type Config struct {
	// ID is generated when empty.
	ID        string
	Title     string
	Direction callgraph.Direction
	Roots     []callgraph.SymbolNode
	// MaxDepth < 0 means unlimited.
	MaxDepth int

	Engine       *callgraph.Engine
	RootResolver callgraph.RootResolver
	// Navigator is optional; navigate messages are published either way.
	Navigator Navigator

	Model    graph.Options
	Renderer config.RendererConfig

	BufferSize int
	Logger     *slog.Logger
}

// Info summarizes a session for listings.
type Info struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Direction   callgraph.Direction `json:"direction"`
	MaxDepth    int                 `json:"maxDepth"`
	Roots       []string            `json:"roots"`
	Counts      graph.Counts        `json:"counts"`
	Subscribers int                 `json:"subscribers"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// Session is one call graph view: a model that grows as traversals run, and
// the renderers subscribed to it.
type Session struct {
	id        string
	title     string
	direction callgraph.Direction
	maxDepth  int
	engine    *callgraph.Engine
	prepare   callgraph.RootResolver
	nav       Navigator
	renderer  config.RendererConfig
	model     *graph.Model
	bufSize   int
	logger    *slog.Logger
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	roots     []callgraph.SymbolNode
	subs      map[*Subscription]struct{}
	started   bool
	closed    bool
	updatedAt time.Time
}

// New creates a session. Nothing is explored until the renderer reports
// ready or Explore is called.
func New(cfg Config) *Session {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	if cfg.Direction == "" {
		cfg.Direction = callgraph.Both
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Engine == nil && cfg.RootResolver != nil {
		if r, ok := cfg.RootResolver.(callgraph.Resolver); ok {
			cfg.Engine = callgraph.NewEngine(r, nil)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now().UTC()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		title:     cfg.Title,
		direction: cfg.Direction,
		maxDepth:  cfg.MaxDepth,
		engine:    cfg.Engine,
		prepare:   cfg.RootResolver,
		nav:       cfg.Navigator,
		renderer:  cfg.Renderer,
		model:     graph.NewModel(cfg.Model),
		bufSize:   cfg.BufferSize,
		logger:    logger.With(slog.String("session", id)),
		createdAt: now,
		ctx:       ctx,
		cancel:    cancel,
		roots:     append([]callgraph.SymbolNode(nil), cfg.Roots...),
		subs:      make(map[*Subscription]struct{}),
		updatedAt: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Model returns the session's element model.
func (s *Session) Model() *graph.Model { return s.model }

// Info returns a summary of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	roots := make([]string, 0, len(s.roots))
	for _, r := range s.roots {
		roots = append(roots, r.Key())
	}
	return Info{
		ID:          s.id,
		Title:       s.title,
		Direction:   s.direction,
		MaxDepth:    s.maxDepth,
		Roots:       roots,
		Counts:      s.model.Counts(),
		Subscribers: len(s.subs),
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}

// HandleMessage processes one inbound renderer message. Failures are also
// published to subscribers as error messages.
func (s *Session) HandleMessage(ctx context.Context, msg Message) error {
	err := s.handle(ctx, msg)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("message failed",
			slog.String("type", string(msg.Type)),
			slog.String("error", err.Error()),
		)
		s.publish(TypeError, err.Error())
	}
	return err
}

func (s *Session) handle(ctx context.Context, msg Message) error {
	switch msg.Type {
	case TypeState:
		var state string
		if err := msg.Decode(&state); err != nil {
			return err
		}
		switch state {
		case StateLoaded:
			s.publish(TypeSetParams, SetParams{Config: s.renderer})
			return nil
		case StateReady:
			return s.ready(ctx)
		default:
			return fmt.Errorf("state message: unknown state %q", state)
		}

	case TypeGoToFunction:
		var id string
		if err := msg.Decode(&id); err != nil {
			return err
		}
		return s.GoToFunction(ctx, id)

	case TypeExpandBoth:
		var req ExpandRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		depth := s.maxDepth
		if req.Depth != nil {
			depth = *req.Depth
		}
		_, err := s.Expand(ctx, req.ID, callgraph.Both, depth)
		return err

	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// Dispatch handles msg in the background on the session's own context. It
// returns ErrClosed after Close.
func (s *Session) Dispatch(msg Message) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		_ = s.HandleMessage(s.ctx, msg)
	}()
	return nil
}

// ready replays every known element, then explores from the session roots
// the first time it is called.
func (s *Session) ready(ctx context.Context) error {
	s.mu.Lock()
	first := !s.started
	s.started = true
	hasRoots := len(s.roots) > 0
	s.mu.Unlock()

	if elems := s.model.Elements(); len(elems) > 0 {
		s.publish(TypeAddElems, elems)
	}
	if !first || !hasRoots {
		return nil
	}
	_, err := s.Explore(ctx)
	return err
}

// Explore runs the session's configured traversal. Nodes already expanded in
// the model in a direction are not expanded again in that direction.
func (s *Session) Explore(ctx context.Context) (*callgraph.Stats, error) {
	s.mu.Lock()
	s.started = true
	roots := append([]callgraph.SymbolNode(nil), s.roots...)
	s.mu.Unlock()
	return s.explore(ctx, callgraph.Request{
		Direction: s.direction,
		Roots:     roots,
		MaxDepth:  s.maxDepth,
		Seen: map[callgraph.Direction][]string{
			callgraph.Outgoing: s.model.SeenKeys(callgraph.Outgoing),
			callgraph.Incoming: s.model.SeenKeys(callgraph.Incoming),
		},
	})
}

// AddRoots explores from extra entry points into this session's model.
func (s *Session) AddRoots(ctx context.Context, dir callgraph.Direction, roots []callgraph.SymbolNode, maxDepth int) (*callgraph.Stats, error) {
	s.mu.Lock()
	s.roots = append(s.roots, roots...)
	s.started = true
	s.mu.Unlock()
	return s.explore(ctx, callgraph.Request{
		Direction: dir,
		Roots:     roots,
		MaxDepth:  maxDepth,
	})
}

// Expand re-resolves the node with element id at its stored location and
// explores from it in dir, merging the result into the model.
func (s *Session) Expand(ctx context.Context, id string, dir callgraph.Direction, maxDepth int) (*callgraph.Stats, error) {
	loc, err := s.model.Locate(id)
	if err != nil {
		return nil, err
	}
	if s.prepare == nil {
		return nil, fmt.Errorf("expand %s: %w", id, ErrUnresolvedEntry)
	}
	roots, err := s.prepare.Prepare(ctx, loc.URI, loc.Position)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w: %w", id, ErrUnresolvedEntry, err)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("expand %s: %w: %w", id, ErrUnresolvedEntry, callgraph.ErrNoRoot)
	}
	return s.explore(ctx, callgraph.Request{
		Direction: dir,
		Roots:     roots[:1],
		MaxDepth:  maxDepth,
	})
}

func (s *Session) explore(ctx context.Context, req callgraph.Request) (*callgraph.Stats, error) {
	if s.engine == nil {
		return nil, errors.New("session has no traversal engine")
	}
	req.OnExpanded = s.markExpanded
	stats, err := s.engine.Explore(ctx, req, s.addEdge)
	s.touch()
	if stats != nil {
		s.logger.Info("explored",
			slog.String("direction", string(req.Direction)),
			slog.Int64("expanded", stats.Expanded),
			slog.Int64("edges", stats.Edges),
			slog.Int64("errors", stats.Errors),
		)
	}
	return stats, err
}

func (s *Session) markExpanded(dir callgraph.Direction, node callgraph.SymbolNode) {
	s.model.MarkExpanded(dir, node.Key())
}

func (s *Session) addEdge(edge callgraph.CallEdge) {
	if added := s.model.Apply(edge); len(added) > 0 {
		s.publish(TypeAddElems, added)
	}
}

// GoToFunction publishes a navigate message for the node with element id and
// forwards the location to the Navigator, if any.
func (s *Session) GoToFunction(ctx context.Context, id string) error {
	loc, err := s.model.Locate(id)
	if err != nil {
		return err
	}
	s.publish(TypeNavigate, loc)
	if s.nav == nil {
		return nil
	}
	return s.nav.Navigate(ctx, loc)
}

// Snapshot captures the session for a Store.
func (s *Session) Snapshot() graph.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return graph.Snapshot{
		SnapshotInfo: graph.SnapshotInfo{
			ID:        s.id,
			Title:     s.title,
			Direction: string(s.direction),
			MaxDepth:  s.maxDepth,
			UpdatedAt: time.Now().UTC(),
		},
		State: s.model.State(),
	}
}

// Save writes the session to store under its id.
func (s *Session) Save(ctx context.Context, store graph.Store) error {
	if err := store.SaveState(ctx, s.Snapshot()); err != nil {
		return fmt.Errorf("save session %s: %w", s.id, err)
	}
	return nil
}

// Restore loads snapshot id from store into a new session built from cfg.
// The restored session has no roots: a ready message replays the saved
// elements instead of exploring.
func Restore(ctx context.Context, store graph.Store, id string, cfg Config) (*Session, error) {
	snap, err := store.LoadState(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("restore session %s: %w", id, err)
	}
	cfg.ID = snap.ID
	cfg.Title = snap.Title
	cfg.Direction = callgraph.Direction(snap.Direction)
	cfg.MaxDepth = snap.MaxDepth
	cfg.Roots = nil
	s := New(cfg)
	s.model.Restore(snap.State)
	return s, nil
}

// Close cancels background work, waits for it, and ends every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}
