// Package web serves call graph sessions over HTTP: a JSON API, a
// Server-Sent Events stream per session for renderers, Prometheus metrics,
// and the MCP tools over streamable HTTP.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dusk-indust/chartographer/internal/callgraph"
	"github.com/dusk-indust/chartographer/internal/export"
	"github.com/dusk-indust/chartographer/internal/graph"
	"github.com/dusk-indust/chartographer/internal/mcptools"
	"github.com/dusk-indust/chartographer/internal/session"
	"github.com/dusk-indust/chartographer/internal/workspace"
)

// keepAlive is the interval between SSE comment frames on idle streams.
const keepAlive = 15 * time.Second

// Server is the chartographer HTTP server for one workspace.
type Server struct {
	ws     *workspace.Workspace
	router chi.Router
	addr   string
	logger *slog.Logger
}

// ServerConfig holds the configuration for the web server.
type ServerConfig struct {
	Addr   string // listen address (default: the workspace's server.addr)
	Logger *slog.Logger
}

// NewServer creates a Server over ws.
func NewServer(ws *workspace.Workspace, cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ws.Config().Server.Addr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		ws:     ws,
		addr:   cfg.Addr,
		logger: cfg.Logger,
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("web: shutdown", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("web: listening", slog.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/mcp", mcptools.Handler(mcptools.NewCallGraphService(s.ws)))

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.handleSessionList)
		r.Post("/", s.handleSessionCreate)
		r.Get("/saved", s.handleSavedList)
		r.Post("/restore/{id}", s.handleSessionRestore)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleSessionGet)
			r.Delete("/", s.handleSessionClose)
			r.Get("/events", s.handleEvents)
			r.Post("/messages", s.handleMessage)
			r.Get("/elements", s.handleElements)
			r.Get("/export", s.handleExport)
			r.Post("/save", s.handleSessionSave)
		})
	})

	return r
}

// requestLogger logs one line per request through slog. The wrapped writer
// keeps http.Flusher so SSE streams still flush.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("web request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start).Round(time.Microsecond)),
		)
	})
}

// handleHealth returns a JSON health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"root":       s.ws.Root(),
		"capability": s.ws.Capability().String(),
	})
}

// createRequest is the body of POST /api/sessions.
type createRequest struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	Symbol    string `json:"symbol"`
	Direction string `json:"direction"`
	MaxDepth  *int   `json:"maxDepth"`
	Title     string `json:"title"`

	// Explore runs the traversal before responding. Otherwise it starts on
	// the renderer's first ready message.
	Explore bool `json:"explore"`
}

type createResponse struct {
	Session session.Info     `json:"session"`
	Stats   *callgraph.Stats `json:"stats,omitempty"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	dir, err := callgraph.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.ws.OpenSession(r.Context(), workspace.OpenRequest{
		File:      req.File,
		Position:  callgraph.Position{Line: req.Line, Character: req.Character},
		Symbol:    req.Symbol,
		Direction: dir,
		MaxDepth:  req.MaxDepth,
		Title:     req.Title,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := createResponse{}
	if req.Explore {
		if resp.Stats, err = sess.Explore(r.Context()); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	resp.Session = sess.Info()
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSessionList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Sessions())
}

func (s *Server) handleSavedList(w http.ResponseWriter, r *http.Request) {
	saved, err := s.ws.SavedSessions(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if saved == nil {
		saved = []graph.SnapshotInfo{}
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.CloseSession(chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	info, err := s.ws.SaveSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSessionRestore(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ws.RestoreSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleEvents streams the session's outbound messages until the client
// disconnects or the session closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sub, err := sess.Subscribe()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer sub.Cancel()

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sw := NewSSEWriter(w)
	sw.Init()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sw.Comment("keep-alive"); err != nil {
				return
			}
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if err := sw.WriteMessage(msg); err != nil {
				s.logger.Debug("web: event stream ended",
					slog.String("session", sess.ID()),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

// handleMessage queues one renderer message for the session. Results arrive
// on the event stream.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var msg session.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode message: %w", err))
		return
	}
	if msg.Type == "" {
		writeError(w, http.StatusBadRequest, errors.New("message type is required"))
		return
	}
	if err := sess.Dispatch(msg); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Model().Elements())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatMermaid
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, sess.Snapshot()); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// session looks up the {id} session, writing a 404 when it is not open.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.ws.Session(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return sess, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, graph.ErrStateNotFound),
		errors.Is(err, graph.ErrElementNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrNoEntry):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, callgraph.ErrNoRoot), errors.Is(err, session.ErrUnresolvedEntry),
		errors.Is(err, callgraph.ErrUnsupportedLanguage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
