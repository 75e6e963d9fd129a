package lsp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// ServerState is the lifecycle state of a server process.
type ServerState int

const (
	ServerStateUninitialized ServerState = iota
	ServerStateStarting
	ServerStateReady
	ServerStateStopping
	ServerStateStopped
)

func (s ServerState) String() string {
	names := []string{"uninitialized", "starting", "ready", "stopping", "stopped"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Server owns a language server child process speaking LSP on stdio.
type Server struct {
	cfg Config

	mu     sync.Mutex
	state  ServerState
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	client *Client
	exited chan struct{}
}

// NewServer returns an unstarted server.
func NewServer(cfg Config) *Server {
	return &Server{cfg: cfg, state: ServerStateUninitialized}
}

// Start launches the process and completes the initialize handshake.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ServerStateUninitialized {
		return ErrServerAlreadyStarted
	}
	s.state = ServerStateStarting

	path, err := exec.LookPath(s.cfg.Command)
	if err != nil {
		s.state = ServerStateStopped
		return fmt.Errorf("%w: %s", ErrServerNotInstalled, s.cfg.Command)
	}
	slog.Info("lsp: starting server",
		slog.String("command", path),
		slog.String("root", s.cfg.RootPath),
	)

	cmd := exec.Command(path, s.cfg.Args...)
	cmd.Dir = s.cfg.RootPath
	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.state = ServerStateStopped
		return fmt.Errorf("lsp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.state = ServerStateStopped
		return fmt.Errorf("lsp: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.state = ServerStateStopped
		return fmt.Errorf("lsp: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		s.state = ServerStateStopped
		recordServerSpawn(ctx, s.cfg.Command, false)
		return fmt.Errorf("lsp: start process: %w", err)
	}
	s.cmd, s.stdin = cmd, stdin
	s.exited = make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(s.exited)
	}()
	go logStderr(stderr, s.cfg.Command)

	client, err := Connect(ctx, stdout, stdin, s.cfg)
	if err != nil {
		recordServerSpawn(ctx, s.cfg.Command, false)
		s.killLocked()
		return err
	}
	recordServerSpawn(ctx, s.cfg.Command, true)
	s.client = client
	s.state = ServerStateReady
	return nil
}

// Client returns the connected client, or nil before Start succeeds.
func (s *Server) Client() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// State returns the lifecycle state.
func (s *Server) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Shutdown asks the server to exit and kills it if it does not within five
// seconds. Idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ServerStateReady {
		return nil
	}
	s.state = ServerStateStopping
	slog.Info("lsp: shutting down server", slog.String("command", s.cfg.Command))

	err := s.client.Close(ctx)
	_ = s.stdin.Close()
	select {
	case <-s.exited:
	case <-time.After(5 * time.Second):
		_ = s.cmd.Process.Kill()
		<-s.exited
	}
	s.state = ServerStateStopped
	return err
}

func (s *Server) killLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		<-s.exited
	}
	s.state = ServerStateStopped
}

func logStderr(r io.Reader, command string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		slog.Debug("lsp: stderr", slog.String("command", command), slog.String("line", sc.Text()))
	}
}
