package lsp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// Config describes how to reach a language server.
type Config struct {
	// Command and Args start the server process (Server only).
	Command string
	Args    []string

	// LanguageID overrides the languageId sent in didOpen. Empty derives it
	// from the file extension.
	LanguageID string

	// RootPath is the workspace root sent in initialize.
	RootPath string

	InitializationOptions any

	// RequestTimeout bounds each call hierarchy request. Zero means 30s.
	RequestTimeout time.Duration
}

const defaultRequestTimeout = 30 * time.Second

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return defaultRequestTimeout
}

var extLanguageIDs = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".mts":  "typescript",
	".cts":  "typescript",
	".tsx":  "typescriptreact",
	".js":   "javascript",
	".mjs":  "javascript",
	".jsx":  "javascriptreact",
	".py":   "python",
	".rs":   "rust",
	".java": "java",
	".kt":   "kotlin",
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".cs":   "csharp",
	".rb":   "ruby",
	".php":  "php",
}

// LanguageIDForPath returns the LSP languageId for path, or "plaintext".
func LanguageIDForPath(path string) string {
	if id, ok := extLanguageIDs[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	return "plaintext"
}

// Client is an initialized LSP session over one connection.
type Client struct {
	cfg    Config
	proto  *Protocol
	caps   ServerCapabilities
	info   *ServerInfo
	cancel context.CancelFunc

	openMu sync.Mutex
	opened map[string]bool
}

// Connect runs the initialize handshake over r (server output) and w (server
// input) and returns a ready client. The read loop runs until Close or until
// the server closes its output.
func Connect(ctx context.Context, r io.Reader, w io.Writer, cfg Config) (*Client, error) {
	loopCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg,
		proto:  NewProtocol(r, w),
		cancel: cancel,
		opened: make(map[string]bool),
	}
	go func() {
		if err := c.proto.ReadLoop(loopCtx); err != nil && loopCtx.Err() == nil {
			slog.Warn("lsp: connection ended", slog.String("error", err.Error()))
		}
	}()

	if err := c.initialize(ctx); err != nil {
		c.proto.Close()
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrInitializeFailed, err)
	}
	return c, nil
}

func (c *Client) initialize(ctx context.Context) error {
	rootURI := ""
	var folders []WorkspaceFolder
	if c.cfg.RootPath != "" {
		rootURI = callgraph.PathToURI(c.cfg.RootPath)
		folders = []WorkspaceFolder{{URI: rootURI, Name: filepath.Base(c.cfg.RootPath)}}
	}
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   rootURI,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				Synchronization: &SynchronizationCapabilities{},
				CallHierarchy:   &CallHierarchyCapabilities{},
			},
		},
		InitializationOptions: c.cfg.InitializationOptions,
		WorkspaceFolders:      folders,
	}
	var result InitializeResult
	if err := c.proto.Call(ctx, "initialize", params, &result); err != nil {
		return err
	}
	c.caps = result.Capabilities
	c.info = result.ServerInfo
	if err := c.proto.SendNotification("initialized", struct{}{}); err != nil {
		return err
	}

	attrs := []any{slog.Bool("call_hierarchy", c.caps.HasCallHierarchy())}
	if c.info != nil {
		attrs = append(attrs, slog.String("server", c.info.Name), slog.String("version", c.info.Version))
	}
	slog.Info("lsp: initialized", attrs...)
	return nil
}

// Capabilities returns what the server advertised in initialize.
func (c *Client) Capabilities() ServerCapabilities { return c.caps }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.proto.Done() }

// EnsureOpen sends textDocument/didOpen for uri once. Servers answer call
// hierarchy requests only for open documents.
func (c *Client) EnsureOpen(ctx context.Context, uri string) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	if c.opened[uri] {
		return nil
	}
	path := callgraph.URIToPath(uri)
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	lang := c.cfg.LanguageID
	if lang == "" {
		lang = LanguageIDForPath(path)
	}
	err = c.proto.SendNotification("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: lang, Version: 1, Text: string(text)},
	})
	if err != nil {
		return err
	}
	c.opened[uri] = true
	return nil
}

// PrepareCallHierarchy resolves the call hierarchy items at pos in uri.
func (c *Client) PrepareCallHierarchy(ctx context.Context, uri string, pos callgraph.Position) ([]CallHierarchyItem, error) {
	var items []CallHierarchyItem
	err := c.call(ctx, "textDocument/prepareCallHierarchy", uri, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}, &items, func() int { return len(items) })
	return items, err
}

// IncomingCalls returns the callers of item.
func (c *Client) IncomingCalls(ctx context.Context, item CallHierarchyItem) ([]CallHierarchyIncomingCall, error) {
	var calls []CallHierarchyIncomingCall
	err := c.call(ctx, "callHierarchy/incomingCalls", item.URI, CallHierarchyItemParams{Item: item},
		&calls, func() int { return len(calls) })
	return calls, err
}

// OutgoingCalls returns the callees of item.
func (c *Client) OutgoingCalls(ctx context.Context, item CallHierarchyItem) ([]CallHierarchyOutgoingCall, error) {
	var calls []CallHierarchyOutgoingCall
	err := c.call(ctx, "callHierarchy/outgoingCalls", item.URI, CallHierarchyItemParams{Item: item},
		&calls, func() int { return len(calls) })
	return calls, err
}

func (c *Client) call(ctx context.Context, method, uri string, params, out any, count func() int) error {
	ctx, span := startRequestSpan(ctx, method, uri)
	defer span.End()
	start := time.Now()

	err := c.proto.Call(ctx, method, params, out)

	n := 0
	if err == nil {
		n = count()
	}
	endRequestSpan(span, n, err)
	recordRequest(ctx, method, time.Since(start), n, err)
	return err
}

// Close sends shutdown and exit and stops the read loop. The connection's
// streams are left to the caller.
func (c *Client) Close(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.proto.SendRequest(shutdownCtx, "shutdown", nil)
	_ = c.proto.SendNotification("exit", nil)
	c.proto.Close()
	c.cancel()
	return err
}
