package workspace

import (
	"context"
	"log/slog"
	"os/exec"

	"github.com/dusk-indust/chartographer/internal/config"
)

// Capability describes which call hierarchy source a workspace resolves with.
type Capability int

const (
	// CapStatic resolves through the tree-sitter index only.
	CapStatic Capability = iota

	// CapLanguageServer resolves through a language server, with the index
	// as fallback for files the server does not handle.
	CapLanguageServer
)

func (c Capability) String() string {
	switch c {
	case CapStatic:
		return "static"
	case CapLanguageServer:
		return "language-server"
	default:
		return "unknown"
	}
}

// Detector decides which capability a resolver configuration can reach.
type Detector interface {
	Detect(ctx context.Context, cfg config.ResolverConfig) Capability
}

// Compile-time check.
var _ Detector = (*DefaultDetector)(nil)

// DefaultDetector looks the configured language server up on PATH.
type DefaultDetector struct {
	lookPath func(string) (string, error)
}

// NewDefaultDetector creates a DefaultDetector.
func NewDefaultDetector() *DefaultDetector {
	return &DefaultDetector{lookPath: exec.LookPath}
}

// Detect returns CapLanguageServer only when the lsp resolver is configured
// and its command can be found.
func (d *DefaultDetector) Detect(_ context.Context, cfg config.ResolverConfig) (level Capability) {
	if cfg.Kind != config.ResolverLSP || cfg.LSP.Command == "" {
		return CapStatic
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("detector: probe panicked", slog.Any("panic", r))
			level = CapStatic
		}
	}()

	path, err := d.lookPath(cfg.LSP.Command)
	if err != nil {
		slog.Warn("detector: language server not found, using static index",
			slog.String("command", cfg.LSP.Command),
			slog.String("error", err.Error()),
		)
		return CapStatic
	}
	slog.Debug("detector: language server found", slog.String("path", path))
	return CapLanguageServer
}
