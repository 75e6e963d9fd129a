package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/chartographer/internal/callgraph"
	"github.com/dusk-indust/chartographer/internal/graph"
)

// FileNames are the config file names Load looks for, in order.
var FileNames = []string{"chartographer.yml", "chartographer.yaml"}

// Resolver kinds.
const (
	ResolverTreeSitter = "treesitter"
	ResolverLSP        = "lsp"
)

// Config holds project-level settings loaded from chartographer.yml.
type Config struct {
	WorkspaceRoots      []string `yaml:"workspaceRoots,omitempty"`
	IgnoreOnGenerate    []string `yaml:"ignoreOnGenerate,omitempty"`
	RespectGitignore    bool     `yaml:"respectGitignore"`
	RestrictToWorkspace bool     `yaml:"restrictToWorkspace"`
	ExcludeDependencies bool     `yaml:"excludeDependencies"`
	DependencyPaths     []string `yaml:"dependencyPaths,omitempty"`

	// MaxDepth < 0 means unlimited.
	MaxDepth       int  `yaml:"maxDepth"`
	MaxConcurrency int  `yaml:"maxConcurrency"`
	ShareLedger    bool `yaml:"shareLedger"`

	FileLabelFormat string `yaml:"fileLabelFormat,omitempty"`
	EdgeIdentity    string `yaml:"edgeIdentity,omitempty"`

	Resolver ResolverConfig `yaml:"resolver"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Renderer RendererConfig `yaml:"renderer"`
}

// ResolverConfig selects the call hierarchy capability.
type ResolverConfig struct {
	Kind string    `yaml:"kind"`
	LSP  LSPConfig `yaml:"lsp"`
}

// LSPConfig describes the language server used when Kind is "lsp".
type LSPConfig struct {
	Command               string         `yaml:"command,omitempty"`
	Args                  []string       `yaml:"args,omitempty"`
	LanguageID            string         `yaml:"languageId,omitempty"`
	RequestTimeout        time.Duration  `yaml:"requestTimeout,omitempty"`
	InitializationOptions map[string]any `yaml:"initializationOptions,omitempty"`
}

// StoreConfig selects where saved sessions live.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// RendererConfig is sent to the renderer in setParams.
type RendererConfig struct {
	HighlightRoots              bool              `yaml:"highlightRoots" json:"highlightRoots"`
	HighlightLeaves             bool              `yaml:"highlightLeaves" json:"highlightLeaves"`
	DefaultGraphLayoutAlgorithm string            `yaml:"defaultGraphLayoutAlgorithm" json:"defaultGraphLayoutAlgorithm"`
	ColorScheme                 string            `yaml:"colorScheme" json:"colorScheme"`
	Colors                      map[string]string `yaml:"colors,omitempty" json:"colors,omitempty"`
}

// ColorKeys are the renderer color names accepted under renderer.colors.
var ColorKeys = []string{
	"nodeBackgroundColor",
	"nodeColor",
	"nodeBorderColor",
	"highlightedLeafNodeBackgroundColor",
	"highlightedLeafNodeColor",
	"highlightedRootNodeBackgroundColor",
	"highlightedRootNodeColor",
	"compoundBackgroundColor",
	"edgeLineColor",
	"edgeArrowColor",
	"searchHighlightBackgroundColor",
	"searchHighlightColor",
	"searchHighlightBorderColor",
}

// Layout algorithms the renderer understands.
var LayoutAlgorithms = []string{"dagre", "klay", "breadthfirst", "cose", "concentric", "grid", "circle"}

// Defaults returns the settings used when no config file exists.
func Defaults() *Config {
	return &Config{
		RespectGitignore: true,
		MaxDepth:         -1,
		MaxConcurrency:   callgraph.DefaultMaxConcurrency,
		FileLabelFormat:  graph.DefaultFileLabelFormat,
		EdgeIdentity:     string(graph.EdgeIdentityPair),
		Resolver:         ResolverConfig{Kind: ResolverTreeSitter},
		Store:            StoreConfig{Driver: "memory"},
		Server:           ServerConfig{Addr: "127.0.0.1:7878"},
		Renderer: RendererConfig{
			HighlightRoots:              true,
			HighlightLeaves:             true,
			DefaultGraphLayoutAlgorithm: "dagre",
			ColorScheme:                 "auto",
		},
	}
}

// Load attempts to read chartographer.yml or chartographer.yaml from dir.
// Fields absent from the file keep their defaults. Returns Defaults() (not an
// error) if no config file exists.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		cfg := Defaults()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		return cfg, nil
	}
	return Defaults(), nil
}

// Validate rejects unknown enum values.
func (c *Config) Validate() error {
	var errs []error
	switch graph.EdgeIdentity(c.EdgeIdentity) {
	case "", graph.EdgeIdentityPair, graph.EdgeIdentityLabeled:
	default:
		errs = append(errs, fmt.Errorf("edgeIdentity %q (want pair or labeled)", c.EdgeIdentity))
	}
	switch c.Resolver.Kind {
	case "", ResolverTreeSitter:
	case ResolverLSP:
		if c.Resolver.LSP.Command == "" {
			errs = append(errs, errors.New("resolver.lsp.command is required for the lsp resolver"))
		}
	default:
		errs = append(errs, fmt.Errorf("resolver.kind %q (want treesitter or lsp)", c.Resolver.Kind))
	}
	if !slices.Contains(graph.Drivers(), c.storeDriver()) {
		errs = append(errs, fmt.Errorf("store.driver %q (available: %v)", c.Store.Driver, graph.Drivers()))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("maxConcurrency %d must not be negative", c.MaxConcurrency))
	}
	if a := c.Renderer.DefaultGraphLayoutAlgorithm; a != "" && !slices.Contains(LayoutAlgorithms, a) {
		errs = append(errs, fmt.Errorf("renderer.defaultGraphLayoutAlgorithm %q (want one of %v)", a, LayoutAlgorithms))
	}
	for k := range c.Renderer.Colors {
		if !slices.Contains(ColorKeys, k) {
			errs = append(errs, fmt.Errorf("renderer.colors: unknown key %q", k))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) storeDriver() string {
	if c.Store.Driver == "" {
		return "memory"
	}
	return c.Store.Driver
}

// Roots returns the workspace roots, falling back to dir when none are
// configured. Relative roots resolve against dir.
func (c *Config) Roots(dir string) []string {
	if len(c.WorkspaceRoots) == 0 {
		return []string{dir}
	}
	out := make([]string, 0, len(c.WorkspaceRoots))
	for _, r := range c.WorkspaceRoots {
		if !filepath.IsAbs(r) {
			r = filepath.Join(dir, r)
		}
		out = append(out, filepath.Clean(r))
	}
	return out
}

// FilterOptions maps the path filtering settings for the workspace at dir.
func (c *Config) FilterOptions(dir string) callgraph.FilterOptions {
	return callgraph.FilterOptions{
		IgnoreGlobs:         c.IgnoreOnGenerate,
		RespectVCSIgnore:    c.RespectGitignore,
		WorkspaceRoots:      c.Roots(dir),
		RestrictToWorkspace: c.RestrictToWorkspace,
		ExcludeDependencies: c.ExcludeDependencies,
		DependencyPaths:     c.DependencyPaths,
	}
}

// ModelOptions maps the element model settings for the workspace at dir.
func (c *Config) ModelOptions(dir string) graph.Options {
	return graph.Options{
		WorkspaceRoot:   c.Roots(dir)[0],
		FileLabelFormat: c.FileLabelFormat,
		EdgeIdentity:    graph.EdgeIdentity(c.EdgeIdentity),
	}
}

// EngineOptions maps the traversal engine settings.
func (c *Config) EngineOptions() []callgraph.Option {
	return []callgraph.Option{
		callgraph.WithMaxConcurrency(c.MaxConcurrency),
		callgraph.WithSharedLedger(c.ShareLedger),
	}
}

// StorePath returns the store path, defaulting to .chartographer/<driver>
// under dir for file-backed drivers.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		if filepath.IsAbs(c.Store.Path) {
			return c.Store.Path
		}
		return filepath.Join(dir, c.Store.Path)
	}
	switch c.storeDriver() {
	case "memory":
		return ""
	case "sqlite":
		return filepath.Join(dir, ".chartographer", "sessions.db")
	default:
		return filepath.Join(dir, ".chartographer", c.storeDriver())
	}
}
