// Package index is a static call hierarchy built with tree-sitter. Calls are
// resolved by name: a call site binds to functions with the callee's name in
// the same file, else the same directory, else anywhere in the workspace.
// It answers the same questions a language server's call hierarchy does,
// with less precision and no server process.
package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// Compile-time assertions.
var (
	_ callgraph.Resolver     = (*Index)(nil)
	_ callgraph.RootResolver = (*Index)(nil)
)

// DefaultExcludeDirs are directory names never descended into.
var DefaultExcludeDirs = []string{".git", ".hg", ".svn", "node_modules", "target", "__pycache__", ".venv", "dist"}

// BuildOptions configures Build.
type BuildOptions struct {
	// ExcludeDirs are directory base names to skip. nil means
	// DefaultExcludeDirs.
	ExcludeDirs []string
	// Concurrency bounds parallel parsing; <= 0 means GOMAXPROCS.
	Concurrency int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Index holds every function of a workspace and the resolved call edges
// between them. It is immutable after Build.
type Index struct {
	root    string
	funcs   map[string]*entry
	byName  map[string][]string
	byFile  map[string][]string
	callers map[string][]string
	files   int
}

type entry struct {
	fn      Function
	dir     string
	callees []string
}

// Build walks root, parses every supported file, and resolves calls.
func Build(ctx context.Context, root string, opts BuildOptions) (*Index, error) {
	root, err := filepath.Abs(callgraph.URIToPath(root))
	if err != nil {
		return nil, fmt.Errorf("index: resolve root: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exclude := opts.ExcludeDirs
	if exclude == nil {
		exclude = DefaultExcludeDirs
	}
	skipDir := make(map[string]bool, len(exclude))
	for _, d := range exclude {
		skipDir[d] = true
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDir[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := LanguageForPath(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index: walk %s: %w", root, err)
	}
	sort.Strings(paths)

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	parser := NewParser()
	results := make([][]Function, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lang, _ := LanguageForPath(path)
			src, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("index: read failed", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			fns, err := parser.Parse(path, src, lang)
			if err != nil {
				logger.Warn("index: parse failed", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			results[i] = fns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Function
	for _, fns := range results {
		all = append(all, fns...)
	}
	idx := newIndex(root, all)
	idx.files = len(paths)
	logger.Info("index built",
		slog.String("root", root),
		slog.Int("files", idx.files),
		slog.Int("functions", len(idx.funcs)),
	)
	return idx, nil
}

// FromFunctions builds an index over already parsed functions.
func FromFunctions(root string, fns []Function) *Index {
	return newIndex(root, fns)
}

func newIndex(root string, fns []Function) *Index {
	idx := &Index{
		root:    root,
		funcs:   make(map[string]*entry, len(fns)),
		byName:  make(map[string][]string),
		byFile:  make(map[string][]string),
		callers: make(map[string][]string),
	}
	var keys []string
	for _, fn := range fns {
		key := fn.Symbol.Key()
		if _, dup := idx.funcs[key]; dup {
			continue
		}
		path := fn.Symbol.Path()
		idx.funcs[key] = &entry{fn: fn, dir: filepath.Dir(path)}
		idx.byName[fn.Symbol.Name] = append(idx.byName[fn.Symbol.Name], key)
		idx.byFile[path] = append(idx.byFile[path], key)
		keys = append(keys, key)
	}
	for _, list := range idx.byName {
		sort.Strings(list)
	}
	sort.Strings(keys)

	for _, key := range keys {
		e := idx.funcs[key]
		seen := make(map[string]bool)
		for _, site := range e.fn.Calls {
			for _, target := range idx.resolve(e, site.Name) {
				if seen[target] {
					continue
				}
				seen[target] = true
				e.callees = append(e.callees, target)
				idx.callers[target] = append(idx.callers[target], key)
			}
		}
	}
	return idx
}

// resolve binds name to the closest declarations: same file, then same
// directory, then the whole workspace.
func (idx *Index) resolve(from *entry, name string) []string {
	cands := idx.byName[name]
	if len(cands) == 0 {
		return nil
	}
	fromPath := from.fn.Symbol.Path()
	var sameFile, sameDir []string
	for _, k := range cands {
		c := idx.funcs[k]
		if c.fn.Symbol.Path() == fromPath {
			sameFile = append(sameFile, k)
		} else if c.dir == from.dir {
			sameDir = append(sameDir, k)
		}
	}
	switch {
	case len(sameFile) > 0:
		return sameFile
	case len(sameDir) > 0:
		return sameDir
	default:
		return cands
	}
}

// Root returns the indexed directory.
func (idx *Index) Root() string { return idx.root }

// Len returns the number of indexed functions.
func (idx *Index) Len() int { return len(idx.funcs) }

// Files returns the number of parsed files.
func (idx *Index) Files() int { return idx.files }

// Calls implements callgraph.Resolver.
func (idx *Index) Calls(ctx context.Context, dir callgraph.Direction, node callgraph.SymbolNode) ([]callgraph.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := idx.funcs[node.Key()]
	if !ok {
		if _, supported := LanguageForPath(node.Path()); !supported {
			return nil, &callgraph.ResolutionError{Symbol: node, Direction: dir, Err: callgraph.ErrUnsupportedLanguage}
		}
		return nil, &callgraph.ResolutionError{Symbol: node, Direction: dir, Err: callgraph.ErrSymbolNotFound}
	}

	var keys []string
	switch dir {
	case callgraph.Outgoing:
		keys = e.callees
	case callgraph.Incoming:
		keys = idx.callers[node.Key()]
	default:
		return nil, fmt.Errorf("index: direction %q not queryable", dir)
	}
	calls := make([]callgraph.Call, 0, len(keys))
	for _, k := range keys {
		calls = append(calls, callgraph.Call{Symbol: idx.funcs[k].fn.Symbol, Direction: dir})
	}
	return calls, nil
}

// Prepare implements callgraph.RootResolver. It returns the innermost
// function whose declaration contains pos.
func (idx *Index) Prepare(_ context.Context, file string, pos callgraph.Position) ([]callgraph.SymbolNode, error) {
	path := callgraph.URIToPath(file)
	if !filepath.IsAbs(path) {
		path = filepath.Join(idx.root, path)
	}
	if _, ok := LanguageForPath(path); !ok {
		return nil, fmt.Errorf("%s: %w", file, callgraph.ErrUnsupportedLanguage)
	}

	var best *callgraph.SymbolNode
	for _, k := range idx.byFile[filepath.Clean(path)] {
		s := idx.funcs[k].fn.Symbol
		if !s.Range.Contains(pos) {
			continue
		}
		if best == nil || narrower(s.Range, best.Range) {
			best = &s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%s:%d:%d: %w", file, pos.Line, pos.Character, callgraph.ErrNoRoot)
	}
	return []callgraph.SymbolNode{*best}, nil
}

// Find returns every function named name (or "Type.name" for methods),
// sorted by key.
func (idx *Index) Find(name string) []callgraph.SymbolNode {
	typ, short := "", name
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		typ, short = name[:i], name[i+1:]
	}
	var out []callgraph.SymbolNode
	for _, k := range idx.byName[short] {
		s := idx.funcs[k].fn.Symbol
		if typ != "" && s.Detail != typ {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Functions returns every indexed function sorted by key.
func (idx *Index) Functions() []Function {
	out := make([]Function, 0, len(idx.funcs))
	for _, e := range idx.funcs {
		out = append(out, e.fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol.Key() < out[j].Symbol.Key() })
	return out
}

// narrower reports whether a starts no earlier and ends no later than b,
// and is not equal to it.
func narrower(a, b callgraph.Range) bool {
	if a == b {
		return false
	}
	return !before(a.Start, b.Start) && !before(b.End, a.End)
}

func before(a, b callgraph.Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Character < b.Character
}
