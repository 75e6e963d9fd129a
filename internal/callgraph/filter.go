package callgraph

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// SkipReason tells why PathFilter rejected a path.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipIgnored          SkipReason = "ignored"
	SkipOutsideWorkspace SkipReason = "outside-workspace"
	SkipDependency       SkipReason = "dependency"
)

// DefaultDependencyPaths are the path fragments treated as third-party code
// when ExcludeDependencies is set and no explicit list is configured.
var DefaultDependencyPaths = []string{
	"node_modules",
	"/vendor/",
	"site-packages",
	"/pkg/mod/",
	"/.cargo/registry/",
	"/target/debug/",
}

// FilterOptions configures a PathFilter.
type FilterOptions struct {
	IgnoreGlobs         []string
	RespectVCSIgnore    bool
	WorkspaceRoots      []string
	RestrictToWorkspace bool
	ExcludeDependencies bool
	DependencyPaths     []string
}

// PathFilter decides whether a discovered neighbor is kept. It is immutable
// after construction apart from a lazily filled gitignore cache.
type PathFilter struct {
	opts   FilterOptions
	roots  []string
	source IgnoreSource

	mu      sync.Mutex
	ignores map[string]*ignore.GitIgnore
}

// NewPathFilter builds a filter. src may be nil, in which case VCS ignore
// patterns are read from <root>/.gitignore on disk.
func NewPathFilter(opts FilterOptions, src IgnoreSource) *PathFilter {
	if src == nil {
		src = DirIgnoreSource{}
	}
	roots := make([]string, 0, len(opts.WorkspaceRoots))
	for _, r := range opts.WorkspaceRoots {
		if r == "" {
			continue
		}
		roots = append(roots, filepath.Clean(URIToPath(r)))
	}
	if opts.ExcludeDependencies && len(opts.DependencyPaths) == 0 {
		opts.DependencyPaths = DefaultDependencyPaths
	}
	return &PathFilter{
		opts:    opts,
		roots:   roots,
		source:  src,
		ignores: make(map[string]*ignore.GitIgnore),
	}
}

// ShouldSkip reports whether path (a filesystem path or file:// URI) is
// filtered out.
func (f *PathFilter) ShouldSkip(path string) bool {
	skip, _ := f.ShouldSkipReason(path)
	return skip
}

// ShouldSkipReason is ShouldSkip plus the first rule that matched.
func (f *PathFilter) ShouldSkipReason(path string) (bool, SkipReason) {
	if f == nil {
		return false, SkipNone
	}
	path = URIToPath(path)

	root, rel := f.relativize(path)
	for _, glob := range f.opts.IgnoreGlobs {
		if matchGlob(glob, rel) || (rel != path && matchGlob(glob, filepath.ToSlash(path))) {
			return true, SkipIgnored
		}
	}
	if f.opts.RespectVCSIgnore && root != "" {
		if gi := f.vcsIgnore(root); gi != nil && gi.MatchesPath(rel) {
			return true, SkipIgnored
		}
	}

	// Without declared roots nothing is outside.
	if f.opts.RestrictToWorkspace && len(f.roots) > 0 && root == "" {
		return true, SkipOutsideWorkspace
	}

	if f.opts.ExcludeDependencies {
		slashed := filepath.ToSlash(f.absolute(path))
		for _, frag := range f.opts.DependencyPaths {
			if frag != "" && strings.Contains(slashed, frag) {
				return true, SkipDependency
			}
		}
	}
	return false, SkipNone
}

// relativize returns the longest workspace root containing path and the
// slash-separated path relative to it. When no root contains path, root is
// empty and rel is path itself.
func (f *PathFilter) relativize(path string) (root, rel string) {
	abs := f.absolute(path)
	for _, r := range f.roots {
		if !underRoot(r, abs) {
			continue
		}
		if len(r) > len(root) {
			root = r
		}
	}
	if root == "" {
		return "", filepath.ToSlash(path)
	}
	r, err := filepath.Rel(root, abs)
	if err != nil {
		return "", filepath.ToSlash(path)
	}
	return root, filepath.ToSlash(r)
}

// absolute resolves a relative path against the first workspace root.
func (f *PathFilter) absolute(path string) string {
	if filepath.IsAbs(path) || len(f.roots) == 0 {
		return filepath.Clean(path)
	}
	return filepath.Join(f.roots[0], path)
}

func (f *PathFilter) vcsIgnore(root string) *ignore.GitIgnore {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gi, ok := f.ignores[root]; ok {
		return gi
	}
	lines, err := f.source.VCSIgnore(root)
	var gi *ignore.GitIgnore
	if err == nil && len(lines) > 0 {
		gi = ignore.CompileIgnoreLines(lines...)
	}
	f.ignores[root] = gi
	return gi
}

func underRoot(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// matchGlob treats a malformed pattern as a non-match.
func matchGlob(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	if err != nil {
		return false
	}
	return ok
}

// DirIgnoreSource reads <root>/.gitignore. A missing file yields no patterns.
type DirIgnoreSource struct{}

func (DirIgnoreSource) VCSIgnore(root string) ([]string, error) {
	fh, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer fh.Close()

	var lines []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// StaticIgnoreSource serves fixed patterns per root.
type StaticIgnoreSource map[string][]string

func (s StaticIgnoreSource) VCSIgnore(root string) ([]string, error) {
	return s[root], nil
}
