package callgraph

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathFilter_IgnoreGlobs(t *testing.T) {
	f := NewPathFilter(FilterOptions{
		IgnoreGlobs:    []string{"**/test/**", "**/*_mock.go"},
		WorkspaceRoots: []string{"/ws"},
	}, StaticIgnoreSource{})

	skip, reason := f.ShouldSkipReason("/ws/src/test/helper.go")
	assert.True(t, skip)
	assert.Equal(t, SkipIgnored, reason)

	assert.True(t, f.ShouldSkip("/ws/pkg/store_mock.go"))
	assert.False(t, f.ShouldSkip("/ws/src/main.go"))
}

func TestPathFilter_FileURI(t *testing.T) {
	f := NewPathFilter(FilterOptions{
		IgnoreGlobs:    []string{"gen/**"},
		WorkspaceRoots: []string{"file:///ws"},
	}, StaticIgnoreSource{})

	assert.True(t, f.ShouldSkip("file:///ws/gen/api.go"))
	assert.False(t, f.ShouldSkip("file:///ws/api/api.go"))
}

func TestPathFilter_LongestRootWins(t *testing.T) {
	f := NewPathFilter(FilterOptions{
		IgnoreGlobs:    []string{"pkg/**"},
		WorkspaceRoots: []string{"/ws", "/ws/sub"},
	}, StaticIgnoreSource{})

	// Relative to /ws/sub the path is pkg/a.go.
	assert.True(t, f.ShouldSkip("/ws/sub/pkg/a.go"))
	// Relative to /ws the path is other/pkg/a.go.
	assert.False(t, f.ShouldSkip("/ws/other/pkg/a.go"))
}

func TestPathFilter_MalformedGlobFailsOpen(t *testing.T) {
	f := NewPathFilter(FilterOptions{
		IgnoreGlobs:    []string{"[", "**/skip/**"},
		WorkspaceRoots: []string{"/ws"},
	}, StaticIgnoreSource{})

	assert.False(t, f.ShouldSkip("/ws/src/a.go"))
	assert.True(t, f.ShouldSkip("/ws/skip/a.go"), "later valid globs still apply")
}

func TestPathFilter_VCSIgnore(t *testing.T) {
	src := StaticIgnoreSource{"/ws": {"# generated", "*.gen.go", "build/"}}

	f := NewPathFilter(FilterOptions{
		RespectVCSIgnore: true,
		WorkspaceRoots:   []string{"/ws"},
	}, src)
	skip, reason := f.ShouldSkipReason("/ws/api/types.gen.go")
	assert.True(t, skip)
	assert.Equal(t, SkipIgnored, reason)
	assert.True(t, f.ShouldSkip("/ws/build/out.go"))
	assert.False(t, f.ShouldSkip("/ws/api/types.go"))

	off := NewPathFilter(FilterOptions{WorkspaceRoots: []string{"/ws"}}, src)
	assert.False(t, off.ShouldSkip("/ws/api/types.gen.go"), "gitignore only applies when enabled")
}

type failingIgnoreSource struct{}

func (failingIgnoreSource) VCSIgnore(string) ([]string, error) {
	return nil, errors.New("permission denied")
}

func TestPathFilter_UnreadableVCSIgnoreIsEmpty(t *testing.T) {
	f := NewPathFilter(FilterOptions{
		RespectVCSIgnore: true,
		WorkspaceRoots:   []string{"/ws"},
	}, failingIgnoreSource{})
	assert.False(t, f.ShouldSkip("/ws/anything.go"))
}

func TestPathFilter_RestrictToWorkspace(t *testing.T) {
	f := NewPathFilter(FilterOptions{
		WorkspaceRoots:      []string{"/ws"},
		RestrictToWorkspace: true,
	}, StaticIgnoreSource{})

	skip, reason := f.ShouldSkipReason("/usr/lib/go/src/fmt/print.go")
	assert.True(t, skip)
	assert.Equal(t, SkipOutsideWorkspace, reason)

	assert.False(t, f.ShouldSkip("/ws/main.go"))
	assert.False(t, f.ShouldSkip("src/main.go"), "relative paths resolve against the first root")
	assert.True(t, f.ShouldSkip("/wsx/main.go"), "sibling directory sharing a prefix is outside")
}

func TestPathFilter_RestrictWithoutRootsKeepsEverything(t *testing.T) {
	f := NewPathFilter(FilterOptions{RestrictToWorkspace: true}, StaticIgnoreSource{})
	assert.False(t, f.ShouldSkip("/usr/lib/go/src/fmt/print.go"))
}

func TestPathFilter_ExcludeDependencies(t *testing.T) {
	f := NewPathFilter(FilterOptions{
		WorkspaceRoots:      []string{"/ws"},
		ExcludeDependencies: true,
	}, StaticIgnoreSource{})

	skip, reason := f.ShouldSkipReason("/ws/node_modules/lodash/index.js")
	assert.True(t, skip)
	assert.Equal(t, SkipDependency, reason)
	assert.True(t, f.ShouldSkip("/ws/vendor/github.com/x/y.go"))
	assert.False(t, f.ShouldSkip("/ws/internal/vendors.go"))

	custom := NewPathFilter(FilterOptions{
		ExcludeDependencies: true,
		DependencyPaths:     []string{"third_party"},
	}, StaticIgnoreSource{})
	assert.True(t, custom.ShouldSkip("/ws/third_party/lib.c"))
	assert.False(t, custom.ShouldSkip("/ws/node_modules/x.js"))
}

func TestPathFilter_EvaluationOrder(t *testing.T) {
	f := NewPathFilter(FilterOptions{
		IgnoreGlobs:         []string{"**/gen/**"},
		WorkspaceRoots:      []string{"/ws"},
		RestrictToWorkspace: true,
		ExcludeDependencies: true,
	}, StaticIgnoreSource{})

	_, reason := f.ShouldSkipReason("/ws/gen/node_modules/b.js")
	assert.Equal(t, SkipIgnored, reason, "ignore globs are evaluated first")

	_, reason = f.ShouldSkipReason("/elsewhere/node_modules/a/b.js")
	assert.Equal(t, SkipOutsideWorkspace, reason)

	_, reason = f.ShouldSkipReason("/ws/node_modules/a/b.js")
	assert.Equal(t, SkipDependency, reason)
}

func TestPathFilter_Nil(t *testing.T) {
	var f *PathFilter
	assert.False(t, f.ShouldSkip("/anything"))
}

func TestPathFilter_ConcurrentUse(t *testing.T) {
	f := NewPathFilter(FilterOptions{
		RespectVCSIgnore: true,
		WorkspaceRoots:   []string{"/ws"},
	}, StaticIgnoreSource{"/ws": {"*.tmp"}})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, f.ShouldSkip("/ws/a.tmp"))
			assert.False(t, f.ShouldSkip("/ws/a.go"))
		}()
	}
	wg.Wait()
}

func TestDirIgnoreSource(t *testing.T) {
	dir := t.TempDir()

	lines, err := DirIgnoreSource{}.VCSIgnore(dir)
	require.NoError(t, err)
	assert.Empty(t, lines, "missing .gitignore yields no patterns")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("dist/\n*.log\n"), 0o644))
	lines, err = DirIgnoreSource{}.VCSIgnore(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/", "*.log"}, lines)

	f := NewPathFilter(FilterOptions{RespectVCSIgnore: true, WorkspaceRoots: []string{dir}}, nil)
	assert.True(t, f.ShouldSkip(filepath.Join(dir, "dist", "bundle.js")))
	assert.True(t, f.ShouldSkip(filepath.Join(dir, "server.log")))
	assert.False(t, f.ShouldSkip(filepath.Join(dir, "main.go")))
}
