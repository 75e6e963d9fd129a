//go:build cgo

package graph

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a fresh in-memory KuzuStore with an initialized schema.
// It registers a cleanup function to close the store when the test finishes.
func newTestStore(t *testing.T) *KuzuStore {
	t.Helper()
	s, err := NewKuzuStore()
	require.NoError(t, err, "NewKuzuStore should not fail")
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.InitSchema(context.Background()), "InitSchema should not fail")
	return s
}

func TestKuzuStore(t *testing.T) {
	testStoreConformance(t, func(t *testing.T) Store {
		return newTestStore(t)
	})
}

func TestKuzuStore_InitSchema(t *testing.T) {
	s, err := NewKuzuStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()

	// First call creates the tables.
	require.NoError(t, s.InitSchema(ctx))

	// Second call should be idempotent (IF NOT EXISTS).
	require.NoError(t, s.InitSchema(ctx))
}

func TestKuzuStore_SessionsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveState(ctx, sampleSnapshot("a", now)))
	require.NoError(t, s.SaveState(ctx, sampleSnapshot("b", now)))
	require.NoError(t, s.DeleteState(ctx, "a"))

	got, err := s.LoadState(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, got.State.Elements, 7)

	rows, err := s.query("MATCH (e:Element) RETURN count(e)", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), toInt64(rows[0][0]))
}

func TestKuzuStore_FileBacked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "kuzu")

	s, err := OpenStore(ctx, "kuzu", path)
	require.NoError(t, err)
	require.NoError(t, s.SaveState(ctx, sampleSnapshot("s1", time.Now())))
	require.NoError(t, s.Close())

	s, err = OpenStore(ctx, "kuzu", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	got, err := s.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Edges)
}

func TestKuzuStore_Close(t *testing.T) {
	s, err := NewKuzuStore()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	// Double close is safe.
	require.NoError(t, s.Close())
}
