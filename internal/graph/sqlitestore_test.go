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

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.InitSchema(context.Background()))
	return s
}

func TestSQLiteStore(t *testing.T) {
	testStoreConformance(t, func(t *testing.T) Store {
		return newSQLiteTestStore(t)
	})
}

func TestSQLiteStore_FileBacked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	s, err := OpenStore(ctx, "sqlite", path)
	require.NoError(t, err)
	require.NoError(t, s.SaveState(ctx, sampleSnapshot("s1", time.Now())))
	require.NoError(t, s.Close())

	s, err = OpenStore(ctx, "sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	infos, err := s.ListStates(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "s1", infos[0].ID)
	assert.Equal(t, 3, infos[0].Nodes)
}

func TestSQLiteStore_DeleteRemovesElements(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveState(ctx, sampleSnapshot("s1", time.Now())))
	require.NoError(t, s.DeleteState(ctx, "s1"))

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT count(*) FROM elements").Scan(&n))
	assert.Zero(t, n)
}
