package graph

import (
	"context"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{snaps: make(map[string]Snapshot)}
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

// SaveState stores a copy of snap keyed by its id.
func (m *MemStore) SaveState(_ context.Context, snap Snapshot) error {
	snap.SnapshotInfo = infoFor(snap)
	snap.State.Elements = append([]Element(nil), snap.State.Elements...)
	snap.State.Expanded = append([]string(nil), snap.State.Expanded...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.ID] = snap
	return nil
}

// LoadState returns a copy of the snapshot with id.
func (m *MemStore) LoadState(_ context.Context, id string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[id]
	if !ok {
		return nil, ErrStateNotFound
	}
	snap.State.Elements = append([]Element(nil), snap.State.Elements...)
	snap.State.Expanded = append([]string(nil), snap.State.Expanded...)
	return &snap, nil
}

// ListStates returns all snapshot infos, newest first.
func (m *MemStore) ListStates(_ context.Context) ([]SnapshotInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SnapshotInfo, 0, len(m.snaps))
	for _, s := range m.snaps {
		out = append(out, s.SnapshotInfo)
	}
	sortInfos(out)
	return out, nil
}

// DeleteState removes the snapshot with id.
func (m *MemStore) DeleteState(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}

// Close is a no-op.
func (m *MemStore) Close() error {
	return nil
}
