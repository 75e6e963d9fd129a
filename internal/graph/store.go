package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrStateNotFound   = errors.New("saved state not found")
	ErrUnknownDriver   = errors.New("unknown store driver")
)

// SnapshotInfo describes a saved session without its elements.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Direction string    `json:"direction"`
	MaxDepth  int       `json:"maxDepth"`
	UpdatedAt time.Time `json:"updatedAt"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
}

// Snapshot is a saved session.
type Snapshot struct {
	SnapshotInfo
	State State `json:"state"`
}

// Store persists session snapshots so a closed view can be reopened.
// Implementations: MemStore (tests, default), KuzuStore and SQLiteStore
// (cgo builds).
type Store interface {
	io.Closer

	// InitSchema is called once before any other method.
	InitSchema(ctx context.Context) error

	// SaveState creates or replaces the snapshot with snap.ID.
	SaveState(ctx context.Context, snap Snapshot) error

	// LoadState returns ErrStateNotFound for unknown ids.
	LoadState(ctx context.Context, id string) (*Snapshot, error)

	// ListStates returns every snapshot, most recently updated first.
	ListStates(ctx context.Context) ([]SnapshotInfo, error)

	// DeleteState is a no-op for unknown ids.
	DeleteState(ctx context.Context, id string) error
}

// Opener constructs a Store from a path (file or directory, driver specific).
type Opener func(path string) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Opener{
		"memory": func(string) (Store, error) { return NewMemStore(), nil },
	}
)

// RegisterDriver makes a store driver available to OpenStore. cgo-only
// drivers register themselves from init.
func RegisterDriver(name string, open Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = open
}

// Drivers lists the registered driver names.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for name := range drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// OpenStore opens the named driver and initializes its schema. An empty
// driver selects "memory".
func OpenStore(ctx context.Context, driver, path string) (Store, error) {
	if driver == "" {
		driver = "memory"
	}
	driversMu.RLock()
	open, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open store %q: %w (available: %v)", driver, ErrUnknownDriver, Drivers())
	}
	s, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := s.InitSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// infoFor fills the derived fields of a snapshot from its state.
func infoFor(snap Snapshot) SnapshotInfo {
	info := snap.SnapshotInfo
	info.Nodes, info.Edges = 0, 0
	for _, e := range snap.State.Elements {
		if e.IsEdge() {
			info.Edges++
		} else if e.IsFunction() {
			info.Nodes++
		}
	}
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = time.Now().UTC()
	}
	return info
}

func sortInfos(infos []SnapshotInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
}
