//go:build cgo

package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func init() {
	RegisterDriver("sqlite", func(path string) (Store, error) {
		return NewSQLiteStore(path)
	})
}

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path. An empty path or
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create parent directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// Every pooled connection to ":memory:" would be a different database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
  id          TEXT PRIMARY KEY,
  title       TEXT NOT NULL,
  direction   TEXT NOT NULL,
  max_depth   INTEGER NOT NULL,
  updated_at  INTEGER NOT NULL,
  nodes       INTEGER NOT NULL,
  edges       INTEGER NOT NULL,
  version     INTEGER NOT NULL,
  expanded    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS elements (
  session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  seq         INTEGER NOT NULL,
  element_id  TEXT NOT NULL,
  grp         TEXT NOT NULL,
  classes     TEXT NOT NULL,
  data        TEXT NOT NULL,
  PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_elements_element ON elements(session_id, element_id);
`

// InitSchema creates the tables. Idempotent.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}
	return nil
}

// SaveState upserts the session row and rewrites its elements in one
// transaction.
func (s *SQLiteStore) SaveState(ctx context.Context, snap Snapshot) error {
	info := infoFor(snap)
	expanded, err := json.Marshal(snap.State.Expanded)
	if err != nil {
		return fmt.Errorf("sqlite: encode expanded keys: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, title, direction, max_depth, updated_at, nodes, edges, version, expanded)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			direction = excluded.direction,
			max_depth = excluded.max_depth,
			updated_at = excluded.updated_at,
			nodes = excluded.nodes,
			edges = excluded.edges,
			version = excluded.version,
			expanded = excluded.expanded`,
		info.ID, info.Title, info.Direction, info.MaxDepth, info.UpdatedAt.UnixNano(),
		info.Nodes, info.Edges, snap.State.Version, string(expanded),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM elements WHERE session_id = ?`, info.ID); err != nil {
		return fmt.Errorf("sqlite: clear elements: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO elements (session_id, seq, element_id, grp, classes, data) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare element insert: %w", err)
	}
	defer stmt.Close()
	for i, e := range snap.State.Elements {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("sqlite: encode element %s: %w", e.ID(), err)
		}
		if _, err := stmt.ExecContext(ctx, info.ID, i, e.ID(), string(e.Group), e.Classes, string(data)); err != nil {
			return fmt.Errorf("sqlite: insert element %s: %w", e.ID(), err)
		}
	}
	return tx.Commit()
}

// LoadState reads a session and its elements in insertion order.
func (s *SQLiteStore) LoadState(ctx context.Context, id string) (*Snapshot, error) {
	var (
		snap     Snapshot
		updated  int64
		expanded string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, direction, max_depth, updated_at, nodes, edges, version, expanded
		 FROM sessions WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.Title, &snap.Direction, &snap.MaxDepth, &updated,
		&snap.Nodes, &snap.Edges, &snap.State.Version, &expanded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load session: %w", err)
	}
	snap.UpdatedAt = time.Unix(0, updated).UTC()
	if expanded != "" && expanded != "null" {
		if err := json.Unmarshal([]byte(expanded), &snap.State.Expanded); err != nil {
			return nil, fmt.Errorf("sqlite: decode expanded keys: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT grp, classes, data FROM elements WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load elements: %w", err)
	}
	defer rows.Close()

	snap.State.Elements = []Element{}
	for rows.Next() {
		var grp, classes, data string
		if err := rows.Scan(&grp, &classes, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scan element: %w", err)
		}
		e := Element{Group: Group(grp), Classes: classes}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("sqlite: decode element: %w", err)
		}
		snap.State.Elements = append(snap.State.Elements, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate elements: %w", err)
	}
	return &snap, nil
}

// ListStates returns every saved session, newest first.
func (s *SQLiteStore) ListStates(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, direction, max_depth, updated_at, nodes, edges FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var updated int64
		if err := rows.Scan(&info.ID, &info.Title, &info.Direction, &info.MaxDepth, &updated, &info.Nodes, &info.Edges); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		info.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate sessions: %w", err)
	}
	sortInfos(out)
	return out, nil
}

// DeleteState removes the session and its elements.
func (s *SQLiteStore) DeleteState(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM elements WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete elements: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete session: %w", err)
	}
	return nil
}
