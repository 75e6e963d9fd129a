//go:build cgo

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	kuzu "github.com/kuzudb/go-kuzu"
)

func init() {
	RegisterDriver("kuzu", func(path string) (Store, error) {
		if path == "" {
			return NewKuzuStore()
		}
		return NewKuzuFileStore(path)
	})
}

// KuzuStore implements Store using KuzuDB. A saved session is a Session node
// with CONTAINS edges to its Element nodes, so the stored call graph can also
// be inspected with Cypher. It requires CGO because the go-kuzu driver wraps
// KuzuDB's C library.
type KuzuStore struct {
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a KuzuDB database at dbPath.
// KuzuDB creates the leaf directory itself for new databases.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return nil
}

// ---------- Schema setup ----------

// Node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Session(
		id STRING,
		title STRING,
		direction STRING,
		max_depth INT64,
		updated_at INT64,
		nodes INT64,
		edges INT64,
		version INT64,
		expanded STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Element(
		id STRING,
		session STRING,
		seq INT64,
		element_id STRING,
		grp STRING,
		classes STRING,
		data STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS CONTAINS(FROM Session TO Element)`,
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Write operations ----------

// SaveState replaces any session with the same id inside one transaction.
func (s *KuzuStore) SaveState(ctx context.Context, snap Snapshot) error {
	info := infoFor(snap)
	expanded, err := json.Marshal(snap.State.Expanded)
	if err != nil {
		return fmt.Errorf("kuzu: encode expanded keys: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.exec("BEGIN TRANSACTION", nil); err != nil {
		return err
	}
	if err := s.saveLocked(ctx, info, snap.State, string(expanded)); err != nil {
		_ = s.exec("ROLLBACK", nil)
		return err
	}
	return s.exec("COMMIT", nil)
}

func (s *KuzuStore) saveLocked(ctx context.Context, info SnapshotInfo, st State, expanded string) error {
	if err := s.deleteLocked(info.ID); err != nil {
		return err
	}
	err := s.exec(
		`CREATE (:Session {
			id: $id,
			title: $title,
			direction: $dir,
			max_depth: $depth,
			updated_at: $updated,
			nodes: $nodes,
			edges: $edges,
			version: $version,
			expanded: $expanded
		})`,
		map[string]any{
			"id":       info.ID,
			"title":    info.Title,
			"dir":      info.Direction,
			"depth":    int64(info.MaxDepth),
			"updated":  info.UpdatedAt.UnixNano(),
			"nodes":    int64(info.Nodes),
			"edges":    int64(info.Edges),
			"version":  int64(st.Version),
			"expanded": expanded,
		},
	)
	if err != nil {
		return err
	}

	for i, e := range st.Elements {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("kuzu: encode element %s: %w", e.ID(), err)
		}
		rowID := fmt.Sprintf("%s/%d", info.ID, i)
		err = s.exec(
			`CREATE (:Element {
				id: $id,
				session: $sid,
				seq: $seq,
				element_id: $eid,
				grp: $grp,
				classes: $classes,
				data: $data
			})`,
			map[string]any{
				"id":      rowID,
				"sid":     info.ID,
				"seq":     int64(i),
				"eid":     e.ID(),
				"grp":     string(e.Group),
				"classes": e.Classes,
				"data":    string(data),
			},
		)
		if err != nil {
			return err
		}
		err = s.exec(
			`MATCH (a:Session {id: $sid}), (b:Element {id: $id})
			 CREATE (a)-[:CONTAINS]->(b)`,
			map[string]any{"sid": info.ID, "id": rowID},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteState removes the session and its elements.
func (s *KuzuStore) DeleteState(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

func (s *KuzuStore) deleteLocked(id string) error {
	if err := s.exec(
		"MATCH (e:Element) WHERE e.session = $id DETACH DELETE e",
		map[string]any{"id": id},
	); err != nil {
		return err
	}
	return s.exec(
		"MATCH (s:Session) WHERE s.id = $id DETACH DELETE s",
		map[string]any{"id": id},
	)
}

// ---------- Read operations ----------

// LoadState reads a session and its elements in insertion order.
func (s *KuzuStore) LoadState(_ context.Context, id string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.query(
		`MATCH (s:Session {id: $id})
		 RETURN s.id, s.title, s.direction, s.max_depth, s.updated_at, s.nodes, s.edges, s.version, s.expanded`,
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrStateNotFound
	}
	r := rows[0]
	snap := &Snapshot{SnapshotInfo: rowToInfo(r)}
	snap.State.Version = toInt(r[7])
	if raw := toString(r[8]); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &snap.State.Expanded); err != nil {
			return nil, fmt.Errorf("kuzu: decode expanded keys: %w", err)
		}
	}

	elemRows, err := s.query(
		`MATCH (s:Session {id: $id})-[:CONTAINS]->(e:Element)
		 RETURN e.seq, e.grp, e.classes, e.data
		 ORDER BY e.seq`,
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	snap.State.Elements = make([]Element, 0, len(elemRows))
	for _, er := range elemRows {
		e := Element{Group: Group(toString(er[1])), Classes: toString(er[2])}
		if err := json.Unmarshal([]byte(toString(er[3])), &e.Data); err != nil {
			return nil, fmt.Errorf("kuzu: decode element: %w", err)
		}
		snap.State.Elements = append(snap.State.Elements, e)
	}
	return snap, nil
}

// ListStates returns every saved session, newest first.
func (s *KuzuStore) ListStates(_ context.Context) ([]SnapshotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.query(
		`MATCH (s:Session)
		 RETURN s.id, s.title, s.direction, s.max_depth, s.updated_at, s.nodes, s.edges`,
		nil,
	)
	if err != nil {
		return nil, err
	}
	out := make([]SnapshotInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToInfo(r))
	}
	sortInfos(out)
	return out, nil
}

// ---------- Helpers ----------

// exec runs a parameterized Cypher statement that returns no rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	if len(params) == 0 {
		res, err := s.conn.Query(cypher)
		if err != nil {
			return fmt.Errorf("kuzu: execute: %w", err)
		}
		res.Close()
		return nil
	}
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// rowToInfo converts a result row into a SnapshotInfo.
// Column order: id, title, direction, max_depth, updated_at, nodes, edges.
func rowToInfo(r []any) SnapshotInfo {
	return SnapshotInfo{
		ID:        toString(r[0]),
		Title:     toString(r[1]),
		Direction: toString(r[2]),
		MaxDepth:  toInt(r[3]),
		UpdatedAt: time.Unix(0, toInt64(r[4])).UTC(),
		Nodes:     toInt(r[5]),
		Edges:     toInt(r[6]),
	}
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int64(n)
	}
	return 0
}

func toInt(v any) int {
	return int(toInt64(v))
}
