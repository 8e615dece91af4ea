// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sqlite is an alternative graph store on SQLite.
//
// The default build uses the pure Go modernc.org/sqlite driver; the
// cgo_sqlite build tag switches to github.com/mattn/go-sqlite3. The schema
// is versioned with semver-ordered migrations.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
)

// Backend is the name reported by Store.Backend.
const Backend = "sqlite"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a storage.Store on SQLite.
//
// # Thread Safety
//
// Safe for concurrent use. The pool holds a single connection, so reads
// wait while a write transaction is open.
type Store struct {
	db     *sql.DB
	write  chan struct{}
	closed atomic.Bool
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates the database file at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Store{db: db, write: make(chan struct{}, 1)}, nil
}

// Backend implements storage.Store.
func (s *Store) Backend() string { return Backend }

// Close closes the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Begin implements storage.Store.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	select {
	case s.write <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("begin: %w", ctx.Err())
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		<-s.write
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &tx{store: s, tx: sqlTx, ctx: ctx, started: time.Now()}, nil
}

func (s *Store) reader() (querier, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	return s.db, nil
}

const nodeColumns = "id, kind, name, file, span_start, span_end, attributes"

func scanNode(row interface{ Scan(...any) error }) (graph.Node, error) {
	var (
		n     graph.Node
		kind  string
		attrs string
	)
	if err := row.Scan(&n.ID, &kind, &n.Name, &n.File, &n.Span.Start, &n.Span.End, &attrs); err != nil {
		return n, err
	}
	k, err := graph.ParseNodeKind(kind)
	if err != nil {
		return n, err
	}
	n.Kind = k
	if attrs != "" && attrs != "{}" {
		if err := json.Unmarshal([]byte(attrs), &n.Attributes); err != nil {
			return n, fmt.Errorf("decode attributes of %s: %w", n.ID, err)
		}
	}
	return n, nil
}

func queryNodes(ctx context.Context, q querier, query string, args ...any) ([]graph.Node, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []graph.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func queryEdges(ctx context.Context, q querier, query string, args ...any) ([]graph.Edge, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []graph.Edge
	for rows.Next() {
		var (
			e     graph.Edge
			kind  string
			attrs string
		)
		if err := rows.Scan(&e.From, &kind, &e.To, &attrs); err != nil {
			return nil, err
		}
		k, err := graph.ParseEdgeKind(kind)
		if err != nil {
			return nil, err
		}
		e.Kind = k
		if attrs != "" && attrs != "{}" {
			if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
				return nil, fmt.Errorf("decode edge attributes: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func encodeAttrs(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attrs)
	return string(data), err
}

// Node implements storage.Reader.
func (s *Store) Node(ctx context.Context, id string) (graph.Node, bool, error) {
	q, err := s.reader()
	if err != nil {
		return graph.Node{}, false, err
	}
	n, err := scanNode(q.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Node{}, false, nil
	}
	if err != nil {
		return graph.Node{}, false, err
	}
	return n, true, nil
}

// likePattern converts a "*"/"%" pattern to a LIKE pattern escaped with
// a backslash.
func likePattern(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*', '%':
			b.WriteRune('%')
		case '_', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FindNodes implements storage.Reader.
func (s *Store) FindNodes(ctx context.Context, q storage.Query) ([]graph.Node, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if q.Pattern != "" {
		where = append(where, `name LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q.Pattern))
	}
	if q.File != "" {
		where = append(where, "file = ?")
		args = append(args, q.File)
	}
	if len(q.Kinds) > 0 {
		marks := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			marks[i] = "?"
			args = append(args, k.String())
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	query := "SELECT " + nodeColumns + " FROM nodes"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	nodes, err := queryNodes(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}

	// LIKE folds ASCII only; the shared matcher has the final word.
	out := nodes[:0]
	for _, n := range nodes {
		if q.Matches(n) {
			out = append(out, n)
		}
	}
	return storage.SortNodes(out, q.Limit), nil
}

const edgeColumns = "from_id, kind, to_id, attributes"

// Outgoing implements storage.Reader.
func (s *Store) Outgoing(ctx context.Context, id string, kind graph.EdgeKind) ([]graph.Edge, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	query := "SELECT " + edgeColumns + " FROM edges WHERE from_id = ?"
	args := []any{id}
	if kind != graph.EdgeKindUnknown {
		query += " AND kind = ?"
		args = append(args, kind.String())
	}
	edges, err := queryEdges(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}
	return storage.SortEdges(edges), nil
}

// Incoming implements storage.Reader.
func (s *Store) Incoming(ctx context.Context, id string, kind graph.EdgeKind) ([]graph.Edge, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	query := "SELECT " + edgeColumns + " FROM edges WHERE to_id = ?"
	args := []any{id}
	if kind != graph.EdgeKindUnknown {
		query += " AND kind = ?"
		args = append(args, kind.String())
	}
	edges, err := queryEdges(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}
	return storage.SortEdges(edges), nil
}

// Files implements storage.Reader.
func (s *Store) Files(ctx context.Context) ([]string, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT file FROM nodes WHERE kind = ? ORDER BY file", graph.NodeKindFile.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FileNodes implements storage.Reader.
func (s *Store) FileNodes(ctx context.Context, p string) ([]graph.Node, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	return queryNodes(ctx, db,
		"SELECT "+nodeColumns+" FROM nodes WHERE file = ? ORDER BY kind != ?, span_start, id",
		p, graph.NodeKindFile.String())
}

// Refs implements storage.Reader.
func (s *Store) Refs(ctx context.Context, p string) ([]graph.Reference, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	var data string
	err = db.QueryRowContext(ctx, "SELECT data FROM refs WHERE file = ?", p).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var refs []graph.Reference
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("decode refs %s: %w", p, err)
	}
	return refs, nil
}

// Metadata implements storage.Reader.
func (s *Store) Metadata(ctx context.Context, key string) (string, bool, error) {
	db, err := s.reader()
	if err != nil {
		return "", false, err
	}
	var value string
	err = db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Counts implements storage.Reader.
func (s *Store) Counts(ctx context.Context) (storage.Counts, error) {
	c := storage.Counts{Nodes: make(map[graph.NodeKind]int), Edges: make(map[graph.EdgeKind]int)}
	db, err := s.reader()
	if err != nil {
		return c, err
	}
	count := func(query string, add func(kind string, n int) error) error {
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				kind string
				n    int
			)
			if err := rows.Scan(&kind, &n); err != nil {
				return err
			}
			if err := add(kind, n); err != nil {
				return err
			}
		}
		return rows.Err()
	}
	err = count("SELECT kind, COUNT(*) FROM nodes GROUP BY kind", func(kind string, n int) error {
		k, err := graph.ParseNodeKind(kind)
		c.Nodes[k] = n
		return err
	})
	if err != nil {
		return c, err
	}
	err = count("SELECT kind, COUNT(*) FROM edges GROUP BY kind", func(kind string, n int) error {
		k, err := graph.ParseEdgeKind(kind)
		c.Edges[k] = n
		return err
	})
	return c, err
}

// Snapshot implements storage.Reader.
func (s *Store) Snapshot(ctx context.Context) (*graph.Graph, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	nodes, err := queryNodes(ctx, db, "SELECT "+nodeColumns+" FROM nodes")
	if err != nil {
		return nil, err
	}
	edges, err := queryEdges(ctx, db, "SELECT "+edgeColumns+" FROM edges")
	if err != nil {
		return nil, err
	}
	g := graph.NewGraph()
	for _, n := range nodes {
		if err := g.UpsertNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if _, err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// tx is a SQLite write transaction holding the store's write slot.
type tx struct {
	store   *Store
	tx      *sql.Tx
	ctx     context.Context
	started time.Time
	done    bool
}

func (t *tx) check() error {
	if t.done {
		return storage.ErrTxDone
	}
	return t.ctx.Err()
}

func (t *tx) finish(outcome string) {
	t.done = true
	<-t.store.write
	storage.ObserveTx(Backend, outcome, time.Since(t.started))
}

// Commit implements storage.Tx. A cancelled context rolls back instead.
func (t *tx) Commit() error {
	if t.done {
		return storage.ErrTxDone
	}
	if err := t.ctx.Err(); err != nil {
		_ = t.tx.Rollback()
		t.finish(storage.OutcomeRollback)
		return fmt.Errorf("commit: %w", err)
	}
	if err := t.tx.Commit(); err != nil {
		t.finish(storage.OutcomeError)
		return fmt.Errorf("commit: %w", err)
	}
	t.finish(storage.OutcomeCommit)
	return nil
}

// Rollback implements storage.Tx.
func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	err := t.tx.Rollback()
	t.finish(storage.OutcomeRollback)
	if errors.Is(err, sql.ErrTxDone) {
		// database/sql already rolled back on context cancellation.
		return nil
	}
	return err
}

// UpsertNode implements storage.Tx.
func (t *tx) UpsertNode(n graph.Node) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := n.Validate(); err != nil {
		return err
	}
	attrs, err := encodeAttrs(n.Attributes)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO nodes (`+nodeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			file = excluded.file,
			span_start = excluded.span_start,
			span_end = excluded.span_end,
			attributes = excluded.attributes`,
		n.ID, n.Kind.String(), n.Name, n.File, n.Span.Start, n.Span.End, attrs)
	return err
}

// DeleteNode implements storage.Tx.
func (t *tx) DeleteNode(id string) (storage.Removed, error) {
	if err := t.check(); err != nil {
		return storage.Removed{}, err
	}
	return t.deleteWhere("id = ?", id)
}

// DeleteFile implements storage.Tx.
func (t *tx) DeleteFile(p string) (storage.Removed, error) {
	if err := t.check(); err != nil {
		return storage.Removed{}, err
	}
	removed, err := t.deleteWhere("file = ?", p)
	if err != nil {
		return removed, err
	}
	_, err = t.tx.ExecContext(t.ctx, "DELETE FROM refs WHERE file = ?", p)
	return removed, err
}

// deleteWhere removes the nodes selected by cond and their edges.
func (t *tx) deleteWhere(cond string, arg string) (storage.Removed, error) {
	var removed storage.Removed
	sel := "SELECT id FROM nodes WHERE " + cond
	res, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM edges WHERE from_id IN ("+sel+") OR to_id IN ("+sel+")", arg, arg)
	if err != nil {
		return removed, err
	}
	edges, err := res.RowsAffected()
	if err != nil {
		return removed, err
	}
	res, err = t.tx.ExecContext(t.ctx, "DELETE FROM nodes WHERE "+cond, arg)
	if err != nil {
		return removed, err
	}
	nodes, err := res.RowsAffected()
	if err != nil {
		return removed, err
	}
	return storage.Removed{Nodes: int(nodes), Edges: int(edges)}, nil
}

// PutEdges implements storage.Tx.
func (t *tx) PutEdges(edges []graph.Edge) (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	exists := make(map[string]bool)
	present := func(id string) (bool, error) {
		if ok, cached := exists[id]; cached {
			return ok, nil
		}
		var one int
		err := t.tx.QueryRowContext(t.ctx, "SELECT 1 FROM nodes WHERE id = ?", id).Scan(&one)
		switch {
		case err == nil:
			exists[id] = true
		case errors.Is(err, sql.ErrNoRows):
			exists[id] = false
		default:
			return false, err
		}
		return exists[id], nil
	}

	inserted := 0
	for _, e := range edges {
		if err := e.Validate(); err != nil {
			return inserted, err
		}
		for _, id := range []string{e.From, e.To} {
			ok, err := present(id)
			if err != nil {
				return inserted, err
			}
			if !ok {
				return inserted, fmt.Errorf("%w: %s in edge %s", graph.ErrNodeNotFound, id, e.Key())
			}
		}
		attrs, err := encodeAttrs(e.Attributes)
		if err != nil {
			return inserted, fmt.Errorf("encode edge: %w", err)
		}
		link := 0
		if storage.IsLinkEdge(e) {
			link = 1
		}
		res, err := t.tx.ExecContext(t.ctx,
			"INSERT OR IGNORE INTO edges (from_id, kind, to_id, attributes, link) VALUES (?, ?, ?, ?, ?)",
			e.From, e.Kind.String(), e.To, attrs, link)
		if err != nil {
			return inserted, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += int(n)
	}
	return inserted, nil
}

// DeleteLinkEdges implements storage.Tx.
func (t *tx) DeleteLinkEdges(p string) (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM edges WHERE link = 1 AND from_id IN (SELECT id FROM nodes WHERE file = ?)", p)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PutRefs implements storage.Tx.
func (t *tx) PutRefs(p string, refs []graph.Reference) error {
	if err := t.check(); err != nil {
		return err
	}
	if len(refs) == 0 {
		_, err := t.tx.ExecContext(t.ctx, "DELETE FROM refs WHERE file = ?", p)
		return err
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encode refs %s: %w", p, err)
	}
	_, err = t.tx.ExecContext(t.ctx,
		"INSERT INTO refs (file, data) VALUES (?, ?) ON CONFLICT(file) DO UPDATE SET data = excluded.data",
		p, string(data))
	return err
}

// SetMetadata implements storage.Tx.
func (t *tx) SetMetadata(key, value string) error {
	if err := t.check(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}
