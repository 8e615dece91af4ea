// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
)

// Backend is the name reported by Store.Backend.
const Backend = "badger"

const sep = "\x00"

const (
	prefixNode  = "n"
	prefixOwner = "o"
	prefixEdge  = "e"
	prefixIn    = "i"
	prefixRefs  = "r"
	prefixMeta  = "m"
)

func nodeKey(id string) []byte      { return []byte(prefixNode + id) }
func ownerKey(p, id string) []byte  { return []byte(prefixOwner + p + sep + id) }
func ownerPrefix(p string) []byte   { return []byte(prefixOwner + p + sep) }
func refsKey(p string) []byte       { return []byte(prefixRefs + p) }
func metaKey(key string) []byte     { return []byte(prefixMeta + key) }
func edgePrefix(from string) []byte { return []byte(prefixEdge + from + sep) }
func inPrefix(to string) []byte     { return []byte(prefixIn + to + sep) }
func edgeKey(e graph.Edge) []byte {
	return []byte(prefixEdge + e.From + sep + e.Kind.String() + sep + e.To)
}
func inKey(e graph.Edge) []byte {
	return []byte(prefixIn + e.To + sep + e.Kind.String() + sep + e.From)
}
func kindPrefix(k graph.EdgeKind) string {
	if k == graph.EdgeKindUnknown {
		return ""
	}
	return k.String() + sep
}

// Store is a storage.Store on BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use. Reads run in their own snapshot transactions;
// at most one write transaction is open at a time.
type Store struct {
	db     *badger.DB
	gc     *gcRunner
	write  chan struct{}
	closed atomic.Bool
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open opens the store described by cfg.
//
// Description:
//
//	Opens the database at cfg.Path, or in memory when cfg.InMemory is
//	set, and starts value log GC when cfg.GCInterval is positive.
//
// Outputs:
//
//	*Store - The store. Call Close when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, write: make(chan struct{}, 1), logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		s.gc = runner
		runner.start()
	}
	return s, nil
}

// Backend implements storage.Store.
func (s *Store) Backend() string { return Backend }

// Close stops GC and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// Begin starts the write transaction, waiting for the previous one.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	select {
	case s.write <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("begin: %w", ctx.Err())
	}
	return &tx{store: s, txn: s.db.NewTransaction(true), ctx: ctx, started: time.Now()}, nil
}

func (s *Store) read(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return withReadTxn(ctx, s.db, fn)
}

// Node implements storage.Reader.
func (s *Store) Node(ctx context.Context, id string) (graph.Node, bool, error) {
	var (
		n  graph.Node
		ok bool
	)
	err := s.read(ctx, func(txn *badger.Txn) error {
		var err error
		n, ok, err = getNode(txn, id)
		return err
	})
	return n, ok, err
}

// FindNodes implements storage.Reader.
func (s *Store) FindNodes(ctx context.Context, q storage.Query) ([]graph.Node, error) {
	var out []graph.Node
	err := s.read(ctx, func(txn *badger.Txn) error {
		if q.File != "" {
			ids, err := ownedIDs(txn, q.File)
			if err != nil {
				return err
			}
			for _, id := range ids {
				n, ok, err := getNode(txn, id)
				if err != nil {
					return err
				}
				if ok && q.Matches(n) {
					out = append(out, n)
				}
			}
			return nil
		}
		return scan(txn, []byte(prefixNode), true, func(_, val []byte) error {
			var n graph.Node
			if err := json.Unmarshal(val, &n); err != nil {
				return fmt.Errorf("decode node: %w", err)
			}
			if q.Matches(n) {
				out = append(out, n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return storage.SortNodes(out, q.Limit), nil
}

// Outgoing implements storage.Reader.
func (s *Store) Outgoing(ctx context.Context, id string, kind graph.EdgeKind) ([]graph.Edge, error) {
	var out []graph.Edge
	err := s.read(ctx, func(txn *badger.Txn) error {
		prefix := append(edgePrefix(id), kindPrefix(kind)...)
		return scan(txn, prefix, true, func(_, val []byte) error {
			var e graph.Edge
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode edge: %w", err)
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return storage.SortEdges(out), nil
}

// Incoming implements storage.Reader.
func (s *Store) Incoming(ctx context.Context, id string, kind graph.EdgeKind) ([]graph.Edge, error) {
	var out []graph.Edge
	err := s.read(ctx, func(txn *badger.Txn) error {
		keys, err := incomingEdgeKeys(txn, id, kind)
		if err != nil {
			return err
		}
		for _, key := range keys {
			e, ok, err := getEdge(txn, key)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return storage.SortEdges(out), nil
}

// Files implements storage.Reader.
func (s *Store) Files(ctx context.Context) ([]string, error) {
	var out []string
	err := s.read(ctx, func(txn *badger.Txn) error {
		return scan(txn, []byte(prefixOwner), false, func(key, _ []byte) error {
			p, id, ok := strings.Cut(string(key[len(prefixOwner):]), sep)
			if ok && id == graph.FileID(p) {
				out = append(out, p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// FileNodes implements storage.Reader.
func (s *Store) FileNodes(ctx context.Context, p string) ([]graph.Node, error) {
	var out []graph.Node
	err := s.read(ctx, func(txn *badger.Txn) error {
		ids, err := ownedIDs(txn, p)
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, ok, err := getNode(txn, id)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortFileNodes(out)
	return out, nil
}

// sortFileNodes puts the File node first and symbols in source order.
func sortFileNodes(nodes []graph.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if (a.Kind == graph.NodeKindFile) != (b.Kind == graph.NodeKindFile) {
			return a.Kind == graph.NodeKindFile
		}
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		return a.ID < b.ID
	})
}

// Refs implements storage.Reader.
func (s *Store) Refs(ctx context.Context, p string) ([]graph.Reference, error) {
	var refs []graph.Reference
	err := s.read(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(refsKey(p))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &refs)
		})
	})
	return refs, err
}

// Metadata implements storage.Reader.
func (s *Store) Metadata(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.read(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	return value, ok, err
}

// Counts implements storage.Reader.
func (s *Store) Counts(ctx context.Context) (storage.Counts, error) {
	c := storage.Counts{Nodes: make(map[graph.NodeKind]int), Edges: make(map[graph.EdgeKind]int)}
	err := s.read(ctx, func(txn *badger.Txn) error {
		err := scan(txn, []byte(prefixNode), true, func(_, val []byte) error {
			var n struct {
				Kind graph.NodeKind `json:"kind"`
			}
			if err := json.Unmarshal(val, &n); err != nil {
				return fmt.Errorf("decode node: %w", err)
			}
			c.Nodes[n.Kind]++
			return nil
		})
		if err != nil {
			return err
		}
		return scan(txn, []byte(prefixEdge), false, func(key, _ []byte) error {
			parts := strings.SplitN(string(key[len(prefixEdge):]), sep, 3)
			if len(parts) != 3 {
				return fmt.Errorf("malformed edge key %q", key)
			}
			kind, err := graph.ParseEdgeKind(parts[1])
			if err != nil {
				return err
			}
			c.Edges[kind]++
			return nil
		})
	})
	return c, err
}

// Snapshot implements storage.Reader.
func (s *Store) Snapshot(ctx context.Context) (*graph.Graph, error) {
	g := graph.NewGraph()
	err := s.read(ctx, func(txn *badger.Txn) error {
		err := scan(txn, []byte(prefixNode), true, func(_, val []byte) error {
			var n graph.Node
			if err := json.Unmarshal(val, &n); err != nil {
				return fmt.Errorf("decode node: %w", err)
			}
			return g.UpsertNode(n)
		})
		if err != nil {
			return err
		}
		return scan(txn, []byte(prefixEdge), true, func(_, val []byte) error {
			var e graph.Edge
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode edge: %w", err)
			}
			_, err := g.AddEdge(e)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// tx is a Badger write transaction holding the store's write slot.
type tx struct {
	store   *Store
	txn     *badger.Txn
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
	t.txn.Discard()
	<-t.store.write
	storage.ObserveTx(Backend, outcome, time.Since(t.started))
}

// Commit implements storage.Tx. A cancelled context rolls back instead.
func (t *tx) Commit() error {
	if t.done {
		return storage.ErrTxDone
	}
	if err := t.ctx.Err(); err != nil {
		t.finish(storage.OutcomeRollback)
		return fmt.Errorf("commit: %w", err)
	}
	if err := t.txn.Commit(); err != nil {
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
	t.finish(storage.OutcomeRollback)
	return nil
}

// UpsertNode implements storage.Tx.
func (t *tx) UpsertNode(n graph.Node) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := n.Validate(); err != nil {
		return err
	}
	old, ok, err := getNode(t.txn, n.ID)
	if err != nil {
		return err
	}
	if ok && old.File != "" && old.File != n.File {
		if err := t.txn.Delete(ownerKey(old.File, n.ID)); err != nil {
			return err
		}
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	if err := t.txn.Set(nodeKey(n.ID), data); err != nil {
		return err
	}
	if n.File != "" {
		return t.txn.Set(ownerKey(n.File, n.ID), nil)
	}
	return nil
}

// DeleteNode implements storage.Tx.
func (t *tx) DeleteNode(id string) (storage.Removed, error) {
	if err := t.check(); err != nil {
		return storage.Removed{}, err
	}
	return t.deleteNode(id)
}

func (t *tx) deleteNode(id string) (storage.Removed, error) {
	n, ok, err := getNode(t.txn, id)
	if err != nil || !ok {
		return storage.Removed{}, err
	}
	edges, err := t.deleteIncident(id)
	if err != nil {
		return storage.Removed{}, err
	}
	if err := t.txn.Delete(nodeKey(id)); err != nil {
		return storage.Removed{}, err
	}
	if n.File != "" {
		if err := t.txn.Delete(ownerKey(n.File, id)); err != nil {
			return storage.Removed{}, err
		}
	}
	return storage.Removed{Nodes: 1, Edges: edges}, nil
}

// deleteIncident removes every edge touching id.
func (t *tx) deleteIncident(id string) (int, error) {
	var edges []graph.Edge
	err := scan(t.txn, edgePrefix(id), true, func(_, val []byte) error {
		var e graph.Edge
		if err := json.Unmarshal(val, &e); err != nil {
			return fmt.Errorf("decode edge: %w", err)
		}
		edges = append(edges, e)
		return nil
	})
	if err != nil {
		return 0, err
	}
	err = scan(t.txn, inPrefix(id), false, func(key, _ []byte) error {
		parts := strings.SplitN(string(key[len(prefixIn):]), sep, 3)
		if len(parts) != 3 {
			return fmt.Errorf("malformed index key %q", key)
		}
		kind, err := graph.ParseEdgeKind(parts[1])
		if err != nil {
			return err
		}
		edges = append(edges, graph.Edge{From: parts[2], Kind: kind, To: parts[0]})
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		if seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		if err := t.deleteEdge(e); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (t *tx) deleteEdge(e graph.Edge) error {
	if err := t.txn.Delete(edgeKey(e)); err != nil {
		return err
	}
	return t.txn.Delete(inKey(e))
}

// DeleteFile implements storage.Tx.
func (t *tx) DeleteFile(p string) (storage.Removed, error) {
	var total storage.Removed
	if err := t.check(); err != nil {
		return total, err
	}
	ids, err := ownedIDs(t.txn, p)
	if err != nil {
		return total, err
	}
	for _, id := range ids {
		removed, err := t.deleteNode(id)
		if err != nil {
			return total, fmt.Errorf("delete %s: %w", id, err)
		}
		total.Add(removed)
	}
	return total, t.txn.Delete(refsKey(p))
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
		_, err := t.txn.Get(nodeKey(id))
		switch {
		case err == nil:
			exists[id] = true
		case errors.Is(err, badger.ErrKeyNotFound):
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
		key := edgeKey(e)
		_, err := t.txn.Get(key)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return inserted, err
		}
		data, err := json.Marshal(e)
		if err != nil {
			return inserted, fmt.Errorf("encode edge: %w", err)
		}
		if err := t.txn.Set(key, data); err != nil {
			return inserted, err
		}
		if err := t.txn.Set(inKey(e), nil); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// DeleteLinkEdges implements storage.Tx.
func (t *tx) DeleteLinkEdges(p string) (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	ids, err := ownedIDs(t.txn, p)
	if err != nil {
		return 0, err
	}
	var links []graph.Edge
	for _, id := range ids {
		err := scan(t.txn, edgePrefix(id), true, func(_, val []byte) error {
			var e graph.Edge
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode edge: %w", err)
			}
			if storage.IsLinkEdge(e) {
				links = append(links, e)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	for i, e := range links {
		if err := t.deleteEdge(e); err != nil {
			return i, err
		}
	}
	return len(links), nil
}

// PutRefs implements storage.Tx.
func (t *tx) PutRefs(p string, refs []graph.Reference) error {
	if err := t.check(); err != nil {
		return err
	}
	if len(refs) == 0 {
		return t.txn.Delete(refsKey(p))
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encode refs %s: %w", p, err)
	}
	return t.txn.Set(refsKey(p), data)
}

// SetMetadata implements storage.Tx.
func (t *tx) SetMetadata(key, value string) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.txn.Set(metaKey(key), []byte(value))
}

func getNode(txn *badger.Txn, id string) (graph.Node, bool, error) {
	var n graph.Node
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return n, false, nil
	}
	if err != nil {
		return n, false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &n)
	})
	if err != nil {
		return n, false, fmt.Errorf("decode node %s: %w", id, err)
	}
	return n, true, nil
}

func getEdge(txn *badger.Txn, key []byte) (graph.Edge, bool, error) {
	var e graph.Edge
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	return e, err == nil, err
}

// incomingEdgeKeys returns the forward keys of the edges entering id.
func incomingEdgeKeys(txn *badger.Txn, id string, kind graph.EdgeKind) ([][]byte, error) {
	var keys [][]byte
	prefix := append(inPrefix(id), kindPrefix(kind)...)
	err := scan(txn, prefix, false, func(key, _ []byte) error {
		parts := strings.SplitN(string(key[len(prefixIn):]), sep, 3)
		if len(parts) != 3 {
			return fmt.Errorf("malformed index key %q", key)
		}
		keys = append(keys, []byte(prefixEdge+parts[2]+sep+parts[1]+sep+parts[0]))
		return nil
	})
	return keys, err
}

// ownedIDs lists the ids of the nodes owned by p.
func ownedIDs(txn *badger.Txn, p string) ([]string, error) {
	var ids []string
	prefix := ownerPrefix(p)
	err := scan(txn, prefix, false, func(key, _ []byte) error {
		ids = append(ids, string(bytes.TrimPrefix(key, prefix)))
		return nil
	})
	return ids, err
}

// scan visits every key with the given prefix. fn must not open another
// iterator: Badger allows one per read-write transaction.
func scan(txn *badger.Txn, prefix []byte, values bool, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = values
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		var val []byte
		if values {
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			val = v
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}
