// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage defines the contract between the ingestion engine and a
// persistent graph store, plus the read-side queries built on it.
//
// Adapters live in sub-packages (badger, sqlite) and are verified by the
// shared conformance suite in storagetest.
//
// # Transactions
//
// Writes happen inside a Tx. A store runs at most one write transaction
// at a time; Begin blocks until the previous one finishes or ctx is done.
// A committed transaction is atomically visible: readers never observe a
// File with only part of its new children. Rollback after Commit is a
// no-op, so callers may always `defer tx.Rollback()`.
//
// # Ownership
//
// Nodes with a File are owned by that file. An edge is removed together
// with either of its endpoints. Edges whose Attributes carry a
// "resolution" key are link edges; DeleteLinkEdges removes them for one
// file so the linker can replace them without touching local edges.
package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

// Reader is the read side of a store.
type Reader interface {
	// Node returns a node by id.
	Node(ctx context.Context, id string) (graph.Node, bool, error)

	// FindNodes returns nodes matching q, sorted by name, file, then id.
	FindNodes(ctx context.Context, q Query) ([]graph.Node, error)

	// Outgoing returns the edges leaving id. EdgeKindUnknown selects
	// every kind.
	Outgoing(ctx context.Context, id string, kind graph.EdgeKind) ([]graph.Edge, error)

	// Incoming returns the edges entering id. EdgeKindUnknown selects
	// every kind.
	Incoming(ctx context.Context, id string, kind graph.EdgeKind) ([]graph.Edge, error)

	// Files returns the paths of every stored File node, sorted.
	Files(ctx context.Context) ([]string, error)

	// FileNodes returns the File node at path followed by the symbols it
	// owns.
	FileNodes(ctx context.Context, path string) ([]graph.Node, error)

	// Refs returns the references last stored for path.
	Refs(ctx context.Context, path string) ([]graph.Reference, error)

	// Metadata returns a metadata value.
	Metadata(ctx context.Context, key string) (string, bool, error)

	// Counts returns node and edge counts by kind.
	Counts(ctx context.Context) (Counts, error)

	// Snapshot materializes the whole graph in memory.
	Snapshot(ctx context.Context) (*graph.Graph, error)
}

// Store is a persistent graph store.
type Store interface {
	Reader

	// Begin starts the single write transaction.
	Begin(ctx context.Context) (Tx, error)

	// Backend names the adapter, e.g. "badger".
	Backend() string

	// Close releases the store.
	Close() error
}

// Tx is a write transaction.
//
// Tx is NOT safe for concurrent use.
type Tx interface {
	// UpsertNode inserts a node or replaces the node with the same id.
	UpsertNode(n graph.Node) error

	// DeleteNode removes a node and every edge touching it.
	DeleteNode(id string) (Removed, error)

	// DeleteFile removes the File node at path, every node it owns, every
	// edge touching those nodes, and the file's stored references.
	DeleteFile(path string) (Removed, error)

	// PutEdges inserts edges, skipping triples that already exist. Both
	// endpoints of every edge must exist.
	PutEdges(edges []graph.Edge) (int, error)

	// DeleteLinkEdges removes the link edges leaving nodes owned by path.
	DeleteLinkEdges(path string) (int, error)

	// PutRefs replaces the references stored for path.
	PutRefs(path string, refs []graph.Reference) error

	// SetMetadata writes a metadata value.
	SetMetadata(key, value string) error

	// Commit makes the transaction's writes visible.
	Commit() error

	// Rollback discards the transaction's writes.
	Rollback() error
}

// Removed counts what a delete removed.
type Removed struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Add accumulates other into r.
func (r *Removed) Add(other Removed) {
	r.Nodes += other.Nodes
	r.Edges += other.Edges
}

// Counts are node and edge totals by kind.
type Counts struct {
	Nodes map[graph.NodeKind]int `json:"nodes"`
	Edges map[graph.EdgeKind]int `json:"edges"`
}

// TotalNodes sums Nodes.
func (c Counts) TotalNodes() int {
	total := 0
	for _, n := range c.Nodes {
		total += n
	}
	return total
}

// TotalEdges sums Edges.
func (c Counts) TotalEdges() int {
	total := 0
	for _, n := range c.Edges {
		total += n
	}
	return total
}

// IsLinkEdge reports whether e was produced by the linker.
func IsLinkEdge(e graph.Edge) bool {
	_, ok := e.Attributes[graph.AttrResolution]
	return ok
}

// Query selects nodes for FindNodes.
type Query struct {
	// Pattern matches node names case-insensitively. "*" and "%" match
	// any run of characters. Empty matches everything.
	Pattern string

	// Kinds restricts the result. Empty means every kind.
	Kinds []graph.NodeKind

	// File restricts the result to one owning file.
	File string

	// Limit caps the result. Zero or negative means no limit.
	Limit int
}

// Matches reports whether n satisfies every filter except Limit.
func (q Query) Matches(n graph.Node) bool {
	if q.File != "" && n.File != q.File {
		return false
	}
	if len(q.Kinds) > 0 {
		found := false
		for _, k := range q.Kinds {
			if n.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return MatchPattern(q.Pattern, n.Name)
}

// MatchPattern reports whether name matches pattern with ILIKE-style
// semantics: case-insensitive, "*" and "%" match any run of characters,
// and everything else matches literally.
func MatchPattern(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	p := strings.ToLower(strings.ReplaceAll(pattern, "%", "*"))
	s := strings.ToLower(name)

	parts := strings.Split(p, "*")
	if len(parts) == 1 {
		return p == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}
	return strings.HasSuffix(s, last)
}

// SortNodes orders nodes by name, file, then id, and applies limit.
func SortNodes(nodes []graph.Node, limit int) []graph.Node {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes
}

// SortEdges orders edges by key.
func SortEdges(edges []graph.Edge) []graph.Edge {
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key() < edges[j].Key() })
	return edges
}

// Metadata keys written by the ingestion engine.
const (
	MetaLastRevision  = "last_ingested_revision"
	MetaFormatVersion = "ingestion_format_version"
)
