// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storagetest is the conformance suite every storage adapter runs.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
)

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite against stores built by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"UpsertAndGet", testUpsertAndGet},
		{"UpsertReplaces", testUpsertReplaces},
		{"EdgesIdempotent", testEdgesIdempotent},
		{"EdgesRequireEndpoints", testEdgesRequireEndpoints},
		{"DeleteFileCascades", testDeleteFileCascades},
		{"DeleteNode", testDeleteNode},
		{"DeleteLinkEdges", testDeleteLinkEdges},
		{"Refs", testRefs},
		{"Metadata", testMetadata},
		{"RollbackDiscards", testRollbackDiscards},
		{"CancelledCommitRollsBack", testCancelledCommitRollsBack},
		{"TxDone", testTxDone},
		{"WritesSerialized", testWritesSerialized},
		{"FindNodes", testFindNodes},
		{"CallersAndCallees", testCallersAndCallees},
		{"CountsAndSnapshot", testCountsAndSnapshot},
		{"Files", testFiles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// fixture is a two-file graph: a.ts calls b.ts through a link edge.
type fixture struct {
	repo, fileA, fileB, f, g, h graph.Node
	local                       []graph.Edge
	link                        graph.Edge
}

func symbol(p string, kind graph.NodeKind, name string, start uint32) graph.Node {
	return graph.Node{
		ID:         graph.SymbolID(p, kind, name, start),
		Kind:       kind,
		Name:       name,
		File:       p,
		Span:       graph.Span{Start: start, End: start + 10},
		Attributes: map[string]string{graph.AttrExported: "true"},
	}
}

func file(p string) graph.Node {
	return graph.Node{ID: graph.FileID(p), Kind: graph.NodeKindFile, Name: p, File: p,
		Attributes: map[string]string{graph.AttrLanguage: "typescript"}}
}

func newFixture() fixture {
	fx := fixture{
		repo:  graph.Node{ID: graph.RepositoryID("repo"), Kind: graph.NodeKindRepository, Name: "repo"},
		fileA: file("a.ts"),
		fileB: file("b.ts"),
		f:     symbol("a.ts", graph.NodeKindFunction, "f", 0),
		h:     symbol("a.ts", graph.NodeKindFunction, "helper", 20),
		g:     symbol("b.ts", graph.NodeKindFunction, "g", 0),
	}
	fx.local = []graph.Edge{
		{From: fx.repo.ID, Kind: graph.EdgeKindContains, To: fx.fileA.ID},
		{From: fx.repo.ID, Kind: graph.EdgeKindContains, To: fx.fileB.ID},
		{From: fx.fileA.ID, Kind: graph.EdgeKindContains, To: fx.f.ID},
		{From: fx.fileA.ID, Kind: graph.EdgeKindContains, To: fx.h.ID},
		{From: fx.fileB.ID, Kind: graph.EdgeKindContains, To: fx.g.ID},
		{From: fx.f.ID, Kind: graph.EdgeKindCalls, To: fx.h.ID},
	}
	fx.link = graph.Edge{From: fx.f.ID, Kind: graph.EdgeKindCalls, To: fx.g.ID,
		Attributes: map[string]string{graph.AttrResolution: "binding"}}
	return fx
}

func (fx fixture) write(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	for _, n := range []graph.Node{fx.repo, fx.fileA, fx.fileB, fx.f, fx.h, fx.g} {
		require.NoError(t, tx.UpsertNode(n))
	}
	_, err = tx.PutEdges(append(append([]graph.Edge(nil), fx.local...), fx.link))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}

func begin(t *testing.T, s storage.Store) storage.Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx
}

func mustNode(t *testing.T, s storage.Store, id string) (graph.Node, bool) {
	t.Helper()
	n, ok, err := s.Node(context.Background(), id)
	require.NoError(t, err)
	return n, ok
}

func testUpsertAndGet(t *testing.T, s storage.Store) {
	fx := newFixture()
	fx.write(t, s)

	got, ok := mustNode(t, s, fx.f.ID)
	require.True(t, ok)
	assert.Equal(t, fx.f, got)

	_, ok = mustNode(t, s, "sym:missing")
	assert.False(t, ok)
}

func testUpsertReplaces(t *testing.T, s storage.Store) {
	fx := newFixture()
	fx.write(t, s)

	changed := fx.f
	changed.Attributes = map[string]string{graph.AttrExported: "false"}
	tx := begin(t, s)
	require.NoError(t, tx.UpsertNode(changed))
	require.NoError(t, tx.Commit())

	got, _ := mustNode(t, s, fx.f.ID)
	assert.Equal(t, "false", got.Attr(graph.AttrExported))

	tx = begin(t, s)
	assert.ErrorIs(t, tx.UpsertNode(graph.Node{ID: "x", Kind: graph.NodeKindFunction}), graph.ErrInvalidNode)
}

func testEdgesIdempotent(t *testing.T, s storage.Store) {
	fx := newFixture()
	fx.write(t, s)

	tx := begin(t, s)
	inserted, err := tx.PutEdges(fx.local)
	require.NoError(t, err)
	assert.Zero(t, inserted)
	require.NoError(t, tx.Commit())

	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(fx.local)+1, c.TotalEdges())
}

func testEdgesRequireEndpoints(t *testing.T, s storage.Store) {
	fx := newFixture()
	fx.write(t, s)

	tx := begin(t, s)
	_, err := tx.PutEdges([]graph.Edge{{From: fx.f.ID, Kind: graph.EdgeKindCalls, To: "sym:nowhere"}})
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func testDeleteFileCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	fx := newFixture()
	fx.write(t, s)

	tx := begin(t, s)
	require.NoError(t, tx.PutRefs("b.ts", []graph.Reference{{Kind: graph.RefKindCall, From: fx.g.ID, File: "b.ts", Name: "x"}}))
	require.NoError(t, tx.Commit())

	tx = begin(t, s)
	removed, err := tx.DeleteFile("b.ts")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, 2, removed.Nodes)
	// Repository -> b.ts, b.ts -> g, f -> g.
	assert.Equal(t, 3, removed.Edges)

	_, ok := mustNode(t, s, fx.fileB.ID)
	assert.False(t, ok)
	_, ok = mustNode(t, s, fx.g.ID)
	assert.False(t, ok)

	out, err := s.Outgoing(ctx, fx.f.ID, graph.EdgeKindCalls)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, fx.h.ID, out[0].To)

	refs, err := s.Refs(ctx, "b.ts")
	require.NoError(t, err)
	assert.Empty(t, refs)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.NoError(t, snap.CheckInvariants())

	tx = begin(t, s)
	removed, err = tx.DeleteFile("missing.ts")
	require.NoError(t, err)
	assert.Zero(t, removed.Nodes)
}

func testDeleteNode(t *testing.T, s storage.Store) {
	fx := newFixture()
	fx.write(t, s)

	tx := begin(t, s)
	removed, err := tx.DeleteNode(fx.h.ID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, storage.Removed{Nodes: 1, Edges: 2}, removed)

	nodes, err := s.FileNodes(context.Background(), "a.ts")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, fx.fileA.ID, nodes[0].ID)
}

func testDeleteLinkEdges(t *testing.T, s storage.Store) {
	ctx := context.Background()
	fx := newFixture()
	fx.write(t, s)

	tx := begin(t, s)
	n, err := tx.DeleteLinkEdges("a.ts")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, n)

	out, err := s.Outgoing(ctx, fx.f.ID, graph.EdgeKindUnknown)
	require.NoError(t, err)
	require.Len(t, out, 1, "local call survives")
	assert.Equal(t, fx.h.ID, out[0].To)

	in, err := s.Incoming(ctx, fx.g.ID, graph.EdgeKindCalls)
	require.NoError(t, err)
	assert.Empty(t, in)
}

func testRefs(t *testing.T, s storage.Store) {
	ctx := context.Background()
	refs := []graph.Reference{
		{Kind: graph.RefKindImport, From: "sym:imp", File: "a.ts", Name: "g", Specifier: "./b", Offset: 9, Line: 0, Column: 9},
		{Kind: graph.RefKindCall, From: "sym:f", File: "a.ts", Name: "run", Receiver: "this", Offset: 40, Line: 2, Column: 4},
	}
	tx := begin(t, s)
	require.NoError(t, tx.PutRefs("a.ts", refs))
	require.NoError(t, tx.Commit())

	got, err := s.Refs(ctx, "a.ts")
	require.NoError(t, err)
	assert.Equal(t, refs, got)

	tx = begin(t, s)
	require.NoError(t, tx.PutRefs("a.ts", nil))
	require.NoError(t, tx.Commit())
	got, err = s.Refs(ctx, "a.ts")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testMetadata(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, ok, err := s.Metadata(ctx, storage.MetaLastRevision)
	require.NoError(t, err)
	assert.False(t, ok)

	tx := begin(t, s)
	require.NoError(t, tx.SetMetadata(storage.MetaLastRevision, "abc"))
	require.NoError(t, tx.SetMetadata(storage.MetaLastRevision, "def"))
	require.NoError(t, tx.Commit())

	v, ok, err := s.Metadata(ctx, storage.MetaLastRevision)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def", v)
}

func testRollbackDiscards(t *testing.T, s storage.Store) {
	fx := newFixture()
	fx.write(t, s)

	tx := begin(t, s)
	_, err := tx.DeleteFile("a.ts")
	require.NoError(t, err)
	require.NoError(t, tx.SetMetadata(storage.MetaLastRevision, "never"))
	require.NoError(t, tx.Rollback())

	_, ok := mustNode(t, s, fx.f.ID)
	assert.True(t, ok)
	_, ok, err = s.Metadata(context.Background(), storage.MetaLastRevision)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testCancelledCommitRollsBack(t *testing.T, s storage.Store) {
	fx := newFixture()
	fx.write(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.DeleteFile("a.ts")
	require.NoError(t, err)
	cancel()
	assert.ErrorIs(t, tx.Commit(), context.Canceled)

	_, ok := mustNode(t, s, fx.f.ID)
	assert.True(t, ok, "prior state is untouched")

	// The write slot was released.
	tx = begin(t, s)
	require.NoError(t, tx.Rollback())
}

func testTxDone(t *testing.T, s storage.Store) {
	tx := begin(t, s)
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), storage.ErrTxDone)
	assert.ErrorIs(t, tx.SetMetadata("k", "v"), storage.ErrTxDone)
	assert.NoError(t, tx.Rollback())
}

func testWritesSerialized(t *testing.T, s storage.Store) {
	first := begin(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Begin(ctx)
	require.Error(t, err, "second writer must wait")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		tx, err := s.Begin(context.Background())
		close(started)
		if err == nil {
			_ = tx.Rollback()
		}
	}()
	require.NoError(t, first.Commit())
	<-started
	wg.Wait()
}

func testFindNodes(t *testing.T, s storage.Store) {
	ctx := context.Background()
	fx := newFixture()
	fx.write(t, s)

	tests := []struct {
		name string
		q    storage.Query
		want []string
	}{
		{"exact case-insensitive", storage.Query{Pattern: "HELPER"}, []string{"helper"}},
		{"star", storage.Query{Pattern: "*.ts"}, []string{"a.ts", "b.ts"}},
		{"percent", storage.Query{Pattern: "%e%", Kinds: []graph.NodeKind{graph.NodeKindFunction}}, []string{"helper"}},
		{"kind", storage.Query{Kinds: []graph.NodeKind{graph.NodeKindFunction}}, []string{"f", "g", "helper"}},
		{"file", storage.Query{File: "a.ts", Kinds: []graph.NodeKind{graph.NodeKindFunction}}, []string{"f", "helper"}},
		{"limit", storage.Query{Kinds: []graph.NodeKind{graph.NodeKindFunction}, Limit: 2}, []string{"f", "g"}},
		{"none", storage.Query{Pattern: "zzz"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := s.FindNodes(ctx, tt.q)
			require.NoError(t, err)
			var names []string
			for _, n := range nodes {
				names = append(names, n.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func testCallersAndCallees(t *testing.T, s storage.Store) {
	ctx := context.Background()
	fx := newFixture()
	fx.write(t, s)

	callers, err := storage.Callers(ctx, s, "g", 0)
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, fx.f.ID, callers[0].Node.ID)
	assert.Equal(t, fx.g.ID, callers[0].Target.ID)

	callees, err := storage.Callees(ctx, s, fx.f.ID, 0)
	require.NoError(t, err)
	require.Len(t, callees, 2)
	assert.Equal(t, "g", callees[0].Node.Name)
	assert.Equal(t, "helper", callees[1].Node.Name)

	callees, err = storage.Callees(ctx, s, fx.f.ID, 1)
	require.NoError(t, err)
	assert.Len(t, callees, 1)

	none, err := storage.Callers(ctx, s, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testCountsAndSnapshot(t *testing.T, s storage.Store) {
	ctx := context.Background()
	fx := newFixture()
	fx.write(t, s)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Nodes[graph.NodeKindRepository])
	assert.Equal(t, 2, c.Nodes[graph.NodeKindFile])
	assert.Equal(t, 3, c.Nodes[graph.NodeKindFunction])
	assert.Equal(t, 5, c.Edges[graph.EdgeKindContains])
	assert.Equal(t, 2, c.Edges[graph.EdgeKindCalls])

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, snap.NodeCount())
	assert.Equal(t, 7, snap.EdgeCount())
	assert.NoError(t, snap.CheckInvariants())

	link, ok := findEdge(snap.Outgoing(fx.f.ID, graph.EdgeKindCalls), fx.g.ID)
	require.True(t, ok)
	assert.Equal(t, "binding", link.Attributes[graph.AttrResolution])
}

func findEdge(edges []graph.Edge, to string) (graph.Edge, bool) {
	for _, e := range edges {
		if e.To == to {
			return e, true
		}
	}
	return graph.Edge{}, false
}

func testFiles(t *testing.T, s storage.Store) {
	ctx := context.Background()
	fx := newFixture()
	fx.write(t, s)

	files, err := s.Files(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ts", "b.ts"}, files)

	nodes, err := s.FileNodes(ctx, "a.ts")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, graph.NodeKindFile, nodes[0].Kind)
	assert.Equal(t, "f", nodes[1].Name)
	assert.Equal(t, "helper", nodes[2].Name)
}
