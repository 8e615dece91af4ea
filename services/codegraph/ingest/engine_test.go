// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/codegraph/services/codegraph/git"
	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
	"github.com/AleutianAI/codegraph/services/codegraph/storage/badger"
)

// project is a git working tree built in-process.
type project struct {
	t    *testing.T
	dir  string
	repo *gogit.Repository
}

func newProject(t *testing.T) *project {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "shop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	r, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	return &project{t: t, dir: dir, repo: r}
}

func (p *project) write(name, content string) {
	p.t.Helper()
	full := filepath.Join(p.dir, filepath.FromSlash(name))
	require.NoError(p.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(p.t, os.WriteFile(full, []byte(content), 0o644))
	wt, err := p.repo.Worktree()
	require.NoError(p.t, err)
	_, err = wt.Add(name)
	require.NoError(p.t, err)
}

func (p *project) remove(name string) {
	p.t.Helper()
	wt, err := p.repo.Worktree()
	require.NoError(p.t, err)
	_, err = wt.Remove(name)
	require.NoError(p.t, err)
}

func (p *project) move(from, to string) {
	p.t.Helper()
	require.NoError(p.t, os.MkdirAll(filepath.Dir(filepath.Join(p.dir, filepath.FromSlash(to))), 0o755))
	wt, err := p.repo.Worktree()
	require.NoError(p.t, err)
	_, err = wt.Move(from, to)
	require.NoError(p.t, err)
}

func (p *project) commit(msg string) string {
	p.t.Helper()
	wt, err := p.repo.Worktree()
	require.NoError(p.t, err)
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@test.com", When: time.Now()},
	})
	require.NoError(p.t, err)
	return hash.String()
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newEngine(t *testing.T, dir string, store storage.Store) *Engine {
	t.Helper()
	repo, err := git.Open(dir)
	require.NoError(t, err)
	e, err := New(Config{Root: dir, Store: store, Git: repo, Workers: 2})
	require.NoError(t, err)
	return e
}

func run(t *testing.T, e *Engine, opts RunOptions) *Summary {
	t.Helper()
	s, err := e.Run(context.Background(), opts)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func findNode(t *testing.T, s storage.Reader, file string, kind graph.NodeKind, name string) (graph.Node, bool) {
	t.Helper()
	nodes, err := s.FindNodes(context.Background(), storage.Query{Pattern: name, Kinds: []graph.NodeKind{kind}, File: file})
	require.NoError(t, err)
	for _, n := range nodes {
		if n.Name == name {
			return n, true
		}
	}
	return graph.Node{}, false
}

func mustNode(t *testing.T, s storage.Reader, file string, kind graph.NodeKind, name string) graph.Node {
	t.Helper()
	n, ok := findNode(t, s, file, kind, name)
	require.True(t, ok, "%s %q in %s", kind, name, file)
	return n
}

func hasEdge(t *testing.T, s storage.Reader, from string, kind graph.EdgeKind, to string) bool {
	t.Helper()
	edges, err := s.Outgoing(context.Background(), from, kind)
	require.NoError(t, err)
	for _, e := range edges {
		if e.To == to {
			return true
		}
	}
	return false
}

func metadata(t *testing.T, s storage.Reader, key string) string {
	t.Helper()
	v, _, err := s.Metadata(context.Background(), key)
	require.NoError(t, err)
	return v
}

func setMetadata(t *testing.T, s storage.Store, key, value string) {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.SetMetadata(key, value))
	require.NoError(t, tx.Commit())
}

// fingerprint is the identity of a stored graph: sorted node ids and edge
// keys.
type fingerprint struct {
	nodes []string
	edges []string
}

func snapshot(t *testing.T, s storage.Reader) fingerprint {
	t.Helper()
	g, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.NoError(t, g.CheckInvariants())

	var fp fingerprint
	for _, n := range g.Nodes() {
		fp.nodes = append(fp.nodes, n.ID)
	}
	for _, e := range g.Edges() {
		fp.edges = append(fp.edges, e.Key())
	}
	sort.Strings(fp.nodes)
	sort.Strings(fp.edges)
	return fp
}

// rebuilt ingests the project from scratch into a fresh store.
func rebuilt(t *testing.T, dir string) fingerprint {
	t.Helper()
	store := openStore(t)
	s := run(t, newEngine(t, dir, store), RunOptions{})
	require.True(t, s.Decision.State.Full())
	return snapshot(t, store)
}

const (
	srcA = "import { g } from './b';\nexport function f() { return g(); }\n"
	srcB = "export function g() { return 1; }\n"
)

func TestRun_FullRebuildThenUpToDate(t *testing.T) {
	p := newProject(t)
	p.write("a.ts", srcA)
	p.write("b.ts", srcB)
	p.write("README.md", "# shop\n")
	head := p.commit("init")

	store := openStore(t)
	e := newEngine(t, p.dir, store)

	s := run(t, e, RunOptions{})
	assert.Equal(t, StateNoBaseline, s.Decision.State)
	assert.Equal(t, "no baseline revision", s.Decision.Reason)
	assert.Equal(t, 2, s.FilesDiscovered)
	assert.Equal(t, 2, s.FilesProcessed)
	assert.Empty(t, s.Failures)
	assert.True(t, s.BaselineAdvanced)
	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, head, metadata(t, store, storage.MetaLastRevision))
	assert.Equal(t, "3", metadata(t, store, storage.MetaFormatVersion))

	f := mustNode(t, store, "a.ts", graph.NodeKindFunction, "f")
	g := mustNode(t, store, "b.ts", graph.NodeKindFunction, "g")
	assert.True(t, hasEdge(t, store, f.ID, graph.EdgeKindCalls, g.ID), "f calls g")
	assert.True(t, hasEdge(t, store, graph.FileID("a.ts"), graph.EdgeKindImports, graph.FileID("b.ts")), "a.ts imports b.ts")
	assert.True(t, hasEdge(t, store, e.RepositoryID(), graph.EdgeKindContains, graph.FileID("a.ts")))
	assert.True(t, hasEdge(t, store, e.RepositoryID(), graph.EdgeKindContains, graph.LanguageID("typescript")))
	assert.Positive(t, s.Link.ResolvedTotal())
	snapshot(t, store)

	again := run(t, e, RunOptions{})
	assert.Equal(t, StateUpToDate, again.Decision.State)
	assert.Zero(t, again.FilesProcessed)
	assert.False(t, again.BaselineAdvanced)
}

func TestRun_RoutesAndRequests(t *testing.T) {
	p := newProject(t)
	p.write("server/routes.ts", "import { createPerson } from './handlers';\nrouter.post(\"/person\", createPerson);\n")
	p.write("server/handlers.ts", "export function createPerson(req, res) { res.send(1); }\n")
	p.write("web/api.ts", "export function save(person) {\n  return fetch(\"/person\", { method: \"POST\", body: person });\n}\n")
	p.commit("init")

	store := openStore(t)
	run(t, newEngine(t, p.dir, store), RunOptions{})

	endpoint := mustNode(t, store, "server/routes.ts", graph.NodeKindEndpoint, "/person")
	assert.Equal(t, "POST", endpoint.Attr(graph.AttrVerb))
	handler := mustNode(t, store, "server/handlers.ts", graph.NodeKindFunction, "createPerson")
	assert.True(t, hasEdge(t, store, endpoint.ID, graph.EdgeKindHandler, handler.ID))

	nodes, err := store.FileNodes(context.Background(), "web/api.ts")
	require.NoError(t, err)
	var request graph.Node
	for _, n := range nodes {
		if n.Kind == graph.NodeKindRequest {
			request = n
		}
	}
	require.NotEmpty(t, request.ID)
	assert.True(t, hasEdge(t, store, request.ID, graph.EdgeKindCalls, endpoint.ID))

	assert.True(t, hasEdge(t, store, graph.DirectoryID("server"), graph.EdgeKindContains, graph.FileID("server/routes.ts")))
	snapshot(t, store)
}

func TestRun_IncrementalDeleteRemovesFileAndEdges(t *testing.T) {
	p := newProject(t)
	p.write("a.ts", srcA)
	p.write("b.ts", srcB)
	p.commit("init")

	store := openStore(t)
	e := newEngine(t, p.dir, store)
	run(t, e, RunOptions{})
	g := mustNode(t, store, "b.ts", graph.NodeKindFunction, "g")

	p.remove("b.ts")
	head := p.commit("drop b")

	s := run(t, e, RunOptions{})
	assert.Equal(t, StateDiffable, s.Decision.State)
	assert.Equal(t, 1, s.FilesDeleted)
	assert.Equal(t, 1, s.FilesRelinked)
	assert.Equal(t, 2, s.Deleted.Nodes, "b.ts and g")
	assert.Zero(t, s.NodesCreated)
	assert.True(t, s.BaselineAdvanced)
	assert.Equal(t, head, metadata(t, store, storage.MetaLastRevision))

	_, ok, err := store.Node(context.Background(), graph.FileID("b.ts"))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Node(context.Background(), g.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	f := mustNode(t, store, "a.ts", graph.NodeKindFunction, "f")
	calls, err := store.Outgoing(context.Background(), f.ID, graph.EdgeKindCalls)
	require.NoError(t, err)
	assert.Empty(t, calls)

	assert.Equal(t, rebuilt(t, p.dir), snapshot(t, store))
}

func TestRun_IncrementalMatchesFullRebuild(t *testing.T) {
	p := newProject(t)
	p.write("src/a.ts", "import { g } from './b';\nexport function f() { return g(); }\n")
	p.write("src/b.ts", srcB)
	p.write("src/c.ts", "export class Cart { add() { return 1; } }\n")
	p.write("web/api.ts", "export function load() { return fetch(\"/items\"); }\n")
	p.commit("init")

	store := openStore(t)
	e := newEngine(t, p.dir, store)
	run(t, e, RunOptions{})

	// g moves, so its id changes; a new file calls it and declares an
	// endpoint the unchanged web/api.ts now reaches.
	p.write("src/b.ts", "// helpers\n\nexport function g() { return 2; }\n")
	p.write("src/d.ts", "export function h() { return g(); }\nrouter.get(\"/items\", h);\n")
	p.commit("change")

	s := run(t, e, RunOptions{})
	require.Equal(t, StateDiffable, s.Decision.State)
	assert.Equal(t, 2, s.FilesProcessed)
	assert.Empty(t, s.Failures)

	g := mustNode(t, store, "src/b.ts", graph.NodeKindFunction, "g")
	f := mustNode(t, store, "src/a.ts", graph.NodeKindFunction, "f")
	assert.True(t, hasEdge(t, store, f.ID, graph.EdgeKindCalls, g.ID), "unchanged caller relinked to moved g")

	assert.Equal(t, rebuilt(t, p.dir), snapshot(t, store))
}

func TestRun_RenameMatchesFullRebuild(t *testing.T) {
	p := newProject(t)
	p.write("a.ts", "import { g } from './lib/b';\nexport function f() { return g(); }\n")
	p.write("lib/b.ts", srcB)
	p.commit("init")

	store := openStore(t)
	e := newEngine(t, p.dir, store)
	run(t, e, RunOptions{})

	p.move("lib/b.ts", "util/b.ts")
	p.write("a.ts", "import { g } from './util/b';\nexport function f() { return g(); }\n")
	p.commit("move b")

	s := run(t, e, RunOptions{})
	require.Equal(t, StateDiffable, s.Decision.State)
	assert.Empty(t, s.Failures)

	g := mustNode(t, store, "util/b.ts", graph.NodeKindFunction, "g")
	assert.Equal(t, graph.SymbolID("util/b.ts", graph.NodeKindFunction, "g", g.Span.Start), g.ID)
	_, ok := findNode(t, store, "lib/b.ts", graph.NodeKindFunction, "g")
	assert.False(t, ok)

	fp := snapshot(t, store)
	assert.NotContains(t, fp.nodes, graph.DirectoryID("lib"), "empty directory pruned")
	assert.Equal(t, rebuilt(t, p.dir), fp)
}

func TestRun_ForceIsIdempotent(t *testing.T) {
	p := newProject(t)
	p.write("a.ts", srcA)
	p.write("b.ts", srcB)
	p.commit("init")

	store := openStore(t)
	e := newEngine(t, p.dir, store)
	initial := run(t, e, RunOptions{})
	assert.Positive(t, initial.NodesCreated)
	assert.Zero(t, initial.NodesUpdated)
	assert.Zero(t, initial.Deleted.Nodes)
	first := snapshot(t, store)

	s := run(t, e, RunOptions{Force: true})
	assert.Equal(t, StateNoBaseline, s.Decision.State)
	assert.Equal(t, "full rebuild requested", s.Decision.Reason)
	assert.Zero(t, s.NodesCreated, "same ids are updates")
	assert.Equal(t, initial.NodesCreated, s.NodesUpdated)
	assert.Zero(t, s.Deleted.Nodes)
	assert.Equal(t, first, snapshot(t, store))
}

func TestRun_UnreachableBaselineRebuilds(t *testing.T) {
	p := newProject(t)
	p.write("a.ts", srcA)
	p.write("b.ts", srcB)
	head := p.commit("init")

	store := openStore(t)
	e := newEngine(t, p.dir, store)
	run(t, e, RunOptions{})
	setMetadata(t, store, storage.MetaLastRevision, "0123456789abcdef0123456789abcdef01234567")

	s := run(t, e, RunOptions{})
	assert.Equal(t, StateUnreachable, s.Decision.State)
	assert.ErrorIs(t, s.Decision.Cause, git.ErrRevisionUnreachable)
	assert.Equal(t, 2, s.FilesProcessed)
	assert.True(t, s.BaselineAdvanced)
	assert.Equal(t, head, metadata(t, store, storage.MetaLastRevision))
}

func TestRun_FormatVersionMismatchRebuilds(t *testing.T) {
	p := newProject(t)
	p.write("a.ts", srcA)
	p.commit("init")

	store := openStore(t)
	e := newEngine(t, p.dir, store)
	run(t, e, RunOptions{})
	setMetadata(t, store, storage.MetaFormatVersion, "2")

	s := run(t, e, RunOptions{})
	assert.Equal(t, StateUnreachable, s.Decision.State)
	assert.ErrorIs(t, s.Decision.Cause, ErrSchemaVersionMismatch)
	assert.Equal(t, "3", metadata(t, store, storage.MetaFormatVersion))
}

func TestRun_ManifestChangeRebuildsAndLinksLibraries(t *testing.T) {
	p := newProject(t)
	p.write("package.json", `{"dependencies": {"react": "^18.2.0"}}`)
	p.write("app.tsx", "import React from 'react';\nexport function App() { return 1; }\n")
	p.commit("init")

	store := openStore(t)
	e := newEngine(t, p.dir, store)
	run(t, e, RunOptions{})

	lib, ok, err := store.Node(context.Background(), graph.LibraryID("react"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "^18.2.0", lib.Attr(graph.AttrVersion))
	in, err := store.Incoming(context.Background(), lib.ID, graph.EdgeKindImports)
	require.NoError(t, err)
	assert.NotEmpty(t, in)

	p.write("package.json", `{"dependencies": {"react": "^18.3.0", "lodash": "4.17.21"}}`)
	p.commit("bump")

	s := run(t, e, RunOptions{})
	assert.Equal(t, StateUnreachable, s.Decision.State)
	assert.ErrorIs(t, s.Decision.Cause, ErrProjectMetadataChanged)

	lib, ok, err = store.Node(context.Background(), graph.LibraryID("react"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "^18.3.0", lib.Attr(graph.AttrVersion))
	_, ok, err = store.Node(context.Background(), graph.LibraryID("lodash"))
	require.NoError(t, err)
	assert.False(t, ok, "unimported packages get no node")
	snapshot(t, store)
}

func TestRun_ParseErrorDoesNotBlockBaseline(t *testing.T) {
	p := newProject(t)
	p.write("a.ts", srcA)
	p.write("broken.ts", "export function (\n")
	p.commit("init")

	store := openStore(t)
	s := run(t, newEngine(t, p.dir, store), RunOptions{})
	require.Len(t, s.ParseErrors, 1)
	assert.Equal(t, "broken.ts", s.ParseErrors[0].Path)
	assert.Empty(t, s.Failures)
	assert.True(t, s.BaselineAdvanced)

	nodes, err := store.FileNodes(context.Background(), "broken.ts")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.NotEmpty(t, nodes[0].Attr(graph.AttrParseError))
}

func TestRun_WithoutGit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ts"), []byte(srcA), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.ts"), []byte(srcB), 0o644))

	store := openStore(t)
	e, err := New(Config{Root: dir, Store: store})
	require.NoError(t, err)

	s := run(t, e, RunOptions{})
	assert.Equal(t, StateNoBaseline, s.Decision.State)
	assert.Equal(t, "not under version control", s.Decision.Reason)
	assert.Equal(t, 2, s.FilesProcessed)
	assert.False(t, s.BaselineAdvanced)
	assert.Equal(t, "3", metadata(t, store, storage.MetaFormatVersion))
	assert.Empty(t, metadata(t, store, storage.MetaLastRevision))
}

var errInjected = errors.New("injected failure")

// failingStore fails the transaction that stores references for one path.
type failingStore struct {
	storage.Store

	mu   sync.Mutex
	path string
}

func (s *failingStore) failOn(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = p
}

func (s *failingStore) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &failingTx{Tx: tx, path: s.path}, nil
}

type failingTx struct {
	storage.Tx
	path string
}

func (t *failingTx) PutRefs(p string, refs []graph.Reference) error {
	if p == t.path {
		return errInjected
	}
	return t.Tx.PutRefs(p, refs)
}

func TestRun_FileFailureKeepsBaselineAndPriorState(t *testing.T) {
	p := newProject(t)
	p.write("a.ts", srcA)
	p.write("b.ts", srcB)
	first := p.commit("init")

	store := &failingStore{Store: openStore(t)}
	e := newEngine(t, p.dir, store)
	run(t, e, RunOptions{})
	oldG := mustNode(t, store, "b.ts", graph.NodeKindFunction, "g")

	p.write("b.ts", "\nexport function g() { return 2; }\n")
	p.write("c.ts", "export function k() { return 3; }\n")
	p.commit("change")
	store.failOn("b.ts")

	s := run(t, e, RunOptions{})
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "b.ts", s.Failures[0].Path)
	var txErr *storage.TransactionError
	require.ErrorAs(t, s.Failures[0], &txErr)
	assert.Equal(t, "replace", txErr.Op)
	assert.ErrorIs(t, s.Failures[0], errInjected)
	assert.False(t, s.BaselineAdvanced)
	assert.Equal(t, first, metadata(t, store, storage.MetaLastRevision))

	_, ok, err := store.Node(context.Background(), oldG.ID)
	require.NoError(t, err)
	assert.True(t, ok, "failed file keeps its prior nodes")
	mustNode(t, store, "c.ts", graph.NodeKindFunction, "k")

	f := mustNode(t, store, "a.ts", graph.NodeKindFunction, "f")
	assert.True(t, hasEdge(t, store, f.ID, graph.EdgeKindCalls, oldG.ID), "caller keeps its edge into the failed file")
	assert.True(t, hasEdge(t, store, graph.FileID("a.ts"), graph.EdgeKindImports, graph.FileID("b.ts")), "importer keeps its edge into the failed file")
	snapshot(t, store)

	store.failOn("")
	retry := run(t, e, RunOptions{})
	assert.Equal(t, StateDiffable, retry.Decision.State)
	assert.Empty(t, retry.Failures)
	assert.True(t, retry.BaselineAdvanced)
	assert.Equal(t, rebuilt(t, p.dir), snapshot(t, store))
}

func TestRun_FullRebuildFailureKeepsIncomingEdges(t *testing.T) {
	p := newProject(t)
	p.write("a.ts", srcA)
	p.write("b.ts", srcB)
	first := p.commit("init")

	store := &failingStore{Store: openStore(t)}
	e := newEngine(t, p.dir, store)
	run(t, e, RunOptions{})
	g := mustNode(t, store, "b.ts", graph.NodeKindFunction, "g")
	before := snapshot(t, store)

	store.failOn("b.ts")
	s := run(t, e, RunOptions{Force: true})
	assert.True(t, s.Decision.State.Full())
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "b.ts", s.Failures[0].Path)
	assert.False(t, s.BaselineAdvanced)
	assert.Equal(t, first, metadata(t, store, storage.MetaLastRevision))

	f := mustNode(t, store, "a.ts", graph.NodeKindFunction, "f")
	assert.True(t, hasEdge(t, store, f.ID, graph.EdgeKindCalls, g.ID))
	assert.True(t, hasEdge(t, store, graph.FileID("a.ts"), graph.EdgeKindImports, graph.FileID("b.ts")))
	assert.Equal(t, before, snapshot(t, store))
}

func TestRun_Cancelled(t *testing.T) {
	p := newProject(t)
	p.write("a.ts", srcA)
	p.commit("init")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine(t, p.dir, openStore(t)).Run(ctx, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatus(t *testing.T) {
	p := newProject(t)
	store := openStore(t)
	e := newEngine(t, p.dir, store)

	d, err := e.Status(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StateNoBaseline, d.State)
	assert.Equal(t, "repository has no commits", d.Reason)

	p.write("a.ts", srcA)
	p.commit("init")
	run(t, e, RunOptions{})
	p.write("b.ts", srcB)
	head := p.commit("add b")

	d, err = e.Status(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StateDiffable, d.State)
	assert.Equal(t, head, d.Head)
	assert.Equal(t, []git.Change{{Path: "b.ts", Type: git.Added}}, d.Changes)
	assert.Equal(t, 1, d.ChangeCount)
	_, ok := findNode(t, store, "b.ts", graph.NodeKindFunction, "g")
	assert.False(t, ok, "status writes nothing")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Root: t.TempDir()})
	assert.ErrorIs(t, err, ErrNoStore)
}
