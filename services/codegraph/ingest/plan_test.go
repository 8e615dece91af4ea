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
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/codegraph/services/codegraph/git"
	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
)

func TestPlanChanges(t *testing.T) {
	accept := func(p string) bool { return !strings.HasPrefix(p, "vendor/") }
	present := map[string]bool{"a.ts": true, "new/b.ts": true, "vendor/x.ts": true, "c.ts": true}
	exists := func(p string) bool { return present[p] }

	tests := []struct {
		name        string
		changes     []git.Change
		upsert      []string
		remove      []string
		renamedFrom map[string]string
	}{
		{
			name:    "added and modified are upserted",
			changes: []git.Change{{Path: "a.ts", Type: git.Modified}, {Path: "c.ts", Type: git.Added}},
			upsert:  []string{"a.ts", "c.ts"},
		},
		{
			name:    "deleted is removed",
			changes: []git.Change{{Path: "gone.ts", Type: git.Deleted}},
			remove:  []string{"gone.ts"},
		},
		{
			name:    "out of scope is removed",
			changes: []git.Change{{Path: "vendor/x.ts", Type: git.Added}},
			remove:  []string{"vendor/x.ts"},
		},
		{
			name:    "missing from the working tree is removed",
			changes: []git.Change{{Path: "ghost.ts", Type: git.Modified}},
			remove:  []string{"ghost.ts"},
		},
		{
			name:        "rename replaces the old path in one transaction",
			changes:     []git.Change{{Path: "new/b.ts", OldPath: "old/b.ts", Type: git.Renamed}},
			upsert:      []string{"new/b.ts"},
			renamedFrom: map[string]string{"new/b.ts": "old/b.ts"},
		},
		{
			name:    "rename out of scope removes both paths",
			changes: []git.Change{{Path: "vendor/x.ts", OldPath: "x.ts", Type: git.Renamed}},
			remove:  []string{"vendor/x.ts", "x.ts"},
		},
		{
			name: "rename whose old path is re-added",
			changes: []git.Change{
				{Path: "new/b.ts", OldPath: "a.ts", Type: git.Renamed},
				{Path: "a.ts", Type: git.Added},
			},
			upsert: []string{"a.ts", "new/b.ts"},
		},
		{
			name: "delete then re-add keeps the file",
			changes: []git.Change{
				{Path: "c.ts", Type: git.Deleted},
				{Path: "c.ts", Type: git.Added},
			},
			upsert: []string{"c.ts"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := planChanges(tt.changes, accept, exists)
			assert.Equal(t, tt.upsert, cs.upsert)
			assert.Equal(t, tt.remove, cs.remove)
			if tt.renamedFrom == nil {
				assert.Empty(t, cs.renamedFrom)
			} else {
				assert.Equal(t, tt.renamedFrom, cs.renamedFrom)
			}
		})
	}
}

func TestChangeSet_Touched(t *testing.T) {
	cs := changeSet{
		upsert:      []string{"new/b.ts"},
		remove:      []string{"gone.ts"},
		renamedFrom: map[string]string{"new/b.ts": "old/b.ts"},
	}
	assert.Equal(t, map[string]bool{"new/b.ts": true, "gone.ts": true, "old/b.ts": true}, cs.touched())
}

func TestStructure(t *testing.T) {
	s := newStructure("shop")
	s.addFile("src/deep/a.ts", "typescript")
	s.addFile("src/b.ts", "typescript")
	s.addFile("main.go", "go")
	s.addFile("LICENSE", "")

	repo := graph.RepositoryID("shop")
	nodes := s.sortedNodes()
	require.NotEmpty(t, nodes)
	assert.Equal(t, repo, nodes[0].ID)

	var ids []string
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{
		repo,
		graph.LanguageID("typescript"),
		graph.LanguageID("go"),
		graph.DirectoryID("src"),
		graph.DirectoryID("src/deep"),
	}, ids)

	var keys []string
	for _, e := range s.sortedEdges() {
		keys = append(keys, e.Key())
	}
	contains := func(from, to string) string {
		return graph.Edge{From: from, Kind: graph.EdgeKindContains, To: to}.Key()
	}
	assert.ElementsMatch(t, []string{
		contains(repo, graph.LanguageID("typescript")),
		contains(repo, graph.LanguageID("go")),
		contains(repo, graph.DirectoryID("src")),
		contains(graph.DirectoryID("src"), graph.DirectoryID("src/deep")),
	}, keys)

	g := graph.NewGraph()
	for _, n := range nodes {
		require.NoError(t, g.UpsertNode(n))
	}
	for _, e := range s.sortedEdges() {
		_, err := g.AddEdge(e)
		require.NoError(t, err)
	}
	assert.NoError(t, g.CheckInvariants())
}

func TestParentID(t *testing.T) {
	repo := graph.RepositoryID("shop")
	assert.Equal(t, repo, parentID(repo, "main.go"))
	assert.Equal(t, graph.DirectoryID("src/deep"), parentID(repo, "src/deep/a.ts"))
	assert.Equal(t, []string{"src/deep", "src"}, ancestors("src/deep/a.ts"))
	assert.Empty(t, ancestors("main.go"))
}

func TestState(t *testing.T) {
	assert.Equal(t, "diffable", StateDiffable.String())
	assert.Equal(t, "unknown", State(0).String())
	assert.True(t, StateNoBaseline.Full())
	assert.True(t, StateUnreachable.Full())
	assert.False(t, StateDiffable.Full())
	assert.False(t, StateUpToDate.Full())

	raw, err := json.Marshal(Decision{
		State:       StateDiffable,
		Head:        "abc",
		Changes:     []git.Change{{Path: "a.ts", Type: git.Added}},
		ChangeCount: 1,
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"state":"diffable"`)
	assert.Contains(t, string(raw), `"changes":1`)
}

func TestFileFailure(t *testing.T) {
	err := &storage.TransactionError{Path: "a.ts", Op: "replace", Err: errInjected}
	f := FileFailure{Path: "a.ts", Err: err}
	assert.ErrorIs(t, f, errInjected)

	raw, merr := json.Marshal(f)
	require.NoError(t, merr)
	assert.Contains(t, string(raw), `"path":"a.ts"`)
	assert.Contains(t, string(raw), "injected failure")
}
