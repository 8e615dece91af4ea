// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
	"github.com/AleutianAI/codegraph/services/codegraph/storage/storagetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTemp(t)
	})
}

func TestMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "graph.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	v, err := schemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v.String())

	file := graph.Node{ID: graph.FileID("a.ts"), Kind: graph.NodeKindFile, Name: "a.ts", File: "a.ts"}
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertNode(file))
	require.NoError(t, tx.Commit())
	require.NoError(t, s.Close())

	// Reopening applies nothing new and keeps the data.
	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	var rows int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&rows))
	assert.Equal(t, len(migrations), rows)

	_, ok, err := s.Node(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLinkColumn(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	defer s.Close()

	a := graph.Node{ID: graph.FileID("a.ts"), Kind: graph.NodeKindFile, Name: "a.ts", File: "a.ts"}
	b := graph.Node{ID: graph.FileID("b.ts"), Kind: graph.NodeKindFile, Name: "b.ts", File: "b.ts"}
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertNode(a))
	require.NoError(t, tx.UpsertNode(b))
	_, err = tx.PutEdges([]graph.Edge{{
		From: a.ID, Kind: graph.EdgeKindImports, To: b.ID,
		Attributes: map[string]string{graph.AttrResolution: "path"},
	}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var link int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT link FROM edges WHERE from_id = ?", a.ID).Scan(&link))
	assert.Equal(t, 1, link)
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"foo", "foo"},
		{"*Handler", "%Handler"},
		{"get%", "get%"},
		{"snake_case", `snake\_case`},
		{`a\b`, `a\\b`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, likePattern(tt.in))
		})
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)
}

func TestClosedStore(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Begin(context.Background())
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, err = s.Files(context.Background())
	assert.ErrorIs(t, err, storage.ErrClosed)
}
