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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
	"github.com/AleutianAI/codegraph/services/codegraph/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := Open(InMemoryConfig())
		require.NoError(t, err)
		return s
	})
}

// TestPersistence verifies committed state survives a reopen.
func TestPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := DefaultConfig(dir)
	cfg.SyncWrites = false
	s, err := Open(cfg)
	require.NoError(t, err)

	file := graph.Node{ID: graph.FileID("a.ts"), Kind: graph.NodeKindFile, Name: "a.ts", File: "a.ts"}
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertNode(file))
	require.NoError(t, tx.SetMetadata(storage.MetaLastRevision, "abc123"))
	require.NoError(t, tx.Commit())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Node(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	rev, _, err := s.Metadata(ctx, storage.MetaLastRevision)
	require.NoError(t, err)
	assert.Equal(t, "abc123", rev)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestClosedStore(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Begin(context.Background())
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, _, err = s.Node(context.Background(), "x")
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig("/tmp/db")
	assert.Equal(t, "/tmp/db", cfg.Path)
	assert.True(t, cfg.SyncWrites)
	assert.Equal(t, 5*time.Minute, cfg.GCInterval)
	assert.Equal(t, 0.5, cfg.GCDiscardRatio)

	mem := InMemoryConfig()
	assert.True(t, mem.InMemory)
	assert.Zero(t, mem.GCInterval)
}

func TestGCRunnerValidation(t *testing.T) {
	_, err := newGCRunner(nil, 0, 0.5, nil)
	assert.Error(t, err)
	_, err = newGCRunner(nil, time.Minute, 1.5, nil)
	assert.Error(t, err)
}
