// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/codegraph/services/codegraph/config"
	"github.com/AleutianAI/codegraph/services/codegraph/query"
)

const (
	srcA = "import { g } from './b';\nexport function f() { return g(); }\n"
	srcB = "export function g() { return 1; }\n"
)

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, out)
	return out
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// plainProject writes a.ts and b.ts into a directory without git.
func plainProject(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "shop")
	writeFile(t, dir, "a.ts", srcA)
	writeFile(t, dir, "b.ts", srcB)
	return dir
}

// gitProject commits a.ts and b.ts into a fresh repository.
func gitProject(t *testing.T) (string, func(name, content string)) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "shop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	commit := func(name, content string) {
		writeFile(t, dir, name, content)
		wt, err := repo.Worktree()
		require.NoError(t, err)
		_, err = wt.Add(name)
		require.NoError(t, err)
		_, err = wt.Commit("add "+name, &gogit.CommitOptions{
			Author: &object.Signature{Name: "Test", Email: "test@test.com", When: time.Now()},
		})
		require.NoError(t, err)
	}
	commit("a.ts", srcA)
	commit("b.ts", srcB)
	return dir, commit
}

func decodeJSON[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestIngestAndQuery_WithoutGit(t *testing.T) {
	dir := plainProject(t)
	base := []string{"--project", dir, "--git", "none"}
	args := func(extra ...string) []string { return append(append([]string{}, extra...), base...) }

	out := mustExecute(t, args("ingest", "--json")...)
	summary := decodeJSON[map[string]any](t, out)
	assert.EqualValues(t, 2, summary["files_processed"])
	assert.Equal(t, false, summary["baseline_advanced"])
	assert.Equal(t, "no_baseline", summary["decision"].(map[string]any)["state"])

	symbols := decodeJSON[query.Symbols](t, mustExecute(t, args("find", "symbol", "F", "--kind", "Function", "--json")...))
	require.Equal(t, 1, symbols.Count)
	f := symbols.Nodes[0]
	assert.Equal(t, "a.ts", f.File)

	callers := decodeJSON[query.Neighbors](t, mustExecute(t, args("find", "callers", "g", "--json")...))
	require.Equal(t, 1, callers.Count)
	assert.Equal(t, f.ID, callers.Neighbors[0].Node.ID)

	callees := mustExecute(t, args("find", "callees", f.ID)...)
	assert.Contains(t, callees, "CALLS")
	assert.Contains(t, callees, "1 result(s)")

	stats := decodeJSON[query.Stats](t, mustExecute(t, args("stats", "--json")...))
	assert.Equal(t, "badger", stats.Backend)
	assert.Equal(t, 2, stats.Files)
	assert.Empty(t, stats.Revision)

	node := mustExecute(t, args("node", f.ID)...)
	assert.Contains(t, node, "Function f")
	assert.Contains(t, node, "location: a.ts:2")

	assert.DirExists(t, filepath.Join(dir, config.DataDir, "graph"))
}

func TestIngest_SQLiteBackend(t *testing.T) {
	dir := plainProject(t)
	base := []string{"--project", dir, "--git", "none", "--backend", "sqlite"}

	mustExecute(t, append([]string{"ingest"}, base...)...)
	out := mustExecute(t, append([]string{"stats"}, base...)...)
	assert.Contains(t, out, "Backend:  sqlite")
	assert.Contains(t, out, "Files:    2")
	assert.FileExists(t, filepath.Join(dir, config.DataDir, "graph.sqlite"))
}

func TestIngest_GitBaseline(t *testing.T) {
	dir, commit := gitProject(t)

	out := mustExecute(t, "status", "--project", dir)
	assert.Contains(t, out, "State:    no_baseline")

	summary := decodeJSON[map[string]any](t, mustExecute(t, "ingest", "--project", dir, "--json"))
	assert.Equal(t, true, summary["baseline_advanced"])

	status := decodeJSON[map[string]any](t, mustExecute(t, "status", "--project", dir, "--json"))
	assert.Equal(t, "up_to_date", status["state"])

	commit("c.ts", "export function h() { return 2; }\n")
	out = mustExecute(t, "status", "--project", dir)
	assert.Contains(t, out, "State:    diffable")
	assert.Contains(t, out, "added")
	assert.Contains(t, out, "c.ts")

	ingestArgs := []string{"ingest", "--project", dir, "--json"}
	if _, err := exec.LookPath("git"); err == nil {
		ingestArgs = append(ingestArgs, "--git", "cli")
	}
	summary = decodeJSON[map[string]any](t, mustExecute(t, ingestArgs...))
	assert.Equal(t, "diffable", summary["decision"].(map[string]any)["state"])
	assert.EqualValues(t, 1, summary["files_processed"])

	stats := decodeJSON[query.Stats](t, mustExecute(t, "stats", "--project", dir, "--json"))
	assert.Equal(t, 3, stats.Files)
	assert.NotEmpty(t, stats.Revision)
}

func TestIngest_Clean(t *testing.T) {
	dir, _ := gitProject(t)
	mustExecute(t, "ingest", "--project", dir)

	summary := decodeJSON[map[string]any](t, mustExecute(t, "ingest", "--project", dir, "--clean", "--json"))
	assert.Equal(t, "no_baseline", summary["decision"].(map[string]any)["state"])
	assert.EqualValues(t, 2, summary["files_processed"])
}

func TestFind_Errors(t *testing.T) {
	dir := plainProject(t)
	base := []string{"--project", dir, "--git", "none"}
	mustExecute(t, append([]string{"ingest"}, base...)...)

	out := mustExecute(t, append([]string{"find", "symbol", "nothing*"}, base...)...)
	assert.Contains(t, out, `No symbols match "nothing*"`)

	_, err := execute(t, append([]string{"find", "callers", "nobody"}, base...)...)
	assert.ErrorIs(t, err, query.ErrNotFound)

	_, err = execute(t, append([]string{"find", "symbol", "x", "--kind", "Widget"}, base...)...)
	assert.ErrorIs(t, err, query.ErrInvalidArgument)

	_, err = execute(t, append([]string{"find", "callers"}, base...)...)
	assert.Error(t, err)
}

func TestLoadConfig_Flags(t *testing.T) {
	dir := plainProject(t)

	var got *config.Config
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			got, err = loadConfig(cmd, opts)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.project, "project", "", "")
	cmd.Flags().StringVar(&opts.db, "db", "", "")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "")

	cmd.SetArgs([]string{"--project", dir, "--backend", "sqlite", "--workers", "3", "--log-level", "debug"})
	require.NoError(t, cmd.Execute())
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, abs, got.Project)
	assert.Equal(t, "sqlite", got.Storage.Backend)
	assert.Equal(t, 3, got.Ingest.Workers)
	assert.Equal(t, "debug", got.Log.Level)
	assert.Equal(t, filepath.Join(abs, config.DataDir, "graph.sqlite"), got.DatabasePath())

	cmd.SetArgs([]string{"--project", dir, "--backend", "postgres"})
	assert.ErrorIs(t, cmd.Execute(), config.ErrInvalidConfig)
}

func TestRemoveStore(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Project = dir

	// Nothing to remove.
	require.NoError(t, removeStore(cfg))

	// A directory that is not a badger database is left alone.
	cfg.Storage.Path = filepath.Join(dir, "precious")
	writeFile(t, cfg.Storage.Path, "notes.txt", "keep")
	assert.Error(t, removeStore(cfg))
	assert.FileExists(t, filepath.Join(cfg.Storage.Path, "notes.txt"))

	cfg.Storage.Backend = "sqlite"
	cfg.Storage.Path = filepath.Join(dir, "graph.sqlite")
	writeFile(t, dir, "graph.sqlite", "db")
	writeFile(t, dir, "graph.sqlite-wal", "wal")
	require.NoError(t, removeStore(cfg))
	assert.NoFileExists(t, cfg.Storage.Path)
	assert.NoFileExists(t, cfg.Storage.Path+"-wal")
}

func TestMCPReadOnlyOnClosedInput(t *testing.T) {
	dir := plainProject(t)
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetIn(bytes.NewReader(nil))
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"mcp", "--read-only", "--project", dir, "--git", "none"})
	err := cmd.Execute()
	assert.True(t, err == nil || errors.Is(err, io.EOF), "unexpected error: %v", err)
	assert.Empty(t, stdout.String())
}
