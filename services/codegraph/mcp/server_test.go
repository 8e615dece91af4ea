// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/ingest"
	"github.com/AleutianAI/codegraph/services/codegraph/query"
	"github.com/AleutianAI/codegraph/services/codegraph/storage/badger"
)

type fakeIngester struct {
	decision ingest.Decision
	summary  *ingest.Summary
	err      error
	forced   bool
}

func (f *fakeIngester) Status(context.Context, bool) (ingest.Decision, error) {
	return f.decision, f.err
}

func (f *fakeIngester) Run(_ context.Context, opts ingest.RunOptions) (*ingest.Summary, error) {
	f.forced = opts.Force
	return f.summary, f.err
}

// newTestServer seeds f in a.ts calling g in b.ts.
func newTestServer(t *testing.T, ing Ingester) (*Server, graph.Node, graph.Node) {
	t.Helper()
	s, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	a := graph.Node{ID: graph.FileID("a.ts"), Kind: graph.NodeKindFile, Name: "a.ts", File: "a.ts"}
	b := graph.Node{ID: graph.FileID("b.ts"), Kind: graph.NodeKindFile, Name: "b.ts", File: "b.ts"}
	f := graph.Node{ID: graph.SymbolID("a.ts", graph.NodeKindFunction, "f", 0), Kind: graph.NodeKindFunction, Name: "f", File: "a.ts"}
	g := graph.Node{ID: graph.SymbolID("b.ts", graph.NodeKindFunction, "g", 0), Kind: graph.NodeKindFunction, Name: "g", File: "b.ts"}

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	for _, n := range []graph.Node{a, b, f, g} {
		require.NoError(t, tx.UpsertNode(n))
	}
	_, err = tx.PutEdges([]graph.Edge{
		{From: a.ID, Kind: graph.EdgeKindContains, To: f.ID},
		{From: b.ID, Kind: graph.EdgeKindContains, To: g.ID},
		{From: f.ID, Kind: graph.EdgeKindCalls, To: g.ID},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	return NewServer(query.New(s, s.Backend()), ing, nil), f, g
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func decodeResult[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &v))
	return v
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func TestFindSymbols(t *testing.T) {
	s, f, _ := newTestServer(t, nil)
	ctx := context.Background()

	res, err := s.handleFindSymbols(ctx, call(map[string]interface{}{
		"pattern": "F",
		"kinds":   []interface{}{"function"},
		"limit":   float64(10),
	}))
	require.NoError(t, err)
	got := decodeResult[query.Symbols](t, res)
	require.Equal(t, 1, got.Count)
	assert.Equal(t, f.ID, got.Nodes[0].ID)

	res, err = s.handleFindSymbols(ctx, call(map[string]interface{}{"kinds": "Function,File"}))
	require.NoError(t, err)
	assert.Equal(t, 4, decodeResult[query.Symbols](t, res).Count)

	_, err = s.handleFindSymbols(ctx, call(map[string]interface{}{"kinds": []interface{}{"Widget"}}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleFindSymbols(ctx, call(map[string]interface{}{"kinds": float64(3)}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestGetNode(t *testing.T) {
	s, f, g := newTestServer(t, nil)
	ctx := context.Background()

	res, err := s.handleGetNode(ctx, call(map[string]interface{}{"id": f.ID}))
	require.NoError(t, err)
	got := decodeResult[query.NodeDetail](t, res)
	assert.Equal(t, "f", got.Node.Name)
	require.Len(t, got.Outgoing, 1)
	assert.Equal(t, g.ID, got.Outgoing[0].To)

	res, err = s.handleGetNode(ctx, call(map[string]interface{}{"id": "sym:missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	_, err = s.handleGetNode(ctx, call(nil))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestFindCallersAndCallees(t *testing.T) {
	s, f, g := newTestServer(t, nil)
	ctx := context.Background()

	res, err := s.handleFindCallers(ctx, call(map[string]interface{}{"target": "g"}))
	require.NoError(t, err)
	callers := decodeResult[query.Neighbors](t, res)
	require.Equal(t, 1, callers.Count)
	assert.Equal(t, f.ID, callers.Neighbors[0].Node.ID)

	res, err = s.handleFindCallees(ctx, call(map[string]interface{}{"target": f.ID}))
	require.NoError(t, err)
	callees := decodeResult[query.Neighbors](t, res)
	require.Equal(t, 1, callees.Count)
	assert.Equal(t, g.ID, callees.Neighbors[0].Node.ID)

	res, err = s.handleFindCallers(ctx, call(map[string]interface{}{"target": "nobody"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	_, err = s.handleFindCallees(ctx, call(map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestGraphStats(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	res, err := s.handleGraphStats(context.Background(), call(nil))
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "badger", got["backend"])
	assert.EqualValues(t, 4, got["total_nodes"])
	assert.EqualValues(t, 3, got["total_edges"])
}

func TestIngestTools(t *testing.T) {
	ing := &fakeIngester{
		decision: ingest.Decision{State: ingest.StateUpToDate, Head: "abc"},
		summary:  &ingest.Summary{RunID: "run-7", FilesProcessed: 3},
	}
	s, _, _ := newTestServer(t, ing)
	ctx := context.Background()

	res, err := s.handleIngestStatus(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"state": "up_to_date"`)

	res, err = s.handleIngest(ctx, call(map[string]interface{}{"force": true}))
	require.NoError(t, err)
	assert.True(t, ing.forced)
	assert.Contains(t, resultText(t, res), "run-7")

	ing.err = errors.New("disk full")
	_, err = s.handleIngest(ctx, call(nil))
	requireCode(t, err, ErrorCodeInternalError)
	assert.False(t, ing.forced)

	ing.err = context.Canceled
	_, err = s.handleIngestStatus(ctx, call(nil))
	requireCode(t, err, ErrorCodeCancelled)
}

func TestRegisteredTools(t *testing.T) {
	list := func(s *Server) string {
		resp := s.mcp.HandleMessage(context.Background(),
			json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
		data, err := json.Marshal(resp)
		require.NoError(t, err)
		return string(data)
	}

	readOnly, _, _ := newTestServer(t, nil)
	out := list(readOnly)
	for _, name := range []string{"find_symbols", "get_node", "find_callers", "find_callees", "graph_stats"} {
		assert.Contains(t, out, `"`+name+`"`)
	}
	assert.NotContains(t, out, `"ingest_status"`)

	full, _, _ := newTestServer(t, &fakeIngester{})
	out = list(full)
	assert.Contains(t, out, `"ingest_status"`)
	assert.Contains(t, out, `"ingest"`)
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{"n": float64(7), "i": 3, "s": "x", "b": true}

	assert.Equal(t, 7, getIntDefault(args, "n", 1))
	assert.Equal(t, 3, getIntDefault(args, "i", 1))
	assert.Equal(t, 1, getIntDefault(args, "s", 1))
	assert.Equal(t, "x", getStringDefault(args, "s", "d"))
	assert.Equal(t, "d", getStringDefault(args, "n", "d"))
	assert.True(t, getBoolDefault(args, "b", false))
	assert.False(t, getBoolDefault(args, "missing", false))
	assert.Empty(t, arguments(mcp.CallToolRequest{}))
}
