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
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AleutianAI/codegraph/services/codegraph/ingest"
	"github.com/AleutianAI/codegraph/services/codegraph/query"
)

// JSON-RPC error codes.
const (
	ErrorCodeInvalidParams = -32602
	ErrorCodeInternalError = -32603
	ErrorCodeCancelled     = -32800
)

// MCPError is a JSON-RPC error returned from a tool handler.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string) *MCPError {
	return &MCPError{Code: code, Message: message}
}

func (s *Server) handleFindSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	kinds, err := getStringSlice(args, "kinds")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error())
	}
	res, err := s.svc.FindSymbols(ctx, query.SymbolParams{
		Pattern: getStringDefault(args, "pattern", ""),
		Kinds:   kinds,
		File:    getStringDefault(args, "file", ""),
		Limit:   getIntDefault(args, "limit", query.DefaultLimit),
	})
	if err != nil {
		return s.toolError("find_symbols", err)
	}
	return jsonResult(res)
}

func (s *Server) handleGetNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := getStringDefault(arguments(request), "id", "")
	if id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required")
	}
	res, err := s.svc.Node(ctx, id)
	if err != nil {
		return s.toolError("get_node", err)
	}
	return jsonResult(res)
}

func (s *Server) handleFindCallers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleNeighbors(ctx, request, "find_callers", s.svc.Callers)
}

func (s *Server) handleFindCallees(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleNeighbors(ctx, request, "find_callees", s.svc.Callees)
}

func (s *Server) handleNeighbors(ctx context.Context, request mcp.CallToolRequest, tool string, walk func(context.Context, string, int) (*query.Neighbors, error)) (*mcp.CallToolResult, error) {
	args := arguments(request)
	target := getStringDefault(args, "target", "")
	if target == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "target parameter is required")
	}
	res, err := walk(ctx, target, getIntDefault(args, "limit", query.DefaultLimit))
	if err != nil {
		return s.toolError(tool, err)
	}
	return jsonResult(res)
}

func (s *Server) handleGraphStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Stats(ctx)
	if err != nil {
		return s.toolError("graph_stats", err)
	}
	return jsonResult(res)
}

func (s *Server) handleIngestStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decision, err := s.ingester.Status(ctx, false)
	if err != nil {
		return s.toolError("ingest_status", err)
	}
	return jsonResult(decision)
}

func (s *Server) handleIngest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	force := getBoolDefault(arguments(request), "force", false)
	start := time.Now()
	summary, err := s.ingester.Run(ctx, ingest.RunOptions{Force: force})
	if err != nil {
		return s.toolError("ingest", err)
	}
	s.logger.Info("ingestion via mcp",
		slog.String("run_id", summary.RunID),
		slog.Bool("force", force),
		slog.Int("files_processed", summary.FilesProcessed),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return jsonResult(summary)
}

// toolError maps err to the protocol. Missing nodes are reported to the
// caller as a tool result so the agent can adjust its query; everything
// else is a JSON-RPC error.
func (s *Server) toolError(tool string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, query.ErrNotFound):
		return mcp.NewToolResultError(err.Error()), nil
	case errors.Is(err, query.ErrInvalidArgument):
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, newMCPError(ErrorCodeCancelled, err.Error())
	default:
		s.logger.Error("tool failed", slog.String("tool", tool), slog.String("error", err.Error()))
		return nil, newMCPError(ErrorCodeInternalError, fmt.Sprintf("%s failed: %v", tool, err))
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	text, err := formatJSON(v)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, fmt.Sprintf("failed to format response: %v", err))
	}
	return mcp.NewToolResultText(text), nil
}

func formatJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

func getStringDefault(args map[string]interface{}, key, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getIntDefault accepts JSON numbers, which decode as float64.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	switch val := args[key].(type) {
	case float64:
		return int(val)
	case int:
		return val
	default:
		return defaultValue
	}
}

func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getStringSlice accepts an array of strings or a single comma-separated
// string.
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	switch val := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must contain only strings", key)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
}
