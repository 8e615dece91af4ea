// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcp exposes the code graph as Model Context Protocol tools over
// stdio.
//
// Tools:
//
//	find_symbols   - nodes by name pattern, kind, and file
//	get_node       - one node with its edges
//	find_callers   - callers of a symbol
//	find_callees   - callees of a symbol
//	graph_stats    - counts by kind and the stored baseline
//	ingest_status  - the state the next ingestion would take
//	ingest         - run ingestion
//
// The ingestion tools are registered only when an Ingester is supplied.
package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/AleutianAI/codegraph/services/codegraph/ingest"
	"github.com/AleutianAI/codegraph/services/codegraph/query"
)

const (
	// ServerName is the MCP server name.
	ServerName = "codegraph"

	// ServerVersion is the advertised server version.
	ServerVersion = "0.1.0"
)

// Ingester runs and inspects ingestion. *ingest.Engine implements it.
type Ingester interface {
	Status(ctx context.Context, force bool) (ingest.Decision, error)
	Run(ctx context.Context, opts ingest.RunOptions) (*ingest.Summary, error)
}

// Server wraps the MCP server with the query service.
type Server struct {
	mcp      *server.MCPServer
	svc      *query.Service
	ingester Ingester
	logger   *slog.Logger
}

// NewServer creates a server over svc. ingester may be nil.
func NewServer(svc *query.Service, ingester Ingester, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		svc:      svc,
		ingester: ingester,
		logger:   logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(findSymbolsTool(), s.handleFindSymbols)
	s.mcp.AddTool(getNodeTool(), s.handleGetNode)
	s.mcp.AddTool(findCallersTool(), s.handleFindCallers)
	s.mcp.AddTool(findCalleesTool(), s.handleFindCallees)
	s.mcp.AddTool(graphStatsTool(), s.handleGraphStats)
	if s.ingester != nil {
		s.mcp.AddTool(ingestStatusTool(), s.handleIngestStatus)
		s.mcp.AddTool(ingestTool(), s.handleIngest)
	}
}

// Serve answers requests on in and out until ctx is done or in closes.
// Logs go to the server's logger, never to out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server listening on stdio")
	return stdio.Listen(ctx, in, out)
}
