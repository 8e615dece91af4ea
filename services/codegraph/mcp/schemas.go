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
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AleutianAI/codegraph/services/codegraph/query"
)

var kindNames = []string{
	"Repository", "Language", "Directory", "File", "Import", "Library",
	"Function", "Class", "DataModel", "Var", "Endpoint", "Request", "Page",
}

func limitProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of results",
		"default":     query.DefaultLimit,
		"minimum":     1,
		"maximum":     query.MaxLimit,
	}
}

func targetProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Node id, or a symbol name matching every Function, Class, or Endpoint with that name",
	}
}

func findSymbolsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_symbols",
		Description: "Find graph nodes by case-insensitive name pattern (* and % are wildcards)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Name pattern, e.g. 'create*'. Empty matches everything",
				},
				"kinds": map[string]interface{}{
					"type":        "array",
					"description": "Restrict to these node kinds",
					"items": map[string]interface{}{
						"type": "string",
						"enum": kindNames,
					},
				},
				"file": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to nodes owned by this repository-relative file",
				},
				"limit": limitProperty(),
			},
		},
	}
}

func getNodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_node",
		Description: "Get one node by id with its incoming and outgoing edges",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Node id, e.g. 'sym:…' or 'file:…'",
				},
			},
			Required: []string{"id"},
		},
	}
}

func findCallersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_callers",
		Description: "List the functions and requests that call a symbol",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"target": targetProperty(),
				"limit":  limitProperty(),
			},
			Required: []string{"target"},
		},
	}
}

func findCalleesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_callees",
		Description: "List the symbols and endpoints a symbol calls",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"target": targetProperty(),
				"limit":  limitProperty(),
			},
			Required: []string{"target"},
		},
	}
}

func graphStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "graph_stats",
		Description: "Node and edge counts by kind, plus the last ingested revision",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func ingestStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_status",
		Description: "Report whether the graph is up to date with HEAD and what the next ingestion would do, without writing",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func ingestTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest",
		Description: "Bring the graph up to date with HEAD, incrementally when possible",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Rebuild every file from scratch",
					"default":     false,
				},
			},
		},
	}
}
