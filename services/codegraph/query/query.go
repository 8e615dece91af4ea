// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query is the read side of a committed graph, shared by the CLI,
// the HTTP API, and the MCP server.
//
// Every method reads committed state only. Limits are clamped to
// MaxLimit, and an unset limit means DefaultLimit.
package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
)

const (
	// DefaultLimit applies when a request sets no limit.
	DefaultLimit = 50

	// MaxLimit caps every result.
	MaxLimit = 1000
)

var (
	// ErrNotFound is returned when a node or symbol does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for malformed parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)

var tracer = otel.Tracer("codegraph.query")

// Service answers graph queries.
//
// Thread Safety: Safe for concurrent use when the Reader is.
type Service struct {
	reader  storage.Reader
	backend string
}

// New creates a Service over r. backend names the store in Stats.
func New(r storage.Reader, backend string) *Service {
	return &Service{reader: r, backend: backend}
}

// SymbolParams selects nodes by name.
type SymbolParams struct {
	// Pattern is a case-insensitive name pattern; * and % are wildcards.
	Pattern string

	// Kinds are kind names, e.g. "Function". Empty means every kind.
	Kinds []string

	// File restricts results to one file.
	File string

	// Limit caps the result; see DefaultLimit.
	Limit int
}

// Symbols is a symbol search result.
type Symbols struct {
	Pattern string       `json:"pattern"`
	Nodes   []graph.Node `json:"nodes"`
	Count   int          `json:"count"`
}

// FindSymbols returns nodes matching p, sorted by name, file, then id.
func (s *Service) FindSymbols(ctx context.Context, p SymbolParams) (*Symbols, error) {
	ctx, span := tracer.Start(ctx, "Service.FindSymbols", trace.WithAttributes(
		attribute.String("query.pattern", p.Pattern),
	))
	defer span.End()

	kinds, err := ParseKinds(p.Kinds)
	if err != nil {
		return nil, err
	}
	nodes, err := s.reader.FindNodes(ctx, storage.Query{
		Pattern: p.Pattern,
		Kinds:   kinds,
		File:    graph.NormalizePath(p.File),
		Limit:   clamp(p.Limit),
	})
	if err != nil {
		return nil, fmt.Errorf("find symbols: %w", err)
	}
	if nodes == nil {
		nodes = []graph.Node{}
	}
	span.SetAttributes(attribute.Int("query.results", len(nodes)))
	return &Symbols{Pattern: p.Pattern, Nodes: nodes, Count: len(nodes)}, nil
}

// NodeDetail is one node with its edges.
type NodeDetail struct {
	Node     graph.Node   `json:"node"`
	Outgoing []graph.Edge `json:"outgoing"`
	Incoming []graph.Edge `json:"incoming"`
}

// Node returns the node with id and every edge touching it.
func (s *Service) Node(ctx context.Context, id string) (*NodeDetail, error) {
	ctx, span := tracer.Start(ctx, "Service.Node")
	defer span.End()

	n, ok, err := s.reader.Node(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read node: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: node %q", ErrNotFound, id)
	}
	out, err := s.reader.Outgoing(ctx, id, graph.EdgeKindUnknown)
	if err != nil {
		return nil, fmt.Errorf("read outgoing edges: %w", err)
	}
	in, err := s.reader.Incoming(ctx, id, graph.EdgeKindUnknown)
	if err != nil {
		return nil, fmt.Errorf("read incoming edges: %w", err)
	}
	return &NodeDetail{Node: n, Outgoing: nonNil(out), Incoming: nonNil(in)}, nil
}

// Neighbors is a caller or callee traversal result.
type Neighbors struct {
	Target    string             `json:"target"`
	Neighbors []storage.Neighbor `json:"neighbors"`
	Count     int                `json:"count"`
}

// Callers returns what calls target, an id or a symbol name.
func (s *Service) Callers(ctx context.Context, target string, limit int) (*Neighbors, error) {
	return s.neighbors(ctx, "Service.Callers", target, limit, storage.Callers)
}

// Callees returns what target, an id or a symbol name, calls.
func (s *Service) Callees(ctx context.Context, target string, limit int) (*Neighbors, error) {
	return s.neighbors(ctx, "Service.Callees", target, limit, storage.Callees)
}

type traversal func(context.Context, storage.Reader, string, int) ([]storage.Neighbor, error)

func (s *Service) neighbors(ctx context.Context, name, target string, limit int, walk traversal) (*Neighbors, error) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attribute.String("query.target", target)))
	defer span.End()

	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("%w: target is required", ErrInvalidArgument)
	}
	targets, err := storage.Targets(ctx, s.reader, target)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: symbol %q", ErrNotFound, target)
	}
	found, err := walk(ctx, s.reader, target, clamp(limit))
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []storage.Neighbor{}
	}
	span.SetAttributes(attribute.Int("query.results", len(found)))
	return &Neighbors{Target: target, Neighbors: found, Count: len(found)}, nil
}

// Stats summarizes the stored graph.
type Stats struct {
	Backend       string         `json:"backend"`
	Revision      string         `json:"revision,omitempty"`
	FormatVersion int            `json:"format_version,omitempty"`
	Files         int            `json:"files"`
	TotalNodes    int            `json:"total_nodes"`
	TotalEdges    int            `json:"total_edges"`
	Counts        storage.Counts `json:"counts"`
}

// Stats returns node and edge counts by kind plus the stored baseline.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "Service.Stats")
	defer span.End()

	counts, err := s.reader.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count graph: %w", err)
	}
	files, err := s.reader.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	rev, _, err := s.reader.Metadata(ctx, storage.MetaLastRevision)
	if err != nil {
		return nil, fmt.Errorf("read revision: %w", err)
	}
	raw, _, err := s.reader.Metadata(ctx, storage.MetaFormatVersion)
	if err != nil {
		return nil, fmt.Errorf("read format version: %w", err)
	}
	version, _ := strconv.Atoi(raw)

	return &Stats{
		Backend:       s.backend,
		Revision:      rev,
		FormatVersion: version,
		Files:         len(files),
		TotalNodes:    counts.TotalNodes(),
		TotalEdges:    counts.TotalEdges(),
		Counts:        counts,
	}, nil
}

// ParseKinds converts kind names, accepting comma-separated lists.
func ParseKinds(names []string) ([]graph.NodeKind, error) {
	var out []graph.NodeKind
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			k, err := graph.ParseNodeKind(part)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
			}
			out = append(out, k)
		}
	}
	return out, nil
}

func clamp(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func nonNil(edges []graph.Edge) []graph.Edge {
	if edges == nil {
		return []graph.Edge{}
	}
	return edges
}
