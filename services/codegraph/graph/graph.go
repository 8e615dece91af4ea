// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
	"sort"
)

// maxReportedOrphans bounds the orphan errors joined by CheckInvariants.
const maxReportedOrphans = 20

// Graph is an arena of nodes keyed by id with edges stored as id triples.
//
// Graph is used to materialize a committed store for invariant checks and
// fixed-point comparisons, and by tests as a reference model.
type Graph struct {
	nodes  map[string]Node
	edges  map[string]Edge
	byFile map[string]map[string]struct{}
	out    map[string]map[string]struct{}
	in     map[string]map[string]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:  make(map[string]Node),
		edges:  make(map[string]Edge),
		byFile: make(map[string]map[string]struct{}),
		out:    make(map[string]map[string]struct{}),
		in:     make(map[string]map[string]struct{}),
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// UpsertNode inserts n or replaces the node with the same id.
func (g *Graph) UpsertNode(n Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if old, ok := g.nodes[n.ID]; ok && old.File != n.File {
		delete(g.byFile[old.File], n.ID)
	}
	g.nodes[n.ID] = n
	if n.File != "" {
		set, ok := g.byFile[n.File]
		if !ok {
			set = make(map[string]struct{})
			g.byFile[n.File] = set
		}
		set[n.ID] = struct{}{}
	}
	return nil
}

// AddEdge inserts e if no edge with the same (From, Kind, To) exists.
//
// Description:
//
//	Both endpoints must already be present. Re-inserting an existing
//	triple is a no-op and reports inserted=false.
//
// Outputs:
//
//	bool - True when a new edge was stored.
//	error - ErrNodeNotFound or ErrInvalidEdge.
func (g *Graph) AddEdge(e Edge) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}
	if _, ok := g.nodes[e.From]; !ok {
		return false, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, e.From)
	}
	if _, ok := g.nodes[e.To]; !ok {
		return false, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, e.To)
	}
	key := e.Key()
	if _, ok := g.edges[key]; ok {
		return false, nil
	}
	g.edges[key] = e
	addIndex(g.out, e.From, key)
	addIndex(g.in, e.To, key)
	return true, nil
}

func addIndex(index map[string]map[string]struct{}, id, key string) {
	set, ok := index[id]
	if !ok {
		set = make(map[string]struct{})
		index[id] = set
	}
	set[key] = struct{}{}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// RemoveFile deletes every node owned by path and every edge touching one
// of those nodes. It returns the number of nodes and edges removed.
func (g *Graph) RemoveFile(path string) (int, int) {
	owned := g.byFile[path]
	if len(owned) == 0 {
		return 0, 0
	}
	edges := 0
	for id := range owned {
		edges += g.removeNode(id)
	}
	delete(g.byFile, path)
	return len(owned), edges
}

// removeNode deletes a node and its incident edges, returning the edge count.
func (g *Graph) removeNode(id string) int {
	removed := 0
	for key := range g.out[id] {
		removed += g.removeEdge(key)
	}
	for key := range g.in[id] {
		removed += g.removeEdge(key)
	}
	delete(g.out, id)
	delete(g.in, id)
	delete(g.nodes, id)
	return removed
}

func (g *Graph) removeEdge(key string) int {
	e, ok := g.edges[key]
	if !ok {
		return 0
	}
	delete(g.edges, key)
	delete(g.out[e.From], key)
	delete(g.in[e.To], key)
	return 1
}

// Nodes returns all nodes sorted by id.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns all edges sorted by key.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// NodesByFile returns the nodes owned by path sorted by span start.
func (g *Graph) NodesByFile(path string) []Node {
	out := make([]Node, 0, len(g.byFile[path]))
	for id := range g.byFile[path] {
		out = append(out, g.nodes[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Span.Start != out[j].Span.Start {
			return out[i].Span.Start < out[j].Span.Start
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Outgoing returns edges leaving id, optionally filtered by kind.
// Pass EdgeKindUnknown to return every kind.
func (g *Graph) Outgoing(id string, kind EdgeKind) []Edge {
	return g.collect(g.out[id], kind)
}

// Incoming returns edges entering id, optionally filtered by kind.
// Pass EdgeKindUnknown to return every kind.
func (g *Graph) Incoming(id string, kind EdgeKind) []Edge {
	return g.collect(g.in[id], kind)
}

func (g *Graph) collect(keys map[string]struct{}, kind EdgeKind) []Edge {
	out := make([]Edge, 0, len(keys))
	for key := range keys {
		e := g.edges[key]
		if kind == EdgeKindUnknown || e.Kind == kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// CountNodesByKind returns node counts indexed by kind.
func (g *Graph) CountNodesByKind() map[NodeKind]int {
	counts := make(map[NodeKind]int)
	for _, n := range g.nodes {
		counts[n.Kind]++
	}
	return counts
}

// CountEdgesByKind returns edge counts indexed by kind.
func (g *Graph) CountEdgesByKind() map[EdgeKind]int {
	counts := make(map[EdgeKind]int)
	for _, e := range g.edges {
		counts[e.Kind]++
	}
	return counts
}

// FileSubgraph returns the sorted node ids owned by the given files and the
// sorted keys of edges whose source is one of those nodes.
//
// Two graphs agree on a set of files exactly when their FileSubgraph
// results for those files are equal.
func (g *Graph) FileSubgraph(paths ...string) ([]string, []string) {
	var ids []string
	owned := make(map[string]struct{})
	for _, p := range paths {
		for id := range g.byFile[p] {
			owned[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	var keys []string
	for id := range owned {
		for key := range g.out[id] {
			keys = append(keys, key)
		}
	}
	sort.Strings(ids)
	sort.Strings(keys)
	return ids, keys
}

// CheckInvariants verifies the structural invariants of a committed graph.
//
// Description:
//
//	Checks that a Repository node exists, that every edge references
//	existing nodes, and that every other node is reachable from the
//	Repository through Contains edges. Violations are joined into one
//	error; nil means the graph is consistent.
func (g *Graph) CheckInvariants() error {
	var errs []error
	var roots []string
	for id, n := range g.nodes {
		if n.Kind == NodeKindRepository {
			roots = append(roots, id)
		}
	}
	if len(roots) == 0 && len(g.nodes) > 0 {
		return ErrNoRepository
	}

	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			errs = append(errs, fmt.Errorf("%w: edge %s source", ErrNodeNotFound, e.Key()))
		}
		if _, ok := g.nodes[e.To]; !ok {
			errs = append(errs, fmt.Errorf("%w: edge %s target", ErrNodeNotFound, e.Key()))
		}
	}

	seen := make(map[string]bool, len(g.nodes))
	stack := append([]string(nil), roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for key := range g.out[id] {
			if e := g.edges[key]; e.Kind == EdgeKindContains && !seen[e.To] {
				stack = append(stack, e.To)
			}
		}
	}

	orphans := 0
	for _, n := range g.Nodes() {
		if seen[n.ID] {
			continue
		}
		orphans++
		if orphans <= maxReportedOrphans {
			errs = append(errs, fmt.Errorf("%w: %s %q in %q", ErrOrphanNode, n.Kind, n.Name, n.File))
		}
	}
	if orphans > maxReportedOrphans {
		errs = append(errs, fmt.Errorf("%w: %d more", ErrOrphanNode, orphans-maxReportedOrphans))
	}
	return errors.Join(errs...)
}
