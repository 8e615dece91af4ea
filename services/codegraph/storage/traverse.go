// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

// Neighbor is a node reached over one edge.
type Neighbor struct {
	// Node is the node at the far end of Edge.
	Node graph.Node `json:"node"`

	// Edge is the traversed edge.
	Edge graph.Edge `json:"edge"`

	// Target is the node the traversal started from.
	Target graph.Node `json:"target"`
}

// Targets resolves an id or a name to nodes.
//
// Description:
//
//	An existing node id selects that node. Anything else is treated as
//	a name and expands to every Function, Class, or Endpoint with that
//	exact name.
func Targets(ctx context.Context, r Reader, idOrName string) ([]graph.Node, error) {
	n, ok, err := r.Node(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if ok {
		return []graph.Node{n}, nil
	}
	nodes, err := r.FindNodes(ctx, Query{
		Kinds: []graph.NodeKind{graph.NodeKindFunction, graph.NodeKindClass, graph.NodeKindEndpoint},
	})
	if err != nil {
		return nil, err
	}
	out := nodes[:0]
	for _, n := range nodes {
		if n.Name == idOrName {
			out = append(out, n)
		}
	}
	return out, nil
}

// Callers returns the nodes with a Calls edge into the target.
//
// Inputs:
//
//	ctx - Cancellation.
//	r - The store to read.
//	idOrName - A node id or a symbol name; see Targets.
//	limit - Caps the result. Zero or negative means no limit.
//
// Outputs:
//
//	[]Neighbor - Callers sorted by target, then caller name and id.
//	error - Non-nil on storage failure.
func Callers(ctx context.Context, r Reader, idOrName string, limit int) ([]Neighbor, error) {
	return traverse(ctx, r, idOrName, limit, true)
}

// Callees returns the nodes the target reaches over a Calls edge.
func Callees(ctx context.Context, r Reader, idOrName string, limit int) ([]Neighbor, error) {
	return traverse(ctx, r, idOrName, limit, false)
}

func traverse(ctx context.Context, r Reader, idOrName string, limit int, incoming bool) ([]Neighbor, error) {
	targets, err := Targets(ctx, r, idOrName)
	if err != nil {
		return nil, err
	}
	var out []Neighbor
	for _, target := range targets {
		var edges []graph.Edge
		if incoming {
			edges, err = r.Incoming(ctx, target.ID, graph.EdgeKindCalls)
		} else {
			edges, err = r.Outgoing(ctx, target.ID, graph.EdgeKindCalls)
		}
		if err != nil {
			return nil, fmt.Errorf("traverse %s: %w", target.ID, err)
		}
		for _, e := range edges {
			other := e.To
			if incoming {
				other = e.From
			}
			n, ok, err := r.Node(ctx, other)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			out = append(out, Neighbor{Node: n, Edge: e, Target: target})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Target.ID != out[j].Target.ID {
			return out[i].Target.ID < out[j].Target.ID
		}
		if out[i].Node.Name != out[j].Node.Name {
			return out[i].Node.Name < out[j].Node.Name
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
