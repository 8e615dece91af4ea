// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/codegraph/services/codegraph/git"
	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/link"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
)

// changeSet is a diff reduced to storage work.
type changeSet struct {
	// upsert are paths to re-extract, sorted.
	upsert []string

	// renamedFrom maps an upserted path to the old path its transaction
	// deletes.
	renamedFrom map[string]string

	// remove are paths to delete, sorted.
	remove []string
}

// planChanges classifies a diff. accept decides whether a path is in
// scope; exists whether it is present in the working tree. A path that is
// added or modified but out of scope or missing is removed instead.
func planChanges(changes []git.Change, accept, exists func(string) bool) changeSet {
	upsert := make(map[string]bool)
	remove := make(map[string]bool)
	renamed := make(map[string]string)

	for _, c := range changes {
		p := graph.NormalizePath(c.Path)
		switch c.Type {
		case git.Deleted:
			remove[p] = true
		case git.Renamed:
			old := graph.NormalizePath(c.OldPath)
			if accept(p) && exists(p) {
				upsert[p] = true
				renamed[p] = old
			} else {
				remove[old] = true
				remove[p] = true
			}
		default:
			if accept(p) && exists(p) {
				upsert[p] = true
			} else {
				remove[p] = true
			}
		}
	}

	cs := changeSet{renamedFrom: make(map[string]string)}
	for p, old := range renamed {
		// An old path that is itself re-added is replaced by its own
		// transaction.
		if !upsert[old] {
			cs.renamedFrom[p] = old
		}
	}
	for p := range upsert {
		cs.upsert = append(cs.upsert, p)
		delete(remove, p)
	}
	for p := range remove {
		cs.remove = append(cs.remove, p)
	}
	sort.Strings(cs.upsert)
	sort.Strings(cs.remove)
	return cs
}

// touched returns every path whose stored state the change set replaces.
func (cs changeSet) touched() map[string]bool {
	out := make(map[string]bool, len(cs.upsert)+len(cs.remove))
	for _, p := range cs.upsert {
		out[p] = true
	}
	for _, p := range cs.remove {
		out[p] = true
	}
	for _, old := range cs.renamedFrom {
		out[old] = true
	}
	return out
}

// incremental applies a classified diff.
//
// Description:
//
//	Builds the symbol index from the stored unchanged files merged with the
//	re-extracted changed files. Unchanged files are relinked when a link
//	edge of theirs pointed into a touched file, when one of their
//	references names a symbol a touched file declared before or declares
//	now, or, for files issuing requests, when a touched file's endpoints
//	changed.
func (e *Engine) incremental(ctx context.Context, logger *slog.Logger, d Decision, s *Summary) error {
	ctx, span := tracer.Start(ctx, "Engine.incremental")
	defer span.End()

	filter, err := e.scanner.NewFilter(e.root)
	if err != nil {
		return fmt.Errorf("load scope: %w", err)
	}
	cs := planChanges(d.Changes, filter.Accept, e.exists)

	deps, err := e.loadDependencies(ctx)
	if err != nil {
		return err
	}

	stored, err := e.store.Files(ctx)
	if err != nil {
		return fmt.Errorf("list stored files: %w", err)
	}
	storedSet := make(map[string]bool, len(stored))
	for _, p := range stored {
		storedSet[p] = true
	}
	var remove []string
	for _, p := range cs.remove {
		if storedSet[p] {
			remove = append(remove, p)
		}
	}
	s.FilesDiscovered = len(cs.upsert) + len(remove)
	span.SetAttributes(
		attribute.Int("ingest.upsert", len(cs.upsert)),
		attribute.Int("ingest.remove", len(remove)),
	)

	touched := cs.touched()
	ix := link.NewIndex()
	names := make(map[string]bool)
	endpointsChanged := false
	var previous []graph.Node
	for _, p := range stored {
		nodes, err := e.store.FileNodes(ctx, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if len(nodes) == 0 {
			continue
		}
		if touched[p] {
			previous = append(previous, nodes...)
			endpointsChanged = collectNames(nodes[1:], names) || endpointsChanged
			continue
		}
		ix.AddFile(nodes[0], nodes[1:])
	}

	relink := make(map[string]bool)
	for _, n := range previous {
		in, err := e.store.Incoming(ctx, n.ID, graph.EdgeKindUnknown)
		if err != nil {
			return fmt.Errorf("read incoming edges: %w", err)
		}
		for _, edge := range in {
			if !storage.IsLinkEdge(edge) {
				continue
			}
			if src, ok := ix.Node(edge.From); ok && src.File != "" {
				relink[src.File] = true
			}
		}
	}

	extractions, err := e.extractAll(ctx, cs.upsert)
	if err != nil {
		return err
	}
	for _, x := range extractions {
		if x.result != nil {
			endpointsChanged = collectNames(x.result.Nodes, names) || endpointsChanged
		}
	}

	refs := make(map[string][]graph.Reference)
	for _, p := range ix.Files() {
		fileRefs, err := e.store.Refs(ctx, p)
		if err != nil {
			return fmt.Errorf("read references of %s: %w", p, err)
		}
		refs[p] = fileRefs
		if relink[p] {
			continue
		}
		if link.Affected(fileRefs, names, touched) || endpointsChanged && issuesRequests(ix.Symbols(p)) {
			relink[p] = true
		}
	}

	if err := e.writeStructure(ctx, extractions, ""); err != nil {
		return err
	}
	if err := e.deleteFiles(ctx, remove, s); err != nil {
		return err
	}
	processed, err := e.writeFiles(ctx, extractions, cs.renamedFrom, ix, refs, s)
	if err != nil {
		return err
	}

	unchanged := make([]string, 0, len(relink))
	for p := range relink {
		unchanged = append(unchanged, p)
	}
	sort.Strings(unchanged)
	logger.Debug("relinking unchanged files", slog.Int("files", len(unchanged)))

	linker := e.newLinker(logger, deps)
	if _, err := e.linkFiles(ctx, linker, ix, processed, refs, s); err != nil {
		return err
	}
	relinked, err := e.linkFiles(ctx, linker, ix, unchanged, refs, s)
	if err != nil {
		return err
	}
	s.FilesRelinked = relinked
	return e.prune(ctx, ix, s)
}

// collectNames adds the resolvable names among nodes to names and reports
// whether any node is an Endpoint.
func collectNames(nodes []graph.Node, names map[string]bool) bool {
	endpoints := false
	for _, n := range nodes {
		switch n.Kind {
		case graph.NodeKindFunction, graph.NodeKindClass, graph.NodeKindDataModel, graph.NodeKindVar:
			names[n.Name] = true
		case graph.NodeKindEndpoint:
			endpoints = true
		}
	}
	return endpoints
}

func issuesRequests(nodes []graph.Node) bool {
	for _, n := range nodes {
		if n.Kind == graph.NodeKindRequest {
			return true
		}
	}
	return false
}
