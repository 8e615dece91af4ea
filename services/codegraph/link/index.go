// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package link

import (
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

// Index is the repository-wide symbol table the linker resolves against.
//
// An Index holds File nodes and the symbols they own. For a full run it is
// built from fresh extraction results; for an incremental run it is loaded
// from storage and the changed files are replaced in it.
//
// Index is NOT safe for concurrent modification.
type Index struct {
	files     map[string]graph.Node
	symbols   map[string][]graph.Node
	byID      map[string]graph.Node
	parents   map[string]string
	byName    map[string]map[string]struct{}
	endpoints map[string]string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		files:     make(map[string]graph.Node),
		symbols:   make(map[string][]graph.Node),
		byID:      make(map[string]graph.Node),
		parents:   make(map[string]string),
		byName:    make(map[string]map[string]struct{}),
		endpoints: make(map[string]string),
	}
}

// AddFile adds a file and its symbols, replacing any previous entry for
// the same path.
func (ix *Index) AddFile(file graph.Node, symbols []graph.Node) {
	ix.RemoveFile(file.File)

	sorted := append([]graph.Node(nil), symbols...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Span.Start != sorted[j].Span.Start {
			return sorted[i].Span.Start < sorted[j].Span.Start
		}
		return sorted[i].Span.End > sorted[j].Span.End
	})

	ix.files[file.File] = file
	ix.byID[file.ID] = file
	ix.symbols[file.File] = sorted

	// Enclosing scopes are the Function and Class nodes whose span contains
	// the symbol. Sorting by (start asc, end desc) lets a stack find them.
	var open []graph.Node
	for _, n := range sorted {
		for len(open) > 0 && !open[len(open)-1].Span.Contains(n.Span) {
			open = open[:len(open)-1]
		}
		if len(open) > 0 {
			ix.parents[n.ID] = open[len(open)-1].ID
		}
		if n.Kind == graph.NodeKindFunction || n.Kind == graph.NodeKindClass {
			open = append(open, n)
		}

		ix.byID[n.ID] = n
		if isNamed(n.Kind) {
			set, ok := ix.byName[n.Name]
			if !ok {
				set = make(map[string]struct{})
				ix.byName[n.Name] = set
			}
			set[n.ID] = struct{}{}
		}
		if n.Kind == graph.NodeKindEndpoint {
			ix.endpoints[n.ID] = NormalizeRoute(n.Name)
		}
	}
}

// isNamed reports whether nodes of kind are resolvable by name.
func isNamed(kind graph.NodeKind) bool {
	switch kind {
	case graph.NodeKindFunction, graph.NodeKindClass, graph.NodeKindDataModel, graph.NodeKindVar:
		return true
	}
	return false
}

// RemoveFile drops a file and its symbols.
func (ix *Index) RemoveFile(p string) {
	file, ok := ix.files[p]
	if !ok {
		return
	}
	for _, n := range ix.symbols[p] {
		delete(ix.byID, n.ID)
		delete(ix.parents, n.ID)
		delete(ix.endpoints, n.ID)
		if set, ok := ix.byName[n.Name]; ok {
			delete(set, n.ID)
			if len(set) == 0 {
				delete(ix.byName, n.Name)
			}
		}
	}
	delete(ix.byID, file.ID)
	delete(ix.symbols, p)
	delete(ix.files, p)
}

// HasFile reports whether a File node exists at p.
func (ix *Index) HasFile(p string) bool {
	_, ok := ix.files[p]
	return ok
}

// File returns the File node at p.
func (ix *Index) File(p string) (graph.Node, bool) {
	n, ok := ix.files[p]
	return n, ok
}

// Files returns every indexed path, sorted.
func (ix *Index) Files() []string {
	out := make([]string, 0, len(ix.files))
	for p := range ix.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// FileCount returns the number of indexed files.
func (ix *Index) FileCount() int { return len(ix.files) }

// Node returns a File or symbol node by id.
func (ix *Index) Node(id string) (graph.Node, bool) {
	n, ok := ix.byID[id]
	return n, ok
}

// Symbols returns the symbols of p ordered by span start.
func (ix *Index) Symbols(p string) []graph.Node {
	return ix.symbols[p]
}

// Parent returns the id of the innermost Function or Class enclosing the
// symbol, or "" for top-level symbols.
func (ix *Index) Parent(id string) string {
	return ix.parents[id]
}

// depth is the number of enclosing scopes of a symbol.
func (ix *Index) depth(id string) int {
	d := 0
	for p := ix.parents[id]; p != ""; p = ix.parents[p] {
		d++
	}
	return d
}

// Named returns every top-level or nested symbol with the given name,
// sorted by id.
func (ix *Index) Named(name string) []graph.Node {
	set := ix.byName[name]
	out := make([]graph.Node, 0, len(set))
	for id := range set {
		out = append(out, ix.byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Names returns the names of the named symbols owned by p.
func (ix *Index) Names(p string) []string {
	var out []string
	for _, n := range ix.symbols[p] {
		if isNamed(n.Kind) {
			out = append(out, n.Name)
		}
	}
	return out
}

// HasEndpoints reports whether p owns an Endpoint node.
func (ix *Index) HasEndpoints(p string) bool {
	for _, n := range ix.symbols[p] {
		if n.Kind == graph.NodeKindEndpoint {
			return true
		}
	}
	return false
}

// SymbolAt returns the smallest accepted symbol in file whose declared
// name sits on the given 0-based line.
func (ix *Index) SymbolAt(file string, line int, accept func(graph.Node) bool) (graph.Node, bool) {
	var best graph.Node
	found := false
	for _, n := range ix.symbols[graph.NormalizePath(file)] {
		if accept != nil && !accept(n) {
			continue
		}
		l, _, ok := n.Position()
		if !ok {
			l = n.StartLine() - 1
		}
		if l != line {
			continue
		}
		if !found || n.Span.Len() < best.Span.Len() {
			best, found = n, true
		}
	}
	return best, found
}

// isTestPath reports whether p looks like a test, spec, or mock file.
// Such files never satisfy a global name match.
func isTestPath(p string) bool {
	for _, seg := range strings.Split(path.Dir(p), "/") {
		switch seg {
		case "test", "tests", "__tests__", "spec", "specs", "mock", "mocks", "__mocks__", "fixtures", "__fixtures__":
			return true
		}
	}
	base := path.Base(p)
	for _, marker := range []string{".test.", ".spec.", ".mock.", ".stories."} {
		if strings.Contains(base, marker) {
			return true
		}
	}
	return false
}
