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
	"path"
	"sort"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

// structure collects the Repository, Language, and Directory nodes that
// hold a set of files together, with their Contains edges.
type structure struct {
	repo  graph.Node
	nodes map[string]graph.Node
	edges map[string]graph.Edge
}

func newStructure(repoName string) *structure {
	s := &structure{
		repo: graph.Node{
			ID:   graph.RepositoryID(repoName),
			Kind: graph.NodeKindRepository,
			Name: repoName,
		},
		nodes: make(map[string]graph.Node),
		edges: make(map[string]graph.Edge),
	}
	s.nodes[s.repo.ID] = s.repo
	return s
}

// addFile records the directory chain of p and the Language node of its
// language, if any.
func (s *structure) addFile(p, language string) {
	if language != "" {
		lang := graph.Node{ID: graph.LanguageID(language), Kind: graph.NodeKindLanguage, Name: language}
		s.nodes[lang.ID] = lang
		s.contain(s.repo.ID, lang.ID)
	}

	child := ""
	for dir := path.Dir(p); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		id := graph.DirectoryID(dir)
		if child != "" {
			s.contain(id, child)
		}
		if _, ok := s.nodes[id]; ok {
			return
		}
		s.nodes[id] = graph.Node{ID: id, Kind: graph.NodeKindDirectory, Name: dir}
		child = id
	}
	if child != "" {
		s.contain(s.repo.ID, child)
	}
}

func (s *structure) contain(from, to string) {
	e := graph.Edge{From: from, Kind: graph.EdgeKindContains, To: to}
	s.edges[e.Key()] = e
}

// sortedNodes returns the nodes with the Repository first and directories
// before their children.
func (s *structure) sortedNodes() []graph.Node {
	out := make([]graph.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *structure) sortedEdges() []graph.Edge {
	out := make([]graph.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// parentID returns the id of the node that contains the File at p.
func parentID(repoID, p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" || dir == "" {
		return repoID
	}
	return graph.DirectoryID(dir)
}

// ancestors returns every directory on the path to p.
func ancestors(p string) []string {
	var out []string
	for dir := path.Dir(p); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		out = append(out, dir)
	}
	return out
}

// fileContains returns the Contains edge that hangs a File off its parent.
func fileContains(repoID string, file graph.Node) graph.Edge {
	return graph.Edge{From: parentID(repoID, file.File), Kind: graph.EdgeKindContains, To: file.ID}
}

// libraryContains returns the Contains edges that hang Library nodes off
// the Repository.
func libraryContains(repoID string, libs []graph.Node) []graph.Edge {
	out := make([]graph.Edge, 0, len(libs))
	for _, lib := range libs {
		out = append(out, graph.Edge{From: repoID, Kind: graph.EdgeKindContains, To: lib.ID})
	}
	return out
}
