// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/ingest"
	"github.com/AleutianAI/codegraph/services/codegraph/query"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printSummary(w io.Writer, s *ingest.Summary, asJSON bool) error {
	if asJSON {
		return printJSON(w, s)
	}
	d := s.Decision
	fmt.Fprintf(w, "Run %s: %s", s.RunID, d.State)
	if d.Head != "" {
		fmt.Fprintf(w, " at %s", short(d.Head))
	}
	fmt.Fprintln(w)
	if d.Reason != "" {
		fmt.Fprintf(w, "  reason:     %s\n", d.Reason)
	}
	fmt.Fprintf(w, "  files:      %d discovered, %d processed, %d deleted, %d relinked\n",
		s.FilesDiscovered, s.FilesProcessed, s.FilesDeleted, s.FilesRelinked)
	fmt.Fprintf(w, "  nodes:      %d created, %d updated\n", s.NodesCreated, s.NodesUpdated)
	fmt.Fprintf(w, "  edges:      %d written\n", s.EdgesWritten)
	fmt.Fprintf(w, "  deleted:    %d nodes, %d edges\n", s.Deleted.Nodes, s.Deleted.Edges)
	if s.Link != nil {
		fmt.Fprintf(w, "  links:      %d resolved, %d unresolved, %d ambiguous, %d external\n",
			s.Link.ResolvedTotal(), s.Link.Unresolved, s.Link.Ambiguous, s.Link.External)
		if s.Link.ResolverCalls > 0 {
			fmt.Fprintf(w, "  resolver:   %d calls, %d timeouts, %d errors\n",
				s.Link.ResolverCalls, s.Link.ResolverTimeouts, s.Link.ResolverErrors)
		}
	}
	fmt.Fprintf(w, "  baseline:   %t\n", s.BaselineAdvanced)
	fmt.Fprintf(w, "  duration:   %s\n", s.Duration.Round(time.Millisecond))
	for _, f := range s.ParseErrors {
		fmt.Fprintf(w, "  parse error %s\n", f.Error())
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  FAILED      %s\n", f.Error())
	}
	for _, e := range s.ScanErrors {
		fmt.Fprintf(w, "  scan error  %s\n", e.Error())
	}
	return nil
}

func printDecision(w io.Writer, d ingest.Decision, asJSON bool) error {
	if asJSON {
		return printJSON(w, d)
	}
	fmt.Fprintf(w, "State:    %s\n", d.State)
	if d.Baseline != "" {
		fmt.Fprintf(w, "Baseline: %s\n", short(d.Baseline))
	}
	if d.Head != "" {
		fmt.Fprintf(w, "Head:     %s\n", short(d.Head))
	}
	if d.Reason != "" {
		fmt.Fprintf(w, "Reason:   %s\n", d.Reason)
	}
	if len(d.Changes) > 0 {
		fmt.Fprintf(w, "Changes:  %d\n", d.ChangeCount)
		for _, c := range d.Changes {
			if c.OldPath != "" && c.OldPath != c.Path {
				fmt.Fprintf(w, "  %-9s %s -> %s\n", c.Type, c.OldPath, c.Path)
			} else {
				fmt.Fprintf(w, "  %-9s %s\n", c.Type, c.Path)
			}
		}
	}
	return nil
}

func printSymbols(w io.Writer, res *query.Symbols, asJSON bool) error {
	if asJSON {
		return printJSON(w, res)
	}
	if res.Count == 0 {
		fmt.Fprintf(w, "No symbols match %q\n", res.Pattern)
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "KIND\tNAME\tLOCATION\tID")
	for _, n := range res.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Kind, n.Name, location(n), n.ID)
	}
	return tw.Flush()
}

func printNeighbors(w io.Writer, res *query.Neighbors, asJSON bool) error {
	if asJSON {
		return printJSON(w, res)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TARGET\tEDGE\tKIND\tNAME\tLOCATION")
	for _, nb := range res.Neighbors {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			nb.Target.Name, nb.Edge.Kind, nb.Node.Kind, nb.Node.Name, location(nb.Node))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d result(s)\n", res.Count)
	return nil
}

func printNode(w io.Writer, res *query.NodeDetail, asJSON bool) error {
	if asJSON {
		return printJSON(w, res)
	}
	n := res.Node
	fmt.Fprintf(w, "%s %s\n", n.Kind, n.Name)
	fmt.Fprintf(w, "  id:       %s\n", n.ID)
	if loc := location(n); loc != "" {
		fmt.Fprintf(w, "  location: %s\n", loc)
	}
	keys := make([]string, 0, len(n.Attributes))
	for k := range n.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, n.Attributes[k])
	}
	for _, e := range res.Outgoing {
		fmt.Fprintf(w, "  -> %s %s\n", e.Kind, e.To)
	}
	for _, e := range res.Incoming {
		fmt.Fprintf(w, "  <- %s %s\n", e.Kind, e.From)
	}
	return nil
}

func printStats(w io.Writer, res *query.Stats, asJSON bool) error {
	if asJSON {
		return printJSON(w, res)
	}
	fmt.Fprintf(w, "Backend:  %s\n", res.Backend)
	if res.Revision != "" {
		fmt.Fprintf(w, "Revision: %s (format %d)\n", short(res.Revision), res.FormatVersion)
	}
	fmt.Fprintf(w, "Files:    %d\n", res.Files)
	fmt.Fprintf(w, "Nodes:    %d\n", res.TotalNodes)
	fmt.Fprintf(w, "Edges:    %d\n", res.TotalEdges)

	tw := newTable(w)
	for _, line := range sortedCounts(res.Counts.Nodes) {
		fmt.Fprintf(tw, "  node\t%s\t%d\n", line.name, line.count)
	}
	for _, line := range sortedCounts(res.Counts.Edges) {
		fmt.Fprintf(tw, "  edge\t%s\t%d\n", line.name, line.count)
	}
	return tw.Flush()
}

type countLine struct {
	name  string
	count int
}

type kindKey interface {
	comparable
	fmt.Stringer
}

func sortedCounts[K kindKey](m map[K]int) []countLine {
	lines := make([]countLine, 0, len(m))
	for k, v := range m {
		lines = append(lines, countLine{name: k.String(), count: v})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].name < lines[j].name })
	return lines
}

// location renders file:line for nodes that carry a start line.
func location(n graph.Node) string {
	if n.File == "" {
		return ""
	}
	if line := n.Attributes[graph.AttrStartLine]; line != "" {
		return n.File + ":" + line
	}
	return n.File
}

func short(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
