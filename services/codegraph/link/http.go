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
	"sort"
	"strings"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

// WildcardSegment replaces path parameters in normalized routes.
const WildcardSegment = "*"

// NormalizeRoute reduces a route path or request URL to a comparable form.
//
// Description:
//
//	Drops the scheme and host of absolute URLs, a leading template base
//	such as `${API_URL}`, the query string, and the fragment. Every path
//	parameter segment becomes WildcardSegment: Express `:id`, OpenAPI
//	`{id}`, file-route `[id]`, and any segment holding a template
//	substitution. Empty segments collapse.
//
// Examples:
//
//	NormalizeRoute("/person/:id")                     // "/person/*"
//	NormalizeRoute("`${base}/person/${id}?full=1`")  // "/person/*"
//	NormalizeRoute("https://api.example.com/person/") // "/person"
func NormalizeRoute(raw string) string {
	s := strings.Trim(strings.TrimSpace(raw), "`")

	if i := strings.Index(s, "://"); i >= 0 {
		rest := s[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			s = rest[j:]
		} else {
			s = "/"
		}
	}
	if strings.HasPrefix(s, "${") {
		if end := strings.IndexByte(s, '}'); end >= 0 && end+1 < len(s) && s[end+1] == '/' {
			s = s[end+1:]
		}
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 && !insideTemplate(s, i) {
		s = s[:i]
	}

	segments := strings.Split(s, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if isParamSegment(seg) {
			seg = WildcardSegment
		}
		out = append(out, seg)
	}
	return "/" + strings.Join(out, "/")
}

// insideTemplate reports whether byte i of s falls inside a `${...}`
// substitution.
func insideTemplate(s string, i int) bool {
	open := strings.LastIndex(s[:i], "${")
	if open < 0 {
		return false
	}
	return !strings.Contains(s[open:i], "}")
}

func isParamSegment(seg string) bool {
	switch {
	case seg == WildcardSegment:
		return true
	case strings.HasPrefix(seg, ":"):
		return true
	case strings.Contains(seg, "${"):
		return true
	case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
		return true
	case strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]"):
		return true
	}
	return false
}

// verbMatches reports whether a request verb is served by an endpoint verb.
func verbMatches(requestVerb, endpointVerb string) bool {
	return strings.EqualFold(requestVerb, endpointVerb) || strings.EqualFold(endpointVerb, "ALL")
}

// linkRequests links every Request owned by p to each Endpoint with the
// same verb and normalized path. Several matches all get an edge.
func (l *Linker) linkRequests(ix *Index, p string, stats *Stats) []graph.Edge {
	endpointIDs := make([]string, 0, len(ix.endpoints))
	for id := range ix.endpoints {
		endpointIDs = append(endpointIDs, id)
	}
	sort.Strings(endpointIDs)

	var edges []graph.Edge
	for _, req := range ix.Symbols(p) {
		if req.Kind != graph.NodeKindRequest {
			continue
		}
		url := req.Attr(graph.AttrURL)
		if url == "" {
			url = req.Name
		}
		target := NormalizeRoute(url)
		matched := false
		for _, id := range endpointIDs {
			if ix.endpoints[id] != target {
				continue
			}
			endpoint := ix.byID[id]
			if !verbMatches(req.Attr(graph.AttrVerb), endpoint.Attr(graph.AttrVerb)) {
				continue
			}
			edges = append(edges, linkEdge(req.ID, graph.EdgeKindCalls, id, StepHTTP))
			matched = true
		}
		if matched {
			stats.resolved(StepHTTP)
		} else {
			stats.Unmatched++
		}
	}
	return edges
}
