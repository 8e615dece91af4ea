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

import "sort"

// Resolution steps, recorded on every link edge under the "resolution"
// attribute and counted in Stats.
const (
	StepManifest  = "manifest"
	StepPath      = "path"
	StepBinding   = "binding"
	StepSameFile  = "same_file"
	StepSameDir   = "same_dir"
	StepGlobal    = "global"
	StepThis      = "this"
	StepNamespace = "namespace"
	StepStatic    = "static"
	StepResolver  = "resolver"
	StepHTTP      = "http"
)

// Stats counts linking outcomes. Unresolved and ambiguous references are
// statistics, never errors.
type Stats struct {
	// Refs is the number of references considered.
	Refs int `json:"refs"`

	// Resolved counts edges created per resolution step.
	Resolved map[string]int `json:"resolved"`

	// Unresolved counts references with no candidate.
	Unresolved int `json:"unresolved"`

	// Ambiguous counts references with several equally good candidates.
	Ambiguous int `json:"ambiguous"`

	// External counts references bound to a manifest package.
	External int `json:"external"`

	// Unmatched counts Request nodes with no matching Endpoint.
	Unmatched int `json:"unmatched_requests"`

	// Resolver counters.
	ResolverCalls     int `json:"resolver_calls"`
	ResolverTimeouts  int `json:"resolver_timeouts"`
	ResolverErrors    int `json:"resolver_errors"`
	ResolverOverrides int `json:"resolver_overrides"`
}

// NewStats creates zeroed stats.
func NewStats() *Stats {
	return &Stats{Resolved: make(map[string]int)}
}

func (s *Stats) resolved(step string) {
	if s.Resolved == nil {
		s.Resolved = make(map[string]int)
	}
	s.Resolved[step]++
}

// ResolvedTotal returns the number of resolved references over all steps.
func (s *Stats) ResolvedTotal() int {
	total := 0
	for _, n := range s.Resolved {
		total += n
	}
	return total
}

// Steps returns the resolution steps with a non-zero count, sorted.
func (s *Stats) Steps() []string {
	out := make([]string, 0, len(s.Resolved))
	for step, n := range s.Resolved {
		if n > 0 {
			out = append(out, step)
		}
	}
	sort.Strings(out)
	return out
}

// Merge adds other into s.
func (s *Stats) Merge(other *Stats) {
	if other == nil {
		return
	}
	s.Refs += other.Refs
	if s.Resolved == nil {
		s.Resolved = make(map[string]int)
	}
	for step, n := range other.Resolved {
		s.Resolved[step] += n
	}
	s.Unresolved += other.Unresolved
	s.Ambiguous += other.Ambiguous
	s.External += other.External
	s.Unmatched += other.Unmatched
	s.ResolverCalls += other.ResolverCalls
	s.ResolverTimeouts += other.ResolverTimeouts
	s.ResolverErrors += other.ResolverErrors
	s.ResolverOverrides += other.ResolverOverrides
}
