// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"path"
	"strings"
)

var (
	// DefaultIncludes selects the languages the extractor understands.
	DefaultIncludes = []string{
		"**/*.ts",
		"**/*.tsx",
		"**/*.js",
		"**/*.jsx",
	}

	// DefaultExcludes skips dependency trees, build output, and VCS data.
	DefaultExcludes = []string{
		"**/node_modules/**",
		"**/dist/**",
		"**/build/**",
		"**/coverage/**",
		".git/**",
	}
)

// GlobMatcher matches slash-separated relative paths against include and
// exclude patterns.
//
// Pattern syntax:
//   - * matches any run of characters within one segment
//   - ** as a whole segment matches zero or more segments
//   - ? and [abc] follow path.Match
//   - a pattern without "/" matches the base name at any depth
//
// Thread Safety: safe for concurrent use after creation.
type GlobMatcher struct {
	includes []string
	excludes []string
}

// NewGlobMatcher creates a matcher. Empty includes admit every path.
func NewGlobMatcher(includes, excludes []string) *GlobMatcher {
	return &GlobMatcher{includes: includes, excludes: excludes}
}

// Match reports whether the file at p is included and not excluded.
func (m *GlobMatcher) Match(p string) bool {
	for _, pattern := range m.excludes {
		if matchGlob(pattern, p) {
			return false
		}
	}
	if len(m.includes) == 0 {
		return true
	}
	for _, pattern := range m.includes {
		if matchGlob(pattern, p) {
			return true
		}
	}
	return false
}

// ExcludesDir reports whether everything below dir is excluded, so the
// walk can skip it.
func (m *GlobMatcher) ExcludesDir(dir string) bool {
	for _, pattern := range m.excludes {
		prefix, ok := strings.CutSuffix(pattern, "/**")
		if ok && matchGlob(prefix, dir) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, p string) bool {
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, path.Base(p))
		return ok
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(p, "/"))
}

func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	if ok, err := path.Match(pattern[0], parts[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}
