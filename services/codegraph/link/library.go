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
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

// SourceExternal marks Library nodes that come from the dependency manifest.
const SourceExternal = "external"

// AttrMinVersion holds the lowest version satisfying a Library's declared
// range, when the range parses as semver.
const AttrMinVersion = "min_version"

// Manifest maps external package names to their declared versions.
type Manifest map[string]string

// Package returns the manifest package a module specifier refers to, and
// whether it is listed. "@scope/pkg/sub" resolves to "@scope/pkg" and
// "pkg/sub" to "pkg".
func (m Manifest) Package(specifier string) (string, bool) {
	name := PackageName(specifier)
	if name == "" {
		return "", false
	}
	_, ok := m[name]
	return name, ok
}

// PackageName returns the package part of a bare module specifier, or ""
// for relative and absolute specifiers.
func PackageName(specifier string) string {
	if specifier == "" || isRelative(specifier) || strings.HasPrefix(specifier, "/") {
		return ""
	}
	parts := strings.Split(specifier, "/")
	if strings.HasPrefix(specifier, "@") {
		if len(parts) < 2 {
			return ""
		}
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// LibraryNode builds the Library node for a manifest package.
//
// The node id depends only on the package name, so upserting it from
// every importing file yields one node.
func LibraryNode(name, version string) graph.Node {
	attrs := map[string]string{
		graph.AttrSource:  SourceExternal,
		graph.AttrVersion: version,
	}
	if min, ok := minVersion(version); ok {
		attrs[AttrMinVersion] = min
	}
	return graph.Node{
		ID:         graph.LibraryID(name),
		Kind:       graph.NodeKindLibrary,
		Name:       name,
		Attributes: attrs,
	}
}

// minVersion returns the lower bound of a simple npm range such as
// "^1.2.3", "~2.0", or ">=3".
func minVersion(declared string) (string, bool) {
	declared = strings.TrimSpace(declared)
	if declared == "" || strings.ContainsAny(declared, " |") {
		return "", false
	}
	if _, err := semver.NewConstraint(declared); err != nil {
		return "", false
	}
	v, err := semver.NewVersion(strings.TrimLeft(declared, "^~>=v"))
	if err != nil {
		return "", false
	}
	return v.String(), true
}
