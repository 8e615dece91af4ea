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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PackageJSON is the subset of package.json the linker needs.
type PackageJSON struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

// LoadPackageJSON reads and decodes the package.json at p.
func LoadPackageJSON(p string) (*PackageJSON, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, p, err)
	}
	return &pkg, nil
}

// Declared returns every declared dependency. Runtime dependencies win
// over peer, optional, and dev declarations of the same package.
func (p *PackageJSON) Declared() map[string]string {
	out := make(map[string]string)
	for _, group := range []map[string]string{p.Dependencies, p.PeerDependencies, p.OptionalDependencies, p.DevDependencies} {
		for name, version := range group {
			if _, ok := out[name]; !ok {
				out[name] = version
			}
		}
	}
	return out
}

// LoadDependencies merges the dependencies of the package.json files at
// the given root-relative paths.
//
// Description:
//
//	Shallower manifests win, so the root package.json decides the version
//	of a package declared in several workspaces. Unreadable manifests are
//	reported and skipped.
//
// Outputs:
//
//	map[string]string - Package name to declared version range.
//	[]ScanError - One per manifest that could not be read.
func LoadDependencies(root string, packages []string) (map[string]string, []ScanError) {
	ordered := append([]string(nil), packages...)
	sort.Slice(ordered, func(i, j int) bool {
		di, dj := strings.Count(ordered[i], "/"), strings.Count(ordered[j], "/")
		if di != dj {
			return di < dj
		}
		return ordered[i] < ordered[j]
	})

	deps := make(map[string]string)
	var errs []ScanError
	for _, rel := range ordered {
		pkg, err := LoadPackageJSON(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			errs = append(errs, ScanError{Path: rel, Err: err})
			continue
		}
		for name, version := range pkg.Declared() {
			if _, ok := deps[name]; !ok {
				deps[name] = version
			}
		}
	}
	return deps, errs
}
