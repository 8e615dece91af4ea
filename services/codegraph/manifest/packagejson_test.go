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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageJSON_Declared(t *testing.T) {
	pkg := PackageJSON{
		Dependencies:     map[string]string{"react": "^18.2.0"},
		DevDependencies:  map[string]string{"react": "^17.0.0", "vitest": "^1.0.0"},
		PeerDependencies: map[string]string{"react-dom": "^18.0.0"},
	}
	assert.Equal(t, map[string]string{
		"react":     "^18.2.0",
		"vitest":    "^1.0.0",
		"react-dom": "^18.0.0",
	}, pkg.Declared())
}

func TestLoadDependencies(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"package.json":          `{"name": "app", "dependencies": {"express": "^4.18.0", "lodash": "4.17.21"}}`,
		"web/package.json":      `{"dependencies": {"react": "^18.2.0", "lodash": "^3.0.0"}}`,
		"broken/package.json":   `{not json`,
		"api/deep/package.json": `{"devDependencies": {"@types/node": "^20.0.0"}}`,
	})

	deps, errs := LoadDependencies(root, []string{"web/package.json", "broken/package.json", "package.json", "api/deep/package.json"})
	assert.Equal(t, map[string]string{
		"express":     "^4.18.0",
		"lodash":      "4.17.21",
		"react":       "^18.2.0",
		"@types/node": "^20.0.0",
	}, deps)
	require.Len(t, errs, 1)
	assert.Equal(t, "broken/package.json", errs[0].Path)
	assert.ErrorIs(t, errs[0], ErrInvalidManifest)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "src", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)
	assert.True(t, HasGit(got))

	plain := t.TempDir()
	got, err = FindProjectRoot(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestRepositoryName(t *testing.T) {
	assert.Equal(t, "myapp", RepositoryName("/work/myapp"))
}
