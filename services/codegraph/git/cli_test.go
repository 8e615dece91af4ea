// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePatch = `diff --git a/src/change.ts b/src/change.ts
index 3b18e51..6d0e38a 100644
--- a/src/change.ts
+++ b/src/change.ts
@@ -1 +1 @@
-export const v = 1;
+export const v = 2;
diff --git a/src/gone.ts b/src/gone.ts
deleted file mode 100644
index 1f5c1a2..0000000
--- a/src/gone.ts
+++ /dev/null
@@ -1 +0,0 @@
-export const gone = 1;
diff --git a/src/new.ts b/src/new.ts
new file mode 100644
index 0000000..a4b2c3d
--- /dev/null
+++ b/src/new.ts
@@ -0,0 +1 @@
+export const fresh = 1;
diff --git a/src/old.ts b/lib/moved.ts
similarity index 100%
rename from src/old.ts
rename to lib/moved.ts
diff --git a/src/edited.ts b/src/renamed.ts
similarity index 80%
rename from src/edited.ts
rename to src/renamed.ts
index 1111111..2222222 100644
--- a/src/edited.ts
+++ b/src/renamed.ts
@@ -1,2 +1,2 @@
 export const a = 1;
-export const b = 2;
+export const b = 3;
`

func TestParseDiff(t *testing.T) {
	changes, err := parseDiff([]byte(samplePatch))
	require.NoError(t, err)
	assert.Equal(t, []Change{
		{Path: "lib/moved.ts", Type: Renamed, OldPath: "src/old.ts"},
		{Path: "src/change.ts", Type: Modified},
		{Path: "src/gone.ts", Type: Deleted},
		{Path: "src/new.ts", Type: Added},
		{Path: "src/renamed.ts", Type: Renamed, OldPath: "src/edited.ts"},
	}, changes)
}

func TestParseDiff_Empty(t *testing.T) {
	changes, err := parseDiff([]byte("\n"))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestGitLinePaths(t *testing.T) {
	tests := []struct {
		in, from, to string
	}{
		{"a/x.ts b/x.ts", "x.ts", "x.ts"},
		{"a/src/a.ts b/lib/b.ts", "src/a.ts", "lib/b.ts"},
		{"x.ts y.ts", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			from, to := gitLinePaths(tt.in)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}
