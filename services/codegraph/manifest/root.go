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
)

// FindProjectRoot returns the nearest ancestor of start, start included,
// that contains .git. Without one, the absolute form of start is returned.
func FindProjectRoot(start string) (string, error) {
	abs, err := validateRoot(start)
	if err != nil {
		return "", err
	}
	for dir := abs; ; {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

// HasGit reports whether root itself contains .git.
func HasGit(root string) bool {
	_, err := os.Stat(filepath.Join(root, ".git"))
	return err == nil
}

// RepositoryName is the name given to the Repository node of root.
func RepositoryName(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(root)
	}
	if name := filepath.Base(abs); name != string(filepath.Separator) && name != "." {
		return name
	}
	return "repository"
}
