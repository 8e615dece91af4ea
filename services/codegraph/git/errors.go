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

import "errors"

var (
	// ErrRevisionUnreachable indicates a revision that cannot be resolved
	// to a commit. The ingestion engine falls back to a full rebuild.
	ErrRevisionUnreachable = errors.New("revision unreachable")

	// ErrNotRepository indicates a directory outside any git repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrNoHead indicates a repository without commits.
	ErrNoHead = errors.New("repository has no HEAD commit")
)
