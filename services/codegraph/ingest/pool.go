// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/codegraph/services/codegraph/extract"
)

// extraction is the outcome of reading and extracting one file.
type extraction struct {
	path   string
	result *extract.Result
	err    error
}

// extractAll reads and extracts paths with at most workers files in
// flight. The pool lives for one call.
//
// Results come back in the order of paths. A read failure is reported on
// its extraction and never stops the others; only cancellation returns an
// error.
func (e *Engine) extractAll(ctx context.Context, paths []string) ([]extraction, error) {
	out := make([]extraction, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, p := range paths {
		g.Go(func() error {
			out[i].path = p
			src, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(p)))
			if err != nil {
				out[i].err = fmt.Errorf("read: %w", err)
				return nil
			}
			res, err := e.extractor.Extract(gctx, p, src)
			if err != nil {
				return err
			}
			out[i].result = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
