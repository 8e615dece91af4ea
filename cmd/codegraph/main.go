// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command codegraph builds and queries a persistent code graph of a
// TypeScript/JavaScript repository.
//
// Usage:
//
//	codegraph ingest                  # full or incremental, decided from HEAD
//	codegraph ingest --force          # rebuild every file
//	codegraph status                  # what the next ingest would do
//	codegraph find symbol 'create*'   # nodes by name pattern
//	codegraph find callers saveUser   # who calls saveUser
//	codegraph stats                   # counts by kind
//	codegraph watch                   # re-ingest whenever HEAD moves
//	codegraph serve --addr :8088      # HTTP read API and /metrics
//	codegraph mcp                     # MCP tools on stdio
//
// Configuration is read from --config (YAML), then CODEGRAPH_* environment
// variables, then flags.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
