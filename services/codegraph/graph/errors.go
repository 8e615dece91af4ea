// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph defines the code graph model: node and edge kinds, the
// deterministic identity scheme, unresolved references, and an in-memory
// arena used to check graph invariants.
//
// # Identity
//
// Every id is a fingerprint of stable inputs. A File id depends only on its
// repository-relative path; a symbol id depends on (path, kind, name, span
// start). Re-extracting an unchanged file therefore reproduces identical
// ids, which is what lets incremental updates replace a file's subgraph
// without orphaning edges.
//
// # Ownership
//
// Symbol nodes are owned by the File named in Node.File. An edge is owned
// by the files of its endpoints; deleting a file deletes every edge that
// touches one of its nodes.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent modification. Node, Edge, and Reference
// are plain values and safe to share once built.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrNodeNotFound is returned when an edge references a node that is
	// not present. Both endpoints must exist before an edge is added.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidNode is returned for nodes that fail Validate.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidEdge is returned for edges that fail Validate.
	ErrInvalidEdge = errors.New("invalid edge")

	// ErrUnknownKind is returned when parsing an unrecognized kind name.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrOrphanNode is reported by CheckInvariants for nodes that are not
	// reachable from the Repository node through Contains edges.
	ErrOrphanNode = errors.New("node not reachable from repository")

	// ErrNoRepository is reported by CheckInvariants when the graph has no
	// Repository node.
	ErrNoRepository = errors.New("no repository node")
)
