// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strconv"
	"strings"
)

// idHexLen is the number of hex characters kept from the sha256 digest.
const idHexLen = 32

// fingerprint hashes parts separated by NUL bytes and prefixes the kind tag.
func fingerprint(tag string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return tag + ":" + hex.EncodeToString(h.Sum(nil))[:idHexLen]
}

// FileID returns the id of the File node at path.
//
// The id depends only on the normalized path.
func FileID(p string) string {
	return fingerprint("file", NormalizePath(p))
}

// SymbolID returns the id of a symbol declared in file p.
//
// Description:
//
//	The id is a fingerprint of (path, kind, name, span start). Two
//	declarations with the same name in one file get distinct ids because
//	their spans differ; the same declaration re-extracted from unchanged
//	text gets the same id.
//
// Inputs:
//
//	p - Repository-relative file path.
//	kind - Node kind of the symbol.
//	name - Declared name.
//	start - Byte offset where the declaration starts.
//
// Outputs:
//
//	string - Stable id of the form "sym:<32 hex>".
func SymbolID(p string, kind NodeKind, name string, start uint32) string {
	return fingerprint("sym", NormalizePath(p), kind.String(), name, strconv.FormatUint(uint64(start), 10))
}

// RepositoryID returns the id of the Repository node with the given name.
func RepositoryID(name string) string {
	return fingerprint("repo", name)
}

// LanguageID returns the id of the Language node with the given name.
func LanguageID(name string) string {
	return fingerprint("lang", name)
}

// DirectoryID returns the id of the Directory node at path.
func DirectoryID(p string) string {
	return fingerprint("dir", NormalizePath(p))
}

// LibraryID returns the id of the Library node for an external package.
func LibraryID(name string) string {
	return fingerprint("lib", name)
}

// NormalizePath converts p to the canonical repository-relative form:
// slash separated, cleaned, without a leading "./" or "/".
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}
