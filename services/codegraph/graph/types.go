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
	"fmt"
	"strconv"
	"strings"
)

// NodeKind is the closed set of node roles in the code graph.
type NodeKind int

const (
	// NodeKindUnknown indicates an unrecognized node kind.
	NodeKindUnknown NodeKind = iota

	// NodeKindRepository is the single root of the Contains tree.
	NodeKindRepository

	// NodeKindLanguage is a source language seen in the repository.
	NodeKindLanguage

	// NodeKindDirectory is a directory on the path to a source file.
	NodeKindDirectory

	// NodeKindFile is a source file. Its id depends only on its path.
	NodeKindFile

	// NodeKindImport holds the concatenated import statements of one file.
	NodeKindImport

	// NodeKindLibrary is an external package from the dependency manifest.
	NodeKindLibrary

	// NodeKindFunction is a function, method, or function-valued binding.
	NodeKindFunction

	// NodeKindClass is a class declaration.
	NodeKindClass

	// NodeKindDataModel is an interface, type alias, or enum.
	NodeKindDataModel

	// NodeKindVar is a top-level variable that is not function-valued.
	NodeKindVar

	// NodeKindEndpoint is a server route registration.
	NodeKindEndpoint

	// NodeKindRequest is an outbound HTTP call.
	NodeKindRequest

	// NodeKindPage is a declarative route-to-component element.
	NodeKindPage

	// NumNodeKinds is the number of node kinds (for array sizing).
	NumNodeKinds
)

var nodeKindNames = [NumNodeKinds]string{
	NodeKindUnknown:    "Unknown",
	NodeKindRepository: "Repository",
	NodeKindLanguage:   "Language",
	NodeKindDirectory:  "Directory",
	NodeKindFile:       "File",
	NodeKindImport:     "Import",
	NodeKindLibrary:    "Library",
	NodeKindFunction:   "Function",
	NodeKindClass:      "Class",
	NodeKindDataModel:  "DataModel",
	NodeKindVar:        "Var",
	NodeKindEndpoint:   "Endpoint",
	NodeKindRequest:    "Request",
	NodeKindPage:       "Page",
}

// String returns the kind's canonical name, e.g. "Function".
func (k NodeKind) String() string {
	if k < 0 || k >= NumNodeKinds {
		return "Unknown"
	}
	return nodeKindNames[k]
}

// ParseNodeKind converts a case-insensitive kind name to a NodeKind.
func ParseNodeKind(name string) (NodeKind, error) {
	for k := NodeKindRepository; k < NumNodeKinds; k++ {
		if strings.EqualFold(nodeKindNames[k], name) {
			return k, nil
		}
	}
	return NodeKindUnknown, fmt.Errorf("%w: node kind %q", ErrUnknownKind, name)
}

// MarshalText implements encoding.TextMarshaler.
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *NodeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsSymbol reports whether nodes of this kind are produced by extraction
// and owned by a File.
func (k NodeKind) IsSymbol() bool {
	switch k {
	case NodeKindImport, NodeKindFunction, NodeKindClass, NodeKindDataModel,
		NodeKindVar, NodeKindEndpoint, NodeKindRequest, NodeKindPage:
		return true
	}
	return false
}

// IsCallable reports whether nodes of this kind can be the target of a
// Calls edge.
func (k NodeKind) IsCallable() bool {
	return k == NodeKindFunction || k == NodeKindClass
}

// EdgeKind is the closed set of relationship kinds.
type EdgeKind int

const (
	// EdgeKindUnknown indicates an unrecognized relationship.
	EdgeKindUnknown EdgeKind = iota

	// EdgeKindContains links a container to something it owns.
	EdgeKindContains

	// EdgeKindCalls links a caller to a callee, or a Request to an Endpoint.
	EdgeKindCalls

	// EdgeKindImports links a File or Import to a File, symbol, or Library.
	EdgeKindImports

	// EdgeKindImplements links a class to an interface it implements.
	EdgeKindImplements

	// EdgeKindHandler links an Endpoint to its handler function.
	EdgeKindHandler

	// EdgeKindRenders links a Page or component to a component it renders.
	EdgeKindRenders

	// EdgeKindUses links a symbol to another it references, as reported by
	// an external resolver.
	EdgeKindUses

	// NumEdgeKinds is the number of edge kinds (for array sizing).
	NumEdgeKinds
)

var edgeKindNames = [NumEdgeKinds]string{
	EdgeKindUnknown:    "UNKNOWN",
	EdgeKindContains:   "CONTAINS",
	EdgeKindCalls:      "CALLS",
	EdgeKindImports:    "IMPORTS",
	EdgeKindImplements: "IMPLEMENTS",
	EdgeKindHandler:    "HANDLER",
	EdgeKindRenders:    "RENDERS",
	EdgeKindUses:       "USES",
}

// String returns the kind's canonical name, e.g. "CALLS".
func (k EdgeKind) String() string {
	if k < 0 || k >= NumEdgeKinds {
		return "UNKNOWN"
	}
	return edgeKindNames[k]
}

// ParseEdgeKind converts a case-insensitive kind name to an EdgeKind.
func ParseEdgeKind(name string) (EdgeKind, error) {
	for k := EdgeKindContains; k < NumEdgeKinds; k++ {
		if strings.EqualFold(edgeKindNames[k], name) {
			return k, nil
		}
	}
	return EdgeKindUnknown, fmt.Errorf("%w: edge kind %q", ErrUnknownKind, name)
}

// MarshalText implements encoding.TextMarshaler.
func (k EdgeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EdgeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEdgeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Attribute keys used on nodes and edges.
const (
	AttrLanguage   = "language"
	AttrHash       = "hash"
	AttrStartLine  = "start_line"
	AttrEndLine    = "end_line"
	AttrExported   = "exported"
	AttrDefault    = "default"
	AttrForm       = "form"
	AttrText       = "text"
	AttrVerb       = "verb"
	AttrURL        = "url"
	AttrComponent  = "component"
	AttrVersion    = "version"
	AttrSource     = "source"
	AttrPath       = "path"
	AttrClass      = "class"
	AttrResolution = "resolution"
	AttrParseError = "parse_error"
	AttrPosition   = "position"
)

// Span is a half-open byte range [Start, End) within a file.
type Span struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Contains reports whether other lies entirely inside s.
func (s Span) Contains(other Span) bool {
	return s.Start <= other.Start && other.End <= s.End
}

// Len returns the number of bytes covered.
func (s Span) Len() uint32 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Node is a vertex in the code graph.
//
// Nodes are plain values keyed by ID. Relationships are never stored as
// pointers; traversal goes through id lookups, so reference cycles in the
// source code are ordinary graph structure.
type Node struct {
	// ID is the deterministic fingerprint described in ids.go.
	ID string `json:"id"`

	// Kind is the node's role.
	Kind NodeKind `json:"kind"`

	// Name is the declared name, path, or route depending on Kind.
	Name string `json:"name"`

	// File is the repository-relative, slash-separated path of the owning
	// file. Empty for Repository, Language, Directory, and Library nodes.
	File string `json:"file,omitempty"`

	// Span is the declaration's byte range in File.
	Span Span `json:"span"`

	// Attributes carries kind-specific facts (verb, url, line numbers...).
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attr returns the attribute value for key, or "".
func (n Node) Attr(key string) string {
	if n.Attributes == nil {
		return ""
	}
	return n.Attributes[key]
}

// StartLine returns the 1-based start line, or 0 when unknown.
func (n Node) StartLine() int {
	line, err := strconv.Atoi(n.Attr(AttrStartLine))
	if err != nil {
		return 0
	}
	return line
}

// Position returns the 0-based line and column of the declared name, as
// recorded by extraction in the "line:column" form.
func (n Node) Position() (int, int, bool) {
	line, col, ok := strings.Cut(n.Attr(AttrPosition), ":")
	if !ok {
		return 0, 0, false
	}
	l, err := strconv.Atoi(line)
	if err != nil {
		return 0, 0, false
	}
	c, err := strconv.Atoi(col)
	if err != nil {
		return 0, 0, false
	}
	return l, c, true
}

// Validate checks the structural requirements of a node.
func (n Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if n.Kind <= NodeKindUnknown || n.Kind >= NumNodeKinds {
		return fmt.Errorf("%w: %s has unknown kind %d", ErrInvalidNode, n.ID, n.Kind)
	}
	if (n.Kind.IsSymbol() || n.Kind == NodeKindFile) && n.File == "" {
		return fmt.Errorf("%w: %s %q has no owning file", ErrInvalidNode, n.Kind, n.Name)
	}
	return nil
}

// Edge is a directed relationship between two nodes.
//
// Edges are identified by (From, Kind, To); inserting the same triple twice
// is a no-op.
type Edge struct {
	From       string            `json:"from"`
	Kind       EdgeKind          `json:"kind"`
	To         string            `json:"to"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Key returns the identity of the edge.
func (e Edge) Key() string {
	return e.From + "\x00" + e.Kind.String() + "\x00" + e.To
}

// Validate checks the structural requirements of an edge.
func (e Edge) Validate() error {
	if e.From == "" || e.To == "" {
		return fmt.Errorf("%w: empty endpoint", ErrInvalidEdge)
	}
	if e.Kind <= EdgeKindUnknown || e.Kind >= NumEdgeKinds {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidEdge, e.Kind)
	}
	return nil
}

// RefKind classifies an unresolved reference.
type RefKind int

const (
	// RefKindUnknown indicates an unrecognized reference.
	RefKindUnknown RefKind = iota

	// RefKindImport is one imported binding (or a side-effect import).
	RefKindImport

	// RefKindCall is a call or constructor invocation.
	RefKindCall

	// RefKindHandler is the handler argument of a route registration.
	RefKindHandler

	// RefKindRender is a component referenced by a Page or rendered as a
	// JSX element inside a component.
	RefKindRender

	// RefKindImplements is a name in a class's implements clause.
	RefKindImplements
)

var refKindNames = map[RefKind]string{
	RefKindUnknown:    "unknown",
	RefKindImport:     "import",
	RefKindCall:       "call",
	RefKindHandler:    "handler",
	RefKindRender:     "render",
	RefKindImplements: "implements",
}

// String returns the reference kind's name.
func (k RefKind) String() string {
	if name, ok := refKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Import binding names with special meaning.
const (
	ImportDefault   = "default"
	ImportNamespace = "*"
)

// Reference is a name mentioned by an extracted construct whose target is
// not known until linking.
type Reference struct {
	// Kind classifies the reference.
	Kind RefKind `json:"kind"`

	// From is the id of the node the resulting edge starts at.
	From string `json:"from"`

	// File is the path of the file containing the reference.
	File string `json:"file"`

	// Name is the referenced identifier. For imports it is the exported
	// name (ImportDefault, ImportNamespace, or "" for side-effect imports).
	Name string `json:"name,omitempty"`

	// Alias is the local binding of an import, when it differs from Name.
	Alias string `json:"alias,omitempty"`

	// Specifier is the module specifier of an import, e.g. "./b" or "react".
	Specifier string `json:"specifier,omitempty"`

	// Receiver is the object of a member call, e.g. "api" in api.get().
	Receiver string `json:"receiver,omitempty"`

	// Offset is the byte offset of the reference in File.
	Offset uint32 `json:"offset"`

	// Line and Column are the 0-based position of the reference, used when
	// asking an external resolver.
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Local returns the name the reference is bound to inside its file.
func (r Reference) Local() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}
