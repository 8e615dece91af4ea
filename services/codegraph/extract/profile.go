// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"path"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Construct is the kind of source construct a rule recognizes.
type Construct int

const (
	ConstructUnknown Construct = iota
	ConstructFunction
	ConstructClass
	ConstructDataModel
	ConstructImport
	ConstructVar
	ConstructRoute
	ConstructRequest
	ConstructPage
)

var constructNames = map[Construct]string{
	ConstructUnknown:   "unknown",
	ConstructFunction:  "function",
	ConstructClass:     "class",
	ConstructDataModel: "data_model",
	ConstructImport:    "import",
	ConstructVar:       "var",
	ConstructRoute:     "route",
	ConstructRequest:   "request",
	ConstructPage:      "page",
}

// String returns the construct's name.
func (c Construct) String() string {
	if name, ok := constructNames[c]; ok {
		return name
	}
	return "unknown"
}

// Capture is what a rule pulls out of a matched syntax node.
type Capture struct {
	// Name is the node name: a declared identifier, route path, or URL.
	Name string

	// Attrs are copied onto the emitted node.
	Attrs map[string]string

	// Body is the syntax node whose subtree belongs to the new scope. Nil
	// means the matched node itself.
	Body *sitter.Node

	// Target is a secondary syntax node: the handler expression of a route.
	Target *sitter.Node

	// Refs are names the construct references directly: a Page's
	// component or a class's implements clause.
	Refs []string
}

// Matcher reports whether n has the shape a rule expects and, if so, what
// it captured.
type Matcher func(n *sitter.Node, src []byte, p *Profile) (Capture, bool)

// Rule is one declarative pattern in a language profile.
//
// Several rules may list the same NodeType. The walker tries them in
// descending Priority order and keeps the first match, which is how
// `const f = () => {}` becomes a Function rather than a Var.
type Rule struct {
	Construct Construct
	NodeType  string
	Priority  int
	Match     Matcher
}

// Profile is the capability table for one language: its grammar and the
// rules run over the grammar's syntax trees.
type Profile struct {
	// Name identifies the profile, e.g. "tsx".
	Name string

	// Language is the Language node name files of this profile belong to.
	Language string

	// Extensions are the file extensions, including the dot.
	Extensions []string

	// Grammar returns the tree-sitter language.
	Grammar func() *sitter.Language

	// Rules are the pattern rules. Order within equal priority is
	// declaration order.
	Rules []Rule

	// RouteVerbs are the member names that register a server route.
	RouteVerbs map[string]bool

	// HTTPClients are receiver names whose verb methods are outbound
	// requests rather than route registrations.
	HTTPClients map[string]bool

	// FetchFunctions are bare function names that issue a request.
	FetchFunctions map[string]bool

	// RouteElements are JSX element names that declare a Page.
	RouteElements map[string]bool

	byType map[string][]Rule
}

// rulesFor returns the rules for a node type ordered by priority. The
// index is built by NewRegistry, before the profile is shared.
func (p *Profile) rulesFor(nodeType string) []Rule {
	return p.byType[nodeType]
}

func (p *Profile) index() {
	p.byType = make(map[string][]Rule)
	for _, r := range p.Rules {
		p.byType[r.NodeType] = append(p.byType[r.NodeType], r)
	}
	for _, rules := range p.byType {
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	}
}

// Registry maps file extensions to profiles.
//
// Adding a language means registering a profile; the walker has no
// per-language code paths.
type Registry struct {
	byExt map[string]*Profile
}

// NewRegistry builds a registry from profiles. Later profiles win on
// extension conflicts.
func NewRegistry(profiles ...*Profile) *Registry {
	r := &Registry{byExt: make(map[string]*Profile)}
	for _, p := range profiles {
		p.index()
		for _, ext := range p.Extensions {
			r.byExt[strings.ToLower(ext)] = p
		}
	}
	return r
}

// DefaultRegistry returns the TypeScript, TSX, and JavaScript profiles.
func DefaultRegistry() *Registry {
	return NewRegistry(TypeScriptProfile(), TSXProfile(), JavaScriptProfile())
}

// ForPath returns the profile for a file path, or nil.
func (r *Registry) ForPath(p string) *Profile {
	return r.byExt[strings.ToLower(path.Ext(p))]
}

// Supports reports whether a profile is registered for p.
func (r *Registry) Supports(p string) bool {
	return r.ForPath(p) != nil
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

var (
	defaultRouteVerbs = set("get", "post", "put", "patch", "delete", "options", "head", "all")
	defaultClients    = set("axios")
	defaultFetch      = set("fetch")
	defaultElements   = set("Route")
)

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// TypeScriptProfile returns the profile for .ts files.
func TypeScriptProfile() *Profile {
	return &Profile{
		Name:           "typescript",
		Language:       "typescript",
		Extensions:     []string{".ts", ".mts", ".cts"},
		Grammar:        typescript.GetLanguage,
		Rules:          typedRules(),
		RouteVerbs:     defaultRouteVerbs,
		HTTPClients:    defaultClients,
		FetchFunctions: defaultFetch,
		RouteElements:  defaultElements,
	}
}

// TSXProfile returns the profile for .tsx files.
func TSXProfile() *Profile {
	p := TypeScriptProfile()
	p.Name = "tsx"
	p.Extensions = []string{".tsx"}
	p.Grammar = tsx.GetLanguage
	p.Rules = append(typedRules(), jsxRules()...)
	return p
}

// JavaScriptProfile returns the profile for .js and .jsx files. The
// JavaScript grammar parses JSX natively.
func JavaScriptProfile() *Profile {
	return &Profile{
		Name:           "javascript",
		Language:       "javascript",
		Extensions:     []string{".js", ".jsx", ".mjs", ".cjs"},
		Grammar:        javascript.GetLanguage,
		Rules:          append(commonRules(), jsxRules()...),
		RouteVerbs:     defaultRouteVerbs,
		HTTPClients:    defaultClients,
		FetchFunctions: defaultFetch,
		RouteElements:  defaultElements,
	}
}
