// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package link resolves the references left by extraction into cross-file
// edges.
//
// Resolution runs after every file of a run has been extracted, against
// an Index of the whole repository. Each reference tries, in order: the
// dependency manifest, relative import paths, same-file scope and import
// bindings, the same directory, and a globally unique name. An optional
// external Resolver can then confirm or override the heuristic answer.
// A reference that matches nothing, or matches several candidates equally
// well, produces no edge; the graph may be incomplete but is never wrong.
//
// # Thread Safety
//
// Linker is safe for concurrent use if its Resolver is. Index and Stats
// are not; a run links files serially.
package link

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

// DefaultResolverTimeout bounds one external resolver call.
const DefaultResolverTimeout = 2 * time.Second

// Location is a position reported by an external resolver. Line and
// Column are 0-based.
type Location struct {
	File   string
	Line   int
	Column int
}

// Resolver is an optional go-to-definition oracle.
//
// Both methods block; the linker bounds each call with a timeout and falls
// back to heuristics on any error.
type Resolver interface {
	// Resolve returns the definition of the symbol at the position.
	Resolve(ctx context.Context, file string, line, column int) (Location, bool, error)

	// FindImplementations returns the implementations of the interface
	// declared at the position.
	FindImplementations(ctx context.Context, file string, line, column int) ([]Location, error)
}

// Config configures a Linker.
type Config struct {
	// Manifest lists the external packages. May be nil.
	Manifest Manifest

	// Resolver is the optional external resolver. Nil is a fully
	// supported configuration.
	Resolver Resolver

	// ResolverTimeout bounds each resolver call. Defaults to
	// DefaultResolverTimeout.
	ResolverTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Linker turns references into edges.
type Linker struct {
	manifest Manifest
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Linker.
func New(cfg Config) *Linker {
	l := &Linker{
		manifest: cfg.Manifest,
		resolver: cfg.Resolver,
		timeout:  cfg.ResolverTimeout,
		logger:   cfg.Logger,
	}
	if l.manifest == nil {
		l.manifest = Manifest{}
	}
	if l.timeout <= 0 {
		l.timeout = DefaultResolverTimeout
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// HasResolver reports whether an external resolver is configured.
func (l *Linker) HasResolver() bool {
	return l.resolver != nil
}

// Links are the edges produced for one file.
type Links struct {
	// Path is the file whose references were linked.
	Path string

	// Edges are sorted by key and free of duplicates. Every edge carries
	// the resolution step in its attributes.
	Edges []graph.Edge

	// Libraries are the Library nodes the edges point at.
	Libraries []graph.Node
}

// LinkFile resolves the references of one file and links its Request
// nodes to matching Endpoints.
//
// Description:
//
//	refs must be every reference extracted from the file, including its
//	import references, because import bindings take part in resolving
//	calls. The index must already hold the file's nodes.
//
// Inputs:
//
//	ctx - Bounds resolver calls. Cancellation stops resolver use but the
//	      heuristic chain still completes.
//	ix - Repository symbol table.
//	p - Repository-relative path of the file.
//	refs - The file's references.
//	stats - Accumulates outcomes. Must not be nil.
//
// Outputs:
//
//	Links - The file's link edges and the Library nodes they need.
func (l *Linker) LinkFile(ctx context.Context, ix *Index, p string, refs []graph.Reference, stats *Stats) Links {
	ctx, span := tracer.Start(ctx, "Linker.LinkFile", trace.WithAttributes(
		attribute.String("link.file", p),
		attribute.Int("link.refs", len(refs)),
	))
	defer span.End()

	r := &fileRun{
		linker:   l,
		ix:       ix,
		path:     p,
		stats:    stats,
		bindings: make(map[string]graph.Reference),
		edges:    make(map[string]graph.Edge),
		libs:     make(map[string]graph.Node),
	}
	for _, ref := range refs {
		if ref.Kind == graph.RefKindImport && ref.Local() != "" && ref.Name != "" {
			r.bindings[ref.Local()] = ref
		}
	}

	for _, ref := range refs {
		stats.Refs++
		switch ref.Kind {
		case graph.RefKindImport:
			r.linkImport(ref)
		case graph.RefKindCall:
			r.linkSymbol(ctx, ref, graph.EdgeKindCalls, acceptCallable)
		case graph.RefKindHandler:
			r.linkSymbol(ctx, ref, graph.EdgeKindHandler, acceptFunction)
		case graph.RefKindRender:
			r.linkSymbol(ctx, ref, graph.EdgeKindRenders, acceptComponent)
		case graph.RefKindImplements:
			r.linkSymbol(ctx, ref, graph.EdgeKindImplements, acceptInterface)
		}
	}
	for _, e := range l.linkRequests(ix, p, stats) {
		r.add(e)
	}
	if l.resolver != nil {
		r.linkImplementations(ctx)
	}

	links := r.result()
	span.SetAttributes(attribute.Int("link.edges", len(links.Edges)))
	recordLinkMetrics(ctx, len(refs), len(links.Edges))
	return links
}

// Affected reports whether a file's references could resolve differently
// after the given symbol names or paths changed. The incremental engine
// relinks unchanged files for which this is true.
func Affected(refs []graph.Reference, names map[string]bool, paths map[string]bool) bool {
	for _, ref := range refs {
		if names[ref.Name] || names[ref.Local()] || ref.Receiver != "" && names[ref.Receiver] {
			return true
		}
		if ref.Kind == graph.RefKindImport && isRelative(ref.Specifier) {
			for _, candidate := range pathCandidates(ref.File, ref.Specifier) {
				if paths[candidate] {
					return true
				}
			}
		}
	}
	return false
}

// fileRun is the state of linking one file.
type fileRun struct {
	linker   *Linker
	ix       *Index
	path     string
	stats    *Stats
	bindings map[string]graph.Reference
	edges    map[string]graph.Edge
	libs     map[string]graph.Node
}

func (r *fileRun) add(e graph.Edge) {
	if _, ok := r.edges[e.Key()]; !ok {
		r.edges[e.Key()] = e
	}
}

func (r *fileRun) result() Links {
	out := Links{Path: r.path}
	for _, e := range r.edges {
		out.Edges = append(out.Edges, e)
	}
	sort.Slice(out.Edges, func(i, j int) bool { return out.Edges[i].Key() < out.Edges[j].Key() })
	for _, lib := range r.libs {
		out.Libraries = append(out.Libraries, lib)
	}
	sort.Slice(out.Libraries, func(i, j int) bool { return out.Libraries[i].ID < out.Libraries[j].ID })
	return out
}

func linkEdge(from string, kind graph.EdgeKind, to, step string) graph.Edge {
	return graph.Edge{
		From:       from,
		Kind:       kind,
		To:         to,
		Attributes: map[string]string{graph.AttrResolution: step},
	}
}

// linkImport resolves an import reference: manifest first, then the
// relative path chain.
func (r *fileRun) linkImport(ref graph.Reference) {
	if name, ok := r.linker.manifest.Package(ref.Specifier); ok {
		lib := LibraryNode(name, r.linker.manifest[name])
		r.libs[lib.ID] = lib
		r.add(linkEdge(ref.From, graph.EdgeKindImports, lib.ID, StepManifest))
		r.stats.resolved(StepManifest)
		return
	}

	target := resolvePath(r.ix, r.path, ref.Specifier)
	if target == "" {
		r.stats.Unresolved++
		return
	}
	file, _ := r.ix.File(target)
	r.add(linkEdge(graph.FileID(r.path), graph.EdgeKindImports, file.ID, StepPath))
	r.stats.resolved(StepPath)

	if ref.Name == "" || ref.Name == graph.ImportNamespace {
		return
	}
	if sym, ok := exportedSymbol(r.ix, target, ref.Name, nil); ok {
		r.add(linkEdge(ref.From, graph.EdgeKindImports, sym.ID, StepPath))
	}
}

// outcome classifies a heuristic lookup.
type outcome int

const (
	outcomeUnresolved outcome = iota
	outcomeResolved
	outcomeAmbiguous
	outcomeExternal
)

func (r *fileRun) linkSymbol(ctx context.Context, ref graph.Reference, kind graph.EdgeKind, accept func(graph.Node) bool) {
	target, step, result := r.resolve(ref, accept)

	if r.linker.resolver != nil && ctx.Err() == nil {
		if oracle, ok := r.askResolver(ctx, ref, accept); ok {
			if result == outcomeResolved && oracle.ID != target.ID {
				r.stats.ResolverOverrides++
				r.linker.logger.Debug("resolver overrides heuristic",
					slog.String("path", r.path),
					slog.String("name", ref.Name),
					slog.String("heuristic", target.ID),
					slog.String("resolver", oracle.ID))
			}
			target, step, result = oracle, StepResolver, outcomeResolved
			r.add(linkEdge(ref.From, graph.EdgeKindUses, oracle.ID, StepResolver))
		}
	}

	switch result {
	case outcomeResolved:
		r.add(linkEdge(ref.From, kind, target.ID, step))
		r.stats.resolved(step)
	case outcomeAmbiguous:
		r.stats.Ambiguous++
	case outcomeExternal:
		r.stats.External++
	default:
		r.stats.Unresolved++
	}
}

// resolve runs the heuristic chain for a symbol reference.
func (r *fileRun) resolve(ref graph.Reference, accept func(graph.Node) bool) (graph.Node, string, outcome) {
	if ref.Receiver != "" {
		return r.resolveMember(ref, accept)
	}

	if n, ok := r.sameFile(ref, accept); ok {
		return n, StepSameFile, outcomeResolved
	}
	if b, ok := r.bindings[ref.Name]; ok {
		return r.resolveBinding(b, accept)
	}

	dir := path.Dir(r.path)
	var inDir, global []graph.Node
	for _, n := range r.ix.Named(ref.Name) {
		if n.File == r.path || !accept(n) || r.ix.Parent(n.ID) != "" || n.Attr(graph.AttrClass) != "" {
			continue
		}
		if path.Dir(n.File) == dir {
			inDir = append(inDir, n)
		}
		if !isTestPath(n.File) {
			global = append(global, n)
		}
	}
	switch {
	case len(inDir) == 1:
		return inDir[0], StepSameDir, outcomeResolved
	case len(inDir) > 1:
		return graph.Node{}, "", outcomeAmbiguous
	case len(global) == 1:
		return global[0], StepGlobal, outcomeResolved
	case len(global) > 1:
		return graph.Node{}, "", outcomeAmbiguous
	}
	return graph.Node{}, "", outcomeUnresolved
}

// sameFile picks the innermost visible declaration of ref.Name in the
// referencing file, preferring the last one in file order on ties.
// Class members are reachable only through a receiver.
func (r *fileRun) sameFile(ref graph.Reference, accept func(graph.Node) bool) (graph.Node, bool) {
	var best graph.Node
	bestDepth := -1
	for _, n := range r.ix.Symbols(r.path) {
		if n.Name != ref.Name || !accept(n) || n.Attr(graph.AttrClass) != "" {
			continue
		}
		if parent := r.ix.Parent(n.ID); parent != "" {
			scope, ok := r.ix.Node(parent)
			if !ok || ref.Offset < scope.Span.Start || ref.Offset >= scope.Span.End {
				continue
			}
		}
		depth := r.ix.depth(n.ID)
		if depth > bestDepth || depth == bestDepth && n.Span.Start >= best.Span.Start {
			best, bestDepth = n, depth
		}
	}
	return best, bestDepth >= 0
}

// resolveBinding follows an import binding to the symbol it names.
func (r *fileRun) resolveBinding(b graph.Reference, accept func(graph.Node) bool) (graph.Node, string, outcome) {
	if _, ok := r.linker.manifest.Package(b.Specifier); ok {
		return graph.Node{}, "", outcomeExternal
	}
	target := resolvePath(r.ix, r.path, b.Specifier)
	if target == "" || b.Name == graph.ImportNamespace {
		return graph.Node{}, "", outcomeUnresolved
	}
	if n, ok := exportedSymbol(r.ix, target, b.Name, accept); ok {
		return n, StepBinding, outcomeResolved
	}
	return graph.Node{}, "", outcomeUnresolved
}

// resolveMember handles `this.m()`, `ns.f()` for namespace imports, and
// `Class.m()` static calls. Other receivers are dynamic and stay
// unresolved.
func (r *fileRun) resolveMember(ref graph.Reference, accept func(graph.Node) bool) (graph.Node, string, outcome) {
	if ref.Receiver == "this" {
		cls := r.enclosingClass(ref.From)
		if cls == "" {
			return graph.Node{}, "", outcomeUnresolved
		}
		if m, ok := method(r.ix, r.path, cls, ref.Name, accept); ok {
			return m, StepThis, outcomeResolved
		}
		return graph.Node{}, "", outcomeUnresolved
	}
	if strings.ContainsAny(ref.Receiver, ".()[]") {
		return graph.Node{}, "", outcomeUnresolved
	}

	if b, ok := r.bindings[ref.Receiver]; ok && b.Name == graph.ImportNamespace {
		if _, ok := r.linker.manifest.Package(b.Specifier); ok {
			return graph.Node{}, "", outcomeExternal
		}
		target := resolvePath(r.ix, r.path, b.Specifier)
		if target == "" {
			return graph.Node{}, "", outcomeUnresolved
		}
		if n, ok := exportedSymbol(r.ix, target, ref.Name, accept); ok {
			return n, StepNamespace, outcomeResolved
		}
		return graph.Node{}, "", outcomeUnresolved
	}

	classRef := ref
	classRef.Name, classRef.Receiver = ref.Receiver, ""
	cls, _, result := r.resolve(classRef, acceptClass)
	if result != outcomeResolved {
		if result == outcomeExternal {
			return graph.Node{}, "", outcomeExternal
		}
		return graph.Node{}, "", outcomeUnresolved
	}
	if m, ok := method(r.ix, cls.File, cls.Name, ref.Name, accept); ok {
		return m, StepStatic, outcomeResolved
	}
	return graph.Node{}, "", outcomeUnresolved
}

// enclosingClass returns the class name of the method containing id.
func (r *fileRun) enclosingClass(id string) string {
	for cur := id; cur != ""; cur = r.ix.Parent(cur) {
		n, ok := r.ix.Node(cur)
		if !ok {
			return ""
		}
		if cls := n.Attr(graph.AttrClass); cls != "" {
			return cls
		}
		if n.Kind == graph.NodeKindClass {
			return n.Name
		}
	}
	return ""
}

// askResolver queries the external resolver with the configured timeout.
func (r *fileRun) askResolver(ctx context.Context, ref graph.Reference, accept func(graph.Node) bool) (graph.Node, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.linker.timeout)
	defer cancel()

	r.stats.ResolverCalls++
	loc, ok, err := r.linker.resolver.Resolve(ctx, ref.File, ref.Line, ref.Column)
	if err != nil {
		r.resolverFailed(err, ref)
		return graph.Node{}, false
	}
	if !ok {
		return graph.Node{}, false
	}
	return r.ix.SymbolAt(loc.File, loc.Line, accept)
}

func (r *fileRun) resolverFailed(err error, ref graph.Reference) {
	if errors.Is(err, context.DeadlineExceeded) {
		r.stats.ResolverTimeouts++
	} else {
		r.stats.ResolverErrors++
	}
	r.linker.logger.Debug("resolver failed, using heuristics",
		slog.String("path", ref.File),
		slog.Int("line", ref.Line),
		slog.String("error", err.Error()))
}

// linkImplementations asks the resolver for classes implementing each
// interface declared in the file.
func (r *fileRun) linkImplementations(ctx context.Context) {
	for _, iface := range r.ix.Symbols(r.path) {
		if iface.Kind != graph.NodeKindDataModel || iface.Attr(graph.AttrForm) != "interface" {
			continue
		}
		line, col, ok := iface.Position()
		if !ok || ctx.Err() != nil {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, r.linker.timeout)
		r.stats.ResolverCalls++
		locs, err := r.linker.resolver.FindImplementations(callCtx, r.path, line, col)
		cancel()
		if err != nil {
			r.resolverFailed(err, graph.Reference{File: r.path, Line: line})
			continue
		}
		for _, loc := range locs {
			if cls, ok := r.ix.SymbolAt(loc.File, loc.Line, acceptClass); ok {
				r.add(linkEdge(cls.ID, graph.EdgeKindImplements, iface.ID, StepResolver))
				r.stats.resolved(StepResolver)
			}
		}
	}
}

// method finds a method of class cls in file p.
func method(ix *Index, p, cls, name string, accept func(graph.Node) bool) (graph.Node, bool) {
	var found graph.Node
	ok := false
	for _, n := range ix.Symbols(p) {
		if n.Name == name && n.Attr(graph.AttrClass) == cls && accept(n) {
			found, ok = n, true
		}
	}
	return found, ok
}

// exportedSymbol finds the top-level symbol a module exports under name.
// graph.ImportDefault selects the default export.
func exportedSymbol(ix *Index, p, name string, accept func(graph.Node) bool) (graph.Node, bool) {
	var fallback graph.Node
	hasFallback := false
	for _, n := range ix.Symbols(p) {
		if !isNamed(n.Kind) || ix.Parent(n.ID) != "" || accept != nil && !accept(n) {
			continue
		}
		if name == graph.ImportDefault {
			if n.Attr(graph.AttrDefault) == "true" {
				return n, true
			}
			continue
		}
		if n.Name != name {
			continue
		}
		if n.Attr(graph.AttrExported) == "true" {
			return n, true
		}
		fallback, hasFallback = n, true
	}
	return fallback, hasFallback
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// pathCandidates lists, in priority order, the files a relative specifier
// may refer to.
func pathCandidates(from, spec string) []string {
	if !isRelative(spec) {
		return nil
	}
	joined := path.Join(path.Dir(from), spec)
	if strings.HasPrefix(joined, "../") || joined == ".." {
		return nil
	}
	joined = graph.NormalizePath(joined)
	if joined == "" {
		return []string{"index.ts", "index.tsx", "index.js", "index.jsx"}
	}
	out := []string{
		joined,
		joined + ".ts",
		joined + ".tsx",
		joined + "/index.ts",
		joined + "/index.tsx",
		joined + ".js",
		joined + ".jsx",
		joined + "/index.js",
		joined + "/index.jsx",
	}
	if ext := path.Ext(joined); ext == ".js" || ext == ".jsx" {
		// ESM-style TypeScript imports name the emitted .js file.
		stem := strings.TrimSuffix(joined, ext)
		out = append(out, stem+".ts", stem+".tsx")
	}
	return out
}

// resolvePath returns the first candidate of a relative specifier that
// exists as a File node, or "".
func resolvePath(ix *Index, from, spec string) string {
	for _, candidate := range pathCandidates(from, spec) {
		if ix.HasFile(candidate) {
			return candidate
		}
	}
	return ""
}

func acceptCallable(n graph.Node) bool {
	return n.Kind.IsCallable()
}

func acceptFunction(n graph.Node) bool {
	return n.Kind == graph.NodeKindFunction
}

func acceptClass(n graph.Node) bool {
	return n.Kind == graph.NodeKindClass
}

// acceptComponent admits Function and Class nodes named like components.
func acceptComponent(n graph.Node) bool {
	if !n.Kind.IsCallable() || n.Name == "" {
		return false
	}
	c := n.Name[0]
	return c >= 'A' && c <= 'Z'
}

func acceptInterface(n graph.Node) bool {
	return n.Kind == graph.NodeKindClass ||
		n.Kind == graph.NodeKindDataModel && n.Attr(graph.AttrForm) == "interface"
}
