// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package link

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/codegraph/services/codegraph/extract"
	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

type fixture struct {
	ix      *Index
	results map[string]*extract.Result
}

func build(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	ex := extract.NewExtractor()
	f := &fixture{ix: NewIndex(), results: make(map[string]*extract.Result)}
	for p, src := range files {
		res, err := ex.Extract(context.Background(), p, []byte(src))
		require.NoError(t, err)
		require.Nil(t, res.Err, "parse %s", p)
		f.results[p] = res
		f.ix.AddFile(res.File, res.Nodes)
	}
	return f
}

func (f *fixture) link(t *testing.T, l *Linker, paths ...string) (map[string]Links, *Stats) {
	t.Helper()
	if len(paths) == 0 {
		paths = f.ix.Files()
	}
	stats := NewStats()
	out := make(map[string]Links)
	for _, p := range paths {
		res, ok := f.results[p]
		require.True(t, ok, "no file %s", p)
		out[p] = l.LinkFile(context.Background(), f.ix, p, res.Refs, stats)
	}
	return out, stats
}

func (f *fixture) node(t *testing.T, p string, kind graph.NodeKind, name string) graph.Node {
	t.Helper()
	for _, n := range f.ix.Symbols(p) {
		if n.Kind == kind && n.Name == name {
			return n
		}
	}
	require.Failf(t, "node not found", "%s %q in %s", kind, name, p)
	return graph.Node{}
}

func findEdge(links Links, from string, kind graph.EdgeKind, to string) (graph.Edge, bool) {
	for _, e := range links.Edges {
		if e.From == from && e.Kind == kind && e.To == to {
			return e, true
		}
	}
	return graph.Edge{}, false
}

func countKind(links Links, kind graph.EdgeKind) int {
	n := 0
	for _, e := range links.Edges {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type fakeResolver struct {
	resolve func(ctx context.Context, file string, line, col int) (Location, bool, error)
	impls   func(ctx context.Context, file string, line, col int) ([]Location, error)
	calls   atomic.Int32
}

func (r *fakeResolver) Resolve(ctx context.Context, file string, line, col int) (Location, bool, error) {
	r.calls.Add(1)
	if r.resolve == nil {
		return Location{}, false, nil
	}
	return r.resolve(ctx, file, line, col)
}

func (r *fakeResolver) FindImplementations(ctx context.Context, file string, line, col int) ([]Location, error) {
	if r.impls == nil {
		return nil, nil
	}
	return r.impls(ctx, file, line, col)
}

func locationOf(t *testing.T, n graph.Node) Location {
	t.Helper()
	line, col, ok := n.Position()
	require.True(t, ok)
	return Location{File: n.File, Line: line, Column: col}
}

func TestLinkFile_CrossFileCallAndImport(t *testing.T) {
	f := build(t, map[string]string{
		"a.ts": "import { g } from './b';\nexport function f() { return g(); }\n",
		"b.ts": "export function g() { return 1; }\n",
	})
	links, stats := f.link(t, New(Config{}), "a.ts")

	fn := f.node(t, "a.ts", graph.NodeKindFunction, "f")
	g := f.node(t, "b.ts", graph.NodeKindFunction, "g")

	call, ok := findEdge(links["a.ts"], fn.ID, graph.EdgeKindCalls, g.ID)
	require.True(t, ok, "expected f -> g")
	assert.Equal(t, StepBinding, call.Attributes[graph.AttrResolution])

	_, ok = findEdge(links["a.ts"], graph.FileID("a.ts"), graph.EdgeKindImports, graph.FileID("b.ts"))
	assert.True(t, ok, "expected a.ts -> b.ts")

	imp := f.node(t, "a.ts", graph.NodeKindImport, "1 imports")
	_, ok = findEdge(links["a.ts"], imp.ID, graph.EdgeKindImports, g.ID)
	assert.True(t, ok, "expected Import -> g")

	assert.Equal(t, 1, stats.Resolved[StepBinding])
	assert.Equal(t, 1, stats.Resolved[StepPath])
	assert.Zero(t, stats.Unresolved)
}

func TestLinkFile_EdgesSortedAndUnique(t *testing.T) {
	f := build(t, map[string]string{
		"a.ts": "import { g } from './b';\nexport function f() { g(); g(); return g(); }\n",
		"b.ts": "export function g() { return 1; }\n",
	})
	links, _ := f.link(t, New(Config{}), "a.ts")

	keys := make([]string, 0, len(links["a.ts"].Edges))
	seen := make(map[string]bool)
	for _, e := range links["a.ts"].Edges {
		assert.False(t, seen[e.Key()], "duplicate edge %s", e.Key())
		seen[e.Key()] = true
		keys = append(keys, e.Key())
		assert.NotEmpty(t, e.Attributes[graph.AttrResolution])
	}
	assert.True(t, sort.StringsAreSorted(keys))
	assert.Equal(t, 1, countKind(links["a.ts"], graph.EdgeKindCalls))
}

func TestLinkFile_HandlerEdge(t *testing.T) {
	f := build(t, map[string]string{
		"server/routes.ts":   "import { createPerson } from './handlers';\nrouter.post(\"/person\", createPerson);\n",
		"server/handlers.ts": "export function createPerson(req, res) { res.send(1); }\n",
	})
	links, _ := f.link(t, New(Config{}), "server/routes.ts")

	endpoint := f.node(t, "server/routes.ts", graph.NodeKindEndpoint, "/person")
	assert.Equal(t, "POST", endpoint.Attr(graph.AttrVerb))
	handler := f.node(t, "server/handlers.ts", graph.NodeKindFunction, "createPerson")

	_, ok := findEdge(links["server/routes.ts"], endpoint.ID, graph.EdgeKindHandler, handler.ID)
	assert.True(t, ok)
}

func TestLinkFile_RequestToEndpoint(t *testing.T) {
	f := build(t, map[string]string{
		"server/routes.ts": "router.post(\"/person/:id\", (req, res) => res.send(1));\nrouter.get(\"/person/:id\", (req, res) => res.send(2));\n",
		"web/api.ts":       "export async function save(id) {\n  await fetch(`/person/${id}?full=1`, { method: \"POST\" });\n}\n",
	})
	links, stats := f.link(t, New(Config{}), "web/api.ts")

	post := f.node(t, "server/routes.ts", graph.NodeKindEndpoint, "/person/:id")
	require.Equal(t, "POST", post.Attr(graph.AttrVerb))

	var req graph.Node
	for _, n := range f.ix.Symbols("web/api.ts") {
		if n.Kind == graph.NodeKindRequest {
			req = n
		}
	}
	require.NotEmpty(t, req.ID)

	e, ok := findEdge(links["web/api.ts"], req.ID, graph.EdgeKindCalls, post.ID)
	require.True(t, ok)
	assert.Equal(t, StepHTTP, e.Attributes[graph.AttrResolution])
	assert.Equal(t, 1, countKind(links["web/api.ts"], graph.EdgeKindCalls), "GET endpoint must not match")
	assert.Zero(t, stats.Unmatched)
}

func TestLinkFile_UnmatchedRequest(t *testing.T) {
	f := build(t, map[string]string{
		"web/api.ts": "export function load() { return fetch(\"/nowhere\"); }\n",
	})
	links, stats := f.link(t, New(Config{}))
	assert.Zero(t, countKind(links["web/api.ts"], graph.EdgeKindCalls))
	assert.Equal(t, 1, stats.Unmatched)
}

func TestLinkFile_RequestFanOut(t *testing.T) {
	f := build(t, map[string]string{
		"a/routes.ts": "router.get(\"/items\", (req, res) => res.send(1));\n",
		"b/routes.ts": "app.all(\"/items\", (req, res) => res.send(2));\n",
		"web/api.ts":  "export function load() { return fetch(\"https://api.example.com/items/\"); }\n",
	})
	links, _ := f.link(t, New(Config{}), "web/api.ts")
	assert.Equal(t, 2, countKind(links["web/api.ts"], graph.EdgeKindCalls))
}

func TestLinkFile_SameFileWinsOverGlobal(t *testing.T) {
	f := build(t, map[string]string{
		"a.ts": "function helper() { return 1; }\nexport function run() { return helper(); }\n",
		"b.ts": "export function helper() { return 2; }\n",
	})
	links, stats := f.link(t, New(Config{}), "a.ts")

	run := f.node(t, "a.ts", graph.NodeKindFunction, "run")
	local := f.node(t, "a.ts", graph.NodeKindFunction, "helper")
	_, ok := findEdge(links["a.ts"], run.ID, graph.EdgeKindCalls, local.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, stats.Resolved[StepSameFile])
}

func TestLinkFile_NestedScopeInnermostWins(t *testing.T) {
	f := build(t, map[string]string{
		"a.ts": "function helper() { return 1; }\n" +
			"export function outer() {\n  function helper() { return 2; }\n  return helper();\n}\n" +
			"export function other() { return helper(); }\n",
	})
	links, _ := f.link(t, New(Config{}))

	var top, nested graph.Node
	for _, n := range f.ix.Symbols("a.ts") {
		if n.Name != "helper" {
			continue
		}
		if f.ix.Parent(n.ID) == "" {
			top = n
		} else {
			nested = n
		}
	}
	require.NotEmpty(t, top.ID)
	require.NotEmpty(t, nested.ID)

	outer := f.node(t, "a.ts", graph.NodeKindFunction, "outer")
	other := f.node(t, "a.ts", graph.NodeKindFunction, "other")
	_, ok := findEdge(links["a.ts"], outer.ID, graph.EdgeKindCalls, nested.ID)
	assert.True(t, ok, "outer must call its own helper")
	_, ok = findEdge(links["a.ts"], other.ID, graph.EdgeKindCalls, top.ID)
	assert.True(t, ok, "other must not see the nested helper")
}

func TestLinkFile_SameDirectoryAndAmbiguity(t *testing.T) {
	f := build(t, map[string]string{
		"util/a.ts":   "export function helper() { return 1; }\n",
		"util/c.ts":   "export function use() { return helper(); }\n",
		"lib/x.ts":    "export function helper() { return 2; }\n",
		"other/y.ts":  "export function call() { return helper(); }\n",
		"other/z.ts":  "export function shared() { return 0; }\n",
		"third/q.ts":  "export function shared() { return 1; }\n",
		"fourth/r.ts": "export function go() { return shared(); }\n",
	})
	links, stats := f.link(t, New(Config{}), "util/c.ts", "other/y.ts")

	use := f.node(t, "util/c.ts", graph.NodeKindFunction, "use")
	helper := f.node(t, "util/a.ts", graph.NodeKindFunction, "helper")
	e, ok := findEdge(links["util/c.ts"], use.ID, graph.EdgeKindCalls, helper.ID)
	require.True(t, ok)
	assert.Equal(t, StepSameDir, e.Attributes[graph.AttrResolution])

	assert.Zero(t, countKind(links["other/y.ts"], graph.EdgeKindCalls), "two global helpers is ambiguous")
	assert.Equal(t, 1, stats.Ambiguous)
}

func TestLinkFile_GlobalIgnoresTestFiles(t *testing.T) {
	f := build(t, map[string]string{
		"src/math.ts":                "export function add(a, b) { return a + b; }\n",
		"src/__tests__/math.test.ts": "export function add(a, b) { return 0; }\n",
		"app/main.ts":                "export function main() { return add(1, 2); }\n",
	})
	links, _ := f.link(t, New(Config{}), "app/main.ts")

	main := f.node(t, "app/main.ts", graph.NodeKindFunction, "main")
	add := f.node(t, "src/math.ts", graph.NodeKindFunction, "add")
	e, ok := findEdge(links["app/main.ts"], main.ID, graph.EdgeKindCalls, add.ID)
	require.True(t, ok)
	assert.Equal(t, StepGlobal, e.Attributes[graph.AttrResolution])
}

func TestLinkFile_SameDirectoryIncludesTestFiles(t *testing.T) {
	f := build(t, map[string]string{
		"src/__tests__/helpers.ts":   "export function setup() { return 1; }\n",
		"src/__tests__/math.test.ts": "export function run() { return setup(); }\n",
		"app/main.ts":                "export function main() { return setup(); }\n",
	})
	links, stats := f.link(t, New(Config{}))

	run := f.node(t, "src/__tests__/math.test.ts", graph.NodeKindFunction, "run")
	setup := f.node(t, "src/__tests__/helpers.ts", graph.NodeKindFunction, "setup")
	e, ok := findEdge(links["src/__tests__/math.test.ts"], run.ID, graph.EdgeKindCalls, setup.ID)
	require.True(t, ok)
	assert.Equal(t, StepSameDir, e.Attributes[graph.AttrResolution])

	assert.Empty(t, links["app/main.ts"].Edges, "test helpers stay out of global matches")
	assert.Equal(t, 1, stats.Unresolved)
}

func TestLinkFile_Unresolved(t *testing.T) {
	f := build(t, map[string]string{
		"a.ts": "export function f() { return missing(); }\n",
	})
	links, stats := f.link(t, New(Config{}))
	assert.Empty(t, links["a.ts"].Edges)
	assert.Equal(t, 1, stats.Unresolved)
}

func TestLinkFile_ManifestLibrary(t *testing.T) {
	f := build(t, map[string]string{
		"app.tsx": "import React from 'react';\nimport { render } from '@testing-library/react/pure';\n" +
			"export function App() { return React.createElement('div'); }\n",
	})
	l := New(Config{Manifest: Manifest{"react": "^18.2.0", "@testing-library/react": "14.0.0"}})
	links, stats := f.link(t, l)

	got := links["app.tsx"]
	require.Len(t, got.Libraries, 2)
	react := graph.LibraryID("react")
	var lib graph.Node
	for _, n := range got.Libraries {
		if n.ID == react {
			lib = n
		}
	}
	assert.Equal(t, "react", lib.Name)
	assert.Equal(t, SourceExternal, lib.Attr(graph.AttrSource))
	assert.Equal(t, "^18.2.0", lib.Attr(graph.AttrVersion))
	assert.Equal(t, "18.2.0", lib.Attr(AttrMinVersion))

	imp := f.node(t, "app.tsx", graph.NodeKindImport, "2 imports")
	_, ok := findEdge(got, imp.ID, graph.EdgeKindImports, react)
	assert.True(t, ok)
	_, ok = findEdge(got, imp.ID, graph.EdgeKindImports, graph.LibraryID("@testing-library/react"))
	assert.True(t, ok)

	assert.Equal(t, 2, stats.Resolved[StepManifest])
	assert.Equal(t, 1, stats.External, "React.createElement belongs to the library")
}

func TestLinkFile_ThisReceiver(t *testing.T) {
	f := build(t, map[string]string{
		"greeter.ts": "export class Greeter {\n  greet() { return this.format(); }\n  format() { return 'hi'; }\n}\n" +
			"function format() { return 'top'; }\n",
	})
	links, _ := f.link(t, New(Config{}))

	var greet, method graph.Node
	for _, n := range f.ix.Symbols("greeter.ts") {
		if n.Attr(graph.AttrClass) != "Greeter" {
			continue
		}
		switch n.Name {
		case "greet":
			greet = n
		case "format":
			method = n
		}
	}
	require.NotEmpty(t, greet.ID)
	require.NotEmpty(t, method.ID)

	e, ok := findEdge(links["greeter.ts"], greet.ID, graph.EdgeKindCalls, method.ID)
	require.True(t, ok)
	assert.Equal(t, StepThis, e.Attributes[graph.AttrResolution])
}

func TestLinkFile_NamespaceAndStaticReceivers(t *testing.T) {
	f := build(t, map[string]string{
		"util.ts":  "export function helper() { return 1; }\n",
		"math.ts":  "export class MathUtil {\n  static square(x) { return x * x; }\n}\n",
		"main.ts":  "import * as util from './util';\nimport { MathUtil } from './math';\nexport function run() { util.helper(); return MathUtil.square(2); }\n",
		"other.ts": "export function dyn(obj) { return obj.helper(); }\n",
	})
	links, stats := f.link(t, New(Config{}), "main.ts", "other.ts")

	run := f.node(t, "main.ts", graph.NodeKindFunction, "run")
	helper := f.node(t, "util.ts", graph.NodeKindFunction, "helper")
	square := f.node(t, "math.ts", graph.NodeKindFunction, "square")

	e, ok := findEdge(links["main.ts"], run.ID, graph.EdgeKindCalls, helper.ID)
	require.True(t, ok)
	assert.Equal(t, StepNamespace, e.Attributes[graph.AttrResolution])

	e, ok = findEdge(links["main.ts"], run.ID, graph.EdgeKindCalls, square.ID)
	require.True(t, ok)
	assert.Equal(t, StepStatic, e.Attributes[graph.AttrResolution])

	assert.Empty(t, links["other.ts"].Edges, "dynamic receivers stay unresolved")
	assert.GreaterOrEqual(t, stats.Unresolved, 1)
}

func TestLinkFile_ConstructorAndImplements(t *testing.T) {
	f := build(t, map[string]string{
		"shapes.ts": "export interface Shape { area(): number }\n" +
			"export class Square implements Shape {\n  area() { return 1; }\n}\n",
		"main.ts": "import { Square } from './shapes';\nexport function make() { return new Square(); }\n",
	})
	links, _ := f.link(t, New(Config{}))

	shape := f.node(t, "shapes.ts", graph.NodeKindDataModel, "Shape")
	square := f.node(t, "shapes.ts", graph.NodeKindClass, "Square")
	maker := f.node(t, "main.ts", graph.NodeKindFunction, "make")

	_, ok := findEdge(links["shapes.ts"], square.ID, graph.EdgeKindImplements, shape.ID)
	assert.True(t, ok)
	_, ok = findEdge(links["main.ts"], maker.ID, graph.EdgeKindCalls, square.ID)
	assert.True(t, ok)
}

func TestLinkFile_DefaultImport(t *testing.T) {
	f := build(t, map[string]string{
		"components/Button.tsx": "export default function Button() { return <button />; }\n",
		"App.tsx":               "import Btn from './components/Button';\nexport function App() { return <Btn />; }\n",
	})
	links, _ := f.link(t, New(Config{}), "App.tsx")

	app := f.node(t, "App.tsx", graph.NodeKindFunction, "App")
	button := f.node(t, "components/Button.tsx", graph.NodeKindFunction, "Button")
	_, ok := findEdge(links["App.tsx"], app.ID, graph.EdgeKindRenders, button.ID)
	assert.True(t, ok)
}

func TestLinkFile_PageRendersComponent(t *testing.T) {
	f := build(t, map[string]string{
		"pages/About.tsx": "export function About() { return <div />; }\n",
		"App.tsx":         "export function App() { return <Route path=\"/about\" element={<About />} />; }\n",
	})
	links, _ := f.link(t, New(Config{}), "App.tsx")

	page := f.node(t, "App.tsx", graph.NodeKindPage, "/about")
	about := f.node(t, "pages/About.tsx", graph.NodeKindFunction, "About")
	_, ok := findEdge(links["App.tsx"], page.ID, graph.EdgeKindRenders, about.ID)
	assert.True(t, ok)
}

func TestLinkFile_ResolverOverridesHeuristic(t *testing.T) {
	f := build(t, map[string]string{
		"a/helper.ts": "export function helper() { return 1; }\n",
		"a/main.ts":   "export function main() { return helper(); }\n",
		"b/helper.ts": "export function helper() { return 2; }\n",
	})
	target := f.node(t, "b/helper.ts", graph.NodeKindFunction, "helper")
	r := &fakeResolver{resolve: func(ctx context.Context, file string, line, col int) (Location, bool, error) {
		return locationOf(t, target), true, nil
	}}
	l := New(Config{Resolver: r})
	require.True(t, l.HasResolver())

	links, stats := f.link(t, l, "a/main.ts")
	main := f.node(t, "a/main.ts", graph.NodeKindFunction, "main")

	e, ok := findEdge(links["a/main.ts"], main.ID, graph.EdgeKindCalls, target.ID)
	require.True(t, ok)
	assert.Equal(t, StepResolver, e.Attributes[graph.AttrResolution])
	_, ok = findEdge(links["a/main.ts"], main.ID, graph.EdgeKindUses, target.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, countKind(links["a/main.ts"], graph.EdgeKindCalls))
	assert.Equal(t, 1, stats.ResolverOverrides)
	assert.Equal(t, 1, stats.ResolverCalls)
}

func TestLinkFile_ResolverTimeoutFallsBack(t *testing.T) {
	f := build(t, map[string]string{
		"a/helper.ts": "export function helper() { return 1; }\n",
		"a/main.ts":   "export function main() { return helper(); }\n",
	})
	r := &fakeResolver{resolve: func(ctx context.Context, file string, line, col int) (Location, bool, error) {
		<-ctx.Done()
		return Location{}, false, ctx.Err()
	}}
	l := New(Config{Resolver: r, ResolverTimeout: 10 * time.Millisecond})

	links, stats := f.link(t, l, "a/main.ts")
	main := f.node(t, "a/main.ts", graph.NodeKindFunction, "main")
	helper := f.node(t, "a/helper.ts", graph.NodeKindFunction, "helper")

	e, ok := findEdge(links["a/main.ts"], main.ID, graph.EdgeKindCalls, helper.ID)
	require.True(t, ok)
	assert.Equal(t, StepSameDir, e.Attributes[graph.AttrResolution])
	assert.Equal(t, 1, stats.ResolverTimeouts)
	assert.Zero(t, stats.ResolverErrors)
}

func TestLinkFile_ResolverImplementations(t *testing.T) {
	f := build(t, map[string]string{
		"api.ts":  "export interface Store { get(): number }\n",
		"impl.ts": "export class MemoryStore {\n  get() { return 1; }\n}\n",
	})
	iface := f.node(t, "api.ts", graph.NodeKindDataModel, "Store")
	cls := f.node(t, "impl.ts", graph.NodeKindClass, "MemoryStore")

	r := &fakeResolver{impls: func(ctx context.Context, file string, line, col int) ([]Location, error) {
		want := locationOf(t, iface)
		if file != "api.ts" || line != want.Line {
			return nil, nil
		}
		return []Location{locationOf(t, cls)}, nil
	}}
	links, _ := f.link(t, New(Config{Resolver: r}), "api.ts")

	e, ok := findEdge(links["api.ts"], cls.ID, graph.EdgeKindImplements, iface.ID)
	require.True(t, ok)
	assert.Equal(t, StepResolver, e.Attributes[graph.AttrResolution])
}

func TestLinkFile_NoResolverNeverCalls(t *testing.T) {
	f := build(t, map[string]string{
		"a.ts": "export function f() { return g(); }\nfunction g() { return 1; }\n",
	})
	l := New(Config{})
	assert.False(t, l.HasResolver())
	_, stats := f.link(t, l)
	assert.Zero(t, stats.ResolverCalls)
}

func TestPathCandidates(t *testing.T) {
	tests := []struct {
		name  string
		from  string
		spec  string
		first string
		count int
	}{
		{"sibling", "src/a.ts", "./b", "src/b", 9},
		{"parent", "src/x/a.ts", "../b", "src/b", 9},
		{"esm js", "src/a.ts", "./b.js", "src/b.js", 11},
		{"escapes root", "a.ts", "../b", "", 0},
		{"bare", "a.ts", "react", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pathCandidates(tt.from, tt.spec)
			assert.Len(t, got, tt.count)
			if tt.count > 0 {
				assert.Equal(t, tt.first, got[0])
			}
		})
	}
}

func TestResolvePath_IndexAndESM(t *testing.T) {
	f := build(t, map[string]string{
		"src/lib/index.ts": "export const x = 1;\n",
		"src/util.ts":      "export const y = 1;\n",
		"src/main.ts":      "export const z = 1;\n",
	})
	assert.Equal(t, "src/lib/index.ts", resolvePath(f.ix, "src/main.ts", "./lib"))
	assert.Equal(t, "src/util.ts", resolvePath(f.ix, "src/main.ts", "./util.js"))
	assert.Equal(t, "", resolvePath(f.ix, "src/main.ts", "./missing"))
}

func TestAffected(t *testing.T) {
	refs := []graph.Reference{
		{Kind: graph.RefKindCall, File: "a.ts", Name: "helper"},
		{Kind: graph.RefKindImport, File: "src/a.ts", Name: "x", Specifier: "./lib"},
	}
	assert.True(t, Affected(refs, map[string]bool{"helper": true}, nil))
	assert.True(t, Affected(refs, nil, map[string]bool{"src/lib/index.ts": true}))
	assert.False(t, Affected(refs, map[string]bool{"other": true}, map[string]bool{"src/other.ts": true}))
}

func TestPackageName(t *testing.T) {
	tests := map[string]string{
		"react":               "react",
		"lodash/fp":           "lodash",
		"@scope/pkg":          "@scope/pkg",
		"@scope/pkg/sub/deep": "@scope/pkg",
		"@scope":              "",
		"./local":             "",
		"../up":               "",
		"/abs":                "",
		"":                    "",
	}
	for spec, want := range tests {
		assert.Equal(t, want, PackageName(spec), spec)
	}
}

func TestLibraryNode_MinVersion(t *testing.T) {
	tests := []struct {
		declared string
		want     string
	}{
		{"^1.2.3", "1.2.3"},
		{"~2.0", "2.0.0"},
		{">=3", "3.0.0"},
		{"latest", ""},
		{"1.x || 2.x", ""},
	}
	for _, tt := range tests {
		n := LibraryNode("pkg", tt.declared)
		assert.Equal(t, tt.want, n.Attr(AttrMinVersion), tt.declared)
		assert.Equal(t, graph.LibraryID("pkg"), n.ID)
	}
}

func TestStats_Merge(t *testing.T) {
	a := NewStats()
	a.resolved(StepGlobal)
	a.Unresolved = 2
	b := NewStats()
	b.resolved(StepGlobal)
	b.resolved(StepHTTP)
	b.Ambiguous = 1

	a.Merge(b)
	a.Merge(nil)
	assert.Equal(t, 3, a.ResolvedTotal())
	assert.Equal(t, []string{StepGlobal, StepHTTP}, a.Steps())
	assert.Equal(t, 2, a.Unresolved)
	assert.Equal(t, 1, a.Ambiguous)
}
