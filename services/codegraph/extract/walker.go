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
	"context"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

const (
	// maxWalkDepth bounds recursion on pathological nesting.
	maxWalkDepth = 1000

	// ctxCheckInterval is how many syntax nodes are visited between
	// context checks.
	ctxCheckInterval = 256
)

type scope struct {
	id   string
	kind graph.NodeKind
	name string
}

// walker is the per-file state of one extraction. It is never shared.
type walker struct {
	ctx     context.Context
	profile *Profile
	res     *Result
	src     []byte

	scopes  []scope
	visited int

	// inline maps the start byte of an inline route handler to the
	// Function node synthesized for it.
	inline map[uint32]string

	importTexts []string
	importStmts map[uint32]bool
	importSpan  graph.Span
	importLines [2]int
	importRefs  []graph.Reference

	exported    map[string]bool
	defaultName string
	topLevel    map[string][]int
	renders     map[string]bool
}

func newWalker(ctx context.Context, profile *Profile, res *Result, src []byte) *walker {
	return &walker{
		ctx:         ctx,
		profile:     profile,
		res:         res,
		src:         src,
		inline:      make(map[uint32]string),
		importStmts: make(map[uint32]bool),
		exported:    make(map[string]bool),
		topLevel:    make(map[string][]int),
		renders:     make(map[string]bool),
	}
}

func (w *walker) run(root *sitter.Node) error {
	if err := w.walk(root, 0); err != nil {
		return err
	}
	w.finishExports()
	w.finishImports()
	return nil
}

func (w *walker) walk(n *sitter.Node, depth int) error {
	if depth > maxWalkDepth {
		return ErrNestingTooDeep
	}
	w.visited++
	if w.visited%ctxCheckInterval == 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
	}

	pushed := w.visit(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if err := w.walk(n.NamedChild(i), depth+1); err != nil {
			return err
		}
	}
	if pushed {
		w.scopes = w.scopes[:len(w.scopes)-1]
	}
	return nil
}

// visit applies the first matching rule for n and reports whether a scope
// was opened.
func (w *walker) visit(n *sitter.Node) bool {
	for _, rule := range w.profile.rulesFor(n.Type()) {
		c, ok := rule.Match(n, w.src, w.profile)
		if !ok {
			continue
		}
		return w.emit(rule.Construct, n, c)
	}

	switch n.Type() {
	case nodeCallExpression, nodeNewExpression:
		w.callRef(n)
	case nodeJSXOpeningElement, nodeJSXSelfClosingElement:
		w.renderRef(n)
	case nodeExportStatement:
		w.recordExports(n)
	}
	if id, ok := w.inline[n.StartByte()]; ok && isFunctionValue(n) {
		delete(w.inline, n.StartByte())
		w.scopes = append(w.scopes, scope{id: id, kind: graph.NodeKindFunction})
		return true
	}
	return false
}

func (w *walker) emit(construct Construct, n *sitter.Node, c Capture) bool {
	switch construct {
	case ConstructFunction:
		name := c.Name
		if name == "" {
			name = defaultExportName(w.res.Path)
		}
		attrs := w.declAttrs(n, c.Attrs)
		if cls := w.enclosingClass(); cls != "" && inClassBody(n) {
			attrs[graph.AttrClass] = cls
		}
		node := w.emitNode(graph.NodeKindFunction, name, n, attrs, w.container())
		w.trackTopLevel(node)
		w.scopes = append(w.scopes, scope{id: node.ID, kind: graph.NodeKindFunction, name: name})
		return true

	case ConstructClass:
		name := c.Name
		if name == "" {
			name = defaultExportName(w.res.Path)
		}
		node := w.emitNode(graph.NodeKindClass, name, n, w.declAttrs(n, c.Attrs), w.container())
		w.trackTopLevel(node)
		for _, iface := range c.Refs {
			if iface == "" {
				continue
			}
			ref := w.ref(graph.RefKindImplements, node.ID, n.ChildByFieldName("name"))
			ref.Name = iface
			w.res.Refs = append(w.res.Refs, ref)
		}
		w.scopes = append(w.scopes, scope{id: node.ID, kind: graph.NodeKindClass, name: name})
		return true

	case ConstructDataModel, ConstructVar:
		kind := graph.NodeKindDataModel
		if construct == ConstructVar {
			kind = graph.NodeKindVar
		}
		node := w.emitNode(kind, c.Name, n, w.declAttrs(n, c.Attrs), w.container())
		w.trackTopLevel(node)

	case ConstructImport:
		w.addImport(n, c.Name)

	case ConstructRoute:
		w.emitRoute(n, c)

	case ConstructRequest:
		node := w.emitNode(graph.NodeKindRequest, c.Name, n, copyAttrs(c.Attrs), w.res.File.ID)
		if fn := w.enclosingFunction(); fn != "" {
			w.res.Edges = append(w.res.Edges, graph.Edge{From: fn, Kind: graph.EdgeKindCalls, To: node.ID})
		}

	case ConstructPage:
		node := w.emitNode(graph.NodeKindPage, c.Name, n, copyAttrs(c.Attrs), w.res.File.ID)
		for _, component := range c.Refs {
			ref := w.ref(graph.RefKindRender, node.ID, n)
			ref.Receiver, ref.Name = splitMember(component)
			w.res.Refs = append(w.res.Refs, ref)
		}
	}
	return false
}

// emitRoute creates the Endpoint node and links or defers its handler.
func (w *walker) emitRoute(n *sitter.Node, c Capture) {
	attrs := copyAttrs(c.Attrs)
	attrs[graph.AttrPath] = c.Name
	endpoint := w.emitNode(graph.NodeKindEndpoint, c.Name, n, attrs, w.res.File.ID)

	handler := c.Target
	if handler.Type() == nodeCallExpression {
		// Wrapped handlers such as asyncHandler(createPerson).
		args := arguments(handler)
		if len(args) != 1 {
			return
		}
		handler = args[0]
	}

	switch {
	case isFunctionValue(handler):
		name := fmt.Sprintf("%s %s", attrs[graph.AttrVerb], c.Name)
		fn := w.emitNode(graph.NodeKindFunction, name, handler,
			map[string]string{graph.AttrExported: "false"}, w.res.File.ID)
		w.res.Edges = append(w.res.Edges, graph.Edge{From: endpoint.ID, Kind: graph.EdgeKindHandler, To: fn.ID})
		w.inline[handler.StartByte()] = fn.ID
	case handler.Type() == nodeIdentifier:
		ref := w.ref(graph.RefKindHandler, endpoint.ID, handler)
		ref.Name = text(handler, w.src)
		w.res.Refs = append(w.res.Refs, ref)
	case handler.Type() == nodeMemberExpression:
		prop := handler.ChildByFieldName("property")
		ref := w.ref(graph.RefKindHandler, endpoint.ID, prop)
		ref.Name = text(prop, w.src)
		ref.Receiver = receiverText(handler.ChildByFieldName("object"), w.src)
		w.res.Refs = append(w.res.Refs, ref)
	}
}

// emitNode appends a symbol node and its Contains edge.
func (w *walker) emitNode(kind graph.NodeKind, name string, n *sitter.Node, attrs map[string]string, container string) graph.Node {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs[graph.AttrStartLine] = strconv.Itoa(int(n.StartPoint().Row) + 1)
	attrs[graph.AttrEndLine] = strconv.Itoa(int(n.EndPoint().Row) + 1)
	at := nameNode(n)
	attrs[graph.AttrPosition] = fmt.Sprintf("%d:%d", at.StartPoint().Row, at.StartPoint().Column)

	span := graph.Span{Start: n.StartByte(), End: n.EndByte()}
	node := graph.Node{
		ID:         graph.SymbolID(w.res.Path, kind, name, span.Start),
		Kind:       kind,
		Name:       name,
		File:       w.res.Path,
		Span:       span,
		Attributes: attrs,
	}
	w.res.Nodes = append(w.res.Nodes, node)
	w.res.Edges = append(w.res.Edges, graph.Edge{From: container, Kind: graph.EdgeKindContains, To: node.ID})
	return node
}

// declAttrs returns the capture attributes plus export flags.
func (w *walker) declAttrs(n *sitter.Node, base map[string]string) map[string]string {
	attrs := copyAttrs(base)
	attrs[graph.AttrExported] = "false"
	if stmt := exportStatement(n); stmt != nil {
		attrs[graph.AttrExported] = "true"
		if isDefaultExport(stmt) {
			attrs[graph.AttrDefault] = "true"
		}
	}
	return attrs
}

func (w *walker) trackTopLevel(node graph.Node) {
	if len(w.scopes) == 0 {
		w.topLevel[node.Name] = append(w.topLevel[node.Name], len(w.res.Nodes)-1)
	}
}

// container is the id of the innermost scope, or the File.
func (w *walker) container() string {
	if len(w.scopes) == 0 {
		return w.res.File.ID
	}
	return w.scopes[len(w.scopes)-1].id
}

// enclosingFunction is the id of the innermost scope when it is a function.
func (w *walker) enclosingFunction() string {
	if len(w.scopes) == 0 {
		return ""
	}
	top := w.scopes[len(w.scopes)-1]
	if top.kind != graph.NodeKindFunction {
		return ""
	}
	return top.id
}

func (w *walker) enclosingClass() string {
	if len(w.scopes) == 0 {
		return ""
	}
	top := w.scopes[len(w.scopes)-1]
	if top.kind != graph.NodeKindClass {
		return ""
	}
	return top.name
}

// ref builds a reference positioned at n.
func (w *walker) ref(kind graph.RefKind, from string, at *sitter.Node) graph.Reference {
	r := graph.Reference{Kind: kind, From: from, File: w.res.Path}
	if at != nil {
		r.Offset = at.StartByte()
		r.Line = int(at.StartPoint().Row)
		r.Column = int(at.StartPoint().Column)
	}
	return r
}

// callRef records a call or constructor invocation made from a function.
func (w *walker) callRef(n *sitter.Node) {
	from := w.enclosingFunction()
	if from == "" {
		return
	}
	field := "function"
	if n.Type() == nodeNewExpression {
		field = "constructor"
	}
	target := n.ChildByFieldName(field)
	if target == nil {
		return
	}

	var ref graph.Reference
	switch target.Type() {
	case nodeIdentifier:
		ref = w.ref(graph.RefKindCall, from, target)
		ref.Name = text(target, w.src)
	case nodeMemberExpression:
		prop := target.ChildByFieldName("property")
		ref = w.ref(graph.RefKindCall, from, prop)
		ref.Name = text(prop, w.src)
		ref.Receiver = receiverText(target.ChildByFieldName("object"), w.src)
	default:
		return
	}
	if ref.Name != "" {
		w.res.Refs = append(w.res.Refs, ref)
	}
}

// renderRef records a component rendered as a JSX element.
func (w *walker) renderRef(n *sitter.Node) {
	from := w.enclosingFunction()
	if from == "" {
		return
	}
	nameAt := n.ChildByFieldName("name")
	full := text(nameAt, w.src)
	if w.profile.RouteElements[full] {
		return
	}
	receiver, name := splitMember(full)
	if !isComponentName(name) {
		return
	}
	key := from + "\x00" + full
	if w.renders[key] {
		return
	}
	w.renders[key] = true

	ref := w.ref(graph.RefKindRender, from, nameAt)
	ref.Name = name
	ref.Receiver = receiver
	w.res.Refs = append(w.res.Refs, ref)
}

// recordExports notes `export { a, b as c }` and `export default a`.
func (w *walker) recordExports(n *sitter.Node) {
	if n.ChildByFieldName("source") != nil {
		return
	}
	afterDefault := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "default":
			afterDefault = true
		case nodeIdentifier:
			if afterDefault {
				w.defaultName = text(child, w.src)
				w.exported[w.defaultName] = true
			}
		case nodeExportClause:
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != nodeExportSpecifier {
					continue
				}
				name := fieldText(spec, "name", w.src)
				w.exported[name] = true
				if fieldText(spec, "alias", w.src) == "default" {
					w.defaultName = name
				}
			}
		}
	}
}

func (w *walker) finishExports() {
	for name := range w.exported {
		for _, idx := range w.topLevel[name] {
			w.res.Nodes[idx].Attributes[graph.AttrExported] = "true"
		}
	}
	if w.defaultName != "" {
		for _, idx := range w.topLevel[w.defaultName] {
			w.res.Nodes[idx].Attributes[graph.AttrDefault] = "true"
		}
	}
}

// addImport records the statement text and decomposes it into one
// reference per imported binding.
func (w *walker) addImport(n *sitter.Node, specifier string) {
	stmt := n
	if n.Type() == nodeCallExpression {
		stmt = requireStatement(n)
	}
	if !w.importStmts[stmt.StartByte()] {
		w.importStmts[stmt.StartByte()] = true
		w.importTexts = append(w.importTexts, text(stmt, w.src))
		start, end := stmt.StartByte(), stmt.EndByte()
		startLine, endLine := int(stmt.StartPoint().Row)+1, int(stmt.EndPoint().Row)+1
		if len(w.importTexts) == 1 || start < w.importSpan.Start {
			w.importSpan.Start = start
			w.importLines[0] = startLine
		}
		if end > w.importSpan.End {
			w.importSpan.End = end
			w.importLines[1] = endLine
		}
	}

	add := func(name, alias string, at *sitter.Node) {
		r := w.ref(graph.RefKindImport, "", at)
		r.Name = name
		r.Alias = alias
		r.Specifier = specifier
		w.importRefs = append(w.importRefs, r)
	}

	switch n.Type() {
	case nodeImportStatement:
		clause := childOfType(n, nodeImportClause)
		if clause == nil {
			add("", "", n)
			return
		}
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			part := clause.NamedChild(i)
			switch part.Type() {
			case nodeIdentifier:
				add(graph.ImportDefault, text(part, w.src), part)
			case nodeNamespaceImport:
				if id := childOfType(part, nodeIdentifier); id != nil {
					add(graph.ImportNamespace, text(id, w.src), id)
				}
			case nodeNamedImports:
				for j := 0; j < int(part.NamedChildCount()); j++ {
					spec := part.NamedChild(j)
					if spec.Type() != nodeImportSpecifier {
						continue
					}
					name := spec.ChildByFieldName("name")
					alias := spec.ChildByFieldName("alias")
					at := name
					if alias != nil {
						at = alias
					}
					add(text(name, w.src), text(alias, w.src), at)
				}
			}
		}

	case nodeExportStatement:
		if clause := childOfType(n, nodeExportClause); clause != nil {
			for j := 0; j < int(clause.NamedChildCount()); j++ {
				spec := clause.NamedChild(j)
				if spec.Type() != nodeExportSpecifier {
					continue
				}
				name := spec.ChildByFieldName("name")
				add(text(name, w.src), fieldText(spec, "alias", w.src), name)
			}
			return
		}
		alias := ""
		if ns := childOfType(n, nodeNamespaceExport); ns != nil {
			alias = text(childOfType(ns, nodeIdentifier), w.src)
		}
		add(graph.ImportNamespace, alias, n)

	case nodeCallExpression:
		decl := n.Parent()
		if decl == nil || decl.Type() != nodeVariableDeclarator {
			add("", "", n)
			return
		}
		binding := decl.ChildByFieldName("name")
		if binding == nil {
			add("", "", n)
			return
		}
		switch binding.Type() {
		case nodeIdentifier:
			add(graph.ImportNamespace, text(binding, w.src), binding)
		case "object_pattern":
			for i := 0; i < int(binding.NamedChildCount()); i++ {
				prop := binding.NamedChild(i)
				switch prop.Type() {
				case "shorthand_property_identifier_pattern":
					add(text(prop, w.src), "", prop)
				case "pair_pattern":
					value := prop.ChildByFieldName("value")
					add(fieldText(prop, "key", w.src), text(value, w.src), value)
				}
			}
		default:
			add("", "", n)
		}
	}
}

// finishImports creates the file's single Import node and attaches the
// import references to it.
func (w *walker) finishImports() {
	if len(w.importTexts) == 0 {
		return
	}
	name := fmt.Sprintf("%d imports", len(w.importTexts))
	id := graph.SymbolID(w.res.Path, graph.NodeKindImport, name, w.importSpan.Start)
	w.res.Nodes = append(w.res.Nodes, graph.Node{
		ID:   id,
		Kind: graph.NodeKindImport,
		Name: name,
		File: w.res.Path,
		Span: w.importSpan,
		Attributes: map[string]string{
			graph.AttrText:      strings.Join(w.importTexts, "\n"),
			graph.AttrStartLine: strconv.Itoa(w.importLines[0]),
			graph.AttrEndLine:   strconv.Itoa(w.importLines[1]),
		},
	})
	w.res.Edges = append(w.res.Edges, graph.Edge{From: w.res.File.ID, Kind: graph.EdgeKindContains, To: id})
	for _, r := range w.importRefs {
		r.From = id
		w.res.Refs = append(w.res.Refs, r)
	}
}

// requireStatement returns the declaration or expression statement that
// holds a require() call.
func requireStatement(call *sitter.Node) *sitter.Node {
	for cur := call.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case nodeLexicalDeclaration, nodeVariableDeclaration, "expression_statement":
			return cur
		case nodeProgram, "statement_block":
			return call
		}
	}
	return call
}

// nameNode returns the identifier a declaration is known by, or n.
func nameNode(n *sitter.Node) *sitter.Node {
	for _, field := range []string{"name", "property"} {
		if child := n.ChildByFieldName(field); child != nil {
			return child
		}
	}
	return n
}

func childOfType(n *sitter.Node, typ string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == typ {
			return child
		}
	}
	return nil
}

func receiverText(n *sitter.Node, src []byte) string {
	s := text(n, src)
	if len(s) > maxReceiverLen {
		return ""
	}
	return s
}

func copyAttrs(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+4)
	for k, v := range in {
		out[k] = v
	}
	return out
}
