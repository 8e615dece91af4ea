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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

// Rule priorities. Higher wins on the same node type.
const (
	priorityFallback = 1
	priorityBinding  = 2
	priorityImport   = 3
)

// commonRules are shared by every ECMAScript profile.
func commonRules() []Rule {
	return []Rule{
		{Construct: ConstructFunction, NodeType: nodeFunctionDeclaration, Priority: priorityFallback, Match: matchNamed("name")},
		{Construct: ConstructFunction, NodeType: nodeGeneratorFunctionDeclaration, Priority: priorityFallback, Match: matchNamed("name")},
		{Construct: ConstructFunction, NodeType: nodeMethodDefinition, Priority: priorityFallback, Match: matchMethod},
		{Construct: ConstructFunction, NodeType: nodeFieldDefinition, Priority: priorityFallback, Match: matchFieldFunction("property")},
		{Construct: ConstructFunction, NodeType: nodeVariableDeclarator, Priority: priorityBinding, Match: matchFunctionBinding},
		{Construct: ConstructVar, NodeType: nodeVariableDeclarator, Priority: priorityFallback, Match: matchTopLevelVar},

		{Construct: ConstructFunction, NodeType: nodeArrowFunction, Priority: priorityFallback, Match: matchAnonymousDefault},
		{Construct: ConstructFunction, NodeType: nodeFunctionExpression, Priority: priorityFallback, Match: matchAnonymousDefault},
		{Construct: ConstructFunction, NodeType: nodeFunction, Priority: priorityFallback, Match: matchAnonymousDefault},
		{Construct: ConstructClass, NodeType: nodeClass, Priority: priorityFallback, Match: matchAnonymousDefault},
		{Construct: ConstructClass, NodeType: nodeClassDeclaration, Priority: priorityFallback, Match: matchClass},

		{Construct: ConstructImport, NodeType: nodeImportStatement, Priority: priorityImport, Match: matchImport},
		{Construct: ConstructImport, NodeType: nodeExportStatement, Priority: priorityImport, Match: matchReexport},
		{Construct: ConstructImport, NodeType: nodeCallExpression, Priority: priorityImport, Match: matchRequire},
		{Construct: ConstructRequest, NodeType: nodeCallExpression, Priority: priorityBinding, Match: matchRequest},
		{Construct: ConstructRoute, NodeType: nodeCallExpression, Priority: priorityFallback, Match: matchRoute},
	}
}

// typedRules adds the TypeScript-only declarations.
func typedRules() []Rule {
	return append(commonRules(),
		Rule{Construct: ConstructFunction, NodeType: nodePublicFieldDefinition, Priority: priorityFallback, Match: matchFieldFunction("name")},
		Rule{Construct: ConstructClass, NodeType: nodeAbstractClassDeclaration, Priority: priorityFallback, Match: matchClass},
		Rule{Construct: ConstructDataModel, NodeType: nodeInterfaceDeclaration, Priority: priorityFallback, Match: matchDataModel("interface")},
		Rule{Construct: ConstructDataModel, NodeType: nodeTypeAliasDeclaration, Priority: priorityFallback, Match: matchDataModel("type")},
		Rule{Construct: ConstructDataModel, NodeType: nodeEnumDeclaration, Priority: priorityFallback, Match: matchDataModel("enum")},
	)
}

// jsxRules recognize declarative route elements.
func jsxRules() []Rule {
	return []Rule{
		{Construct: ConstructPage, NodeType: nodeJSXSelfClosingElement, Priority: priorityFallback, Match: matchPage},
		{Construct: ConstructPage, NodeType: nodeJSXOpeningElement, Priority: priorityFallback, Match: matchPage},
	}
}

// matchNamed captures the text of a name field.
func matchNamed(field string) Matcher {
	return func(n *sitter.Node, src []byte, _ *Profile) (Capture, bool) {
		name := fieldText(n, field, src)
		if name == "" {
			return Capture{}, false
		}
		return Capture{Name: name}, true
	}
}

func matchMethod(n *sitter.Node, src []byte, _ *Profile) (Capture, bool) {
	if !inClassBody(n) {
		return Capture{}, false
	}
	name := fieldText(n, "name", src)
	if name == "" {
		return Capture{}, false
	}
	return Capture{Name: name}, true
}

// matchFieldFunction captures class fields initialized with a function,
// e.g. `handle = () => {}`.
func matchFieldFunction(nameField string) Matcher {
	return func(n *sitter.Node, src []byte, _ *Profile) (Capture, bool) {
		if !inClassBody(n) || !isFunctionValue(n.ChildByFieldName("value")) {
			return Capture{}, false
		}
		name := fieldText(n, nameField, src)
		if name == "" {
			return Capture{}, false
		}
		return Capture{Name: name}, true
	}
}

// matchFunctionBinding captures `const f = () => {}` and `var f = function() {}`.
func matchFunctionBinding(n *sitter.Node, src []byte, _ *Profile) (Capture, bool) {
	name := n.ChildByFieldName("name")
	if name == nil || name.Type() != nodeIdentifier {
		return Capture{}, false
	}
	if !isFunctionValue(n.ChildByFieldName("value")) {
		return Capture{}, false
	}
	return Capture{Name: text(name, src)}, true
}

// matchTopLevelVar captures top-level bindings that are neither functions
// nor require() imports.
func matchTopLevelVar(n *sitter.Node, src []byte, _ *Profile) (Capture, bool) {
	name := n.ChildByFieldName("name")
	if name == nil || name.Type() != nodeIdentifier || !isTopLevel(n) {
		return Capture{}, false
	}
	if _, ok := isRequireCall(n.ChildByFieldName("value"), src); ok {
		return Capture{}, false
	}
	return Capture{Name: text(name, src)}, true
}

// matchAnonymousDefault captures `export default () => {}` and friends,
// naming them after the file.
func matchAnonymousDefault(n *sitter.Node, src []byte, _ *Profile) (Capture, bool) {
	parent := n.Parent()
	if !isDefaultExport(parent) {
		return Capture{}, false
	}
	if n.ChildByFieldName("name") != nil {
		return Capture{}, false
	}
	return Capture{Attrs: map[string]string{graph.AttrDefault: "true"}}, true
}

func matchClass(n *sitter.Node, src []byte, _ *Profile) (Capture, bool) {
	name := fieldText(n, "name", src)
	if name == "" {
		return Capture{}, false
	}
	return Capture{Name: name, Refs: implementsClause(n, src)}, true
}

// implementsClause returns the interface names a class declares it
// implements.
func implementsClause(class *sitter.Node, src []byte) []string {
	var names []string
	for i := 0; i < int(class.NamedChildCount()); i++ {
		heritage := class.NamedChild(i)
		if heritage.Type() != nodeClassHeritage {
			continue
		}
		for j := 0; j < int(heritage.NamedChildCount()); j++ {
			clause := heritage.NamedChild(j)
			if clause.Type() != nodeImplementsClause {
				continue
			}
			for k := 0; k < int(clause.NamedChildCount()); k++ {
				t := clause.NamedChild(k)
				switch t.Type() {
				case nodeTypeIdentifier:
					names = append(names, text(t, src))
				case nodeGenericType:
					names = append(names, fieldText(t, "name", src))
				}
			}
		}
	}
	return names
}

func matchDataModel(form string) Matcher {
	return func(n *sitter.Node, src []byte, _ *Profile) (Capture, bool) {
		name := fieldText(n, "name", src)
		if name == "" {
			return Capture{}, false
		}
		return Capture{Name: name, Attrs: map[string]string{graph.AttrForm: form}}, true
	}
}

func matchImport(n *sitter.Node, src []byte, _ *Profile) (Capture, bool) {
	spec, ok := stringValue(n.ChildByFieldName("source"), src)
	if !ok {
		return Capture{}, false
	}
	return Capture{Name: spec}, true
}

// matchReexport captures `export { a } from './x'` and `export * from './x'`.
func matchReexport(n *sitter.Node, src []byte, p *Profile) (Capture, bool) {
	return matchImport(n, src, p)
}

func matchRequire(n *sitter.Node, src []byte, _ *Profile) (Capture, bool) {
	spec, ok := isRequireCall(n, src)
	if !ok {
		return Capture{}, false
	}
	return Capture{Name: spec}, true
}

// matchRoute captures `<router>.<verb>(<path>, ..., <handler>)`.
func matchRoute(n *sitter.Node, src []byte, p *Profile) (Capture, bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != nodeMemberExpression {
		return Capture{}, false
	}
	verb := fieldText(fn, "property", src)
	object := fn.ChildByFieldName("object")
	if !p.RouteVerbs[verb] || object == nil || p.HTTPClients[text(object, src)] {
		return Capture{}, false
	}
	args := arguments(n)
	if len(args) < 2 {
		return Capture{}, false
	}
	routePath, ok := stringValue(args[0], src)
	if !ok || !strings.HasPrefix(routePath, "/") && routePath != "*" {
		return Capture{}, false
	}
	handler := args[len(args)-1]
	if !isHandlerShape(handler) {
		return Capture{}, false
	}
	return Capture{
		Name:   routePath,
		Attrs:  map[string]string{graph.AttrVerb: strings.ToUpper(verb)},
		Target: handler,
	}, true
}

func isHandlerShape(n *sitter.Node) bool {
	switch n.Type() {
	case nodeIdentifier, nodeMemberExpression, nodeCallExpression:
		return true
	}
	return isFunctionValue(n)
}

// matchRequest captures outbound HTTP calls: fetch(url, {method}),
// axios.<verb>(url), and axios(url | {url, method}).
func matchRequest(n *sitter.Node, src []byte, p *Profile) (Capture, bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return Capture{}, false
	}
	args := arguments(n)
	if len(args) == 0 {
		return Capture{}, false
	}

	verb := "GET"
	var urlNode *sitter.Node
	switch fn.Type() {
	case nodeIdentifier:
		name := text(fn, src)
		switch {
		case p.FetchFunctions[name]:
			urlNode = args[0]
			if len(args) > 1 {
				verb = methodOf(args[1], src, verb)
			}
		case p.HTTPClients[name]:
			if args[0].Type() == nodeObject {
				urlNode = objectProperty(args[0], "url", src)
				verb = methodOf(args[0], src, verb)
			} else {
				urlNode = args[0]
				if len(args) > 1 {
					verb = methodOf(args[1], src, verb)
				}
			}
		default:
			return Capture{}, false
		}
	case nodeMemberExpression:
		method := fieldText(fn, "property", src)
		if !p.HTTPClients[fieldText(fn, "object", src)] || !p.RouteVerbs[method] || method == "all" {
			return Capture{}, false
		}
		verb = strings.ToUpper(method)
		urlNode = args[0]
	default:
		return Capture{}, false
	}

	url, ok := stringValue(urlNode, src)
	if !ok || url == "" {
		return Capture{}, false
	}
	return Capture{
		Name:  url,
		Attrs: map[string]string{graph.AttrVerb: verb, graph.AttrURL: url},
	}, true
}

// methodOf reads the method property of a request options object.
func methodOf(options *sitter.Node, src []byte, fallback string) string {
	if m, ok := stringValue(objectProperty(options, "method", src), src); ok && m != "" {
		return strings.ToUpper(m)
	}
	return fallback
}

// matchPage captures `<Route path="/x" element={<X />} />` and the
// `component={X}` form.
func matchPage(n *sitter.Node, src []byte, p *Profile) (Capture, bool) {
	if !p.RouteElements[fieldText(n, "name", src)] {
		return Capture{}, false
	}
	var routePath, component string
	index := false
	for i := 0; i < int(n.NamedChildCount()); i++ {
		attr := n.NamedChild(i)
		if attr.Type() != nodeJSXAttribute || attr.NamedChildCount() == 0 {
			continue
		}
		key := text(attr.NamedChild(0), src)
		var value *sitter.Node
		if attr.NamedChildCount() > 1 {
			value = attr.NamedChild(1)
		}
		switch key {
		case "path":
			routePath, _ = stringValue(value, src)
		case "index":
			index = true
		case "element":
			component = elementName(value, src)
		case "component", "Component":
			if value != nil && value.Type() == nodeJSXExpression && value.NamedChildCount() == 1 {
				component = text(value.NamedChild(0), src)
			}
		}
	}
	if routePath == "" {
		if !index {
			return Capture{}, false
		}
		routePath = "index"
	}
	c := Capture{Name: routePath, Attrs: map[string]string{graph.AttrPath: routePath}}
	if component != "" {
		c.Attrs[graph.AttrComponent] = component
		c.Refs = []string{component}
	}
	return c, true
}

// elementName returns the element name inside `{<X ... />}`.
func elementName(value *sitter.Node, src []byte) string {
	if value == nil {
		return ""
	}
	if value.Type() == nodeJSXExpression && value.NamedChildCount() == 1 {
		value = value.NamedChild(0)
	}
	switch value.Type() {
	case nodeJSXSelfClosingElement:
		return fieldText(value, "name", src)
	case nodeJSXElement:
		open := value.ChildByFieldName("open_tag")
		if open == nil && value.NamedChildCount() > 0 {
			open = value.NamedChild(0)
		}
		return fieldText(open, "name", src)
	}
	return ""
}
