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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxReceiverLen bounds receiver text kept on call references.
const maxReceiverLen = 100

func text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(src)
}

func fieldText(n *sitter.Node, field string, src []byte) string {
	if n == nil {
		return ""
	}
	return text(n.ChildByFieldName(field), src)
}

// stringValue returns the literal value of a string or template string.
//
// Template strings are returned raw, without backticks, so that
// `/users/${id}` keeps its substitution for route normalization.
func stringValue(n *sitter.Node, src []byte) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case nodeString:
		if n.NamedChildCount() == 0 {
			raw := n.Content(src)
			if len(raw) < 2 {
				return "", true
			}
			return raw[1 : len(raw)-1], true
		}
		var sb strings.Builder
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == nodeStringFragment || child.Type() == "escape_sequence" {
				sb.WriteString(child.Content(src))
			}
		}
		return sb.String(), true
	case nodeTemplateString:
		raw := n.Content(src)
		return strings.TrimSuffix(strings.TrimPrefix(raw, "`"), "`"), true
	case nodeJSXExpression:
		if n.NamedChildCount() == 1 {
			return stringValue(n.NamedChild(0), src)
		}
	}
	return "", false
}

// isFunctionValue reports whether n is a function literal.
func isFunctionValue(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case nodeArrowFunction, nodeFunctionExpression, nodeFunction, nodeGeneratorFunction:
		return true
	}
	return false
}

// arguments returns the named argument nodes of a call.
func arguments(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.Type() != nodeArguments {
		return nil
	}
	out := make([]*sitter.Node, 0, args.NamedChildCount())
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child.Type() == nodeComment {
			continue
		}
		out = append(out, child)
	}
	return out
}

// objectProperty returns the value of key in an object literal.
func objectProperty(obj *sitter.Node, key string, src []byte) *sitter.Node {
	if obj == nil || obj.Type() != nodeObject {
		return nil
	}
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		pair := obj.NamedChild(i)
		if pair.Type() != nodePair {
			continue
		}
		k := pair.ChildByFieldName("key")
		name := text(k, src)
		if s, ok := stringValue(k, src); ok {
			name = s
		}
		if name == key {
			return pair.ChildByFieldName("value")
		}
	}
	return nil
}

// exportStatement returns the export_statement that exports declaration n,
// or nil. A variable declarator is exported through its declaration.
func exportStatement(n *sitter.Node) *sitter.Node {
	parent := n.Parent()
	if parent == nil {
		return nil
	}
	if n.Type() == nodeVariableDeclarator {
		if parent.Type() != nodeLexicalDeclaration && parent.Type() != nodeVariableDeclaration {
			return nil
		}
		parent = parent.Parent()
		if parent == nil {
			return nil
		}
	}
	if parent.Type() == nodeExportStatement {
		return parent
	}
	return nil
}

// isDefaultExport reports whether an export_statement carries the default
// keyword.
func isDefaultExport(stmt *sitter.Node) bool {
	if stmt == nil || stmt.Type() != nodeExportStatement {
		return false
	}
	for i := 0; i < int(stmt.ChildCount()); i++ {
		if stmt.Child(i).Type() == "default" {
			return true
		}
	}
	return false
}

// isTopLevel reports whether declaration n sits directly in the program,
// possibly behind an export statement.
func isTopLevel(n *sitter.Node) bool {
	parent := n.Parent()
	if n.Type() == nodeVariableDeclarator && parent != nil {
		parent = parent.Parent()
	}
	if parent != nil && parent.Type() == nodeExportStatement {
		parent = parent.Parent()
	}
	return parent != nil && parent.Type() == nodeProgram
}

// inClassBody reports whether member n is declared in a class body.
func inClassBody(n *sitter.Node) bool {
	parent := n.Parent()
	return parent != nil && parent.Type() == "class_body"
}

// isRequireCall reports whether n is require("<specifier>").
func isRequireCall(n *sitter.Node, src []byte) (string, bool) {
	if n == nil || n.Type() != nodeCallExpression {
		return "", false
	}
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != nodeIdentifier || text(fn, src) != "require" {
		return "", false
	}
	args := arguments(n)
	if len(args) != 1 {
		return "", false
	}
	return stringValue(args[0], src)
}

// firstError returns the first ERROR or MISSING node in pre-order.
func firstError(n *sitter.Node) *sitter.Node {
	if n == nil || !n.HasError() && !n.IsMissing() {
		return nil
	}
	if n.Type() == nodeError || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return n
}

// defaultExportName synthesizes a name for an anonymous default export from
// the file name. index files take their directory's name.
func defaultExportName(p string) string {
	base := path.Base(p)
	name := strings.TrimSuffix(base, path.Ext(base))
	if name == "index" {
		if dir := path.Base(path.Dir(p)); dir != "." && dir != "/" {
			return dir
		}
	}
	return name
}

// isComponentName reports whether name follows the component convention of
// starting with an upper-case letter.
func isComponentName(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	return c >= 'A' && c <= 'Z'
}

// splitMember splits "a.b.C" into receiver "a.b" and name "C".
func splitMember(name string) (string, string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
