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

// Tree-sitter node types shared by the TypeScript, TSX, and JavaScript
// grammars. Rules match on these instead of query strings so a grammar
// upgrade that renames a node type fails loudly in tests.
//
// Reference: https://github.com/tree-sitter/tree-sitter-typescript
const (
	nodeProgram = "program"
	nodeComment = "comment"
	nodeError   = "ERROR"

	// Imports and exports
	nodeImportStatement = "import_statement"
	nodeImportClause    = "import_clause"
	nodeNamespaceImport = "namespace_import"
	nodeNamedImports    = "named_imports"
	nodeImportSpecifier = "import_specifier"
	nodeExportStatement = "export_statement"
	nodeExportClause    = "export_clause"
	nodeExportSpecifier = "export_specifier"
	nodeNamespaceExport = "namespace_export"

	// Declarations
	nodeFunctionDeclaration          = "function_declaration"
	nodeGeneratorFunctionDeclaration = "generator_function_declaration"
	nodeClassDeclaration             = "class_declaration"
	nodeAbstractClassDeclaration     = "abstract_class_declaration"
	nodeInterfaceDeclaration         = "interface_declaration"
	nodeTypeAliasDeclaration         = "type_alias_declaration"
	nodeEnumDeclaration              = "enum_declaration"
	nodeLexicalDeclaration           = "lexical_declaration"
	nodeVariableDeclaration          = "variable_declaration"
	nodeVariableDeclarator           = "variable_declarator"

	// Class members
	nodeClass                 = "class"
	nodeClassHeritage         = "class_heritage"
	nodeImplementsClause      = "implements_clause"
	nodeMethodDefinition      = "method_definition"
	nodePublicFieldDefinition = "public_field_definition"
	nodeFieldDefinition       = "field_definition"

	// Function values
	nodeArrowFunction      = "arrow_function"
	nodeFunctionExpression = "function_expression"
	nodeFunction           = "function"
	nodeGeneratorFunction  = "generator_function"

	// Expressions
	nodeCallExpression   = "call_expression"
	nodeNewExpression    = "new_expression"
	nodeMemberExpression = "member_expression"
	nodeArguments        = "arguments"
	nodeObject           = "object"
	nodePair             = "pair"
	nodeIdentifier       = "identifier"
	nodeThis             = "this"

	// Names and literals
	nodeTypeIdentifier     = "type_identifier"
	nodePropertyIdentifier = "property_identifier"
	nodeGenericType        = "generic_type"
	nodeString             = "string"
	nodeStringFragment     = "string_fragment"
	nodeTemplateString     = "template_string"

	// JSX
	nodeJSXElement            = "jsx_element"
	nodeJSXOpeningElement     = "jsx_opening_element"
	nodeJSXSelfClosingElement = "jsx_self_closing_element"
	nodeJSXAttribute          = "jsx_attribute"
	nodeJSXExpression         = "jsx_expression"
)
