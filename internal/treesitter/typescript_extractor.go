package treesitter

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// extractTypeScript walks a typescript or tsx tree. On top of the shared
// ECMA builders it reads interfaces, type aliases and enums.
func extractTypeScript(result *FileParse, root *sitter.Node, code []byte) {
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		switch node.Kind() {
		case "function_declaration", "generator_function_declaration":
			if e, ok := functionEntity(node, code); ok {
				result.Entities = append(result.Entities, e)
			}
		case "arrow_function", "function_expression":
			if e, ok := assignedFunctionEntity(node, code); ok {
				result.Entities = append(result.Entities, e)
			}
		case "class_declaration", "abstract_class_declaration":
			if e, ok := classEntity(node, code); ok {
				result.Entities = append(result.Entities, e)
			}
		case "method_definition":
			if e, ok := methodEntity(node, code); ok {
				result.Entities = append(result.Entities, e)
			}
		case "interface_declaration":
			if e, ok := interfaceEntity(node, code); ok {
				result.Entities = append(result.Entities, e)
			}
		case "type_alias_declaration", "enum_declaration":
			if e, ok := typeDeclarationEntity(node, code); ok {
				result.Entities = append(result.Entities, e)
			}
		case "import_statement":
			if imp, ok := importEntity(node, code); ok {
				result.Imports = append(result.Imports, imp)
			}
		}
		for i := uint(0); i < node.ChildCount(); i++ {
			walk(node.Child(i))
		}
	}
	walk(root)
}

func interfaceEntity(node *sitter.Node, code []byte) (Entity, bool) {
	name := nodeText(node.ChildByFieldName("name"), code)
	if name == "" {
		return Entity{}, false
	}
	var extends []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == "extends_type_clause" {
			extends = append(extends, typeNames(child, code)...)
		}
	}
	start, end := lineSpan(node)
	return Entity{
		Kind:      KindInterface,
		Name:      name,
		Signature: "interface " + name,
		StartLine: start,
		EndLine:   end,
		Extends:   extends,
	}, true
}

// typeDeclarationEntity covers type aliases and enums, which carry class
// identity in the graph.
func typeDeclarationEntity(node *sitter.Node, code []byte) (Entity, bool) {
	name := nodeText(node.ChildByFieldName("name"), code)
	if name == "" {
		return Entity{}, false
	}
	keyword := "type"
	if node.Kind() == "enum_declaration" {
		keyword = "enum"
	}
	start, end := lineSpan(node)
	return Entity{
		Kind:      KindClass,
		Name:      name,
		Signature: keyword + " " + name,
		StartLine: start,
		EndLine:   end,
	}, true
}
