package treesitter

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// extractJavaScript walks a javascript or jsx tree. The entity builders
// are shared with the typescript walker; the grammars use the same node
// kinds and field names for everything read here.
func extractJavaScript(result *FileParse, root *sitter.Node, code []byte) {
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
		case "class_declaration":
			if e, ok := classEntity(node, code); ok {
				result.Entities = append(result.Entities, e)
			}
		case "method_definition":
			if e, ok := methodEntity(node, code); ok {
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

func functionEntity(node *sitter.Node, code []byte) (Entity, bool) {
	name := nodeText(node.ChildByFieldName("name"), code)
	if name == "" {
		return Entity{}, false
	}
	start, end := lineSpan(node)
	return Entity{
		Kind:      KindFunction,
		Name:      name,
		Signature: signatureOf("function "+name, node, code),
		StartLine: start,
		EndLine:   end,
		Calls:     callSites(node.ChildByFieldName("body"), code),
	}, true
}

// assignedFunctionEntity names an arrow function or function expression
// after the variable or property it is assigned to. Unassigned ones are
// skipped; anonymous callbacks carry no graph identity.
func assignedFunctionEntity(node *sitter.Node, code []byte) (Entity, bool) {
	parent := node.Parent()
	if parent == nil {
		return Entity{}, false
	}

	var name string
	switch parent.Kind() {
	case "variable_declarator":
		name = nodeText(parent.ChildByFieldName("name"), code)
	case "assignment_expression":
		name = nodeText(parent.ChildByFieldName("left"), code)
	case "pair":
		name = nodeText(parent.ChildByFieldName("key"), code)
	}
	if name == "" {
		return Entity{}, false
	}

	start, end := lineSpan(node)
	return Entity{
		Kind:      KindFunction,
		Name:      name,
		Signature: signatureOf("const "+name+" = ", node, code),
		StartLine: start,
		EndLine:   end,
		Calls:     callSites(node.ChildByFieldName("body"), code),
	}, true
}

func classEntity(node *sitter.Node, code []byte) (Entity, bool) {
	name := nodeText(node.ChildByFieldName("name"), code)
	if name == "" {
		return Entity{}, false
	}
	extends, implements := classHeritage(node, code)
	start, end := lineSpan(node)
	return Entity{
		Kind:       KindClass,
		Name:       name,
		Signature:  "class " + name,
		StartLine:  start,
		EndLine:    end,
		Extends:    extends,
		Implements: implements,
	}, true
}

func methodEntity(node *sitter.Node, code []byte) (Entity, bool) {
	name := nodeText(node.ChildByFieldName("name"), code)
	if name == "" {
		return Entity{}, false
	}
	parent := enclosingClass(node, code, "class_declaration", "class")
	qualified := name
	if parent != "" {
		qualified = parent + "." + name
	}
	start, end := lineSpan(node)
	return Entity{
		Kind:      KindMethod,
		Name:      qualified,
		Parent:    parent,
		Signature: signatureOf(name, node, code),
		StartLine: start,
		EndLine:   end,
		Calls:     callSites(node.ChildByFieldName("body"), code),
	}, true
}

func importEntity(node *sitter.Node, code []byte) (Import, bool) {
	source := node.ChildByFieldName("source")
	if source == nil {
		return Import{}, false
	}
	line, _ := lineSpan(node)
	return Import{
		Path: strings.Trim(nodeText(source, code), "\"'`"),
		Line: line,
	}, true
}

// signatureOf renders "prefix(params): type". The return type text is
// normalised since the annotation node may or may not carry the colon.
func signatureOf(prefix string, node *sitter.Node, code []byte) string {
	sig := prefix + nodeText(node.ChildByFieldName("parameters"), code)
	if rt := node.ChildByFieldName("return_type"); rt != nil {
		text := strings.TrimSpace(nodeText(rt, code))
		sig += ": " + strings.TrimSpace(strings.TrimPrefix(text, ":"))
	}
	return sig
}

// classHeritage reads extends/implements names from a class node. The
// typescript grammar nests dedicated clauses under class_heritage; the
// javascript grammar puts the superclass expression there directly.
func classHeritage(node *sitter.Node, code []byte) (extends, implements []string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.Kind() != "class_heritage" {
			continue
		}
		sawClause := false
		for j := uint(0); j < child.ChildCount(); j++ {
			clause := child.Child(j)
			if clause == nil {
				continue
			}
			switch clause.Kind() {
			case "extends_clause":
				sawClause = true
				extends = append(extends, typeNames(clause, code)...)
			case "implements_clause":
				sawClause = true
				implements = append(implements, typeNames(clause, code)...)
			}
		}
		if !sawClause {
			extends = append(extends, typeNames(child, code)...)
		}
	}
	return extends, implements
}
