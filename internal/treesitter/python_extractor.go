package treesitter

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

func extractPython(result *FileParse, root *sitter.Node, code []byte) {
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		switch node.Kind() {
		case "function_definition":
			if e, ok := pythonFunction(node, code); ok {
				result.Entities = append(result.Entities, e)
			}
		case "class_definition":
			if e, ok := pythonClass(node, code); ok {
				result.Entities = append(result.Entities, e)
			}
		case "import_statement":
			result.Imports = append(result.Imports, pythonImports(node, code)...)
		case "import_from_statement":
			if module := node.ChildByFieldName("module_name"); module != nil {
				line, _ := lineSpan(node)
				result.Imports = append(result.Imports, Import{
					Path: nodeText(module, code),
					Line: line,
				})
			}
		}
		for i := uint(0); i < node.ChildCount(); i++ {
			walk(node.Child(i))
		}
	}
	walk(root)
}

func pythonFunction(node *sitter.Node, code []byte) (Entity, bool) {
	name := nodeText(node.ChildByFieldName("name"), code)
	if name == "" {
		return Entity{}, false
	}

	sig := "def " + name + nodeText(node.ChildByFieldName("parameters"), code)
	if rt := node.ChildByFieldName("return_type"); rt != nil {
		sig += " -> " + strings.TrimSpace(nodeText(rt, code))
	}

	kind := KindFunction
	qualified := name
	parent := enclosingClass(node, code, "class_definition")
	if parent != "" {
		kind = KindMethod
		qualified = parent + "." + name
	}

	start, end := lineSpan(node)
	return Entity{
		Kind:      kind,
		Name:      qualified,
		Parent:    parent,
		Signature: sig,
		StartLine: start,
		EndLine:   end,
		Calls:     callSites(node.ChildByFieldName("body"), code),
	}, true
}

func pythonClass(node *sitter.Node, code []byte) (Entity, bool) {
	name := nodeText(node.ChildByFieldName("name"), code)
	if name == "" {
		return Entity{}, false
	}

	sig := "class " + name
	var extends []string
	if superclasses := node.ChildByFieldName("superclasses"); superclasses != nil {
		sig += nodeText(superclasses, code)
		for i := uint(0); i < superclasses.ChildCount(); i++ {
			c := superclasses.Child(i)
			if c == nil {
				continue
			}
			switch c.Kind() {
			case "identifier", "attribute":
				extends = append(extends, nodeText(c, code))
			}
		}
	}

	start, end := lineSpan(node)
	return Entity{
		Kind:      KindClass,
		Name:      name,
		Signature: sig,
		StartLine: start,
		EndLine:   end,
		Extends:   extends,
	}, true
}

// pythonImports handles "import a, b.c as d": every listed module yields
// one record, aliases resolve to the module they name.
func pythonImports(node *sitter.Node, code []byte) []Import {
	line, _ := lineSpan(node)
	var imports []Import
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier":
			imports = append(imports, Import{Path: nodeText(child, code), Line: line})
		case "aliased_import":
			imports = append(imports, Import{Path: nodeText(child.ChildByFieldName("name"), code), Line: line})
		}
	}
	return imports
}
