package treesitter

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

func nodeText(node *sitter.Node, code []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if int(end) > len(code) {
		end = uint(len(code))
	}
	return string(code[start:end])
}

func lineSpan(node *sitter.Node) (int, int) {
	return int(node.StartPosition().Row) + 1, int(node.EndPosition().Row) + 1
}

// enclosingClass walks up to the nearest declaration of one of the
// given kinds and returns its name field.
func enclosingClass(node *sitter.Node, code []byte, kinds ...string) string {
	for current := node.Parent(); current != nil; current = current.Parent() {
		for _, kind := range kinds {
			if current.Kind() == kind {
				return nodeText(current.ChildByFieldName("name"), code)
			}
		}
	}
	return ""
}

// callSites collects callee names under a declaration body. Calls in
// nested closures are attributed to the enclosing declaration.
func callSites(node *sitter.Node, code []byte) []string {
	if node == nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Kind() {
		case "call_expression", "call":
			if name := calleeName(n.ChildByFieldName("function"), code); name != "" && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)
	return names
}

func calleeName(fn *sitter.Node, code []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return nodeText(fn, code)
	case "member_expression":
		return nodeText(fn.ChildByFieldName("property"), code)
	case "attribute":
		return nodeText(fn.ChildByFieldName("attribute"), code)
	}
	return ""
}

// typeNames collects type names from a heritage clause, stripping any
// type arguments: Base<T> reports Base.
func typeNames(clause *sitter.Node, code []byte) []string {
	var names []string
	for i := uint(0); i < clause.ChildCount(); i++ {
		c := clause.Child(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "identifier", "type_identifier", "member_expression", "generic_type", "nested_type_identifier":
			name := nodeText(c, code)
			if idx := strings.IndexByte(name, '<'); idx > 0 {
				name = name[:idx]
			}
			names = append(names, name)
		}
	}
	return names
}
