package normalizer

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// patternIdentifiers collects the names a binding pattern introduces:
// plain identifiers, array/object destructuring elements, and the names
// of a lexical declaration used as a for-initializer. Member expression
// targets (obj.x = ...) bind nothing.
func patternIdentifiers(node *sitter.Node, src []byte) []string {
	var out []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Kind() {
		case "identifier", "shorthand_property_identifier_pattern":
			out = append(out, nodeText(n, src))
			return
		case "member_expression", "subscript_expression":
			return
		case "pair_pattern":
			if value := n.ChildByFieldName("value"); value != nil {
				walk(value)
			}
			return
		case "assignment_pattern":
			if left := n.ChildByFieldName("left"); left != nil {
				walk(left)
			}
			return
		case "variable_declarator":
			if name := n.ChildByFieldName("name"); name != nil {
				walk(name)
			}
			return
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i))
		}
	}
	if node != nil {
		walk(node)
	}
	return dedupe(out)
}

// freeIdentifiers collects identifiers read by a subtree, in source
// order. Names introduced inside nested functions (callback parameters
// and their local declarations) shadow outer names and are excluded.
// Identifier-level resolution only, no alias analysis.
func freeIdentifiers(node *sitter.Node, src []byte) []string {
	var out []string
	var walk func(n *sitter.Node, shadow map[string]bool)
	walk = func(n *sitter.Node, shadow map[string]bool) {
		switch n.Kind() {
		case "identifier":
			name := nodeText(n, src)
			if !shadow[name] {
				out = append(out, name)
			}
			return
		case "property_identifier", "shorthand_property_identifier_pattern":
			return
		case "arrow_function", "function_expression", "function_declaration", "method_definition":
			inner := make(map[string]bool, len(shadow))
			for name := range shadow {
				inner[name] = true
			}
			for _, name := range localBindings(n, src) {
				inner[name] = true
			}
			if body := n.ChildByFieldName("body"); body != nil {
				walk(body, inner)
			}
			return
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i), shadow)
		}
	}
	if node != nil {
		walk(node, map[string]bool{})
	}
	return dedupe(out)
}

// localBindings lists the parameter and declaration names of one
// function node.
func localBindings(fn *sitter.Node, src []byte) []string {
	var out []string
	if params := fn.ChildByFieldName("parameters"); params != nil {
		out = append(out, patternIdentifiers(params, src)...)
	}
	if param := fn.ChildByFieldName("parameter"); param != nil {
		out = append(out, patternIdentifiers(param, src)...)
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Kind() == "variable_declarator" {
			if name := n.ChildByFieldName("name"); name != nil {
				out = append(out, patternIdentifiers(name, src)...)
			}
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i))
		}
	}
	if body := fn.ChildByFieldName("body"); body != nil {
		walk(body)
	}
	return dedupe(out)
}

func dedupe(names []string) []string {
	if len(names) < 2 {
		return names
	}
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func subtract(names, remove []string) []string {
	if len(names) == 0 || len(remove) == 0 {
		return names
	}
	removeSet := make(map[string]bool, len(remove))
	for _, name := range remove {
		removeSet[name] = true
	}
	out := names[:0]
	for _, name := range names {
		if !removeSet[name] {
			out = append(out, name)
		}
	}
	return out
}
