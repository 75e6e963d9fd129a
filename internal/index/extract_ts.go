package index

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// tsExtractor extracts functions and call sites from TypeScript and
// JavaScript source files.
type tsExtractor struct{}

func (tsExtractor) visit(x *extraction, node *tree_sitter.Node, owner int) int {
	switch node.Kind() {
	case "function_declaration", "generator_function_declaration":
		if name := node.ChildByFieldName("name"); name != nil {
			return x.addFunction(node, name, callgraph.SymbolKindFunction, "")
		}

	case "method_definition":
		name := node.ChildByFieldName("name")
		if name == nil {
			break
		}
		kind := callgraph.SymbolKindMethod
		if x.text(name) == "constructor" {
			kind = callgraph.SymbolKindConstructor
		}
		detail := ""
		if cls, _ := enclosingKind(node, "class_declaration", "class"); cls != nil {
			detail = x.text(cls.ChildByFieldName("name"))
		}
		return x.addFunction(node, name, kind, detail)

	case "variable_declarator":
		// const foo = () => { ... } and const foo = function () { ... }
		value := node.ChildByFieldName("value")
		name := node.ChildByFieldName("name")
		if value == nil || name == nil || name.Kind() != "identifier" {
			break
		}
		switch value.Kind() {
		case "arrow_function", "function_expression", "function":
			return x.addFunction(node, name, callgraph.SymbolKindFunction, "")
		}

	case "call_expression":
		fn := node.ChildByFieldName("function")
		if fn == nil {
			break
		}
		switch fn.Kind() {
		case "identifier":
			x.addCall(owner, fn)
		case "member_expression":
			x.addCall(owner, fn.ChildByFieldName("property"))
		}

	case "new_expression":
		if ctor := node.ChildByFieldName("constructor"); ctor != nil && ctor.Kind() == "identifier" {
			x.addCall(owner, ctor)
		}
	}
	return owner
}
