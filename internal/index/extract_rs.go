package index

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// rsExtractor extracts functions and call sites from Rust source files.
type rsExtractor struct{}

func (rsExtractor) visit(x *extraction, node *tree_sitter.Node, owner int) int {
	switch node.Kind() {
	case "function_item":
		name := node.ChildByFieldName("name")
		if name == nil {
			break
		}
		kind := callgraph.SymbolKindFunction
		detail := ""
		if impl, _ := enclosingKind(node, "impl_item", "trait_item", "function_item"); impl != nil && impl.Kind() != "function_item" {
			kind = callgraph.SymbolKindMethod
			if impl.Kind() == "impl_item" {
				detail = x.text(impl.ChildByFieldName("type"))
			} else {
				detail = x.text(impl.ChildByFieldName("name"))
			}
		}
		return x.addFunction(node, name, kind, detail)

	case "call_expression":
		fn := node.ChildByFieldName("function")
		if fn == nil {
			break
		}
		switch fn.Kind() {
		case "identifier":
			x.addCall(owner, fn)
		case "scoped_identifier":
			x.addCall(owner, fn.ChildByFieldName("name"))
		case "field_expression":
			x.addCall(owner, fn.ChildByFieldName("field"))
		case "generic_function":
			if inner := fn.ChildByFieldName("function"); inner != nil {
				switch inner.Kind() {
				case "identifier":
					x.addCall(owner, inner)
				case "scoped_identifier":
					x.addCall(owner, inner.ChildByFieldName("name"))
				case "field_expression":
					x.addCall(owner, inner.ChildByFieldName("field"))
				}
			}
		}
	}
	return owner
}
