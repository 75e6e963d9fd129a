package index

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// pyExtractor extracts functions and call sites from Python source files.
type pyExtractor struct{}

func (pyExtractor) visit(x *extraction, node *tree_sitter.Node, owner int) int {
	switch node.Kind() {
	case "function_definition":
		name := node.ChildByFieldName("name")
		if name == nil {
			break
		}
		// Decorators belong to the declaration.
		decl := node
		if p := node.Parent(); p != nil && p.Kind() == "decorated_definition" {
			decl = p
		}
		kind := callgraph.SymbolKindFunction
		detail := ""
		if cls, _ := enclosingKind(node, "class_definition", "function_definition"); cls != nil && cls.Kind() == "class_definition" {
			kind = callgraph.SymbolKindMethod
			detail = x.text(cls.ChildByFieldName("name"))
		}
		return x.addFunction(decl, name, kind, detail)

	case "call":
		fn := node.ChildByFieldName("function")
		if fn == nil {
			break
		}
		switch fn.Kind() {
		case "identifier":
			x.addCall(owner, fn)
		case "attribute":
			x.addCall(owner, fn.ChildByFieldName("attribute"))
		}
	}
	return owner
}
