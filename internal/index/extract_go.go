package index

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// goExtractor extracts functions and call sites from Go source files.
type goExtractor struct{}

func (goExtractor) visit(x *extraction, node *tree_sitter.Node, owner int) int {
	switch node.Kind() {
	case "function_declaration":
		if name := node.ChildByFieldName("name"); name != nil {
			return x.addFunction(node, name, callgraph.SymbolKindFunction, "")
		}

	case "method_declaration":
		if name := node.ChildByFieldName("name"); name != nil {
			return x.addFunction(node, name, callgraph.SymbolKindMethod, goReceiverType(x, node))
		}

	case "call_expression":
		fn := node.ChildByFieldName("function")
		if fn == nil {
			break
		}
		// Best-effort: only simple identifiers and selector expressions.
		switch fn.Kind() {
		case "identifier":
			x.addCall(owner, fn)
		case "selector_expression":
			x.addCall(owner, fn.ChildByFieldName("field"))
		}
	}
	return owner
}

// goReceiverType returns the receiver's type name without pointer or type
// parameters, e.g. "UserService" for (s *UserService).
func goReceiverType(x *extraction, method *tree_sitter.Node) string {
	recv := method.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	text := strings.Trim(x.text(recv), "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	typ := strings.TrimPrefix(fields[len(fields)-1], "*")
	if i := strings.IndexByte(typ, '['); i >= 0 {
		typ = typ[:i]
	}
	return typ
}
