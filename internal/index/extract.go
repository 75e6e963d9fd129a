package index

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// Function is one declared function or method with the calls made from its
// body, in source order.
type Function struct {
	Symbol   callgraph.SymbolNode
	Language Language
	Calls    []CallSite
}

// CallSite is an unresolved call: the simple name of the callee and where the
// name appears.
type CallSite struct {
	Name string
	Pos  callgraph.Position
}

// extraction accumulates the functions of one file.
type extraction struct {
	uri    string
	source []byte
	lang   Language
	funcs  []Function
}

// addFunction records a declaration spanning decl whose name is nameNode and
// returns its owner index.
func (x *extraction) addFunction(decl, nameNode *tree_sitter.Node, kind callgraph.SymbolKind, detail string) int {
	name := nameNode.Utf8Text(x.source)
	if name == "" {
		return -1
	}
	x.funcs = append(x.funcs, Function{
		Symbol: callgraph.SymbolNode{
			URI:            x.uri,
			Name:           name,
			Kind:           kind,
			Detail:         detail,
			Range:          nodeRange(decl),
			SelectionRange: nodeRange(nameNode),
		},
		Language: x.lang,
	})
	return len(x.funcs) - 1
}

// addCall attributes a call of nameNode to the function at owner. Calls
// outside any function (package-level initializers) are dropped.
func (x *extraction) addCall(owner int, nameNode *tree_sitter.Node) {
	if owner < 0 || nameNode == nil {
		return
	}
	name := nameNode.Utf8Text(x.source)
	if name == "" {
		return
	}
	x.funcs[owner].Calls = append(x.funcs[owner].Calls, CallSite{
		Name: name,
		Pos:  position(nameNode.StartPosition()),
	})
}

func (x *extraction) text(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(x.source)
}

func position(p tree_sitter.Point) callgraph.Position {
	return callgraph.Position{Line: int(p.Row), Character: int(p.Column)}
}

func nodeRange(n *tree_sitter.Node) callgraph.Range {
	return callgraph.Range{
		Start: position(n.StartPosition()),
		End:   position(n.EndPosition()),
	}
}

// enclosingKind walks up from n and reports the kind of the first ancestor
// found in kinds, or "".
func enclosingKind(n *tree_sitter.Node, kinds ...string) (*tree_sitter.Node, string) {
	for p := n.Parent(); p != nil; p = p.Parent() {
		k := p.Kind()
		for _, want := range kinds {
			if k == want {
				return p, k
			}
		}
	}
	return nil, ""
}
