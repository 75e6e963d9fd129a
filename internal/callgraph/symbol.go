package callgraph

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Direction controls which way the call graph is walked.
type Direction string

const (
	// Outgoing follows caller -> callee edges (what does this call?).
	Outgoing Direction = "outgoing"
	// Incoming follows callee -> caller edges (who calls this?).
	Incoming Direction = "incoming"
	// Both runs an independent Outgoing and an independent Incoming traversal.
	Both Direction = "both"
)

// ParseDirection accepts the lower-case names plus the capitalized forms used
// by editor integrations ("Incoming", "Outgoing", "Both").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "outgoing", "out", "callees":
		return Outgoing, nil
	case "incoming", "in", "callers":
		return Incoming, nil
	case "both", "":
		return Both, nil
	default:
		return "", fmt.Errorf("unknown direction %q (want incoming, outgoing or both)", s)
	}
}

// Position is a zero-based line/character offset in a source file.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether p falls inside r (end exclusive).
func (r Range) Contains(p Position) bool {
	if p.Line < r.Start.Line || p.Line > r.End.Line {
		return false
	}
	if p.Line == r.Start.Line && p.Character < r.Start.Character {
		return false
	}
	if p.Line == r.End.Line && p.Character >= r.End.Character {
		return false
	}
	return true
}

// SymbolKind mirrors the LSP SymbolKind enumeration.
type SymbolKind int

const (
	SymbolKindFile        SymbolKind = 1
	SymbolKindModule      SymbolKind = 2
	SymbolKindNamespace   SymbolKind = 3
	SymbolKindPackage     SymbolKind = 4
	SymbolKindClass       SymbolKind = 5
	SymbolKindMethod      SymbolKind = 6
	SymbolKindProperty    SymbolKind = 7
	SymbolKindField       SymbolKind = 8
	SymbolKindConstructor SymbolKind = 9
	SymbolKindEnum        SymbolKind = 10
	SymbolKindInterface   SymbolKind = 11
	SymbolKindFunction    SymbolKind = 12
	SymbolKindVariable    SymbolKind = 13
	SymbolKindConstant    SymbolKind = 14
)

var symbolKindNames = map[SymbolKind]string{
	SymbolKindFile:        "file",
	SymbolKindModule:      "module",
	SymbolKindNamespace:   "namespace",
	SymbolKindPackage:     "package",
	SymbolKindClass:       "class",
	SymbolKindMethod:      "method",
	SymbolKindProperty:    "property",
	SymbolKindField:       "field",
	SymbolKindConstructor: "constructor",
	SymbolKindEnum:        "enum",
	SymbolKindInterface:   "interface",
	SymbolKindFunction:    "function",
	SymbolKindVariable:    "variable",
	SymbolKindConstant:    "constant",
}

func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// SymbolNode identifies one program symbol occurrence as reported by a
// resolution capability. Values are treated as immutable.
type SymbolNode struct {
	URI            string     `json:"uri"`
	Name           string     `json:"name"`
	Kind           SymbolKind `json:"kind"`
	Detail         string     `json:"detail,omitempty"`
	Range          Range      `json:"range"`
	SelectionRange Range      `json:"selectionRange"`

	// Data is opaque resolver state round-tripped back to the resolver when
	// this node is expanded (LSP call hierarchy items carry one).
	Data json.RawMessage `json:"data,omitempty"`
}

// Key returns the canonical identity of n.
func (n SymbolNode) Key() string {
	return Key(n.URI, n.Name, n.Range.Start)
}

// Path returns the filesystem path for n.URI.
func (n SymbolNode) Path() string {
	return URIToPath(n.URI)
}

// Key builds the canonical key "<file>#<name>@<line>:<character>". Two symbol
// nodes with the same key are the same graph node.
func Key(file, name string, pos Position) string {
	return fmt.Sprintf("%s#%s@%d:%d", file, name, pos.Line, pos.Character)
}

// CallEdge is one discovered call relationship. From is the node being
// expanded and To the neighbor reported by the resolver; for Incoming edges
// that means From is the callee.
type CallEdge struct {
	From      SymbolNode `json:"from"`
	To        SymbolNode `json:"to"`
	Direction Direction  `json:"direction"`
	Label     string     `json:"label,omitempty"`
	Depth     int        `json:"depth"`
}

// Caller returns the calling end of the edge.
func (e CallEdge) Caller() SymbolNode {
	if e.Direction == Incoming {
		return e.To
	}
	return e.From
}

// Callee returns the called end of the edge.
func (e CallEdge) Callee() SymbolNode {
	if e.Direction == Incoming {
		return e.From
	}
	return e.To
}

// Call is one neighbor returned by a Resolver.
type Call struct {
	Symbol    SymbolNode `json:"symbol"`
	Direction Direction  `json:"direction"`
}

// PathToURI converts a filesystem path to a file:// URI.
func PathToURI(path string) string {
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// URIToPath converts a file:// URI to a filesystem path. Anything that is not
// a file URI is returned unchanged.
func URIToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return filepath.FromSlash(strings.TrimPrefix(uri, "file://"))
}
