package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabel_Outgoing(t *testing.T) {
	assert.Equal(t, "1", Label(Outgoing, "", 1))
	assert.Equal(t, "2", Label(Outgoing, "", 2))
	assert.Equal(t, "1.1", Label(Outgoing, "1", 1))
	assert.Equal(t, "2.3.10", Label(Outgoing, "2.3", 10))
}

func TestLabel_Incoming(t *testing.T) {
	assert.Equal(t, "↣ 1", Label(Incoming, "", 1))
	assert.Equal(t, "2 ↣ 1", Label(Incoming, "↣ 1", 2))
	assert.Equal(t, "3 ↣ 2 ↣ 1", Label(Incoming, "2 ↣ 1", 3))
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want Direction
	}{
		{"Incoming", Incoming},
		{"outgoing", Outgoing},
		{"Both", Both},
		{"", Both},
		{"callers", Incoming},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirection(tt.in)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}

func TestSymbolNode_Key(t *testing.T) {
	n := SymbolNode{
		URI:   "file:///ws/main.go",
		Name:  "main",
		Range: Range{Start: Position{Line: 4, Character: 5}},
	}
	assert.Equal(t, "file:///ws/main.go#main@4:5", n.Key())

	// Kind and detail do not participate in identity.
	other := n
	other.Kind = SymbolKindMethod
	other.Detail = "pkg.main"
	assert.Equal(t, n.Key(), other.Key())
}

func TestCallEdge_CallerCallee(t *testing.T) {
	a := SymbolNode{URI: "file:///a.go", Name: "a"}
	b := SymbolNode{URI: "file:///b.go", Name: "b"}

	out := CallEdge{From: a, To: b, Direction: Outgoing}
	assert.Equal(t, "a", out.Caller().Name)
	assert.Equal(t, "b", out.Callee().Name)

	// Expanding b incoming discovers a as a caller.
	in := CallEdge{From: b, To: a, Direction: Incoming}
	assert.Equal(t, "a", in.Caller().Name)
	assert.Equal(t, "b", in.Callee().Name)
}

func TestURIConversion(t *testing.T) {
	assert.Equal(t, "/ws/src/a b.go", URIToPath("file:///ws/src/a%20b.go"))
	assert.Equal(t, "relative/x.go", URIToPath("relative/x.go"))
	assert.Equal(t, "file:///ws/src/a%20b.go", PathToURI("/ws/src/a b.go"))
}

func TestRange_Contains(t *testing.T) {
	r := Range{Start: Position{Line: 2, Character: 4}, End: Position{Line: 5, Character: 1}}
	assert.True(t, r.Contains(Position{Line: 2, Character: 4}))
	assert.True(t, r.Contains(Position{Line: 3, Character: 0}))
	assert.False(t, r.Contains(Position{Line: 2, Character: 3}))
	assert.False(t, r.Contains(Position{Line: 5, Character: 1}))
	assert.False(t, r.Contains(Position{Line: 6, Character: 0}))
}
