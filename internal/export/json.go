package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/chartographer/internal/graph"
)

// Formats accepted by Write.
const (
	FormatMermaid = "mermaid"
	FormatJSON    = "json"
)

// Formats lists the supported export formats.
var Formats = []string{FormatMermaid, FormatJSON}

// GraphExport is the top-level JSON export structure. Elements uses the
// grouped cytoscape form so it can be passed to cy.add directly.
type GraphExport struct {
	ID         string       `json:"id,omitempty"`
	Title      string       `json:"title,omitempty"`
	Direction  string       `json:"direction,omitempty"`
	ExportedAt string       `json:"exportedAt"`
	Counts     graph.Counts `json:"counts"`
	Elements   Elements     `json:"elements"`
}

// Elements splits cytoscape elements by group.
type Elements struct {
	Nodes []graph.Element `json:"nodes"`
	Edges []graph.Element `json:"edges"`
}

// ExportGraph builds a GraphExport from a session snapshot.
func ExportGraph(snap graph.Snapshot) *GraphExport {
	out := &GraphExport{
		ID:         snap.ID,
		Title:      snap.Title,
		Direction:  snap.Direction,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Elements: Elements{
			Nodes: []graph.Element{},
			Edges: []graph.Element{},
		},
	}
	for _, e := range snap.State.Elements {
		switch {
		case e.IsEdge():
			out.Elements.Edges = append(out.Elements.Edges, e)
			out.Counts.Edges++
		case e.IsFile():
			out.Elements.Nodes = append(out.Elements.Nodes, e)
			out.Counts.Files++
		default:
			out.Elements.Nodes = append(out.Elements.Nodes, e)
			out.Counts.Functions++
		}
	}
	return out
}

// Write renders snap in format to w.
func Write(w io.Writer, format string, snap graph.Snapshot) error {
	switch format {
	case FormatMermaid:
		_, err := io.WriteString(w, GenerateMermaid(snap.State.Elements))
		return err
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ExportGraph(snap))
	default:
		return fmt.Errorf("export: unknown format %q (want one of %v)", format, Formats)
	}
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if format == FormatMermaid {
		return "text/vnd.mermaid; charset=utf-8"
	}
	return "application/json"
}
