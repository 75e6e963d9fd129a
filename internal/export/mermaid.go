package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/chartographer/internal/graph"
)

// GenerateMermaid produces a Mermaid flowchart from graph elements. Files
// become subgraphs holding their function nodes; edges carry their sequence
// labels.
func GenerateMermaid(elems []graph.Element) string {
	// Build element id → Mermaid id mapping (alphanumeric only).
	ids := make(map[string]string)
	nextID := 0
	getID := func(elemID string) string {
		if id, ok := ids[elemID]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", nextID)
		nextID++
		ids[elemID] = id
		return id
	}

	var (
		files     []graph.Element
		members   = make(map[string][]graph.Element) // file id → function nodes
		orphans   []graph.Element
		edges     []graph.Element
		fileIndex = make(map[string]bool)
	)
	for _, e := range elems {
		switch {
		case e.IsEdge():
			edges = append(edges, e)
		case e.IsFile():
			files = append(files, e)
			fileIndex[e.ID()] = true
		}
	}
	for _, e := range elems {
		if !e.IsFunction() {
			continue
		}
		if fileIndex[e.Data.Parent] {
			members[e.Data.Parent] = append(members[e.Data.Parent], e)
		} else {
			orphans = append(orphans, e)
		}
	}

	var sb strings.Builder
	sb.WriteString("flowchart LR\n")

	for _, f := range files {
		fmt.Fprintf(&sb, "  subgraph %s[\"%s\"]\n", getID(f.ID()), escape(f.Data.Label))
		for _, n := range members[f.ID()] {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", getID(n.ID()), escape(n.Data.Label))
		}
		sb.WriteString("  end\n")
	}
	for _, n := range orphans {
		fmt.Fprintf(&sb, "  %s[\"%s\"]\n", getID(n.ID()), escape(n.Data.Label))
	}

	for _, e := range edges {
		src, tgt := getID(e.Data.Source), getID(e.Data.Target)
		if e.Data.Label == "" || e.Data.Label == graph.EmptyEdgeLabel {
			fmt.Fprintf(&sb, "  %s --> %s\n", src, tgt)
			continue
		}
		fmt.Fprintf(&sb, "  %s -->|\"%s\"| %s\n", src, escape(e.Data.Label), tgt)
	}

	return sb.String()
}

// escape makes s safe inside a quoted Mermaid label.
func escape(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "\n", " ").Replace(s)
}
