package mcptools

import (
	"time"

	"github.com/dusk-indust/chartographer/internal/callgraph"
	"github.com/dusk-indust/chartographer/internal/graph"
	"github.com/dusk-indust/chartographer/internal/session"
)

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// OpenCallGraphInput is the input for the open_call_graph MCP tool.
type OpenCallGraphInput struct {
	File      string `json:"file,omitempty" jsonschema:"source file containing the entry function, absolute or relative to the workspace root"`
	Line      int    `json:"line,omitempty" jsonschema:"zero-based line of the entry function"`
	Character int    `json:"character,omitempty" jsonschema:"zero-based column of the entry function"`
	Symbol    string `json:"symbol,omitempty" jsonschema:"entry function name (or Type.method) instead of a position"`
	Direction string `json:"direction,omitempty" jsonschema:"incoming, outgoing or both (default: both)"`
	MaxDepth  *int   `json:"maxDepth,omitempty" jsonschema:"depth bound; negative means unlimited (default: configured maxDepth)"`
	Title     string `json:"title,omitempty" jsonschema:"session title (default: entry function names)"`
	Append    bool   `json:"append,omitempty" jsonschema:"explore into the focused session instead of opening a new one"`
}

// SessionSummary describes one open session.
type SessionSummary struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Direction string   `json:"direction"`
	MaxDepth  int      `json:"maxDepth"`
	Roots     []string `json:"roots"`
	Functions int      `json:"functions"`
	Files     int      `json:"files"`
	Edges     int      `json:"edges"`
	UpdatedAt string   `json:"updatedAt"`
}

// ExploreStats reports one traversal.
type ExploreStats struct {
	Expanded   int64 `json:"expanded"`
	Edges      int64 `json:"edges"`
	Filtered   int64 `json:"filtered"`
	Errors     int64 `json:"errors"`
	DurationMS int64 `json:"durationMs"`
}

// OpenCallGraphOutput is the result of the open_call_graph MCP tool.
type OpenCallGraphOutput struct {
	Session SessionSummary `json:"session"`
	Stats   ExploreStats   `json:"stats"`
}

// ExpandNodeInput is the input for the expand_node MCP tool.
type ExpandNodeInput struct {
	SessionID string `json:"sessionId" jsonschema:"id of an open session"`
	NodeID    string `json:"nodeId" jsonschema:"function node id (node:...) to explore from"`
	Direction string `json:"direction,omitempty" jsonschema:"incoming, outgoing or both (default: both)"`
	Depth     *int   `json:"depth,omitempty" jsonschema:"depth bound for this expansion (default: the session's)"`
}

// ExpandNodeOutput is the result of the expand_node MCP tool.
type ExpandNodeOutput struct {
	Added int          `json:"added"`
	Stats ExploreStats `json:"stats"`
}

// GetElementsInput is the input for the get_elements MCP tool.
type GetElementsInput struct {
	SessionID string `json:"sessionId" jsonschema:"id of an open session"`
	Kind      string `json:"kind,omitempty" jsonschema:"functions, files, edges or all (default: all)"`
}

// GetElementsOutput is the result of the get_elements MCP tool.
type GetElementsOutput struct {
	Elements []graph.Element `json:"elements"`
	Total    int             `json:"total"`
}

// LocateNodeInput is the input for the locate_node MCP tool.
type LocateNodeInput struct {
	SessionID string `json:"sessionId" jsonschema:"id of an open session"`
	NodeID    string `json:"nodeId" jsonschema:"function node id (node:...)"`
}

// LocateNodeOutput is the result of the locate_node MCP tool.
type LocateNodeOutput struct {
	URI       string `json:"uri"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
}

// ExportGraphInput is the input for the export_graph MCP tool.
type ExportGraphInput struct {
	SessionID string `json:"sessionId" jsonschema:"id of an open session"`
	Format    string `json:"format,omitempty" jsonschema:"mermaid or json (default: mermaid)"`
}

// ExportGraphOutput is the result of the export_graph MCP tool.
type ExportGraphOutput struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}

// ListSessionsInput is the input for the list_sessions MCP tool.
type ListSessionsInput struct{}

// SavedSession describes one persisted session.
type SavedSession struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Direction string `json:"direction"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
	UpdatedAt string `json:"updatedAt"`
}

// ListSessionsOutput is the result of the list_sessions MCP tool.
type ListSessionsOutput struct {
	Open  []SessionSummary `json:"open"`
	Saved []SavedSession   `json:"saved"`
}

// SessionInput addresses one session.
type SessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"session id"`
}

// CloseSessionInput is the input for the close_session MCP tool.
type CloseSessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"id of an open session"`
	Save      bool   `json:"save,omitempty" jsonschema:"persist the session before closing it"`
}

// CloseSessionOutput is the result of the close_session MCP tool.
type CloseSessionOutput struct {
	Closed bool `json:"closed"`
	Saved  bool `json:"saved"`
}

// SaveSessionOutput is the result of the save_session MCP tool.
type SaveSessionOutput struct {
	Saved SavedSession `json:"saved"`
}

// RestoreSessionOutput is the result of the restore_session MCP tool.
type RestoreSessionOutput struct {
	Session SessionSummary `json:"session"`
}

func summarize(info session.Info) SessionSummary {
	roots := info.Roots
	if roots == nil {
		roots = []string{}
	}
	return SessionSummary{
		ID:        info.ID,
		Title:     info.Title,
		Direction: string(info.Direction),
		MaxDepth:  info.MaxDepth,
		Roots:     roots,
		Functions: info.Counts.Functions,
		Files:     info.Counts.Files,
		Edges:     info.Counts.Edges,
		UpdatedAt: info.UpdatedAt.Format(time.RFC3339),
	}
}

func savedSession(info graph.SnapshotInfo) SavedSession {
	return SavedSession{
		ID:        info.ID,
		Title:     info.Title,
		Direction: info.Direction,
		Nodes:     info.Nodes,
		Edges:     info.Edges,
		UpdatedAt: info.UpdatedAt.Format(time.RFC3339),
	}
}

func exploreStats(s *callgraph.Stats) ExploreStats {
	if s == nil {
		return ExploreStats{}
	}
	return ExploreStats{
		Expanded:   s.Expanded,
		Edges:      s.Edges,
		Filtered:   s.Filtered,
		Errors:     s.Errors,
		DurationMS: s.Duration.Milliseconds(),
	}
}
