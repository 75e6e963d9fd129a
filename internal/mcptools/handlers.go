package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/chartographer/internal/callgraph"
	"github.com/dusk-indust/chartographer/internal/export"
	"github.com/dusk-indust/chartographer/internal/graph"
	"github.com/dusk-indust/chartographer/internal/workspace"
)

// CallGraphService exposes a workspace's sessions to MCP tool handlers.
type CallGraphService struct {
	ws *workspace.Workspace
}

// NewCallGraphService creates a CallGraphService over ws.
func NewCallGraphService(ws *workspace.Workspace) *CallGraphService {
	return &CallGraphService{ws: ws}
}

// OpenCallGraph resolves the entry function, opens a session (or appends to
// the focused one) and explores it before returning.
func (s *CallGraphService) OpenCallGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input OpenCallGraphInput,
) (*mcp.CallToolResult, OpenCallGraphOutput, error) {
	if input.File == "" && input.Symbol == "" {
		return nil, OpenCallGraphOutput{}, fmt.Errorf("file or symbol is required")
	}
	dir, err := callgraph.ParseDirection(input.Direction)
	if err != nil {
		return nil, OpenCallGraphOutput{}, err
	}
	req := workspace.OpenRequest{
		File:      input.File,
		Position:  callgraph.Position{Line: input.Line, Character: input.Character},
		Symbol:    input.Symbol,
		Direction: dir,
		MaxDepth:  input.MaxDepth,
		Title:     input.Title,
	}

	if input.Append {
		sess, stats, err := s.ws.AppendToFocused(ctx, req)
		if err != nil {
			return nil, OpenCallGraphOutput{}, err
		}
		return nil, OpenCallGraphOutput{Session: summarize(sess.Info()), Stats: exploreStats(stats)}, nil
	}

	sess, err := s.ws.OpenSession(ctx, req)
	if err != nil {
		return nil, OpenCallGraphOutput{}, err
	}
	stats, err := sess.Explore(ctx)
	if err != nil {
		return nil, OpenCallGraphOutput{}, fmt.Errorf("explore: %w", err)
	}
	return nil, OpenCallGraphOutput{Session: summarize(sess.Info()), Stats: exploreStats(stats)}, nil
}

// ExpandNode explores from an existing function node of a session.
func (s *CallGraphService) ExpandNode(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExpandNodeInput,
) (*mcp.CallToolResult, ExpandNodeOutput, error) {
	sess, err := s.ws.Session(input.SessionID)
	if err != nil {
		return nil, ExpandNodeOutput{}, err
	}
	dir, err := callgraph.ParseDirection(input.Direction)
	if err != nil {
		return nil, ExpandNodeOutput{}, err
	}
	depth := sess.Info().MaxDepth
	if input.Depth != nil {
		depth = *input.Depth
	}

	before := sess.Model().Len()
	stats, err := sess.Expand(ctx, input.NodeID, dir, depth)
	if err != nil {
		return nil, ExpandNodeOutput{}, err
	}
	return nil, ExpandNodeOutput{
		Added: sess.Model().Len() - before,
		Stats: exploreStats(stats),
	}, nil
}

// GetElements returns a session's elements in insertion order, optionally
// restricted to one kind.
func (s *CallGraphService) GetElements(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetElementsInput,
) (*mcp.CallToolResult, GetElementsOutput, error) {
	sess, err := s.ws.Session(input.SessionID)
	if err != nil {
		return nil, GetElementsOutput{}, err
	}

	var keep func(graph.Element) bool
	switch strings.ToLower(input.Kind) {
	case "", "all":
		keep = func(graph.Element) bool { return true }
	case "functions":
		keep = graph.Element.IsFunction
	case "files":
		keep = graph.Element.IsFile
	case "edges":
		keep = graph.Element.IsEdge
	default:
		return nil, GetElementsOutput{}, fmt.Errorf("unknown kind %q (want functions, files, edges or all)", input.Kind)
	}

	out := GetElementsOutput{Elements: []graph.Element{}}
	for _, e := range sess.Model().Elements() {
		if keep(e) {
			out.Elements = append(out.Elements, e)
		}
	}
	out.Total = len(out.Elements)
	return nil, out, nil
}

// LocateNode returns the source location of a function node and sends a
// navigate message to the session's subscribers.
func (s *CallGraphService) LocateNode(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input LocateNodeInput,
) (*mcp.CallToolResult, LocateNodeOutput, error) {
	sess, err := s.ws.Session(input.SessionID)
	if err != nil {
		return nil, LocateNodeOutput{}, err
	}
	loc, err := sess.Model().Locate(input.NodeID)
	if err != nil {
		return nil, LocateNodeOutput{}, err
	}
	if err := sess.GoToFunction(ctx, input.NodeID); err != nil {
		return nil, LocateNodeOutput{}, err
	}
	return nil, LocateNodeOutput{
		URI:       loc.URI,
		Path:      callgraph.URIToPath(loc.URI),
		Line:      loc.Position.Line,
		Character: loc.Position.Character,
	}, nil
}

// ExportGraph renders a session as Mermaid or JSON text.
func (s *CallGraphService) ExportGraph(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ExportGraphInput,
) (*mcp.CallToolResult, ExportGraphOutput, error) {
	sess, err := s.ws.Session(input.SessionID)
	if err != nil {
		return nil, ExportGraphOutput{}, err
	}
	format := input.Format
	if format == "" {
		format = export.FormatMermaid
	}

	var sb strings.Builder
	if err := export.Write(&sb, format, sess.Snapshot()); err != nil {
		return nil, ExportGraphOutput{}, err
	}
	return nil, ExportGraphOutput{Format: format, Content: sb.String()}, nil
}

// ListSessions reports open and saved sessions.
func (s *CallGraphService) ListSessions(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListSessionsInput,
) (*mcp.CallToolResult, ListSessionsOutput, error) {
	out := ListSessionsOutput{Open: []SessionSummary{}, Saved: []SavedSession{}}
	for _, info := range s.ws.Sessions() {
		out.Open = append(out.Open, summarize(info))
	}
	saved, err := s.ws.SavedSessions(ctx)
	if err != nil {
		return nil, ListSessionsOutput{}, err
	}
	for _, info := range saved {
		out.Saved = append(out.Saved, savedSession(info))
	}
	return nil, out, nil
}

// CloseSession closes an open session, saving it first when asked.
func (s *CallGraphService) CloseSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CloseSessionInput,
) (*mcp.CallToolResult, CloseSessionOutput, error) {
	var out CloseSessionOutput
	if input.Save {
		if _, err := s.ws.SaveSession(ctx, input.SessionID); err != nil {
			return nil, out, err
		}
		out.Saved = true
	}
	if err := s.ws.CloseSession(input.SessionID); err != nil {
		return nil, out, err
	}
	out.Closed = true
	return nil, out, nil
}

// SaveSession persists an open session to the workspace store.
func (s *CallGraphService) SaveSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, SaveSessionOutput, error) {
	info, err := s.ws.SaveSession(ctx, input.SessionID)
	if err != nil {
		return nil, SaveSessionOutput{}, err
	}
	return nil, SaveSessionOutput{Saved: savedSession(info)}, nil
}

// RestoreSession reopens a saved session.
func (s *CallGraphService) RestoreSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, RestoreSessionOutput, error) {
	sess, err := s.ws.RestoreSession(ctx, input.SessionID)
	if err != nil {
		return nil, RestoreSessionOutput{}, err
	}
	return nil, RestoreSessionOutput{Session: summarize(sess.Info())}, nil
}
