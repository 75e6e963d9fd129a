package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the call graph tools registered.
func NewMCPServer(svc *CallGraphService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "chartographer",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "open_call_graph",
		Description: "Open a call graph session rooted at the function at file/line/character (or named by symbol) and explore its callers, callees, or both. With append, the roots are explored into the focused session.",
	}, svc.OpenCallGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "expand_node",
		Description: "Explore further from a function node of an open session and merge the new nodes and edges into it.",
	}, svc.ExpandNode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_elements",
		Description: "Return the function nodes, file nodes and call edges of an open session in the order they were discovered.",
	}, svc.GetElements)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "locate_node",
		Description: "Return the source file and position of a function node and notify the session's viewers to navigate there.",
	}, svc.LocateNode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_graph",
		Description: "Render an open session as a Mermaid flowchart or as cytoscape JSON.",
	}, svc.ExportGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List open call graph sessions and sessions saved in the workspace store.",
	}, svc.ListSessions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "close_session",
		Description: "Close an open session, optionally saving it first.",
	}, svc.CloseSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_session",
		Description: "Persist an open session to the workspace store so it can be restored later.",
	}, svc.SaveSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "restore_session",
		Description: "Reopen a saved session by id.",
	}, svc.RestoreSession)

	return server
}

// RunStdio serves the call graph tools over stdin/stdout until ctx is done
// or the client disconnects.
func RunStdio(ctx context.Context, svc *CallGraphService) error {
	return NewMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}

// Handler returns a streamable HTTP handler serving the call graph tools.
func Handler(svc *CallGraphService) http.Handler {
	server := NewMCPServer(svc)
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)
}
