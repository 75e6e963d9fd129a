package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// ---------------------------------------------------------------------------
// Framing
// ---------------------------------------------------------------------------

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{JSONRPC: JSONRPCVersion, ID: 7, Method: "initialize"}
	require.NoError(t, writeFrame(&buf, req))
	assert.True(t, strings.HasPrefix(buf.String(), "Content-Length: "))
	assert.Contains(t, buf.String(), "\r\n\r\n")

	body, err := readFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	var got Request
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.Method, got.Method)
}

func TestFrame_ExtraHeaders(t *testing.T) {
	raw := "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\ncontent-length: 2\r\n\r\n{}"
	body, err := readFrame(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}

func TestFrame_Errors(t *testing.T) {
	_, err := readFrame(bufio.NewReader(strings.NewReader("X-Other: 1\r\n\r\n{}")))
	assert.Error(t, err)

	_, err = readFrame(bufio.NewReader(strings.NewReader("Content-Length: abc\r\n\r\n")))
	assert.Error(t, err)
}

func TestProtocol_ClosedRejectsRequests(t *testing.T) {
	p := NewProtocol(strings.NewReader(""), &bytes.Buffer{})
	p.Close()

	_, err := p.SendRequest(context.Background(), "initialize", nil)
	assert.ErrorIs(t, err, ErrServerNotRunning)
	assert.ErrorIs(t, p.SendNotification("initialized", nil), ErrServerNotRunning)
}

func TestProtocol_ReadLoopEOF(t *testing.T) {
	p := NewProtocol(strings.NewReader(""), &bytes.Buffer{})
	err := p.ReadLoop(context.Background())
	assert.ErrorIs(t, err, ErrServerCrashed)

	select {
	case <-p.Done():
	default:
		t.Fatal("protocol should be closed after the read loop ends")
	}
}

func TestServerCapabilities_HasCallHierarchy(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`{"workDoneProgress":true}`, true},
		{`false`, false},
		{`null`, false},
		{``, false},
	}
	for _, tt := range tests {
		c := ServerCapabilities{CallHierarchyProvider: json.RawMessage(tt.raw)}
		assert.Equal(t, tt.want, c.HasCallHierarchy(), "raw %q", tt.raw)
	}
}

func TestLanguageIDForPath(t *testing.T) {
	assert.Equal(t, "go", LanguageIDForPath("/a/b.go"))
	assert.Equal(t, "typescriptreact", LanguageIDForPath("view.TSX"))
	assert.Equal(t, "plaintext", LanguageIDForPath("README"))
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func TestClient_Handshake(t *testing.T) {
	f, dir, _ := sampleWorkspace(t)
	c := connectFake(t, f, Config{RootPath: dir})

	assert.True(t, c.Capabilities().HasCallHierarchy())

	// The server's workspace/configuration request gets one null per item.
	assert.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return string(f.configReply) == "[null,null]"
	}, time.Second, 10*time.Millisecond)
}

func TestClient_EnsureOpenOnce(t *testing.T) {
	f, dir, uri := sampleWorkspace(t)
	c := connectFake(t, f, Config{RootPath: dir})
	ctx := context.Background()

	require.NoError(t, c.EnsureOpen(ctx, uri))
	require.NoError(t, c.EnsureOpen(ctx, uri))

	// Issue a request so the notification has certainly been read.
	_, err := c.PrepareCallHierarchy(ctx, uri, callgraph.Position{Line: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{uri}, f.openedURIs())

	assert.Error(t, c.EnsureOpen(ctx, callgraph.PathToURI(dir+"/missing.go")))
}

// ---------------------------------------------------------------------------
// CallHierarchy resolver
// ---------------------------------------------------------------------------

func TestCallHierarchy_Prepare(t *testing.T) {
	f, dir, uri := sampleWorkspace(t)
	h := NewCallHierarchy(connectFake(t, f, Config{RootPath: dir}))
	ctx := context.Background()

	roots, err := h.Prepare(ctx, "main.go", callgraph.Position{Line: 3, Character: 2})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "main", roots[0].Name)
	assert.Equal(t, uri, roots[0].URI)
	assert.JSONEq(t, `{"id":"main"}`, string(roots[0].Data))

	_, err = h.Prepare(ctx, uri, callgraph.Position{Line: 5})
	assert.ErrorIs(t, err, callgraph.ErrNoRoot)

	_, err = h.Prepare(ctx, "nope.go", callgraph.Position{})
	assert.ErrorIs(t, err, callgraph.ErrSymbolNotFound)
}

func TestCallHierarchy_Calls(t *testing.T) {
	f, dir, uri := sampleWorkspace(t)
	h := NewCallHierarchy(connectFake(t, f, Config{RootPath: dir}))
	ctx := context.Background()

	roots, err := h.Prepare(ctx, uri, callgraph.Position{Line: 7})
	require.NoError(t, err)
	helper := roots[0]

	out, err := h.Calls(ctx, callgraph.Outgoing, helper)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "leaf", out[0].Symbol.Name)
	assert.Equal(t, callgraph.Outgoing, out[0].Direction)

	in, err := h.Calls(ctx, callgraph.Incoming, helper)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "main", in[0].Symbol.Name)

	// leaf calls nothing.
	none, err := h.Calls(ctx, callgraph.Outgoing, out[0].Symbol)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCallHierarchy_Timeout(t *testing.T) {
	f, dir, uri := sampleWorkspace(t)
	f.hang["helper"] = true
	h := NewCallHierarchy(connectFake(t, f, Config{RootPath: dir, RequestTimeout: 50 * time.Millisecond}))
	ctx := context.Background()

	roots, err := h.Prepare(ctx, uri, callgraph.Position{Line: 7})
	require.NoError(t, err)

	_, err = h.Calls(ctx, callgraph.Outgoing, roots[0])
	assert.ErrorIs(t, err, callgraph.ErrResolveTimeout)
	var rerr *callgraph.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "helper", rerr.Symbol.Name)

	assert.Eventually(t, func() bool { return f.cancelCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestCallHierarchy_MethodNotFound(t *testing.T) {
	f, dir, uri := sampleWorkspace(t)
	f.missing["leaf"] = true
	h := NewCallHierarchy(connectFake(t, f, Config{RootPath: dir}))

	roots, err := h.Prepare(context.Background(), uri, callgraph.Position{Line: 10})
	require.NoError(t, err)
	_, err = h.Calls(context.Background(), callgraph.Incoming, roots[0])
	assert.ErrorIs(t, err, callgraph.ErrUnsupportedLanguage)

	var lerr *LSPError
	require.ErrorAs(t, err, &lerr)
	assert.True(t, lerr.IsMethodNotFound())
}

func TestCallHierarchy_DrivesEngine(t *testing.T) {
	f, dir, uri := sampleWorkspace(t)
	h := NewCallHierarchy(connectFake(t, f, Config{RootPath: dir}))
	ctx := context.Background()

	roots, err := h.Prepare(ctx, uri, callgraph.Position{Line: 3})
	require.NoError(t, err)

	var got []string
	stats, err := callgraph.NewEngine(h, nil).Explore(ctx, callgraph.Request{
		Direction: callgraph.Outgoing,
		Roots:     roots,
		MaxDepth:  -1,
	}, func(e callgraph.CallEdge) {
		got = append(got, e.From.Name+"->"+e.To.Name+" "+e.Label)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"main->helper 1", "helper->leaf 1.1"}, got)
	assert.Equal(t, int64(3), stats.Expanded)
}

func TestServer_NotInstalled(t *testing.T) {
	s := NewServer(Config{Command: "chartographer-test-no-such-language-server"})
	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrServerNotInstalled)
	assert.Equal(t, ServerStateStopped, s.State())
	assert.Nil(t, s.Client())
	assert.NoError(t, s.Shutdown(context.Background()))
}
