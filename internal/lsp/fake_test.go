package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// fakeServer is an in-process language server answering call hierarchy
// requests from a fixed graph. Items are identified by their data field.
type fakeServer struct {
	r   *bufio.Reader
	out chan any

	items    map[string]CallHierarchyItem
	outgoing map[string][]string
	incoming map[string][]string
	hang     map[string]bool
	missing  map[string]bool

	mu          sync.Mutex
	opened      []string
	cancelled   int
	configReply json.RawMessage
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		out:      make(chan any, 64),
		items:    make(map[string]CallHierarchyItem),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		hang:     make(map[string]bool),
		missing:  make(map[string]bool),
	}
}

func (f *fakeServer) addItem(id, uri, name string, startLine, endLine int) {
	data, _ := json.Marshal(map[string]string{"id": id})
	f.items[id] = CallHierarchyItem{
		Name:           name,
		Kind:           callgraph.SymbolKindFunction,
		URI:            uri,
		Range:          callgraph.Range{Start: callgraph.Position{Line: startLine}, End: callgraph.Position{Line: endLine, Character: 1}},
		SelectionRange: callgraph.Range{Start: callgraph.Position{Line: startLine, Character: 5}, End: callgraph.Position{Line: startLine, Character: 5 + len(name)}},
		Data:           data,
	}
}

func (f *fakeServer) addCall(from, to string) {
	f.outgoing[from] = append(f.outgoing[from], to)
	f.incoming[to] = append(f.incoming[to], from)
}

func (f *fakeServer) openedURIs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

func (f *fakeServer) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeServer) reply(id json.RawMessage, result any) {
	raw, _ := json.Marshal(result)
	f.out <- Response{JSONRPC: JSONRPCVersion, ID: id, Result: raw}
}

func (f *fakeServer) fail(id json.RawMessage, code int, msg string) {
	f.out <- Response{JSONRPC: JSONRPCVersion, ID: id, Error: &ResponseError{Code: code, Message: msg}}
}

func itemID(item CallHierarchyItem) string {
	var d struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(item.Data, &d)
	return d.ID
}

func (f *fakeServer) serve() {
	defer close(f.out)
	for {
		body, err := readFrame(f.r)
		if err != nil {
			return
		}
		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			return
		}
		f.handle(msg)
	}
}

func (f *fakeServer) handle(msg message) {
	switch msg.Method {
	case "":
		// The client's answer to our workspace/configuration request.
		f.mu.Lock()
		f.configReply = msg.Result
		f.mu.Unlock()

	case "initialize":
		f.out <- map[string]any{
			"jsonrpc": JSONRPCVersion,
			"id":      "cfg-1",
			"method":  "workspace/configuration",
			"params":  map[string]any{"items": []any{map[string]any{}, map[string]any{}}},
		}
		f.reply(msg.ID, map[string]any{
			"capabilities": map[string]any{"callHierarchyProvider": true},
			"serverInfo":   map[string]any{"name": "fake-ls", "version": "0.1"},
		})

	case "textDocument/didOpen":
		var p DidOpenTextDocumentParams
		_ = json.Unmarshal(msg.Params, &p)
		f.mu.Lock()
		f.opened = append(f.opened, p.TextDocument.URI)
		f.mu.Unlock()

	case "$/cancelRequest":
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()

	case "textDocument/prepareCallHierarchy":
		var p TextDocumentPositionParams
		_ = json.Unmarshal(msg.Params, &p)
		items := []CallHierarchyItem{}
		for _, it := range f.items {
			if it.URI == p.TextDocument.URI && it.Range.Contains(p.Position) {
				items = append(items, it)
			}
		}
		f.reply(msg.ID, items)

	case "callHierarchy/outgoingCalls", "callHierarchy/incomingCalls":
		var p CallHierarchyItemParams
		_ = json.Unmarshal(msg.Params, &p)
		id := itemID(p.Item)
		switch {
		case f.hang[id]:
			return
		case f.missing[id]:
			f.fail(msg.ID, CodeMethodNotFound, "method not supported for this file")
			return
		}
		if msg.Method == "callHierarchy/outgoingCalls" {
			calls := []CallHierarchyOutgoingCall{}
			for _, to := range f.outgoing[id] {
				calls = append(calls, CallHierarchyOutgoingCall{To: f.items[to]})
			}
			f.reply(msg.ID, calls)
			return
		}
		calls := []CallHierarchyIncomingCall{}
		for _, from := range f.incoming[id] {
			calls = append(calls, CallHierarchyIncomingCall{From: f.items[from]})
		}
		f.reply(msg.ID, calls)

	case "shutdown":
		f.out <- Response{JSONRPC: JSONRPCVersion, ID: msg.ID, Result: json.RawMessage("null")}

	case "initialized", "exit":

	default:
		if len(msg.ID) > 0 {
			f.fail(msg.ID, CodeMethodNotFound, "unknown method "+msg.Method)
		}
	}
}

// connectFake wires a client to f over in-memory pipes.
func connectFake(t *testing.T, f *fakeServer, cfg Config) *Client {
	t.Helper()
	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()
	f.r = bufio.NewReader(clientToServerR)

	go f.serve()
	go func() {
		for v := range f.out {
			if err := writeFrame(serverToClientW, v); err != nil {
				return
			}
		}
	}()

	c, err := Connect(context.Background(), serverToClientR, clientToServerW, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close(context.Background())
		_ = clientToServerW.Close()
		_ = serverToClientW.Close()
	})
	return c
}

const sampleSource = `package sample

func main() {
	helper()
}

func helper() {
	leaf()
}

func leaf() {
}
`

// sampleWorkspace writes sampleSource and a fake server describing it:
// main -> helper -> leaf.
func sampleWorkspace(t *testing.T) (*fakeServer, string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte(sampleSource), 0o644))
	uri := callgraph.PathToURI(path)

	f := newFakeServer()
	f.addItem("main", uri, "main", 2, 4)
	f.addItem("helper", uri, "helper", 6, 8)
	f.addItem("leaf", uri, "leaf", 10, 11)
	f.addCall("main", "helper")
	f.addCall("helper", "leaf")
	return f, dir, uri
}
