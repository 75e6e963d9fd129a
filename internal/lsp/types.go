package lsp

import (
	"encoding/json"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// The subset of LSP 3.17 types used for call hierarchy. Positions and ranges
// share their JSON shape with callgraph.Position and callgraph.Range.

type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	RootURI               string             `json:"rootUri"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
}

type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type ClientCapabilities struct {
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
	Window       WindowClientCapabilities       `json:"window"`
}

type TextDocumentClientCapabilities struct {
	Synchronization *SynchronizationCapabilities `json:"synchronization,omitempty"`
	CallHierarchy   *CallHierarchyCapabilities   `json:"callHierarchy,omitempty"`
}

type SynchronizationCapabilities struct {
	DidSave bool `json:"didSave"`
}

type CallHierarchyCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type WindowClientCapabilities struct {
	WorkDoneProgress bool `json:"workDoneProgress"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerCapabilities keeps callHierarchyProvider raw: servers send either a
// boolean or an options object.
type ServerCapabilities struct {
	CallHierarchyProvider json.RawMessage `json:"callHierarchyProvider,omitempty"`
}

// HasCallHierarchy reports whether the server advertised call hierarchy.
func (c ServerCapabilities) HasCallHierarchy() bool {
	raw := string(c.CallHierarchyProvider)
	return raw != "" && raw != "false" && raw != "null"
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     callgraph.Position     `json:"position"`
}

// CallHierarchyItem is the LSP call hierarchy node.
type CallHierarchyItem struct {
	Name           string               `json:"name"`
	Kind           callgraph.SymbolKind `json:"kind"`
	Detail         string               `json:"detail,omitempty"`
	URI            string               `json:"uri"`
	Range          callgraph.Range      `json:"range"`
	SelectionRange callgraph.Range      `json:"selectionRange"`
	Data           json.RawMessage      `json:"data,omitempty"`
}

type CallHierarchyItemParams struct {
	Item CallHierarchyItem `json:"item"`
}

type CallHierarchyIncomingCall struct {
	From       CallHierarchyItem `json:"from"`
	FromRanges []callgraph.Range `json:"fromRanges"`
}

type CallHierarchyOutgoingCall struct {
	To         CallHierarchyItem `json:"to"`
	FromRanges []callgraph.Range `json:"fromRanges"`
}

// ToSymbol converts item into a graph symbol, carrying Data through.
func (item CallHierarchyItem) ToSymbol() callgraph.SymbolNode {
	return callgraph.SymbolNode{
		URI:            item.URI,
		Name:           item.Name,
		Kind:           item.Kind,
		Detail:         item.Detail,
		Range:          item.Range,
		SelectionRange: item.SelectionRange,
		Data:           item.Data,
	}
}

// ItemFromSymbol rebuilds the item a server handed out for s.
func ItemFromSymbol(s callgraph.SymbolNode) CallHierarchyItem {
	return CallHierarchyItem{
		Name:           s.Name,
		Kind:           s.Kind,
		Detail:         s.Detail,
		URI:            s.URI,
		Range:          s.Range,
		SelectionRange: s.SelectionRange,
		Data:           s.Data,
	}
}
