package lsp

import (
	"errors"
	"fmt"
)

// Sentinel errors for language server communication.
var (
	ErrServerNotRunning     = errors.New("lsp server not running")
	ErrServerNotInstalled   = errors.New("lsp server not installed")
	ErrServerAlreadyStarted = errors.New("lsp server already started")
	ErrServerCrashed        = errors.New("lsp server crashed")
	ErrInitializeFailed     = errors.New("lsp initialize failed")
	ErrRequestTimeout       = errors.New("lsp request timeout")
	ErrInvalidResponse      = errors.New("invalid lsp response")
	ErrNoCallHierarchy      = errors.New("lsp server has no call hierarchy support")
)

// JSON-RPC and LSP error codes the client inspects.
const (
	CodeMethodNotFound   = -32601
	CodeInternalError    = -32603
	CodeServerNotInit    = -32002
	CodeRequestCancelled = -32800
	CodeContentModified  = -32801
)

// LSPError is an error object returned by the language server.
type LSPError struct {
	Code    int
	Message string
	Data    any
}

func (e *LSPError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("LSP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound reports whether the server does not implement the method.
func (e *LSPError) IsMethodNotFound() bool { return e.Code == CodeMethodNotFound }

// IsContentModified reports whether the document changed under the request.
func (e *LSPError) IsContentModified() bool { return e.Code == CodeContentModified }
