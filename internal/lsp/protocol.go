package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// Request is a JSON-RPC request from the client.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is a JSON-RPC message without an id.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the error member of a Response.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// message is any inbound frame. Responses have an id and no method, server
// requests have both, notifications only a method.
type message struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ResponseError  `json:"error,omitempty"`
}

// Protocol speaks the LSP base protocol (Content-Length framed JSON-RPC) over
// a reader/writer pair. Safe for concurrent use; ReadLoop must run in exactly
// one goroutine.
type Protocol struct {
	reader *bufio.Reader
	writer io.Writer
	logger *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan message

	closeOnce sync.Once
	done      chan struct{}
}

// NewProtocol creates a protocol reading server output from r and writing
// client messages to w.
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	return &Protocol{
		reader:  bufio.NewReader(r),
		writer:  w,
		logger:  slog.Default(),
		pending: make(map[int64]chan message),
		done:    make(chan struct{}),
	}
}

// Call sends method and decodes the result into out (which may be nil).
func (p *Protocol) Call(ctx context.Context, method string, params, out any) error {
	raw, err := p.SendRequest(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, method, err)
	}
	return nil
}

// SendRequest sends a request and waits for its result. When ctx ends first
// the server is sent $/cancelRequest and the error wraps ErrRequestTimeout.
func (p *Protocol) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-p.done:
		return nil, ErrServerNotRunning
	default:
	}

	id := p.nextID.Add(1)
	ch := make(chan message, 1)
	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	if err := p.write(Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		_ = p.SendNotification("$/cancelRequest", map[string]int64{"id": id})
		return nil, fmt.Errorf("%w: %s: %v", ErrRequestTimeout, method, ctx.Err())
	case <-p.done:
		return nil, ErrServerNotRunning
	case msg := <-ch:
		if msg.Error != nil {
			return nil, &LSPError{Code: msg.Error.Code, Message: msg.Error.Message, Data: msg.Error.Data}
		}
		return msg.Result, nil
	}
}

// SendNotification sends a message that expects no response.
func (p *Protocol) SendNotification(method string, params any) error {
	select {
	case <-p.done:
		return ErrServerNotRunning
	default:
	}
	return p.write(Notification{JSONRPC: JSONRPCVersion, Method: method, Params: params})
}

func (p *Protocol) write(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return writeFrame(p.writer, v)
}

// ReadLoop dispatches server messages until the stream ends or ctx is done.
// On return the protocol is closed and pending requests fail.
func (p *Protocol) ReadLoop(ctx context.Context) error {
	defer p.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := readFrame(p.reader)
		if err != nil {
			if p.closed() {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return ErrServerCrashed
			}
			return fmt.Errorf("read: %w", err)
		}
		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			p.logger.Warn("lsp: undecodable message", slog.String("error", err.Error()))
			continue
		}
		p.dispatch(msg)
	}
}

func (p *Protocol) dispatch(msg message) {
	hasID := len(msg.ID) > 0 && !bytes.Equal(msg.ID, []byte("null"))
	switch {
	case hasID && msg.Method == "":
		id, err := strconv.ParseInt(string(msg.ID), 10, 64)
		if err != nil {
			return
		}
		p.pendingMu.Lock()
		ch, ok := p.pending[id]
		p.pendingMu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
		}
	case hasID:
		p.answerServerRequest(msg)
	case msg.Method == "window/logMessage" || msg.Method == "window/showMessage":
		var lm struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(msg.Params, &lm)
		p.logger.Debug("lsp: server message", slog.String("method", msg.Method), slog.String("message", lm.Message))
	}
}

// answerServerRequest replies to requests the server sends to the client
// (configuration, progress tokens, capability registration). The client has
// nothing to offer, so every answer is empty.
func (p *Protocol) answerServerRequest(msg message) {
	result := json.RawMessage("null")
	if msg.Method == "workspace/configuration" {
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		nulls := make([]any, len(params.Items))
		result, _ = json.Marshal(nulls)
	}
	if err := p.write(Response{JSONRPC: JSONRPCVersion, ID: msg.ID, Result: result}); err != nil {
		p.logger.Debug("lsp: reply to server request failed", slog.String("method", msg.Method), slog.String("error", err.Error()))
	}
}

// Close fails all pending and future requests. It does not close the
// underlying streams.
func (p *Protocol) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Done is closed when the protocol closes.
func (p *Protocol) Done() <-chan struct{} { return p.done }

func (p *Protocol) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// writeFrame marshals v and writes it with a Content-Length header.
func writeFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	frame := make([]byte, 0, len(data)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(data)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, data...)
	_, err = w.Write(frame)
	return err
}

// readFrame reads one Content-Length framed message body.
func readFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid Content-Length %q", value)
		}
		length = n
	}
	if length <= 0 {
		return nil, errors.New("missing Content-Length header")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
