package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dusk-indust/chartographer/internal/session"
)

// SSEWriter writes Server-Sent Events to an http.ResponseWriter.
// Call Init once before writing any events to set the required headers.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSEWriter wrapping the given ResponseWriter.
// Without http.Flusher, writes still succeed but may be buffered.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{
		w:       w,
		flusher: f,
	}
}

// Init sets the SSE response headers and flushes them to the client.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	sw.w.WriteHeader(http.StatusOK)
	sw.flush()
}

// WriteMessage writes msg as one event named after its type:
//
//	event: addElems
//	data: {json}
func (sw *SSEWriter) WriteMessage(msg session.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sse: marshal message: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
		return fmt.Errorf("sse: write message: %w", err)
	}
	sw.flush()
	return nil
}

// Comment writes an SSE comment line, used as a keep-alive.
func (sw *SSEWriter) Comment(text string) error {
	if _, err := fmt.Fprintf(sw.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("sse: write comment: %w", err)
	}
	sw.flush()
	return nil
}

func (sw *SSEWriter) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}
