package session

import (
	"encoding/json"
	"fmt"

	"github.com/dusk-indust/chartographer/internal/config"
)

// MessageType names a renderer message.
type MessageType string

// Inbound (renderer to session).
const (
	TypeState        MessageType = "state"
	TypeGoToFunction MessageType = "goToFunction"
	TypeExpandBoth   MessageType = "expandBoth"
)

// Outbound (session to renderer).
const (
	TypeSetParams MessageType = "setParams"
	TypeAddElems  MessageType = "addElems"
	TypeNavigate  MessageType = "navigate"
	TypeError     MessageType = "error"
)

// Renderer lifecycle values carried by a state message.
const (
	StateLoaded = "loaded"
	StateReady  = "ready"
)

// Message is one renderer protocol frame.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ExpandRequest is the data of an expandBoth message. A nil Depth uses the
// session's depth bound.
type ExpandRequest struct {
	ID    string `json:"id"`
	Depth *int   `json:"depth,omitempty"`
}

// SetParams is the data of a setParams message.
type SetParams struct {
	Config config.RendererConfig `json:"config"`
}

// NewMessage encodes data into a message of type t.
func NewMessage(t MessageType, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s message: %w", t, err)
	}
	return Message{Type: t, Data: raw}, nil
}

// Decode unmarshals m.Data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message: missing data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%s message: %w", m.Type, err)
	}
	return nil
}
