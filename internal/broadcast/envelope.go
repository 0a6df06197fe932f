// ABOUTME: Tagged envelope delivered to subscribers for every session event
// ABOUTME: Wraps raw inbound frames, decode diagnostics and lifecycle transitions

package broadcast

import (
	"encoding/json"
	"time"
)

// EventType discriminates envelopes.
type EventType string

const (
	// EventResponse carries a JSON-RPC response from a server.
	EventResponse EventType = "serverResponse"
	// EventNotification carries a notification from a server.
	EventNotification EventType = "serverNotification"
	// EventRequest carries a request initiated by a server.
	EventRequest EventType = "serverRequest"
	// EventDecodeError carries a line that could not be decoded. Payload is
	// the raw text as a JSON string.
	EventDecodeError EventType = "decodeError"
	// EventSessionState reports a lifecycle transition.
	EventSessionState EventType = "sessionState"
)

// Envelope is one event tagged with the session it came from.
type Envelope struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	State     string          `json:"state,omitempty"`
	Error     string          `json:"error,omitempty"`
	Method    string          `json:"method,omitempty"`
	Time      time.Time       `json:"time"`
}

// Publisher accepts envelopes. Implementations must not block.
type Publisher interface {
	Publish(env *Envelope)
}

// Discard drops every envelope.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(*Envelope) {}
