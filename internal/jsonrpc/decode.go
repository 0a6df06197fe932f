// ABOUTME: Classifies inbound JSON-RPC frames as responses, notifications, requests or malformed
// ABOUTME: Decoding is per line and never fails; bad lines carry their raw text for diagnostics

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode marks a line that is not a usable JSON-RPC frame.
var ErrDecode = errors.New("decode failure")

// Kind identifies the shape of an inbound frame.
type Kind int

const (
	KindMalformed Kind = iota
	KindResponse
	KindNotification
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	case KindRequest:
		return "request"
	default:
		return "malformed"
	}
}

// Message is a decoded inbound frame.
type Message struct {
	Kind   Kind
	ID     *ID
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *Error

	// Raw is the frame text as received, without its line terminator.
	Raw []byte
	// Err is set for KindMalformed and wraps ErrDecode.
	Err error
}

// HasID reports whether the message carries exactly this id.
func (m Message) HasID(id ID) bool {
	return m.ID != nil && *m.ID == id
}

// Failed reports whether a response carries an error object.
func (m Message) Failed() bool {
	return m.Kind == KindResponse && m.Error != nil
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// Decode classifies one line. The jsonrpc version member is not enforced:
// servers in the wild omit it and the frame is still usable.
func Decode(line []byte) Message {
	raw := bytes.TrimSpace(line)
	msg := Message{Raw: raw}

	if len(raw) == 0 || raw[0] != '{' {
		msg.Err = fmt.Errorf("%w: frame is not a JSON object", ErrDecode)
		return msg
	}

	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		msg.Err = fmt.Errorf("%w: %v", ErrDecode, err)
		return msg
	}

	msg.ID = wire.ID
	msg.Method = wire.Method
	msg.Params = wire.Params
	msg.Result = wire.Result
	msg.Error = wire.Error

	switch {
	case wire.Method != "" && wire.ID != nil:
		msg.Kind = KindRequest
	case wire.Method != "":
		msg.Kind = KindNotification
	case wire.Result != nil || wire.Error != nil:
		msg.Kind = KindResponse
	default:
		msg.Err = fmt.Errorf("%w: frame has neither method nor result", ErrDecode)
	}
	return msg
}
