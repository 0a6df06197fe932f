// ABOUTME: JSON-RPC 2.0 envelope types for MCP stdio frames
// ABOUTME: Request/notification encoding, response and error shapes, request ids

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Version is the only JSON-RPC version spoken on the wire.
const Version = "2.0"

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ErrInvalidID is returned when an id is neither a string nor an integer.
var ErrInvalidID = errors.New("invalid request id")

// ID is a JSON-RPC request id. Ids we generate are integers; ids sent by a
// server may also be strings and are kept as such.
type ID struct {
	Num      int64
	Str      string
	IsString bool
}

// NewID returns an integer id.
func NewID(n int64) ID {
	return ID{Num: n}
}

// String renders the id for logs.
func (id ID) String() string {
	if id.IsString {
		return strconv.Quote(id.Str)
	}
	return strconv.FormatInt(id.Num, 10)
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsString {
		return json.Marshal(id.Str)
	}
	return []byte(strconv.FormatInt(id.Num, 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidID, err)
		}
		*id = ID{Str: s, IsString: true}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidID, data)
	}
	if i, err := n.Int64(); err == nil {
		*id = ID{Num: i}
		return nil
	}
	// Some servers echo integer ids back as 3.0.
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return fmt.Errorf("%w: %s", ErrInvalidID, data)
	}
	*id = ID{Num: int64(f)}
	return nil
}

// Request is an outbound request, or a notification when ID is nil.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *ID    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request carrying id.
func NewRequest(id ID, method string, params any) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      &id,
		Method:  method,
		Params:  params,
	}
}

// NewNotification builds a notification, which has no id and expects no reply.
func NewNotification(method string, params any) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
	}
}

// Response is an outbound reply to a request initiated by the server.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *ID    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// NewResult builds a successful reply.
func NewResult(id *ID, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse builds an error reply.
func NewErrorResponse(id *ID, code int, message string) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Encode serializes v as a single newline-terminated frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling frame: %w", err)
	}
	return append(data, '\n'), nil
}
