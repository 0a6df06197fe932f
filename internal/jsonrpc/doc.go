// Package jsonrpc encodes and decodes the JSON-RPC 2.0 frames exchanged with
// MCP server processes over their standard streams.
//
// # Frames
//
// Every frame is a single JSON document terminated by a newline. Outbound
// frames are requests (with an id) or notifications (without one):
//
//	{"jsonrpc":"2.0","id":2,"method":"tools/list"}
//	{"jsonrpc":"2.0","method":"notifications/initialized"}
//
// # Decoding
//
// Decode never fails. It classifies a line as a Response, Notification,
// Request (a call initiated by the server, such as ping) or Malformed. A
// Malformed message keeps the offending text and the decode error so that a
// single bad line can be reported without disturbing the lines after it.
//
// Payload fields the session layer does not inspect (params, result, tool
// schemas, arguments) stay as json.RawMessage and are passed through untouched.
//
// # Request IDs
//
// The initialize request always uses InitializeID. IDGenerator hands out the
// ids for every later request, strictly increasing per session, so a response
// can be correlated with the request that caused it.
package jsonrpc
