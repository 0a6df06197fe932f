// Package gateway exposes MCP sessions to web clients over HTTP.
//
// # Overview
//
// The gateway owns a session.Manager and a broadcast.Broadcaster and serves
// them through a small control API plus two subscriber transports. Commands
// are fire-and-forget: an accepted command answers {"success": true} with the
// JSON-RPC request id, and the server's reply reaches subscribers later.
//
// # Routes
//
//	POST   /api/connect                  spawn a server (?wait=true blocks for Ready)
//	POST   /api/tools/list/{id}          tools/list
//	POST   /api/tools/call/{id}          tools/call {toolName, args}
//	POST   /api/resources/list/{id}      resources/list
//	POST   /api/resources/read/{id}      resources/read {uri}
//	POST   /api/prompts/list/{id}        prompts/list
//	GET    /api/sessions                 snapshots, oldest first
//	GET    /api/sessions/{id}            snapshot plus rendered catalog
//	DELETE /api/sessions/{id}            kill the child and forget the session
//	GET    /api/sessions/{id}/history    recorded envelopes, oldest first
//	GET    /api/events                   server-sent events (?session= filters)
//	GET    /api/events/recent            newest mirrored envelopes (Redis)
//	GET    /ws                           WebSocket (?session= filters)
//	GET    /health, /health/ready
//
// When auth.jwt_secret is set every /api route and /ws requires a bearer
// token, read from the Authorization header or the token query parameter.
//
// # Background subscribers
//
// Run subscribes the frame ledger recorder and, when configured, the Redis
// mirror to the fan-out like any other client, so neither can stall a
// session. Both drain until the broadcaster closes during shutdown.
//
// # Shutdown
//
// Shutdown terminates every child, closes the broadcaster (which ends all
// streaming handlers), stops the HTTP server, then closes the stores and the
// tailnet node.
package gateway
