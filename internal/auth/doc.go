// Package auth protects the HTTP surface with HS256 bearer tokens.
//
// Authentication is optional: with no secret configured the gateway serves
// every route openly, which suits a loopback or tailnet-only deployment.
// With a secret, every /api and /ws request must carry a token whose "sub"
// claim names the caller.
//
// Tokens are read from the Authorization header. Browser transports cannot
// set headers on WebSocket upgrades or EventSource requests, so the "token"
// query parameter is accepted as well.
//
// Tokens are minted with the CLI:
//
//	mcp-web-client token --subject alice --ttl 24h
package auth
