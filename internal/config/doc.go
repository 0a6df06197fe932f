// Package config handles configuration loading for mcp-web-client.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension) with
// environment variable expansion. Every field has a default, so running
// without a file at all gives a working loopback server.
//
// # Configuration File
//
// Locations, first match wins:
//
//  1. --config flag
//  2. MCP_WEB_CLIENT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/mcp-web-client/config.yaml
//  4. ~/.config/mcp-web-client/config.yaml
//
// A missing file at an explicit location is an error; a missing file at a
// default location means defaults.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${MCP_WEB_CLIENT_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:3000"
//
//	sessions:
//	  handshake_timeout: "10s"   # spawn to Ready
//	  settle_delay: "0s"         # wait after notifications/initialized
//	  shutdown_timeout: "5s"     # bound on waiting for children at exit
//	  protocol_version: "2024-11-05"
//
//	interpreters:
//	  fallback: "python3"
//	  extensions:
//	    ".js": "node"
//	    ".ts": "npx tsx"
//
//	database:
//	  path: "~/.local/share/mcp-web-client/ledger.db"   # empty disables history
//	  retention: "168h"
//
//	redis:
//	  addr: ""                   # empty disables the stream mirror
//	  stream: "mcp-web-client:events"
//	  maxlen: 10000
//
//	tailscale:
//	  enabled: false
//	  hostname: "mcp-web-client"
//
//	logging:
//	  level: "info"              # debug, info, warn, error
//	  format: "text"             # text, json
//
// Duration values use Go's time.ParseDuration syntax.
package config
