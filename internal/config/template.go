// ABOUTME: Starter configuration file written by the init command
// ABOUTME: Mirrors Default() so a fresh file changes nothing until edited

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrConfigExists is returned by WriteTemplate when the file already exists.
var ErrConfigExists = errors.New("config file already exists")

// Template is a commented YAML configuration equivalent to Default.
const Template = `# mcp-web-client configuration

server:
  http_addr: "127.0.0.1:3000"

sessions:
  # Time allowed from spawning a server until it is ready for commands.
  handshake_timeout: "10s"
  # Extra wait after notifications/initialized before sending commands.
  settle_delay: "0s"
  # How long to wait for server processes to exit on shutdown.
  shutdown_timeout: "5s"
  protocol_version: "2024-11-05"
  client_name: "mcp-web-client"
  client_version: "1.0.0"

interpreters:
  fallback: "python3"
  extensions:
    ".js": "node"

broadcast:
  buffer_size: 64

database:
  # Frame history. Leave empty to disable.
  path: "~/.local/share/mcp-web-client/ledger.db"
  retention: "168h"

auth:
  # Set to require bearer tokens on the API (32 bytes or more).
  jwt_secret: "${MCP_WEB_CLIENT_JWT_SECRET}"

redis:
  # Set to mirror every event into a Redis stream.
  addr: ""
  stream: "mcp-web-client:events"
  maxlen: 10000

tailscale:
  enabled: false
  hostname: "mcp-web-client"
  auth_key: "${TS_AUTHKEY}"
  state_dir: ""
  ephemeral: false
  funnel: false

logging:
  level: "info"
  format: "text"
`

// WriteTemplate writes Template to path, creating parent directories. An
// existing file is only replaced when force is set.
func WriteTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Template), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
