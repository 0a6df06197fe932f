// ABOUTME: Tunables for session handshake and client identity
// ABOUTME: Zero values are replaced with defaults by NewManager

package session

import (
	"time"

	"github.com/yashraj-dudhe/mcp-client/internal/process"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultProtocolVersion  = "2024-11-05"
	DefaultClientName       = "mcp-web-client"
	DefaultClientVersion    = "1.0.0"
)

// Options configures every session a Manager creates.
type Options struct {
	Interpreters process.Interpreters

	// HandshakeTimeout bounds the time from spawn to Ready.
	HandshakeTimeout time.Duration
	// SettleDelay is waited after notifications/initialized is flushed and
	// before the session is Ready. It counts against HandshakeTimeout.
	SettleDelay time.Duration

	ProtocolVersion string
	ClientName      string
	ClientVersion   string
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Interpreters:     process.DefaultInterpreters(),
		HandshakeTimeout: DefaultHandshakeTimeout,
		ProtocolVersion:  DefaultProtocolVersion,
		ClientName:       DefaultClientName,
		ClientVersion:    DefaultClientVersion,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Interpreters.Fallback == "" && len(o.Interpreters.Extensions) == 0 {
		o.Interpreters = def.Interpreters
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.ProtocolVersion == "" {
		o.ProtocolVersion = def.ProtocolVersion
	}
	if o.ClientName == "" {
		o.ClientName = def.ClientName
	}
	if o.ClientVersion == "" {
		o.ClientVersion = def.ClientVersion
	}
	return o
}
