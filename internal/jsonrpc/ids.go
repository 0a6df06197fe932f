// ABOUTME: Request id generation for one session's outbound requests
// ABOUTME: Initialize uses a fixed id; every later request gets a fresh increasing id

package jsonrpc

import "sync/atomic"

// InitializeID is the id of the initialize request, so the handshake can
// recognise its own response.
const InitializeID int64 = 1

// IDGenerator issues strictly increasing request ids, starting after
// InitializeID. Safe for concurrent use.
type IDGenerator struct {
	last atomic.Int64
}

// NewIDGenerator returns a generator whose first id is InitializeID+1.
func NewIDGenerator() *IDGenerator {
	g := &IDGenerator{}
	g.last.Store(InitializeID)
	return g
}

// Next returns the next id.
func (g *IDGenerator) Next() ID {
	return NewID(g.last.Add(1))
}
