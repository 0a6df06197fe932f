// Package broadcast fans session events out to every live subscriber.
//
// Sessions publish an Envelope for each inbound frame and for each lifecycle
// transition. Subscribers are the browser transports (WebSocket and SSE), the
// SQLite frame recorder and the optional Redis mirror; each gets its own
// buffered channel.
//
// # Delivery
//
// Publish never blocks. When a subscriber's buffer is full the envelope is
// dropped for that subscriber only and a debug line is logged. A stalled
// browser tab therefore cannot hold up a session's read loop or any other
// subscriber.
//
// Subscriptions end when the context passed to Subscribe is cancelled, when
// Unsubscribe is called, or when the Broadcaster is closed. In every case the
// subscriber's channel is closed so range loops terminate.
package broadcast
