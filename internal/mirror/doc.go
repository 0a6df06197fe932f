// Package mirror copies the session fan-out into a Redis stream so that
// processes outside this one (dashboards, log shippers, other replicas) can
// follow MCP traffic with XREAD.
//
// The mirror is an ordinary broadcast subscriber. Each envelope is appended
// with XADD as a single "data" field holding the envelope JSON. The stream is
// trimmed with an approximate MAXLEN so it cannot grow without bound.
//
// Redis being slow or unavailable never affects sessions: the mirror's
// subscription drops envelopes when its buffer fills, and failed writes are
// logged and skipped.
package mirror
