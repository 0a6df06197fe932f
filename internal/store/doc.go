// Package store persists the frame ledger: every envelope the fan-out
// delivered, in arrival order, keyed by session.
//
// # Architecture
//
// Store is the interface the HTTP layer and the recorder depend on.
// SQLiteStore implements it on modernc.org/sqlite (pure Go, no cgo) with WAL
// enabled; MockStore is an in-memory implementation for tests.
//
// # Schema
//
//	frames(seq, id, session_id, type, method, state, error, payload, created_at)
//
// seq is an autoincrement key that fixes arrival order even when two frames
// share a timestamp. payload holds the raw JSON-RPC frame as text.
//
// The ledger is history only. Live sessions are never rebuilt from it.
package store
