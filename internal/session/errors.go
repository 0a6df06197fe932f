// ABOUTME: Error taxonomy for session supervision
// ABOUTME: Callers distinguish failures with errors.Is

package session

import "errors"

var (
	// ErrSpawnFailure indicates the child process could not be started.
	ErrSpawnFailure = errors.New("spawn failure")

	// ErrHandshakeTimeout indicates no initialize result arrived in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrHandshakeRejected indicates the server answered initialize with an error.
	ErrHandshakeRejected = errors.New("handshake rejected")

	// ErrProcessExited indicates the child exited or its streams broke.
	ErrProcessExited = errors.New("process exited")

	// ErrNotInitialized indicates a command on a session that is not Ready.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrSessionNotFound indicates the session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed indicates the session was disconnected.
	ErrSessionClosed = errors.New("session closed")

	// ErrManagerClosed indicates the manager is shutting down.
	ErrManagerClosed = errors.New("session manager closed")
)
