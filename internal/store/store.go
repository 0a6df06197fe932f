// ABOUTME: Store interface and the ledger event type for recorded session frames
// ABOUTME: History queries return the most recent events, oldest first

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidEvent is returned when an event lacks a session or type.
var ErrInvalidEvent = errors.New("invalid event")

const (
	// DefaultHistoryLimit is used when a query passes no limit.
	DefaultHistoryLimit = 100
	// MaxHistoryLimit caps a single history query.
	MaxHistoryLimit = 1000
)

// Event is one recorded envelope.
type Event struct {
	ID        string
	SessionID string
	Type      string
	Method    string
	State     string
	Error     string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Store persists ledger events.
type Store interface {
	// SaveEvent appends an event. ID and CreatedAt are filled when empty.
	SaveEvent(ctx context.Context, event *Event) error
	// ListSessionEvents returns up to limit of the session's most recent
	// events, oldest first.
	ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error)
	// PruneEvents deletes events created before cutoff and reports how many.
	PruneEvents(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// ClampLimit maps a requested limit onto [1, MaxHistoryLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

func validate(event *Event) error {
	if event.SessionID == "" {
		return errors.Join(ErrInvalidEvent, errors.New("session id is required"))
	}
	if event.Type == "" {
		return errors.Join(ErrInvalidEvent, errors.New("type is required"))
	}
	return nil
}
