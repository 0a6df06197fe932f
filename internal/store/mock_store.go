// ABOUTME: In-memory Store implementation for tests
// ABOUTME: Mirrors SQLiteStore ordering and limit semantics without a database

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store.
type MockStore struct {
	mu     sync.RWMutex
	events []Event
	closed bool
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// SaveEvent appends a copy of event.
func (m *MockStore) SaveEvent(ctx context.Context, event *Event) error {
	if err := validate(event); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := *event
	e.Payload = append([]byte(nil), event.Payload...)
	m.events = append(m.events, e)
	return nil
}

// ListSessionEvents returns the session's most recent events, oldest first.
func (m *MockStore) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = ClampLimit(limit)
	var matched []Event
	for i := len(m.events) - 1; i >= 0 && len(matched) < limit; i-- {
		if m.events[i].SessionID == sessionID {
			matched = append(matched, m.events[i])
		}
	}
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched, nil
}

// PruneEvents deletes events created before cutoff.
func (m *MockStore) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	var pruned int64
	for _, e := range m.events {
		if e.CreatedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return pruned, nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of stored events.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
