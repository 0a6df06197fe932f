// ABOUTME: Behaviour tests run against both the SQLite and in-memory ledgers
// ABOUTME: Covers ordering, limits, validation and pruning

package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var implementations = map[string]func(t *testing.T) Store{
	"sqlite": func(t *testing.T) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	},
	"memory": func(t *testing.T) Store {
		return NewMockStore()
	},
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range implementations {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func TestSaveAndListOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := t.Context()
		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		for i := range 5 {
			require.NoError(t, s.SaveEvent(ctx, &Event{
				SessionID: "server_a",
				Type:      "serverResponse",
				Method:    "tools/list",
				Payload:   json.RawMessage(fmt.Sprintf(`{"id":%d,"result":{}}`, i)),
				// Identical timestamps must still list in insertion order.
				CreatedAt: base,
			}))
		}
		require.NoError(t, s.SaveEvent(ctx, &Event{SessionID: "server_b", Type: "sessionState", State: "Ready"}))

		events, err := s.ListSessionEvents(ctx, "server_a", 3)
		require.NoError(t, err)
		require.Len(t, events, 3)
		for i, e := range events {
			assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"result":{}}`, i+2), string(e.Payload))
			assert.Equal(t, "tools/list", e.Method)
			assert.NotEmpty(t, e.ID)
			assert.True(t, base.Equal(e.CreatedAt))
		}

		events, err = s.ListSessionEvents(ctx, "server_b", 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "Ready", events[0].State)
		assert.Nil(t, events[0].Payload)

		events, err = s.ListSessionEvents(ctx, "server_unknown", 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestSaveEventValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		assert.ErrorIs(t, s.SaveEvent(t.Context(), &Event{Type: "serverResponse"}), ErrInvalidEvent)
		assert.ErrorIs(t, s.SaveEvent(t.Context(), &Event{SessionID: "server_a"}), ErrInvalidEvent)
	})
}

func TestPruneEvents(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := t.Context()
		now := time.Now()

		require.NoError(t, s.SaveEvent(ctx, &Event{SessionID: "s", Type: "t", CreatedAt: now.Add(-2 * time.Hour)}))
		require.NoError(t, s.SaveEvent(ctx, &Event{SessionID: "s", Type: "t", CreatedAt: now.Add(-90 * time.Minute)}))
		require.NoError(t, s.SaveEvent(ctx, &Event{SessionID: "s", Type: "t", CreatedAt: now}))

		n, err := s.PruneEvents(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		events, err := s.ListSessionEvents(ctx, "s", 10)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, ClampLimit(0))
	assert.Equal(t, DefaultHistoryLimit, ClampLimit(-4))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxHistoryLimit, ClampLimit(MaxHistoryLimit+1))
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "ledger.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveEvent(t.Context(), &Event{SessionID: "s", Type: "t"}))
	events, err := s.ListSessionEvents(t.Context(), "s", 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SaveEvent(t.Context(), &Event{SessionID: "s", Type: "t"}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	events, err := s.ListSessionEvents(t.Context(), "s", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
