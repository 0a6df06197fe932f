// ABOUTME: Tests for the frame ledger recorder
// ABOUTME: Covers envelope conversion, draining on close and retention pruning

package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashraj-dudhe/mcp-client/internal/broadcast"
	"github.com/yashraj-dudhe/mcp-client/internal/store"
)

func TestRecorderDrainsUntilClosed(t *testing.T) {
	st := store.NewMockStore()
	rec := newRecorder(st, 0, testLogger())

	now := time.Now().UTC()
	events := make(chan *broadcast.Envelope, 3)
	events <- &broadcast.Envelope{Type: broadcast.EventSessionState, SessionID: "server_a", State: "Ready", Time: now}
	events <- &broadcast.Envelope{
		Type:      broadcast.EventResponse,
		SessionID: "server_a",
		Method:    "tools/list",
		Payload:   json.RawMessage(`{"jsonrpc":"2.0","id":2,"result":{"tools":[]}}`),
		Time:      now.Add(time.Millisecond),
	}
	// Invalid envelopes are logged and skipped.
	events <- &broadcast.Envelope{Type: broadcast.EventSessionState}
	close(events)

	require.NoError(t, rec.Run(t.Context(), events))

	got, err := st.ListSessionEvents(t.Context(), "server_a", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := eventToEnvelope(got[0])
	assert.Equal(t, broadcast.EventSessionState, first.Type)
	assert.Equal(t, "Ready", first.State)
	assert.True(t, now.Equal(first.Time))

	second := eventToEnvelope(got[1])
	assert.Equal(t, "tools/list", second.Method)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":{"tools":[]}}`, string(second.Payload))
}

func TestRecorderPrunesPastRetention(t *testing.T) {
	st := store.NewMockStore()
	require.NoError(t, st.SaveEvent(t.Context(), &store.Event{
		SessionID: "server_old",
		Type:      "sessionState",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}))
	require.NoError(t, st.SaveEvent(t.Context(), &store.Event{
		SessionID: "server_new",
		Type:      "sessionState",
		CreatedAt: time.Now(),
	}))

	rec := newRecorder(st, 24*time.Hour, testLogger())
	events := make(chan *broadcast.Envelope)
	close(events)
	require.NoError(t, rec.Run(t.Context(), events))

	assert.Equal(t, 1, st.Len())
	old, err := st.ListSessionEvents(t.Context(), "server_old", 10)
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestRecorderStopsOnContextCancel(t *testing.T) {
	rec := newRecorder(store.NewMockStore(), 0, testLogger())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.NoError(t, rec.Run(ctx, make(chan *broadcast.Envelope)))
}
