// ABOUTME: Tests for the WebSocket and SSE subscriber transports
// ABOUTME: Runs a real HTTP server and follows a session through its handshake

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmaxmax/go-sse"

	"github.com/yashraj-dudhe/mcp-client/internal/broadcast"
	"github.com/yashraj-dudhe/mcp-client/internal/process/processtest"
)

// startServer serves tg over HTTP. The gateway is shut down first so
// streaming handlers return before the server closes.
func startServer(t *testing.T, tg *testGateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(tg.Handler())
	t.Cleanup(func() {
		_ = tg.Shutdown(context.Background())
		srv.Close()
	})
	return srv
}

func postConnect(t *testing.T, baseURL, path string) string {
	t.Helper()
	resp, err := http.Post(baseURL+"/api/connect?wait=true", "application/json",
		jsonBody(t, ConnectRequest{ServerPath: path}))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ConnectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.SessionID
}

func TestWebSocketStreamsEnvelopes(t *testing.T) {
	tg := newTestGateway(t, processtest.Server{})
	srv := startServer(t, tg)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool {
		return tg.broadcaster.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	id := postConnect(t, srv.URL, "server.py")

	var states []string
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var env broadcast.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, id, env.SessionID)
		assert.False(t, env.Time.IsZero())

		if env.Type == broadcast.EventSessionState {
			states = append(states, env.State)
			if env.State == "Ready" {
				break
			}
		}
	}
	assert.Equal(t, []string{"AwaitingInitResult", "AwaitingInitializedAck", "Ready"}, states)
}

func TestWebSocketSessionFilter(t *testing.T) {
	tg := newTestGateway(t, processtest.Server{})
	srv := startServer(t, tg)

	first := postConnect(t, srv.URL, "a.py")

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?session="+first, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool {
		return tg.broadcaster.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Traffic from a second session is filtered out.
	postConnect(t, srv.URL, "b.py")
	require.NoError(t, tg.Manager().Disconnect(first))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var env broadcast.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, first, env.SessionID)
	assert.Equal(t, "Closed", env.State)
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	tg := newTestGateway(t, processtest.Server{})
	srv := startServer(t, tg)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool {
		return tg.broadcaster.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, tg.Shutdown(ctx))

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestSSEStreamsEnvelopes(t *testing.T) {
	tg := newTestGateway(t, processtest.Server{})
	srv := startServer(t, tg)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var id string
	var types []string
	for ev, err := range sse.Read(resp.Body, nil) {
		require.NoError(t, err)

		if ev.Type == "open" {
			// Subscribed; start a session.
			id = postConnect(t, srv.URL, "server.py")
			continue
		}

		var env broadcast.Envelope
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &env))
		assert.Equal(t, string(env.Type), ev.Type)
		assert.Equal(t, id, env.SessionID)
		types = append(types, ev.Type)

		if env.Type == broadcast.EventSessionState && env.State == "Ready" {
			break
		}
	}

	assert.Contains(t, types, "serverResponse")
	assert.Equal(t, "sessionState", types[len(types)-1])
}
