// ABOUTME: Tests for the Redis stream mirror
// ABOUTME: Skipped when no Redis server answers at REDIS_ADDR or localhost:6379

package mirror

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashraj-dudhe/mcp-client/internal/broadcast"
)

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func newTestMirror(t *testing.T) (*RedisMirror, *redis.Client) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: redisAddr()})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}

	stream := "test:mirror:" + uuid.New().String()
	t.Cleanup(func() {
		client.Del(context.Background(), stream)
		client.Close()
	})
	return New(Config{Client: client, Stream: stream, MaxLen: 100}, nil), client
}

func TestAppendAndRecent(t *testing.T) {
	m, _ := newTestMirror(t)
	ctx := t.Context()

	for _, method := range []string{"tools/list", "resources/list"} {
		_, err := m.Append(ctx, &broadcast.Envelope{
			Type:      broadcast.EventResponse,
			SessionID: "server_a",
			Method:    method,
			Payload:   json.RawMessage(`{"jsonrpc":"2.0","id":2,"result":{}}`),
			Time:      time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	envs, err := m.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, "resources/list", envs[0].Method)
	assert.Equal(t, "tools/list", envs[1].Method)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":{}}`, string(envs[0].Payload))
}

func TestRunDrainsSubscription(t *testing.T) {
	m, client := newTestMirror(t)

	b := broadcast.New(16, nil)
	defer b.Close()
	events, _ := b.Subscribe(t.Context())

	done := make(chan error, 1)
	go func() { done <- m.Run(t.Context(), events) }()

	for range 3 {
		b.Publish(&broadcast.Envelope{Type: broadcast.EventSessionState, SessionID: "server_b", State: "Ready"})
	}

	assert.Eventually(t, func() bool {
		n, err := client.XLen(context.Background(), m.stream).Result()
		return err == nil && n == 3
	}, 2*time.Second, 10*time.Millisecond)

	b.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the subscription closed")
	}
}

func TestNewDefaults(t *testing.T) {
	m := New(Config{Addr: "localhost:0"}, nil)
	defer m.Close()

	assert.Equal(t, DefaultStream, m.stream)
	assert.EqualValues(t, DefaultMaxLen, m.maxLen)
}
