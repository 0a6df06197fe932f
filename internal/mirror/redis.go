// ABOUTME: Redis stream mirror of session envelopes using go-redis XADD
// ABOUTME: Runs as a broadcast subscriber and trims the stream with approximate MAXLEN

package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/yashraj-dudhe/mcp-client/internal/broadcast"
)

const (
	// DefaultStream is the stream key when none is configured.
	DefaultStream = "mcp-web-client:events"
	// DefaultMaxLen is the approximate stream length kept by XADD.
	DefaultMaxLen = 10000
)

// Config configures a RedisMirror.
type Config struct {
	// Client is used when set; otherwise a client is created for Addr.
	Client redis.UniversalClient
	Addr   string
	Stream string
	MaxLen int64
}

// RedisMirror appends envelopes to a Redis stream.
type RedisMirror struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	logger *slog.Logger
}

// New creates a mirror. It does not contact Redis; use Ping to check.
func New(cfg Config, logger *slog.Logger) *RedisMirror {
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = redis.NewClient(&redis.Options{Addr: cfg.Addr})
	}
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &RedisMirror{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "mirror"),
	}
}

// Ping checks that Redis answers.
func (m *RedisMirror) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

// Append writes one envelope and returns the stream entry id.
func (m *RedisMirror) Append(ctx context.Context, env *broadcast.Envelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshaling envelope: %w", err)
	}

	id, err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream,
		MaxLen: m.maxLen,
		Approx: true,
		Values: map[string]any{"data": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("appending to stream %s: %w", m.stream, err)
	}
	return id, nil
}

// Run appends every envelope from events until the channel closes or ctx
// ends. Write failures are logged and do not stop the mirror.
func (m *RedisMirror) Run(ctx context.Context, events <-chan *broadcast.Envelope) error {
	m.logger.Info("mirroring session events", "stream", m.stream, "maxlen", m.maxLen)
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := m.Append(ctx, env); err != nil && ctx.Err() == nil {
				m.logger.Warn("mirror write failed",
					"session_id", env.SessionID,
					"type", env.Type,
					"error", err)
			}
		}
	}
}

// Recent returns up to count of the newest envelopes, newest first.
func (m *RedisMirror) Recent(ctx context.Context, count int64) ([]broadcast.Envelope, error) {
	msgs, err := m.client.XRevRangeN(ctx, m.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("reading stream %s: %w", m.stream, err)
	}

	envs := make([]broadcast.Envelope, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var env broadcast.Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			m.logger.Debug("skipping undecodable stream entry", "id", msg.ID, "error", err)
			continue
		}
		envs = append(envs, env)
	}
	return envs, nil
}

// Close closes the Redis client.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
