// ABOUTME: Frame ledger recorder that persists every broadcast envelope
// ABOUTME: Subscribes like any other consumer and prunes rows past the retention window

package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/yashraj-dudhe/mcp-client/internal/broadcast"
	"github.com/yashraj-dudhe/mcp-client/internal/store"
)

const pruneInterval = time.Hour

// recorder writes envelopes to the ledger. It reads from a broadcaster
// subscription, so a slow store loses envelopes instead of stalling sessions.
type recorder struct {
	store     store.Store
	retention time.Duration
	logger    *slog.Logger
}

func newRecorder(s store.Store, retention time.Duration, logger *slog.Logger) *recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &recorder{
		store:     s,
		retention: retention,
		logger:    logger.With("component", "recorder"),
	}
}

// Run records envelopes until events closes or ctx ends.
func (r *recorder) Run(ctx context.Context, events <-chan *broadcast.Envelope) error {
	var prune <-chan time.Time
	if r.retention > 0 {
		r.prune(ctx)
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-events:
			if !ok {
				return nil
			}
			r.record(ctx, env)
		case <-prune:
			r.prune(ctx)
		}
	}
}

func (r *recorder) record(ctx context.Context, env *broadcast.Envelope) {
	event := envelopeToEvent(env)
	if err := r.store.SaveEvent(ctx, event); err != nil {
		r.logger.Warn("failed to record envelope",
			"session_id", env.SessionID,
			"type", env.Type,
			"error", err)
	}
}

func (r *recorder) prune(ctx context.Context) {
	cutoff := time.Now().Add(-r.retention)
	n, err := r.store.PruneEvents(ctx, cutoff)
	if err != nil {
		r.logger.Warn("failed to prune ledger", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned ledger", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}

func envelopeToEvent(env *broadcast.Envelope) *store.Event {
	return &store.Event{
		SessionID: env.SessionID,
		Type:      string(env.Type),
		Method:    env.Method,
		State:     env.State,
		Error:     env.Error,
		Payload:   env.Payload,
		CreatedAt: env.Time,
	}
}

func eventToEnvelope(e store.Event) broadcast.Envelope {
	return broadcast.Envelope{
		Type:      broadcast.EventType(e.Type),
		SessionID: e.SessionID,
		Payload:   e.Payload,
		State:     e.State,
		Error:     e.Error,
		Method:    e.Method,
		Time:      e.CreatedAt,
	}
}
