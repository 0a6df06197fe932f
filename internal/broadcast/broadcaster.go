// ABOUTME: In-memory fan-out of session envelopes to all subscribers
// ABOUTME: Non-blocking delivery drops events for subscribers whose buffers are full

package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize is the channel buffer for each subscriber.
const DefaultBufferSize = 64

// Broadcaster provides in-memory pub/sub for session envelopes.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Envelope // subID -> ch
	bufferSize  int
	closed      bool
	logger      *slog.Logger
}

// New creates a broadcaster. A bufferSize below 1 uses DefaultBufferSize.
// Pass nil logger for default.
func New(bufferSize int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Broadcaster{
		subscribers: make(map[string]chan *Envelope),
		bufferSize:  bufferSize,
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber. Returns a channel that receives envelopes
// and a subscription ID for Unsubscribe. The subscription is removed when ctx
// is cancelled. Subscribing to a closed broadcaster yields a closed channel.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan *Envelope, string) {
	subID := uuid.New().String()
	ch := make(chan *Envelope, b.bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish delivers env to every subscriber without blocking.
func (b *Broadcaster) Publish(env *Envelope) {
	// Sends happen under the read lock so that Unsubscribe and Close, which
	// close channels under the write lock, cannot race with them.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers {
		select {
		case ch <- env:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"sub_id", subID,
				"session_id", env.SessionID,
				"type", env.Type)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Count returns the number of live subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later Publish calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("broadcaster closed")
}
