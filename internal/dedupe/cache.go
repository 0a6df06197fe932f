// ABOUTME: Thread-safe TTL cache of keyed results for idempotent requests.
// ABOUTME: Concurrent callers with the same key share one execution of the operation.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the outcome and list element for a cached key.
type cacheEntry[V any] struct {
	key       string
	timestamp time.Time
	element   *list.Element
	value     V
	err       error
	ready     chan struct{} // closed once value or err is set
}

// Cache is a thread-safe, TTL-based, size-limited cache of operation
// results. Uses a doubly-linked list to maintain insertion order for O(1)
// eviction.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry[V]
	order   *list.List // keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine periodically removes expired entries until Close.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache[V]{
		entries: make(map[string]*cacheEntry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Do returns the remembered result for key, or runs fn and remembers its
// result. Callers arriving while fn runs wait for it and share its result.
// shared reports whether the result came from an earlier call. Errors are
// returned to everyone waiting but are not remembered.
func (c *Cache[V]) Do(key string, fn func() (V, error)) (value V, shared bool, err error) {
	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && c.fresh(entry) {
		c.mu.Unlock()
		<-entry.ready
		return entry.value, true, entry.err
	}
	entry := c.insertLocked(key)
	c.mu.Unlock()

	value, err = fn()

	c.mu.Lock()
	entry.value, entry.err = value, err
	entry.timestamp = time.Now()
	if err != nil {
		c.removeLocked(entry)
	}
	close(entry.ready)
	c.mu.Unlock()

	return value, false, err
}

// Lookup returns the remembered value for key if it is complete and not
// expired.
func (c *Cache[V]) Lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok || !c.fresh(entry) {
		return zero, false
	}
	select {
	case <-entry.ready:
		return entry.value, entry.err == nil
	default:
		return zero, false
	}
}

// Forget drops the remembered result for key so the next Do runs fn again.
// An execution still in flight is left alone.
func (c *Cache[V]) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return
	}
	select {
	case <-entry.ready:
		c.removeLocked(entry)
	default:
	}
}

// Len returns the number of entries, including expired ones not yet cleaned.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// fresh reports whether entry is within the TTL. In-flight entries are
// always fresh. Must be called with mu held.
func (c *Cache[V]) fresh(entry *cacheEntry[V]) bool {
	select {
	case <-entry.ready:
		return time.Since(entry.timestamp) < c.ttl
	default:
		return true
	}
}

// insertLocked adds an in-flight entry for key, evicting the oldest entry if
// the cache is at capacity. Must be called with mu held.
func (c *Cache[V]) insertLocked(key string) *cacheEntry[V] {
	if old, exists := c.entries[key]; exists {
		c.removeLocked(old)
	}
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry[V]{
		key:       key,
		timestamp: time.Now(),
		ready:     make(chan struct{}),
	}
	entry.element = c.order.PushBack(entry)
	c.entries[key] = entry
	return entry
}

// removeLocked drops entry if it is still the one stored for its key.
// Must be called with mu held.
func (c *Cache[V]) removeLocked(entry *cacheEntry[V]) {
	if c.entries[entry.key] != entry {
		return
	}
	c.order.Remove(entry.element)
	delete(c.entries, entry.key)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	entry, _ := front.Value.(*cacheEntry[V])
	c.order.Remove(front)
	delete(c.entries, entry.key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired, completed entries.
func (c *Cache[V]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.entries {
		if !c.fresh(entry) {
			c.removeLocked(entry)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
