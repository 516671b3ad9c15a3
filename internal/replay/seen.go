// ABOUTME: TTL cache of recently dispatched replay keys.
// ABOUTME: Filters server replay overshoot so handlers are not re-notified for applied events.

package replay

import (
	"container/list"
	"sync"
	"time"
)

// seenEntry stores the timestamp and list element for a cached key.
type seenEntry struct {
	timestamp time.Time
	element   *list.Element
}

// SeenCache is a thread-safe, TTL-based, size-limited record of envelope ids
// the client has already dispatched. After a reconnect the server replays at
// least from the requested cursor and may overshoot by an event or two; the
// cache lets the dispatch path skip replayed ids it has already applied
// instead of re-notifying every handler. Uses a doubly-linked list for O(1)
// oldest-entry eviction.
type SeenCache struct {
	mu      sync.Mutex
	seen    map[string]*seenEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewSeenCache creates a cache with the given TTL and maximum size.
// A background goroutine periodically removes expired entries.
func NewSeenCache(ttl time.Duration, maxSize int) *SeenCache {
	c := &SeenCache{
		seen:    make(map[string]*seenEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// CheckAndMark atomically checks whether a key was already seen and marks it
// if not. Returns true if the key was already seen (skip it), false if it is
// new and now marked.
func (c *SeenCache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return true
	}

	c.markLocked(key)
	return false
}

// markLocked records a key. Must be called with mu held.
func (c *SeenCache) markLocked(key string) {
	now := time.Now()

	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &seenEntry{timestamp: now, element: elem}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *SeenCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// cleanup periodically removes expired entries until Close is called.
func (c *SeenCache) cleanup() {
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

func (c *SeenCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *SeenCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
