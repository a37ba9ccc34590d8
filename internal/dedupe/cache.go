// ABOUTME: Thread-safe TTL cache for deduplicating inbound update ids.
// ABOUTME: Prevents reprocessing updates redelivered after polling restarts.

// Package dedupe provides update deduplication using a time-based cache
// to prevent processing redelivered updates within a configurable window.
package dedupe

import (
	"sync"
	"time"
)

// Cache tracks recently seen update ids. It is size-limited: when full, the
// oldest entry is evicted. A background goroutine drops expired entries.
type Cache struct {
	mu      sync.Mutex
	seen    map[int64]time.Time
	order   []int64 // insertion order, oldest first
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[int64]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// CheckAndMark atomically checks whether an update id has been seen within
// the TTL and marks it if not. Returns true for a duplicate.
func (c *Cache) CheckAndMark(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.seen[id]; ok && time.Since(ts) < c.ttl {
		return true
	}

	if _, exists := c.seen[id]; !exists {
		if len(c.seen) >= c.maxSize {
			c.evictOldest()
		}
		c.order = append(c.order, id)
	}
	c.seen[id] = time.Now()
	return false
}

// evictOldest removes the oldest live entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.seen[oldest]; ok {
			delete(c.seen, oldest)
			return
		}
	}
}

func (c *Cache) cleanup() {
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

func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	live := c.order[:0]
	for _, id := range c.order {
		ts, ok := c.seen[id]
		if !ok {
			continue
		}
		if now.Sub(ts) > c.ttl {
			delete(c.seen, id)
			continue
		}
		live = append(live, id)
	}
	c.order = live
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
