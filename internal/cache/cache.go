// Package cache holds time-bounded caches for price data.
package cache

import (
	"sync"
	"time"

	"github.com/vadiminshakov/skinwatch/pkg/clock"
)

// Cache is a keyed store whose entries expire after a fixed TTL.
// Get never returns an expired value.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
	Invalidate(key K)
	InvalidateIfExpired()
}

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// TTL is an in-memory cache keyed by K. An entry is valid while now-insertedAt < ttl.
type TTL[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	clock   clock.Clock
}

// NewTTL creates a TTL cache driven by clk.
func NewTTL[K comparable, V any](ttl time.Duration, clk clock.Clock) *TTL[K, V] {
	if clk == nil {
		clk = clock.Real{}
	}
	return &TTL[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		clock:   clk,
	}
}

// Get returns the cached value if present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok || !c.valid(e) {
		return zero, false
	}
	return e.value, true
}

// Put stores value under key stamped with the current time.
func (c *TTL[K, V]) Put(key K, value V) {
	now := c.clock.Now()
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, insertedAt: now}
	c.mu.Unlock()
}

// Invalidate drops key.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateIfExpired drops every expired entry.
func (c *TTL[K, V]) InvalidateIfExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if !c.valid(e) {
			delete(c.entries, k)
		}
	}
}

// Clear drops everything.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len reports stored entries, expired ones included.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTL[K, V]) valid(e entry[V]) bool {
	return c.clock.Now().Sub(e.insertedAt) < c.ttl
}
