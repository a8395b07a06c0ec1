package cache

import (
	"time"

	"github.com/karlseguin/ccache/v2"
)

// LRU is a size-bounded string-keyed cache backed by ccache.
// Expired items are treated as misses and dropped on read.
type LRU[V any] struct {
	c   *ccache.Cache
	ttl time.Duration
}

// NewLRU creates an LRU holding at most size items for ttl each.
func NewLRU[V any](size int64, ttl time.Duration) *LRU[V] {
	if size < 1 {
		size = 1000
	}
	prune := uint32(size / 10)
	if prune < 1 {
		prune = 1
	}
	return &LRU[V]{
		c:   ccache.New(ccache.Configure().MaxSize(size).ItemsToPrune(prune)),
		ttl: ttl,
	}
}

func (l *LRU[V]) Get(key string) (V, bool) {
	var zero V
	item := l.c.Get(key)
	if item == nil {
		return zero, false
	}
	if item.Expired() {
		l.c.Delete(key)
		return zero, false
	}
	v, ok := item.Value().(V)
	if !ok {
		return zero, false
	}
	return v, true
}

func (l *LRU[V]) Put(key string, value V) {
	l.c.Set(key, value, l.ttl)
}

func (l *LRU[V]) Invalidate(key string) {
	l.c.Delete(key)
}

// InvalidateIfExpired is a no-op: expired items are dropped on read and evicted by size.
func (l *LRU[V]) InvalidateIfExpired() {}

// Clear drops everything.
func (l *LRU[V]) Clear() {
	l.c.Clear()
}

// Stop halts the ccache background worker.
func (l *LRU[V]) Stop() {
	l.c.Stop()
}
