package ledger

import (
	"context"
	"sync"
)

// CachedLedger remembers the most recently validated addresses. Only
// successful validations are retained.
type CachedLedger struct {
	Ledger

	cache *ringCache[string, struct{}]
}

func WithAddressCache(l Ledger, capacity int) *CachedLedger {
	return &CachedLedger{
		Ledger: l,
		cache:  newRingCache[string, struct{}](capacity),
	}
}

func (c *CachedLedger) ValidateAddress(ctx context.Context, addr string) error {
	_, err := c.cache.Get(ctx, addr, func(ctx context.Context, addr string) (struct{}, error) {
		return struct{}{}, c.Ledger.ValidateAddress(ctx, addr)
	})
	return err
}

func (c *CachedLedger) Len() int {
	return c.cache.Len()
}

//
//
//

type ringCache[K comparable, V any] struct {
	mu    sync.Mutex
	index map[K]int // key -> slot
	ring  []*ringEntry[K, V]
	next  int
}

type ringEntry[K comparable, V any] struct {
	mu     sync.RWMutex
	key    K
	value  V
	err    error
	filled bool
}

func newRingCache[K comparable, V any](capacity int) *ringCache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &ringCache[K, V]{
		index: make(map[K]int, capacity),
		ring:  make([]*ringEntry[K, V], capacity),
	}
}

func (c *ringCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Get returns the cached value for k, calling fill at most once per
// concurrent burst of misses. Failed fills are evicted.
func (c *ringCache[K, V]) Get(ctx context.Context, k K, fill func(context.Context, K) (V, error)) (V, error) {
	e := c.entry(k)

	e.mu.RLock()
	v, err, filled := e.value, e.err, e.filled
	e.mu.RUnlock()
	if filled {
		return v, err
	}

	e.mu.Lock()
	if e.filled {
		v, err = e.value, e.err
		e.mu.Unlock()
		return v, err
	}
	e.value, e.err = fill(ctx, k)
	e.filled = true
	v, err = e.value, e.err
	e.mu.Unlock()

	if err != nil {
		c.evict(k, e)
	}

	return v, err
}

func (c *ringCache[K, V]) entry(k K) *ringEntry[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slot, ok := c.index[k]; ok {
		return c.ring[slot]
	}

	if old := c.ring[c.next]; old != nil {
		delete(c.index, old.key)
	}

	e := &ringEntry[K, V]{key: k}
	c.index[k] = c.next
	c.ring[c.next] = e
	c.next = (c.next + 1) % len(c.ring)

	return e
}

func (c *ringCache[K, V]) evict(k K, e *ringEntry[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.index[k]
	if !ok || c.ring[slot] != e {
		return
	}

	c.ring[slot] = nil
	delete(c.index, k)
}
