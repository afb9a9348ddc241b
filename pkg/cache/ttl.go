// Package cache provides the TTL caches that hold provider instances and recent balances.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Default lifetimes.
const (
	InstanceTTL = 600 * time.Second
	ResponseTTL = 300 * time.Second
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTL is a mutex-guarded map whose entries expire once now-storedAt >= ttl.
// Expired entries are dropped lazily on lookup or by Purge. A zero ttl disables the cache.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[K]entry[V]
}

// New creates a cache. now may be nil.
func New[K comparable, V any](ttl time.Duration, now func() time.Time) *TTL[K, V] {
	if now == nil {
		now = time.Now
	}
	return &TTL[K, V]{
		ttl:     ttl,
		now:     now,
		entries: make(map[K]entry[V]),
	}
}

// Enabled reports whether entries are retained at all.
func (c *TTL[K, V]) Enabled() bool { return c.ttl > 0 }

// Get returns the live value for key.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

// Put stores value under key.
func (c *TTL[K, V]) Put(key K, value V) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
}

// GetOrCreate returns the cached value or builds one with create. create runs
// outside the lock, so concurrent callers may both build; the first value
// stored wins and every caller receives it.
func (c *TTL[K, V]) GetOrCreate(key K, create func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	v, err := create()
	if err != nil {
		var zero V
		return zero, false, err
	}
	if !c.Enabled() {
		return v, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.getLocked(key); ok {
		return existing, true, nil
	}
	c.entries[key] = entry[V]{value: v, storedAt: c.now()}
	return v, false, nil
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every expired entry and returns how many were removed.
func (c *TTL[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including ones not yet purged.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTL[K, V]) getLocked(key K) (V, bool) {
	var zero V
	if !c.Enabled() {
		return zero, false
	}
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Key builds the provider:hash(credential) cache key.
func Key(provider, credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return provider + ":" + hex.EncodeToString(sum[:8])
}
