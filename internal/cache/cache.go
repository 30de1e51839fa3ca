package cache

import (
	"strings"
	"sync"
	"time"
)

// entry is one stored value with its expiry bookkeeping.
type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Cache is a process-wide TTL key/value store shared between metric producers
// and the decision engine. Expired entries are dropped lazily on read and
// eagerly by the background sweep, so no entry outlives its TTL by more than
// one sweep interval. All operations are safe for concurrent use.
type Cache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	defaultTTL time.Duration

	sweepEvery time.Duration
	stopOnce   sync.Once
	stopChan   chan struct{}
	onEvict    func(count int) // optional, called after each sweep that removed entries
}

// New creates a cache with the given default TTL and sweep interval. The
// sweep goroutine starts on the first call to StartSweep.
func New[V any](defaultTTL, sweepInterval time.Duration) *Cache[V] {
	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		defaultTTL: defaultTTL,
		sweepEvery: sweepInterval,
		stopChan:   make(chan struct{}),
	}
}

// SetEvictionHook registers a callback invoked with the number of entries
// removed by each background sweep. Must be set before StartSweep.
func (c *Cache[V]) SetEvictionHook(h func(count int)) {
	c.onEvict = h
}

// Set stores the value under key with the default TTL, overwriting any
// existing entry unconditionally.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores the value with an explicit TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, storedAt: time.Now(), ttl: ttl}
	c.mu.Unlock()
}

// Get returns the value for key. A missing or expired entry yields the zero
// value and false; expired entries are deleted as a side effect of the read.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if e.expired(time.Now()) {
		c.mu.Lock()
		// Re-check: a writer may have refreshed the key since the read lock.
		if cur, ok := c.entries[key]; ok && cur.expired(time.Now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Has reports whether key holds a live value, with the same expiry side
// effect as Get.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// GetByPrefix returns all live entries whose key starts with prefix. Expired
// matches encountered during the scan are purged.
func (c *Cache[V]) GetByPrefix(prefix string) map[string]V {
	now := time.Now()
	result := make(map[string]V)

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if e.expired(now) {
			delete(c.entries, key)
			continue
		}
		result[key] = e.value
	}
	return result
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Size returns the number of stored entries, expired ones included until the
// next sweep.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartSweep launches the background eviction goroutine. Keys that are never
// read again would otherwise accumulate forever.
func (c *Cache[V]) StartSweep() {
	go func() {
		ticker := time.NewTicker(c.sweepEvery)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopChan:
				return
			case <-ticker.C:
				removed := c.sweep()
				if removed > 0 && c.onEvict != nil {
					c.onEvict(removed)
				}
			}
		}
	}()
}

// StopSweep stops the background eviction goroutine.
func (c *Cache[V]) StopSweep() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// sweep removes every expired entry and returns how many were dropped.
func (c *Cache[V]) sweep() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
