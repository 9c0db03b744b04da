package cache

import (
	"sync"
	"time"

	"mathmentor/internal/clock"
)

// Entry is a cached value together with the time it was fetched.
type Entry[T any] struct {
	Value     T         `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store abstracts the backing storage of a Cache so the same freshness
// logic runs over an in-memory map or a persistent key-value store.
type Store[T any] interface {
	Load(key string) (Entry[T], bool)
	Save(key string, e Entry[T])
	Remove(key string)
	Len() int
	// Range visits entries until fn returns false.
	Range(fn func(key string, e Entry[T]) bool)
}

// Cache is a keyed TTL cache. Misses are reported as a boolean, never as
// an error. Safe for concurrent use.
type Cache[T any] struct {
	mu       sync.RWMutex
	store    Store[T]
	clk      clock.Clock
	capacity int
}

type Option[T any] func(*Cache[T])

// WithClock substitutes the clock, mainly for tests.
func WithClock[T any](c clock.Clock) Option[T] {
	return func(cc *Cache[T]) { cc.clk = c }
}

// WithCapacity bounds the number of entries; when exceeded the entry with
// the oldest fetch time is evicted. Zero means unbounded.
func WithCapacity[T any](n int) Option[T] {
	return func(cc *Cache[T]) { cc.capacity = n }
}

// WithStore substitutes the backing store.
func WithStore[T any](s Store[T]) Option[T] {
	return func(cc *Cache[T]) { cc.store = s }
}

func New[T any](opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		store: NewMemoryStore[T](),
		clk:   clock.System(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value regardless of age. Freshness is a separate
// question answered by IsFresh.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store.Load(key)
	if !ok {
		var zero T
		return zero, false
	}
	return e.Value, true
}

// Set stores value under key stamped with the current time. The fetch time
// never moves backwards for a key, even under a skewed clock.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	if prev, ok := c.store.Load(key); ok && prev.FetchedAt.After(now) {
		now = prev.FetchedAt
	}
	if c.capacity > 0 {
		if _, exists := c.store.Load(key); !exists && c.store.Len() >= c.capacity {
			c.evictOldest()
		}
	}
	c.store.Save(key, Entry[T]{Value: value, FetchedAt: now})
}

// IsFresh reports whether the entry for key is younger than ttl. An entry
// aged exactly ttl is stale.
func (c *Cache[T]) IsFresh(key string, ttl time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store.Load(key)
	if !ok {
		return false
	}
	return c.clk.Now().Sub(e.FetchedAt) < ttl
}

// FetchedAt exposes the stamp of an entry, for diagnostics.
func (c *Cache[T]) FetchedAt(key string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store.Load(key)
	if !ok {
		return time.Time{}, false
	}
	return e.FetchedAt, true
}

func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(key)
}

func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}

func (c *Cache[T]) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	c.store.Range(func(key string, e Entry[T]) bool {
		if !found || e.FetchedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = key, e.FetchedAt, true
		}
		return true
	})
	if found {
		c.store.Remove(oldestKey)
	}
}

// MemoryStore is the default map-backed store.
type MemoryStore[T any] struct {
	entries map[string]Entry[T]
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{entries: make(map[string]Entry[T])}
}

func (m *MemoryStore[T]) Load(key string) (Entry[T], bool) {
	e, ok := m.entries[key]
	return e, ok
}

func (m *MemoryStore[T]) Save(key string, e Entry[T]) { m.entries[key] = e }
func (m *MemoryStore[T]) Remove(key string)           { delete(m.entries, key) }
func (m *MemoryStore[T]) Len() int                    { return len(m.entries) }

func (m *MemoryStore[T]) Range(fn func(key string, e Entry[T]) bool) {
	for k, e := range m.entries {
		if !fn(k, e) {
			return
		}
	}
}
