// Package poller owns the refresh timers for remote collections. Each
// subscription ticks on a fixed interval and skips work while the surface
// is hidden or the cached entry is still fresh; overlapping triggers are
// collapsed by the single-flight guard rather than by suppressing ticks,
// so the schedule never drifts.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"mathmentor/internal/cache"
	"mathmentor/internal/flight"
	"mathmentor/internal/visibility"
)

// RefreshFunc produces a fresh value for a resource key.
type RefreshFunc[T any] func(ctx context.Context) (T, error)

// Poller schedules refreshes for resources cached in one Cache.
type Poller[T any] struct {
	cache *cache.Cache[T]
	guard *flight.Group[T]
	vis   *visibility.Tracker

	mu     sync.Mutex
	closed bool
	cancel map[int]context.CancelFunc
	nextID int
}

func New[T any](c *cache.Cache[T], vis *visibility.Tracker) *Poller[T] {
	return &Poller[T]{
		cache:  c,
		guard:  flight.NewGroup[T](),
		vis:    vis,
		cancel: make(map[int]context.CancelFunc),
	}
}

// Load fetches the value for key on demand: a fresh cached value is
// returned as is, otherwise the refresh runs under the single-flight guard.
// On refresh failure a stale cached value is still returned, error free;
// only a miss with no cached fallback surfaces the error.
func (p *Poller[T]) Load(ctx context.Context, key string, ttl time.Duration, refresh RefreshFunc[T]) (T, error) {
	if p.cache.IsFresh(key, ttl) {
		if v, ok := p.cache.Get(key); ok {
			return v, nil
		}
	}
	v, err := p.guard.Do(ctx, key, p.caching(key, refresh))
	if err != nil {
		if cached, ok := p.cache.Get(key); ok {
			log.Printf("poller: refresh %q failed, serving stale: %v", key, err)
			return cached, nil
		}
		var zero T
		return zero, err
	}
	return v, nil
}

// Subscribe refreshes key every interval while the surface is visible and
// the cache entry is older than ttl. The returned function cancels the
// timer and resets guard state so a later subscriber for the same key
// starts clean.
func (p *Poller[T]) Subscribe(key string, interval, ttl time.Duration, refresh RefreshFunc[T]) func() {
	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return func() {}
	}
	id := p.nextID
	p.nextID++
	p.cancel[id] = cancel
	p.mu.Unlock()

	go p.run(ctx, key, interval, ttl, refresh)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.cancel, id)
			p.mu.Unlock()
			cancel()
			p.guard.Forget(key)
		})
	}
}

// Close cancels every subscription.
func (p *Poller[T]) Close() {
	p.mu.Lock()
	p.closed = true
	cancels := make([]context.CancelFunc, 0, len(p.cancel))
	for _, c := range p.cancel {
		cancels = append(cancels, c)
	}
	p.cancel = make(map[int]context.CancelFunc)
	p.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

func (p *Poller[T]) run(ctx context.Context, key string, interval, ttl time.Duration, refresh RefreshFunc[T]) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !p.vis.Visible() {
			continue
		}
		if p.cache.IsFresh(key, ttl) {
			continue
		}

		if _, err := p.guard.Do(ctx, key, p.caching(key, refresh)); err != nil && ctx.Err() == nil {
			if _, ok := p.cache.Get(key); ok {
				// Stale value still serves; fully absorbed.
				continue
			}
			log.Printf("poller: refresh %q failed with empty cache: %v", key, err)
		}
	}
}

// caching wraps refresh so the cache write happens exactly once per
// producer run, and never for a cancelled fetch.
func (p *Poller[T]) caching(key string, refresh RefreshFunc[T]) RefreshFunc[T] {
	return func(ctx context.Context) (T, error) {
		v, err := refresh(ctx)
		if err != nil {
			return v, err
		}
		if err := ctx.Err(); err != nil {
			return v, err
		}
		p.cache.Set(key, v)
		return v, nil
	}
}
