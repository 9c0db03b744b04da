// Package flight deduplicates concurrent fetches for the same resource key:
// however many triggers fire at once (startup load, poll tick, visibility
// change), at most one producer call is outstanding per key and every caller
// receives its result.
package flight

import (
	"context"
	"sync"
)

type call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Group tracks in-flight producer calls by key.
type Group[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

func NewGroup[T any]() *Group[T] {
	return &Group[T]{calls: make(map[string]*call[T])}
}

// Do returns the result of producer for key, sharing one invocation among
// concurrent callers. The producer runs with the context of the caller that
// started it; a waiter whose own context is cancelled detaches and returns
// its context error without waiting for the shared result.
func (g *Group[T]) Do(ctx context.Context, key string, producer func(ctx context.Context) (T, error)) (T, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}

	c := &call[T]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.val, c.err = producer(ctx)

	g.mu.Lock()
	// Forget may have replaced the slot while we ran; only clear our own.
	if cur, ok := g.calls[key]; ok && cur == c {
		delete(g.calls, key)
	}
	g.mu.Unlock()

	close(c.done)
	return c.val, c.err
}

// InFlight reports whether a call for key is currently outstanding.
func (g *Group[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calls[key]
	return ok
}

// Forget detaches any outstanding call for key so the next Do starts a
// fresh producer. The detached call still completes for its own waiters.
// Used on unsubscribe so a dangling fetch never blocks a new subscriber.
func (g *Group[T]) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.calls, key)
}
