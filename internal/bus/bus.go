// Package bus is a small typed publish/subscribe mechanism scoped to the
// orchestrator's lifetime. It replaces global custom events with topics
// whose payload shapes are checked at compile time.
package bus

import "sync"

// Topic carries values of one payload type to its subscribers.
type Topic[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(T)
}

func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns its unsubscribe function. Subscribing
// the same function twice yields two independent subscriptions.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// Publish delivers v to every current subscriber, synchronously, on the
// caller's goroutine. Subscribers must not block.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	subs := make([]func(T), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.RUnlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Len reports the current subscriber count, for tests and diagnostics.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
