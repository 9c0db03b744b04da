// Package visibility tracks whether the hosting surface is in the
// foreground. Pollers pause while hidden; the persistence engine flushes on
// the transition to hidden. The tracker is fed by whatever signal the host
// has: a terminal suspend hook, a window focus event, or tests.
package visibility

import "sync"

// Tracker holds the current visibility state and notifies subscribers on
// every change. Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	visible bool
	nextID  int
	subs    map[int]func(visible bool)
}

// NewTracker starts visible.
func NewTracker() *Tracker {
	return &Tracker{visible: true, subs: make(map[int]func(bool))}
}

func (t *Tracker) Visible() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.visible
}

// Set updates the state and notifies subscribers when it changed.
// Callbacks run synchronously on the caller's goroutine and must not block.
func (t *Tracker) Set(visible bool) {
	t.mu.Lock()
	if t.visible == visible {
		t.mu.Unlock()
		return
	}
	t.visible = visible
	subs := make([]func(bool), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(visible)
	}
}

// OnChange registers fn and returns its unsubscribe function.
func (t *Tracker) OnChange(fn func(visible bool)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}
