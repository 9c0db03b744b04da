// Package persist keeps the remote copy of a conversation eventually
// consistent with the in-memory buffer. Four independent triggers flush
// the complete history snapshot: a debounce after the last append, a
// fixed-interval safety flush, loss of visibility, and teardown. A failed
// flush is retried only by whichever trigger fires next.
package persist

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mathmentor/internal/session"
	"mathmentor/internal/visibility"
)

// FlushFunc sends one complete history snapshot to the backend.
type FlushFunc func(ctx context.Context, history []session.Message) error

// Options tune the trigger timings; zero values take the observed
// production defaults.
type Options struct {
	Debounce       time.Duration // quiet period after the last append
	SafetyInterval time.Duration // unconditional periodic flush
	FlushTimeout   time.Duration // budget for a single flush call
}

func (o *Options) withDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.SafetyInterval <= 0 {
		o.SafetyInterval = 30 * time.Second
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 10 * time.Second
	}
}

// Engine owns the flush timers for one session.
type Engine struct {
	machine *session.Machine
	flush   FlushFunc
	opts    Options

	mu       sync.Mutex
	debounce *time.Timer
	closed   bool

	cron     *cron.Cron
	unsubVis func()
}

// New wires the engine to its session and starts the periodic safety
// flush. The visibility tracker may be nil when no such signal exists.
func New(machine *session.Machine, flush FlushFunc, vis *visibility.Tracker, opts Options) (*Engine, error) {
	opts.withDefaults()
	e := &Engine{machine: machine, flush: flush, opts: opts}

	e.cron = cron.New()
	spec := fmt.Sprintf("@every %s", opts.SafetyInterval)
	if _, err := e.cron.AddFunc(spec, e.safetyFlush); err != nil {
		return nil, fmt.Errorf("schedule safety flush: %w", err)
	}
	e.cron.Start()

	if vis != nil {
		e.unsubVis = vis.OnChange(func(visible bool) {
			if !visible {
				// Fire and forget; the visibility handler must not block.
				go e.Flush(context.Background())
			}
		})
	}

	return e, nil
}

// NoteAppend (re)starts the debounce window. Call it after every append to
// the history.
func (e *Engine) NoteAppend() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(e.opts.Debounce, func() {
		e.Flush(context.Background())
	})
}

// Flush sends the complete current history. Errors are logged, never
// surfaced: the next natural trigger is the retry.
func (e *Engine) Flush(ctx context.Context) {
	history := e.machine.History()
	if len(history) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.FlushTimeout)
	defer cancel()

	if err := e.flush(ctx, history); err != nil {
		log.Printf("persist: flush of %d messages failed: %v", len(history), err)
		return
	}
	e.machine.MarkPersisted(time.Now())
}

func (e *Engine) safetyFlush() {
	// Unconditional while the history is non-empty, independent of the
	// debounce state; full snapshots are idempotent under last-write-wins.
	if e.machine.HistoryLen() == 0 {
		return
	}
	e.Flush(context.Background())
}

// Close stops all timers and issues the final teardown flush
// unconditionally.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.mu.Unlock()

	if e.unsubVis != nil {
		e.unsubVis()
	}
	<-e.cron.Stop().Done()

	e.Flush(context.Background())
}
