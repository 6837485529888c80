// Package eventloop provides the single-threaded scheduler the proctor core runs on.
//
// Every callback handed to a Loop (posted work, timer callbacks, completions of
// off-loop work) executes on one goroutine, one at a time. State owned by code
// running on the loop therefore needs no locking.
package eventloop

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// timer was still pending. Must be called on the loop.
	Stop() bool
}

// Loop serializes callbacks.
type Loop interface {
	Now() time.Time
	Post(fn func())
	AfterFunc(d time.Duration, fn func()) Timer
	// Go runs work off the loop and then posts then (if non-nil) back onto it.
	Go(work func(), then func())
}

// Real is a Loop backed by a goroutine and wall-clock timers.
//
// The queue is unbounded, so Post never blocks, including from inside a
// callback. Callbacks posted after Run returns are dropped.
type Real struct {
	mu      sync.Mutex
	pending []func()
	stopped bool
	wake    chan struct{}
	log     zerolog.Logger
}

// NewReal creates a loop. Call Run to start processing.
func NewReal(log zerolog.Logger) *Real {
	return &Real{
		wake: make(chan struct{}, 1),
		log:  log.With().Str("component", "event_loop").Logger(),
	}
}

// Run processes callbacks until ctx is cancelled. Anything still queued at
// that point is discarded.
func (l *Real) Run(ctx context.Context) {
	defer l.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
		for _, fn := range l.take() {
			if ctx.Err() != nil {
				return
			}
			l.exec(fn)
		}
	}
}

func (l *Real) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.pending
	l.pending = nil
	return batch
}

func (l *Real) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if n := len(l.pending); n > 0 {
		l.log.Debug().Int("dropped", n).Msg("Loop stopped with callbacks queued")
	}
	l.pending = nil
}

func (l *Real) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("Recovered panic in loop callback")
		}
	}()
	fn()
}

func (l *Real) Now() time.Time { return time.Now() }

func (l *Real) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Real) AfterFunc(d time.Duration, fn func()) Timer {
	t := &realTimer{}
	t.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.fired = true
			fn()
		})
	})
	return t
}

func (l *Real) Go(work func(), then func()) {
	go func() {
		work()
		if then != nil {
			l.Post(then)
		}
	}()
}

// realTimer flags are only touched on the loop goroutine, so a callback that
// was already queued when Stop ran still sees stopped and bails out.
type realTimer struct {
	t       *time.Timer
	stopped bool
	fired   bool
}

func (t *realTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.t.Stop()
	return true
}
