package proctor

import (
	"time"

	"github.com/stemsi/quizguard/internal/eventloop"
)

// Budget is the cumulative away-time allowance for the whole attempt.
//
// Time is charged once per away-period, from the period's start to the
// moment it is closed, so polling cadence never affects the total.
type Budget struct {
	loop      eventloop.Loop
	remaining time.Duration
	charged   time.Duration

	away      bool
	since     time.Time
	reason    Reason
	stillAway func() bool
	deadline  eventloop.Timer

	onExhausted func(Reason)
}

// NewBudget creates a full budget. onExhausted runs on the loop when a
// period outlasts the remaining allowance.
func NewBudget(loop eventloop.Loop, total time.Duration, onExhausted func(Reason)) *Budget {
	return &Budget{
		loop:        loop,
		remaining:   total,
		onExhausted: onExhausted,
	}
}

// Begin opens an away-period that started at at. If a period is already
// open it is kept as is, along with its original reason.
func (b *Budget) Begin(at time.Time, reason Reason, stillAway func() bool) bool {
	if b.away {
		return false
	}
	now := b.loop.Now()
	if at.After(now) {
		at = now
	}
	b.away = true
	b.since = at
	b.reason = reason
	b.stillAway = stillAway

	delay := at.Add(b.remaining).Sub(now)
	b.deadline = b.loop.AfterFunc(delay, b.expire)
	return true
}

// End closes the open period at now and banks whatever allowance is left.
func (b *Budget) End(now time.Time) {
	if !b.away {
		return
	}
	if b.deadline != nil {
		b.deadline.Stop()
		b.deadline = nil
	}
	b.charge(now)
}

func (b *Budget) expire() {
	b.deadline = nil
	if !b.away {
		return
	}
	reason, stillAway := b.reason, b.stillAway
	b.charge(b.loop.Now())
	if stillAway == nil || stillAway() {
		b.onExhausted(reason)
	}
}

func (b *Budget) charge(now time.Time) {
	spent := now.Sub(b.since)
	if spent < 0 {
		spent = 0
	}
	if spent > b.remaining {
		spent = b.remaining
	}
	b.remaining -= spent
	b.charged += spent

	b.away = false
	b.reason = ""
	b.stillAway = nil
}

// Remaining is the banked allowance, not counting an open period.
func (b *Budget) Remaining() time.Duration { return b.remaining }

// Charged is the total away-time consumed so far.
func (b *Budget) Charged() time.Duration { return b.charged }

// Away reports whether a period is open.
func (b *Budget) Away() bool { return b.away }
