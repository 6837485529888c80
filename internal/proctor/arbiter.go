package proctor

import (
	"fmt"
	"time"

	"github.com/stemsi/quizguard/internal/eventloop"
)

// Violation is one confirmed detector report.
type Violation struct {
	Reason Reason
	// At is when the underlying signal fired.
	At time.Time
	// StillAway re-evaluates the adverse condition. Nil for one-shot
	// signals (copy, context menu, keys), which never open an away-period.
	StillAway func() bool
}

// Warning is surfaced to the test-taker each time the tally grows.
type Warning struct {
	Count  int
	Max    int
	Reason Reason
}

func (w Warning) String() string {
	return fmt.Sprintf("%d/%d", w.Count, w.Max)
}

// Arbiter is the single writer of the tally and the away budget.
type Arbiter struct {
	loop    eventloop.Loop
	tally   *Tally
	budget  *Budget
	active  func() bool
	present func() bool

	warn  func(Warning)
	flag  func(Reason)
	force func(Reason)
}

type arbiterHooks struct {
	active  func() bool
	present func() bool
	warn    func(Warning)
	flag    func(Reason)
	force   func(Reason)
}

func newArbiter(loop eventloop.Loop, policy Policy, hooks arbiterHooks) *Arbiter {
	a := &Arbiter{
		loop:    loop,
		tally:   NewTally(policy.MaxWarnings, policy.Cooldown),
		active:  hooks.active,
		present: hooks.present,
		warn:    hooks.warn,
		flag:    hooks.flag,
		force:   hooks.force,
	}
	a.budget = NewBudget(loop, policy.AwayBudget, a.exhausted)
	return a
}

// Report funnels a confirmed violation. A state signal arriving while an
// away-period is already open belongs to that period and is not counted
// again.
func (a *Arbiter) Report(v Violation) {
	if !a.active() {
		return
	}
	if v.StillAway != nil && a.budget.Away() {
		return
	}

	if a.tally.Accept(v.At) {
		a.warn(Warning{Count: a.tally.Count(), Max: a.tally.Max(), Reason: v.Reason})
		a.flag(v.Reason)
		if a.tally.Exhausted() {
			a.force(v.Reason)
			return
		}
	}

	// Away time is charged even when the cooldown swallowed the count.
	if v.StillAway != nil {
		a.budget.Begin(v.At, v.Reason, v.StillAway)
	}
}

// Return closes the open away-period once the environment is fully present.
func (a *Arbiter) Return() {
	if !a.active() || !a.budget.Away() {
		return
	}
	if !a.present() {
		return
	}
	a.budget.End(a.loop.Now())
}

// Abort handles signals after which the page may vanish: count, flag and
// force-submit without waiting for any timer.
func (a *Arbiter) Abort(reason Reason) {
	if !a.active() {
		return
	}
	if a.tally.Force(a.loop.Now()) {
		a.warn(Warning{Count: a.tally.Count(), Max: a.tally.Max(), Reason: reason})
	}
	a.flag(reason)
	a.force(reason)
}

// close ends any open away-period when monitoring disengages.
func (a *Arbiter) close() {
	a.budget.End(a.loop.Now())
}

func (a *Arbiter) exhausted(reason Reason) {
	if !a.active() {
		return
	}
	a.force(reason)
}

func (a *Arbiter) Tally() *Tally { return a.tally }

func (a *Arbiter) Budget() *Budget { return a.budget }
