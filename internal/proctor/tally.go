package proctor

import "time"

// Tally counts accepted violations up to a fixed ceiling. The count is never
// decremented.
type Tally struct {
	count    int
	max      int
	cooldown time.Duration
	last     time.Time
	accepted bool
}

// NewTally creates an empty tally.
func NewTally(max int, cooldown time.Duration) *Tally {
	return &Tally{max: max, cooldown: cooldown}
}

// Seed raises the count to a server-reported value on resume.
func (t *Tally) Seed(n int) {
	if n > t.max {
		n = t.max
	}
	if n > t.count {
		t.count = n
	}
}

// Accept counts a violation observed at at, unless the ceiling is reached or
// the cooldown since the last accepted violation has not elapsed.
func (t *Tally) Accept(at time.Time) bool {
	if t.count >= t.max {
		return false
	}
	if t.accepted && at.Sub(t.last) < t.cooldown {
		return false
	}
	t.count++
	t.last = at
	t.accepted = true
	return true
}

// Force counts a violation regardless of cooldown. Used for signals that
// end the attempt outright.
func (t *Tally) Force(at time.Time) bool {
	if t.count >= t.max {
		return false
	}
	t.count++
	t.last = at
	t.accepted = true
	return true
}

func (t *Tally) Count() int { return t.count }

func (t *Tally) Max() int { return t.max }

// Exhausted reports whether the ceiling has been reached.
func (t *Tally) Exhausted() bool { return t.count >= t.max }
