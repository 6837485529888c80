package eventloop

import (
	"sort"
	"time"
)

// Virtual is a deterministic Loop driven by a manual clock. Posted work and
// due timers only run inside Flush and Advance, in order of due time and then
// insertion order. Go runs its work inline and queues then, unless work is
// held, in which case it waits for Release.
type Virtual struct {
	now    time.Time
	seq    uint64
	posted []func()
	timers []*virtualTimer

	hold     bool
	inFlight []heldCall
}

type heldCall struct {
	work func()
	then func()
}

// NewVirtual creates a virtual loop whose clock starts at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

type virtualTimer struct {
	due     time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

func (t *virtualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (v *Virtual) Now() time.Time { return v.now }

func (v *Virtual) Post(fn func()) { v.posted = append(v.posted, fn) }

func (v *Virtual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	v.seq++
	t := &virtualTimer{due: v.now.Add(d), seq: v.seq, fn: fn}
	v.timers = append(v.timers, t)
	return t
}

func (v *Virtual) Go(work func(), then func()) {
	if v.hold {
		v.inFlight = append(v.inFlight, heldCall{work: work, then: then})
		return
	}
	work()
	if then != nil {
		v.Post(then)
	}
}

// HoldWork makes later Go calls stay in flight until released, so tests can
// interleave timers and events with an unfinished call.
func (v *Virtual) HoldWork() { v.hold = true }

// InFlight reports the number of held Go calls.
func (v *Virtual) InFlight() int { return len(v.inFlight) }

// Release runs the oldest held work and queues its completion. It reports
// false when nothing is in flight. The completion runs on the next Flush.
func (v *Virtual) Release() bool {
	if len(v.inFlight) == 0 {
		return false
	}
	call := v.inFlight[0]
	v.inFlight = v.inFlight[1:]
	call.work()
	if call.then != nil {
		v.Post(call.then)
	}
	return true
}

// Flush runs posted callbacks and timers due at the current instant.
func (v *Virtual) Flush() {
	for {
		if len(v.posted) > 0 {
			fn := v.posted[0]
			v.posted = v.posted[1:]
			fn()
			continue
		}
		t := v.nextDue(v.now)
		if t == nil {
			return
		}
		t.fired = true
		t.fn()
	}
}

// Advance moves the clock forward by d, running everything that becomes due
// along the way at its own instant.
func (v *Virtual) Advance(d time.Duration) {
	target := v.now.Add(d)
	v.Flush()
	for {
		t := v.nextDue(target)
		if t == nil {
			break
		}
		if t.due.After(v.now) {
			v.now = t.due
		}
		t.fired = true
		t.fn()
		v.Flush()
	}
	v.now = target
	v.Flush()
}

// Pending reports the number of timers that are neither stopped nor fired.
func (v *Virtual) Pending() int {
	n := 0
	for _, t := range v.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (v *Virtual) nextDue(limit time.Time) *virtualTimer {
	live := v.timers[:0]
	for _, t := range v.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	v.timers = live
	sort.SliceStable(v.timers, func(i, j int) bool {
		if v.timers[i].due.Equal(v.timers[j].due) {
			return v.timers[i].seq < v.timers[j].seq
		}
		return v.timers[i].due.Before(v.timers[j].due)
	})
	if len(v.timers) == 0 || v.timers[0].due.After(limit) {
		return nil
	}
	return v.timers[0]
}
