package proctor

import (
	"time"

	"github.com/stemsi/quizguard/internal/eventloop"
)

// Countdown drains the attempt's allotted time. Each tick is rescheduled
// against the absolute deadline, so late timers (throttled background tabs)
// never stretch the exam.
type Countdown struct {
	loop     eventloop.Loop
	deadline time.Time
	timer    eventloop.Timer
	running  bool
	expired  bool

	onTick   func(remaining time.Duration)
	onExpire func()
}

// NewCountdown creates a stopped countdown.
func NewCountdown(loop eventloop.Loop, onTick func(time.Duration), onExpire func()) *Countdown {
	return &Countdown{loop: loop, onTick: onTick, onExpire: onExpire}
}

// Start begins counting down d from now.
func (c *Countdown) Start(d time.Duration) {
	c.Stop()
	c.deadline = c.loop.Now().Add(d)
	c.running = true
	c.expired = false
	c.tick()
}

func (c *Countdown) tick() {
	c.timer = nil
	if !c.running {
		return
	}

	remaining := c.deadline.Sub(c.loop.Now())
	if remaining <= 0 {
		c.running = false
		c.expired = true
		c.onTick(0)
		c.onExpire()
		return
	}

	c.onTick(remaining)

	// Land the next tick on the next whole second before the deadline.
	next := remaining % time.Second
	if next == 0 {
		next = time.Second
	}
	c.timer = c.loop.AfterFunc(next, c.tick)
}

// Stop halts the countdown without expiring it.
func (c *Countdown) Stop() {
	c.running = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Remaining is the time left until the deadline, floored at zero.
func (c *Countdown) Remaining() time.Duration {
	if c.deadline.IsZero() {
		return 0
	}
	r := c.deadline.Sub(c.loop.Now())
	if r < 0 {
		return 0
	}
	return r
}

func (c *Countdown) Expired() bool { return c.expired }
