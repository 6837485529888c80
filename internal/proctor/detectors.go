package proctor

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/quizguard/internal/eventloop"
)

// Reason tags a violation with the signal that produced it.
type Reason string

const (
	ReasonTabHidden      Reason = "tab-hidden"
	ReasonWindowBlur     Reason = "window-blur"
	ReasonFullscreenExit Reason = "fullscreen-exit"
	ReasonSplitScreen    Reason = "split-screen"
	ReasonCopy           Reason = "clipboard-copy"
	ReasonContextMenu    Reason = "context-menu"
	ReasonRestrictedKey  Reason = "restricted-key"
	ReasonPageUnload     Reason = "page-unload"
	ReasonWarningLimit   Reason = "warning-limit"
)

// detectors turns platform events into arbiter reports. Every entry point is
// a no-op unless the session is active.
type detectors struct {
	loop     eventloop.Loop
	platform Platform
	policy   Policy
	arbiter  *Arbiter
	active   func() bool
	log      zerolog.Logger

	poll     eventloop.Timer
	settling map[Reason]eventloop.Timer
}

func newDetectors(loop eventloop.Loop, p Platform, policy Policy, arbiter *Arbiter, active func() bool, log zerolog.Logger) *detectors {
	return &detectors{
		loop:     loop,
		platform: p,
		policy:   policy,
		arbiter:  arbiter,
		active:   active,
		log:      log,
		settling: make(map[Reason]eventloop.Timer),
	}
}

// dispatch routes one event on the loop. at is when the platform fired it.
func (d *detectors) dispatch(ev Event, at time.Time) {
	if !d.active() {
		return
	}
	switch ev.Kind {
	case EventVisibilityChange:
		d.safe("visibility", func() {
			if !d.platform.Visible() {
				d.settle(at, ReasonTabHidden, d.hidden)
				return
			}
			d.arbiter.Return()
		})
	case EventBlur:
		d.safe("blur", func() { d.settle(at, ReasonWindowBlur, d.blurred) })
	case EventFocus:
		d.safe("focus", func() { d.arbiter.Return() })
	case EventFullscreenChange:
		d.safe("fullscreen", func() {
			if !d.platform.Fullscreen() {
				d.settle(at, ReasonFullscreenExit, d.windowed)
				return
			}
			d.arbiter.Return()
		})
	case EventResize:
		d.safe("viewport", func() {
			if d.split() {
				d.settle(at, ReasonSplitScreen, d.split)
				return
			}
			d.arbiter.Return()
		})
	case EventCopy:
		d.safe("copy", func() { d.arbiter.Report(Violation{Reason: ReasonCopy, At: at}) })
	case EventContextMenu:
		d.safe("context_menu", func() { d.arbiter.Report(Violation{Reason: ReasonContextMenu, At: at}) })
	case EventKeyDown:
		d.safe("keys", func() {
			if Restricted(ev.Key) {
				d.arbiter.Report(Violation{Reason: ReasonRestrictedKey, At: at})
			}
		})
	case EventBeforeUnload, EventPageHide:
		d.safe("unload", func() { d.arbiter.Abort(ReasonPageUnload) })
	}
}

// settle waits out platform noise before reporting a state change. One
// pending confirmation per reason.
func (d *detectors) settle(at time.Time, reason Reason, stillAway func() bool) {
	if _, pending := d.settling[reason]; pending {
		return
	}
	d.settling[reason] = d.loop.AfterFunc(d.policy.Settle, func() {
		delete(d.settling, reason)
		if !d.active() {
			return
		}
		d.safe(string(reason), func() {
			if stillAway() {
				d.arbiter.Report(Violation{Reason: reason, At: at, StillAway: stillAway})
			}
		})
	})
}

func (d *detectors) startPoll() {
	d.stopPoll()
	d.poll = d.loop.AfterFunc(d.policy.PollInterval, d.pollTick)
}

func (d *detectors) pollTick() {
	d.poll = nil
	if !d.active() {
		return
	}
	d.safe("poll", func() {
		switch {
		case d.hidden():
			d.settle(d.loop.Now(), ReasonTabHidden, d.hidden)
		case d.blurred():
			d.settle(d.loop.Now(), ReasonWindowBlur, d.blurred)
		case d.windowed():
			d.settle(d.loop.Now(), ReasonFullscreenExit, d.windowed)
		default:
			d.arbiter.Return()
		}
	})
	if d.active() {
		d.poll = d.loop.AfterFunc(d.policy.PollInterval, d.pollTick)
	}
}

func (d *detectors) stopPoll() {
	if d.poll != nil {
		d.poll.Stop()
		d.poll = nil
	}
}

// stop cancels the poll and every pending confirmation.
func (d *detectors) stop() {
	d.stopPoll()
	for reason, t := range d.settling {
		t.Stop()
		delete(d.settling, reason)
	}
}

func (d *detectors) hidden() bool   { return !d.platform.Visible() }
func (d *detectors) blurred() bool  { return !d.platform.Focused() }
func (d *detectors) windowed() bool { return !d.platform.Fullscreen() }

// split reports a window smaller than the configured share of the screen in
// either axis.
func (d *detectors) split() bool {
	vp, sc := d.platform.Viewport(), d.platform.Screen()
	if sc.Width <= 0 || sc.Height <= 0 {
		return false
	}
	return float64(vp.Width) < d.policy.SplitRatio*float64(sc.Width) ||
		float64(vp.Height) < d.policy.SplitRatio*float64(sc.Height)
}

// present is the monitored condition: visible, focused, fullscreen and not
// split.
func (d *detectors) present() bool {
	return !d.hidden() && !d.blurred() && !d.windowed() && !d.split()
}

func (d *detectors) safe(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("detector", name).Interface("panic", r).Msg("Detector panicked, continuing")
		}
	}()
	fn()
}

// Restricted reports whether k is a devtools, view-source or save-page
// shortcut.
func Restricted(k Key) bool {
	code := strings.ToUpper(k.Code)
	if code == "F12" {
		return true
	}
	switch code {
	case "I", "J", "C":
		if k.Ctrl && k.Shift {
			return true
		}
		if k.Meta && (k.Alt || k.Shift) {
			return true
		}
	case "U", "S":
		if k.Ctrl || k.Meta {
			return true
		}
	}
	return false
}
