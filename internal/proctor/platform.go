package proctor

// EventKind enumerates the platform signals the detectors listen to.
type EventKind int

const (
	EventVisibilityChange EventKind = iota
	EventBlur
	EventFocus
	EventFullscreenChange
	EventResize
	EventCopy
	EventContextMenu
	EventKeyDown
	EventBeforeUnload
	EventPageHide
)

// Key describes a key press and its modifiers.
type Key struct {
	Code  string
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
}

// Event is one platform signal.
type Event struct {
	Kind EventKind
	Key  Key
}

// Size is a width/height pair in CSS pixels.
type Size struct {
	Width  int
	Height int
}

// Platform is the host environment the exam runs in. State queries must be
// cheap and side-effect free; detectors call them repeatedly.
type Platform interface {
	Visible() bool
	Focused() bool
	Fullscreen() bool
	Viewport() Size
	Screen() Size
	RequestFullscreen() error

	UserSelect() string
	SetUserSelect(value string)

	// Listen registers handler for every platform event and returns a
	// function that removes it. The handler's return value asks the
	// platform to cancel the event's default action.
	Listen(handler func(Event) bool) (remove func())
}

// Guard owns the global platform state while monitoring is engaged. The
// original user-select value is captured on the first acquisition only and
// restored on every release.
type Guard struct {
	platform Platform
	previous string
	captured bool
	remove   func()
	held     bool
}

// NewGuard creates an unheld guard.
func NewGuard(p Platform) *Guard {
	return &Guard{platform: p}
}

// Acquire installs handler and disables text selection.
func (g *Guard) Acquire(handler func(Event) bool) {
	if g.held {
		return
	}
	if !g.captured {
		g.previous = g.platform.UserSelect()
		g.captured = true
	}
	g.platform.SetUserSelect("none")
	g.remove = g.platform.Listen(handler)
	g.held = true
}

// Release removes the handler and restores the captured style. Safe to call
// any number of times.
func (g *Guard) Release() {
	if !g.held {
		return
	}
	g.held = false
	if g.remove != nil {
		g.remove()
		g.remove = nil
	}
	g.platform.SetUserSelect(g.previous)
}

func (g *Guard) Held() bool { return g.held }
