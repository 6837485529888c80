package proctor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/quizguard/internal/eventloop"
	"github.com/stemsi/quizguard/internal/model"
)

var epoch = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

// ─── Platform ──────────────────────────────────────────────────────────────

type fakePlatform struct {
	visible    bool
	focused    bool
	fullscreen bool
	viewport   Size
	screen     Size
	userSelect string

	handlers           map[int]func(Event) bool
	nextID             int
	fullscreenRequests int
	panicOnViewport    bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		visible:    true,
		focused:    true,
		fullscreen: true,
		viewport:   Size{Width: 1920, Height: 1080},
		screen:     Size{Width: 1920, Height: 1080},
		userSelect: "text",
		handlers:   make(map[int]func(Event) bool),
	}
}

func (p *fakePlatform) Visible() bool    { return p.visible }
func (p *fakePlatform) Focused() bool    { return p.focused }
func (p *fakePlatform) Fullscreen() bool { return p.fullscreen }
func (p *fakePlatform) Screen() Size     { return p.screen }

func (p *fakePlatform) Viewport() Size {
	if p.panicOnViewport {
		panic("viewport unavailable")
	}
	return p.viewport
}

func (p *fakePlatform) RequestFullscreen() error {
	p.fullscreenRequests++
	p.fullscreen = true
	return nil
}

func (p *fakePlatform) UserSelect() string     { return p.userSelect }
func (p *fakePlatform) SetUserSelect(v string) { p.userSelect = v }

func (p *fakePlatform) Listen(h func(Event) bool) func() {
	id := p.nextID
	p.nextID++
	p.handlers[id] = h
	return func() { delete(p.handlers, id) }
}

func (p *fakePlatform) emit(ev Event) bool {
	prevented := false
	for _, h := range p.handlers {
		if h(ev) {
			prevented = true
		}
	}
	return prevented
}

// ─── Remote ────────────────────────────────────────────────────────────────

type fakeRemote struct {
	view      *model.AttemptView
	loadErr   error
	startErr  error
	submitErr error
	result    *model.SubmitResult

	starts  []model.StudentInfo
	flags   []string
	submits []map[int]string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		view: &model.AttemptView{
			Quiz:            testQuiz(),
			StudentInfo:     model.StudentInfo{Name: "Ada Lovelace", Email: "ada@example.com", RollNumber: "R-17"},
			DurationSeconds: 600,
		},
		result: &model.SubmitResult{TotalMarks: 2, MaxMarks: 3, Percentage: 66.67},
	}
}

func testQuiz() model.QuizPayload {
	return model.QuizPayload{
		ID:              uuid.MustParse("6f1d0b0e-3a5e-4d1a-9a51-0c7f1c2d9b11"),
		Title:           "Cell Biology",
		DurationSeconds: 600,
		Questions: []model.QuestionForStudent{
			{ID: uuid.New(), Type: model.QuestionTypeMCQ, Text: "Powerhouse of the cell?", Options: []string{"Nucleus", "Mitochondria"}},
			{ID: uuid.New(), Type: model.QuestionTypeShortAnswer, Text: "Name the cell's outer boundary."},
			{ID: uuid.New(), Type: model.QuestionTypeMCQ, Text: "DNA lives in the?", Options: []string{"Nucleus", "Ribosome"}},
		},
	}
}

func (r *fakeRemote) Load(ctx context.Context) (*model.AttemptView, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.view, nil
}

func (r *fakeRemote) Start(ctx context.Context, info model.StudentInfo) (*model.StartAttemptResponse, error) {
	r.starts = append(r.starts, info)
	if r.startErr != nil {
		return nil, r.startErr
	}
	return &model.StartAttemptResponse{
		AttemptID:       "attempt-token",
		Quiz:            r.view.Quiz,
		DurationSeconds: r.view.DurationSeconds,
	}, nil
}

func (r *fakeRemote) Flag(ctx context.Context, reason string) {
	r.flags = append(r.flags, reason)
}

func (r *fakeRemote) Submit(ctx context.Context, attemptID string, answers map[int]string) (*model.SubmitResult, error) {
	r.submits = append(r.submits, answers)
	if r.submitErr != nil {
		return nil, r.submitErr
	}
	return r.result, nil
}

// ─── Observer ──────────────────────────────────────────────────────────────

type phaseAt struct {
	phase Phase
	at    time.Time
}

type recorder struct {
	loop     eventloop.Loop
	phases   []phaseAt
	warnings []Warning
	outcomes []Outcome
	failures []error
	lastTick time.Duration
}

func (r *recorder) PhaseChanged(from, to Phase) {
	r.phases = append(r.phases, phaseAt{phase: to, at: r.loop.Now()})
}
func (r *recorder) Warned(w Warning)               { r.warnings = append(r.warnings, w) }
func (r *recorder) Ticked(remaining time.Duration) { r.lastTick = remaining }
func (r *recorder) Submitted(o Outcome)            { r.outcomes = append(r.outcomes, o) }
func (r *recorder) Failed(err error)               { r.failures = append(r.failures, err) }

func (r *recorder) enteredAt(p Phase) (time.Time, bool) {
	for _, pa := range r.phases {
		if pa.phase == p {
			return pa.at, true
		}
	}
	return time.Time{}, false
}

// ─── Harness ───────────────────────────────────────────────────────────────

type harness struct {
	t        *testing.T
	loop     *eventloop.Virtual
	platform *fakePlatform
	remote   *fakeRemote
	obs      *recorder
	s        *Session
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	loop := eventloop.NewVirtual(epoch)
	h := &harness{
		t:        t,
		loop:     loop,
		platform: newFakePlatform(),
		remote:   newFakeRemote(),
		obs:      &recorder{loop: loop},
	}
	h.s = New(Options{
		Loop:     loop,
		Remote:   h.remote,
		Platform: h.platform,
		Policy:   policy,
		Observer: h.obs,
		Log:      zerolog.Nop(),
	})
	return h
}

func validInfo() model.StudentInfo {
	return model.StudentInfo{Name: "Ada Lovelace", Email: "ada@example.com", RollNumber: "R-17"}
}

// start loads and begins the attempt, leaving it Active.
func (h *harness) start() {
	h.t.Helper()
	h.s.Load()
	h.loop.Flush()
	require.Equal(h.t, PhaseAwaitingConfirmation, h.s.State().Phase)
	require.NoError(h.t, h.s.Begin(validInfo()))
	h.loop.Flush()
	require.Equal(h.t, PhaseActive, h.s.State().Phase)
}

func (h *harness) emit(ev Event) bool {
	prevented := h.platform.emit(ev)
	h.loop.Flush()
	return prevented
}

func (h *harness) hide() {
	h.platform.visible = false
	h.emit(Event{Kind: EventVisibilityChange})
}

func (h *harness) show() {
	h.platform.visible = true
	h.emit(Event{Kind: EventVisibilityChange})
}

// excursion hides the tab for d, then returns.
func (h *harness) excursion(d time.Duration) {
	h.hide()
	h.loop.Advance(d)
	h.show()
}

// completeNext finishes the oldest held remote call and runs its completion.
func (h *harness) completeNext() {
	h.t.Helper()
	require.True(h.t, h.loop.Release(), "no call in flight")
	h.loop.Flush()
}

// completeAll finishes every held call, including ones started by completions.
func (h *harness) completeAll() {
	for h.loop.InFlight() > 0 {
		for h.loop.Release() {
		}
		h.loop.Flush()
	}
}
