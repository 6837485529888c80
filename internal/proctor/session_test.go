package proctor

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/quizguard/internal/model"
)

func TestSession_LoadShowsConfirmation(t *testing.T) {
	h := newHarness(t, DefaultPolicy())

	h.s.Load()
	h.loop.Flush()

	st := h.s.State()
	assert.Equal(t, PhaseAwaitingConfirmation, st.Phase)
	assert.False(t, st.Monitoring)
	assert.Equal(t, "Ada Lovelace", h.s.StudentInfo().Name)
	assert.Len(t, h.s.Quiz().Questions, 3)
}

func TestSession_AlreadySubmitted(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.remote.view.AlreadySubmitted = true

	h.s.Load()
	h.loop.Flush()

	assert.Equal(t, PhaseSubmittedClean, h.s.State().Phase)
	assert.Empty(t, h.remote.submits)
	require.Len(t, h.obs.outcomes, 1)
	assert.False(t, h.obs.outcomes[0].Flagged)
}

func TestSession_LoadFailureIsSurfaced(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.remote.loadErr = errors.New("network down")

	h.s.Load()
	h.loop.Flush()

	assert.Equal(t, PhaseLoading, h.s.State().Phase)
	require.Len(t, h.obs.failures, 1)
}

func TestSession_BeginRejectsIncompleteIdentity(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.s.Load()
	h.loop.Flush()

	err := h.s.Begin(model.StudentInfo{Name: "Ada"})
	h.loop.Flush()

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "email")
	assert.Contains(t, ve.Fields, "rollNumber")
	assert.Empty(t, h.remote.starts, "start must not be called")
	assert.Equal(t, PhaseAwaitingConfirmation, h.s.State().Phase)
}

func TestSession_ServerValidationErrorKeepsConfirmation(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.remote.startErr = &ValidationError{Fields: map[string]string{"email": "already used"}}
	h.s.Load()
	h.loop.Flush()

	require.NoError(t, h.s.Begin(validInfo()))
	h.loop.Flush()

	assert.Equal(t, PhaseAwaitingConfirmation, h.s.State().Phase)
	require.Len(t, h.obs.failures, 1)
	var ve *ValidationError
	assert.ErrorAs(t, h.obs.failures[0], &ve)
}

func TestSession_BeginEngagesMonitoring(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	st := h.s.State()
	assert.True(t, st.Monitoring)
	assert.Equal(t, "attempt-token", st.AttemptID)
	assert.Equal(t, "none", h.platform.userSelect)
	assert.Equal(t, 1, h.platform.fullscreenRequests)
	assert.Equal(t, 600*time.Second, st.TimeRemaining)
}

func TestSession_ResumeSkipsConfirmation(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.remote.view.HasStarted = true
	h.remote.view.AttemptID = "resumed-token"
	h.remote.view.WarningCount = 2
	h.remote.view.RemainingSeconds = 120
	h.remote.view.Answers = map[int]string{0: "Mitochondria"}

	h.s.Load()
	h.loop.Flush()

	st := h.s.State()
	assert.Equal(t, PhaseActive, st.Phase)
	assert.Equal(t, 2, st.Warnings)
	assert.Equal(t, 120*time.Second, st.TimeRemaining)
	assert.Equal(t, "Mitochondria", st.Answers[0])
	assert.Empty(t, h.remote.starts)

	// One more violation reaches the ceiling.
	h.excursion(time.Second)
	assert.Equal(t, PhaseSubmittedFlagged, h.s.State().Phase)
}

func TestSession_ResumeAtCeilingForcesSubmit(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.remote.view.HasStarted = true
	h.remote.view.AttemptID = "resumed-token"
	h.remote.view.WarningCount = 3
	h.remote.view.RemainingSeconds = 120

	h.s.Load()
	h.loop.Flush()

	assert.Equal(t, PhaseSubmittedFlagged, h.s.State().Phase)
	assert.Len(t, h.remote.submits, 1)
}

func TestSession_ServerPolicyOverridesDefaults(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.remote.view.Policy = &model.ProctorPolicy{MaxWarnings: 1, AwayBudgetMs: 2000}

	h.start()
	assert.Equal(t, 1, h.s.State().MaxWarnings)
	assert.Equal(t, 2*time.Second, h.s.State().AwayRemaining)

	h.excursion(time.Second)
	assert.Equal(t, PhaseSubmittedFlagged, h.s.State().Phase)
}

// Scenario A: the third separate hide force-submits; the fourth is never seen.
func TestSession_CeilingForcesSubmitOnThirdViolation(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	for i := 0; i < 4; i++ {
		h.excursion(500 * time.Millisecond)
		h.loop.Advance(3500 * time.Millisecond)
	}

	st := h.s.State()
	assert.Equal(t, PhaseSubmittedFlagged, st.Phase)
	assert.Equal(t, 3, st.Warnings)
	assert.Len(t, h.obs.warnings, 3)
	assert.Len(t, h.remote.submits, 1)
	assert.Contains(t, h.remote.flags, "auto-submitted: tab-hidden")

	require.Len(t, h.obs.outcomes, 1)
	assert.True(t, h.obs.outcomes[0].Flagged)
	assert.Equal(t, ReasonTabHidden, h.obs.outcomes[0].Reason)

	// Platform fully restored.
	assert.Empty(t, h.platform.handlers)
	assert.Equal(t, "text", h.platform.userSelect)
}

// Scenario B: one continuous absence outlasts the budget.
func TestSession_BudgetExhaustionForcesSubmitAtDeadline(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	leftAt := h.loop.Now()
	h.hide()
	h.loop.Advance(11 * time.Second)

	st := h.s.State()
	assert.Equal(t, PhaseSubmittedFlagged, st.Phase)
	assert.Equal(t, 1, st.Warnings, "a single away-period counts once")
	assert.Zero(t, st.AwayRemaining)
	assert.Equal(t, 10*time.Second, st.AwayCharged)

	flaggedAt, ok := h.obs.enteredAt(PhaseSubmittedFlagged)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, flaggedAt.Sub(leftAt))

	require.Len(t, h.obs.outcomes, 1)
	assert.Equal(t, ReasonTabHidden, h.obs.outcomes[0].Reason)
}

// Scenario B variant: the original reason wins even when other signals pile on.
func TestSession_BudgetKeepsOriginalReason(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	h.platform.focused = false
	h.emit(Event{Kind: EventBlur})
	h.loop.Advance(4 * time.Second)
	h.hide()
	h.loop.Advance(8 * time.Second)

	require.Len(t, h.obs.outcomes, 1)
	assert.Equal(t, ReasonWindowBlur, h.obs.outcomes[0].Reason)
	assert.Equal(t, 1, h.s.State().Warnings)
}

// Scenario C: two short absences within budget, two warnings, no submission.
func TestSession_ShortAbsencesBankRemainingBudget(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	h.excursion(4 * time.Second)
	h.loop.Advance(4 * time.Second)
	h.excursion(4 * time.Second)
	h.loop.Advance(30 * time.Second)

	st := h.s.State()
	assert.Equal(t, PhaseActive, st.Phase)
	assert.Equal(t, 2, st.Warnings)
	assert.Equal(t, 8*time.Second, st.AwayCharged)
	assert.Equal(t, 2*time.Second, st.AwayRemaining)
	assert.Empty(t, h.remote.submits)
}

func TestSession_RemainingBudgetCarriesAcrossAbsences(t *testing.T) {
	pol := DefaultPolicy()
	pol.MaxWarnings = 10
	h := newHarness(t, pol)
	h.start()

	h.excursion(5 * time.Second)
	h.loop.Advance(4 * time.Second)
	h.excursion(4500 * time.Millisecond)
	h.loop.Advance(4 * time.Second)
	require.Equal(t, PhaseActive, h.s.State().Phase)
	require.Equal(t, 500*time.Millisecond, h.s.State().AwayRemaining)

	leftAt := h.loop.Now()
	h.hide()
	h.loop.Advance(time.Second)

	assert.Equal(t, PhaseSubmittedFlagged, h.s.State().Phase)
	assert.Equal(t, 3, h.s.State().Warnings)
	flaggedAt, ok := h.obs.enteredAt(PhaseSubmittedFlagged)
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, flaggedAt.Sub(leftAt))
}

func TestSession_FlickerIsFiltered(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	h.platform.fullscreen = false
	h.emit(Event{Kind: EventFullscreenChange})
	h.loop.Advance(100 * time.Millisecond)
	h.platform.fullscreen = true
	h.emit(Event{Kind: EventFullscreenChange})
	h.loop.Advance(5 * time.Second)

	assert.Zero(t, h.s.State().Warnings)
	assert.Empty(t, h.remote.flags)
	assert.Zero(t, h.s.State().AwayCharged)
}

func TestSession_DiscreteSignalsArePreventedAndCooledDown(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	assert.True(t, h.emit(Event{Kind: EventCopy}))
	h.loop.Advance(time.Second)
	assert.True(t, h.emit(Event{Kind: EventContextMenu}))
	assert.False(t, h.emit(Event{Kind: EventKeyDown, Key: Key{Code: "a"}}))

	st := h.s.State()
	assert.Equal(t, 1, st.Warnings, "second signal falls inside the cooldown")
	assert.False(t, st.Away, "one-shot signals never open an away-period")
	assert.Equal(t, []string{string(ReasonCopy)}, h.remote.flags)

	h.loop.Advance(3 * time.Second)
	assert.True(t, h.emit(Event{Kind: EventKeyDown, Key: Key{Code: "F12"}}))
	assert.Equal(t, 2, h.s.State().Warnings)
	require.Len(t, h.obs.warnings, 2)
	assert.Equal(t, "2/3", h.obs.warnings[1].String())
}

func TestSession_SplitScreenDetected(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	h.platform.viewport = Size{Width: 900, Height: 1080}
	h.emit(Event{Kind: EventResize})
	h.loop.Advance(time.Second)

	require.Len(t, h.obs.warnings, 1)
	assert.Equal(t, ReasonSplitScreen, h.obs.warnings[0].Reason)
	assert.True(t, h.s.State().Away)

	h.platform.viewport = Size{Width: 1920, Height: 1080}
	h.emit(Event{Kind: EventResize})
	assert.False(t, h.s.State().Away)
}

func TestSession_PollCatchesMissedEvents(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	// Focus lost without any event reaching the detectors.
	h.platform.focused = false
	h.loop.Advance(time.Second)

	require.Len(t, h.obs.warnings, 1)
	assert.Equal(t, ReasonWindowBlur, h.obs.warnings[0].Reason)

	// Return is also picked up by the poll.
	h.platform.focused = true
	h.loop.Advance(time.Second)
	assert.False(t, h.s.State().Away)
}

func TestSession_UnloadForcesSubmitImmediately(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	h.emit(Event{Kind: EventBeforeUnload})

	assert.Equal(t, PhaseSubmittedFlagged, h.s.State().Phase)
	require.Len(t, h.obs.outcomes, 1)
	assert.Equal(t, ReasonPageUnload, h.obs.outcomes[0].Reason)
	assert.Equal(t, 1, h.s.State().Warnings)
}

// Scenario D, normal path: failure rolls back with answers intact.
func TestSession_NormalSubmitFailureRollsBack(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()
	h.s.SetAnswer(0, "Mitochondria")
	h.s.SetAnswer(1, "Membrane")
	h.loop.Flush()

	h.remote.submitErr = &SubmissionError{StatusCode: 502, Err: errors.New("bad gateway")}
	h.s.Submit()
	h.loop.Flush()

	st := h.s.State()
	assert.Equal(t, PhaseActive, st.Phase)
	assert.Equal(t, map[int]string{0: "Mitochondria", 1: "Membrane"}, st.Answers)
	assert.True(t, st.Monitoring, "monitoring re-engaged after rollback")
	require.Len(t, h.obs.failures, 1)
	var se *SubmissionError
	assert.ErrorAs(t, h.obs.failures[0], &se)

	h.remote.submitErr = nil
	h.s.Submit()
	h.loop.Flush()

	assert.Equal(t, PhaseSubmittedClean, h.s.State().Phase)
	assert.Len(t, h.remote.submits, 2)
	require.Len(t, h.obs.outcomes, 1)
	assert.Equal(t, h.remote.result, h.obs.outcomes[0].Result)
}

func TestSession_PlainErrorsAreWrappedAsSubmissionError(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	h.remote.submitErr = errors.New("connection reset")
	h.s.Submit()
	h.loop.Flush()

	require.Len(t, h.obs.failures, 1)
	var se *SubmissionError
	require.ErrorAs(t, h.obs.failures[0], &se)
	assert.Zero(t, se.StatusCode)
}

// Scenario D, forced path: the same failure still ends in Flagged.
func TestSession_ForcedSubmitFailureStillTerminal(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()
	h.remote.submitErr = &SubmissionError{StatusCode: 500, Err: errors.New("boom")}

	h.emit(Event{Kind: EventPageHide})

	assert.Equal(t, PhaseSubmittedFlagged, h.s.State().Phase)
	require.Len(t, h.obs.outcomes, 1)
	assert.Nil(t, h.obs.outcomes[0].Result)
	assert.Empty(t, h.obs.failures, "forced failures are never surfaced")
}

func TestSession_TerminalStateIsFrozen(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()
	h.s.SetAnswer(0, "Nucleus")
	h.s.Submit()
	h.loop.Flush()
	require.Equal(t, PhaseSubmittedClean, h.s.State().Phase)
	before := h.s.State()

	h.s.SetAnswer(0, "Mitochondria")
	h.s.Submit()
	h.excursion(12 * time.Second)
	h.emit(Event{Kind: EventCopy})
	h.emit(Event{Kind: EventBeforeUnload})
	h.loop.Advance(20 * time.Minute)

	after := h.s.State()
	assert.Equal(t, before.Answers, after.Answers)
	assert.Equal(t, before.Warnings, after.Warnings)
	assert.Equal(t, before.AwayRemaining, after.AwayRemaining)
	assert.Equal(t, PhaseSubmittedClean, after.Phase)
	assert.Len(t, h.remote.submits, 1)
	assert.Zero(t, h.loop.Pending())
}

func TestSession_AnswersOutOfRangeIgnored(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	h.s.SetAnswer(-1, "x")
	h.s.SetAnswer(3, "y")
	h.s.SetAnswer(2, "Nucleus")
	h.loop.Flush()

	assert.Equal(t, map[int]string{2: "Nucleus"}, h.s.State().Answers)
}

func TestSession_CountdownSubmitsCleanly(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.remote.view.DurationSeconds = 30
	h.start()

	h.loop.Advance(29 * time.Second)
	assert.Equal(t, PhaseActive, h.s.State().Phase)
	assert.Equal(t, time.Second, h.obs.lastTick)

	h.loop.Advance(time.Second)
	assert.Equal(t, PhaseSubmittedClean, h.s.State().Phase)
	require.Len(t, h.obs.outcomes, 1)
	assert.False(t, h.obs.outcomes[0].Flagged)
}

func TestSession_CloseRestoresPlatformMidViolation(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	h.hide()
	h.loop.Advance(time.Second)
	require.True(t, h.s.State().Away)

	h.s.Close()
	h.loop.Flush()

	assert.Empty(t, h.platform.handlers)
	assert.Equal(t, "text", h.platform.userSelect)
	assert.Zero(t, h.loop.Pending(), "no timer may outlive the view")

	h.loop.Advance(time.Minute)
	assert.Empty(t, h.remote.submits)
}

func TestSession_PanickingDetectorIsIsolated(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	h.start()

	h.platform.panicOnViewport = true
	h.emit(Event{Kind: EventResize})
	h.loop.Flush()

	h.emit(Event{Kind: EventCopy})
	assert.Equal(t, 1, h.s.State().Warnings)
}

// Random signals: the tally only grows by one at a time, the away budget
// never overdraws, and at most one submission is sent.
func TestSession_RandomSignalsStayConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 25; run++ {
		h := newHarness(t, DefaultPolicy())
		h.start()

		prev := 0
		for step := 0; step < 200; step++ {
			switch rng.Intn(8) {
			case 0:
				h.platform.visible = !h.platform.visible
				h.emit(Event{Kind: EventVisibilityChange})
			case 1:
				h.platform.focused = !h.platform.focused
				if h.platform.focused {
					h.emit(Event{Kind: EventFocus})
				} else {
					h.emit(Event{Kind: EventBlur})
				}
			case 2:
				h.platform.fullscreen = !h.platform.fullscreen
				h.emit(Event{Kind: EventFullscreenChange})
			case 3:
				h.emit(Event{Kind: EventCopy})
			default:
				h.loop.Advance(time.Duration(rng.Intn(2000)) * time.Millisecond)
			}

			st := h.s.State()
			require.GreaterOrEqual(t, st.Warnings, prev)
			require.LessOrEqual(t, st.Warnings-prev, 1)
			require.LessOrEqual(t, st.Warnings, st.MaxWarnings)
			require.GreaterOrEqual(t, st.AwayRemaining, time.Duration(0))
			require.LessOrEqual(t, st.AwayCharged, 10*time.Second)
			prev = st.Warnings
		}

		require.LessOrEqual(t, len(h.remote.submits), 1)
		for i := 1; i < len(h.obs.warnings); i++ {
			require.Equal(t, h.obs.warnings[i-1].Count+1, h.obs.warnings[i].Count)
		}
	}
}
