// Package proctor implements the integrity-monitoring and submission state
// machine of a remote quiz attempt.
//
// A Session runs entirely on an eventloop.Loop. Platform events, timers and
// completions of remote calls are all serialized there; the Phase is the one
// gate every detector, timer and submission path checks before acting.
package proctor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/quizguard/internal/eventloop"
	"github.com/stemsi/quizguard/internal/model"
)

// Remote is the attempt backend.
type Remote interface {
	Load(ctx context.Context) (*model.AttemptView, error)
	Start(ctx context.Context, info model.StudentInfo) (*model.StartAttemptResponse, error)
	// Flag is best effort: implementations log failures and never return them.
	Flag(ctx context.Context, reason string)
	Submit(ctx context.Context, attemptID string, answers map[int]string) (*model.SubmitResult, error)
}

// AnswerSink receives answers as they are typed. Failures are logged only.
type AnswerSink interface {
	SaveAnswer(ctx context.Context, index int, text string) error
}

// Outcome describes how an attempt ended.
type Outcome struct {
	Flagged bool
	Reason  Reason
	// Result is nil when a forced submission failed to reach the server.
	Result *model.SubmitResult
}

// Observer receives everything the test-taker should see. Callbacks run on
// the loop.
type Observer interface {
	PhaseChanged(from, to Phase)
	Warned(w Warning)
	Ticked(remaining time.Duration)
	Submitted(o Outcome)
	// Failed reports recoverable errors: load, start and normal submit.
	Failed(err error)
}

// BaseObserver ignores every callback. Embed it to implement a subset.
type BaseObserver struct{}

func (BaseObserver) PhaseChanged(from, to Phase)    {}
func (BaseObserver) Warned(w Warning)               {}
func (BaseObserver) Ticked(remaining time.Duration) {}
func (BaseObserver) Submitted(o Outcome)            {}
func (BaseObserver) Failed(err error)               {}

// Options configures a Session.
type Options struct {
	Loop     eventloop.Loop
	Remote   Remote
	Platform Platform
	Policy   Policy
	Observer Observer
	Sink     AnswerSink
	Log      zerolog.Logger
}

// expiredRetryDelay spaces automatic resubmits after the deadline.
const expiredRetryDelay = 5 * time.Second

// Session is one attempt as seen by the test-taker's client.
type Session struct {
	loop     eventloop.Loop
	remote   Remote
	platform Platform
	policy   Policy
	obs      Observer
	sink     AnswerSink
	log      zerolog.Logger

	phase  Phase
	mirror atomic.Int32

	quiz        model.QuizPayload
	studentInfo model.StudentInfo
	attemptID   string
	answers     map[int]string
	seed        int
	starting    bool
	closed      bool

	arbiter   *Arbiter
	detectors *detectors
	countdown *Countdown
	guard     *Guard
	// retry resubmits after a failed submit once the deadline has passed.
	retry eventloop.Timer
	// flagsOut counts flag calls still on the wire. Submits wait for them so
	// the server counts every warning before the attempt closes.
	flagsOut sync.WaitGroup

	outcome *Outcome
}

// New creates a session in the Loading phase. Nothing happens until Load.
func New(opts Options) *Session {
	if opts.Observer == nil {
		opts.Observer = BaseObserver{}
	}
	if opts.Policy.MaxWarnings == 0 {
		opts.Policy = DefaultPolicy()
	}
	s := &Session{
		loop:     opts.Loop,
		remote:   opts.Remote,
		platform: opts.Platform,
		policy:   opts.Policy,
		obs:      opts.Observer,
		sink:     opts.Sink,
		log:      opts.Log.With().Str("component", "proctor").Logger(),
		phase:    PhaseLoading,
		answers:  make(map[int]string),
		guard:    NewGuard(opts.Platform),
	}
	s.countdown = NewCountdown(s.loop, s.obs.Ticked, s.timeUp)
	return s
}

// ─── Public entry points (safe from any goroutine) ─────────────────────────

// Load fetches the attempt and moves to AwaitingConfirmation, Active (resume)
// or SubmittedClean (already submitted).
func (s *Session) Load() {
	s.loop.Post(s.load)
}

// Begin validates info and starts the attempt. Validation failures are
// returned immediately; server-side failures arrive through Observer.Failed.
func (s *Session) Begin(info model.StudentInfo) error {
	if err := ValidateStudentInfo(info); err != nil {
		return err
	}
	s.loop.Post(func() { s.begin(info) })
	return nil
}

// SetAnswer records the test-taker's answer for question index.
func (s *Session) SetAnswer(index int, text string) {
	s.loop.Post(func() { s.setAnswer(index, text) })
}

// Submit is the test-taker pressing submit.
func (s *Session) Submit() {
	s.loop.Post(s.submit)
}

// Close tears monitoring down when the exam view goes away, whatever state
// it is in.
func (s *Session) Close() {
	s.loop.Post(s.close)
}

// ─── Loop-side state machine ───────────────────────────────────────────────

func (s *Session) setPhase(p Phase) {
	from := s.phase
	s.phase = p
	s.mirror.Store(int32(p))
	s.log.Debug().Str("from", from.String()).Str("to", p.String()).Msg("Phase changed")
	s.obs.PhaseChanged(from, p)
}

func (s *Session) isActive() bool { return s.phase == PhaseActive }

func (s *Session) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.policy.CallTimeout)
}

func (s *Session) load() {
	if s.phase != PhaseLoading {
		return
	}
	var (
		view *model.AttemptView
		err  error
	)
	s.loop.Go(func() {
		ctx, cancel := s.callCtx()
		defer cancel()
		view, err = s.remote.Load(ctx)
	}, func() {
		if s.phase != PhaseLoading || s.closed {
			return
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("Load attempt failed")
			s.obs.Failed(err)
			return
		}
		s.applyView(view)
	})
}

func (s *Session) applyView(view *model.AttemptView) {
	if view.Policy != nil {
		s.policy = PolicyFromModel(view.Policy)
	}
	s.quiz = view.Quiz
	s.studentInfo = view.StudentInfo

	switch {
	case view.AlreadySubmitted:
		s.setPhase(PhaseSubmittedClean)
		s.finish(Outcome{})
	case view.HasStarted:
		s.attemptID = view.AttemptID
		for i, a := range view.Answers {
			s.answers[i] = a
		}
		s.seed = view.WarningCount
		s.log.Info().Int("warnings", view.WarningCount).Int("remaining_s", view.RemainingSeconds).Msg("Resuming attempt")
		s.activate(time.Duration(view.RemainingSeconds) * time.Second)
	default:
		s.setPhase(PhaseAwaitingConfirmation)
	}
}

func (s *Session) begin(info model.StudentInfo) {
	if s.phase != PhaseAwaitingConfirmation || s.starting {
		return
	}
	s.starting = true
	var (
		resp *model.StartAttemptResponse
		err  error
	)
	s.loop.Go(func() {
		ctx, cancel := s.callCtx()
		defer cancel()
		resp, err = s.remote.Start(ctx, info)
	}, func() {
		s.starting = false
		if s.phase != PhaseAwaitingConfirmation || s.closed {
			return
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("Start attempt failed")
			s.obs.Failed(err)
			return
		}
		s.studentInfo = info
		s.attemptID = resp.AttemptID
		s.quiz = resp.Quiz
		s.activate(time.Duration(resp.DurationSeconds) * time.Second)
	})
}

// activate engages monitoring and the countdown.
func (s *Session) activate(duration time.Duration) {
	s.arbiter = newArbiter(s.loop, s.policy, arbiterHooks{
		active: s.isActive,
		warn:   s.warned,
		flag:   s.flag,
		force:  s.forceSubmit,
	})
	s.detectors = newDetectors(s.loop, s.platform, s.policy, s.arbiter, s.isActive, s.log)
	s.arbiter.present = s.detectors.present
	s.arbiter.tally.Seed(s.seed)

	s.setPhase(PhaseActive)
	s.engage()

	// A resumed attempt already at the ceiling is flagged even when its time
	// has also run out.
	if s.arbiter.tally.Exhausted() {
		s.forceSubmit(ReasonWarningLimit)
		return
	}
	s.countdown.Start(duration)
}

func (s *Session) engage() {
	s.guard.Acquire(s.onEvent)
	if err := s.platform.RequestFullscreen(); err != nil {
		s.log.Warn().Err(err).Msg("Fullscreen request rejected")
	}
	s.detectors.startPoll()
}

// disengage stops monitoring and restores the platform. Any open away-period
// is charged here.
func (s *Session) disengage() {
	if s.arbiter != nil {
		s.arbiter.close()
	}
	if s.detectors != nil {
		s.detectors.stop()
	}
	s.guard.Release()
}

// onEvent is the platform listener. It may be called off the loop, so the
// prevent decision reads the mirrored phase and the rest is posted.
func (s *Session) onEvent(ev Event) bool {
	if Phase(s.mirror.Load()) != PhaseActive {
		return false
	}
	at := s.loop.Now()
	s.loop.Post(func() {
		if s.detectors != nil {
			s.detectors.dispatch(ev, at)
		}
	})
	switch ev.Kind {
	case EventCopy, EventContextMenu:
		return true
	case EventKeyDown:
		return Restricted(ev.Key)
	}
	return false
}

func (s *Session) warned(w Warning) {
	s.log.Warn().Str("reason", string(w.Reason)).Int("count", w.Count).Int("max", w.Max).Msg("Integrity warning")
	s.obs.Warned(w)
}

// flag is fire-and-forget telemetry.
func (s *Session) flag(reason Reason) {
	s.flagsOut.Add(1)
	s.loop.Go(func() {
		defer s.flagsOut.Done()
		ctx, cancel := s.callCtx()
		defer cancel()
		s.remote.Flag(ctx, string(reason))
	}, nil)
}

func (s *Session) setAnswer(index int, text string) {
	if s.phase != PhaseActive {
		return
	}
	if index < 0 || index >= len(s.quiz.Questions) {
		return
	}
	s.answers[index] = text
	if s.sink == nil {
		return
	}
	s.loop.Go(func() {
		ctx, cancel := s.callCtx()
		defer cancel()
		if err := s.sink.SaveAnswer(ctx, index, text); err != nil {
			s.log.Debug().Err(err).Int("index", index).Msg("Autosave failed")
		}
	}, nil)
}

func (s *Session) timeUp() {
	s.log.Info().Msg("Time is up, submitting")
	s.submit()
}

func (s *Session) snapshotAnswers() map[int]string {
	out := make(map[int]string, len(s.answers))
	for i, a := range s.answers {
		out[i] = a
	}
	return out
}

// submit is the normal path: test-taker or countdown. A failed call rolls
// back to Active with answers intact.
func (s *Session) submit() {
	if s.phase != PhaseActive {
		return
	}
	s.stopRetry()
	s.disengage()
	s.setPhase(PhaseSubmitting)

	answers := s.snapshotAnswers()
	attemptID := s.attemptID
	var (
		res *model.SubmitResult
		err error
	)
	s.loop.Go(func() {
		s.flagsOut.Wait()
		ctx, cancel := s.callCtx()
		defer cancel()
		res, err = s.remote.Submit(ctx, attemptID, answers)
	}, func() {
		if s.phase != PhaseSubmitting {
			return
		}
		if err != nil {
			var se *SubmissionError
			if !errors.As(err, &se) {
				err = &SubmissionError{Err: err}
			}
			s.log.Warn().Err(err).Msg("Submit failed, returning to active")
			s.setPhase(PhaseActive)
			if !s.closed {
				s.engage()
			}
			s.obs.Failed(err)
			// The countdown cannot fire again once expired, so past the
			// deadline the session keeps resubmitting on its own.
			if s.countdown.Expired() && !s.closed {
				s.log.Warn().Dur("retry_in", expiredRetryDelay).Msg("Deadline passed, submit will be retried")
				s.retry = s.loop.AfterFunc(expiredRetryDelay, s.timeUp)
			}
			return
		}
		s.countdown.Stop()
		s.setPhase(PhaseSubmittedClean)
		s.finish(Outcome{Result: res})
	})
}

// forceSubmit is the violation path. Its outcome is terminal whatever the
// network does.
func (s *Session) forceSubmit(reason Reason) {
	if s.phase != PhaseActive {
		return
	}
	s.stopRetry()
	s.disengage()
	s.countdown.Stop()
	s.setPhase(PhaseSubmitting)

	s.log.Warn().Str("reason", string(reason)).Msg("Force-submitting attempt")

	answers := s.snapshotAnswers()
	attemptID := s.attemptID
	var (
		res *model.SubmitResult
		err error
	)
	s.loop.Go(func() {
		s.flagsOut.Wait()
		ctx, cancel := s.callCtx()
		defer cancel()
		s.remote.Flag(ctx, model.AutoSubmittedPrefix+string(reason))
		res, err = s.remote.Submit(ctx, attemptID, answers)
	}, func() {
		if err != nil {
			s.log.Error().Err(err).Str("reason", string(reason)).Msg("Forced submission failed, attempt stays blocked")
			res = nil
		}
		s.setPhase(PhaseSubmittedFlagged)
		s.finish(Outcome{Flagged: true, Reason: reason, Result: res})
	})
}

func (s *Session) finish(o Outcome) {
	s.outcome = &o
	s.obs.Submitted(o)
}

func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	s.stopRetry()
	s.disengage()
	s.countdown.Stop()
}

func (s *Session) stopRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

// ─── Inspection (loop only) ────────────────────────────────────────────────

// State is a point-in-time view of the session.
type State struct {
	Phase         Phase
	AttemptID     string
	Warnings      int
	MaxWarnings   int
	Away          bool
	AwayRemaining time.Duration
	AwayCharged   time.Duration
	TimeRemaining time.Duration
	Answers       map[int]string
	Outcome       *Outcome
	Monitoring    bool
}

// State must be called on the loop.
func (s *Session) State() State {
	st := State{
		Phase:         s.phase,
		AttemptID:     s.attemptID,
		MaxWarnings:   s.policy.MaxWarnings,
		AwayRemaining: s.policy.AwayBudget,
		TimeRemaining: s.countdown.Remaining(),
		Answers:       s.snapshotAnswers(),
		Outcome:       s.outcome,
		Monitoring:    s.guard.Held(),
	}
	if s.arbiter != nil {
		st.Warnings = s.arbiter.tally.Count()
		st.Away = s.arbiter.budget.Away()
		st.AwayRemaining = s.arbiter.budget.Remaining()
		st.AwayCharged = s.arbiter.budget.Charged()
	}
	return st
}

// Quiz returns the loaded quiz. Loop only.
func (s *Session) Quiz() model.QuizPayload { return s.quiz }

// StudentInfo returns the identity pre-filled by the server or confirmed at
// start. Loop only.
func (s *Session) StudentInfo() model.StudentInfo { return s.studentInfo }
