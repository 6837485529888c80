package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizguard/internal/config"
	"github.com/stemsi/quizguard/internal/model"
	"github.com/stemsi/quizguard/internal/repository"
)

// Attempt errors.
var (
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrAttemptNotStarted   = errors.New("attempt not started")
	ErrAlreadySubmitted    = errors.New("attempt already submitted")
	ErrInvalidAttemptToken = errors.New("invalid attempt token")
	ErrSubmitInProgress    = errors.New("submission already in progress")
	ErrNoQuestions         = errors.New("quiz has no questions")
	ErrAnswerOutOfRange    = errors.New("answer index out of range")
)

const (
	quizCacheTTL    = 24 * time.Hour
	attemptStateTTL = 48 * time.Hour
	submitLockTTL   = 30 * time.Second
)

// AttemptService implements loading, starting, flagging and submitting
// quiz attempts.
type AttemptService struct {
	quizRepo       *repository.QuizRepository
	invitationRepo *repository.InvitationRepository
	attemptRepo    *repository.AttemptRepository
	tokens         *TokenService
	rdb            *redis.Client
	policy         model.ProctorPolicy
	grace          time.Duration
	log            zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	quizRepo *repository.QuizRepository,
	invitationRepo *repository.InvitationRepository,
	attemptRepo *repository.AttemptRepository,
	tokens *TokenService,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		quizRepo:       quizRepo,
		invitationRepo: invitationRepo,
		attemptRepo:    attemptRepo,
		tokens:         tokens,
		rdb:            rdb,
		policy:         cfg.Policy(),
		grace:          cfg.AttemptGrace,
		log:            log.With().Str("component", "attempt_service").Logger(),
	}
}

// ─── Quiz cache ────────────────────────────────────────────────────────────

// WarmQuizCache loads a quiz's payload and answer key from PostgreSQL into Redis.
func (s *AttemptService) WarmQuizCache(ctx context.Context, quizID uuid.UUID) (*model.QuizPayload, []model.AnswerKeyEntry, error) {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return nil, nil, fmt.Errorf("get quiz: %w", err)
	}
	questions, err := s.quizRepo.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil, ErrNoQuestions
	}

	payload := &model.QuizPayload{
		ID:              quiz.ID,
		Title:           quiz.Title,
		DurationSeconds: quiz.DurationMinutes * 60,
		Questions:       make([]model.QuestionForStudent, len(questions)),
	}
	for i, q := range questions {
		payload.Questions[i] = q.ForStudent()
	}
	key := BuildAnswerKey(questions)

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal answer key: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuizPayloadKey(quizID.String()), payloadJSON, quizCacheTTL)
	pipe.Set(ctx, config.CacheKey.QuizAnswerKey(quizID.String()), keyJSON, quizCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		// The quiz is still servable from the database.
		s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Failed to cache quiz")
	} else {
		s.log.Debug().Str("quiz_id", quizID.String()).Int("questions", len(questions)).Msg("Cache warmed")
	}

	return payload, key, nil
}

// PrewarmActive caches every quiz that has attempts in progress, so a
// restart does not send all resuming clients to PostgreSQL at once.
func (s *AttemptService) PrewarmActive(ctx context.Context) error {
	ids, err := s.quizRepo.ListActiveIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active quizzes: %w", err)
	}
	for _, id := range ids {
		if _, _, err := s.WarmQuizCache(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", id.String()).Msg("Prewarm failed")
		}
	}
	s.log.Info().Int("quizzes", len(ids)).Msg("Quiz caches prewarmed")
	return nil
}

// quizContent returns the cached payload and answer key, warming the cache on a miss.
func (s *AttemptService) quizContent(ctx context.Context, quizID uuid.UUID) (*model.QuizPayload, []model.AnswerKeyEntry, error) {
	pipe := s.rdb.Pipeline()
	payloadCmd := pipe.Get(ctx, config.CacheKey.QuizPayloadKey(quizID.String()))
	keyCmd := pipe.Get(ctx, config.CacheKey.QuizAnswerKey(quizID.String()))
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Quiz cache read failed, falling back to database")
		return s.WarmQuizCache(ctx, quizID)
	}

	payloadJSON, pErr := payloadCmd.Bytes()
	keyJSON, kErr := keyCmd.Bytes()
	if pErr != nil || kErr != nil {
		return s.WarmQuizCache(ctx, quizID)
	}

	var payload model.QuizPayload
	var key []model.AnswerKeyEntry
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return s.WarmQuizCache(ctx, quizID)
	}
	if err := json.Unmarshal(keyJSON, &key); err != nil {
		return s.WarmQuizCache(ctx, quizID)
	}
	return &payload, key, nil
}

// ─── Load ──────────────────────────────────────────────────────────────────

// Load returns everything a client needs to render or resume an attempt.
func (s *AttemptService) Load(ctx context.Context, token string) (*model.AttemptView, error) {
	inv, err := s.invitation(ctx, token)
	if err != nil {
		return nil, err
	}
	payload, _, err := s.quizContent(ctx, inv.QuizID)
	if err != nil {
		return nil, fmt.Errorf("quiz content: %w", err)
	}

	policy := s.policy
	view := &model.AttemptView{
		Quiz:             *payload,
		StudentInfo:      inv.StudentInfo,
		DurationSeconds:  payload.DurationSeconds,
		RemainingSeconds: payload.DurationSeconds,
		Policy:           &policy,
	}

	attempt, err := s.attemptRepo.GetByInvitation(ctx, token)
	if errors.Is(err, pgx.ErrNoRows) {
		return view, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	view.HasStarted = true
	view.StudentInfo = attempt.StudentInfo
	view.WarningCount = s.warnings(ctx, attempt)

	if attempt.Status == model.AttemptStatusSubmitted {
		view.AlreadySubmitted = true
		view.RemainingSeconds = 0
		return view, nil
	}

	remaining := s.remaining(attempt.StartedAt, payload.DurationSeconds)
	view.RemainingSeconds = int(remaining / time.Second)
	view.AttemptID, err = s.tokens.Issue(attempt.ID, token, time.Now().Add(remaining+s.grace))
	if err != nil {
		return nil, fmt.Errorf("issue attempt token: %w", err)
	}
	view.Answers, err = s.answers(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	return view, nil
}

// ─── Start ─────────────────────────────────────────────────────────────────

// Start opens the attempt for an invitation. Starting twice resumes the
// existing attempt.
func (s *AttemptService) Start(ctx context.Context, req *model.StartAttemptRequest) (*model.StartAttemptResponse, error) {
	inv, err := s.invitation(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	payload, _, err := s.quizContent(ctx, inv.QuizID)
	if err != nil {
		if errors.Is(err, ErrNoQuestions) {
			return nil, err
		}
		return nil, fmt.Errorf("quiz content: %w", err)
	}

	attempt := &model.Attempt{
		InvitationToken: inv.Token,
		QuizID:          inv.QuizID,
		StudentInfo:     req.StudentInfo,
		Status:          model.AttemptStatusInProgress,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		// Already started, possibly from another tab.
		attempt, err = s.attemptRepo.GetByInvitation(ctx, inv.Token)
		if err != nil {
			return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", err)
		}
		if attempt.Status == model.AttemptStatusSubmitted {
			return nil, ErrAlreadySubmitted
		}
	} else {
		s.publish(ctx, attempt.QuizID, model.MonitorEvent{
			Type:        model.MonitorEventStarted,
			AttemptID:   attempt.ID.String(),
			StudentName: attempt.StudentInfo.Name,
		})
	}

	remaining := s.remaining(attempt.StartedAt, payload.DurationSeconds)
	tok, err := s.tokens.Issue(attempt.ID, inv.Token, time.Now().Add(remaining+s.grace))
	if err != nil {
		return nil, fmt.Errorf("issue attempt token: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("quiz_id", attempt.QuizID.String()).
		Msg("Attempt started")

	return &model.StartAttemptResponse{
		AttemptID:       tok,
		Quiz:            *payload,
		DurationSeconds: int(remaining / time.Second),
	}, nil
}

// ─── Flag ──────────────────────────────────────────────────────────────────

// Flag records an integrity flag. Flags announcing a forced submission are
// stored but not counted.
func (s *AttemptService) Flag(ctx context.Context, req *model.FlagRequest) error {
	attempt, err := s.attemptRepo.GetByInvitation(ctx, req.Token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptNotStarted
		}
		return fmt.Errorf("get attempt: %w", err)
	}

	counted := attempt.Status == model.AttemptStatusInProgress &&
		!strings.HasPrefix(req.Reason, model.AutoSubmittedPrefix)

	event, _ := json.Marshal(model.FlagEvent{
		AttemptID:  attempt.ID.String(),
		Reason:     req.Reason,
		RecordedAt: time.Now().Unix(),
	})

	warnKey := config.CacheKey.AttemptWarningsKey(attempt.ID.String())
	pipe := s.rdb.TxPipeline()
	var incr *redis.IntCmd
	if counted {
		// Seed from the database so an evicted counter never goes backwards.
		pipe.SetNX(ctx, warnKey, attempt.WarningCount, attemptStateTTL)
		incr = pipe.Incr(ctx, warnKey)
	}
	pipe.RPush(ctx, config.WorkerKey.PersistFlagsQueue, event)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue flag: %w", err)
	}

	warnings := attempt.WarningCount
	if incr != nil {
		warnings = int(incr.Val())
	}

	s.publish(ctx, attempt.QuizID, model.MonitorEvent{
		Type:         model.MonitorEventFlagged,
		AttemptID:    attempt.ID.String(),
		StudentName:  attempt.StudentInfo.Name,
		Reason:       req.Reason,
		WarningCount: warnings,
	})
	return nil
}

// ─── Autosave ──────────────────────────────────────────────────────────────

// VerifyAttempt resolves an attempt token to an in-progress attempt.
func (s *AttemptService) VerifyAttempt(ctx context.Context, attemptToken string) (*model.Attempt, error) {
	claims, err := s.tokens.Parse(attemptToken)
	if err != nil {
		return nil, ErrInvalidAttemptToken
	}
	id, _ := claims.AttemptUUID()
	attempt, err := s.attemptRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidAttemptToken
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.InvitationToken != claims.Invitation {
		return nil, ErrInvalidAttemptToken
	}
	if attempt.Status == model.AttemptStatusSubmitted {
		return nil, ErrAlreadySubmitted
	}
	return attempt, nil
}

// SaveAnswer stores the latest answer for a question and queues it for
// persistence.
func (s *AttemptService) SaveAnswer(ctx context.Context, attempt *model.Attempt, index int, answer string) error {
	payload, _, err := s.quizContent(ctx, attempt.QuizID)
	if err != nil {
		return fmt.Errorf("quiz content: %w", err)
	}
	if index < 0 || index >= len(payload.Questions) {
		return ErrAnswerOutOfRange
	}

	event, _ := json.Marshal(model.AnswerEvent{
		AttemptID: attempt.ID.String(),
		Index:     index,
		Answer:    answer,
	})

	answersKey := config.CacheKey.AttemptAnswersKey(attempt.ID.String())
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, answersKey, strconv.Itoa(index), answer)
	pipe.Expire(ctx, answersKey, attemptStateTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, event)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

// ─── Submit ────────────────────────────────────────────────────────────────

// Submit grades and finalizes an attempt. Submitting an already submitted
// attempt returns the stored result.
func (s *AttemptService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.SubmitResult, error) {
	claims, err := s.tokens.Parse(req.AttemptID)
	if err != nil {
		return nil, ErrInvalidAttemptToken
	}
	id, _ := claims.AttemptUUID()

	attempt, err := s.attemptRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidAttemptToken
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.InvitationToken != claims.Invitation {
		return nil, ErrInvalidAttemptToken
	}
	if attempt.Status == model.AttemptStatusSubmitted {
		return storedResult(attempt), nil
	}

	lockKey := config.CacheKey.AttemptSubmitLockKey(id.String())
	locked, err := s.rdb.SetNX(ctx, lockKey, 1, submitLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submit lock: %w", err)
	}
	if !locked {
		return nil, ErrSubmitInProgress
	}
	defer s.rdb.Del(context.WithoutCancel(ctx), lockKey)

	_, key, err := s.quizContent(ctx, attempt.QuizID)
	if err != nil {
		return nil, fmt.Errorf("quiz content: %w", err)
	}

	answers := make(map[int]string, len(req.Answers))
	for idx, ans := range req.Answers {
		if idx >= 0 && idx < len(key) {
			answers[idx] = ans
		}
	}

	result := Grade(key, answers)
	warnings := s.warnings(ctx, attempt)

	completed, err := s.attemptRepo.Complete(ctx, id, answers, warnings, result)
	if err != nil {
		return nil, fmt.Errorf("complete attempt: %w", err)
	}
	if !completed {
		current, err := s.attemptRepo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reload attempt: %w", err)
		}
		return storedResult(current), nil
	}

	s.rdb.Del(ctx, config.CacheKey.AttemptAnswersKey(id.String()))

	pct := result.Percentage
	s.publish(ctx, attempt.QuizID, model.MonitorEvent{
		Type:         model.MonitorEventSubmitted,
		AttemptID:    id.String(),
		StudentName:  attempt.StudentInfo.Name,
		WarningCount: warnings,
		Percentage:   &pct,
	})

	s.log.Info().
		Str("attempt_id", id.String()).
		Float64("total", result.TotalMarks).
		Float64("max", result.MaxMarks).
		Int("warnings", warnings).
		Msg("Attempt submitted and graded")

	return &result, nil
}

// ─── Helpers ───────────────────────────────────────────────────────────────

func (s *AttemptService) invitation(ctx context.Context, token string) (*model.Invitation, error) {
	inv, err := s.invitationRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (s *AttemptService) remaining(startedAt time.Time, durationSeconds int) time.Duration {
	end := startedAt.Add(time.Duration(durationSeconds) * time.Second)
	r := time.Until(end)
	if r < 0 {
		return 0
	}
	return r
}

// warnings prefers the live Redis counter and never reports less than the
// persisted count.
func (s *AttemptService) warnings(ctx context.Context, attempt *model.Attempt) int {
	n, err := s.rdb.Get(ctx, config.CacheKey.AttemptWarningsKey(attempt.ID.String())).Int()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Read warning counter failed")
		}
		return attempt.WarningCount
	}
	if n < attempt.WarningCount {
		return attempt.WarningCount
	}
	return n
}

// answers reads autosaved answers from Redis, falling back to PostgreSQL.
func (s *AttemptService) answers(ctx context.Context, attemptID uuid.UUID) (map[int]string, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Result()
	if err == nil && len(raw) > 0 {
		out := make(map[int]string, len(raw))
		for k, v := range raw {
			idx, convErr := strconv.Atoi(k)
			if convErr != nil {
				continue
			}
			out[idx] = v
		}
		return out, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("Read autosaved answers failed, falling back to database")
	}
	return s.attemptRepo.ListAnswers(ctx, attemptID)
}

func (s *AttemptService) publish(ctx context.Context, quizID uuid.UUID, ev model.MonitorEvent) {
	ev.At = time.Now().UTC()
	data, _ := json.Marshal(ev)
	if err := s.rdb.Publish(ctx, config.CacheKey.QuizMonitorChannel(quizID.String()), data).Err(); err != nil {
		s.log.Debug().Err(err).Msg("Monitor publish failed")
	}
}

func storedResult(a *model.Attempt) *model.SubmitResult {
	res := &model.SubmitResult{}
	if a.TotalMarks != nil {
		res.TotalMarks = *a.TotalMarks
	}
	if a.MaxMarks != nil {
		res.MaxMarks = *a.MaxMarks
	}
	if a.Percentage != nil {
		res.Percentage = *a.Percentage
	}
	return res
}
