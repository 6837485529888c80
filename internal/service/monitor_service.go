package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/stemsi/quizguard/internal/config"
	"github.com/stemsi/quizguard/internal/model"
	"github.com/stemsi/quizguard/internal/repository"
)

// MonitorService builds live progress snapshots for quiz proctors.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		monitorRepo: monitorRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "monitor_service").Logger(),
	}
}

// AttemptProgress is one row of the monitor table.
type AttemptProgress struct {
	AttemptID     uuid.UUID           `json:"attemptId"`
	StudentInfo   model.StudentInfo   `json:"studentInfo"`
	Status        model.AttemptStatus `json:"status"`
	WarningCount  int                 `json:"warningCount"`
	FlagCount     int64               `json:"flagCount"`
	AnsweredCount int64               `json:"answeredCount"`
	Percentage    *float64            `json:"percentage,omitempty"`
}

// Snapshot is the full monitor state of a quiz.
type Snapshot struct {
	Type       string            `json:"type"`
	QuizID     uuid.UUID         `json:"quizId"`
	Attempts   []AttemptProgress `json:"attempts"`
	TotalFlags int64             `json:"totalFlags"`
}

// GetSnapshot fetches attempts, flag counts and answered counts concurrently.
// Attempts are required; the counts are best-effort.
func (s *MonitorService) GetSnapshot(ctx context.Context, quizID uuid.UUID) (*Snapshot, error) {
	var (
		attempts []model.Attempt
		flags    map[uuid.UUID]int64
		answered map[uuid.UUID]int64
	)

	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		var err error
		attempts, err = s.monitorRepo.ListAttempts(ctx, quizID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		if flags, err = s.monitorRepo.GetFlagCounts(ctx, quizID); err != nil {
			s.log.Warn().Err(err).Msg("Flag counts unavailable")
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		var err error
		if answered, err = s.monitorRepo.GetAnsweredCounts(ctx, quizID); err != nil {
			s.log.Warn().Err(err).Msg("Answered counts unavailable")
		}
		return nil
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	live := s.liveWarnings(ctx, attempts)

	snap := &Snapshot{
		Type:     "snapshot",
		QuizID:   quizID,
		Attempts: make([]AttemptProgress, 0, len(attempts)),
	}
	for i, a := range attempts {
		row := AttemptProgress{
			AttemptID:     a.ID,
			StudentInfo:   a.StudentInfo,
			Status:        a.Status,
			WarningCount:  max(a.WarningCount, live[i]),
			FlagCount:     flags[a.ID],
			AnsweredCount: answered[a.ID],
			Percentage:    a.Percentage,
		}
		snap.TotalFlags += row.FlagCount
		snap.Attempts = append(snap.Attempts, row)
	}
	return snap, nil
}

// liveWarnings reads the Redis warning counters of in-progress attempts.
// The result is index-aligned with attempts; missing counters read as zero.
func (s *MonitorService) liveWarnings(ctx context.Context, attempts []model.Attempt) []int {
	out := make([]int, len(attempts))
	if len(attempts) == 0 {
		return out
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(attempts))
	for i, a := range attempts {
		if a.Status == model.AttemptStatusInProgress {
			cmds[i] = pipe.Get(ctx, config.CacheKey.AttemptWarningsKey(a.ID.String()))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		s.log.Debug().Err(err).Msg("Live warning counters unavailable")
	}
	for i, cmd := range cmds {
		if cmd == nil {
			continue
		}
		if n, err := cmd.Int(); err == nil {
			out[i] = n
		}
	}
	return out
}
