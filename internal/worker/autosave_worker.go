package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizguard/internal/config"
	"github.com/stemsi/quizguard/internal/model"
)

// AnswerStore upserts autosaved answers.
type AnswerStore interface {
	UpsertAnswer(ctx context.Context, attemptID uuid.UUID, index int, answer string) error
}

// AutosaveWorker consumes the answers queue and upserts into attempt_answers.
type AutosaveWorker struct {
	store AnswerStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(store AnswerStore, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start runs until ctx is cancelled, then drains the queue.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if w.handle(ctx, result[1]) {
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// handle persists one queued answer and reports whether it should be retried.
func (w *AutosaveWorker) handle(ctx context.Context, raw string) (retry bool) {
	var ev model.AnswerEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		w.log.Error().Err(err).Msg("Discarding malformed answer")
		return false
	}
	id, err := uuid.Parse(ev.AttemptID)
	if err != nil {
		w.log.Error().Str("attempt_id", ev.AttemptID).Msg("Discarding answer with invalid attempt id")
		return false
	}

	if err := w.store.UpsertAnswer(ctx, id, ev.Index, ev.Answer); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", ev.AttemptID).
			Int("index", ev.Index).
			Msg("Persist error, retrying in 5s")
		return true
	}
	return false
}

// drain persists whatever is still queued before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}
		if w.handle(ctx, raw) {
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
