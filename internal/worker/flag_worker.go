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
	"github.com/stemsi/quizguard/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Redis rejects BLPOP timeouts below 1s
)

// FlagStore persists integrity flags.
type FlagStore interface {
	InsertMany(ctx context.Context, flags []repository.FlagRow) error
	Insert(ctx context.Context, f repository.FlagRow) error
}

// WarningSyncer raises the persisted warning count of an attempt.
type WarningSyncer interface {
	SyncWarnings(ctx context.Context, attemptID uuid.UUID, n int) error
}

// FlagWorker drains the flag queue into attempt_flags in batches and keeps
// the persisted warning counts in step with the live Redis counters.
type FlagWorker struct {
	store    FlagStore
	warnings WarningSyncer
	rdb      *redis.Client
	log      zerolog.Logger
}

func NewFlagWorker(store FlagStore, warnings WarningSyncer, rdb *redis.Client, log zerolog.Logger) *FlagWorker {
	return &FlagWorker{
		store:    store,
		warnings: warnings,
		rdb:      rdb,
		log:      log.With().Str("component", "flag_worker").Logger(),
	}
}

// Start runs until ctx is cancelled, then flushes what is buffered.
func (w *FlagWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]model.FlagEvent, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistFlagsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var ev model.FlagEvent
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed flag")
			continue
		}
		buffer = append(buffer, ev)
	}
}

func (w *FlagWorker) flush(ctx context.Context, batch []model.FlagEvent) {
	if failed := w.flushSafe(ctx, batch); len(failed) > 0 {
		w.requeue(ctx, failed)
	}
	w.syncWarnings(ctx, batch)
}

// flushSafe tries one COPY, then row-by-row inserts. It returns the events
// that could not be stored.
func (w *FlagWorker) flushSafe(ctx context.Context, batch []model.FlagEvent) []model.FlagEvent {
	rows, events := w.rows(batch)
	if len(rows) == 0 {
		return nil
	}

	err := w.store.InsertMany(ctx, rows)
	if err == nil {
		w.log.Debug().Int("count", len(rows)).Msg("Flags persisted")
		return nil
	}
	w.log.Warn().Err(err).Int("count", len(rows)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []model.FlagEvent
	for i, row := range rows {
		if err := w.store.Insert(ctx, row); err != nil {
			w.log.Error().Err(err).Str("attempt_id", row.AttemptID.String()).Msg("Insert failed, requeueing")
			failed = append(failed, events[i])
		}
	}
	return failed
}

// rows converts events to insertable rows, dropping events with a bad
// attempt id. events is index-aligned with rows.
func (w *FlagWorker) rows(batch []model.FlagEvent) ([]repository.FlagRow, []model.FlagEvent) {
	rows := make([]repository.FlagRow, 0, len(batch))
	events := make([]model.FlagEvent, 0, len(batch))
	for _, ev := range batch {
		id, err := uuid.Parse(ev.AttemptID)
		if err != nil {
			w.log.Error().Str("attempt_id", ev.AttemptID).Msg("Dropping flag with invalid attempt id")
			continue
		}
		rows = append(rows, repository.FlagRow{
			AttemptID:  id,
			Reason:     ev.Reason,
			RecordedAt: time.Unix(ev.RecordedAt, 0).UTC(),
		})
		events = append(events, ev)
	}
	return rows, events
}

// syncWarnings copies the live counters of the batch's attempts to PostgreSQL
// so a resume after a Redis eviction still sees them.
func (w *FlagWorker) syncWarnings(ctx context.Context, batch []model.FlagEvent) {
	seen := make(map[string]struct{}, len(batch))
	for _, ev := range batch {
		if _, ok := seen[ev.AttemptID]; ok {
			continue
		}
		seen[ev.AttemptID] = struct{}{}

		id, err := uuid.Parse(ev.AttemptID)
		if err != nil {
			continue
		}
		n, err := w.rdb.Get(ctx, config.CacheKey.AttemptWarningsKey(ev.AttemptID)).Int()
		if err != nil {
			continue
		}
		if err := w.warnings.SyncWarnings(ctx, id, n); err != nil {
			w.log.Warn().Err(err).Str("attempt_id", ev.AttemptID).Msg("Warning count sync failed")
		}
	}
}

func (w *FlagWorker) requeue(ctx context.Context, items []model.FlagEvent) {
	pipe := w.rdb.Pipeline()
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		pipe.RPush(ctx, config.WorkerKey.PersistFlagsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue flags, data lost")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed flags")
	// Back off while the database recovers.
	time.Sleep(2 * time.Second)
}

func (w *FlagWorker) shutdown(buffer []model.FlagEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if len(buffer) > 0 {
		w.flush(ctx, buffer)
	}
	w.log.Info().Msg("Worker stopped")
}
