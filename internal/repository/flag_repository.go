package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FlagRow is one integrity flag ready for insertion.
type FlagRow struct {
	AttemptID  uuid.UUID
	Reason     string
	RecordedAt time.Time
}

// FlagRepository persists integrity flags.
type FlagRepository struct {
	pool *pgxpool.Pool
}

// NewFlagRepository creates a new FlagRepository.
func NewFlagRepository(pool *pgxpool.Pool) *FlagRepository {
	return &FlagRepository{pool: pool}
}

// InsertMany bulk-inserts flags with COPY.
func (r *FlagRepository) InsertMany(ctx context.Context, flags []FlagRow) error {
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"attempt_flags"},
		[]string{"attempt_id", "reason", "recorded_at"},
		pgx.CopyFromSlice(len(flags), func(i int) ([]interface{}, error) {
			f := flags[i]
			return []interface{}{f.AttemptID, f.Reason, f.RecordedAt}, nil
		}),
	)
	return err
}

// Insert stores a single flag.
func (r *FlagRepository) Insert(ctx context.Context, f FlagRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_flags (attempt_id, reason, recorded_at) VALUES ($1, $2, $3)`,
		f.AttemptID, f.Reason, f.RecordedAt)
	return err
}
