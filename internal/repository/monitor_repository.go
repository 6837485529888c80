package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizguard/internal/model"
)

// MonitorRepository provides read access for the live quiz monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListAttempts returns every attempt opened for the given quiz, newest first.
func (r *MonitorRepository) ListAttempts(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE quiz_id = $1 ORDER BY started_at DESC`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetFlagCounts returns the number of persisted flags per attempt of the given quiz.
func (r *MonitorRepository) GetFlagCounts(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT f.attempt_id, COUNT(*)
		 FROM attempt_flags f
		 JOIN attempts a ON a.id = f.attempt_id
		 WHERE a.quiz_id = $1
		 GROUP BY f.attempt_id`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// GetAnsweredCounts returns how many answers each attempt of the quiz has persisted.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT aa.attempt_id, COUNT(*)
		 FROM attempt_answers aa
		 JOIN attempts a ON a.id = aa.attempt_id
		 WHERE a.quiz_id = $1
		 GROUP BY aa.attempt_id`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}
