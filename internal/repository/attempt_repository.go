package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizguard/internal/model"
)

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, invitation_token, quiz_id, name, email, roll_number, section,
	status, warning_count, started_at, finished_at, total_marks, max_marks, percentage`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.InvitationToken, &a.QuizID,
		&a.StudentInfo.Name, &a.StudentInfo.Email, &a.StudentInfo.RollNumber, &a.StudentInfo.Section,
		&a.Status, &a.WarningCount, &a.StartedAt, &a.FinishedAt, &a.TotalMarks, &a.MaxMarks, &a.Percentage)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByInvitation retrieves the attempt opened with an invitation token.
func (r *AttemptRepository) GetByInvitation(ctx context.Context, token string) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE invitation_token = $1`, token))
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// Create inserts a new attempt. Returns pgx.ErrNoRows when the invitation
// already has one (concurrent start).
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (invitation_token, quiz_id, name, email, roll_number, section, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (invitation_token) DO NOTHING
		 RETURNING id, started_at`,
		a.InvitationToken, a.QuizID, a.StudentInfo.Name, a.StudentInfo.Email,
		a.StudentInfo.RollNumber, a.StudentInfo.Section, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)
}

// ListAnswers returns the persisted answers of an attempt keyed by question index.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) (map[int]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_index, answer FROM attempt_answers WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[int]string)
	for rows.Next() {
		var idx int
		var ans string
		if err := rows.Scan(&idx, &ans); err != nil {
			return nil, err
		}
		answers[idx] = ans
	}
	return answers, rows.Err()
}

// UpsertAnswer stores the latest answer for one question. Answers arriving
// after the attempt was submitted are ignored.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, attemptID uuid.UUID, index int, answer string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_index, answer)
		 SELECT $1, $2, $3
		 WHERE EXISTS (SELECT 1 FROM attempts WHERE id = $1 AND status = $4)
		 ON CONFLICT (attempt_id, question_index) DO UPDATE
		 SET answer = EXCLUDED.answer, updated_at = NOW()`,
		attemptID, index, answer, model.AttemptStatusInProgress)
	return err
}

// Complete stores the final answers and grade. It only transitions an
// in-progress attempt; completed reports whether this call did it.
func (r *AttemptRepository) Complete(ctx context.Context, attemptID uuid.UUID, answers map[int]string, warnings int, res model.SubmitResult) (completed bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, warning_count = GREATEST(warning_count, $2), finished_at = NOW(),
		     total_marks = $3, max_marks = $4, percentage = $5
		 WHERE id = $6 AND status = $7`,
		model.AttemptStatusSubmitted, warnings, res.TotalMarks, res.MaxMarks, res.Percentage,
		attemptID, model.AttemptStatusInProgress)
	if err != nil {
		return false, fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for idx, ans := range answers {
		batch.Queue(
			`INSERT INTO attempt_answers (attempt_id, question_index, answer)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (attempt_id, question_index) DO UPDATE
			 SET answer = EXCLUDED.answer, updated_at = NOW()`,
			attemptID, idx, ans)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return false, fmt.Errorf("store answers: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// SyncWarnings raises the persisted warning count to at least n.
func (r *AttemptRepository) SyncWarnings(ctx context.Context, attemptID uuid.UUID, n int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET warning_count = GREATEST(warning_count, $1) WHERE id = $2`, n, attemptID)
	return err
}
