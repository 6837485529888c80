package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizguard/internal/model"
)

// QuizRepository handles quiz and question data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetByID retrieves a quiz by its UUID.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, created_at FROM quizzes WHERE id = $1`, id,
	).Scan(&q.ID, &q.Title, &q.DurationMinutes, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListQuestions retrieves all questions of a quiz in quiz order.
func (r *QuizRepository) ListQuestions(ctx context.Context, quizID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, type, text, options, correct_answer, marks, order_num
		 FROM questions WHERE quiz_id = $1
		 ORDER BY order_num`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Type, &q.Text, &q.Options, &q.CorrectAnswer, &q.Marks, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateWithQuestions inserts a quiz and its questions in one transaction.
func (r *QuizRepository) CreateWithQuestions(ctx context.Context, quiz *model.Quiz, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`INSERT INTO quizzes (title, duration_minutes) VALUES ($1, $2)
		 RETURNING id, created_at`,
		quiz.Title, quiz.DurationMinutes,
	).Scan(&quiz.ID, &quiz.CreatedAt); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range questions {
		q := &questions[i]
		q.QuizID = quiz.ID
		q.OrderNum = i + 1
		options := q.Options
		if options == nil {
			options = []string{}
		}
		batch.Queue(
			`INSERT INTO questions (quiz_id, type, text, options, correct_answer, marks, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			q.QuizID, q.Type, q.Text, options, q.CorrectAnswer, q.Marks, q.OrderNum,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&q.ID)
		})
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}

// ListActiveIDs returns the quizzes that have at least one attempt in progress.
func (r *QuizRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT quiz_id FROM attempts WHERE status = $1`, model.AttemptStatusInProgress)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}
