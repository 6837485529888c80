package model

import (
	"time"

	"github.com/google/uuid"
)

// Quiz is a published quiz.
type Quiz struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
}

// QuizPayload is the quiz content as delivered to a test-taker. Questions
// keep quiz order; answers refer to them by index.
type QuizPayload struct {
	ID              uuid.UUID            `json:"id"`
	Title           string               `json:"title"`
	DurationSeconds int                  `json:"durationSeconds"`
	Questions       []QuestionForStudent `json:"questions"`
}
