package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the kinds of question a quiz can hold.
type QuestionType string

const (
	QuestionTypeMCQ         QuestionType = "mcq"
	QuestionTypeShortAnswer QuestionType = "short-answer"
)

// Question is a stored quiz question including its answer key.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	QuizID        uuid.UUID    `json:"quiz_id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"-"`
	Marks         int          `json:"marks"`
	OrderNum      int          `json:"order_num"`
}

// QuestionForStudent is a question without its answer, sent to test-takers.
type QuestionForStudent struct {
	ID      uuid.UUID    `json:"id"`
	Type    QuestionType `json:"type"`
	Text    string       `json:"text"`
	Options []string     `json:"options,omitempty"`
}

// ForStudent strips the answer key.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:      q.ID,
		Type:    q.Type,
		Text:    q.Text,
		Options: q.Options,
	}
}

// AnswerKeyEntry is the cached grading data for one question, keyed by its
// position in the quiz.
type AnswerKeyEntry struct {
	Type    QuestionType `json:"type"`
	Correct string       `json:"correct"`
	Marks   int          `json:"marks"`
}
