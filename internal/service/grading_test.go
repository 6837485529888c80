package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/quizguard/internal/model"
)

func testKey() []model.AnswerKeyEntry {
	return BuildAnswerKey([]model.Question{
		{Type: model.QuestionTypeMCQ, CorrectAnswer: "Mitochondria", Marks: 2},
		{Type: model.QuestionTypeShortAnswer, CorrectAnswer: "Cell membrane", Marks: 1},
		{Type: model.QuestionTypeMCQ, CorrectAnswer: "Nucleus", Marks: 1},
	})
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name    string
		answers map[int]string
		want    model.SubmitResult
	}{
		{
			name:    "all correct",
			answers: map[int]string{0: "Mitochondria", 1: "cell membrane", 2: "Nucleus"},
			want:    model.SubmitResult{TotalMarks: 4, MaxMarks: 4, Percentage: 100},
		},
		{
			name:    "short answer trimmed and case-folded",
			answers: map[int]string{1: "  CELL MEMBRANE "},
			want:    model.SubmitResult{TotalMarks: 1, MaxMarks: 4, Percentage: 25},
		},
		{
			name:    "mcq is exact",
			answers: map[int]string{0: "mitochondria", 2: "Nucleus "},
			want:    model.SubmitResult{TotalMarks: 0, MaxMarks: 4, Percentage: 0},
		},
		{
			name:    "unknown indices ignored",
			answers: map[int]string{7: "Nucleus", -1: "Mitochondria", 2: "Nucleus"},
			want:    model.SubmitResult{TotalMarks: 1, MaxMarks: 4, Percentage: 25},
		},
		{
			name:    "no answers",
			answers: nil,
			want:    model.SubmitResult{TotalMarks: 0, MaxMarks: 4, Percentage: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Grade(testKey(), tt.answers))
		})
	}
}

func TestGrade_ZeroMaxMarks(t *testing.T) {
	key := []model.AnswerKeyEntry{{Type: model.QuestionTypeMCQ, Correct: "A", Marks: 0}}
	res := Grade(key, map[int]string{0: "A"})
	assert.Zero(t, res.Percentage)
	assert.Zero(t, res.MaxMarks)
}

func TestGrade_RoundsPercentage(t *testing.T) {
	key := []model.AnswerKeyEntry{
		{Type: model.QuestionTypeMCQ, Correct: "A", Marks: 1},
		{Type: model.QuestionTypeMCQ, Correct: "B", Marks: 1},
		{Type: model.QuestionTypeMCQ, Correct: "C", Marks: 1},
	}
	res := Grade(key, map[int]string{0: "A"})
	assert.Equal(t, 33.33, res.Percentage)
}
