package service

import (
	"math"
	"strings"

	"github.com/stemsi/quizguard/internal/model"
)

// BuildAnswerKey extracts the grading data of questions in quiz order.
func BuildAnswerKey(questions []model.Question) []model.AnswerKeyEntry {
	key := make([]model.AnswerKeyEntry, len(questions))
	for i, q := range questions {
		key[i] = model.AnswerKeyEntry{
			Type:    q.Type,
			Correct: q.CorrectAnswer,
			Marks:   q.Marks,
		}
	}
	return key
}

// Grade scores answers against key. Multiple-choice answers must match the
// correct option exactly; short answers match case-insensitively after
// trimming. Answers for unknown indices are ignored.
func Grade(key []model.AnswerKeyEntry, answers map[int]string) model.SubmitResult {
	var res model.SubmitResult
	for i, entry := range key {
		res.MaxMarks += float64(entry.Marks)
		ans, ok := answers[i]
		if !ok {
			continue
		}
		if correct(entry, ans) {
			res.TotalMarks += float64(entry.Marks)
		}
	}
	if res.MaxMarks > 0 {
		res.Percentage = math.Round(res.TotalMarks/res.MaxMarks*10000) / 100
	}
	return res
}

func correct(entry model.AnswerKeyEntry, answer string) bool {
	switch entry.Type {
	case model.QuestionTypeShortAnswer:
		given := strings.TrimSpace(answer)
		return given != "" && strings.EqualFold(given, strings.TrimSpace(entry.Correct))
	default:
		return answer == entry.Correct
	}
}
