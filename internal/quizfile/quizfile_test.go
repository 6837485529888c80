package quizfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/quizguard/internal/model"
)

const quizYAML = `
title: "Networking basics"
durationMinutes: 20
questions:
  - type: mcq
    text: "Which layer does IP live on?"
    options: ["Link", "Network", "Transport"]
    answer: "Network"
    marks: 2
  - type: short-answer
    text: "Default HTTPS port?"
    answer: "443"
`

func TestParseQuiz(t *testing.T) {
	quiz, questions, err := ParseQuiz(strings.NewReader(quizYAML))
	require.NoError(t, err)

	assert.Equal(t, "Networking basics", quiz.Title)
	assert.Equal(t, 20, quiz.DurationMinutes)
	require.Len(t, questions, 2)
	assert.Equal(t, model.QuestionTypeMCQ, questions[0].Type)
	assert.Equal(t, 2, questions[0].Marks)
	assert.Equal(t, "Network", questions[0].CorrectAnswer)
	assert.Equal(t, 1, questions[1].Marks, "marks default to 1")
	assert.Nil(t, questions[1].Options)
}

func TestParseQuiz_CollectsEveryProblem(t *testing.T) {
	doc := `
title: ""
durationMinutes: 0
questions:
  - type: mcq
    text: "Pick one"
    options: ["A", "B"]
    answer: "C"
  - type: essay
    text: "Discuss"
`
	_, _, err := ParseQuiz(strings.NewReader(doc))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "title is required")
	assert.Contains(t, msg, "durationMinutes must be positive")
	assert.Contains(t, msg, `question 1: answer "C" is not one of the options`)
	assert.Contains(t, msg, `question 2: unknown type "essay"`)
}

func TestParseQuiz_RejectsUnknownKeys(t *testing.T) {
	_, _, err := ParseQuiz(strings.NewReader("title: x\nduration: 5\n"))
	assert.Error(t, err)
}

func TestParseRoster(t *testing.T) {
	doc := `
students:
  - name: "Ada Lovelace"
    email: "ada@example.com"
    rollNumber: "R-1"
    section: "B"
  - name: "Alan Turing"
    email: "alan@example.com"
    rollNumber: "R-2"
`
	students, err := ParseRoster(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "R-1", students[0].RollNumber)
	assert.Equal(t, "B", students[0].Section)
}

func TestParseRoster_ValidatesStudents(t *testing.T) {
	doc := `
students:
  - name: "Ada Lovelace"
    email: "not-an-email"
    rollNumber: "R-1"
`
	_, err := ParseRoster(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "student 1: email:")
}
