// Package quizfile reads quiz definitions and invitation rosters from YAML.
package quizfile

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stemsi/quizguard/internal/model"
	"github.com/stemsi/quizguard/internal/validator"
)

// QuizDoc is the YAML shape of a quiz.
type QuizDoc struct {
	Title           string        `yaml:"title"`
	DurationMinutes int           `yaml:"durationMinutes"`
	Questions       []QuestionDoc `yaml:"questions"`
}

// QuestionDoc is the YAML shape of one question.
type QuestionDoc struct {
	Type    model.QuestionType `yaml:"type"`
	Text    string             `yaml:"text"`
	Options []string           `yaml:"options"`
	Answer  string             `yaml:"answer"`
	Marks   *int               `yaml:"marks"`
}

// RosterDoc is the YAML shape of an invitation roster.
type RosterDoc struct {
	Students []model.StudentInfo `yaml:"students"`
}

// ParseQuiz decodes and checks a quiz document. Unknown keys are rejected.
// Questions keep file order; marks default to 1.
func ParseQuiz(r io.Reader) (*model.Quiz, []model.Question, error) {
	var doc QuizDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("decode quiz: %w", err)
	}

	var errs []error
	if strings.TrimSpace(doc.Title) == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if doc.DurationMinutes <= 0 {
		errs = append(errs, errors.New("durationMinutes must be positive"))
	}
	if len(doc.Questions) == 0 {
		errs = append(errs, errors.New("at least one question is required"))
	}

	questions := make([]model.Question, 0, len(doc.Questions))
	for i, qd := range doc.Questions {
		q, err := qd.question()
		if err != nil {
			errs = append(errs, fmt.Errorf("question %d: %w", i+1, err))
			continue
		}
		questions = append(questions, q)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}

	quiz := &model.Quiz{Title: strings.TrimSpace(doc.Title), DurationMinutes: doc.DurationMinutes}
	return quiz, questions, nil
}

func (qd QuestionDoc) question() (model.Question, error) {
	q := model.Question{
		Type:          qd.Type,
		Text:          strings.TrimSpace(qd.Text),
		Options:       qd.Options,
		CorrectAnswer: qd.Answer,
		Marks:         1,
	}
	if qd.Marks != nil {
		if *qd.Marks < 0 {
			return q, errors.New("marks must not be negative")
		}
		q.Marks = *qd.Marks
	}
	if q.Text == "" {
		return q, errors.New("text is required")
	}

	switch q.Type {
	case model.QuestionTypeMCQ:
		if len(q.Options) < 2 {
			return q, errors.New("mcq needs at least two options")
		}
		found := false
		for _, o := range q.Options {
			if o == q.CorrectAnswer {
				found = true
				break
			}
		}
		if !found {
			return q, fmt.Errorf("answer %q is not one of the options", q.CorrectAnswer)
		}
	case model.QuestionTypeShortAnswer:
		if strings.TrimSpace(q.CorrectAnswer) == "" {
			return q, errors.New("short-answer needs an answer")
		}
		q.Options = nil
	default:
		return q, fmt.Errorf("unknown type %q", q.Type)
	}
	return q, nil
}

// ParseRoster decodes a roster and validates every student with the same
// rules the start endpoint applies.
func ParseRoster(r io.Reader) ([]model.StudentInfo, error) {
	var doc RosterDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	if len(doc.Students) == 0 {
		return nil, errors.New("roster has no students")
	}

	v := validator.NewStandalone()

	var errs []error
	for i, s := range doc.Students {
		if err := v.Struct(s); err != nil {
			for field, msg := range validator.TranslateErrors(err) {
				errs = append(errs, fmt.Errorf("student %d: %s: %s", i+1, field, msg))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return doc.Students, nil
}
