package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
)

// Attempt is one test-taker's single run through a quiz.
type Attempt struct {
	ID              uuid.UUID     `json:"id"`
	InvitationToken string        `json:"-"`
	QuizID          uuid.UUID     `json:"quiz_id"`
	StudentInfo     StudentInfo   `json:"studentInfo"`
	Status          AttemptStatus `json:"status"`
	WarningCount    int           `json:"warningCount"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	TotalMarks      *float64      `json:"totalMarks,omitempty"`
	MaxMarks        *float64      `json:"maxMarks,omitempty"`
	Percentage      *float64      `json:"percentage,omitempty"`
}

// AttemptView is the response of GET /attempt/{token}.
type AttemptView struct {
	Quiz             QuizPayload    `json:"quiz"`
	StudentInfo      StudentInfo    `json:"studentInfo"`
	WarningCount     int            `json:"warningCount"`
	HasStarted       bool           `json:"hasStarted"`
	AttemptID        string         `json:"attemptId,omitempty"`
	AlreadySubmitted bool           `json:"alreadySubmitted"`
	DurationSeconds  int            `json:"durationSeconds"`
	RemainingSeconds int            `json:"remainingSeconds"`
	Answers          map[int]string `json:"answers,omitempty"`
	Policy           *ProctorPolicy `json:"policy,omitempty"`
}

// StartAttemptRequest is the payload of POST /attempt/start.
type StartAttemptRequest struct {
	Token       string      `json:"token" binding:"required,min=8,max=128"`
	StudentInfo StudentInfo `json:"studentInfo"`
}

// StartAttemptResponse is returned once an attempt has been created.
type StartAttemptResponse struct {
	AttemptID       string      `json:"attemptId"`
	Quiz            QuizPayload `json:"quiz"`
	DurationSeconds int         `json:"durationSeconds"`
}

// FlagRequest is the payload of POST /attempt/flag.
type FlagRequest struct {
	Token  string `json:"token" binding:"required,min=8,max=128"`
	Reason string `json:"reason" binding:"required,notblank,max=200"`
}

// SubmitRequest is the payload of POST /attempt/submit.
type SubmitRequest struct {
	AttemptID string         `json:"attemptId" binding:"required"`
	Answers   map[int]string `json:"answers"`
}

// SubmitResult is the graded outcome of a submission.
type SubmitResult struct {
	TotalMarks float64 `json:"totalMarks"`
	MaxMarks   float64 `json:"maxMarks"`
	Percentage float64 `json:"percentage"`
}

// ProctorPolicy carries the integrity thresholds a client should enforce.
type ProctorPolicy struct {
	MaxWarnings  int     `json:"maxWarnings"`
	CooldownMs   int     `json:"cooldownMs"`
	AwayBudgetMs int     `json:"awayBudgetMs"`
	SettleMs     int     `json:"settleMs"`
	PollMs       int     `json:"pollMs"`
	SplitRatio   float64 `json:"splitRatio"`
}
