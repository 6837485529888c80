package model

import "time"

// FlagEvent is one integrity flag queued for batch persistence.
type FlagEvent struct {
	AttemptID  string `json:"attempt_id"`
	Reason     string `json:"reason"`
	RecordedAt int64  `json:"recorded_at"`
}

// AnswerEvent is one autosaved answer queued for persistence.
type AnswerEvent struct {
	AttemptID string `json:"attempt_id"`
	Index     int    `json:"index"`
	Answer    string `json:"answer"`
}

// MonitorEventType enumerates live monitor notifications.
type MonitorEventType string

const (
	MonitorEventStarted   MonitorEventType = "started"
	MonitorEventFlagged   MonitorEventType = "flagged"
	MonitorEventSubmitted MonitorEventType = "submitted"
)

// MonitorEvent is published on a quiz's monitor channel.
type MonitorEvent struct {
	Type         MonitorEventType `json:"type"`
	AttemptID    string           `json:"attemptId"`
	StudentName  string           `json:"studentName"`
	Reason       string           `json:"reason,omitempty"`
	WarningCount int              `json:"warningCount"`
	Percentage   *float64         `json:"percentage,omitempty"`
	At           time.Time        `json:"at"`
}

// AutoSubmittedPrefix marks the flag a client sends right before it
// force-submits. Such flags are recorded but never counted as warnings.
const AutoSubmittedPrefix = "auto-submitted: "
