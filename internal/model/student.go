package model

import "github.com/google/uuid"

// StudentInfo is the identity a test-taker confirms before starting.
type StudentInfo struct {
	Name       string `json:"name" yaml:"name" binding:"required,min=2,max=120"`
	Email      string `json:"email" yaml:"email" binding:"required,email,max=254"`
	RollNumber string `json:"rollNumber" yaml:"rollNumber" binding:"required,max=40"`
	Section    string `json:"section,omitempty" yaml:"section,omitempty" binding:"omitempty,max=40"`
}

// Invitation links a share token to a quiz and a pre-filled identity.
type Invitation struct {
	Token       string      `json:"token"`
	QuizID      uuid.UUID   `json:"quiz_id"`
	StudentInfo StudentInfo `json:"studentInfo"`
}
