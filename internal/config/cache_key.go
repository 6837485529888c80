package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuizPayloadKey holds the student-facing quiz JSON.
func (r *CacheKeyStruct) QuizPayloadKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:payload", quizID)
}

// QuizAnswerKey holds the grading key for a quiz.
func (r *CacheKeyStruct) QuizAnswerKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:key", quizID)
}

// AttemptWarningsKey counts flags raised during an attempt.
func (r *CacheKeyStruct) AttemptWarningsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:warnings", attemptID)
}

// AttemptAnswersKey is a hash of question index to the latest autosaved answer.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptSubmitLockKey guards against concurrent submissions of one attempt.
func (r *CacheKeyStruct) AttemptSubmitLockKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:submit_lock", attemptID)
}

// QuizMonitorChannel returns the Redis PubSub channel name for a quiz monitor
func (r *CacheKeyStruct) QuizMonitorChannel(quizID string) string {
	return fmt.Sprintf("quiz:%s:monitor", quizID)
}

// RateLimitKey counts requests from one client IP in one window slot.
func (r *CacheKeyStruct) RateLimitKey(ip, slot string) string {
	return fmt.Sprintf("ratelimit:%s:%s", ip, slot)
}

var CacheKey = NewCacheKeyStruct()
