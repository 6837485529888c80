package proctor

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports identity fields that were rejected before or by
// the start call. Fields maps field name to message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// SubmissionError wraps a failed submit call. StatusCode is zero for
// transport failures.
type SubmissionError struct {
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submit failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("submit failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
