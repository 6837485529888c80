package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Attempt ───────────────────────────────────────────────────────
	ErrInvalidInvitation   ErrCode = "INVALID_INVITATION"
	ErrInvalidAttemptToken ErrCode = "INVALID_ATTEMPT_TOKEN"
	ErrAttemptNotStarted   ErrCode = "ATTEMPT_NOT_STARTED"
	ErrAlreadySubmitted    ErrCode = "ALREADY_SUBMITTED"
	ErrSubmitInProgress    ErrCode = "SUBMIT_IN_PROGRESS"
	ErrNoQuestions         ErrCode = "NO_QUESTIONS"

	// ─── Access ────────────────────────────────────────────────────────
	ErrUnauthorized    ErrCode = "UNAUTHORIZED"
	ErrMonitorDisabled ErrCode = "MONITOR_DISABLED"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrInvalidInvitation:
		return "This quiz link is invalid or has been revoked."
	case ErrInvalidAttemptToken:
		return "Attempt token is invalid or expired."
	case ErrAttemptNotStarted:
		return "This attempt has not been started."
	case ErrAlreadySubmitted:
		return "This quiz has already been submitted."
	case ErrSubmitInProgress:
		return "A submission for this attempt is already in progress."
	case ErrNoQuestions:
		return "This quiz has no questions."

	case ErrUnauthorized:
		return "Missing or invalid credentials."
	case ErrMonitorDisabled:
		return "The monitor is not enabled on this server."

	case ErrNotFound:
		return "Resource not found."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
