package proctor

// Phase is the session state every detector consults before acting.
type Phase int32

const (
	PhaseLoading Phase = iota
	PhaseAwaitingConfirmation
	PhaseActive
	PhaseSubmitting
	PhaseSubmittedClean
	PhaseSubmittedFlagged
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseAwaitingConfirmation:
		return "awaiting_confirmation"
	case PhaseActive:
		return "active"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSubmittedClean:
		return "submitted_clean"
	case PhaseSubmittedFlagged:
		return "submitted_flagged"
	default:
		return "unknown"
	}
}

// Terminal reports whether p is one of the submitted phases.
func (p Phase) Terminal() bool {
	return p == PhaseSubmittedClean || p == PhaseSubmittedFlagged
}
