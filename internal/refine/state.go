package refine

// State is a step of the refinement loop.
type State int

const (
	StateInit State = iota
	StateGenerating
	StateExecuting
	StateValidating
	StateDoneSuccess
	StateDoneExhausted
	StateDoneFatal
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateGenerating:
		return "generating"
	case StateExecuting:
		return "executing"
	case StateValidating:
		return "validating"
	case StateDoneSuccess:
		return "done_success"
	case StateDoneExhausted:
		return "done_exhausted"
	case StateDoneFatal:
		return "done_fatal"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the loop stops in s.
func (s State) Terminal() bool {
	return s >= StateDoneSuccess
}
