package refine

import (
	"time"

	"github.com/cleared-dev/parsergen/internal/sandbox"
	"github.com/cleared-dev/parsergen/internal/stmt"
	"github.com/cleared-dev/parsergen/internal/validate"
)

// Outcome is how an attempt ended.
type Outcome string

const (
	OutcomeGenerationFailed Outcome = "generation_failed"
	OutcomeExecutionFailed  Outcome = "execution_failed"
	OutcomeMismatch         Outcome = "mismatch"
	OutcomePass             Outcome = "pass"
)

// Attempt records one generate-execute-validate iteration. It is not
// modified once appended to a Result.
type Attempt struct {
	Index    int    // 1-based
	Feedback string // report fed into this attempt, empty for the first
	Source   string

	GenerationErr error
	ExecutionErr  *sandbox.Failure
	Output        *stmt.Table
	Verdict       *validate.Verdict

	Outcome Outcome
	// Report is the failure report this attempt produced for the next one.
	Report string

	StartedAt time.Time
	Duration  time.Duration
}

// Result is the outcome of a run.
type Result struct {
	RunID    string
	Target   string
	State    State
	Artifact string // source of the passing attempt
	Attempts []Attempt
	Err      error
}

// Success reports whether the run produced an artifact.
func (r *Result) Success() bool {
	return r.State == StateDoneSuccess
}

// Last returns the most recent attempt, or nil.
func (r *Result) Last() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}
