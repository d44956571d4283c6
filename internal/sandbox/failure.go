package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cleared-dev/parsergen/internal/stmt"
)

// Executor runs a candidate routine against a document.
// A non-nil error is a *Failure unless the caller's context ended.
type Executor interface {
	Execute(ctx context.Context, source string, doc stmt.Document) (*stmt.Table, error)
}

// FailureKind classifies an execution failure.
type FailureKind string

const (
	FailureLoad    FailureKind = "load"    // syntax, imports, entry point
	FailureRuntime FailureKind = "runtime" // returned error, panic, nil table
	FailureTimeout FailureKind = "timeout"
	FailureCrash   FailureKind = "crash" // worker process died
)

// Failure is an execution failure captured as data.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Trace   string      `json:"trace,omitempty"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func loadFailure(format string, args ...any) *Failure {
	return &Failure{Kind: FailureLoad, Message: fmt.Sprintf(format, args...)}
}

func runtimeFailure(format string, args ...any) *Failure {
	return &Failure{Kind: FailureRuntime, Message: fmt.Sprintf(format, args...)}
}

// appendTrace adds captured routine output to the failure trace.
func (f *Failure) appendTrace(label, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if f.Trace != "" {
		f.Trace += "\n"
	}
	f.Trace += label + ":\n" + text
}
