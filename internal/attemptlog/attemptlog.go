// Package attemptlog writes diagnostics for refinement runs: one CSV row
// per attempt and a directory per run with each attempt's source, report
// and output.
package attemptlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/cleared-dev/parsergen/internal/refine"
	"github.com/cleared-dev/parsergen/internal/sample"
)

const (
	logFile = "attempt-log.csv"
	runsDir = "runs"
)

// Entry is one row in the attempt log.
type Entry struct {
	Timestamp  string `csv:"timestamp"` // RFC3339
	RunID      string `csv:"run_id"`
	Target     string `csv:"target"`
	Attempt    int    `csv:"attempt"`
	Outcome    string `csv:"outcome"`
	DurationMS int64  `csv:"duration_ms"`
	Summary    string `csv:"summary"`
	State      string `csv:"state"` // final run state, on every row of the run
}

// Time parses the entry timestamp.
func (e Entry) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, e.Timestamp)
}

// Entries converts the attempts of res to log rows.
func Entries(res *refine.Result) []Entry {
	entries := make([]Entry, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		entries = append(entries, Entry{
			Timestamp:  a.StartedAt.UTC().Format(time.RFC3339),
			RunID:      res.RunID,
			Target:     res.Target,
			Attempt:    a.Index,
			Outcome:    string(a.Outcome),
			DurationMS: a.Duration.Milliseconds(),
			Summary:    summarize(a),
			State:      res.State.String(),
		})
	}
	return entries
}

func summarize(a refine.Attempt) string {
	switch {
	case a.GenerationErr != nil:
		return a.GenerationErr.Error()
	case a.ExecutionErr != nil:
		return a.ExecutionErr.Error()
	case a.Verdict != nil:
		return a.Verdict.Summary()
	}
	return ""
}

// Append writes entries to <logsDir>/attempt-log.csv, creating the file and
// header if needed.
func Append(logsDir string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(logsDir, logFile)
	needsHeader := false
	if info, err := os.Stat(path); os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening attempt log: %w", err)
	}
	defer f.Close()

	if needsHeader {
		err = gocsv.Marshal(&entries, f)
	} else {
		err = gocsv.MarshalWithoutHeaders(&entries, f)
	}
	if err != nil {
		return fmt.Errorf("writing attempt log: %w", err)
	}
	return nil
}

// Read returns all entries from <logsDir>/attempt-log.csv.
// Returns nil if the file does not exist.
func Read(logsDir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(logsDir, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening attempt log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	if err := gocsv.UnmarshalFile(f, &entries); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading attempt log: %w", err)
	}
	return entries, nil
}

// WriteRun stores each attempt's source, report and output under
// <logsDir>/runs/<run-id>/ and returns that directory.
func WriteRun(logsDir string, res *refine.Result) (string, error) {
	dir := filepath.Join(logsDir, runsDir, res.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}

	for _, a := range res.Attempts {
		prefix := filepath.Join(dir, fmt.Sprintf("attempt-%d", a.Index))
		if a.Source != "" {
			src := "//go:build ignore\n\n" + a.Source
			if err := os.WriteFile(prefix+".go", []byte(src), 0o644); err != nil {
				return "", fmt.Errorf("writing attempt %d source: %w", a.Index, err)
			}
		}
		if a.Feedback != "" {
			if err := os.WriteFile(prefix+".feedback.txt", []byte(a.Feedback), 0o644); err != nil {
				return "", fmt.Errorf("writing attempt %d feedback: %w", a.Index, err)
			}
		}
		if a.Report != "" {
			if err := os.WriteFile(prefix+".report.txt", []byte(a.Report), 0o644); err != nil {
				return "", fmt.Errorf("writing attempt %d report: %w", a.Index, err)
			}
		}
		if a.Output != nil {
			if err := writeOutput(prefix+".output.csv", a); err != nil {
				return "", err
			}
		}
	}
	return dir, nil
}

func writeOutput(path string, a refine.Attempt) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing attempt %d output: %w", a.Index, err)
	}
	defer f.Close()
	if err := sample.WriteTable(f, a.Output); err != nil {
		return fmt.Errorf("writing attempt %d output: %w", a.Index, err)
	}
	return nil
}
