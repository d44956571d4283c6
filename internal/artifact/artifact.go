// Package artifact persists accepted parsing routines.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned by Load when no artifact exists for a target.
var ErrNotFound = errors.New("parser artifact not found")

// header keeps saved routines out of any Go build of the workspace.
const header = "//go:build ignore\n\n"

// Store saves routines as <dir>/<target>_parser.go.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the artifact path for a target.
func (s *Store) Path(targetName string) string {
	return filepath.Join(s.Dir, targetName+"_parser.go")
}

// Save writes source for targetName, replacing any previous artifact, and
// returns the written path.
func (s *Store) Save(targetName, source string, runID string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating parsers dir: %w", err)
	}

	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "// Parser for %s generated by parsergen run %s at %s.\n\n",
		targetName, runID, time.Now().UTC().Format(time.RFC3339))
	b.WriteString(strings.TrimSpace(source))
	b.WriteByte('\n')

	path := s.Path(targetName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("replacing artifact: %w", err)
	}
	return path, nil
}

// Load returns the saved routine for targetName without the build header.
func (s *Store) Load(targetName string) (string, error) {
	data, err := os.ReadFile(s.Path(targetName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, targetName)
		}
		return "", fmt.Errorf("reading artifact: %w", err)
	}
	return strings.TrimPrefix(string(data), header), nil
}

// Exists reports whether an artifact is saved for targetName.
func (s *Store) Exists(targetName string) bool {
	_, err := os.Stat(s.Path(targetName))
	return err == nil
}
