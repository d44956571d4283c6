// Package gitops wraps the git commands used to version generated parsers.
package gitops

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Author identifies the author and committer of generated commits.
type Author struct {
	Name  string
	Email string
}

func (a Author) env() []string {
	return append(os.Environ(),
		"GIT_AUTHOR_NAME="+a.Name,
		"GIT_AUTHOR_EMAIL="+a.Email,
		"GIT_COMMITTER_NAME="+a.Name,
		"GIT_COMMITTER_EMAIL="+a.Email,
	)
}

// Init initializes a new git repository at dir.
func Init(dir string) error {
	if _, err := git(dir, nil, "init", "-q"); err != nil {
		return err
	}
	return nil
}

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	out, err := git(dir, nil, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// CommitAll stages all files and creates a commit. Returns the short commit hash.
func CommitAll(dir, message string, author Author) (string, error) {
	return commit(dir, message, author, "-A")
}

// CommitPaths stages only paths (relative to dir or absolute) and commits
// them. Returns the short commit hash.
func CommitPaths(dir, message string, author Author, paths ...string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("git commit: no paths given")
	}
	return commit(dir, message, author, append([]string{"--"}, paths...)...)
}

func commit(dir, message string, author Author, addArgs ...string) (string, error) {
	env := author.env()
	if _, err := git(dir, env, append([]string{"add"}, addArgs...)...); err != nil {
		return "", err
	}
	if _, err := git(dir, env, "commit", "-q", "-m", message); err != nil {
		return "", err
	}
	return git(dir, env, "rev-parse", "--short", "HEAD")
}

func git(dir string, env []string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}
