// Package generator defines the untrusted code-producing collaborator
// and its implementations. Nothing here is trusted to emit valid
// code; static review exists because this contract can return
// anything.
package generator

import (
	"context"
	"errors"
	"strings"

	"codeloop/internal/task"
)

// Generator produces candidate source for a task. feedback carries
// the most recent failure messages, newest last. Implementations may
// return an error; the orchestrator treats that as the attempt's
// rejection.
type Generator interface {
	Generate(ctx context.Context, t task.Task, feedback []string) (string, error)
}

// ErrExhausted is returned by Static when its scripted candidates run
// out before the loop does.
var ErrExhausted = errors.New("generator: no more scripted candidates")

// Static replays a fixed sequence of candidates, one per call. The
// last candidate repeats once the script is exhausted unless Strict
// is set. Used by script mode and by tests.
type Static struct {
	Candidates []string
	Strict     bool
	calls      int
}

// Generate returns the next scripted candidate.
func (s *Static) Generate(_ context.Context, _ task.Task, _ []string) (string, error) {
	if len(s.Candidates) == 0 {
		return "", ErrExhausted
	}
	idx := s.calls
	s.calls++
	if idx >= len(s.Candidates) {
		if s.Strict {
			return "", ErrExhausted
		}
		idx = len(s.Candidates) - 1
	}
	return s.Candidates[idx], nil
}

// Calls reports how many times Generate has been invoked.
func (s *Static) Calls() int {
	return s.calls
}

// CleanCode strips the prose and markdown fencing that models wrap
// around source text, leaving just the code.
func CleanCode(raw string) string {
	text := strings.TrimSpace(raw)

	// Prefer a fenced block when one exists.
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		// Drop the language tag on the fence line.
		if nl := strings.Index(rest, "\n"); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = strings.TrimSpace(rest)
	}

	// Drop leading prose lines before the first code-looking line.
	lines := strings.Split(text, "\n")
	start := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") ||
			strings.HasPrefix(trimmed, "func ") ||
			strings.HasPrefix(trimmed, "import ") ||
			strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "var ") ||
			strings.HasPrefix(trimmed, "const ") ||
			strings.HasPrefix(trimmed, "type ") {
			start = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}
