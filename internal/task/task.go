// Package task defines the immutable task description that drives a
// synthesis session, plus the keyword heuristics that classify what
// kind of program the task is asking for.
package task

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task is an immutable natural-language description of the desired
// function. For modification tasks it also carries the existing code
// and the edit instructions.
type Task struct {
	ID               uuid.UUID
	Description      string
	ExistingCode     string
	EditInstructions string
	CreatedAt        time.Time
}

// New creates a task for generating a fresh function.
func New(description string) Task {
	return Task{
		ID:          uuid.New(),
		Description: description,
		CreatedAt:   time.Now(),
	}
}

// NewModification creates a task that edits existing code.
func NewModification(existingCode, instructions string) Task {
	return Task{
		ID:               uuid.New(),
		Description:      instructions,
		ExistingCode:     existingCode,
		EditInstructions: instructions,
		CreatedAt:        time.Now(),
	}
}

// modificationIndicators mark a task as editing existing code rather
// than producing a fresh function.
var modificationIndicators = []string{
	"existing code",
	"modifications requested",
	"modify",
	"change this code",
	"update the code",
	"fix the code",
}

// IsModification reports whether the task edits existing code.
// Such tasks are tested structurally rather than by value assertions.
func (t Task) IsModification() bool {
	if t.ExistingCode != "" {
		return true
	}
	lower := strings.ToLower(t.Description)
	for _, ind := range modificationIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// ============================================================================
// INTENT DETECTION
// ============================================================================

// Intent captures what the task text implies about the shape of a
// correct candidate. The keyword tables are heuristic and occasionally
// contradictory; the priority order below is preserved as documented
// behavior, not refined.
type Intent struct {
	WantsLoop          bool // unbounded loop expected
	WantsReturn        bool // value-producing return expected
	WantsDisplay       bool // printed output expected
	WantsErrorHandling bool // explicit error handling expected
	Interactive        bool // reads user input
}

var loopKeywords = []string{
	"endless", "keep asking", "continuously", "repeatedly",
	"loop", "again and again", "until", "while true",
}

var returnKeywords = []string{
	"return", "calculate", "compute", "find", "get",
	"check", "is", "determine",
}

var displayKeywords = []string{
	"print", "display", "show", "output",
}

var errorStrictKeywords = []string{
	"error handling", "handle error", "handle errors",
	"try/except", "exception",
}

var errorContextKeywords = []string{
	"invalid", "error", "letter", "negative",
}

var inputKeywords = []string{
	"input", "ask", "enter", "user",
}

// DetectIntent classifies the task text. The return-keyword "is" only
// counts as a whole word to avoid matching inside "display" and the like.
func DetectIntent(description string) Intent {
	lower := strings.ToLower(description)
	words := strings.Fields(lower)

	var in Intent

	for _, kw := range loopKeywords {
		if strings.Contains(lower, kw) {
			in.WantsLoop = true
			break
		}
	}

	for _, kw := range displayKeywords {
		if containsWord(words, kw) {
			in.WantsDisplay = true
			break
		}
	}

	for _, kw := range returnKeywords {
		if containsWord(words, kw) {
			in.WantsReturn = true
			break
		}
	}

	for _, kw := range inputKeywords {
		if containsWord(words, kw) {
			in.Interactive = true
			break
		}
	}

	for _, kw := range errorStrictKeywords {
		if strings.Contains(lower, kw) {
			in.WantsErrorHandling = true
			break
		}
	}
	// Contextual error intent: rejection vocabulary plus an interactive
	// loop implies the loop must survive bad input.
	if !in.WantsErrorHandling && in.Interactive && in.WantsLoop {
		for _, kw := range errorContextKeywords {
			if containsWord(words, kw) {
				in.WantsErrorHandling = true
				break
			}
		}
	}

	return in
}

func containsWord(words []string, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(strings.Join(words, " "), kw)
	}
	for _, w := range words {
		if strings.Trim(w, ".,!?:;\"'()") == kw {
			return true
		}
	}
	return false
}
