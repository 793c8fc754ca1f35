// Package workflow drives the bounded generate-review-test loop: a
// strict state machine that sequences the generator, static reviewer,
// test synthesizer, and sandbox runner, folding failures back into the
// next generation request.
package workflow

import (
	"time"

	"codeloop/internal/review"
	"codeloop/internal/sandbox"
)

// Status is the workflow state. Transitions are monotonic:
// NotStarted -> InProgress -> {Success, Failed, Stopped}. There is no
// transition out of a terminal state, and Stopped is distinct from
// Failed.
type Status int

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusSuccess
	StatusFailed
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not-started"
	case StatusInProgress:
		return "in-progress"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusStopped
}

// canTransition encodes the legal status moves.
func canTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case StatusNotStarted:
		return to == StatusInProgress
	case StatusInProgress:
		return to.Terminal()
	}
	return false
}

// FeedbackSource identifies which component produced a feedback entry.
type FeedbackSource int

const (
	SourceGenerator FeedbackSource = iota
	SourceStaticReviewer
	SourceSandboxRunner
)

func (s FeedbackSource) String() string {
	switch s {
	case SourceGenerator:
		return "generator"
	case SourceStaticReviewer:
		return "static-reviewer"
	case SourceSandboxRunner:
		return "sandbox-runner"
	default:
		return "unknown"
	}
}

// FeedbackEntry records why an attempt failed. The sequence is
// append-only; only the newest entries influence the next generation
// request, older ones remain for audit.
type FeedbackEntry struct {
	Source  FeedbackSource
	Message string
	Attempt int
}

// FailureKind is the error taxonomy for a finished attempt or loop.
type FailureKind int

const (
	FailureNone FailureKind = iota
	GenerationFailure
	SyntaxRejection
	IdentifierResolutionRejection
	StructuralPolicyRejection
	IntentInconsistencyRejection
	SandboxTimeout
	AssertionFailure
	AttemptCeilingExceeded
	OperatorStop
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case GenerationFailure:
		return "generation-failure"
	case SyntaxRejection:
		return "syntax-rejection"
	case IdentifierResolutionRejection:
		return "identifier-resolution-rejection"
	case StructuralPolicyRejection:
		return "structural-policy-rejection"
	case IntentInconsistencyRejection:
		return "intent-inconsistency-rejection"
	case SandboxTimeout:
		return "sandbox-timeout"
	case AssertionFailure:
		return "assertion-failure"
	case AttemptCeilingExceeded:
		return "attempt-ceiling-exceeded"
	case OperatorStop:
		return "operator-stop"
	default:
		return "unknown"
	}
}

// rejectionFailure maps a review rejection onto the taxonomy.
func rejectionFailure(kind review.RejectionKind) FailureKind {
	switch kind {
	case review.RejectionSyntax:
		return SyntaxRejection
	case review.RejectionIdentifier:
		return IdentifierResolutionRejection
	case review.RejectionIntent, review.RejectionAdvisory:
		return IntentInconsistencyRejection
	default:
		return StructuralPolicyRejection
	}
}

// sandboxFailure maps a sandbox outcome onto the taxonomy.
func sandboxFailure(kind sandbox.OutcomeKind) FailureKind {
	if kind == sandbox.OutcomeTimeout {
		return SandboxTimeout
	}
	return AssertionFailure
}

// AttemptRecord is one finalized generation-review-test cycle.
type AttemptRecord struct {
	Index      int
	Candidate  string
	Approved   bool
	Failure    FailureKind
	TestSource string
	Passed     bool
	Elapsed    time.Duration
}

// Outcome is what the loop hands back on every exit path: the final
// candidate (verified or not) plus the full history, so the operator
// can inspect why convergence failed.
type Outcome struct {
	Status   Status
	Failure  FailureKind
	Final    AttemptRecord
	Attempts []AttemptRecord
	Feedback []FeedbackEntry
	Elapsed  time.Duration
}

// EventKind tags the messages emitted to an observing front end.
type EventKind int

const (
	EventStatus EventKind = iota
	EventLog
	EventCode
	EventAttemptDone
	EventLintFinding
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventLog:
		return "log"
	case EventCode:
		return "code"
	case EventAttemptDone:
		return "attempt-done"
	case EventLintFinding:
		return "lint"
	default:
		return "unknown"
	}
}

// Event is an immutable progress snapshot for the presentation loop.
type Event struct {
	Kind    EventKind
	Status  Status
	Message string
	Attempt int
	Code    string
}
