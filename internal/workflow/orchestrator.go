package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"codeloop/internal/generator"
	"codeloop/internal/lint"
	"codeloop/internal/logging"
	"codeloop/internal/review"
	"codeloop/internal/sandbox"
	"codeloop/internal/signature"
	"codeloop/internal/synth"
	"codeloop/internal/task"
)

// Config bounds the retry loop.
type Config struct {
	MaxAttempts   int
	PreValidation bool
}

// DefaultConfig returns the standard loop bounds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		PreValidation: true,
	}
}

// Orchestrator sequences Generator -> StaticReviewer -> TestSynthesizer
// -> SandboxRunner under a bounded attempt ceiling. All collaborators
// are injected at construction; the orchestrator owns no globals.
type Orchestrator struct {
	gen      generator.Generator
	reviewer *review.Reviewer
	synther  *synth.Synthesizer
	runner   *sandbox.Runner
	cfg      Config

	stopFlag atomic.Bool

	mu      sync.Mutex
	status  Status
	events  chan Event
	running bool
}

// New creates an orchestrator. Every collaborator is required except
// that the reviewer's advisory pass may internally be nil.
func New(gen generator.Generator, reviewer *review.Reviewer, synther *synth.Synthesizer, runner *sandbox.Runner, cfg Config) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Orchestrator{
		gen:      gen,
		reviewer: reviewer,
		synther:  synther,
		runner:   runner,
		cfg:      cfg,
		status:   StatusNotStarted,
	}
}

// Status returns the current workflow status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *Orchestrator) setStatus(to Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !canTransition(o.status, to) {
		logging.WorkflowError("illegal status transition %s -> %s ignored", o.status, to)
		return
	}
	o.status = to
	o.emitLocked(Event{Kind: EventStatus, Status: to})
}

// Stop requests a cooperative stop. The flag is polled once per loop
// iteration, so an in-flight sandbox execution runs to its own
// timeout first.
func (o *Orchestrator) Stop() {
	o.stopFlag.Store(true)
}

// Events returns the progress stream. Nil until Start is called.
func (o *Orchestrator) Events() <-chan Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emitLocked(ev)
}

func (o *Orchestrator) emitLocked(ev Event) {
	if o.events == nil {
		return
	}
	select {
	case o.events <- ev:
	default:
		// A stalled observer must not block the loop.
	}
}

// Start runs the loop on a dedicated goroutine, streaming progress
// through Events. The worker owns all attempt data; observers only
// ever see immutable snapshots.
func (o *Orchestrator) Start(ctx context.Context, t task.Task) (<-chan Event, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, fmt.Errorf("workflow already running")
	}
	o.running = true
	o.events = make(chan Event, 64)
	events := o.events
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			close(o.events)
			o.running = false
			o.mu.Unlock()
		}()
		o.Run(ctx, t)
	}()

	return events, nil
}

// Run executes the loop synchronously and returns the outcome. Every
// exit path surfaces the last candidate and the accumulated feedback.
func (o *Orchestrator) Run(ctx context.Context, t task.Task) Outcome {
	start := time.Now()
	log := logging.Get(logging.CategoryWorkflow)
	audit := logging.AuditForTask(t.ID.String())

	o.setStatus(StatusInProgress)
	log.Info("workflow started for task %s (max %d attempts)", t.ID, o.cfg.MaxAttempts)
	audit.TaskReceived(t.Description, o.cfg.MaxAttempts)

	var (
		attempts []AttemptRecord
		feedback []FeedbackEntry
		final    AttemptRecord
		failure  FailureKind
	)

	appendFeedback := func(src FeedbackSource, attempt int, msg string) {
		feedback = append(feedback, FeedbackEntry{Source: src, Message: msg, Attempt: attempt})
		o.emit(Event{Kind: EventLog, Attempt: attempt, Message: fmt.Sprintf("[%s] %s", src, msg)})
	}

	finish := func(st Status, k FailureKind) Outcome {
		o.setStatus(st)
		failure = k
		log.Info("workflow finished: %s (%s) after %d attempts", st, k, len(attempts))
		audit.WorkflowFinished(st.String(), len(attempts), time.Since(start).Milliseconds())
		return Outcome{
			Status:   st,
			Failure:  failure,
			Final:    final,
			Attempts: attempts,
			Feedback: feedback,
			Elapsed:  time.Since(start),
		}
	}

	for {
		if o.stopFlag.Load() || ctx.Err() != nil {
			return finish(StatusStopped, OperatorStop)
		}
		if len(attempts) >= o.cfg.MaxAttempts {
			return finish(StatusFailed, AttemptCeilingExceeded)
		}

		index := len(attempts) + 1
		attemptStart := time.Now()
		record := AttemptRecord{Index: index}
		log.Info("attempt %d/%d", index, o.cfg.MaxAttempts)
		audit.AttemptStart(index)

		finishAttempt := func(k FailureKind, passed bool) {
			record.Failure = k
			record.Passed = passed
			record.Elapsed = time.Since(attemptStart)
			attempts = append(attempts, record)
			final = record
			o.emit(Event{Kind: EventAttemptDone, Attempt: index, Message: k.String()})
		}

		code, err := o.generate(ctx, t, recentFeedback(feedback, 2))
		if err != nil {
			audit.GenerationFailed(index, err.Error())
			appendFeedback(SourceGenerator, index, err.Error())
			finishAttempt(GenerationFailure, false)
			continue
		}
		record.Candidate = code
		audit.CandidateReady(index, len(code))
		o.emit(Event{Kind: EventCode, Attempt: index, Code: code})

		verdict := o.reviewer.Review(ctx, t, code)
		audit.ReviewVerdict(index, verdict.Approved, verdict.Message)
		if !verdict.Approved {
			appendFeedback(SourceStaticReviewer, index, verdict.Message)
			finishAttempt(rejectionFailure(verdict.Kind), false)
			continue
		}
		record.Approved = true

		// Advisory style pass: informational only, never gates.
		for _, f := range lint.Check(code) {
			o.emit(Event{Kind: EventLintFinding, Attempt: index,
				Message: fmt.Sprintf("line %d: %s", f.Line, f.Message)})
		}

		sig, _ := signature.Extract(code)
		suite := o.synthesize(t, sig, code)
		record.TestSource = suite.Source
		log.Debug("suite via %s (rule %q)", suite.Path, suite.RuleName)
		audit.SuiteSynthesized(index, sig.Name, suite.RuleName, suite.Path.String())

		if o.cfg.PreValidation && !suite.Structural && !sig.IsUnknown() &&
			len(suite.Args) == len(sig.Params) {
			pre := o.runner.Prevalidate(ctx, code, sig, suite.Args)
			switch pre.Kind {
			case sandbox.CallTimeout:
				appendFeedback(SourceSandboxRunner, index,
					fmt.Sprintf("calling %s directly %s: %s", sig.Name, pre.Kind, pre.Detail))
				finishAttempt(SandboxTimeout, false)
				continue
			case sandbox.CallPanics:
				appendFeedback(SourceSandboxRunner, index,
					fmt.Sprintf("calling %s directly failed: %s", sig.Name, pre.Detail))
				finishAttempt(AssertionFailure, false)
				continue
			}
		}

		res := o.runner.Run(ctx, code, suite)
		audit.SandboxRun(index, res.Passed, res.Kind.String(), res.Elapsed.Milliseconds(), res.Detail)
		if !res.Passed {
			appendFeedback(SourceSandboxRunner, index, res.Detail)
			finishAttempt(sandboxFailure(res.Kind), false)
			continue
		}

		finishAttempt(FailureNone, true)
		return finish(StatusSuccess, FailureNone)
	}
}

// generate calls the generator with panic conversion: an exploding
// collaborator costs its attempt, never the loop.
func (o *Orchestrator) generate(ctx context.Context, t task.Task, fb []string) (code string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("generator panic: %v", rec)
		}
	}()
	code, err = o.gen.Generate(ctx, t, fb)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("generator returned empty code")
	}
	return code, nil
}

// synthesize wraps the synthesizer with the same panic conversion.
func (o *Orchestrator) synthesize(t task.Task, sig signature.Signature, code string) (suite synth.Suite) {
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("test synthesis failed: %v", rec)
			suite = synth.Suite{
				Source: "func runTests() error {\n" +
					fmt.Sprintf("\treturn errors.New(%q)\n", msg) +
					"}\n",
				Path: synth.PathLastResort,
			}
		}
	}()
	return o.synther.Synthesize(t, sig, code)
}

// recentFeedback returns the newest n messages, oldest first.
func recentFeedback(entries []FeedbackEntry, n int) []string {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) < n {
		n = len(entries)
	}
	out := make([]string, 0, n)
	for _, e := range entries[len(entries)-n:] {
		out = append(out, e.Message)
	}
	return out
}
