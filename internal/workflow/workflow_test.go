package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"codeloop/internal/generator"
	"codeloop/internal/review"
	"codeloop/internal/sandbox"
	"codeloop/internal/synth"
	"codeloop/internal/task"
)

func TestMain(m *testing.M) {
	// go.opencensus.io (pulled in transitively by google.golang.org/genai)
	// starts a background worker in package init; it is not a test leak.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func newOrchestrator(gen generator.Generator, cfg Config) *Orchestrator {
	return New(
		gen,
		review.New(nil),
		synth.New(""),
		sandbox.NewRunner(10*time.Second),
		cfg,
	)
}

const goodPrime = `func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for i := 2; i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}`

func TestFirstAttemptSuccess(t *testing.T) {
	gen := &generator.Static{Candidates: []string{goodPrime}}
	orch := newOrchestrator(gen, Config{MaxAttempts: 3, PreValidation: true})

	out := orch.Run(context.Background(), task.New("check if a number is prime"))

	if out.Status != StatusSuccess {
		t.Fatalf("status = %s, want success (feedback: %+v)", out.Status, out.Feedback)
	}
	if len(out.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(out.Attempts))
	}
	if !out.Final.Passed || out.Final.Candidate != goodPrime {
		t.Error("final attempt does not carry the passing candidate")
	}
	if orch.Status() != StatusSuccess {
		t.Errorf("orchestrator status = %s, want success", orch.Status())
	}
}

func TestTypoRejectedThenFixed(t *testing.T) {
	typoed := `func process(n int) int {
	user_input := n * 2
	return userinput
}`
	fixed := `func double(n int) int {
	return n * 2
}`
	gen := &generator.Static{Candidates: []string{typoed, fixed}}
	orch := newOrchestrator(gen, Config{MaxAttempts: 3})

	out := orch.Run(context.Background(), task.New("calculate the doubled value"))

	if out.Status != StatusSuccess {
		t.Fatalf("status = %s, want success (feedback: %+v)", out.Status, out.Feedback)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(out.Attempts))
	}
	if out.Attempts[0].Failure != IdentifierResolutionRejection {
		t.Errorf("attempt 1 failure = %s, want identifier rejection", out.Attempts[0].Failure)
	}
	if len(out.Feedback) != 1 {
		t.Fatalf("feedback entries = %d, want 1", len(out.Feedback))
	}
	fb := out.Feedback[0]
	if fb.Source != SourceStaticReviewer || fb.Attempt != 1 {
		t.Errorf("feedback = %+v, want static-reviewer on attempt 1", fb)
	}
	if !strings.Contains(fb.Message, "userinput") || !strings.Contains(fb.Message, "user_input") {
		t.Errorf("feedback does not cite the typo and suggestion: %s", fb.Message)
	}
}

func TestReturnInLoopRejectedSpecifically(t *testing.T) {
	buggy := `func main() {
	var x int
	for {
		fmt.Scan(&x)
		return fmt.Sprintf("Result: %d", x)
	}
}`
	gen := &generator.Static{Candidates: []string{buggy}}
	orch := newOrchestrator(gen, Config{MaxAttempts: 1})

	out := orch.Run(context.Background(), task.New("create an endless loop that keeps asking for input"))

	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if len(out.Feedback) != 1 {
		t.Fatalf("feedback entries = %d, want 1", len(out.Feedback))
	}
	if !strings.Contains(out.Feedback[0].Message, "one iteration") {
		t.Errorf("feedback is generic, want the return-in-loop bug class: %s", out.Feedback[0].Message)
	}
	if out.Attempts[0].Failure != IntentInconsistencyRejection {
		t.Errorf("failure = %s, want intent rejection", out.Attempts[0].Failure)
	}
}

func TestCorrectInteractiveCandidateSucceeds(t *testing.T) {
	interactive := `func main() {
	var x int
	for {
		fmt.Scan(&x)
		fmt.Println("you entered:", x)
	}
}`
	gen := &generator.Static{Candidates: []string{interactive}}
	orch := newOrchestrator(gen, Config{MaxAttempts: 2})

	out := orch.Run(context.Background(), task.New("create an endless loop that keeps asking for input and prints each value"))

	if out.Status != StatusSuccess {
		t.Fatalf("status = %s, want success (feedback: %+v)", out.Status, out.Feedback)
	}
	if len(out.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(out.Attempts))
	}
	if !out.Attempts[0].Passed {
		t.Error("attempt not marked passed")
	}
}

func TestBoundedRetries(t *testing.T) {
	// Always fails the sandbox: wrong prime logic.
	alwaysWrong := `func isPrime(n int) bool {
	return false
}`
	gen := &generator.Static{Candidates: []string{alwaysWrong}}
	orch := newOrchestrator(gen, Config{MaxAttempts: 3})

	out := orch.Run(context.Background(), task.New("check if a number is prime"))

	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.Failure != AttemptCeilingExceeded {
		t.Errorf("failure = %s, want attempt-ceiling-exceeded", out.Failure)
	}
	if len(out.Attempts) != 3 {
		t.Errorf("attempts = %d, want exactly 3", len(out.Attempts))
	}
	if len(out.Feedback) != 3 {
		t.Errorf("feedback entries = %d, want 3", len(out.Feedback))
	}
	if gen.Calls() != 3 {
		t.Errorf("generator called %d times, want 3", gen.Calls())
	}
	if out.Final.Candidate != alwaysWrong {
		t.Error("failed outcome must still surface the last candidate")
	}
}

func TestBoundedRetriesOnPermanentRejection(t *testing.T) {
	// Fails static review every time: the loop must still terminate.
	garbage := `func f( {`
	gen := &generator.Static{Candidates: []string{garbage}}
	orch := newOrchestrator(gen, Config{MaxAttempts: 4})

	out := orch.Run(context.Background(), task.New("anything at all"))

	if out.Status != StatusFailed || len(out.Attempts) != 4 {
		t.Fatalf("status=%s attempts=%d, want failed after exactly 4", out.Status, len(out.Attempts))
	}
	for i, a := range out.Attempts {
		if a.Index != i+1 {
			t.Errorf("attempt index %d at position %d", a.Index, i)
		}
		if a.Failure != SyntaxRejection {
			t.Errorf("attempt %d failure = %s, want syntax rejection", a.Index, a.Failure)
		}
	}
}

type panickyGenerator struct{ calls int }

func (p *panickyGenerator) Generate(context.Context, task.Task, []string) (string, error) {
	p.calls++
	panic("model exploded")
}

func TestGeneratorPanicCostsOnlyTheAttempt(t *testing.T) {
	gen := &panickyGenerator{}
	orch := newOrchestrator(gen, Config{MaxAttempts: 2})

	out := orch.Run(context.Background(), task.New("anything"))

	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2", gen.calls)
	}
	for _, fb := range out.Feedback {
		if fb.Source != SourceGenerator {
			t.Errorf("feedback source = %s, want generator", fb.Source)
		}
		if !strings.Contains(fb.Message, "model exploded") {
			t.Errorf("panic text lost from feedback: %s", fb.Message)
		}
	}
}

type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingGenerator) Generate(context.Context, task.Task, []string) (string, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	// Syntactically broken so the attempt fails and the loop re-enters,
	// where the stop flag is polled.
	return "func f( {", nil
}

func TestStopIsCooperative(t *testing.T) {
	gen := &blockingGenerator{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	orch := newOrchestrator(gen, Config{MaxAttempts: 10})

	events, err := orch.Start(context.Background(), task.New("check if a number is prime"))
	if err != nil {
		t.Fatal(err)
	}

	<-gen.started
	orch.Stop()
	close(gen.release)

	for range events {
	}

	if got := orch.Status(); got != StatusStopped {
		t.Errorf("status = %s, want stopped (distinct from failed)", got)
	}
}

func TestFeedbackWindow(t *testing.T) {
	entries := []FeedbackEntry{
		{Message: "first", Attempt: 1},
		{Message: "second", Attempt: 2},
		{Message: "third", Attempt: 3},
	}
	got := recentFeedback(entries, 2)
	if len(got) != 2 || got[0] != "second" || got[1] != "third" {
		t.Errorf("recentFeedback = %v, want [second third]", got)
	}
	if recentFeedback(nil, 2) != nil {
		t.Error("empty history must yield nil")
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNotStarted, StatusInProgress, true},
		{StatusNotStarted, StatusSuccess, false},
		{StatusInProgress, StatusSuccess, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusStopped, true},
		{StatusSuccess, StatusInProgress, false},
		{StatusFailed, StatusStopped, false},
		{StatusStopped, StatusInProgress, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	gen := &blockingGenerator{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	orch := newOrchestrator(gen, Config{MaxAttempts: 1})

	events, err := orch.Start(context.Background(), task.New("anything"))
	if err != nil {
		t.Fatal(err)
	}
	<-gen.started

	if _, err := orch.Start(context.Background(), task.New("another")); err == nil {
		t.Error("second Start while running must fail")
	}

	orch.Stop()
	close(gen.release)
	for range events {
	}
}