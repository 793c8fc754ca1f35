package regression

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeloop/internal/generator"
	"codeloop/internal/review"
	"codeloop/internal/sandbox"
	"codeloop/internal/synth"
	"codeloop/internal/workflow"
)

func scriptedFactory(bt Task) (*workflow.Orchestrator, error) {
	if len(bt.Script) == 0 {
		return nil, fmt.Errorf("task %s has no script", bt.ID)
	}
	maxAttempts := bt.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return workflow.New(
		&generator.Static{Candidates: bt.Script},
		review.New(nil),
		synth.New(""),
		sandbox.NewRunner(10*time.Second),
		workflow.Config{MaxAttempts: maxAttempts},
	), nil
}

func TestLoadBattery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battery.yaml")
	content := `version: 1
tasks:
  - id: prime-smoke
    description: check if a number is prime
    expect_pass: true
    script:
      - |
        func isPrime(n int) bool {
            return n > 1
        }
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write battery: %v", err)
	}

	b, err := LoadBattery(path)
	if err != nil {
		t.Fatalf("LoadBattery failed: %v", err)
	}
	if b.Version != 1 {
		t.Fatalf("Version = %d, want 1", b.Version)
	}
	if len(b.Tasks) != 1 || b.Tasks[0].ID != "prime-smoke" {
		t.Fatalf("unexpected tasks: %+v", b.Tasks)
	}
	if !b.Tasks[0].ExpectPass || len(b.Tasks[0].Script) != 1 {
		t.Fatalf("task fields lost in parse: %+v", b.Tasks[0])
	}
}

func TestRunBatteryMatchesExpectations(t *testing.T) {
	goodPrime := `func isPrime(n int) bool {
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
	b := &Battery{
		Version: 1,
		Tasks: []Task{
			{
				ID:          "prime-pass",
				Description: "check if a number is prime",
				Script:      []string{goodPrime},
				ExpectPass:  true,
			},
			{
				ID:          "prime-known-bad",
				Description: "check if a number is prime",
				Script:      []string{"func isPrime(n int) bool {\n\treturn false\n}"},
				MaxAttempts: 2,
				ExpectPass:  false,
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	results, err := RunBattery(ctx, b, scriptedFactory)
	if err != nil {
		t.Fatalf("RunBattery failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results len = %d, want 2", len(results))
	}
	if !results[0].Matched || results[0].Status != workflow.StatusSuccess {
		t.Errorf("prime-pass: %+v", results[0])
	}
	if !results[1].Matched || results[1].Status != workflow.StatusFailed {
		t.Errorf("prime-known-bad: %+v", results[1])
	}
	if results[1].Attempts != 2 {
		t.Errorf("prime-known-bad attempts = %d, want 2", results[1].Attempts)
	}
}

func TestRunBatteryFailsFastOnFactoryError(t *testing.T) {
	b := &Battery{
		Version: 1,
		Tasks: []Task{
			{ID: "broken", Description: "anything"},
			{ID: "after", Description: "never reached", Script: []string{"func f() {}"}},
		},
	}

	results, err := RunBattery(context.Background(), b, scriptedFactory)
	if err == nil {
		t.Fatal("expected fail-fast error from factory")
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result before abort, got %d", len(results))
	}
	if results[0].Error == "" {
		t.Error("factory failure not recorded on the result")
	}
}

func TestRunBatteryEmpty(t *testing.T) {
	results, err := RunBattery(context.Background(), &Battery{}, scriptedFactory)
	if err != nil {
		t.Fatalf("RunBattery returned error: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestSummarize(t *testing.T) {
	results := []Result{
		{TaskID: "a", Status: workflow.StatusSuccess, Attempts: 1, Matched: true, DurationMs: 12},
		{TaskID: "b", Status: workflow.StatusFailed, Attempts: 3, Matched: false, Error: "expected pass=true, got failed (attempt-ceiling-exceeded)"},
	}
	out := Summarize(results)
	if !strings.Contains(out, "1/2 matched expectations") {
		t.Errorf("summary tally wrong:\n%s", out)
	}
	if !strings.Contains(out, "ok") || !strings.Contains(out, "FAIL") {
		t.Errorf("per-task marks missing:\n%s", out)
	}
}

func TestDefaultBatteryPath(t *testing.T) {
	path := DefaultBatteryPath("/tmp/ws")
	if !strings.Contains(path, ".codeloop") || !strings.Contains(path, "battery.yaml") {
		t.Fatalf("unexpected battery path: %s", path)
	}
}