// Package regression provides a lightweight regression battery harness.
// Batteries are YAML-defined suites of synthesis tasks that can be run
// in one shot to evaluate loop behavior across known prompts.
package regression

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"codeloop/internal/task"
	"codeloop/internal/workflow"
)

// Battery is a collection of regression tasks.
type Battery struct {
	Version int    `yaml:"version"`
	Tasks   []Task `yaml:"tasks"`
}

// Task is a single regression task: a natural-language prompt plus an
// optional script of pre-baked candidates replayed instead of a live
// model call.
type Task struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Script      []string `yaml:"script,omitempty"`
	MaxAttempts int      `yaml:"max_attempts,omitempty"`
	ExpectPass  bool     `yaml:"expect_pass"`
}

// Result captures the loop outcome for one battery task.
type Result struct {
	TaskID     string
	Status     workflow.Status
	Attempts   int
	Matched    bool
	DurationMs int64
	Error      string
}

// Factory builds a fresh orchestrator for one battery task. Each task
// runs on its own orchestrator since the loop is single-shot.
type Factory func(bt Task) (*workflow.Orchestrator, error)

// LoadBattery reads a YAML battery file from disk.
func LoadBattery(path string) (*Battery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Battery
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse battery YAML: %w", err)
	}
	return &b, nil
}

// RunBattery executes all tasks in order. A task whose orchestrator
// cannot be built fails fast; loop-level outcome mismatches are
// recorded and the battery continues.
func RunBattery(ctx context.Context, b *Battery, factory Factory) ([]Result, error) {
	if b == nil || len(b.Tasks) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(b.Tasks))

	for _, bt := range b.Tasks {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		res := Result{TaskID: bt.ID}

		orch, err := factory(bt)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			return results, fmt.Errorf("task %s: %w", bt.ID, err)
		}

		out := orch.Run(ctx, task.New(bt.Description))
		res.Status = out.Status
		res.Attempts = len(out.Attempts)
		res.Matched = (out.Status == workflow.StatusSuccess) == bt.ExpectPass
		res.DurationMs = time.Since(start).Milliseconds()
		if !res.Matched {
			res.Error = fmt.Sprintf("expected pass=%v, got %s (%s)", bt.ExpectPass, out.Status, out.Failure)
		}
		results = append(results, res)
	}

	return results, nil
}

// Summarize renders a one-line-per-task report.
func Summarize(results []Result) string {
	var sb strings.Builder
	matched := 0
	for _, r := range results {
		mark := "FAIL"
		if r.Matched {
			mark = "ok"
			matched++
		}
		fmt.Fprintf(&sb, "%-4s %-20s %s attempts=%d %dms", mark, r.TaskID, r.Status, r.Attempts, r.DurationMs)
		if r.Error != "" {
			fmt.Fprintf(&sb, " (%s)", r.Error)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "%d/%d matched expectations\n", matched, len(results))
	return sb.String()
}

// DefaultBatteryPath returns the conventional battery location inside
// a workspace.
func DefaultBatteryPath(workspace string) string {
	return filepath.Join(workspace, ".codeloop", "battery.yaml")
}