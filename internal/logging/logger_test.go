package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// resetState puts the package globals back to their zero state so one
// test's Initialize does not bleed into the next.
func resetState() {
	CloseAudit()
	CloseAll()
	configMu.Lock()
	config = loggingConfig{}
	logLevel = LevelInfo
	configMu.Unlock()
	logsDir = ""
	workspace = ""
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, ".codeloop")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestAllCategoriesLog(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true,
				"workflow": true,
				"generator": true,
				"review": true,
				"synth": true,
				"sandbox": true,
				"lint": true
			}
		}
	}`)

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	categories := []Category{
		CategoryBoot, CategoryWorkflow, CategoryGenerator,
		CategoryReview, CategorySynth, CategorySandbox, CategoryLint,
	}
	for _, cat := range categories {
		Get(cat).Info("test message for %s", cat)
	}
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, ".codeloop", "logs"))
	if err != nil {
		t.Fatalf("logs dir: %v", err)
	}
	for _, cat := range categories {
		found := false
		for _, e := range entries {
			if strings.Contains(e.Name(), "_"+string(cat)+".log") {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no log file for category %s", cat)
		}
	}
}

func TestProductionModeWritesNothing(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	// No config file at all: production mode.
	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Workflow("should be dropped")
	Boot("also dropped")
	CloseAll()

	if _, err := os.Stat(filepath.Join(dir, ".codeloop", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory created in production mode")
	}
}

func TestDisabledCategoryIsNoOp(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {"sandbox": false}
		}
	}`)

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Sandbox("dropped")
	Workflow("kept")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, ".codeloop", "logs"))
	if err != nil {
		t.Fatalf("logs dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "_sandbox.log") {
			t.Error("disabled category produced a log file")
		}
	}
	if !IsCategoryEnabled(CategoryWorkflow) {
		t.Error("category absent from the map should default to enabled")
	}
}

func TestLogLevelFiltering(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"logging": {
			"level": "warn",
			"debug_mode": true
		}
	}`)

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	l := Get(CategoryWorkflow)
	l.Debug("debug dropped")
	l.Info("info dropped")
	l.Warn("warn kept")
	l.Error("error kept")
	CloseAll()

	data := readCategoryLog(t, dir, CategoryWorkflow)
	if strings.Contains(data, "debug dropped") || strings.Contains(data, "info dropped") {
		t.Error("messages below warn level were written")
	}
	if !strings.Contains(data, "warn kept") || !strings.Contains(data, "error kept") {
		t.Error("warn/error messages missing")
	}
}

func TestConcurrentGetAndLog(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, `{"logging": {"level": "debug", "debug_mode": true}}`)

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Get(CategorySynth).Info("writer %d", n)
		}(i)
	}
	wg.Wait()
	CloseAll()

	data := readCategoryLog(t, dir, CategorySynth)
	if got := strings.Count(data, "writer "); got != 16 {
		t.Errorf("log lines = %d, want 16", got)
	}
}

func TestAuditTrail(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, `{"logging": {"level": "debug", "debug_mode": true}}`)

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := InitAudit(); err != nil {
		t.Fatalf("InitAudit: %v", err)
	}

	audit := AuditForTask("task-123")
	audit.TaskReceived("check if a number is prime", 5)
	audit.AttemptStart(1)
	audit.ReviewVerdict(1, false, "undefined name")
	audit.AttemptStart(2)
	audit.SandboxRun(2, true, "passed", 42, "")
	audit.WorkflowFinished("success", 2, 1200)
	CloseAudit()

	entries, err := os.ReadDir(filepath.Join(dir, ".codeloop", "logs"))
	if err != nil {
		t.Fatalf("logs dir: %v", err)
	}
	var auditData string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_audit.log") {
			raw, err := os.ReadFile(filepath.Join(dir, ".codeloop", "logs", e.Name()))
			if err != nil {
				t.Fatal(err)
			}
			auditData = string(raw)
		}
	}
	if auditData == "" {
		t.Fatal("no audit log written")
	}

	lines := strings.Split(strings.TrimSpace(auditData), "\n")
	if len(lines) != 6 {
		t.Fatalf("audit lines = %d, want 6", len(lines))
	}
	var first AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 is not JSON: %v", err)
	}
	if first.EventType != AuditTaskReceived || first.TaskID != "task-123" {
		t.Errorf("first event = %+v, want task_received for task-123", first)
	}
	var last AuditEvent
	if err := json.Unmarshal([]byte(lines[5]), &last); err != nil {
		t.Fatalf("line 6 is not JSON: %v", err)
	}
	if last.EventType != AuditWorkflowSuccess || !last.Success {
		t.Errorf("last event = %+v, want workflow_success", last)
	}
}

func TestAuditNoOpInProductionMode(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := InitAudit(); err != nil {
		t.Fatalf("InitAudit: %v", err)
	}

	AuditForTask("t").AttemptStart(1)
	CloseAudit()

	if _, err := os.Stat(filepath.Join(dir, ".codeloop", "logs")); !os.IsNotExist(err) {
		t.Error("audit wrote files in production mode")
	}
}

func TestTimerLogsDuration(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, `{"logging": {"level": "debug", "debug_mode": true}}`)

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	timer := StartTimer(CategorySandbox, "suite execution")
	if d := timer.Stop(); d < 0 {
		t.Errorf("negative duration %v", d)
	}
	CloseAll()

	data := readCategoryLog(t, dir, CategorySandbox)
	if !strings.Contains(data, "suite execution completed in") {
		t.Error("timer message missing from log")
	}
}

func readCategoryLog(t *testing.T, dir string, cat Category) string {
	t.Helper()
	logs := filepath.Join(dir, ".codeloop", "logs")
	entries, err := os.ReadDir(logs)
	if err != nil {
		t.Fatalf("logs dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "_"+string(cat)+".log") {
			raw, err := os.ReadFile(filepath.Join(logs, e.Name()))
			if err != nil {
				t.Fatal(err)
			}
			return string(raw)
		}
	}
	t.Fatalf("no log file for %s", cat)
	return ""
}