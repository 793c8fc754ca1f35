package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType tags one structured entry in the attempt audit trail.
type AuditEventType string

const (
	// Task lifecycle
	AuditTaskReceived AuditEventType = "task_received"

	// Attempt lifecycle
	AuditAttemptStart     AuditEventType = "attempt_start"
	AuditCandidateReady   AuditEventType = "candidate_ready"
	AuditGenerationFailed AuditEventType = "generation_failed"

	// Static review
	AuditReviewApproved AuditEventType = "review_approved"
	AuditReviewRejected AuditEventType = "review_rejected"

	// Test synthesis and execution
	AuditSuiteSynthesized AuditEventType = "suite_synthesized"
	AuditSandboxPass      AuditEventType = "sandbox_pass"
	AuditSandboxFail      AuditEventType = "sandbox_fail"

	// Workflow terminal states
	AuditWorkflowSuccess AuditEventType = "workflow_success"
	AuditWorkflowFailed  AuditEventType = "workflow_failed"
	AuditWorkflowStopped AuditEventType = "workflow_stopped"
)

// AuditEvent is one JSON line in the audit log. The trail reconstructs
// a full run: which candidates were produced, why each was rejected,
// and how the loop terminated.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"` // Unix milliseconds
	EventType  AuditEventType `json:"event"`
	TaskID     string         `json:"task"`
	Attempt    int            `json:"attempt,omitempty"`
	Target     string         `json:"target,omitempty"` // function name, rule name
	Success    bool           `json:"success"`
	DurationMs int64          `json:"dur_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Message    string         `json:"msg,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// AuditLogger scopes audit entries to one task run.
type AuditLogger struct {
	taskID string
}

// InitAudit opens the audit log. No-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditForTask returns an audit logger scoped to one task.
func AuditForTask(taskID string) *AuditLogger {
	return &AuditLogger{taskID: taskID}
}

// Log writes one audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.TaskID == "" {
		event.TaskID = a.taskID
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// TaskReceived logs the start of a run.
func (a *AuditLogger) TaskReceived(description string, maxAttempts int) {
	a.Log(AuditEvent{
		EventType: AuditTaskReceived,
		Success:   true,
		Message:   description,
		Fields:    map[string]any{"max_attempts": maxAttempts},
	})
}

// AttemptStart logs the beginning of one attempt.
func (a *AuditLogger) AttemptStart(attempt int) {
	a.Log(AuditEvent{
		EventType: AuditAttemptStart,
		Attempt:   attempt,
		Success:   true,
	})
}

// CandidateReady logs that the generator produced source text.
func (a *AuditLogger) CandidateReady(attempt, chars int) {
	a.Log(AuditEvent{
		EventType: AuditCandidateReady,
		Attempt:   attempt,
		Success:   true,
		Fields:    map[string]any{"chars": chars},
	})
}

// GenerationFailed logs a generator error or panic.
func (a *AuditLogger) GenerationFailed(attempt int, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditGenerationFailed,
		Attempt:   attempt,
		Success:   false,
		Error:     errMsg,
	})
}

// ReviewVerdict logs the static review outcome for a candidate.
func (a *AuditLogger) ReviewVerdict(attempt int, approved bool, detail string) {
	eventType := AuditReviewApproved
	if !approved {
		eventType = AuditReviewRejected
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Attempt:   attempt,
		Success:   approved,
		Message:   detail,
	})
}

// SuiteSynthesized logs which rule and inference path produced the suite.
func (a *AuditLogger) SuiteSynthesized(attempt int, subject, rule, path string) {
	a.Log(AuditEvent{
		EventType: AuditSuiteSynthesized,
		Attempt:   attempt,
		Target:    subject,
		Success:   true,
		Fields:    map[string]any{"rule": rule, "path": path},
	})
}

// SandboxRun logs a sandbox execution result.
func (a *AuditLogger) SandboxRun(attempt int, passed bool, kind string, durationMs int64, detail string) {
	eventType := AuditSandboxPass
	if !passed {
		eventType = AuditSandboxFail
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Attempt:    attempt,
		Success:    passed,
		DurationMs: durationMs,
		Error:      detail,
		Fields:     map[string]any{"kind": kind},
	})
}

// WorkflowFinished logs the terminal state of the loop.
func (a *AuditLogger) WorkflowFinished(status string, attempts int, durationMs int64) {
	eventType := AuditWorkflowFailed
	switch status {
	case "success":
		eventType = AuditWorkflowSuccess
	case "stopped":
		eventType = AuditWorkflowStopped
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Success:    eventType == AuditWorkflowSuccess,
		DurationMs: durationMs,
		Fields:     map[string]any{"attempts": attempts},
	})
}