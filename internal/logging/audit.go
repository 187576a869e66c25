// Worker audit trail: one JSON line per worker lifecycle event, written to a
// dedicated file so it can be grepped or loaded independently of the main log.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	AuditWorkerStart    AuditEventType = "worker_start"
	AuditWorkerComplete AuditEventType = "worker_complete"
	AuditWorkerKilled   AuditEventType = "worker_killed"
	AuditWorkerError    AuditEventType = "worker_error"
)

// AuditEvent is one audit line.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"` // Unix milliseconds
	EventType  AuditEventType `json:"event"`
	JobID      string         `json:"job"`
	Kind       string         `json:"kind,omitempty"`
	PID        int            `json:"pid,omitempty"`
	Status     string         `json:"status,omitempty"`
	Signal     string         `json:"signal,omitempty"`
	DurationMs int64          `json:"dur_ms,omitempty"`
	Message    string         `json:"msg,omitempty"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger = &AuditLogger{}
)

// AuditLogger writes audit events to the audit file.
type AuditLogger struct{}

// InitAudit opens (or creates) the audit file at path. An empty path leaves
// auditing disabled.
func InitAudit(path string) error {
	if path == "" {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	return auditLogger
}

// Log writes an audit event. It is a no-op until InitAudit succeeds.
func (a *AuditLogger) Log(event AuditEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

// WorkerStart logs a worker process start
func (a *AuditLogger) WorkerStart(jobID, kind string, pid int) {
	a.Log(AuditEvent{EventType: AuditWorkerStart, JobID: jobID, Kind: kind, PID: pid})
}

// WorkerComplete logs a worker that exited with an outcome
func (a *AuditLogger) WorkerComplete(jobID, kind string, pid int, status string, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditWorkerComplete,
		JobID:      jobID,
		Kind:       kind,
		PID:        pid,
		Status:     status,
		DurationMs: durationMs,
	})
}

// WorkerKilled logs a forced termination
func (a *AuditLogger) WorkerKilled(jobID, kind string, pid int, signal string) {
	a.Log(AuditEvent{EventType: AuditWorkerKilled, JobID: jobID, Kind: kind, PID: pid, Signal: signal})
}

// WorkerError logs a worker that could not be run or whose output was unusable
func (a *AuditLogger) WorkerError(jobID, kind string, pid int, msg string) {
	a.Log(AuditEvent{EventType: AuditWorkerError, JobID: jobID, Kind: kind, PID: pid, Message: msg})
}
