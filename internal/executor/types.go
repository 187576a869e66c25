// Package executor runs generation jobs in isolated worker processes.
//
// The parent re-executes its own binary with a hidden worker subcommand,
// writes one JSON Job to the worker's stdin and reads one JSON Outcome line
// from its stdout. A worker that misses its deadline is terminated with
// SIGTERM to its process group and, after a grace period, SIGKILL. The
// worker is always reaped and any export file it left behind is removed
// unless the job succeeded.
package executor

import (
	"encoding/json"
	"time"

	"github.com/loganrf/OpenGridGen/internal/outcome"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// WorkerCommand is the hidden subcommand a worker process is started with.
const WorkerCommand = "worker"

// Job is the envelope sent to a worker on stdin.
type Job struct {
	ID         string               `json:"id"`
	Kind       string               `json:"kind"`
	Params     json.RawMessage      `json:"params,omitempty"`
	Settings   scaling.UnitSettings `json:"settings"`
	Format     string               `json:"format,omitempty"`
	OutputPath string               `json:"output_path,omitempty"`

	// Timeout bounds the worker's wall-clock time. Zero uses the
	// executor's default.
	Timeout time.Duration `json:"timeout_ns"`

	// MemoryLimit caps the worker's address space in bytes. Zero means no cap.
	MemoryLimit int64 `json:"memory_limit,omitempty"`
}

// Config configures an Executor.
type Config struct {
	// Binary is the worker executable. Empty means os.Executable().
	Binary string `yaml:"binary" json:"binary"`

	// Args are the worker arguments; the default is [WorkerCommand].
	Args []string `yaml:"-" json:"-"`

	// Env replaces the worker environment when non-nil.
	Env []string `yaml:"-" json:"-"`

	DefaultTimeout time.Duration `yaml:"-" json:"default_timeout"`
	GracePeriod    time.Duration `yaml:"-" json:"grace_period"`
	MaxConcurrent  int           `yaml:"max_concurrent" json:"max_concurrent"`
	MemoryLimit    int64         `yaml:"memory_limit" json:"memory_limit"`

	// MaxOutputBytes caps captured worker stdout.
	MaxOutputBytes int64 `yaml:"-" json:"max_output_bytes"`

	// StderrTailBytes is how much trailing worker stderr is kept for faults.
	StderrTailBytes int `yaml:"-" json:"stderr_tail_bytes"`
}

// DefaultConfig returns a Config with conservative limits.
func DefaultConfig() Config {
	return Config{
		Args:            []string{WorkerCommand},
		DefaultTimeout:  60 * time.Second,
		GracePeriod:     time.Second,
		MaxConcurrent:   4,
		MaxOutputBytes:  1 << 20,
		StderrTailBytes: 4 << 10,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Args) == 0 {
		c.Args = d.Args
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = d.MaxOutputBytes
	}
	if c.StderrTailBytes <= 0 {
		c.StderrTailBytes = d.StderrTailBytes
	}
	return c
}

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent describes one step of a job's life in the executor.
type AuditEvent struct {
	Type      AuditEventType   `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	JobID     string           `json:"job_id"`
	Kind      string           `json:"kind"`
	PID       int              `json:"pid,omitempty"`
	Outcome   *outcome.Outcome `json:"outcome,omitempty"`

	// Signal is the last signal sent to the worker group, if any.
	Signal string `json:"signal,omitempty"`
}
