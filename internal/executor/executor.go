package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/outcome"
)

// PartialSuffix marks an export that has not been completed yet.
const PartialSuffix = ".partial"

// PartialPath is where an export to path is written before it is renamed.
func PartialPath(path string) string {
	return path + PartialSuffix
}

// Executor runs jobs in worker processes, at most MaxConcurrent at a time.
type Executor struct {
	mu  sync.RWMutex
	cfg Config
	sem *semaphore.Weighted

	// auditCallback is called for execution events
	auditCallback func(AuditEvent)
}

// New creates an executor. Zero fields of cfg take their defaults.
func New(cfg Config) *Executor {
	cfg = cfg.withDefaults()
	logging.ExecutorDebug("Creating executor: binary=%q timeout=%s grace=%s max_concurrent=%d",
		cfg.Binary, cfg.DefaultTimeout, cfg.GracePeriod, cfg.MaxConcurrent)
	return &Executor{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// SetAuditCallback sets the callback for audit events.
func (e *Executor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

// emitAudit emits an audit event if a callback is registered.
func (e *Executor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		event.Timestamp = time.Now()
		callback(event)
	}
}

// Run executes job in a fresh worker process and returns its outcome. It
// never returns before the worker has been reaped. Unless the outcome is a
// success, the job's output file and its partial are removed.
func (e *Executor) Run(ctx context.Context, job Job) outcome.Outcome {
	timer := logging.StartTimer(logging.CategoryExecutor, "worker job "+job.ID)
	defer timer.Stop()

	start := time.Now()
	o := e.run(ctx, job)
	o.Elapsed = time.Since(start)
	if o.Status != outcome.StatusSuccess {
		removeOutputs(job.OutputPath)
	}
	return o
}

func (e *Executor) run(ctx context.Context, job Job) outcome.Outcome {
	if job.Timeout <= 0 {
		job.Timeout = e.cfg.DefaultTimeout
	}
	if job.MemoryLimit == 0 {
		job.MemoryLimit = e.cfg.MemoryLimit
	}

	// The deadline covers queueing for a slot as well as the worker itself.
	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	if err := e.sem.Acquire(runCtx, 1); err != nil {
		logging.ExecutorWarn("job %s (%s): no worker slot: %v", job.ID, job.Kind, err)
		return e.interrupted(runCtx, job)
	}
	defer e.sem.Release(1)

	payload, err := json.Marshal(job)
	if err != nil {
		return outcome.FromError(outcome.Faultf("encode job: %v", err))
	}

	binary := e.cfg.Binary
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return outcome.FromError(outcome.Faultf("locate worker binary: %v", err))
		}
	}

	cmd := exec.Command(binary, e.cfg.Args...)
	cmd.Env = e.cfg.Env
	cmd.Stdin = bytes.NewReader(payload)

	var stdoutBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: e.cfg.MaxOutputBytes}
	stderr := newTailWriter(e.cfg.StderrTailBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = e.cfg.GracePeriod
	setupProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		logging.ExecutorError("job %s (%s): start worker %s: %v", job.ID, job.Kind, binary, err)
		o := outcome.FromError(outcome.Faultf("start worker: %v", err))
		e.emitAudit(AuditEvent{Type: AuditEventError, JobID: job.ID, Kind: job.Kind, Outcome: &o})
		return o
	}
	pid := cmd.Process.Pid
	logging.ExecutorDebug("job %s (%s): worker pid=%d timeout=%s", job.ID, job.Kind, pid, job.Timeout)
	e.emitAudit(AuditEvent{Type: AuditEventStart, JobID: job.ID, Kind: job.Kind, PID: pid})

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case waitErr := <-done:
		if stdout.truncated {
			logging.ExecutorWarn("job %s: worker stdout truncated, %d bytes discarded", job.ID, stdout.discarded)
		}
		return e.finish(job, pid, waitErr, stdoutBuf.Bytes(), stderr.String())
	case <-runCtx.Done():
		sig := e.terminate(job, cmd, done)
		o := e.interrupted(runCtx, job)
		e.emitAudit(AuditEvent{Type: AuditEventKilled, JobID: job.ID, Kind: job.Kind, PID: pid, Outcome: &o, Signal: sig})
		return o
	}
}

// terminate sends SIGTERM to the worker group, escalates to SIGKILL after
// the grace period and waits for the worker to be reaped. It returns the
// last signal sent.
func (e *Executor) terminate(job Job, cmd *exec.Cmd, done <-chan error) string {
	logging.ExecutorWarn("job %s (%s): deadline reached, terminating worker %d", job.ID, job.Kind, cmd.Process.Pid)
	if err := terminateGroup(cmd); err != nil {
		logging.ExecutorDebug("job %s: terminate: %v", job.ID, err)
	}

	grace := time.NewTimer(e.cfg.GracePeriod)
	defer grace.Stop()
	select {
	case <-done:
		return "SIGTERM"
	case <-grace.C:
	}

	logging.ExecutorWarn("job %s: worker ignored SIGTERM for %s, killing", job.ID, e.cfg.GracePeriod)
	if err := killGroup(cmd); err != nil {
		logging.ExecutorDebug("job %s: kill: %v", job.ID, err)
	}
	<-done
	return "SIGKILL"
}

// interrupted classifies a job stopped by its context: a missed deadline
// is a timeout, anything else a cancellation fault.
func (e *Executor) interrupted(runCtx context.Context, job Job) outcome.Outcome {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return outcome.FromError(&outcome.TimeoutError{After: job.Timeout})
	}
	return outcome.FromError(outcome.Faultf("job canceled: %v", runCtx.Err()))
}

// finish turns a reaped worker's output into an outcome.
func (e *Executor) finish(job Job, pid int, waitErr error, stdout []byte, stderrTail string) outcome.Outcome {
	o, err := decodeOutcome(stdout)
	if err != nil {
		exit := "exit 0"
		if waitErr != nil {
			exit = waitErr.Error()
		}
		msg := fmt.Sprintf("worker %d produced no outcome (%s): %v", pid, exit, err)
		if stderrTail != "" {
			msg += "; stderr: " + stderrTail
		}
		logging.ExecutorError("job %s (%s): %s", job.ID, job.Kind, msg)
		o = outcome.FromError(outcome.Faultf("%s", msg))
		e.emitAudit(AuditEvent{Type: AuditEventError, JobID: job.ID, Kind: job.Kind, PID: pid, Outcome: &o})
		return o
	}

	switch o.Status {
	case outcome.StatusFault:
		logging.ExecutorError("job %s (%s) fault: %s; stderr: %s", job.ID, job.Kind, o.Message, stderrTail)
	case outcome.StatusValidationFailure:
		logging.Executor("job %s (%s) rejected: %s", job.ID, job.Kind, o.Reason)
	default:
		logging.ExecutorDebug("job %s (%s) -> %s", job.ID, job.Kind, o.Status)
	}
	e.emitAudit(AuditEvent{Type: AuditEventComplete, JobID: job.ID, Kind: job.Kind, PID: pid, Outcome: &o})
	return o
}

// decodeOutcome finds the last outcome line in a worker's stdout.
func decodeOutcome(stdout []byte) (outcome.Outcome, error) {
	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64<<10), len(stdout)+1)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) > 0 && line[0] == '{' {
			lines = append(lines, append([]byte(nil), line...))
		}
	}
	if err := sc.Err(); err != nil {
		return outcome.Outcome{}, fmt.Errorf("read stdout: %w", err)
	}
	for i := len(lines) - 1; i >= 0; i-- {
		var o outcome.Outcome
		if err := json.Unmarshal(lines[i], &o); err != nil || o.Status == "" {
			continue
		}
		if o.Status == outcome.StatusSuccess && o.Result == nil {
			return outcome.Outcome{}, errors.New("success outcome without a result")
		}
		return o, nil
	}
	return outcome.Outcome{}, errors.New("no outcome line on stdout")
}

// removeOutputs deletes an export and its partial.
func removeOutputs(path string) {
	if path == "" {
		return
	}
	for _, p := range []string{path, PartialPath(path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.ExecutorWarn("remove %s: %v", p, err)
		}
	}
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailWriter(max int) *tailWriter {
	return &tailWriter{max: max}
}

func (t *tailWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.max:]...)
	}
	return len(p), nil
}

func (t *tailWriter) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}
