package main

import (
	"github.com/spf13/cobra"

	"github.com/loganrf/OpenGridGen/internal/executor"
	"github.com/loganrf/OpenGridGen/internal/generation"
	"github.com/loganrf/OpenGridGen/internal/kernel/csg"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/metrics"
)

// workerCmd is the child side of the executor. It reads one job on stdin
// and writes one outcome line on stdout; logs go to stderr.
var workerCmd = &cobra.Command{
	Use:    executor.WorkerCommand,
	Short:  "Run one generation job from stdin (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runner := generation.NewRunner(csg.New(cfg.Kernel))
		return executor.Serve(cmd.InOrStdin(), cmd.OutOrStdout(), runner.Handle)
	},
}

// auditWorker forwards executor lifecycle events to the audit log and
// metrics.
func auditWorker(ev executor.AuditEvent) {
	audit := logging.Audit()
	switch ev.Type {
	case executor.AuditEventStart:
		audit.WorkerStart(ev.JobID, ev.Kind, ev.PID)
	case executor.AuditEventComplete:
		var status string
		var ms int64
		if ev.Outcome != nil {
			status = string(ev.Outcome.Status)
			ms = ev.Outcome.Elapsed.Milliseconds()
		}
		audit.WorkerComplete(ev.JobID, ev.Kind, ev.PID, status, ms)
	case executor.AuditEventKilled:
		metrics.WorkerSignaled(ev.Signal)
		audit.WorkerKilled(ev.JobID, ev.Kind, ev.PID, ev.Signal)
	case executor.AuditEventError:
		var msg string
		if ev.Outcome != nil {
			msg = ev.Outcome.Message
		}
		audit.WorkerError(ev.JobID, ev.Kind, ev.PID, msg)
	}
}
