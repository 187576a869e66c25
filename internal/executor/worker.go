package executor

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/outcome"
)

// Handler performs one job inside a worker process.
type Handler func(job Job) (outcome.Result, error)

// Serve is the worker side of the protocol: it reads one Job from in, runs
// h and writes exactly one Outcome line to out. Failures, including panics,
// are reported in that line; the returned error only concerns the protocol.
func Serve(in io.Reader, out io.Writer, h Handler) error {
	var job Job
	if err := json.NewDecoder(in).Decode(&job); err != nil {
		o := outcome.FromError(outcome.Faultf("decode job: %v", err))
		if werr := writeOutcome(out, o); werr != nil {
			return werr
		}
		return fmt.Errorf("decode job: %w", err)
	}

	if job.MemoryLimit > 0 {
		if err := limitMemory(job.MemoryLimit); err != nil {
			logging.WorkerDebug("job %s: memory limit not applied: %v", job.ID, err)
		}
	}

	logging.WorkerDebug("job %s: %s", job.ID, job.Kind)
	return writeOutcome(out, runHandler(job, h))
}

func runHandler(job Job, h Handler) (o outcome.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryWorker).Error("job %s panicked: %v\n%s", job.ID, r, debug.Stack())
			o = outcome.FromError(outcome.Faultf("panic: %v", r))
		}
		o.Elapsed = time.Since(start)
	}()

	res, err := h(job)
	if err != nil {
		return outcome.FromError(err)
	}
	return outcome.Success(res)
}

func writeOutcome(w io.Writer, o outcome.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}
