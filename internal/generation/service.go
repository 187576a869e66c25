package generation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/loganrf/OpenGridGen/internal/executor"
	"github.com/loganrf/OpenGridGen/internal/history"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/metrics"
	"github.com/loganrf/OpenGridGen/internal/outcome"
	"github.com/loganrf/OpenGridGen/internal/parts"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// Request is one generation request from a caller.
type Request struct {
	Kind       parts.Kind      `json:"kind"`
	Params     json.RawMessage `json:"params,omitempty"`
	Format     string          `json:"format,omitempty"`
	OutputPath string          `json:"output_path,omitempty"`
}

// Executor runs a job to completion or forced termination.
type Executor interface {
	Run(ctx context.Context, job executor.Job) outcome.Outcome
}

// SettingsSource supplies the current unit settings.
type SettingsSource interface {
	Current() scaling.UnitSettings
}

// Journal records finished tasks.
type Journal interface {
	Record(ctx context.Context, r history.Record) error
}

// TimeoutFunc returns the deadline for a part kind.
type TimeoutFunc func(kind parts.Kind) time.Duration

// Service submits Generation Tasks to an executor.
type Service struct {
	exec     Executor
	settings SettingsSource
	timeouts TimeoutFunc
	journal  Journal
}

// Option configures a Service.
type Option func(*Service)

// WithJournal records every outcome in j.
func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

// NewService creates a service. A nil timeouts uses the executor default.
func NewService(exec Executor, settings SettingsSource, timeouts TimeoutFunc, opts ...Option) *Service {
	s := &Service{exec: exec, settings: settings, timeouts: timeouts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit runs one request and returns its outcome. It blocks until the task
// finishes or its deadline expires. Settings are read once, here.
func (s *Service) Submit(ctx context.Context, req Request) outcome.Outcome {
	id := uuid.NewString()
	log := logging.WithRequestID(logging.CategoryExecutor, id)
	defer metrics.TaskStarted()()

	start := time.Now()
	o := s.submit(ctx, id, req)
	if o.Elapsed == 0 {
		o.Elapsed = time.Since(start)
	}

	switch o.Status {
	case outcome.StatusSuccess:
		log.Info("%s ok in %s: %s", req.Kind, o.Elapsed, o.Result.Dims)
	case outcome.StatusFault:
		log.Error("%s fault: %s", req.Kind, o.Message)
	default:
		log.Warn("%s %s: %s", req.Kind, o.Status, o.Message)
	}

	metrics.ObserveTask(string(req.Kind), o.Status, o.Elapsed)
	if s.journal != nil {
		// The request context may already be done; journaling must still happen.
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.journal.Record(jctx, history.FromOutcome(id, string(req.Kind), o)); err != nil {
			logging.StoreWarn("journal %s: %v", id, err)
		}
	}
	return o
}

func (s *Service) submit(ctx context.Context, id string, req Request) outcome.Outcome {
	settings := s.settings.Current()
	if err := settings.Validate(); err != nil {
		return outcome.FromError(outcome.ParameterError("%v", err))
	}
	// Bad parameters are rejected without starting a worker.
	if _, err := DecodeSpec(req.Kind, req.Params); err != nil {
		return outcome.FromError(err)
	}
	if req.OutputPath != "" {
		if _, err := ParseFormat(req.Format); err != nil {
			return outcome.FromError(err)
		}
	}

	var timeout time.Duration
	if s.timeouts != nil {
		timeout = s.timeouts(req.Kind)
	}
	return s.exec.Run(ctx, executor.Job{
		ID:         id,
		Kind:       string(req.Kind),
		Params:     req.Params,
		Settings:   settings,
		Format:     req.Format,
		OutputPath: req.OutputPath,
		Timeout:    timeout,
	})
}

// InProcess runs jobs in the calling process with no isolation or deadline.
// It backs tests and the generate command's --in-process flag.
type InProcess struct {
	Runner *Runner
}

// Run implements Executor.
func (p InProcess) Run(_ context.Context, job executor.Job) outcome.Outcome {
	start := time.Now()
	res, err := p.Runner.Handle(job)
	var o outcome.Outcome
	if err != nil {
		o = outcome.FromError(err)
	} else {
		o = outcome.Success(res)
	}
	o.Elapsed = time.Since(start)
	return o
}
