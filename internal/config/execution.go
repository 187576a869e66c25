package config

import (
	"fmt"
	"time"

	"github.com/loganrf/OpenGridGen/internal/executor"
	"github.com/loganrf/OpenGridGen/internal/parts"
)

// ExecutorConfig configures the worker processes.
type ExecutorConfig struct {
	// Worker binary; empty re-executes the running binary
	WorkerBinary string `yaml:"worker_binary" json:"worker_binary,omitempty"`

	// Wait between SIGTERM and SIGKILL
	GracePeriod string `yaml:"grace_period" json:"grace_period,omitempty"`

	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`

	// Worker address-space cap in MiB; 0 disables it
	MemoryLimitMB int64 `yaml:"memory_limit_mb" json:"memory_limit_mb,omitempty"`

	// Deadline for kinds missing from Timeouts
	DefaultTimeout string `yaml:"default_timeout" json:"default_timeout,omitempty"`

	// Per part kind deadlines, e.g. gear: 120s
	Timeouts map[string]string `yaml:"timeouts" json:"timeouts,omitempty"`
}

// DefaultExecutorConfig returns the default worker settings. Gear
// generation is the most expensive and gets the largest budget.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		GracePeriod:    "1s",
		MaxConcurrent:  4,
		MemoryLimitMB:  2048,
		DefaultTimeout: "60s",
		Timeouts: map[string]string{
			string(parts.KindBox):         "60s",
			string(parts.KindBaseplate):   "60s",
			string(parts.KindLid):         "60s",
			string(parts.KindHinge):       "30s",
			string(parts.KindTubeAdapter): "30s",
			string(parts.KindGear):        "120s",
		},
	}
}

// GetGracePeriod returns the SIGTERM to SIGKILL grace period.
func (e ExecutorConfig) GetGracePeriod() time.Duration {
	return parseDuration(e.GracePeriod, time.Second)
}

// GetDefaultTimeout returns the deadline for kinds without their own.
func (e ExecutorConfig) GetDefaultTimeout() time.Duration {
	return parseDuration(e.DefaultTimeout, 60*time.Second)
}

// TimeoutFor returns the deadline for a part kind.
func (e ExecutorConfig) TimeoutFor(kind parts.Kind) time.Duration {
	return parseDuration(e.Timeouts[string(kind)], e.GetDefaultTimeout())
}

// Validate rejects unusable worker settings.
func (e ExecutorConfig) Validate() error {
	if e.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be >= 1")
	}
	if e.MemoryLimitMB < 0 {
		return fmt.Errorf("memory_limit_mb must be >= 0")
	}
	for _, s := range []string{e.GracePeriod, e.DefaultTimeout} {
		if s == "" {
			continue
		}
		if d, err := time.ParseDuration(s); err != nil || d <= 0 {
			return fmt.Errorf("invalid duration %q", s)
		}
	}
	for kind, s := range e.Timeouts {
		if d, err := time.ParseDuration(s); err != nil || d <= 0 {
			return fmt.Errorf("timeouts.%s: invalid duration %q", kind, s)
		}
	}
	return nil
}

// ToExecutor converts to the executor's configuration.
func (e ExecutorConfig) ToExecutor() executor.Config {
	cfg := executor.DefaultConfig()
	cfg.Binary = e.WorkerBinary
	cfg.GracePeriod = e.GetGracePeriod()
	cfg.DefaultTimeout = e.GetDefaultTimeout()
	cfg.MaxConcurrent = e.MaxConcurrent
	cfg.MemoryLimit = e.MemoryLimitMB << 20
	return cfg
}
