// Package metrics exposes Prometheus instruments for generation tasks.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/loganrf/OpenGridGen/internal/outcome"
)

const namespace = "opengridgen"

var (
	// tasksTotal counts finished tasks.
	// Labels: kind (part family), status (success, validation_failure, timeout, fault)
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "total",
		Help:      "Generation tasks by part kind and outcome status",
	}, []string{"kind", "status"})

	// taskDuration measures end-to-end task latency, worker start-up included.
	// Labels: kind
	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "duration_seconds",
		Help:      "Generation task latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"kind"})

	tasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "in_flight",
		Help:      "Generation tasks currently submitted",
	})

	// workerSignals counts signals sent to overdue workers.
	// Labels: signal (SIGTERM, SIGKILL)
	workerSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "executor",
		Name:      "signals_total",
		Help:      "Signals sent to worker process groups",
	}, []string{"signal"})

	// settingsUpdates counts accepted UnitSettings changes.
	// Labels: source (api, file)
	settingsUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "updates_total",
		Help:      "Accepted unit settings updates by source",
	}, []string{"source"})
)

// ObserveTask records one finished task.
func ObserveTask(kind string, status outcome.Status, elapsed time.Duration) {
	tasksTotal.WithLabelValues(kind, string(status)).Inc()
	taskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// TaskStarted marks a task in flight and returns the function that ends it.
func TaskStarted() func() {
	tasksInFlight.Inc()
	return tasksInFlight.Dec
}

// WorkerSignaled records a signal sent to a worker group.
func WorkerSignaled(signal string) {
	workerSignals.WithLabelValues(signal).Inc()
}

// SettingsUpdated records an accepted settings change.
func SettingsUpdated(source string) {
	settingsUpdates.WithLabelValues(source).Inc()
}
