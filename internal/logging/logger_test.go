package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	UseLogger(zap.New(core))
	t.Cleanup(func() {
		mu.Lock()
		categories = nil
		mu.Unlock()
		UseLogger(zap.NewNop())
	})
	return logs
}

func TestCategoryFieldAttached(t *testing.T) {
	logs := observe(t)

	Executor("worker %d started", 42)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "worker 42 started", entries[0].Message)
	assert.Equal(t, "executor", entries[0].ContextMap()["category"])
}

func TestDisabledCategoryIsNoop(t *testing.T) {
	logs := observe(t)
	mu.Lock()
	categories = map[string]bool{"kernel": false}
	mu.Unlock()

	KernelDebug("should not appear")
	Validator("should appear")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "should appear", entries[0].Message)
}

func TestWithRequestID(t *testing.T) {
	logs := observe(t)

	WithRequestID(CategoryExecutor, "task-1").Error("boom: %s", "kernel fault")

	entries := logs.FilterField(zap.String("request_id", "task-1")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t)

	timer := StartTimer(CategoryGenerator, "gear")
	time.Sleep(2 * time.Millisecond)
	timer.StopWithThreshold(time.Nanosecond)

	entries := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Message, "gear took"))
}

func TestInitializeWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	require.NoError(t, Initialize(Config{Level: "info", Format: "json", File: path}))
	t.Cleanup(func() { UseLogger(zap.NewNop()) })

	APIError("Unexpected error: %s", "simulated crash")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Unexpected error: simulated crash")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}
