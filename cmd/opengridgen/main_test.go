package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganrf/OpenGridGen/internal/executor"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/outcome"
)

// writeTestConfig writes a low-resolution config with history under dir.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "opengridgen.yaml")
	data := "kernel:\n  volume_cells: 24\n  mesh_cells: 16\n" +
		"history:\n  enabled: true\n  path: " + filepath.Join(dir, "history.db") + "\n" +
		"logging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

// execute runs the root command with fresh flag state and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"OPENGRIDGEN_UNIT_SIZE", "OPENGRIDGEN_UNIT_HEIGHT", "OPENGRIDGEN_HISTORY_DB", "OPENGRIDGEN_SETTINGS_FILE"} {
		t.Setenv(k, "")
	}
	genParams, genFormat, genOut, genInProcess = "", "step", "", false
	historyLimit, historyJSON = 20, false
	logLevel = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "opengridgen "+Version+"\n", out)
}

func TestGenerate_InProcessExport(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	stl := filepath.Join(dir, "box.stl")

	out, err := execute(t, "generate", "box", "--config", cfgPath, "--in-process",
		"--params", `{"length":2,"width":3,"height":2}`, "--format", "stl", "--out", stl)
	require.NoError(t, err, out)

	var o outcome.Outcome
	require.NoError(t, json.Unmarshal([]byte(out), &o))
	assert.Equal(t, outcome.StatusSuccess, o.Status)
	require.NotNil(t, o.Result)
	assert.Equal(t, stl, o.Result.ExportedPath)
	assert.Less(t, o.Result.Dims.X, o.Result.Dims.Y)
	assert.FileExists(t, stl)
	assert.NoFileExists(t, executor.PartialPath(stl))
}

func TestGenerate_UnknownKind(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "generate", "widget", "--config", writeTestConfig(t, dir), "--in-process")
	require.Error(t, err)
	assert.Contains(t, out, string(outcome.StatusValidationFailure))
}

func TestHistory_AfterGenerate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	_, err := execute(t, "generate", "hinge", "--config", cfgPath, "--in-process")
	require.NoError(t, err)
	_, err = execute(t, "generate", "hinge", "--config", cfgPath, "--in-process", "--params", `{"length":-1}`)
	require.Error(t, err)

	out, err := execute(t, "history", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "hinge")
	assert.Contains(t, out, "success=1")
	assert.Contains(t, out, "validation_failure=1")

	out, err = execute(t, "history", "--config", cfgPath, "--json", "--limit", "1")
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 1)
}

func TestHistory_Empty(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "history", "--config", writeTestConfig(t, dir))
	require.NoError(t, err)
	assert.Equal(t, "No outcomes recorded in "+filepath.Join(dir, "history.db")+".\n", out)
}

func TestAuditWorker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, logging.InitAudit(path))
	t.Cleanup(logging.CloseAudit)

	auditWorker(executor.AuditEvent{Type: executor.AuditEventStart, JobID: "j1", Kind: "gear", PID: 7})
	auditWorker(executor.AuditEvent{Type: executor.AuditEventKilled, JobID: "j1", Kind: "gear", PID: 7, Signal: "SIGKILL"})
	auditWorker(executor.AuditEvent{
		Type: executor.AuditEventError, JobID: "j2", Kind: "box",
		Outcome: &outcome.Outcome{Status: outcome.StatusFault, Message: "exec: not found"},
	})
	logging.CloseAudit()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 3)
	assert.True(t, strings.Contains(lines[1], `"signal":"SIGKILL"`))
	assert.True(t, strings.Contains(lines[2], "exec: not found"))
}
