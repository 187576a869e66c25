package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganrf/OpenGridGen/internal/parts"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENGRIDGEN_UNIT_SIZE", "OPENGRIDGEN_UNIT_HEIGHT", "OPENGRIDGEN_ADDR",
		"OPENGRIDGEN_HISTORY_DB", "OPENGRIDGEN_LOG_LEVEL", "OPENGRIDGEN_SETTINGS_FILE",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, scaling.UnitSettings{UnitSize: 25, UnitHeight: 5}, cfg.Units)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	ex := cfg.Executor
	assert.Equal(t, time.Second, ex.GetGracePeriod())
	assert.Equal(t, 120*time.Second, ex.TimeoutFor(parts.KindGear))
	assert.Equal(t, 30*time.Second, ex.TimeoutFor(parts.KindHinge))
	assert.Equal(t, 30*time.Second, ex.TimeoutFor(parts.KindTubeAdapter))
	for _, k := range []parts.Kind{parts.KindBox, parts.KindBaseplate, parts.KindLid} {
		assert.Equal(t, 60*time.Second, ex.TimeoutFor(k), k)
	}
	// Every kind has a deadline within the 30-120s band.
	for _, k := range parts.Kinds() {
		d := ex.TimeoutFor(k)
		assert.GreaterOrEqual(t, d, 30*time.Second)
		assert.LessOrEqual(t, d, 120*time.Second)
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MergesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "opengridgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
units:
  unit_size: 42
  unit_height: 7
executor:
  max_concurrent: 2
  timeouts:
    gear: 90s
kernel:
  volume_cells: 32
server:
  addr: 127.0.0.1:9000
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, scaling.UnitSettings{UnitSize: 42, UnitHeight: 7}, cfg.Units)
	assert.Equal(t, 2, cfg.Executor.MaxConcurrent)
	assert.Equal(t, 90*time.Second, cfg.Executor.TimeoutFor(parts.KindGear))
	assert.Equal(t, 30*time.Second, cfg.Executor.TimeoutFor(parts.KindHinge))
	assert.Equal(t, 32, cfg.Kernel.VolumeCells)
	assert.Equal(t, DefaultConfig().Kernel.MeshCells, cfg.Kernel.MeshCells)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("units: [\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "opengridgen.yaml")

	cfg := DefaultConfig()
	cfg.Units = scaling.UnitSettings{UnitSize: 42, UnitHeight: 7}
	cfg.SettingsFile = "units.yaml"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_Validate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"zero unit size":     func(c *Config) { c.Units.UnitSize = 0 },
		"negative height":    func(c *Config) { c.Units.UnitHeight = -5 },
		"no workers":         func(c *Config) { c.Executor.MaxConcurrent = 0 },
		"bad timeout":        func(c *Config) { c.Executor.Timeouts["gear"] = "soon" },
		"zero timeout":       func(c *Config) { c.Executor.Timeouts["box"] = "0s" },
		"bad grace":          func(c *Config) { c.Executor.GracePeriod = "-1s" },
		"coarse kernel":      func(c *Config) { c.Kernel.MeshCells = 2 },
		"history needs path": func(c *Config) { c.History.Path = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENGRIDGEN_UNIT_SIZE", "42")
	t.Setenv("OPENGRIDGEN_UNIT_HEIGHT", "7")
	t.Setenv("OPENGRIDGEN_ADDR", ":9999")
	t.Setenv("OPENGRIDGEN_HISTORY_DB", "/var/lib/ogg/history.db")
	t.Setenv("OPENGRIDGEN_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, scaling.UnitSettings{UnitSize: 42, UnitHeight: 7}, cfg.Units)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "/var/lib/ogg/history.db", cfg.History.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)

	t.Setenv("OPENGRIDGEN_UNIT_SIZE", "wide")
	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestExecutorConfig_ToExecutor(t *testing.T) {
	ex := DefaultExecutorConfig()
	ex.WorkerBinary = "/usr/local/bin/opengridgen"
	ex.MemoryLimitMB = 512

	cfg := ex.ToExecutor()
	assert.Equal(t, "/usr/local/bin/opengridgen", cfg.Binary)
	assert.Equal(t, time.Second, cfg.GracePeriod)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.EqualValues(t, 512<<20, cfg.MemoryLimit)
	assert.Equal(t, []string{"worker"}, cfg.Args)
}

func TestLoggingConfig_Categories(t *testing.T) {
	lc := LoggingConfig{Categories: map[string]bool{"kernel": false}}
	assert.False(t, lc.IsCategoryEnabled("kernel"))
	assert.True(t, lc.IsCategoryEnabled("executor"))
	assert.Equal(t, lc.Categories, lc.ToLogging().Categories)
}
