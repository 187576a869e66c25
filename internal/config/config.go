package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loganrf/OpenGridGen/internal/kernel/csg"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "opengridgen.yaml"

// Config holds all OpenGridGen configuration.
type Config struct {
	// Startup unit settings; the settings file and API may replace them.
	Units scaling.UnitSettings `yaml:"units"`

	// Worker processes
	Executor ExecutorConfig `yaml:"executor"`

	// Geometry kernel resolution
	Kernel csg.Config `yaml:"kernel"`

	// HTTP surface
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Outcome journal
	History HistoryConfig `yaml:"history"`

	// Optional YAML file of unit settings, watched for changes
	SettingsFile string `yaml:"settings_file"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ExportDir       string `yaml:"export_dir"` // temp directory for export files; empty = os.TempDir()
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// HistoryConfig configures the outcome journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Units:    scaling.DefaultSettings(),
		Executor: DefaultExecutorConfig(),
		Kernel:   csg.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(".opengridgen", "history.db"),
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies OPENGRIDGEN_* environment variables.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("OPENGRIDGEN_UNIT_SIZE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OPENGRIDGEN_UNIT_SIZE: %w", err)
		}
		c.Units.UnitSize = f
	}
	if v := os.Getenv("OPENGRIDGEN_UNIT_HEIGHT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OPENGRIDGEN_UNIT_HEIGHT: %w", err)
		}
		c.Units.UnitHeight = f
	}
	if v := os.Getenv("OPENGRIDGEN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("OPENGRIDGEN_HISTORY_DB"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("OPENGRIDGEN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("OPENGRIDGEN_SETTINGS_FILE"); v != "" {
		c.SettingsFile = v
	}
	return nil
}

// GetShutdownTimeout returns the server shutdown timeout.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Units.Validate(); err != nil {
		return fmt.Errorf("units: %w", err)
	}
	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	if c.Kernel.VolumeCells < 4 || c.Kernel.MeshCells < 4 {
		return fmt.Errorf("kernel: volume_cells and mesh_cells must be >= 4")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history: path is required when enabled")
	}
	return nil
}

// parseDuration parses s, falling back to def when s is empty or invalid.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
