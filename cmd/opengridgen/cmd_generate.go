package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loganrf/OpenGridGen/internal/config"
	"github.com/loganrf/OpenGridGen/internal/executor"
	"github.com/loganrf/OpenGridGen/internal/generation"
	"github.com/loganrf/OpenGridGen/internal/history"
	"github.com/loganrf/OpenGridGen/internal/kernel/csg"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/outcome"
	"github.com/loganrf/OpenGridGen/internal/parts"
	"github.com/loganrf/OpenGridGen/internal/settings"
)

var (
	genParams    string
	genFormat    string
	genOut       string
	genInProcess bool
)

// generateCmd runs one generation task from the command line
var generateCmd = &cobra.Command{
	Use:   "generate [kind]",
	Short: "Generate one part and print its dimensions",
	Long: `Generates a part of the given kind and prints its outcome as JSON.

Kinds: box, baseplate, lid, hinge, tube_adapter, gear.
Parameters not given in --params keep their defaults.

Examples:
  opengridgen generate box --params '{"length":2,"width":3,"height":2}'
  opengridgen generate gear --params '{"teeth":30}' --format stl --out gear.stl`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genParams, "params", "p", "", "Part parameters as a JSON object")
	generateCmd.Flags().StringVarP(&genFormat, "format", "f", "step", "Export format: step or stl")
	generateCmd.Flags().StringVarP(&genOut, "out", "o", "", "Export path (omit to only report dimensions)")
	generateCmd.Flags().BoolVar(&genInProcess, "in-process", false, "Generate in this process instead of a worker")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := loadSettings(cfg)
	if err != nil {
		return err
	}

	var exec generation.Executor
	if genInProcess {
		exec = generation.InProcess{Runner: generation.NewRunner(csg.New(cfg.Kernel))}
	} else {
		exec = newExecutor(cfg)
	}

	var opts []generation.Option
	if cfg.History.Enabled {
		journal, err := history.Open(cfg.History.Path)
		if err != nil {
			logging.StoreWarn("history disabled: %v", err)
		} else {
			defer journal.Close()
			opts = append(opts, generation.WithJournal(journal))
		}
	}

	svc := generation.NewService(exec, store, cfg.Executor.TimeoutFor, opts...)
	o := svc.Submit(ctx, generation.Request{
		Kind:       parts.Kind(args[0]),
		Params:     json.RawMessage(genParams),
		Format:     genFormat,
		OutputPath: genOut,
	})
	if o.Status == outcome.StatusSuccess && genOut != "" {
		o.Result.ExportedPath = genOut
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		return err
	}
	if o.Status != outcome.StatusSuccess {
		return fmt.Errorf("generation %s: %s", o.Status, o.Message)
	}
	return nil
}

// loadSettings seeds the settings store from the config and, when set, the
// settings file.
func loadSettings(cfg *config.Config) (*settings.Store, error) {
	units := cfg.Units
	if cfg.SettingsFile != "" {
		u, err := settings.LoadFile(cfg.SettingsFile, units)
		switch {
		case err == nil:
			units = u
		case errors.Is(err, os.ErrNotExist):
			logging.Settings("settings file %s not found, using config units", cfg.SettingsFile)
		default:
			return nil, err
		}
	}
	return settings.NewStore(units)
}

// newExecutor builds the worker executor. Workers re-run this binary with
// the same config file.
func newExecutor(cfg *config.Config) *executor.Executor {
	ecfg := cfg.Executor.ToExecutor()
	ecfg.Args = []string{executor.WorkerCommand, "--config", configPath}
	if logLevel != "" {
		ecfg.Args = append(ecfg.Args, "--log-level", logLevel)
	}
	e := executor.New(ecfg)
	e.SetAuditCallback(auditWorker)
	return e
}
