package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/loganrf/OpenGridGen/internal/generation"
	"github.com/loganrf/OpenGridGen/internal/history"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/metrics"
	"github.com/loganrf/OpenGridGen/internal/server"
	"github.com/loganrf/OpenGridGen/internal/settings"
)

var serveAddr string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generation API over HTTP",
	Long: `Starts the HTTP API. Each request is generated in its own worker process.

Routes:
  GET  /health
  GET  /metrics
  GET  /api/v1/parts
  POST /api/v1/parts/:kind/info
  POST /api/v1/parts/:kind/export?format=step|stl
  GET  /api/v1/settings
  POST /api/v1/settings

When settings_file is configured it is watched and applied on change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := logging.InitAudit(cfg.Logging.AuditFile); err != nil {
		return err
	}
	defer logging.CloseAudit()

	store, err := loadSettings(cfg)
	if err != nil {
		return err
	}

	var opts []generation.Option
	if cfg.History.Enabled {
		journal, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer journal.Close()
		opts = append(opts, generation.WithJournal(journal))
	}

	svc := generation.NewService(newExecutor(cfg), store, cfg.Executor.TimeoutFor, opts...)
	srv := server.New(svc, store, cfg.Server.ExportDir)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.SettingsFile != "" {
		watcher, err := settings.NewWatcher(store, cfg.SettingsFile)
		if err != nil {
			return err
		}
		watcher.OnReload(func(err error) {
			if err == nil {
				metrics.SettingsUpdated("file")
			}
		})
		if err := watcher.Start(gctx); err != nil {
			return fmt.Errorf("watch settings: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			watcher.Stop()
			return nil
		})
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	logging.Boot("opengridgen %s: units %.2f/%.2f, %d workers",
		Version, store.Current().UnitSize, store.Current().UnitHeight, cfg.Executor.MaxConcurrent)

	g.Go(func() error {
		return srv.Run(gctx, addr, cfg.GetShutdownTimeout())
	})
	return g.Wait()
}
