package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatello/gateway/pkg/analytics"
	"chatello/gateway/pkg/catalog"
	"chatello/gateway/pkg/cli"
	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/gate"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/limits"
	"chatello/gateway/pkg/providerfactory"
	"chatello/gateway/pkg/security/auth"
	"chatello/gateway/pkg/server"
	"chatello/gateway/pkg/telemetry/health"
	"chatello/gateway/pkg/telemetry/metrics"
	"chatello/gateway/pkg/telemetry/tracing"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run"},
	Short:   "Start the Chatello API server",
	Long: `Start the Chatello API server with the specified configuration.

The server seeds and syncs the plan catalog, starts the analytics scheduler
and the catalog watcher when configured, and serves the license, chat, usage,
and admin endpoints until SIGINT or SIGTERM.

Examples:
  # Start with defaults (SQLite in ./data)
  chatello serve

  # Start with custom config
  chatello serve --config /etc/chatello/config.yaml

  # Override listen address
  chatello serve --listen 0.0.0.0:8080

  # Validate config without starting the server
  chatello serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}

	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}

	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		return cli.NewCommandError("serve", err)
	}
	return nil
}

// serve wires every component and blocks until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.MetricsEnabled() {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	a, err := openApp(ctx, cfg, logger, collector)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.syncCatalog(ctx); err != nil {
		return fmt.Errorf("failed to sync plan catalog: %w", err)
	}

	pm := providerfactory.NewManager(config.KnownProviders()...)
	defer pm.Close()
	if err := pm.LoadFromConfig(cfg.Providers); err != nil {
		logger.Warn("some providers failed to initialize", "error", err)
	}
	if pm.ProviderCount() == 0 {
		logger.Warn("no AI providers configured, chat requests will be answered with 503")
	}

	directory := licensing.NewDirectory(a.store, logger, collector)
	lm := limits.NewManager(a.store, collector, logger)
	g := gate.New(cfg.Gate, gate.Dependencies{
		Directory: directory,
		Plans:     a.registry,
		Limits:    lm,
		Providers: pm,
		Tracer:    tracer,
		Metrics:   collector,
		Logger:    logger,
	})

	checker := health.New(0)
	if p, ok := a.cache.(interface{ Ping(context.Context) error }); ok {
		checker.RegisterOptionalCheck("cache", p.Ping)
	}

	admin := auth.NewValidator(cfg.Admin)
	if !admin.Enabled() {
		logger.Warn("no admin API keys configured, admin endpoints will reject every request")
	}

	deps := server.Dependencies{
		Store:     a.store,
		Gate:      g,
		Limits:    lm,
		Directory: directory,
		Registry:  a.registry,
		Allocator: a.allocator(),
		Providers: pm,
		Admin:     admin,
		Health:    checker,
		Metrics:   collector,
		Tracer:    tracer,
		Logger:    logger,
		Version:   Version,
	}

	grp, ctx := errgroup.WithContext(ctx)

	if cfg.Analytics.Enabled {
		snapshots, err := analytics.NewSQLiteStore(cfg.Analytics.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open analytics store: %w", err)
		}
		defer snapshots.Close()

		job := analytics.NewJob(a.store, snapshots, cfg.Analytics.RetentionDays, collector, logger)
		deps.Analytics = job

		scheduler := analytics.NewScheduler(job, cfg.Analytics.Schedule)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start analytics scheduler: %w", err)
		}
		defer scheduler.Stop()
		if next := scheduler.NextRun(); next != nil {
			logger.Info("analytics scheduled", "next_run", next.Format(time.RFC3339))
		}
	}

	if cfg.Catalog.Watch && cfg.Catalog.File != "" {
		watcher, err := catalog.NewWatcher(cfg.Catalog.File, a.syncer, catalog.DefaultDebounce, logger)
		if err != nil {
			return fmt.Errorf("failed to create catalog watcher: %w", err)
		}
		defer watcher.Stop()
		grp.Go(func() error {
			return watcher.Watch(ctx)
		})
	}

	srv, err := server.New(cfg, deps)
	if err != nil {
		return err
	}
	grp.Go(func() error {
		return srv.Start(ctx)
	})

	logger.Info("chatello started",
		"version", Version,
		"address", cfg.Server.ListenAddress,
		"storage", cfg.Storage.Backend,
		"cache", cfg.Cache.Backend,
		"providers", pm.ProviderCount(),
		"analytics", cfg.Analytics.Enabled,
	)

	return grp.Wait()
}
