package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/jmylchreest/tvarr-replay/internal/catalog"
	"github.com/jmylchreest/tvarr-replay/internal/config"
	"github.com/jmylchreest/tvarr-replay/internal/controlapi"
	"github.com/jmylchreest/tvarr-replay/internal/database"
	"github.com/jmylchreest/tvarr-replay/internal/database/migrations"
	internalhttp "github.com/jmylchreest/tvarr-replay/internal/http"
	"github.com/jmylchreest/tvarr-replay/internal/http/handlers"
	"github.com/jmylchreest/tvarr-replay/internal/models"
	"github.com/jmylchreest/tvarr-replay/internal/observability"
	"github.com/jmylchreest/tvarr-replay/internal/repository"
	"github.com/jmylchreest/tvarr-replay/internal/scheduler"
	"github.com/jmylchreest/tvarr-replay/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control API server",
	Long: `Start the tvarr-replay control API server.

The server provides:
- REST API for listing catalog entries and controlling VCR-style replay
  sessions
- A streaming range-query endpoint for bulk tick/time window reads
- Background catalog reconciliation and stale-entry pruning via the
  scheduler
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "address to bind to (overrides config)")
	serveCmd.Flags().String("root-dir", "", "recordings root directory (overrides config)")

	mustBindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	mustBindPFlag("catalog.root_dir", serveCmd.Flags().Lookup("root-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	db, err := database.New(cfg.Catalog, logger, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := runMigrations(db.DB, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	catalogRepo := repository.NewCatalogRepository(db.DB)
	jobRepo := repository.NewJobRepository(db.DB)

	catalogService := catalog.NewService(catalogRepo).WithLogger(logger)

	jobExecutor := scheduler.NewExecutor(jobRepo).WithLogger(logger)
	jobExecutor.RegisterHandler(models.JobTypeCatalogReconcile,
		scheduler.NewCatalogReconcileHandler(catalogService, cfg.Catalog.RootDir).WithLogger(logger))
	jobExecutor.RegisterHandler(models.JobTypePruneStale,
		scheduler.NewPruneStaleHandler(catalogService).WithLogger(logger))

	jobRunner := scheduler.NewRunner(jobRepo, jobExecutor).WithLogger(logger)

	cronScheduler := scheduler.NewScheduler(jobRepo).WithLogger(logger).WithConfig(scheduler.SchedulerConfig{
		InternalJobs: []scheduler.InternalJobConfig{
			{
				JobType:      models.JobTypeCatalogReconcile,
				TargetName:   "catalog-reconcile",
				CronSchedule: scheduler.IntervalToCron(cfg.Scheduler.ReconcileInterval),
			},
			{
				JobType:      models.JobTypePruneStale,
				TargetName:   "prune-stale",
				CronSchedule: cfg.Scheduler.PruneSchedule,
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := jobRunner.Start(ctx); err != nil {
		return fmt.Errorf("starting job runner: %w", err)
	}
	defer jobRunner.Stop()

	if err := cronScheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer cronScheduler.Stop()

	serverConfig := internalhttp.ServerConfig{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     internalhttp.DefaultServerConfig().IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	docsHandler := handlers.NewDocsHandler("tvarr-replay API", "/openapi.yaml", handlers.WithSystemTheme())
	server.Router().Get("/docs", docsHandler.ServeHTTP)

	api := controlapi.New(catalogRepo, cfg.Catalog.RootDir, logger)
	api.Register(server.API())
	api.RegisterChiRoutes(server.Router())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting tvarr-replay server",
		slog.String("addr", serverConfig.Addr),
		slog.String("root_dir", cfg.Catalog.RootDir),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	migrator := migrations.NewMigrator(db, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	return migrator.Up(context.Background())
}
