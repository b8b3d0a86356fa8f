package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vipul43/kiwis-sync-scheduler/internal/config"
	"github.com/vipul43/kiwis-sync-scheduler/internal/database"
	"github.com/vipul43/kiwis-sync-scheduler/internal/httpapi"
	"github.com/vipul43/kiwis-sync-scheduler/internal/logging"
	"github.com/vipul43/kiwis-sync-scheduler/internal/metrics"
	"github.com/vipul43/kiwis-sync-scheduler/internal/repository"
	"github.com/vipul43/kiwis-sync-scheduler/internal/scheduler"
	"github.com/vipul43/kiwis-sync-scheduler/internal/service"
	"github.com/vipul43/kiwis-sync-scheduler/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sync-scheduler",
		Short:         "Daily batch dispatcher for location sync jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe()
		},
	}
	root.AddCommand(newServeCmd(), newSweepCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface and the daily sweep schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe()
		},
	}
}

func newSweepCmd() *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep in the foreground and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(accountID)
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "dispatch only this account instead of all eligible accounts")
	return cmd
}

// app holds everything both commands share
type app struct {
	cfg        *config.Config
	logger     *zap.SugaredLogger
	db         *gorm.DB
	registry   *prometheus.Registry
	dispatcher *service.Dispatcher
	reporter   *service.StatusReporter
}

func setup(ctx context.Context) (*app, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	// Connect to database
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Infow("Database connected successfully")

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	logger.Infow("Migrations completed successfully")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(db)
	jobRepo := repository.NewSyncJobRepository(db, cfg.Platform)

	workerClient := worker.NewClient(cfg.WorkerBaseURL, cfg.WorkerAPIKey, cfg.Platform, cfg.WorkerTimeout)

	dispatcher := service.NewDispatcher(accountRepo, jobRepo, workerClient, logger, metrics.New(registry), service.DispatcherConfig{
		Platform:   cfg.Platform,
		BatchSize:  cfg.BatchSize,
		BatchDelay: cfg.BatchDelay,
	})
	reporter := service.NewStatusReporter(accountRepo, jobRepo, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		registry:   registry,
		dispatcher: dispatcher,
		reporter:   reporter,
	}, nil
}

func (a *app) close() {
	if err := database.Close(a.db); err != nil {
		a.logger.Warnw("Failed to close database", "error", err)
	}
	_ = a.logger.Sync()
}

func runServe() error {
	a, err := setup(context.Background())
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := scheduler.New(a.dispatcher, a.reporter, scheduler.Config{
		CronSpec: a.cfg.CronSpec,
		Timezone: a.cfg.Timezone,
	}, a.logger)
	if err != nil {
		return err
	}

	if a.cfg.AutoStart {
		if err := sched.Start(); err != nil {
			return err
		}
	} else {
		a.logger.Infow("Scheduler not armed at startup, use POST /api/scheduler/start")
	}

	server := httpapi.NewServer(a.cfg.HTTPAddr, httpapi.NewRouter(sched, a.cfg.WebhookSecret, a.registry, a.logger))

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start HTTP server in goroutine
	errChan := make(chan error, 1)
	go func() {
		a.logger.Infow("HTTP server listening", "addr", a.cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	var runErr error
	select {
	case sig := <-sigChan:
		a.logger.Infow("Shutdown signal received", "signal", sig.String())
	case runErr = <-errChan:
		a.logger.Errorw("HTTP server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warnw("HTTP server shutdown incomplete", "error", err)
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		a.logger.Warnw("Shutdown timeout exceeded", "error", err)
	}

	a.logger.Infow("Application stopped")
	return runErr
}

func runSweep(accountID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if accountID != "" {
		outcome, err := a.dispatcher.SyncAccount(ctx, accountID)
		if err != nil {
			return err
		}
		a.logger.Infow("Account sync finished", "account_id", accountID, "outcome", outcome)
		if outcome != service.OutcomeDispatched && outcome != service.OutcomeSkippedActive {
			return fmt.Errorf("account %s: dispatch %s", accountID, outcome)
		}
		return nil
	}

	result := a.dispatcher.RunFullSweep(ctx)
	if result.Interrupted {
		return fmt.Errorf("sweep interrupted after %d of %d accounts", result.Dispatched+result.Skipped+result.Failed, result.Accounts)
	}
	return nil
}
