package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	categoryStore "github.com/MrJamesThe3rd/ledgermatch/internal/category/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/config"
	"github.com/MrJamesThe3rd/ledgermatch/internal/database"
	"github.com/MrJamesThe3rd/ledgermatch/internal/engine"
	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	expenseStore "github.com/MrJamesThe3rd/ledgermatch/internal/expense/store"
	ledgerHttp "github.com/MrJamesThe3rd/ledgermatch/internal/http"
	matchingHandler "github.com/MrJamesThe3rd/ledgermatch/internal/http/matching"
	ruleHandler "github.com/MrJamesThe3rd/ledgermatch/internal/http/rule"
	taskHandler "github.com/MrJamesThe3rd/ledgermatch/internal/http/task"
	txHandler "github.com/MrJamesThe3rd/ledgermatch/internal/http/transaction"
	"github.com/MrJamesThe3rd/ledgermatch/internal/job"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	reconcileStore "github.com/MrJamesThe3rd/ledgermatch/internal/reconcile/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	ruleStore "github.com/MrJamesThe3rd/ledgermatch/internal/rule/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/schedule"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
	txStore "github.com/MrJamesThe3rd/ledgermatch/internal/transaction/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return err
	}

	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.ConnectionString(), database.Options{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	var (
		transactionService = transaction.NewService(txStore.New(db))
		categoryService    = category.NewService(categoryStore.New(db))
		expenseService     = expense.NewService(expenseStore.New(db))
		ruleService        = rule.NewService(ruleStore.New(db), categoryService)
		categorizeService  = categorize.NewService(transactionService, ruleService, categoryService, cfg.CategorizeOptions())
		reconcileService   = reconcile.NewService(reconcileStore.New(db), transactionService, expenseService, cfg.Weights())
	)

	runner := job.NewRunner(job.Options{
		Workers:      cfg.Jobs.Workers,
		QueueSize:    cfg.Jobs.QueueSize,
		StallTimeout: cfg.Jobs.StallTimeout,
		Logger:       logger.With("component", "jobs"),
	})

	eng := engine.New(categorizeService, reconcileService, runner)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	scheduler, err := schedule.New(schedule.Config{
		AutoCategorize: cfg.Schedule.AutoCategorize,
		AutoMatch:      cfg.Schedule.AutoMatch,
		Sync:           cfg.Schedule.Sync,
		Location:       loc,
		Match:          cfg.AutoMatchOptions(),
	}, eng, runner, logger.With("component", "schedule"))
	if err != nil {
		return err
	}

	router := ledgerHttp.New(
		ledgerHttp.Options{AllowedOrigins: cfg.CORS.AllowedOrigins},
		txHandler.NewHandler(transactionService, categorizeService, reconcileService, eng, txHandler.Options{
			MatchThreshold: cfg.Matching.Threshold,
			SyncBulkLimit:  cfg.Server.BulkSyncLimit,
			SyncBudget:     cfg.Server.Timeout * 4 / 5,
		}),
		matchingHandler.NewHandler(reconcileService, eng, cfg.AutoMatchOptions()),
		ruleHandler.NewHandler(ruleService),
		taskHandler.NewHandler(runner),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           http.TimeoutHandler(router, cfg.Server.Timeout, "request timed out"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", server.Addr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	g.Go(func() error {
		purgeJobs(gctx, runner, cfg.Jobs.Retention)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		slog.Info("shutting down")

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}

		if err := runner.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("stopping job runner: %w", err)
		}

		return nil
	})

	return g.Wait()
}

func purgeJobs(ctx context.Context, runner *job.Runner, retention time.Duration) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(min(retention, time.Hour))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := runner.Purge(retention); n > 0 {
				slog.Info("purged finished jobs", "count", n)
			}
		}
	}
}
