package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	categoryStore "github.com/MrJamesThe3rd/ledgermatch/internal/category/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/config"
	"github.com/MrJamesThe3rd/ledgermatch/internal/database"
	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	expenseStore "github.com/MrJamesThe3rd/ledgermatch/internal/expense/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	reconcileStore "github.com/MrJamesThe3rd/ledgermatch/internal/reconcile/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	ruleStore "github.com/MrJamesThe3rd/ledgermatch/internal/rule/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
	txStore "github.com/MrJamesThe3rd/ledgermatch/internal/transaction/store"
)

var (
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operator CLI for the categorization and reconciliation engine",
		Long: `ledgerctl runs the engine's batch passes in the foreground with live progress,
manages the database schema and inspects categorization rules.

Settings come from the same environment variables (and .env file) as the API.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(autoCategorizeCmd())
	rootCmd.AddCommand(autoMatchCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(rulesCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	loaded, err := config.Load()
	if err != nil {
		return err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		loaded.Log.Level = level
	}

	logger, err := loaded.Logger(os.Stderr)
	if err != nil {
		return err
	}

	slog.SetDefault(logger)
	cfg = loaded

	return nil
}

func openDB(ctx context.Context) (*sql.DB, error) {
	db, err := database.New(ctx, cfg.ConnectionString(), database.Options{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return db, nil
}

type services struct {
	transactions *transaction.Service
	rules        *rule.Service
	categorize   *categorize.Service
	reconcile    *reconcile.Service
}

func newServices(db *sql.DB) *services {
	txs := transaction.NewService(txStore.New(db))
	categories := category.NewService(categoryStore.New(db))
	rules := rule.NewService(ruleStore.New(db), categories)

	return &services{
		transactions: txs,
		rules:        rules,
		categorize:   categorize.NewService(txs, rules, categories, cfg.CategorizeOptions()),
		reconcile:    reconcile.NewService(reconcileStore.New(db), txs, expense.NewService(expenseStore.New(db)), cfg.Weights()),
	}
}

// withServices opens the database, builds the services and runs fn.
func withServices(ctx context.Context, fn func(*services) error) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return fn(newServices(db))
}
