package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/ledgermatch/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	categoryStore "github.com/MrJamesThe3rd/ledgermatch/internal/category/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/config"
	"github.com/MrJamesThe3rd/ledgermatch/internal/database"
	"github.com/MrJamesThe3rd/ledgermatch/internal/engine"
	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	expenseStore "github.com/MrJamesThe3rd/ledgermatch/internal/expense/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/job"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	reconcileStore "github.com/MrJamesThe3rd/ledgermatch/internal/reconcile/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	ruleStore "github.com/MrJamesThe3rd/ledgermatch/internal/rule/store"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
	txStore "github.com/MrJamesThe3rd/ledgermatch/internal/transaction/store"
)

type model struct {
	txService         *transaction.Service
	categoryService   *category.Service
	ruleService       *rule.Service
	categorizeService *categorize.Service
	reconcileService  *reconcile.Service
	engine            *engine.Engine
	runner            *job.Runner
	cfg               *config.Config

	currentView View
	width       int
	height      int

	reviewView       view.ReviewModel
	transactionsView view.TransactionsModel
	matchingView     view.MatchingModel
	rulesView        view.RulesModel
	jobsView         view.JobsModel
}

type View int

const (
	ViewMenu View = iota
	ViewReview
	ViewTransactions
	ViewMatching
	ViewRules
	ViewJobs
)

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.currentView == ViewMenu {
			return m.updateMenu(msg)
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	return m.updateCurrent(msg)
}

func (m model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "1":
		m.currentView = ViewReview
		m.reviewView = view.NewReviewModel(m.txService, m.categoryService, m.categorizeService)
		cmd = m.reviewView.Init()
	case "2":
		m.currentView = ViewTransactions
		m.transactionsView = view.NewTransactionsModel(m.txService, m.categoryService, m.categorizeService, m.reconcileService)
		cmd = m.transactionsView.Init()
	case "3":
		m.currentView = ViewMatching
		m.matchingView = view.NewMatchingModel(m.txService, m.reconcileService, m.cfg.Matching.Threshold)
		cmd = m.matchingView.Init()
	case "4":
		m.currentView = ViewRules
		m.rulesView = view.NewRulesModel(m.ruleService, m.categoryService)
		cmd = m.rulesView.Init()
	case "5":
		m.currentView = ViewJobs
		m.jobsView = view.NewJobsModel(m.engine, m.runner, m.cfg.AutoMatchOptions())
		cmd = m.jobsView.Init()
	default:
		return m, nil
	}

	// Size the new screen right away; the terminal only reports on resize.
	if m.width > 0 {
		sized, sizeCmd := m.updateCurrent(tea.WindowSizeMsg{Width: m.width, Height: m.height})
		return sized, tea.Batch(cmd, sizeCmd)
	}

	return m, cmd
}

func (m model) updateCurrent(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		newModel tea.Model
		cmd      tea.Cmd
	)

	switch m.currentView {
	case ViewReview:
		newModel, cmd = m.reviewView.Update(msg)
		m.reviewView = newModel.(view.ReviewModel)
	case ViewTransactions:
		newModel, cmd = m.transactionsView.Update(msg)
		m.transactionsView = newModel.(view.TransactionsModel)
	case ViewMatching:
		newModel, cmd = m.matchingView.Update(msg)
		m.matchingView = newModel.(view.MatchingModel)
	case ViewRules:
		newModel, cmd = m.rulesView.Update(msg)
		m.rulesView = newModel.(view.RulesModel)
	case ViewJobs:
		newModel, cmd = m.jobsView.Update(msg)
		m.jobsView = newModel.(view.JobsModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			lipgloss.NewStyle().Bold(true).Render(m.cfg.App.Name) + " review console\n\n" +
				"1. Review Suggestions\n" +
				"2. Transactions\n" +
				"3. Match Expenses\n" +
				"4. Rules\n" +
				"5. Jobs\n\n" +
				"q. Quit",
		)
	case ViewReview:
		return m.reviewView.View()
	case ViewTransactions:
		return m.transactionsView.View()
	case ViewMatching:
		return m.matchingView.View()
	case ViewRules:
		return m.rulesView.View()
	case ViewJobs:
		return m.jobsView.View()
	}

	return "Unknown View"
}

func main() {
	if err := run(); err != nil {
		slog.Error("tui exited", "error", err)
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

	logger, closeLog, err := tuiLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.ConnectionString(), database.Options{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	var (
		txSvc         = transaction.NewService(txStore.New(db))
		categorySvc   = category.NewService(categoryStore.New(db))
		ruleSvc       = rule.NewService(ruleStore.New(db), categorySvc)
		categorizeSvc = categorize.NewService(txSvc, ruleSvc, categorySvc, cfg.CategorizeOptions())
		reconcileSvc  = reconcile.NewService(reconcileStore.New(db), txSvc, expense.NewService(expenseStore.New(db)), cfg.Weights())
	)

	runner := job.NewRunner(job.Options{
		Workers:      1,
		QueueSize:    cfg.Jobs.QueueSize,
		StallTimeout: cfg.Jobs.StallTimeout,
		Logger:       logger.With("component", "jobs"),
	})

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := runner.Shutdown(shutdownCtx); err != nil {
			slog.Warn("stopping job runner", "error", err)
		}
	}()

	m := model{
		txService:         txSvc,
		categoryService:   categorySvc,
		ruleService:       ruleSvc,
		categorizeService: categorizeSvc,
		reconcileService:  reconcileSvc,
		engine:            engine.New(categorizeSvc, reconcileSvc, runner),
		runner:            runner,
		cfg:               cfg,
		currentView:       ViewMenu,
	}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	return nil
}

func tuiLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.Log.File == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}

	f, err := tea.LogToFile(cfg.Log.File, "tui")
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	logger, err := cfg.Logger(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	return logger, func() { f.Close() }, nil
}
