package engine_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	"github.com/MrJamesThe3rd/ledgermatch/internal/engine"
	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	"github.com/MrJamesThe3rd/ledgermatch/internal/job"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	"github.com/MrJamesThe3rd/ledgermatch/internal/testutil/memstore"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

type fixture struct {
	store  *memstore.Store
	runner *job.Runner
	engine *engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memstore.New()
	st.AddCategories(42)

	txs := transaction.NewService(st)
	cats := category.NewService(st)
	rules := rule.NewService(st, cats)

	runner := job.NewRunner(job.Options{
		Workers: 2,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = runner.Shutdown(ctx)
	})

	return &fixture{
		store:  st,
		runner: runner,
		engine: engine.New(
			categorize.NewService(txs, rules, cats, categorize.DefaultOptions()),
			reconcile.NewService(st, txs, expense.NewService(st), reconcile.DefaultWeights()),
			runner,
		),
	}
}

func (f *fixture) wait(t *testing.T, id uuid.UUID) job.Job {
	t.Helper()

	var last job.Job

	require.Eventually(t, func() bool {
		j, err := f.runner.Get(id)
		require.NoError(t, err)

		last = j

		return j.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	return last
}

func TestStartBulkCategorize_CancelMidway(t *testing.T) {
	f := newFixture(t)

	ids := make([]int64, 0, 200)
	for id := int64(1); id <= 200; id++ {
		f.store.AddTransactions(&transaction.Transaction{ID: id, Amount: -100, Direction: transaction.DirectionDebit})
		ids = append(ids, id)
	}

	reached := make(chan struct{})
	release := make(chan struct{})

	var writes atomic.Int32

	f.store.BeforeUpdate = func(*transaction.Transaction) error {
		if writes.Add(1) == 50 {
			close(reached)
			<-release
		}

		return nil
	}

	submitted, err := f.engine.StartBulkCategorize(context.Background(), ids, 42)
	require.NoError(t, err)
	assert.Equal(t, job.TypeBulkCategorize, submitted.Type)

	<-reached

	_, err = f.runner.Cancel(submitted.TaskID)
	require.NoError(t, err)

	close(release)

	j := f.wait(t, submitted.TaskID)
	assert.Equal(t, job.StatusCancelled, j.Status)
	assert.Equal(t, 50, j.Processed)
	assert.Equal(t, 200, j.Total)

	res, ok := j.Result.(categorize.BulkResult)
	require.True(t, ok)
	assert.Equal(t, 50, res.Updated)

	assert.Equal(t, transaction.StatusCategorized, f.store.Transaction(50).Status)
	assert.Equal(t, transaction.StatusNew, f.store.Transaction(51).Status)
}

func TestStartBulkCategorize_RejectsUnknownCategory(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(&transaction.Transaction{ID: 1, Amount: -100})

	_, err := f.engine.StartBulkCategorize(context.Background(), []int64{1}, 99)
	assert.ErrorIs(t, err, categorize.ErrCategoryNotFound)
	assert.Empty(t, f.runner.List())
}

func TestStartAutoMatch_RejectsInvalidOptions(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.StartAutoMatch(reconcile.AutoMatchOptions{Threshold: 120})
	assert.ErrorIs(t, err, reconcile.ErrInvalidOptions)

	_, err = f.engine.StartSync(reconcile.AutoMatchOptions{Threshold: 70, Limit: -1})
	assert.ErrorIs(t, err, reconcile.ErrInvalidOptions)

	assert.Empty(t, f.runner.List())
}

func TestStartAutoMatch_Completes(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(&transaction.Transaction{
		ID: 1, Amount: -10000, Direction: transaction.DirectionDebit,
		Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), CounterpartyINN: "7701234567",
	})
	f.store.AddExpenses(&expense.Request{
		ID: 10, Amount: 10000, RemainingAmount: 10000, Status: expense.StatusApproved,
		RequestDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ContractorINN: "7701234567",
	})

	submitted, err := f.engine.StartAutoMatch(reconcile.AutoMatchOptions{Threshold: 70})
	require.NoError(t, err)

	j := f.wait(t, submitted.TaskID)
	require.Equal(t, job.StatusCompleted, j.Status)

	res, ok := j.Result.(reconcile.AutoMatchResult)
	require.True(t, ok)
	assert.Equal(t, 1, res.MatchedCount)
	assert.Equal(t, 1, j.Processed)
}

func TestStartSync_RunsBothStages(t *testing.T) {
	f := newFixture(t)

	cats := category.NewService(f.store)
	rules := rule.NewService(f.store, cats)

	m, err := rule.MatchOf(rule.TypeCounterpartyINN, "7701234567")
	require.NoError(t, err)

	_, _, err = rules.Create(context.Background(), rule.Params{
		Type:       rule.TypeCounterpartyINN,
		Fields:     m.Fields(),
		CategoryID: 42,
		Priority:   10,
	})
	require.NoError(t, err)

	f.store.AddTransactions(&transaction.Transaction{
		ID: 1, Amount: -10000, Direction: transaction.DirectionDebit,
		Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), CounterpartyINN: "7701234567",
	})
	f.store.AddExpenses(&expense.Request{
		ID: 10, Amount: 10000, RemainingAmount: 10000, Status: expense.StatusApproved,
		RequestDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ContractorINN: "7701234567",
	})

	submitted, err := f.engine.StartSync(reconcile.AutoMatchOptions{Threshold: 70})
	require.NoError(t, err)

	j := f.wait(t, submitted.TaskID)
	require.Equal(t, job.StatusCompleted, j.Status)
	assert.Equal(t, engine.StageMatch, j.Stage)

	res, ok := j.Result.(engine.SyncResult)
	require.True(t, ok)
	assert.Equal(t, 1, res.Categorize.AutoApplied)
	assert.Equal(t, 1, res.Match.MatchedCount)

	tx := f.store.Transaction(1)
	assert.Equal(t, transaction.StatusCategorized, tx.Status)
	require.NotNil(t, tx.LinkedExpenseID)
	assert.Equal(t, int64(10), *tx.LinkedExpenseID)
}
