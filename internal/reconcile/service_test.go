package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	"github.com/MrJamesThe3rd/ledgermatch/internal/testutil/memstore"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

func newService(st *memstore.Store) *reconcile.Service {
	return reconcile.NewService(st, transaction.NewService(st), expense.NewService(st), reconcile.DefaultWeights())
}

func debit(id, amount int64, date int, inn string) *transaction.Transaction {
	return &transaction.Transaction{
		ID:              id,
		Amount:          -amount,
		Direction:       transaction.DirectionDebit,
		Date:            day(date),
		CounterpartyINN: inn,
	}
}

func request(id, amount int64, date int, inn string) *expense.Request {
	return &expense.Request{
		ID:              id,
		Amount:          amount,
		RemainingAmount: amount,
		RequestDate:     day(date),
		ContractorINN:   inn,
		Status:          expense.StatusApproved,
	}
}

func TestAutoMatch_IsIdempotent(t *testing.T) {
	st := memstore.New()
	st.AddTransactions(
		debit(1, 10000, 2, "7701234567"),
		debit(2, 5000, 5, "5001112223"),
		debit(3, 777, 20, "9999999999"),
		&transaction.Transaction{ID: 4, Amount: 10000, Direction: transaction.DirectionCredit, Date: day(2), CounterpartyINN: "7701234567"},
	)
	st.AddExpenses(
		request(10, 10000, 1, "7701234567"),
		request(11, 5000, 4, "5001112223"),
	)

	svc := newService(st)

	res, err := svc.AutoMatch(context.Background(), reconcile.AutoMatchOptions{Threshold: 70}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.MatchedCount)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, int64(1), res.Matches[0].TransactionID)
	assert.Equal(t, int64(10), res.Matches[0].ExpenseID)

	assert.Equal(t, int64(10), *st.Transaction(1).LinkedExpenseID)
	assert.Nil(t, st.Transaction(4).LinkedExpenseID)
	assert.Equal(t, int64(0), st.Expense(10).RemainingAmount)
	assert.Equal(t, expense.StatusPaid, st.Expense(10).Status)

	res, err = svc.AutoMatch(context.Background(), reconcile.AutoMatchOptions{Threshold: 70}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.MatchedCount)
}

func TestAutoMatch_NeverDoubleClaims(t *testing.T) {
	st := memstore.New()
	st.AddTransactions(
		debit(2, 10000, 2, "1"),
		debit(1, 10000, 2, "1"),
	)
	st.AddExpenses(request(10, 10000, 1, "1"))

	res, err := newService(st).AutoMatch(context.Background(), reconcile.AutoMatchOptions{Threshold: 70}, nil)
	require.NoError(t, err)

	require.Equal(t, 1, res.MatchedCount)
	assert.Equal(t, int64(1), res.Matches[0].TransactionID, "lower id wins")
	assert.Nil(t, st.Transaction(2).LinkedExpenseID)
}

func TestAutoMatch_ReachesFixedPoint(t *testing.T) {
	st := memstore.New()
	// Transaction 1 only fits the request once transaction 2 has paid most
	// of it, so a single pass would leave work for a second run.
	st.AddTransactions(
		debit(1, 500, 2, "1"),
		debit(2, 19500, 2, "1"),
	)
	st.AddExpenses(request(10, 20000, 1, "1"))

	svc := newService(st)

	res, err := svc.AutoMatch(context.Background(), reconcile.AutoMatchOptions{Threshold: 70}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.MatchedCount)
	assert.Equal(t, int64(2), res.Matches[0].TransactionID)
	assert.Equal(t, int64(1), res.Matches[1].TransactionID)

	res, err = svc.AutoMatch(context.Background(), reconcile.AutoMatchOptions{Threshold: 70}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.MatchedCount)
}

func TestAutoMatch_LimitAndIgnored(t *testing.T) {
	st := memstore.New()

	ignored := debit(1, 100, 2, "1")
	ignored.Status = transaction.StatusIgnored

	st.AddTransactions(ignored, debit(2, 200, 2, "2"), debit(3, 300, 2, "3"))
	st.AddExpenses(request(10, 100, 1, "1"), request(11, 200, 1, "2"), request(12, 300, 1, "3"))

	res, err := newService(st).AutoMatch(context.Background(), reconcile.AutoMatchOptions{Threshold: 70, Limit: 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.MatchedCount)
	assert.Nil(t, st.Transaction(1).LinkedExpenseID)
	assert.Equal(t, int64(11), *st.Transaction(2).LinkedExpenseID)
	assert.Nil(t, st.Transaction(3).LinkedExpenseID)
}

func TestAutoMatch_Cancelled(t *testing.T) {
	st := memstore.New()
	st.AddTransactions(debit(1, 100, 2, "1"))
	st.AddExpenses(request(10, 100, 1, "1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newService(st).AutoMatch(ctx, reconcile.AutoMatchOptions{Threshold: 70}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.MatchedCount)
}

func TestLinkAndUnlink(t *testing.T) {
	st := memstore.New()
	st.AddTransactions(debit(1, 4000, 2, ""), debit(2, 9000, 2, ""))
	st.AddExpenses(request(10, 10000, 1, ""), request(11, 500, 1, ""))

	svc := newService(st)
	ctx := context.Background()

	tx, err := svc.Link(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), tx.LinkedAmount)
	assert.Equal(t, int64(6000), st.Expense(10).RemainingAmount)
	assert.Equal(t, expense.StatusPartiallyPaid, st.Expense(10).Status)

	_, err = svc.Link(ctx, 1, 10)
	require.NoError(t, err, "relinking the same pair is a no-op")
	assert.Equal(t, int64(6000), st.Expense(10).RemainingAmount)

	_, err = svc.Link(ctx, 1, 11)
	assert.ErrorIs(t, err, reconcile.ErrAlreadyLinked)

	tx, err = svc.Link(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), tx.LinkedAmount, "capped at the remaining amount")
	assert.Equal(t, expense.StatusPaid, st.Expense(10).Status)

	_, err = svc.Unlink(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), st.Expense(10).RemainingAmount)
	assert.Nil(t, st.Transaction(1).LinkedExpenseID)

	_, err = svc.Unlink(ctx, 1)
	require.NoError(t, err, "unlinking twice is a no-op")

	_, err = svc.Unlink(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), st.Expense(10).RemainingAmount)
	assert.Equal(t, expense.StatusApproved, st.Expense(10).Status)
}

func TestLink_Errors(t *testing.T) {
	st := memstore.New()
	st.AddTransactions(
		debit(1, 100, 2, ""),
		&transaction.Transaction{ID: 2, Amount: 100, Direction: transaction.DirectionCredit},
	)

	paid := request(10, 100, 1, "")
	paid.RemainingAmount = 0
	st.AddExpenses(paid)

	svc := newService(st)
	ctx := context.Background()

	_, err := svc.Link(ctx, 1, 10)
	assert.ErrorIs(t, err, reconcile.ErrExpenseSettled)

	_, err = svc.Link(ctx, 1, 99)
	assert.ErrorIs(t, err, expense.ErrNotFound)

	_, err = svc.Link(ctx, 2, 10)
	assert.ErrorIs(t, err, reconcile.ErrNotDebit)

	_, err = svc.Link(ctx, 3, 10)
	assert.ErrorIs(t, err, transaction.ErrNotFound)
}

func TestAutoMatch_ConflictFailsOneItem(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := memstore.New()
	st.AddTransactions(debit(1, 100, 2, "1"), debit(2, 200, 2, "2"))
	st.AddExpenses(request(10, 100, 1, "1"), request(11, 200, 1, "2"))

	repo := reconcile.NewMockRepository(ctrl)
	repo.EXPECT().LinkExpense(gomock.Any(), gomock.Any(), int64(10), int64(100)).Return(transaction.ErrConflict)
	repo.EXPECT().LinkExpense(gomock.Any(), gomock.Any(), int64(11), int64(200)).Return(nil)

	svc := reconcile.NewService(repo, transaction.NewService(st), expense.NewService(st), reconcile.DefaultWeights())

	res, err := svc.AutoMatch(context.Background(), reconcile.AutoMatchOptions{Threshold: 70}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.MatchedCount)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "modified concurrently")
}
