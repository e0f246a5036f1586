package reconcile_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 10, 30, 0, 0, time.UTC)
}

func signals(c reconcile.Candidate) []reconcile.Signal {
	var out []reconcile.Signal
	for _, r := range c.Reasons {
		out = append(out, r.Signal)
	}

	return out
}

func TestFindCandidates_ExactPaymentScenario(t *testing.T) {
	tx := &transaction.Transaction{Amount: -10000, Date: day(2), CounterpartyINN: "7701234567"}
	expenses := []*expense.Request{
		{ID: 1, Amount: 10000, RemainingAmount: 10000, RequestDate: day(1), ContractorINN: "7701234567"},
		{ID: 2, Amount: 50000, RemainingAmount: 50000, RequestDate: day(1), ContractorINN: "5001112223"},
	}

	got := reconcile.FindCandidates(tx, expenses, 0, reconcile.DefaultWeights())
	require.NotEmpty(t, got)

	assert.Equal(t, int64(1), got[0].ExpenseID)
	assert.GreaterOrEqual(t, got[0].Score, 90.0)
	assert.Equal(t, 1, got[0].DateDistanceDays)
	assert.Equal(t, []reconcile.Signal{reconcile.SignalAmount, reconcile.SignalDate, reconcile.SignalINN}, signals(got[0]))
}

func TestFindCandidates_AmountDecay(t *testing.T) {
	w := reconcile.DefaultWeights()
	e := &expense.Request{ID: 1, Amount: 10000, RemainingAmount: 10000, RequestDate: day(1), ContractorINN: "1"}

	tests := []struct {
		name   string
		amount int64
		want   float64
	}{
		{"Exact", -10000, 100},
		{"FivePercent", -10500, 77.78},
		{"TenPercent", -11000, 55.56},
		{"Beyond", -20000, 55.56},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &transaction.Transaction{Amount: tt.amount, Date: day(1), CounterpartyINN: "1"}

			got := reconcile.FindCandidates(tx, []*expense.Request{e}, 0, w)
			require.Len(t, got, 1)
			assert.InDelta(t, tt.want, got[0].Score, 0.001)
		})
	}
}

func TestFindCandidates_DateDecayUsesCloserDate(t *testing.T) {
	w := reconcile.DefaultWeights()
	tx := &transaction.Transaction{Amount: -100, Date: day(1).AddDate(0, 2, 0)}

	tests := []struct {
		name     string
		req      *expense.Request
		wantDays int
		want     float64
	}{
		{
			name:     "FarRequestDate",
			req:      &expense.Request{ID: 1, Amount: 100, RemainingAmount: 100, RequestDate: day(1)},
			wantDays: 61,
			want:     61.54,
		},
		{
			name: "CloseDueDate",
			req: &expense.Request{
				ID: 1, Amount: 100, RemainingAmount: 100, RequestDate: day(1),
				DueDate: new(day(1).AddDate(0, 2, 2)),
			},
			wantDays: 2,
			want:     100,
		},
		{
			name: "HalfwayDecay",
			req: &expense.Request{
				ID: 1, Amount: 100, RemainingAmount: 100, RequestDate: day(1),
				DueDate: new(day(1).AddDate(0, 2, -16)),
			},
			wantDays: 16,
			want:     81.48,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reconcile.FindCandidates(tx, []*expense.Request{tt.req}, 0, w)
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantDays, got[0].DateDistanceDays)
			assert.InDelta(t, tt.want, got[0].Score, 0.01)
		})
	}
}

func TestFindCandidates_RenormalizesOverPresentSignals(t *testing.T) {
	tx := &transaction.Transaction{Amount: -500, CounterpartyINN: "1"}
	e := &expense.Request{ID: 1, Amount: 500, RemainingAmount: 500}

	got := reconcile.FindCandidates(tx, []*expense.Request{e}, 0, reconcile.DefaultWeights())
	require.Len(t, got, 1)
	assert.InDelta(t, 100, got[0].Score, 1e-9)
	assert.Equal(t, []reconcile.Signal{reconcile.SignalAmount}, signals(got[0]))
}

func TestFindCandidates_INNMismatchCountsAgainst(t *testing.T) {
	tx := &transaction.Transaction{Amount: -500, CounterpartyINN: "1"}
	e := &expense.Request{ID: 1, Amount: 500, RemainingAmount: 500, ContractorINN: "2"}

	got := reconcile.FindCandidates(tx, []*expense.Request{e}, 0, reconcile.DefaultWeights())
	require.Len(t, got, 1)
	assert.InDelta(t, 61.54, got[0].Score, 0.01)
}

func TestFindCandidates_FuzzyName(t *testing.T) {
	tx := &transaction.Transaction{Amount: -500, CounterpartyName: "ООО Ромашка Плюс"}

	tests := []struct {
		name     string
		other    string
		wantName bool
		want     float64
	}{
		{"Typo", "Ромашкя плюс", true, 100},
		{"HalfTokens", "Ромашка Сервис", true, 90},
		{"Unrelated", "Василёк", false, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &expense.Request{ID: 1, Amount: 500, RemainingAmount: 500, ContractorName: tt.other}

			got := reconcile.FindCandidates(tx, []*expense.Request{e}, 0, reconcile.DefaultWeights())
			require.Len(t, got, 1)
			assert.InDelta(t, tt.want, got[0].Score, 0.01)
			assert.Equal(t, tt.wantName, len(got[0].Reasons) == 2)
		})
	}
}

func TestFindCandidates_OrderingAndFiltering(t *testing.T) {
	tx := &transaction.Transaction{Amount: -1000, Date: day(10), CounterpartyINN: "1"}

	expenses := []*expense.Request{
		{ID: 5, Amount: 1000, RemainingAmount: 1000, RequestDate: day(8), ContractorINN: "1"},
		{ID: 4, Amount: 1000, RemainingAmount: 1000, RequestDate: day(9), ContractorINN: "1"},
		{ID: 3, Amount: 1000, RemainingAmount: 1000, RequestDate: day(9), ContractorINN: "1"},
		{ID: 2, Amount: 1000, RemainingAmount: 0, RequestDate: day(10), ContractorINN: "1"},
		{ID: 1, Amount: 9000, RemainingAmount: 9000, RequestDate: day(10), ContractorINN: "9"},
	}

	got := reconcile.FindCandidates(tx, expenses, 70, reconcile.DefaultWeights())

	var ids []int64
	for _, c := range got {
		ids = append(ids, c.ExpenseID)
	}

	assert.Equal(t, []int64{3, 4, 5}, ids)
}
