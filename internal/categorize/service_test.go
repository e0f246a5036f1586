package categorize_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	"github.com/MrJamesThe3rd/ledgermatch/internal/testutil/memstore"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

type fixture struct {
	store *memstore.Store
	rules *rule.Service
	svc   *categorize.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memstore.New()
	st.AddCategories(5, 6, 7, 42)

	cats := category.NewService(st)
	rules := rule.NewService(st, cats)

	return &fixture{
		store: st,
		rules: rules,
		svc:   categorize.NewService(transaction.NewService(st), rules, cats, categorize.DefaultOptions()),
	}
}

func (f *fixture) addRule(t *testing.T, typ rule.Type, value string, categoryID int64) *rule.Rule {
	t.Helper()

	m, err := rule.MatchOf(typ, value)
	require.NoError(t, err)

	r, _, err := f.rules.Create(context.Background(), rule.Params{
		Type:       typ,
		Fields:     m.Fields(),
		CategoryID: categoryID,
		Priority:   50,
	})
	require.NoError(t, err)

	return r
}

func manual(id int64, inn string, categoryID int64) *transaction.Transaction {
	return &transaction.Transaction{
		ID:              id,
		Amount:          -1000,
		Direction:       transaction.DirectionDebit,
		CounterpartyINN: inn,
		CategoryID:      new(categoryID),
		CategorySource:  transaction.SourceManual,
		Status:          transaction.StatusCategorized,
	}
}

func TestAutoCategorize_RuleScenario(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, rule.TypeCounterpartyINN, "7701234567", 42)
	f.store.AddTransactions(&transaction.Transaction{ID: 1, Amount: -15000, CounterpartyINN: "7701234567"})

	res, err := f.svc.AutoCategorize(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AutoApplied)

	tx := f.store.Transaction(1)
	require.NotNil(t, tx.CategoryID)
	assert.Equal(t, int64(42), *tx.CategoryID)
	assert.Equal(t, transaction.StatusCategorized, tx.Status)
	assert.Equal(t, transaction.SourceRule, tx.CategorySource)

	rules := f.store.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, 1, rules[0].HitCount)
}

func TestAutoCategorize_INNHistoryAutoApplies(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(
		manual(1, "7701234567", 7),
		manual(2, "7701234567", 7),
		manual(3, "7701234567", 7),
		manual(4, "7701234567", 7),
		&transaction.Transaction{ID: 5, Amount: -500, CounterpartyINN: "7701234567"},
	)

	res, err := f.svc.AutoCategorize(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AutoApplied)

	tx := f.store.Transaction(5)
	assert.Equal(t, transaction.StatusCategorized, tx.Status)
	assert.Equal(t, int64(7), *tx.CategoryID)
	assert.InDelta(t, 0.90, *tx.Confidence, 1e-9)
	assert.Equal(t, transaction.SourceINNHistory, tx.CategorySource)
}

func TestAutoCategorize_SuggestsAndIsStable(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(
		&transaction.Transaction{
			ID: 1, CounterpartyName: "ООО Ромашка", CategoryID: new(int64(6)),
			CategorySource: transaction.SourceManual, Status: transaction.StatusApproved,
		},
		&transaction.Transaction{ID: 2, CounterpartyName: "ооо ромашка"},
		&transaction.Transaction{ID: 3, CounterpartyName: "Неизвестный"},
	)

	res, err := f.svc.AutoCategorize(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Suggested)
	assert.Equal(t, 1, res.Skipped)

	tx := f.store.Transaction(2)
	assert.Equal(t, transaction.StatusNeedsReview, tx.Status)
	assert.Nil(t, tx.CategoryID)
	require.NotNil(t, tx.SuggestedCategoryID)
	assert.Equal(t, int64(6), *tx.SuggestedCategoryID)
	assert.InDelta(t, 0.70, *tx.Confidence, 1e-9)

	assert.Equal(t, transaction.StatusNew, f.store.Transaction(3).Status)

	res, err = f.svc.AutoCategorize(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
}

func TestAutoCategorize_SkipsSettledAndUnknown(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, rule.TypeCounterpartyINN, "1", 42)
	f.store.AddTransactions(
		&transaction.Transaction{ID: 1, CounterpartyINN: "1", Status: transaction.StatusIgnored},
		manual(2, "1", 5),
	)

	res, err := f.svc.AutoCategorize(context.Background(), []int64{1, 2, 3}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 3, res.Skipped)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, int64(5), *f.store.Transaction(2).CategoryID)
}

func TestAutoCategorize_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, rule.TypeCounterpartyINN, "1", 42)
	f.store.AddTransactions(&transaction.Transaction{ID: 1, CounterpartyINN: "1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.AutoCategorize(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, transaction.StatusNew, f.store.Transaction(1).Status)
}

func TestCategorizeOne_LearnsRuleOnce(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(&transaction.Transaction{ID: 1, CounterpartyINN: "7701234567", CounterpartyName: "ООО Ромашка"})

	for range 2 {
		tx, err := f.svc.CategorizeOne(context.Background(), 1, 42, "")
		require.NoError(t, err)
		assert.Equal(t, transaction.StatusCategorized, tx.Status)
		assert.Equal(t, transaction.SourceManual, tx.CategorySource)
	}

	rules := f.store.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, rule.TypeCounterpartyINN, rules[0].Match.Type())
	assert.Equal(t, "7701234567", rules[0].Match.Value())
	assert.Equal(t, categorize.LearnedRulePriority, rules[0].Priority)
	assert.Equal(t, rule.OriginLearned, rules[0].Origin)
	assert.Equal(t, int64(1), f.store.Transaction(1).Version, "second call is a no-op write")
}

func TestCategorizeOne_ConcurrentDecisionsLearnOneRule(t *testing.T) {
	f := newFixture(t)

	const n = 6

	for id := range int64(n) {
		f.store.AddTransactions(&transaction.Transaction{ID: id + 1, CounterpartyINN: "7701234567"})
	}

	var wg sync.WaitGroup

	for id := range int64(n) {
		wg.Go(func() {
			_, err := f.svc.CategorizeOne(context.Background(), id+1, 42, "")
			assert.NoError(t, err)
		})
	}

	wg.Wait()

	rules := f.store.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, rule.OriginLearned, rules[0].Origin)
	assert.Equal(t, int64(42), rules[0].CategoryID)
}

func TestCategorizeOne_SupersedesLearnedRule(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(
		&transaction.Transaction{ID: 1, CounterpartyINN: "7701234567"},
		&transaction.Transaction{ID: 2, CounterpartyINN: "7701234567"},
	)

	_, err := f.svc.CategorizeOne(context.Background(), 1, 5, "")
	require.NoError(t, err)

	_, err = f.svc.CategorizeOne(context.Background(), 2, 6, "")
	require.NoError(t, err)

	rules := f.store.Rules()
	require.Len(t, rules, 2)
	assert.False(t, rules[0].IsActive)
	assert.Equal(t, int64(5), rules[0].CategoryID)
	assert.True(t, rules[1].IsActive)
	assert.Equal(t, int64(6), rules[1].CategoryID)
}

func TestCategorizeOne_Errors(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(&transaction.Transaction{ID: 1, CounterpartyINN: "1"})

	_, err := f.svc.CategorizeOne(context.Background(), 1, 999, "")
	assert.ErrorIs(t, err, categorize.ErrCategoryNotFound)
	assert.Equal(t, transaction.StatusNew, f.store.Transaction(1).Status)

	_, err = f.svc.CategorizeOne(context.Background(), 2, 42, "")
	assert.ErrorIs(t, err, transaction.ErrNotFound)

	assert.Empty(t, f.store.Rules())
}

func TestBulkCategorize(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(
		&transaction.Transaction{ID: 1, CounterpartyINN: "7701234567", CounterpartyName: "ООО Ромашка"},
		&transaction.Transaction{ID: 2, CounterpartyINN: "7701234567", CounterpartyName: "ООО Ромашка"},
		&transaction.Transaction{ID: 3, CounterpartyINN: "7701234567", CounterpartyName: "ооо ромашка "},
		&transaction.Transaction{ID: 4, CounterpartyName: "ИП Петров"},
	)

	res, err := f.svc.BulkCategorize(context.Background(), []int64{4, 3, 2, 1, 999, 1}, 42, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Updated)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "999")

	require.Len(t, res.RuleSuggestions, 2)
	assert.Equal(t, rule.TypeCounterpartyINN, res.RuleSuggestions[0].Type)
	assert.Equal(t, "7701234567", res.RuleSuggestions[0].Value)
	assert.Equal(t, 3, res.RuleSuggestions[0].TransactionCount)
	assert.Equal(t, rule.TypeCounterpartyName, res.RuleSuggestions[1].Type)
	assert.Equal(t, 3, res.RuleSuggestions[1].TransactionCount)

	assert.Empty(t, f.store.Rules(), "bulk decisions never create rules")

	res, err = f.svc.BulkCategorize(context.Background(), []int64{1, 2, 3, 4}, 42, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 4, res.Skipped)
	assert.Empty(t, res.RuleSuggestions)
}

func TestBulkCategorize_SkipsSuggestionsCoveredByRules(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, rule.TypeCounterpartyINN, "7701234567", 42)
	f.store.AddTransactions(
		&transaction.Transaction{ID: 1, CounterpartyINN: "7701234567"},
		&transaction.Transaction{ID: 2, CounterpartyINN: "7701234567"},
		&transaction.Transaction{ID: 3, CounterpartyINN: "7701234567"},
	)

	res, err := f.svc.BulkCategorize(context.Background(), []int64{1, 2, 3}, 42, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Updated)
	assert.Empty(t, res.RuleSuggestions)
}

func TestBulkCategorize_ConflictFailsOneItem(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(
		&transaction.Transaction{ID: 1},
		&transaction.Transaction{ID: 2},
		&transaction.Transaction{ID: 3},
	)

	f.store.BeforeUpdate = func(tx *transaction.Transaction) error {
		if tx.ID == 2 {
			return transaction.ErrConflict
		}

		return nil
	}

	res, err := f.svc.BulkCategorize(context.Background(), []int64{1, 2, 3}, 42, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "modified concurrently")
	assert.Equal(t, transaction.StatusNew, f.store.Transaction(2).Status)
	assert.Equal(t, transaction.StatusCategorized, f.store.Transaction(3).Status)
}

func TestBulkCategorize_UnknownCategoryMutatesNothing(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(&transaction.Transaction{ID: 1})

	_, err := f.svc.BulkCategorize(context.Background(), []int64{1}, 999, nil)
	assert.ErrorIs(t, err, categorize.ErrCategoryNotFound)
	assert.Equal(t, int64(0), f.store.Transaction(1).Version)
}

func TestApplyToSimilar(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(
		&transaction.Transaction{ID: 1, CounterpartyINN: "1"},
		&transaction.Transaction{ID: 2, CounterpartyINN: "1"},
		&transaction.Transaction{ID: 3, CounterpartyINN: "1"},
		&transaction.Transaction{ID: 4, CounterpartyINN: "1"},
	)

	res, err := f.svc.ApplyToSimilar(context.Background(), 1, 42, []int64{2, 3, 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Updated)
	assert.Empty(t, res.RuleSuggestions)

	_, err = f.svc.ApplyToSimilar(context.Background(), 99, 42, []int64{2}, nil)
	assert.ErrorIs(t, err, transaction.ErrNotFound)
}

func TestFindSimilar(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(
		&transaction.Transaction{ID: 1, CounterpartyINN: "1", CounterpartyName: "ООО Ромашка", PaymentPurpose: "Аренда офиса март"},
		&transaction.Transaction{ID: 2, CounterpartyINN: "1"},
		&transaction.Transaction{ID: 3, CounterpartyName: "ооо ромашка"},
		&transaction.Transaction{ID: 4, PaymentPurpose: "март: аренда офиса"},
		&transaction.Transaction{ID: 5, CounterpartyINN: "2", PaymentPurpose: "Канцтовары"},
		manual(6, "1", 5),
	)

	got, err := f.svc.FindSimilar(context.Background(), 1, 0)
	require.NoError(t, err)

	var ids []int64
	for _, tx := range got {
		ids = append(ids, tx.ID)
	}

	assert.Equal(t, []int64{2, 3, 4}, ids)

	got, err = f.svc.FindSimilar(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestApproveAndRejectSuggestion(t *testing.T) {
	f := newFixture(t)
	f.store.AddTransactions(
		&transaction.Transaction{
			ID: 1, CounterpartyINN: "1", SuggestedCategoryID: new(int64(7)),
			Confidence: new(0.7), Status: transaction.StatusNeedsReview,
		},
		&transaction.Transaction{
			ID: 2, CounterpartyINN: "2", SuggestedCategoryID: new(int64(7)),
			Confidence: new(0.7), Status: transaction.StatusNeedsReview,
		},
		&transaction.Transaction{ID: 3},
	)

	tx, err := f.svc.ApproveSuggestion(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusApproved, tx.Status)
	assert.Equal(t, int64(7), *tx.CategoryID)
	assert.Nil(t, tx.SuggestedCategoryID)
	assert.Len(t, f.store.Rules(), 1)

	tx, err = f.svc.RejectSuggestion(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusNew, tx.Status)
	assert.Nil(t, tx.SuggestedCategoryID)
	assert.Nil(t, tx.Confidence)

	_, err = f.svc.ApproveSuggestion(context.Background(), 3)
	assert.ErrorIs(t, err, categorize.ErrNoSuggestion)

	_, err = f.svc.RejectSuggestion(context.Background(), 3)
	assert.ErrorIs(t, err, categorize.ErrNoSuggestion)
}
