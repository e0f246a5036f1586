package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	"github.com/MrJamesThe3rd/ledgermatch/internal/engine"
	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	ledgerhttp "github.com/MrJamesThe3rd/ledgermatch/internal/http"
	matchingHandler "github.com/MrJamesThe3rd/ledgermatch/internal/http/matching"
	ruleHandler "github.com/MrJamesThe3rd/ledgermatch/internal/http/rule"
	taskHandler "github.com/MrJamesThe3rd/ledgermatch/internal/http/task"
	txHandler "github.com/MrJamesThe3rd/ledgermatch/internal/http/transaction"
	"github.com/MrJamesThe3rd/ledgermatch/internal/job"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	"github.com/MrJamesThe3rd/ledgermatch/internal/testutil/memstore"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

type server struct {
	store  *memstore.Store
	router http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()

	return newServerWith(t, txHandler.Options{MatchThreshold: 70})
}

func newServerWith(t *testing.T, txOpts txHandler.Options) *server {
	t.Helper()

	st := memstore.New()
	st.AddCategories(5, 42)

	txs := transaction.NewService(st)
	cats := category.NewService(st)
	rules := rule.NewService(st, cats)
	categorizeSvc := categorize.NewService(txs, rules, cats, categorize.DefaultOptions())
	reconcileSvc := reconcile.NewService(st, txs, expense.NewService(st), reconcile.DefaultWeights())

	runner := job.NewRunner(job.Options{Workers: 1, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = runner.Shutdown(ctx)
	})

	eng := engine.New(categorizeSvc, reconcileSvc, runner)
	defaults := reconcile.AutoMatchOptions{Threshold: 70}

	return &server{
		store: st,
		router: ledgerhttp.New(
			ledgerhttp.Options{AllowedOrigins: []string{"http://localhost:3000"}},
			txHandler.NewHandler(txs, categorizeSvc, reconcileSvc, eng, txOpts),
			matchingHandler.NewHandler(reconcileSvc, eng, defaults),
			ruleHandler.NewHandler(rules),
			taskHandler.NewHandler(runner),
		),
	}
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))

	return v
}

func debit(id int64, inn string) *transaction.Transaction {
	return &transaction.Transaction{
		ID:              id,
		Amount:          -10000,
		Direction:       transaction.DirectionDebit,
		Date:            time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		CounterpartyINN: inn,
	}
}

func TestCategorizeEndpoint(t *testing.T) {
	s := newServer(t)
	s.store.AddTransactions(debit(1, "7701234567"))

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{"Categorized", "/api/v1/transactions/1/categorize", map[string]any{"category_id": 42}, http.StatusOK},
		{"UnknownTransaction", "/api/v1/transactions/9/categorize", map[string]any{"category_id": 42}, http.StatusNotFound},
		{"UnknownCategory", "/api/v1/transactions/1/categorize", map[string]any{"category_id": 99}, http.StatusBadRequest},
		{"MissingCategory", "/api/v1/transactions/1/categorize", map[string]any{}, http.StatusBadRequest},
		{"BadID", "/api/v1/transactions/abc/categorize", map[string]any{"category_id": 42}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, transaction.StatusCategorized, s.store.Transaction(1).Status)
	assert.Len(t, s.store.Rules(), 1, "decision was learned as a rule")
}

func TestBulkCategorizeEndpoint(t *testing.T) {
	s := newServer(t)
	s.store.AddTransactions(debit(1, "1"), debit(2, "1"), debit(3, "1"))

	rec := s.do(t, http.MethodPost, "/api/v1/transactions/bulk-categorize", map[string]any{
		"transaction_ids": []int64{1, 2, 3, 99},
		"category_id":     5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 3, body["updated_count"])
	assert.Len(t, body["errors"], 1)
	assert.Len(t, body["rule_suggestions"], 1)
}

func TestBulkCategorizeEndpoint_Async(t *testing.T) {
	s := newServer(t)
	s.store.AddTransactions(debit(1, "1"))

	rec := s.do(t, http.MethodPost, "/api/v1/transactions/bulk-categorize", map[string]any{
		"transaction_ids": []int64{1},
		"category_id":     5,
		"async":           true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	taskID := decode[map[string]string](t, rec)["task_id"]
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/api/v1/tasks/"+taskID, nil)
		if rec.Code != http.StatusOK {
			return false
		}

		return decode[job.Job](t, rec).Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, transaction.StatusCategorized, s.store.Transaction(1).Status)

	rec = s.do(t, http.MethodPost, "/api/v1/transactions/bulk-categorize", map[string]any{
		"transaction_ids": []int64{1},
		"category_id":     99,
		"async":           true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "category is validated before the job is queued")
}

func TestBulkCategorizeEndpoint_LongListRunsAsJob(t *testing.T) {
	s := newServerWith(t, txHandler.Options{MatchThreshold: 70, SyncBulkLimit: 2})
	s.store.AddTransactions(debit(1, "1"), debit(2, "1"), debit(3, "1"))

	rec := s.do(t, http.MethodPost, "/api/v1/transactions/bulk-categorize", map[string]any{
		"transaction_ids": []int64{1, 2, 3},
		"category_id":     5,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[map[string]string](t, rec)["task_id"])

	rec = s.do(t, http.MethodPost, "/api/v1/transactions/bulk-categorize", map[string]any{
		"transaction_ids": []int64{1, 2},
		"category_id":     5,
	})
	assert.Equal(t, http.StatusOK, rec.Code, "lists within the limit stay inline")
}

func TestBulkCategorizeEndpoint_BudgetKeepsCounts(t *testing.T) {
	s := newServerWith(t, txHandler.Options{MatchThreshold: 70, SyncBudget: 30 * time.Millisecond})
	s.store.AddTransactions(debit(1, "1"), debit(2, "1"), debit(3, "1"), debit(4, "1"), debit(5, "1"))
	s.store.BeforeUpdate = func(*transaction.Transaction) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	rec := s.do(t, http.MethodPost, "/api/v1/transactions/bulk-categorize", map[string]any{
		"transaction_ids": []int64{1, 2, 3, 4, 5},
		"category_id":     5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["incomplete"])

	updated, ok := body["updated_count"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, updated, 1.0)
	assert.Less(t, updated, 5.0)
	assert.Equal(t, transaction.StatusCategorized, s.store.Transaction(1).Status, "committed work is kept")
}

func TestRulesEndpoints(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"rule_type":        "COUNTERPARTY_INN",
		"counterparty_inn": "7701234567",
		"keyword":          "rent",
		"category_id":      42,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "two match fields")

	payload := map[string]any{
		"rule_type":        "COUNTERPARTY_INN",
		"counterparty_inn": "7701234567",
		"category_id":      42,
		"priority":         10,
	}

	rec = s.do(t, http.MethodPost, "/api/v1/rules", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[map[string]any](t, rec)
	assert.Equal(t, "7701234567", created["counterparty_inn"])
	assert.Equal(t, true, created["is_active"])

	rec = s.do(t, http.MethodPost, "/api/v1/rules", payload)
	require.Equal(t, http.StatusOK, rec.Code, "retried create returns the stored rule")
	assert.Equal(t, created["id"], decode[map[string]any](t, rec)["id"])
	assert.Len(t, s.store.Rules(), 1)

	rec = s.do(t, http.MethodDelete, "/api/v1/rules/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/rules/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["is_active"])

	rec = s.do(t, http.MethodPost, "/api/v1/rules/bulk-activate", map[string]any{"rule_ids": []int64{1, 7}})
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, res["updated"])
	assert.Len(t, res["errors"], 1)

	rec = s.do(t, http.MethodGet, "/api/v1/rules/7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMatchingEndpoints(t *testing.T) {
	s := newServer(t)
	s.store.AddTransactions(debit(1, "7701234567"), debit(2, "7701234567"))
	s.store.AddExpenses(
		&expense.Request{
			ID: 10, Amount: 10000, RemainingAmount: 10000, Status: expense.StatusApproved,
			RequestDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ContractorINN: "7701234567",
		},
		&expense.Request{
			ID: 11, Amount: 300, RemainingAmount: 300, Status: expense.StatusApproved,
			RequestDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	)

	rec := s.do(t, http.MethodGet, "/api/v1/transactions/1/matching-candidates?threshold=50", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	candidates := decode[[]reconcile.Candidate](t, rec)
	require.NotEmpty(t, candidates)
	assert.Equal(t, int64(10), candidates[0].ExpenseID)

	rec = s.do(t, http.MethodGet, "/api/v1/transactions/1/matching-candidates?threshold=500", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/matching/link", map[string]any{"transaction_id": 1, "expense_id": 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/matching/link", map[string]any{"transaction_id": 1, "expense_id": 11})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/matching/link", map[string]any{"transaction_id": 2, "expense_id": 10})
	assert.Equal(t, http.StatusConflict, rec.Code, "expense already settled")

	rec = s.do(t, http.MethodDelete, "/api/v1/matching/link/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(10000), s.store.Expense(10).RemainingAmount)

	rec = s.do(t, http.MethodPost, "/api/v1/matching/auto-match", map[string]any{"threshold": 101})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/matching/auto-match", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestTaskEndpoints_Errors(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/tasks/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/tasks/7f1c9b8e-2a65-4f0a-9a53-2d1f6c0b9e11/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/tasks", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
