// Package memstore is an in-memory implementation of every repository the
// engine uses. It enforces the same version checks and link guards as the
// Postgres stores and is meant for tests of stateful flows.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

type Store struct {
	mu         sync.Mutex
	txs        map[int64]*transaction.Transaction
	categories map[int64]*category.Category
	expenses   map[int64]*expense.Request
	rules      map[int64]*rule.Rule
	nextRuleID int64
	ruleLocks  map[string]*sync.Mutex

	// BeforeUpdate, when set, runs before every transaction write outside the
	// store lock. A non-nil error aborts the write.
	BeforeUpdate func(tx *transaction.Transaction) error
}

func New() *Store {
	return &Store{
		txs:        make(map[int64]*transaction.Transaction),
		categories: make(map[int64]*category.Category),
		expenses:   make(map[int64]*expense.Request),
		rules:      make(map[int64]*rule.Rule),
		ruleLocks:  make(map[string]*sync.Mutex),
	}
}

func (s *Store) AddTransactions(txs ...*transaction.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		c := tx.Clone()
		if c.Status == "" {
			c.Status = transaction.StatusNew
		}

		s.txs[c.ID] = c
	}
}

func (s *Store) AddCategories(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		s.categories[id] = &category.Category{ID: id, Name: "category", IsActive: true}
	}
}

func (s *Store) AddExpenses(reqs ...*expense.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range reqs {
		c := *r
		s.expenses[c.ID] = &c
	}
}

// Transaction returns a copy of the stored transaction, or nil.
func (s *Store) Transaction(id int64) *transaction.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil
	}

	return tx.Clone()
}

// Expense returns a copy of the stored expense request, or nil.
func (s *Store) Expense(id int64) *expense.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.expenses[id]
	if !ok {
		return nil
	}

	c := *r

	return &c
}

// Rules returns copies of all stored rules ordered by id.
func (s *Store) Rules() []*rule.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*rule.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		c := *r
		out = append(out, &c)
	}

	slices.SortFunc(out, func(a, b *rule.Rule) int { return cmp.Compare(a.ID, b.ID) })

	return out
}

// Transactions.

func (s *Store) GetTransaction(_ context.Context, id int64) (*transaction.Transaction, error) {
	if tx := s.Transaction(id); tx != nil {
		return tx, nil
	}

	return nil, transaction.ErrNotFound
}

func (s *Store) GetTransactions(_ context.Context, ids []int64) ([]*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*transaction.Transaction

	seen := make(map[int64]bool)

	for _, id := range ids {
		tx, ok := s.txs[id]
		if !ok || seen[id] {
			continue
		}

		seen[id] = true

		out = append(out, tx.Clone())
	}

	transaction.SortByID(out)

	return out, nil
}

func (s *Store) ListTransactions(_ context.Context, f transaction.ListFilter) ([]*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*transaction.Transaction

	for _, tx := range s.txs {
		switch {
		case f.Status != nil && tx.Status != *f.Status:
			continue
		case f.Direction != nil && tx.Direction != *f.Direction:
			continue
		case f.CounterpartyINN != nil && tx.CounterpartyINN != *f.CounterpartyINN:
			continue
		case f.UnlinkedOnly && tx.IsLinked():
			continue
		case f.StartDate != nil && tx.Date.Before(*f.StartDate):
			continue
		case f.EndDate != nil && tx.Date.After(*f.EndDate):
			continue
		}

		out = append(out, tx.Clone())
	}

	transaction.SortByID(out)

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}

	return out, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx *transaction.Transaction) error {
	if s.BeforeUpdate != nil {
		if err := s.BeforeUpdate(tx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateLocked(tx)
}

func (s *Store) updateLocked(tx *transaction.Transaction) error {
	stored, ok := s.txs[tx.ID]
	if !ok {
		return transaction.ErrNotFound
	}

	if stored.Version != tx.Version {
		return transaction.ErrConflict
	}

	now := time.Now()
	tx.Version++
	tx.UpdatedAt = &now

	s.txs[tx.ID] = tx.Clone()

	return nil
}

func (s *Store) ListManualHistory(_ context.Context) ([]transaction.HistoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []transaction.HistoryRow

	for _, tx := range s.txs {
		if tx.CategorySource != transaction.SourceManual || tx.CategoryID == nil {
			continue
		}

		if tx.Status != transaction.StatusCategorized && tx.Status != transaction.StatusApproved {
			continue
		}

		rows = append(rows, transaction.HistoryRow{
			CounterpartyINN:   tx.CounterpartyINN,
			CounterpartyName:  tx.CounterpartyName,
			BusinessOperation: tx.BusinessOperation,
			PaymentPurpose:    tx.PaymentPurpose,
			CategoryID:        *tx.CategoryID,
		})
	}

	return rows, nil
}

// Categories.

func (s *Store) GetCategory(_ context.Context, id int64) (*category.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, category.ErrNotFound
	}

	cp := *c

	return &cp, nil
}

func (s *Store) ListCategories(_ context.Context) ([]*category.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*category.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cp := *c
		out = append(out, &cp)
	}

	slices.SortFunc(out, func(a, b *category.Category) int { return cmp.Compare(a.ID, b.ID) })

	return out, nil
}

// Expense requests.

func (s *Store) GetRequest(_ context.Context, id int64) (*expense.Request, error) {
	if r := s.Expense(id); r != nil {
		return r, nil
	}

	return nil, expense.ErrNotFound
}

func (s *Store) ListOpenRequests(_ context.Context) ([]*expense.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*expense.Request

	for _, r := range s.expenses {
		if !r.IsOpen() {
			continue
		}

		c := *r
		out = append(out, &c)
	}

	slices.SortFunc(out, func(a, b *expense.Request) int { return cmp.Compare(a.ID, b.ID) })

	return out, nil
}

// Links.

func (s *Store) LinkExpense(_ context.Context, tx *transaction.Transaction, expenseID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.expenses[expenseID]
	if !ok {
		return expense.ErrNotFound
	}

	if !r.IsOpen() || r.RemainingAmount < amount {
		return expense.ErrInsufficientRemaining
	}

	next := tx.Clone()
	next.LinkedExpenseID = &expenseID
	next.LinkedAmount = amount

	if err := s.updateLocked(next); err != nil {
		return err
	}

	r.RemainingAmount -= amount
	r.Status = r.StatusFor(r.RemainingAmount)

	*tx = *next

	return nil
}

func (s *Store) UnlinkExpense(_ context.Context, tx *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.LinkedExpenseID == nil {
		return nil
	}

	r, ok := s.expenses[*tx.LinkedExpenseID]
	if !ok {
		return expense.ErrNotFound
	}

	amount := tx.LinkedAmount

	next := tx.Clone()
	next.LinkedExpenseID = nil
	next.LinkedAmount = 0

	if err := s.updateLocked(next); err != nil {
		return err
	}

	r.RemainingAmount += amount
	r.Status = r.StatusFor(r.RemainingAmount)

	*tx = *next

	return nil
}

// Rules.

func (s *Store) ListRules(_ context.Context, f rule.ListFilter) ([]*rule.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*rule.Rule

	for _, r := range s.rules {
		switch {
		case f.ActiveOnly && !r.IsActive:
			continue
		case f.CategoryID != nil && r.CategoryID != *f.CategoryID:
			continue
		case f.Origin != nil && r.Origin != *f.Origin:
			continue
		}

		c := *r
		out = append(out, &c)
	}

	rule.Sort(out)

	return out, nil
}

func (s *Store) GetRule(_ context.Context, id int64) (*rule.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, rule.ErrNotFound
	}

	c := *r

	return &c, nil
}

func (s *Store) CreateRule(_ context.Context, r *rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRuleID++
	r.ID = s.nextRuleID
	r.CreatedAt = time.Now()

	c := *r
	s.rules[r.ID] = &c

	return nil
}

func (s *Store) UpdateRule(_ context.Context, r *rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[r.ID]; !ok {
		return rule.ErrNotFound
	}

	now := time.Now()
	r.UpdatedAt = &now

	c := *r
	s.rules[r.ID] = &c

	return nil
}

func (s *Store) SetRuleActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return rule.ErrNotFound
	}

	r.IsActive = active

	return nil
}

// BeginCreate locks the key of m until the returned CreateTx ends. Writes
// made through it apply immediately and are not undone by Rollback.
func (s *Store) BeginCreate(_ context.Context, m rule.Match) (rule.CreateTx, error) {
	s.mu.Lock()

	l, ok := s.ruleLocks[m.Key()]
	if !ok {
		l = &sync.Mutex{}
		s.ruleLocks[m.Key()] = l
	}

	s.mu.Unlock()

	l.Lock()

	return &createTx{Store: s, release: sync.OnceFunc(l.Unlock)}, nil
}

type createTx struct {
	*Store
	release func()
}

func (t *createTx) Commit() error {
	t.release()
	return nil
}

func (t *createTx) Rollback() error {
	t.release()
	return nil
}

func (s *Store) RecordRuleHits(_ context.Context, hits map[int64]int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, n := range hits {
		if r, ok := s.rules[id]; ok {
			r.HitCount += n
			r.LastHitAt = &at
		}
	}

	return nil
}
