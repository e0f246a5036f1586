package transaction

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("transaction not found")
	// ErrConflict is returned when a write loses an optimistic version check.
	ErrConflict = errors.New("transaction was modified concurrently")
)

// Direction tells whether money left (DEBIT) or entered (CREDIT) the account.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// Status represents the categorization lifecycle state of a transaction.
type Status string

const (
	StatusNew         Status = "NEW"
	StatusCategorized Status = "CATEGORIZED"
	StatusApproved    Status = "APPROVED"
	StatusNeedsReview Status = "NEEDS_REVIEW"
	StatusIgnored     Status = "IGNORED"
)

// Source records what decided the category of a transaction.
type Source string

const (
	SourceManual           Source = "manual"
	SourceRule             Source = "rule"
	SourceINNHistory       Source = "inn_history"
	SourceNameHistory      Source = "name_history"
	SourceOperationHistory Source = "operation_history"
	SourceKeyword          Source = "keyword"
)

// Transaction is a bank movement. Amount is in minor units and signed:
// debits are negative.
type Transaction struct {
	ID                  int64
	Amount              int64
	Direction           Direction
	Date                time.Time
	CounterpartyINN     string
	CounterpartyName    string
	BusinessOperation   string
	PaymentPurpose      string
	CategoryID          *int64
	SuggestedCategoryID *int64
	Confidence          *float64
	CategorySource      Source
	Status              Status
	LinkedExpenseID     *int64
	LinkedAmount        int64
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           *time.Time
}

// AbsAmount returns the unsigned amount in minor units.
func (t *Transaction) AbsAmount() int64 {
	if t.Amount < 0 {
		return -t.Amount
	}

	return t.Amount
}

// INN returns the trimmed counterparty INN.
func (t *Transaction) INN() string {
	return strings.TrimSpace(t.CounterpartyINN)
}

// IsLinked reports whether the transaction is reconciled against an expense.
func (t *Transaction) IsLinked() bool {
	return t.LinkedExpenseID != nil
}

// IsSettled reports whether a human or the auto-apply policy already decided
// the category, so automatic passes must leave it alone.
func (t *Transaction) IsSettled() bool {
	switch t.Status {
	case StatusCategorized, StatusApproved, StatusIgnored:
		return true
	}

	return false
}

// Clone returns a deep copy of t.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.CategoryID = clonePtr(t.CategoryID)
	c.SuggestedCategoryID = clonePtr(t.SuggestedCategoryID)
	c.Confidence = clonePtr(t.Confidence)
	c.LinkedExpenseID = clonePtr(t.LinkedExpenseID)
	c.UpdatedAt = clonePtr(t.UpdatedAt)

	return &c
}

// HistoryRow is one manually categorized transaction, reduced to the fields
// the confidence scorer learns from.
type HistoryRow struct {
	CounterpartyINN   string
	CounterpartyName  string
	BusinessOperation string
	PaymentPurpose    string
	CategoryID        int64
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}

	return new(*p)
}
