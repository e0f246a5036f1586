package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrJamesThe3rd/ledgermatch/internal/batch"
	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

var (
	ErrAlreadyLinked  = errors.New("transaction is already linked to another expense request")
	ErrExpenseSettled = errors.New("expense request is already fully reconciled")
	ErrNotDebit       = errors.New("only debit transactions can settle expense requests")
	ErrInvalidOptions = errors.New("invalid matching options")
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=reconcile
type Repository interface {
	// LinkExpense atomically links tx to the expense request and takes amount
	// off its remaining amount. It fails with transaction.ErrConflict when tx
	// is stale and expense.ErrInsufficientRemaining when amount no longer
	// fits. On success tx reflects the stored row.
	LinkExpense(ctx context.Context, tx *transaction.Transaction, expenseID, amount int64) error
	// UnlinkExpense atomically clears the link of tx and gives the linked
	// amount back to the expense request.
	UnlinkExpense(ctx context.Context, tx *transaction.Transaction) error
}

type Service struct {
	repo     Repository
	txs      *transaction.Service
	expenses *expense.Service
	weights  Weights
}

func NewService(repo Repository, txs *transaction.Service, expenses *expense.Service, weights Weights) *Service {
	return &Service{repo: repo, txs: txs, expenses: expenses, weights: weights}
}

// Candidates ranks the open expense requests for txID.
func (s *Service) Candidates(ctx context.Context, txID int64, threshold float64) ([]Candidate, error) {
	tx, err := s.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	open, err := s.expenses.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing open expense requests: %w", err)
	}

	return FindCandidates(tx, open, threshold, s.weights), nil
}

// Link settles expenseID with txID, bypassing scoring. Linking a pair that
// is already linked is a no-op.
func (s *Service) Link(ctx context.Context, txID, expenseID int64) (*transaction.Transaction, error) {
	tx, err := s.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	if tx.IsLinked() {
		if *tx.LinkedExpenseID == expenseID {
			return tx, nil
		}

		return nil, fmt.Errorf("%w: transaction %d -> expense %d", ErrAlreadyLinked, txID, *tx.LinkedExpenseID)
	}

	if tx.Direction != transaction.DirectionDebit {
		return nil, ErrNotDebit
	}

	e, err := s.expenses.Get(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	if !e.IsOpen() {
		return nil, fmt.Errorf("%w: %d", ErrExpenseSettled, expenseID)
	}

	if err := s.link(ctx, tx, expenseID, linkAmount(tx, e.RemainingAmount)); err != nil {
		return nil, err
	}

	return tx, nil
}

// Unlink removes the link of txID and restores the expense's remaining
// amount. Unlinking an unlinked transaction is a no-op.
func (s *Service) Unlink(ctx context.Context, txID int64) (*transaction.Transaction, error) {
	tx, err := s.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	if !tx.IsLinked() {
		return tx, nil
	}

	if err := s.repo.UnlinkExpense(ctx, tx); err != nil {
		return nil, fmt.Errorf("unlinking transaction %d: %w", txID, err)
	}

	return tx, nil
}

type AutoMatchOptions struct {
	Threshold float64
	// Limit caps the number of links made in one run; zero means no cap.
	Limit int
}

// Validate rejects a threshold outside [0, 100] or a negative limit.
func (o AutoMatchOptions) Validate() error {
	if o.Threshold < 0 || o.Threshold > 100 {
		return fmt.Errorf("%w: threshold %.2f outside [0, 100]", ErrInvalidOptions, o.Threshold)
	}

	if o.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidOptions, o.Limit)
	}

	return nil
}

// Match is one link made by AutoMatch.
type Match struct {
	TransactionID int64   `json:"transaction_id"`
	ExpenseID     int64   `json:"expense_id"`
	Score         float64 `json:"score"`
	Amount        int64   `json:"amount"`
}

type AutoMatchResult struct {
	batch.Result
	MatchedCount int     `json:"matched_count"`
	Matches      []Match `json:"matches"`
}

// AutoMatch links every unlinked debit, in id order, to its best candidate
// at or above the threshold. The expense snapshot is updated as links are
// made so one request is never claimed twice, and passes repeat until no
// further link is possible, which makes a second run a no-op.
func (s *Service) AutoMatch(ctx context.Context, opts AutoMatchOptions, p batch.Progress) (AutoMatchResult, error) {
	p = batch.OrDiscard(p)

	var res AutoMatchResult

	debit := transaction.DirectionDebit

	txs, err := s.txs.List(ctx, transaction.ListFilter{Direction: &debit, UnlinkedOnly: true})
	if err != nil {
		return res, fmt.Errorf("listing unlinked debits: %w", err)
	}

	open, err := s.expenses.ListOpen(ctx)
	if err != nil {
		return res, fmt.Errorf("listing open expense requests: %w", err)
	}

	snapshot := make([]*expense.Request, len(open))
	for i, e := range open {
		c := *e
		snapshot[i] = &c
	}

	pending := txs[:0]
	for _, tx := range txs {
		if tx.Status == transaction.StatusIgnored {
			continue
		}

		pending = append(pending, tx)
	}

	transaction.SortByID(pending)
	p.SetTotal(len(pending))

	for pass := 0; len(pending) > 0; pass++ {
		var next []*transaction.Transaction

		linked := 0

		for _, tx := range pending {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			if opts.Limit > 0 && res.MatchedCount >= opts.Limit {
				return res, nil
			}

			ok, err := s.autoOne(ctx, tx, opts.Threshold, &snapshot, &res)
			if pass == 0 {
				p.Advance()
			}

			switch {
			case err != nil:
				res.Fail(tx.ID, err)
			case ok:
				linked++
			default:
				next = append(next, tx)
			}
		}

		if linked == 0 {
			res.Skipped += len(next)
			break
		}

		pending = next
	}

	return res, nil
}

func (s *Service) autoOne(
	ctx context.Context,
	tx *transaction.Transaction,
	threshold float64,
	snapshot *[]*expense.Request,
	res *AutoMatchResult,
) (bool, error) {
	candidates := FindCandidates(tx, *snapshot, threshold, s.weights)
	if len(candidates) == 0 {
		return false, nil
	}

	top := candidates[0]

	idx := -1
	for i, e := range *snapshot {
		if e.ID == top.ExpenseID {
			idx = i
			break
		}
	}

	e := (*snapshot)[idx]
	amount := linkAmount(tx, e.RemainingAmount)

	if err := s.link(ctx, tx, e.ID, amount); err != nil {
		if errors.Is(err, ErrExpenseSettled) {
			*snapshot = append((*snapshot)[:idx], (*snapshot)[idx+1:]...)
		}

		return false, err
	}

	e.RemainingAmount -= amount
	if e.RemainingAmount <= 0 {
		*snapshot = append((*snapshot)[:idx], (*snapshot)[idx+1:]...)
	}

	res.Updated++
	res.MatchedCount++
	res.Matches = append(res.Matches, Match{
		TransactionID: tx.ID,
		ExpenseID:     e.ID,
		Score:         top.Score,
		Amount:        amount,
	})

	return true, nil
}

func (s *Service) link(ctx context.Context, tx *transaction.Transaction, expenseID, amount int64) error {
	err := s.repo.LinkExpense(ctx, tx, expenseID, amount)
	if err == nil {
		return nil
	}

	if errors.Is(err, expense.ErrInsufficientRemaining) {
		return fmt.Errorf("%w: %d", ErrExpenseSettled, expenseID)
	}

	return fmt.Errorf("linking transaction %d to expense %d: %w", tx.ID, expenseID, err)
}

// linkAmount is the part of tx applied to an expense with remaining left.
func linkAmount(tx *transaction.Transaction, remaining int64) int64 {
	return min(tx.AbsAmount(), remaining)
}
