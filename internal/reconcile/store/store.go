package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

// Store persists links between transactions and expense requests. Each call
// updates both rows in one database transaction.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) LinkExpense(ctx context.Context, tx *transaction.Transaction, expenseID, amount int64) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	req, err := lockRequest(ctx, dbTx, expenseID)
	if err != nil {
		return err
	}

	if !req.IsOpen() || req.RemainingAmount < amount {
		return expense.ErrInsufficientRemaining
	}

	if err := saveRemaining(ctx, dbTx, req, req.RemainingAmount-amount); err != nil {
		return err
	}

	err = dbTx.QueryRowContext(ctx, `
		UPDATE transactions
		SET linked_expense_id = $1, linked_amount = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4 AND linked_expense_id IS NULL
		RETURNING version, updated_at
	`, expenseID, amount, tx.ID, tx.Version).Scan(&tx.Version, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transaction.ErrConflict
		}

		return fmt.Errorf("linking transaction: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing link: %w", err)
	}

	tx.LinkedExpenseID = &expenseID
	tx.LinkedAmount = amount

	return nil
}

func (s *Store) UnlinkExpense(ctx context.Context, tx *transaction.Transaction) error {
	if tx.LinkedExpenseID == nil {
		return nil
	}

	expenseID := *tx.LinkedExpenseID

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	// The version check guarantees tx.LinkedAmount is the stored amount.
	amount := tx.LinkedAmount

	err = dbTx.QueryRowContext(ctx, `
		UPDATE transactions
		SET linked_expense_id = NULL, linked_amount = 0, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND linked_expense_id = $3
		RETURNING version, updated_at
	`, tx.ID, tx.Version, expenseID).Scan(&tx.Version, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transaction.ErrConflict
		}

		return fmt.Errorf("unlinking transaction: %w", err)
	}

	req, err := lockRequest(ctx, dbTx, expenseID)
	if err != nil {
		return err
	}

	if err := saveRemaining(ctx, dbTx, req, min(req.Amount, req.RemainingAmount+amount)); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing unlink: %w", err)
	}

	tx.LinkedExpenseID = nil
	tx.LinkedAmount = 0

	return nil
}

// lockRequest reads the amounts and status of an expense request and holds
// its row lock until dbTx ends.
func lockRequest(ctx context.Context, dbTx *sql.Tx, id int64) (*expense.Request, error) {
	req := expense.Request{ID: id}

	err := dbTx.QueryRowContext(ctx, `
		SELECT amount, remaining_amount, status
		FROM expense_requests
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&req.Amount, &req.RemainingAmount, &req.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, expense.ErrNotFound
		}

		return nil, fmt.Errorf("locking expense request: %w", err)
	}

	return &req, nil
}

// saveRemaining stores the new remaining amount of req together with the
// payment status it implies.
func saveRemaining(ctx context.Context, dbTx *sql.Tx, req *expense.Request, remaining int64) error {
	if _, err := dbTx.ExecContext(ctx,
		`UPDATE expense_requests SET remaining_amount = $1, status = $2 WHERE id = $3`,
		remaining, req.StatusFor(remaining), req.ID); err != nil {
		return fmt.Errorf("updating expense request: %w", err)
	}

	return nil
}
