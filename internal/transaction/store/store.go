package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectTransactionColumns = `
	t.id, t.amount, t.direction, t.date, t.counterparty_inn, t.counterparty_name,
	t.business_operation, t.payment_purpose, t.category_id, t.suggested_category_id,
	t.confidence, t.category_source, t.status, t.linked_expense_id, t.linked_amount,
	t.version, t.created_at, t.updated_at
`

// scanTransaction reads a row in selectTransactionColumns order.
func scanTransaction(s scanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction

	var direction, status, source string

	if err := s.Scan(
		&tx.ID, &tx.Amount, &direction, &tx.Date, &tx.CounterpartyINN, &tx.CounterpartyName,
		&tx.BusinessOperation, &tx.PaymentPurpose, &tx.CategoryID, &tx.SuggestedCategoryID,
		&tx.Confidence, &source, &status, &tx.LinkedExpenseID, &tx.LinkedAmount,
		&tx.Version, &tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	tx.Direction = transaction.Direction(direction)
	tx.Status = transaction.Status(status)
	tx.CategorySource = transaction.Source(source)

	return &tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions t WHERE t.id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

func (s *Store) GetTransactions(ctx context.Context, ids []int64) ([]*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions t
		WHERE t.id = ANY($1)
		ORDER BY t.id ASC`

	return s.query(ctx, query, ids)
}

func (s *Store) ListTransactions(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions t WHERE 1 = 1`

	var args []any

	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND t.status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.Direction != nil {
		query += fmt.Sprintf(" AND t.direction = $%d", argIdx)

		args = append(args, *filter.Direction)
		argIdx++
	}

	if filter.CounterpartyINN != nil {
		query += fmt.Sprintf(" AND t.counterparty_inn = $%d", argIdx)

		args = append(args, *filter.CounterpartyINN)
		argIdx++
	}

	if filter.UnlinkedOnly {
		query += " AND t.linked_expense_id IS NULL"
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND t.date >= $%d", argIdx)

		args = append(args, *filter.StartDate)
		argIdx++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND t.date <= $%d", argIdx)

		args = append(args, *filter.EndDate)
		argIdx++
	}

	query += " ORDER BY t.id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
	}

	return s.query(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*transaction.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}

	return txs, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET category_id = $1, suggested_category_id = $2, confidence = $3, category_source = $4,
			status = $5, linked_expense_id = $6, linked_amount = $7,
			version = version + 1, updated_at = NOW()
		WHERE id = $8 AND version = $9
		RETURNING version, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		tx.CategoryID,
		tx.SuggestedCategoryID,
		tx.Confidence,
		tx.CategorySource,
		tx.Status,
		tx.LinkedExpenseID,
		tx.LinkedAmount,
		tx.ID,
		tx.Version,
	).Scan(&tx.Version, &tx.UpdatedAt)
	if err == nil {
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("updating transaction: %w", err)
	}

	if _, err := s.GetTransaction(ctx, tx.ID); err != nil {
		return err
	}

	return transaction.ErrConflict
}

// ListManualHistory returns every transaction whose category was chosen by a
// person, the raw material of the history and keyword tiers.
func (s *Store) ListManualHistory(ctx context.Context) ([]transaction.HistoryRow, error) {
	query := `
		SELECT counterparty_inn, counterparty_name, business_operation, payment_purpose, category_id
		FROM transactions
		WHERE category_source = $1
			AND category_id IS NOT NULL
			AND status IN ($2, $3)
	`

	rows, err := s.db.QueryContext(ctx, query,
		transaction.SourceManual, transaction.StatusCategorized, transaction.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("listing manual history: %w", err)
	}
	defer rows.Close()

	var history []transaction.HistoryRow

	for rows.Next() {
		var h transaction.HistoryRow
		if err := rows.Scan(&h.CounterpartyINN, &h.CounterpartyName, &h.BusinessOperation, &h.PaymentPurpose, &h.CategoryID); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}

		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	return history, nil
}
