package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const selectRequestColumns = `
	id, amount, remaining_amount, request_date, due_date, category_id,
	contractor_name, contractor_inn, status
`

func scanRequest(s scanner) (*expense.Request, error) {
	var r expense.Request

	var status string

	var name, inn sql.NullString

	if err := s.Scan(
		&r.ID, &r.Amount, &r.RemainingAmount, &r.RequestDate, &r.DueDate, &r.CategoryID,
		&name, &inn, &status,
	); err != nil {
		return nil, err
	}

	r.ContractorName = name.String
	r.ContractorINN = inn.String
	r.Status = expense.Status(status)

	return &r, nil
}

func (s *Store) GetRequest(ctx context.Context, id int64) (*expense.Request, error) {
	query := `SELECT ` + selectRequestColumns + ` FROM expense_requests WHERE id = $1`

	r, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, expense.ErrNotFound
		}

		return nil, fmt.Errorf("getting expense request: %w", err)
	}

	return r, nil
}

func (s *Store) ListOpenRequests(ctx context.Context) ([]*expense.Request, error) {
	query := `SELECT ` + selectRequestColumns + `
		FROM expense_requests
		WHERE remaining_amount > 0 AND status <> $1
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, expense.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("listing open expense requests: %w", err)
	}
	defer rows.Close()

	var requests []*expense.Request

	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense request: %w", err)
		}

		requests = append(requests, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expense rows: %w", err)
	}

	return requests, nil
}
