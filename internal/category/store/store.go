package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*category.Category, error) {
	query := `SELECT id, name, parent_id, is_active FROM categories WHERE id = $1`

	var c category.Category

	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.ParentID, &c.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, category.ErrNotFound
		}

		return nil, fmt.Errorf("getting category: %w", err)
	}

	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]*category.Category, error) {
	query := `SELECT id, name, parent_id, is_active FROM categories ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var categories []*category.Category

	for rows.Next() {
		var c category.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}

		categories = append(categories, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category rows: %w", err)
	}

	return categories, nil
}
