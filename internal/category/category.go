// Package category is the read side of the budget category directory. The
// engine only needs to know that a category exists and what it is called.
package category

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("category not found")

// Category is a budget line transactions are assigned to.
type Category struct {
	ID       int64
	Name     string
	ParentID *int64
	IsActive bool
}

//go:generate mockgen -source=category.go -destination=repository_mock.go -package=category
type Repository interface {
	GetCategory(ctx context.Context, id int64) (*Category, error)
	ListCategories(ctx context.Context) ([]*Category, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Category, error) {
	return s.repo.GetCategory(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Category, error) {
	return s.repo.ListCategories(ctx)
}

// Validate returns ErrNotFound unless id names an active category.
func (s *Service) Validate(ctx context.Context, id int64) error {
	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return err
	}

	if !c.IsActive {
		return ErrNotFound
	}

	return nil
}
