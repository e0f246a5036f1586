package transaction

import (
	"cmp"
	"context"
	"slices"
	"time"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=transaction
type Repository interface {
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	// GetTransactions returns the transactions that exist among ids; unknown
	// ids are omitted rather than reported as an error.
	GetTransactions(ctx context.Context, ids []int64) ([]*Transaction, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error)
	// UpdateTransaction writes the mutable fields of tx if the stored version
	// still equals tx.Version, and bumps tx.Version on success.
	UpdateTransaction(ctx context.Context, tx *Transaction) error
	ListManualHistory(ctx context.Context) ([]HistoryRow, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type ListFilter struct {
	Status          *Status
	Direction       *Direction
	CounterpartyINN *string
	UnlinkedOnly    bool
	// StartDate and EndDate bound the booking date, both inclusive.
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

func (s *Service) Get(ctx context.Context, id int64) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// GetMany returns the known transactions among ids ordered by id ascending.
func (s *Service) GetMany(ctx context.Context, ids []int64) ([]*Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	txs, err := s.repo.GetTransactions(ctx, ids)
	if err != nil {
		return nil, err
	}

	SortByID(txs)

	return txs, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) Update(ctx context.Context, tx *Transaction) error {
	return s.repo.UpdateTransaction(ctx, tx)
}

func (s *Service) History(ctx context.Context) ([]HistoryRow, error) {
	return s.repo.ListManualHistory(ctx)
}

// SortByID orders txs by id ascending, the processing order of every batch.
func SortByID(txs []*Transaction) {
	slices.SortFunc(txs, func(a, b *Transaction) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
