// Package expense exposes snapshots of expense requests, the documents bank
// debits are reconciled against. The engine never edits their business
// fields; only the remaining amount moves when a payment is linked.
package expense

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("expense request not found")
	// ErrInsufficientRemaining is returned when a payment no longer fits the
	// remaining amount of a request.
	ErrInsufficientRemaining = errors.New("expense request has no remaining amount")
)

type Status string

const (
	StatusApproved      Status = "approved"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusCancelled     Status = "cancelled"
)

// Request is an expense request awaiting payment. Amounts are in minor units.
type Request struct {
	ID              int64
	Amount          int64
	RemainingAmount int64
	RequestDate     time.Time
	DueDate         *time.Time
	CategoryID      *int64
	ContractorName  string
	ContractorINN   string
	Status          Status
}

// IsOpen reports whether the request can still absorb payments.
func (r *Request) IsOpen() bool {
	return r.RemainingAmount > 0 && r.Status != StatusCancelled
}

// StatusFor derives the payment status from the remaining amount.
func (r *Request) StatusFor(remaining int64) Status {
	switch {
	case r.Status == StatusCancelled:
		return StatusCancelled
	case remaining <= 0:
		return StatusPaid
	case remaining < r.Amount:
		return StatusPartiallyPaid
	}

	return StatusApproved
}

// INN returns the trimmed contractor INN.
func (r *Request) INN() string {
	return strings.TrimSpace(r.ContractorINN)
}

//go:generate mockgen -source=expense.go -destination=repository_mock.go -package=expense
type Repository interface {
	GetRequest(ctx context.Context, id int64) (*Request, error)
	// ListOpenRequests returns requests with a positive remaining amount
	// that are not cancelled, ordered by id.
	ListOpenRequests(ctx context.Context) ([]*Request, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Request, error) {
	return s.repo.GetRequest(ctx, id)
}

func (s *Service) ListOpen(ctx context.Context) ([]*Request, error) {
	return s.repo.ListOpenRequests(ctx)
}
