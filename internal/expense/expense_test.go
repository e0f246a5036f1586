package expense_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
)

func TestRequest_IsOpen(t *testing.T) {
	assert.True(t, (&expense.Request{RemainingAmount: 1, Status: expense.StatusApproved}).IsOpen())
	assert.False(t, (&expense.Request{RemainingAmount: 0, Status: expense.StatusPartiallyPaid}).IsOpen())
	assert.False(t, (&expense.Request{RemainingAmount: 500, Status: expense.StatusCancelled}).IsOpen())
}

func TestService_ListOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := expense.NewMockRepository(ctrl)
	svc := expense.NewService(repo)

	repo.EXPECT().ListOpenRequests(gomock.Any()).Return([]*expense.Request{{ID: 1}, {ID: 2}}, nil)

	got, err := svc.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	repo.EXPECT().GetRequest(gomock.Any(), int64(9)).Return(nil, expense.ErrNotFound)

	_, err = svc.Get(context.Background(), 9)
	assert.True(t, errors.Is(err, expense.ErrNotFound))
}

func TestRequest_StatusFor(t *testing.T) {
	r := &expense.Request{Amount: 10000, Status: expense.StatusApproved}

	assert.Equal(t, expense.StatusApproved, r.StatusFor(10000))
	assert.Equal(t, expense.StatusPartiallyPaid, r.StatusFor(2500))
	assert.Equal(t, expense.StatusPaid, r.StatusFor(0))

	r.Status = expense.StatusCancelled
	assert.Equal(t, expense.StatusCancelled, r.StatusFor(0))
}
