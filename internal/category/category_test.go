package category_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
)

func TestService_Validate(t *testing.T) {
	type testCase struct {
		name      string
		setupMock func(m *category.MockRepository)
		wantErr   bool
		wantIs    error
	}

	tests := []testCase{
		{
			name: "Active",
			setupMock: func(m *category.MockRepository) {
				m.EXPECT().GetCategory(gomock.Any(), int64(42)).Return(&category.Category{ID: 42, IsActive: true}, nil)
			},
		},
		{
			name: "Inactive",
			setupMock: func(m *category.MockRepository) {
				m.EXPECT().GetCategory(gomock.Any(), int64(42)).Return(&category.Category{ID: 42}, nil)
			},
			wantErr: true,
			wantIs:  category.ErrNotFound,
		},
		{
			name: "Missing",
			setupMock: func(m *category.MockRepository) {
				m.EXPECT().GetCategory(gomock.Any(), int64(42)).Return(nil, category.ErrNotFound)
			},
			wantErr: true,
			wantIs:  category.ErrNotFound,
		},
		{
			name: "RepoError",
			setupMock: func(m *category.MockRepository) {
				m.EXPECT().GetCategory(gomock.Any(), int64(42)).Return(nil, errors.New("db down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := category.NewMockRepository(ctrl)
			tt.setupMock(repo)

			err := category.NewService(repo).Validate(context.Background(), 42)

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			assert.Error(t, err)

			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}
