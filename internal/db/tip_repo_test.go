package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tipkoro/internal/types"
)

func tipValues(t types.Tip) []any {
	return []any{
		t.ID, t.CreatorID, t.SupporterID, t.SupporterName, t.SupporterEmail, t.Amount,
		t.Currency, t.Message, t.IsAnonymous, t.PaymentMethod, t.PaymentStatus,
		t.TransactionID, t.CreatedAt,
	}
}

func TestTipRepository_Insert(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{"first insert", "INSERT 0 1", true},
		{"duplicate transaction", "INSERT 0 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewTipRepository(db)
			db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
				Return(pgconn.NewCommandTag(tt.tag), nil)

			tip := &types.Tip{CreatorID: "p1", SupporterName: "Karim", Amount: 50, TransactionID: "t1", PaymentStatus: types.PaymentCompleted}
			inserted, err := repo.Insert(context.Background(), tip)
			require.NoError(t, err)
			assert.Equal(t, tt.want, inserted)
			assert.NotEmpty(t, tip.ID)
		})
	}
}

func TestTipRepository_ListByCreator(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTipRepository(db)
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	rows := newMockRows([][]any{
		tipValues(types.Tip{ID: "tip-2", CreatorID: "p1", SupporterName: "Karim", Amount: 100, Currency: "BDT", PaymentStatus: types.PaymentCompleted, TransactionID: "t2", CreatedAt: now}),
		tipValues(types.Tip{ID: "tip-1", CreatorID: "p1", SupporterName: "Anonymous", IsAnonymous: true, Amount: 10, Currency: "BDT", PaymentStatus: types.PaymentCompleted, TransactionID: "t1", CreatedAt: now.Add(-time.Hour)}),
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"p1", 50}).Return(rows, nil)

	tips, err := repo.ListByCreator(context.Background(), "p1", 0)
	require.NoError(t, err)
	require.Len(t, tips, 2)
	assert.Equal(t, "tip-2", tips[0].ID)
	assert.True(t, tips[1].IsAnonymous)
	assert.True(t, rows.closed)
}

func TestTipRepository_ListByCreator_RowsError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTipRepository(db)

	rows := newMockRows(nil)
	rows.errVal = errConnRefused
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.ListByCreator(context.Background(), "p1", 10)
	requireAppCode(t, err, types.ErrCodeInternalDB)
}

func TestTipRepository_UpdateStatus(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTipRepository(db)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"t1", types.PaymentFailed}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	changed, err := repo.UpdateStatus(context.Background(), "t1", types.PaymentFailed)
	require.NoError(t, err)
	assert.False(t, changed)
}
