package db

import (
	"context"

	"github.com/google/uuid"

	"tipkoro/internal/types"
)

// WithdrawalRepository provides data access for withdrawal_requests. The API
// only creates and reads requests; status changes belong to the back office.
type WithdrawalRepository struct {
	db DBTX
}

// NewWithdrawalRepository creates a WithdrawalRepository over db.
func NewWithdrawalRepository(db DBTX) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

const withdrawalColumns = `id, profile_id, amount, currency, payout_method, payout_details,
	status, COALESCE(notes, ''), processed_at, created_at, updated_at`

// Create inserts a pending request and fills in the stored timestamps.
func (r *WithdrawalRepository) Create(ctx context.Context, w *types.WithdrawalRequest) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Currency == "" {
		w.Currency = types.DefaultCurrency
	}
	if w.Status == "" {
		w.Status = types.WithdrawalPending
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO withdrawal_requests (id, profile_id, amount, currency, payout_method, payout_details, status, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		w.ID,
		w.ProfileID,
		w.Amount,
		w.Currency,
		w.PayoutMethod,
		w.PayoutDetails,
		w.Status,
		nilIfEmpty(w.Notes),
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create withdrawal request", err)
	}
	return nil
}

// ListByProfile returns a profile's requests, newest first.
func (r *WithdrawalRepository) ListByProfile(ctx context.Context, profileID string) ([]*types.WithdrawalRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		 WHERE profile_id = $1
		 ORDER BY created_at DESC`,
		profileID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list withdrawal requests", err)
	}
	defer rows.Close()

	out := []*types.WithdrawalRequest{}
	for rows.Next() {
		var w types.WithdrawalRequest
		if err := rows.Scan(
			&w.ID,
			&w.ProfileID,
			&w.Amount,
			&w.Currency,
			&w.PayoutMethod,
			&w.PayoutDetails,
			&w.Status,
			&w.Notes,
			&w.ProcessedAt,
			&w.CreatedAt,
			&w.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan withdrawal request", err)
		}
		out = append(out, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate withdrawal requests", err)
	}
	return out, nil
}

// SumOutstanding totals every request that has not been rejected.
func (r *WithdrawalRepository) SumOutstanding(ctx context.Context, profileID string) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::float8 FROM withdrawal_requests
		 WHERE profile_id = $1 AND status <> 'rejected'`,
		profileID,
	).Scan(&total)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sum withdrawal requests", err)
	}
	return total, nil
}

var _ types.WithdrawalRepository = (*WithdrawalRepository)(nil)
