package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tipkoro/internal/types"
)

// TipRepository provides data access for tips. Rows are immutable apart from
// the payment_status backfill.
type TipRepository struct {
	db DBTX
}

// NewTipRepository creates a TipRepository over db.
func NewTipRepository(db DBTX) *TipRepository {
	return &TipRepository{db: db}
}

const tipColumns = `t.id, t.creator_id, COALESCE(t.supporter_id::text, ''), t.supporter_name,
	COALESCE(t.supporter_email, ''), t.amount, t.currency, COALESCE(t.message, ''),
	t.is_anonymous, COALESCE(t.payment_method, ''), t.payment_status, t.transaction_id,
	t.created_at`

func scanTip(row pgx.Row) (*types.Tip, error) {
	var t types.Tip
	err := row.Scan(
		&t.ID,
		&t.CreatorID,
		&t.SupporterID,
		&t.SupporterName,
		&t.SupporterEmail,
		&t.Amount,
		&t.Currency,
		&t.Message,
		&t.IsAnonymous,
		&t.PaymentMethod,
		&t.PaymentStatus,
		&t.TransactionID,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Insert stores t unless its transaction id is already recorded.
func (r *TipRepository) Insert(ctx context.Context, t *types.Tip) (bool, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	currency := t.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	tag, err := r.db.Exec(ctx,
		`INSERT INTO tips (id, creator_id, supporter_id, supporter_name, supporter_email,
		     amount, currency, message, is_anonymous, payment_method, payment_status, transaction_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, NOW()))
		 ON CONFLICT (transaction_id) DO NOTHING`,
		t.ID,
		t.CreatorID,
		nilIfEmpty(t.SupporterID),
		t.SupporterName,
		nilIfEmpty(t.SupporterEmail),
		t.Amount,
		currency,
		nilIfEmpty(t.Message),
		t.IsAnonymous,
		nilIfEmpty(t.PaymentMethod),
		t.PaymentStatus,
		t.TransactionID,
		nilIfZeroTime(t.CreatedAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert tip", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByTransaction returns the tip for transactionID, or nil.
func (r *TipRepository) GetByTransaction(ctx context.Context, transactionID string) (*types.Tip, error) {
	t, err := scanTip(r.db.QueryRow(ctx,
		`SELECT `+tipColumns+` FROM tips t WHERE t.transaction_id = $1`,
		transactionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve tip", err)
	}
	return t, nil
}

// ListByCreator returns a creator's tips, newest first.
func (r *TipRepository) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*types.Tip, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+tipColumns+` FROM tips t
		 WHERE t.creator_id = $1
		 ORDER BY t.created_at DESC
		 LIMIT $2`,
		creatorID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list tips", err)
	}
	defer rows.Close()

	tips := []*types.Tip{}
	for rows.Next() {
		t, err := scanTip(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan tip", err)
		}
		tips = append(tips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate tips", err)
	}
	return tips, nil
}

// UpdateStatus backfills payment_status. Completed tips never change.
func (r *TipRepository) UpdateStatus(ctx context.Context, transactionID string, status types.PaymentStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE tips SET payment_status = $2
		 WHERE transaction_id = $1
		   AND payment_status <> 'completed'
		   AND payment_status <> $2`,
		transactionID, status,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update tip status", err)
	}
	return tag.RowsAffected() > 0, nil
}

var _ types.TipRepository = (*TipRepository)(nil)
