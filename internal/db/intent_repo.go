package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tipkoro/internal/types"
)

// IntentRepository provides data access for pending_intents, the
// server-side record of a checkout awaiting verification.
type IntentRepository struct {
	db DBTX
}

// NewIntentRepository creates an IntentRepository over db.
func NewIntentRepository(db DBTX) *IntentRepository {
	return &IntentRepository{db: db}
}

const intentColumns = `id, kind, identity_id, COALESCE(profile_id::text, ''), COALESCE(creator_id::text, ''),
	amount, currency, payload, status, COALESCE(transaction_id, ''), created_at, expires_at, resolved_at`

// Create inserts an open intent. ID doubles as the gateway reference id.
func (r *IntentRepository) Create(ctx context.Context, in *types.PendingIntent) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Currency == "" {
		in.Currency = types.DefaultCurrency
	}
	in.Status = types.IntentOpen
	err := r.db.QueryRow(ctx,
		`INSERT INTO pending_intents (id, kind, identity_id, profile_id, creator_id, amount, currency, payload, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		in.ID,
		in.Kind,
		in.IdentityID,
		nilIfEmpty(in.ProfileID),
		nilIfEmpty(in.CreatorID),
		in.Amount,
		in.Currency,
		in.Details,
		in.Status,
		in.ExpiresAt,
	).Scan(&in.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create pending intent", err)
	}
	return nil
}

// Get returns the intent or not_found_intent. Malformed ids are reported as
// not found rather than as database errors.
func (r *IntentRepository) Get(ctx context.Context, id string) (*types.PendingIntent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundIntent, "payment reference not found", nil)
	}
	var in types.PendingIntent
	err := r.db.QueryRow(ctx,
		`SELECT `+intentColumns+` FROM pending_intents WHERE id = $1`,
		id,
	).Scan(
		&in.ID,
		&in.Kind,
		&in.IdentityID,
		&in.ProfileID,
		&in.CreatorID,
		&in.Amount,
		&in.Currency,
		&in.Details,
		&in.Status,
		&in.TransactionID,
		&in.CreatedAt,
		&in.ExpiresAt,
		&in.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundIntent, "payment reference not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve pending intent", err)
	}
	return &in, nil
}

// Resolve binds transactionID to an open intent. It returns false when the
// intent was already resolved.
func (r *IntentRepository) Resolve(ctx context.Context, id, transactionID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE pending_intents
		 SET status = 'resolved', transaction_id = $2, resolved_at = NOW()
		 WHERE id = $1 AND status = 'open'`,
		id, transactionID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, types.NewAppError(types.ErrCodeConflictIntentResolved, "transaction already resolved another payment", err)
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve pending intent", err)
	}
	return tag.RowsAffected() > 0, nil
}

var _ types.IntentRepository = (*IntentRepository)(nil)
