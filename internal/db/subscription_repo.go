package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tipkoro/internal/types"
)

// SubscriptionRepository provides data access for creator_subscriptions.
//
// Status writes are monotonic: completed is terminal, so Complete and
// MarkFailed both guard on the stored status in their WHERE clause. A late
// or duplicated verification therefore cannot downgrade a settled row.
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a SubscriptionRepository over db.
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `s.id, s.profile_id, s.amount, s.currency, COALESCE(s.payment_method, ''),
	s.payment_status, COALESCE(s.transaction_id, ''), COALESCE(s.payout_method, ''),
	COALESCE(s.phone, ''), s.promo, s.signup_date, s.billing_start, s.active_until,
	s.created_at, s.updated_at`

func scanSubscription(row pgx.Row) (*types.CreatorSubscription, error) {
	var s types.CreatorSubscription
	err := row.Scan(
		&s.ID,
		&s.ProfileID,
		&s.Amount,
		&s.Currency,
		&s.PaymentMethod,
		&s.PaymentStatus,
		&s.TransactionID,
		&s.PayoutMethod,
		&s.Phone,
		&s.Promo,
		&s.SignupDate,
		&s.BillingStart,
		&s.ActiveUntil,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// find returns nil, nil when no row matches.
func (r *SubscriptionRepository) find(ctx context.Context, query string, args ...any) (*types.CreatorSubscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}
	return s, nil
}

// CreatePending inserts a pending subscription. The partial unique index on
// (profile_id) WHERE payment_status = 'pending' turns a second insert into a
// no-op, in which case the existing pending row is returned with created=false.
func (r *SubscriptionRepository) CreatePending(ctx context.Context, sub *types.CreatorSubscription) (*types.CreatorSubscription, bool, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	currency := sub.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	stored, err := r.find(ctx,
		`INSERT INTO creator_subscriptions AS s (id, profile_id, amount, currency, payment_status, payout_method, phone, promo)
		 VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
		 ON CONFLICT (profile_id) WHERE payment_status = 'pending' DO NOTHING
		 RETURNING `+subscriptionColumns,
		sub.ID,
		sub.ProfileID,
		sub.Amount,
		currency,
		nilIfEmpty(string(sub.PayoutMethod)),
		nilIfEmpty(sub.Phone),
		sub.Promo,
	)
	if err != nil {
		return nil, false, err
	}
	if stored != nil {
		return stored, true, nil
	}

	existing, err := r.GetPendingByProfile(ctx, sub.ProfileID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// The conflicting row settled between the insert and the read.
		return nil, false, types.NewAppError(types.ErrCodeConflictPendingSubscription, "pending subscription changed concurrently; retry", nil)
	}
	return existing, false, nil
}

// GetPendingByProfile returns the profile's pending subscription, or nil.
func (r *SubscriptionRepository) GetPendingByProfile(ctx context.Context, profileID string) (*types.CreatorSubscription, error) {
	return r.find(ctx,
		`SELECT `+subscriptionColumns+` FROM creator_subscriptions s
		 WHERE s.profile_id = $1 AND s.payment_status = 'pending'`,
		profileID,
	)
}

// GetByTransaction returns the subscription bound to transactionID, or nil.
func (r *SubscriptionRepository) GetByTransaction(ctx context.Context, transactionID string) (*types.CreatorSubscription, error) {
	return r.find(ctx,
		`SELECT `+subscriptionColumns+` FROM creator_subscriptions s WHERE s.transaction_id = $1`,
		transactionID,
	)
}

// GetLatestByProfile returns the most recent subscription for a profile, or nil.
func (r *SubscriptionRepository) GetLatestByProfile(ctx context.Context, profileID string) (*types.CreatorSubscription, error) {
	return r.find(ctx,
		`SELECT `+subscriptionColumns+` FROM creator_subscriptions s
		 WHERE s.profile_id = $1
		 ORDER BY s.created_at DESC
		 LIMIT 1`,
		profileID,
	)
}

// Complete settles a subscription with verified data. A row that is already
// completed is returned untouched with applied=false.
func (r *SubscriptionRepository) Complete(ctx context.Context, id string, c types.SubscriptionCompletion) (*types.CreatorSubscription, bool, error) {
	currency := c.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	updated, err := r.find(ctx,
		`UPDATE creator_subscriptions AS s
		 SET payment_status = 'completed',
		     transaction_id = $2,
		     payment_method = COALESCE(NULLIF($3, ''), s.payment_method),
		     amount = $4,
		     currency = $5,
		     promo = TRUE,
		     signup_date = $6,
		     billing_start = $7,
		     active_until = $8,
		     updated_at = NOW()
		 WHERE s.id = $1 AND s.payment_status <> 'completed'
		 RETURNING `+subscriptionColumns,
		id,
		c.TransactionID,
		c.PaymentMethod,
		c.Amount,
		currency,
		c.SignupDate,
		c.BillingStart,
		c.ActiveUntil,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, types.NewAppError(types.ErrCodeConflictIntentResolved, "transaction already settled another subscription", err)
		}
		return nil, false, err
	}
	if updated != nil {
		return updated, true, nil
	}

	current, err := r.find(ctx, `SELECT `+subscriptionColumns+` FROM creator_subscriptions s WHERE s.id = $1`, id)
	if err != nil {
		return nil, false, err
	}
	if current == nil {
		return nil, false, types.NewAppError(types.ErrCodeNotFoundIntent, "subscription not found", nil)
	}
	return current, false, nil
}

// MarkFailed records a verified failure on a pending subscription. The
// transaction id is bound only if none is stored yet.
func (r *SubscriptionRepository) MarkFailed(ctx context.Context, id, transactionID, method string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE creator_subscriptions
		 SET payment_status = 'failed',
		     transaction_id = COALESCE(transaction_id, NULLIF($2, '')),
		     payment_method = COALESCE(NULLIF($3, ''), payment_method),
		     updated_at = NOW()
		 WHERE id = $1 AND payment_status = 'pending'`,
		id, transactionID, method,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark subscription failed", err)
	}
	return tag.RowsAffected() > 0, nil
}

var _ types.SubscriptionRepository = (*SubscriptionRepository)(nil)
