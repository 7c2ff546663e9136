package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tipkoro/internal/types"
)

// SignupRepository provides data access for creator_signups, the anonymous
// funnel keyed by gateway transaction id.
type SignupRepository struct {
	db DBTX
}

// NewSignupRepository creates a SignupRepository over db.
func NewSignupRepository(db DBTX) *SignupRepository {
	return &SignupRepository{db: db}
}

const signupColumns = `c.id, c.transaction_id, c.payment_status, COALESCE(c.payment_method, ''),
	c.amount, c.currency, COALESCE(c.email, ''), COALESCE(c.username, ''),
	COALESCE(c.first_name, ''), COALESCE(c.last_name, ''), COALESCE(c.bio, ''),
	COALESCE(c.category, ''), COALESCE(c.twitter, ''), COALESCE(c.instagram, ''),
	COALESCE(c.youtube, ''), COALESCE(c.other_link, ''), COALESCE(c.payout_method, ''),
	COALESCE(c.phone, ''), c.promo, c.signup_date, c.active_until, c.billing_start,
	c.created_at, c.updated_at`

func scanSignup(row pgx.Row) (*types.CreatorSignup, error) {
	var s types.CreatorSignup
	err := row.Scan(
		&s.ID,
		&s.TransactionID,
		&s.PaymentStatus,
		&s.PaymentMethod,
		&s.Amount,
		&s.Currency,
		&s.Email,
		&s.Username,
		&s.FirstName,
		&s.LastName,
		&s.Bio,
		&s.Category,
		&s.Twitter,
		&s.Instagram,
		&s.Youtube,
		&s.OtherLink,
		&s.PayoutMethod,
		&s.Phone,
		&s.Promo,
		&s.SignupDate,
		&s.ActiveUntil,
		&s.BillingStart,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertPayment inserts or advances the payment state of a signup. The
// conflict branch only fires for a real transition: pending to anything
// else, or failed to completed. Completed rows and same-status repeats come
// back with applied=false.
func (r *SignupRepository) UpsertPayment(ctx context.Context, s *types.CreatorSignup) (bool, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	currency := s.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	var id string
	err := r.db.QueryRow(ctx,
		`INSERT INTO creator_signups AS c (id, transaction_id, payment_status, payment_method, amount, currency, email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (transaction_id) DO UPDATE
		 SET payment_status = EXCLUDED.payment_status,
		     payment_method = COALESCE(EXCLUDED.payment_method, c.payment_method),
		     amount = EXCLUDED.amount,
		     currency = EXCLUDED.currency,
		     email = COALESCE(EXCLUDED.email, c.email),
		     updated_at = NOW()
		 WHERE c.payment_status <> EXCLUDED.payment_status
		   AND (c.payment_status = 'pending'
		        OR (c.payment_status = 'failed' AND EXCLUDED.payment_status = 'completed'))
		 RETURNING c.id`,
		s.ID,
		s.TransactionID,
		s.PaymentStatus,
		nilIfEmpty(s.PaymentMethod),
		s.Amount,
		currency,
		nilIfEmpty(s.Email),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert signup payment", err)
	}
	s.ID = id
	return true, nil
}

// GetByTransaction returns the signup for transactionID, or nil.
func (r *SignupRepository) GetByTransaction(ctx context.Context, transactionID string) (*types.CreatorSignup, error) {
	s, err := scanSignup(r.db.QueryRow(ctx,
		`SELECT `+signupColumns+` FROM creator_signups c WHERE c.transaction_id = $1`,
		transactionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve signup", err)
	}
	return s, nil
}

// UsernameTakenByOther reports whether username is held by a signup with a
// different transaction or by any profile.
func (r *SignupRepository) UsernameTakenByOther(ctx context.Context, username, transactionID string) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM creator_signups WHERE username = $1 AND transaction_id <> $2)
		     OR EXISTS (SELECT 1 FROM profiles WHERE username = $1)`,
		types.NormalizeUsername(username), transactionID,
	).Scan(&taken)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check username", err)
	}
	return taken, nil
}

// CompleteProfile stores the profile half of a signup whose payment is
// completed. A username race lost at the unique index is a conflict.
func (r *SignupRepository) CompleteProfile(ctx context.Context, s *types.CreatorSignup) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE creator_signups
		 SET username = $2, first_name = $3, last_name = $4, email = $5,
		     bio = $6, category = $7, twitter = $8, instagram = $9,
		     youtube = $10, other_link = $11, payout_method = $12, phone = $13,
		     promo = $14, signup_date = $15, active_until = $16, billing_start = $17,
		     updated_at = NOW()
		 WHERE transaction_id = $1 AND payment_status = 'completed'`,
		s.TransactionID,
		types.NormalizeUsername(s.Username),
		s.FirstName,
		s.LastName,
		s.Email,
		s.Bio,
		s.Category,
		nilIfEmpty(s.Twitter),
		nilIfEmpty(s.Instagram),
		nilIfEmpty(s.Youtube),
		nilIfEmpty(s.OtherLink),
		string(s.PayoutMethod),
		nilIfEmpty(s.Phone),
		s.Promo,
		s.SignupDate,
		s.ActiveUntil,
		s.BillingStart,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictUsernameTaken, "username already taken", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to complete signup", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeValidationPaymentUnverified, "payment not verified", nil)
	}
	return nil
}

var _ types.SignupRepository = (*SignupRepository)(nil)
