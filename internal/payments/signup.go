package payments

import (
	"context"
	"time"

	"tipkoro/internal/types"
)

// SignupProfile is the profile half of the anonymous signup funnel,
// submitted after the payment verified.
type SignupProfile struct {
	TransactionID string             `json:"transaction_id" validate:"required,max=200"`
	Username      string             `json:"username" validate:"required,username"`
	FirstName     string             `json:"first_name" validate:"required,max=100"`
	LastName      string             `json:"last_name" validate:"required,max=100"`
	Email         string             `json:"email" validate:"required,email,max=254"`
	Bio           string             `json:"bio" validate:"required,max=200"`
	Category      string             `json:"category" validate:"required,max=50"`
	Twitter       string             `json:"twitter,omitempty" validate:"omitempty,max=500,http_url"`
	Instagram     string             `json:"instagram,omitempty" validate:"omitempty,max=500,http_url"`
	Youtube       string             `json:"youtube,omitempty" validate:"omitempty,max=500,http_url"`
	OtherLink     string             `json:"other_link,omitempty" validate:"omitempty,max=500,http_url"`
	Phone         string             `json:"phone,omitempty" validate:"omitempty,max=20,phone"`
	PayoutMethod  types.PayoutMethod `json:"payout_method" validate:"required,payout_method"`
}

// SignupResult reports the promotional period granted.
type SignupResult struct {
	Success      bool      `json:"success"`
	Username     string    `json:"username"`
	ActiveUntil  time.Time `json:"active_until"`
	BillingStart time.Time `json:"billing_start"`
}

// CompleteSignup attaches a validated profile to a signup whose payment is
// completed and starts its promotional period. Resubmitting the same
// username returns the stored period.
func (r *Reconciler) CompleteSignup(ctx context.Context, in SignupProfile) (*SignupResult, error) {
	username := types.NormalizeUsername(in.Username)
	now := r.clock.Now()
	end := types.PromoPeriodEnd(now)

	row := &types.CreatorSignup{
		TransactionID: in.TransactionID,
		Username:      username,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Email:         in.Email,
		Bio:           in.Bio,
		Category:      in.Category,
		Twitter:       in.Twitter,
		Instagram:     in.Instagram,
		Youtube:       in.Youtube,
		OtherLink:     in.OtherLink,
		PayoutMethod:  in.PayoutMethod,
		Phone:         in.Phone,
		Promo:         true,
		SignupDate:    &now,
		ActiveUntil:   &end,
		BillingStart:  &end,
	}

	var existing *types.CreatorSignup
	var replay bool
	err := r.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		existing, err = repos.Signups().GetByTransaction(ctx, in.TransactionID)
		if err != nil {
			return err
		}
		if existing == nil || existing.PaymentStatus != types.PaymentCompleted {
			return types.NewAppError(types.ErrCodeValidationPaymentUnverified, "payment not verified", nil)
		}
		if existing.SignupDate != nil {
			if existing.Username != username {
				return types.NewAppError(types.ErrCodeConflictOnboarding, "signup already completed", nil)
			}
			replay = true
			return nil
		}

		taken, err := repos.Signups().UsernameTakenByOther(ctx, username, in.TransactionID)
		if err != nil {
			return err
		}
		if taken {
			return types.NewAppError(types.ErrCodeConflictUsernameTaken, "username already taken", nil)
		}
		return repos.Signups().CompleteProfile(ctx, row)
	})
	if err != nil {
		return nil, err
	}

	if replay {
		out := &SignupResult{Success: true, Username: existing.Username}
		if existing.ActiveUntil != nil {
			out.ActiveUntil = *existing.ActiveUntil
		}
		if existing.BillingStart != nil {
			out.BillingStart = *existing.BillingStart
		}
		return out, nil
	}

	r.logger.InfoContext(ctx, "creator signup completed",
		"transaction_id", in.TransactionID,
		"username", username,
		"active_until", end,
	)
	r.notify(ctx, types.AdminEventSignupCompleted, map[string]any{
		"transaction_id": in.TransactionID,
		"username":       username,
		"email":          in.Email,
		"first_name":     in.FirstName,
		"last_name":      in.LastName,
		"category":       in.Category,
		"payout_method":  in.PayoutMethod,
		"payment_method": existing.PaymentMethod,
		"amount":         existing.Amount,
		"promo":          true,
		"active_until":   end,
		"billing_start":  end,
	})
	return &SignupResult{Success: true, Username: username, ActiveUntil: end, BillingStart: end}, nil
}
