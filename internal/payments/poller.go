package payments

import (
	"context"

	"tipkoro/internal/types"
)

// VerifyRequest carries what the browser saw on the gateway return URL.
// PaymentMethod and PaymentAmount are untrusted hints.
type VerifyRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,max=200"`
	PaymentMethod string `json:"payment_method,omitempty" validate:"max=50"`
	PaymentAmount string `json:"payment_amount,omitempty" validate:"max=50"`
	ReferenceID   string `json:"reference_id,omitempty" validate:"max=100"`
}

// VerifyResponse is what the return page renders.
type VerifyResponse struct {
	Verified         bool                      `json:"verified"`
	TransactionID    string                    `json:"transaction_id"`
	Status           types.PaymentStatus       `json:"status"`
	Amount           float64                   `json:"amount,omitempty"`
	PaymentMethod    string                    `json:"payment_method,omitempty"`
	Email            string                    `json:"email,omitempty"`
	Outcome          types.VerificationOutcome `json:"outcome,omitempty"`
	OnboardingStatus types.OnboardingStatus    `json:"onboarding_status,omitempty"`
	CreatorUsername  string                    `json:"creator_username,omitempty"`
}

// VerifyRedirect verifies a transaction the browser came back with and, when
// the gateway confirms it, settles the record it belongs to. identityID is
// empty for anonymous callers. An unverified transaction writes nothing.
func (v *Verifier) VerifyRedirect(ctx context.Context, identityID string, req VerifyRequest) (*VerifyResponse, error) {
	if req.TransactionID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "transaction_id is required", nil)
	}
	if req.PaymentAmount != "" {
		v.logger.DebugContext(ctx, "ignoring client amount hint",
			"transaction_id", req.TransactionID,
			"payment_amount", req.PaymentAmount,
		)
	}

	var intent *types.PendingIntent
	if req.ReferenceID != "" {
		var err error
		if intent, err = v.loadIntent(ctx, req.ReferenceID); err != nil {
			return nil, err
		}
		if intent == nil {
			return nil, types.NewAppError(types.ErrCodeNotFoundIntent, "payment reference not found", nil)
		}
		if intent.IdentityID != "" && intent.IdentityID != identityID {
			return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "payment reference belongs to another account", nil)
		}
	}

	res, err := v.verify(ctx, types.SourceRedirect, req.TransactionID, req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	out := &VerifyResponse{
		Verified:      res.Verified,
		TransactionID: res.TransactionID,
		Status:        res.Status,
		Amount:        res.Amount,
		PaymentMethod: res.PaymentMethod,
		Email:         res.Email,
	}
	if !res.Verified {
		v.logger.InfoContext(ctx, "redirect verification not successful",
			"transaction_id", res.TransactionID,
			"status", res.Status,
		)
		return out, nil
	}

	// Only the gateway's echo binds a payment to an intent; a reference the
	// browser pairs with some other transaction settles nothing.
	if intent != nil && res.ReferenceID != intent.ID {
		v.logger.WarnContext(ctx, "reference_mismatch",
			"transaction_id", res.TransactionID,
			"reference_id", intent.ID,
			"gateway_reference_id", res.ReferenceID,
		)
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictReferenceMismatch,
			"transaction does not belong to this payment", nil,
			map[string]any{"transaction_id": res.TransactionID, "reference_id": intent.ID})
	}

	var settled *Settlement
	if intent != nil {
		settled, err = v.reconciler.SettleIntent(ctx, types.SourceRedirect, intent, res)
	} else {
		settled, err = v.settleByTransaction(ctx, types.SourceRedirect, res, identityID)
	}
	if err != nil {
		return nil, err
	}

	out.Outcome = settled.Outcome
	out.OnboardingStatus = settled.OnboardingStatus
	out.CreatorUsername = settled.CreatorUsername
	if settled.Outcome == types.OutcomeUnmatched || settled.Status != types.PaymentCompleted {
		// Underpayment or an earlier terminal state overrides the gateway's yes.
		out.Verified = false
		out.Status = settled.Status
	}
	return out, nil
}
