package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"tipkoro/internal/external"
	"tipkoro/internal/types"
)

// MaxWebhookBodyBytes caps the gateway callback body.
const MaxWebhookBodyBytes = 64 << 10

// WebhookPayload is the gateway callback. Its fields are diagnostics only:
// state always comes from a fresh VerifyTransaction.
type WebhookPayload struct {
	TransactionID string
	Status        any
	PaymentMethod string
	Amount        any
	Email         string
	MetaData      json.RawMessage
}

type rawWebhook struct {
	TransactionID      string          `json:"transaction_id"`
	TransactionIDCamel string          `json:"transactionId"`
	Status             any             `json:"status"`
	PaymentMethod      string          `json:"payment_method"`
	PaymentMethodCamel string          `json:"paymentMethod"`
	Amount             any             `json:"amount"`
	Email              string          `json:"email"`
	MetaData           json.RawMessage `json:"meta_data"`
}

// ParseWebhookPayload decodes a callback in either snake or camel case.
func ParseWebhookPayload(body []byte) (WebhookPayload, error) {
	var raw rawWebhook
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookPayload{}, types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid webhook body", err)
	}
	p := WebhookPayload{
		TransactionID: raw.TransactionID,
		Status:        raw.Status,
		PaymentMethod: raw.PaymentMethod,
		Amount:        raw.Amount,
		Email:         raw.Email,
		MetaData:      raw.MetaData,
	}
	if p.TransactionID == "" {
		p.TransactionID = raw.TransactionIDCamel
	}
	if p.PaymentMethod == "" {
		p.PaymentMethod = raw.PaymentMethodCamel
	}
	return p, nil
}

// Verifier drives gateway verification for both the webhook and the
// browser return path. Concurrent verifications of one transaction id
// share a single gateway call.
type Verifier struct {
	gateway    external.PaymentGateway
	store      types.ScopedStoreFactory
	reconciler *Reconciler
	metrics    Recorder
	logger     *slog.Logger
	group      singleflight.Group
}

// NewVerifier creates a Verifier.
func NewVerifier(gateway external.PaymentGateway, store types.ScopedStoreFactory, reconciler *Reconciler, metrics Recorder, logger *slog.Logger) *Verifier {
	if metrics == nil {
		metrics = noopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		gateway:    gateway,
		store:      store,
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger,
	}
}

// verify asks the gateway for the state of transactionID. methodHint only
// fills a method the gateway leaves out.
func (v *Verifier) verify(ctx context.Context, source, transactionID, methodHint string) (types.VerificationResult, error) {
	ch := v.group.DoChan(transactionID, func() (any, error) {
		// Detached so one caller hanging up does not fail the others.
		return v.gateway.VerifyTransaction(context.WithoutCancel(ctx), transactionID, external.VerificationExpectation{
			PaymentMethod: methodHint,
		})
	})

	var res types.VerificationResult
	var err error
	select {
	case <-ctx.Done():
		return types.VerificationResult{Status: types.PaymentPending, TransactionID: transactionID}, ctx.Err()
	case out := <-ch:
		res, _ = out.Val.(types.VerificationResult)
		err = out.Err
	}
	if res.TransactionID == "" {
		res.TransactionID = transactionID
	}
	if err != nil {
		res.Verified = false
		res.Status = types.PaymentPending
	}
	if res.PaymentMethod == "" {
		res.PaymentMethod = methodHint
	}
	v.metrics.RecordVerification(ctx, source, res.Status)
	return res, err
}

// HandleWebhook re-verifies the transaction a callback names and applies
// the result to whichever record it belongs to. A verification error
// leaves every record untouched.
func (v *Verifier) HandleWebhook(ctx context.Context, p WebhookPayload) (*Settlement, error) {
	if p.TransactionID == "" {
		v.metrics.RecordWebhookRejected(ctx, "missing_transaction_id")
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "transaction_id is required", nil)
	}

	v.logger.InfoContext(ctx, "gateway webhook received",
		"transaction_id", p.TransactionID,
		"callback_status", fmt.Sprint(p.Status),
		"callback_method", p.PaymentMethod,
		"callback_amount", fmt.Sprint(p.Amount),
	)

	res, err := v.verify(ctx, types.SourceWebhook, p.TransactionID, "")
	if err != nil {
		if types.CodeOf(err) == types.ErrCodeInternalGatewayNotConfigured {
			v.metrics.RecordWebhookRejected(ctx, "gateway_not_configured")
		}
		v.logger.ErrorContext(ctx, "webhook verification failed",
			"transaction_id", p.TransactionID,
			"error", err,
		)
		return nil, err
	}
	return v.settleByTransaction(ctx, types.SourceWebhook, res, "")
}

// settleByTransaction finds the record a verified transaction closes, in
// order: the gateway-echoed intent, a signup, subscription or tip already
// bound to the transaction, the caller's pending subscription, the anonymous
// signup. A payment opened for an intent never falls through to the later
// steps, and only promo payments may settle the caller's pending
// subscription.
func (v *Verifier) settleByTransaction(ctx context.Context, source string, res types.VerificationResult, identityID string) (*Settlement, error) {
	if res.ReferenceID != "" {
		intent, err := v.loadIntent(ctx, res.ReferenceID)
		if err != nil {
			return nil, err
		}
		if intent != nil {
			return v.reconciler.SettleIntent(ctx, source, intent, res)
		}
		return v.unmatched(ctx, source, res, "gateway reference matches no intent"), nil
	}

	var (
		signup       *types.CreatorSignup
		sub, pending *types.CreatorSubscription
		tip          *types.Tip
	)
	err := v.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		if sub, err = repos.Subscriptions().GetByTransaction(ctx, res.TransactionID); err != nil || sub != nil {
			return err
		}
		if tip, err = repos.Tips().GetByTransaction(ctx, res.TransactionID); err != nil || tip != nil {
			return err
		}
		if signup, err = repos.Signups().GetByTransaction(ctx, res.TransactionID); err != nil || signup != nil {
			return err
		}
		if identityID == "" || !settlesSubscription(res.Purpose) {
			return nil
		}
		profile, err := repos.Profiles().GetByUserID(ctx, identityID)
		if err != nil {
			if types.CodeOf(err) == types.ErrCodeNotFoundProfile {
				return nil
			}
			return err
		}
		pending, err = repos.Subscriptions().GetPendingByProfile(ctx, profile.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case sub != nil:
		return v.reconciler.ApplySubscriptionStatus(ctx, source, sub, res)
	case tip != nil:
		return v.reconciler.BackfillTip(ctx, source, tip, res)
	case signup != nil:
		return v.reconciler.ApplySignupPayment(ctx, source, res)
	case pending != nil:
		return v.reconciler.ApplySubscriptionStatus(ctx, source, pending, res)
	case res.Purpose == external.PurposeTip || res.Purpose == external.PurposeCreatorPromo:
		return v.unmatched(ctx, source, res, "payment carries no reference for its "+res.Purpose), nil
	default:
		return v.reconciler.ApplySignupPayment(ctx, source, res)
	}
}

// settlesSubscription reports whether a payment without a reference may be
// applied to the caller's pending subscription.
func settlesSubscription(purpose string) bool {
	return purpose == "" || purpose == external.PurposeCreatorPromo
}

// unmatched reports a payment no local record may claim. A verified one is
// escalated to the admin sink for manual handling.
func (v *Verifier) unmatched(ctx context.Context, source string, res types.VerificationResult, reason string) *Settlement {
	if res.Verified {
		v.reconciler.reportUnmatched(ctx, source, res, reason)
	} else {
		v.logger.WarnContext(ctx, "payment matched nothing",
			"transaction_id", res.TransactionID,
			"reference_id", res.ReferenceID,
			"reason", reason,
		)
	}
	return &Settlement{Outcome: types.OutcomeUnmatched, Status: res.Status}
}

// loadIntent returns the intent or nil when id names none.
func (v *Verifier) loadIntent(ctx context.Context, id string) (*types.PendingIntent, error) {
	var intent *types.PendingIntent
	err := v.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		intent, err = repos.Intents().Get(ctx, id)
		return err
	})
	if err != nil {
		if types.CodeOf(err) == types.ErrCodeNotFoundIntent {
			return nil, nil
		}
		return nil, err
	}
	return intent, nil
}
