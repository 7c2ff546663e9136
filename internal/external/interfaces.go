package external

import (
	"context"
	"net/http"

	"tipkoro/internal/types"
)

// CheckoutRequest asks the gateway for a hosted checkout page.
type CheckoutRequest struct {
	PayerName  string
	PayerEmail string
	Amount     float64
	SuccessURL string
	CancelURL  string
	// ReferenceID correlates the checkout with a pending intent. It travels
	// in meta_data and comes back on verification when the gateway echoes it.
	ReferenceID string
	// Purpose is stored as meta_data.signup_type.
	Purpose string
}

// Checkout purposes.
const (
	PurposeCreatorPromo  = "creator_promo"
	PurposeCreatorSignup = "creator_signup"
	PurposeTip           = "tip"
)

// CheckoutSession is a created checkout.
type CheckoutSession struct {
	PaymentURL string `json:"payment_url"`
}

// VerificationExpectation carries server-side knowledge about a transaction.
// PaymentMethod only fills a method the gateway omitted. Amount, when set,
// must come from a server-side record and rejects underpayment.
type VerificationExpectation struct {
	PaymentMethod string
	Amount        float64
}

// PaymentGateway is the RupantorPay boundary. Every status the rest of the
// system sees has been through NormalizeStatus.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// VerifyTransaction never returns Verified=true together with an error.
	VerifyTransaction(ctx context.Context, transactionID string, expect VerificationExpectation) (types.VerificationResult, error)
}

// AdminNotifier delivers operator events. Callers treat failures as best effort.
type AdminNotifier interface {
	Notify(ctx context.Context, event types.AdminEvent) error
}

// IdentityWebhookVerifier authenticates identity provider webhooks.
type IdentityWebhookVerifier interface {
	Verify(payload []byte, headers http.Header) error
}
