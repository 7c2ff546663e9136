package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"tipkoro/internal/types"
)

// StubTransactionPrefix marks transaction ids minted by StubPaymentGateway.
const StubTransactionPrefix = "stub_"

// StubPaymentGateway lets the checkout loop run locally without gateway
// credentials. Its payment URL is the success URL with stub return
// parameters, and it verifies only the transactions it minted.
type StubPaymentGateway struct {
	logger *slog.Logger
}

// NewStubPaymentGateway creates a new StubPaymentGateway.
func NewStubPaymentGateway(logger *slog.Logger) *StubPaymentGateway {
	return &StubPaymentGateway{logger: logger}
}

func (s *StubPaymentGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	s.logger.InfoContext(ctx, "stub: CreateCheckout called",
		"purpose", req.Purpose,
		"amount", req.Amount,
		"reference_id", req.ReferenceID,
	)
	ref := req.ReferenceID
	if ref == "" {
		ref = strings.ReplaceAll(req.PayerEmail, "@", "_at_")
	}
	q := url.Values{}
	q.Set("transactionId", StubTransactionPrefix+ref)
	q.Set("paymentMethod", "bkash")
	q.Set("paymentAmount", fmt.Sprintf("%.2f", req.Amount))

	sep := "?"
	if strings.Contains(req.SuccessURL, "?") {
		sep = "&"
	}
	return &CheckoutSession{PaymentURL: req.SuccessURL + sep + q.Encode()}, nil
}

func (s *StubPaymentGateway) VerifyTransaction(ctx context.Context, transactionID string, expect VerificationExpectation) (types.VerificationResult, error) {
	s.logger.InfoContext(ctx, "stub: VerifyTransaction called", "transaction_id", transactionID)

	result := types.VerificationResult{
		Status:        types.PaymentFailed,
		TransactionID: transactionID,
		Currency:      types.DefaultCurrency,
		PaymentMethod: expect.PaymentMethod,
		Amount:        expect.Amount,
	}
	ref, ok := strings.CutPrefix(transactionID, StubTransactionPrefix)
	if !ok {
		return result, nil
	}
	result.Status = types.PaymentCompleted
	result.Verified = true
	if result.PaymentMethod == "" {
		result.PaymentMethod = "bkash"
	}
	if strings.Contains(ref, "_at_") {
		result.Purpose = PurposeCreatorSignup
	} else {
		result.ReferenceID = ref
	}
	return result, nil
}

// StubAdminNotifier logs admin events.
type StubAdminNotifier struct {
	logger *slog.Logger
}

// NewStubAdminNotifier creates a new StubAdminNotifier.
func NewStubAdminNotifier(logger *slog.Logger) *StubAdminNotifier {
	return &StubAdminNotifier{logger: logger}
}

func (s *StubAdminNotifier) Notify(ctx context.Context, event types.AdminEvent) error {
	s.logger.InfoContext(ctx, "stub: Notify called", "event", event.Event, "data", event.Data)
	return nil
}

// StubIdentityVerifier accepts every payload. Only used in local and test mode.
type StubIdentityVerifier struct {
	logger *slog.Logger
}

// NewStubIdentityVerifier creates a new StubIdentityVerifier.
func NewStubIdentityVerifier(logger *slog.Logger) *StubIdentityVerifier {
	return &StubIdentityVerifier{logger: logger}
}

func (s *StubIdentityVerifier) Verify(payload []byte, headers http.Header) error {
	s.logger.Info("stub: Verify called", "svix_id", headers.Get(HeaderSvixID), "bytes", len(payload))
	return nil
}

var (
	_ PaymentGateway          = (*StubPaymentGateway)(nil)
	_ AdminNotifier           = (*StubAdminNotifier)(nil)
	_ IdentityWebhookVerifier = (*StubIdentityVerifier)(nil)
)
