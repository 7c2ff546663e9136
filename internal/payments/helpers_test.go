package payments

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tipkoro/internal/db/memstore"
	"tipkoro/internal/external"
	"tipkoro/internal/types"
)

var testNow = time.Date(2026, 1, 31, 9, 30, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGateway struct {
	mu          sync.Mutex
	results     map[string]types.VerificationResult
	errs        map[string]error
	verifyCalls int
	checkouts   []external.CheckoutRequest
	checkoutErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		results: map[string]types.VerificationResult{},
		errs:    map[string]error{},
	}
}

func (g *fakeGateway) complete(tx string, amount float64, ref string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[tx] = types.VerificationResult{
		Verified:      true,
		Status:        types.PaymentCompleted,
		TransactionID: tx,
		Amount:        amount,
		PaymentMethod: "bkash",
		Email:         "payer@example.com",
		Currency:      types.DefaultCurrency,
		ReferenceID:   ref,
	}
}

// completeAs is complete with the checkout kind echoed in meta_data.
func (g *fakeGateway) completeAs(tx string, amount float64, ref, purpose string) {
	g.complete(tx, amount, ref)
	g.mu.Lock()
	defer g.mu.Unlock()
	res := g.results[tx]
	res.Purpose = purpose
	g.results[tx] = res
}

func (g *fakeGateway) fail(tx string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[tx] = types.VerificationResult{
		Status:        types.PaymentFailed,
		TransactionID: tx,
		PaymentMethod: "nagad",
		Currency:      types.DefaultCurrency,
	}
}

func (g *fakeGateway) VerifyTransaction(_ context.Context, tx string, expect external.VerificationExpectation) (types.VerificationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if err := g.errs[tx]; err != nil {
		return types.VerificationResult{Status: types.PaymentPending, TransactionID: tx}, err
	}
	res, ok := g.results[tx]
	if !ok {
		return types.VerificationResult{Status: types.PaymentPending, TransactionID: tx}, nil
	}
	if res.PaymentMethod == "" {
		res.PaymentMethod = expect.PaymentMethod
	}
	return res, nil
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req external.CheckoutRequest) (*external.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	g.checkouts = append(g.checkouts, req)
	return &external.CheckoutSession{PaymentURL: "https://pay.example/checkout/" + req.ReferenceID}, nil
}

type fakeAdmin struct {
	mu     sync.Mutex
	events []types.AdminEvent
	err    error
}

func (a *fakeAdmin) Notify(_ context.Context, event types.AdminEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return a.err
}

func (a *fakeAdmin) named(name string) []types.AdminEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []types.AdminEvent
	for _, e := range a.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeRecorder struct {
	mu            sync.Mutex
	verifications []string
	rejected      []string
	notifyFailed  []string
}

func (r *fakeRecorder) RecordVerification(_ context.Context, source string, status types.PaymentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifications = append(r.verifications, source+":"+string(status))
}

func (r *fakeRecorder) RecordWebhookRejected(_ context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, reason)
}

func (r *fakeRecorder) RecordAdminNotifyFailure(_ context.Context, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifyFailed = append(r.notifyFailed, event)
}

type fakeFeed struct {
	mu        sync.Mutex
	published []types.Tip
}

func (f *fakeFeed) Publish(_ string, tip types.Tip) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, tip)
}

type harness struct {
	store      *memstore.Store
	gateway    *fakeGateway
	admin      *fakeAdmin
	metrics    *fakeRecorder
	feed       *fakeFeed
	reconciler *Reconciler
	verifier   *Verifier
	checkout   *CheckoutService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := fixedClock{testNow}
	h := &harness{
		store:   memstore.New(clock),
		gateway: newFakeGateway(),
		admin:   &fakeAdmin{},
		metrics: &fakeRecorder{},
		feed:    &fakeFeed{},
	}
	h.reconciler = NewReconciler(ReconcilerConfig{
		Store:   h.store,
		Admin:   h.admin,
		Feed:    h.feed,
		Metrics: h.metrics,
		Clock:   clock,
		Logger:  discardLogger(),
	})
	h.verifier = NewVerifier(h.gateway, h.store, h.reconciler, h.metrics, discardLogger())
	h.checkout = NewCheckoutService(h.gateway, h.store, clock, discardLogger(), CheckoutConfig{
		AppURL:             "https://tipkoro.com/",
		SignupAmount:       150,
		CreatorPromoAmount: 10,
		MinTipAmount:       10,
	})
	return h
}

// seedCreatorAtPayment stores a creator profile waiting on the promo payment
// together with its pending subscription.
func (h *harness) seedCreatorAtPayment(userID string) (types.Profile, types.CreatorSubscription) {
	p := h.store.PutProfile(types.Profile{
		UserID:           userID,
		Email:            userID + "@example.com",
		FirstName:        "Nusrat",
		LastName:         "Jahan",
		AccountType:      types.AccountTypeCreator,
		OnboardingStatus: types.OnboardingPayment,
	})
	sub := h.store.PutSubscription(types.CreatorSubscription{
		ProfileID:     p.ID,
		Amount:        10,
		Currency:      types.DefaultCurrency,
		PaymentStatus: types.PaymentPending,
		Promo:         true,
	})
	return p, sub
}

func (h *harness) seedCreator(username string) types.Profile {
	return h.store.PutProfile(types.Profile{
		UserID:           "user_" + username,
		Email:            username + "@example.com",
		FirstName:        "Creator",
		Username:         username,
		AccountType:      types.AccountTypeCreator,
		OnboardingStatus: types.OnboardingCompleted,
	})
}

func (h *harness) seedTipIntent(identityID string, creator types.Profile, amount float64) types.PendingIntent {
	return h.store.PutIntent(types.PendingIntent{
		Kind:       types.IntentTip,
		IdentityID: identityID,
		CreatorID:  creator.ID,
		Amount:     amount,
		Details:    types.TipDetails{CreatorUsername: creator.Username},
	})
}

func requireAppCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, types.CodeOf(err), "error: %v", err)
}
