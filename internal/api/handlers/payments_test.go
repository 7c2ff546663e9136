package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipkoro/internal/payments"
	"tipkoro/internal/types"
)

type fakeCheckout struct {
	signupReqs []payments.SignupCheckoutRequest
	tipActor   types.Actor
	tipCreator string
	tipReq     payments.TipCheckoutRequest
	result     *payments.CheckoutResult
	err        error
}

func (f *fakeCheckout) StartSignup(_ context.Context, req payments.SignupCheckoutRequest) (*payments.CheckoutResult, error) {
	f.signupReqs = append(f.signupReqs, req)
	return f.result, f.err
}

func (f *fakeCheckout) StartTip(_ context.Context, actor types.Actor, creator string, req payments.TipCheckoutRequest) (*payments.CheckoutResult, error) {
	f.tipActor, f.tipCreator, f.tipReq = actor, creator, req
	return f.result, f.err
}

type fakeSignups struct {
	calls  []payments.SignupProfile
	result *payments.SignupResult
	err    error
}

func (f *fakeSignups) CompleteSignup(_ context.Context, in payments.SignupProfile) (*payments.SignupResult, error) {
	f.calls = append(f.calls, in)
	return f.result, f.err
}

type fakeRedirectVerifier struct {
	identityID string
	req        payments.VerifyRequest
	resp       *payments.VerifyResponse
	err        error
}

func (f *fakeRedirectVerifier) VerifyRedirect(_ context.Context, identityID string, req payments.VerifyRequest) (*payments.VerifyResponse, error) {
	f.identityID, f.req = identityID, req
	return f.resp, f.err
}

type paymentFixture struct {
	checkout *fakeCheckout
	signups  *fakeSignups
	verifier *fakeRedirectVerifier
	handler  *PaymentHandler
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		checkout: &fakeCheckout{result: &payments.CheckoutResult{PaymentURL: "https://pay.example/checkout/abc"}},
		signups:  &fakeSignups{},
		verifier: &fakeRedirectVerifier{},
	}
	f.handler = NewPaymentHandler(f.checkout, f.signups, f.verifier, testValidator(), discardLogger())
	return f
}

func (f *paymentFixture) router(actor *types.Actor) http.Handler {
	return newRouter(actor, f.handler.RegisterPublicRoutes, f.handler.RegisterRoutes)
}

func validSignupProfile() map[string]any {
	return map[string]any{
		"transaction_id": "t1",
		"username":       "Rafi_Draws",
		"first_name":     "Rafi",
		"last_name":      "Ahmed",
		"email":          "rafi@example.com",
		"bio":            "Comics from Dhaka",
		"category":       "art",
		"twitter":        "https://x.com/rafi",
		"phone":          "+880 1700-000000",
		"payout_method":  "bkash",
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestPaymentHandler_StartSignup(t *testing.T) {
	f := newPaymentFixture()

	rec := do(t, f.router(nil), http.MethodPost, "/v1/signups/checkout", `{"fullname":"Rafi Ahmed","email":"rafi@example.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var res payments.CheckoutResult
	decodeData(t, rec, &res)
	assert.Equal(t, "https://pay.example/checkout/abc", res.PaymentURL)
	require.Len(t, f.checkout.signupReqs, 1)
	assert.Equal(t, "Rafi Ahmed", f.checkout.signupReqs[0].FullName)
}

func TestPaymentHandler_StartSignup_RejectsClientAmount(t *testing.T) {
	f := newPaymentFixture()

	rec := do(t, f.router(nil), http.MethodPost, "/v1/signups/checkout",
		`{"fullname":"Rafi","email":"rafi@example.com","amount":1}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.checkout.signupReqs)
}

func TestPaymentHandler_StartSignup_GatewayRejected(t *testing.T) {
	f := newPaymentFixture()
	f.checkout.err = types.NewAppError(types.ErrCodeValidationGatewayRejected, "Failed to create payment link", nil)

	rec := do(t, f.router(nil), http.MethodPost, "/v1/signups/checkout", `{"fullname":"Rafi","email":"rafi@example.com"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, string(types.ErrCodeValidationGatewayRejected), detail.Code)
	assert.Equal(t, "Failed to create payment link", detail.Message)
}

func TestPaymentHandler_CompleteSignup(t *testing.T) {
	f := newPaymentFixture()
	start := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	f.signups.result = &payments.SignupResult{
		Success:      true,
		Username:     "rafi_draws",
		ActiveUntil:  types.PromoPeriodEnd(start),
		BillingStart: types.PromoPeriodEnd(start),
	}

	rec := do(t, f.router(nil), http.MethodPost, "/v1/signups/complete", mustJSON(t, validSignupProfile()))

	require.Equal(t, http.StatusOK, rec.Code)
	var res payments.SignupResult
	decodeData(t, rec, &res)
	assert.True(t, res.Success)
	assert.Equal(t, "rafi_draws", res.Username)
	require.Len(t, f.signups.calls, 1)
	assert.Equal(t, types.PayoutMethod("bkash"), f.signups.calls[0].PayoutMethod)
}

func TestPaymentHandler_CompleteSignup_BioTooLongWritesNothing(t *testing.T) {
	f := newPaymentFixture()
	body := validSignupProfile()
	body["bio"] = strings.Repeat("b", 201)

	rec := do(t, f.router(nil), http.MethodPost, "/v1/signups/complete", mustJSON(t, body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, string(types.ErrCodeValidationTooLong), detail.Code)
	assert.Equal(t, []string{"bio"}, validationFields(t, detail))
	assert.Empty(t, f.signups.calls, "nothing may be written for an invalid submission")
}

func TestPaymentHandler_CompleteSignup_ItemizesEveryField(t *testing.T) {
	f := newPaymentFixture()
	body := validSignupProfile()
	body["username"] = "ab"
	body["email"] = "nope"
	body["twitter"] = "x.com/rafi"
	body["phone"] = "call me"
	body["payout_method"] = "paypal"
	delete(body, "category")

	rec := do(t, f.router(nil), http.MethodPost, "/v1/signups/complete", mustJSON(t, body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ElementsMatch(t,
		[]string{"username", "email", "category", "twitter", "phone", "payout_method"},
		validationFields(t, decodeError(t, rec)))
	assert.Empty(t, f.signups.calls)
}

func TestPaymentHandler_CompleteSignup_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"payment not verified", types.NewAppError(types.ErrCodeValidationPaymentUnverified, "payment not verified", nil), http.StatusBadRequest},
		{"username taken", types.NewAppError(types.ErrCodeConflictUsernameTaken, "username already taken", nil), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture()
			f.signups.err = tt.err
			rec := do(t, f.router(nil), http.MethodPost, "/v1/signups/complete", mustJSON(t, validSignupProfile()))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, string(types.CodeOf(tt.err)), decodeError(t, rec).Code)
		})
	}
}

func TestPaymentHandler_Verify_Anonymous(t *testing.T) {
	f := newPaymentFixture()
	f.verifier.resp = &payments.VerifyResponse{Verified: true, TransactionID: "t1", Status: types.PaymentCompleted, Outcome: types.OutcomeSignup}

	rec := do(t, f.router(nil), http.MethodPost, "/v1/payments/verify",
		`{"transaction_id":"t1","payment_method":"bkash","payment_amount":"1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.verifier.identityID)
	assert.Equal(t, "t1", f.verifier.req.TransactionID)

	var res payments.VerifyResponse
	decodeData(t, rec, &res)
	assert.True(t, res.Verified)
	assert.Equal(t, types.OutcomeSignup, res.Outcome)
}

func TestPaymentHandler_Verify_SignedIn(t *testing.T) {
	f := newPaymentFixture()
	f.verifier.resp = &payments.VerifyResponse{Verified: false, TransactionID: "t2", Status: types.PaymentFailed}

	rec := do(t, f.router(testUser), http.MethodPost, "/v1/payments/verify", `{"transaction_id":"t2","reference_id":"ref-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testUser.ID, f.verifier.identityID)
	assert.Equal(t, "ref-1", f.verifier.req.ReferenceID)
}

func TestPaymentHandler_Verify_Errors(t *testing.T) {
	f := newPaymentFixture()

	rec := do(t, f.router(nil), http.MethodPost, "/v1/payments/verify", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), decodeError(t, rec).Code)

	f.verifier.err = types.NewAppError(types.ErrCodePermissionNotOwner, "payment reference belongs to another account", nil)
	rec = do(t, f.router(testUser), http.MethodPost, "/v1/payments/verify", `{"transaction_id":"t1","reference_id":"ref-x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.verifier.err = types.NewAppError(types.ErrCodeConflictReferenceMismatch, "transaction does not belong to this payment", nil)
	rec = do(t, f.router(testUser), http.MethodPost, "/v1/payments/verify", `{"transaction_id":"signup_tx","reference_id":"ref-x"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictReferenceMismatch), decodeError(t, rec).Code)

	f.verifier.err = types.NewAppError(types.ErrCodeUpstreamGateway, "gateway unavailable", nil)
	rec = do(t, f.router(nil), http.MethodPost, "/v1/payments/verify", `{"transaction_id":"t1"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPaymentHandler_StartTip(t *testing.T) {
	f := newPaymentFixture()
	f.checkout.result = &payments.CheckoutResult{PaymentURL: "https://pay.example/tip", ReferenceID: "ref-7"}

	rec := do(t, f.router(testUser), http.MethodPost, "/v1/creators/rafi/tips/checkout",
		`{"amount":50,"message":"keep drawing","is_anonymous":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rafi", f.checkout.tipCreator)
	assert.Equal(t, testUser.ID, f.checkout.tipActor.ID)
	assert.Equal(t, 50.0, f.checkout.tipReq.Amount)
	assert.True(t, f.checkout.tipReq.IsAnonymous)

	var res payments.CheckoutResult
	decodeData(t, rec, &res)
	assert.Equal(t, "ref-7", res.ReferenceID)
}

func TestPaymentHandler_StartTip_RequiresSignIn(t *testing.T) {
	f := newPaymentFixture()

	rec := do(t, f.router(nil), http.MethodPost, "/v1/creators/rafi/tips/checkout", `{"amount":50}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.checkout.tipCreator)
}

func TestPaymentHandler_StartTip_Invalid(t *testing.T) {
	f := newPaymentFixture()

	rec := do(t, f.router(testUser), http.MethodPost, "/v1/creators/rafi/tips/checkout", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.checkout.err = types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidAmount, "tip amount is below the minimum", nil,
		map[string]any{"min_amount": 10})
	rec = do(t, f.router(testUser), http.MethodPost, "/v1/creators/rafi/tips/checkout", `{"amount":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, string(types.ErrCodeValidationInvalidAmount), detail.Code)
	assert.EqualValues(t, 10, detail.Details["min_amount"])
}
