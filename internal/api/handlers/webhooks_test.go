package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipkoro/internal/identity"
	"tipkoro/internal/payments"
	"tipkoro/internal/types"
)

type fakeGatewayProcessor struct {
	calls   []payments.WebhookPayload
	settled *payments.Settlement
	err     error
}

func (f *fakeGatewayProcessor) HandleWebhook(_ context.Context, p payments.WebhookPayload) (*payments.Settlement, error) {
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.settled, nil
}

type fakeIdentitySyncer struct {
	headers http.Header
	payload []byte
	result  *identity.Result
	err     error
}

func (f *fakeIdentitySyncer) Handle(_ context.Context, payload []byte, headers http.Header) (*identity.Result, error) {
	f.payload = payload
	f.headers = headers
	return f.result, f.err
}

func newWebhookRouter(gw *fakeGatewayProcessor, id *fakeIdentitySyncer) http.Handler {
	h := NewWebhookHandler(gw, id, discardLogger())
	return newRouter(nil, h.RegisterPublicRoutes)
}

func TestWebhookHandler_HandleGateway_Success(t *testing.T) {
	gw := &fakeGatewayProcessor{settled: &payments.Settlement{
		Outcome: types.OutcomeSignup,
		Status:  types.PaymentCompleted,
		Applied: true,
	}}
	router := newWebhookRouter(gw, &fakeIdentitySyncer{})

	rec := do(t, router, http.MethodPost, "/v1/webhooks/gateway",
		`{"transactionId":"t1","status":"COMPLETED","paymentMethod":"bkash","amount":"150"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	require.Len(t, gw.calls, 1)
	assert.Equal(t, "t1", gw.calls[0].TransactionID)
	assert.Equal(t, "bkash", gw.calls[0].PaymentMethod)
}

func TestWebhookHandler_HandleGateway_VerifiedFailureStillAcknowledged(t *testing.T) {
	gw := &fakeGatewayProcessor{settled: &payments.Settlement{Outcome: types.OutcomeSignup, Status: types.PaymentFailed}}
	router := newWebhookRouter(gw, &fakeIdentitySyncer{})

	rec := do(t, router, http.MethodPost, "/v1/webhooks/gateway", `{"transaction_id":"t9","status":"FAILED"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

func TestWebhookHandler_HandleGateway_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
		wantCalls  int
	}{
		{
			name:       "malformed json",
			body:       `{"transaction_id":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrCodeValidationInvalidJSON,
		},
		{
			name:       "missing transaction id",
			body:       `{"status":"COMPLETED"}`,
			err:        types.NewAppError(types.ErrCodeValidationMissingField, "transaction_id is required", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrCodeValidationMissingField,
			wantCalls:  1,
		},
		{
			name:       "gateway not configured",
			body:       `{"transaction_id":"t1"}`,
			err:        types.NewAppError(types.ErrCodeInternalGatewayNotConfigured, "gateway not configured", nil),
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.ErrCodeInternalGatewayNotConfigured,
			wantCalls:  1,
		},
		{
			name:       "verification unavailable",
			body:       `{"transaction_id":"t1"}`,
			err:        types.NewAppError(types.ErrCodeUpstreamGateway, "gateway unavailable", nil),
			wantStatus: http.StatusBadGateway,
			wantCode:   types.ErrCodeUpstreamGateway,
			wantCalls:  1,
		},
		{
			name:       "body too large",
			body:       `{"transaction_id":"` + strings.Repeat("x", maxWebhookBodySize) + `"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrCodeValidationInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGatewayProcessor{err: tt.err}
			router := newWebhookRouter(gw, &fakeIdentitySyncer{})

			rec := do(t, router, http.MethodPost, "/v1/webhooks/gateway", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, string(tt.wantCode), decodeError(t, rec).Code)
			assert.Len(t, gw.calls, tt.wantCalls)
		})
	}
}

func TestWebhookHandler_HandleIdentity(t *testing.T) {
	syncer := &fakeIdentitySyncer{result: &identity.Result{Event: identity.EventUserCreated, Handled: true, Message: "Profile created"}}
	router := newWebhookRouter(&fakeGatewayProcessor{}, syncer)

	req := `{"type":"user.created","data":{"id":"user_2abc"}}`
	rec := do(t, router, http.MethodPost, "/v1/webhooks/identity", req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, req, string(syncer.payload))
	assert.Contains(t, rec.Body.String(), `"handled":true`)
}

func TestWebhookHandler_HandleIdentity_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"bad signature", types.NewAppError(types.ErrCodeAuthSignatureInvalid, "invalid signature", nil), http.StatusUnauthorized},
		{"secret missing", types.NewAppError(types.ErrCodeInternalWebhookSecretMissing, "not configured", nil), http.StatusInternalServerError},
		{"profile missing", types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newWebhookRouter(&fakeGatewayProcessor{}, &fakeIdentitySyncer{err: tt.err})
			rec := do(t, router, http.MethodPost, "/v1/webhooks/identity", `{}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
