package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tipkoro/internal/core"
	"tipkoro/internal/payments"
	"tipkoro/internal/types"
)

// CheckoutStarter opens gateway checkouts.
type CheckoutStarter interface {
	StartSignup(ctx context.Context, req payments.SignupCheckoutRequest) (*payments.CheckoutResult, error)
	StartTip(ctx context.Context, actor types.Actor, creatorUsername string, req payments.TipCheckoutRequest) (*payments.CheckoutResult, error)
}

// SignupCompleter attaches a profile to a paid anonymous signup.
type SignupCompleter interface {
	CompleteSignup(ctx context.Context, in payments.SignupProfile) (*payments.SignupResult, error)
}

// RedirectVerifier verifies the transaction a browser returned with.
type RedirectVerifier interface {
	VerifyRedirect(ctx context.Context, identityID string, req payments.VerifyRequest) (*payments.VerifyResponse, error)
}

// PaymentHandler serves checkout creation and redirect verification.
type PaymentHandler struct {
	checkout  CheckoutStarter
	signups   SignupCompleter
	verifier  RedirectVerifier
	validator *core.Validator
	logger    *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(checkout CheckoutStarter, signups SignupCompleter, verifier RedirectVerifier, v *core.Validator, l *slog.Logger) *PaymentHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PaymentHandler{checkout: checkout, signups: signups, verifier: verifier, validator: v, logger: l}
}

// RegisterPublicRoutes mounts endpoints open to anonymous callers.
// Verification accepts an optional session so a signed-in caller's pending
// subscription can be matched.
func (h *PaymentHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/signups/checkout", h.StartSignup)
	r.Post("/signups/complete", h.CompleteSignup)
	r.Post("/payments/verify", h.Verify)
}

// RegisterRoutes mounts endpoints that need a signed-in caller.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/creators/{username}/tips/checkout", h.StartTip)
}

// StartSignup handles POST /v1/signups/checkout.
func (h *PaymentHandler) StartSignup(w http.ResponseWriter, r *http.Request) {
	var req payments.SignupCheckoutRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	res, err := h.checkout.StartSignup(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "signup checkout failed", "error", err)
		core.Error(w, r, err)
		return
	}
	writeData(w, r, res)
}

// CompleteSignup handles POST /v1/signups/complete. Validation failures are
// itemized per field and nothing is written.
func (h *PaymentHandler) CompleteSignup(w http.ResponseWriter, r *http.Request) {
	var req payments.SignupProfile
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	res, err := h.signups.CompleteSignup(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, res)
}

// Verify handles POST /v1/payments/verify.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req payments.VerifyRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	var identityID string
	if actor, ok := types.GetActor(r.Context()); ok {
		identityID = actor.ID
	}

	res, err := h.verifier.VerifyRedirect(r.Context(), identityID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, res)
}

// StartTip handles POST /v1/creators/{username}/tips/checkout.
func (h *PaymentHandler) StartTip(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req payments.TipCheckoutRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	res, err := h.checkout.StartTip(r.Context(), actor, chi.URLParam(r, "username"), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, res)
}
