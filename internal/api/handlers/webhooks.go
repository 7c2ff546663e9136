package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tipkoro/internal/core"
	"tipkoro/internal/identity"
	"tipkoro/internal/payments"
	"tipkoro/internal/types"
)

// GatewayWebhookProcessor re-verifies and settles a gateway callback.
type GatewayWebhookProcessor interface {
	HandleWebhook(ctx context.Context, p payments.WebhookPayload) (*payments.Settlement, error)
}

// IdentitySyncer verifies and applies an identity-provider webhook.
type IdentitySyncer interface {
	Handle(ctx context.Context, payload []byte, headers http.Header) (*identity.Result, error)
}

// WebhookHandler serves the two unauthenticated webhooks. The gateway
// callback is never trusted: its transaction is re-verified upstream. The
// identity callback is authenticated by its svix signature.
type WebhookHandler struct {
	gateway  GatewayWebhookProcessor
	identity IdentitySyncer
	logger   *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(gateway GatewayWebhookProcessor, identity IdentitySyncer, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{gateway: gateway, identity: identity, logger: logger}
}

// RegisterPublicRoutes mounts the webhook endpoints.
func (h *WebhookHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/webhooks/gateway", h.HandleGateway)
	r.Post("/webhooks/identity", h.HandleIdentity)
}

func readWebhookBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "webhook body too large", err)
		}
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "failed to read request body", err)
	}
	return body, nil
}

// HandleGateway processes POST /v1/webhooks/gateway.
//
// Verification errors leave state untouched and surface as 502 so the
// gateway retries; a missing gateway configuration is a 500. Any processed
// callback, including a verified failure, answers {"success":true}.
func (h *WebhookHandler) HandleGateway(w http.ResponseWriter, r *http.Request) {
	body, err := readWebhookBody(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	payload, err := payments.ParseWebhookPayload(body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "malformed gateway webhook", "error", err)
		core.Error(w, r, err)
		return
	}

	settled, err := h.gateway.HandleWebhook(r.Context(), payload)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "gateway webhook processed",
		"transaction_id", payload.TransactionID,
		"outcome", settled.Outcome,
		"status", settled.Status,
		"applied", settled.Applied,
	)
	core.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// HandleIdentity processes POST /v1/webhooks/identity.
func (h *WebhookHandler) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	body, err := readWebhookBody(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.identity.Handle(r.Context(), body, r.Header)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, res)
}
