package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tipkoro/internal/core"
	"tipkoro/internal/payouts"
	"tipkoro/internal/types"
)

// PayoutService computes balances and records withdrawal requests.
type PayoutService interface {
	Balance(ctx context.Context, actor types.Actor) (*payouts.Balance, error)
	RequestWithdrawal(ctx context.Context, actor types.Actor, in payouts.WithdrawalInput) (*types.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, actor types.Actor) ([]*types.WithdrawalRequest, error)
}

// PayoutHandler serves a creator's balance and withdrawals.
type PayoutHandler struct {
	service   PayoutService
	validator *core.Validator
	logger    *slog.Logger
}

// NewPayoutHandler creates a PayoutHandler.
func NewPayoutHandler(service PayoutService, v *core.Validator, l *slog.Logger) *PayoutHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PayoutHandler{service: service, validator: v, logger: l}
}

// RegisterRoutes mounts the payout endpoints.
func (h *PayoutHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me/balance", h.GetBalance)
	r.Get("/me/withdrawals", h.ListWithdrawals)
	r.Post("/me/withdrawals", h.RequestWithdrawal)
}

// GetBalance handles GET /v1/me/balance.
func (h *PayoutHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	bal, err := h.service.Balance(r.Context(), actor)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, bal)
}

// ListWithdrawals handles GET /v1/me/withdrawals.
func (h *PayoutHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListWithdrawals(r.Context(), actor)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, list)
}

// RequestWithdrawal handles POST /v1/me/withdrawals.
func (h *PayoutHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req payouts.WithdrawalInput
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	wr, err := h.service.RequestWithdrawal(r.Context(), actor, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "withdrawal requested",
		"withdrawal_id", wr.ID,
		"amount", wr.Amount,
		"payout_method", wr.PayoutMethod,
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: wr})
}
