// Package payouts computes a creator's withdrawable balance and records
// withdrawal requests. Paying out is done by the back office.
package payouts

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"tipkoro/internal/types"
)

// Balance is the creator's money position.
type Balance struct {
	TotalReceived float64 `json:"total_received"`
	PlatformFee   float64 `json:"platform_fee"`
	Withdrawn     float64 `json:"withdrawn"`
	Available     float64 `json:"available"`
	Currency      string  `json:"currency"`
}

// WithdrawalInput is a payout request from a creator.
type WithdrawalInput struct {
	Amount       float64            `json:"amount" validate:"gt=0"`
	PayoutMethod types.PayoutMethod `json:"payout_method" validate:"required,payout_method"`
	Number       string             `json:"number" validate:"required,max=50"`
	Notes        string             `json:"notes,omitempty" validate:"max=500"`
}

// Service serves balances and withdrawal requests.
type Service struct {
	store       types.ScopedStoreFactory
	platformFee float64
	currency    string
	logger      *slog.Logger
}

// NewService creates a Service. platformFee is deducted once from lifetime
// earnings.
func NewService(store types.ScopedStoreFactory, platformFee float64, currency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if currency == "" {
		currency = types.DefaultCurrency
	}
	return &Service{store: store, platformFee: platformFee, currency: currency, logger: logger}
}

// creatorProfile loads the caller's profile and requires a creator.
func creatorProfile(ctx context.Context, repos types.RepositoryRegistry, userID string) (*types.Profile, error) {
	p, err := repos.Profiles().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.IsCreator() {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "only creators have a balance", nil)
	}
	return p, nil
}

func (s *Service) balance(ctx context.Context, repos types.RepositoryRegistry, p *types.Profile) (*Balance, error) {
	withdrawn, err := repos.Withdrawals().SumOutstanding(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	available := math.Max(0, p.TotalReceived-s.platformFee-withdrawn)
	return &Balance{
		TotalReceived: p.TotalReceived,
		PlatformFee:   s.platformFee,
		Withdrawn:     withdrawn,
		Available:     available,
		Currency:      s.currency,
	}, nil
}

// Balance returns the caller's balance.
func (s *Service) Balance(ctx context.Context, actor types.Actor) (*Balance, error) {
	var out *Balance
	err := s.store.ForIdentity(ctx, actor.ID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		p, err := creatorProfile(ctx, repos, actor.ID)
		if err != nil {
			return err
		}
		out, err = s.balance(ctx, repos, p)
		return err
	})
	return out, err
}

// RequestWithdrawal records a pending request for at most the available
// balance.
func (s *Service) RequestWithdrawal(ctx context.Context, actor types.Actor, in WithdrawalInput) (*types.WithdrawalRequest, error) {
	if in.Amount <= 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidAmount, "amount must be greater than zero", nil)
	}
	if !in.PayoutMethod.IsValid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidFormat, "payout_method must be one of bkash, nagad, rocket, bank", nil)
	}

	var out *types.WithdrawalRequest
	err := s.store.ForIdentity(ctx, actor.ID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		p, err := creatorProfile(ctx, repos, actor.ID)
		if err != nil {
			return err
		}
		bal, err := s.balance(ctx, repos, p)
		if err != nil {
			return err
		}
		if in.Amount > bal.Available {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictInsufficientBalance, "amount exceeds available balance", nil, map[string]any{
				"available": bal.Available,
			})
		}
		w := &types.WithdrawalRequest{
			ProfileID:     p.ID,
			Amount:        in.Amount,
			Currency:      s.currency,
			PayoutMethod:  in.PayoutMethod,
			PayoutDetails: types.PayoutDetails{Number: strings.TrimSpace(in.Number)},
			Status:        types.WithdrawalPending,
			Notes:         strings.TrimSpace(in.Notes),
		}
		if err := repos.Withdrawals().Create(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "withdrawal requested",
		"profile_id", out.ProfileID,
		"amount", out.Amount,
		"payout_method", out.PayoutMethod,
	)
	return out, nil
}

// ListWithdrawals returns the caller's requests, newest first.
func (s *Service) ListWithdrawals(ctx context.Context, actor types.Actor) ([]*types.WithdrawalRequest, error) {
	var out []*types.WithdrawalRequest
	err := s.store.ForIdentity(ctx, actor.ID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		p, err := repos.Profiles().GetByUserID(ctx, actor.ID)
		if err != nil {
			return err
		}
		out, err = repos.Withdrawals().ListByProfile(ctx, p.ID)
		return err
	})
	if out == nil && err == nil {
		out = []*types.WithdrawalRequest{}
	}
	return out, err
}
