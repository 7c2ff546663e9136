package payments

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"tipkoro/internal/external"
	"tipkoro/internal/types"
)

// DefaultIntentTTL is how long a pending intent stays open.
const DefaultIntentTTL = 24 * time.Hour

// CheckoutConfig holds server-side prices and the public app URL.
type CheckoutConfig struct {
	AppURL             string
	SignupAmount       float64
	CreatorPromoAmount float64
	MinTipAmount       float64
	Currency           string
	IntentTTL          time.Duration
}

// CheckoutResult is returned to the browser, which redirects to PaymentURL.
type CheckoutResult struct {
	PaymentURL  string `json:"payment_url"`
	ReferenceID string `json:"reference_id,omitempty"`
	Resumed     bool   `json:"resumed"`
}

// SignupCheckoutRequest starts the anonymous signup funnel.
type SignupCheckoutRequest struct {
	FullName string `json:"fullname" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email,max=254"`
}

// TipCheckoutRequest starts a tip to a creator.
type TipCheckoutRequest struct {
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	SupporterName  string  `json:"supporter_name,omitempty" validate:"max=100"`
	SupporterEmail string  `json:"supporter_email,omitempty" validate:"omitempty,email,max=254"`
	Message        string  `json:"message,omitempty" validate:"max=500"`
	IsAnonymous    bool    `json:"is_anonymous"`
}

// CheckoutService opens gateway checkouts. Amounts always come from config
// or a validated request, never from the return URL.
type CheckoutService struct {
	gateway external.PaymentGateway
	store   types.ScopedStoreFactory
	clock   types.Clock
	logger  *slog.Logger
	cfg     CheckoutConfig
}

// NewCheckoutService creates a CheckoutService.
func NewCheckoutService(gateway external.PaymentGateway, store types.ScopedStoreFactory, clock types.Clock, logger *slog.Logger, cfg CheckoutConfig) *CheckoutService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IntentTTL <= 0 {
		cfg.IntentTTL = DefaultIntentTTL
	}
	if cfg.Currency == "" {
		cfg.Currency = types.DefaultCurrency
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	return &CheckoutService{gateway: gateway, store: store, clock: clock, logger: logger, cfg: cfg}
}

func (s *CheckoutService) returnURL(referenceID string) string {
	return s.cfg.AppURL + "/payment/return?reference_id=" + url.QueryEscape(referenceID)
}

func (s *CheckoutService) cancelURL() string {
	return s.cfg.AppURL + "/payment/cancel"
}

// StartSignup opens a checkout for the anonymous signup funnel at the
// configured signup price.
func (s *CheckoutService) StartSignup(ctx context.Context, req SignupCheckoutRequest) (*CheckoutResult, error) {
	session, err := s.gateway.CreateCheckout(ctx, external.CheckoutRequest{
		PayerName:  req.FullName,
		PayerEmail: req.Email,
		Amount:     s.cfg.SignupAmount,
		SuccessURL: s.cfg.AppURL + "/payment/success",
		CancelURL:  s.cancelURL(),
		Purpose:    external.PurposeCreatorSignup,
	})
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{PaymentURL: session.PaymentURL}, nil
}

// StartCreatorPromo opens the promo checkout for a creator at the payment
// step. An existing pending subscription is reused and reported as resumed.
func (s *CheckoutService) StartCreatorPromo(ctx context.Context, identityID string, profile *types.Profile) (*CheckoutResult, error) {
	now := s.clock.Now()
	var sub *types.CreatorSubscription
	var created bool
	intent := &types.PendingIntent{
		Kind:       types.IntentCreatorSubscription,
		IdentityID: identityID,
		ProfileID:  profile.ID,
		Currency:   s.cfg.Currency,
		ExpiresAt:  now.Add(s.cfg.IntentTTL),
	}

	err := s.store.ForIdentity(ctx, identityID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		sub, created, err = repos.Subscriptions().CreatePending(ctx, &types.CreatorSubscription{
			ProfileID: profile.ID,
			Amount:    s.cfg.CreatorPromoAmount,
			Currency:  s.cfg.Currency,
			Promo:     true,
		})
		if err != nil {
			return err
		}
		intent.Amount = sub.Amount
		return repos.Intents().Create(ctx, intent)
	})
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckout(ctx, external.CheckoutRequest{
		PayerName:   strings.TrimSpace(profile.FirstName + " " + profile.LastName),
		PayerEmail:  profile.Email,
		Amount:      sub.Amount,
		SuccessURL:  s.returnURL(intent.ID),
		CancelURL:   s.cancelURL(),
		ReferenceID: intent.ID,
		Purpose:     external.PurposeCreatorPromo,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "creator promo checkout started",
		"profile_id", profile.ID,
		"subscription_id", sub.ID,
		"reference_id", intent.ID,
		"resumed", !created,
	)
	return &CheckoutResult{PaymentURL: session.PaymentURL, ReferenceID: intent.ID, Resumed: !created}, nil
}

// StartTip records a tip intent for the signed-in supporter and opens its
// checkout. Only creators who finished onboarding can be tipped.
func (s *CheckoutService) StartTip(ctx context.Context, actor types.Actor, creatorUsername string, req TipCheckoutRequest) (*CheckoutResult, error) {
	if req.Amount < s.cfg.MinTipAmount {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidAmount, "tip amount is below the minimum", nil,
			map[string]any{"min_amount": s.cfg.MinTipAmount})
	}

	now := s.clock.Now()
	var creator *types.Profile
	intent := &types.PendingIntent{
		Kind:       types.IntentTip,
		IdentityID: actor.ID,
		Amount:     req.Amount,
		Currency:   s.cfg.Currency,
		ExpiresAt:  now.Add(s.cfg.IntentTTL),
		Details: types.TipDetails{
			SupporterName:  strings.TrimSpace(req.SupporterName),
			SupporterEmail: strings.TrimSpace(req.SupporterEmail),
			Message:        strings.TrimSpace(req.Message),
			IsAnonymous:    req.IsAnonymous,
		},
	}

	err := s.store.ForIdentity(ctx, actor.ID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		creator, err = repos.Profiles().GetByUsername(ctx, creatorUsername)
		if err != nil {
			if types.CodeOf(err) == types.ErrCodeNotFoundProfile {
				return types.NewAppError(types.ErrCodeNotFoundCreator, "creator not found", nil)
			}
			return err
		}
		if !creator.IsCreator() || creator.OnboardingStatus != types.OnboardingCompleted {
			return types.NewAppError(types.ErrCodeNotFoundCreator, "creator not found", nil)
		}

		supporter, err := repos.Profiles().GetByUserID(ctx, actor.ID)
		switch {
		case err == nil:
			intent.ProfileID = supporter.ID
			if intent.Details.SupporterName == "" {
				intent.Details.SupporterName = strings.TrimSpace(supporter.FirstName + " " + supporter.LastName)
			}
			if intent.Details.SupporterEmail == "" {
				intent.Details.SupporterEmail = supporter.Email
			}
		case types.CodeOf(err) != types.ErrCodeNotFoundProfile:
			return err
		}
		if intent.Details.SupporterEmail == "" {
			intent.Details.SupporterEmail = actor.Email
		}

		intent.CreatorID = creator.ID
		intent.Details.CreatorUsername = creator.Username
		return repos.Intents().Create(ctx, intent)
	})
	if err != nil {
		return nil, err
	}

	payer := intent.Details.SupporterName
	if payer == "" {
		payer = "TipKoro Supporter"
	}
	session, err := s.gateway.CreateCheckout(ctx, external.CheckoutRequest{
		PayerName:   payer,
		PayerEmail:  intent.Details.SupporterEmail,
		Amount:      req.Amount,
		SuccessURL:  s.returnURL(intent.ID),
		CancelURL:   s.cfg.AppURL + "/" + creator.Username,
		ReferenceID: intent.ID,
		Purpose:     external.PurposeTip,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tip checkout started",
		"creator_id", creator.ID,
		"reference_id", intent.ID,
		"amount", req.Amount,
	)
	return &CheckoutResult{PaymentURL: session.PaymentURL, ReferenceID: intent.ID}, nil
}
