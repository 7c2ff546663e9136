package onboarding

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"tipkoro/internal/payments"
	"tipkoro/internal/types"
)

// Defaults for the lazy profile fetch.
const (
	DefaultPollAttempts  = 5
	DefaultPollBaseDelay = 200 * time.Millisecond
	DefaultPollMaxWait   = 3 * time.Second
)

// Config tunes how long EnsureProfile waits for the identity webhook to
// create a profile before creating one itself.
type Config struct {
	PollAttempts  int
	PollBaseDelay time.Duration
	PollMaxWait   time.Duration
}

// PromoCheckout opens the creator promo checkout.
type PromoCheckout interface {
	StartCreatorPromo(ctx context.Context, identityID string, profile *types.Profile) (*payments.CheckoutResult, error)
}

// ProfileSubmission is the final onboarding step.
type ProfileSubmission struct {
	Username  string `json:"username" validate:"required,username"`
	FirstName string `json:"first_name,omitempty" validate:"max=100"`
	LastName  string `json:"last_name,omitempty" validate:"max=100"`
	Bio       string `json:"bio,omitempty" validate:"max=200"`
	AvatarURL string `json:"avatar_url,omitempty" validate:"omitempty,max=500,http_url"`
	Twitter   string `json:"twitter,omitempty" validate:"omitempty,max=500,http_url"`
	Instagram string `json:"instagram,omitempty" validate:"omitempty,max=500,http_url"`
	Youtube   string `json:"youtube,omitempty" validate:"omitempty,max=500,http_url"`
	Facebook  string `json:"facebook,omitempty" validate:"omitempty,max=500,http_url"`
	OtherLink string `json:"other_link,omitempty" validate:"omitempty,max=500,http_url"`
}

// UsernameAvailability answers an advisory availability check.
type UsernameAvailability struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Service runs onboarding steps for the signed-in caller. Every step reads
// the stored status, applies Transition and persists the result.
type Service struct {
	store    types.ScopedStoreFactory
	checkout PromoCheckout
	logger   *slog.Logger
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func() float64
}

// NewService creates a Service.
func NewService(store types.ScopedStoreFactory, checkout PromoCheckout, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	if cfg.PollBaseDelay <= 0 {
		cfg.PollBaseDelay = DefaultPollBaseDelay
	}
	if cfg.PollMaxWait <= 0 {
		cfg.PollMaxWait = DefaultPollMaxWait
	}
	return &Service{
		store:    store,
		checkout: checkout,
		logger:   logger,
		cfg:      cfg,
		sleep:    sleepContext,
		jitter:   rand.Float64,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pollDelay is exponential backoff with full jitter.
func (s *Service) pollDelay(attempt int) time.Duration {
	ceiling := s.cfg.PollBaseDelay << attempt
	if ceiling > s.cfg.PollMaxWait {
		ceiling = s.cfg.PollMaxWait
	}
	return time.Duration(s.jitter() * float64(ceiling))
}

func (s *Service) load(ctx context.Context, userID string) (*types.Profile, error) {
	var p *types.Profile
	err := s.store.ForIdentity(ctx, userID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		p, err = repos.Profiles().GetByUserID(ctx, userID)
		return err
	})
	return p, err
}

// EnsureProfile returns the caller's profile. The identity webhook normally
// creates it; until it lands the read is retried within PollMaxWait, after
// which the profile is created here. Both writers converge on one row.
// A pending status is persisted as account_type on the way out.
func (s *Service) EnsureProfile(ctx context.Context, actor types.Actor) (*types.Profile, error) {
	deadline := time.Now().Add(s.cfg.PollMaxWait)

	for attempt := 0; attempt < s.cfg.PollAttempts; attempt++ {
		p, err := s.load(ctx, actor.ID)
		if err == nil {
			return s.collapsePending(ctx, actor.ID, p)
		}
		if types.CodeOf(err) != types.ErrCodeNotFoundProfile {
			return nil, err
		}
		if attempt == s.cfg.PollAttempts-1 {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		delay := min(s.pollDelay(attempt), remaining)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "profile not created by identity webhook; creating", "user_id", actor.ID)
	var p *types.Profile
	err := s.store.ForIdentity(ctx, actor.ID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		p, err = repos.Profiles().CreateIfAbsent(ctx, &types.Profile{
			UserID:           actor.ID,
			Email:            actor.Email,
			OnboardingStatus: types.OnboardingPending,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.collapsePending(ctx, actor.ID, p)
}

func (s *Service) collapsePending(ctx context.Context, userID string, p *types.Profile) (*types.Profile, error) {
	if p.OnboardingStatus != types.OnboardingPending {
		return p, nil
	}
	var out *types.Profile
	err := s.store.ForIdentity(ctx, userID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		out, err = repos.Profiles().SetOnboarding(ctx, userID, "", types.OnboardingAccountType)
		return err
	})
	return out, err
}

// step applies ev to the caller's stored status and persists the result.
func (s *Service) step(ctx context.Context, actor types.Actor, accountType types.AccountType, ev Event) (*types.Profile, error) {
	p, err := s.EnsureProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	machineType := p.AccountType
	if ev == EventChooseAccountType {
		machineType = accountType
	}
	next, err := Transition(p.OnboardingStatus, machineType, ev)
	if err != nil {
		return nil, err
	}

	var out *types.Profile
	err = s.store.ForIdentity(ctx, actor.ID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		out, err = repos.Profiles().SetOnboarding(ctx, actor.ID, accountType, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "onboarding transition",
		"user_id", actor.ID,
		"event", ev,
		"from", p.OnboardingStatus,
		"to", next,
	)
	return out, nil
}

// ChooseAccountType records the caller's account type.
func (s *Service) ChooseAccountType(ctx context.Context, actor types.Actor, accountType types.AccountType) (*types.Profile, error) {
	return s.step(ctx, actor, accountType, EventChooseAccountType)
}

// Back steps the caller's onboarding back to account_type.
func (s *Service) Back(ctx context.Context, actor types.Actor) (*types.Profile, error) {
	return s.step(ctx, actor, "", EventBack)
}

// StartPayment opens the promo checkout for a creator at the payment step.
func (s *Service) StartPayment(ctx context.Context, actor types.Actor) (*payments.CheckoutResult, error) {
	p, err := s.EnsureProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !p.IsCreator() || p.OnboardingStatus != types.OnboardingPayment {
		return nil, conflict("payment is only available to creators at the payment step", p.OnboardingStatus, EventPaymentVerified)
	}
	return s.checkout.StartCreatorPromo(ctx, actor.ID, p)
}

// SubmitProfile stores the public profile and completes onboarding.
func (s *Service) SubmitProfile(ctx context.Context, actor types.Actor, in ProfileSubmission) (*types.Profile, error) {
	p, err := s.EnsureProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	next, err := Transition(p.OnboardingStatus, p.AccountType, EventSubmitProfile)
	if err != nil {
		return nil, err
	}

	username := types.NormalizeUsername(in.Username)
	upd := types.ProfileUpdate{
		Username:  &username,
		Bio:       &in.Bio,
		Twitter:   &in.Twitter,
		Instagram: &in.Instagram,
		Youtube:   &in.Youtube,
		Facebook:  &in.Facebook,
		OtherLink: &in.OtherLink,
	}
	if in.FirstName != "" {
		upd.FirstName = &in.FirstName
	}
	if in.LastName != "" {
		upd.LastName = &in.LastName
	}
	if in.AvatarURL != "" {
		upd.AvatarURL = &in.AvatarURL
	}

	var out *types.Profile
	err = s.store.ForIdentity(ctx, actor.ID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		if err := ensureUsernameFree(ctx, repos.Profiles(), username, actor.ID); err != nil {
			return err
		}
		if _, err := repos.Profiles().Update(ctx, actor.ID, upd); err != nil {
			return err
		}
		var err error
		out, err = repos.Profiles().SetOnboarding(ctx, actor.ID, "", next)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "onboarding completed", "user_id", actor.ID, "username", username)
	return out, nil
}

// UpdateProfile applies owner edits to the caller's profile.
func (s *Service) UpdateProfile(ctx context.Context, actor types.Actor, upd types.ProfileUpdate) (*types.Profile, error) {
	if _, err := s.EnsureProfile(ctx, actor); err != nil {
		return nil, err
	}
	var out *types.Profile
	err := s.store.ForIdentity(ctx, actor.ID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		if upd.Username != nil {
			u := types.NormalizeUsername(*upd.Username)
			upd.Username = &u
			if err := ensureUsernameFree(ctx, repos.Profiles(), u, actor.ID); err != nil {
				return err
			}
		}
		var err error
		out, err = repos.Profiles().Update(ctx, actor.ID, upd)
		return err
	})
	return out, err
}

// ensureUsernameFree checks ownership before writing so the common conflict
// does not abort the transaction. The unique index still decides races.
func ensureUsernameFree(ctx context.Context, profiles types.ProfileRepository, username, userID string) error {
	owner, err := profiles.UsernameOwner(ctx, username)
	if err != nil {
		return err
	}
	if owner != "" && owner != userID {
		return types.NewAppError(types.ErrCodeConflictUsernameTaken, "username already taken", nil)
	}
	return nil
}

// CheckUsername reports whether username could be claimed by identityID,
// which is empty for anonymous callers. The answer is advisory.
func (s *Service) CheckUsername(ctx context.Context, identityID, username string) (*UsernameAvailability, error) {
	normalized := types.NormalizeUsername(username)
	out := &UsernameAvailability{Username: normalized}
	if !types.IsValidUsername(normalized) {
		out.Reason = "invalid"
		return out, nil
	}

	var owner string
	lookup := func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		owner, err = repos.Profiles().UsernameOwner(ctx, normalized)
		return err
	}
	var err error
	if identityID != "" {
		err = s.store.ForIdentity(ctx, identityID, lookup)
	} else {
		err = s.store.AsService(ctx, lookup)
	}
	if err != nil {
		return nil, err
	}

	out.Available = owner == "" || owner == identityID
	if !out.Available {
		out.Reason = "taken"
	}
	return out, nil
}
