// Package identity mirrors identity-provider users into profiles. The
// provider posts svix-signed webhooks for user.created, user.updated and
// user.deleted; everything else is acknowledged and ignored.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tipkoro/internal/external"
	"tipkoro/internal/types"
)

// Identity event types.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

const maxUsernameAttempts = 5

// Event is the envelope posted by the identity provider.
type Event struct {
	Type string    `json:"type"`
	Data EventUser `json:"data"`
}

// EventUser is the user object carried by user.* events.
type EventUser struct {
	ID                    string         `json:"id"`
	Username              string         `json:"username"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	ImageURL              string         `json:"image_url"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	Deleted               bool           `json:"deleted"`
}

// EmailAddress is one of the user's addresses.
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// PrimaryEmail returns the primary address, or the first one listed.
func (u EventUser) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// Result describes what a webhook did.
type Result struct {
	Event   string         `json:"event"`
	Handled bool           `json:"handled"`
	Message string         `json:"message"`
	Profile *types.Profile `json:"-"`
}

// Syncer applies identity events to profiles.
type Syncer struct {
	verifier external.IdentityWebhookVerifier
	store    types.ScopedStoreFactory
	logger   *slog.Logger
	suffix   func(n int) string
}

// NewSyncer creates a Syncer.
func NewSyncer(verifier external.IdentityWebhookVerifier, store types.ScopedStoreFactory, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		verifier: verifier,
		store:    store,
		logger:   logger,
		suffix:   randomSuffix,
	}
}

// randomSuffix returns n characters from [a-z2-7].
func randomSuffix(n int) string {
	s := strings.ToLower(rand.Text())
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// Handle authenticates payload and applies the event it carries.
func (s *Syncer) Handle(ctx context.Context, payload []byte, headers http.Header) (*Result, error) {
	if err := s.verifier.Verify(payload, headers); err != nil {
		if errors.Is(err, external.ErrWebhookSecretMissing) {
			s.logger.ErrorContext(ctx, "identity webhook secret not configured")
			return nil, types.NewAppError(types.ErrCodeInternalWebhookSecretMissing, "webhook secret not configured", err)
		}
		s.logger.WarnContext(ctx, "identity webhook rejected", "svix_id", headers.Get(external.HeaderSvixID), "error", err)
		return nil, types.NewAppError(types.ErrCodeAuthSignatureInvalid, "invalid webhook signature", err)
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid JSON body", err)
	}
	return s.Apply(ctx, ev)
}

// Apply runs an already authenticated event.
func (s *Syncer) Apply(ctx context.Context, ev Event) (*Result, error) {
	switch ev.Type {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		if ev.Data.ID == "" {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField, "user id is required", nil, map[string]any{
				"validation_errors": []types.ValidationError{{Field: "data.id", Code: string(types.ErrCodeValidationMissingField), Message: "is required"}},
			})
		}
	default:
		s.logger.InfoContext(ctx, "identity event ignored", "event", ev.Type)
		return &Result{Event: ev.Type, Message: "Event not handled"}, nil
	}

	switch ev.Type {
	case EventUserCreated:
		p, err := s.upsert(ctx, ev.Data)
		if err != nil {
			return nil, err
		}
		return &Result{Event: ev.Type, Handled: true, Message: "Profile created", Profile: p}, nil
	case EventUserUpdated:
		p, err := s.update(ctx, ev.Data)
		if err != nil {
			return nil, err
		}
		return &Result{Event: ev.Type, Handled: true, Message: "Profile updated", Profile: p}, nil
	default:
		if err := s.delete(ctx, ev.Data.ID); err != nil {
			return nil, err
		}
		return &Result{Event: ev.Type, Handled: true, Message: "Profile deleted"}, nil
	}
}

// upsert writes the user's profile. A username collision is retried with a
// fresh suffix; each attempt runs in its own transaction because the unique
// violation aborts the one it happened in.
func (s *Syncer) upsert(ctx context.Context, u EventUser) (*types.Profile, error) {
	base := s.usernameFor(u)
	username := base

	var lastErr error
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		if attempt > 0 {
			username = withSuffix(base, s.suffix(4))
		}
		var p *types.Profile
		err := s.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
			var err error
			p, err = repos.Profiles().UpsertFromIdentity(ctx, &types.Profile{
				UserID:           u.ID,
				Email:            u.PrimaryEmail(),
				FirstName:        u.FirstName,
				LastName:         u.LastName,
				AvatarURL:        u.ImageURL,
				Username:         username,
				OnboardingStatus: types.OnboardingAccountType,
			})
			return err
		})
		if err == nil {
			s.logger.InfoContext(ctx, "profile synced from identity", "user_id", u.ID, "username", p.Username)
			return p, nil
		}
		if types.CodeOf(err) != types.ErrCodeConflictUsernameTaken {
			return nil, err
		}
		s.logger.DebugContext(ctx, "generated username taken", "user_id", u.ID, "username", username)
		lastErr = err
	}
	return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "could not allocate a username", lastErr)
}

func (s *Syncer) update(ctx context.Context, u EventUser) (*types.Profile, error) {
	err := s.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		return repos.Profiles().UpdateIdentityFields(ctx, u.ID, types.IdentityUpdate{
			Email:     u.PrimaryEmail(),
			FirstName: u.FirstName,
			LastName:  u.LastName,
			AvatarURL: u.ImageURL,
		})
	})
	if types.CodeOf(err) == types.ErrCodeNotFoundProfile {
		// The created event may have been lost; updated carries the full user.
		return s.upsert(ctx, u)
	}
	if err != nil {
		return nil, err
	}
	var p *types.Profile
	err = s.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		p, err = repos.Profiles().GetByUserID(ctx, u.ID)
		return err
	})
	return p, err
}

func (s *Syncer) delete(ctx context.Context, userID string) error {
	var deleted bool
	err := s.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		deleted, err = repos.Profiles().DeleteByUserID(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}
	if !deleted {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	s.logger.InfoContext(ctx, "profile deleted for identity", "user_id", userID)
	return nil
}

// usernameFor picks the first usable candidate: the provider username, the
// email local part, the first name plus a short suffix, then "user" plus a
// longer one.
func (s *Syncer) usernameFor(u EventUser) string {
	if name := types.NormalizeUsername(u.Username); types.IsValidUsername(name) {
		return name
	}
	local, _, _ := strings.Cut(u.PrimaryEmail(), "@")
	if name := truncate(alnum(local), types.UsernameMaxLength); len(name) >= types.UsernameMinLength {
		return name
	}
	if first := alnum(u.FirstName); first != "" {
		return withSuffix(first, s.suffix(4))
	}
	return "user" + s.suffix(6)
}

// alnum lowercases s and drops everything outside [a-z0-9].
func alnum(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func withSuffix(base, suffix string) string {
	return truncate(base, types.UsernameMaxLength-len(suffix)) + suffix
}
