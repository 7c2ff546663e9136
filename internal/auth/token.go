// Package auth verifies identity-provider session tokens. Sign-in itself is
// delegated to the provider; the API only checks the RS256 signature, the
// time claims and the authorized party, then maps the subject to an Actor.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tipkoro/internal/types"
)

// DefaultLeeway absorbs clock skew between the provider and the API.
const DefaultLeeway = 30 * time.Second

// sessionClaims is the subset of the provider's session token the API reads.
type sessionClaims struct {
	SessionID       string `json:"sid"`
	AuthorizedParty string `json:"azp"`
	Email           string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier resolves bearer tokens into actors.
type TokenVerifier struct {
	publicKey         *rsa.PublicKey
	authorizedParties []string
	leeway            time.Duration
	now               func() time.Time
	logger            *slog.Logger
}

// TokenVerifierConfig configures a TokenVerifier.
type TokenVerifierConfig struct {
	// PublicKeyPEM is the provider's PEM-encoded RSA public key.
	PublicKeyPEM string
	// AuthorizedParties restricts the azp claim. Empty allows any.
	AuthorizedParties []string
	Leeway            time.Duration
	Logger            *slog.Logger
}

// NewTokenVerifier parses the public key and returns a verifier.
func NewTokenVerifier(cfg TokenVerifierConfig) (*TokenVerifier, error) {
	if cfg.PublicKeyPEM == "" {
		return nil, errors.New("identity provider public key is required")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse identity provider public key: %w", err)
	}
	leeway := cfg.Leeway
	if leeway == 0 {
		leeway = DefaultLeeway
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenVerifier{
		publicKey:         key,
		authorizedParties: cfg.AuthorizedParties,
		leeway:            leeway,
		now:               time.Now,
		logger:            logger,
	}, nil
}

// ResolveToken validates token and returns the signed-in user.
func (v *TokenVerifier) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "session token expired", err)
		}
		v.logger.DebugContext(ctx, "session token rejected", "error", err)
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid session token", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid session token", nil)
	}
	if len(v.authorizedParties) > 0 && claims.AuthorizedParty != "" &&
		!slices.Contains(v.authorizedParties, claims.AuthorizedParty) {
		v.logger.WarnContext(ctx, "session token from unauthorized party", "azp", claims.AuthorizedParty)
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid session token", nil)
	}

	return &types.Actor{
		ID:        claims.Subject,
		Type:      types.ActorTypeUser,
		Email:     claims.Email,
		SessionID: claims.SessionID,
	}, nil
}
