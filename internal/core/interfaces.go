package core

import (
	"context"
	"time"

	"tipkoro/internal/types"
)

// Authenticator decouples the HTTP layer from the identity provider so tests
// can inject actors directly.
type Authenticator interface {
	// ResolveToken returns the actor a session token belongs to.
	// Errors carry auth_token_invalid or auth_token_expired.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RateLimitStore abstracts the backing store for rate limiting.
// Production uses Redis; tests use MockRateLimitStore.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the counter for key and checks
	// it against limit within window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// MetricsCollector records API telemetry.
type MetricsCollector interface {
	// RecordRequest records latency and count for one request. endpoint is
	// the route pattern, not the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}
