package core

import (
	"context"
	"sync"
	"time"

	"tipkoro/internal/types"
)

// MockAuthenticator resolves every session token to Actor, or fails with Err.
// Tokens, when set, maps specific tokens to their own actors; unknown tokens
// then fall back to Actor. Calls lists the tokens seen, in order.
type MockAuthenticator struct {
	Actor  *types.Actor
	Err    error
	Tokens map[string]*types.Actor

	mu    sync.Mutex
	Calls []string
}

func (m *MockAuthenticator) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if a, ok := m.Tokens[token]; ok {
		return a, nil
	}
	return m.Actor, nil
}

// RateLimitCall is one recorded IncrementAndCheck.
type RateLimitCall struct {
	Key    string
	Limit  int
	Window time.Duration
}

// MockRateLimitStore returns Result and Err for every check unless
// IncrementAndCheckFunc overrides it.
type MockRateLimitStore struct {
	Result                RateLimitResult
	Err                   error
	IncrementAndCheckFunc func(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)

	mu    sync.Mutex
	Calls []RateLimitCall
}

func (m *MockRateLimitStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, RateLimitCall{Key: key, Limit: limit, Window: window})
	m.mu.Unlock()

	if m.IncrementAndCheckFunc != nil {
		return m.IncrementAndCheckFunc(ctx, key, limit, window)
	}
	return m.Result, m.Err
}

var (
	_ Authenticator  = (*MockAuthenticator)(nil)
	_ RateLimitStore = (*MockRateLimitStore)(nil)
)
