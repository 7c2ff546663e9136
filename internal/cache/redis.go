// Package cache holds the Redis-backed pieces of the API: the connection
// helper and the fixed-window rate limit store.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tipkoro/internal/core"
)

// Connect builds a client from a redis:// or rediss:// URL, or a bare host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Counter is the subset of *redis.Client the rate limiter uses.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
}

const rateLimitPrefix = "ratelimit:"

// RateLimitStore is a fixed-window counter keyed by caller.
type RateLimitStore struct {
	client Counter
	now    func() time.Time
}

// NewRateLimitStore creates a RateLimitStore over client.
func NewRateLimitStore(client Counter) *RateLimitStore {
	return &RateLimitStore{client: client, now: time.Now}
}

// IncrementAndCheck counts one request against key. The window starts at the
// first request; a key left without a TTL is given one so it cannot lock a
// caller out forever.
func (s *RateLimitStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (core.RateLimitResult, error) {
	redisKey := rateLimitPrefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return core.RateLimitResult{}, fmt.Errorf("incr %s: %w", redisKey, err)
	}

	ttl := window
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return core.RateLimitResult{}, fmt.Errorf("expire %s: %w", redisKey, err)
		}
	} else {
		ttl, err = s.client.PTTL(ctx, redisKey).Result()
		if err != nil {
			return core.RateLimitResult{}, fmt.Errorf("pttl %s: %w", redisKey, err)
		}
		if ttl < 0 {
			ttl = window
			if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
				return core.RateLimitResult{}, fmt.Errorf("expire %s: %w", redisKey, err)
			}
		}
	}

	return core.RateLimitResult{
		Allowed:   count <= int64(limit),
		Remaining: max(limit-int(count), 0),
		ResetAt:   s.now().Add(ttl),
	}, nil
}

var (
	_ core.RateLimitStore = (*RateLimitStore)(nil)
	_ Counter             = (*redis.Client)(nil)
)
