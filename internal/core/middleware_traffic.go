package core

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tipkoro/internal/types"
)

// Fallbacks used when the Redis section of the config is zero.
const (
	defaultRateLimitMax    = 120
	defaultRateLimitWindow = time.Minute
)

// rateLimitExemptPaths are never counted.
var rateLimitExemptPaths = map[string]bool{
	"/health": true,
}

// RateLimit enforces a fixed-window request budget per caller.
//
// Signed-in callers are keyed by their user id, anonymous callers by client
// IP, so anonymous tip checkouts cannot exhaust a creator's own budget.
//
// If no RateLimitStore is configured the middleware passes through. Store
// errors fail open so a Redis outage does not take the API down.
//
// Every counted response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset. A 429 also carries Retry-After.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimitStore == nil || rateLimitExemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		limit, window := s.rateLimitBudget()
		key := rateLimitKey(r)

		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), key, limit, window)
		if err != nil {
			s.Logger.Error("rate limit store error",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, limit, result)

		if !result.Allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("key", key),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			resp := APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodeRateLimit),
					Message:   "Rate limit exceeded. Please retry after the reset time.",
					RequestID: types.GetRequestID(r.Context()),
				},
			}
			JSON(w, r, http.StatusTooManyRequests, resp)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitBudget() (int, time.Duration) {
	limit, window := defaultRateLimitMax, defaultRateLimitWindow
	if s.Config != nil {
		if s.Config.Redis.RateLimitRequests > 0 {
			limit = s.Config.Redis.RateLimitRequests
		}
		if s.Config.Redis.RateLimitWindow > 0 {
			window = s.Config.Redis.RateLimitWindow
		}
	}
	return limit, window
}

func rateLimitKey(r *http.Request) string {
	if actor, ok := types.GetActor(r.Context()); ok && actor.ID != "" {
		return "user:" + actor.ID
	}
	return "ip:" + extractClientIP(r)
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// extractClientIP prefers the first X-Forwarded-For entry, which the Lambda
// Function URL front end sets, and falls back to RemoteAddr.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
