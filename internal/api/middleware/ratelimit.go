package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimit defines a fixed-window limit for a route class.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter enforces per-user fixed-window limits backed by Redis. Typing
// updates fire on every keystroke burst, so they get a wider budget than
// message sends. When Redis is unavailable requests pass through; limiting is
// protection, not correctness.
type RateLimiter struct {
	client *redis.Client
	logger zerolog.Logger
	limits map[string]RateLimit
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		limits: map[string]RateLimit{
			"send":    {30, time.Minute},
			"typing":  {240, time.Minute},
			"mutate":  {60, time.Minute},
			"read":    {300, time.Minute},
			"default": {120, time.Minute},
		},
	}
}

// Middleware applies the limit matching the request's route class.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := rl.limits[classify(r)]

		key := "ratelimit:" + subjectKey(r) + ":" + classify(r)
		count, err := rl.increment(r, key, limit.Window)
		if err != nil {
			// Redis down: let the request through.
			rl.logger.Warn().Err(err).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit.Requests - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > limit.Requests {
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) increment(r *http.Request, key string, window time.Duration) (int, error) {
	ctx := r.Context()
	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

// classify maps a request to a route class sharing one budget.
func classify(r *http.Request) string {
	switch {
	case r.Method == http.MethodPost && pathEndsWith(r, "/messages"):
		return "send"
	case pathEndsWith(r, "/typing"):
		if r.Method == http.MethodPost {
			return "typing"
		}
		return "read"
	case r.Method == http.MethodGet:
		return "read"
	case r.Method == http.MethodPost, r.Method == http.MethodPatch, r.Method == http.MethodDelete:
		return "mutate"
	default:
		return "default"
	}
}

func pathEndsWith(r *http.Request, suffix string) bool {
	p := r.URL.Path
	return len(p) >= len(suffix) && p[len(p)-len(suffix):] == suffix
}

// subjectKey identifies the caller: the authenticated session subject when
// present, the client IP otherwise.
func subjectKey(r *http.Request) string {
	if claims := GetSessionFromContext(r.Context()); claims != nil {
		return "user:" + claims.ExternalID()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return fmt.Sprintf("ip:%s", host)
}
