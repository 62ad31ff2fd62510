package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// loginAttemptScript counts one login attempt for a username and returns the attempt
// count together with the milliseconds left before the count resets. The first attempt
// of a window starts its expiry, so a burst of wrong PINs locks the username out until
// the window closes rather than sliding forward on every retry.
var loginAttemptScript = redis.NewScript(`
local attempts = redis.call("INCR", KEYS[1])
if attempts == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local remaining = redis.call("PTTL", KEYS[1])
if remaining < 0 then
  remaining = tonumber(ARGV[1])
end
return {attempts, remaining}
`)

const minAttemptWindow = time.Second

// RateLimiter counts attempts per scope and subject within a window. AuthService uses
// it to throttle logins per username.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RedisRateLimiter keeps login attempt counters in Redis so that every API instance sees
// the same count for a username.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	base := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if base == "" {
		base = "wirebuddy"
	}
	return &RedisRateLimiter{client: client, prefix: base + ":rate_limit"}
}

// attemptKey builds the counter key. Usernames are compared case-insensitively at
// login, so "Ama" and "ama" share one counter.
func (r *RedisRateLimiter) attemptKey(scope, subject string) (string, bool) {
	scope = strings.TrimSpace(scope)
	subject = strings.ToLower(strings.TrimSpace(subject))
	if scope == "" || subject == "" {
		return "", false
	}
	return r.prefix + ":" + scope + ":" + subject, true
}

// ConsumeRateLimit records an attempt. It is a no-op without a client or a positive limit.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	key, ok := r.attemptKey(scope, subject)
	if !ok {
		return 0, 0, nil
	}
	if window < minAttemptWindow {
		window = minAttemptWindow
	}

	windowMs := window.Milliseconds()
	raw, err := loginAttemptScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("count attempt for %s: %w", scope, err)
	}
	return parseLimiterResult(raw, windowMs)
}

// parseLimiterResult turns the script reply into an attempt count and a whole number of
// seconds to wait, never less than one.
func parseLimiterResult(raw interface{}, windowMs int64) (int, int, error) {
	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	attempts, ok := reply[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", reply[0])
	}
	remainingMs, ok := reply[1].(int64)
	if !ok {
		return int(attempts), 0, fmt.Errorf("unexpected redis limiter ttl type: %T", reply[1])
	}
	if remainingMs < 0 {
		remainingMs = windowMs
	}
	return int(attempts), int(math.Max(1, math.Ceil(float64(remainingMs)/1000))), nil
}
