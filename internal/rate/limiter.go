// Package rate enforces fixed-window rate limits on Redis counters.
//
// Counter keys follow prefix:identifier:ip. The window is fixed, not
// sliding: INCR plus a conditional EXPIRE on the increment that creates the
// key. Bursts straddling a window boundary can transiently reach ~2x the
// nominal rate, which is an accepted trade for a single round trip per
// check.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy names one throttled operation: its key prefix, attempt budget, and
// window length.
type Policy struct {
	Prefix string
	Limit  int
	Window time.Duration
}

// The fixed policies for every throttled operation.
var (
	PolicyLogin         = Policy{Prefix: "rl:login", Limit: 5, Window: 5 * time.Minute}
	PolicyRefresh       = Policy{Prefix: "rl:refresh", Limit: 10, Window: 5 * time.Minute}
	PolicyIntrospection = Policy{Prefix: "rl:introspect", Limit: 30, Window: 5 * time.Minute}
	PolicyMFAResend     = Policy{Prefix: "rl:mfa-resend", Limit: 5, Window: 15 * time.Minute}
	PolicyMFAVerify     = Policy{Prefix: "rl:mfa-verify", Limit: 5, Window: 15 * time.Minute}
)

// Result reports the outcome of one Enforce call. Key is kept so a later
// success can Reset the counter it charged.
type Result struct {
	Key      string
	Attempts int64
	Limit    int
}

// Limiter enforces fixed-window limits backed by Redis counters. Atomicity
// of the increment is delegated to Redis; the limiter holds no in-process
// state.
type Limiter struct {
	redis redis.UniversalClient
}

func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

// Key builds the counter key for a policy, identifier, and client IP. The
// identifier is normalized so "Alice@Example.com" and "alice@example.com"
// share a counter; a missing IP still produces a stable key.
func (l *Limiter) Key(p Policy, identifier, ip string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if ip == "" {
		ip = "unknown"
	}
	return p.Prefix + ":" + identifier + ":" + ip
}

// Enforce charges one attempt against the policy's counter and fails with
// ErrRateLimited once the count exceeds the budget. The TTL is set only on
// the increment that creates the key.
func (l *Limiter) Enforce(ctx context.Context, p Policy, identifier, ip string) (Result, error) {
	key := l.Key(p, identifier, ip)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, p.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	res := Result{Key: key, Attempts: count, Limit: p.Limit}
	if count > int64(p.Limit) {
		return res, ErrRateLimited
	}
	return res, nil
}

// Reset deletes a counter. Used once per login, after the second factor
// succeeds, to forgive the attempts charged during the password step.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
