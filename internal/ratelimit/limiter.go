// Package ratelimit implements the sliding-window counter that gates
// mutating wallet requests (spec §4.4), generalized from the teacher's
// fixed-TTL concurrency-cap Lua script into a sorted-set sliding window
// evaluated atomically on Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Scope is one of the three levels the limiter is consulted at, in
// order, for a mutating request (spec §4.4).
type Scope string

const (
	ScopeWallet Scope = "wallet"
	ScopeUser   Scope = "user"
	ScopeGlobal Scope = "global"
)

const window = 60 * time.Second

// slidingWindowScript performs the full check-and-admit atomically: drop
// stale entries, count what remains, and if under the limit, insert a
// new entry and refresh the key's TTL. Mirrors the teacher's
// concurrencyAcquireScript shape (INCR-then-check) but keyed on a
// timestamped sorted set instead of a plain counter, so the window
// actually slides instead of resetting on a fixed tick.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local token = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
local count = redis.call('ZCARD', key)

if count >= limit then
  return count
end

redis.call('ZADD', key, now_ms, token)
redis.call('PEXPIRE', key, window_ms)
return count
`)

// Limiter gates requests via a per-scope sliding window held in Redis,
// failing open if Redis is unreachable (spec §4.4 failure mode).
type Limiter struct {
	rdb    *redis.Client
	limits map[Scope]int
}

// New builds a Limiter. limits maps each scope to its per-minute
// threshold; a missing scope is treated as unlimited.
func New(rdb *redis.Client, limits map[Scope]int) *Limiter {
	return &Limiter{rdb: rdb, limits: limits}
}

// Decision is the outcome of a single scope check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   int64 // epoch seconds
}

// Allow checks a single scope/subject pair. On any Redis error it fails
// open (spec property 9).
func (l *Limiter) Allow(ctx context.Context, scope Scope, subject string) (Decision, error) {
	limit, ok := l.limits[scope]
	if !ok || limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s", scope, subject)
	now := time.Now()
	token := uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, l.rdb, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, token).Int()
	if err != nil {
		// Fail open: availability of the ledger outweighs strict
		// enforcement when the shared store is unreachable.
		return Decision{Allowed: true}, nil
	}

	preInsertCount := res
	if preInsertCount >= limit {
		return Decision{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   now.Add(window).Unix(),
		}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: limit - preInsertCount - 1,
		ResetAt:   now.Add(window).Unix(),
	}, nil
}

// AllowMutation checks wallet, then user, then global scope in order,
// short-circuiting on the first rejection (spec §4.4 precedence).
func (l *Limiter) AllowMutation(ctx context.Context, walletID, userID string) (Decision, error) {
	for _, pair := range []struct {
		scope   Scope
		subject string
	}{
		{ScopeWallet, walletID},
		{ScopeUser, userID},
		{ScopeGlobal, "all"},
	} {
		d, err := l.Allow(ctx, pair.scope, pair.subject)
		if err != nil {
			return Decision{Allowed: true}, nil
		}
		if !d.Allowed {
			return d, nil
		}
	}
	return Decision{Allowed: true}, nil
}
