package redis

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SLIDING WINDOW RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitRecorder receives limiter outcomes.
type RateLimitRecorder interface {
	RateLimitDecision(scope string, allowed bool)
	RateLimitFailOpen(scope string)
	Suspicious(reason string)
}

// RateLimiter is a sliding-log limiter: each request is a member of a sorted
// set scored by its timestamp, so the window trails the request instead of
// resetting on a fixed boundary.
//
// Redis errors fail open: the request is admitted and the event recorded.
type RateLimiter struct {
	cache    *Cache
	clock    timeutil.Clock
	log      *logger.Logger
	recorder RateLimitRecorder
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimitClock overrides the clock used for window scores.
func WithRateLimitClock(c timeutil.Clock) RateLimiterOption {
	return func(r *RateLimiter) { r.clock = c }
}

// WithRateLimitRecorder attaches a metrics recorder.
func WithRateLimitRecorder(rec RateLimitRecorder) RateLimiterOption {
	return func(r *RateLimiter) { r.recorder = rec }
}

// WithRateLimitLogger attaches a logger.
func WithRateLimitLogger(l *logger.Logger) RateLimiterOption {
	return func(r *RateLimiter) { r.log = l }
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(cache *Cache, opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		cache: cache,
		clock: timeutil.SystemClock{},
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow admits the request if fewer than maxPerWindow requests for
// (scope, identifier) were seen in the trailing window, counting this one.
// A rejected request still occupies a slot, so sustained hammering stays blocked.
func (r *RateLimiter) Allow(ctx context.Context, scope, identifier string, maxPerWindow int, window time.Duration) bool {
	key := RateLimitKey(scope, hashIdentifier(identifier))
	now := r.clock.Now()
	cutoff := now.Add(-window).UnixMilli()
	member := strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()

	pipe := r.cache.Client().TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn("rate limiter unavailable, failing open",
			logger.Component("rate_limiter"),
			logger.Scope(scope),
			logger.Err(err),
		)
		if r.recorder != nil {
			r.recorder.RateLimitFailOpen(scope)
		}
		return true
	}

	allowed := card.Val() <= int64(maxPerWindow)
	if r.recorder != nil {
		r.recorder.RateLimitDecision(scope, allowed)
		if !allowed {
			r.recorder.Suspicious(fmt.Sprintf("rate_limit_%s_exceeded", scope))
		}
	}
	return allowed
}

// hashIdentifier keeps raw IPs and user ids out of key names.
func hashIdentifier(identifier string) string {
	sum := blake2b.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:16])
}
