package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache stores one sorted set per scope:
//
//	arena:lb:global, arena:lb:weekly, arena:lb:country:{C}, arena:lb:state:{C}:{R}
//
// member = userID, score = cumulative rankPoints. Writes are overwrites (ZADD),
// never increments, so redelivered jobs converge.
type LeaderboardCache struct {
	cache *Cache
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

// ErrUserIDEmpty is returned when a write carries no member.
var ErrUserIDEmpty = errors.New("leaderboard_cache: user id is empty")

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SetScore overwrites the member's score in every scope in one round trip.
func (l *LeaderboardCache) SetScore(ctx context.Context, userID string, score uint64, scopes []leaderboard.Scope) error {
	if userID == "" {
		return ErrUserIDEmpty
	}
	if len(scopes) == 0 {
		return nil
	}

	pipe := l.cache.Client().Pipeline()
	for _, s := range scopes {
		pipe.ZAdd(ctx, LeaderboardKey(s.Key()), redis.Z{Score: float64(score), Member: userID})
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Remove deletes the member from the listed scopes.
func (l *LeaderboardCache) Remove(ctx context.Context, userID string, scopes []leaderboard.Scope) error {
	if userID == "" {
		return ErrUserIDEmpty
	}
	if len(scopes) == 0 {
		return nil
	}

	pipe := l.cache.Client().Pipeline()
	for _, s := range scopes {
		pipe.ZRem(ctx, LeaderboardKey(s.Key()), userID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveEverywhere scans every leaderboard key and removes the member.
// Used when a user is shadow-banned and their past locations are unknown.
func (l *LeaderboardCache) RemoveEverywhere(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserIDEmpty
	}

	client := l.cache.Client()
	pipe := client.Pipeline()
	queued := 0

	iter := client.Scan(ctx, 0, PrefixLeaderboard+"*", 200).Iterator()
	for iter.Next(ctx) {
		pipe.ZRem(ctx, iter.Val(), userID)
		queued++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan leaderboard keys: %w", err)
	}
	if queued == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Clear drops a scope entirely.
func (l *LeaderboardCache) Clear(ctx context.Context, scope leaderboard.Scope) error {
	return l.cache.Client().Del(ctx, LeaderboardKey(scope.Key())).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Top returns the first limit members in descending score order.
func (l *LeaderboardCache) Top(ctx context.Context, scope leaderboard.Scope, limit int) ([]leaderboard.ScoredMember, error) {
	if limit <= 0 {
		return []leaderboard.ScoredMember{}, nil
	}
	return l.rangeDesc(ctx, scope, 0, int64(limit-1))
}

// All returns the whole scope in descending score order.
func (l *LeaderboardCache) All(ctx context.Context, scope leaderboard.Scope) ([]leaderboard.ScoredMember, error) {
	return l.rangeDesc(ctx, scope, 0, -1)
}

// Rank returns the 1-based position and score; position is nil when absent.
func (l *LeaderboardCache) Rank(ctx context.Context, userID string, scope leaderboard.Scope) (*int, uint64, error) {
	key := LeaderboardKey(scope.Key())

	pipe := l.cache.Client().Pipeline()
	rankCmd := pipe.ZRevRank(ctx, key, userID)
	scoreCmd := pipe.ZScore(ctx, key, userID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	rank, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	score, err := scoreCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	pos := int(rank) + 1
	return &pos, uint64(score), nil
}

func (l *LeaderboardCache) rangeDesc(ctx context.Context, scope leaderboard.Scope, start, stop int64) ([]leaderboard.ScoredMember, error) {
	zs, err := l.cache.Client().ZRevRangeWithScores(ctx, LeaderboardKey(scope.Key()), start, stop).Result()
	if err != nil {
		return nil, err
	}

	out := make([]leaderboard.ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, leaderboard.ScoredMember{UserID: member, Score: uint64(z.Score)})
	}
	return out, nil
}
