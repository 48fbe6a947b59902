package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client), mr
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

func TestLeaderboardCache_OverwriteAndRank(t *testing.T) {
	cache, _ := newTestCache(t)
	lb := NewLeaderboardCache(cache)
	ctx := context.Background()
	scopes := leaderboard.ScopesFor(shared.NewLocation("CO", "ANT"))

	require.NoError(t, lb.SetScore(ctx, "alice", 10, scopes))
	require.NoError(t, lb.SetScore(ctx, "bob", 30, scopes))
	require.NoError(t, lb.SetScore(ctx, "carol", 20, scopes[:2]))

	// overwrite, not increment
	require.NoError(t, lb.SetScore(ctx, "alice", 25, scopes))
	require.NoError(t, lb.SetScore(ctx, "alice", 25, scopes))

	top, err := lb.Top(ctx, leaderboard.Global(), 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, leaderboard.ScoredMember{UserID: "bob", Score: 30}, top[0])
	assert.Equal(t, leaderboard.ScoredMember{UserID: "alice", Score: 25}, top[1])
	assert.Equal(t, "carol", top[2].UserID)

	country, err := lb.Top(ctx, leaderboard.Country("CO"), 10)
	require.NoError(t, err)
	assert.Len(t, country, 2)

	pos, score, err := lb.Rank(ctx, "alice", leaderboard.Global())
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 2, *pos)
	assert.Equal(t, uint64(25), score)

	pos, score, err = lb.Rank(ctx, "carol", leaderboard.State("CO", "ANT"))
	require.NoError(t, err)
	assert.Nil(t, pos)
	assert.Zero(t, score)
}

func TestLeaderboardCache_RemoveEverywhereAndClear(t *testing.T) {
	cache, _ := newTestCache(t)
	lb := NewLeaderboardCache(cache)
	ctx := context.Background()

	require.NoError(t, lb.SetScore(ctx, "mallory", 99, leaderboard.ScopesFor(shared.NewLocation("KZ", "ALA"))))
	require.NoError(t, lb.SetScore(ctx, "alice", 5, []leaderboard.Scope{leaderboard.Global(), leaderboard.Weekly()}))

	require.NoError(t, lb.RemoveEverywhere(ctx, "mallory"))
	for _, s := range leaderboard.ScopesFor(shared.NewLocation("KZ", "ALA")) {
		pos, _, err := lb.Rank(ctx, "mallory", s)
		require.NoError(t, err)
		assert.Nil(t, pos, s.Key())
	}

	require.NoError(t, lb.Clear(ctx, leaderboard.Weekly()))
	all, err := lb.All(ctx, leaderboard.Weekly())
	require.NoError(t, err)
	assert.Empty(t, all)

	all, err = lb.All(ctx, leaderboard.Global())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLeaderboardCache_ReadFailsWhenDown(t *testing.T) {
	cache, mr := newTestCache(t)
	lb := NewLeaderboardCache(cache)
	mr.Close()

	_, err := lb.Top(context.Background(), leaderboard.Global(), 10)
	assert.Error(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

type recorderStub struct {
	decisions  map[bool]int
	failOpen   int
	suspicious []string
}

func newRecorderStub() *recorderStub { return &recorderStub{decisions: map[bool]int{}} }

func (r *recorderStub) RateLimitDecision(_ string, allowed bool) { r.decisions[allowed]++ }
func (r *recorderStub) RateLimitFailOpen(string)                 { r.failOpen++ }
func (r *recorderStub) Suspicious(reason string)                 { r.suspicious = append(r.suspicious, reason) }

func TestRateLimiter_SlidingWindow(t *testing.T) {
	cache, _ := newTestCache(t)
	clock := timeutil.NewFakeClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	rec := newRecorderStub()
	rl := NewRateLimiter(cache, WithRateLimitClock(clock), WithRateLimitRecorder(rec))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(ctx, "game_submit", "user-1", 3, time.Minute), "call %d", i+1)
		clock.Advance(time.Second)
	}
	assert.False(t, rl.Allow(ctx, "game_submit", "user-1", 3, time.Minute))

	// other identifiers are independent
	assert.True(t, rl.Allow(ctx, "game_submit", "user-2", 3, time.Minute))

	clock.Advance(61 * time.Second)
	assert.True(t, rl.Allow(ctx, "game_submit", "user-1", 3, time.Minute))

	assert.Equal(t, []string{"rate_limit_game_submit_exceeded"}, rec.suspicious)
	assert.Equal(t, 1, rec.decisions[false])
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	cache, mr := newTestCache(t)
	rec := newRecorderStub()
	rl := NewRateLimiter(cache, WithRateLimitRecorder(rec))
	mr.Close()

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(context.Background(), "api", "10.0.0.1", 1, time.Minute))
	}
	assert.Equal(t, 5, rec.failOpen)
}

func TestRateLimiter_HashesIdentifier(t *testing.T) {
	cache, mr := newTestCache(t)
	rl := NewRateLimiter(cache)

	rl.Allow(context.Background(), "api", "203.0.113.9", 10, time.Minute)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.NotContains(t, keys[0], "203.0.113.9")
	assert.Contains(t, keys[0], PrefixRateLimit+"api:")
}

// ══════════════════════════════════════════════════════════════════════════════
// BOOST STORE
// ══════════════════════════════════════════════════════════════════════════════

func TestBoostStore(t *testing.T) {
	cache, mr := newTestCache(t)
	boosts := NewBoostStore(cache)
	ctx := context.Background()

	m, err := boosts.ActiveMultiplier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, m)

	require.NoError(t, boosts.Grant(ctx, "u1", 2.5, time.Hour))
	m, err = boosts.ActiveMultiplier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2.5, m)

	mr.FastForward(2 * time.Hour)
	m, err = boosts.ActiveMultiplier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, m)
}

func TestNotificationSink_Publishes(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	sub := cache.Subscribe(ctx, ChannelNotifications)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	sink := NewNotificationSink(cache)
	require.NoError(t, sink.NotifyAchievement(ctx, shared.NewAchievementUnlockedEvent("u1", "first_score", "First Blood")))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"rule_id":"first_score"`)
	assert.Contains(t, msg.Payload, `"kind":"achievement.unlocked"`)
}
