package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/internal/domain/season"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func TestProfileStore_VersionedUpdate(t *testing.T) {
	store := NewProfileStore(timeutil.NewFakeClock(epoch))
	ctx := context.Background()

	p, err := store.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Version)

	u := arena.NewSessionUpdate(p, arena.Reward{XP: 60, Score: 2, NewIDs: []string{"a", "b"}}, epoch, "10.0.0.1", nil)
	next, err := store.ApplyUpdate(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next.Version)
	assert.Equal(t, uint64(60), next.XP)

	// stale version
	_, err = store.ApplyUpdate(ctx, u)
	assert.ErrorIs(t, err, shared.ErrVersionConflict)

	// returned copies do not alias storage
	next.CompletedChallenges.Add("z")
	again, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, again.CompletedChallenges.Has("z"))
}

func TestProfileStore_RecordViolationLocks(t *testing.T) {
	store := NewProfileStore(timeutil.NewFakeClock(epoch))
	ctx := context.Background()
	_, err := store.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	v := arena.Violation{UserID: "u1", At: epoch, LockThreshold: 2, LockUntil: epoch.Add(time.Hour)}

	flags, err := store.RecordViolation(ctx, v)
	require.NoError(t, err)
	assert.False(t, flags.IsLocked(epoch))

	flags, err = store.RecordViolation(ctx, v)
	require.NoError(t, err)
	assert.True(t, flags.IsLocked(epoch))
	assert.Equal(t, uint32(2), flags.SuspiciousAttempts)

	p, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Version)
}

func TestProfileStore_TopByRankPoints(t *testing.T) {
	store := NewProfileStore(timeutil.NewFakeClock(epoch))
	for id, pts := range map[string]uint64{"a": 10, "b": 30, "c": 10, "d": 50} {
		p := arena.NewProfile(id, epoch)
		p.RankPoints = pts
		p.Location = shared.NewLocation("CO", "")
		store.Put(p)
	}
	banned := arena.NewProfile("d", epoch)
	banned.RankPoints = 50
	banned.AntiCheat.ShadowBanned = true
	store.Put(banned)

	got, err := store.TopByRankPoints(context.Background(), arena.RankFilter{Country: "CO"}, 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.UserID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestProfileStore_ScanRanked(t *testing.T) {
	store := NewProfileStore(timeutil.NewFakeClock(epoch))
	for id, pts := range map[string]uint64{"a": 10, "b": 0, "c": 7, "d": 3, "e": 1} {
		p := arena.NewProfile(id, epoch)
		p.RankPoints = pts
		store.Put(p)
	}
	banned := arena.NewProfile("d", epoch)
	banned.RankPoints = 3
	banned.AntiCheat.ShadowBanned = true
	store.Put(banned)

	ctx := context.Background()
	first, err := store.ScanRanked(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].UserID)
	assert.Equal(t, "c", first[1].UserID)

	rest, err := store.ScanRanked(ctx, "c", 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "e", rest[0].UserID)
}

func TestLeaderboardCache_OrderingMatchesSortedSet(t *testing.T) {
	cache := NewLeaderboardCache()
	ctx := context.Background()
	g := []leaderboard.Scope{leaderboard.Global()}

	require.NoError(t, cache.SetScore(ctx, "a", 5, g))
	require.NoError(t, cache.SetScore(ctx, "b", 5, g))
	require.NoError(t, cache.SetScore(ctx, "c", 9, g))

	top, err := cache.Top(ctx, leaderboard.Global(), 10)
	require.NoError(t, err)
	assert.Equal(t, []leaderboard.ScoredMember{
		{UserID: "c", Score: 9},
		{UserID: "b", Score: 5},
		{UserID: "a", Score: 5},
	}, top)

	pos, _, err := cache.Rank(ctx, "a", leaderboard.Global())
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 3, *pos)

	cache.SetFailure(errors.New("down"))
	_, err = cache.Top(ctx, leaderboard.Global(), 10)
	assert.Error(t, err)
}

func TestRateLimiter_Window(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch)
	rl := NewRateLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(ctx, "game_submit", "u1", 3, time.Minute))
	}
	assert.False(t, rl.Allow(ctx, "game_submit", "u1", 3, time.Minute))

	clock.Advance(61 * time.Second)
	assert.True(t, rl.Allow(ctx, "game_submit", "u1", 3, time.Minute))
}

func TestSeasonRepository_SingleActive(t *testing.T) {
	repo := NewSeasonRepository()
	ctx := context.Background()

	s1, _ := season.New(1, epoch, epoch.Add(7*24*time.Hour))
	s2 := s1.Next()
	require.NoError(t, repo.Create(ctx, s1))
	require.NoError(t, repo.Create(ctx, s2))
	assert.ErrorIs(t, repo.Create(ctx, s1), shared.ErrSeasonExists)

	require.NoError(t, repo.Activate(ctx, 1))
	require.NoError(t, repo.Activate(ctx, 2))

	active, err := repo.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active.Number)

	first, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, first.IsActive)

	assert.ErrorIs(t, repo.Activate(ctx, 42), shared.ErrSeasonNotFound)
}

func TestBoostStore_Expires(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch)
	boosts := NewBoostStore(clock)
	ctx := context.Background()

	require.NoError(t, boosts.Grant(ctx, "u1", 2, time.Hour))
	m, _ := boosts.ActiveMultiplier(ctx, "u1")
	assert.Equal(t, 2.0, m)

	clock.Advance(time.Hour)
	m, _ = boosts.ActiveMultiplier(ctx, "u1")
	assert.Equal(t, 1.0, m)
}
