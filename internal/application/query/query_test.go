package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/arena-engine/internal/infrastructure/service"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

var epoch = time.Date(2026, 5, 6, 12, 0, 0, 0, time.UTC)

type env struct {
	clock    *timeutil.FakeClock
	profiles *memory.ProfileStore
	cache    *memory.LeaderboardCache
	board    *service.LeaderboardService
}

func newEnv() env {
	clock := timeutil.NewFakeClock(epoch)
	e := env{
		clock:    clock,
		profiles: memory.NewProfileStore(clock),
		cache:    memory.NewLeaderboardCache(),
	}
	e.board = service.NewLeaderboardService(service.LeaderboardServiceConfig{
		Cache:    e.cache,
		Profiles: e.profiles,
		Clock:    clock,
	})
	return e
}

func (e env) player(t *testing.T, id string, points uint64, loc shared.Location) {
	t.Helper()
	p := arena.NewProfile(id, epoch)
	p.DisplayName = id
	p.RankPoints = points
	p.Location = loc
	e.profiles.Put(p)
	require.NoError(t, e.board.UpdateScore(context.Background(), id, points, loc))
}

func TestGetRanking(t *testing.T) {
	e := newEnv()
	e.player(t, "a", 10, shared.NewLocation("CO", "ANT"))
	e.player(t, "b", 30, shared.NewLocation("CO", "DC"))
	e.player(t, "c", 20, shared.NewLocation("US", ""))

	h := NewGetRankingHandler(e.board)
	ctx := context.Background()

	res, err := h.Handle(ctx, GetRankingQuery{})
	require.NoError(t, err)
	assert.Equal(t, leaderboard.Global(), res.Scope)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "b", res.Entries[0].UserID)
	assert.Equal(t, leaderboard.SourceCache, res.Source)

	res, err = h.Handle(ctx, GetRankingQuery{Scope: "country", Country: "co", Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "b", res.Entries[0].UserID)

	res, err = h.Handle(ctx, GetRankingQuery{Scope: "state", Country: "CO", State: "ANT"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "a", res.Entries[0].UserID)
}

func TestGetRanking_InvalidScope(t *testing.T) {
	h := NewGetRankingHandler(newEnv().board)

	_, err := h.Handle(context.Background(), GetRankingQuery{Scope: "galaxy"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), GetRankingQuery{Scope: "country"})
	assert.True(t, shared.IsValidation(err))
}

func TestGetRanking_EmptyBoardIsEmptyList(t *testing.T) {
	h := NewGetRankingHandler(newEnv().board)

	res, err := h.Handle(context.Background(), GetRankingQuery{Scope: "weekly"})
	require.NoError(t, err)
	assert.NotNil(t, res.Entries)
	assert.Empty(t, res.Entries)
}

func TestGetArenaStatus(t *testing.T) {
	e := newEnv()
	e.player(t, "a", 10, shared.Location{})
	e.player(t, "b", 30, shared.Location{})
	h := NewGetArenaStatusHandler(e.profiles, e.board, e.clock)
	ctx := context.Background()

	res, err := h.Handle(ctx, GetArenaStatusQuery{UserID: "a"})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.Profile.RankPoints)
	require.NotNil(t, res.Rank.Position)
	assert.Equal(t, 2, *res.Rank.Position)
	assert.Equal(t, uint64(10), res.Rank.Score)
}

func TestGetArenaStatus_NeverPlayed(t *testing.T) {
	e := newEnv()
	h := NewGetArenaStatusHandler(e.profiles, e.board, e.clock)

	res, err := h.Handle(context.Background(), GetArenaStatusQuery{UserID: "newbie"})
	require.NoError(t, err)
	assert.Equal(t, arena.LevelEasy, res.Profile.Level)
	assert.Equal(t, arena.LeagueNone, res.Profile.LeagueStatus)
	assert.Empty(t, res.Profile.Achievements)
	assert.Nil(t, res.Rank.Position)

	_, err = e.profiles.Get(context.Background(), "newbie")
	assert.True(t, shared.IsNotFound(err), "status reads never create profiles")
}

func TestGetArenaStatus_LockoutShownWhileActive(t *testing.T) {
	e := newEnv()
	p := arena.NewProfile("a", epoch)
	until := epoch.Add(time.Hour)
	p.AntiCheat.LockedUntil = &until
	e.profiles.Put(p)
	h := NewGetArenaStatusHandler(e.profiles, e.board, e.clock)

	res, err := h.Handle(context.Background(), GetArenaStatusQuery{UserID: "a"})
	require.NoError(t, err)
	require.NotNil(t, res.Profile.LockedUntil)

	e.clock.Advance(2 * time.Hour)
	res, err = h.Handle(context.Background(), GetArenaStatusQuery{UserID: "a"})
	require.NoError(t, err)
	assert.Nil(t, res.Profile.LockedUntil)
}
