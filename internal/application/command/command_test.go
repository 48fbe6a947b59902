package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/internal/domain/season"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// Monday 2026-05-04 12:00 UTC.
var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// ──────────────────────────────────────────────────────────────────────────────
// Test doubles
// ──────────────────────────────────────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.EventType()
	}
	return out
}

type counters struct {
	mu         sync.Mutex
	suspicious map[string]int
	branches   map[string]int
}

func newCounters() *counters {
	return &counters{suspicious: map[string]int{}, branches: map[string]int{}}
}

func (c *counters) Suspicious(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspicious[reason]++
}

func (c *counters) SessionProcessed(branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.branches[branch]++
}

// conflictingStore bumps the stored version before the first n writes,
// simulating a concurrent session for the same user.
type conflictingStore struct {
	*memory.ProfileStore
	conflicts int
	writes    int
}

func (s *conflictingStore) ApplyUpdate(ctx context.Context, u arena.ProfileUpdate) (*arena.Profile, error) {
	s.writes++
	if s.conflicts > 0 {
		s.conflicts--
		if _, err := s.ProfileStore.SetLeagueStatus(ctx, arena.LeagueStable, []string{u.UserID}); err != nil {
			return nil, err
		}
	}
	return s.ProfileStore.ApplyUpdate(ctx, u)
}

type fixture struct {
	clock     *timeutil.FakeClock
	profiles  *memory.ProfileStore
	sessions  *memory.SessionStore
	catalog   *memory.ChallengeCatalog
	locations *memory.LocationDirectory
	boosts    *memory.BoostStore
	limiter   *memory.RateLimiter
	publisher *recordingPublisher
	counters  *counters
	handler   *SubmitSessionHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := timeutil.NewFakeClock(epoch)
	f := &fixture{
		clock:     clock,
		profiles:  memory.NewProfileStore(clock),
		sessions:  memory.NewSessionStore(),
		locations: memory.NewLocationDirectory(),
		boosts:    memory.NewBoostStore(clock),
		limiter:   memory.NewRateLimiter(clock),
		publisher: &recordingPublisher{},
		counters:  newCounters(),
	}

	var chs []arena.Challenge
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		chs = append(chs, arena.Challenge{ID: id, Level: arena.LevelEasy})
	}
	chs = append(chs, arena.Challenge{ID: "x1", Level: arena.LevelExpert})
	f.catalog = memory.NewChallengeCatalog(chs...)

	f.handler = f.build(f.profiles)
	return f
}

func (f *fixture) build(profiles arena.ProfileStore) *SubmitSessionHandler {
	guard := NewAntiCheatGuard(profiles, f.boosts, GuardConfig{Recorder: f.counters, Clock: f.clock})
	return NewSubmitSessionHandler(
		profiles, f.sessions, f.catalog, f.locations, f.limiter, guard, f.publisher,
		SubmitSessionConfig{Recorder: f.counters, Clock: f.clock},
	)
}

func submission(ids ...string) arena.SessionSubmission {
	return arena.SessionSubmission{
		Level:              arena.LevelEasy,
		XPEarnedClaim:      90,
		CorrectQuestionIDs: ids,
		TotalQuestions:     5,
		Duration:           30,
	}
}

func submit(f *fixture, sub arena.SessionSubmission) (*SubmitSessionResult, error) {
	return f.handler.Handle(context.Background(), SubmitSessionCommand{UserID: "u1", ClientIP: "10.0.0.1", Submission: sub})
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT SESSION
// ══════════════════════════════════════════════════════════════════════════════

func TestSubmitSession_AntiFarmingRatio(t *testing.T) {
	f := newFixture(t)

	first, err := submit(f, submission("a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(90), first.EffectiveXP)

	res, err := submit(f, submission("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, uint64(60), res.EffectiveXP)
	assert.Equal(t, uint64(2), res.Stats.Score)
	assert.Equal(t, uint64(3), res.Stats.RankPoints)
	assert.Equal(t, uint64(150), res.Stats.XP)
	assert.Equal(t, 3, res.Stats.CompletedChallenges)
	assert.Equal(t, 2, f.counters.branches[BranchNew])
}

func TestSubmitSession_ReplayIsTraining(t *testing.T) {
	f := newFixture(t)
	sub := submission("a", "b")

	first, err := submit(f, sub)
	require.NoError(t, err)
	replay, err := submit(f, sub)
	require.NoError(t, err)

	assert.Equal(t, uint64(90), first.EffectiveXP)
	assert.Equal(t, uint64(45), replay.EffectiveXP)
	assert.True(t, replay.Stats.Training)
	assert.Equal(t, uint64(0), replay.Stats.Score)
	assert.Equal(t, first.Stats.RankPoints, replay.Stats.RankPoints)
	assert.Equal(t, first.Stats.CompletedChallenges, replay.Stats.CompletedChallenges)
	assert.Equal(t, uint32(2), replay.Stats.GamesPlayed)
	assert.Equal(t, 1, f.counters.branches[BranchTraining])

	records := f.sessions.ForUser("u1")
	require.Len(t, records, 2)
	assert.True(t, records[1].IsSuspicious)
}

func TestSubmitSession_EmptyClaim(t *testing.T) {
	f := newFixture(t)

	res, err := submit(f, submission())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.EffectiveXP)
	assert.Equal(t, uint32(0), res.Stats.Wins)
	assert.Equal(t, uint32(1), res.Stats.GamesPlayed)
	assert.Equal(t, 1, f.counters.branches[BranchEmpty])
}

func TestSubmitSession_GuardRejectsFastSession(t *testing.T) {
	f := newFixture(t)
	sub := submission("a")
	sub.Duration = 3

	_, err := submit(f, sub)
	require.ErrorIs(t, err, shared.ErrAnswerTooFast)
	assert.True(t, shared.IsAntiCheat(err))

	p, err := f.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), p.AntiCheat.SuspiciousAttempts)
	assert.Equal(t, uint64(0), p.XP)
	assert.Equal(t, 1, f.counters.suspicious[ReasonAnswerTooFast])
	assert.Empty(t, f.publisher.types())
}

func TestSubmitSession_GuardRejectsXPClaim(t *testing.T) {
	f := newFixture(t)
	sub := submission("a")
	sub.XPEarnedClaim = 251

	_, err := submit(f, sub)
	assert.ErrorIs(t, err, shared.ErrXPClaimTooHigh)

	// an active boost raises the ceiling
	require.NoError(t, f.boosts.Grant(context.Background(), "u1", 2, time.Hour))
	_, err = submit(f, sub)
	assert.NoError(t, err)
}

func TestSubmitSession_LockoutAfterRepeatedViolations(t *testing.T) {
	f := newFixture(t)
	fast := submission("a")
	fast.Duration = 1

	for i := 0; i < 5; i++ {
		_, err := submit(f, fast)
		require.ErrorIs(t, err, shared.ErrAnswerTooFast)
	}

	_, err := submit(f, submission("a"))
	require.ErrorIs(t, err, shared.ErrProfileLocked)
	assert.Equal(t, 1, f.counters.suspicious[ReasonLockedOutReplay])

	p, err := f.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), p.AntiCheat.SuspiciousAttempts)
	require.NotNil(t, p.AntiCheat.LockedUntil)
	assert.Equal(t, epoch.Add(time.Hour), *p.AntiCheat.LockedUntil)

	f.clock.Advance(time.Hour + time.Second)
	_, err = submit(f, submission("a"))
	assert.NoError(t, err)
}

func TestSubmitSession_RateLimited(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		_, err := submit(f, submission())
		require.NoError(t, err)
	}
	_, err := submit(f, submission())
	assert.ErrorIs(t, err, shared.ErrSubmitRateExceeded)
}

func TestSubmitSession_RateLimitedBeforeValidation(t *testing.T) {
	f := newFixture(t)
	bad := submission()
	bad.TotalQuestions = 0
	for i := 0; i < 10; i++ {
		_, err := submit(f, bad)
		require.True(t, shared.IsValidation(err))
	}

	_, err := submit(f, bad)
	assert.ErrorIs(t, err, shared.ErrSubmitRateExceeded)
	_, err = submit(f, submission("a"))
	assert.ErrorIs(t, err, shared.ErrSubmitRateExceeded)
}

func TestSubmitSession_ConcurrentSubmissionsCreditOnce(t *testing.T) {
	f := newFixture(t)
	guard := NewAntiCheatGuard(f.profiles, f.boosts, GuardConfig{Recorder: f.counters, Clock: f.clock})
	f.handler = NewSubmitSessionHandler(
		f.profiles, f.sessions, f.catalog, f.locations, f.limiter, guard, f.publisher,
		SubmitSessionConfig{Recorder: f.counters, Clock: f.clock, SubmitLimit: 1000, MaxWriteAttempts: 1000},
	)

	const workers, rounds = 8, 50
	var (
		mu     sync.Mutex
		scores []uint64
		wg     sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				res, err := submit(f, submission("a", "b", "c"))
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				scores = append(scores, res.Stats.Score)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, scores, workers*rounds)
	credited := 0
	for _, s := range scores {
		if s > 0 {
			credited++
			assert.Equal(t, uint64(3), s)
		}
	}
	assert.Equal(t, 1, credited)

	p, err := f.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), p.RankPoints)
	assert.Equal(t, 3, p.CompletedChallenges.Len())
	assert.Equal(t, uint32(workers*rounds), p.GamesPlayed)
}

func TestSubmitSession_CatalogValidation(t *testing.T) {
	f := newFixture(t)

	_, err := submit(f, submission("zz"))
	require.ErrorIs(t, err, shared.ErrUnknownChallenge)
	assert.True(t, shared.IsValidation(err))

	_, err = submit(f, submission("x1"))
	assert.True(t, shared.IsValidation(err))

	// an unavailable catalog skips the check
	f.catalog.SetFailure(errors.New("mongo down"))
	_, err = submit(f, submission("zz"))
	assert.NoError(t, err)
}

func TestSubmitSession_RetriesVersionConflict(t *testing.T) {
	f := newFixture(t)
	store := &conflictingStore{ProfileStore: f.profiles, conflicts: 2}
	f.handler = f.build(store)

	res, err := submit(f, submission("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(90), res.EffectiveXP)
	assert.Equal(t, 3, store.writes)

	p, err := f.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(90), p.XP)
	assert.Equal(t, uint32(1), p.GamesPlayed)
}

func TestSubmitSession_GivesUpAfterMaxConflicts(t *testing.T) {
	f := newFixture(t)
	store := &conflictingStore{ProfileStore: f.profiles, conflicts: 100}
	f.handler = f.build(store)

	_, err := submit(f, submission("a"))
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, 5, store.writes)
}

func TestSubmitSession_AchievementsAndEvents(t *testing.T) {
	f := newFixture(t)
	f.locations.Set("u1", shared.NewLocation("co", "ant"))

	res, err := submit(f, submission("a", "b", "c", "d", "e"))
	require.NoError(t, err)

	ids := make([]string, len(res.UnlockedAchievements))
	for i, a := range res.UnlockedAchievements {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"first_score", "five_correct", "perfect_session"}, ids)

	assert.Equal(t, []shared.EventType{
		shared.EventAchievementUnlocked,
		shared.EventAchievementUnlocked,
		shared.EventAchievementUnlocked,
		shared.EventGameCompleted,
	}, f.publisher.types())

	completed, ok := f.publisher.events[3].(shared.GameCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(5), completed.RankPoints)
	assert.Equal(t, "CO", completed.Country)
	assert.Equal(t, "ANT", completed.Region)

	// unlocked once only
	res, err = submit(f, submission("a", "b", "c", "d", "e"))
	require.NoError(t, err)
	assert.Empty(t, res.UnlockedAchievements)

	p, err := f.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, p.Achievements.Has("perfect_session"))
	assert.Equal(t, "CO", p.Location.Country)
}

func TestSubmitSession_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.handler.Handle(context.Background(), SubmitSessionCommand{UserID: "", Submission: submission()})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	bad := submission()
	bad.TotalQuestions = 0
	_, err = submit(f, bad)
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROPAGATE SCORE / SHADOW BAN
// ══════════════════════════════════════════════════════════════════════════════

type fakeBoard struct {
	scores  map[string]uint64
	locs    map[string]shared.Location
	removed []string
	err     error
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{scores: map[string]uint64{}, locs: map[string]shared.Location{}}
}

func (b *fakeBoard) UpdateScore(_ context.Context, userID string, points uint64, loc shared.Location) error {
	if b.err != nil {
		return b.err
	}
	b.scores[userID] = points
	b.locs[userID] = loc
	return nil
}

func (b *fakeBoard) GetTop(context.Context, leaderboard.Scope, int) ([]leaderboard.RankingEntry, leaderboard.Source, error) {
	return nil, leaderboard.SourceCache, nil
}

func (b *fakeBoard) GetUserRank(context.Context, string, leaderboard.Scope) (leaderboard.UserRank, error) {
	return leaderboard.UserRank{}, nil
}

func (b *fakeBoard) RemoveEverywhere(_ context.Context, userID string) error {
	b.removed = append(b.removed, userID)
	return b.err
}

func seed(store *memory.ProfileStore, id string, points uint64, loc shared.Location, banned bool) {
	p := arena.NewProfile(id, epoch)
	p.RankPoints = points
	p.Location = loc
	p.AntiCheat.ShadowBanned = banned
	store.Put(p)
}

func TestPropagateScore(t *testing.T) {
	store := memory.NewProfileStore(timeutil.NewFakeClock(epoch))
	board := newFakeBoard()
	h := NewPropagateScoreHandler(store, board, PropagateScoreConfig{})
	ctx := context.Background()

	seed(store, "u1", 7, shared.NewLocation("CO", "ANT"), false)
	seed(store, "u2", 3, shared.Location{}, true)

	res, err := h.Handle(ctx, PropagateScoreCommand{UserID: "u1", RankPoints: 5})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), res.RankPoints, "a stale job never lowers the score")
	assert.Equal(t, shared.NewLocation("CO", "ANT"), board.locs["u1"])

	res, err = h.Handle(ctx, PropagateScoreCommand{UserID: "u2", RankPoints: 3})
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
	assert.NotContains(t, board.scores, "u2")

	_, err = h.Handle(ctx, PropagateScoreCommand{UserID: "ghost", RankPoints: 1})
	assert.True(t, shared.IsNotFound(err))

	board.err = errors.New("redis down")
	_, err = h.Handle(ctx, PropagateScoreCommand{UserID: "u1", RankPoints: 9})
	assert.Error(t, err)
}

func TestSetShadowBan(t *testing.T) {
	store := memory.NewProfileStore(timeutil.NewFakeClock(epoch))
	board := newFakeBoard()
	h := NewSetShadowBanHandler(store, board, nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, SetShadowBanCommand{UserID: "u1", Banned: true, Reason: "bot"})
	require.NoError(t, err)
	assert.True(t, res.RemovedFromBoards)
	assert.Equal(t, []string{"u1"}, board.removed)

	p, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, p.Visible())

	res, err = h.Handle(ctx, SetShadowBanCommand{UserID: "u1", Banned: false})
	require.NoError(t, err)
	assert.False(t, res.RemovedFromBoards)
	assert.Len(t, board.removed, 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY RESET
// ══════════════════════════════════════════════════════════════════════════════

type resetFixture struct {
	clock     *timeutil.FakeClock
	cache     *memory.LeaderboardCache
	profiles  *memory.ProfileStore
	seasons   *memory.SeasonRepository
	publisher *recordingPublisher
	handler   *WeeklyResetHandler
}

func newResetFixture() *resetFixture {
	clock := timeutil.NewFakeClock(epoch)
	f := &resetFixture{
		clock:     clock,
		cache:     memory.NewLeaderboardCache(),
		profiles:  memory.NewProfileStore(clock),
		seasons:   memory.NewSeasonRepository(),
		publisher: &recordingPublisher{},
	}
	f.handler = NewWeeklyResetHandler(f.cache, f.profiles, f.seasons, f.publisher, WeeklyResetConfig{Clock: clock})
	return f
}

func TestWeeklyReset_RotatesHundredPlayers(t *testing.T) {
	f := newResetFixture()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("p%03d", i)
		seed(f.profiles, id, uint64(i), shared.Location{}, false)
		require.NoError(t, f.cache.SetScore(ctx, id, uint64(1000-i), []leaderboard.Scope{leaderboard.Weekly()}))
	}

	res, err := f.handler.Handle(ctx, WeeklyResetCommand{})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Promoted)
	assert.Equal(t, 60, res.Stable)
	assert.Equal(t, 20, res.Demoted)

	top, err := f.profiles.Get(ctx, "p000")
	require.NoError(t, err)
	assert.Equal(t, arena.LeaguePromoted, top.LeagueStatus)
	mid, err := f.profiles.Get(ctx, "p050")
	require.NoError(t, err)
	assert.Equal(t, arena.LeagueStable, mid.LeagueStatus)
	bottom, err := f.profiles.Get(ctx, "p099")
	require.NoError(t, err)
	assert.Equal(t, arena.LeagueDemoted, bottom.LeagueStatus)

	weekly, err := f.cache.All(ctx, leaderboard.Weekly())
	require.NoError(t, err)
	assert.Empty(t, weekly)

	assert.Equal(t, []shared.EventType{shared.EventSeasonRotated}, f.publisher.types())

	// a retried job finds the board empty and changes nothing
	res, err = f.handler.Handle(ctx, WeeklyResetCommand{})
	require.NoError(t, err)
	assert.Zero(t, res.Promoted+res.Stable+res.Demoted)
	top, err = f.profiles.Get(ctx, "p000")
	require.NoError(t, err)
	assert.Equal(t, arena.LeaguePromoted, top.LeagueStatus)
	assert.Len(t, f.publisher.types(), 1)
}

func TestWeeklyReset_AdvancesSeason(t *testing.T) {
	f := newResetFixture()
	ctx := context.Background()

	res, err := f.handler.Handle(ctx, WeeklyResetCommand{})
	require.NoError(t, err)
	require.NotNil(t, res.Season)
	assert.True(t, res.SeasonAdvanced)
	assert.Equal(t, 1, res.Season.Number)
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), res.Season.StartsAt)

	// mid-season: nothing to advance
	res, err = f.handler.Handle(ctx, WeeklyResetCommand{})
	require.NoError(t, err)
	assert.False(t, res.SeasonAdvanced)
	assert.Equal(t, 1, res.Season.Number)

	f.clock.Advance(7 * 24 * time.Hour)
	res, err = f.handler.Handle(ctx, WeeklyResetCommand{})
	require.NoError(t, err)
	assert.True(t, res.SeasonAdvanced)
	assert.Equal(t, 2, res.Season.Number)

	active, err := f.seasons.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active.Number)
	first, err := f.seasons.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, first.IsActive)
}

func TestWeeklyReset_SkipsMissedSeasons(t *testing.T) {
	f := newResetFixture()
	ctx := context.Background()

	s1, err := season.New(1, epoch.Add(-30*24*time.Hour), epoch.Add(-23*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.seasons.Create(ctx, s1))
	require.NoError(t, f.seasons.Activate(ctx, 1))

	res, err := f.handler.Handle(ctx, WeeklyResetCommand{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Season.Number)
	assert.False(t, res.Season.HasEnded(epoch))
}

func TestWeeklyReset_CacheFailureLeavesBoard(t *testing.T) {
	f := newResetFixture()
	f.cache.SetFailure(errors.New("down"))

	_, err := f.handler.Handle(context.Background(), WeeklyResetCommand{})
	assert.Error(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func TestRebuildLeaderboard_SeedsEveryScopeInBatches(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewFakeClock(epoch.Add(2 * 24 * time.Hour))
	store := memory.NewProfileStore(clock)
	cache := memory.NewLeaderboardCache()

	active := epoch.Add(time.Hour)
	stale := epoch.Add(-72 * time.Hour)
	for i, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		p := arena.NewProfile(id, epoch)
		p.RankPoints = uint64((i + 1) * 10)
		p.Location = shared.NewLocation("CO", "")
		if i%2 == 0 {
			p.LastGameAt = &active
		} else {
			p.LastGameAt = &stale
		}
		store.Put(p)
	}
	seed(store, "banned", 500, shared.Location{}, true)
	seed(store, "idle", 0, shared.Location{}, false)

	// Only u1 survived a flush; banned was never removed.
	require.NoError(t, cache.SetScore(ctx, "u1", 10, []leaderboard.Scope{leaderboard.Global()}))
	require.NoError(t, cache.SetScore(ctx, "banned", 500, []leaderboard.Scope{leaderboard.Global(), leaderboard.Weekly()}))

	h := NewRebuildLeaderboardHandler(cache, store, RebuildLeaderboardConfig{BatchSize: 2, Clock: clock})
	res, err := h.Handle(ctx, RebuildLeaderboardCommand{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Profiles)
	assert.Equal(t, 3, res.Weekly)
	assert.Equal(t, 1, res.Pruned)

	global, err := cache.All(ctx, leaderboard.Global())
	require.NoError(t, err)
	require.Len(t, global, 5)
	assert.Equal(t, "u5", global[0].UserID)

	weekly, err := cache.All(ctx, leaderboard.Weekly())
	require.NoError(t, err)
	ids := make([]string, len(weekly))
	for i, m := range weekly {
		ids[i] = m.UserID
	}
	assert.Equal(t, []string{"u5", "u3", "u1"}, ids)

	country, err := cache.All(ctx, leaderboard.Country("CO"))
	require.NoError(t, err)
	assert.Len(t, country, 5)

	pos, _, err := cache.Rank(ctx, "banned", leaderboard.Global())
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestRebuildLeaderboard_CacheFailureAborts(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewFakeClock(epoch)
	store := memory.NewProfileStore(clock)
	seed(store, "u1", 10, shared.Location{}, false)
	cache := memory.NewLeaderboardCache()
	cache.SetFailure(errors.New("redis down"))

	h := NewRebuildLeaderboardHandler(cache, store, RebuildLeaderboardConfig{Clock: clock})
	_, err := h.Handle(ctx, RebuildLeaderboardCommand{})
	assert.ErrorContains(t, err, "redis down")
}
