// Package service adapts infrastructure components to the ports the
// application layer consumes.
package service

import (
	"context"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/circuitbreaker"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// Fallback reasons reported to LeaderboardRecorder.
const (
	FallbackEmpty       = "empty"
	FallbackUnavailable = "unavailable"
	FallbackCircuitOpen = "circuit_open"
)

// LeaderboardRecorder receives degraded-path counters.
type LeaderboardRecorder interface {
	LeaderboardFallback(scopeKind, reason string)
	CacheWriteFailure()
}

// LeaderboardService serves rankings from the sorted-set cache and falls
// back to the profile store whenever the cache cannot answer.
type LeaderboardService struct {
	cache    leaderboard.Cache
	profiles arena.ProfileStore
	breaker  *circuitbreaker.CircuitBreaker
	recorder LeaderboardRecorder
	logger   *logger.Logger
	clock    timeutil.Clock
	weekLoc  *time.Location
	timeout  time.Duration
}

var _ leaderboard.Board = (*LeaderboardService)(nil)

// LeaderboardServiceConfig contains dependencies for LeaderboardService.
type LeaderboardServiceConfig struct {
	Cache    leaderboard.Cache
	Profiles arena.ProfileStore

	// Breaker guards cache calls; nil uses circuitbreaker.CacheBreaker.
	Breaker  *circuitbreaker.CircuitBreaker
	Recorder LeaderboardRecorder
	Logger   *logger.Logger
	Clock    timeutil.Clock

	// WeekLocation is the timezone weeks start in for the weekly fallback.
	WeekLocation *time.Location

	// CacheTimeout bounds a single cache call.
	CacheTimeout time.Duration
}

// NewLeaderboardService creates a new LeaderboardService.
func NewLeaderboardService(cfg LeaderboardServiceConfig) *LeaderboardService {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	log := cfg.Logger.With(logger.Component("leaderboard"))
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("cache breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.SystemClock{}
	}
	if cfg.WeekLocation == nil {
		cfg.WeekLocation = time.UTC
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = 300 * time.Millisecond
	}
	return &LeaderboardService{
		cache:    cfg.Cache,
		profiles: cfg.Profiles,
		breaker:  cfg.Breaker,
		recorder: cfg.Recorder,
		logger:   log,
		clock:    cfg.Clock,
		weekLoc:  cfg.WeekLocation,
		timeout:  cfg.CacheTimeout,
	}
}

func (s *LeaderboardService) guarded(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return fn(ctx)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITES
// ══════════════════════════════════════════════════════════════════════════════

// UpdateScore implements leaderboard.Board. Failures are logged and counted;
// the error is returned for callers that retry.
func (s *LeaderboardService) UpdateScore(ctx context.Context, userID string, rankPoints uint64, loc shared.Location) error {
	scopes := leaderboard.ScopesFor(loc)
	err := s.guarded(ctx, func(ctx context.Context) error {
		return s.cache.SetScore(ctx, userID, rankPoints, scopes)
	})
	if err != nil {
		s.writeFailed("update score", userID, err)
		return err
	}
	return nil
}

// RemoveEverywhere implements leaderboard.Board.
func (s *LeaderboardService) RemoveEverywhere(ctx context.Context, userID string) error {
	err := s.guarded(ctx, func(ctx context.Context) error {
		return s.cache.RemoveEverywhere(ctx, userID)
	})
	if err != nil {
		s.writeFailed("remove user", userID, err)
		return err
	}
	return nil
}

func (s *LeaderboardService) writeFailed(op, userID string, err error) {
	if s.recorder != nil {
		s.recorder.CacheWriteFailure()
	}
	s.logger.Warn("leaderboard cache write failed",
		logger.Operation(op),
		logger.UserID(userID),
		logger.Err(err),
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

// GetTop implements leaderboard.Board.
func (s *LeaderboardService) GetTop(ctx context.Context, scope leaderboard.Scope, limit int) ([]leaderboard.RankingEntry, leaderboard.Source, error) {
	limit = leaderboard.ClampLimit(limit)

	var members []leaderboard.ScoredMember
	err := s.guarded(ctx, func(ctx context.Context) error {
		var err error
		members, err = s.cache.Top(ctx, scope, limit)
		return err
	})

	switch {
	case err != nil:
		s.fellBack(scope, fallbackReason(err), err)
		return s.topFromStore(ctx, scope, limit)
	case len(members) == 0:
		s.fellBack(scope, FallbackEmpty, nil)
		return s.topFromStore(ctx, scope, limit)
	}

	return s.hydrate(ctx, members), leaderboard.SourceCache, nil
}

// GetUserRank implements leaderboard.Board. When the cache is unreachable the
// position is unknown and the score comes from the profile store.
func (s *LeaderboardService) GetUserRank(ctx context.Context, userID string, scope leaderboard.Scope) (leaderboard.UserRank, error) {
	var (
		pos   *int
		score uint64
	)
	err := s.guarded(ctx, func(ctx context.Context) error {
		var err error
		pos, score, err = s.cache.Rank(ctx, userID, scope)
		return err
	})
	if err == nil {
		return leaderboard.UserRank{Position: pos, Score: score}, nil
	}

	s.fellBack(scope, fallbackReason(err), err)
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return leaderboard.UserRank{}, nil
		}
		return leaderboard.UserRank{}, unavailable("Rank", err)
	}
	if scope.Kind == leaderboard.ScopeWeekly {
		return leaderboard.UserRank{}, nil
	}
	return leaderboard.UserRank{Score: p.RankPoints}, nil
}

func (s *LeaderboardService) topFromStore(ctx context.Context, scope leaderboard.Scope, limit int) ([]leaderboard.RankingEntry, leaderboard.Source, error) {
	weekStart := timeutil.StartOfWeek(s.clock.Now(), s.weekLoc)
	profiles, err := s.profiles.TopByRankPoints(ctx, scope.Filter(weekStart), limit)
	if err != nil {
		return nil, leaderboard.SourceStore, unavailable("TopByRankPoints", err)
	}

	entries := make([]leaderboard.RankingEntry, 0, len(profiles))
	for i, p := range profiles {
		entries = append(entries, entryFor(i+1, p.UserID, p.RankPoints, p))
	}
	return entries, leaderboard.SourceStore, nil
}

// hydrate attaches display data. Positions follow cache order so they agree
// with GetUserRank; banned players leave the cache when the ban is applied.
func (s *LeaderboardService) hydrate(ctx context.Context, members []leaderboard.ScoredMember) []leaderboard.RankingEntry {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}

	profiles, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		s.logger.Warn("leaderboard hydration failed", logger.Err(err))
		profiles = nil
	}

	entries := make([]leaderboard.RankingEntry, 0, len(members))
	for i, m := range members {
		entries = append(entries, entryFor(i+1, m.UserID, m.Score, profiles[m.UserID]))
	}
	return entries
}

// unavailable marks a failed store read after the cache could not answer.
func unavailable(op string, err error) error {
	return shared.WrapError("leaderboard", op, shared.ErrServiceUnavailable, "ranking temporarily unavailable", err)
}

func entryFor(pos int, userID string, score uint64, p *arena.Profile) leaderboard.RankingEntry {
	e := leaderboard.RankingEntry{
		Position: pos,
		UserID:   userID,
		Score:    score,
		Level:    arena.LevelEasy,
	}
	if p != nil {
		e.DisplayName = p.DisplayName
		e.AvatarURL = p.AvatarURL
		e.Level = p.Level
		e.Country = p.Location.Country
		e.Region = p.Location.Region
	}
	return e
}

func (s *LeaderboardService) fellBack(scope leaderboard.Scope, reason string, err error) {
	if s.recorder != nil {
		s.recorder.LeaderboardFallback(string(scope.Kind), reason)
	}
	if err != nil {
		s.logger.Warn("leaderboard cache unavailable, reading profile store",
			logger.Scope(scope.Key()),
			logger.String("reason", reason),
			logger.Err(err),
		)
	}
}

func fallbackReason(err error) string {
	if circuitbreaker.IsRejection(err) {
		return FallbackCircuitOpen
	}
	return FallbackUnavailable
}
