package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD COMMAND
// Re-seeds every scope from the profile store, so a flushed or partially
// populated cache converges back to the durable rank points.
// ══════════════════════════════════════════════════════════════════════════════

// RebuildLeaderboardCommand triggers a full rebuild.
type RebuildLeaderboardCommand struct{}

// RebuildLeaderboardResult contains statistics from a rebuild run.
type RebuildLeaderboardResult struct {
	StartedAt time.Time
	Duration  time.Duration

	// Profiles is the number of ranked profiles written.
	Profiles int

	// Weekly is how many of them were also written to the weekly scope.
	Weekly int

	// Pruned counts shadow-banned players found in the cache and removed.
	Pruned int
}

// RebuildLeaderboardHandler handles the RebuildLeaderboardCommand.
type RebuildLeaderboardHandler struct {
	cache    leaderboard.Cache
	profiles arena.ProfileStore
	config   RebuildLeaderboardConfig
	logger   *logger.Logger
}

// RebuildLeaderboardConfig contains configuration for the handler.
type RebuildLeaderboardConfig struct {
	// BatchSize is the profile page size.
	BatchSize int

	// Timeout is the maximum duration for one rebuild.
	Timeout time.Duration

	// WeekLocation anchors the weekly scope: only players active since the
	// start of the current week are written to it.
	WeekLocation *time.Location

	Logger *logger.Logger
	Clock  timeutil.Clock
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		BatchSize:    500,
		Timeout:      5 * time.Minute,
		WeekLocation: time.UTC,
	}
}

// NewRebuildLeaderboardHandler creates the handler.
func NewRebuildLeaderboardHandler(cache leaderboard.Cache, profiles arena.ProfileStore, config RebuildLeaderboardConfig) *RebuildLeaderboardHandler {
	defaults := DefaultRebuildLeaderboardConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.WeekLocation == nil {
		config.WeekLocation = defaults.WeekLocation
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock{}
	}
	return &RebuildLeaderboardHandler{
		cache:    cache,
		profiles: profiles,
		config:   config,
		logger:   config.Logger.With(logger.Component("rebuild_leaderboard")),
	}
}

// Handle overwrites every ranked profile's score in the scopes its location
// belongs to, then removes shadow-banned players still present in the global
// scope. A cache failure aborts the run so the job is retried; writes already
// made are idempotent.
func (h *RebuildLeaderboardHandler) Handle(ctx context.Context, _ RebuildLeaderboardCommand) (*RebuildLeaderboardResult, error) {
	startedAt := h.config.Clock.Now()
	weekStart := timeutil.StartOfWeek(startedAt, h.config.WeekLocation)

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	res := &RebuildLeaderboardResult{StartedAt: startedAt}
	after := ""
	for {
		page, err := h.profiles.ScanRanked(ctx, after, h.config.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("scan profiles after %q: %w", after, err)
		}

		for _, p := range page {
			scopes, weekly := rebuildScopes(p, weekStart)
			if err := h.cache.SetScore(ctx, p.UserID, p.RankPoints, scopes); err != nil {
				return nil, fmt.Errorf("write %s: %w", p.UserID, err)
			}
			res.Profiles++
			if weekly {
				res.Weekly++
			}
		}

		if len(page) < h.config.BatchSize {
			break
		}
		after = page[len(page)-1].UserID
	}

	pruned, err := h.prune(ctx)
	if err != nil {
		return nil, err
	}
	res.Pruned = pruned

	res.Duration = h.config.Clock.Now().Sub(startedAt)
	h.logger.Info("leaderboard rebuilt",
		logger.Int("profiles", res.Profiles),
		logger.Int("weekly", res.Weekly),
		logger.Int("pruned", res.Pruned),
		logger.Latency(res.Duration),
	)
	return res, nil
}

// prune removes cached members whose profile is shadow-banned. Every scope a
// player can be in also holds them globally.
func (h *RebuildLeaderboardHandler) prune(ctx context.Context) (int, error) {
	members, err := h.cache.All(ctx, leaderboard.Global())
	if err != nil {
		return 0, fmt.Errorf("read global scope: %w", err)
	}

	pruned := 0
	for start := 0; start < len(members); start += h.config.BatchSize {
		end := min(start+h.config.BatchSize, len(members))
		ids := make([]string, 0, end-start)
		for _, m := range members[start:end] {
			ids = append(ids, m.UserID)
		}
		profiles, err := h.profiles.GetMany(ctx, ids)
		if err != nil {
			return pruned, fmt.Errorf("load cached profiles: %w", err)
		}
		for _, id := range ids {
			p := profiles[id]
			if p == nil || p.Visible() {
				continue
			}
			if err := h.cache.RemoveEverywhere(ctx, id); err != nil {
				return pruned, fmt.Errorf("remove %s: %w", id, err)
			}
			pruned++
		}
	}
	return pruned, nil
}

// rebuildScopes drops the weekly scope for players who have not played since
// the week started.
func rebuildScopes(p *arena.Profile, weekStart time.Time) ([]leaderboard.Scope, bool) {
	all := leaderboard.ScopesFor(p.Location)
	if p.LastGameAt != nil && !p.LastGameAt.Before(weekStart) {
		return all, true
	}
	out := make([]leaderboard.Scope, 0, len(all))
	for _, s := range all {
		if s.Kind != leaderboard.ScopeWeekly {
			out = append(out, s)
		}
	}
	return out, false
}
