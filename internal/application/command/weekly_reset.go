package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/internal/domain/season"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY RESET COMMAND
// Tags the weekly snapshot into league bands, clears the weekly scope and
// advances the season. Safe to re-run: a cleared weekly board tags nobody.
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyResetCommand closes a week.
type WeeklyResetCommand struct {
	// WeekStart is informational; zero means the current week.
	WeekStart time.Time
}

// WeeklyResetResult contains the result of a reset.
type WeeklyResetResult struct {
	Promoted int
	Stable   int
	Demoted  int

	// Season is the active season after the reset.
	Season *season.Season

	// SeasonAdvanced is set when a new season was activated.
	SeasonAdvanced bool
}

// WeeklyResetHandler handles the WeeklyResetCommand.
type WeeklyResetHandler struct {
	cache     leaderboard.Cache
	profiles  arena.ProfileStore
	seasons   season.Repository
	publisher shared.EventPublisher
	config    WeeklyResetConfig
	logger    *logger.Logger
}

// WeeklyResetConfig contains configuration for the handler.
type WeeklyResetConfig struct {
	// BandShare is the promoted and demoted fraction.
	BandShare float64

	// SeasonLength is used for seasons created from scratch.
	SeasonLength time.Duration

	// WeekLocation anchors week boundaries.
	WeekLocation *time.Location

	Logger *logger.Logger
	Clock  timeutil.Clock
}

// DefaultWeeklyResetConfig returns sensible defaults.
func DefaultWeeklyResetConfig() WeeklyResetConfig {
	return WeeklyResetConfig{
		BandShare:    season.DefaultBandShare,
		SeasonLength: 7 * 24 * time.Hour,
		WeekLocation: time.UTC,
	}
}

// NewWeeklyResetHandler creates the handler. publisher may be nil.
func NewWeeklyResetHandler(
	cache leaderboard.Cache,
	profiles arena.ProfileStore,
	seasons season.Repository,
	publisher shared.EventPublisher,
	config WeeklyResetConfig,
) *WeeklyResetHandler {
	defaults := DefaultWeeklyResetConfig()
	if config.BandShare <= 0 {
		config.BandShare = defaults.BandShare
	}
	if config.SeasonLength <= 0 {
		config.SeasonLength = defaults.SeasonLength
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
	return &WeeklyResetHandler{
		cache:     cache,
		profiles:  profiles,
		seasons:   seasons,
		publisher: publisher,
		config:    config,
		logger:    config.Logger.With(logger.Component("weekly_reset")),
	}
}

// Handle performs the reset. Any failure before the weekly scope is cleared
// leaves it intact, so the retried job recomputes the same split.
func (h *WeeklyResetHandler) Handle(ctx context.Context, cmd WeeklyResetCommand) (*WeeklyResetResult, error) {
	now := h.config.Clock.Now()
	weekStart := cmd.WeekStart
	if weekStart.IsZero() {
		weekStart = timeutil.StartOfWeek(now, h.config.WeekLocation)
	}
	log := h.logger.With(logger.Time("week_start", weekStart))

	members, err := h.cache.All(ctx, leaderboard.Weekly())
	if err != nil {
		return nil, fmt.Errorf("read weekly board: %w", err)
	}

	ranked := make([]string, len(members))
	for i, m := range members {
		ranked[i] = m.UserID
	}
	rotation := season.Split(ranked, h.config.BandShare)

	bands := []struct {
		status arena.LeagueStatus
		ids    []string
	}{
		{arena.LeaguePromoted, rotation.Promoted},
		{arena.LeagueStable, rotation.Stable},
		{arena.LeagueDemoted, rotation.Demoted},
	}
	for _, b := range bands {
		if len(b.ids) == 0 {
			continue
		}
		if _, err := h.profiles.SetLeagueStatus(ctx, b.status, b.ids); err != nil {
			return nil, fmt.Errorf("tag %s: %w", b.status, err)
		}
	}

	if err := h.cache.Clear(ctx, leaderboard.Weekly()); err != nil {
		return nil, fmt.Errorf("clear weekly board: %w", err)
	}

	res := &WeeklyResetResult{
		Promoted: len(rotation.Promoted),
		Stable:   len(rotation.Stable),
		Demoted:  len(rotation.Demoted),
	}

	active, advanced, err := h.advanceSeason(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("advance season: %w", err)
	}
	res.Season = active
	res.SeasonAdvanced = advanced

	log.Info("weekly reset complete",
		logger.Int("season", active.Number),
		logger.Int("promoted", res.Promoted),
		logger.Int("stable", res.Stable),
		logger.Int("demoted", res.Demoted),
		logger.Bool("season_advanced", advanced),
	)

	if h.publisher != nil && len(ranked) > 0 {
		ev := shared.NewSeasonRotatedEvent(active.Number, res.Promoted, res.Stable, res.Demoted)
		if err := h.publisher.Publish(ctx, ev); err != nil {
			log.Error("failed to publish season rotation", logger.Err(err))
		}
	}

	return res, nil
}

// advanceSeason activates the next season once the active one has ended.
func (h *WeeklyResetHandler) advanceSeason(ctx context.Context, now time.Time) (*season.Season, bool, error) {
	active, err := h.seasons.Active(ctx)
	switch {
	case err == nil && !active.HasEnded(now):
		return active, false, nil
	case err != nil && !shared.IsNotFound(err):
		return nil, false, err
	}

	var next *season.Season
	if active == nil {
		start := timeutil.StartOfWeek(now, h.config.WeekLocation)
		next, err = season.New(1, start, start.Add(h.config.SeasonLength))
		if err != nil {
			return nil, false, err
		}
	} else {
		next = active.Next()
		if next.HasEnded(now) {
			start := timeutil.StartOfWeek(now, h.config.WeekLocation)
			next, err = season.New(active.Number+1, start, start.Add(next.EndsAt.Sub(next.StartsAt)))
			if err != nil {
				return nil, false, err
			}
		}
	}

	if err := h.seasons.Create(ctx, next); err != nil && !errors.Is(err, shared.ErrSeasonExists) {
		return nil, false, err
	}
	if err := h.seasons.Activate(ctx, next.Number); err != nil {
		return nil, false, err
	}
	next.IsActive = true

	h.logger.Info("season activated",
		logger.Int("season", next.Number),
		logger.Time("starts_at", next.StartsAt),
		logger.Time("ends_at", next.EndsAt),
	)
	return next, true, nil
}
