package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/arena-engine/internal/domain/achievement"
	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/retry"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT SESSION COMMAND
// Admission, anti-cheat, then a single versioned reward write per session.
// Rewards are credited here and only here; the async path propagates scores.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitSessionCommand carries one untrusted session result.
type SubmitSessionCommand struct {
	// UserID is the authenticated caller.
	UserID string

	// ClientIP is the caller address as seen by the edge.
	ClientIP string

	Submission arena.SessionSubmission
}

// Validate validates the command.
func (c SubmitSessionCommand) Validate() error {
	if !shared.ValidUserID(c.UserID) {
		return shared.ErrInvalidUserID
	}
	return c.Submission.Validate()
}

// UnlockedAchievement is an achievement granted by this session.
type UnlockedAchievement struct {
	ID          string
	Title       string
	Description string
}

// SessionStats is the player's standing after the session.
type SessionStats struct {
	XP                  uint64
	RankPoints          uint64
	GamesPlayed         uint32
	Wins                uint32
	CompletedChallenges int

	// Score is the rank points this session earned.
	Score uint64

	// Training is set when every claimed challenge was already completed.
	Training bool
}

// SubmitSessionResult contains the result of a submission.
type SubmitSessionResult struct {
	EffectiveXP          uint64
	NewLevel             arena.Level
	UnlockedAchievements []UnlockedAchievement
	Stats                SessionStats
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitSessionHandler handles the SubmitSessionCommand.
type SubmitSessionHandler struct {
	profiles  arena.ProfileStore
	sessions  arena.SessionStore
	catalog   arena.ChallengeCatalog
	locations arena.LocationDirectory
	limiter   RateLimiter
	guard     *AntiCheatGuard
	publisher shared.EventPublisher
	config    SubmitSessionConfig
	logger    *logger.Logger
	tracer    trace.Tracer
}

// SubmitSessionConfig contains configuration for the handler.
type SubmitSessionConfig struct {
	// SubmitLimit submissions are admitted per user every SubmitWindow.
	SubmitLimit  int
	SubmitWindow time.Duration

	// MaxWriteAttempts bounds optimistic retries of the profile write.
	MaxWriteAttempts int

	Recorder SessionRecorder
	Logger   *logger.Logger
	Clock    timeutil.Clock
	Tracer   trace.Tracer
}

// DefaultSubmitSessionConfig returns sensible defaults.
func DefaultSubmitSessionConfig() SubmitSessionConfig {
	return SubmitSessionConfig{
		SubmitLimit:      10,
		SubmitWindow:     time.Minute,
		MaxWriteAttempts: 5,
	}
}

// NewSubmitSessionHandler creates the handler. catalog, locations and
// limiter are optional collaborators and may be nil.
func NewSubmitSessionHandler(
	profiles arena.ProfileStore,
	sessions arena.SessionStore,
	catalog arena.ChallengeCatalog,
	locations arena.LocationDirectory,
	limiter RateLimiter,
	guard *AntiCheatGuard,
	publisher shared.EventPublisher,
	config SubmitSessionConfig,
) *SubmitSessionHandler {
	defaults := DefaultSubmitSessionConfig()
	if config.SubmitLimit <= 0 {
		config.SubmitLimit = defaults.SubmitLimit
	}
	if config.SubmitWindow <= 0 {
		config.SubmitWindow = defaults.SubmitWindow
	}
	if config.MaxWriteAttempts <= 0 {
		config.MaxWriteAttempts = defaults.MaxWriteAttempts
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock{}
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer("github.com/alem-hub/arena-engine/command")
	}

	return &SubmitSessionHandler{
		profiles:  profiles,
		sessions:  sessions,
		catalog:   catalog,
		locations: locations,
		limiter:   limiter,
		guard:     guard,
		publisher: publisher,
		config:    config,
		logger:    config.Logger.With(logger.Component("submit_session")),
		tracer:    config.Tracer,
	}
}

// Handle processes the submission.
func (h *SubmitSessionHandler) Handle(ctx context.Context, cmd SubmitSessionCommand) (res *SubmitSessionResult, err error) {
	ctx, span := h.tracer.Start(ctx, "arena.submit_session", trace.WithAttributes(
		attribute.String("arena.level", string(cmd.Submission.Level)),
		attribute.Int("arena.total_questions", int(cmd.Submission.TotalQuestions)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// The user id keys the limiter; every other check runs after admission
	// so malformed submissions count against the budget too.
	if !shared.ValidUserID(cmd.UserID) {
		return nil, shared.ErrInvalidUserID
	}
	if h.limiter != nil && !h.limiter.Allow(ctx, ScopeGameSubmit, cmd.UserID, h.config.SubmitLimit, h.config.SubmitWindow) {
		return nil, shared.ErrSubmitRateExceeded
	}
	if err := cmd.Submission.Validate(); err != nil {
		return nil, err
	}
	log := h.logger.With(logger.UserID(cmd.UserID))

	profile, err := h.profiles.GetOrCreate(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	if err := h.guard.Check(ctx, profile, cmd.Submission, cmd.ClientIP); err != nil {
		return nil, err
	}

	if err := h.validateChallenges(ctx, cmd.Submission, log); err != nil {
		return nil, err
	}

	loc := h.lookupLocation(ctx, cmd.UserID, log)

	committed, reward, unlocked, err := h.credit(ctx, profile, cmd, loc)
	if err != nil {
		return nil, err
	}

	h.recordBranch(cmd.Submission, reward)
	h.appendSession(ctx, profile, committed, cmd, reward, log)
	h.publish(ctx, committed, reward, unlocked, cmd.ClientIP, log)

	log.Info("session credited",
		logger.XPAmount(reward.XP),
		logger.RankPoints(committed.RankPoints),
		logger.Bool("training", reward.Training),
		logger.Int("achievements", len(unlocked)),
	)

	return buildResult(committed, reward, unlocked), nil
}

// credit is the serialized read-modify-write: reward and achievements are
// recomputed from a fresh read on every version conflict.
func (h *SubmitSessionHandler) credit(
	ctx context.Context,
	profile *arena.Profile,
	cmd SubmitSessionCommand,
	loc *shared.Location,
) (*arena.Profile, arena.Reward, []achievement.Rule, error) {
	var (
		committed *arena.Profile
		reward    arena.Reward
		unlocked  []achievement.Rule
		current   = profile
		attempt   = 0
	)

	claimed := cmd.Submission.Claimed()
	now := h.config.Clock.Now()

	retrier := retry.OptimisticRetrier(h.config.MaxWriteAttempts, shared.IsConflict)
	err := retrier.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			fresh, err := h.profiles.Get(ctx, cmd.UserID)
			if err != nil {
				return retry.Permanent(fmt.Errorf("reload profile: %w", err))
			}
			current = fresh
		}

		reward = arena.ComputeReward(current.CompletedChallenges, claimed, cmd.Submission.XPEarnedClaim)
		update := arena.NewSessionUpdate(current, reward, now, cmd.ClientIP, loc)

		unlocked = achievement.Evaluate(achievement.Snapshot{
			Profile: update.ApplyTo(current),
			Session: cmd.Submission,
			Reward:  reward,
		})
		update.AddAchievements = achievement.IDs(unlocked)

		var err error
		committed, err = h.profiles.ApplyUpdate(ctx, update)
		return err
	})
	if err != nil {
		if shared.IsConflict(err) {
			h.logger.Warn("profile write kept conflicting", logger.UserID(cmd.UserID), logger.Int("attempts", attempt))
		}
		return nil, arena.Reward{}, nil, fmt.Errorf("credit session: %w", err)
	}
	return committed, reward, unlocked, nil
}

func (h *SubmitSessionHandler) validateChallenges(ctx context.Context, sub arena.SessionSubmission, log *logger.Logger) error {
	if h.catalog == nil || len(sub.CorrectQuestionIDs) == 0 {
		return nil
	}

	ids := sub.Claimed().Sorted()
	found, err := h.catalog.Lookup(ctx, ids)
	if err != nil {
		log.Warn("challenge catalog unavailable, skipping validation", logger.Err(err))
		return nil
	}

	for _, id := range ids {
		ch, ok := found[id]
		if !ok {
			return fmt.Errorf("%w: %q", shared.ErrUnknownChallenge, id)
		}
		if ch.Level != sub.Level {
			return shared.WrapError("arena", "Validate", shared.ErrValidation, "challenge belongs to another level",
				fmt.Errorf("%q is %s, session is %s", id, ch.Level, sub.Level))
		}
	}
	return nil
}

// lookupLocation returns nil when the cached location should be kept.
func (h *SubmitSessionHandler) lookupLocation(ctx context.Context, userID string, log *logger.Logger) *shared.Location {
	if h.locations == nil {
		return nil
	}
	loc, err := h.locations.Lookup(ctx, userID)
	if err != nil {
		log.Warn("location lookup failed, keeping cached location", logger.Err(err))
		return nil
	}
	if loc.IsZero() {
		return nil
	}
	return &loc
}

// ──────────────────────────────────────────────────────────────────────────────
// Best-effort side effects
// ──────────────────────────────────────────────────────────────────────────────

func (h *SubmitSessionHandler) appendSession(
	ctx context.Context,
	before, after *arena.Profile,
	cmd SubmitSessionCommand,
	reward arena.Reward,
	log *logger.Logger,
) {
	if h.sessions == nil {
		return
	}
	rec := arena.NewSessionRecord(uuid.NewString(), before, cmd.Submission, reward, *after.LastGameAt, cmd.ClientIP)
	if err := h.sessions.Append(ctx, rec); err != nil {
		log.Error("failed to persist session record", logger.String("session_id", rec.ID), logger.Err(err))
	}
}

func (h *SubmitSessionHandler) publish(
	ctx context.Context,
	p *arena.Profile,
	reward arena.Reward,
	unlocked []achievement.Rule,
	ip string,
	log *logger.Logger,
) {
	if h.publisher == nil {
		return
	}
	events := make([]shared.Event, 0, len(unlocked)+1)
	for _, r := range unlocked {
		events = append(events, shared.NewAchievementUnlockedEvent(p.UserID, string(r.ID), r.Title))
	}
	events = append(events, shared.NewGameCompletedEvent(
		p.UserID, p.RankPoints, reward.XP, p.Location.Country, p.Location.Region, ip,
	))

	for _, ev := range events {
		if err := h.publisher.Publish(ctx, ev); err != nil {
			log.Error("failed to publish event", logger.String("event_type", string(ev.EventType())), logger.Err(err))
		}
	}
}

func (h *SubmitSessionHandler) recordBranch(sub arena.SessionSubmission, reward arena.Reward) {
	if h.config.Recorder == nil {
		return
	}
	switch {
	case len(sub.CorrectQuestionIDs) == 0:
		h.config.Recorder.SessionProcessed(BranchEmpty)
	case reward.Training:
		h.config.Recorder.SessionProcessed(BranchTraining)
	default:
		h.config.Recorder.SessionProcessed(BranchNew)
	}
}

func buildResult(p *arena.Profile, reward arena.Reward, unlocked []achievement.Rule) *SubmitSessionResult {
	res := &SubmitSessionResult{
		EffectiveXP:          reward.XP,
		NewLevel:             p.Level,
		UnlockedAchievements: make([]UnlockedAchievement, 0, len(unlocked)),
		Stats: SessionStats{
			XP:                  p.XP,
			RankPoints:          p.RankPoints,
			GamesPlayed:         p.GamesPlayed,
			Wins:                p.Wins,
			CompletedChallenges: p.CompletedChallenges.Len(),
			Score:               reward.Score,
			Training:            reward.Training,
		},
	}
	for _, r := range unlocked {
		res.UnlockedAchievements = append(res.UnlockedAchievements, UnlockedAchievement{
			ID:          string(r.ID),
			Title:       r.Title,
			Description: r.Description,
		})
	}
	return res
}
