package command

import (
	"context"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANTI-CHEAT GUARD
// Plausibility checks on untrusted session telemetry, run before any reward.
// ══════════════════════════════════════════════════════════════════════════════

// Suspicion reasons.
const (
	ReasonAnswerTooFast   = "answer_too_fast"
	ReasonXPClaimTooHigh  = "xp_claim_too_high"
	ReasonLockedOutReplay = "locked_out_attempt"
)

// GuardConfig contains configuration for AntiCheatGuard.
type GuardConfig struct {
	// MinSecondsPerQuestion is the fastest plausible answer pace.
	MinSecondsPerQuestion float64

	// MaxXPPerQuestion caps claimed XP per question before boosts.
	MaxXPPerQuestion uint64

	// LockoutThreshold is the violation count that triggers a lockout.
	LockoutThreshold uint32

	// LockoutDuration is how long a lockout lasts.
	LockoutDuration time.Duration

	Recorder SuspicionRecorder
	Logger   *logger.Logger
	Clock    timeutil.Clock
}

// DefaultGuardConfig returns sensible defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MinSecondsPerQuestion: 2,
		MaxXPPerQuestion:      50,
		LockoutThreshold:      5,
		LockoutDuration:       time.Hour,
	}
}

// AntiCheatGuard rejects implausible sessions and keeps the lockout state.
type AntiCheatGuard struct {
	profiles arena.ProfileStore
	boosts   arena.BoostProvider
	config   GuardConfig
	logger   *logger.Logger
	clock    timeutil.Clock
}

// NewAntiCheatGuard creates a guard. boosts may be nil.
func NewAntiCheatGuard(profiles arena.ProfileStore, boosts arena.BoostProvider, config GuardConfig) *AntiCheatGuard {
	defaults := DefaultGuardConfig()
	if config.MinSecondsPerQuestion <= 0 {
		config.MinSecondsPerQuestion = defaults.MinSecondsPerQuestion
	}
	if config.MaxXPPerQuestion == 0 {
		config.MaxXPPerQuestion = defaults.MaxXPPerQuestion
	}
	if config.LockoutThreshold == 0 {
		config.LockoutThreshold = defaults.LockoutThreshold
	}
	if config.LockoutDuration <= 0 {
		config.LockoutDuration = defaults.LockoutDuration
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock{}
	}
	return &AntiCheatGuard{
		profiles: profiles,
		boosts:   boosts,
		config:   config,
		logger:   config.Logger.With(logger.Component("anticheat")),
		clock:    config.Clock,
	}
}

// Check returns shared.ErrProfileLocked while a lockout is active, and
// shared.ErrAnswerTooFast or shared.ErrXPClaimTooHigh for implausible
// sessions. Every implausible session is recorded against the profile
// before Check returns.
func (g *AntiCheatGuard) Check(ctx context.Context, p *arena.Profile, sub arena.SessionSubmission, ip string) error {
	now := g.clock.Now()

	if p.AntiCheat.IsLocked(now) {
		g.suspicious(ReasonLockedOutReplay)
		return shared.ErrProfileLocked
	}

	minDuration := float64(sub.TotalQuestions) * g.config.MinSecondsPerQuestion
	if sub.Duration < minDuration {
		g.violate(ctx, p.UserID, ip, ReasonAnswerTooFast, now,
			logger.Float64("duration", sub.Duration),
			logger.Float64("min_duration", minDuration),
		)
		return shared.ErrAnswerTooFast
	}

	multiplier := g.boostMultiplier(ctx, p.UserID)
	maxXP := float64(sub.TotalQuestions) * float64(g.config.MaxXPPerQuestion) * multiplier
	if float64(sub.XPEarnedClaim) > maxXP {
		g.violate(ctx, p.UserID, ip, ReasonXPClaimTooHigh, now,
			logger.Uint64("claimed_xp", sub.XPEarnedClaim),
			logger.Float64("max_xp", maxXP),
		)
		return shared.ErrXPClaimTooHigh
	}

	return nil
}

func (g *AntiCheatGuard) boostMultiplier(ctx context.Context, userID string) float64 {
	if g.boosts == nil {
		return 1
	}
	m, err := g.boosts.ActiveMultiplier(ctx, userID)
	if err != nil {
		g.logger.Warn("boost lookup failed, assuming none", logger.UserID(userID), logger.Err(err))
		return 1
	}
	if m < 1 {
		return 1
	}
	return m
}

func (g *AntiCheatGuard) violate(ctx context.Context, userID, ip, reason string, now time.Time, fields ...logger.Field) {
	g.suspicious(reason)

	flags, err := g.profiles.RecordViolation(ctx, arena.Violation{
		UserID:        userID,
		IP:            ip,
		Reason:        reason,
		At:            now,
		LockThreshold: g.config.LockoutThreshold,
		LockUntil:     now.Add(g.config.LockoutDuration),
	})

	fields = append(fields, logger.UserID(userID), logger.String("reason", reason))
	if err != nil {
		g.logger.Error("failed to record anti-cheat violation", append(fields, logger.Err(err))...)
		return
	}

	fields = append(fields, logger.Int("suspicious_attempts", int(flags.SuspiciousAttempts)))
	if flags.IsLocked(now) {
		g.logger.Warn("user locked out of arena", append(fields, logger.Time("locked_until", *flags.LockedUntil))...)
		return
	}
	g.logger.Info("session rejected by anti-cheat", fields...)
}

func (g *AntiCheatGuard) suspicious(reason string) {
	if g.config.Recorder != nil {
		g.config.Recorder.Suspicious(reason)
	}
}
