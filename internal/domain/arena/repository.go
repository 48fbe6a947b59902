package arena

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// Implementations live in infrastructure (PostgreSQL, Redis, MongoDB, memory).
// ══════════════════════════════════════════════════════════════════════════════

// ProfileStore is the durable, versioned store of arena profiles.
type ProfileStore interface {
	// Get returns shared.ErrProfileNotFound when the user never played.
	Get(ctx context.Context, userID string) (*Profile, error)

	// GetOrCreate returns the profile, creating an empty one on first play.
	GetOrCreate(ctx context.Context, userID string) (*Profile, error)

	// GetMany returns the profiles that exist among userIDs.
	GetMany(ctx context.Context, userIDs []string) (map[string]*Profile, error)

	// ApplyUpdate writes u iff the stored version equals u.ExpectedVersion;
	// otherwise it returns shared.ErrVersionConflict. Returns the committed profile.
	ApplyUpdate(ctx context.Context, u ProfileUpdate) (*Profile, error)

	// RecordViolation increments suspiciousAttempts and applies the lockout
	// once the threshold is reached. It commits independently of any session write.
	RecordViolation(ctx context.Context, v Violation) (AntiCheatFlags, error)

	// SetShadowBanned toggles leaderboard visibility.
	SetShadowBanned(ctx context.Context, userID string, banned bool) error

	// SetLeagueStatus tags the given users; returns how many rows changed.
	SetLeagueStatus(ctx context.Context, status LeagueStatus, userIDs []string) (int, error)

	// TopByRankPoints orders matching visible profiles by rankPoints desc.
	TopByRankPoints(ctx context.Context, filter RankFilter, limit int) ([]*Profile, error)

	// ScanRanked pages through visible profiles with rank points, ordered by
	// user ID ascending and starting after afterUserID.
	ScanRanked(ctx context.Context, afterUserID string, limit int) ([]*Profile, error)
}

// SessionStore persists historical session records.
type SessionStore interface {
	Append(ctx context.Context, rec *SessionRecord) error
}

// ChallengeCatalog is the read-only content store.
type ChallengeCatalog interface {
	// Lookup returns the challenges found among ids; unknown ids are absent.
	Lookup(ctx context.Context, ids []string) (map[string]Challenge, error)
}

// LocationDirectory resolves a user's current location from the identity service.
type LocationDirectory interface {
	// Lookup returns the zero Location when unknown.
	Lookup(ctx context.Context, userID string) (shared.Location, error)
}

// BoostProvider reports the economy subsystem's active XP multiplier.
type BoostProvider interface {
	// ActiveMultiplier returns 1 when the user holds no boost.
	ActiveMultiplier(ctx context.Context, userID string) (float64, error)
}
