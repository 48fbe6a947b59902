package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// profileColumns is selected from "arena_profiles p LEFT JOIN users u".
const profileColumns = `
	p.user_id, COALESCE(u.display_name, ''), COALESCE(u.avatar_url, ''),
	p.xp, p.rank_points, p.level, p.games_played, p.wins,
	p.completed_challenges, p.achievements, p.country, p.region,
	p.locked_until, p.last_ip, p.suspicious_attempts, p.shadow_banned,
	p.league_status, p.last_game_at, p.version, p.created_at, p.updated_at`

// ProfileRepository implements arena.ProfileStore for PostgreSQL.
// Every write bumps version, so any interleaved write fails ApplyUpdate's check.
type ProfileRepository struct {
	conn *Connection
}

var _ arena.ProfileStore = (*ProfileRepository)(nil)

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get returns a profile by user ID.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*arena.Profile, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + profileColumns + `
		FROM arena_profiles p LEFT JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1`

	p, err := scanProfile(r.conn.QueryRow(ctx, query, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetOrCreate inserts an empty row on first play and returns the stored profile.
func (r *ProfileRepository) GetOrCreate(ctx context.Context, userID string) (*arena.Profile, error) {
	insCtx, cancel := r.conn.withTimeout(ctx)
	_, err := r.conn.Exec(insCtx, `
		INSERT INTO arena_profiles (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return r.Get(ctx, userID)
}

// GetMany returns the existing profiles among userIDs.
func (r *ProfileRepository) GetMany(ctx context.Context, userIDs []string) (map[string]*arena.Profile, error) {
	out := make(map[string]*arena.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + profileColumns + `
		FROM arena_profiles p LEFT JOIN users u ON u.id = p.user_id
		WHERE p.user_id = ANY($1)`

	rows, err := r.conn.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}

// TopByRankPoints is the leaderboard fallback. Ties break by user ID descending,
// the same order the sorted-set cache uses.
func (r *ProfileRepository) TopByRankPoints(ctx context.Context, filter arena.RankFilter, limit int) ([]*arena.Profile, error) {
	if limit <= 0 {
		return []*arena.Profile{}, nil
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	conds := []string{"NOT p.shadow_banned"}
	args := make([]any, 0, 4)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Country != "" {
		conds = append(conds, "p.country = "+next(filter.Country))
	}
	if filter.Region != "" {
		conds = append(conds, "p.region = "+next(filter.Region))
	}
	if filter.PlayedSince != nil {
		conds = append(conds, "p.last_game_at >= "+next(*filter.PlayedSince))
	}

	query := `SELECT ` + profileColumns + `
		FROM arena_profiles p LEFT JOIN users u ON u.id = p.user_id
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY p.rank_points DESC, p.user_id DESC
		LIMIT ` + next(limit)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranking: %w", err)
	}
	defer rows.Close()

	out := make([]*arena.Profile, 0, limit)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ScanRanked is the keyset page used to rebuild the leaderboard cache.
func (r *ProfileRepository) ScanRanked(ctx context.Context, afterUserID string, limit int) ([]*arena.Profile, error) {
	if limit <= 0 {
		return []*arena.Profile{}, nil
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + profileColumns + `
		FROM arena_profiles p LEFT JOIN users u ON u.id = p.user_id
		WHERE p.user_id > $1 AND p.rank_points > 0 AND NOT p.shadow_banned
		ORDER BY p.user_id
		LIMIT $2`

	rows, err := r.conn.Query(ctx, query, afterUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ranked profiles: %w", err)
	}
	defer rows.Close()

	out := make([]*arena.Profile, 0, limit)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// ApplyUpdate performs the conditional write. Array unions are computed in SQL
// so the stored sets never shrink even if the caller's snapshot was stale.
func (r *ProfileRepository) ApplyUpdate(ctx context.Context, u arena.ProfileUpdate) (*arena.Profile, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		WITH updated AS (
			UPDATE arena_profiles SET
				xp = xp + $3,
				rank_points = rank_points + $4,
				games_played = games_played + $5,
				wins = wins + $6,
				completed_challenges = ARRAY(SELECT DISTINCT unnest(completed_challenges || $7::text[])),
				achievements = ARRAY(SELECT DISTINCT unnest(achievements || $8::text[])),
				level = COALESCE(NULLIF($9::text, ''), level),
				last_game_at = COALESCE($10::timestamptz, last_game_at),
				last_ip = COALESCE(NULLIF($11::text, ''), last_ip),
				country = CASE WHEN $12::boolean THEN $13::text ELSE country END,
				region = CASE WHEN $12::boolean THEN $14::text ELSE region END,
				version = version + 1,
				updated_at = NOW()
			WHERE user_id = $1 AND version = $2
			RETURNING *
		)
		SELECT ` + profileColumns + `
		FROM updated p LEFT JOIN users u ON u.id = p.user_id`

	var lastGameAt *time.Time
	if !u.LastGameAt.IsZero() {
		t := u.LastGameAt
		lastGameAt = &t
	}
	var (
		setLocation     bool
		country, region string
	)
	if u.Location != nil {
		setLocation = true
		country, region = u.Location.Country, u.Location.Region
	}

	p, err := scanProfile(r.conn.QueryRow(ctx, query,
		u.UserID,
		u.ExpectedVersion,
		int64(u.XPDelta),
		int64(u.RankPointsDelta),
		int32(u.GamesPlayedDelta),
		int32(u.WinsDelta),
		nonNil(u.AddChallenges),
		nonNil(u.AddAchievements),
		string(u.Level),
		lastGameAt,
		u.LastIP,
		setLocation,
		country,
		region,
	))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to apply profile update: %w", err)
	}
	return p, nil
}

// RecordViolation increments the attempt counter and, once the threshold is
// reached, locks the profile unless a lock is already in effect.
func (r *ProfileRepository) RecordViolation(ctx context.Context, v arena.Violation) (arena.AntiCheatFlags, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE arena_profiles SET
			suspicious_attempts = suspicious_attempts + 1,
			last_ip = COALESCE(NULLIF($2::text, ''), last_ip),
			locked_until = CASE
				WHEN suspicious_attempts + 1 >= $3::int AND (locked_until IS NULL OR locked_until <= $4::timestamptz)
				THEN $5::timestamptz
				ELSE locked_until
			END,
			version = version + 1,
			updated_at = $4::timestamptz
		WHERE user_id = $1
		RETURNING locked_until, last_ip, suspicious_attempts, shadow_banned`

	var (
		flags    arena.AntiCheatFlags
		attempts int32
	)
	err := r.conn.QueryRow(ctx, query, v.UserID, v.IP, int32(v.LockThreshold), v.At, v.LockUntil).
		Scan(&flags.LockedUntil, &flags.LastIP, &attempts, &flags.ShadowBanned)
	if err != nil {
		if IsNoRows(err) {
			return arena.AntiCheatFlags{}, shared.ErrProfileNotFound
		}
		return arena.AntiCheatFlags{}, fmt.Errorf("failed to record violation: %w", err)
	}
	flags.SuspiciousAttempts = uint32(attempts)
	return flags, nil
}

// SetShadowBanned upserts the flag so users can be banned before their first game.
func (r *ProfileRepository) SetShadowBanned(ctx context.Context, userID string, banned bool) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	_, err := r.conn.Exec(ctx, `
		INSERT INTO arena_profiles (user_id, shadow_banned) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			shadow_banned = EXCLUDED.shadow_banned,
			version = arena_profiles.version + 1,
			updated_at = NOW()
	`, userID, banned)
	if err != nil {
		return fmt.Errorf("failed to set shadow ban: %w", err)
	}
	return nil
}

// SetLeagueStatus tags every listed user in one statement.
func (r *ProfileRepository) SetLeagueStatus(ctx context.Context, status arena.LeagueStatus, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	if !status.IsValid() {
		return 0, shared.WrapError("arena", "SetLeagueStatus", shared.ErrInvalidInput, "unknown league status", nil)
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	tag, err := r.conn.Exec(ctx, `
		UPDATE arena_profiles SET
			league_status = $1,
			version = version + 1,
			updated_at = NOW()
		WHERE user_id = ANY($2)
	`, string(status), userIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to set league status: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanProfile(row pgx.Row) (*arena.Profile, error) {
	var (
		p                    arena.Profile
		xp, rankPoints       int64
		gamesPlayed, wins    int32
		attempts             int32
		level, league        string
		challenges, achieved []string
	)

	err := row.Scan(
		&p.UserID,
		&p.DisplayName,
		&p.AvatarURL,
		&xp,
		&rankPoints,
		&level,
		&gamesPlayed,
		&wins,
		&challenges,
		&achieved,
		&p.Location.Country,
		&p.Location.Region,
		&p.AntiCheat.LockedUntil,
		&p.AntiCheat.LastIP,
		&attempts,
		&p.AntiCheat.ShadowBanned,
		&league,
		&p.LastGameAt,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.XP = uint64(xp)
	p.RankPoints = uint64(rankPoints)
	p.GamesPlayed = uint32(gamesPlayed)
	p.Wins = uint32(wins)
	p.AntiCheat.SuspiciousAttempts = uint32(attempts)
	p.CompletedChallenges = arena.NewIDSet(challenges...)
	p.Achievements = arena.NewIDSet(achieved...)

	p.Level = arena.Level(level)
	if !p.Level.IsValid() {
		p.Level = arena.LevelForXP(p.XP)
	}
	p.LeagueStatus = arena.LeagueStatus(league)
	if !p.LeagueStatus.IsValid() {
		p.LeagueStatus = arena.LeagueNone
	}

	return &p, nil
}

// nonNil keeps pgx from encoding a nil slice as NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
