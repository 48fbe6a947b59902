package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/season"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

var profileCols = []string{
	"user_id", "display_name", "avatar_url",
	"xp", "rank_points", "level", "games_played", "wins",
	"completed_challenges", "achievements", "country", "region",
	"locked_until", "last_ip", "suspicious_attempts", "shadow_banned",
	"league_status", "last_game_at", "version", "created_at", "updated_at",
}

var created = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newConn(t *testing.T) (*Connection, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewConnectionFromPool(mock, 0), mock
}

func profileRow(rows *pgxmock.Rows, userID string, xp, rankPoints int64, version int64, playedAt *time.Time) *pgxmock.Rows {
	return rows.AddRow(
		userID, "Name "+userID, "",
		xp, rankPoints, "medium", int32(3), int32(2),
		[]string{"a", "b"}, []string{"first_score"}, "CO", "ANT",
		(*time.Time)(nil), "10.0.0.1", int32(0), false,
		"none", playedAt, version, created, created,
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILES
// ══════════════════════════════════════════════════════════════════════════════

func TestProfileRepository_Get(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)

	mock.ExpectQuery(`FROM arena_profiles p LEFT JOIN users u`).
		WithArgs("u1").
		WillReturnRows(profileRow(pgxmock.NewRows(profileCols), "u1", 900, 12, 4, nil))

	p, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Name u1", p.DisplayName)
	assert.Equal(t, uint64(900), p.XP)
	assert.Equal(t, uint64(12), p.RankPoints)
	assert.Equal(t, arena.LevelMedium, p.Level)
	assert.True(t, p.CompletedChallenges.Has("b"))
	assert.True(t, p.Achievements.Has("first_score"))
	assert.Equal(t, shared.Location{Country: "CO", Region: "ANT"}, p.Location)
	assert.Equal(t, int64(4), p.Version)
	assert.Nil(t, p.LastGameAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_GetNotFound(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)

	mock.ExpectQuery(`FROM arena_profiles p`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(profileCols))

	_, err := repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrProfileNotFound)
}

func TestProfileRepository_GetOrCreate(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)

	mock.ExpectExec(`INSERT INTO arena_profiles \(user_id\) VALUES \(\$1\)`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM arena_profiles p`).
		WithArgs("u1").
		WillReturnRows(profileRow(pgxmock.NewRows(profileCols), "u1", 0, 0, 0, nil))

	p, err := repo.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_ApplyUpdate(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	loc := shared.NewLocation("CO", "ANT")

	u := arena.ProfileUpdate{
		UserID:           "u1",
		ExpectedVersion:  4,
		XPDelta:          60,
		RankPointsDelta:  2,
		GamesPlayedDelta: 1,
		WinsDelta:        1,
		AddChallenges:    []string{"b", "c"},
		Level:            arena.LevelMedium,
		LastGameAt:       now,
		LastIP:           "10.0.0.1",
		Location:         &loc,
	}

	mock.ExpectQuery(`WITH updated AS \(\s*UPDATE arena_profiles SET`).
		WithArgs("u1", int64(4), int64(60), int64(2), int32(1), int32(1),
			[]string{"b", "c"}, []string{}, "medium", &now, "10.0.0.1", true, "CO", "ANT").
		WillReturnRows(profileRow(pgxmock.NewRows(profileCols), "u1", 960, 14, 5, &now))

	p, err := repo.ApplyUpdate(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Version)
	assert.Equal(t, uint64(960), p.XP)
	require.NotNil(t, p.LastGameAt)
	assert.True(t, p.LastGameAt.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_ApplyUpdateVersionConflict(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)

	mock.ExpectQuery(`WITH updated AS`).
		WithArgs("u1", int64(3), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			false, "", "").
		WillReturnRows(pgxmock.NewRows(profileCols))

	_, err := repo.ApplyUpdate(context.Background(), arena.ProfileUpdate{UserID: "u1", ExpectedVersion: 3})
	assert.ErrorIs(t, err, shared.ErrVersionConflict)
	assert.True(t, shared.IsConflict(err))
}

func TestProfileRepository_RecordViolation(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)

	mock.ExpectQuery(`UPDATE arena_profiles SET\s+suspicious_attempts = suspicious_attempts \+ 1`).
		WithArgs("u1", "10.0.0.9", int32(5), now, until).
		WillReturnRows(pgxmock.NewRows([]string{"locked_until", "last_ip", "suspicious_attempts", "shadow_banned"}).
			AddRow(&until, "10.0.0.9", int32(5), false))

	flags, err := repo.RecordViolation(context.Background(), arena.Violation{
		UserID: "u1", IP: "10.0.0.9", Reason: "too_fast", At: now, LockThreshold: 5, LockUntil: until,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(5), flags.SuspiciousAttempts)
	assert.True(t, flags.IsLocked(now))
	assert.False(t, flags.IsLocked(until))
}

func TestProfileRepository_SetLeagueStatus(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)

	mock.ExpectExec(`UPDATE arena_profiles SET\s+league_status = \$1`).
		WithArgs("promoted", []string{"a", "b"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.SetLeagueStatus(context.Background(), arena.LeaguePromoted, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.SetLeagueStatus(context.Background(), arena.LeagueDemoted, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.SetLeagueStatus(context.Background(), arena.LeagueStatus("gold"), []string{"a"})
	assert.True(t, shared.IsValidation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_SetShadowBanned(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)

	mock.ExpectExec(`ON CONFLICT \(user_id\) DO UPDATE SET\s+shadow_banned = EXCLUDED.shadow_banned`).
		WithArgs("u1", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SetShadowBanned(context.Background(), "u1", true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_TopByRankPointsFilters(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)
	since := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(profileCols)
	profileRow(rows, "b", 100, 30, 1, &since)
	profileRow(rows, "a", 100, 20, 1, &since)

	mock.ExpectQuery(`WHERE NOT p.shadow_banned AND p.country = \$1 AND p.last_game_at >= \$2\s+ORDER BY p.rank_points DESC, p.user_id DESC\s+LIMIT \$3`).
		WithArgs("CO", since, 10).
		WillReturnRows(rows)

	got, err := repo.TopByRankPoints(context.Background(), arena.RankFilter{Country: "CO", PlayedSince: &since}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].UserID)
	assert.Equal(t, "a", got[1].UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_ScanRankedPagesByUserID(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)

	rows := pgxmock.NewRows(profileCols)
	profileRow(rows, "c", 10, 5, 1, nil)
	profileRow(rows, "d", 10, 8, 1, nil)

	mock.ExpectQuery(`WHERE p.user_id > \$1 AND p.rank_points > 0 AND NOT p.shadow_banned\s+ORDER BY p.user_id\s+LIMIT \$2`).
		WithArgs("b", 2).
		WillReturnRows(rows)

	got, err := repo.ScanRanked(context.Background(), "b", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].UserID)
	assert.Equal(t, "d", got[1].UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_GetMany(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewProfileRepository(conn)

	rows := pgxmock.NewRows(profileCols)
	profileRow(rows, "a", 1, 1, 1, nil)

	mock.ExpectQuery(`WHERE p.user_id = ANY\(\$1\)`).
		WithArgs([]string{"a", "missing"}).
		WillReturnRows(rows)

	got, err := repo.GetMany(context.Background(), []string{"a", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "a")

	empty, err := repo.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS & LOCATIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestSessionRepository_Append(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewSessionRepository(conn)
	end := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	rec := &arena.SessionRecord{
		ID: "s1", UserID: "u1", Level: arena.LevelEasy, Score: 2, CorrectAnswers: 3,
		TotalQuestions: 5, DurationSeconds: 20, XPEarned: 60,
		StartedAt: end.Add(-20 * time.Second), EndedAt: end, ClientIP: "10.0.0.1",
	}

	mock.ExpectExec(`INSERT INTO arena_sessions`).
		WithArgs("s1", "u1", "easy", int64(2), int32(3), int32(5), 20.0, int64(60),
			rec.StartedAt, rec.EndedAt, "10.0.0.1", false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Append(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepository_Lookup(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewLocationRepository(conn)

	mock.ExpectQuery(`SELECT country, region FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"country", "region"}).AddRow("co", "ant"))
	mock.ExpectQuery(`SELECT country, region FROM users`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"country", "region"}))

	loc, err := repo.Lookup(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, shared.Location{Country: "CO", Region: "ANT"}, loc)

	loc, err = repo.Lookup(context.Background(), "ghost")
	require.NoError(t, err)
	assert.True(t, loc.IsZero())
}

// ══════════════════════════════════════════════════════════════════════════════
// SEASONS
// ══════════════════════════════════════════════════════════════════════════════

var txOpts = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

func TestSeasonRepository_Activate(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewSeasonRepository(conn)

	mock.ExpectBeginTx(txOpts)
	mock.ExpectExec(`UPDATE arena_seasons SET is_active = FALSE WHERE is_active AND season_number <> \$1`).
		WithArgs(int32(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE arena_seasons SET is_active = TRUE WHERE season_number = \$1`).
		WithArgs(int32(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Activate(context.Background(), 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeasonRepository_ActivateUnknownRollsBack(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewSeasonRepository(conn)

	mock.ExpectBeginTx(txOpts)
	mock.ExpectExec(`SET is_active = FALSE`).
		WithArgs(int32(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET is_active = TRUE`).
		WithArgs(int32(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.Activate(context.Background(), 9)
	assert.ErrorIs(t, err, shared.ErrSeasonNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeasonRepository_CreateDuplicate(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewSeasonRepository(conn)
	start := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	s, err := season.New(1, start, start.Add(7*24*time.Hour))
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO arena_seasons`).
		WithArgs(int32(1), s.StartsAt, s.EndsAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	assert.ErrorIs(t, repo.Create(context.Background(), s), shared.ErrSeasonExists)
}

func TestSeasonRepository_ActiveNone(t *testing.T) {
	conn, mock := newConn(t)
	repo := NewSeasonRepository(conn)

	mock.ExpectQuery(`FROM arena_seasons WHERE is_active`).
		WillReturnRows(pgxmock.NewRows([]string{"season_number", "starts_at", "ends_at", "is_active"}))

	_, err := repo.Active(context.Background())
	assert.ErrorIs(t, err, shared.ErrSeasonNotFound)
}
