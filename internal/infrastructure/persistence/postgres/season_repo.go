package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/arena-engine/internal/domain/season"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// SeasonRepository implements season.Repository for PostgreSQL.
// A partial unique index on is_active backs the single-active rule.
type SeasonRepository struct {
	conn *Connection
}

var _ season.Repository = (*SeasonRepository)(nil)

// NewSeasonRepository creates a new SeasonRepository.
func NewSeasonRepository(conn *Connection) *SeasonRepository {
	return &SeasonRepository{conn: conn}
}

const seasonColumns = `season_number, starts_at, ends_at, is_active`

// Active returns the active season.
func (r *SeasonRepository) Active(ctx context.Context) (*season.Season, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	row := r.conn.QueryRow(ctx, `SELECT `+seasonColumns+` FROM arena_seasons WHERE is_active LIMIT 1`)
	return scanSeason(row)
}

// Get returns a season by number.
func (r *SeasonRepository) Get(ctx context.Context, number int) (*season.Season, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	row := r.conn.QueryRow(ctx, `SELECT `+seasonColumns+` FROM arena_seasons WHERE season_number = $1`, int32(number))
	return scanSeason(row)
}

// Create inserts an inactive season.
func (r *SeasonRepository) Create(ctx context.Context, s *season.Season) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	_, err := r.conn.Exec(ctx, `
		INSERT INTO arena_seasons (season_number, starts_at, ends_at, is_active)
		VALUES ($1, $2, $3, FALSE)
	`, int32(s.Number), s.StartsAt, s.EndsAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrSeasonExists
		}
		return fmt.Errorf("failed to create season: %w", err)
	}
	s.IsActive = false
	return nil
}

// Activate deactivates every other season and activates number in one
// transaction. The two statements are ordered so the unique index never
// sees two active rows.
func (r *SeasonRepository) Activate(ctx context.Context, number int) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE arena_seasons SET is_active = FALSE WHERE is_active AND season_number <> $1`,
			int32(number),
		); err != nil {
			return fmt.Errorf("failed to deactivate seasons: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE arena_seasons SET is_active = TRUE WHERE season_number = $1`,
			int32(number),
		)
		if err != nil {
			return fmt.Errorf("failed to activate season: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrSeasonNotFound
		}
		return nil
	})
}

func scanSeason(row pgx.Row) (*season.Season, error) {
	var (
		s      season.Season
		number int32
	)
	if err := row.Scan(&number, &s.StartsAt, &s.EndsAt, &s.IsActive); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSeasonNotFound
		}
		return nil, fmt.Errorf("failed to scan season: %w", err)
	}
	s.Number = int(number)
	return &s, nil
}
