package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// LocationRepository reads the user service's users table.
type LocationRepository struct {
	conn *Connection
}

var _ arena.LocationDirectory = (*LocationRepository)(nil)

// NewLocationRepository creates a new LocationRepository.
func NewLocationRepository(conn *Connection) *LocationRepository {
	return &LocationRepository{conn: conn}
}

// Lookup returns the zero Location for unknown users.
func (r *LocationRepository) Lookup(ctx context.Context, userID string) (shared.Location, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var country, region string
	err := r.conn.QueryRow(ctx, `SELECT country, region FROM users WHERE id = $1`, userID).Scan(&country, &region)
	if err != nil {
		if IsNoRows(err) {
			return shared.Location{}, nil
		}
		return shared.Location{}, fmt.Errorf("failed to look up location: %w", err)
	}
	return shared.NewLocation(country, region), nil
}
