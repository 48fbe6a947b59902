// Package season models weekly seasons and the promotion/demotion split.
package season

import (
	"context"
	"math"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// DefaultBandShare is the fraction promoted from the top and demoted from the bottom.
const DefaultBandShare = 0.20

// Season is a numbered competition window. At most one is active.
type Season struct {
	Number   int
	StartsAt time.Time
	EndsAt   time.Time
	IsActive bool
}

// New validates and builds an inactive season.
func New(number int, startsAt, endsAt time.Time) (*Season, error) {
	if number <= 0 {
		return nil, shared.WrapError("season", "New", shared.ErrValueOutOfRange, "season number must be positive", nil)
	}
	if !endsAt.After(startsAt) {
		return nil, shared.ErrInvalidSeason
	}
	return &Season{Number: number, StartsAt: startsAt, EndsAt: endsAt}, nil
}

// HasEnded reports whether now is at or past the end of the season.
func (s *Season) HasEnded(now time.Time) bool {
	return !now.Before(s.EndsAt)
}

// Next returns the following season of the same length, starting when s ends.
func (s *Season) Next() *Season {
	length := s.EndsAt.Sub(s.StartsAt)
	return &Season{Number: s.Number + 1, StartsAt: s.EndsAt, EndsAt: s.EndsAt.Add(length)}
}

// Rotation is the outcome of splitting a ranked weekly snapshot.
type Rotation struct {
	Promoted []string
	Stable   []string
	Demoted  []string
}

// Split tags the top ceil(share*n) players promoted and the bottom ceil(share*n)
// demoted, in leaderboard order. Bands never overlap: for tiny n the
// promoted band is filled first and demotion takes what remains.
func Split(ranked []string, share float64) Rotation {
	n := len(ranked)
	if n == 0 {
		return Rotation{}
	}
	if share <= 0 || share > 0.5 {
		share = DefaultBandShare
	}

	band := int(math.Ceil(share * float64(n)))
	promoted := min(band, n)
	demoted := min(band, n-promoted)

	return Rotation{
		Promoted: append([]string(nil), ranked[:promoted]...),
		Stable:   append([]string(nil), ranked[promoted:n-demoted]...),
		Demoted:  append([]string(nil), ranked[n-demoted:]...),
	}
}

// Repository persists seasons.
type Repository interface {
	// Active returns shared.ErrSeasonNotFound when no season is active.
	Active(ctx context.Context) (*Season, error)

	Get(ctx context.Context, number int) (*Season, error)

	// Create inserts an inactive season; shared.ErrSeasonExists on duplicate number.
	Create(ctx context.Context, s *Season) error

	// Activate marks number active and deactivates every other season in the same write.
	Activate(ctx context.Context, number int) error
}
