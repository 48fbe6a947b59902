package leaderboard

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// Cache is the sorted-set backing store for leaderboards.
// Every method may fail with a transport error; callers decide whether to
// swallow it (writes) or fall back to the profile store (reads).
type Cache interface {
	// SetScore overwrites userID's score in every listed scope.
	SetScore(ctx context.Context, userID string, score uint64, scopes []Scope) error

	// Remove deletes userID from every listed scope.
	Remove(ctx context.Context, userID string, scopes []Scope) error

	// RemoveEverywhere deletes userID from every scope key that exists.
	RemoveEverywhere(ctx context.Context, userID string) error

	// Top returns up to limit members by descending score. Ties keep the
	// sorted-set order (higher member id first on equal score).
	Top(ctx context.Context, scope Scope, limit int) ([]ScoredMember, error)

	// All returns the whole scope in ranking order.
	All(ctx context.Context, scope Scope) ([]ScoredMember, error)

	// Rank returns the 1-based position, or nil when userID is absent.
	Rank(ctx context.Context, userID string, scope Scope) (*int, uint64, error)

	// Clear drops the scope.
	Clear(ctx context.Context, scope Scope) error
}

// Board is the ranking surface the application works against: cache first,
// profile store when the cache cannot answer.
type Board interface {
	// UpdateScore overwrites rankPoints in every scope loc belongs to.
	UpdateScore(ctx context.Context, userID string, rankPoints uint64, loc shared.Location) error

	// GetTop returns hydrated entries and which store answered.
	GetTop(ctx context.Context, scope Scope, limit int) ([]RankingEntry, Source, error)

	// GetUserRank returns the 1-based position, nil when absent.
	GetUserRank(ctx context.Context, userID string, scope Scope) (UserRank, error)

	// RemoveEverywhere drops userID from every scope.
	RemoveEverywhere(ctx context.Context, userID string) error
}
