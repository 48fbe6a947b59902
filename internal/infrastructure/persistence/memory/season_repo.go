package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/arena-engine/internal/domain/season"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// SeasonRepository keeps seasons in a map; Activate flips flags under one lock.
type SeasonRepository struct {
	mu      sync.RWMutex
	seasons map[int]*season.Season
}

var _ season.Repository = (*SeasonRepository)(nil)

// NewSeasonRepository creates an empty repository.
func NewSeasonRepository() *SeasonRepository {
	return &SeasonRepository{seasons: make(map[int]*season.Season)}
}

// Active returns the active season.
func (r *SeasonRepository) Active(_ context.Context) (*season.Season, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.seasons {
		if s.IsActive {
			c := *s
			return &c, nil
		}
	}
	return nil, shared.ErrSeasonNotFound
}

// Get returns a season by number.
func (r *SeasonRepository) Get(_ context.Context, number int) (*season.Season, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.seasons[number]
	if !ok {
		return nil, shared.ErrSeasonNotFound
	}
	c := *s
	return &c, nil
}

// Create inserts an inactive season.
func (r *SeasonRepository) Create(_ context.Context, s *season.Season) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.seasons[s.Number]; exists {
		return shared.ErrSeasonExists
	}
	c := *s
	c.IsActive = false
	s.IsActive = false
	r.seasons[s.Number] = &c
	return nil
}

// Activate makes number the only active season.
func (r *SeasonRepository) Activate(_ context.Context, number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seasons[number]; !ok {
		return shared.ErrSeasonNotFound
	}
	for n, s := range r.seasons {
		s.IsActive = n == number
	}
	return nil
}
