package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATOR STAND-INS
// ══════════════════════════════════════════════════════════════════════════════

// LocationDirectory maps user IDs to locations.
type LocationDirectory struct {
	mu        sync.RWMutex
	locations map[string]shared.Location
}

var _ arena.LocationDirectory = (*LocationDirectory)(nil)

// NewLocationDirectory creates an empty directory.
func NewLocationDirectory() *LocationDirectory {
	return &LocationDirectory{locations: make(map[string]shared.Location)}
}

// Set records userID's location.
func (d *LocationDirectory) Set(userID string, loc shared.Location) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locations[userID] = loc
}

// Lookup returns the zero Location for unknown users.
func (d *LocationDirectory) Lookup(_ context.Context, userID string) (shared.Location, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.locations[userID], nil
}

// BoostStore keeps multipliers with an expiry instant.
type BoostStore struct {
	mu     sync.RWMutex
	clock  timeutil.Clock
	boosts map[string]boost
}

type boost struct {
	multiplier float64
	expiresAt  time.Time
}

var _ arena.BoostProvider = (*BoostStore)(nil)

// NewBoostStore creates an empty store.
func NewBoostStore(clock timeutil.Clock) *BoostStore {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &BoostStore{clock: clock, boosts: make(map[string]boost)}
}

// Grant records a multiplier for ttl. Multipliers ≤ 1 are ignored.
func (b *BoostStore) Grant(_ context.Context, userID string, multiplier float64, ttl time.Duration) error {
	if multiplier <= 1 || ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.boosts[userID] = boost{multiplier: multiplier, expiresAt: b.clock.Now().Add(ttl)}
	return nil
}

// ActiveMultiplier returns 1 once the boost has expired.
func (b *BoostStore) ActiveMultiplier(_ context.Context, userID string) (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bo, ok := b.boosts[userID]
	if !ok || !b.clock.Now().Before(bo.expiresAt) {
		return 1, nil
	}
	return bo.multiplier, nil
}

// ChallengeCatalog is a fixed set of challenges.
type ChallengeCatalog struct {
	mu         sync.RWMutex
	challenges map[string]arena.Challenge
	fail       error
}

var _ arena.ChallengeCatalog = (*ChallengeCatalog)(nil)

// NewChallengeCatalog seeds the catalog.
func NewChallengeCatalog(challenges ...arena.Challenge) *ChallengeCatalog {
	c := &ChallengeCatalog{challenges: make(map[string]arena.Challenge, len(challenges))}
	for _, ch := range challenges {
		c.challenges[ch.ID] = ch
	}
	return c
}

// SetFailure makes Lookup fail with err; nil restores it.
func (c *ChallengeCatalog) SetFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

// Lookup returns the known challenges among ids.
func (c *ChallengeCatalog) Lookup(_ context.Context, ids []string) (map[string]arena.Challenge, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.fail != nil {
		return nil, c.fail
	}
	out := make(map[string]arena.Challenge, len(ids))
	for _, id := range ids {
		if ch, ok := c.challenges[id]; ok {
			out[id] = ch
		}
	}
	return out, nil
}
