package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
)

// BoostStore keeps the economy subsystem's time-boxed XP multipliers.
// The key TTL is the boost's remaining lifetime.
type BoostStore struct {
	cache *Cache
}

var _ arena.BoostProvider = (*BoostStore)(nil)

// NewBoostStore creates a new BoostStore.
func NewBoostStore(cache *Cache) *BoostStore {
	return &BoostStore{cache: cache}
}

// Grant records a multiplier that expires after ttl. A later grant replaces it.
func (b *BoostStore) Grant(ctx context.Context, userID string, multiplier float64, ttl time.Duration) error {
	if multiplier <= 1 || ttl <= 0 {
		return nil
	}
	return b.cache.Client().Set(ctx, BoostKey(userID), strconv.FormatFloat(multiplier, 'f', -1, 64), ttl).Err()
}

// ActiveMultiplier returns 1 when no boost is held.
func (b *BoostStore) ActiveMultiplier(ctx context.Context, userID string) (float64, error) {
	raw, err := b.cache.Client().Get(ctx, BoostKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 1, nil
	}
	if err != nil {
		return 1, err
	}

	m, err := strconv.ParseFloat(raw, 64)
	if err != nil || m < 1 {
		return 1, nil
	}
	return m, nil
}
