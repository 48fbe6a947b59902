package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
)

// LeaderboardCache is a map-of-maps stand-in for the sorted-set cache.
// SetFailure makes every call return the given error, to exercise fallbacks.
type LeaderboardCache struct {
	mu     sync.RWMutex
	scopes map[string]map[string]uint64
	fail   error
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

// NewLeaderboardCache creates an empty cache.
func NewLeaderboardCache() *LeaderboardCache {
	return &LeaderboardCache{scopes: make(map[string]map[string]uint64)}
}

// SetFailure injects a transport error; nil restores normal operation.
func (c *LeaderboardCache) SetFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

// SetScore overwrites the member in every scope.
func (c *LeaderboardCache) SetScore(_ context.Context, userID string, score uint64, scopes []leaderboard.Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail != nil {
		return c.fail
	}
	for _, s := range scopes {
		m, ok := c.scopes[s.Key()]
		if !ok {
			m = make(map[string]uint64)
			c.scopes[s.Key()] = m
		}
		m[userID] = score
	}
	return nil
}

// Remove deletes the member from the listed scopes.
func (c *LeaderboardCache) Remove(_ context.Context, userID string, scopes []leaderboard.Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail != nil {
		return c.fail
	}
	for _, s := range scopes {
		c.removeLocked(s.Key(), userID)
	}
	return nil
}

// RemoveEverywhere deletes the member from every scope.
func (c *LeaderboardCache) RemoveEverywhere(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail != nil {
		return c.fail
	}
	for key := range c.scopes {
		c.removeLocked(key, userID)
	}
	return nil
}

func (c *LeaderboardCache) removeLocked(key, userID string) {
	m, ok := c.scopes[key]
	if !ok {
		return
	}
	delete(m, userID)
	if len(m) == 0 {
		delete(c.scopes, key)
	}
}

// Top returns the first limit members.
func (c *LeaderboardCache) Top(ctx context.Context, scope leaderboard.Scope, limit int) ([]leaderboard.ScoredMember, error) {
	all, err := c.All(ctx, scope)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []leaderboard.ScoredMember{}, nil
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// All returns the scope ordered as ZREVRANGE would: score desc, member desc.
func (c *LeaderboardCache) All(_ context.Context, scope leaderboard.Scope) ([]leaderboard.ScoredMember, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.fail != nil {
		return nil, c.fail
	}

	m := c.scopes[scope.Key()]
	out := make([]leaderboard.ScoredMember, 0, len(m))
	for id, score := range m {
		out = append(out, leaderboard.ScoredMember{UserID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return strings.Compare(out[i].UserID, out[j].UserID) > 0
	})
	return out, nil
}

// Rank returns the 1-based position of userID.
func (c *LeaderboardCache) Rank(ctx context.Context, userID string, scope leaderboard.Scope) (*int, uint64, error) {
	all, err := c.All(ctx, scope)
	if err != nil {
		return nil, 0, err
	}
	for i, m := range all {
		if m.UserID == userID {
			pos := i + 1
			return &pos, m.Score, nil
		}
	}
	return nil, 0, nil
}

// Clear drops the scope.
func (c *LeaderboardCache) Clear(_ context.Context, scope leaderboard.Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail != nil {
		return c.fail
	}
	delete(c.scopes, scope.Key())
	return nil
}
