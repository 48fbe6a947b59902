// Package memory provides in-process implementations of the arena ports.
// They back ARENA_STORAGE=memory and the application-layer tests, and keep
// the same versioning and ordering semantics as the PostgreSQL and Redis stores.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE STORE
// ══════════════════════════════════════════════════════════════════════════════

// ProfileStore is a versioned profile map. Returned profiles are copies.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*arena.Profile
	clock    timeutil.Clock
}

var _ arena.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore creates an empty store.
func NewProfileStore(clock timeutil.Clock) *ProfileStore {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &ProfileStore{profiles: make(map[string]*arena.Profile), clock: clock}
}

// Put replaces a profile wholesale. Used for seeding.
func (s *ProfileStore) Put(p *arena.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p.Clone()
}

// Get returns a copy of the stored profile.
func (s *ProfileStore) Get(_ context.Context, userID string) (*arena.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p.Clone(), nil
}

// GetOrCreate creates the implicit empty profile on first play.
func (s *ProfileStore) GetOrCreate(_ context.Context, userID string) (*arena.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		p = arena.NewProfile(userID, s.clock.Now())
		s.profiles[userID] = p
	}
	return p.Clone(), nil
}

// GetMany returns copies of the profiles that exist.
func (s *ProfileStore) GetMany(_ context.Context, userIDs []string) (map[string]*arena.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*arena.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			out[id] = p.Clone()
		}
	}
	return out, nil
}

// ApplyUpdate commits u iff the stored version matches.
func (s *ProfileStore) ApplyUpdate(_ context.Context, u arena.ProfileUpdate) (*arena.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[u.UserID]
	if !ok || p.Version != u.ExpectedVersion {
		return nil, shared.ErrVersionConflict
	}

	next := u.ApplyTo(p)
	if u.LastGameAt.IsZero() {
		next.UpdatedAt = s.clock.Now()
	}
	s.profiles[u.UserID] = next
	return next.Clone(), nil
}

// RecordViolation mirrors the SQL increment-and-maybe-lock statement.
func (s *ProfileStore) RecordViolation(_ context.Context, v arena.Violation) (arena.AntiCheatFlags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[v.UserID]
	if !ok {
		return arena.AntiCheatFlags{}, shared.ErrProfileNotFound
	}

	p.AntiCheat.SuspiciousAttempts++
	if v.IP != "" {
		p.AntiCheat.LastIP = v.IP
	}
	if p.AntiCheat.SuspiciousAttempts >= v.LockThreshold && !p.AntiCheat.IsLocked(v.At) {
		until := v.LockUntil
		p.AntiCheat.LockedUntil = &until
	}
	p.Version++
	p.UpdatedAt = v.At

	return p.Clone().AntiCheat, nil
}

// SetShadowBanned upserts the flag.
func (s *ProfileStore) SetShadowBanned(_ context.Context, userID string, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		p = arena.NewProfile(userID, s.clock.Now())
		s.profiles[userID] = p
	}
	p.AntiCheat.ShadowBanned = banned
	p.Version++
	p.UpdatedAt = s.clock.Now()
	return nil
}

// SetLeagueStatus tags existing users and reports how many were changed.
func (s *ProfileStore) SetLeagueStatus(_ context.Context, status arena.LeagueStatus, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	if !status.IsValid() {
		return 0, shared.WrapError("arena", "SetLeagueStatus", shared.ErrInvalidInput, "unknown league status", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := s.clock.Now()
	for _, id := range userIDs {
		p, ok := s.profiles[id]
		if !ok {
			continue
		}
		p.LeagueStatus = status
		p.Version++
		p.UpdatedAt = now
		n++
	}
	return n, nil
}

// TopByRankPoints orders by rankPoints desc, then user ID desc.
func (s *ProfileStore) TopByRankPoints(_ context.Context, filter arena.RankFilter, limit int) ([]*arena.Profile, error) {
	if limit <= 0 {
		return []*arena.Profile{}, nil
	}

	s.mu.RLock()
	matched := make([]*arena.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if filter.Matches(p) {
			matched = append(matched, p.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].RankPoints != matched[j].RankPoints {
			return matched[i].RankPoints > matched[j].RankPoints
		}
		return matched[i].UserID > matched[j].UserID
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ScanRanked pages visible ranked profiles by user ID.
func (s *ProfileStore) ScanRanked(_ context.Context, afterUserID string, limit int) ([]*arena.Profile, error) {
	if limit <= 0 {
		return []*arena.Profile{}, nil
	}

	s.mu.RLock()
	page := make([]*arena.Profile, 0, limit)
	for id, p := range s.profiles {
		if id > afterUserID && p.RankPoints > 0 && p.Visible() {
			page = append(page, p.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(page, func(i, j int) bool { return page[i].UserID < page[j].UserID })
	if len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}
