package arena

import (
	"sort"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ID SET
// ══════════════════════════════════════════════════════════════════════════════

// IDSet is an unordered set of string identifiers.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids, ignoring empty strings.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Has reports membership.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts ids.
func (s IDSet) Add(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
}

// Len returns the number of members.
func (s IDSet) Len() int { return len(s) }

// Minus returns the members of s not present in other, sorted.
func (s IDSet) Minus(other IDSet) []string {
	out := make([]string, 0, len(s))
	for id := range s {
		if !other.Has(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Sorted returns the members in lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// LeagueStatus is the tag assigned by the last weekly rotation.
type LeagueStatus string

const (
	LeagueNone     LeagueStatus = "none"
	LeaguePromoted LeagueStatus = "promoted"
	LeagueStable   LeagueStatus = "stable"
	LeagueDemoted  LeagueStatus = "demoted"
)

// IsValid checks the status is known.
func (s LeagueStatus) IsValid() bool {
	switch s {
	case LeagueNone, LeaguePromoted, LeagueStable, LeagueDemoted:
		return true
	}
	return false
}

// AntiCheatFlags is the guard's bookkeeping on a profile.
type AntiCheatFlags struct {
	LockedUntil        *time.Time
	LastIP             string
	SuspiciousAttempts uint32
	ShadowBanned       bool
}

// IsLocked reports whether the lockout is still in effect at now.
func (f AntiCheatFlags) IsLocked(now time.Time) bool {
	return f.LockedUntil != nil && f.LockedUntil.After(now)
}

// Profile is a player's durable arena record.
// XP and RankPoints never decrease; CompletedChallenges and Achievements only grow.
type Profile struct {
	UserID      string
	DisplayName string
	AvatarURL   string

	XP          uint64
	RankPoints  uint64
	Level       Level
	GamesPlayed uint32
	Wins        uint32

	CompletedChallenges IDSet
	Achievements        IDSet

	Location     shared.Location
	AntiCheat    AntiCheatFlags
	LeagueStatus LeagueStatus
	LastGameAt   *time.Time

	// Version is the optimistic concurrency token, bumped by every write.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProfile returns the implicit profile of a user who has never played.
func NewProfile(userID string, now time.Time) *Profile {
	return &Profile{
		UserID:              userID,
		Level:               LevelEasy,
		CompletedChallenges: NewIDSet(),
		Achievements:        NewIDSet(),
		LeagueStatus:        LeagueNone,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Clone returns a deep copy so projections never alias stored sets.
func (p *Profile) Clone() *Profile {
	c := *p
	c.CompletedChallenges = p.CompletedChallenges.Clone()
	c.Achievements = p.Achievements.Clone()
	if p.LastGameAt != nil {
		t := *p.LastGameAt
		c.LastGameAt = &t
	}
	if p.AntiCheat.LockedUntil != nil {
		t := *p.AntiCheat.LockedUntil
		c.AntiCheat.LockedUntil = &t
	}
	return &c
}

// Visible reports whether the player may appear on public leaderboards.
func (p *Profile) Visible() bool { return !p.AntiCheat.ShadowBanned }

// RankFilter selects profiles for the durable-store leaderboard fallback.
type RankFilter struct {
	Country string
	Region  string
	// PlayedSince restricts to players active since the given instant (weekly scope).
	PlayedSince *time.Time
}

// Matches applies the filter to a single profile. Shadow-banned players never match.
func (f RankFilter) Matches(p *Profile) bool {
	if p.AntiCheat.ShadowBanned {
		return false
	}
	if f.Country != "" && p.Location.Country != f.Country {
		return false
	}
	if f.Region != "" && p.Location.Region != f.Region {
		return false
	}
	if f.PlayedSince != nil && (p.LastGameAt == nil || p.LastGameAt.Before(*f.PlayedSince)) {
		return false
	}
	return true
}
