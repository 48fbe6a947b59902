// Package leaderboard contains the ranking model: scopes, positions and entries.
// The cache is never authoritative; every entry can be rebuilt from profiles.
package leaderboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCOPE
// ══════════════════════════════════════════════════════════════════════════════

// ScopeKind is the partition family of a leaderboard.
type ScopeKind string

const (
	ScopeGlobal  ScopeKind = "global"
	ScopeWeekly  ScopeKind = "weekly"
	ScopeCountry ScopeKind = "country"
	ScopeState   ScopeKind = "state"
)

// Scope identifies one leaderboard partition.
type Scope struct {
	Kind    ScopeKind
	Country string
	Region  string
}

// Global is the all-time leaderboard.
func Global() Scope { return Scope{Kind: ScopeGlobal} }

// Weekly is the leaderboard cleared by every weekly reset.
func Weekly() Scope { return Scope{Kind: ScopeWeekly} }

// Country is the per-country leaderboard.
func Country(code string) Scope {
	return Scope{Kind: ScopeCountry, Country: shared.NewLocation(code, "").Country}
}

// State is the per-region leaderboard inside a country.
func State(country, region string) Scope {
	loc := shared.NewLocation(country, region)
	return Scope{Kind: ScopeState, Country: loc.Country, Region: loc.Region}
}

// ParseScope builds a scope from request parameters.
func ParseScope(kind, country, state string) (Scope, error) {
	switch ScopeKind(strings.ToLower(strings.TrimSpace(kind))) {
	case "", ScopeGlobal:
		return Global(), nil
	case ScopeWeekly:
		return Weekly(), nil
	case ScopeCountry:
		s := Country(country)
		if s.Country == "" {
			return Scope{}, shared.WrapError("leaderboard", "ParseScope", shared.ErrInvalidInput, "country scope requires country", nil)
		}
		return s, nil
	case ScopeState:
		s := State(country, state)
		if s.Country == "" || s.Region == "" {
			return Scope{}, shared.WrapError("leaderboard", "ParseScope", shared.ErrInvalidInput, "state scope requires country and state", nil)
		}
		return s, nil
	default:
		return Scope{}, shared.WrapError("leaderboard", "ParseScope", shared.ErrInvalidInput, "unknown scope", fmt.Errorf("%q", kind))
	}
}

// Key is the partition suffix: global, weekly, country:{X}, state:{X}:{Y}.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeCountry:
		return "country:" + s.Country
	case ScopeState:
		return "state:" + s.Country + ":" + s.Region
	default:
		return string(s.Kind)
	}
}

// String implements fmt.Stringer.
func (s Scope) String() string { return s.Key() }

// Filter translates the scope into the durable-store query used by the fallback.
// weekStart bounds the weekly scope to players active since the last reset.
func (s Scope) Filter(weekStart time.Time) arena.RankFilter {
	switch s.Kind {
	case ScopeWeekly:
		return arena.RankFilter{PlayedSince: &weekStart}
	case ScopeCountry:
		return arena.RankFilter{Country: s.Country}
	case ScopeState:
		return arena.RankFilter{Country: s.Country, Region: s.Region}
	default:
		return arena.RankFilter{}
	}
}

// ScopesFor lists every scope a player with the given location belongs to.
func ScopesFor(loc shared.Location) []Scope {
	scopes := []Scope{Global(), Weekly()}
	if loc.HasCountry() {
		scopes = append(scopes, Country(loc.Country))
	}
	if loc.HasRegion() {
		scopes = append(scopes, State(loc.Country, loc.Region))
	}
	return scopes
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// ScoredMember is a raw (member, score) pair from the cache.
type ScoredMember struct {
	UserID string
	Score  uint64
}

// RankingEntry is a hydrated leaderboard row.
type RankingEntry struct {
	Position    int         `json:"position"`
	UserID      string      `json:"userId"`
	Score       uint64      `json:"score"`
	DisplayName string      `json:"displayName"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	Level       arena.Level `json:"level"`
	Country     string      `json:"country,omitempty"`
	Region      string      `json:"region,omitempty"`
}

// UserRank is a player's standing in a scope. Position is nil when absent.
type UserRank struct {
	Position *int   `json:"position"`
	Score    uint64 `json:"score"`
}

// Source records which store answered a read.
type Source string

const (
	SourceCache Source = "cache"
	SourceStore Source = "store"
)

// ClampLimit bounds page sizes requested by clients.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)
