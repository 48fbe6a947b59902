// Package arena contains the domain model of the quiz arena:
// player profiles, session submissions and the anti-farming reward rule.
package arena

import (
	"strings"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// Level is both a challenge difficulty and a player's tier.
type Level string

const (
	LevelEasy   Level = "easy"
	LevelMedium Level = "medium"
	LevelHard   Level = "hard"
	LevelExpert Level = "expert"
)

// XP thresholds at which a player reaches the next tier.
const (
	MediumXPThreshold uint64 = 500
	HardXPThreshold   uint64 = 2000
	ExpertXPThreshold uint64 = 5000
)

// IsValid checks the level is one of the known tiers.
func (l Level) IsValid() bool {
	switch l {
	case LevelEasy, LevelMedium, LevelHard, LevelExpert:
		return true
	}
	return false
}

// String returns the level name.
func (l Level) String() string { return string(l) }

// ParseLevel parses a level name case-insensitively.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.IsValid() {
		return "", shared.ErrInvalidLevel
	}
	return l, nil
}

// LevelForXP returns the tier a cumulative XP total belongs to.
func LevelForXP(xp uint64) Level {
	switch {
	case xp >= ExpertXPThreshold:
		return LevelExpert
	case xp >= HardXPThreshold:
		return LevelHard
	case xp >= MediumXPThreshold:
		return LevelMedium
	default:
		return LevelEasy
	}
}
