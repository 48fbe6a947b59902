// Package achievement holds the arena's achievement rules.
// The rule table is built once at init and never mutated.
package achievement

import (
	"sort"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
)

// RuleID names an achievement.
type RuleID string

const (
	FirstScore     RuleID = "first_score"
	FiveCorrect    RuleID = "five_correct"
	ExpertWin      RuleID = "expert_win"
	TenSessions    RuleID = "ten_sessions"
	PerfectSession RuleID = "perfect_session"
	ThousandXP     RuleID = "xp_1000"
)

// Snapshot is what a rule sees: the profile as it will be after the
// session update commits, plus the session and its effective reward.
type Snapshot struct {
	Profile *arena.Profile
	Session arena.SessionSubmission
	Reward  arena.Reward
}

// Rule is a named predicate over a snapshot.
type Rule struct {
	ID          RuleID
	Title       string
	Description string
	Satisfied   func(Snapshot) bool
}

var rules = map[RuleID]Rule{
	FirstScore: {
		ID:          FirstScore,
		Title:       "First Blood",
		Description: "Earn rank points for the first time",
		Satisfied:   func(s Snapshot) bool { return s.Reward.Score > 0 },
	},
	FiveCorrect: {
		ID:          FiveCorrect,
		Title:       "High Five",
		Description: "Answer at least five questions correctly in one session",
		Satisfied:   func(s Snapshot) bool { return s.Session.CorrectCount() >= 5 },
	},
	ExpertWin: {
		ID:          ExpertWin,
		Title:       "Expert",
		Description: "Win a session at expert level",
		Satisfied: func(s Snapshot) bool {
			return s.Session.Level == arena.LevelExpert && s.Reward.XP > 0
		},
	},
	TenSessions: {
		ID:          TenSessions,
		Title:       "Regular",
		Description: "Play ten arena sessions",
		Satisfied:   func(s Snapshot) bool { return s.Profile.GamesPlayed >= 10 },
	},
	PerfectSession: {
		ID:          PerfectSession,
		Title:       "Flawless",
		Description: "Answer every question of a five-plus question session correctly",
		Satisfied: func(s Snapshot) bool {
			return s.Session.TotalQuestions >= 5 && s.Session.CorrectCount() == int(s.Session.TotalQuestions)
		},
	},
	ThousandXP: {
		ID:          ThousandXP,
		Title:       "Thousand",
		Description: "Reach 1000 cumulative XP",
		Satisfied:   func(s Snapshot) bool { return s.Profile.XP >= 1000 },
	},
}

var ruleOrder = func() []RuleID {
	ids := make([]RuleID, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}()

// Lookup returns the rule with the given id.
func Lookup(id RuleID) (Rule, bool) {
	r, ok := rules[id]
	return r, ok
}

// All returns every rule in a stable order.
func All() []Rule {
	out := make([]Rule, 0, len(ruleOrder))
	for _, id := range ruleOrder {
		out = append(out, rules[id])
	}
	return out
}

// Evaluate returns the rules newly satisfied by the snapshot.
// Rules already present in the profile's achievements are skipped.
func Evaluate(s Snapshot) []Rule {
	var unlocked []Rule
	for _, id := range ruleOrder {
		if s.Profile.Achievements.Has(string(id)) {
			continue
		}
		r := rules[id]
		if r.Satisfied(s) {
			unlocked = append(unlocked, r)
		}
	}
	return unlocked
}

// IDs returns the string ids of rules.
func IDs(rs []Rule) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r.ID)
	}
	return out
}
