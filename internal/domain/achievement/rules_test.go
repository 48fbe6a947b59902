package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
)

func snapshot(mutate func(*Snapshot)) Snapshot {
	p := arena.NewProfile("u1", time.Now())
	p.GamesPlayed = 1
	s := Snapshot{
		Profile: p,
		Session: arena.SessionSubmission{
			Level:              arena.LevelEasy,
			TotalQuestions:     10,
			CorrectQuestionIDs: []string{"a", "b"},
		},
		Reward: arena.Reward{XP: 20, Score: 2},
	}
	if mutate != nil {
		mutate(&s)
	}
	return s
}

func TestEvaluate_FirstScore(t *testing.T) {
	got := IDs(Evaluate(snapshot(nil)))
	assert.Equal(t, []string{string(FirstScore)}, got)
}

func TestEvaluate_SkipsUnlocked(t *testing.T) {
	s := snapshot(func(s *Snapshot) { s.Profile.Achievements.Add(string(FirstScore)) })
	assert.Empty(t, Evaluate(s))
}

func TestEvaluate_MultipleRules(t *testing.T) {
	s := snapshot(func(s *Snapshot) {
		s.Session.Level = arena.LevelExpert
		s.Session.TotalQuestions = 5
		s.Session.CorrectQuestionIDs = []string{"a", "b", "c", "d", "e"}
		s.Profile.GamesPlayed = 10
		s.Profile.XP = 1200
	})

	got := IDs(Evaluate(s))
	assert.ElementsMatch(t, []string{
		string(ExpertWin), string(FirstScore), string(FiveCorrect),
		string(PerfectSession), string(TenSessions), string(ThousandXP),
	}, got)
}

func TestEvaluate_TrainingRewardIsNotFirstScore(t *testing.T) {
	s := snapshot(func(s *Snapshot) { s.Reward = arena.Reward{XP: 10, Training: true} })
	assert.Empty(t, Evaluate(s))
}

func TestAll_StableOrder(t *testing.T) {
	a, b := All(), All()
	assert.Len(t, a, 6)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}
	r, ok := Lookup(ExpertWin)
	assert.True(t, ok)
	assert.Equal(t, "Expert", r.Title)
}
