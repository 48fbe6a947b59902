package arena

import "time"

// SessionRecord is the append-only historical fact of one accepted submission.
type SessionRecord struct {
	ID              string
	UserID          string
	Level           Level
	Score           uint64
	CorrectAnswers  uint32
	TotalQuestions  uint32
	DurationSeconds float64
	XPEarned        uint64
	StartedAt       time.Time
	EndedAt         time.Time
	ClientIP        string
	IsSuspicious    bool
}

// NewSessionRecord derives the record from an accepted submission.
// A session is marked suspicious when it only replayed known challenges
// or the player already has guard violations on file.
func NewSessionRecord(id string, p *Profile, sub SessionSubmission, reward Reward, endedAt time.Time, ip string) *SessionRecord {
	started := endedAt.Add(-time.Duration(sub.Duration * float64(time.Second)))
	return &SessionRecord{
		ID:              id,
		UserID:          p.UserID,
		Level:           sub.Level,
		Score:           sub.Score,
		CorrectAnswers:  uint32(sub.CorrectCount()),
		TotalQuestions:  sub.TotalQuestions,
		DurationSeconds: sub.Duration,
		XPEarned:        reward.XP,
		StartedAt:       started,
		EndedAt:         endedAt,
		ClientIP:        ip,
		IsSuspicious:    (reward.Training && sub.CorrectCount() > 0) || p.AntiCheat.SuspiciousAttempts > 0,
	}
}

// Challenge is read-only reference data from the content catalog.
type Challenge struct {
	ID                   string
	Level                Level
	Question             string
	Options              []string
	CorrectAnswerID      string
	XPReward             uint64
	DifficultyMultiplier float64
}
