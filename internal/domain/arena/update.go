package arena

import (
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ProfileUpdate is the typed, versioned write applied after a session.
// Stores must apply it only if the stored version equals ExpectedVersion.
type ProfileUpdate struct {
	UserID          string
	ExpectedVersion int64

	XPDelta          uint64
	RankPointsDelta  uint64
	GamesPlayedDelta uint32
	WinsDelta        uint32

	AddChallenges   []string
	AddAchievements []string

	// Level is the tier after XPDelta is applied.
	Level      Level
	LastGameAt time.Time
	LastIP     string

	// Location replaces the cached location when non-nil.
	Location *shared.Location
}

// NewSessionUpdate builds the update for an accepted session reward.
func NewSessionUpdate(p *Profile, reward Reward, now time.Time, ip string, loc *shared.Location) ProfileUpdate {
	u := ProfileUpdate{
		UserID:           p.UserID,
		ExpectedVersion:  p.Version,
		XPDelta:          reward.XP,
		RankPointsDelta:  reward.Score,
		GamesPlayedDelta: 1,
		AddChallenges:    reward.NewIDs,
		LastGameAt:       now,
		LastIP:           ip,
		Location:         loc,
	}
	if reward.XP > 0 {
		u.WinsDelta = 1
	}
	u.Level = LevelForXP(p.XP + reward.XP)
	return u
}

// ApplyTo projects the update onto a copy of p, as the store will after commit.
func (u ProfileUpdate) ApplyTo(p *Profile) *Profile {
	next := p.Clone()
	next.XP += u.XPDelta
	next.RankPoints += u.RankPointsDelta
	next.GamesPlayed += u.GamesPlayedDelta
	next.Wins += u.WinsDelta
	next.CompletedChallenges.Add(u.AddChallenges...)
	next.Achievements.Add(u.AddAchievements...)
	if u.Level.IsValid() {
		next.Level = u.Level
	}
	if !u.LastGameAt.IsZero() {
		t := u.LastGameAt
		next.LastGameAt = &t
		next.UpdatedAt = t
	}
	if u.LastIP != "" {
		next.AntiCheat.LastIP = u.LastIP
	}
	if u.Location != nil {
		next.Location = *u.Location
	}
	next.Version = u.ExpectedVersion + 1
	return next
}

// Violation is a guard rejection to be recorded against a profile.
type Violation struct {
	UserID string
	IP     string
	Reason string
	At     time.Time
	// LockThreshold is the attempt count at which LockUntil takes effect.
	LockThreshold uint32
	LockUntil     time.Time
}
