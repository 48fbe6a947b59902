package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ARENA STATUS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetArenaStatusQuery asks for the caller's profile and standing.
type GetArenaStatusQuery struct {
	UserID string

	// Scope defaults to global.
	Scope   string
	Country string
	State   string
}

// ProfileView is the public projection of a profile.
type ProfileView struct {
	UserID              string             `json:"userId"`
	DisplayName         string             `json:"displayName"`
	AvatarURL           string             `json:"avatarUrl,omitempty"`
	XP                  uint64             `json:"xp"`
	RankPoints          uint64             `json:"rankPoints"`
	Level               arena.Level        `json:"level"`
	GamesPlayed         uint32             `json:"gamesPlayed"`
	Wins                uint32             `json:"wins"`
	CompletedChallenges int                `json:"completedChallenges"`
	Achievements        []string           `json:"achievements"`
	Country             string             `json:"country,omitempty"`
	Region              string             `json:"region,omitempty"`
	LeagueStatus        arena.LeagueStatus `json:"leagueStatus"`
	LastGameAt          *time.Time         `json:"lastGameAt,omitempty"`
	LockedUntil         *time.Time         `json:"lockedUntil,omitempty"`
}

// GetArenaStatusResult contains the projection and the scope position.
type GetArenaStatusResult struct {
	Profile ProfileView
	Scope   leaderboard.Scope
	Rank    leaderboard.UserRank
}

// GetArenaStatusHandler handles the GetArenaStatusQuery.
type GetArenaStatusHandler struct {
	profiles arena.ProfileStore
	board    leaderboard.Board
	clock    timeutil.Clock
}

// NewGetArenaStatusHandler creates the handler. clock may be nil.
func NewGetArenaStatusHandler(profiles arena.ProfileStore, board leaderboard.Board, clock timeutil.Clock) *GetArenaStatusHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &GetArenaStatusHandler{profiles: profiles, board: board, clock: clock}
}

// Handle returns the status. A user who never played gets the empty
// profile and no position; nothing is created.
func (h *GetArenaStatusHandler) Handle(ctx context.Context, q GetArenaStatusQuery) (*GetArenaStatusResult, error) {
	if !shared.ValidUserID(q.UserID) {
		return nil, shared.ErrInvalidUserID
	}
	scope, err := leaderboard.ParseScope(q.Scope, q.Country, q.State)
	if err != nil {
		return nil, err
	}

	p, err := h.profiles.Get(ctx, q.UserID)
	switch {
	case shared.IsNotFound(err):
		return &GetArenaStatusResult{
			Profile: NewProfileView(arena.NewProfile(q.UserID, h.clock.Now()), h.clock.Now()),
			Scope:   scope,
		}, nil
	case err != nil:
		return nil, fmt.Errorf("load profile: %w", err)
	}

	rank, err := h.board.GetUserRank(ctx, q.UserID, scope)
	if err != nil {
		return nil, fmt.Errorf("get rank: %w", err)
	}
	if !p.Visible() {
		// shadow-banned players see their own score but never a position
		rank.Position = nil
	}

	return &GetArenaStatusResult{
		Profile: NewProfileView(p, h.clock.Now()),
		Scope:   scope,
		Rank:    rank,
	}, nil
}

// NewProfileView projects p. The lockout is shown only while active.
func NewProfileView(p *arena.Profile, now time.Time) ProfileView {
	v := ProfileView{
		UserID:              p.UserID,
		DisplayName:         p.DisplayName,
		AvatarURL:           p.AvatarURL,
		XP:                  p.XP,
		RankPoints:          p.RankPoints,
		Level:               p.Level,
		GamesPlayed:         p.GamesPlayed,
		Wins:                p.Wins,
		CompletedChallenges: p.CompletedChallenges.Len(),
		Achievements:        p.Achievements.Sorted(),
		Country:             p.Location.Country,
		Region:              p.Location.Region,
		LeagueStatus:        p.LeagueStatus,
		LastGameAt:          p.LastGameAt,
	}
	if p.AntiCheat.IsLocked(now) {
		v.LockedUntil = p.AntiCheat.LockedUntil
	}
	return v
}
