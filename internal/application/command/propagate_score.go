package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROPAGATE SCORE COMMAND
// Async leaderboard write for a committed session. Never credits rewards.
// ══════════════════════════════════════════════════════════════════════════════

// PropagateScoreCommand carries the rank points committed by a session.
type PropagateScoreCommand struct {
	UserID     string
	RankPoints uint64
	Country    string
	Region     string
}

// Validate validates the command.
func (c PropagateScoreCommand) Validate() error {
	if !shared.ValidUserID(c.UserID) {
		return shared.ErrInvalidUserID
	}
	return nil
}

// PropagateScoreResult contains the result of propagation.
type PropagateScoreResult struct {
	// Suppressed is set when the player is shadow-banned.
	Suppressed bool

	// RankPoints is the score written, which may exceed the carried value
	// when the job is older than the profile.
	RankPoints uint64
	Location   shared.Location
}

// PropagateScoreHandler handles the PropagateScoreCommand.
type PropagateScoreHandler struct {
	profiles arena.ProfileStore
	board    leaderboard.Board
	logger   *logger.Logger
}

// PropagateScoreConfig contains configuration for the handler.
type PropagateScoreConfig struct {
	Logger *logger.Logger
}

// NewPropagateScoreHandler creates the handler.
func NewPropagateScoreHandler(profiles arena.ProfileStore, board leaderboard.Board, config PropagateScoreConfig) *PropagateScoreHandler {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	return &PropagateScoreHandler{
		profiles: profiles,
		board:    board,
		logger:   config.Logger.With(logger.Component("propagate_score")),
	}
}

// Handle overwrites the player's score in every scope. A failed cache write
// is returned so the job is retried.
func (h *PropagateScoreHandler) Handle(ctx context.Context, cmd PropagateScoreCommand) (*PropagateScoreResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	points := cmd.RankPoints
	loc := shared.NewLocation(cmd.Country, cmd.Region)

	p, err := h.profiles.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if !p.Visible() {
		h.logger.Debug("score propagation suppressed", logger.UserID(cmd.UserID))
		return &PropagateScoreResult{Suppressed: true}, nil
	}
	if p.RankPoints > points {
		points = p.RankPoints
	}
	if !p.Location.IsZero() {
		loc = p.Location
	}

	if err := h.board.UpdateScore(ctx, cmd.UserID, points, loc); err != nil {
		return nil, fmt.Errorf("update leaderboard: %w", err)
	}

	h.logger.Debug("score propagated", logger.UserID(cmd.UserID), logger.RankPoints(points))
	return &PropagateScoreResult{RankPoints: points, Location: loc}, nil
}
