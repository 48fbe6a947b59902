package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// SetShadowBanCommand toggles a player's leaderboard visibility.
type SetShadowBanCommand struct {
	UserID string
	Banned bool
	Reason string
}

// SetShadowBanResult contains the result.
type SetShadowBanResult struct {
	// RemovedFromBoards is set when the player was dropped from every scope.
	RemovedFromBoards bool
}

// SetShadowBanHandler handles the SetShadowBanCommand.
type SetShadowBanHandler struct {
	profiles arena.ProfileStore
	board    leaderboard.Board
	logger   *logger.Logger
}

// NewSetShadowBanHandler creates the handler.
func NewSetShadowBanHandler(profiles arena.ProfileStore, board leaderboard.Board, log *logger.Logger) *SetShadowBanHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SetShadowBanHandler{
		profiles: profiles,
		board:    board,
		logger:   log.With(logger.Component("shadow_ban")),
	}
}

// Handle persists the flag, then removes a banned player from every
// leaderboard. Unbanned players reappear on their next propagated score.
func (h *SetShadowBanHandler) Handle(ctx context.Context, cmd SetShadowBanCommand) (*SetShadowBanResult, error) {
	if !shared.ValidUserID(cmd.UserID) {
		return nil, shared.ErrInvalidUserID
	}

	if err := h.profiles.SetShadowBanned(ctx, cmd.UserID, cmd.Banned); err != nil {
		return nil, fmt.Errorf("set shadow ban: %w", err)
	}
	h.logger.Warn("shadow ban updated",
		logger.UserID(cmd.UserID),
		logger.Bool("banned", cmd.Banned),
		logger.String("reason", cmd.Reason),
	)

	if !cmd.Banned {
		return &SetShadowBanResult{}, nil
	}
	if err := h.board.RemoveEverywhere(ctx, cmd.UserID); err != nil {
		return nil, fmt.Errorf("remove from leaderboards: %w", err)
	}
	return &SetShadowBanResult{RemovedFromBoards: true}, nil
}
