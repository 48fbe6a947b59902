// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RANKING QUERY
// Top-N of one leaderboard scope. The response shape is the same whether the
// cache or the profile store answered.
// ══════════════════════════════════════════════════════════════════════════════

// GetRankingQuery contains the ranking request parameters.
type GetRankingQuery struct {
	// Scope is global, weekly, country or state; empty means global.
	Scope   string
	Country string
	State   string

	// Limit defaults to 10 and is capped at 100.
	Limit int
}

// GetRankingResult contains the ordered entries.
type GetRankingResult struct {
	Scope   leaderboard.Scope
	Entries []leaderboard.RankingEntry
	Source  leaderboard.Source
}

// GetRankingHandler handles the GetRankingQuery.
type GetRankingHandler struct {
	board leaderboard.Board
}

// NewGetRankingHandler creates the handler.
func NewGetRankingHandler(board leaderboard.Board) *GetRankingHandler {
	return &GetRankingHandler{board: board}
}

// Handle returns the ranking. Unknown scopes are validation errors.
func (h *GetRankingHandler) Handle(ctx context.Context, q GetRankingQuery) (*GetRankingResult, error) {
	scope, err := leaderboard.ParseScope(q.Scope, q.Country, q.State)
	if err != nil {
		return nil, err
	}

	entries, source, err := h.board.GetTop(ctx, scope, leaderboard.ClampLimit(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("get top %s: %w", scope, err)
	}
	if entries == nil {
		entries = []leaderboard.RankingEntry{}
	}

	return &GetRankingResult{Scope: scope, Entries: entries, Source: source}, nil
}
