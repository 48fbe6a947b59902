// Package jobs defines the background job kinds and their payloads.
// Producers enqueue through Submitter; the worker binary routes each name
// to Runner.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alem-hub/arena-engine/internal/application/command"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/retry"
)

const (
	// NameProcessGameResult propagates a committed score to the leaderboards.
	NameProcessGameResult = "process-game-result"

	// NameWeeklyReset rotates league tags and clears the weekly scope.
	NameWeeklyReset = "weekly-reset"

	// NameRebuildLeaderboard re-seeds every scope from the profile store.
	NameRebuildLeaderboard = "rebuild-leaderboard"
)

// Submitter enqueues a job by name.
type Submitter interface {
	Submit(ctx context.Context, name string, payload any) error
}

// GameResultPayload is carried by process-game-result.
type GameResultPayload struct {
	UserID     string `json:"user_id"`
	RankPoints uint64 `json:"rank_points"`
	Country    string `json:"country,omitempty"`
	Region     string `json:"region,omitempty"`
	ClientIP   string `json:"client_ip,omitempty"`
}

// WeeklyResetPayload is carried by weekly-reset.
type WeeklyResetPayload struct {
	// WeekStart identifies the week being closed.
	WeekStart time.Time `json:"week_start"`
}

// RebuildLeaderboardPayload is carried by rebuild-leaderboard.
type RebuildLeaderboardPayload struct {
	// Reason is informational: "startup", "cron" or "manual".
	Reason string `json:"reason,omitempty"`
}

// Runner executes job payloads against the application commands.
type Runner struct {
	propagate *command.PropagateScoreHandler
	reset     *command.WeeklyResetHandler
	rebuild   *command.RebuildLeaderboardHandler
}

// NewRunner creates a Runner.
func NewRunner(
	propagate *command.PropagateScoreHandler,
	reset *command.WeeklyResetHandler,
	rebuild *command.RebuildLeaderboardHandler,
) *Runner {
	return &Runner{propagate: propagate, reset: reset, rebuild: rebuild}
}

// ProcessGameResult handles a process-game-result payload.
// Malformed payloads are permanent failures.
func (r *Runner) ProcessGameResult(ctx context.Context, raw json.RawMessage) error {
	var p GameResultPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	_, err := r.propagate.Handle(ctx, command.PropagateScoreCommand{
		UserID:     p.UserID,
		RankPoints: p.RankPoints,
		Country:    p.Country,
		Region:     p.Region,
	})
	if err != nil && isPermanent(err) {
		return retry.Permanent(err)
	}
	return err
}

// WeeklyReset handles a weekly-reset payload.
func (r *Runner) WeeklyReset(ctx context.Context, raw json.RawMessage) error {
	var p WeeklyResetPayload
	if len(raw) > 0 {
		if err := decode(raw, &p); err != nil {
			return err
		}
	}
	_, err := r.reset.Handle(ctx, command.WeeklyResetCommand{WeekStart: p.WeekStart})
	return err
}

// RebuildLeaderboard handles a rebuild-leaderboard payload.
func (r *Runner) RebuildLeaderboard(ctx context.Context, raw json.RawMessage) error {
	var p RebuildLeaderboardPayload
	if len(raw) > 0 {
		if err := decode(raw, &p); err != nil {
			return err
		}
	}
	_, err := r.rebuild.Handle(ctx, command.RebuildLeaderboardCommand{})
	return err
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return retry.Permanent(fmt.Errorf("decode job payload: %w", err))
	}
	return nil
}

// isPermanent reports errors that no retry can fix.
func isPermanent(err error) bool {
	return shared.IsValidation(err) || shared.IsNotFound(err)
}
