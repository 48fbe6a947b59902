// Package eventhandler contains the subscribers that react to domain events.
// They run synchronously inside the publisher's call; anything slow or
// retryable is handed to the job queue.
package eventhandler

import (
	"context"
	"fmt"

	"github.com/alem-hub/arena-engine/internal/application/jobs"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON GAME COMPLETED
// Turns a committed session into a durable process-game-result job.
// ══════════════════════════════════════════════════════════════════════════════

// OnGameCompletedHandler enqueues score propagation.
type OnGameCompletedHandler struct {
	jobs   jobs.Submitter
	logger *logger.Logger
}

// NewOnGameCompletedHandler creates the handler.
func NewOnGameCompletedHandler(submitter jobs.Submitter, log *logger.Logger) *OnGameCompletedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnGameCompletedHandler{
		jobs:   submitter,
		logger: log.With(logger.Component("on_game_completed")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnGameCompletedHandler) Handle(ctx context.Context, event shared.Event) error {
	ev, ok := event.(shared.GameCompletedEvent)
	if !ok {
		h.logger.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	err := h.jobs.Submit(ctx, jobs.NameProcessGameResult, jobs.GameResultPayload{
		UserID:     ev.UserID,
		RankPoints: ev.RankPoints,
		Country:    ev.Country,
		Region:     ev.Region,
		ClientIP:   ev.ClientIP,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobs.NameProcessGameResult, err)
	}

	h.logger.Debug("score propagation enqueued", logger.UserID(ev.UserID), logger.RankPoints(ev.RankPoints))
	return nil
}
