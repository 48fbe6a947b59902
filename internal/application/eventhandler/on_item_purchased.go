package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// BoostGranter records an active XP multiplier that expires after ttl.
type BoostGranter interface {
	Grant(ctx context.Context, userID string, multiplier float64, ttl time.Duration) error
}

// OnItemPurchasedHandler activates purchased XP boosts. Other item kinds
// are ignored.
type OnItemPurchasedHandler struct {
	boosts BoostGranter
	logger *logger.Logger
}

// NewOnItemPurchasedHandler creates the handler.
func NewOnItemPurchasedHandler(boosts BoostGranter, log *logger.Logger) *OnItemPurchasedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnItemPurchasedHandler{
		boosts: boosts,
		logger: log.With(logger.Component("on_item_purchased")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnItemPurchasedHandler) Handle(ctx context.Context, event shared.Event) error {
	ev, ok := event.(shared.ItemPurchasedEvent)
	if !ok || ev.ItemKind != shared.ItemKindXPBoost {
		return nil
	}
	if ev.Multiplier < 1 || ev.Duration <= 0 || !shared.ValidUserID(ev.UserID) {
		h.logger.Warn("ignoring malformed xp boost",
			logger.UserID(ev.UserID),
			logger.Float64("multiplier", ev.Multiplier),
			logger.Duration("duration", ev.Duration),
		)
		return nil
	}

	if err := h.boosts.Grant(ctx, ev.UserID, ev.Multiplier, ev.Duration); err != nil {
		return fmt.Errorf("grant boost: %w", err)
	}
	h.logger.Info("xp boost activated",
		logger.UserID(ev.UserID),
		logger.Float64("multiplier", ev.Multiplier),
		logger.Duration("duration", ev.Duration),
	)
	return nil
}
