package eventhandler

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/application/command"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// OnUserShadowBannedHandler applies moderation bans.
type OnUserShadowBannedHandler struct {
	ban *command.SetShadowBanHandler
}

// NewOnUserShadowBannedHandler creates the handler.
func NewOnUserShadowBannedHandler(ban *command.SetShadowBanHandler) *OnUserShadowBannedHandler {
	return &OnUserShadowBannedHandler{ban: ban}
}

// Handle implements shared.EventHandler.
func (h *OnUserShadowBannedHandler) Handle(ctx context.Context, event shared.Event) error {
	ev, ok := event.(shared.UserShadowBannedEvent)
	if !ok {
		return nil
	}
	_, err := h.ban.Handle(ctx, command.SetShadowBanCommand{
		UserID: ev.UserID,
		Banned: true,
		Reason: ev.Reason,
	})
	return err
}
