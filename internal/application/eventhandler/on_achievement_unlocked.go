package eventhandler

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// AchievementNotifier is the notification sink for unlocked achievements.
type AchievementNotifier interface {
	NotifyAchievement(ctx context.Context, ev shared.AchievementUnlockedEvent) error
}

// OnAchievementUnlockedHandler forwards unlocks to the notifier.
type OnAchievementUnlockedHandler struct {
	notifier AchievementNotifier
}

// NewOnAchievementUnlockedHandler creates the handler.
func NewOnAchievementUnlockedHandler(notifier AchievementNotifier) *OnAchievementUnlockedHandler {
	return &OnAchievementUnlockedHandler{notifier: notifier}
}

// Handle implements shared.EventHandler.
func (h *OnAchievementUnlockedHandler) Handle(ctx context.Context, event shared.Event) error {
	ev, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		return nil
	}
	return h.notifier.NotifyAchievement(ctx, ev)
}
