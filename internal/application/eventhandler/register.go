package eventhandler

import (
	"fmt"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// Handlers is the set of subscribers wired by the API process.
// Nil members are not subscribed.
type Handlers struct {
	GameCompleted       *OnGameCompletedHandler
	ItemPurchased       *OnItemPurchasedHandler
	UserShadowBanned    *OnUserShadowBannedHandler
	AchievementUnlocked *OnAchievementUnlockedHandler
}

// Register subscribes every configured handler to its event type.
func (hs Handlers) Register(sub shared.EventSubscriber) error {
	subs := make(map[shared.EventType]shared.EventHandler, 4)
	if hs.GameCompleted != nil {
		subs[shared.EventGameCompleted] = hs.GameCompleted.Handle
	}
	if hs.ItemPurchased != nil {
		subs[shared.EventItemPurchased] = hs.ItemPurchased.Handle
	}
	if hs.UserShadowBanned != nil {
		subs[shared.EventUserShadowBanned] = hs.UserShadowBanned.Handle
	}
	if hs.AchievementUnlocked != nil {
		subs[shared.EventAchievementUnlocked] = hs.AchievementUnlocked.Handle
	}

	for eventType, h := range subs {
		if err := sub.Subscribe(eventType, h); err != nil {
			return fmt.Errorf("subscribe %s: %w", eventType, err)
		}
	}
	return nil
}
