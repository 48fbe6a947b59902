package redis

import (
	"context"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// Notification is the message published for the notification service.
type Notification struct {
	Kind      string            `json:"kind"`
	UserID    string            `json:"user_id"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NotificationSink forwards notifications over Redis pub/sub.
// Delivery is fire-and-forget: messages published with no subscriber are lost.
type NotificationSink struct {
	cache   *Cache
	channel string
}

// NewNotificationSink publishes on ChannelNotifications.
func NewNotificationSink(cache *Cache) *NotificationSink {
	return &NotificationSink{cache: cache, channel: ChannelNotifications}
}

// Notify publishes n.
func (s *NotificationSink) Notify(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return s.cache.Publish(ctx, s.channel, n)
}

// NotifyAchievement publishes an achievement unlock.
func (s *NotificationSink) NotifyAchievement(ctx context.Context, ev shared.AchievementUnlockedEvent) error {
	return s.Notify(ctx, Notification{
		Kind:      string(shared.EventAchievementUnlocked),
		UserID:    ev.UserID,
		Data:      map[string]string{"rule_id": ev.RuleID, "title": ev.Title},
		CreatedAt: ev.OccurredAt(),
	})
}
