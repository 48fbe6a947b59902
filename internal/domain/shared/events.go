package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. The set is closed: decoders below are keyed by it.
const (
	EventGameCompleted       EventType = "game.completed"
	EventAchievementUnlocked EventType = "achievement.unlocked"
	EventItemPurchased       EventType = "item.purchased"
	EventUserShadowBanned    EventType = "user.shadow_banned"
	EventSeasonRotated       EventType = "season.rotated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for logging and transport.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Arena Events
// ═══════════════════════════════════════════════════════════════════════════

// GameCompletedEvent is emitted after a session reward has been committed.
// RankPoints is the user's cumulative total, not the delta.
type GameCompletedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	RankPoints  uint64 `json:"rank_points"`
	Country     string `json:"country,omitempty"`
	Region      string `json:"region,omitempty"`
	ClientIP    string `json:"client_ip,omitempty"`
	EffectiveXP uint64 `json:"effective_xp"`
}

// Payload implements Event interface.
func (e GameCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"rank_points":  e.RankPoints,
		"country":      e.Country,
		"region":       e.Region,
		"client_ip":    e.ClientIP,
		"effective_xp": e.EffectiveXP,
	}
}

// NewGameCompletedEvent creates a new GameCompletedEvent.
func NewGameCompletedEvent(userID string, rankPoints, effectiveXP uint64, country, region, clientIP string) GameCompletedEvent {
	return GameCompletedEvent{
		BaseEvent:   NewBaseEvent(EventGameCompleted, userID),
		UserID:      userID,
		RankPoints:  rankPoints,
		Country:     country,
		Region:      region,
		ClientIP:    clientIP,
		EffectiveXP: effectiveXP,
	}
}

// AchievementUnlockedEvent is emitted once per rule per user.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	RuleID string `json:"rule_id"`
	Title  string `json:"title"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"rule_id": e.RuleID,
		"title":   e.Title,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, ruleID, title string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent: NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:    userID,
		RuleID:    ruleID,
		Title:     title,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Collaborator Events
// ═══════════════════════════════════════════════════════════════════════════

// ItemPurchasedEvent is emitted by the economy subsystem.
// Only items of kind "xp_boost" matter to the arena.
type ItemPurchasedEvent struct {
	BaseEvent
	UserID     string        `json:"user_id"`
	ItemKind   string        `json:"item_kind"`
	Multiplier float64       `json:"multiplier"`
	Duration   time.Duration `json:"duration"`
}

// ItemKindXPBoost marks a purchase that temporarily multiplies XP.
const ItemKindXPBoost = "xp_boost"

// Payload implements Event interface.
func (e ItemPurchasedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"item_kind":  e.ItemKind,
		"multiplier": e.Multiplier,
		"duration":   e.Duration.String(),
	}
}

// NewItemPurchasedEvent creates a new ItemPurchasedEvent.
func NewItemPurchasedEvent(userID, kind string, multiplier float64, duration time.Duration) ItemPurchasedEvent {
	return ItemPurchasedEvent{
		BaseEvent:  NewBaseEvent(EventItemPurchased, userID),
		UserID:     userID,
		ItemKind:   kind,
		Multiplier: multiplier,
		Duration:   duration,
	}
}

// UserShadowBannedEvent is emitted by moderation.
type UserShadowBannedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// Payload implements Event interface.
func (e UserShadowBannedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"reason":  e.Reason,
	}
}

// NewUserShadowBannedEvent creates a new UserShadowBannedEvent.
func NewUserShadowBannedEvent(userID, reason string) UserShadowBannedEvent {
	return UserShadowBannedEvent{
		BaseEvent: NewBaseEvent(EventUserShadowBanned, userID),
		UserID:    userID,
		Reason:    reason,
	}
}

// SeasonRotatedEvent is emitted after a weekly reset.
type SeasonRotatedEvent struct {
	BaseEvent
	SeasonNumber int `json:"season_number"`
	Promoted     int `json:"promoted"`
	Stable       int `json:"stable"`
	Demoted      int `json:"demoted"`
}

// Payload implements Event interface.
func (e SeasonRotatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"season_number": e.SeasonNumber,
		"promoted":      e.Promoted,
		"stable":        e.Stable,
		"demoted":       e.Demoted,
	}
}

// NewSeasonRotatedEvent creates a new SeasonRotatedEvent.
func NewSeasonRotatedEvent(seasonNumber, promoted, stable, demoted int) SeasonRotatedEvent {
	return SeasonRotatedEvent{
		BaseEvent:    NewBaseEvent(EventSeasonRotated, fmt.Sprintf("season-%d", seasonNumber)),
		SeasonNumber: seasonNumber,
		Promoted:     promoted,
		Stable:       stable,
		Demoted:      demoted,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport.
type EventEnvelope struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Source      string          `json:"source,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

var eventDecoders = map[EventType]func(json.RawMessage) (Event, error){
	EventGameCompleted:       decodeInto[GameCompletedEvent],
	EventAchievementUnlocked: decodeInto[AchievementUnlockedEvent],
	EventItemPurchased:       decodeInto[ItemPurchasedEvent],
	EventUserShadowBanned:    decodeInto[UserShadowBannedEvent],
	EventSeasonRotated:       decodeInto[SeasonRotatedEvent],
}

func decodeInto[T Event](raw json.RawMessage) (Event, error) {
	var ev T
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// KnownEventType reports whether t is one of the arena's event types.
func KnownEventType(t EventType) bool {
	_, ok := eventDecoders[t]
	return ok
}

// NewEnvelope serializes event into an envelope.
func NewEnvelope(id, source string, event Event) (EventEnvelope, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal %s: %w", event.EventType(), err)
	}
	return EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Source:      source,
		Payload:     raw,
	}, nil
}

// Decode reconstructs the typed event carried by the envelope.
func (env EventEnvelope) Decode() (Event, error) {
	decode, ok := eventDecoders[env.Type]
	if !ok {
		return nil, WrapError("event", "Decode", ErrInvalidInput, "unknown event type", fmt.Errorf("%q", env.Type))
	}
	ev, err := decode(env.Payload)
	if err != nil {
		return nil, WrapError("event", "Decode", ErrInvalidInput, "malformed payload", err)
	}
	return ev, nil
}

// EventHandler handles an event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
