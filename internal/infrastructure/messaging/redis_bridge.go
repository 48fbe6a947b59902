package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
	rediscache "github.com/alem-hub/arena-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS BRIDGE
// ══════════════════════════════════════════════════════════════════════════════

// RedisBridge carries event envelopes between processes over Redis pub/sub.
// Inbound envelopes are decoded and republished on the local bus; Emit is how
// collaborators (economy, moderation) raise arena events from elsewhere.
//
// Pub/sub is fire-and-forget: envelopes published while no bridge is
// subscribed are lost. Every handler behind the bridge is idempotent.
type RedisBridge struct {
	cache   *rediscache.Cache
	local   shared.EventPublisher
	channel string
	source  string
	logger  *logger.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// RedisBridgeConfig contains configuration for RedisBridge.
type RedisBridgeConfig struct {
	Cache *rediscache.Cache
	Local shared.EventPublisher

	// Channel defaults to rediscache.ChannelEvents.
	Channel string

	// Source tags emitted envelopes (e.g. "arena-api").
	Source string

	Logger *logger.Logger
}

// NewRedisBridge validates the config.
func NewRedisBridge(config RedisBridgeConfig) (*RedisBridge, error) {
	if config.Cache == nil {
		return nil, errors.New("redis cache is required")
	}
	if config.Local == nil {
		return nil, errors.New("local publisher is required")
	}
	if config.Channel == "" {
		config.Channel = rediscache.ChannelEvents
	}
	if config.Source == "" {
		config.Source = "instance-" + uuid.NewString()[:8]
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	return &RedisBridge{
		cache:   config.Cache,
		local:   config.Local,
		channel: config.Channel,
		source:  config.Source,
		logger:  config.Logger.With(logger.Component("redis_bridge")),
		ready:   make(chan struct{}),
	}, nil
}

// Ready is closed once Run's subscription is confirmed.
func (b *RedisBridge) Ready() <-chan struct{} {
	return b.ready
}

// Emit publishes event as an envelope on the bridge channel.
func (b *RedisBridge) Emit(ctx context.Context, event shared.Event) error {
	env, err := shared.NewEnvelope(uuid.NewString(), b.source, event)
	if err != nil {
		return err
	}
	return b.cache.Publish(ctx, b.channel, env)
}

// Run subscribes and forwards envelopes until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	ps := b.cache.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info("redis bridge subscribed", logger.String("channel", b.channel))

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handle(ctx, msg.Payload)
		}
	}
}

func (b *RedisBridge) handle(ctx context.Context, payload string) {
	var env shared.EventEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn("dropping malformed envelope", logger.Err(err))
		return
	}

	event, err := env.Decode()
	if err != nil {
		b.logger.Warn("dropping undecodable envelope",
			logger.String("event_type", string(env.Type)),
			logger.String("source", env.Source),
			logger.Err(err),
		)
		return
	}

	if err := b.local.Publish(ctx, event); err != nil {
		b.logger.Error("failed to republish remote event",
			logger.String("event_type", string(env.Type)),
			logger.Err(err),
		)
	}
}
