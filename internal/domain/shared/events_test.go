package shared

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_DecodesTypedEvent(t *testing.T) {
	ev := NewItemPurchasedEvent("u1", ItemKindXPBoost, 1.5, time.Hour)

	env, err := NewEnvelope("id-1", "economy", ev)
	require.NoError(t, err)
	assert.Equal(t, EventItemPurchased, env.Type)
	assert.Equal(t, "u1", env.AggregateID)

	decoded, err := env.Decode()
	require.NoError(t, err)
	got, ok := decoded.(ItemPurchasedEvent)
	require.True(t, ok)
	assert.Equal(t, 1.5, got.Multiplier)
	assert.Equal(t, time.Hour, got.Duration)
	assert.Equal(t, EventItemPurchased, got.EventType())
}

func TestEnvelope_UnknownType(t *testing.T) {
	_, err := EventEnvelope{Type: "friend.added"}.Decode()
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.False(t, KnownEventType("friend.added"))
	assert.True(t, KnownEventType(EventGameCompleted))
}

func TestDomainError_Is(t *testing.T) {
	err := WrapError("arena", "Guard", ErrAntiCheat, "too fast", errors.New("3s < 10s"))
	assert.True(t, IsAntiCheat(err))
	assert.False(t, IsValidation(err))
	assert.True(t, IsValidation(ErrInvalidSubmission))
	assert.True(t, IsConflict(ErrVersionConflict))
	assert.True(t, IsRetryable(ErrVersionConflict))
}

func TestIsRetryable(t *testing.T) {
	down := WrapError("leaderboard", "Rank", ErrServiceUnavailable, "ranking temporarily unavailable", errors.New("dial tcp: refused"))
	assert.True(t, IsRetryable(down))
	assert.True(t, errors.Is(down, ErrServiceUnavailable))
	assert.False(t, IsRetryable(ErrAnswerTooFast))
	assert.False(t, IsRetryable(ErrSubmitRateExceeded))
	assert.False(t, IsRetryable(nil))
}
