package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(1, time.Second, 2, 0))
	assert.Equal(t, 2*time.Second, Backoff(2, time.Second, 2, 0))
	assert.Equal(t, 4*time.Second, Backoff(3, time.Second, 2, 0))
	assert.Equal(t, 3*time.Second, Backoff(3, time.Second, 2, 3*time.Second))
	assert.Equal(t, time.Second, Backoff(0, time.Second, 2, 0))
}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("conflict"))
		}
		return nil
	}, WithMaxAttempts(5), WithInitialDelay(0), WithJitter(0))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	sentinel := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	}, WithMaxAttempts(5), WithInitialDelay(0))

	assert.ErrorIs(t, err, sentinel)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttemptsAndUnwraps(t *testing.T) {
	sentinel := errors.New("still conflicting")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(sentinel)
	}, WithMaxAttempts(3), WithInitialDelay(0))

	assert.Equal(t, sentinel, err)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryIf(t *testing.T) {
	conflict := errors.New("conflict")
	calls := 0
	err := OptimisticRetrier(4, func(err error) bool { return errors.Is(err, conflict) }).
		Do(context.Background(), func(context.Context) error {
			calls++
			return conflict
		})

	assert.ErrorIs(t, err, conflict)
	assert.Equal(t, 4, calls)
}

func TestDoWithData(t *testing.T) {
	v, err := DoWithData(context.Background(), func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
