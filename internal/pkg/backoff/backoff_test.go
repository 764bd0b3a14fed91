package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type permanentErr struct{}

func (permanentErr) Error() string     { return "permanent" }
func (permanentErr) IsRetryable() bool { return false }

func TestDelay(t *testing.T) {
	base := time.Second
	maxDelay := 30 * time.Second

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{"attempt 0", 0, 1 * time.Second},
		{"attempt 1", 1, 2 * time.Second},
		{"attempt 2", 2, 4 * time.Second},
		{"attempt 4", 4, 16 * time.Second},
		{"capped", 5, 30 * time.Second},
		{"far past cap", 100, 30 * time.Second},
		{"negative attempt", -3, 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Delay(tt.attempt, base, maxDelay))
		})
	}
}

func TestDelay_ZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), Delay(3, 0, time.Minute))
}

func TestJitter_Bounds(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := Delay(attempt, time.Second, 30*time.Second)
		for i := 0; i < 200; i++ {
			j := Jitter(d)
			assert.GreaterOrEqual(t, j, d)
			assert.LessOrEqual(t, j, time.Duration(float64(d)*1.3))
		}
	}
}

func TestDelayWithJitter_NeverExceedsCap(t *testing.T) {
	maxDelay := 30 * time.Second
	limit := time.Duration(float64(maxDelay) * 1.3)
	for i := 0; i < 500; i++ {
		assert.LessOrEqual(t, DelayWithJitter(50, time.Second, maxDelay), limit)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	}, 5, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	cause := errors.New("still broken")
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return cause
	}, 3, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
	assert.ErrorIs(t, err, cause)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return permanentErr{}
	}, 5, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.NotErrorIs(t, err, ErrMaxAttemptsExceeded)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	}, 5, time.Hour)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("unknown")))
	assert.False(t, IsRetryable(permanentErr{}))
	assert.False(t, IsRetryable(errors.Join(errors.New("wrapped"), permanentErr{})))
}
