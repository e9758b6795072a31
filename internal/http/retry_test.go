package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep returns a Sleep func that records the delays without waiting.
func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4), "capped")
	assert.Equal(t, time.Second, p.Delay(0))
}

func TestRetryPolicy_Do_SucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	p := DefaultRetryPolicy()
	p.Sleep = recordingSleep(&delays)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{StatusCode: http.StatusBadGateway}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, delays, 2)
	assert.Less(t, delays[0], delays[1])
}

func TestRetryPolicy_Do_GivesUp(t *testing.T) {
	var delays []time.Duration
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, Sleep: recordingSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return ErrEmptyPayload
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestRetryPolicy_Do_PermanentNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", &StatusError{StatusCode: http.StatusNotFound}},
		{"forbidden", &StatusError{StatusCode: http.StatusForbidden}},
		{"marked permanent", Permanent(errors.New("no link"))},
		{"cancelled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultRetryPolicy()
			p.Sleep = func(context.Context, time.Duration) error {
				t.Fatal("should not sleep")
				return nil
			}

			calls := 0
			err := p.Do(context.Background(), func(context.Context) error {
				calls++
				return tt.err
			})
			assert.Equal(t, 1, calls)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRetryPolicy_Do_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, Multiplier: 2}

	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("connection reset")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(errors.New("connection reset by peer")))
	assert.True(t, IsTransient(&StatusError{StatusCode: 503}))
	assert.True(t, IsTransient(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, IsTransient(&StatusError{StatusCode: 404}))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", ErrTruncated)))
	assert.False(t, IsTransient(fmt.Errorf("wrapped: %w", Permanent(ErrEmptyPayload))))
}
