package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := NewRetryPolicy(3, time.Millisecond).Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := NewRetryPolicy(2, time.Millisecond).Do(context.Background(), func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	calls := 0
	denied := errors.New("denied")
	err := NewRetryPolicy(5, time.Millisecond).Do(context.Background(), func() error {
		calls++
		return Permanent(denied)
	})
	assert.ErrorIs(t, err, denied)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRetryPolicy(5, time.Hour).Do(ctx, func() error { return errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerOpensAndCoolsDown(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }
	fail := func() error { return errors.New("down") }

	assert.Error(t, cb.Call(fail))
	assert.True(t, cb.Allow())
	assert.Error(t, cb.Call(fail))
	assert.False(t, cb.Allow())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)

	now = now.Add(time.Minute)
	assert.True(t, cb.Allow())
	assert.NoError(t, cb.Call(func() error { return nil }))
}

func TestCircuitBreakerIgnoresPermanentErrors(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.OnError(Permanent(errors.New("bad key")))
	assert.True(t, cb.Allow())
}
