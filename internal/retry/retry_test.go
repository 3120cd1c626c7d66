package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSuccess(t *testing.T) {
	callCount := 0
	result := Do(context.Background(), testConfig(3), func() error {
		callCount++
		return nil
	})

	assert.NoError(t, result.Err)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, callCount)
}

func TestDoRetryThenSuccess(t *testing.T) {
	callCount := 0
	result := Do(context.Background(), testConfig(5), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
}

func TestDoMaxAttemptsExhausted(t *testing.T) {
	expectedErr := errors.New("persistent error")
	callCount := 0
	result := Do(context.Background(), testConfig(3), func() error {
		callCount++
		return expectedErr
	})

	assert.ErrorIs(t, result.Err, expectedErr)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, callCount)
}

func TestDoZeroAttempts(t *testing.T) {
	called := false
	result := Do(context.Background(), testConfig(0), func() error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.Equal(t, 0, result.Attempts)
	assert.NoError(t, result.Err)
}

func TestDoPermanentError(t *testing.T) {
	callCount := 0
	result := Do(context.Background(), testConfig(5), func() error {
		callCount++
		return Permanent(errors.New("permanent error"))
	})

	assert.Error(t, result.Err)
	assert.Equal(t, 1, result.Attempts, "a permanent error stops at the first attempt")
	assert.Equal(t, 1, callCount)
}

func TestDoContextCancellation(t *testing.T) {
	cfg := Config{
		MaxAttempts:  10,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result := Do(ctx, cfg, func() error {
		return errors.New("error")
	})

	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestDoWithCallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.InitialDelay = 1 * time.Millisecond

	var callbackCount int
	var callbackErr error
	var callbackDelay time.Duration

	result := DoWithCallback(context.Background(), cfg, func() error {
		return errors.New("fail")
	}, func(attempt int, err error, nextDelay time.Duration) {
		callbackCount++
		callbackErr = err
		callbackDelay = nextDelay
	})

	assert.Error(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 2, callbackCount, "the callback runs between attempts only")
	assert.Equal(t, "fail", callbackErr.Error())
	assert.Greater(t, int64(callbackDelay), int64(0))
}

func TestDefaultConfigDoesNotResubmit(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0, cfg.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Multiplier)
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(errors.New("regular error")))
	assert.True(t, IsPermanent(Permanent(errors.New("permanent error"))))
	assert.False(t, IsPermanent(nil))
}

func TestPermanentErrorMethod(t *testing.T) {
	err := errors.New("base error")
	permErr := Permanent(err)

	assert.Equal(t, "base error", permErr.Error())
	assert.Equal(t, err, errors.Unwrap(permErr))
	assert.Nil(t, Permanent(nil))
}

func TestCalculateDelay(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	// Jitter is ±25% around 100ms, 200ms, 400ms, then capped at 1s.
	assert.InDelta(t, float64(100*time.Millisecond), float64(calculateDelay(1, cfg)), float64(25*time.Millisecond))
	assert.InDelta(t, float64(200*time.Millisecond), float64(calculateDelay(2, cfg)), float64(50*time.Millisecond))
	assert.InDelta(t, float64(400*time.Millisecond), float64(calculateDelay(3, cfg)), float64(100*time.Millisecond))
	assert.LessOrEqual(t, calculateDelay(10, cfg), 1250*time.Millisecond)
}
