package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("database is locked")

func isBusy(err error) bool { return errors.Is(err, errBusy) }

func instantConfig() Config {
	cfg := DefaultConfig()
	cfg.After = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return cfg
}

func TestDo_SucceedsAfterBusy(t *testing.T) {
	calls := 0
	err := Do(context.Background(), instantConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	}, isBusy)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableReturnedUnchanged(t *testing.T) {
	fatal := errors.New("incompatible")
	calls := 0
	err := Do(context.Background(), instantConfig(), func(context.Context) error {
		calls++
		return fatal
	}, isBusy)

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestDo_Exhausted(t *testing.T) {
	cfg := instantConfig()
	cfg.MaxAttempts = 2
	var delays []time.Duration
	cfg.OnRetry = func(_ int, _ error, d time.Duration) { delays = append(delays, d) }

	err := Do(context.Background(), cfg, func(context.Context) error { return errBusy }, isBusy)

	var exceeded *RetriesExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 2, exceeded.Attempts)
	assert.ErrorIs(t, err, errBusy)
	assert.Len(t, delays, 1)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, instantConfig(), func(context.Context) error { return nil }, isBusy)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	cfg := Config{MaxAttempts: 0, InitialDelay: time.Millisecond}
	assert.Error(t, cfg.Normalize())

	cfg = Config{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Millisecond}
	assert.Error(t, cfg.Normalize())

	cfg = Config{MaxAttempts: 1, InitialDelay: time.Millisecond}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, time.Millisecond, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.NotNil(t, cfg.Rand)
}

func TestJitterWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Normalize())
	for i := 0; i < 100; i++ {
		d := cfg.jitter(100 * time.Millisecond)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.Less(t, d, 125*time.Millisecond)
	}
}
