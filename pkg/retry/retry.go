package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config defines retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first one)
	MaxAttempts int
	// InitialDelay is the delay before the second attempt
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// Jitter spreads each delay by ±25%.
	Jitter bool
	// Rand is the random source for jitter (optional, uses local source if nil)
	Rand *rand.Rand
	// OnRetry is called before each wait for observability
	OnRetry func(attempt int, err error, nextDelay time.Duration)
	// After creates a timer channel (for testing, defaults to time.After)
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig returns the configuration used for SQLITE_BUSY contention
// while opening and migrating a database: a handful of short waits on top of
// the engine's own busy timeout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 25 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Normalize validates the configuration and fills optional fields.
func (c *Config) Normalize() error {
	if c.MaxAttempts <= 0 {
		return errors.New("retry: MaxAttempts must be positive")
	}
	if c.InitialDelay <= 0 {
		return errors.New("retry: InitialDelay must be positive")
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = c.InitialDelay
	}
	if c.InitialDelay > c.MaxDelay {
		return errors.New("retry: InitialDelay cannot be greater than MaxDelay")
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.After == nil {
		c.After = time.After
	}
	return nil
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// IsRetryableFunc determines if an error should trigger a retry
type IsRetryableFunc func(err error) bool

// RetriesExceededError is returned when every attempt failed with a retryable error
type RetriesExceededError struct {
	LastError error
	Attempts  int
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("retry: giving up after %d attempts: %v", e.Attempts, e.LastError)
}

func (e *RetriesExceededError) Unwrap() error {
	return e.LastError
}

// Do runs fn until it succeeds, returns a non-retryable error, the context
// ends, or the attempts are exhausted. Non-retryable errors are returned
// unchanged so callers can classify them.
func Do(ctx context.Context, config Config, fn RetryableFunc, isRetryable IsRetryableFunc) error {
	cfg := config
	if err := cfg.Normalize(); err != nil {
		return err
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := cfg.jitter(delay)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cfg.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return &RetriesExceededError{LastError: lastErr, Attempts: cfg.MaxAttempts}
}

func (c Config) jitter(d time.Duration) time.Duration {
	if !c.Jitter || d < 4 {
		return d
	}
	spread := d / 4
	return d - spread + time.Duration(c.Rand.Int63n(int64(2*spread)))
}
