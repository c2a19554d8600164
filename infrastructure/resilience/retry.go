package resilience

import (
	"context"
	"time"
)

// RetryConfig controls the fetcher's bounded retry policy (spec.md §4.3:
// up to 3 attempts, 60s back-off between attempts).
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Backoff: 60 * time.Second}
}

// Retry invokes fn until it succeeds or MaxAttempts is exhausted, sleeping
// Backoff between attempts. It returns the last error on exhaustion, and
// also returns that last error without further attempts if ctx is
// cancelled mid-backoff.
func Retry(ctx context.Context, cfg RetryConfig, fn func(attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(cfg.Backoff):
		}
	}
	return lastErr
}
