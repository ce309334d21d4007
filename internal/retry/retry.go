// Package retry provides bounded retry with a fixed delay between attempts.
// There is deliberately no jitter or backoff: the wrapper guards bounded,
// low-frequency operations such as the startup health gate.
package retry

import (
	"context"
	"time"
)

// Config bounds a retried operation.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below one are treated as one.
	MaxAttempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// OnRetry, when set, is called before each retry with the attempt
	// number that just failed and its error.
	OnRetry func(attempt int, err error)
}

// Do invokes fn until it succeeds or attempts are exhausted, waiting
// cfg.Delay between attempts. The last error propagates to the caller.
// A cancelled context aborts the wait and returns the context error.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay):
		}
	}
	return lastErr
}
