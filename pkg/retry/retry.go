package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls a bounded retry loop with a fixed delay between
// attempts.
type Config struct {
	Attempts int
	Delay    time.Duration
}

// Do runs fn up to cfg.Attempts times, sleeping cfg.Delay between
// attempts. It returns nil on the first success, the last error once
// attempts are exhausted, or the context error if the context is
// cancelled while waiting.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.Attempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", cfg.Attempts)
	}

	var lastErr error
	for i := 0; i < cfg.Attempts; i++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}

		// Don't sleep after the final attempt.
		if i == cfg.Attempts-1 {
			break
		}

		select {
		case <-time.After(cfg.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.Attempts, lastErr)
}
