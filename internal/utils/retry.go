package utils

import (
	"context"
	"fmt"
	"time"
)

// Retry executes a function with exponential backoff retry
func Retry(ctx context.Context, maxAttempts int, initialDelay time.Duration, fn func(context.Context) error) error {
	return RetryIf(ctx, maxAttempts, initialDelay, fn, nil)
}

// RetryIf executes a function with retry and context support. shouldRetry
// may be nil, in which case every error is retried.
func RetryIf(ctx context.Context, maxAttempts int, initialDelay time.Duration, fn func(context.Context) error, shouldRetry func(error) bool) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	delay := initialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err == nil {
				return cerr
			}
			return fmt.Errorf("%w (last error: %v)", cerr, err)
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		// Check if we should retry this error
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}

		if attempt < maxAttempts {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			case <-timer.C:
			}
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, err)
}
