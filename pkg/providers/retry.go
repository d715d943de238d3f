// Package providers implements the embedding and generation backends:
// Ollama over its native HTTP API and OpenAI-compatible services through
// the official client.
package providers

import (
	"context"
	"fmt"
	"time"
)

// withRetry runs fn up to attempts times with exponential backoff
// (100ms * 2^n) between tries. Context cancellation aborts immediately
// and is never retried.
func withRetry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := fn(ctx); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
