package stripe

import (
	"context"
	"time"

	"github.com/splitpay/server/internal/logger"
)

// withRetry runs a provider call with bounded exponential backoff. Only
// transient errors are retried; declines and invalid requests surface
// immediately.
func withRetry[T any](ctx context.Context, maxRetries int, operation func() (T, error)) (T, error) {
	var result T
	var err error

	baseDelay := 200 * time.Millisecond
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return result, err
		}
		pe, ok := AsProviderError(err)
		if !ok || !pe.Retryable() {
			return result, err
		}
		if attempt == maxRetries {
			break
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", maxRetries+1).
			Dur("retry_delay", delay).
			Msg("stripe.call_retry")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	return result, err
}
