package feed

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 2)
	MaxRetries int

	// InitialDelay is the initial backoff delay (default: 500ms)
	InitialDelay time.Duration

	// MaxDelay is the maximum backoff delay (default: 10 seconds)
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (default: 2.0 for exponential)
	Multiplier float64

	// RespectRetryAfter uses Retry-After header if available (default: true)
	RespectRetryAfter bool
}

// DefaultRetryConfig returns defaults sized for 24 concurrent hourly fetches:
// a whole window should settle well inside a minute even when every hour
// retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		Multiplier:        2.0,
		RespectRetryAfter: true,
	}
}

// RetryWithBackoffResult executes a function with exponential backoff and
// returns its result. Rate limit errors carrying a Retry-After value override
// the computed delay.
//
// Example usage:
//
//	body, err := RetryWithBackoffResult(ctx, DefaultRetryConfig(), func() ([]byte, error) {
//	    return client.get(ctx, url)
//	})
func RetryWithBackoffResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		result = res
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}

		// delay = min(InitialDelay * Multiplier^attempt, MaxDelay)
		delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt)))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		if rle, ok := IsRateLimitError(err); ok {
			if cfg.RespectRetryAfter && rle.RetryAfter > 0 {
				delay = rle.RetryAfter
			}
			if rle.Headers.Remaining >= 0 {
				log.Printf("Rate limit hit: %d/%d requests remaining, reset at %v",
					rle.Headers.Remaining, rle.Headers.Limit, rle.Headers.Reset)
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return result, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}
