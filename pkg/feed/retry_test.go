package feed

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

// retryErr runs an error-only operation through RetryWithBackoffResult.
func retryErr(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithBackoffResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// TestRetryWithBackoff tests basic retry logic.
func TestRetryWithBackoff(t *testing.T) {
	quick := RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}

	t.Run("Success on first attempt", func(t *testing.T) {
		attempts := 0
		err := retryErr(context.Background(), quick, func() error {
			attempts++
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("Success after retries", func(t *testing.T) {
		attempts := 0
		err := retryErr(context.Background(), quick, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("temporary error")
			}
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("Max retries exceeded", func(t *testing.T) {
		attempts := 0
		sentinel := errors.New("persistent error")
		err := retryErr(context.Background(), quick, func() error {
			attempts++
			return sentinel
		})

		if !errors.Is(err, sentinel) {
			t.Errorf("Expected wrapped sentinel, got %v", err)
		}
		// initial + 3 retries
		if attempts != 4 {
			t.Errorf("Expected 4 attempts, got %d", attempts)
		}
	})

	t.Run("Context cancellation", func(t *testing.T) {
		attempts := 0
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := retryErr(ctx, DefaultRetryConfig(), func() error {
			attempts++
			return errors.New("error")
		})

		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled error, got: %v", err)
		}
		if attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("Context timeout during retry", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		cfg := RetryConfig{
			MaxRetries:   10,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		}

		start := time.Now()
		err := retryErr(ctx, cfg, func() error { return errors.New("error") })
		elapsed := time.Since(start)

		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline error, got %v", err)
		}
		if elapsed > 500*time.Millisecond {
			t.Errorf("Expected quick timeout, took %v", elapsed)
		}
	})
}

// TestRetryWithBackoffResult tests the generic variant.
func TestRetryWithBackoffResult(t *testing.T) {
	attempts := 0
	got, err := RetryWithBackoffResult(context.Background(), fastRetry(), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("first call fails")
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
}

// TestRetryRespectsRetryAfter tests that Retry-After overrides the backoff.
func TestRetryRespectsRetryAfter(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:        1,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		Multiplier:        1,
		RespectRetryAfter: true,
	}

	attempts := 0
	start := time.Now()
	_ = retryErr(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return &RateLimitError{StatusCode: http.StatusTooManyRequests, RetryAfter: 60 * time.Millisecond, Message: "slow down", Headers: RateLimitHeaders{Limit: -1, Remaining: -1}}
		}
		return nil
	})

	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("Expected to wait for Retry-After, waited %v", elapsed)
	}
}

func TestIsRateLimitError(t *testing.T) {
	rle := &RateLimitError{Message: "Rate limit exceeded", RetryAfter: 5 * time.Second}

	if _, ok := IsRateLimitError(rle); !ok {
		t.Error("Expected direct RateLimitError to match")
	}
	wrapped := errors.Join(errors.New("hour 3"), rle)
	if got, ok := IsRateLimitError(wrapped); !ok || got != rle {
		t.Error("Expected wrapped RateLimitError to match")
	}
	if _, ok := IsRateLimitError(errors.New("other")); ok {
		t.Error("Expected plain error not to match")
	}
	if rle.Error() != "Rate limit exceeded (retry after 5s)" {
		t.Errorf("Error() = %q", rle.Error())
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		min   time.Duration
		max   time.Duration
	}{
		{"Missing", "", 0, 0},
		{"Seconds", "30", 30 * time.Second, 30 * time.Second},
		{"Garbage", "soon", 0, 0},
		{"HTTP date in the future", time.Now().Add(2 * time.Minute).UTC().Format(http.TimeFormat), 60 * time.Second, 2 * time.Minute},
		{"HTTP date in the past", time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			got := ParseRetryAfter(h)
			if got < tt.min || got > tt.max {
				t.Errorf("ParseRetryAfter(%q) = %v, want [%v, %v]", tt.value, got, tt.min, tt.max)
			}
		})
	}
}
