package feed

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RateLimitError represents an HTTP 429 rate limit error with retry information.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Headers    RateLimitHeaders
}

// RateLimitHeaders contains rate limit information from response headers.
type RateLimitHeaders struct {
	Limit     int       // X-Rate-Limit-Limit: Maximum requests allowed
	Remaining int       // X-Rate-Limit-Remaining: Requests remaining in current window
	Reset     time.Time // X-Rate-Limit-Reset: When the rate limit resets
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError checks if an error is, or wraps, a rate limit error.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// StatusError is returned for non-2xx responses other than 429.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// newRateLimitError builds a RateLimitError from a 429 response.
func newRateLimitError(resp *http.Response) *RateLimitError {
	return &RateLimitError{
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header),
		Message:    "Rate limit exceeded",
		Headers:    extractRateLimitHeaders(resp.Header),
	}
}

// ParseRetryAfter extracts the Retry-After header value.
// Returns the duration to wait, or 0 if header is not present.
// Supports both delay-seconds (integer) and HTTP-date formats.
//
// Examples:
//
//	Retry-After: 30                            -> 30 seconds
//	Retry-After: Wed, 21 Oct 2015 07:28:00 GMT -> duration until that time
func ParseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if duration := time.Until(retryTime); duration > 0 {
			return duration
		}
	}

	return 0
}

// extractRateLimitHeaders reads the X-Rate-Limit-* family, accepting both the
// dashed and undashed spellings. Missing counters are reported as -1.
func extractRateLimitHeaders(headers http.Header) RateLimitHeaders {
	rlh := RateLimitHeaders{
		Limit:     -1,
		Remaining: -1,
	}

	if v, ok := headerInt(headers, "X-Rate-Limit-Limit", "X-RateLimit-Limit"); ok {
		rlh.Limit = int(v)
	}
	if v, ok := headerInt(headers, "X-Rate-Limit-Remaining", "X-RateLimit-Remaining"); ok {
		rlh.Remaining = int(v)
	}
	// Unix timestamp
	if v, ok := headerInt(headers, "X-Rate-Limit-Reset", "X-RateLimit-Reset"); ok {
		rlh.Reset = time.Unix(v, 0)
	}

	return rlh
}

// headerInt returns the first of names present in headers, parsed as an integer.
func headerInt(headers http.Header, names ...string) (int64, bool) {
	for _, name := range names {
		raw := headers.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		return v, err == nil
	}
	return 0, false
}
