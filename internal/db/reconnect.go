package db

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/unklstewy/balloonscope/pkg/config"
)

// maxReconnectDelay caps the backoff between reconnection attempts.
const maxReconnectDelay = 60 * time.Second

// connectFunc is swapped in tests.
var connectFunc = Connect

// ReconnectWithRetry attempts to connect to the database with exponential backoff.
//
// Parameters:
//   - ctx: Cancels the retry loop
//   - cfg: Database configuration
//   - maxRetries: Maximum number of connection attempts (0 = until ctx ends)
//   - initialDelay: Initial wait time between retries
//
// Returns: Connected database or the last error once retries are exhausted
func ReconnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration) (*DB, error) {
	delay := initialDelay
	attempt := 0

	for {
		attempt++
		log.Printf("Database connection attempt %d...", attempt)

		db, err := connectFunc(cfg)
		if err == nil {
			log.Println("✓ Database connected")
			return db, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			log.Printf("Failed to connect after %d attempts", attempt)
			return nil, err
		}

		log.Printf("Connection failed: %v (retry in %v)", err, delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// EnsureConnection checks if the database connection is alive and reconnects if needed.
//
// Returns: Active database connection (either original or new) and error
func EnsureConnection(ctx context.Context, db *DB, cfg config.DatabaseConfig) (*DB, error) {
	if db == nil {
		log.Println("Database connection is nil, attempting to reconnect...")
		return ReconnectWithRetry(ctx, cfg, 3, time.Second)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		log.Printf("Database connection lost: %v", err)
		db.Close()
		return ReconnectWithRetry(ctx, cfg, 3, time.Second)
	}

	return db, nil
}

// HealthCheck reports whether the database answers a trivial query.
func HealthCheck(ctx context.Context, db *DB) bool {
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Printf("Health check failed - ping error: %v", err)
		return false
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		log.Printf("Health check failed - query error: %v", err)
		return false
	}

	if result != 1 {
		log.Printf("Health check failed - unexpected result: %d", result)
		return false
	}

	return true
}

// connErrorPatterns are substrings of errors worth retrying.
var connErrorPatterns = []string{
	"connection refused",
	"broken pipe",
	"no connection",
	"connection reset",
	"eof",
	"timeout",
}

// IsConnectionError reports whether err looks like a transient connection failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WithRetry executes a database operation, retrying only on connection failures.
// The wait between attempts grows linearly from wait.
func WithRetry(ctx context.Context, operation func() error, maxRetries int, wait time.Duration) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsConnectionError(err) {
			return err
		}

		if attempt < maxRetries {
			waitTime := time.Duration(attempt+1) * wait
			log.Printf("Database operation failed (attempt %d/%d): %v (retry in %v)",
				attempt+1, maxRetries+1, err, waitTime)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return lastErr
}
