package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/unklstewy/balloonscope/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// ConnectionString builds a lib/pq keyword/value DSN from cfg.
func ConnectionString(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
}

// Connect establishes a connection to the PostgreSQL database.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	sqlDB, err := sql.Open("postgres", ConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, config: cfg}, nil
}

// Wrap adopts an existing *sql.DB, for example a sqlmock handle.
func Wrap(sqlDB *sql.DB) *DB {
	return &DB{DB: sqlDB}
}

// InitSchema creates or updates the database schema.
// This should be called once at application startup.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// Stats summarises the archive.
type Stats struct {
	Reports      int64      `json:"reports"`
	LatestReport *time.Time `json:"latestReport,omitempty"`
}

// GetStats returns archive statistics.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	var (
		stats  Stats
		latest sql.NullTime
	)
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(generated_at) FROM insight_reports`,
	).Scan(&stats.Reports, &latest)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read archive stats: %w", err)
	}
	if latest.Valid {
		t := latest.Time
		stats.LatestReport = &t
	}
	return stats, nil
}
