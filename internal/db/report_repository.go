package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unklstewy/balloonscope/internal/insights"
)

// ErrReportNotFound is returned when no archived report has the given run ID.
var ErrReportNotFound = errors.New("report not found")

// Retry policy for archive queries that fail on a dropped connection.
const (
	defaultQueryRetries   = 2
	defaultQueryRetryWait = 500 * time.Millisecond
)

// ReportRepository archives analytics summaries. It owns its connection and
// replaces it when EnsureConnection finds it dead.
type ReportRepository struct {
	mu sync.RWMutex
	db *DB

	retries   int
	retryWait time.Duration
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{
		db:        db,
		retries:   defaultQueryRetries,
		retryWait: defaultQueryRetryWait,
	}
}

func (r *ReportRepository) conn() *DB {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db
}

func (r *ReportRepository) withRetry(ctx context.Context, operation func(db *DB) error) error {
	return WithRetry(ctx, func() error { return operation(r.conn()) }, r.retries, r.retryWait)
}

// EnsureConnection pings the archive and reconnects with the original
// settings when the connection has gone away.
func (r *ReportRepository) EnsureConnection(ctx context.Context) error {
	current := r.conn()
	next, err := EnsureConnection(ctx, current, current.config)
	if err != nil {
		return fmt.Errorf("archive unavailable: %w", err)
	}
	if next != current {
		r.mu.Lock()
		r.db = next
		r.mu.Unlock()
		log.Println("✓ Report archive reconnected")
	}
	return nil
}

// Healthy reports whether the archive answers queries.
func (r *ReportRepository) Healthy(ctx context.Context) bool {
	return HealthCheck(ctx, r.conn())
}

// Stats returns the archive's report count and newest report time.
func (r *ReportRepository) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.withRetry(ctx, func(db *DB) error {
		var err error
		stats, err = db.GetStats(ctx)
		return err
	})
	return stats, err
}

// Close closes the current connection.
func (r *ReportRepository) Close() error {
	return r.conn().Close()
}

// ReportSummary is the archived form of one analytics pass.
type ReportSummary struct {
	RunID           string    `json:"runId"`
	GeneratedAt     time.Time `json:"generatedAt"`
	TotalPoints     int       `json:"totalPoints"`
	TotalBalloons   int       `json:"totalBalloons"`
	HoursWithData   int       `json:"hoursWithData"`
	HoursWithErrors int       `json:"hoursWithErrors"`
	Trajectories    int       `json:"trajectories"`

	AverageDistanceKm float64 `json:"averageDistanceKm"`
	AverageAltitudeKm float64 `json:"averageAltitudeKm"`
	DriftBearing      float64 `json:"driftBearing"`
	DriftLabel        string  `json:"driftLabel"`
	AboveThreshold    int     `json:"aboveThreshold"`

	SampleSize      int `json:"sampleSize"`
	WithTemperature int `json:"withTemperature"`

	// Trend fields are nil when the pass produced no fit
	TrendSlope     *float64 `json:"trendSlope"`
	TrendIntercept *float64 `json:"trendIntercept"`
	TrendR2        *float64 `json:"trendR2"`

	// Overview is the full overview section as JSON
	Overview json.RawMessage `json:"overview"`
}

// NewReportSummary condenses a report for archiving.
func NewReportSummary(r *insights.Report) (ReportSummary, error) {
	overview, err := json.Marshal(r.Overview)
	if err != nil {
		return ReportSummary{}, fmt.Errorf("failed to encode overview: %w", err)
	}

	s := ReportSummary{
		RunID:             r.RunID,
		GeneratedAt:       r.GeneratedAt,
		TotalPoints:       r.Metadata.TotalPoints,
		TotalBalloons:     r.Metadata.TotalBalloons,
		HoursWithData:     r.Metadata.HoursWithData,
		HoursWithErrors:   r.Metadata.HoursWithErrors,
		Trajectories:      r.Overview.TotalTrajectories,
		AverageDistanceKm: r.Overview.AverageDistanceKm,
		AverageAltitudeKm: r.Global.AverageAltitudeKm,
		DriftBearing:      r.Global.Drift.BearingDegrees,
		DriftLabel:        r.Global.Drift.CompassLabel,
		AboveThreshold:    r.Overview.AboveThreshold.AboveCount,
		SampleSize:        len(r.Global.Sample),
		WithTemperature:   r.Global.WithTemperature,
		Overview:          overview,
	}
	if fit := r.Global.Trend; fit != nil {
		slope, intercept, r2 := fit.Slope, fit.Intercept, fit.R2
		s.TrendSlope, s.TrendIntercept, s.TrendR2 = &slope, &intercept, &r2
	}
	return s, nil
}

const reportColumns = `run_id, generated_at, total_points, total_balloons,
		hours_with_data, hours_with_errors, trajectories,
		avg_distance_km, avg_altitude_km, drift_bearing, drift_label,
		above_threshold, sample_size, with_temperature,
		trend_slope, trend_intercept, trend_r2, overview`

// Save archives a summary. Saving the same run twice is a no-op.
func (r *ReportRepository) Save(ctx context.Context, s ReportSummary) error {
	overview := s.Overview
	if len(overview) == 0 {
		overview = json.RawMessage(`{}`)
	}

	err := r.withRetry(ctx, func(db *DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO insight_reports (`+reportColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (run_id) DO NOTHING`,
			s.RunID, s.GeneratedAt, s.TotalPoints, s.TotalBalloons,
			s.HoursWithData, s.HoursWithErrors, s.Trajectories,
			s.AverageDistanceKm, s.AverageAltitudeKm, s.DriftBearing, s.DriftLabel,
			s.AboveThreshold, s.SampleSize, s.WithTemperature,
			nullFloat(s.TrendSlope), nullFloat(s.TrendIntercept), nullFloat(s.TrendR2), []byte(overview),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", s.RunID, err)
	}
	return nil
}

// Recent returns up to limit summaries, newest first.
func (r *ReportRepository) Recent(ctx context.Context, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	var summaries []ReportSummary
	err := r.withRetry(ctx, func(db *DB) error {
		var err error
		summaries, err = recentSummaries(ctx, db, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func recentSummaries(ctx context.Context, db *DB, limit int) ([]ReportSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reportColumns+`
		FROM insight_reports
		ORDER BY generated_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	summaries := []ReportSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}

	return summaries, nil
}

// Get returns one summary by run ID. An ID that is not a UUID cannot match
// any run and yields ErrReportNotFound without querying.
func (r *ReportRepository) Get(ctx context.Context, runID string) (*ReportSummary, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, ErrReportNotFound
	}

	var s ReportSummary
	err := r.withRetry(ctx, func(db *DB) error {
		row := db.QueryRowContext(ctx,
			`SELECT `+reportColumns+`
			FROM insight_reports
			WHERE run_id = $1`,
			runID,
		)
		var err error
		s, err = scanSummary(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", runID, err)
	}
	return &s, nil
}

// CleanupOlderThan deletes summaries generated more than maxAge ago and
// returns how many were removed.
func (r *ReportRepository) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	var result sql.Result
	err := r.withRetry(ctx, func(db *DB) error {
		var err error
		result, err = db.ExecContext(ctx,
			`DELETE FROM insight_reports WHERE generated_at < $1`,
			cutoff,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old reports: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted reports: %w", err)
	}
	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (ReportSummary, error) {
	var (
		s                    ReportSummary
		slope, intercept, r2 sql.NullFloat64
		overview             []byte
	)
	err := row.Scan(
		&s.RunID, &s.GeneratedAt, &s.TotalPoints, &s.TotalBalloons,
		&s.HoursWithData, &s.HoursWithErrors, &s.Trajectories,
		&s.AverageDistanceKm, &s.AverageAltitudeKm, &s.DriftBearing, &s.DriftLabel,
		&s.AboveThreshold, &s.SampleSize, &s.WithTemperature,
		&slope, &intercept, &r2, &overview,
	)
	if err != nil {
		return ReportSummary{}, err
	}

	s.TrendSlope = floatPtr(slope)
	s.TrendIntercept = floatPtr(intercept)
	s.TrendR2 = floatPtr(r2)
	if len(overview) > 0 {
		s.Overview = json.RawMessage(overview)
	}
	return s, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
