package db

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/unklstewy/balloonscope/internal/insights"
	"github.com/unklstewy/balloonscope/pkg/analytics"
	"github.com/unklstewy/balloonscope/pkg/config"
	"github.com/unklstewy/balloonscope/pkg/feed"
	"github.com/unklstewy/balloonscope/pkg/regression"
)

var summaryColumns = []string{
	"run_id", "generated_at", "total_points", "total_balloons",
	"hours_with_data", "hours_with_errors", "trajectories",
	"avg_distance_km", "avg_altitude_km", "drift_bearing", "drift_label",
	"above_threshold", "sample_size", "with_temperature",
	"trend_slope", "trend_intercept", "trend_r2", "overview",
}

func summaryRow(runID string, generatedAt time.Time, slope driver.Value) []driver.Value {
	return []driver.Value{
		runID, generatedAt, 1500, 400,
		23, 1, 380,
		1234.5, 14.2, 72.0, "East",
		12, 50, 48,
		slope, 22.0, 0.81, []byte(`{"totalTrajectories":380}`),
	}
}

func sampleReport() *insights.Report {
	fit := regression.Fit{Slope: -2, Intercept: 22, R2: 1, N: 3}
	return &insights.Report{
		RunID:       "5f0c6a4e-8c9b-4f7e-9a51-0c1d2e3f4a5b",
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Metadata:    feed.Metadata{TotalPoints: 6, TotalBalloons: 3, HoursWithData: 2, HoursWithErrors: 22},
		Overview: insights.Overview{
			TotalTrajectories: 3,
			AverageDistanceKm: 111.2,
			AboveThreshold:    analytics.Threshold{TotalCount: 3, AboveCount: 1},
		},
		Global: insights.Global{
			Drift:             analytics.Drift{Found: true, BearingDegrees: 0, CompassLabel: "North"},
			AverageAltitudeKm: 2.5,
			WithTemperature:   3,
			Trend:             &fit,
		},
	}
}

func TestNewReportSummary(t *testing.T) {
	s, err := NewReportSummary(sampleReport())
	if err != nil {
		t.Fatalf("NewReportSummary failed: %v", err)
	}

	if s.Trajectories != 3 || s.HoursWithErrors != 22 || s.DriftLabel != "North" || s.AboveThreshold != 1 {
		t.Errorf("Unexpected summary: %+v", s)
	}
	if s.TrendSlope == nil || *s.TrendSlope != -2 || s.TrendR2 == nil || *s.TrendR2 != 1 {
		t.Errorf("Trend not carried over: slope=%v r2=%v", s.TrendSlope, s.TrendR2)
	}

	var overview map[string]interface{}
	if err := json.Unmarshal(s.Overview, &overview); err != nil {
		t.Fatalf("Overview is not JSON: %v", err)
	}
	if overview["totalTrajectories"] != float64(3) {
		t.Errorf("Overview totalTrajectories = %v, want 3", overview["totalTrajectories"])
	}

	noTrend := sampleReport()
	noTrend.Global.Trend = nil
	s, _ = NewReportSummary(noTrend)
	if s.TrendSlope != nil || s.TrendIntercept != nil || s.TrendR2 != nil {
		t.Error("Expected nil trend fields without a fit")
	}
}

func TestReportRepositorySave(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReportRepository(db)

	s, err := NewReportSummary(sampleReport())
	if err != nil {
		t.Fatalf("NewReportSummary failed: %v", err)
	}

	args := make([]driver.Value, len(summaryColumns))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[0] = s.RunID

	mock.ExpectExec(`INSERT INTO insight_reports .* ON CONFLICT \(run_id\) DO NOTHING`).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mock.ExpectExec(`INSERT INTO insight_reports`).WillReturnError(errors.New("disk full"))
	if err := repo.Save(context.Background(), s); err == nil {
		t.Error("Expected error from failed insert")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestReportRepositoryRecent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReportRepository(db)

	newer := time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC)
	older := newer.Add(-10 * time.Minute)

	rows := sqlmock.NewRows(summaryColumns).
		AddRow(summaryRow("run-2", newer, -1.8)...).
		AddRow(summaryRow("run-1", older, nil)...)
	mock.ExpectQuery(`SELECT .* FROM insight_reports\s+ORDER BY generated_at DESC\s+LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(rows)

	summaries, err := repo.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].RunID != "run-2" || summaries[0].DriftLabel != "East" {
		t.Errorf("Unexpected first summary: %+v", summaries[0])
	}
	if summaries[0].TrendSlope == nil || *summaries[0].TrendSlope != -1.8 {
		t.Errorf("TrendSlope = %v, want -1.8", summaries[0].TrendSlope)
	}
	if summaries[1].TrendSlope != nil {
		t.Errorf("Expected NULL slope to scan as nil, got %v", *summaries[1].TrendSlope)
	}
	if string(summaries[1].Overview) != `{"totalTrajectories":380}` {
		t.Errorf("Overview = %s", summaries[1].Overview)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestReportRepositoryRecentDefaultLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectQuery(`SELECT .* FROM insight_reports`).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(summaryColumns))

	summaries, err := repo.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if summaries == nil || len(summaries) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", summaries)
	}
}

func TestReportRepositoryGet(t *testing.T) {
	const runID = "5f0c6a4e-8c9b-4f7e-9a51-0c1d2e3f4a5b"

	tests := []struct {
		name    string
		id      string
		rows    *sqlmock.Rows
		err     error
		noQuery bool
		wantErr error
		wantID  string
	}{
		{
			name:   "Found",
			id:     runID,
			rows:   sqlmock.NewRows(summaryColumns).AddRow(summaryRow(runID, time.Now().UTC(), 0.5)...),
			wantID: runID,
		},
		{
			name:    "Not found",
			id:      runID,
			rows:    sqlmock.NewRows(summaryColumns),
			wantErr: ErrReportNotFound,
		},
		{
			name:    "Malformed ID never reaches the database",
			id:      "not-a-uuid",
			noQuery: true,
			wantErr: ErrReportNotFound,
		},
		{
			name:    "Empty ID",
			id:      "",
			noQuery: true,
			wantErr: ErrReportNotFound,
		},
		{
			name: "Query error",
			id:   runID,
			err:  errors.New("permission denied for table insight_reports"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewReportRepository(db)

			if !tt.noQuery {
				exp := mock.ExpectQuery(`SELECT .* FROM insight_reports\s+WHERE run_id = \$1`).WithArgs(tt.id)
				if tt.err != nil {
					exp.WillReturnError(tt.err)
				} else {
					exp.WillReturnRows(tt.rows)
				}
			}

			s, err := repo.Get(context.Background(), tt.id)
			switch {
			case tt.wantID != "":
				if err != nil || s.RunID != tt.wantID {
					t.Errorf("Get = %+v, %v; want %s", s, err, tt.wantID)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			default:
				if err == nil || errors.Is(err, ErrReportNotFound) {
					t.Errorf("Expected wrapped query error, got %v", err)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Unmet expectations: %v", err)
			}
		})
	}
}

func TestReportRepositoryCleanupOlderThan(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReportRepository(db)

	mock.ExpectExec(`DELETE FROM insight_reports WHERE generated_at < \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	removed, err := repo.CleanupOlderThan(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOlderThan failed: %v", err)
	}
	if removed != 7 {
		t.Errorf("removed = %d, want 7", removed)
	}
}

func TestReportRepositoryRetriesDroppedConnection(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReportRepository(db)
	repo.retryWait = time.Millisecond

	s, err := NewReportSummary(sampleReport())
	if err != nil {
		t.Fatalf("NewReportSummary failed: %v", err)
	}

	mock.ExpectExec(`INSERT INTO insight_reports`).WillReturnError(errors.New("write: broken pipe"))
	mock.ExpectExec(`INSERT INTO insight_reports`).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Save(context.Background(), s); err != nil {
		t.Fatalf("Save should succeed on the second attempt: %v", err)
	}

	mock.ExpectQuery(`SELECT .* FROM insight_reports`).WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery(`SELECT .* FROM insight_reports`).WillReturnRows(
		sqlmock.NewRows(summaryColumns).AddRow(summaryRow(s.RunID, s.GeneratedAt, nil)...))
	summaries, err := repo.Recent(context.Background(), 5)
	if err != nil || len(summaries) != 1 {
		t.Fatalf("Recent = %v, %v; want one summary after retry", summaries, err)
	}

	mock.ExpectExec(`DELETE FROM insight_reports`).WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectExec(`DELETE FROM insight_reports`).WillReturnResult(sqlmock.NewResult(0, 2))
	if removed, err := repo.CleanupOlderThan(context.Background(), time.Hour); err != nil || removed != 2 {
		t.Fatalf("CleanupOlderThan = %d, %v; want 2 after retry", removed, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestReportRepositoryStatsAndHealth(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReportRepository(db)

	latest := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT\(\*\), MAX\(generated_at\) FROM insight_reports`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "max"}).AddRow(int64(4), latest))

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Reports != 4 || stats.LatestReport == nil || !stats.LatestReport.Equal(latest) {
		t.Errorf("Stats = %+v, want 4 reports, latest %v", stats, latest)
	}

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	if !repo.Healthy(context.Background()) {
		t.Error("Expected healthy archive")
	}
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("permission denied"))
	if repo.Healthy(context.Background()) {
		t.Error("Expected unhealthy archive after query error")
	}
}

func TestReportRepositoryEnsureConnection(t *testing.T) {
	original := connectFunc
	t.Cleanup(func() { connectFunc = original })

	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	repo := NewReportRepository(Wrap(sqlDB))

	mock.ExpectPing()
	if err := repo.EnsureConnection(context.Background()); err != nil {
		t.Fatalf("Live connection should be kept: %v", err)
	}

	fresh, freshMock := newMockDB(t)
	connectFunc = func(cfg config.DatabaseConfig) (*DB, error) { return fresh, nil }

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()
	if err := repo.EnsureConnection(context.Background()); err != nil {
		t.Fatalf("EnsureConnection should reconnect: %v", err)
	}
	if repo.conn() != fresh {
		t.Fatal("Repository should use the new connection")
	}

	freshMock.ExpectExec(`DELETE FROM insight_reports`).WillReturnResult(sqlmock.NewResult(0, 0))
	if _, err := repo.CleanupOlderThan(context.Background(), time.Hour); err != nil {
		t.Errorf("Query on new connection failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations on old connection: %v", err)
	}
}
