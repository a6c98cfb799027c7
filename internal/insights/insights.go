// Package insights runs one analytics pass: fetch the observation window,
// reconstruct trajectories, compute the constellation statistics and annotate
// a sample of current positions with surface temperatures.
package insights

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unklstewy/balloonscope/internal/enrichment"
	"github.com/unklstewy/balloonscope/internal/metrics"
	"github.com/unklstewy/balloonscope/pkg/analytics"
	"github.com/unklstewy/balloonscope/pkg/feed"
	"github.com/unklstewy/balloonscope/pkg/regression"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// DefaultSampleSize is the number of current positions annotated per pass.
const DefaultSampleSize = 50

// ExtremeSummary identifies a trajectory without carrying its path.
type ExtremeSummary struct {
	Found        bool    `json:"found"`
	TrajectoryID int     `json:"trajectoryId"`
	Points       int     `json:"points"`
	DistanceKm   float64 `json:"distanceKm"`
}

// Overview holds the per-trajectory fun facts.
type Overview struct {
	TotalTrajectories int                       `json:"totalTrajectories"`
	LongestJourney    ExtremeSummary            `json:"longestJourney"`
	ShortestJourney   ExtremeSummary            `json:"shortestJourney"`
	AverageDistanceKm float64                   `json:"averageDistanceKm"`
	HighestAltitude   analytics.AltitudeExtreme `json:"highestAltitude"`
	LowestAltitude    analytics.AltitudeExtreme `json:"lowestAltitude"`
	AltitudeExplorer  analytics.AltitudeRange   `json:"altitudeExplorer"`
	AboveThreshold    analytics.Threshold       `json:"aboveThreshold"`
	FastestMover      analytics.Speed           `json:"fastestMover"`
	MostConsistent    analytics.Consistency     `json:"mostConsistent"`
	Coverage          analytics.Coverage        `json:"coverage"`
	AltitudeHistogram analytics.Distribution    `json:"altitudeDistribution"`
}

// Global holds the constellation-wide view and the temperature trend.
type Global struct {
	Drift             analytics.Drift                   `json:"drift"`
	AverageAltitudeKm float64                           `json:"averageAltitudeKm"`
	Sample            []enrichment.PointWithTemperature `json:"sample"`
	WithTemperature   int                               `json:"withTemperature"`

	// Trend is nil when the sample cannot support a fit
	Trend *regression.Fit `json:"trend"`
}

// Report is the result of one pass.
type Report struct {
	RunID       string        `json:"runId"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Metadata    feed.Metadata `json:"metadata"`
	Overview    Overview      `json:"overview"`
	Global      Global        `json:"global"`

	// Trajectories are kept for callers that page through them
	Trajectories []trajectory.Trajectory `json:"-"`
}

// Options tunes a single Run.
type Options struct {
	// SampleSize is the number of positions to annotate; zero uses the
	// service default
	SampleSize int

	// SkipEnrichment leaves every temperature nil
	SkipEnrichment bool
}

// Snapshot is a fetched window together with its trajectories.
type Snapshot struct {
	Window       feed.Window
	Trajectories []trajectory.Trajectory
}

// Service wires the feed, builder and enrichment together.
type Service struct {
	source   feed.DataSource
	builder  *trajectory.Builder
	enricher *enrichment.Coordinator
	metrics  *metrics.Collector

	thresholdKm float64
	sampleSize  int
	snapshotTTL time.Duration
	now         func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu        sync.Mutex
	snapshot  *Snapshot
	fetchedAt time.Time
}

// Config configures a Service. Zero values fall back to defaults.
type Config struct {
	Builder     *trajectory.Builder
	Enricher    *enrichment.Coordinator
	Metrics     *metrics.Collector
	ThresholdKm float64
	SampleSize  int

	// SnapshotTTL reuses a fetched window for this long. Zero refetches on
	// every call.
	SnapshotTTL time.Duration

	// Seed makes sampling reproducible when non-zero
	Seed int64
}

// NewService creates a service reading from source.
func NewService(source feed.DataSource, cfg Config) *Service {
	if cfg.Builder == nil {
		cfg.Builder = trajectory.NewBuilder(nil)
	}
	if cfg.Enricher == nil {
		cfg.Enricher = enrichment.NewCoordinator(nil, 0)
	}
	if cfg.ThresholdKm <= 0 {
		cfg.ThresholdKm = analytics.EverestHeightKm
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Service{
		source:      source,
		builder:     cfg.Builder,
		enricher:    cfg.Enricher,
		metrics:     cfg.Metrics,
		thresholdKm: cfg.ThresholdKm,
		sampleSize:  cfg.SampleSize,
		snapshotTTL: cfg.SnapshotTTL,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Snapshot fetches the window and reconstructs trajectories, reusing a recent
// result when a snapshot TTL is configured.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil && s.snapshotTTL > 0 && s.now().Sub(s.fetchedAt) < s.snapshotTTL {
		return s.snapshot, nil
	}

	window, err := s.source.FetchWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch observation window: %w", err)
	}

	meta := window.Metadata
	s.metrics.RecordWindow(trajectory.HoursInWindow-meta.HoursWithErrors, meta.HoursWithErrors, meta.TotalPoints, meta.HoursWithData)

	trajectories := s.builder.Build(window.Matrix)
	s.metrics.SetTrajectories(len(trajectories))

	snap := &Snapshot{Window: window, Trajectories: trajectories}
	// An all-failed window is transient; do not pin it.
	if !meta.AllFailed() {
		s.snapshot = snap
		s.fetchedAt = s.now()
	}
	return snap, nil
}

// Invalidate drops the cached snapshot so the next call refetches.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}

// ThresholdKm returns the reference altitude used for threshold comparisons.
func (s *Service) ThresholdKm() float64 {
	return s.thresholdKm
}

// Run performs a full pass. The only error is a failure to fetch the window;
// every statistic degrades to its no-data form otherwise.
func (s *Service) Run(ctx context.Context, opts Options) (*Report, error) {
	start := s.now()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var annotated []enrichment.PointWithTemperature
	sample := s.Sample(snap.Trajectories, opts.SampleSize)
	if opts.SkipEnrichment {
		annotated = enrichment.NewCoordinator(nil, 0).Annotate(ctx, sample)
	} else {
		annotated = s.enricher.Annotate(ctx, sample)
	}

	report := Compute(snap.Window, snap.Trajectories, annotated, s.thresholdKm)
	s.metrics.ObservePipeline(s.now().Sub(start))
	return report, nil
}

// Sample draws up to n current positions, defaulting to the service size.
func (s *Service) Sample(trajectories []trajectory.Trajectory, n int) []trajectory.SamplePoint {
	if n <= 0 {
		n = s.sampleSize
	}
	latest := trajectory.LatestPoints(trajectories)

	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return analytics.Sample(latest, n, s.rng)
}

// Close releases the underlying data source.
func (s *Service) Close() error {
	return s.source.Close()
}

// Compute assembles a report from an already fetched window, its
// trajectories and an annotated sample. It performs no I/O.
func Compute(window feed.Window, trajectories []trajectory.Trajectory, annotated []enrichment.PointWithTemperature, thresholdKm float64) *Report {
	report := &Report{
		RunID:        uuid.NewString(),
		GeneratedAt:  time.Now().UTC(),
		Metadata:     window.Metadata,
		Overview:     ComputeOverview(trajectories, thresholdKm),
		Trajectories: trajectories,
	}

	report.Global = Global{
		Drift:             analytics.GlobalDrift(trajectories),
		AverageAltitudeKm: analytics.AverageAltitude(trajectories),
		Sample:            annotated,
	}
	if report.Global.Sample == nil {
		report.Global.Sample = []enrichment.PointWithTemperature{}
	}
	for _, p := range annotated {
		if p.TemperatureC != nil {
			report.Global.WithTemperature++
		}
	}
	if fit, ok := regression.LinearFit(enrichment.Points(annotated)); ok {
		report.Global.Trend = &fit
	}

	return report
}

// ComputeOverview runs the per-trajectory analytics.
func ComputeOverview(trajectories []trajectory.Trajectory, thresholdKm float64) Overview {
	return Overview{
		TotalTrajectories: len(trajectories),
		LongestJourney:    summarize(analytics.MaxDistance(trajectories)),
		ShortestJourney:   summarize(analytics.MinDistance(trajectories)),
		AverageDistanceKm: analytics.AverageDistance(trajectories),
		HighestAltitude:   analytics.MaxAltitude(trajectories),
		LowestAltitude:    analytics.MinAltitude(trajectories),
		AltitudeExplorer:  analytics.AltitudeExplorer(trajectories),
		AboveThreshold:    analytics.ThresholdComparison(trajectories, thresholdKm),
		FastestMover:      analytics.FastestMover(trajectories),
		MostConsistent:    analytics.DirectionConsistency(trajectories),
		Coverage:          analytics.CoverageBounds(trajectories),
		AltitudeHistogram: analytics.AltitudeDistribution(trajectories),
	}
}

func summarize(e analytics.DistanceExtreme) ExtremeSummary {
	if e.Trajectory == nil {
		return ExtremeSummary{}
	}
	return ExtremeSummary{
		Found:        true,
		TrajectoryID: e.Trajectory.ID,
		Points:       e.Trajectory.Len(),
		DistanceKm:   e.Distance,
	}
}
