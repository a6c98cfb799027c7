// Package collector runs insight passes on a fixed period and ships each
// report to the archive and the message bus.
package collector

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/unklstewy/balloonscope/internal/db"
	"github.com/unklstewy/balloonscope/internal/insights"
	"github.com/unklstewy/balloonscope/internal/publish"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// Archive stores report summaries. *db.ReportRepository implements it.
type Archive interface {
	EnsureConnection(ctx context.Context) error
	Save(ctx context.Context, s db.ReportSummary) error
	CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Pruner drops expired cache entries. *enrichment.MemoryCache implements it.
type Pruner interface {
	Prune() int
}

// Stats counts what the collector has done since it started.
type Stats struct {
	Passes       int
	Failures     int
	Archived     int
	Published    int
	LastRunID    string
	LastPassAt   time.Time
	LastTrend    bool
	LastBalloons int
}

// Config wires a Collector.
type Config struct {
	Insights  *insights.Service
	Archive   Archive
	Publisher publish.Publisher
	Cache     Pruner

	Interval  time.Duration
	Retention time.Duration

	// CleanupEvery runs archive cleanup after this many passes (default 6)
	CleanupEvery int
}

// Collector runs the insights pipeline periodically.
type Collector struct {
	cfg Config

	mu    sync.Mutex
	stats Stats
}

// New creates a collector. A zero Interval takes 10 minutes.
func New(cfg Config) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 6
	}
	if cfg.Publisher == nil {
		cfg.Publisher = publish.Noop{}
	}
	return &Collector{cfg: cfg}
}

// Run performs a pass immediately and then on every tick until ctx ends.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	log.Println("Performing initial pass...")
	c.Pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Pass(ctx)
		}
	}
}

// Pass runs one pipeline pass and distributes its report. Failures are
// logged; a panic in the pipeline is recovered so the next tick still runs.
func (c *Collector) Pass(ctx context.Context) (report *insights.Report) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in pass: %v", r)
			c.recordFailure()
			report = nil
		}
	}()

	c.cfg.Insights.Invalidate()
	report, err := c.cfg.Insights.Run(ctx, insights.Options{})
	if err != nil {
		log.Printf("✗ Pass failed: %v (will retry next cycle)", err)
		c.recordFailure()
		return nil
	}

	archived, published := false, false

	if c.cfg.Archive != nil {
		if err := c.cfg.Archive.EnsureConnection(ctx); err != nil {
			log.Printf("Error archiving report %s: %v", report.RunID, err)
		} else if summary, err := db.NewReportSummary(report); err != nil {
			log.Printf("Error summarizing report %s: %v", report.RunID, err)
		} else if err := c.cfg.Archive.Save(ctx, summary); err != nil {
			log.Printf("Error archiving report %s: %v", report.RunID, err)
		} else {
			archived = true
		}
	}

	if err := c.cfg.Publisher.PublishReport(ctx, report); err != nil {
		log.Printf("Error publishing report %s: %v", report.RunID, err)
	} else {
		published = true
	}

	passes := c.recordSuccess(report, archived, published)

	if passes%c.cfg.CleanupEvery == 0 {
		c.cleanup(ctx)
	}

	meta := report.Metadata
	log.Printf("[%s] Pass #%d: %d balloons, %d points, %d/%d hours failed, %d trajectories, %d/%d with temperature",
		report.GeneratedAt.Format("15:04:05"), passes, meta.TotalBalloons, meta.TotalPoints,
		meta.HoursWithErrors, trajectory.HoursInWindow, report.Overview.TotalTrajectories,
		report.Global.WithTemperature, len(report.Global.Sample))
	if report.Global.Trend != nil {
		log.Printf("  ✓ Trend: %.3f °C/km (R² %.3f)", report.Global.Trend.Slope, report.Global.Trend.R2)
	}

	return report
}

// cleanup drops expired archive rows and cache entries.
func (c *Collector) cleanup(ctx context.Context) {
	if c.cfg.Archive != nil && c.cfg.Retention > 0 {
		removed, err := c.cfg.Archive.CleanupOlderThan(ctx, c.cfg.Retention)
		if err != nil {
			log.Printf("Error during archive cleanup: %v", err)
		} else if removed > 0 {
			log.Printf("✓ Removed %d archived reports", removed)
		}
	}
	if c.cfg.Cache != nil {
		if pruned := c.cfg.Cache.Prune(); pruned > 0 {
			log.Printf("✓ Pruned %d cached temperatures", pruned)
		}
	}
}

func (c *Collector) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Passes++
	c.stats.Failures++
}

func (c *Collector) recordSuccess(r *insights.Report, archived, published bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Passes++
	if archived {
		c.stats.Archived++
	}
	if published {
		c.stats.Published++
	}
	c.stats.LastRunID = r.RunID
	c.stats.LastPassAt = r.GeneratedAt
	c.stats.LastTrend = r.Global.Trend != nil
	c.stats.LastBalloons = r.Metadata.TotalBalloons
	return c.stats.Passes
}

// Stats returns a copy of the counters.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
