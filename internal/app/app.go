// Package app builds the shared component graph used by the web server, the
// collector and the terminal viewer from one loaded configuration.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unklstewy/balloonscope/internal/auth"
	"github.com/unklstewy/balloonscope/internal/db"
	"github.com/unklstewy/balloonscope/internal/enrichment"
	"github.com/unklstewy/balloonscope/internal/insights"
	"github.com/unklstewy/balloonscope/internal/metrics"
	"github.com/unklstewy/balloonscope/internal/publish"
	"github.com/unklstewy/balloonscope/pkg/config"
	"github.com/unklstewy/balloonscope/pkg/feed"
	"github.com/unklstewy/balloonscope/pkg/openmeteo"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// SnapshotTTL is how long a fetched window is reused across requests.
const SnapshotTTL = 5 * time.Minute

// Options selects the optional parts of the graph.
type Options struct {
	// Registerer receives the metrics. Nil disables metrics.
	Registerer prometheus.Registerer

	// Source replaces the live feed client when set
	Source feed.DataSource

	// Archive connects to PostgreSQL when the database is enabled
	Archive bool

	// Publish connects to NATS when publishing is enabled
	Publish bool
}

// App holds every wired component. Optional parts are nil when disabled.
type App struct {
	Config       *config.Config
	Metrics      *metrics.Collector
	Insights     *insights.Service
	Temperatures enrichment.TemperatureSource
	MemoryCache  *enrichment.MemoryCache
	Auth         *auth.Service
	Reports      *db.ReportRepository
	Publisher    publish.Publisher

	closers []func() error
}

// New wires the components described by cfg. Failures of optional backends
// (Redis, PostgreSQL, NATS) are logged and the component is left disabled.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	a := &App{Config: cfg, Publisher: publish.Noop{}}

	if opts.Registerer != nil {
		collector, err := metrics.NewCollector(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		a.Metrics = collector
	}

	source := opts.Source
	if source == nil {
		retry := feed.DefaultRetryConfig()
		retry.MaxRetries = cfg.Feed.MaxRetries
		source = feed.NewWindborneClient(feed.Config{
			BaseURL:   cfg.Feed.BaseURL,
			UserAgent: cfg.Feed.UserAgent,
			Timeout:   cfg.Feed.Timeout(),
			Retry:     retry,
		})
	}

	if cfg.Enrichment.Enabled {
		a.Temperatures = a.temperatureSource(cfg)
	}

	var correlator trajectory.Correlator = trajectory.PositionalCorrelation{}
	if cfg.Analytics.KeyedCorrelation {
		correlator = trajectory.KeyedCorrelation{}
	}

	a.Insights = insights.NewService(source, insights.Config{
		Builder:     trajectory.NewBuilder(correlator),
		Enricher:    enrichment.NewCoordinator(a.Temperatures, cfg.Enrichment.Timeout()).WithRecorder(a.recorder()),
		Metrics:     a.Metrics,
		ThresholdKm: cfg.Analytics.ThresholdKm,
		SampleSize:  cfg.Analytics.DefaultSampleSize,
		SnapshotTTL: SnapshotTTL,
	})
	a.closers = append(a.closers, a.Insights.Close)

	a.Auth = auth.NewService(auth.Config{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenDuration: time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
	})

	if opts.Archive && cfg.Database.Enabled {
		database, err := db.ReconnectWithRetry(ctx, cfg.Database, 3, 2*time.Second)
		if err != nil {
			log.Printf("⚠️  Report archive disabled: %v", err)
		} else if err := database.InitSchema(ctx); err != nil {
			log.Printf("⚠️  Report archive disabled, schema init failed: %v", err)
			database.Close()
		} else {
			a.Reports = db.NewReportRepository(database)
			a.closers = append(a.closers, a.Reports.Close)
			log.Printf("✓ Report archive connected (%s:%d/%s)", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
		}
	}

	if opts.Publish && cfg.NATS.Enabled {
		pub, err := publish.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			log.Printf("⚠️  Report publishing disabled: %v", err)
		} else {
			a.Publisher = pub
			a.closers = append(a.closers, pub.Close)
			log.Printf("✓ Publishing reports to %s on %s", cfg.NATS.URL, pub.Subject())
		}
	}

	return a, nil
}

// temperatureSource builds the Open-Meteo source behind the configured cache.
func (a *App) temperatureSource(cfg *config.Config) enrichment.TemperatureSource {
	client := openmeteo.NewClient(openmeteo.Config{
		BaseURL:           cfg.Enrichment.BaseURL,
		Timeout:           cfg.Enrichment.Timeout(),
		BatchSize:         cfg.Enrichment.BatchSize,
		BatchDelay:        cfg.Enrichment.BatchDelay(),
		RequestsPerSecond: cfg.Enrichment.RequestsPerSecond,
	})
	var source enrichment.TemperatureSource = enrichment.OpenMeteoSource{Client: client}

	var cache enrichment.Cache
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := enrichment.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			log.Printf("⚠️  Falling back to in-memory temperature cache: %v", err)
			a.MemoryCache = enrichment.NewMemoryCache()
			cache = a.MemoryCache
		} else {
			cache = rc
			a.closers = append(a.closers, rc.Close)
		}
	case "none":
		return source
	default:
		a.MemoryCache = enrichment.NewMemoryCache()
		cache = a.MemoryCache
	}

	cached := enrichment.NewCachedSource(source, cache, cfg.Cache.TTL())
	cached.Recorder = a.recorder()
	return cached
}

func (a *App) recorder() enrichment.Recorder {
	if a.Metrics == nil {
		return nil
	}
	return a.Metrics
}

// Close releases every opened backend, newest first.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
