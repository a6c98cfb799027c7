package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/balloonscope/internal/app"
	"github.com/unklstewy/balloonscope/internal/collector"
	"github.com/unklstewy/balloonscope/internal/insights"
	"github.com/unklstewy/balloonscope/pkg/config"
)

// Collector periodically runs the insights pipeline, archives a summary of
// every report and publishes it to NATS. Dashboards subscribe to the subject
// instead of running their own passes against the feed.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single pass and exit")
	flag.Parse()

	log.Println("===========================================")
	log.Println("  Balloonscope Insights Collector")
	log.Println("===========================================")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded from: %s", *configPath)
	log.Printf("Feed: %s", cfg.Feed.BaseURL)
	log.Printf("Pass interval: %v", cfg.Analytics.CollectorInterval())
	log.Printf("Sample size: %d, threshold: %.3f km", cfg.Analytics.DefaultSampleSize, cfg.Analytics.ThresholdKm)
	if cfg.Enrichment.Enabled {
		log.Printf("Enrichment: %s (%s cache)", cfg.Enrichment.BaseURL, cfg.Cache.Backend)
	} else {
		log.Println("Enrichment: disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)
	components, err := app.New(setupCtx, cfg, app.Options{Archive: true, Publish: true})
	setupCancel()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	collectorCfg := collector.Config{
		Insights:  components.Insights,
		Publisher: components.Publisher,
		Interval:  cfg.Analytics.CollectorInterval(),
		Retention: time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour,
	}
	// Nil pointers must stay nil interfaces
	if components.Reports != nil {
		collectorCfg.Archive = components.Reports
	}
	if components.MemoryCache != nil {
		collectorCfg.Cache = components.MemoryCache
	}
	c := collector.New(collectorCfg)

	if *once {
		// os.Exit skips deferred calls
		os.Exit(runOnce(ctx, c, components.Close))
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	doneChan := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(doneChan)
	}()

	log.Println("\n===========================================")
	log.Println("  Collector service started")
	log.Println("  Press Ctrl+C to stop")
	log.Println("===========================================")

	select {
	case sig := <-sigChan:
		log.Printf("\nReceived signal: %v", sig)
	case <-doneChan:
		log.Println("\nCollector stopped")
	}

	log.Println("Shutting down gracefully...")
	cancel()
	<-doneChan

	stats := c.Stats()
	log.Printf("📊 %d passes, %d failed, %d archived, %d published", stats.Passes, stats.Failures, stats.Archived, stats.Published)
	log.Println("✓ Collector service stopped")
}

// passer runs one collector pass. *collector.Collector implements it.
type passer interface {
	Pass(ctx context.Context) *insights.Report
}

// runOnce performs a single pass, releases the backends and returns the exit
// code.
func runOnce(ctx context.Context, c passer, closeAll func() error) int {
	code := 0
	if c.Pass(ctx) == nil {
		code = 1
	}
	if err := closeAll(); err != nil {
		log.Printf("Error closing backends: %v", err)
	}
	return code
}
