package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/balloonscope/internal/app"
	"github.com/unklstewy/balloonscope/internal/tui"
	"github.com/unklstewy/balloonscope/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// The dashboard only reconstructs trajectories
	cfg.Enrichment.Enabled = false

	components, err := app.New(context.Background(), cfg, app.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	// Log lines would corrupt the alt screen
	log.SetOutput(io.Discard)

	m := tui.New(components.Insights.Snapshot, tui.Config{
		ThresholdKm:     cfg.Analytics.ThresholdKm,
		PageSize:        cfg.Analytics.PageSize,
		RefreshInterval: app.SnapshotTTL,
		FetchTimeout:    time.Minute,
		Invalidate:      components.Insights.Invalidate,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
