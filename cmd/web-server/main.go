// Balloonscope Web Server
// Serves the balloon window, trajectories and insights as a REST API
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unklstewy/balloonscope/internal/api"
	"github.com/unklstewy/balloonscope/internal/app"
	"github.com/unklstewy/balloonscope/internal/auth"
	"github.com/unklstewy/balloonscope/pkg/config"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	port       = flag.String("port", "", "HTTP server port (overrides config)")
	staticDir  = flag.String("static", "", "Directory of static files to serve at /")
	issueToken = flag.String("issue-token", "", "Print a bearer token for the named client and exit")
	tokenRole  = flag.String("role", auth.RoleEnricher, "Role for -issue-token (admin, enricher, viewer)")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	if *issueToken != "" {
		printToken(cfg, *issueToken, *tokenRole)
		return
	}

	log.Println("🚀 Starting Balloonscope Web Server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	components, err := app.New(ctx, cfg, app.Options{
		Registerer: prometheus.DefaultRegisterer,
		Archive:    true,
	})
	cancel()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	if !components.Auth.Enabled() {
		log.Println("⚠️  No JWT secret configured, /surface-temps is open")
	}
	if components.Temperatures == nil {
		log.Println("⚠️  Temperature enrichment disabled")
	}

	opts := api.Options{
		Insights:       components.Insights,
		Temperatures:   components.Temperatures,
		Auth:           components.Auth,
		Metrics:        components.Metrics,
		Analytics:      cfg.Analytics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StaticDir:      *staticDir,
	}
	// A nil repository must stay a nil interface
	if components.Reports != nil {
		opts.Reports = components.Reports
	}
	srv := api.NewServer(opts)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // enrichment passes can take a while
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("📡 Server listening on http://%s", cfg.Server.Addr())
		log.Printf("💡 Try http://localhost:%s/api/v1/insights/overview", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n👋 Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped")
}

// printToken issues a bearer token for an API client.
func printToken(cfg *config.Config, client, role string) {
	svc := auth.NewService(auth.Config{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenDuration: time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
	})

	switch role {
	case auth.RoleAdmin, auth.RoleEnricher, auth.RoleViewer:
	default:
		log.Fatalf("Unknown role %q", role)
	}

	token, err := svc.GenerateToken(client, role)
	if err != nil {
		log.Fatalf("Failed to issue token: %v (set BALLOONSCOPE_JWT_SECRET)", err)
	}
	fmt.Println(token)
}
