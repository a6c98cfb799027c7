// Package api serves the balloon data, trajectories and insights over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unklstewy/balloonscope/internal/auth"
	"github.com/unklstewy/balloonscope/internal/db"
	"github.com/unklstewy/balloonscope/internal/enrichment"
	"github.com/unklstewy/balloonscope/internal/insights"
	"github.com/unklstewy/balloonscope/internal/metrics"
	"github.com/unklstewy/balloonscope/pkg/analytics"
	"github.com/unklstewy/balloonscope/pkg/config"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

const (
	// CacheControlShared is sent with balloon data unless the client opts out.
	CacheControlShared = "public, max-age=300, stale-while-revalidate=60"

	// MaxSurfacePoints bounds one surface temperature request.
	MaxSurfacePoints = 500

	maxBodyBytes = 1 << 20
)

// ReportStore reads archived summaries. *db.ReportRepository implements it.
type ReportStore interface {
	Recent(ctx context.Context, limit int) ([]db.ReportSummary, error)
	Get(ctx context.Context, runID string) (*db.ReportSummary, error)
	Stats(ctx context.Context) (db.Stats, error)
	Healthy(ctx context.Context) bool
}

// Options configures a Server.
type Options struct {
	Insights       *insights.Service
	Temperatures   enrichment.TemperatureSource
	Reports        ReportStore
	Auth           *auth.Service
	Metrics        *metrics.Collector
	Analytics      config.AnalyticsConfig
	AllowedOrigins []string

	// StaticDir is served at / when set
	StaticDir string
}

// Server holds the HTTP router and its dependencies.
type Server struct {
	router    *chi.Mux
	insights  *insights.Service
	temps     enrichment.TemperatureSource
	reports   ReportStore
	authSvc   *auth.Service
	metrics   *metrics.Collector
	analytics config.AnalyticsConfig
	origins   []string
	staticDir string
}

// NewServer creates a server and configures its routes.
func NewServer(opts Options) *Server {
	a := opts.Analytics
	if a.DefaultSampleSize <= 0 {
		a.DefaultSampleSize = insights.DefaultSampleSize
	}
	if len(a.AllowedSampleSizes) == 0 {
		a.AllowedSampleSizes = []int{a.DefaultSampleSize}
	}
	if a.PageSize <= 0 {
		a.PageSize = 20
	}

	s := &Server{
		router:    chi.NewRouter(),
		insights:  opts.Insights,
		temps:     opts.Temperatures,
		reports:   opts.Reports,
		authSvc:   opts.Auth,
		metrics:   opts.Metrics,
		analytics: a,
		origins:   opts.AllowedOrigins,
		staticDir: opts.StaticDir,
	}
	if s.authSvc == nil {
		s.authSvc = auth.NewService(auth.Config{})
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Cache-Control"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/balloon-data", s.handleBalloonData)
		r.Get("/trajectories", s.handleTrajectories)
		r.Get("/insights/overview", s.handleOverview)
		r.Get("/reports", s.handleReports)
		r.Get("/reports/{runID}", s.handleReport)

		// Both spend temperature service quota
		r.Group(func(r chi.Router) {
			r.Use(s.authSvc.Middleware(auth.RoleEnricher))
			r.Get("/insights/global", s.handleGlobal)
			r.Post("/surface-temps", s.handleSurfaceTemps)
		})
	})

	if s.staticDir != "" {
		log.Printf("📁 Serving static files from: %s", s.staticDir)
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	archive := "disabled"
	if s.reports != nil {
		archive = "ok"
		if !s.reports.Healthy(r.Context()) {
			archive = "unreachable"
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"archive": archive,
		"auth":    s.authSvc.Enabled(),
	})
}

// balloonDataResponse mirrors feed.Window with a success flag.
type balloonDataResponse struct {
	Success  bool                       `json:"success"`
	Data     [][]trajectory.SamplePoint `json:"data"`
	Metadata interface{}                `json:"metadata"`
}

// handleBalloonData returns the raw 24-hour matrix.
func (s *Server) handleBalloonData(w http.ResponseWriter, r *http.Request) {
	noCache := strings.EqualFold(r.Header.Get("Cache-Control"), "no-cache")
	if noCache {
		s.insights.Invalidate()
	}

	snap, err := s.insights.Snapshot(r.Context())
	if err != nil {
		log.Printf("❌ Failed to fetch balloon data: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error while fetching balloon data")
		return
	}

	data := make([][]trajectory.SamplePoint, len(snap.Window.Matrix))
	for i, hour := range snap.Window.Matrix {
		if hour == nil {
			hour = []trajectory.SamplePoint{}
		}
		data[i] = hour
	}

	meta := snap.Window.Metadata
	status := http.StatusOK
	if meta.AllFailed() {
		status = http.StatusServiceUnavailable
	}

	if noCache {
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", CacheControlShared)
	}
	respondJSON(w, status, balloonDataResponse{
		Success:  meta.Success(),
		Data:     data,
		Metadata: meta,
	})
}

// handleTrajectories returns one page of reconstructed trajectories.
func (s *Server) handleTrajectories(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil || page < 0 {
		respondError(w, http.StatusBadRequest, "page must be a non-negative integer")
		return
	}
	size, err := queryInt(r, "size", s.analytics.PageSize)
	if err != nil || size <= 0 || size > 500 {
		respondError(w, http.StatusBadRequest, "size must be between 1 and 500")
		return
	}

	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	result := analytics.Page(snap.Trajectories, page, size)
	if result.Items == nil {
		result.Items = []trajectory.Trajectory{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total": len(snap.Trajectories),
		"page":  result,
	})
}

// handleOverview returns the per-trajectory fun facts.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"metadata": snap.Window.Metadata,
		"overview": insights.ComputeOverview(snap.Trajectories, s.insights.ThresholdKm()),
	})
}

// handleGlobal returns drift, average altitude and the annotated sample.
func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request) {
	sample, err := queryInt(r, "sample", s.analytics.DefaultSampleSize)
	if err != nil || !s.analytics.SampleSizeAllowed(sample) {
		respondError(w, http.StatusBadRequest, "sample must be one of "+joinInts(s.analytics.AllowedSampleSizes))
		return
	}

	report, err := s.insights.Run(r.Context(), insights.Options{SampleSize: sample})
	if err != nil {
		log.Printf("❌ Insights pass failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error while computing insights")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runId":    report.RunID,
		"metadata": report.Metadata,
		"global":   report.Global,
	})
}

// surfaceTempsRequest is the body of POST /surface-temps.
type surfaceTempsRequest struct {
	Points []enrichment.Coordinate `json:"points"`
}

// handleSurfaceTemps looks up the surface temperature at each point.
func (s *Server) handleSurfaceTemps(w http.ResponseWriter, r *http.Request) {
	var req surfaceTempsRequest
	// A missing or malformed body is treated as no points
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)

	if len(req.Points) == 0 {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "No Points Provided.",
		})
		return
	}
	if len(req.Points) > MaxSurfacePoints {
		respondError(w, http.StatusBadRequest, "too many points, maximum is "+strconv.Itoa(MaxSurfacePoints))
		return
	}
	if s.temps == nil {
		respondError(w, http.StatusServiceUnavailable, "Temperature enrichment disabled")
		return
	}

	readings, err := s.temps.Temperatures(r.Context(), req.Points)
	if err != nil {
		log.Printf("❌ Surface temperature lookup failed: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal Server Error"})
		return
	}

	byCoord := make(map[enrichment.Coordinate]*float64, len(readings))
	for _, rd := range readings {
		byCoord[enrichment.Coordinate{Lat: rd.Lat, Lon: rd.Lon}] = rd.TemperatureC
	}
	results := make([]enrichment.Reading, len(req.Points))
	for i, p := range req.Points {
		results[i] = enrichment.Reading{Lat: p.Lat, Lon: p.Lon, TemperatureC: byCoord[p]}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(results),
		"results": results,
	})
}

// handleReports lists archived summaries, newest first.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		respondError(w, http.StatusNotFound, "Report archive disabled")
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil || limit <= 0 || limit > 200 {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and 200")
		return
	}

	summaries, err := s.reports.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("❌ Failed to list reports: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list reports")
		return
	}
	stats, err := s.reports.Stats(r.Context())
	if err != nil {
		log.Printf("❌ Failed to read archive stats: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list reports")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(summaries),
		"total":   stats.Reports,
		"latest":  stats.LatestReport,
		"reports": summaries,
	})
}

// handleReport returns one archived summary.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		respondError(w, http.StatusNotFound, "Report archive disabled")
		return
	}

	summary, err := s.reports.Get(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, db.ErrReportNotFound) {
		respondError(w, http.StatusNotFound, "Report not found")
		return
	}
	if err != nil {
		log.Printf("❌ Failed to get report: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to get report")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// snapshot fetches the current window, writing an error response on failure.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*insights.Snapshot, bool) {
	snap, err := s.insights.Snapshot(r.Context())
	if err != nil {
		log.Printf("❌ Failed to fetch balloon data: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error while fetching balloon data")
		return nil, false
	}
	return snap, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("⚠️  Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
