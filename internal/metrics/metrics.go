// Package metrics exposes Prometheus metrics for the fetch, enrichment and
// analytics pipeline and for the HTTP API.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the balloonscope metrics. All methods are safe on a nil
// receiver so callers can run without metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	HourFetches      *prometheus.CounterVec
	EnrichmentPoints *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDurations    *prometheus.HistogramVec

	WindowPoints     prometheus.Gauge
	HoursWithData    prometheus.Gauge
	Trajectories     prometheus.Gauge
	PipelineDuration prometheus.Histogram
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice against the same registry
// returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.HourFetches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balloonscope_hour_fetches_total",
		Help: "Hourly snapshot fetches, labeled by outcome (ok, error).",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.EnrichmentPoints, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balloonscope_enrichment_points_total",
		Help: "Sample points annotated, labeled by outcome (temperature, missing).",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.CacheLookups, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balloonscope_temperature_cache_lookups_total",
		Help: "Temperature cache lookups, labeled by result (hit, miss).",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balloonscope_http_requests_total",
		Help: "HTTP requests, labeled by route pattern, method and status code.",
	}, []string{"route", "method", "code"})); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "balloonscope_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"route", "method"})); err != nil {
		return nil, err
	}
	if c.WindowPoints, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balloonscope_window_points",
		Help: "Valid points in the most recent observation window.",
	})); err != nil {
		return nil, err
	}
	if c.HoursWithData, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balloonscope_window_hours_with_data",
		Help: "Hours with at least one point in the most recent window.",
	})); err != nil {
		return nil, err
	}
	if c.Trajectories, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balloonscope_trajectories",
		Help: "Trajectories reconstructed in the most recent pass.",
	})); err != nil {
		return nil, err
	}
	if c.PipelineDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "balloonscope_pipeline_duration_seconds",
		Help:    "Duration of a full fetch, build, enrich and analyse pass.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordWindow records the outcome of one window fetch.
func (c *Collector) RecordWindow(hoursOK, hoursFailed, points, hoursWithData int) {
	if c == nil {
		return
	}
	c.HourFetches.WithLabelValues("ok").Add(float64(hoursOK))
	c.HourFetches.WithLabelValues("error").Add(float64(hoursFailed))
	c.WindowPoints.Set(float64(points))
	c.HoursWithData.Set(float64(hoursWithData))
}

// SetTrajectories records how many trajectories the last pass produced.
func (c *Collector) SetTrajectories(n int) {
	if c == nil {
		return
	}
	c.Trajectories.Set(float64(n))
}

// ObservePipeline records the duration of one pass.
func (c *Collector) ObservePipeline(d time.Duration) {
	if c == nil {
		return
	}
	c.PipelineDuration.Observe(d.Seconds())
}

// EnrichmentResult implements enrichment.Recorder.
func (c *Collector) EnrichmentResult(withTemperature, missing int) {
	if c == nil {
		return
	}
	c.EnrichmentPoints.WithLabelValues("temperature").Add(float64(withTemperature))
	c.EnrichmentPoints.WithLabelValues("missing").Add(float64(missing))
}

// CacheLookup implements enrichment.Recorder.
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

// Middleware records request counts and durations by chi route pattern.
// Unmatched requests are grouped under "unmatched" to bound cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// register adds collector to reg, returning an already registered collector
// of the same type when one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}
