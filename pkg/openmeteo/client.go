// Package openmeteo provides a client for the Open-Meteo forecast API, used to
// look up the current 2 m surface temperature under a balloon.
//
// API Documentation: https://open-meteo.com/en/docs
// The free tier is rate limited per IP, so lookups are issued in small
// concurrent batches with a pause between batches.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BaseURL is the public Open-Meteo API
	BaseURL = "https://api.open-meteo.com"

	// DefaultTimeout for API requests
	DefaultTimeout = 10 * time.Second

	// DefaultBatchSize is the number of concurrent lookups per batch
	DefaultBatchSize = 5

	// DefaultBatchDelay is the pause between batches
	DefaultBatchDelay = 600 * time.Millisecond

	// DefaultRequestsPerSecond caps the sustained request rate
	DefaultRequestsPerSecond = 10.0
)

// Client represents an Open-Meteo API client.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	batchSize   int
	batchDelay  time.Duration
}

// Config contains configuration for the Open-Meteo client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	BatchSize         int
	BatchDelay        time.Duration
	RequestsPerSecond float64
}

// NewClient creates a new Open-Meteo client. Zero-valued fields take the
// package defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	} else if cfg.BatchDelay == 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BatchSize),
		batchSize:   cfg.BatchSize,
		batchDelay:  cfg.BatchDelay,
	}
}

// Point is a coordinate to look up.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Temperature is the lookup result for one Point. TemperatureC is nil when
// the lookup failed or the API returned no value.
type Temperature struct {
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	TemperatureC *float64 `json:"temperatureC"`
}

// forecastResponse is the subset of /v1/forecast this client reads.
type forecastResponse struct {
	Current struct {
		Time          string   `json:"time"`
		Temperature2m *float64 `json:"temperature_2m"`
	} `json:"current"`
}

// CurrentTemperature returns the current 2 m temperature in Celsius at a
// coordinate. A nil temperature with a nil error means the API had no value.
func (c *Client) CurrentTemperature(ctx context.Context, lat, lon float64) (*float64, error) {
	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current", "temperature_2m")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var forecast forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return forecast.Current.Temperature2m, nil
}

// Temperatures looks up every point, BatchSize at a time with BatchDelay
// between batches. Results are in input order. A failed lookup yields a nil
// temperature for that point; the call itself only errors when ctx ends.
func (c *Client) Temperatures(ctx context.Context, points []Point) ([]Temperature, error) {
	results := make([]Temperature, len(points))
	totalBatches := (len(points) + c.batchSize - 1) / c.batchSize

	for start := 0; start < len(points); start += c.batchSize {
		end := start + c.batchSize
		if end > len(points) {
			end = len(points)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p := points[i]
				results[i] = Temperature{Lat: p.Lat, Lon: p.Lon}

				temp, err := c.CurrentTemperature(ctx, p.Lat, p.Lon)
				if err != nil {
					if ctx.Err() == nil {
						log.Printf("⚠️  Temperature lookup failed at %.4f, %.4f: %v", p.Lat, p.Lon, err)
					}
					return
				}
				results[i].TemperatureC = temp
			}(i)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if end < len(points) && c.batchDelay > 0 {
			batch := start/c.batchSize + 1
			log.Printf("Pausing for %v after batch %d of %d", c.batchDelay, batch, totalBatches)

			timer := time.NewTimer(c.batchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return results, nil
}
