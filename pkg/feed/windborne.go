package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/unklstewy/balloonscope/pkg/coordinates"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

const (
	// DefaultBaseURL is the public constellation snapshot endpoint
	DefaultBaseURL = "https://a.windbornesystems.com/treasure"

	// DefaultTimeout applies to each hourly request
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent identifies this client to the feed
	DefaultUserAgent = "balloonscope/1.0"

	// maxBodyBytes caps a single hourly snapshot
	maxBodyBytes = 16 << 20
)

// errNotArray is returned when an hourly body is valid JSON but not an array.
var errNotArray = errors.New("response is not an array")

// Config contains configuration for the snapshot client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Retry     RetryConfig
}

// WindborneClient implements DataSource for the hourly treasure feed.
// Hour NN (00..23, 00 = now) is served at {BaseURL}/NN.json as an array of
// [latitude, longitude, altitude_km] tuples.
type WindborneClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	retry      RetryConfig

	// now is overridden in tests
	now func() time.Time
}

// NewWindborneClient creates a snapshot client. Zero-valued fields in cfg
// take the package defaults; a zero Retry takes DefaultRetryConfig.
func NewWindborneClient(cfg Config) *WindborneClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	return &WindborneClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry: cfg.Retry,
		now:   time.Now,
	}
}

// HourSnapshot is one parsed hourly resource.
type HourSnapshot struct {
	Points []trajectory.SamplePoint

	// Dropped counts entries rejected by validation
	Dropped int
}

// FetchWindow fetches all 24 hours concurrently. Each hour retries on its own;
// one failing hour never cancels the others. The returned error is non-nil
// only when ctx ends before the fetch completes.
func (c *WindborneClient) FetchWindow(ctx context.Context) (Window, error) {
	fetchedAt := c.now()

	var snapshots [trajectory.HoursInWindow]HourSnapshot
	var failures [trajectory.HoursInWindow]error
	var wg sync.WaitGroup

	for hour := 0; hour < trajectory.HoursInWindow; hour++ {
		wg.Add(1)
		go func(hour int) {
			defer wg.Done()
			snapshots[hour], failures[hour] = RetryWithBackoffResult(ctx, c.retry, func() (HourSnapshot, error) {
				return c.FetchHour(ctx, hour, fetchedAt)
			})
		}(hour)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Window{}, fmt.Errorf("fetch window: %w", err)
	}

	var matrix trajectory.SnapshotMatrix
	var errs []HourError
	dropped := 0

	for hour := range snapshots {
		if err := failures[hour]; err != nil {
			log.Printf("⚠️  Failed to fetch %02d.json: %v", hour, err)
			errs = append(errs, HourError{Hour: hour, Message: err.Error()})
			matrix[hour] = []trajectory.SamplePoint{}
			continue
		}
		matrix[hour] = snapshots[hour].Points
		dropped += snapshots[hour].Dropped
	}

	return NewWindow(matrix, errs, dropped, fetchedAt), nil
}

// FetchHour downloads and validates a single hourly snapshot. Point
// timestamps are fetchedAt minus hour hours.
func (c *WindborneClient) FetchHour(ctx context.Context, hour int, fetchedAt time.Time) (HourSnapshot, error) {
	url := fmt.Sprintf("%s/%02d.json", c.baseURL, hour)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HourSnapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HourSnapshot{}, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return HourSnapshot{}, newRateLimitError(resp)
	}
	if resp.StatusCode != http.StatusOK {
		return HourSnapshot{}, &StatusError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return HourSnapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	return ParseHour(body, hour, fetchedAt)
}

// ParseHour decodes an hourly body. The body must be a JSON array; entries
// that are not valid [lat, lon, alt] tuples are dropped, never repaired.
func ParseHour(body []byte, hour int, fetchedAt time.Time) (HourSnapshot, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			return HourSnapshot{}, errNotArray
		}
		return HourSnapshot{}, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if entries == nil {
		// literal null
		return HourSnapshot{}, errNotArray
	}

	snapshot := HourSnapshot{Points: make([]trajectory.SamplePoint, 0, len(entries))}
	for _, raw := range entries {
		lat, lon, alt, ok := parseTuple(raw)
		if !ok {
			snapshot.Dropped++
			continue
		}
		snapshot.Points = append(snapshot.Points, trajectory.NewSamplePoint(lat, lon, alt, hour, fetchedAt))
	}
	return snapshot, nil
}

// parseTuple accepts an array whose first three elements are finite numbers
// with latitude in [-90, 90] and longitude in [-180, 180]. Extra elements
// are ignored.
func parseTuple(raw json.RawMessage) (lat, lon, alt float64, ok bool) {
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil || len(values) < 3 {
		return 0, 0, 0, false
	}

	var nums [3]float64
	for i := range nums {
		f, isNum := values[i].(float64)
		if !isNum || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, 0, 0, false
		}
		nums[i] = f
	}

	lat, lon, alt = nums[0], nums[1], nums[2]
	if !(coordinates.Geographic{Latitude: lat, Longitude: lon}).InRange() {
		return 0, 0, 0, false
	}
	return lat, lon, alt, true
}

// Close cleanly shuts down the client.
// There are no persistent connections, so this only releases idle ones.
func (c *WindborneClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
