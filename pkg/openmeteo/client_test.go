package openmeteo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestCurrentTemperature(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("latitude") != "45.5" || q.Get("longitude") != "-122.25" {
			t.Errorf("Unexpected coordinates: %s", r.URL.RawQuery)
		}
		if q.Get("current") != "temperature_2m" || q.Get("timezone") != "auto" {
			t.Errorf("Unexpected query: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"current": {"time": "2025-06-01T12:00", "temperature_2m": 18.4}}`)
	})

	client := NewClient(Config{BaseURL: server.URL})
	temp, err := client.CurrentTemperature(context.Background(), 45.5, -122.25)
	if err != nil {
		t.Fatalf("CurrentTemperature failed: %v", err)
	}
	if temp == nil || *temp != 18.4 {
		t.Errorf("Expected 18.4, got %v", temp)
	}
}

func TestCurrentTemperatureErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
		wantNil bool
	}{
		{"Server error", http.StatusInternalServerError, `oops`, true, true},
		{"Malformed JSON", http.StatusOK, `{"current":`, true, true},
		{"Missing value", http.StatusOK, `{"current": {}}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			temp, err := NewClient(Config{BaseURL: server.URL}).CurrentTemperature(context.Background(), 0, 0)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (temp == nil) != tt.wantNil {
				t.Errorf("temp = %v, wantNil %v", temp, tt.wantNil)
			}
		})
	}
}

func TestTemperaturesBatching(t *testing.T) {
	var calls int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		lat := r.URL.Query().Get("latitude")
		if lat == "3" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"current": {"temperature_2m": %s}}`, lat)
	})

	client := NewClient(Config{
		BaseURL:           server.URL,
		BatchSize:         2,
		BatchDelay:        20 * time.Millisecond,
		RequestsPerSecond: 1000,
	})

	points := []Point{{Lat: 1, Lon: 0}, {Lat: 2, Lon: 0}, {Lat: 3, Lon: 0}, {Lat: 4, Lon: 0}, {Lat: 5, Lon: 0}}

	start := time.Now()
	results, err := client.Temperatures(context.Background(), points)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Temperatures failed: %v", err)
	}
	if len(results) != len(points) {
		t.Fatalf("Expected %d results, got %d", len(points), len(results))
	}
	for i, r := range results {
		if r.Lat != points[i].Lat || r.Lon != points[i].Lon {
			t.Errorf("Result %d out of order: %+v", i, r)
		}
		if points[i].Lat == 3 {
			if r.TemperatureC != nil {
				t.Errorf("Expected nil temperature for failed lookup, got %v", *r.TemperatureC)
			}
			continue
		}
		if r.TemperatureC == nil || *r.TemperatureC != points[i].Lat {
			t.Errorf("Result %d: expected %v, got %v", i, points[i].Lat, r.TemperatureC)
		}
	}

	if atomic.LoadInt32(&calls) != 5 {
		t.Errorf("Expected 5 calls, got %d", calls)
	}
	// 3 batches, 2 pauses
	if elapsed < 40*time.Millisecond {
		t.Errorf("Expected at least two batch pauses, took %v", elapsed)
	}
}

func TestTemperaturesCancelled(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"current": {"temperature_2m": 1}}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(Config{BaseURL: server.URL}).Temperatures(ctx, []Point{{Lat: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestTemperaturesEmpty(t *testing.T) {
	results, err := NewClient(Config{}).Temperatures(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Errorf("Expected empty result, got %v, %v", results, err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{})
	if c.baseURL != BaseURL || c.batchSize != DefaultBatchSize || c.batchDelay != DefaultBatchDelay {
		t.Errorf("Unexpected defaults: %+v", c)
	}
	if c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v", c.httpClient.Timeout)
	}

	c = NewClient(Config{BatchDelay: -1})
	if c.batchDelay != 0 {
		t.Errorf("Negative BatchDelay should disable pauses, got %v", c.batchDelay)
	}
}
