package enrichment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/balloonscope/pkg/regression"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// fakeSource returns temperatures from a map, in reverse order.
type fakeSource struct {
	mu     sync.Mutex
	temps  map[Coordinate]float64
	calls  [][]Coordinate
	err    error
	delay  time.Duration
	panics bool
}

func (f *fakeSource) Temperatures(ctx context.Context, coords []Coordinate) ([]Reading, error) {
	f.mu.Lock()
	f.calls = append(f.calls, coords)
	f.mu.Unlock()

	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	readings := make([]Reading, 0, len(coords))
	for i := len(coords) - 1; i >= 0; i-- {
		c := coords[i]
		r := Reading{Lat: c.Lat, Lon: c.Lon}
		if v, ok := f.temps[c]; ok {
			r.TemperatureC = regression.Float(v)
		}
		readings = append(readings, r)
	}
	return readings, nil
}

type countingRecorder struct {
	withTemp, missing, hits, misses int
}

func (r *countingRecorder) EnrichmentResult(withTemperature, missing int) {
	r.withTemp += withTemperature
	r.missing += missing
}

func (r *countingRecorder) CacheLookup(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func samplePoints() []trajectory.SamplePoint {
	return []trajectory.SamplePoint{
		{Latitude: 10, Longitude: 20, Altitude: 15},
		{Latitude: -5, Longitude: 100, Altitude: 18},
		{Latitude: 60, Longitude: -30, Altitude: 12},
	}
}

func TestAnnotateMatchesByCoordinate(t *testing.T) {
	src := &fakeSource{temps: map[Coordinate]float64{
		{Lat: 10, Lon: 20}:  25.5,
		{Lat: 60, Lon: -30}: 4.0,
	}}
	rec := &countingRecorder{}

	got := NewCoordinator(src, 0).WithRecorder(rec).Annotate(context.Background(), samplePoints())

	if len(got) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(got))
	}
	if got[0].TemperatureC == nil || *got[0].TemperatureC != 25.5 {
		t.Errorf("Point 0: expected 25.5, got %v", got[0].TemperatureC)
	}
	if got[1].TemperatureC != nil {
		t.Errorf("Point 1: expected nil, got %v", *got[1].TemperatureC)
	}
	if got[2].TemperatureC == nil || *got[2].TemperatureC != 4.0 {
		t.Errorf("Point 2: expected 4.0, got %v", got[2].TemperatureC)
	}
	if got[1].Altitude != 18 || got[1].Latitude != -5 {
		t.Errorf("Point 1 position not preserved: %+v", got[1])
	}
	if rec.withTemp != 2 || rec.missing != 1 {
		t.Errorf("Recorder = %+v, want 2 with temperature, 1 missing", rec)
	}
}

func TestAnnotateDegradesToNil(t *testing.T) {
	tests := []struct {
		name    string
		src     *fakeSource
		timeout time.Duration
	}{
		{"Source error", &fakeSource{err: errors.New("network down")}, 0},
		{"Source panic", &fakeSource{panics: true}, 0},
		{"Timeout", &fakeSource{delay: time.Second, temps: map[Coordinate]float64{{Lat: 10, Lon: 20}: 1}}, 20 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewCoordinator(tt.src, tt.timeout).Annotate(context.Background(), samplePoints())
			if len(got) != 3 {
				t.Fatalf("Expected 3 points, got %d", len(got))
			}
			for i, p := range got {
				if p.TemperatureC != nil {
					t.Errorf("Point %d: expected nil temperature, got %v", i, *p.TemperatureC)
				}
			}
		})
	}
}

func TestAnnotateEmptyAndNilSource(t *testing.T) {
	src := &fakeSource{}
	if got := NewCoordinator(src, 0).Annotate(context.Background(), nil); len(got) != 0 {
		t.Errorf("Expected no points, got %d", len(got))
	}
	if len(src.calls) != 0 {
		t.Error("Source should not be called for empty input")
	}

	got := NewCoordinator(nil, 0).Annotate(context.Background(), samplePoints())
	if len(got) != 3 || got[0].TemperatureC != nil {
		t.Errorf("Nil source: expected 3 nil temperatures, got %+v", got)
	}
}

func TestPoints(t *testing.T) {
	annotated := []PointWithTemperature{
		{Altitude: 1, TemperatureC: regression.Float(20)},
		{Altitude: 2, TemperatureC: regression.Float(18)},
		{Altitude: 3, TemperatureC: regression.Float(16)},
		{Altitude: 4},
	}

	fit, ok := regression.LinearFit(Points(annotated))
	if !ok {
		t.Fatal("Expected a fit")
	}
	if fit.N != 3 {
		t.Errorf("N = %d, want 3", fit.N)
	}
}

func TestCachedSource(t *testing.T) {
	src := &fakeSource{temps: map[Coordinate]float64{
		{Lat: 10, Lon: 20}:  25.5,
		{Lat: -5, Lon: 100}: 30.0,
		{Lat: 60, Lon: -30}: 4.0,
		{Lat: 1, Lon: 1}:    9.0,
	}}
	cache := NewMemoryCache()
	rec := &countingRecorder{}
	cached := NewCachedSource(src, cache, time.Hour)
	cached.Recorder = rec

	coords := []Coordinate{{Lat: 10, Lon: 20}, {Lat: -5, Lon: 100}, {Lat: 10, Lon: 20}}
	readings, err := cached.Temperatures(context.Background(), coords)
	if err != nil {
		t.Fatalf("Temperatures failed: %v", err)
	}
	if len(readings) != 3 || *readings[0].TemperatureC != 25.5 || *readings[2].TemperatureC != 25.5 {
		t.Errorf("Unexpected readings: %+v", readings)
	}
	if len(src.calls) != 1 || len(src.calls[0]) != 2 {
		t.Fatalf("Expected one deduplicated call with 2 coords, got %v", src.calls)
	}

	readings, err = cached.Temperatures(context.Background(), []Coordinate{{Lat: 10, Lon: 20}, {Lat: 1, Lon: 1}})
	if err != nil {
		t.Fatalf("Temperatures failed: %v", err)
	}
	if len(src.calls) != 2 || len(src.calls[1]) != 1 || src.calls[1][0] != (Coordinate{Lat: 1, Lon: 1}) {
		t.Errorf("Expected only the miss to be forwarded, got %v", src.calls)
	}
	if *readings[1].TemperatureC != 9.0 {
		t.Errorf("Unexpected reading: %+v", readings[1])
	}
	if rec.hits != 1 || rec.misses != 4 {
		t.Errorf("Recorder = %+v, want 1 hit, 4 misses", rec)
	}
	if cache.Len() != 3 {
		t.Errorf("Cache holds %d entries, want 3", cache.Len())
	}
}

func TestCachedSourceSkipsNil(t *testing.T) {
	src := &fakeSource{temps: map[Coordinate]float64{}}
	cache := NewMemoryCache()
	cached := NewCachedSource(src, cache, 0)

	if cached.TTL != DefaultCacheTTL {
		t.Errorf("TTL = %v, want default", cached.TTL)
	}

	if _, err := cached.Temperatures(context.Background(), []Coordinate{{Lat: 1, Lon: 2}}); err != nil {
		t.Fatalf("Temperatures failed: %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("Nil temperatures must not be cached, cache has %d", cache.Len())
	}

	src.err = errors.New("down")
	if _, err := cached.Temperatures(context.Background(), []Coordinate{{Lat: 1, Lon: 2}}); err == nil {
		t.Error("Expected error to propagate from the wrapped source")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	c := Coordinate{Lat: 1, Lon: 2}
	cache.Set(ctx, c, 12.5, time.Minute)

	if v, ok := cache.Get(ctx, c); !ok || v != 12.5 {
		t.Errorf("Get = %v, %v; want 12.5, true", v, ok)
	}

	now = now.Add(time.Minute)
	if _, ok := cache.Get(ctx, c); ok {
		t.Error("Expected entry to expire")
	}
	if cache.Len() != 0 {
		t.Errorf("Expired entry not removed, Len = %d", cache.Len())
	}

	cache.Set(ctx, c, 1, time.Second)
	cache.Set(ctx, Coordinate{Lat: 3}, 2, time.Hour)
	now = now.Add(2 * time.Second)
	if removed := cache.Prune(); removed != 1 {
		t.Errorf("Prune removed %d, want 1", removed)
	}
}
