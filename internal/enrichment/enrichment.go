// Package enrichment pairs balloon positions with the surface temperature
// beneath them.
//
// The coordinator never fails. If the temperature source errors, times out or
// panics, every point comes back with a nil temperature so downstream
// regression always receives a well-formed list.
package enrichment

import (
	"context"
	"log"
	"time"

	"github.com/unklstewy/balloonscope/pkg/regression"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// Coordinate is a lookup key. Readings are matched back by exact equality of
// both fields.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Reading is one temperature result. TemperatureC is nil when unavailable.
type Reading struct {
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	TemperatureC *float64 `json:"temperatureC"`
}

// TemperatureSource looks up surface temperatures. Implementations may return
// readings in any order and may omit coordinates.
type TemperatureSource interface {
	Temperatures(ctx context.Context, coords []Coordinate) ([]Reading, error)
}

// PointWithTemperature is a sample point annotated with surface temperature.
type PointWithTemperature struct {
	Latitude     float64  `json:"lat"`
	Longitude    float64  `json:"lon"`
	Altitude     float64  `json:"alt"`
	TemperatureC *float64 `json:"temperatureC"`
}

// Recorder receives enrichment outcomes. internal/metrics implements it.
type Recorder interface {
	EnrichmentResult(withTemperature, missing int)
	CacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) EnrichmentResult(int, int) {}
func (nopRecorder) CacheLookup(bool)          {}

// Coordinator annotates sample points using a TemperatureSource.
type Coordinator struct {
	source   TemperatureSource
	timeout  time.Duration
	recorder Recorder
}

// NewCoordinator creates a coordinator. A positive timeout bounds each
// Annotate call; zero leaves the caller's context in charge.
func NewCoordinator(source TemperatureSource, timeout time.Duration) *Coordinator {
	return &Coordinator{
		source:   source,
		timeout:  timeout,
		recorder: nopRecorder{},
	}
}

// WithRecorder attaches an outcome recorder.
func (c *Coordinator) WithRecorder(r Recorder) *Coordinator {
	if r != nil {
		c.recorder = r
	}
	return c
}

// Annotate returns one PointWithTemperature per input point, in input order.
func (c *Coordinator) Annotate(ctx context.Context, points []trajectory.SamplePoint) []PointWithTemperature {
	annotated := make([]PointWithTemperature, len(points))
	for i, p := range points {
		annotated[i] = PointWithTemperature{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Altitude:  p.Altitude,
		}
	}
	if len(points) == 0 || c.source == nil {
		c.recorder.EnrichmentResult(0, len(points))
		return annotated
	}

	coords := make([]Coordinate, len(points))
	for i, p := range points {
		coords[i] = Coordinate{Lat: p.Latitude, Lon: p.Longitude}
	}

	readings, ok := c.lookup(ctx, coords)
	if !ok {
		c.recorder.EnrichmentResult(0, len(points))
		return annotated
	}

	byCoord := make(map[Coordinate]*float64, len(readings))
	for _, r := range readings {
		key := Coordinate{Lat: r.Lat, Lon: r.Lon}
		if _, seen := byCoord[key]; !seen || byCoord[key] == nil {
			byCoord[key] = r.TemperatureC
		}
	}

	withTemp := 0
	for i := range annotated {
		temp := byCoord[coords[i]]
		if temp != nil {
			v := *temp
			annotated[i].TemperatureC = &v
			withTemp++
		}
	}

	c.recorder.EnrichmentResult(withTemp, len(points)-withTemp)
	return annotated
}

// lookup calls the source, converting errors and panics into ok=false.
func (c *Coordinator) lookup(ctx context.Context, coords []Coordinate) (readings []Reading, ok bool) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  Temperature source panicked: %v", r)
			readings, ok = nil, false
		}
	}()

	readings, err := c.source.Temperatures(ctx, coords)
	if err != nil {
		log.Printf("⚠️  Temperature enrichment unavailable: %v", err)
		return nil, false
	}
	return readings, true
}

// Points converts annotated points into regression input with altitude as the
// explanatory variable and temperature as the response.
func Points(annotated []PointWithTemperature) []regression.Point {
	points := make([]regression.Point, len(annotated))
	for i, a := range annotated {
		points[i] = regression.Point{X: a.Altitude, Y: a.TemperatureC}
	}
	return points
}
