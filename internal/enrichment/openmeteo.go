package enrichment

import (
	"context"

	"github.com/unklstewy/balloonscope/pkg/openmeteo"
)

// OpenMeteoSource adapts an Open-Meteo client to TemperatureSource.
type OpenMeteoSource struct {
	Client *openmeteo.Client
}

// Temperatures implements TemperatureSource.
func (s OpenMeteoSource) Temperatures(ctx context.Context, coords []Coordinate) ([]Reading, error) {
	points := make([]openmeteo.Point, len(coords))
	for i, c := range coords {
		points[i] = openmeteo.Point{Lat: c.Lat, Lon: c.Lon}
	}

	temps, err := s.Client.Temperatures(ctx, points)
	if err != nil {
		return nil, err
	}

	readings := make([]Reading, len(temps))
	for i, t := range temps {
		readings[i] = Reading{Lat: t.Lat, Lon: t.Lon, TemperatureC: t.TemperatureC}
	}
	return readings, nil
}
