// Package regression fits an ordinary least squares line between altitude and
// surface temperature over a sample of balloon positions.
package regression

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Point is one observation. Y is nil when the response is unavailable, for
// example when temperature enrichment failed for that coordinate.
type Point struct {
	X float64  `json:"x"`
	Y *float64 `json:"y"`
}

// Fit is the result of LinearFit.
type Fit struct {
	// Slope in response units per explanatory unit (°C per km)
	Slope float64 `json:"slope"`

	// Intercept in response units (°C)
	Intercept float64 `json:"intercept"`

	// R2 is the coefficient of determination. At most 1, negative for fits
	// worse than the mean.
	R2 float64 `json:"r2"`

	// N is the number of points with a response value
	N int `json:"n"`
}

// LinearFit computes y = Intercept + Slope*x over the points that carry a
// response value.
//
// ok is false when no point carries a response, or when every usable x is
// identical (including a single point). A vertical line has no finite slope, so
// it is reported as no fit instead of propagating NaN or Inf.
//
// When every y is identical the fit is exact and R2 is 1.
func LinearFit(points []Point) (Fit, bool) {
	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Y == nil || !finite(p.X) || !finite(*p.Y) {
			continue
		}
		xs = append(xs, p.X)
		ys = append(ys, *p.Y)
	}

	if len(xs) < 2 || allEqual(xs) {
		return Fit{}, false
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	if !finite(slope) || !finite(intercept) {
		return Fit{}, false
	}

	r2 := 1.0
	if !allEqual(ys) {
		r2 = stat.RSquared(xs, ys, nil, intercept, slope)
	}

	return Fit{
		Slope:     slope,
		Intercept: intercept,
		R2:        r2,
		N:         len(xs),
	}, true
}

// Float returns a pointer to v, for building Points by hand.
func Float(v float64) *float64 {
	return &v
}

func allEqual(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
