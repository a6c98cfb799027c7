package regression

import (
	"math"
	"testing"
)

func TestLinearFit(t *testing.T) {
	points := []Point{
		{X: 1, Y: Float(20)},
		{X: 2, Y: Float(18)},
		{X: 3, Y: Float(16)},
		{X: 4, Y: nil},
	}

	fit, ok := LinearFit(points)
	if !ok {
		t.Fatal("Expected a fit")
	}
	if math.Abs(fit.Slope-(-2)) > 1e-9 {
		t.Errorf("Slope = %v, want -2", fit.Slope)
	}
	if math.Abs(fit.Intercept-22) > 1e-9 {
		t.Errorf("Intercept = %v, want 22", fit.Intercept)
	}
	if math.Abs(fit.R2-1) > 1e-9 {
		t.Errorf("R2 = %v, want 1", fit.R2)
	}
	if fit.N != 3 {
		t.Errorf("N = %d, want 3", fit.N)
	}
}

func TestLinearFitNoFit(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
	}{
		{"Empty", nil},
		{"All responses missing", []Point{{X: 1}, {X: 2}, {X: 3}}},
		{"Single point", []Point{{X: 1, Y: Float(10)}}},
		{"Zero variance in x", []Point{{X: 5, Y: Float(1)}, {X: 5, Y: Float(2)}, {X: 5, Y: Float(3)}}},
		{"Non-finite response", []Point{{X: 1, Y: Float(math.NaN())}, {X: 2, Y: Float(math.Inf(1))}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if fit, ok := LinearFit(tt.points); ok {
				t.Errorf("Expected no fit, got %+v", fit)
			}
		})
	}
}

func TestLinearFitConstantResponse(t *testing.T) {
	fit, ok := LinearFit([]Point{
		{X: 1, Y: Float(7)},
		{X: 2, Y: Float(7)},
		{X: 3, Y: Float(7)},
	})
	if !ok {
		t.Fatal("Expected a fit")
	}
	if math.Abs(fit.Slope) > 1e-12 || math.Abs(fit.Intercept-7) > 1e-9 {
		t.Errorf("Fit = %+v, want flat line at 7", fit)
	}
	if fit.R2 != 1 {
		t.Errorf("R2 = %v, want 1", fit.R2)
	}
}

func TestLinearFitPoorFit(t *testing.T) {
	fit, ok := LinearFit([]Point{
		{X: 1, Y: Float(1)},
		{X: 2, Y: Float(5)},
		{X: 3, Y: Float(0)},
		{X: 4, Y: Float(6)},
	})
	if !ok {
		t.Fatal("Expected a fit")
	}
	if fit.R2 < 0 || fit.R2 >= 0.5 {
		t.Errorf("R2 = %v, expected a weak fit", fit.R2)
	}
}
