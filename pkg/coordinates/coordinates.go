// Package coordinates provides the great-circle geometry used to measure
// balloon motion: haversine distance, initial bearing and compass labels.
//
// Every function is fail-soft. Upstream positions are frequently corrupt, so a
// NaN or infinite input produces 0 instead of propagating through aggregates.
package coordinates

import "math"

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the Earth's mean radius in kilometers
	EarthRadiusKm = 6371.0
)

// compassLabels are the eight principal winds, clockwise from north.
var compassLabels = [8]string{
	"North",
	"Northeast",
	"East",
	"Southeast",
	"South",
	"Southwest",
	"West",
	"Northwest",
}

// Geographic represents a position on Earth's surface.
type Geographic struct {
	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64

	// Altitude in kilometers above mean sea level
	Altitude float64
}

// IsFinite reports whether latitude and longitude are usable numbers.
func (g Geographic) IsFinite() bool {
	return finite(g.Latitude, g.Longitude)
}

// InRange reports whether the position lies inside the valid lat/lon box.
func (g Geographic) InRange() bool {
	return g.IsFinite() &&
		g.Latitude >= -90 && g.Latitude <= 90 &&
		g.Longitude >= -180 && g.Longitude <= 180
}

// NormalizeAzimuth ensures azimuth is in the range [0, 360).
func NormalizeAzimuth(azimuth float64) float64 {
	az := math.Mod(azimuth, 360.0)
	if az < 0 {
		az += 360.0
	}
	// math.Mod(-1e-15, 360) + 360 rounds to 360
	if az >= 360.0 {
		az = 0
	}
	return az
}

// AngularDifference returns the smallest angle between two headings,
// in the range [0, 180].
func AngularDifference(a, b float64) float64 {
	diff := math.Abs(a - b)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// CompassLabel maps a bearing to one of the eight principal compass
// directions ("North", "Northeast", ... "Northwest").
func CompassLabel(bearing float64) string {
	if !finite(bearing) {
		return compassLabels[0]
	}
	idx := int(math.Round(NormalizeAzimuth(bearing)/45.0)) % 8
	return compassLabels[idx]
}

// DistanceKm calculates the great-circle distance between two points using
// the haversine formula. Returns 0 if any input is NaN or infinite.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	if !finite(lat1, lon1, lat2, lon2) {
		return 0
	}

	lat1Rad := lat1 * DegreesToRadians
	lat2Rad := lat2 * DegreesToRadians
	dLat := (lat2 - lat1) * DegreesToRadians
	dLon := (lon2 - lon1) * DegreesToRadians

	// Haversine formula
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// BearingDegrees calculates the initial bearing (forward azimuth) from point 1
// to point 2 along a great circle. Returns degrees in [0, 360), where
// 0 = North, 90 = East, 180 = South, 270 = West. Non-finite input yields 0.
func BearingDegrees(lat1, lon1, lat2, lon2 float64) float64 {
	if !finite(lat1, lon1, lat2, lon2) {
		return 0
	}

	lat1Rad := lat1 * DegreesToRadians
	lat2Rad := lat2 * DegreesToRadians
	dLon := (lon2 - lon1) * DegreesToRadians

	y := math.Sin(dLon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLon)

	return NormalizeAzimuth(math.Atan2(y, x) * RadiansToDegrees)
}

// Distance is DistanceKm for two Geographic positions.
func Distance(from, to Geographic) float64 {
	return DistanceKm(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
}

// Bearing is BearingDegrees for two Geographic positions.
func Bearing(from, to Geographic) float64 {
	return BearingDegrees(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
