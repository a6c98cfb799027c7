// Package trajectory reconstructs per-balloon paths from the hourly snapshot
// window published by the constellation feed.
//
// The feed carries no stable identity for a balloon. Each hour is an array of
// positions and the only correlation key across hours is the position of an
// entry inside that array. Trajectories built this way are a best-effort
// heuristic: if the upstream ordering changes between two hours, unrelated
// balloons get spliced into one path. Callers that receive a real identity can
// switch to KeyedCorrelation.
package trajectory

import (
	"time"

	"github.com/unklstewy/balloonscope/pkg/coordinates"
)

// HoursInWindow is the number of hourly snapshots in one observation window.
const HoursInWindow = 24

// SamplePoint is one observation of one balloon at one hour offset.
type SamplePoint struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"lat"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"lon"`

	// Altitude in kilometers
	Altitude float64 `json:"alt"`

	// HoursAgo is the snapshot offset, 0 = most recent
	HoursAgo int `json:"hoursAgo"`

	// Timestamp is the fetch time minus HoursAgo hours
	Timestamp time.Time `json:"timestamp"`

	// Key is an optional upstream identity. Empty for the positional feed.
	Key string `json:"key,omitempty"`
}

// NewSamplePoint creates a sample point and derives its timestamp from now.
func NewSamplePoint(lat, lon, alt float64, hoursAgo int, now time.Time) SamplePoint {
	return SamplePoint{
		Latitude:  lat,
		Longitude: lon,
		Altitude:  alt,
		HoursAgo:  hoursAgo,
		Timestamp: now.Add(-time.Duration(hoursAgo) * time.Hour),
	}
}

// Position returns the point as a geographic position.
func (p SamplePoint) Position() coordinates.Geographic {
	return coordinates.Geographic{Latitude: p.Latitude, Longitude: p.Longitude, Altitude: p.Altitude}
}

// SnapshotMatrix holds one slice of points per hour. Index 0 is the most recent
// hour. A failed or filtered hour is an empty slice, never a missing one.
type SnapshotMatrix [HoursInWindow][]SamplePoint

// Width returns the length of the longest hour slice.
func (m *SnapshotMatrix) Width() int {
	width := 0
	for _, hour := range m {
		if len(hour) > width {
			width = len(hour)
		}
	}
	return width
}

// TotalPoints returns the number of points across every hour.
func (m *SnapshotMatrix) TotalPoints() int {
	total := 0
	for _, hour := range m {
		total += len(hour)
	}
	return total
}

// HoursWithData counts the hours that hold at least one point.
func (m *SnapshotMatrix) HoursWithData() int {
	count := 0
	for _, hour := range m {
		if len(hour) > 0 {
			count++
		}
	}
	return count
}

// Trajectory is one reconstructed balloon path.
type Trajectory struct {
	// ID is the positional index (or first-seen order for keyed correlation).
	// Only stable within a single reconstruction pass.
	ID int `json:"id"`

	// Key is the upstream identity when keyed correlation produced this path
	Key string `json:"key,omitempty"`

	// Path is ordered newest (HoursAgo=0) to oldest
	Path []SamplePoint `json:"path"`
}

// Len returns the number of points in the path.
func (t Trajectory) Len() int {
	return len(t.Path)
}

// Newest returns the most recent point, or the zero value for an empty path.
func (t Trajectory) Newest() SamplePoint {
	if len(t.Path) == 0 {
		return SamplePoint{}
	}
	return t.Path[0]
}

// Oldest returns the least recent point, or the zero value for an empty path.
func (t Trajectory) Oldest() SamplePoint {
	if len(t.Path) == 0 {
		return SamplePoint{}
	}
	return t.Path[len(t.Path)-1]
}

// LatestPoints returns the newest point of every trajectory, in trajectory order.
func LatestPoints(trajectories []Trajectory) []SamplePoint {
	points := make([]SamplePoint, 0, len(trajectories))
	for _, t := range trajectories {
		if len(t.Path) > 0 {
			points = append(points, t.Path[0])
		}
	}
	return points
}
