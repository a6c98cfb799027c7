package analytics

import (
	"math"

	"github.com/unklstewy/balloonscope/pkg/coordinates"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// NoDriftLabel is the compass label reported when no trajectory qualifies.
const NoDriftLabel = "N/A"

// Drift is the average direction of travel across the constellation.
type Drift struct {
	Found          bool    `json:"found"`
	BearingDegrees float64 `json:"bearingDegrees"`
	CompassLabel   string  `json:"compassLabel"`
	AvgDeltaLat    float64 `json:"avgDeltaLat"`
	AvgDeltaLon    float64 `json:"avgDeltaLon"`
	Trajectories   int     `json:"trajectories"`
}

// Coverage is the bounding box over every observed point.
type Coverage struct {
	TotalTrajectories int     `json:"totalTrajectories"`
	Found             bool    `json:"found"`
	MinLat            float64 `json:"minLat"`
	MaxLat            float64 `json:"maxLat"`
	MinLon            float64 `json:"minLon"`
	MaxLon            float64 `json:"maxLon"`
	LatRange          float64 `json:"latRange"`
	LonRange          float64 `json:"lonRange"`
}

// GlobalDrift averages the planar lat/lon delta from the oldest to the newest
// point of every trajectory and converts the mean vector into a bearing with
// atan2(dLon, dLat). This is an aggregate direction, not a great-circle
// bearing.
func GlobalDrift(trajectories []trajectory.Trajectory) Drift {
	var sumLat, sumLon float64
	count := 0

	for _, t := range trajectories {
		if t.Len() < 2 {
			continue
		}
		newest, oldest := t.Newest(), t.Oldest()
		sumLat += newest.Latitude - oldest.Latitude
		sumLon += newest.Longitude - oldest.Longitude
		count++
	}

	if count == 0 {
		return Drift{CompassLabel: NoDriftLabel}
	}

	avgLat := sumLat / float64(count)
	avgLon := sumLon / float64(count)
	bearing := coordinates.NormalizeAzimuth(math.Atan2(avgLon, avgLat) * coordinates.RadiansToDegrees)

	return Drift{
		Found:          true,
		BearingDegrees: bearing,
		CompassLabel:   coordinates.CompassLabel(bearing),
		AvgDeltaLat:    avgLat,
		AvgDeltaLon:    avgLon,
		Trajectories:   count,
	}
}

// CoverageBounds returns the lat/lon bounding box of every point. Found is
// false when no trajectory holds a point.
func CoverageBounds(trajectories []trajectory.Trajectory) Coverage {
	result := Coverage{TotalTrajectories: len(trajectories)}

	for _, t := range trajectories {
		for _, p := range t.Path {
			if !result.Found {
				result.Found = true
				result.MinLat, result.MaxLat = p.Latitude, p.Latitude
				result.MinLon, result.MaxLon = p.Longitude, p.Longitude
				continue
			}
			result.MinLat = math.Min(result.MinLat, p.Latitude)
			result.MaxLat = math.Max(result.MaxLat, p.Latitude)
			result.MinLon = math.Min(result.MinLon, p.Longitude)
			result.MaxLon = math.Max(result.MaxLon, p.Longitude)
		}
	}

	if result.Found {
		result.LatRange = result.MaxLat - result.MinLat
		result.LonRange = result.MaxLon - result.MinLon
	}
	return result
}
