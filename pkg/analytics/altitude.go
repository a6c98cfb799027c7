package analytics

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// EverestHeightKm is the summit height of Mount Everest, used as the default
// reference for ThresholdComparison.
const EverestHeightKm = 8.849

// AltitudeExtreme is the single highest (or lowest) observation in a set.
type AltitudeExtreme struct {
	Found        bool      `json:"found"`
	TrajectoryID int       `json:"trajectoryId"`
	Altitude     float64   `json:"altitude"`
	Latitude     float64   `json:"lat"`
	Longitude    float64   `json:"lon"`
	ObservedAt   time.Time `json:"observedAt"`
}

// AltitudeRange describes the trajectory with the widest altitude band.
type AltitudeRange struct {
	Found        bool    `json:"found"`
	TrajectoryID int     `json:"trajectoryId"`
	Range        float64 `json:"altitudeRange"`
	MaxAltitude  float64 `json:"maxAltitude"`
	MinAltitude  float64 `json:"minAltitude"`
}

// Threshold counts trajectories whose peak altitude exceeds a reference height.
type Threshold struct {
	TotalCount  int     `json:"totalCount"`
	AboveCount  int     `json:"aboveCount"`
	Percentage  float64 `json:"percentage"`
	ThresholdKm float64 `json:"thresholdKm"`
}

// Distribution summarises every observed altitude in the window.
type Distribution struct {
	Found  bool    `json:"found"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
}

// MaxAltitude scans every point of every trajectory for the highest altitude.
func MaxAltitude(trajectories []trajectory.Trajectory) AltitudeExtreme {
	return altitudeExtreme(trajectories, func(candidate, best float64) bool {
		return candidate > best
	})
}

// MinAltitude scans every point of every trajectory for the lowest altitude.
func MinAltitude(trajectories []trajectory.Trajectory) AltitudeExtreme {
	return altitudeExtreme(trajectories, func(candidate, best float64) bool {
		return candidate < best
	})
}

// altitudeExtreme keeps the first point for which better reports true against
// every later one. better must be strict so ties keep the earlier point.
func altitudeExtreme(trajectories []trajectory.Trajectory, better func(candidate, best float64) bool) AltitudeExtreme {
	var result AltitudeExtreme
	for _, t := range trajectories {
		for _, p := range t.Path {
			if !result.Found || better(p.Altitude, result.Altitude) {
				result = AltitudeExtreme{
					Found:        true,
					TrajectoryID: t.ID,
					Altitude:     p.Altitude,
					Latitude:     p.Latitude,
					Longitude:    p.Longitude,
					ObservedAt:   p.Timestamp,
				}
			}
		}
	}
	return result
}

// pathAltitudeBounds returns the max and min altitude along a path.
// ok is false for an empty path.
func pathAltitudeBounds(path []trajectory.SamplePoint) (maxAlt, minAlt float64, ok bool) {
	if len(path) == 0 {
		return 0, 0, false
	}
	maxAlt, minAlt = path[0].Altitude, path[0].Altitude
	for _, p := range path[1:] {
		if p.Altitude > maxAlt {
			maxAlt = p.Altitude
		}
		if p.Altitude < minAlt {
			minAlt = p.Altitude
		}
	}
	return maxAlt, minAlt, true
}

// AltitudeExplorer returns the trajectory whose path spans the largest
// difference between its highest and lowest altitude.
func AltitudeExplorer(trajectories []trajectory.Trajectory) AltitudeRange {
	var result AltitudeRange
	for _, t := range trajectories {
		maxAlt, minAlt, ok := pathAltitudeBounds(t.Path)
		if !ok {
			continue
		}
		r := maxAlt - minAlt
		if !result.Found || r > result.Range {
			result = AltitudeRange{
				Found:        true,
				TrajectoryID: t.ID,
				Range:        r,
				MaxAltitude:  maxAlt,
				MinAltitude:  minAlt,
			}
		}
	}
	return result
}

// ThresholdComparison counts how many trajectories peaked strictly above
// thresholdKm. Percentage is 0 when there are no trajectories.
func ThresholdComparison(trajectories []trajectory.Trajectory, thresholdKm float64) Threshold {
	result := Threshold{
		TotalCount:  len(trajectories),
		ThresholdKm: thresholdKm,
	}

	for _, t := range trajectories {
		if maxAlt, _, ok := pathAltitudeBounds(t.Path); ok && maxAlt > thresholdKm {
			result.AboveCount++
		}
	}

	if result.TotalCount > 0 {
		result.Percentage = float64(result.AboveCount) / float64(result.TotalCount) * 100
	}
	return result
}

func allAltitudes(trajectories []trajectory.Trajectory) stats.Float64Data {
	var altitudes stats.Float64Data
	for _, t := range trajectories {
		for _, p := range t.Path {
			altitudes = append(altitudes, p.Altitude)
		}
	}
	return altitudes
}

// AverageAltitude returns the mean altitude over every point, or 0 when there
// are no points.
func AverageAltitude(trajectories []trajectory.Trajectory) float64 {
	mean, err := stats.Mean(allAltitudes(trajectories))
	if err != nil {
		return 0
	}
	return mean
}

// AltitudeDistribution returns median, 90th percentile (nearest rank) and the
// bounds of every observed altitude.
func AltitudeDistribution(trajectories []trajectory.Trajectory) Distribution {
	altitudes := allAltitudes(trajectories)
	if len(altitudes) == 0 {
		return Distribution{}
	}

	// Errors are only returned for empty input, checked above.
	median, _ := stats.Median(altitudes)
	p90, _ := stats.PercentileNearestRank(altitudes, 90)
	maxAlt, _ := stats.Max(altitudes)
	minAlt, _ := stats.Min(altitudes)

	return Distribution{
		Found:  true,
		Median: median,
		P90:    p90,
		Max:    maxAlt,
		Min:    minAlt,
	}
}
