// Package analytics computes descriptive statistics over a set of
// reconstructed balloon trajectories.
//
// Every function accepts an empty or degraded input and returns a defined
// result. "No data" is reported through an explicit Found flag (or a nil
// trajectory for distance extremes) rather than a magic number, so a sentinel
// such as +Inf never reaches a caller. When two candidates tie, the first one
// encountered in trajectory order, then path order, wins.
package analytics

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/unklstewy/balloonscope/pkg/coordinates"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// DistanceExtreme is the trajectory that travelled the furthest (or least).
// Trajectory is nil when the input held no trajectory.
type DistanceExtreme struct {
	Trajectory *trajectory.Trajectory `json:"trajectory"`
	Distance   float64                `json:"distance"`
}

// TotalDistance sums the great-circle distance between consecutive points of
// a path in kilometers. Paths with fewer than 2 points travel 0 km.
func TotalDistance(path []trajectory.SamplePoint) float64 {
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		total += coordinates.Distance(path[i].Position(), path[i+1].Position())
	}
	return total
}

// MaxDistance returns the trajectory with the largest TotalDistance. Only a
// trajectory that moved can win, so a set of stationary trajectories yields
// a nil Trajectory.
func MaxDistance(trajectories []trajectory.Trajectory) DistanceExtreme {
	var result DistanceExtreme
	for i := range trajectories {
		d := TotalDistance(trajectories[i].Path)
		if d > result.Distance {
			result = DistanceExtreme{Trajectory: &trajectories[i], Distance: d}
		}
	}
	return result
}

// MinDistance returns the trajectory with the smallest TotalDistance.
func MinDistance(trajectories []trajectory.Trajectory) DistanceExtreme {
	minDist := math.Inf(1)
	var shortest *trajectory.Trajectory

	for i := range trajectories {
		d := TotalDistance(trajectories[i].Path)
		if d < minDist {
			minDist = d
			shortest = &trajectories[i]
		}
	}

	if shortest == nil {
		return DistanceExtreme{}
	}
	return DistanceExtreme{Trajectory: shortest, Distance: minDist}
}

// AverageDistance returns the mean TotalDistance across all trajectories,
// or 0 for an empty set.
func AverageDistance(trajectories []trajectory.Trajectory) float64 {
	distances := make(stats.Float64Data, 0, len(trajectories))
	for _, t := range trajectories {
		distances = append(distances, TotalDistance(t.Path))
	}

	mean, err := stats.Mean(distances)
	if err != nil {
		return 0
	}
	return mean
}
