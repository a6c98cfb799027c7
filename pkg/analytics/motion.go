package analytics

import (
	"math"

	"github.com/unklstewy/balloonscope/pkg/coordinates"
	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// Speed describes the trajectory with the highest average ground speed.
type Speed struct {
	Found           bool    `json:"found"`
	TrajectoryID    int     `json:"trajectoryId"`
	AverageSpeedKmh float64 `json:"averageSpeedKmh"`
	TotalDistanceKm float64 `json:"totalDistanceKm"`
	TotalTimeHours  float64 `json:"totalTimeHours"`
}

// Consistency describes the trajectory that held its heading best.
type Consistency struct {
	Found                bool    `json:"found"`
	TrajectoryID         int     `json:"trajectoryId"`
	ConsistencyPercent   float64 `json:"consistencyPercent"`
	DirectionChanges     int     `json:"directionChanges"`
	AverageChangeDegrees float64 `json:"averageChangeDegrees"`
}

// ElapsedHours returns the time between the oldest and newest point of a path.
func ElapsedHours(t trajectory.Trajectory) float64 {
	return t.Newest().Timestamp.Sub(t.Oldest().Timestamp).Hours()
}

// FastestMover returns the trajectory with the highest average speed, where
// speed is TotalDistance divided by the elapsed time between its oldest and
// newest points. Trajectories without positive elapsed time are skipped.
func FastestMover(trajectories []trajectory.Trajectory) Speed {
	var result Speed
	for _, t := range trajectories {
		if t.Len() < 2 {
			continue
		}

		hours := ElapsedHours(t)
		if hours <= 0 {
			continue
		}

		dist := TotalDistance(t.Path)
		speed := dist / hours
		if !result.Found || speed > result.AverageSpeedKmh {
			result = Speed{
				Found:           true,
				TrajectoryID:    t.ID,
				AverageSpeedKmh: speed,
				TotalDistanceKm: dist,
				TotalTimeHours:  hours,
			}
		}
	}
	return result
}

// DirectionConsistency returns the trajectory whose heading changed least on
// average. For every interior point the bearing arriving from the older
// neighbour is compared with the bearing leaving toward the newer neighbour.
//
// consistency = max(0, 100 - avgChange/180*100)
//
// Paths need at least 3 points.
func DirectionConsistency(trajectories []trajectory.Trajectory) Consistency {
	var result Consistency
	for _, t := range trajectories {
		if t.Len() < 3 {
			continue
		}

		// Path is newest first, so the older neighbour of i is i+1.
		totalChange := 0.0
		changes := 0
		for i := 1; i < len(t.Path)-1; i++ {
			newer, current, older := t.Path[i-1], t.Path[i], t.Path[i+1]

			incoming := coordinates.Bearing(older.Position(), current.Position())
			outgoing := coordinates.Bearing(current.Position(), newer.Position())

			totalChange += coordinates.AngularDifference(incoming, outgoing)
			changes++
		}

		avgChange := totalChange / float64(changes)
		consistency := math.Max(0, 100-(avgChange/180)*100)

		if !result.Found || consistency > result.ConsistencyPercent {
			result = Consistency{
				Found:                true,
				TrajectoryID:         t.ID,
				ConsistencyPercent:   consistency,
				DirectionChanges:     changes,
				AverageChangeDegrees: avgChange,
			}
		}
	}
	return result
}
