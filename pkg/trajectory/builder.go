package trajectory

import "strconv"

// MinPathLength is the fewest points a trajectory needs to be materialised.
// A single point cannot support distance or direction analytics.
const MinPathLength = 2

// Correlator decides which points across hours belong to the same balloon.
type Correlator interface {
	Correlate(matrix *SnapshotMatrix) []Trajectory
}

// PositionalCorrelation treats the index of a point inside its hour slice as
// the balloon identity. This matches how the upstream feed is published today.
type PositionalCorrelation struct{}

// Correlate walks every positional index across the 24 hours, newest first,
// and keeps the paths with at least MinPathLength points. Trajectory IDs equal
// the positional index, so gaps appear where short paths were dropped.
func (PositionalCorrelation) Correlate(matrix *SnapshotMatrix) []Trajectory {
	if matrix == nil {
		return []Trajectory{}
	}

	width := matrix.Width()
	trajectories := make([]Trajectory, 0, width)

	for i := 0; i < width; i++ {
		var path []SamplePoint
		for _, hour := range matrix {
			if i < len(hour) {
				path = append(path, hour[i])
			}
		}
		if len(path) >= MinPathLength {
			trajectories = append(trajectories, Trajectory{ID: i, Path: path})
		}
	}

	return trajectories
}

// KeyedCorrelation groups points by SamplePoint.Key. Points without a key fall
// back to positional grouping. IDs are assigned in first-seen order, scanning
// hour 0 first, so they are comparable with positional IDs only when no point
// carries a key.
//
// When one hour holds the same key twice, the first entry wins and the rest
// are ignored for that hour.
type KeyedCorrelation struct{}

// Correlate implements Correlator.
func (KeyedCorrelation) Correlate(matrix *SnapshotMatrix) []Trajectory {
	if matrix == nil {
		return []Trajectory{}
	}

	type group struct {
		id   int
		key  string
		path []SamplePoint
	}

	groups := make(map[string]*group)
	var order []*group

	for _, hour := range matrix {
		seenThisHour := make(map[string]bool, len(hour))
		for i, p := range hour {
			gk := groupKey(p.Key, i)
			if seenThisHour[gk] {
				continue
			}
			seenThisHour[gk] = true

			g, ok := groups[gk]
			if !ok {
				g = &group{id: len(order), key: p.Key}
				groups[gk] = g
				order = append(order, g)
			}
			g.path = append(g.path, p)
		}
	}

	trajectories := make([]Trajectory, 0, len(order))
	for _, g := range order {
		if len(g.path) >= MinPathLength {
			trajectories = append(trajectories, Trajectory{ID: g.id, Key: g.key, Path: g.path})
		}
	}
	return trajectories
}

// groupKey separates keyed and positional namespaces so a key such as "3"
// never merges with the unkeyed entry at index 3.
func groupKey(key string, index int) string {
	if key != "" {
		return "k:" + key
	}
	return "p:" + strconv.Itoa(index)
}

// Builder reconstructs trajectories with a configurable correlation strategy.
type Builder struct {
	Correlator Correlator
}

// NewBuilder creates a builder. A nil correlator selects PositionalCorrelation.
func NewBuilder(c Correlator) *Builder {
	if c == nil {
		c = PositionalCorrelation{}
	}
	return &Builder{Correlator: c}
}

// Build reconstructs trajectories from the matrix. An empty or all-empty
// matrix yields an empty, non-nil set.
func (b *Builder) Build(matrix SnapshotMatrix) []Trajectory {
	c := b.Correlator
	if c == nil {
		c = PositionalCorrelation{}
	}
	return c.Correlate(&matrix)
}

// Build reconstructs trajectories using positional correlation.
func Build(matrix SnapshotMatrix) []Trajectory {
	return PositionalCorrelation{}.Correlate(&matrix)
}
