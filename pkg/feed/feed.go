// Package feed retrieves the 24-hour balloon constellation window from the
// upstream snapshot service.
package feed

import (
	"context"
	"time"

	"github.com/unklstewy/balloonscope/pkg/trajectory"
)

// DataSource is the interface every snapshot provider implements.
// The live HTTP feed and canned fixtures in tests both satisfy it.
type DataSource interface {
	// FetchWindow retrieves all 24 hourly snapshots. A failed hour appears as
	// an empty slice plus an entry in Metadata.Errors; the returned error is
	// reserved for failures of the whole call (e.g. a cancelled context).
	FetchWindow(ctx context.Context) (Window, error)

	// Close cleanly shuts down the data source.
	Close() error
}

// Window is one observation window: the snapshot matrix and what happened
// while fetching it.
type Window struct {
	Matrix   trajectory.SnapshotMatrix `json:"data"`
	Metadata Metadata                  `json:"metadata"`
}

// Metadata summarises a fetched window.
type Metadata struct {
	// TotalPoints is the number of valid points across every hour
	TotalPoints int `json:"totalPoints"`

	// TotalBalloons is the number of points in the most recent hour
	TotalBalloons int `json:"totalBalloons"`

	// HoursWithData counts hours with at least one valid point
	HoursWithData int `json:"hoursWithData"`

	// HoursWithErrors counts hours whose fetch failed
	HoursWithErrors int `json:"hoursWithErrors"`

	// DroppedEntries counts entries that failed validation
	DroppedEntries int `json:"droppedEntries"`

	// Errors lists the failed hours, in hour order
	Errors []HourError `json:"errors,omitempty"`

	// FetchedAt is when the fetch started; point timestamps derive from it
	FetchedAt time.Time `json:"fetchedAt"`
}

// HourError records why one hour could not be fetched.
type HourError struct {
	Hour    int    `json:"hour"`
	Message string `json:"message"`
}

// Success reports whether every hour was fetched.
func (m Metadata) Success() bool {
	return m.HoursWithErrors == 0
}

// AllFailed reports whether no hour could be fetched.
func (m Metadata) AllFailed() bool {
	return m.HoursWithErrors >= trajectory.HoursInWindow
}

// NewWindow assembles a window and computes its metadata.
func NewWindow(matrix trajectory.SnapshotMatrix, errs []HourError, dropped int, fetchedAt time.Time) Window {
	return Window{
		Matrix: matrix,
		Metadata: Metadata{
			TotalPoints:     matrix.TotalPoints(),
			TotalBalloons:   len(matrix[0]),
			HoursWithData:   matrix.HoursWithData(),
			HoursWithErrors: len(errs),
			DroppedEntries:  dropped,
			Errors:          errs,
			FetchedAt:       fetchedAt,
		},
	}
}

// StaticSource serves a fixed window. Useful for tests and offline replays.
type StaticSource struct {
	Window Window
}

// FetchWindow returns the fixed window.
func (s *StaticSource) FetchWindow(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	return s.Window, nil
}

// Close is a no-op.
func (s *StaticSource) Close() error {
	return nil
}
