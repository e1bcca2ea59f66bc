package timeseries

import (
	"context"
	"time"
)

// Point is one recorded reading for a group's measurement.
type Point struct {
	Time  time.Time
	Value float64
}

// Reader queries historical readings. Schedule condition checks use the
// windowed form; a query error or timeout is treated by callers as the
// condition not holding.
type Reader interface {
	// Window returns all points recorded for the group's measurement in
	// the half-open interval (now-window, now], oldest first.
	Window(ctx context.Context, groupID, measurement string, window time.Duration) ([]Point, error)
}

// Writer records readings as they are ingested.
type Writer interface {
	// WritePoint records one reading for a sensor in a group.
	WritePoint(ctx context.Context, groupID, sensorID, measurement string, value float64, unit string, at time.Time) error
}

// Backend combines the read and write sides of a time-series database.
type Backend interface {
	Reader
	Writer
	Close() error
}
