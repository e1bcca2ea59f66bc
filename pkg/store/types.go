package store

import (
	"context"
	"errors"
	"time"

	"github.com/Hakopstar/VcelJAK/pkg/model"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Store is the relational read/write model the engine depends on.
// Implementations must be safe for concurrent use.
//
// Rule, group and schedule definitions are owned by external mutation paths;
// the engine only reads them, except for the narrow writes below (health, tag
// membership, audit events, schedule progress).
type Store interface {
	// GroupRules loads the group's direct rules and its rulesets' rules in
	// one eager round trip. The result may contain duplicates and inactive
	// rules; the rule cache deduplicates, filters and sorts.
	// Returns ErrNotFound if the group does not exist.
	GroupRules(ctx context.Context, groupID string) ([]model.Rule, error)

	// GetGroup loads a group with its tags and sensors.
	// Returns ErrNotFound if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*model.Group, error)

	// LatestAggregate returns the mean of the most recent readings for the
	// given measurement across the group's sensors, restricted to sensors
	// whose last reading time equals the newest such time in the group.
	// ok is false when no sensor has reported that measurement.
	LatestAggregate(ctx context.Context, groupID, measurement string) (value float64, ok bool, err error)

	// UpdateGroupHealth persists a group's health score.
	UpdateGroupHealth(ctx context.Context, groupID string, health int) error

	// GroupHealthValues returns the current health of every group that has
	// one, keyed by group id. Used to derive the fleet-wide average.
	GroupHealthValues(ctx context.Context) (map[string]int, error)

	// AddGroupTag appends a tag to a group's tag set. Returns ErrNotFound
	// if the group or the tag does not exist. Adding a tag the group
	// already has is the caller's responsibility to avoid.
	AddGroupTag(ctx context.Context, groupID, tagID string) error

	// AppendGroupEvent appends an entry to the group's audit log.
	AppendGroupEvent(ctx context.Context, event model.GroupEvent) error

	// GetSchedule loads a schedule with its conditions.
	// Returns ErrNotFound if the schedule does not exist.
	GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error)

	// SaveScheduleProgress persists condition streaks and evaluation
	// timestamps together with the schedule's aggregate progress, status
	// and completion date as a single atomic update.
	SaveScheduleProgress(ctx context.Context, schedule *model.Schedule) error

	// GetSensor loads a sensor. Returns ErrNotFound if it does not exist.
	GetSensor(ctx context.Context, sensorID string) (*model.Sensor, error)

	// UpdateSensorReading records a sensor's latest reading.
	UpdateSensorReading(ctx context.Context, sensorID string, value float64, unit string, at time.Time) error

	// RuleSetGroupIDs returns the ids of all groups currently associated
	// with the ruleset.
	RuleSetGroupIDs(ctx context.Context, ruleSetID string) ([]string, error)

	// ListGroupIDs returns all group ids, for periodic fan-out.
	ListGroupIDs(ctx context.Context) ([]string, error)

	// ListScheduleIDs returns all schedule ids, for periodic fan-out.
	ListScheduleIDs(ctx context.Context) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}
