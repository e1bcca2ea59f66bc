package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hakopstar/VcelJAK/pkg/model"
)

// GroupStore is the slice of the relational store the engine needs.
// *store.SQLite and *store.Memory satisfy it.
type GroupStore interface {
	GetGroup(ctx context.Context, groupID string) (*model.Group, error)
	LatestAggregate(ctx context.Context, groupID, measurement string) (float64, bool, error)
	UpdateGroupHealth(ctx context.Context, groupID string, health int) error
	GroupHealthValues(ctx context.Context) (map[string]int, error)
	AddGroupTag(ctx context.Context, groupID, tagID string) error
	AppendGroupEvent(ctx context.Context, event model.GroupEvent) error
}

// RuleSource resolves a group's effective rule list. *rulecache.Cache
// satisfies it.
type RuleSource interface {
	RulesForGroup(ctx context.Context, groupID string) ([]model.Rule, error)
}

// Recorder receives evaluation and action outcome notifications. The
// telemetry collector satisfies it; the default is a no-op.
type Recorder interface {
	RecordEvaluation(outcome string)
	RecordEvaluationPass(d time.Duration)
	RecordAction(kind, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvaluation(string)            {}
func (nopRecorder) RecordEvaluationPass(time.Duration) {}
func (nopRecorder) RecordAction(string, string)        {}

// AggregateFunc returns the latest mean value for a measurement across a
// group's sensors. ok is false when no sensor has reported it.
type AggregateFunc func(ctx context.Context, measurement string) (decimal.Decimal, bool, error)

// EvalContext carries everything an initiator evaluation may consult.
// Evaluation itself never mutates it.
type EvalContext struct {
	// Event is the triggering event; Event.GroupID is always set.
	Event model.TriggerEvent

	// GroupTags is the group's current tag set.
	GroupTags []string

	// Aggregate resolves the group's latest mean value per measurement.
	Aggregate AggregateFunc

	// Now is the evaluation instant for schedule initiators.
	Now time.Time
}

// Triggered is the outcome of one orchestration pass: the ids of rules
// whose conditions were satisfied, in evaluation order.
type Triggered []string

// Contains reports whether the rule id is in the triggered set.
func (t Triggered) Contains(ruleID string) bool {
	for _, id := range t {
		if id == ruleID {
			return true
		}
	}
	return false
}
