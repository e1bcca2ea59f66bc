package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind categorizes the event that triggers rule evaluation.
type EventKind string

const (
	// EventMeasurement is a fresh, unit-normalized sensor reading.
	EventMeasurement EventKind = "measurement"

	// EventTagChange is a change to a group's tag membership.
	EventTagChange EventKind = "tag_change"

	// EventSchedule is a periodic tick from the dispatcher.
	EventSchedule EventKind = "schedule"
)

// LogicalOperator combines a rule's initiator results.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// Operator is a comparison operator for measurement and schedule-condition
// thresholds. Alias spellings from the authoring surface ("gt", "above",
// "equal", ...) are normalized to these canonical forms at load time.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpBetween      Operator = "between"
	OpOutside      Operator = "outside"

	// OpObserved matches when the exact target value occurred at least once
	// in the queried window. Only meaningful for schedule conditions.
	OpObserved Operator = "observed"
)

// InitiatorKind is the closed set of initiator variants. Classification
// happens once when a rule is loaded, never during evaluation.
type InitiatorKind string

const (
	InitiatorMeasurement InitiatorKind = "measurement"
	InitiatorTag         InitiatorKind = "tag"
	InitiatorSchedule    InitiatorKind = "schedule"
)

// ScheduleKind is the recurrence of a schedule-type initiator.
type ScheduleKind string

const (
	ScheduleDaily   ScheduleKind = "daily"
	ScheduleWeekly  ScheduleKind = "weekly"
	ScheduleMonthly ScheduleKind = "monthly"
	ScheduleYearly  ScheduleKind = "yearly"
)

// Initiator is one atomic condition attached to a rule.
//
// Exactly one of the variant payloads is meaningful, selected by Kind:
// measurement initiators carry Measurement/Operator/thresholds, tag
// initiators carry Tags, schedule initiators carry ScheduleKind and the
// encoded ScheduleValue.
type Initiator struct {
	ID   int64         `json:"id"`
	Kind InitiatorKind `json:"kind"`

	// Measurement is the normalized measurement type ("temperature", ...).
	Measurement string `json:"measurement,omitempty"`

	// Operator compares the trigger value against the thresholds.
	Operator Operator `json:"operator,omitempty"`

	// Value is the first threshold. Value2 is the second threshold,
	// required by the between/outside operators.
	Value  *decimal.Decimal `json:"value,omitempty"`
	Value2 *decimal.Decimal `json:"value2,omitempty"`

	// Tags is the set of tag IDs that must all be present on the group.
	Tags []string `json:"tags,omitempty"`

	// ScheduleKind and ScheduleValue describe a calendar window, e.g.
	// weekly "2,08:30" (weekday,HH:MM) or yearly "15/06,10:00" (DD/MM,HH:MM).
	ScheduleKind  ScheduleKind `json:"schedule_kind,omitempty"`
	ScheduleValue string       `json:"schedule_value,omitempty"`
}

// ActionKind identifies a side effect a triggered rule executes.
type ActionKind string

const (
	ActionLogEvent         ActionKind = "log_event"
	ActionSendNotification ActionKind = "send_notification"
	ActionAdjustHealth     ActionKind = "adjust_health"
	ActionSendTip          ActionKind = "send_sse_tip"
	ActionAddTag           ActionKind = "add_tag"

	// ActionUnknown is the logged no-op every unrecognized action type
	// resolves to at load time.
	ActionUnknown ActionKind = "unknown"
)

// Action is a single side effect of a rule, executed in ExecutionOrder.
type Action struct {
	ID             int64                  `json:"id"`
	Kind           ActionKind             `json:"kind"`
	Params         map[string]interface{} `json:"params,omitempty"`
	ExecutionOrder int                    `json:"execution_order"`
}

// Rule is a user-defined automation rule. Rules are read-only to the engine;
// the relational store owns their lifecycle.
type Rule struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	LogicalOperator LogicalOperator `json:"logical_operator"`
	Priority        int             `json:"priority"`
	Active          bool            `json:"active"`
	Initiators      []Initiator     `json:"initiators"`
	Actions         []Action        `json:"actions"`
}

// Sensor is a reading source attached to a group.
type Sensor struct {
	ID               string
	GroupID          string
	Measurement      string
	LastReadingTime  *time.Time
	LastReadingValue *float64
	LastReadingUnit  string
}

// Group is a hierarchical organizational unit owning sensors, tags, a
// bounded health score and rule/schedule associations.
type Group struct {
	ID       string
	Name     string
	Type     string
	ParentID string

	// Health is nil until the first adjustment; consumers default it to 50.
	Health *int

	Tags    []string
	Sensors []Sensor
}

// GroupEvent is one entry in a group's audit log.
type GroupEvent struct {
	GroupID     string
	EventType   string
	Time        time.Time
	Description string
}

// ScheduleStatus is the derived lifecycle state of a schedule.
type ScheduleStatus string

const (
	SchedulePending    ScheduleStatus = "pending"
	ScheduleInProgress ScheduleStatus = "in-progress"
	ScheduleCompleted  ScheduleStatus = "completed"
)

// ScheduleCondition is one long-running condition of a schedule. Streak
// counts consecutive successful window checks, capped at Duration.
type ScheduleCondition struct {
	ID         int64
	ScheduleID string

	// Measurement selects the group's sensors to check ("temperature", ...).
	Measurement string
	Operator    Operator
	Value       decimal.Decimal

	// Duration is the target streak length, counted in DurationUnit steps.
	Duration     int
	DurationUnit string

	GroupID string

	Streak        int
	LastEvaluated time.Time
}

// Schedule is a long-running maintenance schedule whose progress and status
// are derived from its conditions.
type Schedule struct {
	ID             string
	Name           string
	Status         ScheduleStatus
	Progress       int
	CompletionDate *time.Time
	Conditions     []ScheduleCondition
}

// TriggerEvent is the input consumed by the orchestrator. GroupID and Kind
// are always set; the remaining fields depend on the kind.
type TriggerEvent struct {
	GroupID string
	Kind    EventKind

	// Measurement and Value are set for measurement events.
	Measurement string
	Value       decimal.Decimal
	HasValue    bool
	Unit        string
	SensorID    string

	// ChangedTagID is set for tag-change events.
	ChangedTagID string

	Timestamp time.Time
}
