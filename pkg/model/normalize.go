package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// measurementKinds are the named measurement types an initiator's type field
// may carry directly instead of the generic "measurement".
var measurementKinds = map[string]string{
	"temperature":          "temperature",
	"humidity":             "humidity",
	"pressure":             "pressure",
	"weight":               "weight",
	"wind_speed":           "wind_speed",
	"wind_vane":            "wind_vane",
	"storm":                "storm",
	"light":                "light",
	"voltage":              "battery_voltage",
	"battery_voltage":      "battery_voltage",
	"wattage":              "solar_wattage",
	"solar_wattage":        "solar_wattage",
	"sound_pressure_level": "sound_pressure_level",
}

// NormalizeMeasurement maps alias measurement names ("voltage",
// "wattage") onto their canonical forms. Unknown names pass through
// lowercased.
func NormalizeMeasurement(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := measurementKinds[name]; ok {
		return canonical
	}
	return name
}

// NormalizeOperator maps alias spellings from the authoring surface onto the
// canonical Operator set. Unknown spellings are returned unchanged so the
// evaluator can reject them as a configuration error.
func NormalizeOperator(raw string) Operator {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ">", "gt", "above":
		return OpGreater
	case ">=", "gte", "aboveequal":
		return OpGreaterEqual
	case "<", "lt", "below":
		return OpLess
	case "<=", "lte", "belowequal":
		return OpLessEqual
	case "=", "==", "eq", "equal":
		return OpEqual
	case "!=", "ne":
		return OpNotEqual
	case "between":
		return OpBetween
	case "outside", "not between":
		return OpOutside
	case "observed":
		return OpObserved
	default:
		return Operator(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// NormalizeActionKind maps stored action type strings, including legacy
// aliases, onto the closed ActionKind set. Unrecognized types become
// ActionUnknown, which the dispatcher executes as a logged no-op.
func NormalizeActionKind(raw string) ActionKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "log_event":
		return ActionLogEvent
	case "send_notification", "alert", "email", "tip":
		return ActionSendNotification
	case "adjust_health", "health":
		return ActionAdjustHealth
	case "send_sse_tip", "sse":
		return ActionSendTip
	case "add_tag", "tag":
		return ActionAddTag
	default:
		return ActionUnknown
	}
}

// RawInitiator is an initiator row as stored, before classification.
type RawInitiator struct {
	ID            int64
	Type          string
	Operator      string
	Value         *decimal.Decimal
	Value2        *decimal.Decimal
	Tags          []string
	ScheduleType  string
	ScheduleValue string
}

// ClassifyInitiator decides an initiator's variant once, at load time. The
// stored type taxonomy mixes the generic kinds with named measurement kinds
// and several aliases; evaluation only ever sees the resulting closed
// variant.
func ClassifyInitiator(raw RawInitiator) Initiator {
	init := Initiator{
		ID:       raw.ID,
		Operator: NormalizeOperator(raw.Operator),
	}

	typ := strings.ToLower(strings.TrimSpace(raw.Type))
	switch {
	case typ == "tag" || typ == "set_tag" || typ == "tag_change":
		init.Kind = InitiatorTag
		init.Tags = append([]string(nil), raw.Tags...)

	case typ == "date" || typ == "time" || typ == "schedule" ||
		typ == "schedule_interval" || typ == "time_interval":
		init.Kind = InitiatorSchedule
		init.ScheduleKind = ScheduleKind(strings.ToLower(strings.TrimSpace(raw.ScheduleType)))
		init.ScheduleValue = raw.ScheduleValue

	default:
		init.Kind = InitiatorMeasurement
		init.Measurement = NormalizeMeasurement(typ)
		init.Value = raw.Value
		init.Value2 = raw.Value2
	}

	return init
}
