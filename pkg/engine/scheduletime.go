package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/Hakopstar/VcelJAK/pkg/model"
)

// evaluateSchedule decides a calendar initiator: true when now lies inside
// the fixed-width window starting at the configured HH:MM and the date
// part of the recurrence matches. A malformed value is a configuration
// error and never matches.
func (e *Evaluator) evaluateSchedule(init model.Initiator, now time.Time) (bool, error) {
	value := strings.TrimSpace(init.ScheduleValue)

	var datePart, timePart string
	switch init.ScheduleKind {
	case model.ScheduleDaily:
		timePart = value
	case model.ScheduleWeekly, model.ScheduleMonthly, model.ScheduleYearly:
		parts := strings.SplitN(value, ",", 2)
		if len(parts) != 2 {
			return false, &ConditionError{InitiatorID: init.ID, Message: "malformed schedule value " + value}
		}
		datePart, timePart = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	default:
		return false, &ConditionError{InitiatorID: init.ID, Message: "unknown schedule kind " + string(init.ScheduleKind)}
	}

	hour, minute, ok := parseClock(timePart)
	if !ok {
		return false, &ConditionError{InitiatorID: init.ID, Message: "malformed schedule time " + timePart}
	}

	// The date part is validated before the window check, so a malformed
	// value is reported as a configuration error at any time of day.
	dateMatches := true
	switch init.ScheduleKind {
	case model.ScheduleWeekly:
		weekday, err := strconv.Atoi(datePart)
		if err != nil {
			return false, &ConditionError{InitiatorID: init.ID, Message: "malformed weekday " + datePart}
		}
		// Stored weekdays count Monday as 0.
		dateMatches = weekday == (int(now.Weekday())+6)%7

	case model.ScheduleMonthly:
		day, err := strconv.Atoi(datePart)
		if err != nil {
			return false, &ConditionError{InitiatorID: init.ID, Message: "malformed day " + datePart}
		}
		dateMatches = day == now.Day()

	case model.ScheduleYearly:
		dm := strings.SplitN(datePart, "/", 2)
		if len(dm) != 2 {
			return false, &ConditionError{InitiatorID: init.ID, Message: "malformed date " + datePart}
		}
		day, dayErr := strconv.Atoi(strings.TrimSpace(dm[0]))
		month, monthErr := strconv.Atoi(strings.TrimSpace(dm[1]))
		if dayErr != nil || monthErr != nil {
			return false, &ConditionError{InitiatorID: init.ID, Message: "malformed date " + datePart}
		}
		dateMatches = day == now.Day() && month == int(now.Month())
	}

	start := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.Before(start) || now.Sub(start) >= e.scheduleWindow {
		return false, nil
	}
	return dateMatches, nil
}

// parseClock parses "HH:MM" into hour and minute.
func parseClock(s string) (hour, minute int, ok bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	hour, hourErr := strconv.Atoi(strings.TrimSpace(parts[0]))
	minute, minuteErr := strconv.Atoi(strings.TrimSpace(parts[1]))
	if hourErr != nil || minuteErr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
