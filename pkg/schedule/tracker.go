package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hakopstar/VcelJAK/pkg/live"
	"github.com/Hakopstar/VcelJAK/pkg/model"
	"github.com/Hakopstar/VcelJAK/pkg/timeseries"
)

// Store is the slice of the relational store the tracker needs.
type Store interface {
	GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error)
	SaveScheduleProgress(ctx context.Context, schedule *model.Schedule) error
	ListScheduleIDs(ctx context.Context) ([]string, error)
}

// Recorder receives recompute outcome notifications.
type Recorder interface {
	RecordRecompute(status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRecompute(string) {}

// Tracker recomputes schedule progress from per-condition streaks.
//
// Each condition is checked against a rolling time-series window sized to
// its duration unit, at most once per unit: a condition whose last check
// is still fresh reuses its streak without touching the time-series
// store. Query failures and missing data reset the streak, never abort
// the recompute.
type Tracker struct {
	store    Store
	reader   timeseries.Reader
	logger   *slog.Logger
	recorder Recorder

	// publisher, when set, receives schedule progress updates.
	publisher live.Publisher

	// now is overridable for tests.
	now func() time.Time
}

// NewTracker creates a tracker. publisher and recorder may be nil.
func NewTracker(st Store, reader timeseries.Reader, publisher live.Publisher, logger *slog.Logger, recorder Recorder) *Tracker {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Tracker{
		store:     st,
		reader:    reader,
		logger:    logger.With("component", "schedule"),
		recorder:  recorder,
		publisher: publisher,
		now:       time.Now,
	}
}

// unitDuration maps a condition's duration unit onto a window length.
func unitDuration(unit string) (time.Duration, bool) {
	switch unit {
	case "minute", "minutes":
		return time.Minute, true
	case "hour", "hours":
		return time.Hour, true
	case "day", "days":
		return 24 * time.Hour, true
	case "week", "weeks":
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Recompute re-evaluates every condition of one schedule and persists the
// streaks together with the derived progress and status in one atomic
// update. It is idempotent between window boundaries.
func (t *Tracker) Recompute(ctx context.Context, scheduleID string) error {
	sched, err := t.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		t.recorder.RecordRecompute("error")
		return fmt.Errorf("failed to load schedule %s: %w", scheduleID, err)
	}

	now := t.now()
	for i := range sched.Conditions {
		t.evaluateCondition(ctx, &sched.Conditions[i], now)
	}

	progress, status := derive(sched.Conditions)
	sched.Progress = progress
	switch status {
	case model.ScheduleCompleted:
		if sched.CompletionDate == nil {
			completed := now
			sched.CompletionDate = &completed
		}
	default:
		sched.CompletionDate = nil
	}
	sched.Status = status

	if err := t.store.SaveScheduleProgress(ctx, sched); err != nil {
		t.recorder.RecordRecompute("error")
		return fmt.Errorf("failed to persist schedule %s: %w", scheduleID, err)
	}
	t.recorder.RecordRecompute("ok")

	if t.publisher != nil {
		t.publisher.Publish(ctx, live.Message{
			Kind: "schedule",
			Payload: map[string]interface{}{
				"schedule_id": sched.ID,
				"progress":    progress,
				"status":      string(status),
			},
		})
	}
	t.logger.Debug("schedule recomputed", "schedule_id", sched.ID, "progress", progress, "status", string(status))
	return nil
}

// evaluateCondition updates one condition's streak in place.
func (t *Tracker) evaluateCondition(ctx context.Context, cond *model.ScheduleCondition, now time.Time) {
	window, ok := unitDuration(cond.DurationUnit)
	if !ok {
		t.logger.Warn("unknown duration unit, resetting streak",
			"condition_id", cond.ID, "unit", cond.DurationUnit)
		cond.Streak = 0
		cond.LastEvaluated = now
		return
	}

	// Throttle: within one unit of the last check the previous streak
	// still stands and the time-series store is not queried.
	if !cond.LastEvaluated.IsZero() && now.Before(cond.LastEvaluated.Add(window)) {
		return
	}

	points, err := t.reader.Window(ctx, cond.GroupID, cond.Measurement, window)
	if err != nil {
		t.logger.Warn("window query failed, resetting streak",
			"condition_id", cond.ID, "group_id", cond.GroupID, "error", err)
		cond.Streak = 0
		cond.LastEvaluated = now
		return
	}

	if windowSatisfied(cond, points) {
		if cond.Streak < cond.Duration {
			cond.Streak++
		}
	} else {
		cond.Streak = 0
	}
	cond.LastEvaluated = now
}

// windowSatisfied decides a window check. Every point must satisfy the
// operator, except "observed", which asks whether the exact target value
// occurred at least once. An empty window never satisfies.
func windowSatisfied(cond *model.ScheduleCondition, points []timeseries.Point) bool {
	if len(points) == 0 {
		return false
	}
	if cond.Operator == model.OpObserved {
		for _, p := range points {
			if decimal.NewFromFloat(p.Value).Equal(cond.Value) {
				return true
			}
		}
		return false
	}
	for _, p := range points {
		if !satisfies(cond.Operator, decimal.NewFromFloat(p.Value), cond.Value) {
			return false
		}
	}
	return true
}

func satisfies(op model.Operator, value, target decimal.Decimal) bool {
	switch op {
	case model.OpGreater:
		return value.GreaterThan(target)
	case model.OpGreaterEqual:
		return value.GreaterThanOrEqual(target)
	case model.OpLess:
		return value.LessThan(target)
	case model.OpLessEqual:
		return value.LessThanOrEqual(target)
	case model.OpEqual:
		return value.Equal(target)
	case model.OpNotEqual:
		return !value.Equal(target)
	default:
		return false
	}
}

// derive computes the aggregate progress and status. Each condition
// contributes min(streak/duration, 1); progress is the mean of the
// contributions times 100, rounded down.
func derive(conditions []model.ScheduleCondition) (int, model.ScheduleStatus) {
	if len(conditions) == 0 {
		return 0, model.SchedulePending
	}
	var sum float64
	for _, cond := range conditions {
		if cond.Duration <= 0 {
			continue
		}
		frac := float64(cond.Streak) / float64(cond.Duration)
		if frac > 1 {
			frac = 1
		}
		sum += frac
	}
	progress := int(sum / float64(len(conditions)) * 100)

	switch {
	case progress <= 0:
		return 0, model.SchedulePending
	case progress >= 100:
		return 100, model.ScheduleCompleted
	default:
		return progress, model.ScheduleInProgress
	}
}

// RecomputeAll recomputes every schedule, isolating failures per
// schedule. Used by the periodic dispatcher.
func (t *Tracker) RecomputeAll(ctx context.Context) {
	ids, err := t.store.ListScheduleIDs(ctx)
	if err != nil {
		t.logger.Error("failed to list schedules", "error", err)
		return
	}
	for _, id := range ids {
		if err := t.Recompute(ctx, id); err != nil {
			t.logger.Error("schedule recompute failed", "schedule_id", id, "error", err)
		}
	}
}
