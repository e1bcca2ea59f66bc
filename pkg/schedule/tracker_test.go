package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hakopstar/VcelJAK/pkg/live"
	"github.com/Hakopstar/VcelJAK/pkg/model"
	"github.com/Hakopstar/VcelJAK/pkg/store"
	"github.com/Hakopstar/VcelJAK/pkg/timeseries"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// clock drives both the tracker and the time-series window cutoff.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	store   *store.Memory
	series  *timeseries.Memory
	capture *live.Capture
	tracker *Tracker
	clock   *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	mem := store.NewMemory()
	series := timeseries.NewMemory()
	series.Now = c.Now
	capture := live.NewCapture()
	tracker := NewTracker(mem, series, capture, testLogger(), nil)
	tracker.now = c.Now
	return &fixture{store: mem, series: series, capture: capture, tracker: tracker, clock: c}
}

func (f *fixture) writePoint(t *testing.T, groupID, measurement string, value float64) {
	t.Helper()
	if err := f.series.WritePoint(context.Background(), groupID, "s1", measurement, value, "", f.clock.now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
}

func condition(id int64, measurement string, op model.Operator, value string, duration int, unit string) model.ScheduleCondition {
	return model.ScheduleCondition{
		ID:           id,
		ScheduleID:   "sch1",
		Measurement:  measurement,
		Operator:     op,
		Value:        decimal.RequireFromString(value),
		Duration:     duration,
		DurationUnit: unit,
		GroupID:      "g1",
	}
}

func (f *fixture) reload(t *testing.T) *model.Schedule {
	t.Helper()
	sched, err := f.store.GetSchedule(context.Background(), "sch1")
	if err != nil {
		t.Fatal(err)
	}
	return sched
}

func TestRecomputeStreakToCompletion(t *testing.T) {
	f := newFixture(t)
	f.store.PutSchedule(&model.Schedule{
		ID:         "sch1",
		Status:     model.SchedulePending,
		Conditions: []model.ScheduleCondition{condition(1, "temperature", model.OpGreater, "20", 3, "hour")},
	})
	ctx := context.Background()

	wantProgress := []int{33, 66, 100}
	for cycle, want := range wantProgress {
		f.writePoint(t, "g1", "temperature", 25)
		if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
			t.Fatalf("cycle %d: %v", cycle, err)
		}
		sched := f.reload(t)
		if sched.Progress != want {
			t.Fatalf("cycle %d: progress = %d, want %d", cycle, sched.Progress, want)
		}
		f.clock.Advance(time.Hour)
	}

	sched := f.reload(t)
	if sched.Status != model.ScheduleCompleted {
		t.Errorf("status = %s, want completed", sched.Status)
	}
	if sched.CompletionDate == nil {
		t.Error("completion date not set")
	}

	// The streak is capped at the duration, so further good cycles keep
	// the schedule completed with the original completion date.
	first := *sched.CompletionDate
	f.writePoint(t, "g1", "temperature", 30)
	if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
		t.Fatal(err)
	}
	sched = f.reload(t)
	if sched.Progress != 100 || sched.CompletionDate == nil || !sched.CompletionDate.Equal(first) {
		t.Errorf("completed schedule changed: progress=%d date=%v", sched.Progress, sched.CompletionDate)
	}
}

func TestRecomputeFailureResetsStreak(t *testing.T) {
	f := newFixture(t)
	f.store.PutSchedule(&model.Schedule{
		ID:         "sch1",
		Conditions: []model.ScheduleCondition{condition(1, "temperature", model.OpGreater, "20", 3, "hour")},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		f.writePoint(t, "g1", "temperature", 25)
		if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(time.Hour)
	}
	if got := f.reload(t).Conditions[0].Streak; got != 2 {
		t.Fatalf("streak = %d, want 2", got)
	}

	// One violating point inside the window breaks the whole check.
	f.writePoint(t, "g1", "temperature", 25)
	f.writePoint(t, "g1", "temperature", 10)
	if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
		t.Fatal(err)
	}
	sched := f.reload(t)
	if sched.Conditions[0].Streak != 0 {
		t.Errorf("streak = %d, want 0 after violation", sched.Conditions[0].Streak)
	}
	if sched.Status != model.SchedulePending || sched.Progress != 0 {
		t.Errorf("status=%s progress=%d, want pending/0", sched.Status, sched.Progress)
	}
}

func TestRecomputeEmptyWindowResets(t *testing.T) {
	f := newFixture(t)
	f.store.PutSchedule(&model.Schedule{
		ID:         "sch1",
		Conditions: []model.ScheduleCondition{condition(1, "temperature", model.OpGreater, "20", 3, "hour")},
	})
	ctx := context.Background()

	f.writePoint(t, "g1", "temperature", 25)
	if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Hour)

	// No data in the next window.
	if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
		t.Fatal(err)
	}
	if got := f.reload(t).Conditions[0].Streak; got != 0 {
		t.Errorf("streak = %d, want 0 on empty window", got)
	}
}

// countingReader counts window queries passed through to the backend.
type countingReader struct {
	inner timeseries.Reader
	calls int
}

func (c *countingReader) Window(ctx context.Context, groupID, measurement string, window time.Duration) ([]timeseries.Point, error) {
	c.calls++
	return c.inner.Window(ctx, groupID, measurement, window)
}

func TestRecomputeThrottlesWithinUnit(t *testing.T) {
	f := newFixture(t)
	counting := &countingReader{inner: f.series}
	f.tracker.reader = counting
	f.store.PutSchedule(&model.Schedule{
		ID:         "sch1",
		Conditions: []model.ScheduleCondition{condition(1, "temperature", model.OpGreater, "20", 3, "hour")},
	})
	ctx := context.Background()

	f.writePoint(t, "g1", "temperature", 25)
	if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
		t.Fatal(err)
	}
	if counting.calls != 1 {
		t.Fatalf("calls = %d, want 1", counting.calls)
	}

	// Ten minutes later the hour window is still fresh.
	f.clock.Advance(10 * time.Minute)
	if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
		t.Fatal(err)
	}
	if counting.calls != 1 {
		t.Errorf("fresh condition queried the store again, calls = %d", counting.calls)
	}
	if got := f.reload(t).Conditions[0].Streak; got != 1 {
		t.Errorf("streak = %d, want 1 preserved through throttle", got)
	}

	// Past the unit boundary the query runs again.
	f.clock.Advance(time.Hour)
	f.writePoint(t, "g1", "temperature", 25)
	if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
		t.Fatal(err)
	}
	if counting.calls != 2 {
		t.Errorf("calls = %d, want 2 after window elapsed", counting.calls)
	}
}

func TestRecomputeObservedOperator(t *testing.T) {
	f := newFixture(t)
	f.store.PutSchedule(&model.Schedule{
		ID:         "sch1",
		Conditions: []model.ScheduleCondition{condition(1, "weight", model.OpObserved, "42.5", 1, "hour")},
	})
	ctx := context.Background()

	// The target appears once among unrelated values.
	f.writePoint(t, "g1", "weight", 40)
	f.writePoint(t, "g1", "weight", 42.5)
	f.writePoint(t, "g1", "weight", 44)
	if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
		t.Fatal(err)
	}
	sched := f.reload(t)
	if sched.Progress != 100 || sched.Status != model.ScheduleCompleted {
		t.Errorf("progress=%d status=%s, want 100/completed", sched.Progress, sched.Status)
	}
}

func TestRecomputeMixedConditions(t *testing.T) {
	f := newFixture(t)
	f.store.PutSchedule(&model.Schedule{
		ID: "sch1",
		Conditions: []model.ScheduleCondition{
			condition(1, "temperature", model.OpGreater, "20", 1, "hour"),
			condition(2, "humidity", model.OpLess, "60", 4, "hour"),
		},
	})
	ctx := context.Background()

	// Only the temperature condition has satisfying data, so it reaches
	// full contribution while humidity stays at zero.
	f.writePoint(t, "g1", "temperature", 25)
	if err := f.tracker.Recompute(ctx, "sch1"); err != nil {
		t.Fatal(err)
	}
	sched := f.reload(t)
	if sched.Progress != 50 {
		t.Errorf("progress = %d, want 50", sched.Progress)
	}
	if sched.Status != model.ScheduleInProgress {
		t.Errorf("status = %s, want in-progress", sched.Status)
	}
	if sched.CompletionDate != nil {
		t.Error("completion date set on incomplete schedule")
	}
}

func TestRecomputeHalfwayProgress(t *testing.T) {
	f := newFixture(t)
	condA := condition(1, "temperature", model.OpGreater, "20", 4, "hour")
	condB := condition(2, "humidity", model.OpLess, "60", 4, "hour")
	// Both conditions are halfway through and still within their throttle
	// window, so this recompute only re-derives progress.
	condA.Streak, condA.LastEvaluated = 2, f.clock.now
	condB.Streak, condB.LastEvaluated = 2, f.clock.now
	f.store.PutSchedule(&model.Schedule{ID: "sch1", Conditions: []model.ScheduleCondition{condA, condB}})

	if err := f.tracker.Recompute(context.Background(), "sch1"); err != nil {
		t.Fatal(err)
	}
	sched := f.reload(t)
	if sched.Progress != 50 || sched.Status != model.ScheduleInProgress {
		t.Errorf("progress=%d status=%s, want 50/in-progress", sched.Progress, sched.Status)
	}
}

func TestRecomputeUnknownUnitResets(t *testing.T) {
	f := newFixture(t)
	cond := condition(1, "temperature", model.OpGreater, "20", 3, "fortnight")
	cond.Streak = 2
	f.store.PutSchedule(&model.Schedule{ID: "sch1", Conditions: []model.ScheduleCondition{cond}})

	if err := f.tracker.Recompute(context.Background(), "sch1"); err != nil {
		t.Fatal(err)
	}
	if got := f.reload(t).Conditions[0].Streak; got != 0 {
		t.Errorf("streak = %d, want 0 for unknown unit", got)
	}
}

func TestRecomputePublishesProgress(t *testing.T) {
	f := newFixture(t)
	f.store.PutSchedule(&model.Schedule{
		ID:         "sch1",
		Conditions: []model.ScheduleCondition{condition(1, "temperature", model.OpGreater, "20", 1, "hour")},
	})
	f.writePoint(t, "g1", "temperature", 25)
	if err := f.tracker.Recompute(context.Background(), "sch1"); err != nil {
		t.Fatal(err)
	}

	msgs := f.capture.Messages()
	if len(msgs) != 1 || msgs[0].Kind != "schedule" {
		t.Fatalf("messages = %+v, want one schedule message", msgs)
	}
	payload, ok := msgs[0].Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("payload type %T", msgs[0].Payload)
	}
	if got := payload["progress"]; got != 100 {
		t.Errorf("published progress = %v, want 100", got)
	}
}

func TestRecomputeAllUpdatesEverySchedule(t *testing.T) {
	f := newFixture(t)
	f.store.PutSchedule(&model.Schedule{
		ID:         "sch1",
		Conditions: []model.ScheduleCondition{condition(1, "temperature", model.OpGreater, "20", 1, "hour")},
	})
	f.store.PutSchedule(&model.Schedule{ID: "sch2"})
	f.writePoint(t, "g1", "temperature", 25)

	f.tracker.RecomputeAll(context.Background())

	if got := f.reload(t).Progress; got != 100 {
		t.Errorf("sch1 progress = %d, want 100", got)
	}
	sch2, err := f.store.GetSchedule(context.Background(), "sch2")
	if err != nil {
		t.Fatal(err)
	}
	if sch2.Status != model.SchedulePending {
		t.Errorf("sch2 status = %s, want pending", sch2.Status)
	}
}
