package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Hakopstar/VcelJAK/pkg/model"
)

func TestGroupRulesUnionsDirectAndRuleSet(t *testing.T) {
	mem := NewMemory()
	mem.PutGroup(&model.Group{ID: "g1"})
	mem.PutRule(&model.Rule{ID: "r-direct", Active: true})
	mem.PutRule(&model.Rule{ID: "r-set", Active: true})
	mem.AttachRule("g1", "r-direct")
	mem.PutRuleSet("rs1", []string{"r-set"})
	mem.AttachRuleSet("g1", "rs1")

	rules, err := mem.GroupRules(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	if !reflect.DeepEqual(ids, []string{"r-direct", "r-set"}) {
		t.Errorf("rules = %v, want direct then ruleset", ids)
	}
}

func TestGroupRulesUnknownGroup(t *testing.T) {
	mem := NewMemory()
	if _, err := mem.GroupRules(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestLatestAggregateAveragesNewestReadings(t *testing.T) {
	mem := NewMemory()
	mem.PutGroup(&model.Group{ID: "g1"})
	for _, id := range []string{"s1", "s2", "s3"} {
		mem.PutSensor(&model.Sensor{ID: id, GroupID: "g1", Measurement: "temperature"})
	}
	ctx := context.Background()
	earlier := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Minute)

	// s1 has a stale reading that must not dilute the aggregate.
	if err := mem.UpdateSensorReading(ctx, "s1", 100, "C", earlier); err != nil {
		t.Fatal(err)
	}
	if err := mem.UpdateSensorReading(ctx, "s2", 20, "C", later); err != nil {
		t.Fatal(err)
	}
	if err := mem.UpdateSensorReading(ctx, "s3", 30, "C", later); err != nil {
		t.Fatal(err)
	}

	value, ok, err := mem.LatestAggregate(ctx, "g1", "temperature")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || value != 25 {
		t.Errorf("aggregate = %v ok=%v, want 25 true", value, ok)
	}
}

func TestLatestAggregateNoReadings(t *testing.T) {
	mem := NewMemory()
	mem.PutGroup(&model.Group{ID: "g1"})
	mem.PutSensor(&model.Sensor{ID: "s1", GroupID: "g1", Measurement: "temperature"})

	_, ok, err := mem.LatestAggregate(context.Background(), "g1", "temperature")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("aggregate reported for sensors that never read")
	}
}

func TestAddGroupTagRequiresKnownTag(t *testing.T) {
	mem := NewMemory()
	mem.PutGroup(&model.Group{ID: "g1"})
	ctx := context.Background()

	if err := mem.AddGroupTag(ctx, "g1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound for unknown tag, got %v", err)
	}

	mem.PutTag("winterized")
	if err := mem.AddGroupTag(ctx, "g1", "winterized"); err != nil {
		t.Fatal(err)
	}
	g, err := mem.GetGroup(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(g.Tags, []string{"winterized"}) {
		t.Errorf("tags = %v", g.Tags)
	}
}

func TestUpdateGroupHealth(t *testing.T) {
	mem := NewMemory()
	mem.PutGroup(&model.Group{ID: "g1"})
	mem.PutGroup(&model.Group{ID: "g2"})
	ctx := context.Background()

	if err := mem.UpdateGroupHealth(ctx, "g1", 70); err != nil {
		t.Fatal(err)
	}
	g, err := mem.GetGroup(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if g.Health == nil || *g.Health != 70 {
		t.Errorf("health = %v, want 70", g.Health)
	}

	// Groups without a stored health stay absent from the snapshot.
	values, err := mem.GroupHealthValues(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(values, map[string]int{"g1": 70}) {
		t.Errorf("health values = %v", values)
	}
}

func TestGetGroupCopiesState(t *testing.T) {
	mem := NewMemory()
	mem.PutGroup(&model.Group{ID: "g1", Tags: []string{"a"}})
	ctx := context.Background()

	g, err := mem.GetGroup(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	g.Tags[0] = "mutated"

	fresh, err := mem.GetGroup(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Tags[0] != "a" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestSaveScheduleProgressRoundTrip(t *testing.T) {
	mem := NewMemory()
	mem.PutSchedule(&model.Schedule{
		ID:         "sch1",
		Status:     model.SchedulePending,
		Conditions: []model.ScheduleCondition{{ID: 1, ScheduleID: "sch1", Duration: 3}},
	})
	ctx := context.Background()

	sched, err := mem.GetSchedule(ctx, "sch1")
	if err != nil {
		t.Fatal(err)
	}
	sched.Progress = 33
	sched.Status = model.ScheduleInProgress
	sched.Conditions[0].Streak = 1
	if err := mem.SaveScheduleProgress(ctx, sched); err != nil {
		t.Fatal(err)
	}

	got, err := mem.GetSchedule(ctx, "sch1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 33 || got.Status != model.ScheduleInProgress || got.Conditions[0].Streak != 1 {
		t.Errorf("round trip lost state: %+v", got)
	}
}
