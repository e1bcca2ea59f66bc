package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Hakopstar/VcelJAK/pkg/live"
	"github.com/Hakopstar/VcelJAK/pkg/model"
	"github.com/Hakopstar/VcelJAK/pkg/rulecache"
	"github.com/Hakopstar/VcelJAK/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store        *store.Memory
	capture      *live.Capture
	orchestrator *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	logger := testLogger()
	cache := rulecache.New(mem, rulecache.NewMemoryBackend(), logger, rulecache.CacheConfig{})
	capture := live.NewCapture()
	actions := NewDispatcher(mem, capture, logger, nil)
	orchestrator := NewOrchestrator(cache, mem, NewEvaluator(0), actions, logger, nil)
	return &fixture{store: mem, capture: capture, orchestrator: orchestrator}
}

func (f *fixture) addGroup(id string, sensors ...model.Sensor) {
	f.store.PutGroup(&model.Group{ID: id, Name: id, Type: "hive", Sensors: sensors})
}

func tempSensor(id string, lastValue float64) model.Sensor {
	at := time.Now().Add(-time.Minute)
	return model.Sensor{
		ID:               id,
		Measurement:      "temperature",
		LastReadingTime:  &at,
		LastReadingValue: &lastValue,
	}
}

func TestCheckAndTriggerHealthAdjustment(t *testing.T) {
	f := newFixture(t)
	f.addGroup("hive-1", tempSensor("s1", 30))
	f.store.PutRule(&model.Rule{
		ID:              "r1",
		Name:            "overheat",
		LogicalOperator: model.LogicalAnd,
		Priority:        1,
		Active:          true,
		Initiators: []model.Initiator{
			{ID: 1, Kind: model.InitiatorMeasurement, Measurement: "temperature", Operator: model.OpGreater, Value: dec("35")},
		},
		Actions: []model.Action{
			{ID: 1, Kind: model.ActionAdjustHealth, Params: map[string]interface{}{"amount": float64(-10), "healthType": "dynamic"}},
		},
	})
	f.store.AttachRule("hive-1", "r1")

	triggered, err := f.orchestrator.CheckAndTrigger(context.Background(), measurementEvent("temperature", "36"))
	if err != nil {
		t.Fatalf("CheckAndTrigger returned error: %v", err)
	}
	if !triggered.Contains("r1") {
		t.Fatalf("expected r1 to trigger, got %v", triggered)
	}

	group, err := f.store.GetGroup(context.Background(), "hive-1")
	if err != nil {
		t.Fatal(err)
	}
	if group.Health == nil || *group.Health != 40 {
		t.Errorf("health = %v, want 40", group.Health)
	}

	events := f.store.Events()
	if len(events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(events))
	}
	if events[0].EventType != "rule_executed" || events[0].GroupID != "hive-1" {
		t.Errorf("unexpected audit event: %+v", events[0])
	}

	msgs := f.capture.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one live message, got %d", len(msgs))
	}
	if msgs[0].Kind != "health" {
		t.Errorf("live message kind = %q, want health", msgs[0].Kind)
	}
	payload, ok := msgs[0].Payload.(map[string]interface{})
	if !ok || payload["health"] != 40 {
		t.Errorf("unexpected health payload: %+v", msgs[0].Payload)
	}
}

func TestCheckAndTriggerDebounceAcrossEvents(t *testing.T) {
	f := newFixture(t)
	f.addGroup("hive-1", tempSensor("s1", 30))
	f.store.PutRule(&model.Rule{
		ID: "r1", Name: "overheat", LogicalOperator: model.LogicalAnd, Priority: 1, Active: true,
		Initiators: []model.Initiator{
			{ID: 1, Kind: model.InitiatorMeasurement, Measurement: "temperature", Operator: model.OpGreater, Value: dec("35")},
		},
	})
	f.store.AttachRule("hive-1", "r1")

	ctx := context.Background()
	first, err := f.orchestrator.CheckAndTrigger(ctx, measurementEvent("temperature", "36"))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Contains("r1") {
		t.Fatal("first crossing should trigger")
	}

	// Persist the reading the way ingestion does, then repeat the value.
	if err := f.store.UpdateSensorReading(ctx, "s1", 36, "C", time.Now()); err != nil {
		t.Fatal(err)
	}
	second, err := f.orchestrator.CheckAndTrigger(ctx, measurementEvent("temperature", "36"))
	if err != nil {
		t.Fatal(err)
	}
	if second.Contains("r1") {
		t.Error("repeat of an already-satisfying value must be debounced")
	}
}

func TestCheckAndTriggerAddTagRecursion(t *testing.T) {
	f := newFixture(t)
	f.addGroup("hive-1", tempSensor("s1", 30))
	f.store.PutTag("overheated")

	f.store.PutRule(&model.Rule{
		ID: "r-measure", Name: "mark overheated", LogicalOperator: model.LogicalAnd, Priority: 1, Active: true,
		Initiators: []model.Initiator{
			{ID: 1, Kind: model.InitiatorMeasurement, Measurement: "temperature", Operator: model.OpGreater, Value: dec("35")},
		},
		Actions: []model.Action{
			{ID: 1, Kind: model.ActionAddTag, Params: map[string]interface{}{"tagId": "overheated"}},
		},
	})
	f.store.PutRule(&model.Rule{
		ID: "r-tag", Name: "notify overheated", LogicalOperator: model.LogicalAnd, Priority: 2, Active: true,
		Initiators: []model.Initiator{
			{ID: 2, Kind: model.InitiatorTag, Tags: []string{"overheated"}},
		},
		Actions: []model.Action{
			{ID: 2, Kind: model.ActionSendNotification, Params: map[string]interface{}{"message": "group {group_id} overheated"}},
		},
	})
	f.store.AttachRule("hive-1", "r-measure")
	f.store.AttachRule("hive-1", "r-tag")

	triggered, err := f.orchestrator.CheckAndTrigger(context.Background(), measurementEvent("temperature", "36"))
	if err != nil {
		t.Fatal(err)
	}
	if !triggered.Contains("r-measure") {
		t.Fatal("measurement rule should trigger")
	}

	group, err := f.store.GetGroup(context.Background(), "hive-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(group.Tags) != 1 || group.Tags[0] != "overheated" {
		t.Fatalf("tags = %v, want [overheated]", group.Tags)
	}

	var notified bool
	for _, msg := range f.capture.Messages() {
		if msg.Kind == "notification" {
			notified = true
			payload := msg.Payload.(map[string]interface{})
			if payload["message"] != "group hive-1 overheated" {
				t.Errorf("unexpected notification message: %v", payload["message"])
			}
		}
	}
	if !notified {
		t.Error("tag rule should have fired through the tag-change recursion")
	}

	// Re-running the same measurement must not add the tag again or loop.
	if _, err := f.orchestrator.CheckAndTrigger(context.Background(), measurementEvent("temperature", "36")); err != nil {
		t.Fatal(err)
	}
	group, _ = f.store.GetGroup(context.Background(), "hive-1")
	if len(group.Tags) != 1 {
		t.Errorf("tag addition must be idempotent, got %v", group.Tags)
	}
}

func TestCheckAndTriggerIgnoresOtherMeasurements(t *testing.T) {
	f := newFixture(t)
	f.addGroup("hive-1", tempSensor("s1", 40))
	f.store.PutRule(&model.Rule{
		ID: "r-temp", Name: "overheat", LogicalOperator: model.LogicalAnd, Priority: 1, Active: true,
		Initiators: []model.Initiator{
			{ID: 1, Kind: model.InitiatorMeasurement, Measurement: "temperature", Operator: model.OpGreater, Value: dec("35")},
		},
		Actions: []model.Action{
			{ID: 1, Kind: model.ActionAdjustHealth, Params: map[string]interface{}{"amount": float64(-10)}},
		},
	})
	f.store.AttachRule("hive-1", "r-temp")

	// The temperature aggregate (40) satisfies the threshold, but humidity
	// events must never make a temperature rule eligible.
	for i := 0; i < 3; i++ {
		triggered, err := f.orchestrator.CheckAndTrigger(context.Background(), measurementEvent("humidity", "80"))
		if err != nil {
			t.Fatal(err)
		}
		if len(triggered) != 0 {
			t.Fatalf("humidity event fired temperature rule: %v", triggered)
		}
	}

	group, err := f.store.GetGroup(context.Background(), "hive-1")
	if err != nil {
		t.Fatal(err)
	}
	if group.Health != nil {
		t.Errorf("health adjusted by unrelated measurement: %v", *group.Health)
	}
}

func TestCheckAndTriggerTagChangeChecksThresholds(t *testing.T) {
	f := newFixture(t)
	f.store.PutTag("winter")
	f.store.PutGroup(&model.Group{
		ID: "hive-1", Name: "hive-1", Type: "hive",
		Tags:    []string{"winter"},
		Sensors: []model.Sensor{tempSensor("s1", 20)},
	})
	f.store.PutRule(&model.Rule{
		ID: "r-combined", Name: "cold snap", LogicalOperator: model.LogicalAnd, Priority: 1, Active: true,
		Initiators: []model.Initiator{
			{ID: 1, Kind: model.InitiatorTag, Tags: []string{"winter"}},
			{ID: 2, Kind: model.InitiatorMeasurement, Measurement: "temperature", Operator: model.OpGreater, Value: dec("35")},
		},
		Actions: []model.Action{
			{ID: 1, Kind: model.ActionSendNotification, Params: map[string]interface{}{"message": "group {group_id} alert"}},
		},
	})
	f.store.AttachRule("hive-1", "r-combined")

	tagChange := model.TriggerEvent{
		GroupID:      "hive-1",
		Kind:         model.EventTagChange,
		ChangedTagID: "winter",
		Timestamp:    time.Now(),
	}

	triggered, err := f.orchestrator.CheckAndTrigger(context.Background(), tagChange)
	if err != nil {
		t.Fatal(err)
	}
	if triggered.Contains("r-combined") {
		t.Fatal("tag change fired a rule whose temperature condition is unmet")
	}

	// With the temperature condition satisfied the same event fires the rule.
	f.store.PutGroup(&model.Group{
		ID: "hive-1", Name: "hive-1", Type: "hive",
		Tags:    []string{"winter"},
		Sensors: []model.Sensor{tempSensor("s1", 40)},
	})
	triggered, err = f.orchestrator.CheckAndTrigger(context.Background(), tagChange)
	if err != nil {
		t.Fatal(err)
	}
	if !triggered.Contains("r-combined") {
		t.Fatalf("expected r-combined to trigger, got %v", triggered)
	}
}

func TestCheckAndTriggerStaticHealth(t *testing.T) {
	f := newFixture(t)
	f.addGroup("hive-1", tempSensor("s1", 30))
	f.store.PutRule(&model.Rule{
		ID: "r1", Name: "reset health", LogicalOperator: model.LogicalAnd, Priority: 1, Active: true,
		Initiators: []model.Initiator{
			{ID: 1, Kind: model.InitiatorMeasurement, Measurement: "temperature", Operator: model.OpGreater, Value: dec("35")},
		},
		Actions: []model.Action{
			{ID: 1, Kind: model.ActionAdjustHealth, Params: map[string]interface{}{"amount": float64(25), "healthType": "static"}},
		},
	})
	f.store.AttachRule("hive-1", "r1")

	if _, err := f.orchestrator.CheckAndTrigger(context.Background(), measurementEvent("temperature", "36")); err != nil {
		t.Fatal(err)
	}
	group, err := f.store.GetGroup(context.Background(), "hive-1")
	if err != nil {
		t.Fatal(err)
	}
	// static sets the health to the amount instead of offsetting the default 50.
	if group.Health == nil || *group.Health != 25 {
		t.Errorf("health = %v, want 25", group.Health)
	}
}

func TestCheckAndTriggerIsolatesFailingRules(t *testing.T) {
	f := newFixture(t)
	f.addGroup("hive-1", tempSensor("s1", 30))

	// r-broken has a malformed initiator, r-good must still run.
	f.store.PutRule(&model.Rule{
		ID: "r-broken", Name: "broken", LogicalOperator: model.LogicalAnd, Priority: 1, Active: true,
		Initiators: []model.Initiator{
			{ID: 1, Kind: model.InitiatorMeasurement, Measurement: "temperature", Operator: model.OpBetween, Value: dec("10")},
		},
	})
	f.store.PutRule(&model.Rule{
		ID: "r-good", Name: "good", LogicalOperator: model.LogicalAnd, Priority: 2, Active: true,
		Initiators: []model.Initiator{
			{ID: 2, Kind: model.InitiatorMeasurement, Measurement: "temperature", Operator: model.OpGreater, Value: dec("35")},
		},
	})
	f.store.AttachRule("hive-1", "r-broken")
	f.store.AttachRule("hive-1", "r-good")

	triggered, err := f.orchestrator.CheckAndTrigger(context.Background(), measurementEvent("temperature", "36"))
	if err != nil {
		t.Fatal(err)
	}
	if triggered.Contains("r-broken") {
		t.Error("malformed initiator must not fire")
	}
	if !triggered.Contains("r-good") {
		t.Error("healthy rule must fire despite sibling failure")
	}
}

func TestCheckAndTriggerUnknownGroup(t *testing.T) {
	f := newFixture(t)
	triggered, err := f.orchestrator.CheckAndTrigger(context.Background(), measurementEvent("temperature", "36"))
	if err != nil {
		t.Fatalf("unknown group must degrade, not fail: %v", err)
	}
	if len(triggered) != 0 {
		t.Errorf("unknown group triggered rules: %v", triggered)
	}
}

func TestDispatcherUnknownActionIsNoop(t *testing.T) {
	f := newFixture(t)
	f.addGroup("hive-1", tempSensor("s1", 30))
	f.store.PutRule(&model.Rule{
		ID: "r1", Name: "odd", LogicalOperator: model.LogicalAnd, Priority: 1, Active: true,
		Initiators: []model.Initiator{
			{ID: 1, Kind: model.InitiatorMeasurement, Measurement: "temperature", Operator: model.OpGreater, Value: dec("35")},
		},
		Actions: []model.Action{
			{ID: 1, Kind: model.ActionUnknown, Params: map[string]interface{}{"whatever": true}},
		},
	})
	f.store.AttachRule("hive-1", "r1")

	triggered, err := f.orchestrator.CheckAndTrigger(context.Background(), measurementEvent("temperature", "36"))
	if err != nil {
		t.Fatal(err)
	}
	if !triggered.Contains("r1") {
		t.Error("rule with unknown action still triggers")
	}
	if len(f.capture.Messages()) != 0 {
		t.Error("unknown action must not publish anything")
	}
}

func TestSubstitute(t *testing.T) {
	values := map[string]interface{}{"group_id": "hive-1", "value": "36.5"}

	got, ok := substitute("group {group_id} at {value}", values)
	if !ok || got != "group hive-1 at 36.5" {
		t.Errorf("substitute = (%q, %v)", got, ok)
	}

	if _, ok := substitute("missing {nope}", values); ok {
		t.Error("unresolved placeholder must report failure")
	}

	got, ok = substitute("no placeholders", values)
	if !ok || got != "no placeholders" {
		t.Errorf("substitute = (%q, %v)", got, ok)
	}
}
