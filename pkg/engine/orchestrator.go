package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Hakopstar/VcelJAK/pkg/model"
	"github.com/Hakopstar/VcelJAK/pkg/store"
)

// Orchestrator runs the full evaluate-and-trigger pass for one event.
//
// Evaluation is synchronous and sequential: one rule's actions run to
// completion before the next rule is evaluated, so a later rule observes
// state an earlier one mutated, such as a freshly added tag. A failure in
// one rule is logged and never aborts the remaining rules, and no failure
// propagates to the ingestion caller.
type Orchestrator struct {
	rules     RuleSource
	store     GroupStore
	evaluator *Evaluator
	actions   *Dispatcher
	logger    *slog.Logger
	recorder  Recorder
}

// NewOrchestrator wires the orchestrator and binds itself into the
// dispatcher's re-evaluation path.
func NewOrchestrator(rules RuleSource, st GroupStore, evaluator *Evaluator, actions *Dispatcher, logger *slog.Logger, recorder Recorder) *Orchestrator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	o := &Orchestrator{
		rules:     rules,
		store:     st,
		evaluator: evaluator,
		actions:   actions,
		logger:    logger.With("component", "orchestrator"),
		recorder:  recorder,
	}
	actions.BindOrchestrator(o)
	return o
}

// CheckAndTrigger evaluates the group's effective rules against the event
// and executes the actions of every satisfied rule, in priority order.
// It returns the ids of the triggered rules.
func (o *Orchestrator) CheckAndTrigger(ctx context.Context, event model.TriggerEvent) (Triggered, error) {
	started := time.Now()
	defer func() { o.recorder.RecordEvaluationPass(time.Since(started)) }()

	// One correlation id per pass; recursive tag re-evaluation gets its own.
	logger := o.logger.With("pass_id", uuid.NewString())

	ruleList, err := o.rules.RulesForGroup(ctx, event.GroupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("event for unknown group", "group_id", event.GroupID, "kind", string(event.Kind))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve rules for group %s: %w", event.GroupID, err)
	}
	if len(ruleList) == 0 {
		return nil, nil
	}

	var triggered Triggered
	for _, rule := range ruleList {
		// Tags may change between rules through add-tag actions, so the
		// group is reloaded per rule.
		ec, err := o.buildContext(ctx, event)
		if err != nil {
			logger.Error("failed to build evaluation context", "group_id", event.GroupID, "error", err)
			o.recorder.RecordEvaluation("error")
			continue
		}

		fired, evalErr := o.evaluator.EvaluateRule(ctx, rule, ec)
		if evalErr != nil {
			logger.Warn("initiator evaluation degraded", "rule_id", rule.ID, "error", evalErr)
		}
		if !fired {
			o.recorder.RecordEvaluation("not_triggered")
			continue
		}
		o.recorder.RecordEvaluation("triggered")
		triggered = append(triggered, rule.ID)
		logger.Info("rule triggered",
			"rule_id", rule.ID, "rule_name", rule.Name, "group_id", event.GroupID, "kind", string(event.Kind))

		if err := o.store.AppendGroupEvent(ctx, model.GroupEvent{
			GroupID:   event.GroupID,
			EventType: "rule_executed",
			Time:      time.Now(),
			Description: fmt.Sprintf("Rule '%s' (id %s, priority %d) executed",
				rule.Name, rule.ID, rule.Priority),
		}); err != nil {
			logger.Error("failed to append audit event", "rule_id", rule.ID, "error", err)
		}

		actx := o.actionContext(event, rule)
		for _, action := range rule.Actions {
			if err := o.actions.Execute(ctx, action, actx); err != nil {
				logger.Error("action failed", "rule_id", rule.ID, "action_id", action.ID, "error", err)
			}
		}
	}
	return triggered, nil
}

// buildContext loads the group's tag set and prepares a memoized
// aggregate lookup for the evaluation of one rule.
func (o *Orchestrator) buildContext(ctx context.Context, event model.TriggerEvent) (*EvalContext, error) {
	group, err := o.store.GetGroup(ctx, event.GroupID)
	if err != nil {
		return nil, err
	}

	type aggResult struct {
		value decimal.Decimal
		ok    bool
		err   error
	}
	memo := make(map[string]aggResult)
	aggregate := func(ctx context.Context, measurement string) (decimal.Decimal, bool, error) {
		if r, ok := memo[measurement]; ok {
			return r.value, r.ok, r.err
		}
		raw, ok, err := o.store.LatestAggregate(ctx, event.GroupID, measurement)
		r := aggResult{value: decimal.NewFromFloat(raw), ok: ok, err: err}
		memo[measurement] = r
		return r.value, r.ok, r.err
	}

	now := event.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	return &EvalContext{
		Event:     event,
		GroupTags: group.Tags,
		Aggregate: aggregate,
		Now:       now,
	}, nil
}

// actionContext extends the event with the triggering rule's identity for
// message templates.
func (o *Orchestrator) actionContext(event model.TriggerEvent, rule model.Rule) *ActionContext {
	values := map[string]interface{}{
		"group_id":  event.GroupID,
		"rule_id":   rule.ID,
		"rule_name": rule.Name,
		"priority":  rule.Priority,
	}
	if event.Kind == model.EventMeasurement {
		values["measurement"] = event.Measurement
		if event.HasValue {
			values["value"] = event.Value.String()
			values[event.Measurement] = event.Value.String()
		}
		if event.Unit != "" {
			values["unit"] = event.Unit
		}
		if event.SensorID != "" {
			values["sensor_id"] = event.SensorID
		}
	}
	if event.ChangedTagID != "" {
		values["tag"] = event.ChangedTagID
	}
	return &ActionContext{Event: event, RuleID: rule.ID, Values: values}
}
