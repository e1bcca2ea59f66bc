package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hakopstar/VcelJAK/pkg/model"
)

// DefaultScheduleWindow is how long after its configured instant a
// schedule initiator keeps matching.
const DefaultScheduleWindow = 10 * time.Second

// Evaluator decides whether initiators are satisfied for a triggering
// event. Evaluation is side-effect-free; all state comes in through the
// EvalContext.
type Evaluator struct {
	scheduleWindow time.Duration
}

// NewEvaluator creates an evaluator. A zero window falls back to
// DefaultScheduleWindow.
func NewEvaluator(scheduleWindow time.Duration) *Evaluator {
	if scheduleWindow <= 0 {
		scheduleWindow = DefaultScheduleWindow
	}
	return &Evaluator{scheduleWindow: scheduleWindow}
}

// eligibleForEvent reports whether a rule participates in the event's
// evaluation pass. A measurement event needs an initiator on that exact
// measurement, a tag change needs a tag initiator and a schedule tick
// needs a schedule initiator; a temperature-only rule is therefore never
// re-evaluated by a humidity write or a bare tick. Eligibility only
// opens the gate: once a rule is in, all of its initiators are evaluated.
func eligibleForEvent(rule model.Rule, event model.TriggerEvent) bool {
	for _, init := range rule.Initiators {
		switch event.Kind {
		case model.EventMeasurement:
			if init.Kind == model.InitiatorMeasurement && init.Measurement == event.Measurement {
				return true
			}
		case model.EventTagChange:
			if init.Kind == model.InitiatorTag {
				return true
			}
		case model.EventSchedule:
			if init.Kind == model.InitiatorSchedule {
				return true
			}
		}
	}
	return false
}

// EvaluateRule decides whether a rule fires for the event. An ineligible
// rule never fires; an eligible rule has every initiator evaluated by its
// own kind, with the results combined under the rule's logical operator,
// where anything other than "or" behaves as "and".
//
// An initiator that cannot be evaluated counts as false; the first such
// error is returned alongside the result for logging.
func (e *Evaluator) EvaluateRule(ctx context.Context, rule model.Rule, ec *EvalContext) (bool, error) {
	if !eligibleForEvent(rule, ec.Event) {
		return false, nil
	}

	var firstErr error
	anyTrue := false
	allTrue := true
	for _, init := range rule.Initiators {
		ok, err := e.Evaluate(ctx, init, ec)
		if err != nil && firstErr == nil {
			firstErr = &ConditionError{RuleID: rule.ID, InitiatorID: init.ID, Message: "evaluation failed", Cause: err}
		}
		if ok {
			anyTrue = true
		} else {
			allTrue = false
		}
	}

	if rule.LogicalOperator == model.LogicalOr {
		return anyTrue, firstErr
	}
	return allTrue, firstErr
}

// Evaluate decides a single initiator.
func (e *Evaluator) Evaluate(ctx context.Context, init model.Initiator, ec *EvalContext) (bool, error) {
	switch init.Kind {
	case model.InitiatorMeasurement:
		return e.evaluateMeasurement(ctx, init, ec)
	case model.InitiatorTag:
		return evaluateTags(init.Tags, ec.GroupTags), nil
	case model.InitiatorSchedule:
		return e.evaluateSchedule(init, ec.Now)
	default:
		return false, &ConditionError{InitiatorID: init.ID, Message: "unknown initiator kind"}
	}
}

// evaluateMeasurement compares a threshold initiator.
//
// When the trigger is a fresh reading of the same measurement, the trigger
// value itself is compared, and a satisfying result is suppressed if the
// most recent prior aggregate already satisfied the condition. That
// debounces duplicate alerts when several sensors of one group report
// near-simultaneously; it applies only on the measurement-write path.
// Every other combination compares the group's latest aggregate.
func (e *Evaluator) evaluateMeasurement(ctx context.Context, init model.Initiator, ec *EvalContext) (bool, error) {
	if init.Value == nil {
		return false, &ConditionError{InitiatorID: init.ID, Message: "missing threshold"}
	}

	onTriggerValue := ec.Event.Kind == model.EventMeasurement &&
		ec.Event.HasValue &&
		init.Measurement == ec.Event.Measurement

	if !onTriggerValue {
		if ec.Aggregate == nil {
			return false, nil
		}
		agg, ok, err := ec.Aggregate(ctx, init.Measurement)
		if err != nil {
			return false, &ConditionError{InitiatorID: init.ID, Message: "aggregate lookup failed", Cause: err}
		}
		if !ok {
			return false, nil
		}
		return compareThreshold(init, agg)
	}

	satisfied, err := compareThreshold(init, ec.Event.Value)
	if err != nil || !satisfied {
		return false, err
	}

	// The reading is written after orchestration, so the stored aggregate
	// is still the prior value here.
	if ec.Aggregate != nil {
		prior, ok, aggErr := ec.Aggregate(ctx, init.Measurement)
		if aggErr == nil && ok {
			if priorSatisfied, cmpErr := compareThreshold(init, prior); cmpErr == nil && priorSatisfied {
				return false, nil
			}
		}
	}
	return true, nil
}

// compareThreshold applies the initiator's operator to value. The
// between/outside pair normalizes threshold order first, so (t1,t2) and
// (t2,t1) behave identically.
func compareThreshold(init model.Initiator, value decimal.Decimal) (bool, error) {
	t1 := *init.Value
	switch init.Operator {
	case model.OpGreater:
		return value.GreaterThan(t1), nil
	case model.OpGreaterEqual:
		return value.GreaterThanOrEqual(t1), nil
	case model.OpLess:
		return value.LessThan(t1), nil
	case model.OpLessEqual:
		return value.LessThanOrEqual(t1), nil
	case model.OpEqual:
		return value.Equal(t1), nil
	case model.OpNotEqual:
		return !value.Equal(t1), nil
	case model.OpBetween, model.OpOutside:
		if init.Value2 == nil {
			return false, &ConditionError{InitiatorID: init.ID, Message: "second threshold required"}
		}
		lo, hi := t1, *init.Value2
		if lo.GreaterThan(hi) {
			lo, hi = hi, lo
		}
		inside := value.GreaterThanOrEqual(lo) && value.LessThanOrEqual(hi)
		if init.Operator == model.OpBetween {
			return inside, nil
		}
		return !inside, nil
	default:
		return false, &ConditionError{InitiatorID: init.ID, Message: "unknown operator " + string(init.Operator)}
	}
}

// evaluateTags reports whether every required tag is present on the group.
func evaluateTags(required, present []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(present))
	for _, t := range present {
		set[t] = struct{}{}
	}
	for _, t := range required {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
