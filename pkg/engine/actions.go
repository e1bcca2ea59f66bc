package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Hakopstar/VcelJAK/pkg/live"
	"github.com/Hakopstar/VcelJAK/pkg/model"
)

// defaultHealth is assumed for groups whose health was never adjusted.
const defaultHealth = 50

// ActionContext is the context a triggered rule's actions execute under.
// Values feeds message-template substitution.
type ActionContext struct {
	Event  model.TriggerEvent
	RuleID string
	Values map[string]interface{}
}

type handlerFunc func(ctx context.Context, action model.Action, actx *ActionContext) error

// reevaluator is the one callback out of the dispatcher back into the
// orchestrator, used by the add-tag handler.
type reevaluator interface {
	CheckAndTrigger(ctx context.Context, event model.TriggerEvent) (Triggered, error)
}

// Dispatcher executes rule actions. Handlers are bound to the closed
// action-kind set at construction; an unknown kind is a logged no-op.
type Dispatcher struct {
	store     GroupStore
	publisher live.Publisher
	logger    *slog.Logger
	recorder  Recorder
	handlers  map[model.ActionKind]handlerFunc

	orchestrator reevaluator
}

// NewDispatcher creates a dispatcher with the full handler table.
func NewDispatcher(st GroupStore, publisher live.Publisher, logger *slog.Logger, recorder Recorder) *Dispatcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	d := &Dispatcher{
		store:     st,
		publisher: publisher,
		logger:    logger.With("component", "actions"),
		recorder:  recorder,
	}
	d.handlers = map[model.ActionKind]handlerFunc{
		model.ActionLogEvent:         d.logEvent,
		model.ActionSendNotification: d.sendNotification,
		model.ActionAdjustHealth:     d.adjustHealth,
		model.ActionSendTip:          d.sendTip,
		model.ActionAddTag:           d.addTag,
	}
	return d
}

// BindOrchestrator wires the re-evaluation path used by add-tag actions.
// Must be called before Execute.
func (d *Dispatcher) BindOrchestrator(o reevaluator) {
	d.orchestrator = o
}

// Execute runs one action. Unknown kinds are logged and ignored; handler
// failures come back as *ActionError.
func (d *Dispatcher) Execute(ctx context.Context, action model.Action, actx *ActionContext) error {
	handler, ok := d.handlers[action.Kind]
	if !ok {
		d.logger.Warn("ignoring unknown action kind",
			"rule_id", actx.RuleID, "action_id", action.ID, "kind", string(action.Kind))
		d.recorder.RecordAction(string(action.Kind), "ignored")
		return nil
	}
	if err := handler(ctx, action, actx); err != nil {
		d.recorder.RecordAction(string(action.Kind), "error")
		return &ActionError{RuleID: actx.RuleID, ActionKind: string(action.Kind), Cause: err}
	}
	d.recorder.RecordAction(string(action.Kind), "ok")
	return nil
}

func (d *Dispatcher) logEvent(ctx context.Context, action model.Action, actx *ActionContext) error {
	message := d.formatMessage(action.Params, actx)
	eventType := stringParam(action.Params, "event_type", "info")
	return d.store.AppendGroupEvent(ctx, model.GroupEvent{
		GroupID:     actx.Event.GroupID,
		EventType:   eventType,
		Time:        time.Now(),
		Description: message,
	})
}

func (d *Dispatcher) sendNotification(ctx context.Context, action model.Action, actx *ActionContext) error {
	message := d.formatMessage(action.Params, actx)
	d.logger.Info("notification", "group_id", actx.Event.GroupID, "rule_id", actx.RuleID, "message", message)
	d.publisher.Publish(ctx, live.Message{
		Kind: "notification",
		Payload: map[string]interface{}{
			"group_id": actx.Event.GroupID,
			"message":  message,
		},
	})
	return nil
}

// adjustHealth moves the group's bounded health score. "dynamic" adds the
// amount to the current value, "static" replaces it; the result is
// clamped to [0,100] and persisted only when it actually changed.
func (d *Dispatcher) adjustHealth(ctx context.Context, action model.Action, actx *ActionContext) error {
	amount, ok := numberParam(action.Params, "amount")
	if !ok {
		return fmt.Errorf("missing or non-numeric amount")
	}

	group, err := d.store.GetGroup(ctx, actx.Event.GroupID)
	if err != nil {
		return fmt.Errorf("failed to load group: %w", err)
	}
	current := defaultHealth
	if group.Health != nil {
		current = *group.Health
	}

	// The authoring surface writes camelCase; the snake_case spelling is
	// kept as an alias.
	healthType := firstStringParam(action.Params, "healthType", "health_type")
	if healthType == "" {
		healthType = "dynamic"
	}
	next := int(amount)
	if healthType == "dynamic" {
		next = current + int(amount)
	}
	if next < 0 {
		next = 0
	}
	if next > 100 {
		next = 100
	}

	if next == current && group.Health != nil {
		return nil
	}
	if err := d.store.UpdateGroupHealth(ctx, group.ID, next); err != nil {
		return fmt.Errorf("failed to persist health: %w", err)
	}

	payload := map[string]interface{}{
		"group_id": group.ID,
		"health":   next,
	}
	if avg, ok := d.averageHealth(ctx); ok {
		payload["average_health"] = avg
	}
	d.publisher.Publish(ctx, live.Message{Kind: "health", Payload: payload})
	return nil
}

func (d *Dispatcher) sendTip(ctx context.Context, action model.Action, actx *ActionContext) error {
	message := d.formatMessage(action.Params, actx)
	d.publisher.Publish(ctx, live.Message{
		Kind: "tip",
		Payload: map[string]interface{}{
			"group_id": actx.Event.GroupID,
			"message":  message,
		},
	})
	return nil
}

// addTag appends a tag to the group and re-runs rule evaluation for the
// resulting tag change. The recursion is bounded: it only fires on an
// actual membership change, and never from an evaluation that is itself
// handling a tag change.
func (d *Dispatcher) addTag(ctx context.Context, action model.Action, actx *ActionContext) error {
	tagID := firstStringParam(action.Params, "tagId", "tag", "tag_id")
	if tagID == "" {
		return fmt.Errorf("missing tagId parameter")
	}

	group, err := d.store.GetGroup(ctx, actx.Event.GroupID)
	if err != nil {
		return fmt.Errorf("failed to load group: %w", err)
	}
	for _, t := range group.Tags {
		if t == tagID {
			return nil
		}
	}

	if err := d.store.AddGroupTag(ctx, group.ID, tagID); err != nil {
		return fmt.Errorf("failed to add tag %s: %w", tagID, err)
	}
	d.logger.Info("tag added", "group_id", group.ID, "tag_id", tagID, "rule_id", actx.RuleID)

	if actx.Event.Kind == model.EventTagChange || d.orchestrator == nil {
		return nil
	}
	if _, err := d.orchestrator.CheckAndTrigger(ctx, model.TriggerEvent{
		GroupID:      group.ID,
		Kind:         model.EventTagChange,
		ChangedTagID: tagID,
		Timestamp:    time.Now(),
	}); err != nil {
		return fmt.Errorf("tag re-evaluation failed: %w", err)
	}
	return nil
}

// formatMessage renders the action's message template against the context
// values. Substitution never fails: an unresolved placeholder falls back
// to a generic message naming the rule.
func (d *Dispatcher) formatMessage(params map[string]interface{}, actx *ActionContext) string {
	template := stringParam(params, "message", "")
	if template == "" {
		return fmt.Sprintf("rule %s triggered for group %s", actx.RuleID, actx.Event.GroupID)
	}
	rendered, ok := substitute(template, actx.Values)
	if !ok {
		d.logger.Debug("message template has unresolved placeholders", "rule_id", actx.RuleID)
		return fmt.Sprintf("rule %s triggered for group %s", actx.RuleID, actx.Event.GroupID)
	}
	return rendered
}

// substitute replaces {name} placeholders from values. ok is false when a
// placeholder has no value.
func substitute(template string, values map[string]interface{}) (string, bool) {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), true
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			b.WriteString(rest)
			return b.String(), true
		}
		name := rest[open+1 : open+closing]
		value, ok := values[name]
		if !ok {
			return "", false
		}
		b.WriteString(rest[:open])
		fmt.Fprintf(&b, "%v", value)
		rest = rest[open+closing+1:]
	}
}

func stringParam(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// firstStringParam returns the first non-empty string among alias keys.
func firstStringParam(params map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := stringParam(params, key, ""); s != "" {
			return s
		}
	}
	return ""
}

// numberParam reads a numeric parameter, tolerating the JSON and string
// encodings the authoring surface produces.
func numberParam(params map[string]interface{}, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// averageHealth computes the mean health across all groups that have one.
func (d *Dispatcher) averageHealth(ctx context.Context) (int, bool) {
	values, err := d.store.GroupHealthValues(ctx)
	if err != nil || len(values) == 0 {
		return 0, false
	}
	sum := 0
	for _, h := range values {
		sum += h
	}
	return sum / len(values), true
}
