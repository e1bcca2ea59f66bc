// Package engine evaluates automation rules against triggering events and
// executes the actions of satisfied rules.
//
// The Evaluator decides individual initiators (measurement thresholds,
// tag membership, calendar windows) without side effects. The
// Orchestrator resolves a group's effective rules, evaluates them in
// priority order and hands satisfied rules to the Dispatcher, whose
// handler table covers the closed action-kind set. The add-tag handler
// re-enters the orchestrator once per actual membership change; tag-change
// events only consult tag initiators, so the recursion cannot loop.
//
// No failure in this package reaches the ingestion caller. Misconfigured
// initiators count as not matching, data lookups that fail degrade to
// "condition not met" and action errors are logged per rule.
package engine
