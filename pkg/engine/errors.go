package engine

import (
	"fmt"
)

// ConditionError indicates an initiator could not be evaluated: a malformed
// threshold, an unknown operator or a failed data lookup. The initiator is
// treated as not matching; the error exists for logging.
type ConditionError struct {
	RuleID      string
	InitiatorID int64
	Message     string
	Cause       error
}

// Error returns the error message.
func (e *ConditionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rule %s initiator %d: %s: %v", e.RuleID, e.InitiatorID, e.Message, e.Cause)
	}
	return fmt.Sprintf("rule %s initiator %d: %s", e.RuleID, e.InitiatorID, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ConditionError) Unwrap() error {
	return e.Cause
}

// ActionError indicates an action handler failed. Sibling actions and
// rules still run; the failed action's effects are not recorded.
type ActionError struct {
	RuleID     string
	ActionKind string
	Cause      error
}

// Error returns the error message.
func (e *ActionError) Error() string {
	return fmt.Sprintf("rule %s: action %s failed: %v", e.RuleID, e.ActionKind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ActionError) Unwrap() error {
	return e.Cause
}
