package fsm

import (
	"errors"
	"fmt"

	"github.com/roach88/statekeep/internal/ir"
)

// ErrorCode categorizes runtime errors.
type ErrorCode string

const (
	// ErrCodeMalformedDefinition indicates a structural problem in a definition.
	ErrCodeMalformedDefinition ErrorCode = "MALFORMED_DEFINITION"

	// ErrCodeConflictingRule indicates two rules for the same (state, event) pair.
	ErrCodeConflictingRule ErrorCode = "CONFLICTING_RULE"

	// ErrCodeInvalidLifecycle indicates an operation not allowed in the actor's phase.
	ErrCodeInvalidLifecycle ErrorCode = "INVALID_LIFECYCLE_TRANSITION"

	// ErrCodeActionFailed indicates an action aborted its transition.
	ErrCodeActionFailed ErrorCode = "ACTION_FAILED"

	// ErrCodeUnhandledEvent indicates an event with no rule, in strict mode only.
	ErrCodeUnhandledEvent ErrorCode = "UNHANDLED_EVENT"
)

// MalformedDefinitionError is returned by Define when the state set, the
// initial state or a rule does not describe a valid machine.
type MalformedDefinitionError struct {
	Reason string
	State  ir.StateID
	Event  ir.EventKind
	// Rule is the index of the offending rule, or -1.
	Rule int
}

// Error implements the error interface.
func (e *MalformedDefinitionError) Error() string {
	if e.Rule >= 0 {
		return fmt.Sprintf("%s: rule %d (%s, %s): %s", ErrCodeMalformedDefinition, e.Rule, e.State, e.Event, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrCodeMalformedDefinition, e.Reason)
}

// ConflictingRuleError is returned by Define when two rules share a
// (state, event) pair.
type ConflictingRuleError struct {
	State  ir.StateID
	Event  ir.EventKind
	First  int
	Second int
}

// Error implements the error interface.
func (e *ConflictingRuleError) Error() string {
	return fmt.Sprintf("%s: rules %d and %d both handle (%s, %s)", ErrCodeConflictingRule, e.First, e.Second, e.State, e.Event)
}

// InvalidLifecycleError is returned when Start or Send is called in the wrong
// phase. The actor is untouched.
type InvalidLifecycleError struct {
	ActorID string
	Op      string
	Phase   Lifecycle
}

// Error implements the error interface.
func (e *InvalidLifecycleError) Error() string {
	return fmt.Sprintf("%s: cannot %s actor %s while %s", ErrCodeInvalidLifecycle, e.Op, e.ActorID, e.Phase)
}

// ActionFailedError is returned by Send when an action fails. The transition
// was rolled back in full.
type ActionFailedError struct {
	ActorID string
	State   ir.StateID
	Event   ir.EventKind
	// Index is the position of the failing action within its rule.
	Index int
	Cause error
}

// Error implements the error interface.
func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("%s: action %d of (%s, %s) on actor %s: %v", ErrCodeActionFailed, e.Index, e.State, e.Event, e.ActorID, e.Cause)
}

// Unwrap returns the action's error.
func (e *ActionFailedError) Unwrap() error {
	return e.Cause
}

// UnhandledEventError is returned by Send in strict mode when no rule matches.
type UnhandledEventError struct {
	ActorID string
	State   ir.StateID
	Event   ir.EventKind
}

// Error implements the error interface.
func (e *UnhandledEventError) Error() string {
	return fmt.Sprintf("%s: no rule for (%s, %s) on actor %s", ErrCodeUnhandledEvent, e.State, e.Event, e.ActorID)
}

// IsMalformedDefinition checks if an error is a MalformedDefinitionError.
func IsMalformedDefinition(err error) bool {
	var target *MalformedDefinitionError
	return errors.As(err, &target)
}

// IsConflictingRule checks if an error is a ConflictingRuleError.
func IsConflictingRule(err error) bool {
	var target *ConflictingRuleError
	return errors.As(err, &target)
}

// IsInvalidLifecycle checks if an error is an InvalidLifecycleError.
func IsInvalidLifecycle(err error) bool {
	var target *InvalidLifecycleError
	return errors.As(err, &target)
}

// IsActionFailed checks if an error is an ActionFailedError.
func IsActionFailed(err error) bool {
	var target *ActionFailedError
	return errors.As(err, &target)
}

// IsUnhandledEvent checks if an error is an UnhandledEventError.
func IsUnhandledEvent(err error) bool {
	var target *UnhandledEventError
	return errors.As(err, &target)
}

// Code returns the ErrorCode carried by err, or "" for foreign errors.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case IsMalformedDefinition(err):
		return ErrCodeMalformedDefinition
	case IsConflictingRule(err):
		return ErrCodeConflictingRule
	case IsInvalidLifecycle(err):
		return ErrCodeInvalidLifecycle
	case IsActionFailed(err):
		return ErrCodeActionFailed
	case IsUnhandledEvent(err):
		return ErrCodeUnhandledEvent
	default:
		return ""
	}
}
