package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeActorNotFound indicates no actor with the given ID is hosted.
	ErrCodeActorNotFound ErrorCode = "ACTOR_NOT_FOUND"

	// ErrCodeDuplicateActor indicates Spawn was given an ID already in use.
	ErrCodeDuplicateActor ErrorCode = "DUPLICATE_ACTOR"

	// ErrCodeEngineClosed indicates the engine no longer accepts work.
	ErrCodeEngineClosed ErrorCode = "ENGINE_CLOSED"

	// ErrCodeJournalFailed indicates a committed snapshot could not be
	// written to the store. The transition itself is not rolled back.
	ErrCodeJournalFailed ErrorCode = "JOURNAL_FAILED"
)

// Error is an engine-level failure. Actor-level failures (lifecycle, action
// and unhandled-event errors) are returned as the fsm error types unchanged.
type Error struct {
	Code    ErrorCode
	ActorID string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ActorID != "" {
		msg = fmt.Sprintf("%s (actor=%s)", msg, e.ActorID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsActorNotFound reports whether err is an ACTOR_NOT_FOUND error.
func IsActorNotFound(err error) bool {
	return hasCode(err, ErrCodeActorNotFound)
}

// IsDuplicateActor reports whether err is a DUPLICATE_ACTOR error.
func IsDuplicateActor(err error) bool {
	return hasCode(err, ErrCodeDuplicateActor)
}

// IsEngineClosed reports whether err is an ENGINE_CLOSED error.
func IsEngineClosed(err error) bool {
	return hasCode(err, ErrCodeEngineClosed)
}

// IsJournalFailed reports whether err is a JOURNAL_FAILED error.
func IsJournalFailed(err error) bool {
	return hasCode(err, ErrCodeJournalFailed)
}

func actorNotFound(id string) *Error {
	return &Error{Code: ErrCodeActorNotFound, ActorID: id, Message: "no such actor"}
}

func journalFailed(id string, cause error) *Error {
	return &Error{Code: ErrCodeJournalFailed, ActorID: id, Message: "snapshot committed but not journaled", Cause: cause}
}
