package harness

import "github.com/roach88/statekeep/internal/ir"

// TraceEvent is one journaled snapshot of the scenario's actor.
// Event is empty for version 0.
type TraceEvent struct {
	Seq     int64        `json:"seq"`
	Version int64        `json:"version"`
	State   ir.StateID   `json:"state"`
	Context ir.IRObject  `json:"context"`
	Event   ir.EventKind `json:"event,omitempty"`
	Payload ir.IRObject  `json:"payload,omitempty"`
	Digest  string       `json:"digest"`
}

// FinalSnapshot is the actor's snapshot once every step has run.
type FinalSnapshot struct {
	State   ir.StateID  `json:"state"`
	Context ir.IRObject `json:"context"`
	Version int64       `json:"version"`
	Stopped bool        `json:"stopped"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// ActorID is the ID the scenario's actor was created with.
	ActorID string `json:"actor_id"`

	// Trace holds the actor's journaled snapshots in version order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`

	// Final is the actor's last snapshot.
	Final FinalSnapshot `json:"final"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// States returns the state of every trace event, in order.
func (r *Result) States() []string {
	states := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		states[i] = string(ev.State)
	}
	return states
}

// Events returns the kind of every event that produced a trace entry,
// skipping version 0.
func (r *Result) Events() []string {
	events := []string{}
	for _, ev := range r.Trace {
		if ev.Event != "" {
			events = append(events, string(ev.Event))
		}
	}
	return events
}
