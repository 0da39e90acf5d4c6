package fsm

import (
	"context"
	"reflect"

	"github.com/roach88/statekeep/internal/ir"
)

// Snapshot is an immutable observation of an actor after start or after a
// committed transition. Every Snapshot handed out by an Actor carries its own
// copy of the context, so it may be retained, compared or serialised without
// synchronisation. Two snapshots of one actor with equal Version are
// value-equal.
type Snapshot[C any] struct {
	State   ir.StateID
	Context C
	Version int64
}

// Equal compares state, version and context. Contexts are compared
// structurally.
func (s Snapshot[C]) Equal(other Snapshot[C]) bool {
	return s.EqualFunc(other, func(a, b C) bool { return reflect.DeepEqual(a, b) })
}

// EqualFunc is like Equal but compares contexts with eq.
func (s Snapshot[C]) EqualFunc(other Snapshot[C], eq func(a, b C) bool) bool {
	return s.State == other.State && s.Version == other.Version && eq(s.Context, other.Context)
}

// Publication is pushed to observers whenever an actor publishes a snapshot.
type Publication[C any] struct {
	ActorID  string
	Snapshot Snapshot[C]
	// Event is the event that produced the snapshot, nil for the version 0
	// snapshot published by Start.
	Event *ir.Event
}

// Observer receives publications synchronously, in version order, on the
// goroutine that called Start or Send. Observers cannot veto a transition;
// by the time they run it is committed.
type Observer[C any] func(ctx context.Context, p Publication[C])
