// Package fsm implements the finite-state actor runtime.
//
// A Definition is an immutable, validated table of transition rules keyed by
// (state, event kind). An Actor binds one Definition to one context value and
// processes events one at a time:
//
//	def, err := fsm.Define([]ir.StateID{"inactive", "active"}, "inactive",
//	    fsm.Rule[Counter]{From: "inactive", On: "TOGGLE", Target: "active"},
//	    fsm.Rule[Counter]{From: "active", On: "INC", Actions: []fsm.Action[Counter]{inc}},
//	    fsm.Rule[Counter]{From: "active", On: "END", Target: "inactive"},
//	)
//	actor := fsm.NewActor(def, Counter{})
//	snap, _ := actor.Start(ctx)              // inactive, v0
//	next, ok, err := actor.Send(ctx, ir.NewEvent("TOGGLE")) // active, v1
//
// TRANSITIONS:
//
// Send looks up the rule for the current state and the event kind. With no
// rule the event is ignored: nothing runs, the version does not move and Send
// reports ok=false. Otherwise the rule's actions run in declaration order
// against a private copy of the context. If any action fails (or panics) the
// copy is discarded and an ActionFailedError is returned; the actor is left
// exactly as it was. On success the new context and target state are
// committed together and a Snapshot with version+1 is published.
//
// CONCURRENCY:
//
// An Actor has no internal locking and starts no goroutines. Callers must
// serialise Start/Send/Stop per actor (internal/engine does this with a
// single-consumer mailbox). Definitions and Snapshots are read-only and may be
// shared freely.
package fsm
