package store

import "github.com/roach88/statekeep/internal/ir"

// ActorRecord is one journaled actor.
type ActorRecord struct {
	ID             string      `json:"id"`
	Machine        string      `json:"machine"`
	SpecHash       string      `json:"spec_hash"`
	Spec           string      `json:"spec"`
	InitialContext ir.IRObject `json:"initial_context"`
	Strict         bool        `json:"strict"`
	RuntimeVersion string      `json:"runtime_version"`
	IRVersion      string      `json:"ir_version"`
	Seq            int64       `json:"seq"`
}

// SnapshotRecord is one published snapshot. Event is nil for version 0.
type SnapshotRecord struct {
	ActorID string      `json:"actor_id"`
	Version int64       `json:"version"`
	State   ir.StateID  `json:"state"`
	Context ir.IRObject `json:"context"`
	Event   *ir.Event   `json:"event,omitempty"`
	Digest  string      `json:"digest"`
	Seq     int64       `json:"seq"`
}

// StopRecord marks the version at which an actor was stopped.
type StopRecord struct {
	ActorID string `json:"actor_id"`
	Version int64  `json:"version"`
	Seq     int64  `json:"seq"`
}
