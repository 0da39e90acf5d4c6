// Package store provides the SQLite-backed snapshot journal.
//
// The journal is append-only and records, per actor:
//   - Actors: the machine spec (canonical JSON), its hash and the initial context
//   - Snapshots: every published snapshot with the event that produced it
//   - Stops: the version at which the actor was stopped
//
// The journal is an observation log. It feeds the trace and replay commands
// and the scenario harness; actors are never rehydrated from it.
//
// Ordering:
//   - snapshots of one actor are read ORDER BY version ASC
//   - cross-actor reads use ORDER BY seq ASC, id COLLATE BINARY ASC
//   - seq is a logical counter assigned by the writer, never a timestamp
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// Context and payload columns hold RFC 8785 canonical JSON from internal/ir.
package store
