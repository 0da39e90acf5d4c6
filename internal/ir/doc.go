// Package ir holds the value model shared by every statekeep package.
//
// It defines the tags a machine is built from (StateID, EventKind), the Event
// type sent to actors, the serialisable MachineSpec produced by the CUE
// compiler, and the IRValue family used for declarative contexts and payloads.
//
// ir imports nothing internal. Constraints that keep snapshots reproducible:
//   - no floats anywhere; numbers are int64
//   - canonical JSON (RFC 8785) is the only encoding used for digests
//   - versions and journal sequence numbers are logical counters, never wall time
package ir
