// Package engine hosts statekeep actors.
//
// An Engine owns actor lifetimes explicitly; there is no global registry.
// Create builds an fsm.Actor for a bound machine and gives it a mailbox and
// a goroutine; Start starts it, and Spawn does both. Send, Stop and Snapshot
// address actors by ID.
//
// CONCURRENCY:
//
// fsm.Actor is single-threaded. The engine keeps it that way: each actor's
// mailbox goroutine is the only caller of its Start, Send and Stop, and requests
// are handled in FIFO order. Callers on any goroutine enqueue a request and
// block on a private reply channel. Snapshot reads an atomically published
// copy and never touches the mailbox.
//
// JOURNAL:
//
// With WithStore, actor rows and every published snapshot are appended to
// the store by an fsm observer. Rows carry a seq from a logical sequence
// that resumes after the store's highest seq, never wall time. Snapshot
// rows are unique per (actor, version), so rewriting one is a no-op.
//
// REPLAY:
//
// Replay rebuilds an actor from its journal and compares snapshot digests
// version by version. Same definition and same journal always give the same
// result.
package engine
