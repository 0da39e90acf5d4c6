// Package queryir is the query representation for searching the snapshot
// journal.
//
// Queries are built from --where terms on the command line (ParseFilter) or
// directly in Go, checked by Validate, and compiled to SQL by
// internal/querysql:
//
//	[--where terms] → [Query IR] → [SQL over snapshots]
//
// The IR is deliberately small:
//   - Select(from, filter, limit) reads journaled snapshots
//   - Predicates: Equals and And
//
// Fields an Equals can name:
//
//	actor         the actor ID
//	state         the state after the transition
//	event         the kind of event that produced the snapshot
//	version       the snapshot version
//	context.<k>   a context entry; dotted keys reach into nested objects
//
// Query and Predicate are sealed interfaces using the marker method pattern,
// so backends can switch over them exhaustively.
//
// All literal values are ir.IRValue: no floats, no nulls.
package queryir
