package queryir

import (
	"strings"

	"github.com/roach88/statekeep/internal/ir"
)

// SourceSnapshots is the only source a Select can read.
const SourceSnapshots = "snapshots"

// Fields an Equals predicate can compare.
const (
	FieldActor   = "actor"
	FieldState   = "state"
	FieldEvent   = "event"
	FieldVersion = "version"

	// ContextPrefix introduces a context path: "context.count".
	ContextPrefix = "context."
)

// Query represents an abstract query over the journal.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select reads snapshots matching Filter, oldest first.
//
// Semantics:
//
//	SELECT <snapshot columns> FROM <from> WHERE <filter> LIMIT <limit>
//
// Example:
//
//	Select{
//	  From: SourceSnapshots,
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "state", Value: ir.IRString("active")},
//	    Equals{Field: "context.count", Value: ir.IRInt(3)},
//	  }},
//	}
type Select struct {
	From   string    // Source name (SourceSnapshots)
	Filter Predicate // WHERE conditions (nil = no filter)
	Limit  int       // Maximum rows (0 = no limit)
}

func (Select) queryNode() {}

// Equals represents a field-equals-literal predicate.
//
// Example:
//
//	Equals{Field: "event", Value: ir.IRString("TOGGLE")}
//
// Context values compare by JSON value, so context.count = 3 does not match
// a context holding the string "3".
type Equals struct {
	Field string     // Field name (see the Field constants)
	Value ir.IRValue // Literal value (constrained to IRValue types)
}

func (Equals) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And is always true.
type And struct {
	Predicates []Predicate // All must be true (empty = always true)
}

func (And) predicateNode() {}

// ContextPath returns the key path of a context field: "context.a.b" gives
// ["a", "b"]. ok is false for fields outside the context.
func ContextPath(field string) (path []string, ok bool) {
	rest, found := strings.CutPrefix(field, ContextPrefix)
	if !found {
		return nil, false
	}
	return strings.Split(rest, "."), true
}
