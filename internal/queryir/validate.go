package queryir

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/statekeep/internal/ir"
)

// keyPattern matches one segment of a context path.
var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that a query can be compiled: a known source, known
// fields and values of the right type for each field. All problems are
// reported, joined into one error.
//
// Validate is a pure function with no side effects.
func Validate(query Query) error {
	v := &validator{}
	v.validateQuery(query)
	return errors.Join(v.errs...)
}

// validator accumulates errors during traversal.
type validator struct {
	errs []error
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addError("nil query")
			return
		}
		v.validateSelect(*query)
	default:
		v.addError("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.From != SourceSnapshots {
		v.addError("unknown source %q: only %q can be queried", sel.From, SourceSnapshots)
	}
	if sel.Limit < 0 {
		v.addError("limit must not be negative, got %d", sel.Limit)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	if eq.Value == nil {
		v.addError("%s: value is required", eq.Field)
		return
	}
	if _, isNull := eq.Value.(ir.IRNull); isNull {
		v.addError("%s: null is not a comparable value", eq.Field)
		return
	}

	switch eq.Field {
	case FieldActor, FieldState, FieldEvent:
		if _, ok := eq.Value.(ir.IRString); !ok {
			v.addError("%s: want a string, got %T", eq.Field, eq.Value)
		}
		return
	case FieldVersion:
		n, ok := eq.Value.(ir.IRInt)
		if !ok {
			v.addError("%s: want an integer, got %T", eq.Field, eq.Value)
		} else if n < 0 {
			v.addError("%s: must not be negative, got %d", eq.Field, n)
		}
		return
	}

	path, ok := ContextPath(eq.Field)
	if !ok {
		v.addError("unknown field %q", eq.Field)
		return
	}
	for _, key := range path {
		if !keyPattern.MatchString(key) {
			v.addError("%s: invalid context key %q", eq.Field, key)
			return
		}
	}
	switch eq.Value.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
	default:
		v.addError("%s: only strings, integers and booleans can be compared, got %T", eq.Field, eq.Value)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		if sub == nil {
			v.addError("nil predicate in and")
			continue
		}
		v.validatePredicate(sub)
	}
}
