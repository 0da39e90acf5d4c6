package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/statekeep/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrMissingInitial     = "E101" // initial state is required
	ErrNoStates           = "E102" // at least one state required
	ErrUnknownInitial     = "E103" // initial is not a declared state
	ErrUnknownTarget      = "E104" // rule target is not a declared state
	ErrDuplicateState     = "E105" // state declared twice
	ErrUnknownSourceState = "E106" // rule source is not a declared state
	ErrUnknownAction      = "E107" // action name not registered
	ErrInvalidActionArg   = "E108" // action rejected its arguments
	ErrInvalidTag         = "E109" // malformed state or event tag
	ErrDuplicateRule      = "E110" // two rules for one (state, event)
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// tagPattern matches state and event tags: an identifier, optionally with
// dots and dashes ("active", "door.open", "TIME-OUT").
var tagPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// Validate checks a compiled machine against reg (nil means built-ins).
// Returns all errors found (does not fail-fast), in spec order.
func Validate(spec *ir.MachineSpec, reg *Registry) []ValidationError {
	if reg == nil {
		reg = NewRegistry()
	}

	var errs []ValidationError

	// E102: at least one state
	if len(spec.States) == 0 {
		errs = append(errs, ValidationError{
			Field:   "states",
			Message: "at least one state is required",
			Code:    ErrNoStates,
		})
	}

	states := make(map[ir.StateID]bool, len(spec.States))
	for i, s := range spec.States {
		if !tagPattern.MatchString(string(s)) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("states[%d]", i),
				Message: fmt.Sprintf("invalid state name %q", s),
				Code:    ErrInvalidTag,
			})
		}
		if states[s] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("states[%d]", i),
				Message: fmt.Sprintf("duplicate state name: %q", s),
				Code:    ErrDuplicateState,
			})
		}
		states[s] = true
	}

	// E101/E103: initial state
	switch {
	case strings.TrimSpace(string(spec.Initial)) == "":
		errs = append(errs, ValidationError{
			Field:   "initial",
			Message: "initial state is required",
			Code:    ErrMissingInitial,
		})
	case !states[spec.Initial]:
		errs = append(errs, ValidationError{
			Field:   "initial",
			Message: fmt.Sprintf("initial state %q is not declared in states", spec.Initial),
			Code:    ErrUnknownInitial,
		})
	}

	type ruleKey struct {
		from ir.StateID
		on   ir.EventKind
	}
	seen := make(map[ruleKey]int, len(spec.Rules))

	for i, rule := range spec.Rules {
		field := fmt.Sprintf("rules[%d]", i)

		if !states[rule.From] {
			errs = append(errs, ValidationError{
				Field:   field + ".from",
				Message: fmt.Sprintf("source state %q is not declared in states", rule.From),
				Code:    ErrUnknownSourceState,
			})
		}

		if !tagPattern.MatchString(string(rule.On)) {
			errs = append(errs, ValidationError{
				Field:   field + ".on",
				Message: fmt.Sprintf("invalid event kind %q", rule.On),
				Code:    ErrInvalidTag,
			})
		}

		key := ruleKey{rule.From, rule.On}
		if first, dup := seen[key]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("(%s, %s) already handled by rules[%d]", rule.From, rule.On, first),
				Code:    ErrDuplicateRule,
			})
		} else {
			seen[key] = i
		}

		if rule.Target != "" && !states[rule.Target] {
			errs = append(errs, ValidationError{
				Field:   field + ".target",
				Message: fmt.Sprintf("target state %q is not declared in states", rule.Target),
				Code:    ErrUnknownTarget,
			})
		}

		for j, action := range rule.Actions {
			actionField := fmt.Sprintf("%s.actions[%d]", field, j)
			if !reg.Has(action.Do) {
				errs = append(errs, ValidationError{
					Field:   actionField + ".do",
					Message: fmt.Sprintf("unknown action %q", action.Do),
					Code:    ErrUnknownAction,
				})
				continue
			}
			if _, err := reg.Build(action); err != nil {
				errs = append(errs, ValidationError{
					Field:   actionField,
					Message: err.Error(),
					Code:    ErrInvalidActionArg,
				})
			}
		}
	}

	return errs
}
