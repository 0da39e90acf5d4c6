package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/statekeep/internal/ir"
)

// CompileMachine parses a CUE value into a MachineSpec.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The value is the machine struct itself:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	spec, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.toggle")))
//
// A rule is either a target state string or a struct with optional target
// and actions. Rules are emitted sorted by (state, event) so the spec hash
// does not depend on source layout.
func CompileMachine(v cue.Value) (*ir.MachineSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.MachineSpec{
		Context: ir.IRObject{},
	}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	var err error
	if spec.Description, err = optionalString(v, "description"); err != nil {
		return nil, err
	}

	initial, err := optionalString(v, "initial")
	if err != nil {
		return nil, err
	}
	spec.Initial = ir.StateID(initial)

	spec.States, err = parseStates(v)
	if err != nil {
		return nil, err
	}

	ctxVal := v.LookupPath(cue.ParsePath("context"))
	if ctxVal.Exists() {
		value, err := cueToIR(ctxVal, "context")
		if err != nil {
			return nil, err
		}
		obj, ok := value.(ir.IRObject)
		if !ok {
			return nil, &CompileError{
				Field:   "context",
				Message: "context must be a struct",
				Pos:     ctxVal.Pos(),
			}
		}
		spec.Context = obj
	}

	spec.Rules, err = parseRules(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: "must be a string",
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// parseStates reads the states list. Order is preserved.
func parseStates(v cue.Value) ([]ir.StateID, error) {
	statesVal := v.LookupPath(cue.ParsePath("states"))
	if !statesVal.Exists() {
		return nil, nil
	}

	iter, err := statesVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "states",
			Message: "states must be a list of strings",
			Pos:     statesVal.Pos(),
		}
	}

	var states []ir.StateID
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("states[%d]", len(states)),
				Message: "state must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		states = append(states, ir.StateID(s))
	}
	return states, nil
}

// parseRules reads the on: {state: {EVENT: rule}} table.
func parseRules(v cue.Value) ([]ir.RuleSpec, error) {
	onVal := v.LookupPath(cue.ParsePath("on"))
	if !onVal.Exists() {
		return nil, nil
	}

	stateIter, err := onVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []ir.RuleSpec
	for stateIter.Next() {
		from := stateIter.Label()

		eventIter, err := stateIter.Value().Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}

		for eventIter.Next() {
			on := eventIter.Label()
			rule, err := parseRule(eventIter.Value(), fmt.Sprintf("on.%s.%s", from, on))
			if err != nil {
				return nil, err
			}
			rule.From = ir.StateID(from)
			rule.On = ir.EventKind(on)
			rules = append(rules, rule)
		}
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].From != rules[j].From {
			return rules[i].From < rules[j].From
		}
		return rules[i].On < rules[j].On
	})
	return rules, nil
}

func parseRule(v cue.Value, field string) (ir.RuleSpec, error) {
	var rule ir.RuleSpec

	// Shorthand: EVENT: "target"
	if target, err := v.String(); err == nil {
		rule.Target = ir.StateID(target)
		return rule, nil
	}

	if v.IncompleteKind() != cue.StructKind {
		return rule, &CompileError{
			Field:   field,
			Message: "rule must be a target state or a struct with target and actions",
			Pos:     v.Pos(),
		}
	}

	target, err := optionalString(v, "target")
	if err != nil {
		return rule, err
	}
	rule.Target = ir.StateID(target)

	actionsVal := v.LookupPath(cue.ParsePath("actions"))
	if !actionsVal.Exists() {
		return rule, nil
	}

	iter, err := actionsVal.List()
	if err != nil {
		return rule, &CompileError{
			Field:   field + ".actions",
			Message: "actions must be a list",
			Pos:     actionsVal.Pos(),
		}
	}

	for iter.Next() {
		action, err := parseAction(iter.Value(), fmt.Sprintf("%s.actions[%d]", field, len(rule.Actions)))
		if err != nil {
			return rule, err
		}
		rule.Actions = append(rule.Actions, action)
	}
	return rule, nil
}

// parseAction reads {do: "name", ...args}. Every field other than do is an
// argument.
func parseAction(v cue.Value, field string) (ir.ActionSpec, error) {
	value, err := cueToIR(v, field)
	if err != nil {
		return ir.ActionSpec{}, err
	}
	obj, ok := value.(ir.IRObject)
	if !ok {
		return ir.ActionSpec{}, &CompileError{
			Field:   field,
			Message: "action must be a struct with a do field",
			Pos:     v.Pos(),
		}
	}

	do, ok := obj["do"].(ir.IRString)
	if !ok || do == "" {
		return ir.ActionSpec{}, &CompileError{
			Field:   field + ".do",
			Message: "do must name an action",
			Pos:     v.Pos(),
		}
	}
	delete(obj, "do")

	action := ir.ActionSpec{Do: string(do)}
	if len(obj) > 0 {
		action.Args = obj
	}
	return action, nil
}

// cueToIR converts a concrete CUE value into an IRValue.
// Floats and null are forbidden.
func cueToIR(v cue.Value, field string) (ir.IRValue, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "value must be concrete",
			Pos:     v.Pos(),
		}
	}

	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil

	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: "integer does not fit in int64",
				Pos:     v.Pos(),
			}
		}
		return ir.IRInt(n), nil

	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for iter.Next() {
			elem, err := cueToIR(iter.Value(), fmt.Sprintf("%s[%d]", field, len(arr)))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil

	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			label := iter.Label()
			elem, err := cueToIR(iter.Value(), field+"."+label)
			if err != nil {
				return nil, err
			}
			obj[label] = elem
		}
		return obj, nil

	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float values are forbidden; use int instead",
			Pos:     v.Pos(),
		}

	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
