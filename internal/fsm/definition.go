package fsm

import (
	"fmt"
	"slices"

	"github.com/roach88/statekeep/internal/ir"
)

// Action derives the next context from the current one and the triggering
// event. Returning an error aborts the whole transition.
//
// Actions receive a private copy of the context and of the event payload, so
// mutating either in place never leaks outside the transition.
type Action[C any] func(c C, ev ir.Event) (C, error)

// Rule maps (From, On) to an optional target state and an ordered list of
// actions. An empty Target keeps the current state.
type Rule[C any] struct {
	From    ir.StateID
	On      ir.EventKind
	Target  ir.StateID
	Actions []Action[C]
}

type ruleKey struct {
	state ir.StateID
	kind  ir.EventKind
}

// Definition is a validated, immutable machine description. It is safe to
// share one Definition between any number of actors and goroutines.
type Definition[C any] struct {
	states  []ir.StateID
	members map[ir.StateID]struct{}
	initial ir.StateID
	rules   []Rule[C]
	table   map[ruleKey]int
}

// Define validates and builds a Definition.
//
// It fails with MalformedDefinitionError when the state set is empty or has
// empty/duplicate tags, when initial is not a member, or when a rule names an
// unknown source or target state, an empty event kind or a nil action. Two
// rules for the same (state, event) pair fail with ConflictingRuleError.
// Inputs are copied; later changes by the caller have no effect.
func Define[C any](states []ir.StateID, initial ir.StateID, rules ...Rule[C]) (*Definition[C], error) {
	if len(states) == 0 {
		return nil, &MalformedDefinitionError{Reason: "state set is empty", Rule: -1}
	}

	d := &Definition[C]{
		states:  slices.Clone(states),
		members: make(map[ir.StateID]struct{}, len(states)),
		initial: initial,
		rules:   make([]Rule[C], 0, len(rules)),
		table:   make(map[ruleKey]int, len(rules)),
	}

	for _, s := range states {
		if s == "" {
			return nil, &MalformedDefinitionError{Reason: "state tag is empty", Rule: -1}
		}
		if _, dup := d.members[s]; dup {
			return nil, &MalformedDefinitionError{Reason: fmt.Sprintf("state %q declared twice", s), State: s, Rule: -1}
		}
		d.members[s] = struct{}{}
	}

	if !d.Has(initial) {
		return nil, &MalformedDefinitionError{Reason: fmt.Sprintf("initial state %q is not in the state set", initial), State: initial, Rule: -1}
	}

	for i, r := range rules {
		if err := d.checkRule(i, r); err != nil {
			return nil, err
		}
		key := ruleKey{state: r.From, kind: r.On}
		if first, dup := d.table[key]; dup {
			return nil, &ConflictingRuleError{State: r.From, Event: r.On, First: first, Second: i}
		}
		d.table[key] = i
		r.Actions = slices.Clone(r.Actions)
		d.rules = append(d.rules, r)
	}

	return d, nil
}

// MustDefine is like Define but panics on error.
// Use only in tests or for definitions known to be valid.
func MustDefine[C any](states []ir.StateID, initial ir.StateID, rules ...Rule[C]) *Definition[C] {
	d, err := Define(states, initial, rules...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Definition[C]) checkRule(i int, r Rule[C]) error {
	malformed := func(reason string) error {
		return &MalformedDefinitionError{Reason: reason, State: r.From, Event: r.On, Rule: i}
	}
	if !d.Has(r.From) {
		return malformed(fmt.Sprintf("source state %q is not in the state set", r.From))
	}
	if r.On == "" {
		return malformed("event kind is empty")
	}
	if r.Target != "" && !d.Has(r.Target) {
		return malformed(fmt.Sprintf("target state %q is not in the state set", r.Target))
	}
	for j, a := range r.Actions {
		if a == nil {
			return malformed(fmt.Sprintf("action %d is nil", j))
		}
	}
	return nil
}

// States returns the state set in declaration order.
func (d *Definition[C]) States() []ir.StateID {
	return slices.Clone(d.states)
}

// Initial returns the initial state.
func (d *Definition[C]) Initial() ir.StateID {
	return d.initial
}

// Has reports whether s is in the state set.
func (d *Definition[C]) Has(s ir.StateID) bool {
	_, ok := d.members[s]
	return ok
}

// Rules returns the rules in declaration order.
func (d *Definition[C]) Rules() []Rule[C] {
	out := make([]Rule[C], len(d.rules))
	for i, r := range d.rules {
		r.Actions = slices.Clone(r.Actions)
		out[i] = r
	}
	return out
}

// Lookup returns the rule for (state, kind).
func (d *Definition[C]) Lookup(state ir.StateID, kind ir.EventKind) (Rule[C], bool) {
	r := d.lookup(state, kind)
	if r == nil {
		return Rule[C]{}, false
	}
	out := *r
	out.Actions = slices.Clone(r.Actions)
	return out, true
}

// Handles reports whether an event of kind has a rule in state.
func (d *Definition[C]) Handles(state ir.StateID, kind ir.EventKind) bool {
	return d.lookup(state, kind) != nil
}

// EventKinds returns the event kinds handled in state, sorted.
func (d *Definition[C]) EventKinds(state ir.StateID) []ir.EventKind {
	var kinds []ir.EventKind
	for _, r := range d.rules {
		if r.From == state {
			kinds = append(kinds, r.On)
		}
	}
	slices.Sort(kinds)
	return kinds
}

func (d *Definition[C]) lookup(state ir.StateID, kind ir.EventKind) *Rule[C] {
	i, ok := d.table[ruleKey{state: state, kind: kind}]
	if !ok {
		return nil
	}
	return &d.rules[i]
}
