package ir

import (
	"encoding/json"
	"fmt"
)

// StateID is a state tag drawn from a machine's closed state set.
type StateID string

// EventKind is the tag an event is dispatched on.
type EventKind string

// Event is a tagged value sent to an actor. Payload is optional.
type Event struct {
	Kind    EventKind `json:"kind"`
	Payload IRObject  `json:"payload,omitempty"`
}

// NewEvent builds an event from typed payload pairs.
func NewEvent(kind EventKind, pairs ...IRPair) Event {
	ev := Event{Kind: kind}
	if len(pairs) > 0 {
		ev.Payload = NewIRObjectFromPairs(pairs...)
	}
	return ev
}

// Clone returns an event whose payload shares nothing with the receiver.
func (e Event) Clone() Event {
	if e.Payload == nil {
		return e
	}
	return Event{Kind: e.Kind, Payload: e.Payload.Clone()}
}

// MachineSpec is the serialisable form of a declarative machine: the output of
// the CUE compiler and the input of compiler.Bind.
type MachineSpec struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Initial     StateID    `json:"initial"`
	States      []StateID  `json:"states"`
	Context     IRObject   `json:"context"`
	Rules       []RuleSpec `json:"rules"`
}

// RuleSpec is one (state, event) entry of a machine. An empty Target keeps the
// current state.
type RuleSpec struct {
	From    StateID      `json:"from"`
	On      EventKind    `json:"on"`
	Target  StateID      `json:"target,omitempty"`
	Actions []ActionSpec `json:"actions,omitempty"`
}

// ActionSpec names a registered action and its static arguments.
type ActionSpec struct {
	Do   string   `json:"do"`
	Args IRObject `json:"args,omitempty"`
}

// Canonical renders the spec as RFC 8785 canonical JSON.
func (m *MachineSpec) Canonical() ([]byte, error) {
	states := make(IRArray, len(m.States))
	for i, s := range m.States {
		states[i] = IRString(s)
	}

	rules := make(IRArray, len(m.Rules))
	for i, r := range m.Rules {
		rule := IRObject{
			"from": IRString(r.From),
			"on":   IRString(r.On),
		}
		if r.Target != "" {
			rule["target"] = IRString(r.Target)
		}
		if len(r.Actions) > 0 {
			actions := make(IRArray, len(r.Actions))
			for j, a := range r.Actions {
				action := IRObject{"do": IRString(a.Do)}
				if len(a.Args) > 0 {
					action["args"] = a.Args
				}
				actions[j] = action
			}
			rule["actions"] = actions
		}
		rules[i] = rule
	}

	obj := IRObject{
		"name":    IRString(m.Name),
		"initial": IRString(m.Initial),
		"states":  states,
		"context": m.initialContext(),
		"rules":   rules,
	}
	if m.Description != "" {
		obj["description"] = IRString(m.Description)
	}

	data, err := MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("machine %s: %w", m.Name, err)
	}
	return data, nil
}

func (m *MachineSpec) initialContext() IRObject {
	if m.Context == nil {
		return IRObject{}
	}
	return m.Context
}

// UnmarshalMachineSpec decodes a spec written by Canonical.
func UnmarshalMachineSpec(data []byte) (*MachineSpec, error) {
	var spec MachineSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("unmarshal machine spec: %w", err)
	}
	if spec.Context == nil {
		spec.Context = IRObject{}
	}
	return &spec, nil
}
