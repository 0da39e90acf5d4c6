package compiler

import (
	"fmt"

	"github.com/roach88/statekeep/internal/fsm"
	"github.com/roach88/statekeep/internal/ir"
)

// Bind turns a compiled spec into a runtime definition, resolving every
// action through reg. A nil reg uses the built-ins.
//
// Structural problems surface as fsm.MalformedDefinitionError or
// fsm.ConflictingRuleError; unknown actions and bad arguments as a plain
// error naming the rule.
func Bind(spec *ir.MachineSpec, reg *Registry) (*fsm.Definition[ir.IRObject], error) {
	if reg == nil {
		reg = NewRegistry()
	}

	rules := make([]fsm.Rule[ir.IRObject], len(spec.Rules))
	for i, rs := range spec.Rules {
		rule := fsm.Rule[ir.IRObject]{
			From:   rs.From,
			On:     rs.On,
			Target: rs.Target,
		}
		for j, as := range rs.Actions {
			action, err := reg.Build(as)
			if err != nil {
				return nil, fmt.Errorf("bind %s: rules[%d] (%s, %s) actions[%d]: %w",
					spec.Name, i, rs.From, rs.On, j, err)
			}
			rule.Actions = append(rule.Actions, action)
		}
		rules[i] = rule
	}

	def, err := fsm.Define(spec.States, spec.Initial, rules...)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
	}
	return def, nil
}
