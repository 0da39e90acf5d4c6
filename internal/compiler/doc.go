// Package compiler turns CUE machine definitions into statekeep runtime
// definitions.
//
// Three steps, each usable on its own:
//
//	spec, err := CompileMachine(v)   // CUE value -> ir.MachineSpec
//	errs := Validate(spec, reg)      // collected E1xx errors
//	def, err := Bind(spec, reg)      // ir.MachineSpec -> *fsm.Definition[ir.IRObject]
//
// Actions are referenced by name and resolved through a Registry that holds
// the built-ins (inc, set, copy, unset, append, require, fail) plus any
// custom actions registered by the host program.
package compiler
