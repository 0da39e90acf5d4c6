package compiler

import (
	"errors"
	"fmt"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/statekeep/internal/ir"
)

// MachinesPath is the top-level CUE field machines are declared under.
const MachinesPath = "machine"

// CompileMachines compiles every machine declared under v's "machine" field,
// in declaration order. Errors are collected, one per failing machine, and
// carry the machine's path.
func CompileMachines(v cue.Value) ([]*ir.MachineSpec, []error) {
	machines := v.LookupPath(cue.ParsePath(MachinesPath))
	if !machines.Exists() {
		return nil, nil
	}

	iter, err := machines.Fields()
	if err != nil {
		return nil, []error{fmt.Errorf("%s: %w", MachinesPath, formatCUEError(err))}
	}

	var specs []*ir.MachineSpec
	var errs []error
	for iter.Next() {
		spec, err := CompileMachine(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", MachinesPath, iter.Label(), err))
			continue
		}
		specs = append(specs, spec)
	}
	return specs, errs
}

// LoadFiles loads CUE files as one instance and compiles their machines.
// The files must share a directory and package, as for the cue tool.
func LoadFiles(files ...string) ([]*ir.MachineSpec, error) {
	if len(files) == 0 {
		return nil, errors.New("load: no CUE files given")
	}

	abs := make([]string, len(files))
	for i, f := range files {
		path, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
		abs[i] = path
	}

	instances := load.Instances(abs, &load.Config{})
	if len(instances) == 0 {
		return nil, errors.New("load: no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load: %w", formatCUEError(inst.Err))
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("build: %w", formatCUEError(err))
	}

	specs, errs := CompileMachines(value)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("load: no machines declared under %q", MachinesPath)
	}
	return specs, nil
}

// FindMachine returns the spec named name.
func FindMachine(specs []*ir.MachineSpec, name string) (*ir.MachineSpec, error) {
	for _, spec := range specs {
		if spec.Name == name {
			return spec, nil
		}
	}
	return nil, fmt.Errorf("machine %q not found", name)
}
