package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/ir"
)

func TestLoadFilesToggle(t *testing.T) {
	specs, err := LoadFiles(filepath.Join("..", "..", "testdata", "specs", "toggle.cue"))
	require.NoError(t, err)
	require.Len(t, specs, 1)

	spec := specs[0]
	assert.Equal(t, "toggle", spec.Name)
	assert.Equal(t, ir.StateID("inactive"), spec.Initial)
	assert.Equal(t, ir.IRObject{"count": ir.IRInt(0)}, spec.Context)
	assert.Len(t, spec.Rules, 4)
	assert.Empty(t, Validate(spec, NewRegistry()))
}

func TestLoadFilesErrors(t *testing.T) {
	_, err := LoadFiles()
	require.Error(t, err)

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.cue")
	require.NoError(t, os.WriteFile(empty, []byte("other: 1\n"), 0o644))
	_, err = LoadFiles(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no machines declared")

	bad := filepath.Join(dir, "bad.cue")
	require.NoError(t, os.WriteFile(bad, []byte("machine: m: {initial: 1 & 2}\n"), 0o644))
	_, err = LoadFiles(bad)
	require.Error(t, err)
}

func TestCompileMachinesCollectsErrors(t *testing.T) {
	src := `
machine: good: {
	initial: "a"
	states: ["a"]
}
machine: broken: {
	initial: "a"
	states: ["a"]
	context: ratio: 0.5
}
`
	v := cuecontext.New().CompileString(src, cue.Filename("machines.cue"))
	require.NoError(t, v.Err())

	specs, errs := CompileMachines(v)
	require.Len(t, specs, 1)
	assert.Equal(t, "good", specs[0].Name)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "machine.broken")
	assert.Contains(t, errs[0].Error(), "float")
}

func TestFindMachine(t *testing.T) {
	specs := []*ir.MachineSpec{{Name: "a"}, {Name: "b"}}

	spec, err := FindMachine(specs, "b")
	require.NoError(t, err)
	assert.Same(t, specs[1], spec)

	_, err = FindMachine(specs, "c")
	assert.Error(t, err)
}
