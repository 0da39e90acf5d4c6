package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/ir"
)

// executeCompile runs compile and returns stdout, stderr and the error.
func executeCompile(t *testing.T, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewCompileCommand(opts)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCompileSharedSpecs(t *testing.T) {
	out, _, err := executeCompile(t, &RootOptions{Format: "text"}, specsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled 2 machine(s): 5 state(s), 8 rule(s), 7 action(s)")
	assert.Contains(t, out, "toggle: initial inactive, 2 state(s), 4 rule(s)")
	assert.Contains(t, out, "spec_hash ")
}

func TestCompileSharedSpecsJSON(t *testing.T) {
	out, _, err := executeCompile(t, &RootOptions{Format: "json"}, specsDir)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Machines, 2)
	for _, m := range resp.Data.Machines {
		assert.Len(t, m.SpecHash, 64, m.Name)
	}
}

func TestCompileOutputToFile(t *testing.T) {
	tmpDir := t.TempDir()
	first := filepath.Join(tmpDir, "compiled.json")

	out, _, err := executeCompile(t, &RootOptions{Format: "text"}, specsDir, "--output", first)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote canonical IR to")

	data, err := os.ReadFile(first)
	require.NoError(t, err)

	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Machines, 2)

	// Hashes in the file match a fresh hash of the decoded spec.
	for _, m := range result.Machines {
		hash, err := ir.SpecHash(m.MachineSpec)
		require.NoError(t, err)
		assert.Equal(t, hash, m.SpecHash, m.Name)
	}

	// Same specs, same bytes.
	second := filepath.Join(tmpDir, "again.json")
	_, _, err = executeCompile(t, &RootOptions{Format: "text"}, specsDir, "-o", second)
	require.NoError(t, err)
	again, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestCompileFailures(t *testing.T) {
	tests := []struct {
		name     string
		dir      func(t *testing.T) string
		wantErr  string // in the returned error
		wantOut  []string
		exitCode int
	}{
		{
			name:     "missing directory",
			dir:      func(*testing.T) string { return "/nonexistent/directory/path" },
			wantErr:  "E005",
			exitCode: ExitCommandError,
		},
		{
			name:     "no CUE files",
			dir:      func(t *testing.T) string { return t.TempDir() },
			wantErr:  "E003",
			exitCode: ExitCommandError,
		},
		{
			name: "no machines",
			dir: func(t *testing.T) string {
				return writeSpec(t, "empty.cue", "package test\n\nother: 1\n")
			},
			wantOut:  []string{"E009"},
			exitCode: ExitCommandError,
		},
		{
			name: "states not a list",
			dir: func(t *testing.T) string {
				return writeSpec(t, "bad.cue", `
package test

machine: bad: {
	initial: "a"
	states: "a"
}
`)
			},
			wantOut:  []string{"✗ Compilation failed", "machine.bad.states: states must be a list of strings"},
			exitCode: ExitCommandError,
		},
		{
			name: "float argument",
			dir: func(t *testing.T) string {
				return writeSpec(t, "float.cue", `
package test

machine: bad: {
	initial: "a"
	states: ["a"]
	on: a: BUMP: {actions: [{do: "inc", field: "n", by: 0.5}]}
}
`)
			},
			wantOut:  []string{"float", "forbidden"},
			exitCode: ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := executeCompile(t, &RootOptions{Format: "text"}, tt.dir(t))
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			for _, s := range tt.wantOut {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestCompileInvalidSpecJSON(t *testing.T) {
	dir := writeSpec(t, "bad.cue", `
package test

machine: bad: {
	initial: "a"
	states: ["a"]
	on: a: GO: {actions: [{by: 1}]}
}
`)

	out, _, err := executeCompile(t, &RootOptions{Format: "json"}, dir)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCompileFailed, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "do must name an action")
}

func TestCompileVerboseGoesToStderr(t *testing.T) {
	dir := writeSpec(t, "demo.cue", `
package test

machine: demo: {
	initial: "a"
	states: ["a"]
}
`)

	out, diag, err := executeCompile(t, &RootOptions{Format: "text", Verbose: true}, dir)
	require.NoError(t, err)
	assert.Contains(t, diag, "Compiling machine: demo")
	assert.NotContains(t, out, "Compiling machine")
}

func TestFindCUEFiles(t *testing.T) {
	tmpDir := t.TempDir()

	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0o755))
	for path, body := range map[string]string{
		filepath.Join(tmpDir, "root.cue"):   "package test",
		filepath.Join(tmpDir, "notcue.txt"): "not a cue file",
		filepath.Join(subDir, "nested.cue"): "package test",
	} {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	files, err := FindCUEFiles(tmpDir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestCalculateStats(t *testing.T) {
	result := &CompilationResult{
		Machines: []CompiledMachine{
			{MachineSpec: &ir.MachineSpec{
				Name:   "a",
				States: []ir.StateID{"x", "y"},
				Rules: []ir.RuleSpec{
					{From: "x", On: "GO", Target: "y", Actions: []ir.ActionSpec{{Do: "inc"}, {Do: "set"}}},
					{From: "y", On: "BACK", Target: "x"},
				},
			}},
			{MachineSpec: &ir.MachineSpec{
				Name:   "b",
				States: []ir.StateID{"z"},
				Rules:  []ir.RuleSpec{{From: "z", On: "POKE", Actions: []ir.ActionSpec{{Do: "inc"}}}},
			}},
		},
	}

	stats := calculateStats(result)

	assert.Equal(t, 2, stats.MachineCount)
	assert.Equal(t, 3, stats.StateCount)
	assert.Equal(t, 3, stats.RuleCount)
	assert.Equal(t, 3, stats.ActionCount)
}

func TestFindMachineSelection(t *testing.T) {
	machines := []*ir.MachineSpec{{Name: "door"}, {Name: "toggle"}}

	_, err := findMachine(machines, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--machine is required")

	m, err := findMachine(machines, "toggle")
	require.NoError(t, err)
	assert.Equal(t, "toggle", m.Name)

	m, err = findMachine(machines[:1], "")
	require.NoError(t, err)
	assert.Equal(t, "door", m.Name)

	_, err = findMachine(machines, "lamp")
	require.Error(t, err)
}
