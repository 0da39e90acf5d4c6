package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/statekeep/internal/compiler"
	"github.com/roach88/statekeep/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledMachine is a compiled machine together with its spec hash.
type CompiledMachine struct {
	*ir.MachineSpec
	SpecHash string `json:"spec_hash"`
}

// CompilationResult holds the compiled machines.
type CompilationResult struct {
	Machines []CompiledMachine `json:"machines"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	MachineCount int
	StateCount   int
	RuleCount    int
	ActionCount  int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE machine specs to canonical IR",
		Long: `Compile CUE machine specs to canonical IR format.

Every machine declared under "machine" is compiled to a spec with its
rules sorted by (state, event), and identified by a spec hash over its
canonical JSON. Actors journaled under one hash replay against any spec
with the same hash.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{Machines: make([]CompiledMachine, 0, len(loadResult.Machines))}
	for _, spec := range loadResult.Machines {
		formatter.VerboseLog("Compiling machine: %s", spec.Name)
		hash, err := ir.SpecHash(spec)
		if err != nil {
			return outputCompileError(formatter, ErrCodeCompileFailed, err.Error(), nil)
		}
		result.Machines = append(result.Machines, CompiledMachine{MachineSpec: spec, SpecHash: hash})
	}

	stats := calculateStats(result)

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{MachineCount: len(result.Machines)}
	for _, m := range result.Machines {
		stats.StateCount += len(m.States)
		stats.RuleCount += len(m.Rules)
		for _, r := range m.Rules {
			stats.ActionCount += len(r.Actions)
		}
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	// Human-readable text output
	fmt.Fprintf(formatter.Writer, "✓ Compiled %d machine(s): %d state(s), %d rule(s), %d action(s)\n\n",
		stats.MachineCount, stats.StateCount, stats.RuleCount, stats.ActionCount)

	fmt.Fprintln(formatter.Writer, "Machines:")
	for _, m := range result.Machines {
		fmt.Fprintf(formatter.Writer, "  %s: initial %s, %d state(s), %d rule(s)\n",
			m.Name, m.Initial, len(m.States), len(m.Rules))
		fmt.Fprintf(formatter.Writer, "    spec_hash %s\n", m.SpecHash)
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical IR to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		if err := formatter.Respond(response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return ErrCodeCompileFailed, compileErr.Field + ": " + compileErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the compiled machines as canonical JSON, so the file
// is byte-identical for identical specs.
func writeIRToFile(result *CompilationResult, filename string) error {
	machines := make(ir.IRArray, len(result.Machines))
	for i, m := range result.Machines {
		data, err := m.Canonical()
		if err != nil {
			return err
		}
		var obj ir.IRObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("decoding canonical IR: %w", err)
		}
		obj["spec_hash"] = ir.IRString(m.SpecHash)
		machines[i] = obj
	}

	data, err := ir.MarshalCanonical(ir.IRObject{"machines": machines})
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
