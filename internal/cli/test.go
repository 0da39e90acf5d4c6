package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/statekeep/internal/harness"
)

// Golden file outcomes reported per scenario.
const (
	GoldenNone       = "none"       // no golden file next to the scenario
	GoldenMatched    = "matched"    // trace equals the golden file
	GoldenMismatched = "mismatched" // trace differs from the golden file
	GoldenUpdated    = "updated"    // golden file rewritten (--update)
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name     string   `json:"name"`
	File     string   `json:"file"`
	Pass     bool     `json:"pass"`
	ActorID  string   `json:"actor_id,omitempty"`
	Versions int      `json:"versions"` // journaled snapshots
	Golden   string   `json:"golden"`
	Errors   []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <specs-dir> <scenarios-dir>",
		Short: "Run scenario files against machine specs",
		Long: `Run scenario files against machine specs.

Each scenario creates one actor, drives it through start, send and stop
steps, and checks step expectations and final assertions. When a golden
file exists next to the scenarios (golden/<name>.golden) the journaled
trace must match it byte for byte. Spec paths in scenarios are resolved
against the specs directory.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  statekeep test ./specs ./scenarios
  statekeep test ./specs ./scenarios --filter "toggle_*"
  statekeep test ./specs ./scenarios --update
  statekeep test ./specs ./scenarios --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, specsDir, scenariosDir string, cmd *cobra.Command) error {
	for _, dir := range []struct{ label, path string }{
		{"specs", specsDir},
		{"scenarios", scenariosDir},
	} {
		if _, err := os.Stat(dir.path); errors.Is(err, fs.ErrNotExist) {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s directory not found: %s", dir.label, dir.path))
		}
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		formatter.VerboseLog("Running %s", file)
		sr := runScenario(ctx, file, specsDir, opts.Update)
		reportScenario(formatter, sr)

		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	if result.Total == 0 {
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}
	return outputTestText(formatter, result)
}

// findScenarioFiles walks dir for .yaml and .yml files in lexical order. A
// filter is a glob matched against the file name without its extension.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}

		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario loads, runs and golden-checks one scenario file. Every
// problem ends up in Errors; a scenario passes only with none.
func runScenario(ctx context.Context, file, specsDir string, update bool) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file, Golden: GoldenNone}

	scenario, err := harness.LoadScenarioWithBasePath(file, specsDir)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("Load error: %v", err)}
		return sr
	}
	sr.Name = scenario.Name

	result, err := harness.Run(ctx, scenario)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("Execution error: %v", err)}
		return sr
	}
	sr.ActorID = result.ActorID
	sr.Versions = len(result.Trace)
	sr.Errors = append(sr.Errors, result.Errors...)

	trace, err := harness.GoldenTrace(scenario.Name, scenario.Machine, result)
	if err == nil {
		sr.Golden, err = checkGolden(goldenFilePath(file), trace, update)
	}
	switch {
	case err != nil:
		sr.Errors = append(sr.Errors, fmt.Sprintf("Golden file error: %v", err))
	case sr.Golden == GoldenMismatched:
		sr.Errors = append(sr.Errors, "Golden file mismatch (run with --update to regenerate)")
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

// goldenFilePath returns golden/<name>.golden beside the scenario file.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// checkGolden compares trace with the golden file at path, or rewrites the
// file when update is set. A missing golden file is not a failure.
func checkGolden(path string, trace []byte, update bool) (string, error) {
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return GoldenNone, fmt.Errorf("create golden directory: %w", err)
		}
		if err := os.WriteFile(path, trace, 0o644); err != nil {
			return GoldenNone, fmt.Errorf("write golden file: %w", err)
		}
		return GoldenUpdated, nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return GoldenNone, nil
	}
	if err != nil {
		return GoldenNone, fmt.Errorf("read golden file: %w", err)
	}
	if bytes.Equal(want, trace) {
		return GoldenMatched, nil
	}
	return GoldenMismatched, nil
}

// reportScenario prints one scenario's line in text mode.
func reportScenario(formatter *OutputFormatter, sr ScenarioResult) {
	if formatter.Format == "json" {
		return
	}
	w := formatter.Writer
	if sr.Pass {
		if sr.Golden == GoldenUpdated {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
		} else {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
		}
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, msg := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}

func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "SCENARIO_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := formatter.Respond(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
