package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: one actor of one machine driven
// through a list of steps, then checked by assertions.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists the CUE files to compile. Relative paths are resolved
	// against the base path given to LoadScenarioWithBasePath.
	Specs []string `yaml:"specs"`

	// Machine names the machine the actor runs.
	Machine string `yaml:"machine"`

	// Context overrides keys of the machine's default context.
	Context map[string]any `yaml:"context,omitempty"`

	// Strict makes unhandled events fail with UNHANDLED_EVENT.
	Strict bool `yaml:"strict,omitempty"`

	// Steps are executed in order. Exactly one of start, send or stop is
	// set per step.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final snapshot and the trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one lifecycle operation or event delivery.
type Step struct {
	// Start starts the actor.
	Start bool `yaml:"start,omitempty"`

	// Send is the kind of event to deliver.
	Send string `yaml:"send,omitempty"`

	// Payload is the event payload (send only).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Times repeats a send. Zero means once.
	Times int `yaml:"times,omitempty"`

	// Stop stops the actor.
	Stop bool `yaml:"stop,omitempty"`

	// Expect is checked after the step (after the last repetition of a
	// repeated send).
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of a step against the actor's latest snapshot.
// Unset fields are not checked.
type Expect struct {
	State string `yaml:"state,omitempty"`

	// Context is a subset match: only listed keys are compared.
	Context map[string]any `yaml:"context,omitempty"`

	Version *int64 `yaml:"version,omitempty"`

	// Ignored is true when a send matched no rule.
	Ignored *bool `yaml:"ignored,omitempty"`

	// Error is the expected error code, e.g. ACTION_FAILED. A step without
	// one must not fail.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final snapshot or the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": the actor ends in State
	// - "final_version": the actor ends at Version
	// - "final_context": the final context contains Context (subset match)
	// - "trace_count": the journal holds Count snapshots
	// - "trace_states": the journaled states are exactly States
	// - "trace_events": the journaled events are exactly Events
	Type string `yaml:"type"`

	State   string         `yaml:"state,omitempty"`
	Version *int64         `yaml:"version,omitempty"`
	Context map[string]any `yaml:"context,omitempty"`
	Count   *int           `yaml:"count,omitempty"`
	States  []string       `yaml:"states,omitempty"`
	Events  []string       `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState   = "final_state"
	AssertFinalVersion = "final_version"
	AssertFinalContext = "final_context"
	AssertTraceCount   = "trace_count"
	AssertTraceStates  = "trace_states"
	AssertTraceEvents  = "trace_events"
)

// LoadScenario reads and parses a scenario YAML file. Relative spec paths
// are resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// relative spec paths against basePath. Unknown fields are rejected so typos
// such as "assertion:" fail loudly.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve before validation so existence checks see real paths.
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}

	if s.Machine == "" {
		return fmt.Errorf("machine is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	ops := 0
	if step.Start {
		ops++
	}
	if step.Send != "" {
		ops++
	}
	if step.Stop {
		ops++
	}
	if ops != 1 {
		return fmt.Errorf("steps[%d]: exactly one of start, send or stop is required", index)
	}

	if step.Send == "" {
		if step.Payload != nil {
			return fmt.Errorf("steps[%d]: payload is only valid with send", index)
		}
		if step.Times != 0 {
			return fmt.Errorf("steps[%d]: times is only valid with send", index)
		}
	}
	if step.Times < 0 {
		return fmt.Errorf("steps[%d]: times must be non-negative", index)
	}
	if step.Expect != nil && step.Expect.Ignored != nil && step.Send == "" {
		return fmt.Errorf("steps[%d].expect: ignored is only valid with send", index)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	case AssertFinalVersion:
		if a.Version == nil {
			return fmt.Errorf("assertions[%d]: version is required for final_version", index)
		}
	case AssertFinalContext:
		if len(a.Context) == 0 {
			return fmt.Errorf("assertions[%d]: context is required for final_context", index)
		}
	case AssertTraceCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for trace_count", index)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceStates:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for trace_states", index)
		}
	case AssertTraceEvents:
		if a.Events == nil {
			return fmt.Errorf("assertions[%d]: events list is required for trace_events", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
