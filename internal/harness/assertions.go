package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/statekeep/internal/engine"
	"github.com/roach88/statekeep/internal/ir"
)

// AssertionError is returned when an assertion fails. It carries the trace
// so a failure can be read without rerunning the scenario.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		event := string(ev.Event)
		if event == "" {
			event = "(start)"
		}
		fmt.Fprintf(&buf, "  [v%d] %s -> %s %s\n", ev.Version, event, ev.State, canonicalString(ev.Context))
	}

	return buf.String()
}

func assertFinalState(result *Result, assertion Assertion) error {
	if string(result.Final.State) == assertion.State {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: assertion.State,
		Actual:   string(result.Final.State),
		Trace:    result.Trace,
	}
}

func assertFinalVersion(result *Result, assertion Assertion) error {
	if assertion.Version == nil {
		return fmt.Errorf("%s: version is required", AssertFinalVersion)
	}
	if result.Final.Version == *assertion.Version {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalVersion,
		Expected: fmt.Sprintf("v%d", *assertion.Version),
		Actual:   fmt.Sprintf("v%d", result.Final.Version),
		Trace:    result.Trace,
	}
}

func assertFinalContext(result *Result, assertion Assertion) error {
	mismatches, err := matchContext(result.Final.Context, assertion.Context)
	if err != nil {
		return fmt.Errorf("%s: %w", AssertFinalContext, err)
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalContext,
		Expected: canonicalString(mustObject(assertion.Context)),
		Actual:   fmt.Sprintf("%s (%s)", canonicalString(result.Final.Context), strings.Join(mismatches, "; ")),
		Trace:    result.Trace,
	}
}

// assertTraceCount checks the number of journaled snapshots, version 0
// included.
func assertTraceCount(result *Result, assertion Assertion) error {
	if assertion.Count == nil {
		return fmt.Errorf("%s: count is required", AssertTraceCount)
	}
	if len(result.Trace) == *assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d snapshots", *assertion.Count),
		Actual:   fmt.Sprintf("%d snapshots", len(result.Trace)),
		Trace:    result.Trace,
	}
}

func assertTraceStates(result *Result, assertion Assertion) error {
	actual := result.States()
	if slices.Equal(actual, assertion.States) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceStates,
		Expected: fmt.Sprintf("%v", assertion.States),
		Actual:   fmt.Sprintf("%v", actual),
		Trace:    result.Trace,
	}
}

func assertTraceEvents(result *Result, assertion Assertion) error {
	actual := result.Events()
	if slices.Equal(actual, assertion.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceEvents,
		Expected: fmt.Sprintf("%v", assertion.Events),
		Actual:   fmt.Sprintf("%v", actual),
		Trace:    result.Trace,
	}
}

// checkSnapshot compares a snapshot against the set fields of an expect
// clause and returns one message per mismatch.
func checkSnapshot(snap engine.Snapshot, state string, version *int64, context map[string]any) []string {
	var msgs []string
	if state != "" && string(snap.State) != state {
		msgs = append(msgs, fmt.Sprintf("expected state %s, got %s", state, snap.State))
	}
	if version != nil && snap.Version != *version {
		msgs = append(msgs, fmt.Sprintf("expected version %d, got %d", *version, snap.Version))
	}
	if context != nil {
		mismatches, err := matchContext(snap.Context, context)
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		msgs = append(msgs, mismatches...)
	}
	return msgs
}

// matchContext checks that actual contains every expected key with an equal
// value. Extra keys in actual are ignored.
func matchContext(actual ir.IRObject, expected map[string]any) ([]string, error) {
	want, err := ir.ObjectFromGo(expected)
	if err != nil {
		return nil, fmt.Errorf("expected context: %w", err)
	}

	var mismatches []string
	for _, key := range want.SortedKeys() {
		got, ok := actual[key]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("context.%s missing", key))
			continue
		}
		if !ir.Equal(got, want[key]) {
			mismatches = append(mismatches, fmt.Sprintf("context.%s: expected %s, got %s",
				key, canonicalString(want[key]), canonicalString(got)))
		}
	}
	return mismatches, nil
}

func canonicalString(v any) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func mustObject(m map[string]any) ir.IRObject {
	obj, err := ir.ObjectFromGo(m)
	if err != nil {
		return ir.IRObject{}
	}
	return obj
}

// EvaluateAssertions evaluates all assertions against the result and
// returns a message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertFinalVersion:
			err = assertFinalVersion(result, assertion)
		case AssertFinalContext:
			err = assertFinalContext(result, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result, assertion)
		case AssertTraceStates:
			err = assertTraceStates(result, assertion)
		case AssertTraceEvents:
			err = assertTraceEvents(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
