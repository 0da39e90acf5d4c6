package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/engine"
	"github.com/roach88/statekeep/internal/ir"
)

func intPtr(n int) *int { return &n }

func testResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Seq: 2, Version: 0, State: "inactive", Context: ir.IRObject{"count": ir.IRInt(0)}},
		{Seq: 3, Version: 1, State: "active", Context: ir.IRObject{"count": ir.IRInt(0)}, Event: "TOGGLE"},
		{Seq: 4, Version: 2, State: "active", Context: ir.IRObject{"count": ir.IRInt(1)}, Event: "INC"},
	}
	r.Final = FinalSnapshot{
		State:   "active",
		Context: ir.IRObject{"count": ir.IRInt(1), "tags": ir.IRArray{ir.IRString("a")}},
		Version: 2,
	}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(testResult(), []Assertion{
		{Type: AssertFinalState, State: "active"},
		{Type: AssertFinalVersion, Version: int64Ptr(2)},
		{Type: AssertFinalContext, Context: map[string]any{"count": 1, "tags": []any{"a"}}},
		{Type: AssertTraceCount, Count: intPtr(3)},
		{Type: AssertTraceStates, States: []string{"inactive", "active", "active"}},
		{Type: AssertTraceEvents, Events: []string{"TOGGLE", "INC"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Fail(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		expected  string
		actual    string
	}{
		{
			name:      "final_state",
			assertion: Assertion{Type: AssertFinalState, State: "inactive"},
			expected:  "Expected: inactive",
			actual:    "Actual: active",
		},
		{
			name:      "final_version",
			assertion: Assertion{Type: AssertFinalVersion, Version: int64Ptr(12)},
			expected:  "Expected: v12",
			actual:    "Actual: v2",
		},
		{
			name:      "final_context",
			assertion: Assertion{Type: AssertFinalContext, Context: map[string]any{"count": 10}},
			expected:  `Expected: {"count":10}`,
			actual:    "context.count: expected 10, got 1",
		},
		{
			name:      "trace_count",
			assertion: Assertion{Type: AssertTraceCount, Count: intPtr(13)},
			expected:  "Expected: 13 snapshots",
			actual:    "Actual: 3 snapshots",
		},
		{
			name:      "trace_states",
			assertion: Assertion{Type: AssertTraceStates, States: []string{"inactive", "active"}},
			expected:  "Expected: [inactive active]",
			actual:    "Actual: [inactive active active]",
		},
		{
			name:      "trace_events",
			assertion: Assertion{Type: AssertTraceEvents, Events: []string{"INC", "TOGGLE"}},
			expected:  "Expected: [INC TOGGLE]",
			actual:    "Actual: [TOGGLE INC]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(testResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], "Assertion failed: "+tt.name)
			assert.Contains(t, errs[0], tt.expected)
			assert.Contains(t, errs[0], tt.actual)
			assert.Contains(t, errs[0], `[v1] TOGGLE -> active {"count":0}`, "trace is printed")
		})
	}
}

func TestEvaluateAssertions_Malformed(t *testing.T) {
	errs := EvaluateAssertions(testResult(), []Assertion{
		{Type: "trace_contains"},
		{Type: AssertFinalVersion},
		{Type: AssertTraceCount},
		{Type: AssertFinalContext, Context: map[string]any{"ratio": 0.5}},
	})
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], `unknown assertion type "trace_contains"`)
	assert.Contains(t, errs[1], "version is required")
	assert.Contains(t, errs[2], "count is required")
	assert.Contains(t, errs[3], "floats are not allowed")
}

func TestAssertionError_StartEvent(t *testing.T) {
	err := &AssertionError{
		Type:     AssertFinalState,
		Expected: "a",
		Actual:   "b",
		Trace:    []TraceEvent{{Version: 0, State: "a", Context: ir.IRObject{}}},
	}
	assert.Contains(t, err.Error(), "[v0] (start) -> a {}")
}

func TestMatchContext(t *testing.T) {
	actual := ir.IRObject{
		"count": ir.IRInt(3),
		"name":  ir.IRString("door"),
		"meta":  ir.IRObject{"open": ir.IRBool(true)},
	}

	mismatches, err := matchContext(actual, map[string]any{"count": 3})
	require.NoError(t, err)
	assert.Empty(t, mismatches, "extra keys are ignored")

	mismatches, err = matchContext(actual, map[string]any{"meta": map[string]any{"open": true}})
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	mismatches, err = matchContext(actual, map[string]any{"name": "window", "gone": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"context.gone missing",
		`context.name: expected "window", got "door"`,
	}, mismatches)
}

func TestCheckSnapshot(t *testing.T) {
	snap := engine.Snapshot{State: "active", Context: ir.IRObject{"count": ir.IRInt(1)}, Version: 4}

	assert.Empty(t, checkSnapshot(snap, "", nil, nil))
	assert.Empty(t, checkSnapshot(snap, "active", int64Ptr(4), map[string]any{"count": 1}))
	assert.Equal(t, []string{
		"expected state inactive, got active",
		"expected version 3, got 4",
	}, checkSnapshot(snap, "inactive", int64Ptr(3), nil))
}
