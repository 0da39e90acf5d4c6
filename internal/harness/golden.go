package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/statekeep/internal/ir"
)

// TraceSnapshot is what golden files hold for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Machine      string       `json:"machine"`
	ActorID      string       `json:"actor_id"`
	Trace        []TraceEvent `json:"trace"`
	Stopped      bool         `json:"stopped"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any, the form
// ir.MarshalCanonical accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		context := ev.Context
		if context == nil {
			context = ir.IRObject{}
		}
		eventMap := map[string]any{
			"seq":     ev.Seq,
			"version": ev.Version,
			"state":   string(ev.State),
			"context": context,
			"digest":  ev.Digest,
		}
		if ev.Event != "" {
			eventMap["event"] = string(ev.Event)
		}
		if len(ev.Payload) > 0 {
			eventMap["payload"] = ev.Payload
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"machine":       s.Machine,
		"actor_id":      s.ActorID,
		"trace":         traceList,
		"stopped":       s.Stopped,
	}
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass. Test failure (via
// goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := assertGolden(t, scenario.Name, scenario.Machine, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without rerunning the scenario.
func AssertGolden(t *testing.T, scenarioName, machine string, result *Result) error {
	t.Helper()
	return assertGolden(t, scenarioName, machine, result)
}

// GoldenTrace renders a result as the canonical JSON golden files hold.
func GoldenTrace(scenarioName, machine string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Machine:      machine,
		ActorID:      result.ActorID,
		Trace:        result.Trace,
		Stopped:      result.Final.Stopped,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

func assertGolden(t *testing.T, scenarioName, machine string, result *Result) error {
	t.Helper()

	traceJSON, err := GoldenTrace(scenarioName, machine, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
