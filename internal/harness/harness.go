package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/statekeep/internal/compiler"
	"github.com/roach88/statekeep/internal/engine"
	"github.com/roach88/statekeep/internal/fsm"
	"github.com/roach88/statekeep/internal/ir"
	"github.com/roach88/statekeep/internal/store"
	"github.com/roach88/statekeep/internal/testutil"
)

// Harness drives one scenario's actor through the engine.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	logger  *slog.Logger
	actorID string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store with sequential actor IDs.
// Execution flow:
//  1. Compile the spec files and bind the named machine
//  2. Create the actor (not started)
//  3. Execute the steps, checking expect clauses
//  4. Read the trace back from the journal
//  5. Evaluate assertions
//
// An error is returned only when the scenario cannot run at all; failed
// expectations and assertions are reported through Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithRegistry(ctx, scenario, compiler.NewRegistry())
}

// RunWithRegistry is like Run but binds actions from reg, so scenarios can
// exercise custom actions.
func RunWithRegistry(ctx context.Context, scenario *Scenario, reg *compiler.Registry) (*Result, error) {
	spec, def, err := loadMachine(scenario, reg)
	if err != nil {
		return nil, err
	}

	initial, err := initialContext(spec, scenario.Context)
	if err != nil {
		return nil, fmt.Errorf("scenario context: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(ctx,
		engine.WithStore(st),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("actor")),
		engine.WithLogger(logger),
		engine.WithStrictEvents(scenario.Strict),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close(context.WithoutCancel(ctx))

	ref, err := eng.Create(ctx, spec, def, initial)
	if err != nil {
		return nil, fmt.Errorf("failed to create actor: %w", err)
	}

	h := &Harness{
		store:   st,
		engine:  eng,
		logger:  logger,
		actorID: ref.ID,
	}

	result := NewResult()
	result.ActorID = ref.ID

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// loadMachine compiles the scenario's spec files, validates the named
// machine and binds it.
func loadMachine(scenario *Scenario, reg *compiler.Registry) (*ir.MachineSpec, *engine.Definition, error) {
	specs, err := compiler.LoadFiles(scenario.Specs...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile specs: %w", err)
	}

	spec, err := compiler.FindMachine(specs, scenario.Machine)
	if err != nil {
		return nil, nil, err
	}

	if verrs := compiler.Validate(spec, reg); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, verr := range verrs {
			errs[i] = verr
		}
		return nil, nil, fmt.Errorf("machine %s is invalid: %w", spec.Name, errors.Join(errs...))
	}

	def, err := compiler.Bind(spec, reg)
	if err != nil {
		return nil, nil, err
	}
	return spec, def, nil
}

// initialContext overlays the scenario's context onto the machine default.
func initialContext(spec *ir.MachineSpec, overrides map[string]any) (ir.IRObject, error) {
	initial := spec.Context.Clone()
	if initial == nil {
		initial = ir.IRObject{}
	}
	if len(overrides) == 0 {
		return initial, nil
	}
	obj, err := ir.ObjectFromGo(overrides)
	if err != nil {
		return nil, err
	}
	for k, v := range obj {
		initial[k] = v
	}
	return initial, nil
}

// executeStep runs one step and checks its expect clause. Failures of the
// step itself are expectations, not harness errors.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	label := fmt.Sprintf("steps[%d] (%s)", index, describeStep(step))

	var (
		ignored bool
		stepErr error
	)

	switch {
	case step.Start:
		_, stepErr = h.engine.Start(ctx, h.actorID)

	case step.Send != "":
		payload, err := payloadObject(step.Payload)
		if err != nil {
			return fmt.Errorf("%s: payload: %w", label, err)
		}
		times := max(step.Times, 1)
		for range times {
			ev := ir.Event{Kind: ir.EventKind(step.Send), Payload: payload}
			var ok bool
			_, ok, stepErr = h.engine.Send(ctx, h.actorID, ev)
			ignored = stepErr == nil && !ok
			if stepErr != nil {
				break
			}
		}

	case step.Stop:
		stepErr = h.engine.Stop(ctx, h.actorID)
	}

	h.logger.Info("step executed", "step", index, "op", describeStep(step), "ignored", ignored, "error", stepErr)

	var expect Expect
	if step.Expect != nil {
		expect = *step.Expect
	}

	code := errorCode(stepErr)
	switch {
	case expect.Error != "" && stepErr == nil:
		result.AddError(fmt.Sprintf("%s: expected error %s, got none", label, expect.Error))
	case expect.Error != "" && code != expect.Error:
		result.AddError(fmt.Sprintf("%s: expected error %s, got %v", label, expect.Error, stepErr))
	case expect.Error == "" && stepErr != nil:
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", label, stepErr))
	}

	if expect.Ignored != nil && *expect.Ignored != ignored {
		result.AddError(fmt.Sprintf("%s: expected ignored=%t, got %t", label, *expect.Ignored, ignored))
	}

	if expect.State == "" && expect.Version == nil && expect.Context == nil {
		return nil
	}

	snap, err := h.engine.Snapshot(h.actorID)
	if err != nil {
		return fmt.Errorf("%s: snapshot: %w", label, err)
	}
	for _, msg := range checkSnapshot(snap, expect.State, expect.Version, expect.Context) {
		result.AddError(fmt.Sprintf("%s: %s", label, msg))
	}
	return nil
}

// collect reads the trace from the journal and records the final snapshot.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	records, err := h.store.ReadSnapshots(ctx, h.actorID)
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	for _, rec := range records {
		ev := TraceEvent{
			Seq:     rec.Seq,
			Version: rec.Version,
			State:   rec.State,
			Context: rec.Context,
			Digest:  rec.Digest,
		}
		if rec.Event != nil {
			ev.Event = rec.Event.Kind
			ev.Payload = rec.Event.Payload
		}
		result.Trace = append(result.Trace, ev)
	}

	snap, err := h.engine.Snapshot(h.actorID)
	if err != nil {
		return fmt.Errorf("failed to read final snapshot: %w", err)
	}
	_, stopped, err := h.store.ReadStop(ctx, h.actorID)
	if err != nil {
		return fmt.Errorf("failed to read stop: %w", err)
	}
	result.Final = FinalSnapshot{
		State:   snap.State,
		Context: snap.Context,
		Version: snap.Version,
		Stopped: stopped,
	}
	return nil
}

func describeStep(step Step) string {
	switch {
	case step.Start:
		return "start"
	case step.Stop:
		return "stop"
	case step.Times > 1:
		return fmt.Sprintf("send %s x%d", step.Send, step.Times)
	default:
		return "send " + step.Send
	}
}

func payloadObject(payload map[string]any) (ir.IRObject, error) {
	if payload == nil {
		return nil, nil
	}
	return ir.ObjectFromGo(payload)
}

// errorCode returns the runtime or engine code carried by err.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := fsm.Code(err); code != "" {
		return string(code)
	}
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		return string(engErr.Code)
	}
	return ""
}
