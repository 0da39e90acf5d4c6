package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/statekeep/internal/compiler"
	"github.com/roach88/statekeep/internal/engine"
	"github.com/roach88/statekeep/internal/fsm"
	"github.com/roach88/statekeep/internal/ir"
	"github.com/roach88/statekeep/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Machine  string
	Events   string
	Context  string
	Strict   bool

	// IDGenerator overrides the actor ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// EventInput is one entry of an events file.
type EventInput struct {
	Kind    string         `yaml:"kind"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// RunStep is the outcome of one delivered event.
type RunStep struct {
	Event   string      `json:"event,omitempty"`
	State   ir.StateID  `json:"state"`
	Context ir.IRObject `json:"context"`
	Version int64       `json:"version"`
	Ignored bool        `json:"ignored,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Machine  string    `json:"machine"`
	SpecHash string    `json:"spec_hash"`
	Steps    []RunStep `json:"steps"`
	Failed   int       `json:"failed"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <specs-dir>",
		Short: "Run an actor against an event stream",
		Long: `Spawn one actor of a machine and deliver a stream of events to it.

Events are a YAML list of {kind, payload} entries read from --events, or
from stdin when --events is "-" or omitted. The actor's state and context
are printed after it starts and after every event. Failed events are
reported on stderr and leave the actor where it was.

With --db (or STATEKEEP_DB) every snapshot is journaled to SQLite for
trace and replay.

Example:
  statekeep run ./specs --machine toggle --events events.yaml
  printf -- '- kind: TOGGLE\n' | statekeep run ./specs --db ./statekeep.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActor(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to STATEKEEP_DB)")
	cmd.Flags().StringVarP(&opts.Machine, "machine", "m", "", "machine to run (required when specs declare several)")
	cmd.Flags().StringVarP(&opts.Events, "events", "e", "", "YAML events file, or - for stdin")
	cmd.Flags().StringVar(&opts.Context, "context", "", "JSON object merged over the machine's initial context")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "report events with no rule as errors (defaults to STATEKEEP_STRICT)")

	return cmd
}

func runActor(opts *RunOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.logger()

	spec, def, err := loadRunnable(specsDir, opts.Machine)
	if err != nil {
		return err
	}
	hash, err := ir.SpecHash(spec)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash spec", err)
	}

	initial, err := initialContext(spec, opts.Context)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --context", err)
	}

	events, err := readEvents(opts.Events, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	formatter.VerboseLog("Loaded %d event(s)", len(events))

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	strict := opts.Config.Strict
	if cmd.Flags().Changed("strict") {
		strict = opts.Strict
	}
	ids := opts.IDGenerator
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTracer(opts.tracer()),
		engine.WithIDGenerator(ids),
		engine.WithMailboxSize(opts.Config.MailboxSize),
		engine.WithStrictEvents(strict),
	}

	if path := opts.database(opts.Database); path != "" {
		logger.Info("opening database", "path", path)
		st, err := store.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithStore(st))
	}

	eng, err := engine.New(ctx, engineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	defer func() {
		if closeErr := eng.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Error("error closing engine", "error", closeErr)
		}
	}()

	ref, err := eng.Spawn(ctx, spec, def, initial)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to spawn actor", err)
	}
	logger.Debug("actor spawned", "actor", ref.ID, "machine", ref.Machine)

	result := RunResult{Machine: spec.Name, SpecHash: hash, Steps: make([]RunStep, 0, len(events)+1)}

	first, err := eng.Snapshot(ref.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	result.Steps = append(result.Steps, stepFrom("", first))
	printStep(formatter, result.Steps[0])

	for _, in := range events {
		if ctx.Err() != nil {
			logger.Info("interrupted, stopping actor", "delivered", len(result.Steps)-1)
			break
		}
		step, err := deliver(ctx, eng, ref.ID, in)
		if err != nil {
			step.Error = err.Error()
			result.Failed++
			fmt.Fprintf(formatter.ErrWriter, "error: %s: %v\n", in.Kind, err)
		}
		result.Steps = append(result.Steps, step)
		printStep(formatter, step)
	}

	if err := eng.Stop(context.WithoutCancel(ctx), ref.ID); err != nil {
		return WrapExitError(ExitCommandError, "failed to stop actor", err)
	}

	if formatter.Format == "json" {
		if err := formatter.SuccessFor(ref.ID, result); err != nil {
			return err
		}
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d event(s) failed", result.Failed))
	}
	return nil
}

// loadRunnable compiles specsDir, picks a machine and binds it to the
// built-in actions.
func loadRunnable(specsDir, name string) (*ir.MachineSpec, *engine.Definition, error) {
	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, nil, WrapExitError(ExitCommandError, "failed to compile specs", loadErrors[0])
	}

	spec, err := findMachine(loadResult.Machines, name)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to select machine", err)
	}

	reg := compiler.NewRegistry()
	if verrs := compiler.Validate(spec, reg); len(verrs) > 0 {
		return nil, nil, NewExitError(ExitCommandError,
			fmt.Sprintf("machine %s is invalid: %s: %s: %s", spec.Name, verrs[0].Code, verrs[0].Field, verrs[0].Message))
	}

	def, err := compiler.Bind(spec, reg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to bind machine", err)
	}
	return spec, def, nil
}

// initialContext overlays a JSON object on the spec's default context.
func initialContext(spec *ir.MachineSpec, overlay string) (ir.IRObject, error) {
	initial := spec.Context.Clone()
	if initial == nil {
		initial = ir.IRObject{}
	}
	if overlay == "" {
		return initial, nil
	}
	var obj ir.IRObject
	if err := obj.UnmarshalJSON([]byte(overlay)); err != nil {
		return nil, err
	}
	for k, v := range obj {
		initial[k] = v
	}
	return initial, nil
}

// readEvents decodes a YAML list of events. Unknown fields are rejected.
func readEvents(path string, stdin io.Reader) ([]EventInput, error) {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var events []EventInput
	if err := dec.Decode(&events); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode events: %w", err)
	}
	for i, ev := range events {
		if ev.Kind == "" {
			return nil, fmt.Errorf("events[%d]: kind is required", i)
		}
	}
	return events, nil
}

func deliver(ctx context.Context, eng *engine.Engine, id string, in EventInput) (RunStep, error) {
	ev := ir.Event{Kind: ir.EventKind(in.Kind)}
	if len(in.Payload) > 0 {
		payload, err := ir.ObjectFromGo(in.Payload)
		if err != nil {
			return failedStep(eng, id, in.Kind), fmt.Errorf("payload: %w", err)
		}
		ev.Payload = payload
	}

	snap, ok, err := eng.Send(ctx, id, ev)
	if err != nil {
		if code := fsm.Code(err); code != "" {
			err = fmt.Errorf("%s: %w", code, err)
		}
		return failedStep(eng, id, in.Kind), err
	}
	step := stepFrom(in.Kind, snap)
	step.Ignored = !ok
	return step, nil
}

// failedStep reports the actor's current snapshot, which a failed event
// leaves untouched.
func failedStep(eng *engine.Engine, id, kind string) RunStep {
	snap, err := eng.Snapshot(id)
	if err != nil {
		return RunStep{Event: kind, Context: ir.IRObject{}}
	}
	return stepFrom(kind, snap)
}

func stepFrom(kind string, snap engine.Snapshot) RunStep {
	ctx := snap.Context
	if ctx == nil {
		ctx = ir.IRObject{}
	}
	return RunStep{Event: kind, State: snap.State, Context: ctx, Version: snap.Version}
}

// printStep writes "<state> <context>" in text mode.
func printStep(formatter *OutputFormatter, step RunStep) {
	if formatter.Format == "json" {
		return
	}
	data, err := ir.MarshalCanonical(step.Context)
	if err != nil {
		data = []byte("{}")
	}
	fmt.Fprintf(formatter.Writer, "%s %s\n", step.State, data)
}
