package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/statekeep/internal/compiler"
	"github.com/roach88/statekeep/internal/engine"
	"github.com/roach88/statekeep/internal/ir"
	"github.com/roach88/statekeep/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Actor    string // optional - specific actor only
	Specs    string // optional - replay against current specs instead of the journaled ones
}

// ReplayActorResult holds the replay result for a single actor.
type ReplayActorResult struct {
	ActorID    string            `json:"actor_id"`
	Machine    string            `json:"machine"`
	SpecHash   string            `json:"spec_hash"`
	Versions   int               `json:"versions"`
	Skipped    string            `json:"skipped,omitempty"`
	Reproduced bool              `json:"reproduced"`
	Mismatches []engine.Mismatch `json:"mismatches"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Actors        []ReplayActorResult `json:"actors"`
	TotalActors   int                 `json:"total_actors"`
	AllReproduced bool                `json:"all_reproduced"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journaled actors and verify determinism",
		Long: `Replay journaled actors and verify that every snapshot is reproduced.

Each actor is rebuilt from the spec journaled with it (or, with --specs,
from the current spec of the same machine), fed its journaled events in
version order, and every resulting snapshot digest is compared to the
journal. Replay writes nothing to the database.

Exit codes:
  0 - Every snapshot was reproduced
  1 - Replay diverged from the journal
  2 - Command error (database not found, etc.)

Examples:
  statekeep replay --db ./statekeep.db
  statekeep replay --db ./statekeep.db --actor 0192f5c2-...
  statekeep replay --db ./statekeep.db --specs ./specs --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to STATEKEEP_DB)")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "replay specific actor only")
	cmd.Flags().StringVar(&opts.Specs, "specs", "", "replay against the machines in this specs directory")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.logger()

	path := opts.database(opts.Database)
	if path == "" {
		return NewExitError(ExitCommandError, "--db or STATEKEEP_DB is required")
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var current []*ir.MachineSpec
	if opts.Specs != "" {
		loadResult, loadErrors := LoadSpecs(opts.Specs, LoadModeFailFast)
		if len(loadErrors) > 0 {
			return WrapExitError(ExitCommandError, "failed to compile specs", loadErrors[0])
		}
		current = loadResult.Machines
	}

	var actors []store.ActorRecord
	if opts.Actor != "" {
		rec, err := st.ReadActor(ctx, opts.Actor)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, fmt.Sprintf("actor not found: %s", opts.Actor))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read actor", err)
		}
		actors = []store.ActorRecord{rec}
	} else {
		actors, err = st.ListActors(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list actors", err)
		}
	}

	result := ReplayResult{
		Actors:        make([]ReplayActorResult, 0, len(actors)),
		TotalActors:   len(actors),
		AllReproduced: true,
	}

	for _, rec := range actors {
		formatter.VerboseLog("Replaying actor %s (%s)", rec.ID, rec.Machine)
		actorResult, err := replayActor(ctx, st, rec, current)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay actor %s", rec.ID), err)
		}
		if !actorResult.Reproduced {
			result.AllReproduced = false
			logger.Warn("replay diverged", "actor", rec.ID, "mismatches", len(actorResult.Mismatches))
		}
		result.Actors = append(result.Actors, actorResult)
	}

	if formatter.Format == "json" {
		if err := outputReplayJSON(formatter, result); err != nil {
			return err
		}
	} else {
		outputReplayText(formatter, result)
	}

	if !result.AllReproduced {
		return NewExitError(ExitFailure, "replay diverged from the journal")
	}
	return nil
}

// replayActor rebuilds one actor's definition and replays its journal.
func replayActor(ctx context.Context, st *store.Store, rec store.ActorRecord, current []*ir.MachineSpec) (ReplayActorResult, error) {
	res := ReplayActorResult{
		ActorID:    rec.ID,
		Machine:    rec.Machine,
		SpecHash:   rec.SpecHash,
		Reproduced: true,
		Mismatches: []engine.Mismatch{},
	}

	spec, err := ir.UnmarshalMachineSpec([]byte(rec.Spec))
	if err != nil {
		return res, err
	}
	if current != nil {
		spec, err = compiler.FindMachine(current, rec.Machine)
		if err != nil {
			return res, err
		}
	}

	hash, err := ir.SpecHash(spec)
	if err != nil {
		return res, err
	}
	if hash != rec.SpecHash {
		res.Reproduced = false
		res.Mismatches = append(res.Mismatches, engine.Mismatch{
			Expected: rec.SpecHash,
			Actual:   hash,
			Reason:   "spec hash differs",
		})
		return res, nil
	}

	snaps, err := st.ReadSnapshots(ctx, rec.ID)
	if err != nil {
		return res, err
	}
	if len(snaps) == 0 {
		res.Skipped = "never started"
		return res, nil
	}

	def, err := compiler.Bind(spec, compiler.NewRegistry())
	if err != nil {
		return res, err
	}

	replayed, err := engine.Replay(ctx, st, rec.ID, def)
	if err != nil {
		return res, err
	}
	res.Versions = replayed.Versions
	res.Mismatches = replayed.Mismatches
	res.Reproduced = replayed.OK()
	return res, nil
}

func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.AllReproduced {
		response.Status = "error"
		response.Error = &CLIError{Code: "REPLAY_DIVERGED", Message: "replay diverged from the journal"}
	}
	return formatter.Respond(response)
}

func outputReplayText(formatter *OutputFormatter, result ReplayResult) {
	w := formatter.Writer
	if result.TotalActors == 0 {
		fmt.Fprintln(w, "No actors found in database.")
		return
	}

	for _, a := range result.Actors {
		switch {
		case a.Skipped != "":
			fmt.Fprintf(w, "- %s (%s): skipped, %s\n", a.ActorID, a.Machine, a.Skipped)
		case a.Reproduced:
			fmt.Fprintf(w, "✓ %s (%s): %d version(s) reproduced\n", a.ActorID, a.Machine, a.Versions)
		default:
			fmt.Fprintf(w, "✗ %s (%s): diverged after %d version(s)\n", a.ActorID, a.Machine, a.Versions)
			for _, m := range a.Mismatches {
				fmt.Fprintf(w, "    v%d: %s\n", m.Version, m.Reason)
				fmt.Fprintf(w, "      expected %s\n", m.Expected)
				if m.Actual != "" {
					fmt.Fprintf(w, "      actual   %s\n", m.Actual)
				}
			}
		}
	}

	fmt.Fprintln(w)
	if result.AllReproduced {
		fmt.Fprintf(w, "✓ All %d actor(s) reproduced\n", result.TotalActors)
	} else {
		fmt.Fprintln(w, "✗ Replay diverged from the journal")
	}
}
