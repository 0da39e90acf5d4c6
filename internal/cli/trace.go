package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/statekeep/internal/ir"
	"github.com/roach88/statekeep/internal/queryir"
	"github.com/roach88/statekeep/internal/querysql"
	"github.com/roach88/statekeep/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Actor    string   // optional - show one actor's timeline
	Where    []string // optional - search snapshots by field=value
	Limit    int
}

// TraceEvent represents a single entry in an actor's timeline.
type TraceEvent struct {
	Seq     int64       `json:"seq"`
	ActorID string      `json:"actor_id,omitempty"`
	Type    string      `json:"type"` // "snapshot" or "stop"
	Version int64       `json:"version"`
	State   ir.StateID  `json:"state,omitempty"`
	Context ir.IRObject `json:"context,omitempty"`
	Event   *ir.Event   `json:"event,omitempty"`
	Digest  string      `json:"digest,omitempty"`
}

// ActorSummary is one row of the actor listing.
type ActorSummary struct {
	ID       string     `json:"id"`
	Machine  string     `json:"machine"`
	SpecHash string     `json:"spec_hash"`
	Strict   bool       `json:"strict"`
	Versions int        `json:"versions"`
	State    ir.StateID `json:"state,omitempty"`
	Stopped  bool       `json:"stopped"`
}

// TraceResult holds the complete trace output for one actor.
type TraceResult struct {
	Actor    ActorSummary `json:"actor"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Snapshots   int  `json:"snapshots"`
	Transitions int  `json:"transitions"`
	Stopped     bool `json:"stopped"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled actors and their timelines",
		Long: `Show what the journal recorded.

Without --actor, lists every journaled actor with its machine, latest
state and whether it was stopped. With --actor, prints that actor's
timeline: every committed snapshot in version order, the event that
produced it, and the stop record if there is one.

With --where, searches snapshots across every actor (or just --actor)
and prints the matches in journal order. Terms are field=value and all
must hold. Fields are actor, state, event, version and context.<key>;
numbers and true/false compare as JSON values, quote a value to force a
string.

Examples:
  statekeep trace --db ./statekeep.db
  statekeep trace --db ./statekeep.db --actor 0192f5c2-...
  statekeep trace --db ./statekeep.db --actor 0192f5c2-... --format json
  statekeep trace --db ./statekeep.db --where state=active --where context.count=3`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to STATEKEEP_DB)")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "actor ID to trace")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "search snapshots by field=value (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum matches for --where (0 = no limit)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	path := opts.database(opts.Database)
	if path == "" {
		return NewExitError(ExitCommandError, "--db or STATEKEEP_DB is required")
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if len(opts.Where) > 0 {
		return searchSnapshots(ctx, st, opts, formatter)
	}
	if opts.Actor == "" {
		return listActors(ctx, st, formatter)
	}

	rec, err := st.ReadActor(ctx, opts.Actor)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("actor not found: %s", opts.Actor))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read actor", err)
	}

	result, err := buildTrace(ctx, st, rec)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build trace", err)
	}

	if formatter.Format == "json" {
		return outputTraceJSON(formatter, result)
	}
	return outputTraceText(formatter, result)
}

func listActors(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	actors, err := st.ListActors(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list actors", err)
	}

	summaries := make([]ActorSummary, 0, len(actors))
	for _, rec := range actors {
		summary, _, err := summarize(ctx, st, rec)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		summaries = append(summaries, summary)
	}

	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "No actors journaled")
		return nil
	}
	for _, s := range summaries {
		status := "running"
		if s.Stopped {
			status = "stopped"
		}
		fmt.Fprintf(formatter.Writer, "%s  %s  v%d %s  (%s)\n",
			s.ID, s.Machine, s.Versions-1, s.State, status)
	}
	return nil
}

// searchSnapshots runs a --where search over the snapshot journal.
func searchSnapshots(ctx context.Context, st *store.Store, opts *TraceOptions, formatter *OutputFormatter) error {
	terms := opts.Where
	if opts.Actor != "" {
		terms = append([]string{queryir.FieldActor + "=" + fmt.Sprintf("%q", opts.Actor)}, terms...)
	}
	filter, err := queryir.ParseFilter(terms...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --where", err)
	}

	query := queryir.Select{From: queryir.SourceSnapshots, Filter: filter, Limit: opts.Limit}
	sqlText, params, err := querysql.NewSQLCompiler().Compile(query)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --where", err)
	}
	opts.logger().Debug("journal search", "sql", sqlText, "params", len(params))

	snaps, err := st.QuerySnapshots(ctx, sqlText, params...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to search journal", err)
	}

	matches := make([]TraceEvent, 0, len(snaps))
	for _, s := range snaps {
		matches = append(matches, TraceEvent{
			Seq:     s.Seq,
			ActorID: s.ActorID,
			Type:    "snapshot",
			Version: s.Version,
			State:   s.State,
			Context: s.Context,
			Event:   s.Event,
			Digest:  s.Digest,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(matches)
	}
	if len(matches) == 0 {
		fmt.Fprintln(formatter.Writer, "No matching snapshots")
		return nil
	}
	for _, ev := range matches {
		ctxJSON, err := ir.MarshalCanonical(ev.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(formatter.Writer, "[%d] %s v%d %s -> %s %s\n",
			ev.Seq, ev.ActorID, ev.Version, eventLabel(ev.Event), ev.State, ctxJSON)
	}
	return nil
}

// eventLabel renders the event that produced a snapshot.
func eventLabel(ev *ir.Event) string {
	if ev == nil {
		return "(start)"
	}
	label := string(ev.Kind)
	if len(ev.Payload) > 0 {
		label += " " + string(ir.MustMarshalCanonical(ev.Payload))
	}
	return label
}

// summarize reads an actor's snapshots and stop record.
func summarize(ctx context.Context, st *store.Store, rec store.ActorRecord) (ActorSummary, []store.SnapshotRecord, error) {
	snaps, err := st.ReadSnapshots(ctx, rec.ID)
	if err != nil {
		return ActorSummary{}, nil, err
	}
	_, stopped, err := st.ReadStop(ctx, rec.ID)
	if err != nil {
		return ActorSummary{}, nil, err
	}

	summary := ActorSummary{
		ID:       rec.ID,
		Machine:  rec.Machine,
		SpecHash: rec.SpecHash,
		Strict:   rec.Strict,
		Versions: len(snaps),
		Stopped:  stopped,
	}
	if len(snaps) > 0 {
		summary.State = snaps[len(snaps)-1].State
	}
	return summary, snaps, nil
}

// buildTrace assembles the timeline in journal order.
func buildTrace(ctx context.Context, st *store.Store, rec store.ActorRecord) (TraceResult, error) {
	summary, snaps, err := summarize(ctx, st, rec)
	if err != nil {
		return TraceResult{}, err
	}

	timeline := make([]TraceEvent, 0, len(snaps)+1)
	for _, s := range snaps {
		timeline = append(timeline, TraceEvent{
			Seq:     s.Seq,
			Type:    "snapshot",
			Version: s.Version,
			State:   s.State,
			Context: s.Context,
			Event:   s.Event,
			Digest:  s.Digest,
		})
	}

	stop, stopped, err := st.ReadStop(ctx, rec.ID)
	if err != nil {
		return TraceResult{}, err
	}
	if stopped {
		timeline = append(timeline, TraceEvent{Seq: stop.Seq, Type: "stop", Version: stop.Version})
	}

	transitions := 0
	for i := 1; i < len(snaps); i++ {
		if snaps[i].State != snaps[i-1].State {
			transitions++
		}
	}

	return TraceResult{
		Actor:    summary,
		Timeline: timeline,
		Stats: TraceStats{
			Snapshots:   len(snaps),
			Transitions: transitions,
			Stopped:     stopped,
		},
	}, nil
}

func outputTraceJSON(formatter *OutputFormatter, result TraceResult) error {
	return formatter.SuccessFor(result.Actor.ID, result)
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "Actor: %s\n", result.Actor.ID)
	fmt.Fprintf(w, "Machine: %s (%s)\n", result.Actor.Machine, result.Actor.SpecHash)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Timeline:")

	for _, ev := range result.Timeline {
		switch ev.Type {
		case "stop":
			fmt.Fprintf(w, "  [%d] stop at v%d\n", ev.Seq, ev.Version)
		default:
			ctxJSON, err := ir.MarshalCanonical(ev.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  [%d] v%d %s -> %s %s\n", ev.Seq, ev.Version, eventLabel(ev.Event), ev.State, ctxJSON)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d snapshot(s), %d transition(s), stopped=%t\n",
		result.Stats.Snapshots, result.Stats.Transitions, result.Stats.Stopped)
	return nil
}
