package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/statekeep/internal/ir"
)

const instrumentationName = "github.com/roach88/statekeep/internal/fsm"

// Lifecycle is the phase of an actor.
type Lifecycle int

const (
	// NotStarted is the phase of a freshly created actor.
	NotStarted Lifecycle = iota
	// Started actors accept Send.
	Started
	// Stopped actors reject Send. Terminal.
	Stopped
)

// String returns the phase name.
func (l Lifecycle) String() string {
	switch l {
	case NotStarted:
		return "not-started"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("lifecycle(%d)", int(l))
	}
}

// Actor runs one Definition against one exclusively owned context.
// It is not safe for concurrent use; see the package documentation.
type Actor[C any] struct {
	def     *Definition[C]
	id      string
	phase   Lifecycle
	state   ir.StateID
	context C
	version int64

	strict    bool
	clone     func(C) C
	observers []Observer[C]
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewActor creates an actor in the NotStarted phase, holding the definition's
// initial state and a private copy of initial.
func NewActor[C any](def *Definition[C], initial C, opts ...ActorOption[C]) *Actor[C] {
	a := &Actor[C]{
		def:    def,
		id:     uuid.Must(uuid.NewV7()).String(),
		phase:  NotStarted,
		state:  def.Initial(),
		clone:  defaultCopier[C](),
		tracer: otel.Tracer(instrumentationName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.context = a.clone(initial)
	return a
}

// ID returns the actor's identifier.
func (a *Actor[C]) ID() string {
	return a.id
}

// Definition returns the definition the actor runs.
func (a *Actor[C]) Definition() *Definition[C] {
	return a.def
}

// Lifecycle returns the actor's current phase.
func (a *Actor[C]) Lifecycle() Lifecycle {
	return a.phase
}

// Snapshot returns the most recent snapshot. Before Start this is the
// version 0 snapshot Start would publish. Valid in every phase.
func (a *Actor[C]) Snapshot() Snapshot[C] {
	return Snapshot[C]{
		State:   a.state,
		Context: a.clone(a.context),
		Version: a.version,
	}
}

// Start moves the actor from NotStarted to Started and publishes the
// version 0 snapshot.
func (a *Actor[C]) Start(ctx context.Context) (Snapshot[C], error) {
	ctx, span := a.tracer.Start(ctx, "fsm.start", trace.WithAttributes(
		attribute.String("fsm.actor", a.id),
		attribute.String("fsm.state", string(a.state)),
	))
	defer span.End()

	if a.phase != NotStarted {
		err := &InvalidLifecycleError{ActorID: a.id, Op: "start", Phase: a.phase}
		recordError(span, err)
		return Snapshot[C]{}, err
	}

	a.phase = Started
	a.logger.Debug("actor started", "actor", a.id, "state", a.state)
	a.publish(ctx, nil)
	return a.Snapshot(), nil
}

// Send delivers one event.
//
// ok reports whether a rule matched and a new snapshot was committed. An
// event with no rule in the current state is ignored (ok=false, err=nil) and
// the returned snapshot is the current one; in strict mode it fails with
// UnhandledEventError instead. A failing action yields ActionFailedError and
// leaves state, context and version unchanged.
func (a *Actor[C]) Send(ctx context.Context, ev ir.Event) (Snapshot[C], bool, error) {
	ctx, span := a.tracer.Start(ctx, "fsm.send", trace.WithAttributes(
		attribute.String("fsm.actor", a.id),
		attribute.String("fsm.state", string(a.state)),
		attribute.String("fsm.event", string(ev.Kind)),
	))
	defer span.End()

	if a.phase != Started {
		err := &InvalidLifecycleError{ActorID: a.id, Op: "send", Phase: a.phase}
		recordError(span, err)
		return Snapshot[C]{}, false, err
	}

	rule := a.def.lookup(a.state, ev.Kind)
	if rule == nil {
		if a.strict {
			err := &UnhandledEventError{ActorID: a.id, State: a.state, Event: ev.Kind}
			recordError(span, err)
			return Snapshot[C]{}, false, err
		}
		a.logger.Debug("event ignored", "actor", a.id, "state", a.state, "event", ev.Kind)
		span.SetAttributes(attribute.Bool("fsm.ignored", true))
		return a.Snapshot(), false, nil
	}

	next, err := a.apply(rule, ev)
	if err != nil {
		a.logger.Warn("transition rolled back", "actor", a.id, "state", a.state, "event", ev.Kind, "error", err)
		recordError(span, err)
		return Snapshot[C]{}, false, err
	}

	from := a.state
	if rule.Target != "" {
		a.state = rule.Target
	}
	a.context = next
	a.version++

	a.logger.Debug("transition committed",
		"actor", a.id,
		"event", ev.Kind,
		"from", from,
		"to", a.state,
		"version", a.version,
	)
	span.SetAttributes(
		attribute.String("fsm.target", string(a.state)),
		attribute.Int64("fsm.version", a.version),
	)

	published := ev.Clone()
	a.publish(ctx, &published)
	return a.Snapshot(), true, nil
}

// Stop moves the actor to Stopped. Stopping twice is a no-op.
func (a *Actor[C]) Stop(ctx context.Context) {
	if a.phase == Stopped {
		return
	}
	_, span := a.tracer.Start(ctx, "fsm.stop", trace.WithAttributes(
		attribute.String("fsm.actor", a.id),
		attribute.String("fsm.from_phase", a.phase.String()),
	))
	defer span.End()

	a.phase = Stopped
	a.logger.Debug("actor stopped", "actor", a.id, "state", a.state, "version", a.version)
}

// apply runs the rule's actions against a working copy of the context.
func (a *Actor[C]) apply(rule *Rule[C], ev ir.Event) (C, error) {
	working := a.clone(a.context)
	for i, action := range rule.Actions {
		next, err := runAction(action, working, ev.Clone())
		if err != nil {
			var zero C
			return zero, &ActionFailedError{
				ActorID: a.id,
				State:   a.state,
				Event:   ev.Kind,
				Index:   i,
				Cause:   err,
			}
		}
		working = next
	}
	return working, nil
}

// runAction converts a panicking action into an error so the transition can
// be rolled back like any other failure.
func runAction[C any](action Action[C], c C, ev ir.Event) (next C, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return action(c, ev)
}

func (a *Actor[C]) publish(ctx context.Context, ev *ir.Event) {
	for _, obs := range a.observers {
		obs(ctx, Publication[C]{
			ActorID:  a.id,
			Snapshot: a.Snapshot(),
			Event:    ev,
		})
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
