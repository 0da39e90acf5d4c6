package fsm

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// ActorOption configures an Actor.
type ActorOption[C any] func(*Actor[C])

// WithID sets the actor's identifier. Defaults to a UUIDv7.
func WithID[C any](id string) ActorOption[C] {
	return func(a *Actor[C]) {
		if id != "" {
			a.id = id
		}
	}
}

// WithStrictEvents makes Send return UnhandledEventError instead of silently
// ignoring events that have no rule in the current state.
func WithStrictEvents[C any]() ActorOption[C] {
	return func(a *Actor[C]) {
		a.strict = true
	}
}

// WithObserver registers an observer. Observers run in registration order.
func WithObserver[C any](obs Observer[C]) ActorOption[C] {
	return func(a *Actor[C]) {
		if obs != nil {
			a.observers = append(a.observers, obs)
		}
	}
}

// WithClone sets how contexts are copied. By default a context implementing
// Clone() C is copied through that method, plain values by assignment, and
// contexts holding maps, slices, pointers or interfaces by a reflective deep
// copy. Use it for faster copies or for types with unexported reference
// fields.
func WithClone[C any](clone func(C) C) ActorOption[C] {
	return func(a *Actor[C]) {
		if clone != nil {
			a.clone = clone
		}
	}
}

// WithTracer sets the tracer used for start/send/stop spans.
// Defaults to the global OpenTelemetry tracer provider.
func WithTracer[C any](tracer trace.Tracer) ActorOption[C] {
	return func(a *Actor[C]) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger[C any](logger *slog.Logger) ActorOption[C] {
	return func(a *Actor[C]) {
		if logger != nil {
			a.logger = logger
		}
	}
}
