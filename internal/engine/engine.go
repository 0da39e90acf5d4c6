package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/statekeep/internal/fsm"
	"github.com/roach88/statekeep/internal/ir"
	"github.com/roach88/statekeep/internal/store"
)

const instrumentationName = "github.com/roach88/statekeep/internal/engine"

// DefaultMailboxSize is the initial capacity of each actor's mailbox.
const DefaultMailboxSize = 64

// Snapshot is a snapshot of a hosted actor.
type Snapshot = fsm.Snapshot[ir.IRObject]

// Definition is the definition type hosted actors run.
type Definition = fsm.Definition[ir.IRObject]

// ActorRef identifies a hosted actor.
type ActorRef struct {
	ID       string
	Machine  string
	SpecHash string
}

// Engine hosts actors of declarative machines. Each actor gets a mailbox and
// a goroutine that is the only caller of its Send, so an Engine is safe for
// concurrent use while every actor still processes one event at a time.
//
// With a store attached every published snapshot is journaled, stamped with
// a sequence number that orders rows across actors.
type Engine struct {
	store       *store.Store
	ids         IDGenerator
	logger      *slog.Logger
	tracer      trace.Tracer
	strict      bool
	mailboxSize int
	seq         sequence

	mu     sync.RWMutex
	actors map[string]*host
	order  []string
	closed bool
	wg     sync.WaitGroup
}

// host is the engine's handle on one actor.
type host struct {
	ref     ActorRef
	actor   *fsm.Actor[ir.IRObject]
	mailbox *mailbox
	latest  atomic.Pointer[Snapshot]
	done    chan struct{}

	// journalErr is set by the journal observer. Only touched by the
	// goroutine currently driving the actor.
	journalErr error
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore journals actors and snapshots to s.
func WithStore(s *store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithIDGenerator sets how actor IDs are generated. Defaults to UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithLogger sets the logger for the engine and its actors.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer for the engine and its actors.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithStrictEvents spawns every actor in strict mode.
func WithStrictEvents(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithMailboxSize sets the initial mailbox capacity.
//
// Default: 64 (DefaultMailboxSize). Mailboxes grow past it as needed.
func WithMailboxSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.mailboxSize = n
		}
	}
}

// New creates an engine. With a store attached, the journal sequence resumes
// after the highest seq already in the store.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		ids:         UUIDv7Generator{},
		logger:      slog.Default(),
		tracer:      otel.Tracer(instrumentationName),
		mailboxSize: DefaultMailboxSize,
		actors:      make(map[string]*host),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store != nil {
		maxSeq, err := e.store.MaxSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("resume journal sequence: %w", err)
		}
		e.seq.resumeFrom(maxSeq)
	}

	return e, nil
}

// Spawn creates an actor running def and starts it. A nil initial context
// uses the spec's default context.
func (e *Engine) Spawn(ctx context.Context, spec *ir.MachineSpec, def *Definition, initial ir.IRObject) (ActorRef, error) {
	ref, err := e.Create(ctx, spec, def, initial)
	if err != nil {
		return ActorRef{}, err
	}
	if _, err := e.Start(ctx, ref.ID); err != nil {
		return ref, fmt.Errorf("spawn %s: %w", ref.ID, err)
	}
	return ref, nil
}

// Create registers a NotStarted actor running def, journals it and launches
// its mailbox goroutine. Sends fail with InvalidLifecycleError until Start.
// A nil initial context uses the spec's default context.
func (e *Engine) Create(ctx context.Context, spec *ir.MachineSpec, def *Definition, initial ir.IRObject) (ActorRef, error) {
	if spec == nil || def == nil {
		return ActorRef{}, errors.New("create: machine spec and definition are required")
	}
	if initial == nil {
		initial = spec.Context
	}

	ctx, span := e.tracer.Start(ctx, "engine.create", trace.WithAttributes(
		attribute.String("statekeep.machine", spec.Name),
	))
	defer span.End()

	hash, err := ir.SpecHash(spec)
	if err != nil {
		return ActorRef{}, fmt.Errorf("create %s: %w", spec.Name, err)
	}

	// Creates are serialized so actor rows are journaled in creation order.
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ActorRef{}, &Error{Code: ErrCodeEngineClosed, Message: "cannot create actor"}
	}

	id := e.ids.Generate()
	if _, exists := e.actors[id]; exists {
		return ActorRef{}, &Error{Code: ErrCodeDuplicateActor, ActorID: id, Message: "actor ID already in use"}
	}
	span.SetAttributes(attribute.String("statekeep.actor", id))

	h := &host{
		ref:     ActorRef{ID: id, Machine: spec.Name, SpecHash: hash},
		mailbox: newMailbox(e.mailboxSize),
		done:    make(chan struct{}),
	}

	opts := []fsm.ActorOption[ir.IRObject]{
		fsm.WithID[ir.IRObject](id),
		fsm.WithLogger[ir.IRObject](e.logger),
		fsm.WithTracer[ir.IRObject](e.tracer),
		fsm.WithObserver[ir.IRObject](h.observe),
	}
	if e.strict {
		opts = append(opts, fsm.WithStrictEvents[ir.IRObject]())
	}
	if e.store != nil {
		opts = append(opts, fsm.WithObserver[ir.IRObject](e.journal(h)))
	}
	h.actor = fsm.NewActor(def, initial, opts...)
	initialSnap := h.actor.Snapshot()
	h.latest.Store(&initialSnap)

	if e.store != nil {
		if err := e.journalActor(ctx, spec, hash, h); err != nil {
			return ActorRef{}, err
		}
	}

	e.actors[id] = h
	e.order = append(e.order, id)
	e.wg.Add(1)
	go e.run(h)

	e.logger.Info("actor created", "actor", id, "machine", spec.Name, "state", initialSnap.State)
	return h.ref, nil
}

// Start starts a created actor through its mailbox and returns the version 0
// snapshot. Starting an actor twice fails with InvalidLifecycleError.
func (e *Engine) Start(ctx context.Context, id string) (Snapshot, error) {
	h, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}

	req := request{op: opStart, ctx: ctx, reply: make(chan reply, 1)}
	if !h.mailbox.Enqueue(req) {
		return Snapshot{}, &fsm.InvalidLifecycleError{ActorID: id, Op: "start", Phase: fsm.Stopped}
	}

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case rep := <-req.reply:
		return rep.snapshot, rep.err
	}
}

// Send delivers ev to the actor's mailbox and waits for the result. Results
// are those of fsm.Actor.Send. If ctx ends before the mailbox reaches the
// event it is not delivered; if it ends afterwards the event may have been
// applied.
func (e *Engine) Send(ctx context.Context, id string, ev ir.Event) (Snapshot, bool, error) {
	h, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, false, err
	}

	req := request{op: opSend, ctx: ctx, event: ev.Clone(), reply: make(chan reply, 1)}
	if !h.mailbox.Enqueue(req) {
		return Snapshot{}, false, &fsm.InvalidLifecycleError{ActorID: id, Op: "send", Phase: fsm.Stopped}
	}

	select {
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	case rep := <-req.reply:
		return rep.snapshot, rep.ok, rep.err
	}
}

// Snapshot returns the latest published snapshot of an actor without going
// through its mailbox.
func (e *Engine) Snapshot(id string) (Snapshot, error) {
	h, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	snap := *h.latest.Load()
	snap.Context = snap.Context.Clone()
	return snap, nil
}

// Stop processes everything already in the actor's mailbox, then stops the
// actor. Later sends fail with InvalidLifecycleError. Stopping a stopped
// actor is a no-op.
func (e *Engine) Stop(ctx context.Context, id string) error {
	h, err := e.lookup(id)
	if err != nil {
		return err
	}
	return e.stop(ctx, h)
}

// Actors returns every hosted actor, stopped ones included, in creation order.
func (e *Engine) Actors() []ActorRef {
	e.mu.RLock()
	defer e.mu.RUnlock()

	refs := make([]ActorRef, len(e.order))
	for i, id := range e.order {
		refs[i] = e.actors[id].ref
	}
	return refs
}

// Close stops every actor and waits for their mailbox goroutines to exit.
// Create and Spawn fail afterwards. Closing twice is a no-op.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	hosts := make([]*host, len(e.order))
	for i, id := range e.order {
		hosts[i] = e.actors[id]
	}
	e.mu.Unlock()

	var errs []error
	for _, h := range hosts {
		if err := e.stop(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", h.ref.ID, err))
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	case <-done:
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	e.logger.Debug("engine closed", "actors", len(hosts))
	return nil
}

func (e *Engine) lookup(id string) (*host, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h, ok := e.actors[id]
	if !ok {
		return nil, actorNotFound(id)
	}
	return h, nil
}

func (e *Engine) stop(ctx context.Context, h *host) error {
	req := request{op: opStop, ctx: ctx, reply: make(chan reply, 1)}
	if !h.mailbox.EnqueueAndClose(req) {
		// Already stopping; wait for the first stop to finish.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return nil
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case rep := <-req.reply:
		return rep.err
	}
}

// run is the mailbox goroutine: the single caller of the actor's Start, Send
// and Stop once Create returns.
func (e *Engine) run(h *host) {
	defer e.wg.Done()
	defer close(h.done)

	for {
		req, ok := h.mailbox.TryDequeue()
		if ok {
			e.handle(h, req)
			continue
		}

		// Wait is closed once the mailbox is closed, so a closed and
		// drained mailbox ends the loop here.
		<-h.mailbox.Wait()
		if h.mailbox.Closed() && h.mailbox.Len() == 0 {
			return
		}
	}
}

func (e *Engine) handle(h *host, req request) {
	var rep reply

	switch req.op {
	case opStart:
		h.journalErr = nil
		rep.snapshot, rep.err = h.actor.Start(req.ctx)
		if rep.err == nil && h.journalErr != nil {
			rep.err = journalFailed(h.ref.ID, h.journalErr)
		}
		if rep.err == nil {
			e.logger.Info("actor started", "actor", h.ref.ID, "state", rep.snapshot.State)
		}

	case opSend:
		if err := req.ctx.Err(); err != nil {
			rep.err = err
			break
		}
		h.journalErr = nil
		rep.snapshot, rep.ok, rep.err = h.actor.Send(req.ctx, req.event)
		if rep.err == nil && h.journalErr != nil {
			rep.err = journalFailed(h.ref.ID, h.journalErr)
		}

	case opStop:
		// The requester's context may already be done; stopping proceeds
		// regardless so the goroutine can exit.
		ctx := context.WithoutCancel(req.ctx)
		h.actor.Stop(ctx)
		rep.snapshot = h.actor.Snapshot()
		if e.store != nil {
			if err := e.journalStop(ctx, h.ref.ID, rep.snapshot.Version); err != nil {
				rep.err = journalFailed(h.ref.ID, err)
			}
		}
		e.logger.Info("actor stopped", "actor", h.ref.ID, "version", rep.snapshot.Version)
	}

	req.reply <- rep
}

// observe keeps the lock-free latest snapshot current.
func (h *host) observe(_ context.Context, p fsm.Publication[ir.IRObject]) {
	snap := p.Snapshot
	h.latest.Store(&snap)
}
