package engine

import (
	"context"
	"fmt"

	"github.com/roach88/statekeep/internal/fsm"
	"github.com/roach88/statekeep/internal/ir"
	"github.com/roach88/statekeep/internal/store"
)

// journalActor records the actor row. It must precede the actor's first
// snapshot, which references it.
func (e *Engine) journalActor(ctx context.Context, spec *ir.MachineSpec, hash string, h *host) error {
	canonical, err := spec.Canonical()
	if err != nil {
		return fmt.Errorf("create %s: %w", h.ref.ID, err)
	}

	rec := store.ActorRecord{
		ID:             h.ref.ID,
		Machine:        spec.Name,
		SpecHash:       hash,
		Spec:           string(canonical),
		InitialContext: h.actor.Snapshot().Context,
		Strict:         e.strict,
		RuntimeVersion: ir.RuntimeVersion,
		IRVersion:      ir.IRVersion,
		Seq:            e.seq.next(),
	}
	if err := e.store.WriteActor(ctx, rec); err != nil {
		return journalFailed(h.ref.ID, err)
	}
	return nil
}

// journal returns the observer that appends every publication of h's actor
// to the store. Failures are logged and left on h for the caller of Start or
// Send to report; the transition stays committed.
func (e *Engine) journal(h *host) fsm.Observer[ir.IRObject] {
	return func(ctx context.Context, p fsm.Publication[ir.IRObject]) {
		// The transition is already committed; a sender giving up now must
		// not leave a hole in the journal.
		ctx = context.WithoutCancel(ctx)
		snap := p.Snapshot

		digest, err := ir.SnapshotDigest(snap.State, snap.Context, snap.Version)
		if err == nil {
			err = e.store.WriteSnapshot(ctx, store.SnapshotRecord{
				ActorID: p.ActorID,
				Version: snap.Version,
				State:   snap.State,
				Context: snap.Context,
				Event:   p.Event,
				Digest:  digest,
				Seq:     e.seq.next(),
			})
		}
		if err != nil {
			e.logger.Error("journal write failed",
				"actor", p.ActorID,
				"version", snap.Version,
				"error", err,
			)
			h.journalErr = err
			return
		}

		e.logger.Debug("snapshot journaled",
			"actor", p.ActorID,
			"state", snap.State,
			"version", snap.Version,
		)
	}
}

func (e *Engine) journalStop(ctx context.Context, id string, version int64) error {
	return e.store.WriteStop(ctx, store.StopRecord{
		ActorID: id,
		Version: version,
		Seq:     e.seq.next(),
	})
}
