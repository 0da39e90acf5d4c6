package store

import (
	"context"
	"fmt"
)

// WriteActor records a spawned actor. Writing the same ID twice is a no-op.
func (s *Store) WriteActor(ctx context.Context, rec ActorRecord) error {
	initial, err := marshalObject(rec.InitialContext)
	if err != nil {
		return fmt.Errorf("write actor %s: %w", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actors
		(id, machine, spec_hash, spec, initial_context, strict, runtime_version, ir_version, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Machine,
		rec.SpecHash,
		rec.Spec,
		initial,
		rec.Strict,
		rec.RuntimeVersion,
		rec.IRVersion,
		rec.Seq,
	)
	if err != nil {
		return fmt.Errorf("write actor %s: %w", rec.ID, err)
	}
	return nil
}

// WriteSnapshot appends a snapshot. A second write for the same
// (actor, version) is silently ignored, so observers may retry safely.
// The actor must already be journaled.
func (s *Store) WriteSnapshot(ctx context.Context, rec SnapshotRecord) error {
	contextJSON, err := marshalObject(rec.Context)
	if err != nil {
		return fmt.Errorf("write snapshot %s@%d: %w", rec.ActorID, rec.Version, err)
	}
	kind, payload, err := marshalEvent(rec.Event)
	if err != nil {
		return fmt.Errorf("write snapshot %s@%d: %w", rec.ActorID, rec.Version, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(actor_id, version, state, context, event_kind, event_payload, digest, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_id, version) DO NOTHING
	`,
		rec.ActorID,
		rec.Version,
		string(rec.State),
		contextJSON,
		kind,
		payload,
		rec.Digest,
		rec.Seq,
	)
	if err != nil {
		return fmt.Errorf("write snapshot %s@%d: %w", rec.ActorID, rec.Version, err)
	}
	return nil
}

// WriteStop records that an actor was stopped. Only the first stop counts.
func (s *Store) WriteStop(ctx context.Context, rec StopRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stops (actor_id, version, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(actor_id) DO NOTHING
	`, rec.ActorID, rec.Version, rec.Seq)
	if err != nil {
		return fmt.Errorf("write stop %s: %w", rec.ActorID, err)
	}
	return nil
}
