package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/statekeep/internal/ir"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// ReadActor returns one journaled actor. A missing actor yields an error
// wrapping sql.ErrNoRows.
func (s *Store) ReadActor(ctx context.Context, id string) (ActorRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, machine, spec_hash, spec, initial_context, strict, runtime_version, ir_version, seq
		FROM actors
		WHERE id = ?
	`, id)
	rec, err := scanActor(row)
	if err != nil {
		return ActorRecord{}, fmt.Errorf("read actor %s: %w", id, err)
	}
	return rec, nil
}

// ListActors returns every journaled actor in spawn order.
// Returns an empty slice (not nil) when the journal is empty.
func (s *Store) ListActors(ctx context.Context) ([]ActorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, machine, spec_hash, spec, initial_context, strict, runtime_version, ir_version, seq
		FROM actors
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query actors: %w", err)
	}
	defer rows.Close()

	actors := []ActorRecord{}
	for rows.Next() {
		rec, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		actors = append(actors, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actors: %w", err)
	}
	return actors, nil
}

// ReadSnapshots returns an actor's snapshots ordered by version.
// Returns an empty slice (not nil) when none exist.
func (s *Store) ReadSnapshots(ctx context.Context, actorID string) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT actor_id, version, state, context, event_kind, event_payload, digest, seq
		FROM snapshots
		WHERE actor_id = ?
		ORDER BY version ASC
	`, actorID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []SnapshotRecord{}
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snapshots, nil
}

// SnapshotColumns is the column list QuerySnapshots expects, in scan order.
const SnapshotColumns = "actor_id, version, state, context, event_kind, event_payload, digest, seq"

// QuerySnapshots runs a SELECT of SnapshotColumns built elsewhere (see
// internal/querysql) and scans the rows. Returns an empty slice (not nil)
// when nothing matches.
func (s *Store) QuerySnapshots(ctx context.Context, query string, args ...any) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []SnapshotRecord{}
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snapshots, nil
}

// LatestSnapshot returns the highest-version snapshot of an actor.
// ok is false when the actor has no snapshots.
func (s *Store) LatestSnapshot(ctx context.Context, actorID string) (SnapshotRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT actor_id, version, state, context, event_kind, event_payload, digest, seq
		FROM snapshots
		WHERE actor_id = ?
		ORDER BY version DESC
		LIMIT 1
	`, actorID)
	rec, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, false, nil
	}
	if err != nil {
		return SnapshotRecord{}, false, fmt.Errorf("latest snapshot %s: %w", actorID, err)
	}
	return rec, true, nil
}

// ReadStop returns the stop record of an actor. ok is false while the actor
// has not been stopped.
func (s *Store) ReadStop(ctx context.Context, actorID string) (StopRecord, bool, error) {
	var rec StopRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT actor_id, version, seq FROM stops WHERE actor_id = ?
	`, actorID).Scan(&rec.ActorID, &rec.Version, &rec.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return StopRecord{}, false, nil
	}
	if err != nil {
		return StopRecord{}, false, fmt.Errorf("read stop %s: %w", actorID, err)
	}
	return rec, true, nil
}

// MaxSeq returns the highest journal sequence number in use, or 0 for an
// empty journal.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM actors
			UNION ALL SELECT seq FROM snapshots
			UNION ALL SELECT seq FROM stops
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

func scanActor(row rowScanner) (ActorRecord, error) {
	var (
		rec     ActorRecord
		initial string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Machine,
		&rec.SpecHash,
		&rec.Spec,
		&initial,
		&rec.Strict,
		&rec.RuntimeVersion,
		&rec.IRVersion,
		&rec.Seq,
	); err != nil {
		return ActorRecord{}, err
	}

	obj, err := unmarshalObject(initial)
	if err != nil {
		return ActorRecord{}, fmt.Errorf("unmarshal initial context of %s: %w", rec.ID, err)
	}
	rec.InitialContext = obj
	return rec, nil
}

func scanSnapshot(row rowScanner) (SnapshotRecord, error) {
	var (
		rec         SnapshotRecord
		state       string
		contextJSON string
		kind        sql.NullString
		payload     sql.NullString
	)
	if err := row.Scan(
		&rec.ActorID,
		&rec.Version,
		&state,
		&contextJSON,
		&kind,
		&payload,
		&rec.Digest,
		&rec.Seq,
	); err != nil {
		return SnapshotRecord{}, err
	}
	rec.State = ir.StateID(state)

	obj, err := unmarshalObject(contextJSON)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("unmarshal context of %s@%d: %w", rec.ActorID, rec.Version, err)
	}
	rec.Context = obj

	ev, err := unmarshalEvent(kind, payload)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("snapshot %s@%d: %w", rec.ActorID, rec.Version, err)
	}
	rec.Event = ev
	return rec, nil
}
