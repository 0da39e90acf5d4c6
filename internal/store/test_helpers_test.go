package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/statekeep/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestActor creates an actor record with minimal required fields.
func createTestActor(id string, seq int64) ActorRecord {
	return ActorRecord{
		ID:             id,
		Machine:        "toggle",
		SpecHash:       "test-hash",
		Spec:           `{"name":"toggle"}`,
		InitialContext: ir.IRObject{"count": ir.IRInt(0)},
		RuntimeVersion: ir.RuntimeVersion,
		IRVersion:      ir.IRVersion,
		Seq:            seq,
	}
}

// createTestSnapshot creates a snapshot record. A non-empty kind attaches an
// event without payload.
func createTestSnapshot(actorID string, version int64, state ir.StateID, count int64, kind ir.EventKind, seq int64) SnapshotRecord {
	ctx := ir.IRObject{"count": ir.IRInt(count)}
	rec := SnapshotRecord{
		ActorID: actorID,
		Version: version,
		State:   state,
		Context: ctx,
		Digest:  ir.MustSnapshotDigest(state, ctx, version),
		Seq:     seq,
	}
	if kind != "" {
		rec.Event = &ir.Event{Kind: kind}
	}
	return rec
}

func mustWriteActor(t *testing.T, s *Store, rec ActorRecord) {
	t.Helper()
	if err := s.WriteActor(context.Background(), rec); err != nil {
		t.Fatalf("WriteActor(%s) failed: %v", rec.ID, err)
	}
}

func mustWriteSnapshot(t *testing.T, s *Store, rec SnapshotRecord) {
	t.Helper()
	if err := s.WriteSnapshot(context.Background(), rec); err != nil {
		t.Fatalf("WriteSnapshot(%s@%d) failed: %v", rec.ActorID, rec.Version, err)
	}
}
