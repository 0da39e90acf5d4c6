package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/ir"
)

func TestReadActor_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadActor(t.Context(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReadActor_RoundTrip(t *testing.T) {
	s := createTestStore(t)

	want := createTestActor("a1", 1)
	want.Strict = true
	want.InitialContext = ir.IRObject{
		"count": ir.IRInt(9007199254740993),
		"tags":  ir.IRArray{ir.IRString("a"), ir.IRBool(true)},
	}
	mustWriteActor(t, s, want)

	got, err := s.ReadActor(t.Context(), "a1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestListActors_Empty(t *testing.T) {
	s := createTestStore(t)

	actors, err := s.ListActors(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, actors)
	assert.Empty(t, actors)
}

func TestListActors_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)

	mustWriteActor(t, s, createTestActor("c", 3))
	mustWriteActor(t, s, createTestActor("a", 1))
	mustWriteActor(t, s, createTestActor("b", 2))

	actors, err := s.ListActors(t.Context())
	require.NoError(t, err)

	ids := make([]string, len(actors))
	for i, a := range actors {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestReadSnapshots_OrderedByVersion(t *testing.T) {
	s := createTestStore(t)
	mustWriteActor(t, s, createTestActor("a1", 1))

	mustWriteSnapshot(t, s, createTestSnapshot("a1", 2, "inactive", 1, "END", 4))
	mustWriteSnapshot(t, s, createTestSnapshot("a1", 0, "inactive", 0, "", 2))
	mustWriteSnapshot(t, s, createTestSnapshot("a1", 1, "active", 1, "TOGGLE", 3))

	snaps, err := s.ReadSnapshots(t.Context(), "a1")
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	for i, snap := range snaps {
		assert.Equal(t, int64(i), snap.Version)
		assert.Equal(t, ir.MustSnapshotDigest(snap.State, snap.Context, snap.Version), snap.Digest)
	}
	assert.Nil(t, snaps[0].Event)
	assert.Equal(t, ir.EventKind("TOGGLE"), snaps[1].Event.Kind)
	assert.Nil(t, snaps[1].Event.Payload)
}

func TestReadSnapshots_Empty(t *testing.T) {
	s := createTestStore(t)

	snaps, err := s.ReadSnapshots(t.Context(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, snaps)
	assert.Empty(t, snaps)
}

func TestLatestSnapshot(t *testing.T) {
	s := createTestStore(t)
	mustWriteActor(t, s, createTestActor("a1", 1))

	_, ok, err := s.LatestSnapshot(t.Context(), "a1")
	require.NoError(t, err)
	assert.False(t, ok)

	mustWriteSnapshot(t, s, createTestSnapshot("a1", 0, "inactive", 0, "", 2))
	mustWriteSnapshot(t, s, createTestSnapshot("a1", 1, "active", 0, "TOGGLE", 3))

	got, ok, err := s.LatestSnapshot(t.Context(), "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, ir.StateID("active"), got.State)
}

func TestReadStop_NotStopped(t *testing.T) {
	s := createTestStore(t)
	mustWriteActor(t, s, createTestActor("a1", 1))

	_, ok, err := s.ReadStop(t.Context(), "a1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMaxSeq(t *testing.T) {
	s := createTestStore(t)

	seq, err := s.MaxSeq(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	mustWriteActor(t, s, createTestActor("a1", 1))
	mustWriteSnapshot(t, s, createTestSnapshot("a1", 0, "inactive", 0, "", 2))
	require.NoError(t, s.WriteStop(t.Context(), StopRecord{ActorID: "a1", Version: 0, Seq: 7}))

	seq, err = s.MaxSeq(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestQuery(t *testing.T) {
	s := createTestStore(t)
	mustWriteActor(t, s, createTestActor("a1", 1))

	rows, err := s.Query(t.Context(), "SELECT id FROM actors WHERE machine = ?", "toggle")
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"a1"}, ids)
}

func TestQuerySnapshots_Filter(t *testing.T) {
	s := createTestStore(t)

	mustWriteActor(t, s, createTestActor("a", 1))
	mustWriteSnapshot(t, s, createTestSnapshot("a", 0, "inactive", 0, "", 2))
	mustWriteSnapshot(t, s, createTestSnapshot("a", 1, "active", 0, "TOGGLE", 3))
	mustWriteSnapshot(t, s, createTestSnapshot("a", 2, "active", 1, "INC", 4))

	got, err := s.QuerySnapshots(t.Context(),
		"SELECT "+SnapshotColumns+" FROM snapshots WHERE state = ? AND json_extract(context, ?) = ? ORDER BY seq ASC",
		"active", "$.count", int64(1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Version)
	assert.Equal(t, ir.EventKind("INC"), got[0].Event.Kind)
}

func TestQuerySnapshots_NoMatch(t *testing.T) {
	s := createTestStore(t)

	got, err := s.QuerySnapshots(t.Context(), "SELECT "+SnapshotColumns+" FROM snapshots WHERE state = ?", "nowhere")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
