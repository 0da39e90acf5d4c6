package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/fsm"
	"github.com/roach88/statekeep/internal/ir"
)

func recordToggleRun(t *testing.T, e *Engine) ActorRef {
	t.Helper()
	spec, def := toggleMachine(t)
	ctx := context.Background()

	ref, err := e.Spawn(ctx, spec, def, nil)
	require.NoError(t, err)
	for _, kind := range []ir.EventKind{"TOGGLE", "INC", "INC", "INC", "END", "INC"} {
		_, _, err := e.Send(ctx, ref.ID, ir.NewEvent(kind))
		require.NoError(t, err)
	}
	require.NoError(t, e.Stop(ctx, ref.ID))
	return ref
}

func TestReplay_Reproduces(t *testing.T) {
	st := setupTestStore(t)
	e := newTestEngine(t, WithStore(st))
	ref := recordToggleRun(t, e)
	_, def := toggleMachine(t)

	res, err := Replay(context.Background(), st, ref.ID, def)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Empty(t, res.Mismatches)
	assert.Equal(t, 6, res.Versions)
	assert.Equal(t, "toggle", res.Machine)
	assert.Equal(t, ir.StateID("inactive"), res.Final.State)
	assert.Equal(t, ir.IRInt(3), res.Final.Context["count"])

	again, err := Replay(context.Background(), st, ref.ID, def)
	require.NoError(t, err)
	assert.Equal(t, res, again, "replay is repeatable")
}

func TestReplay_DetectsDivergence(t *testing.T) {
	st := setupTestStore(t)
	e := newTestEngine(t, WithStore(st))
	ref := recordToggleRun(t, e)

	incByTwo := func(c ir.IRObject, _ ir.Event) (ir.IRObject, error) {
		n, _ := c.Int("count")
		c["count"] = ir.IRInt(n + 2)
		return c, nil
	}
	def, err := fsm.Define(
		[]ir.StateID{"inactive", "active"},
		"inactive",
		[]fsm.Rule[ir.IRObject]{
			{From: "inactive", On: "TOGGLE", Target: "active"},
			{From: "active", On: "INC", Actions: []fsm.Action[ir.IRObject]{incByTwo}},
			{From: "active", On: "END", Target: "inactive"},
		}...,
	)
	require.NoError(t, err)

	res, err := Replay(context.Background(), st, ref.ID, def)
	require.NoError(t, err)
	assert.False(t, res.OK())
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, int64(2), res.Mismatches[0].Version)
	assert.Equal(t, "digest differs", res.Mismatches[0].Reason)
	assert.NotEqual(t, res.Mismatches[0].Expected, res.Mismatches[0].Actual)
	assert.Equal(t, 2, res.Versions)
}

func TestReplay_IgnoredEvent(t *testing.T) {
	st := setupTestStore(t)
	e := newTestEngine(t, WithStore(st))
	ref := recordToggleRun(t, e)

	// No TOGGLE rule: the first journaled event is ignored on replay.
	def, err := fsm.Define(
		[]ir.StateID{"inactive", "active"},
		"inactive",
		[]fsm.Rule[ir.IRObject]{
			{From: "active", On: "END", Target: "inactive"},
		}...,
	)
	require.NoError(t, err)

	res, err := Replay(context.Background(), st, ref.ID, def)
	require.NoError(t, err)
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, int64(1), res.Mismatches[0].Version)
	assert.Equal(t, "event TOGGLE was ignored", res.Mismatches[0].Reason)
}

func TestReplay_UnknownActor(t *testing.T) {
	st := setupTestStore(t)
	_, def := toggleMachine(t)

	_, err := Replay(context.Background(), st, "ghost", def)
	require.Error(t, err)
}
