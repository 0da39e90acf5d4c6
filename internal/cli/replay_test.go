package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/store"
)

func executeReplay(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewReplayCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestReplayMissingDatabase(t *testing.T) {
	_, err := executeReplay(t, "text")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")

	out, err := executeReplay(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No actors found in database.")
}

func TestReplayReproducesJournal(t *testing.T) {
	dbPath := journalToggle(t, "- kind: TOGGLE\n- kind: INC\n- kind: BREAK\n- kind: INC\n- kind: END\n")

	out, err := executeReplay(t, "text", "--db", dbPath)
	require.NoError(t, err)
	// v0..v4: start, TOGGLE, INC, INC, END. BREAK rolled back.
	assert.Contains(t, out, "✓ actor-1 (toggle): 5 version(s) reproduced")
	assert.Contains(t, out, "✓ All 1 actor(s) reproduced")

	// Replay writes nothing, so a second run gives the same answer.
	again, err := executeReplay(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestReplayJSON(t *testing.T) {
	dbPath := journalToggle(t, "- kind: TOGGLE\n")

	out, err := executeReplay(t, "json", "--db", dbPath, "--actor", "actor-1")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.AllReproduced)
	require.Len(t, resp.Data.Actors, 1)
	assert.Equal(t, 2, resp.Data.Actors[0].Versions)
	assert.Empty(t, resp.Data.Actors[0].Mismatches)
}

func TestReplayDetectsTamperedDigest(t *testing.T) {
	dbPath := journalToggle(t, "- kind: TOGGLE\n- kind: INC\n")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE snapshots SET digest = 'tampered' WHERE actor_id = 'actor-1' AND version = 2`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := executeReplay(t, "text", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ actor-1 (toggle): diverged after 2 version(s)")
	assert.Contains(t, out, "v2: digest differs")
	assert.Contains(t, out, "expected tampered")
}

func TestReplayAgainstChangedSpecs(t *testing.T) {
	dbPath := journalToggle(t, "- kind: TOGGLE\n")

	changed := writeSpec(t, "toggle.cue", `
package machines

machine: toggle: {
	initial: "inactive"
	states: ["inactive", "active"]
	context: count: 0
	on: inactive: TOGGLE: "active"
}
`)

	out, err := executeReplay(t, "text", "--db", dbPath, "--specs", changed)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "spec hash differs")

	// The unchanged specs replay cleanly.
	_, err = executeReplay(t, "text", "--db", dbPath, "--specs", specsDir)
	require.NoError(t, err)
}

func TestReplayUnknownActor(t *testing.T) {
	dbPath := journalToggle(t, "")

	_, err := executeReplay(t, "text", "--db", dbPath, "--actor", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "actor not found: ghost")
}

func TestReplayHelpText(t *testing.T) {
	cmd := NewReplayCommand(&RootOptions{})
	assert.Contains(t, cmd.Long, "Exit codes")
	assert.Contains(t, cmd.Long, "writes nothing")
}
