package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statekeep/internal/testutil"
)

// journalToggle runs the toggle machine against a fresh database and
// returns its path. The actor is "actor-1".
func journalToggle(t *testing.T, events string) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "journal.db")
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		IDGenerator: testutil.NewSequentialIDGenerator("actor"),
	}
	cmd := newRunCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(events))
	cmd.SetArgs([]string{specsDir, "--machine", "toggle", "--db", dbPath})
	require.NoError(t, cmd.Execute())
	return dbPath
}

func executeTrace(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTraceMissingDatabase(t *testing.T) {
	_, err := executeTrace(t, "text")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--db or STATEKEEP_DB is required")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	_, err := executeTrace(t, "text", "--db", "/nonexistent/dir/journal.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestTraceEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")

	out, err := executeTrace(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No actors journaled")

	out, err = executeTrace(t, "json", "--db", dbPath)
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []any{}, resp.Data)
}

func TestTraceListsActors(t *testing.T) {
	dbPath := journalToggle(t, "- kind: TOGGLE\n- kind: INC\n")

	out, err := executeTrace(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "actor-1  toggle  v2 active  (stopped)")
}

func TestTraceActorTimeline(t *testing.T) {
	dbPath := journalToggle(t, "- kind: INC\n- kind: TOGGLE\n- kind: INC\n- kind: END\n")

	out, err := executeTrace(t, "text", "--db", dbPath, "--actor", "actor-1")
	require.NoError(t, err)

	assert.Contains(t, out, "Actor: actor-1")
	assert.Contains(t, out, "Machine: toggle (")
	// The ignored INC is not journaled.
	assert.Contains(t, out, `v0 (start) -> inactive {"count":0}`)
	assert.Contains(t, out, `v1 TOGGLE -> active {"count":0}`)
	assert.Contains(t, out, `v2 INC -> active {"count":1}`)
	assert.Contains(t, out, `v3 END -> inactive {"count":1}`)
	assert.Contains(t, out, "stop at v3")
	assert.Contains(t, out, "Stats: 4 snapshot(s), 2 transition(s), stopped=true")
}

func TestTraceActorTimelineJSON(t *testing.T) {
	dbPath := journalToggle(t, "- kind: TOGGLE\n")

	out, err := executeTrace(t, "json", "--db", dbPath, "--actor", "actor-1")
	require.NoError(t, err)

	var resp struct {
		Status  string      `json:"status"`
		ActorID string      `json:"actor_id"`
		Data    TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "actor-1", resp.ActorID)
	assert.Equal(t, "toggle", resp.Data.Actor.Machine)
	require.Len(t, resp.Data.Timeline, 3)

	// Journal order: snapshots by seq, then the stop.
	assert.Equal(t, "snapshot", resp.Data.Timeline[0].Type)
	assert.Nil(t, resp.Data.Timeline[0].Event)
	assert.Equal(t, "TOGGLE", string(resp.Data.Timeline[1].Event.Kind))
	assert.Len(t, resp.Data.Timeline[1].Digest, 64)
	assert.Equal(t, "stop", resp.Data.Timeline[2].Type)
	assert.Less(t, resp.Data.Timeline[1].Seq, resp.Data.Timeline[2].Seq)
	assert.True(t, resp.Data.Stats.Stopped)
	assert.Equal(t, 1, resp.Data.Stats.Transitions)
}

func TestTraceUnknownActor(t *testing.T) {
	dbPath := journalToggle(t, "")

	_, err := executeTrace(t, "text", "--db", dbPath, "--actor", "nobody")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "actor not found: nobody")
}

func TestTraceWhere(t *testing.T) {
	dbPath := journalToggle(t, "- kind: TOGGLE\n- kind: INC\n- kind: INC\n")

	out, err := executeTrace(t, "text", "--db", dbPath, "--where", "state=active", "--where", "context.count=1")
	require.NoError(t, err)
	assert.Contains(t, out, `actor-1 v2 INC -> active {"count":1}`)
	assert.Equal(t, 1, strings.Count(out, "\n"))

	out, err = executeTrace(t, "text", "--db", dbPath, "--where", `context.count="1"`)
	require.NoError(t, err)
	assert.Contains(t, out, "No matching snapshots")
}

func TestTraceWhereJSON(t *testing.T) {
	dbPath := journalToggle(t, "- kind: TOGGLE\n- kind: INC\n")

	out, err := executeTrace(t, "json", "--db", dbPath, "--actor", "actor-1", "--where", "state=active", "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []TraceEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "actor-1", resp.Data[0].ActorID)
	assert.Equal(t, int64(1), resp.Data[0].Version)
	assert.Equal(t, "TOGGLE", string(resp.Data[0].Event.Kind))
}

func TestTraceWhereInvalid(t *testing.T) {
	dbPath := journalToggle(t, "")

	tests := []struct {
		name  string
		where string
	}{
		{"no equals", "state"},
		{"unknown field", "digest=abc"},
		{"bad context key", "context.a-b=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeTrace(t, "text", "--db", dbPath, "--where", tt.where)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), "invalid --where")
		})
	}
}

func TestTraceHelpText(t *testing.T) {
	cmd := NewTraceCommand(&RootOptions{})
	assert.Contains(t, cmd.Long, "--actor")
	assert.Contains(t, cmd.Long, "timeline")
	assert.Contains(t, cmd.Long, "--where")
}
