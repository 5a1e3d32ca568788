package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday 2022-01-05 (day 18997) holds #1 and the locked #2, Thursday holds #3.
// Constraint 1 matches #1 against a Night on the next day (#3) and a Day two days later
// (missing, so it shows up as an unavailable ghost).
const fixture = `{
  "data": {
    "assignables": {
      "18997": {"1": {"t": 1, "l": false}, "2": {"t": 1, "l": true}},
      "18998": {"3": {"t": 2, "l": false}}
    },
    "constraints": {
      "0": {"t": 1, "d": {"s": [1, 3]}},
      "1": {"t": 0, "d": {"m": 1, "c": [{"assignment_type_id": 2, "day_offset": 1}, {"assignment_type_id": 1, "day_offset": 2}]}}
    },
    "summaries": {}
  },
  "assignment_types": [
    {"id": 1, "name": "Day", "priority": 2},
    {"id": 2, "name": "Night", "priority": 1}
  ],
  "schedule_template_types": [
    {
      "id": 7,
      "name": "Pair",
      "assignment_members": [{"assignment_type_id": 1, "day_offset": 0}, {"assignment_type_id": 2, "day_offset": 0}],
      "constraint_members": [{"t": 1, "d": {"s": [0, 1]}}]
    }
  ]
}`

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

// setupWorkspace isolates config and env, imports the fixture and returns the flags that
// point later commands at the same cache.
func setupWorkspace(t *testing.T) []string {
	t.Helper()
	t.Setenv("STAGING_CONFIG_DIR", t.TempDir())
	for _, k := range []string{"STAGING_DIR", "STAGING_WORKSPACE", "STAGING_SERVER", "STAGING_TZ", "STAGING_FORMAT", "STAGING_LOG_LEVEL", "STAGING_COOKIE"} {
		t.Setenv(k, "")
	}
	t.Setenv("NO_COLOR", "1")

	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	base := []string{"--dir", filepath.Join(dir, "cache"), "--tz", "UTC"}
	out, stderr, err := runCLI(t, append(append([]string{}, base...), "import", path))
	require.NoError(t, err, string(stderr))
	env := decode(t, out)
	data := env["data"].(map[string]any)
	assert.EqualValues(t, 3, data["assignables"])
	assert.EqualValues(t, 2, data["constraints"])
	assert.EqualValues(t, 1, data["weeks"])
	assert.Equal(t, "2022-01-02", data["first_sunday"])
	return base
}

func with(base []string, args ...string) []string {
	return append(append([]string{}, base...), args...)
}

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

type recordedServer struct {
	mu       sync.Mutex
	commands []map[string]any
}

func (r *recordedServer) sent() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.commands...)
}

// serveCommands answers every command with body and records the decoded requests.
func serveCommands(t *testing.T, body string) (*httptest.Server, *recordedServer) {
	t.Helper()
	rec := &recordedServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var cmd map[string]any
		_ = json.Unmarshal(b, &cmd)
		rec.mu.Lock()
		rec.commands = append(rec.commands, cmd)
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestWeeksAndWeek(t *testing.T) {
	base := setupWorkspace(t)

	out, _, err := runCLI(t, with(base, "weeks"))
	require.NoError(t, err)
	rows := decode(t, out)["data"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.EqualValues(t, 3, row["row_count"])
	assert.EqualValues(t, 3, row["assignables"])
	assert.Equal(t, "2022-01-02", row["sunday"])

	out, _, err = runCLI(t, with(base, "week", "2022-01-05"))
	require.NoError(t, err)
	week := decode(t, out)["data"].(map[string]any)
	assert.EqualValues(t, 0, week["index"])
	assert.Len(t, week["rows"], 3)

	out, _, err = runCLI(t, with(base, "--format", "text", "week", "0"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "Week of 1/2/2022 - 1/8/2022")
	assert.Contains(t, string(out), "#3 - S0,m1")

	out, _, err = runCLI(t, with(base, "--format", "edn", "weeks"))
	require.NoError(t, err)
	assert.Contains(t, string(out), ":row-count 3")

	_, stderr, err := runCLI(t, with(base, "week", "2021-12-01"))
	require.Error(t, err)
	assert.Contains(t, string(stderr), "before the first week")
}

func TestConstraintsListing(t *testing.T) {
	base := setupWorkspace(t)

	out, _, err := runCLI(t, with(base, "constraints"))
	require.NoError(t, err)
	list := decode(t, out)["data"].([]any)
	require.Len(t, list, 2)

	sw := list[0].(map[string]any)
	assert.Equal(t, "single_worker", sw["class"])
	assert.Equal(t, []any{1.0, 3.0}, sw["members"])
	assert.Equal(t, true, sw["valid"])

	mo := list[1].(map[string]any)
	assert.Equal(t, "match_one", mo["class"])
	assert.EqualValues(t, 1, mo["to_match"])
	assert.ElementsMatch(t, []any{"1", "3", "unavailable 1/1"}, mo["entailed"])

	out, _, err = runCLI(t, with(base, "constraint", "show", "1"))
	require.NoError(t, err)
	tokens := decode(t, out)["meta"].(map[string]any)["tokens"].([]any)
	got := map[string]string{}
	for _, tok := range tokens {
		m := tok.(map[string]any)
		got[m["ref"].(string)] = m["token"].(string)
	}
	assert.Equal(t, "match_one", got["1"])
	assert.Equal(t, "match_one_candidate", got["3"])
	assert.Equal(t, "match_one_candidate", got["unavailable 1/1"])
}

func TestProposeDoesNotTouchCache(t *testing.T) {
	base := setupWorkspace(t)

	out, stderr, err := runCLI(t, with(base, "propose", "--date", "2022-01-06", "--type", "2", "--multiple", "2"))
	require.NoError(t, err, string(stderr))
	data := decode(t, out)["data"].(map[string]any)
	assert.Equal(t, true, data["overlay"])
	assert.Equal(t, "assignment", data["context"])
	assert.Len(t, data["ghosts"], 2)

	out, _, err = runCLI(t, with(base, "propose", "--date", "2022-01-04", "--template", "7"))
	require.NoError(t, err)
	data = decode(t, out)["data"].(map[string]any)
	assert.Len(t, data["ghosts"], 2)
	pending := data["pending_constraints"].([]any)
	require.Len(t, pending, 1)
	assert.Len(t, pending[0].(map[string]any)["entailed"], 2)

	out, _, err = runCLI(t, with(base, "propose", "--date", "2021-12-20", "--type", "1"))
	require.NoError(t, err)
	data = decode(t, out)["data"].(map[string]any)
	assert.Equal(t, "2021-12-19", data["first_sunday"])

	_, _, err = runCLI(t, with(base, "propose", "--date", "2022-01-04", "--type", "1", "--template", "7"))
	assert.Error(t, err)

	out, _, err = runCLI(t, with(base, "weeks"))
	require.NoError(t, err)
	rows := decode(t, out)["data"].([]any)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 3, rows[0].(map[string]any)["assignables"])
}

func TestDryRunCommands(t *testing.T) {
	base := setupWorkspace(t)

	out, _, err := runCLI(t, with(base, "assign", "1", "--worker", "5", "--dry-run"))
	require.NoError(t, err)
	cmd := decode(t, out)["data"].(map[string]any)["command"].(map[string]any)
	assert.Equal(t, "modify", cmd["action"])
	assert.Equal(t, "staging", cmd["context"])
	params := cmd["parameters"].(map[string]any)
	assert.Equal(t, "assign", params["type"])
	assert.EqualValues(t, 1, params["staging_id"])
	assert.EqualValues(t, 5, params["worker_id"])

	_, stderr, err := runCLI(t, with(base, "assign", "2", "--worker", "5", "--dry-run"))
	require.Error(t, err)
	assert.Contains(t, string(stderr), "locked")

	out, _, err = runCLI(t, with(base, "lock", "3", "1", "--dry-run"))
	require.NoError(t, err)
	cmd = decode(t, out)["data"].(map[string]any)["command"].(map[string]any)
	assert.Equal(t, "bulk_modify", cmd["action"])
	assert.Equal(t, []any{1.0, 3.0}, cmd["parameters"].(map[string]any)["staging_ids"])

	out, _, err = runCLI(t, with(base, "constraint", "members", "0", "1", "2", "3", "--dry-run"))
	require.NoError(t, err)
	params = decode(t, out)["data"].(map[string]any)["command"].(map[string]any)["parameters"].(map[string]any)
	assert.Equal(t, "modify_constraint", params["type"])
	assert.Equal(t, map[string]any{"t": 1.0, "d": map[string]any{"s": []any{1.0, 2.0, 3.0}}}, params["data"])

	_, stderr, err = runCLI(t, with(base, "constraint", "members", "0", "3", "1", "--dry-run"))
	require.Error(t, err)
	assert.Contains(t, string(stderr), "nothing to submit")

	_, stderr, err = runCLI(t, with(base, "constraint", "members", "0", "1", "--dry-run"))
	require.Error(t, err)
	assert.Contains(t, string(stderr), "at least two members")

	out, _, err = runCLI(t, with(base, "constraint", "match", "1", "--candidate", "2:1", "--dry-run"))
	require.NoError(t, err)
	params = decode(t, out)["data"].(map[string]any)["command"].(map[string]any)["parameters"].(map[string]any)
	d := params["data"].(map[string]any)["d"].(map[string]any)
	assert.EqualValues(t, 1, d["m"])
	assert.Len(t, d["c"], 1)
}

func TestAssignCommitsAndCachesDelta(t *testing.T) {
	base := setupWorkspace(t)
	srv, rec := serveCommands(t, `{"success": true, "contents": {
		"updates": {"assignables": {"18997": {"1": {"t": 1, "w": 5, "l": false}}}},
		"deletions": {},
		"messages": ["assigned"]
	}}`)

	out, stderr, err := runCLI(t, with(base, "--server", srv.URL, "assign", "1", "--worker", "5"))
	require.NoError(t, err, string(stderr))
	data := decode(t, out)["data"].(map[string]any)
	assert.Equal(t, []any{"assigned"}, data["messages"])
	assert.EqualValues(t, 1, data["updated_assignables"])

	sent := rec.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "modify", sent[0]["action"])
	assert.Equal(t, "assign", sent[0]["parameters"].(map[string]any)["type"])

	// The delta was written to the cache; no server is needed to see it.
	out, _, err = runCLI(t, with(base, "week", "0"))
	require.NoError(t, err)
	found := false
	for _, row := range decode(t, out)["data"].(map[string]any)["rows"].([]any) {
		for _, cell := range row.([]any) {
			c, ok := cell.(map[string]any)
			if ok && c["ref"] == "1" {
				found = true
				assert.EqualValues(t, 5, c["worker"])
			}
		}
	}
	assert.True(t, found)
}

func TestServerFailureKeepsCache(t *testing.T) {
	base := setupWorkspace(t)
	srv, _ := serveCommands(t, `{"success": false, "message": "worker 5 is on leave"}`)

	_, stderr, err := runCLI(t, with(base, "--server", srv.URL, "unassign", "1"))
	require.Error(t, err)
	assert.Contains(t, string(stderr), "worker 5 is on leave")

	srv2, _ := serveCommands(t, `{"not_allowed": true}`)
	_, stderr, err = runCLI(t, with(base, "--server", srv2.URL, "unassign", "1"))
	require.Error(t, err)
	assert.Contains(t, string(stderr), "STAGING_COOKIE")

	_, stderr, err = runCLI(t, with(base, "unassign", "1"))
	require.Error(t, err)
	assert.Contains(t, string(stderr), "no server configured")
}

func TestFetchReplacesCache(t *testing.T) {
	base := setupWorkspace(t)
	updated := strings.Replace(fixture, `"18998": {"3": {"t": 2, "l": false}}`, `"19010": {"9": {"t": 2, "l": false}}`, 1)
	srv, rec := serveCommands(t, `{"success": true, "contents": {"update_type": "view", "update_data": `+updated+`}}`)

	out, stderr, err := runCLI(t, with(base, "--server", srv.URL, "fetch"))
	require.NoError(t, err, string(stderr))
	data := decode(t, out)["data"].(map[string]any)
	assert.EqualValues(t, 3, data["assignables"])
	assert.EqualValues(t, 3, data["weeks"])
	require.Len(t, rec.sent(), 1)
	assert.Equal(t, "view", rec.sent()[0]["action"])

	out, _, err = runCLI(t, with(base, "weeks"))
	require.NoError(t, err)
	assert.Len(t, decode(t, out)["data"], 3)
}

func TestMissingSnapshot(t *testing.T) {
	t.Setenv("STAGING_CONFIG_DIR", t.TempDir())
	_, stderr, err := runCLI(t, []string{"--dir", t.TempDir(), "weeks"})
	require.Error(t, err)
	assert.Contains(t, string(stderr), "staging fetch")
}

func TestConfigUseAndShow(t *testing.T) {
	t.Setenv("STAGING_CONFIG_DIR", t.TempDir())
	t.Setenv("STAGING_WORKSPACE", "")
	t.Setenv("STAGING_SERVER", "")
	t.Setenv("STAGING_DIR", "")
	t.Setenv("STAGING_TZ", "")

	_, stderr, err := runCLI(t, []string{"config", "use", "north"})
	require.Error(t, err)
	assert.Contains(t, string(stderr), "pass --server")

	_, stderr, err = runCLI(t, []string{"config", "use", "north", "--server", "https://scheduler.example.com/api", "--tz", "America/Chicago"})
	require.NoError(t, err, string(stderr))

	out, _, err := runCLI(t, []string{"config", "show"})
	require.NoError(t, err)
	data := decode(t, out)["data"].(map[string]any)
	assert.Equal(t, "north", data["current_workspace"])
	resolved := data["resolved"].(map[string]any)
	assert.Equal(t, "north", resolved["workspace"])
	assert.Equal(t, "https://scheduler.example.com/api", resolved["server"])
	assert.Equal(t, "America/Chicago", resolved["timezone"])

	_, stderr, err = runCLI(t, []string{"config", "use", "north", "--tz", "Not/AZone"})
	require.Error(t, err)
	assert.Contains(t, string(stderr), "invalid config")
}

func TestDocs(t *testing.T) {
	out, _, err := runCLI(t, []string{"docs"})
	require.NoError(t, err)
	topics := decode(t, out)["data"].(map[string]any)["topics"].([]any)
	assert.NotEmpty(t, topics)

	out, _, err = runCLI(t, []string{"docs", "overview", "--raw"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "#"))

	_, _, err = runCLI(t, []string{"docs", "nope"})
	assert.Error(t, err)
}

func TestExportWritesPages(t *testing.T) {
	base := setupWorkspace(t)
	dir := t.TempDir()

	out, stderr, err := runCLI(t, with(base, "export", "--to", dir, "--html"))
	require.NoError(t, err, string(stderr))
	written := decode(t, out)["data"].(map[string]any)["written"].([]any)
	assert.Len(t, written, 4)
	assert.FileExists(t, filepath.Join(dir, "weeks", "2022-01-02.md"))
	assert.FileExists(t, filepath.Join(dir, "weeks", "2022-01-02.html"))

	_, stderr, err = runCLI(t, with(base, "export", "--to", dir))
	require.Error(t, err)
	assert.Contains(t, string(stderr), "--overwrite")
}
