package format

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staging-cli/internal/calendar"
	"staging-cli/internal/model"
	"staging-cli/internal/render"
)

func TestWriteEDN_KeysAndNumbers(t *testing.T) {
	var buf bytes.Buffer
	v := map[string]any{
		"19000":      map[string]any{"7": map[string]any{"t": 1, "l": false}},
		"row_count":  3,
		"has space":  nil,
		"ratio":      0.5,
		"long_index": int64(9007199254740993),
	}
	require.NoError(t, WriteEDN(&buf, v, false))
	assert.Equal(t, `{19000 {7 {:l false :t 1}} "has space" nil :long-index 9007199254740993 :ratio 0.5 :row-count 3}`+"\n", buf.String())
}

func TestWriteEDN_Pretty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEDN(&buf, map[string]any{"a": []int{1, 2}}, true))
	assert.Equal(t, "{\n  :a [\n    1\n    2\n  ]\n}\n", buf.String())
}

type textPayload struct {
	N int `json:"n"`
}

func (p textPayload) WriteText(w io.Writer) error {
	_, err := io.WriteString(w, "n is "+strings.Repeat("x", p.N)+"\n")
	return err
}

func TestWrite_Formats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, textPayload{N: 2}, "text", false))
	assert.Equal(t, "n is xx\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, textPayload{N: 2}, "", false))
	assert.Equal(t, "{\"n\":2}\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, map[string]int{"n": 1}, "text", false))
	assert.Equal(t, "{\n  \"n\": 1\n}\n", buf.String())

	assert.Error(t, Write(&buf, nil, "xml", false))
}

func gridModel(t *testing.T) *render.Model {
	t.Helper()
	w := 4
	data := model.StagingData{
		Data: model.Snapshot{
			Assignables: map[string]map[int]model.AssignableRecord{
				// Wednesday 2022-01-05.
				calendar.FormatEpochDay(18997): {1: {TypeID: 1, WorkerID: &w, Locked: true}, 2: {TypeID: 2}},
				calendar.FormatEpochDay(18998): {3: {TypeID: 1}},
			},
			Constraints: map[int]model.ConstraintRecord{0: model.NewSingleWorker([]int{1, 3})},
		},
		AssignmentTypes: []model.AssignmentType{{ID: 1, Name: "Day", Priority: 2}, {ID: 2, Name: "Night", Priority: 1}},
	}
	m, warnings := render.Build(data, render.Options{Location: time.UTC})
	require.Empty(t, warnings)
	return m
}

func TestCellLabel(t *testing.T) {
	m := gridModel(t)
	ra1, _ := m.Assignable(1)
	ra2, _ := m.Assignable(2)
	assert.Equal(t, "#1 w4* S0", CellLabel(m, ra1))
	assert.Equal(t, "#2 -", CellLabel(m, ra2))

	sel := time.Date(2022, 1, 4, 0, 0, 0, 0, time.UTC)
	typeID := 2
	v := render.ApplyProposal(m, &sel, &render.ProposedAddition{Context: render.AddAssignment, SelectedType: &typeID})
	require.Len(t, v.Proposed(), 1)
	assert.Equal(t, "+Night", CellLabel(v, v.Proposed()[0]))
}

func TestRenderWeek_PlainGrid(t *testing.T) {
	m := gridModel(t)
	out := RenderWeek(m, m.WeekAt(0), GridOptions{CellWidth: 10, Cursor: &GridPos{Row: 0, Weekday: time.Thursday}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	require.Len(t, lines, 6)
	assert.Equal(t, "Week of 1/2/2022 - 1/8/2022", lines[0])
	assert.Contains(t, lines[1], "Wed 1/5")
	assert.True(t, strings.HasPrefix(lines[3], "Day   │"))
	assert.Contains(t, lines[3], "#1 w4* S0")
	assert.Contains(t, lines[3], "[#3 - S0]")
	assert.True(t, strings.HasPrefix(lines[5], "Night │"))
	assert.Contains(t, lines[5], "#2 -")
	assert.NotContains(t, out, "\x1b[")
}

func TestRenderWeek_Empty(t *testing.T) {
	m := gridModel(t)
	out := RenderWeek(m, m.WeekAt(5), GridOptions{})
	assert.Contains(t, out, "(no assignables)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "", truncate("abc", 0))
}
