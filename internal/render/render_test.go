package render

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staging-cli/internal/calendar"
	"staging-cli/internal/model"
)

var testTypes = []model.AssignmentType{
	{ID: 1, Name: "Alpha", Priority: 1},
	{ID: 2, Name: "Bravo", Priority: 1},
	{ID: 3, Name: "Zulu", Priority: 2},
}

func intp(v int) *int { return &v }

func day(n int64) string { return calendar.FormatEpochDay(n) }

func build(t *testing.T, snap model.Snapshot) *Model {
	t.Helper()
	m, warnings := Build(model.StagingData{Data: snap, AssignmentTypes: testTypes}, Options{Location: time.UTC})
	require.Empty(t, warnings)
	return m
}

func TestBuild_SingleAssignableScenario(t *testing.T) {
	// 18997 is Wednesday 2022-01-05.
	m := build(t, model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		day(18997): {0: {TypeID: 1}},
	}})

	assert.Equal(t, time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC), m.FirstSunday())
	require.Equal(t, 1, m.WeekCount())

	l := m.WeekAt(0).Render()
	require.Equal(t, 1, l.RowCount)
	ra := l.Cells[0][time.Wednesday]
	require.NotNil(t, ra)
	idx, live := ra.Index()
	assert.True(t, live)
	assert.Equal(t, 0, idx)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if wd != time.Wednesday {
			assert.Nil(t, l.Cell(0, wd))
		}
	}
}

func TestBuild_EpochDay19000IsSaturday(t *testing.T) {
	m := build(t, model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		day(19000): {4: {TypeID: 1}},
	}})
	l := m.WeekAt(0).Render()
	require.Equal(t, 1, l.RowCount)
	require.NotNil(t, l.Cells[0][time.Saturday])
	assert.Equal(t, LiveRef(4), l.Cells[0][time.Saturday].Ref())
	assert.Equal(t, m.FirstSunday(), l.Dates[0])
	assert.Equal(t, calendar.AddDays(m.FirstSunday(), 6), l.Dates[6])
}

func TestBuild_FirstSundayBoundsEveryRecord(t *testing.T) {
	days := []int64{18990, 19003, 19100, 18991, 19500}
	snap := model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{}}
	for i, d := range days {
		snap.Assignables[day(d)] = map[int]model.AssignableRecord{i: {TypeID: 2}}
	}
	m := build(t, snap)

	assert.Equal(t, time.Sunday, m.FirstSunday().Weekday())
	for _, ra := range m.Assignables() {
		assert.False(t, ra.Date().Before(m.FirstSunday()))
	}
}

func TestBuild_WeekIndexMonotonic(t *testing.T) {
	snap := model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{}}
	for i := 0; i < 60; i++ {
		d := int64(19000 + i*3)
		snap.Assignables[day(d)] = map[int]model.AssignableRecord{i: {TypeID: 1}}
	}
	m := build(t, snap)
	all := m.Assignables()
	for i := 1; i < len(all); i++ {
		a, b := all[i], all[i-1]
		if a.Date().After(b.Date()) {
			assert.GreaterOrEqual(t, m.WeekIndex(a.Date()), m.WeekIndex(b.Date()))
		}
	}
}

func TestBuild_FillsGapWeeks(t *testing.T) {
	m := build(t, model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		day(18994): {0: {TypeID: 1}},
		day(19030): {1: {TypeID: 1}},
	}})
	require.Equal(t, 6, m.WeekCount())
	for i := 0; i < m.WeekCount(); i++ {
		w, ok := m.Week(i)
		require.True(t, ok, "week %d", i)
		assert.Equal(t, i, w.Index())
	}
	assert.Equal(t, 0, m.WeekAt(3).Len())
}

func TestBuild_EmptySnapshotHasOneWeek(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC) }
	m, warnings := Build(model.StagingData{}, Options{Location: time.UTC, Now: now})
	require.Empty(t, warnings)
	require.Equal(t, 1, m.WeekCount())
	assert.Equal(t, time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), m.WeekAt(0).Sunday())
	assert.Equal(t, 0, m.WeekAt(0).Render().RowCount)
}

func TestBuild_DropsBadRecords(t *testing.T) {
	snap := model.Snapshot{
		Assignables: map[string]map[int]model.AssignableRecord{
			"garbage":  {9: {TypeID: 1}},
			day(19000): {1: {TypeID: 1}},
		},
		Constraints: map[int]model.ConstraintRecord{
			0: {Class: model.ConstraintClass(7)},
			1: model.NewSingleWorker([]int{1}),
		},
	}
	m, warnings := Build(model.StagingData{Data: snap, AssignmentTypes: testTypes}, Options{Location: time.UTC})
	require.Len(t, warnings, 2)
	assert.ErrorIs(t, warnings[0], calendar.ErrMalformedDate)
	assert.ErrorIs(t, warnings[1], ErrUnknownConstraintClass)

	_, ok := m.Constraint(0)
	assert.False(t, ok)
	_, ok = m.Constraint(1)
	assert.True(t, ok)
	_, ok = m.Assignable(9)
	assert.False(t, ok)
}

func TestWeek_RenderPriorityAndTypeOrder(t *testing.T) {
	sunday := day(18994)
	monday := day(18995)
	m := build(t, model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		sunday: {10: {TypeID: 2}, 11: {TypeID: 2}},
		monday: {20: {TypeID: 2}, 21: {TypeID: 3}, 22: {TypeID: 1}},
	}})
	l := m.WeekAt(0).Render()

	require.Equal(t, 4, l.RowCount)
	require.Len(t, l.PrioritySpans, 2)
	assert.Equal(t, PrioritySpan{Priority: 2, RowSpan: RowSpan{Start: 0, Count: 1}}, l.PrioritySpans[0])
	assert.Equal(t, PrioritySpan{Priority: 1, RowSpan: RowSpan{Start: 1, Count: 3}}, l.PrioritySpans[1])

	require.Len(t, l.TypeSpans, 3)
	assert.Equal(t, "Zulu", l.TypeSpans[0].Name)
	assert.Equal(t, "Alpha", l.TypeSpans[1].Name)
	assert.Equal(t, RowSpan{Start: 2, Count: 2}, l.TypeSpans[2].RowSpan)

	assert.Equal(t, LiveRef(21), l.Cells[0][time.Monday].Ref())
	assert.Equal(t, LiveRef(22), l.Cells[1][time.Monday].Ref())
	assert.Equal(t, LiveRef(10), l.Cells[2][time.Sunday].Ref())
	assert.Equal(t, LiveRef(11), l.Cells[3][time.Sunday].Ref())
	assert.Equal(t, LiveRef(20), l.Cells[2][time.Monday].Ref())
	assert.Nil(t, l.Cells[3][time.Monday])
}

func TestWeek_UnknownTypeRendersAtPriorityZero(t *testing.T) {
	m := build(t, model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		day(18994): {0: {TypeID: 99}, 1: {TypeID: 1}},
	}})
	l := m.WeekAt(0).Render()
	require.Equal(t, 2, l.RowCount)
	assert.Equal(t, "#99", l.TypeSpans[1].Name)
	assert.Equal(t, 0, l.TypeSpans[1].Priority)
}

func TestWeek_Helpers(t *testing.T) {
	m := build(t, model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		day(19000): {0: {TypeID: 1}},
	}})
	w := m.WeekAt(0)
	assert.True(t, w.ContainsDate(w.Sunday()))
	assert.True(t, w.ContainsDate(w.EndDate()))
	assert.False(t, w.ContainsDate(calendar.AddDays(w.EndDate(), 1)))
	assert.False(t, w.ContainsDate(calendar.AddDays(w.Sunday(), -1)))
	assert.Equal(t, "1/2/2022 - 1/8/2022", w.String())

	foreign := newRenderedAssignable(LiveRef(50), calendar.AddDays(w.Sunday(), 9), model.AssignableRecord{TypeID: 1}, m.Types())
	assert.Error(t, w.Add(foreign))
}

func TestWeek_CloneSharesAssignablesNotBuckets(t *testing.T) {
	m := build(t, model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		day(18994): {0: {TypeID: 1}},
	}})
	w := m.WeekAt(0)
	c := w.Clone()
	require.Same(t, w.Bucket(time.Sunday, 1)[0], c.Bucket(time.Sunday, 1)[0])

	extra := newRenderedAssignable(ProposedRef(0), w.Sunday(), model.AssignableRecord{TypeID: 1}, m.Types())
	require.NoError(t, c.Add(extra))
	assert.Len(t, c.Bucket(time.Sunday, 1), 2)
	assert.Len(t, w.Bucket(time.Sunday, 1), 1)
	assert.Equal(t, 1, w.Render().RowCount)
	assert.Equal(t, 2, c.Render().RowCount)
}

func TestCompareAssignables(t *testing.T) {
	m := build(t, model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
		day(18994): {5: {TypeID: 2}, 6: {TypeID: 1}, 7: {TypeID: 3}, 8: {TypeID: 1}},
		day(18993): {9: {TypeID: 1}},
	}})
	var got []int
	for _, ra := range m.Assignables() {
		idx, _ := ra.Index()
		got = append(got, idx)
	}
	assert.Equal(t, []int{9, 7, 6, 8, 5}, got)
}

func TestBuild_LinksCommittedConstraints(t *testing.T) {
	m := build(t, model.Snapshot{
		Assignables: map[string]map[int]model.AssignableRecord{
			day(19000): {1: {TypeID: 1}, 2: {TypeID: 1}, 3: {TypeID: 2}},
		},
		Constraints: map[int]model.ConstraintRecord{
			0: model.NewSingleWorker([]int{1, 2}),
			4: model.NewSingleWorker([]int{2, 3}),
		},
	})
	ra, _ := m.Assignable(2)
	assert.Equal(t, []int{0, 4}, ra.CommittedConstraints())
	assert.Empty(t, ra.ProposedConstraints())
	ra, _ = m.Assignable(3)
	assert.Equal(t, []int{4}, ra.Constraints())
	require.Len(t, m.ConstraintsOf(ra), 1)
}

func TestRefString(t *testing.T) {
	assert.Equal(t, "7", LiveRef(7).String())
	assert.Equal(t, "proposed 3", ProposedRef(3).String())
	assert.Equal(t, "unavailable 2/0", UnavailableRef(2, 0).String())
	assert.NotEqual(t, LiveRef(3), ProposedRef(3))
}

func TestBuild_FromWireJSON(t *testing.T) {
	raw := `{
		"data": {
			"assignables": {"19000": {"0": {"t": 1, "w": 4, "l": true, "c": [4, 5]}}},
			"constraints": {"0": {"t": 1, "d": {"s": [0]}}},
			"summaries": {"4": {"worker_min": 1, "worker_max": 3, "worker_assigned": 2, "worker_active": 1}}
		},
		"assignment_types": [{"id": 1, "name": "Alpha", "priority": 1}],
		"schedule_template_types": [],
		"commitable": [0]
	}`
	var data model.StagingData
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	m, warnings := Build(data, Options{Location: time.UTC})
	require.Empty(t, warnings)

	ra, ok := m.Assignable(0)
	require.True(t, ok)
	w, assigned := ra.AssignedWorker()
	assert.True(t, assigned)
	assert.Equal(t, 4, w)
	assert.True(t, ra.IsLocked())
	assert.Equal(t, []int{4, 5}, ra.Candidates())
	assert.True(t, m.IsCommitable(0))
	assert.Equal(t, 2, m.Summaries()[4].WorkerAssigned)
}

func TestParseRef(t *testing.T) {
	for _, r := range []Ref{LiveRef(0), LiveRef(12), ProposedRef(4), UnavailableRef(3, 1)} {
		got, err := ParseRef(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	for _, bad := range []string{"", "proposed x", "unavailable 3", "abc"} {
		_, err := ParseRef(bad)
		assert.Error(t, err, bad)
	}
}
