package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staging-cli/internal/calendar"
	"staging-cli/internal/model"
)

func overlayBase(t *testing.T) *Model {
	t.Helper()
	data := model.StagingData{
		Data: model.Snapshot{Assignables: map[string]map[int]model.AssignableRecord{
			day(18994): {0: {TypeID: 1}},
		}},
		AssignmentTypes: testTypes,
		ScheduleTemplates: []model.ScheduleTemplate{{
			ID:   7,
			Name: "weekend pair",
			AssignmentMembers: []model.AssignmentMember{
				{TypeID: 1, DayOffset: 0},
				{TypeID: 2, DayOffset: 1},
			},
			ConstraintMembers: []model.ConstraintRecord{
				model.NewSingleWorker([]int{0, 1}),
				model.NewMatchOne(intp(0), []model.AssignmentMember{{TypeID: 2, DayOffset: 1}}),
			},
		}},
	}
	m, warnings := Build(data, Options{Location: time.UTC})
	require.Empty(t, warnings)
	return m
}

func dateOf(n int64) *time.Time {
	d := calendar.LocalDate(n, time.UTC)
	return &d
}

func TestApplyProposal_IncompleteIsNoop(t *testing.T) {
	m := overlayBase(t)
	assert.Same(t, m, ApplyProposal(m, nil, &ProposedAddition{Context: AddAssignment, SelectedType: intp(1)}))
	assert.Same(t, m, ApplyProposal(m, dateOf(18996), &ProposedAddition{Context: AddAssignment}))
	assert.Same(t, m, ApplyProposal(m, dateOf(18996), nil))
}

func TestApplyProposal_IsolatesCommittedWeek(t *testing.T) {
	m := overlayBase(t)
	committed := m.WeekAt(0)
	before := committed.Render()

	o := ApplyProposal(m, dateOf(18996), &ProposedAddition{Context: AddAssignment, SelectedType: intp(2), Multiplicity: 2})
	require.NotSame(t, m, o)
	assert.True(t, o.IsOverlay())
	assert.False(t, m.IsOverlay())

	ow := o.WeekAt(0)
	require.NotSame(t, committed, ow)
	assert.Equal(t, 3, ow.Render().RowCount)

	ghosts := o.Proposed()
	require.Len(t, ghosts, 2)
	assert.Equal(t, ProposedRef(0), ghosts[0].Ref())
	assert.Equal(t, ProposedRef(1), ghosts[1].Ref())
	assert.Equal(t, time.Tuesday, ghosts[0].Date().Weekday())
	assert.Empty(t, m.Proposed())

	extra := newRenderedAssignable(ProposedRef(9), ow.Sunday(), model.AssignableRecord{TypeID: 3}, o.Types())
	require.NoError(t, ow.Add(extra))

	after := m.WeekAt(0).Render()
	assert.Equal(t, before.RowCount, after.RowCount)
	assert.Equal(t, before.Cells, after.Cells)

	// Committed assignables are shared, not copied.
	live, _ := m.Assignable(0)
	assert.Same(t, live, ow.Bucket(time.Sunday, 1)[0])
}

func TestApplyProposal_ShiftsAnchorEarlier(t *testing.T) {
	m := overlayBase(t)
	// Ten days before the anchor lands two weeks back.
	o := ApplyProposal(m, dateOf(18984), &ProposedAddition{Context: AddAssignment, SelectedType: intp(1)})

	assert.Equal(t, calendar.AddDays(m.FirstSunday(), -14), o.FirstSunday())
	assert.Equal(t, time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC), m.FirstSunday())

	live, _ := o.Assignable(0)
	assert.Equal(t, 2, o.WeekIndex(live.Date()))
	w2, ok := o.Week(2)
	require.True(t, ok)
	assert.Equal(t, 2, w2.Index())
	assert.Len(t, w2.Bucket(time.Sunday, 1), 1)

	_, ok = o.Week(1)
	assert.False(t, ok)
	assert.Equal(t, 0, o.WeekAt(1).Len())

	w0, ok := o.Week(0)
	require.True(t, ok)
	assert.Equal(t, 1, w0.Len())
	assert.Equal(t, time.Thursday, w0.Assignables()[0].Date().Weekday())

	cw, _ := m.Week(0)
	assert.Equal(t, 0, cw.Index())
	assert.Equal(t, 1, m.WeekCount())
}

func TestApplyProposal_AppendsWeeksAfterEnd(t *testing.T) {
	m := overlayBase(t)
	o := ApplyProposal(m, dateOf(18994+21), &ProposedAddition{Context: AddAssignment, SelectedType: intp(1)})
	assert.Equal(t, m.FirstSunday(), o.FirstSunday())
	w, ok := o.Week(3)
	require.True(t, ok)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 1, m.WeekCount())
}

func TestApplyProposal_ExpandsTemplate(t *testing.T) {
	m := overlayBase(t)
	o := ApplyProposal(m, dateOf(18996), &ProposedAddition{Context: AddScheduleTemplate, SelectedType: intp(7), Multiplicity: 2})

	ghosts := o.Proposed()
	require.Len(t, ghosts, 4)
	assert.Equal(t, 1, ghosts[0].TypeID())
	assert.Equal(t, int64(18996), ghosts[0].EpochDay())
	assert.Equal(t, 2, ghosts[1].TypeID())
	assert.Equal(t, int64(18997), ghosts[1].EpochDay())

	pending := o.PendingConstraints()
	require.Len(t, pending, 4)
	assert.True(t, pending[0].Entailed.Equal(NewRefSet(ProposedRef(0), ProposedRef(1))))
	assert.Equal(t, model.ConstraintMatchOne, pending[1].Record.Class)
	assert.True(t, pending[1].Entailed.Equal(NewRefSet(ProposedRef(0), ProposedRef(1))))
	assert.True(t, pending[3].Entailed.Equal(NewRefSet(ProposedRef(2), ProposedRef(3))))
	assert.Empty(t, m.PendingConstraints())
}

func TestApplyProposal_UnknownTemplateIsNoop(t *testing.T) {
	m := overlayBase(t)
	assert.Same(t, m, ApplyProposal(m, dateOf(18996), &ProposedAddition{Context: AddScheduleTemplate, SelectedType: intp(99)}))
}

func TestApplyProposal_Constraint(t *testing.T) {
	m := overlayBase(t)
	rec := model.NewSingleWorker([]int{0, 4})
	o := ApplyProposal(m, dateOf(18994), &ProposedAddition{Context: AddConstraint, SelectedType: intp(1), Constraint: &rec})
	pending := o.PendingConstraints()
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Entailed.Equal(NewRefSet(LiveRef(0), LiveRef(4))))
	assert.Empty(t, o.Proposed())
}

func TestModel_Extend(t *testing.T) {
	m := overlayBase(t)
	e := m.Extend(2, 1)
	assert.Equal(t, 4, e.WeekCount())
	assert.Equal(t, calendar.AddDays(m.FirstSunday(), -14), e.FirstSunday())
	live, _ := e.Assignable(0)
	assert.Equal(t, 2, e.WeekIndex(live.Date()))
	for i := 0; i < e.WeekCount(); i++ {
		w, ok := e.Week(i)
		require.True(t, ok)
		assert.Equal(t, i, w.Index())
	}
	assert.Equal(t, 1, m.WeekCount())
	assert.Same(t, m, m.Extend(0, 0))
}
