// Package render turns a staging snapshot into weekly grids, resolves constraint entailment
// and layers speculative additions over the committed view.
//
// A Model built from a snapshot is the committed view. ApplyProposal returns a separate Model
// that shares every committed RenderedAssignable but owns cloned copies of the weeks it touches.
package render

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"staging-cli/internal/calendar"
	"staging-cli/internal/model"
)

type Options struct {
	Location  *time.Location
	Now       func() time.Time
	Logger    *slog.Logger
	TypeOrder TypeOrder
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

type Model struct {
	firstSunday time.Time
	loc         *time.Location

	// weeks may hold nil slots; WeekAt hands out empty weeks for them.
	weeks []*Week

	assignables map[int]*RenderedAssignable
	byDay       map[int64]map[int]*RenderedAssignable
	proposed    map[Ref]*RenderedAssignable
	unavailable map[Ref]*RenderedAssignable
	constraints map[int]*Constraint
	templateCs  []PendingConstraint

	types      *TypeTable
	templates  *TemplateTable
	summaries  map[int]model.SummaryRecord
	commitable map[int]struct{}

	overlay bool
	log     *slog.Logger
}

// Build renders data. Records that cannot be rendered (malformed day keys, duplicate indices,
// unknown constraint classes) are dropped and returned as warnings.
func Build(data model.StagingData, opts Options) (*Model, []error) {
	log := opts.logger()
	norm, warnings := calendar.Normalize(data.Data, calendar.Options{
		Location: opts.Location,
		Now:      opts.Now,
		Logger:   log,
	})
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	m := &Model{
		firstSunday: norm.FirstSunday,
		loc:         loc,
		assignables: map[int]*RenderedAssignable{},
		byDay:       map[int64]map[int]*RenderedAssignable{},
		proposed:    map[Ref]*RenderedAssignable{},
		unavailable: map[Ref]*RenderedAssignable{},
		constraints: map[int]*Constraint{},
		types:       NewTypeTable(data.AssignmentTypes, opts.TypeOrder),
		templates:   NewTemplateTable(data.ScheduleTemplates),
		summaries:   make(map[int]model.SummaryRecord, len(data.Data.Summaries)),
		commitable:  make(map[int]struct{}, len(data.Commitable)),
		log:         log,
	}
	for k, v := range data.Data.Summaries {
		m.summaries[k] = v
	}
	for _, idx := range data.Commitable {
		m.commitable[idx] = struct{}{}
	}

	type dayKey struct {
		day int64
		key string
	}
	var days []dayKey
	for key := range data.Data.Assignables {
		day, err := calendar.ParseEpochDay(key)
		if err != nil {
			// Normalize already reported it.
			continue
		}
		days = append(days, dayKey{day, key})
	}
	sort.Slice(days, func(i, j int) bool {
		if days[i].day != days[j].day {
			return days[i].day < days[j].day
		}
		return days[i].key < days[j].key
	})

	for _, dk := range days {
		date, ok := norm.Dates[dk.day]
		if !ok {
			date = calendar.LocalDate(dk.day, loc)
		}
		recs := data.Data.Assignables[dk.key]
		indices := make([]int, 0, len(recs))
		for idx := range recs {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			if _, dup := m.assignables[idx]; dup {
				err := fmt.Errorf("assignable %d appears on more than one day; keeping the first", idx)
				log.Warn("dropping duplicate assignable", "index", idx, "key", dk.key)
				warnings = append(warnings, err)
				continue
			}
			ra := newRenderedAssignable(LiveRef(idx), date, recs[idx].Clone(), m.types)
			m.addLive(ra)
		}
	}

	cindices := make([]int, 0, len(data.Data.Constraints))
	for idx := range data.Data.Constraints {
		cindices = append(cindices, idx)
	}
	sort.Ints(cindices)
	for _, idx := range cindices {
		c, err := NewConstraint(idx, data.Data.Constraints[idx])
		if err != nil {
			log.Warn("dropping constraint", "index", idx, "error", err)
			warnings = append(warnings, err)
			continue
		}
		m.constraints[idx] = c
		m.linkCommitted(c)
	}

	m.fillGaps()
	log.Debug("built render model",
		"first_sunday", m.firstSunday.Format(time.DateOnly),
		"weeks", len(m.weeks),
		"assignables", len(m.assignables),
		"constraints", len(m.constraints))
	return m, warnings
}

func (m *Model) addLive(ra *RenderedAssignable) {
	idx, _ := ra.Index()
	m.assignables[idx] = ra
	if m.byDay[ra.epochDay] == nil {
		m.byDay[ra.epochDay] = map[int]*RenderedAssignable{}
	}
	m.byDay[ra.epochDay][idx] = ra
	w := m.ensureWeek(m.WeekIndex(ra.date))
	_ = w.Add(ra)
}

// linkCommitted records c in the committed set of every live assignable it entails and keeps
// its unavailable ghosts.
func (m *Model) linkCommitted(c *Constraint) {
	for ref := range c.Entailed(m) {
		if !ref.IsLive() {
			continue
		}
		if ra, ok := m.assignables[ref.Index]; ok {
			ra.addCommittedConstraint(c.index)
		} else {
			m.log.Debug("constraint references missing assignable", "constraint", c.index, "assignable", ref.Index)
		}
	}
	m.refreshUnavailable(c)
}

// refreshUnavailable replaces c's unavailable ghosts with those of its current details.
func (m *Model) refreshUnavailable(c *Constraint) {
	for ref := range m.unavailable {
		if ref.Owner == c.index {
			delete(m.unavailable, ref)
		}
	}
	_, unavailable := c.Candidates(m)
	for _, g := range unavailable {
		m.unavailable[g.Ref()] = g
	}
}

// ensureWeek returns the stored week at index i (i >= 0), creating it.
func (m *Model) ensureWeek(i int) *Week {
	for len(m.weeks) <= i {
		m.weeks = append(m.weeks, nil)
	}
	if m.weeks[i] == nil {
		m.weeks[i] = newWeek(i, calendar.AddDays(m.firstSunday, i*calendar.DaysPerWeek), m.types)
	}
	return m.weeks[i]
}

// fillGaps replaces nil slots between populated weeks and guarantees at least one week.
func (m *Model) fillGaps() {
	if len(m.weeks) == 0 {
		m.ensureWeek(0)
		return
	}
	first, last := -1, -1
	for i, w := range m.weeks {
		if w != nil {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	for i := first + 1; i < last; i++ {
		m.ensureWeek(i)
	}
}

func (m *Model) FirstSunday() time.Time { return m.firstSunday }

func (m *Model) Location() *time.Location { return m.loc }

// IsOverlay reports whether m was produced by ApplyProposal.
func (m *Model) IsOverlay() bool { return m.overlay }

func (m *Model) Types() *TypeTable { return m.types }

func (m *Model) Templates() *TemplateTable { return m.templates }

// WeekIndex is the number of whole weeks from the anchor to d (negative before it).
func (m *Model) WeekIndex(d time.Time) int { return calendar.WeeksBetween(m.firstSunday, d) }

func (m *Model) WeekCount() int { return len(m.weeks) }

// Week returns the stored week at i, if any.
func (m *Model) Week(i int) (*Week, bool) {
	if i < 0 || i >= len(m.weeks) || m.weeks[i] == nil {
		return nil, false
	}
	return m.weeks[i], true
}

// WeekAt returns the week at i, or a fresh empty one for unfilled slots. The empty week is
// not stored.
func (m *Model) WeekAt(i int) *Week {
	if w, ok := m.Week(i); ok {
		return w
	}
	return newWeek(i, calendar.AddDays(m.firstSunday, i*calendar.DaysPerWeek), m.types)
}

// WeekOf returns the week containing d.
func (m *Model) WeekOf(d time.Time) *Week { return m.WeekAt(m.WeekIndex(d)) }

// Weeks returns every week from the anchor to the last stored one.
func (m *Model) Weeks() []*Week {
	out := make([]*Week, len(m.weeks))
	for i := range m.weeks {
		out[i] = m.WeekAt(i)
	}
	return out
}

// Assignable returns a live assignable by snapshot index.
func (m *Model) Assignable(index int) (*RenderedAssignable, bool) {
	ra, ok := m.assignables[index]
	return ra, ok
}

// AssignablesOn returns the live assignables on one epoch day.
func (m *Model) AssignablesOn(day int64) []*RenderedAssignable {
	byIdx := m.byDay[day]
	out := make([]*RenderedAssignable, 0, len(byIdx))
	for _, ra := range byIdx {
		out = append(out, ra)
	}
	sort.Slice(out, func(i, j int) bool { return CompareAssignables(out[i], out[j]) < 0 })
	return out
}

// Assignables returns every live assignable in display order.
func (m *Model) Assignables() []*RenderedAssignable {
	out := make([]*RenderedAssignable, 0, len(m.assignables))
	for _, ra := range m.assignables {
		out = append(out, ra)
	}
	sort.Slice(out, func(i, j int) bool { return CompareAssignables(out[i], out[j]) < 0 })
	return out
}

// Proposed returns the ghosts added by the overlay.
func (m *Model) Proposed() []*RenderedAssignable {
	return sortedGhosts(m.proposed)
}

// Unavailable returns the ghosts standing in for unmatched MatchOne templates, following
// proposed details where a constraint has them.
func (m *Model) Unavailable() []*RenderedAssignable {
	return sortedGhosts(m.unavailable)
}

func sortedGhosts(in map[Ref]*RenderedAssignable) []*RenderedAssignable {
	out := make([]*RenderedAssignable, 0, len(in))
	for _, ra := range in {
		out = append(out, ra)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ref.less(out[j].ref) })
	return out
}

// Lookup resolves any ref, including ghosts.
func (m *Model) Lookup(ref Ref) (*RenderedAssignable, bool) {
	switch ref.Kind {
	case RefLive:
		return m.Assignable(ref.Index)
	case RefProposed:
		ra, ok := m.proposed[ref]
		return ra, ok
	case RefUnavailable:
		ra, ok := m.unavailable[ref]
		return ra, ok
	}
	return nil, false
}

func (m *Model) Constraint(index int) (*Constraint, bool) {
	c, ok := m.constraints[index]
	return c, ok
}

// Constraints returns all constraints ordered by index.
func (m *Model) Constraints() []*Constraint {
	out := make([]*Constraint, 0, len(m.constraints))
	for _, c := range m.constraints {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// ConstraintsOf resolves the committed and proposed constraint indices of ra.
func (m *Model) ConstraintsOf(ra *RenderedAssignable) []*Constraint {
	var out []*Constraint
	for _, idx := range ra.Constraints() {
		if c, ok := m.constraints[idx]; ok {
			out = append(out, c)
		}
	}
	return out
}

// OrphanedConstraints lists MatchOne constraints whose to-match assignable is gone. The caller
// is expected to delete them.
func (m *Model) OrphanedConstraints() []int {
	var out []int
	for _, c := range m.Constraints() {
		if c.Orphaned(m) {
			out = append(out, c.index)
		}
	}
	return out
}

// ConstraintsAffectedByDeletion lists constraints that must go if assignable index is deleted.
func (m *Model) ConstraintsAffectedByDeletion(index int) []int {
	var out []int
	for _, c := range m.Constraints() {
		if c.AffectedByDeletion(index) {
			out = append(out, c.index)
		}
	}
	return out
}

// PendingConstraints returns the constraints that exist only in this overlay.
func (m *Model) PendingConstraints() []PendingConstraint {
	return append([]PendingConstraint(nil), m.templateCs...)
}

func (m *Model) Summaries() map[int]model.SummaryRecord {
	out := make(map[int]model.SummaryRecord, len(m.summaries))
	for k, v := range m.summaries {
		out[k] = v
	}
	return out
}

func (m *Model) IsCommitable(index int) bool {
	_, ok := m.commitable[index]
	return ok
}

func (m *Model) Commitable() []int {
	out := make([]int, 0, len(m.commitable))
	for k := range m.commitable {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Extend returns a model with empty weeks added before the first and after the last week.
// Adding weeks before moves the anchor earlier.
func (m *Model) Extend(before, after int) *Model {
	if before < 0 {
		before = 0
	}
	if after < 0 {
		after = 0
	}
	if before == 0 && after == 0 {
		return m
	}
	out := m.shallowCopy()
	if before > 0 {
		out.shiftEarlier(before)
	}
	for i := 0; i < after; i++ {
		out.ensureWeek(len(out.weeks))
	}
	for i := 0; i < before; i++ {
		out.ensureWeek(i)
	}
	return out
}

// shallowCopy shares everything except the week slice header.
func (m *Model) shallowCopy() *Model {
	out := *m
	out.weeks = append([]*Week(nil), m.weeks...)
	return &out
}

// shiftEarlier moves the anchor n weeks back. Existing weeks are re-indexed on clones so the
// weeks of m keep their indices.
func (m *Model) shiftEarlier(n int) {
	m.firstSunday = calendar.AddDays(m.firstSunday, -n*calendar.DaysPerWeek)
	shifted := make([]*Week, n, n+len(m.weeks))
	for _, w := range m.weeks {
		if w == nil {
			shifted = append(shifted, nil)
			continue
		}
		c := w.Clone()
		c.index += n
		shifted = append(shifted, c)
	}
	m.weeks = shifted
}

// Describe is a one-line summary used in logs and the weeks listing.
func (m *Model) Describe() string {
	return "first_sunday=" + m.firstSunday.Format(time.DateOnly) +
		" weeks=" + strconv.Itoa(len(m.weeks)) +
		" assignables=" + strconv.Itoa(len(m.assignables)) +
		" constraints=" + strconv.Itoa(len(m.constraints))
}
