package render

import (
	"fmt"
	"time"

	"staging-cli/internal/calendar"
	"staging-cli/internal/model"
)

// AddContext says what a proposal adds.
type AddContext int

const (
	AddAssignment AddContext = iota
	AddScheduleTemplate
	AddConstraint
)

func (c AddContext) String() string {
	switch c {
	case AddAssignment:
		return "assignment"
	case AddScheduleTemplate:
		return "schedule_template"
	case AddConstraint:
		return "constraint"
	default:
		return fmt.Sprintf("add_context(%d)", int(c))
	}
}

// ProposedAddition is a pending, uncommitted addition. SelectedType is an assignment type id
// for AddAssignment and a template id for AddScheduleTemplate.
type ProposedAddition struct {
	Context      AddContext
	SelectedType *int
	Multiplicity int
	Constraint   *model.ConstraintRecord
}

// Ready reports whether the proposal has everything the overlay needs.
func (p *ProposedAddition) Ready(selected *time.Time) bool {
	if p == nil || p.SelectedType == nil || selected == nil {
		return false
	}
	if p.Context == AddConstraint && p.Constraint == nil {
		return false
	}
	return true
}

func (p *ProposedAddition) times() int {
	if p.Multiplicity <= 0 {
		return 1
	}
	return p.Multiplicity
}

// PendingConstraint is a constraint that exists only in an overlay: either a constraint member
// of a proposed schedule template or a proposed new constraint.
type PendingConstraint struct {
	Record   model.ConstraintRecord
	Entailed RefSet
}

// ApplyProposal layers p over the committed model m at the selected date. When the proposal is
// incomplete m itself is returned. Otherwise the result is a new model that owns clones of
// every week it touches; nothing reachable from m is modified.
func ApplyProposal(m *Model, selected *time.Time, p *ProposedAddition) *Model {
	if !p.Ready(selected) {
		return m
	}
	y, mo, d := selected.In(m.loc).Date()
	date := time.Date(y, mo, d, 0, 0, 0, 0, m.loc)

	o := &overlayBuilder{m: m.shallowCopy(), owned: map[*Week]struct{}{}}
	o.m.overlay = true
	o.m.proposed = make(map[Ref]*RenderedAssignable, len(m.proposed))
	for k, v := range m.proposed {
		o.m.proposed[k] = v
	}
	o.m.templateCs = append([]PendingConstraint(nil), m.templateCs...)
	o.next = len(m.proposed)

	switch p.Context {
	case AddAssignment:
		for n := 0; n < p.times(); n++ {
			o.addGhost(*p.SelectedType, date)
		}
	case AddScheduleTemplate:
		tmpl, ok := m.templates.Get(*p.SelectedType)
		if !ok {
			m.log.Warn("proposal names unknown schedule template", "template", *p.SelectedType)
			return m
		}
		for n := 0; n < p.times(); n++ {
			o.addTemplate(tmpl, date)
		}
	case AddConstraint:
		rec := p.Constraint.Clone()
		c, err := NewConstraint(-1, rec)
		if err != nil {
			m.log.Warn("proposal carries an unusable constraint", "error", err)
			return m
		}
		o.m.templateCs = append(o.m.templateCs, PendingConstraint{Record: rec, Entailed: c.Entailed(o.m)})
	default:
		return m
	}
	m.log.Debug("applied proposal",
		"context", p.Context.String(),
		"date", date.Format(time.DateOnly),
		"ghosts", len(o.m.proposed)-len(m.proposed))
	return o.m
}

type overlayBuilder struct {
	m     *Model
	owned map[*Week]struct{}
	next  int
}

// week returns an overlay-owned week for index i, cloning the committed one on first touch.
func (o *overlayBuilder) week(i int) *Week {
	for len(o.m.weeks) <= i {
		o.m.weeks = append(o.m.weeks, nil)
	}
	w := o.m.weeks[i]
	switch {
	case w == nil:
		w = newWeek(i, calendar.AddDays(o.m.firstSunday, i*calendar.DaysPerWeek), o.m.types)
	case !o.isOwned(w):
		w = w.Clone()
	default:
		return w
	}
	o.m.weeks[i] = w
	o.owned[w] = struct{}{}
	return w
}

func (o *overlayBuilder) isOwned(w *Week) bool {
	_, ok := o.owned[w]
	return ok
}

func (o *overlayBuilder) addGhost(typeID int, date time.Time) *RenderedAssignable {
	i := o.m.WeekIndex(date)
	if i < 0 {
		// Only ever moves the anchor earlier. shiftEarlier clones every stored week.
		o.m.shiftEarlier(-i)
		for _, w := range o.m.weeks {
			if w != nil {
				o.owned[w] = struct{}{}
			}
		}
		i = 0
	}
	ref := ProposedRef(o.next)
	o.next++
	ra := newRenderedAssignable(ref, date, model.AssignableRecord{TypeID: typeID}, o.m.types)
	o.m.proposed[ref] = ra
	// The date is inside week i by construction.
	_ = o.week(i).Add(ra)
	return ra
}

// addTemplate adds one ghost per assignment member and one pending constraint per
// constraint member. Constraint members refer to assignment members by position.
func (o *overlayBuilder) addTemplate(tmpl model.ScheduleTemplate, date time.Time) {
	ghosts := make([]*RenderedAssignable, len(tmpl.AssignmentMembers))
	for k, am := range tmpl.AssignmentMembers {
		ghosts[k] = o.addGhost(am.TypeID, calendar.AddDays(date, am.DayOffset))
	}
	refOf := func(pos int) (Ref, bool) {
		if pos < 0 || pos >= len(ghosts) {
			return Ref{}, false
		}
		return ghosts[pos].ref, true
	}

	for _, cm := range tmpl.ConstraintMembers {
		pc := PendingConstraint{Record: cm.Clone(), Entailed: RefSet{}}
		switch cm.Class {
		case model.ConstraintSingleWorker:
			if cm.SingleWorker == nil {
				continue
			}
			for _, pos := range cm.SingleWorker.Members {
				if ref, ok := refOf(pos); ok {
					pc.Entailed.Add(ref)
				}
			}
		case model.ConstraintMatchOne:
			if cm.MatchOne == nil || cm.MatchOne.ToMatch == nil {
				continue
			}
			anchorRef, ok := refOf(*cm.MatchOne.ToMatch)
			if !ok {
				continue
			}
			pc.Entailed.Add(anchorRef)
			anchor := ghosts[*cm.MatchOne.ToMatch]
			for _, cand := range cm.MatchOne.Candidates {
				day := anchor.epochDay + int64(cand.DayOffset)
				for _, g := range ghosts {
					if g.epochDay == day && g.TypeID() == cand.TypeID && g != anchor {
						pc.Entailed.Add(g.ref)
					}
				}
				for _, ra := range o.m.AssignablesOn(day) {
					if ra.TypeID() == cand.TypeID {
						pc.Entailed.Add(ra.ref)
					}
				}
			}
		default:
			o.m.log.Warn("template carries unknown constraint class", "template", tmpl.ID, "class", int(cm.Class))
			continue
		}
		o.m.templateCs = append(o.m.templateCs, pc)
	}
}
