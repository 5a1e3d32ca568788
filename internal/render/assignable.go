package render

import (
	"sort"
	"time"

	"staging-cli/internal/calendar"
	"staging-cli/internal/model"
)

// RenderedAssignable wraps one assignable record with its resolved date and the indices of
// the constraints that entail it. Constraints are held by index and resolved through the
// owning Model.
type RenderedAssignable struct {
	ref      Ref
	date     time.Time
	epochDay int64
	record   model.AssignableRecord
	types    *TypeTable

	committed map[int]struct{}
	proposed  map[int]struct{}

	highlight model.HighlightMode
}

func newRenderedAssignable(ref Ref, date time.Time, rec model.AssignableRecord, types *TypeTable) *RenderedAssignable {
	return &RenderedAssignable{
		ref:       ref,
		date:      date,
		epochDay:  calendar.EpochDay(date),
		record:    rec,
		types:     types,
		committed: map[int]struct{}{},
		proposed:  map[int]struct{}{},
	}
}

func (ra *RenderedAssignable) Ref() Ref { return ra.ref }

// Index returns the snapshot index; ghosts have none.
func (ra *RenderedAssignable) Index() (int, bool) {
	if !ra.ref.IsLive() {
		return 0, false
	}
	return ra.ref.Index, true
}

// IsGhost reports whether the entry is display-only (proposed or unavailable).
func (ra *RenderedAssignable) IsGhost() bool { return !ra.ref.IsLive() }

func (ra *RenderedAssignable) Date() time.Time { return ra.date }

func (ra *RenderedAssignable) EpochDay() int64 { return ra.epochDay }

func (ra *RenderedAssignable) Record() model.AssignableRecord { return ra.record.Clone() }

func (ra *RenderedAssignable) TypeID() int { return ra.record.TypeID }

func (ra *RenderedAssignable) Type() model.AssignmentType {
	at, _ := ra.types.Get(ra.record.TypeID)
	return at
}

func (ra *RenderedAssignable) Priority() int { return ra.types.Priority(ra.record.TypeID) }

func (ra *RenderedAssignable) IsLocked() bool { return ra.record.Locked }

func (ra *RenderedAssignable) AssignedWorker() (int, bool) { return ra.record.AssignedWorker() }

func (ra *RenderedAssignable) Candidates() []int { return append([]int(nil), ra.record.Candidates...) }

// CommittedConstraints lists constraints entailing this assignable in the snapshot.
func (ra *RenderedAssignable) CommittedConstraints() []int { return sortedKeys(ra.committed) }

// ProposedConstraints lists constraints whose proposed details entail this assignable.
func (ra *RenderedAssignable) ProposedConstraints() []int { return sortedKeys(ra.proposed) }

// Constraints is the union of committed and proposed.
func (ra *RenderedAssignable) Constraints() []int {
	all := make(map[int]struct{}, len(ra.committed)+len(ra.proposed))
	for k := range ra.committed {
		all[k] = struct{}{}
	}
	for k := range ra.proposed {
		all[k] = struct{}{}
	}
	return sortedKeys(all)
}

func (ra *RenderedAssignable) addCommittedConstraint(i int) { ra.committed[i] = struct{}{} }

func (ra *RenderedAssignable) addProposedConstraint(i int) { ra.proposed[i] = struct{}{} }

func (ra *RenderedAssignable) removeProposedConstraint(i int) { delete(ra.proposed, i) }

func (ra *RenderedAssignable) ClearProposedConstraints() { ra.proposed = map[int]struct{}{} }

func (ra *RenderedAssignable) EntityKind() model.EntityKind { return model.EntityAssignable }

func (ra *RenderedAssignable) EntityKey() string { return "a:" + ra.ref.String() }

func (ra *RenderedAssignable) Highlight() model.HighlightMode { return ra.highlight }

func (ra *RenderedAssignable) SetHighlight(m model.HighlightMode) { ra.highlight = m }

// CompareAssignables orders by date, then priority (higher first), then type order, then ref.
func CompareAssignables(a, b *RenderedAssignable) int {
	if a.epochDay != b.epochDay {
		if a.epochDay < b.epochDay {
			return -1
		}
		return 1
	}
	if pa, pb := a.Priority(), b.Priority(); pa != pb {
		return pb - pa
	}
	if c := a.types.Compare(a.TypeID(), b.TypeID()); c != 0 {
		return c
	}
	switch {
	case a.ref.less(b.ref):
		return -1
	case b.ref.less(a.ref):
		return 1
	}
	return 0
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
