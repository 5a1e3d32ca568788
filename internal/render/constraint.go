package render

import (
	"errors"
	"fmt"
	"slices"

	"staging-cli/internal/calendar"
	"staging-cli/internal/model"
)

var (
	ErrInvalidConstraintDetails = errors.New("invalid constraint details")
	ErrUnknownConstraintClass   = errors.New("unknown constraint class")
)

// Resolver looks up live assignables. *Model implements it.
type Resolver interface {
	Assignable(index int) (*RenderedAssignable, bool)
	AssignablesOn(day int64) []*RenderedAssignable
	Types() *TypeTable
}

// TokenType tells a renderer how a constraint relates to one assignable.
type TokenType int

const (
	TokenNone TokenType = iota
	TokenSingleWorker
	TokenMatchOneToMatch
	TokenMatchOneCandidate
)

func (t TokenType) String() string {
	switch t {
	case TokenSingleWorker:
		return "single_worker"
	case TokenMatchOneToMatch:
		return "match_one"
	case TokenMatchOneCandidate:
		return "match_one_candidate"
	default:
		return "none"
	}
}

// Constraint wraps a committed constraint record and an optional proposed replacement.
// Accessors resolve through the proposal when one is set.
type Constraint struct {
	index     int
	committed model.ConstraintRecord
	proposed  *model.ConstraintRecord
	highlight model.HighlightMode
}

// NewConstraint wraps rec. Unknown classes are rejected with ErrUnknownConstraintClass.
func NewConstraint(index int, rec model.ConstraintRecord) (*Constraint, error) {
	switch rec.Class {
	case model.ConstraintMatchOne:
		if rec.MatchOne == nil {
			rec = model.NewMatchOne(nil, nil)
		}
	case model.ConstraintSingleWorker:
		if rec.SingleWorker == nil {
			rec = model.NewSingleWorker(nil)
		}
	default:
		return nil, fmt.Errorf("constraint %d: %w: %d", index, ErrUnknownConstraintClass, int(rec.Class))
	}
	return &Constraint{index: index, committed: rec.Clone()}, nil
}

func (c *Constraint) Index() int { return c.index }

func (c *Constraint) Class() model.ConstraintClass { return c.committed.Class }

func (c *Constraint) current() model.ConstraintRecord {
	if c.proposed != nil {
		return *c.proposed
	}
	return c.committed
}

// CurrentData returns a deep copy of the current details, ready to send.
func (c *Constraint) CurrentData() model.ConstraintRecord { return c.current().Clone() }

// CommittedData returns a deep copy of the committed details.
func (c *Constraint) CommittedData() model.ConstraintRecord { return c.committed.Clone() }

func (c *Constraint) HasProposedDetails() bool { return c.proposed != nil }

// ToMatch returns the MatchOne to-match index.
func (c *Constraint) ToMatch() (int, bool) {
	cur := c.current()
	if cur.Class != model.ConstraintMatchOne || cur.MatchOne.ToMatch == nil {
		return 0, false
	}
	return *cur.MatchOne.ToMatch, true
}

// Templates returns the MatchOne candidate templates.
func (c *Constraint) Templates() []model.AssignmentMember {
	cur := c.current()
	if cur.Class != model.ConstraintMatchOne {
		return nil
	}
	return slices.Clone(cur.MatchOne.Candidates)
}

// Members returns the SingleWorker member indices, sorted.
func (c *Constraint) Members() []int {
	cur := c.current()
	if cur.Class != model.ConstraintSingleWorker {
		return nil
	}
	return slices.Clone(cur.SingleWorker.Members)
}

// Validate reports why the current details cannot be submitted.
func (c *Constraint) Validate() error {
	cur := c.current()
	switch cur.Class {
	case model.ConstraintMatchOne:
		if cur.MatchOne.ToMatch == nil {
			return fmt.Errorf("constraint %d: %w: match_one has no assignable to match", c.index, ErrInvalidConstraintDetails)
		}
		if len(cur.MatchOne.Candidates) == 0 {
			return fmt.Errorf("constraint %d: %w: match_one has no candidate templates", c.index, ErrInvalidConstraintDetails)
		}
	case model.ConstraintSingleWorker:
		if len(model.NormalizeMembers(cur.SingleWorker.Members)) < 2 {
			return fmt.Errorf("constraint %d: %w: single_worker needs at least two members", c.index, ErrInvalidConstraintDetails)
		}
	}
	return nil
}

func (c *Constraint) Valid() bool { return c.Validate() == nil }

// ValidateIn also rejects a MatchOne whose to-match assignable is not live in r.
func (c *Constraint) ValidateIn(r Resolver) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Orphaned(r) {
		idx, _ := c.ToMatch()
		return fmt.Errorf("constraint %d: %w: to-match assignable %d is gone", c.index, ErrInvalidConstraintDetails, idx)
	}
	return nil
}

// Candidates resolves MatchOne templates against the live assignables. Templates with no
// live match come back as unavailable ghosts dated relative to the to-match assignable.
// Returns nothing when the to-match assignable is not live.
func (c *Constraint) Candidates(r Resolver) (live []int, unavailable []*RenderedAssignable) {
	toMatch, ok := c.ToMatch()
	if !ok {
		return nil, nil
	}
	anchor, ok := r.Assignable(toMatch)
	if !ok {
		return nil, nil
	}
	seen := map[int]struct{}{}
	for slot, tmpl := range c.Templates() {
		day := anchor.EpochDay() + int64(tmpl.DayOffset)
		matched := false
		for _, ra := range r.AssignablesOn(day) {
			idx, isLive := ra.Index()
			if !isLive || ra.TypeID() != tmpl.TypeID {
				continue
			}
			matched = true
			if _, dup := seen[idx]; !dup {
				seen[idx] = struct{}{}
				live = append(live, idx)
			}
		}
		if !matched {
			ghost := newRenderedAssignable(
				UnavailableRef(c.index, slot),
				calendar.AddDays(anchor.Date(), tmpl.DayOffset),
				model.AssignableRecord{TypeID: tmpl.TypeID},
				r.Types(),
			)
			ghost.addCommittedConstraint(c.index)
			unavailable = append(unavailable, ghost)
		}
	}
	slices.Sort(live)
	return live, unavailable
}

// Entailed computes the assignables the current details apply to. For MatchOne this is the
// to-match index, every live template match and one unavailable ref per unmatched template.
func (c *Constraint) Entailed(r Resolver) RefSet {
	cur := c.current()
	out := RefSet{}
	switch cur.Class {
	case model.ConstraintMatchOne:
		toMatch, ok := c.ToMatch()
		if !ok {
			return out
		}
		out.Add(LiveRef(toMatch))
		live, unavailable := c.Candidates(r)
		for _, idx := range live {
			out.Add(LiveRef(idx))
		}
		for _, g := range unavailable {
			out.Add(g.Ref())
		}
	case model.ConstraintSingleWorker:
		for _, idx := range cur.SingleWorker.Members {
			out.Add(LiveRef(idx))
		}
	}
	return out
}

// TokenFor classifies ra relative to this constraint.
func (c *Constraint) TokenFor(ra *RenderedAssignable, r Resolver) TokenType {
	switch c.Class() {
	case model.ConstraintSingleWorker:
		if idx, ok := ra.Index(); ok && slices.Contains(c.Members(), idx) {
			return TokenSingleWorker
		}
	case model.ConstraintMatchOne:
		if ra.Ref().Kind == RefUnavailable {
			if ra.Ref().Owner == c.index {
				return TokenMatchOneCandidate
			}
			return TokenNone
		}
		idx, ok := ra.Index()
		if !ok {
			return TokenNone
		}
		if m, ok := c.ToMatch(); ok && m == idx {
			return TokenMatchOneToMatch
		}
		live, _ := c.Candidates(r)
		if slices.Contains(live, idx) {
			return TokenMatchOneCandidate
		}
	}
	return TokenNone
}

// ProposeDetails replaces the proposed details. It unmarks this constraint from the
// assignables entailed by the old details, stores the proposal (clearing it when rec is nil
// or equal to the committed record) and marks the assignables entailed by the new details.
// The class must not change.
func (c *Constraint) ProposeDetails(m *Model, rec *model.ConstraintRecord) error {
	if rec != nil {
		if rec.Class != c.committed.Class {
			return fmt.Errorf("constraint %d: %w: cannot change class %s to %s",
				c.index, ErrInvalidConstraintDetails, c.committed.Class, rec.Class)
		}
		if (rec.Class == model.ConstraintMatchOne && rec.MatchOne == nil) ||
			(rec.Class == model.ConstraintSingleWorker && rec.SingleWorker == nil) {
			return fmt.Errorf("constraint %d: %w: missing details", c.index, ErrInvalidConstraintDetails)
		}
	}

	for ref := range c.Entailed(m) {
		if ra, ok := m.assignables[ref.Index]; ok && ref.IsLive() {
			ra.removeProposedConstraint(c.index)
		}
	}

	if rec == nil || rec.Equal(c.committed) {
		c.proposed = nil
	} else {
		next := rec.Clone()
		if next.Class == model.ConstraintSingleWorker {
			next.SingleWorker.Members = model.NormalizeMembers(next.SingleWorker.Members)
		}
		c.proposed = &next
	}

	if c.proposed != nil {
		for ref := range c.Entailed(m) {
			if ra, ok := m.assignables[ref.Index]; ok && ref.IsLive() {
				ra.addProposedConstraint(c.index)
			}
		}
	}
	m.refreshUnavailable(c)
	m.log.Debug("proposed constraint details", "constraint", c.index, "pending", c.proposed != nil)
	return nil
}

func (c *Constraint) ClearProposedDetails(m *Model) error { return c.ProposeDetails(m, nil) }

// ProposeMembers proposes a new SingleWorker member set.
func (c *Constraint) ProposeMembers(m *Model, members []int) error {
	if c.Class() != model.ConstraintSingleWorker {
		return fmt.Errorf("constraint %d: %w: members apply to single_worker only", c.index, ErrInvalidConstraintDetails)
	}
	rec := model.NewSingleWorker(members)
	return c.ProposeDetails(m, &rec)
}

// ProposeToMatch keeps the current templates and replaces the to-match index.
func (c *Constraint) ProposeToMatch(m *Model, index int) error {
	if c.Class() != model.ConstraintMatchOne {
		return fmt.Errorf("constraint %d: %w: to-match applies to match_one only", c.index, ErrInvalidConstraintDetails)
	}
	rec := model.NewMatchOne(&index, c.Templates())
	return c.ProposeDetails(m, &rec)
}

// ProposeCandidates keeps the current to-match index and replaces the templates.
func (c *Constraint) ProposeCandidates(m *Model, templates []model.AssignmentMember) error {
	if c.Class() != model.ConstraintMatchOne {
		return fmt.Errorf("constraint %d: %w: candidates apply to match_one only", c.index, ErrInvalidConstraintDetails)
	}
	var toMatch *int
	if idx, ok := c.ToMatch(); ok {
		toMatch = &idx
	}
	rec := model.NewMatchOne(toMatch, templates)
	return c.ProposeDetails(m, &rec)
}

// AffectedByDeletion reports whether deleting assignable index would force this constraint
// to be deleted as well: the MatchOne to-match goes away, or a SingleWorker loses its last member.
func (c *Constraint) AffectedByDeletion(index int) bool {
	switch c.Class() {
	case model.ConstraintMatchOne:
		m, ok := c.ToMatch()
		return ok && m == index
	case model.ConstraintSingleWorker:
		members := c.Members()
		return len(members) == 1 && members[0] == index
	}
	return false
}

// Orphaned reports a MatchOne whose to-match assignable is not live.
func (c *Constraint) Orphaned(r Resolver) bool {
	if c.Class() != model.ConstraintMatchOne {
		return false
	}
	m, ok := c.ToMatch()
	if !ok {
		return false
	}
	_, live := r.Assignable(m)
	return !live
}

func (c *Constraint) EntityKind() model.EntityKind { return model.EntityConstraint }

func (c *Constraint) EntityKey() string { return fmt.Sprintf("c:%d", c.index) }

func (c *Constraint) Highlight() model.HighlightMode { return c.highlight }

func (c *Constraint) SetHighlight(h model.HighlightMode) { c.highlight = h }
