// Package staging holds the editing session: the current staging data, the render pipeline
// derived from it, the pending proposal and the selection state.
//
// The pipeline is pull-based. Every change to the data bumps a generation counter; Committed
// and View rebuild only when their inputs changed since the last call.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"staging-cli/internal/calendar"
	"staging-cli/internal/logging"
	"staging-cli/internal/model"
	"staging-cli/internal/mutate"
	"staging-cli/internal/render"
	"staging-cli/internal/selection"
)

type Options struct {
	Render render.Options
	Logger *slog.Logger
}

type viewKey struct {
	committed *render.Model
	selected  int64
	hasDate   bool
	proposal  uint64
}

type Session struct {
	data       model.StagingData
	generation uint64
	cmdr       mutate.Commander
	opts       render.Options
	log        *slog.Logger

	committed    *render.Model
	committedGen uint64
	warnings     []error
	// Pagination requested through Extend, reapplied on every rebuild.
	extendBefore, extendAfter int

	selected        *time.Time
	proposal        *render.ProposedAddition
	proposalVersion uint64

	view    *render.Model
	viewFor viewKey

	Selection *selection.Store
}

// New starts a session over data. cmdr may be nil for read-only use.
func New(data model.StagingData, cmdr mutate.Commander, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	ro := opts.Render
	if ro.Logger == nil {
		ro.Logger = log
	}
	return &Session{
		data:       data,
		generation: 1,
		cmdr:       cmdr,
		opts:       ro,
		log:        log,
		Selection:  selection.New(log),
	}
}

func (s *Session) Data() model.StagingData { return s.data }

// Commander is nil for read-only sessions.
func (s *Session) Commander() mutate.Commander { return s.cmdr }

func (s *Session) Generation() uint64 { return s.generation }

func (s *Session) Location() *time.Location {
	if s.opts.Location == nil {
		return time.Local
	}
	return s.opts.Location
}

// Replace swaps in a full reload. Handles from the previous generation must be discarded, so
// every selection is cleared.
func (s *Session) Replace(data model.StagingData) {
	s.data = data
	s.generation++
	s.Selection.ClearSelection()
	s.log.Info("staging data replaced", "generation", s.generation, "assignables", data.Data.AssignableCount())
}

// ApplyDelta merges a server delta into the snapshot. Selections are carried over to the
// rebuilt entities with the same keys; members that no longer exist are dropped.
func (s *Session) ApplyDelta(d model.Delta) []error {
	next, warnings := mutate.Merge(s.data.Data, d)
	s.data.Data = next
	s.generation++
	for _, w := range warnings {
		s.log.Warn("delta entry dropped", "error", w)
	}
	s.View()
	return warnings
}

// Committed returns the render model of the current snapshot with no proposal applied,
// along with the warnings produced while building it.
func (s *Session) Committed() (*render.Model, []error) {
	if s.committed != nil && s.committedGen == s.generation {
		return s.committed, s.warnings
	}
	m, warnings := render.Build(s.data, s.opts)
	if s.committed != nil {
		carryProposals(s.committed, m, s.log)
	}
	if s.extendBefore > 0 || s.extendAfter > 0 {
		m = m.Extend(s.extendBefore, s.extendAfter)
	}
	s.committed, s.committedGen, s.warnings = m, s.generation, warnings
	s.log.Debug("rebuilt committed model", "generation", s.generation, "summary", m.Describe())
	return m, warnings
}

// carryProposals re-proposes pending constraint details from the previous model onto the
// rebuilt one. A proposal that now equals the committed record collapses.
func carryProposals(prev, next *render.Model, log *slog.Logger) {
	for _, old := range prev.Constraints() {
		if !old.HasProposedDetails() {
			continue
		}
		c, ok := next.Constraint(old.Index())
		if !ok {
			continue
		}
		rec := old.CurrentData()
		if err := c.ProposeDetails(next, &rec); err != nil {
			log.Warn("dropping pending constraint proposal", "constraint", old.Index(), "error", err)
		}
	}
}

// View returns the committed model with the current proposal layered on top. Whenever it is
// rebuilt, the selection is rebound to the new entities so highlights stay on what is shown.
func (s *Session) View() *render.Model {
	committed, _ := s.Committed()
	key := viewKey{committed: committed, proposal: s.proposalVersion}
	if s.selected != nil {
		key.hasDate = true
		key.selected = calendar.EpochDay(*s.selected)
	}
	if s.view != nil && s.viewFor == key {
		return s.view
	}
	s.view = render.ApplyProposal(committed, s.selected, s.proposal)
	s.viewFor = key
	s.Selection.Rebind(s.resolveKey)
	return s.view
}

func (s *Session) SelectedDate() (time.Time, bool) {
	if s.selected == nil {
		return time.Time{}, false
	}
	return *s.selected, true
}

func (s *Session) SetSelectedDate(d time.Time) {
	y, m, dd := d.In(s.Location()).Date()
	v := time.Date(y, m, dd, 0, 0, 0, 0, s.Location())
	s.selected = &v
}

func (s *Session) ClearSelectedDate() { s.selected = nil }

func (s *Session) Proposal() *render.ProposedAddition { return s.proposal }

func (s *Session) SetProposal(p *render.ProposedAddition) {
	if p != nil {
		cp := *p
		if p.SelectedType != nil {
			v := *p.SelectedType
			cp.SelectedType = &v
		}
		if p.Constraint != nil {
			rec := p.Constraint.Clone()
			cp.Constraint = &rec
		}
		p = &cp
	}
	s.proposal = p
	s.proposalVersion++
}

func (s *Session) ClearProposal() { s.SetProposal(nil) }

// Extend asks for empty weeks at either edge of the grid.
func (s *Session) Extend(before, after int) {
	if before <= 0 && after <= 0 {
		return
	}
	if before > 0 {
		s.extendBefore += before
	}
	if after > 0 {
		s.extendAfter += after
	}
	if s.committed != nil && s.committedGen == s.generation {
		s.committed = s.committed.Extend(max(before, 0), max(after, 0))
	}
}

var ErrNoCommander = errors.New("session has no server connection")

// Commit submits cmd. On success the delta is merged and returned; on failure nothing local
// changes, so the caller can retry or discard the proposal.
func (s *Session) Commit(ctx context.Context, cmd model.Command) (model.Delta, error) {
	if s.cmdr == nil {
		return model.Delta{}, ErrNoCommander
	}
	d, err := mutate.Submit(ctx, s.cmdr, cmd)
	if err != nil {
		s.log.Warn("commit failed", "action", string(cmd.Action), "error", err)
		return model.Delta{}, err
	}
	s.ApplyDelta(d)
	for _, msg := range d.Messages {
		s.log.Info("server message", "message", model.MessageText(msg))
	}
	s.log.Info("commit applied",
		"action", string(cmd.Action),
		"updated", d.Updates.AssignableCount()+len(d.Updates.Constraints),
		"deleted", len(d.Deletions.Assignables)+len(d.Deletions.Constraints))
	return d, nil
}

// CommitConstraint validates and submits the pending details of constraint index.
func (s *Session) CommitConstraint(ctx context.Context, index int) (model.Delta, error) {
	m, _ := s.Committed()
	c, ok := m.Constraint(index)
	if !ok {
		return model.Delta{}, mutate.NotFoundError{Kind: "constraint", ID: fmt.Sprint(index)}
	}
	cmd, err := mutate.ModifyConstraint(m, c)
	if err != nil {
		return model.Delta{}, err
	}
	return s.Commit(ctx, cmd)
}

// Reload fetches the full staging data and replaces the session's copy.
func (s *Session) Reload(ctx context.Context) error {
	if s.cmdr == nil {
		return ErrNoCommander
	}
	data, err := mutate.Fetch(ctx, s.cmdr)
	if err != nil {
		return err
	}
	s.Replace(data)
	return nil
}

// resolveKey maps a selection key to the entity with that key in the current view.
func (s *Session) resolveKey(key string) (selection.Selectable, bool) {
	view := s.View()
	switch {
	case strings.HasPrefix(key, "a:"):
		ref, err := render.ParseRef(strings.TrimPrefix(key, "a:"))
		if err != nil {
			return nil, false
		}
		ra, ok := view.Lookup(ref)
		if !ok {
			return nil, false
		}
		return ra, true
	case strings.HasPrefix(key, "c:"):
		var idx int
		if _, err := fmt.Sscanf(key, "c:%d", &idx); err != nil {
			return nil, false
		}
		c, ok := view.Constraint(idx)
		if !ok {
			return nil, false
		}
		return c, true
	}
	return nil, false
}
