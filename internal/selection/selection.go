// Package selection tracks which rendered entities are highlighted and in which mode.
//
// Each entity belongs to at most one group. Membership and the entity's highlight are always
// changed together.
package selection

import (
	"io"
	"log/slog"
	"sort"

	"staging-cli/internal/model"
)

// Selectable is implemented by render.RenderedAssignable and render.Constraint.
type Selectable interface {
	EntityKind() model.EntityKind
	// EntityKey is unique across kinds within one model generation.
	EntityKey() string
	Highlight() model.HighlightMode
	SetHighlight(model.HighlightMode)
}

type Config struct {
	Mode  model.HighlightMode
	Multi bool
}

type ClickEvent struct {
	Ctrl bool
}

type group struct {
	order   []string
	members map[string]Selectable
}

func (g *group) has(key string) bool {
	_, ok := g.members[key]
	return ok
}

func (g *group) add(s Selectable) {
	k := s.EntityKey()
	if g.has(k) {
		return
	}
	g.order = append(g.order, k)
	g.members[k] = s
}

func (g *group) remove(key string) {
	if !g.has(key) {
		return
	}
	delete(g.members, key)
	for i, k := range g.order {
		if k == key {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

func (g *group) list() []Selectable {
	out := make([]Selectable, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.members[k])
	}
	return out
}

// Store is the selection state machine: a config stack with at most one secondary entry on
// top of the base entry, plus one group per highlight mode.
type Store struct {
	stack  []Config
	groups map[model.HighlightMode]*group
	owner  map[string]model.HighlightMode
	log    *slog.Logger
}

func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		stack:  []Config{{Mode: model.HighlightPrimary}},
		groups: map[model.HighlightMode]*group{},
		owner:  map[string]model.HighlightMode{},
		log:    logger,
	}
}

// Active is the config on top of the stack.
func (s *Store) Active() Config { return s.stack[len(s.stack)-1] }

func (s *Store) Stack() []Config { return append([]Config(nil), s.stack...) }

// SetSecondaryConfig pushes c, replacing any secondary config already active.
func (s *Store) SetSecondaryConfig(c Config) {
	s.stack = append(s.stack[:1], c)
	s.log.Debug("secondary selection mode", "mode", c.Mode.String(), "multi", c.Multi)
}

// RevertToPrimaryConfig clears the secondary group and pops back to the base config.
func (s *Store) RevertToPrimaryConfig() {
	if len(s.stack) > 1 {
		s.ClearSelectionMode(s.Active().Mode)
		s.stack = s.stack[:1]
	}
}

// SetBaseMode clears every group and resets the stack to c alone.
func (s *Store) SetBaseMode(c Config) {
	s.ClearSelection()
	s.stack = []Config{c}
}

// HandleClick applies a click under the active config.
func (s *Store) HandleClick(e Selectable, ev ClickEvent) {
	s.HandleClickWith(e, ev, s.Active())
}

// HandleClickWith applies a click under cfg. Clicks in none or commit mode are ignored, and
// only assignables can be picked in secondary mode. Without multi the group is reset to the
// clicked entity, or emptied if it already was the sole member. With multi (config or ctrl)
// only the clicked entity's membership flips.
func (s *Store) HandleClickWith(e Selectable, ev ClickEvent, cfg Config) {
	switch cfg.Mode {
	case model.HighlightNone, model.HighlightCommit:
		return
	case model.HighlightSecondary:
		if e.EntityKind() != model.EntityAssignable {
			return
		}
	}
	g := s.group(cfg.Mode)
	key := e.EntityKey()

	if cfg.Multi || ev.Ctrl {
		if g.has(key) {
			s.detach(key)
		} else {
			s.attach(e, cfg.Mode)
		}
		return
	}

	sole := len(g.order) == 1 && g.has(key)
	s.ClearSelectionMode(cfg.Mode)
	if !sole {
		s.attach(e, cfg.Mode)
	}
}

// SetSelection replaces the group for mode with members.
func (s *Store) SetSelection(mode model.HighlightMode, members []Selectable) {
	if mode == model.HighlightNone {
		for _, e := range members {
			s.detach(e.EntityKey())
			e.SetHighlight(model.HighlightNone)
		}
		return
	}
	s.ClearSelectionMode(mode)
	for _, e := range members {
		s.attach(e, mode)
	}
}

// ClearSelection empties every group.
func (s *Store) ClearSelection() {
	for mode := range s.groups {
		s.ClearSelectionMode(mode)
	}
	s.groups = map[model.HighlightMode]*group{}
}

func (s *Store) ClearSelectionMode(mode model.HighlightMode) {
	g, ok := s.groups[mode]
	if !ok {
		return
	}
	for _, e := range g.list() {
		delete(s.owner, e.EntityKey())
		e.SetHighlight(model.HighlightNone)
	}
	g.order = nil
	g.members = map[string]Selectable{}
}

// Selected returns the members of one group in the order they were added.
func (s *Store) Selected(mode model.HighlightMode) []Selectable {
	g, ok := s.groups[mode]
	if !ok {
		return nil
	}
	return g.list()
}

// ModeOf returns the mode of the group holding e, or HighlightNone.
func (s *Store) ModeOf(e Selectable) model.HighlightMode {
	if m, ok := s.owner[e.EntityKey()]; ok {
		return m
	}
	return model.HighlightNone
}

// Modes lists the modes with non-empty groups.
func (s *Store) Modes() []model.HighlightMode {
	var out []model.HighlightMode
	for m, g := range s.groups {
		if len(g.order) > 0 {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rebind swaps every member for the handle resolve returns for its key, dropping members
// that no longer resolve. Use after the model has been rebuilt.
func (s *Store) Rebind(resolve func(key string) (Selectable, bool)) {
	for mode, g := range s.groups {
		members := g.list()
		s.ClearSelectionMode(mode)
		for _, old := range members {
			if e, ok := resolve(old.EntityKey()); ok {
				s.attach(e, mode)
			}
		}
	}
}

func (s *Store) group(mode model.HighlightMode) *group {
	g, ok := s.groups[mode]
	if !ok {
		g = &group{members: map[string]Selectable{}}
		s.groups[mode] = g
	}
	return g
}

// attach moves e into mode's group, leaving any other group first.
func (s *Store) attach(e Selectable, mode model.HighlightMode) {
	key := e.EntityKey()
	if prev, ok := s.owner[key]; ok && prev != mode {
		if old, ok := s.groups[prev].members[key]; ok {
			old.SetHighlight(model.HighlightNone)
		}
		s.groups[prev].remove(key)
	}
	s.group(mode).add(e)
	s.owner[key] = mode
	e.SetHighlight(mode)
}

func (s *Store) detach(key string) {
	mode, ok := s.owner[key]
	if !ok {
		return
	}
	g := s.groups[mode]
	if e, ok := g.members[key]; ok {
		e.SetHighlight(model.HighlightNone)
	}
	g.remove(key)
	delete(s.owner, key)
}
