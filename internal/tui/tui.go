// Package tui is the interactive week browser. It drives a staging.Session: cursor clicks go
// through the session's selection store, and constraint edits go out through its commander.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"staging-cli/internal/format"
	"staging-cli/internal/logging"
	"staging-cli/internal/model"
	"staging-cli/internal/mutate"
	"staging-cli/internal/render"
	"staging-cli/internal/selection"
	"staging-cli/internal/staging"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Options struct {
	// Title is shown in the header, usually the workspace name.
	Title    string
	Logger   *slog.Logger
	Renderer *lipgloss.Renderer
	// StartDate opens the week containing it. Zero opens the first week.
	StartDate time.Time
	// OnDelta and OnReload persist server results, e.g. to the local cache.
	OnDelta  func(context.Context, model.Delta) error
	OnReload func(context.Context, model.StagingData) error
}

type focus int

const (
	focusGrid focus = iota
	focusSidebar
)

type submitDoneMsg struct {
	what  string
	delta model.Delta
	err   error
}

type reloadDoneMsg struct {
	data model.StagingData
	err  error
}

type Model struct {
	ctx     context.Context
	session *staging.Session
	opts    Options
	log     *slog.Logger
	keys    keyMap
	help    help.Model
	st      styles
	grid    format.GridOptions

	week    int
	cursor  format.GridPos
	focus   focus
	sideIdx int
	// editing is the constraint whose members are being picked in secondary mode.
	editing *int
	// assigning is the assignable whose worker id is being typed into worker.
	assigning *int
	worker    textinput.Model
	busy      bool

	status string
	err    error

	width, height int
}

// New builds the browser model. The session is only touched from Update and View.
func New(ctx context.Context, s *staging.Session, opts Options) Model {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	r := opts.Renderer
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	h := help.New()
	worker := textinput.New()
	worker.Placeholder = "worker id"
	worker.CharLimit = 12
	worker.Width = 14
	m := Model{
		ctx:     ctx,
		session: s,
		opts:    opts,
		log:     log,
		keys:    defaultKeyMap(),
		help:    h,
		st:      newStyles(r),
		grid:    format.GridOptions{Renderer: r},
		worker:  worker,
	}
	if !opts.StartDate.IsZero() {
		cm, _ := s.Committed()
		if idx := cm.WeekIndex(opts.StartDate); idx >= 0 {
			if idx >= cm.WeekCount() {
				s.Extend(0, idx-cm.WeekCount()+1)
			}
			m.week = idx
		}
	}
	m.syncSelectedDate()
	return m
}

// Run starts the browser full screen and blocks until it quits.
func Run(ctx context.Context, s *staging.Session, opts Options) error {
	_, err := tea.NewProgram(New(ctx, s, opts), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case submitDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setErr(msg.err)
			return m, nil
		}
		m.session.ApplyDelta(msg.delta)
		if m.opts.OnDelta != nil {
			if err := m.opts.OnDelta(m.ctx, msg.delta); err != nil {
				m.log.Warn("delta not persisted", "error", err)
			}
		}
		texts := make([]string, 0, len(msg.delta.Messages))
		for _, raw := range msg.delta.Messages {
			texts = append(texts, model.MessageText(raw))
		}
		m.setStatus(fmt.Sprintf("%s committed %s", msg.what, strings.Join(texts, "; ")))
		m.clampCursor()
		return m, nil

	case reloadDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setErr(msg.err)
			return m, nil
		}
		m.session.Replace(msg.data)
		m.editing = nil
		m.session.Selection.SetBaseMode(selection.Config{Mode: model.HighlightPrimary})
		if m.opts.OnReload != nil {
			if err := m.opts.OnReload(m.ctx, msg.data); err != nil {
				m.log.Warn("reload not persisted", "error", err)
			}
		}
		m.setStatus("reloaded")
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	if m.assigning != nil && !m.busy {
		return m.handleWorkerInput(msg)
	}
	if key.Matches(msg, k.Quit) {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}
	switch {
	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, k.Focus):
		if m.focus == focusGrid {
			m.focus = focusSidebar
		} else {
			m.focus = focusGrid
		}
	case key.Matches(msg, k.PrevWeek):
		m.moveWeek(-1)
	case key.Matches(msg, k.NextWeek):
		m.moveWeek(1)
	case key.Matches(msg, k.Up):
		m.moveVertical(-1)
	case key.Matches(msg, k.Down):
		m.moveVertical(1)
	case key.Matches(msg, k.Left):
		m.moveDay(-1)
	case key.Matches(msg, k.Right):
		m.moveDay(1)
	case key.Matches(msg, k.Click):
		m.click(false)
	case key.Matches(msg, k.Toggle):
		m.click(true)
	case key.Matches(msg, k.Members):
		m.startMemberPick()
	case key.Matches(msg, k.Write):
		m.writeMembers()
	case key.Matches(msg, k.Revert):
		m.revert()
	case key.Matches(msg, k.Assign):
		return m.startAssign()
	case key.Matches(msg, k.Unassign):
		return m.cellCommand("unassign", func(view *render.Model, idx int) (model.Command, error) {
			return mutate.Unassign(view, idx)
		})
	case key.Matches(msg, k.Lock):
		return m.cellCommand("lock", func(view *render.Model, idx int) (model.Command, error) {
			if ra, ok := view.Assignable(idx); ok && ra.IsLocked() {
				return mutate.Unlock(view, idx)
			}
			return mutate.Lock(view, idx)
		})
	case key.Matches(msg, k.Commit):
		return m.commit()
	case key.Matches(msg, k.Reload):
		return m.reload()
	}
	return m, nil
}

func (m *Model) setStatus(s string) {
	m.status, m.err = strings.TrimSpace(s), nil
}

func (m *Model) setErr(err error) {
	m.status, m.err = "", err
	m.log.Warn("browser action failed", "error", err)
}

func (m Model) currentWeek() *render.Week {
	return m.session.View().WeekAt(m.week)
}

func (m Model) layout() render.Layout {
	return m.currentWeek().Render()
}

// cursorCell is the assignable under the grid cursor, or nil.
func (m Model) cursorCell() *render.RenderedAssignable {
	return m.layout().Cell(m.cursor.Row, m.cursor.Weekday)
}

func (m *Model) clampCursor() {
	rows := m.layout().RowCount
	if m.cursor.Row >= rows {
		m.cursor.Row = rows - 1
	}
	if m.cursor.Row < 0 {
		m.cursor.Row = 0
	}
	if n := len(m.session.View().Constraints()); m.sideIdx >= n {
		m.sideIdx = max(n-1, 0)
	}
	m.syncSelectedDate()
}

func (m *Model) syncSelectedDate() {
	d := m.currentWeek().Render().Dates[m.cursor.Weekday]
	m.session.SetSelectedDate(d)
}

// moveWeek pages the grid, asking the session for an empty week when walking off an edge.
func (m *Model) moveWeek(delta int) {
	cm, _ := m.session.Committed()
	switch next := m.week + delta; {
	case next < 0:
		m.session.Extend(-next, 0)
		m.week = 0
	case next >= cm.WeekCount():
		m.session.Extend(0, next-cm.WeekCount()+1)
		m.week = next
	default:
		m.week = next
	}
	m.clampCursor()
}

func (m *Model) moveVertical(delta int) {
	if m.focus == focusSidebar {
		m.sideIdx += delta
		m.clampCursor()
		return
	}
	m.cursor.Row += delta
	m.clampCursor()
}

func (m *Model) moveDay(delta int) {
	if m.focus == focusSidebar {
		return
	}
	wd := int(m.cursor.Weekday) + delta
	switch {
	case wd < 0:
		m.moveWeek(-1)
		wd = 6
	case wd > 6:
		m.moveWeek(1)
		wd = 0
	}
	m.cursor.Weekday = time.Weekday(wd)
	m.syncSelectedDate()
}

func (m Model) sidebarConstraint() (*render.Constraint, bool) {
	cs := m.session.View().Constraints()
	if m.sideIdx < 0 || m.sideIdx >= len(cs) {
		return nil, false
	}
	return cs[m.sideIdx], true
}

func (m *Model) click(ctrl bool) {
	sel := m.session.Selection
	if m.focus == focusSidebar {
		if c, ok := m.sidebarConstraint(); ok {
			sel.HandleClick(c, selection.ClickEvent{Ctrl: ctrl})
		}
		return
	}
	if ra := m.cursorCell(); ra != nil {
		sel.HandleClick(ra, selection.ClickEvent{Ctrl: ctrl})
	}
}

// targetConstraint is the first selected constraint, else the one under the sidebar cursor.
func (m Model) targetConstraint() (*render.Constraint, bool) {
	for _, e := range m.session.Selection.Selected(model.HighlightPrimary) {
		if c, ok := e.(*render.Constraint); ok {
			return c, true
		}
	}
	return m.sidebarConstraint()
}

func (m *Model) startMemberPick() {
	c, ok := m.targetConstraint()
	if !ok {
		m.setErr(fmt.Errorf("select a single_worker constraint first"))
		return
	}
	if c.Class() != model.ConstraintSingleWorker {
		m.setErr(fmt.Errorf("constraint %d is %s; members apply to single_worker only", c.Index(), c.Class()))
		return
	}
	view := m.session.View()
	var members []selection.Selectable
	for _, idx := range c.Members() {
		if ra, ok := view.Assignable(idx); ok {
			members = append(members, ra)
		}
	}
	sel := m.session.Selection
	sel.SetSecondaryConfig(selection.Config{Mode: model.HighlightSecondary, Multi: true})
	sel.SetSelection(model.HighlightSecondary, members)
	idx := c.Index()
	m.editing = &idx
	m.focus = focusGrid
	m.setStatus(fmt.Sprintf("picking members of constraint %d: enter/space toggles, w proposes, esc cancels", idx))
}

func (m *Model) writeMembers() {
	if m.editing == nil {
		m.setErr(fmt.Errorf("not picking members (press m on a single_worker constraint)"))
		return
	}
	cm, _ := m.session.Committed()
	c, ok := cm.Constraint(*m.editing)
	if !ok {
		m.setErr(mutate.NotFoundError{Kind: "constraint", ID: fmt.Sprint(*m.editing)})
		return
	}
	var members []int
	for _, e := range m.session.Selection.Selected(model.HighlightSecondary) {
		if ra, ok := e.(*render.RenderedAssignable); ok {
			if idx, live := ra.Index(); live {
				members = append(members, idx)
			}
		}
	}
	if err := c.ProposeMembers(cm, members); err != nil {
		m.setErr(err)
		return
	}
	m.session.Selection.RevertToPrimaryConfig()
	m.editing = nil
	if !c.HasProposedDetails() {
		m.setStatus(fmt.Sprintf("constraint %d unchanged", c.Index()))
		return
	}
	m.setStatus(fmt.Sprintf("constraint %d: members %v proposed (c commits)", c.Index(), c.Members()))
}

func (m *Model) revert() {
	sel := m.session.Selection
	if len(sel.Stack()) > 1 {
		sel.RevertToPrimaryConfig()
		m.editing = nil
		m.setStatus("member pick cancelled")
		return
	}
	sel.ClearSelection()
	m.setStatus("")
}

func (m Model) commit() (tea.Model, tea.Cmd) {
	c, ok := m.targetConstraint()
	if !ok {
		m.setErr(fmt.Errorf("select a constraint to commit"))
		return m, nil
	}
	if m.session.Commander() == nil {
		m.setErr(staging.ErrNoCommander)
		return m, nil
	}
	out, err := mutate.ModifyConstraint(m.session.View(), c)
	if err != nil {
		m.setErr(err)
		return m, nil
	}
	return m.send(fmt.Sprintf("constraint %d", c.Index()), out)
}

// send submits out off the update loop; the delta comes back as a submitDoneMsg.
func (m Model) send(what string, out model.Command) (tea.Model, tea.Cmd) {
	cmdr := m.session.Commander()
	if cmdr == nil {
		m.setErr(staging.ErrNoCommander)
		return m, nil
	}
	m.busy = true
	m.setStatus(fmt.Sprintf("committing %s…", what))
	ctx := m.ctx
	return m, func() tea.Msg {
		d, err := mutate.Submit(ctx, cmdr, out)
		return submitDoneMsg{what: what, delta: d, err: err}
	}
}

// cursorIndex is the live assignable under the grid cursor.
func (m Model) cursorIndex() (int, error) {
	ra := m.cursorCell()
	if ra == nil || m.focus != focusGrid {
		return 0, fmt.Errorf("move the cursor onto an assignable first")
	}
	idx, live := ra.Index()
	if !live {
		return 0, fmt.Errorf("%s is not committed yet", ra.Ref())
	}
	return idx, nil
}

func (m Model) cellCommand(what string, build func(view *render.Model, idx int) (model.Command, error)) (tea.Model, tea.Cmd) {
	idx, err := m.cursorIndex()
	if err != nil {
		m.setErr(err)
		return m, nil
	}
	cm, _ := m.session.Committed()
	out, err := build(cm, idx)
	if err != nil {
		m.setErr(err)
		return m, nil
	}
	return m.send(fmt.Sprintf("%s #%d", what, idx), out)
}

func (m Model) startAssign() (tea.Model, tea.Cmd) {
	idx, err := m.cursorIndex()
	if err != nil {
		m.setErr(err)
		return m, nil
	}
	m.assigning = &idx
	m.worker.Reset()
	m.setStatus("")
	return m, m.worker.Focus()
}

func (m Model) handleWorkerInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.assigning = nil
		m.worker.Blur()
		m.setStatus("assign cancelled")
		return m, nil
	case tea.KeyEnter:
		idx := *m.assigning
		worker, err := strconv.Atoi(strings.TrimSpace(m.worker.Value()))
		if err != nil {
			m.setErr(fmt.Errorf("worker id must be a number"))
			return m, nil
		}
		m.assigning = nil
		m.worker.Blur()
		cm, _ := m.session.Committed()
		out, err := mutate.Assign(cm, idx, worker)
		if err != nil {
			m.setErr(err)
			return m, nil
		}
		return m.send(fmt.Sprintf("assign #%d", idx), out)
	}
	var cmd tea.Cmd
	m.worker, cmd = m.worker.Update(msg)
	return m, cmd
}

func (m Model) reload() (tea.Model, tea.Cmd) {
	cmdr := m.session.Commander()
	if cmdr == nil {
		m.setErr(staging.ErrNoCommander)
		return m, nil
	}
	m.busy = true
	m.setStatus("reloading…")
	ctx := m.ctx
	return m, func() tea.Msg {
		data, err := mutate.Fetch(ctx, cmdr)
		return reloadDoneMsg{data: data, err: err}
	}
}
