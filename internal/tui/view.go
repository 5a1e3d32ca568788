package tui

import (
	"fmt"
	"strings"

	"staging-cli/internal/format"
	"staging-cli/internal/model"
	"staging-cli/internal/render"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

const sidebarWidth = 34

func (m Model) View() string {
	view := m.session.View()
	w := view.WeekAt(m.week)

	opts := m.grid
	if m.focus == focusGrid {
		cur := m.cursor
		opts.Cursor = &cur
	}
	if m.width > 0 {
		// 7 day columns plus the type label column share what the sidebar leaves.
		avail := m.width - sidebarWidth - 16
		opts.CellWidth = max(min(avail/8, 18), 8)
	}
	gridPane := m.st.pane
	sidePane := m.st.pane
	if m.focus == focusGrid {
		gridPane = m.st.paneFocus
	} else {
		sidePane = m.st.paneFocus
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		gridPane.Render(strings.TrimRight(format.RenderWeek(view, w, opts), "\n")),
		sidePane.Width(sidebarWidth).Render(m.sidebar(view)),
	)

	var b strings.Builder
	b.WriteString(m.header(view))
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) header(view *render.Model) string {
	title := m.opts.Title
	if title == "" {
		title = "staging"
	}
	mode := m.session.Selection.Active().Mode.String()
	parts := []string{m.st.title.Render(title), m.st.muted.Render(fmt.Sprintf("week %d/%d", m.week+1, view.WeekCount())), m.st.muted.Render("mode " + mode)}
	if d, ok := m.session.SelectedDate(); ok {
		parts = append(parts, m.st.muted.Render(d.Format("Mon Jan 2 2006")))
	}
	return strings.Join(parts, "  ")
}

func (m Model) sidebar(view *render.Model) string {
	cs := view.Constraints()
	if len(cs) == 0 {
		return m.st.muted.Render("no constraints")
	}
	lines := make([]string, 0, len(cs)+1)
	lines = append(lines, m.st.muted.Render("constraints"))
	for i, c := range cs {
		line := constraintLine(view, c)
		line = xansi.Truncate(line, sidebarWidth-4, "…")
		switch c.Highlight() {
		case model.HighlightPrimary:
			line = m.st.selected.Render(line)
		case model.HighlightSecondary:
			line = m.st.secondary.Render(line)
		}
		prefix := "  "
		if m.focus == focusSidebar && i == m.sideIdx {
			prefix = m.st.cursor.Render("> ")
		}
		lines = append(lines, prefix+line)
	}
	return strings.Join(lines, "\n")
}

// constraintLine is "S0 1,2" or "M1 #4 (2)": the class badge and index, then what it covers.
// "*" marks pending details, "!" invalid ones and "?" an orphan.
func constraintLine(view *render.Model, c *render.Constraint) string {
	var b strings.Builder
	switch c.Class() {
	case model.ConstraintSingleWorker:
		fmt.Fprintf(&b, "S%d %s", c.Index(), joinInts(c.Members()))
	case model.ConstraintMatchOne:
		fmt.Fprintf(&b, "M%d", c.Index())
		if idx, ok := c.ToMatch(); ok {
			fmt.Fprintf(&b, " #%d", idx)
		}
		live, unavailable := c.Candidates(view)
		fmt.Fprintf(&b, " (%d/%d)", len(live), len(live)+len(unavailable))
	}
	if c.HasProposedDetails() {
		b.WriteString(" *")
	}
	if !c.Valid() {
		b.WriteString(" !")
	}
	if c.Orphaned(view) {
		b.WriteString(" ?")
	}
	return b.String()
}

func joinInts(in []int) string {
	parts := make([]string, len(in))
	for i, n := range in {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}

func (m Model) footer() string {
	var status string
	switch {
	case m.assigning != nil:
		status = m.st.status.Render(fmt.Sprintf("worker for #%d: ", *m.assigning)) + m.worker.View()
	case m.err != nil:
		status = m.st.err.Render(m.err.Error())
	case m.status != "":
		status = m.st.status.Render(m.status)
	}
	helpView := m.help.View(m.keys)
	if status == "" {
		return helpView
	}
	return status + "\n" + helpView
}
