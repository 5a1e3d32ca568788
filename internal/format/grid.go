package format

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"staging-cli/internal/calendar"
	"staging-cli/internal/model"
	"staging-cli/internal/render"
)

const (
	defaultCellWidth = 14
	maxLabelWidth    = 12
)

// GridPos addresses one cell of a rendered week.
type GridPos struct {
	Row     int
	Weekday time.Weekday
}

type GridOptions struct {
	// CellWidth defaults to 14 columns.
	CellWidth int
	// Renderer decides the color profile. Nil renders plain text.
	Renderer *lipgloss.Renderer
	// Cursor, when set, is drawn with brackets.
	Cursor *GridPos
}

// PlainRenderer renders without any escape sequences.
func PlainRenderer(w io.Writer) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(termenv.Ascii)
	return r
}

// TerminalRenderer follows the terminal's capabilities and honors NO_COLOR.
func TerminalRenderer(w io.Writer) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		r.SetColorProfile(termenv.Ascii)
	}
	return r
}

type gridStyles struct {
	header    lipgloss.Style
	label     lipgloss.Style
	divider   lipgloss.Style
	ghost     lipgloss.Style
	locked    lipgloss.Style
	highlight map[model.HighlightMode]lipgloss.Style
}

func newGridStyles(r *lipgloss.Renderer) gridStyles {
	return gridStyles{
		header:  r.NewStyle().Bold(true),
		label:   r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5A5A5A", Dark: "#A0A0A0"}),
		divider: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C0C0C0", Dark: "#444444"}),
		ghost:   r.NewStyle().Italic(true).Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#81C784"}),
		locked:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8D6E63", Dark: "#BCAAA4"}),
		highlight: map[model.HighlightMode]lipgloss.Style{
			model.HighlightNone:      r.NewStyle(),
			model.HighlightPrimary:   r.NewStyle().Reverse(true),
			model.HighlightSecondary: r.NewStyle().Underline(true).Foreground(lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#64B5F6"}),
			model.HighlightProposed:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#EF6C00", Dark: "#FFB74D"}),
			model.HighlightCommit:    r.NewStyle().Bold(true),
		},
	}
}

// CellLabel is the one-line text of an assignable: "#index", the worker or "-", "*" when
// locked, and one badge per constraint token. Ghosts show "+" and their type name.
func CellLabel(m *render.Model, ra *render.RenderedAssignable) string {
	var b strings.Builder
	if idx, ok := ra.Index(); ok {
		fmt.Fprintf(&b, "#%d ", idx)
		if w, ok := ra.AssignedWorker(); ok {
			fmt.Fprintf(&b, "w%d", w)
		} else {
			b.WriteString("-")
		}
		if ra.IsLocked() {
			b.WriteString("*")
		}
	} else {
		b.WriteString("+" + ra.Type().Name)
	}
	var badges []string
	for _, c := range m.ConstraintsOf(ra) {
		switch c.TokenFor(ra, m) {
		case render.TokenSingleWorker:
			badges = append(badges, fmt.Sprintf("S%d", c.Index()))
		case render.TokenMatchOneToMatch:
			badges = append(badges, fmt.Sprintf("M%d", c.Index()))
		case render.TokenMatchOneCandidate:
			badges = append(badges, fmt.Sprintf("m%d", c.Index()))
		}
	}
	if len(badges) > 0 {
		b.WriteString(" " + strings.Join(badges, ","))
	}
	return b.String()
}

// RenderWeek draws one week as a text grid: a header of dates, then one block of rows per
// assignment type (highest priority first) with the type name on its first row.
func RenderWeek(m *render.Model, w *render.Week, opts GridOptions) string {
	cellW := opts.CellWidth
	if cellW <= 0 {
		cellW = defaultCellWidth
	}
	r := opts.Renderer
	if r == nil {
		r = PlainRenderer(io.Discard)
	}
	st := newGridStyles(r)
	l := w.Render()

	labelW := 0
	for _, ts := range l.TypeSpans {
		labelW = max(labelW, xansi.StringWidth(ts.Name))
	}
	labelW = min(labelW, maxLabelWidth)

	var out strings.Builder
	out.WriteString(st.header.Render("Week of "+w.String()) + "\n")

	head := []string{pad("", labelW)}
	for wd := 0; wd < calendar.DaysPerWeek; wd++ {
		d := l.Dates[wd]
		head = append(head, st.header.Render(pad(d.Weekday().String()[:3]+" "+fmt.Sprintf("%d/%d", d.Month(), d.Day()), cellW)))
	}
	out.WriteString(strings.Join(head, " │ ") + "\n")

	if l.RowCount == 0 {
		out.WriteString("(no assignables)\n")
		return out.String()
	}

	rule := st.divider.Render(strings.Repeat("─", labelW+calendar.DaysPerWeek*(cellW+3)))
	names := map[int]string{}
	firstRows := map[int]bool{}
	for _, ts := range l.TypeSpans {
		names[ts.Start] = ts.Name
	}
	for _, ps := range l.PrioritySpans {
		firstRows[ps.Start] = true
	}

	for row := 0; row < l.RowCount; row++ {
		if firstRows[row] {
			out.WriteString(rule + "\n")
		}
		line := []string{st.label.Render(pad(truncate(names[row], labelW), labelW))}
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			ra := l.Cell(row, wd)
			cursor := opts.Cursor != nil && opts.Cursor.Row == row && opts.Cursor.Weekday == wd
			line = append(line, renderCell(m, ra, cursor, cellW, st))
		}
		out.WriteString(strings.Join(line, " │ ") + "\n")
	}
	return out.String()
}

func renderCell(m *render.Model, ra *render.RenderedAssignable, cursor bool, w int, st gridStyles) string {
	text := ""
	if ra != nil {
		text = CellLabel(m, ra)
	}
	if cursor {
		text = "[" + truncate(text, w-2) + "]"
	}
	text = pad(truncate(text, w), w)
	if ra == nil {
		return text
	}
	style := st.highlight[ra.Highlight()]
	switch {
	case ra.IsGhost():
		style = style.Inherit(st.ghost)
	case ra.IsLocked():
		style = style.Inherit(st.locked)
	}
	return style.Render(text)
}

func truncate(s string, w int) string {
	if w <= 0 {
		return ""
	}
	if xansi.StringWidth(s) <= w {
		return s
	}
	return xansi.Truncate(s, w, "…")
}

func pad(s string, w int) string {
	if cur := xansi.StringWidth(s); cur < w {
		return s + strings.Repeat(" ", w-cur)
	}
	return s
}
