package tui

import "github.com/charmbracelet/lipgloss"

// Colors adapt to light and dark terminals.
func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted  = ac("240", "243")
	colorAccent = ac("27", "62")
	colorError  = ac("160", "203")
	colorBorder = ac("250", "240")
)

type styles struct {
	title     lipgloss.Style
	muted     lipgloss.Style
	status    lipgloss.Style
	err       lipgloss.Style
	pane      lipgloss.Style
	paneFocus lipgloss.Style
	cursor    lipgloss.Style
	selected  lipgloss.Style
	secondary lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	pane := r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
	return styles{
		title:     r.NewStyle().Bold(true).Foreground(colorAccent),
		muted:     r.NewStyle().Foreground(colorMuted),
		status:    r.NewStyle().Foreground(colorMuted),
		err:       r.NewStyle().Foreground(colorError),
		pane:      pane,
		paneFocus: pane.BorderForeground(colorAccent),
		cursor:    r.NewStyle().Bold(true),
		selected:  r.NewStyle().Reverse(true),
		secondary: r.NewStyle().Underline(true),
	}
}
