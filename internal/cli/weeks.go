package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"staging-cli/internal/calendar"
	"staging-cli/internal/format"
	"staging-cli/internal/render"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

type weekRow struct {
	Index       int    `json:"index"`
	Sunday      string `json:"sunday"`
	Label       string `json:"label"`
	RowCount    int    `json:"row_count"`
	Assignables int    `json:"assignables"`
}

type cellView struct {
	Ref         string `json:"ref"`
	Index       *int   `json:"index,omitempty"`
	Date        string `json:"date"`
	TypeID      int    `json:"type_id"`
	Worker      *int   `json:"worker,omitempty"`
	Locked      bool   `json:"locked,omitempty"`
	Ghost       bool   `json:"ghost,omitempty"`
	Constraints []int  `json:"constraints,omitempty"`
	Label       string `json:"label"`
}

type weekView struct {
	Index         int                               `json:"index"`
	Sunday        string                            `json:"sunday"`
	Label         string                            `json:"label"`
	Dates         []string                          `json:"dates"`
	RowCount      int                               `json:"row_count"`
	PrioritySpans []render.PrioritySpan             `json:"priority_row_spans"`
	TypeSpans     []render.TypeSpan                 `json:"type_row_spans"`
	Rows          [][calendar.DaysPerWeek]*cellView `json:"rows"`
}

func newCellView(m *render.Model, ra *render.RenderedAssignable) *cellView {
	if ra == nil {
		return nil
	}
	c := &cellView{
		Ref:         ra.Ref().String(),
		Date:        ra.Date().Format(time.DateOnly),
		TypeID:      ra.TypeID(),
		Locked:      ra.IsLocked(),
		Ghost:       ra.IsGhost(),
		Constraints: ra.Constraints(),
		Label:       format.CellLabel(m, ra),
	}
	if idx, ok := ra.Index(); ok {
		c.Index = &idx
	}
	if w, ok := ra.AssignedWorker(); ok {
		c.Worker = &w
	}
	return c
}

func newWeekView(m *render.Model, w *render.Week) weekView {
	l := w.Render()
	v := weekView{
		Index:         w.Index(),
		Sunday:        w.Sunday().Format(time.DateOnly),
		Label:         w.String(),
		RowCount:      l.RowCount,
		PrioritySpans: l.PrioritySpans,
		TypeSpans:     l.TypeSpans,
		Rows:          make([][calendar.DaysPerWeek]*cellView, 0, l.RowCount),
	}
	for _, d := range l.Dates {
		v.Dates = append(v.Dates, d.Format(time.DateOnly))
	}
	for _, row := range l.Cells {
		var out [calendar.DaysPerWeek]*cellView
		for wd, ra := range row {
			out[wd] = newCellView(m, ra)
		}
		v.Rows = append(v.Rows, out)
	}
	return v
}

func newWeeksCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "weeks",
		Short: "List the weeks of the cached snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			m, _ := s.Committed()
			rows := make([]weekRow, 0, m.WeekCount())
			for i := 0; i < m.WeekCount(); i++ {
				w := m.WeekAt(i)
				rows = append(rows, weekRow{
					Index:       i,
					Sunday:      w.Sunday().Format(time.DateOnly),
					Label:       w.String(),
					RowCount:    w.Render().RowCount,
					Assignables: w.Len(),
				})
			}
			text := func(out io.Writer) error {
				cells := make([][]string, 0, len(rows))
				for _, r := range rows {
					cells = append(cells, []string{strconv.Itoa(r.Index), r.Label, strconv.Itoa(r.RowCount), strconv.Itoa(r.Assignables)})
				}
				return writeTable(out, []string{"WEEK", "DATES", "ROWS", "ASSIGNABLES"}, cells)
			}
			return writeOut(cmd, app, envelope{
				Data: rows,
				Meta: map[string]any{"first_sunday": m.FirstSunday().Format(time.DateOnly), "model": m.Describe()},
				text: text,
			})
		},
	}
}

// parseWeekArg accepts a week index or a YYYY-MM-DD date inside the week.
func parseWeekArg(m *render.Model, arg string, loc *time.Location) (*render.Week, error) {
	arg = strings.TrimSpace(arg)
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 0 {
			return nil, fmt.Errorf("week index %d is negative", n)
		}
		return m.WeekAt(n), nil
	}
	d, err := calendar.ParseDate(arg, loc)
	if err != nil {
		return nil, errors.New("expected a week index or a YYYY-MM-DD date")
	}
	if m.WeekIndex(d) < 0 {
		return nil, fmt.Errorf("%s is before the first week (%s)", arg, m.FirstSunday().Format(time.DateOnly))
	}
	return m.WeekOf(d), nil
}

func newWeekCmd(app *App) *cobra.Command {
	var (
		width   int
		openTUI bool
	)
	cmd := &cobra.Command{
		Use:   "week <index|YYYY-MM-DD>",
		Short: "Render one week as a grid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ws, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			m, _ := s.Committed()
			w, err := parseWeekArg(m, args[0], ws.Loc)
			if err != nil {
				return writeErr(cmd, err)
			}
			if openTUI {
				return browse(cmd, app, w.Sunday())
			}
			return writeOut(cmd, app, envelope{
				Data: newWeekView(m, w),
				text: func(out io.Writer) error {
					_, err := io.WriteString(out, format.RenderWeek(m, w, format.GridOptions{
						CellWidth: width,
						Renderer:  format.TerminalRenderer(out),
					}))
					return err
				},
			})
		},
	}
	cmd.Flags().IntVar(&width, "cell-width", 0, "Grid cell width in text format (default 14)")
	cmd.Flags().BoolVar(&openTUI, "browse", false, "Open the interactive browser at this week")
	return cmd
}

func writeTable(out io.Writer, headers []string, rows [][]string) error {
	r := format.TerminalRenderer(out)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle().Faint(true)).
		Headers(headers...).
		Rows(rows...)
	_, err := fmt.Fprintln(out, t.String())
	return err
}
