package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"staging-cli/internal/calendar"
	"staging-cli/internal/format"
	"staging-cli/internal/model"
	"staging-cli/internal/render"

	"github.com/spf13/cobra"
)

type pendingView struct {
	Record   model.ConstraintRecord `json:"record"`
	Class    string                 `json:"class"`
	Entailed []string               `json:"entailed"`
}

type proposalView struct {
	Context  string        `json:"context"`
	Date     string        `json:"date"`
	Week     weekView      `json:"week"`
	Ghosts   []*cellView   `json:"ghosts"`
	Pending  []pendingView `json:"pending_constraints"`
	Anchor   string        `json:"first_sunday"`
	Overlaid bool          `json:"overlay"`
}

func newProposeCmd(app *App) *cobra.Command {
	var (
		date         string
		typeID       int
		templateID   int
		multiple     int
		singleWorker string
		matchOne     int
		candidates   []string
		width        int
	)
	cmd := &cobra.Command{
		Use:   "propose --date YYYY-MM-DD (--type ID | --template ID | --single-worker IDX,... | --match-one IDX)",
		Short: "Preview an uncommitted addition over the committed schedule",
		Long: strings.TrimSpace(`
Preview what adding assignables, a schedule template or a constraint at a date would look like.
Nothing is sent to the server; the overlay is computed locally from the cached snapshot.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			p := &render.ProposedAddition{Multiplicity: multiple}
			chosen := 0
			if flags.Changed("type") {
				chosen++
				p.Context, p.SelectedType = render.AddAssignment, &typeID
			}
			if flags.Changed("template") {
				chosen++
				p.Context, p.SelectedType = render.AddScheduleTemplate, &templateID
			}
			if flags.Changed("single-worker") {
				chosen++
				members, err := parseIndices("assignable", []string{singleWorker})
				if err != nil {
					return writeErr(cmd, err)
				}
				rec := model.NewSingleWorker(members)
				class := int(rec.Class)
				p.Context, p.SelectedType, p.Constraint = render.AddConstraint, &class, &rec
			}
			if flags.Changed("match-one") {
				chosen++
				templates := make([]model.AssignmentMember, 0, len(candidates))
				for _, raw := range candidates {
					t, err := parseCandidate(raw)
					if err != nil {
						return writeErr(cmd, err)
					}
					templates = append(templates, t)
				}
				rec := model.NewMatchOne(&matchOne, templates)
				class := int(rec.Class)
				p.Context, p.SelectedType, p.Constraint = render.AddConstraint, &class, &rec
			}
			if chosen != 1 {
				return writeErr(cmd, errors.New("pass exactly one of --type, --template, --single-worker or --match-one"))
			}

			s, ws, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			d, err := calendar.ParseDate(date, ws.Loc)
			if err != nil {
				return writeErr(cmd, err)
			}
			s.SetSelectedDate(d)
			s.SetProposal(p)
			v := s.View()
			if p.Context == render.AddScheduleTemplate && !v.IsOverlay() {
				return writeErr(cmd, fmt.Errorf("unknown schedule template %d", templateID))
			}

			w := v.WeekOf(d)
			out := proposalView{
				Context:  p.Context.String(),
				Date:     d.Format(time.DateOnly),
				Week:     newWeekView(v, w),
				Ghosts:   []*cellView{},
				Pending:  []pendingView{},
				Anchor:   v.FirstSunday().Format(time.DateOnly),
				Overlaid: v.IsOverlay(),
			}
			for _, g := range v.Proposed() {
				out.Ghosts = append(out.Ghosts, newCellView(v, g))
			}
			for _, pc := range v.PendingConstraints() {
				pv := pendingView{Record: pc.Record, Class: pc.Record.Class.String(), Entailed: []string{}}
				for _, ref := range pc.Entailed.Sorted() {
					pv.Entailed = append(pv.Entailed, ref.String())
				}
				out.Pending = append(out.Pending, pv)
			}

			return writeOut(cmd, app, envelope{
				Data: out,
				text: func(wr io.Writer) error {
					grid := format.RenderWeek(v, w, format.GridOptions{CellWidth: width, Renderer: format.TerminalRenderer(wr)})
					if _, err := io.WriteString(wr, grid); err != nil {
						return err
					}
					for _, pv := range out.Pending {
						if _, err := fmt.Fprintf(wr, "pending %s over %s\n", pv.Class, strings.Join(pv.Entailed, ", ")); err != nil {
							return err
						}
					}
					return nil
				},
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date the addition is anchored to (YYYY-MM-DD)")
	cmd.Flags().IntVar(&typeID, "type", 0, "Assignment type id to add")
	cmd.Flags().IntVar(&templateID, "template", 0, "Schedule template id to add")
	cmd.Flags().IntVar(&multiple, "multiple", 1, "How many times to add it")
	cmd.Flags().StringVar(&singleWorker, "single-worker", "", "Propose a single_worker constraint over these assignables")
	cmd.Flags().IntVar(&matchOne, "match-one", 0, "Propose a match_one constraint for this assignable")
	cmd.Flags().StringArrayVar(&candidates, "candidate", nil, "Candidate TYPE:OFFSET for --match-one (repeatable)")
	cmd.Flags().IntVar(&width, "cell-width", 0, "Grid cell width in text format (default 14)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
