package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"staging-cli/internal/format"
	"staging-cli/internal/model"
	"staging-cli/internal/mutate"
	"staging-cli/internal/render"
	"staging-cli/internal/staging"

	"github.com/spf13/cobra"
)

type constraintView struct {
	Index     int                      `json:"index"`
	Class     string                   `json:"class"`
	Entailed  []string                 `json:"entailed"`
	Members   []int                    `json:"members,omitempty"`
	ToMatch   *int                     `json:"to_match,omitempty"`
	Templates []model.AssignmentMember `json:"candidates,omitempty"`
	Valid     bool                     `json:"valid"`
	Error     string                   `json:"error,omitempty"`
	Orphaned  bool                     `json:"orphaned,omitempty"`
	Pending   bool                     `json:"pending,omitempty"`
}

func newConstraintView(m *render.Model, c *render.Constraint) constraintView {
	v := constraintView{
		Index:     c.Index(),
		Class:     c.Class().String(),
		Members:   c.Members(),
		Templates: c.Templates(),
		Valid:     c.Valid(),
		Orphaned:  c.Orphaned(m),
		Pending:   c.HasProposedDetails(),
	}
	if idx, ok := c.ToMatch(); ok {
		v.ToMatch = &idx
	}
	if err := c.Validate(); err != nil {
		v.Error = err.Error()
	}
	for _, ref := range c.Entailed(m).Sorted() {
		v.Entailed = append(v.Entailed, ref.String())
	}
	return v
}

func (v constraintView) detail() string {
	switch {
	case v.Members != nil:
		return "members " + joinInts(v.Members)
	case v.ToMatch != nil:
		parts := make([]string, 0, len(v.Templates))
		for _, t := range v.Templates {
			parts = append(parts, fmt.Sprintf("%d%+d", t.TypeID, t.DayOffset))
		}
		return fmt.Sprintf("match #%d with %s", *v.ToMatch, strings.Join(parts, " "))
	}
	return "-"
}

func joinInts(in []int) string {
	parts := make([]string, len(in))
	for i, n := range in {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func newConstraintsCmd(app *App) *cobra.Command {
	var orphaned bool
	cmd := &cobra.Command{
		Use:   "constraints",
		Short: "List the constraints of the cached snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			m, _ := s.Committed()
			views := []constraintView{}
			for _, c := range m.Constraints() {
				v := newConstraintView(m, c)
				if orphaned && !v.Orphaned {
					continue
				}
				views = append(views, v)
			}
			return writeOut(cmd, app, envelope{
				Data: views,
				Meta: map[string]any{"orphaned": m.OrphanedConstraints()},
				text: func(out io.Writer) error {
					rows := make([][]string, 0, len(views))
					for _, v := range views {
						status := "ok"
						switch {
						case v.Orphaned:
							status = "orphaned"
						case !v.Valid:
							status = "invalid"
						}
						rows = append(rows, []string{strconv.Itoa(v.Index), v.Class, v.detail(), strings.Join(v.Entailed, " "), status})
					}
					return writeTable(out, []string{"#", "CLASS", "DETAILS", "ENTAILS", "STATUS"}, rows)
				},
			})
		},
	}
	cmd.Flags().BoolVar(&orphaned, "orphaned", false, "Only list match_one constraints whose assignable is gone")
	return cmd
}

func newConstraintCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "constraint",
		Short: "Inspect or edit one constraint",
	}
	cmd.AddCommand(newConstraintShowCmd(app))
	cmd.AddCommand(newConstraintMembersCmd(app))
	cmd.AddCommand(newConstraintMatchCmd(app))
	return cmd
}

func parseIndex(what, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s index %q", what, s)
	}
	return n, nil
}

func parseIndices(what string, args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			n, err := parseIndex(what, part)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
	}
	return out, nil
}

// parseCandidate reads "type:offset", e.g. "3:-1" for type 3 on the day before.
func parseCandidate(s string) (model.AssignmentMember, error) {
	typ, off, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return model.AssignmentMember{}, fmt.Errorf("invalid candidate %q (want TYPE:OFFSET)", s)
	}
	t, err := strconv.Atoi(typ)
	if err != nil {
		return model.AssignmentMember{}, fmt.Errorf("invalid candidate type in %q", s)
	}
	o, err := strconv.Atoi(off)
	if err != nil {
		return model.AssignmentMember{}, fmt.Errorf("invalid candidate offset in %q", s)
	}
	return model.AssignmentMember{TypeID: t, DayOffset: o}, nil
}

func lookupConstraint(m *render.Model, arg string) (*render.Constraint, error) {
	idx, err := parseIndex("constraint", arg)
	if err != nil {
		return nil, err
	}
	c, ok := m.Constraint(idx)
	if !ok {
		return nil, mutate.NotFoundError{Kind: "constraint", ID: arg}
	}
	return c, nil
}

type tokenView struct {
	Ref   string `json:"ref"`
	Token string `json:"token"`
}

func newConstraintShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <index>",
		Short: "Show a constraint and how it relates to each entailed assignable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			m, _ := s.Committed()
			c, err := lookupConstraint(m, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			v := newConstraintView(m, c)
			tokens := []tokenView{}
			for _, ref := range c.Entailed(m).Sorted() {
				if ra, ok := m.Lookup(ref); ok {
					tokens = append(tokens, tokenView{Ref: ref.String(), Token: c.TokenFor(ra, m).String()})
				}
			}
			return writeOut(cmd, app, envelope{
				Data: v,
				Meta: map[string]any{"tokens": tokens},
				text: func(out io.Writer) error {
					fmt.Fprintf(out, "constraint %d (%s): %s\n", v.Index, v.Class, v.detail())
					if v.Error != "" {
						fmt.Fprintf(out, "  invalid: %s\n", v.Error)
					}
					for _, t := range tokens {
						if _, err := fmt.Fprintf(out, "  %-18s %s\n", t.Ref, t.Token); err != nil {
							return err
						}
					}
					return nil
				},
			})
		},
	}
}

type commitResult struct {
	Command  model.Command   `json:"command"`
	DryRun   bool            `json:"dry_run,omitempty"`
	Updated  int             `json:"updated_assignables"`
	Deleted  model.Deletions `json:"deletions"`
	Messages []string        `json:"messages,omitempty"`
}

func (r commitResult) writeText(out io.Writer) error {
	if r.DryRun {
		return format.WriteJSON(out, r.Command, true)
	}
	if _, err := fmt.Fprintf(out, "ok: %d assignables updated, %d deleted, %d constraints deleted\n",
		r.Updated, len(r.Deleted.Assignables), len(r.Deleted.Constraints)); err != nil {
		return err
	}
	for _, msg := range r.Messages {
		if _, err := fmt.Fprintln(out, "  "+msg); err != nil {
			return err
		}
	}
	return nil
}

// submit either prints cmd (dry run) or commits it and writes the delta to the cache.
func submit(cmd *cobra.Command, app *App, s *staging.Session, ws workspace, c model.Command, dryRun bool) error {
	if dryRun {
		r := commitResult{Command: c, DryRun: true}
		return writeOut(cmd, app, envelope{Data: r, text: r.writeText})
	}
	d, err := commitAndPersist(cmd.Context(), s, ws, c)
	if err != nil {
		return writeErr(cmd, err)
	}
	r := commitResult{Command: c, Updated: d.Updates.AssignableCount(), Deleted: d.Deletions}
	for _, raw := range d.Messages {
		r.Messages = append(r.Messages, model.MessageText(raw))
	}
	return writeOut(cmd, app, envelope{Data: r, text: r.writeText})
}

func newConstraintMembersCmd(app *App) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "members <constraint> <assignable>...",
		Short: "Replace the members of a single_worker constraint",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := parseIndices("assignable", args[1:])
			if err != nil {
				return writeErr(cmd, err)
			}
			return stagingMutation(cmd, app, dryRun, func(m *render.Model) (model.Command, error) {
				c, err := lookupConstraint(m, args[0])
				if err != nil {
					return model.Command{}, err
				}
				if err := c.ProposeMembers(m, members); err != nil {
					return model.Command{}, err
				}
				return mutate.ModifyConstraint(m, c)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the command instead of sending it")
	return cmd
}

func newConstraintMatchCmd(app *App) *cobra.Command {
	var (
		toMatch    int
		candidates []string
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "match <constraint>",
		Short: "Change the assignable or candidate templates of a match_one constraint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setMatch := cmd.Flags().Changed("to-match")
			if !setMatch && len(candidates) == 0 {
				return writeErr(cmd, fmt.Errorf("pass --to-match and/or --candidate"))
			}
			templates := make([]model.AssignmentMember, 0, len(candidates))
			for _, raw := range candidates {
				t, err := parseCandidate(raw)
				if err != nil {
					return writeErr(cmd, err)
				}
				templates = append(templates, t)
			}
			return stagingMutation(cmd, app, dryRun, func(m *render.Model) (model.Command, error) {
				c, err := lookupConstraint(m, args[0])
				if err != nil {
					return model.Command{}, err
				}
				if setMatch {
					if err := c.ProposeToMatch(m, toMatch); err != nil {
						return model.Command{}, err
					}
				}
				if len(templates) > 0 {
					if err := c.ProposeCandidates(m, templates); err != nil {
						return model.Command{}, err
					}
				}
				return mutate.ModifyConstraint(m, c)
			})
		},
	}
	cmd.Flags().IntVar(&toMatch, "to-match", 0, "Assignable index the constraint matches against")
	cmd.Flags().StringArrayVar(&candidates, "candidate", nil, "Candidate template TYPE:OFFSET (repeatable; replaces all candidates)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the command instead of sending it")
	return cmd
}
