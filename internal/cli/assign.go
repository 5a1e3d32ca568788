package cli

import (
	"staging-cli/internal/model"
	"staging-cli/internal/mutate"
	"staging-cli/internal/render"

	"github.com/spf13/cobra"
)

// stagingMutation opens a session, builds a command from the committed model and submits it.
func stagingMutation(cmd *cobra.Command, app *App, dryRun bool, build func(m *render.Model) (model.Command, error)) error {
	s, ws, err := openSession(cmd.Context(), app)
	if err != nil {
		return writeErr(cmd, err)
	}
	m, _ := s.Committed()
	c, err := build(m)
	if err != nil {
		return writeErr(cmd, err)
	}
	return submit(cmd, app, s, ws, c, dryRun)
}

func newAssignCmd(app *App) *cobra.Command {
	var (
		worker int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "assign <assignable> --worker <id>",
		Short: "Assign a worker to an assignable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex("assignable", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return stagingMutation(cmd, app, dryRun, func(m *render.Model) (model.Command, error) {
				return mutate.Assign(m, idx, worker)
			})
		},
	}
	cmd.Flags().IntVar(&worker, "worker", 0, "Worker id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the command instead of sending it")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func newUnassignCmd(app *App) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "unassign <assignable>",
		Short: "Clear the worker of an assignable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex("assignable", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return stagingMutation(cmd, app, dryRun, func(m *render.Model) (model.Command, error) {
				return mutate.Unassign(m, idx)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the command instead of sending it")
	return cmd
}

// newLockCmd builds `lock` or `unlock`. Several indices go out as one bulk request.
func newLockCmd(app *App, lock bool) *cobra.Command {
	var dryRun bool
	use, short := "lock", "Lock assignables against reassignment"
	if !lock {
		use, short = "unlock", "Unlock assignables"
	}
	cmd := &cobra.Command{
		Use:   use + " <assignable>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			indices, err := parseIndices("assignable", args)
			if err != nil {
				return writeErr(cmd, err)
			}
			return stagingMutation(cmd, app, dryRun, func(m *render.Model) (model.Command, error) {
				if lock {
					return mutate.Lock(m, indices...)
				}
				return mutate.Unlock(m, indices...)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the command instead of sending it")
	return cmd
}
