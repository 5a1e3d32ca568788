package cli

import (
	"fmt"
	"io"

	"staging-cli/internal/publish"
	"staging-cli/internal/render"

	"github.com/spf13/cobra"
)

func newExportCmd(app *App) *cobra.Command {
	var (
		to        string
		from      string
		count     int
		html      bool
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "export --to DIR",
		Short: "Write the cached weeks as markdown (and optionally HTML) pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ws, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			m, _ := s.Committed()

			start := 0
			if from != "" {
				w, err := parseWeekArg(m, from, ws.Loc)
				if err != nil {
					return writeErr(cmd, err)
				}
				start = w.Index()
			}
			var weeks []*render.Week
			for i := start; i < m.WeekCount(); i++ {
				if count > 0 && len(weeks) == count {
					break
				}
				weeks = append(weeks, m.WeekAt(i))
			}

			res, err := publish.WriteWeeks(m, weeks, to, publish.WriteOptions{
				Title:     ws.Name + " schedule",
				HTML:      html,
				Overwrite: overwrite,
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			app.logger().Info("exported weeks", "dir", to, "weeks", len(weeks), "files", len(res.Written))
			return writeOut(cmd, app, envelope{
				Data: res,
				Meta: map[string]any{"weeks": len(weeks)},
				text: func(out io.Writer) error {
					for _, p := range res.Written {
						if _, err := fmt.Fprintln(out, p); err != nil {
							return err
						}
					}
					return nil
				},
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Output directory")
	cmd.Flags().StringVar(&from, "from", "", "First week to export (index or YYYY-MM-DD; default: first week)")
	cmd.Flags().IntVar(&count, "weeks", 0, "Number of weeks to export (0 = all)")
	cmd.Flags().BoolVar(&html, "html", false, "Also write HTML pages")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
