package cli

import (
	"fmt"
	"io"

	"staging-cli/internal/docs"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

type topicRow struct {
	Topic string `json:"topic"`
	Title string `json:"title"`
}

func newDocsCmd(app *App) *cobra.Command {
	var (
		raw   bool
		width int
	)

	cmd := &cobra.Command{
		Use:   "docs [topic]",
		Short: "Show on-demand documentation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				topics := []topicRow{}
				for _, t := range docs.Topics() {
					topics = append(topics, topicRow{Topic: t, Title: docs.Title(t)})
				}
				return writeOut(cmd, app, envelope{
					Data: map[string]any{"topics": topics},
					text: func(out io.Writer) error {
						for _, t := range topics {
							if _, err := fmt.Fprintf(out, "%-12s %s\n", t.Topic, t.Title); err != nil {
								return err
							}
						}
						return nil
					},
				})
			}

			topic := args[0]
			body, ok := docs.Get(topic)
			if !ok {
				return writeErr(cmd, fmt.Errorf("unknown docs topic: %q (run `staging docs` to list topics)", topic))
			}

			if raw {
				_, err := fmt.Fprint(cmd.OutOrStdout(), body)
				return err
			}

			return writeOut(cmd, app, envelope{
				Data: map[string]any{"topic": topic, "markdown": body},
				text: func(out io.Writer) error {
					style := docs.StyleDark
					if termenv.NewOutput(out).Profile == termenv.Ascii {
						style = docs.StylePlain
					}
					_, err := fmt.Fprintln(out, docs.Render(body, width, docs.StyleFromEnv(style)))
					return err
				},
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print raw markdown (no JSON envelope)")
	cmd.Flags().IntVar(&width, "width", 80, "Wrap width for --format text")

	return cmd
}
