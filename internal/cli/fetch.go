package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"staging-cli/internal/model"
	"staging-cli/internal/mutate"
	"staging-cli/internal/render"
	"staging-cli/internal/store"

	"github.com/spf13/cobra"
)

type snapshotSummary struct {
	Workspace   string `json:"workspace"`
	Source      string `json:"source"`
	Assignables int    `json:"assignables"`
	Constraints int    `json:"constraints"`
	Types       int    `json:"assignment_types"`
	Templates   int    `json:"schedule_templates"`
	Weeks       int    `json:"weeks"`
	FirstSunday string `json:"first_sunday,omitempty"`
	Dropped     int    `json:"dropped_records"`
}

func summarize(ws workspace, source string, data model.StagingData) snapshotSummary {
	m, warnings := render.Build(data, render.Options{Location: ws.Loc})
	sum := snapshotSummary{
		Workspace:   ws.Name,
		Source:      source,
		Assignables: data.Data.AssignableCount(),
		Constraints: len(data.Data.Constraints),
		Types:       len(data.AssignmentTypes),
		Templates:   len(data.ScheduleTemplates),
		Weeks:       m.WeekCount(),
		Dropped:     len(warnings),
	}
	if m.WeekCount() > 0 {
		sum.FirstSunday = m.FirstSunday().Format(time.DateOnly)
	}
	return sum
}

func (s snapshotSummary) writeText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s: %d assignables, %d constraints over %d weeks (from %s)\n",
		s.Workspace, s.Assignables, s.Constraints, s.Weeks, s.Source)
	if err == nil && s.Dropped > 0 {
		_, err = fmt.Fprintf(w, "%d records could not be rendered (see --log-level warn)\n", s.Dropped)
	}
	return err
}

func newFetchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Reload the staging area from the server into the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := resolveWorkspace(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := fetchInto(ctx, app, ws); err != nil {
				return writeErr(cmd, err)
			}
			data, _, err := ws.Store.LoadStagingData(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			sum := summarize(ws, ws.Server, data)
			app.logger().Info("fetched staging data", "workspace", ws.Name, "assignables", sum.Assignables)
			return writeOut(cmd, app, envelope{Data: sum, text: sum.writeText})
		},
	}
}

// fetchInto runs the view command and replaces the workspace's cached snapshot.
func fetchInto(ctx context.Context, app *App, ws workspace) error {
	cmdr, err := app.commander(ws)
	if err != nil {
		return err
	}
	data, err := mutate.Fetch(ctx, cmdr)
	if err != nil {
		return err
	}
	return ws.Store.SaveStagingData(ctx, data, store.Meta{Server: ws.Server, Source: "fetch"})
}

func newImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load a staging JSON document (the view command's update_data) into the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := resolveWorkspace(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			var r io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return writeErr(cmd, err)
				}
				defer f.Close()
				r = f
			}
			var data model.StagingData
			if err := json.NewDecoder(r).Decode(&data); err != nil {
				return writeErr(cmd, fmt.Errorf("decode %s: %w", args[0], err))
			}
			if err := ws.Store.SaveStagingData(cmd.Context(), data, store.Meta{Server: ws.Server, Source: "import:" + args[0]}); err != nil {
				return writeErr(cmd, err)
			}
			sum := summarize(ws, args[0], data)
			return writeOut(cmd, app, envelope{Data: sum, text: sum.writeText})
		},
	}
}
