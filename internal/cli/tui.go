package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"staging-cli/internal/logging"
	"staging-cli/internal/model"
	"staging-cli/internal/store"
	"staging-cli/internal/tui"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func runTUI(cmd *cobra.Command, app *App) error {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return cmd.Help()
	}
	return browse(cmd, app, time.Time{})
}

// browse opens the interactive browser at the week containing start (zero = first week).
// An empty cache is filled from the server first when one is configured.
func browse(cmd *cobra.Command, app *App, start time.Time) error {
	ctx := cmd.Context()
	ws, err := resolveWorkspace(app)
	if err != nil {
		return writeErr(cmd, err)
	}

	// stderr belongs to the alt screen while the browser runs; log to the cache dir instead.
	log, closeLog := logging.New(logging.Config{
		Level:  app.level,
		JSON:   true,
		Writer: io.Discard,
		LogDir: filepath.Join(ws.Store.Dir, "logs"),
	})
	defer closeLog()
	prev := app.log
	app.log = log
	defer func() { app.log = prev }()

	s, ws, err := openSession(ctx, app)
	if errors.Is(err, store.ErrNoSnapshot) && ws.Server != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "no cached snapshot; fetching from", ws.Server)
		if err := fetchInto(ctx, app, ws); err != nil {
			return writeErr(cmd, err)
		}
		s, ws, err = openSession(ctx, app)
	}
	if err != nil {
		return writeErr(cmd, err)
	}

	return tui.Run(ctx, s, tui.Options{
		Title:     ws.Name,
		Logger:    log,
		StartDate: start,
		OnDelta: func(ctx context.Context, d model.Delta) error {
			return ws.Store.ApplyDelta(ctx, d)
		},
		OnReload: func(ctx context.Context, data model.StagingData) error {
			return ws.Store.SaveStagingData(ctx, data, store.Meta{Server: ws.Server, Source: "fetch"})
		},
	})
}
