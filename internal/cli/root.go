package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"staging-cli/internal/format"
	"staging-cli/internal/logging"
	"staging-cli/internal/model"
	"staging-cli/internal/mutate"
	"staging-cli/internal/render"
	"staging-cli/internal/staging"
	"staging-cli/internal/store"
	"staging-cli/internal/transport"

	"github.com/spf13/cobra"
)

type App struct {
	Dir        string
	Workspace  string
	Server     string
	TZ         string
	PrettyJSON bool
	Format     string
	LogLevel   string
	LogFormat  string

	level    logging.Level
	log      *slog.Logger
	closeLog func() error
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "staging",
		Short:        "Browse and edit a work-schedule staging area",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive browser
  staging

  # Refresh the local snapshot from the server
  staging fetch

  # Show the week containing a date (shortcut for: staging week 2024-03-14)
  staging 2024-03-14

  # Lock two assignables in one request
  staging lock 17 18
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive browser.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(app.LogLevel)
		if err != nil {
			return writeErr(cmd, err)
		}
		app.level = level
		app.log, app.closeLog = logging.New(logging.Config{
			Level:  level,
			JSON:   strings.EqualFold(app.LogFormat, "json"),
			Writer: cmd.ErrOrStderr(),
		})
		return nil
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app.closeLog != nil {
			return app.closeLog()
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.Dir, "dir", envOr("STAGING_DIR", ""), "Path to the cache dir (overrides workspace resolution)")
	cmd.PersistentFlags().StringVar(&app.Workspace, "workspace", envOr("STAGING_WORKSPACE", ""), "Workspace name (default: current workspace from config, else 'default')")
	cmd.PersistentFlags().StringVar(&app.Server, "server", envOr("STAGING_SERVER", ""), "Server base URL (overrides the workspace config)")
	cmd.PersistentFlags().StringVar(&app.TZ, "tz", envOr("STAGING_TZ", ""), "IANA time zone for epoch days (default: workspace config, else local)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON/EDN output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("STAGING_FORMAT", "json"), "Output format (json|edn|text)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", envOr("STAGING_LOG_LEVEL", "warn"), "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&app.LogFormat, "log-format", "text", "Log format (text|json)")

	cmd.AddCommand(newDocsCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newFetchCmd(app))
	cmd.AddCommand(newImportCmd(app))
	cmd.AddCommand(newWeeksCmd(app))
	cmd.AddCommand(newWeekCmd(app))
	cmd.AddCommand(newConstraintsCmd(app))
	cmd.AddCommand(newConstraintCmd(app))
	cmd.AddCommand(newProposeCmd(app))
	cmd.AddCommand(newAssignCmd(app))
	cmd.AddCommand(newUnassignCmd(app))
	cmd.AddCommand(newLockCmd(app, true))
	cmd.AddCommand(newLockCmd(app, false))
	cmd.AddCommand(newExportCmd(app))

	return cmd
}

// workspace is everything resolved from flags, env and config for one invocation.
type workspace struct {
	Name   string
	Store  store.Store
	Server string
	Loc    *time.Location
}

// resolveWorkspace picks the cache dir from, in order: --dir, a .staging dir above the
// working directory (only when no workspace was named), the named workspace.
// The workspace name comes from --workspace, the config's current workspace, then "default".
func resolveWorkspace(app *App) (workspace, error) {
	cfg, err := store.LoadConfig()
	if err != nil {
		return workspace{}, err
	}
	name := strings.TrimSpace(app.Workspace)
	if name == "" {
		name = cfg.CurrentWorkspace
	}
	if name == "" {
		name = "default"
	}
	_, wsCfg, _ := cfg.Workspace(name)

	ws := workspace{Name: name, Server: wsCfg.Server}
	if app.Dir != "" {
		ws.Store = store.Store{Dir: app.Dir}
	} else if dir, ok := discoverDir(app); ok {
		ws.Store = store.Store{Dir: dir}
	} else {
		dir, err := store.WorkspaceDir(name)
		if err != nil {
			return workspace{}, err
		}
		ws.Store = store.Store{Dir: dir}
	}
	if s := strings.TrimSpace(app.Server); s != "" {
		ws.Server = s
	}

	tz := strings.TrimSpace(app.TZ)
	if tz == "" {
		tz = wsCfg.Timezone
	}
	ws.Loc = time.Local
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return workspace{}, fmt.Errorf("invalid time zone %q: %w", tz, err)
		}
		ws.Loc = loc
	}
	return ws, nil
}

func discoverDir(app *App) (string, bool) {
	if strings.TrimSpace(app.Workspace) != "" {
		return "", false
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	return store.DiscoverDir(cwd)
}

func (app *App) logger() *slog.Logger {
	if app.log == nil {
		return logging.Discard()
	}
	return app.log
}

func (app *App) commander(ws workspace) (mutate.Commander, error) {
	if ws.Server == "" {
		return nil, errNoServer(ws.Name)
	}
	opts := []transport.Option{transport.WithLogger(app.logger())}
	if cookie := strings.TrimSpace(os.Getenv("STAGING_COOKIE")); cookie != "" {
		opts = append(opts, transport.WithHeader("Cookie", cookie))
	}
	return transport.New(ws.Server, opts...), nil
}

// openSession loads the cached snapshot into a session. The commander is attached when a
// server is known; read-only commands work without one.
func openSession(ctx context.Context, app *App) (*staging.Session, workspace, error) {
	ws, err := resolveWorkspace(app)
	if err != nil {
		return nil, workspace{}, err
	}
	data, _, err := ws.Store.LoadStagingData(ctx)
	if err != nil {
		return nil, ws, err
	}
	var cmdr mutate.Commander
	if ws.Server != "" {
		if cmdr, err = app.commander(ws); err != nil {
			return nil, ws, err
		}
	}
	s := staging.New(data, cmdr, staging.Options{
		Render: render.Options{Location: ws.Loc},
		Logger: app.logger(),
	})
	if _, warnings := s.Committed(); len(warnings) > 0 {
		for _, w := range warnings {
			app.logger().Warn("dropped record", "error", w)
		}
	}
	return s, ws, nil
}

// commitAndPersist sends cmd, merges the delta into the session and writes it to the cache.
func commitAndPersist(ctx context.Context, s *staging.Session, ws workspace, cmd model.Command) (model.Delta, error) {
	d, err := s.Commit(ctx, cmd)
	if errors.Is(err, staging.ErrNoCommander) {
		return model.Delta{}, errNoServer(ws.Name)
	}
	if err != nil {
		return model.Delta{}, err
	}
	if err := ws.Store.ApplyDelta(ctx, d); err != nil {
		return d, fmt.Errorf("delta applied on the server but not cached (run `staging fetch`): %w", err)
	}
	return d, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// envelope is the output shape of every command. text, when set, renders the text format.
type envelope struct {
	Data any `json:"data"`
	Meta any `json:"meta,omitempty"`

	text func(w io.Writer) error
}

func (e envelope) WriteText(w io.Writer) error {
	if e.text == nil {
		return format.WriteJSON(w, e.Data, true)
	}
	return e.text(w)
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), describeError(err))
	return err
}
