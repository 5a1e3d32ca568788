package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"staging-cli/internal/store"

	"github.com/spf13/cobra"
)

type configView struct {
	Path             string                           `json:"path"`
	CurrentWorkspace string                           `json:"current_workspace,omitempty"`
	Workspaces       map[string]store.WorkspaceConfig `json:"workspaces"`
	Resolved         resolvedView                     `json:"resolved"`
}

type resolvedView struct {
	Workspace string         `json:"workspace"`
	Dir       string         `json:"dir"`
	Server    string         `json:"server,omitempty"`
	Timezone  string         `json:"timezone"`
	Cache     map[string]int `json:"cache,omitempty"`
	FetchedAt string         `json:"fetched_at,omitempty"`
	Source    string         `json:"source,omitempty"`
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change workspace configuration",
	}
	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigUseCmd(app))
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the config file and how this invocation resolves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := store.ConfigPath()
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg, err := store.LoadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			ws, err := resolveWorkspace(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			v := configView{
				Path:             path,
				CurrentWorkspace: cfg.CurrentWorkspace,
				Workspaces:       cfg.Workspaces,
				Resolved: resolvedView{
					Workspace: ws.Name,
					Dir:       ws.Store.Dir,
					Server:    ws.Server,
					Timezone:  ws.Loc.String(),
				},
			}
			if v.Workspaces == nil {
				v.Workspaces = map[string]store.WorkspaceConfig{}
			}
			if _, meta, err := ws.Store.LoadStagingData(cmd.Context()); err == nil {
				v.Resolved.Source = meta.Source
				if !meta.FetchedAt.IsZero() {
					v.Resolved.FetchedAt = meta.FetchedAt.Format(time.RFC3339)
				}
				if stats, err := ws.Store.Stats(cmd.Context()); err == nil {
					v.Resolved.Cache = stats
				}
			} else if !errors.Is(err, store.ErrNoSnapshot) {
				app.logger().Warn("cache unreadable", "dir", ws.Store.Dir, "error", err)
			}
			return writeOut(cmd, app, envelope{
				Data: v,
				text: func(out io.Writer) error {
					fmt.Fprintf(out, "config:    %s\n", v.Path)
					fmt.Fprintf(out, "workspace: %s\n", v.Resolved.Workspace)
					fmt.Fprintf(out, "dir:       %s\n", v.Resolved.Dir)
					server := v.Resolved.Server
					if server == "" {
						server = "(none)"
					}
					fmt.Fprintf(out, "server:    %s\n", server)
					fmt.Fprintf(out, "timezone:  %s\n", v.Resolved.Timezone)
					if v.Resolved.Cache == nil {
						_, err := fmt.Fprintln(out, "cache:     empty (run `staging fetch`)")
						return err
					}
					_, err := fmt.Fprintf(out, "cache:     %d assignables, %d constraints (%s, %s)\n",
						v.Resolved.Cache["assignables"], v.Resolved.Cache["constraints"], v.Resolved.Source, v.Resolved.FetchedAt)
					return err
				},
			})
		},
	}
}

func newConfigUseCmd(app *App) *cobra.Command {
	var (
		server   string
		tz       string
		cacheDir string
	)
	cmd := &cobra.Command{
		Use:   "use <workspace>",
		Short: "Make a workspace current, creating or updating it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := store.NormalizeWorkspaceName(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg, err := store.LoadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			if cfg.Workspaces == nil {
				cfg.Workspaces = map[string]store.WorkspaceConfig{}
			}
			ws, exists := cfg.Workspaces[name]
			flags := cmd.Flags()
			if flags.Changed("server") {
				ws.Server = strings.TrimSpace(server)
			}
			if flags.Changed("tz") {
				ws.Timezone = strings.TrimSpace(tz)
			}
			if flags.Changed("cache-dir") {
				ws.CacheDir = strings.TrimSpace(cacheDir)
			}
			if !exists && ws.Server == "" {
				return writeErr(cmd, fmt.Errorf("workspace %q is new; pass --server", name))
			}
			cfg.Workspaces[name] = ws
			cfg.CurrentWorkspace = name
			if err := store.SaveConfig(cfg); err != nil {
				return writeErr(cmd, err)
			}
			app.logger().Info("workspace selected", "workspace", name, "server", ws.Server)
			return writeOut(cmd, app, envelope{
				Data: map[string]any{"workspace": name, "config": ws},
				text: func(out io.Writer) error {
					_, err := fmt.Fprintf(out, "using %s (%s)\n", name, ws.Server)
					return err
				},
			})
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "Server base URL")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA time zone, e.g. America/Chicago")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Cache directory for this workspace")
	return cmd
}
