// Package store keeps the local cache of the last staging snapshot per workspace and the
// user's YAML config. The server stays the source of truth; the cache only lets read-only
// commands and the browser start without a round trip.
package store

import (
	"os"
	"path/filepath"
)

const cacheFileName = "staging.sqlite"

type Store struct {
	Dir string
}

// DiscoverDir walks up from start looking for a .staging directory.
func DiscoverDir(start string) (string, bool) {
	dir := start
	for {
		candidate := filepath.Join(dir, ".staging")
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// WorkspaceDir is the cache directory of a named workspace: its configured cache_dir, else
// <config dir>/workspaces/<name>.
func WorkspaceDir(name string) (string, error) {
	name, err := NormalizeWorkspaceName(name)
	if err != nil {
		return "", err
	}
	cfg, err := LoadConfig()
	if err != nil {
		return "", err
	}
	if ws, ok := cfg.Workspaces[name]; ok && ws.CacheDir != "" {
		return filepath.Clean(ws.CacheDir), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "workspaces", name), nil
}

func (s Store) Ensure() error {
	return os.MkdirAll(s.Dir, 0o755)
}

func (s Store) sqlitePath() string {
	return filepath.Join(filepath.Clean(s.Dir), cacheFileName)
}
