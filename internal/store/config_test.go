package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_MissingFileIsEmpty(t *testing.T) {
	t.Setenv(ConfigDirEnv, t.TempDir())
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.CurrentWorkspace)
	assert.Empty(t, cfg.Workspaces)
}

func TestConfig_SaveLoadKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)

	cfg := &GlobalConfig{
		CurrentWorkspace: "north",
		Workspaces: map[string]WorkspaceConfig{
			"north": {Server: "https://sched.example.com/api", Timezone: "America/Chicago"},
		},
	}
	require.NoError(t, SaveConfig(cfg))

	cfg.Workspaces["south"] = WorkspaceConfig{Server: "http://localhost:8080"}
	require.NoError(t, SaveConfig(cfg))

	got, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"north", "south"}, got.WorkspaceNames())
	name, ws, ok := got.Workspace("")
	require.True(t, ok)
	assert.Equal(t, "north", name)
	loc, err := ws.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())

	bak, err := os.ReadFile(filepath.Join(dir, "config.yaml.bak"))
	require.NoError(t, err)
	assert.NotContains(t, string(bak), "south")
}

func TestConfig_Validation(t *testing.T) {
	cases := map[string]*GlobalConfig{
		"missing server":       {Workspaces: map[string]WorkspaceConfig{"a": {}}},
		"bad url":              {Workspaces: map[string]WorkspaceConfig{"a": {Server: "not a url"}}},
		"bad timezone":         {Workspaces: map[string]WorkspaceConfig{"a": {Server: "http://x", Timezone: "Mars/Base"}}},
		"unregistered current": {CurrentWorkspace: "b", Workspaces: map[string]WorkspaceConfig{"a": {Server: "http://x"}}},
		"path in name":         {Workspaces: map[string]WorkspaceConfig{"a/b": {Server: "http://x"}}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, (&GlobalConfig{}).Validate())
}

func TestConfig_RejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("workspaces: [1, 2"), 0o600))
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestWorkspaceDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)
	custom := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, SaveConfig(&GlobalConfig{Workspaces: map[string]WorkspaceConfig{
		"custom": {Server: "http://x", CacheDir: custom},
	}}))

	got, err := WorkspaceDir("plain")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "workspaces", "plain"), got)

	got, err = WorkspaceDir("custom")
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	_, err = WorkspaceDir("  ")
	assert.Error(t, err)
}

func TestDiscoverDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".staging"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, ok := DiscoverDir(nested)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, ".staging"), got)
}
