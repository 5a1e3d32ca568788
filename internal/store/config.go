package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigDirEnv overrides the config directory (keeps tests away from ~/.staging).
const ConfigDirEnv = "STAGING_CONFIG_DIR"

type GlobalConfig struct {
	CurrentWorkspace string `yaml:"current_workspace,omitempty" validate:"omitempty,workspace_name"`

	// Workspaces maps a workspace name to the server it talks to.
	Workspaces map[string]WorkspaceConfig `yaml:"workspaces,omitempty" validate:"dive,keys,workspace_name,endkeys"`
}

type WorkspaceConfig struct {
	// Server is the base URL commands are posted to.
	Server string `yaml:"server" json:"server" validate:"required,url"`
	// Timezone is an IANA zone name used to turn epoch days into local dates.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty" validate:"omitempty,timezone"`
	// CacheDir overrides ~/.staging/workspaces/<name>.
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
}

// Location resolves Timezone, defaulting to time.Local.
func (w WorkspaceConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(w.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(w.Timezone)
}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("workspace_name", func(fl validator.FieldLevel) bool {
		_, err := NormalizeWorkspaceName(fl.Field().String())
		return err == nil
	})
}

// Validate checks field formats and that the current workspace is registered.
func (c *GlobalConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.CurrentWorkspace != "" {
		if _, ok := c.Workspaces[c.CurrentWorkspace]; !ok {
			return fmt.Errorf("invalid config: current workspace %q is not registered", c.CurrentWorkspace)
		}
	}
	return nil
}

// Workspace returns the named workspace, or the current one when name is empty.
func (c *GlobalConfig) Workspace(name string) (string, WorkspaceConfig, bool) {
	if strings.TrimSpace(name) == "" {
		name = c.CurrentWorkspace
	}
	ws, ok := c.Workspaces[name]
	return name, ws, ok
}

func (c *GlobalConfig) WorkspaceNames() []string {
	out := make([]string, 0, len(c.Workspaces))
	for name := range c.Workspaces {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func ConfigDir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(ConfigDirEnv)); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".staging"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadConfig reads config.yaml. A missing file is an empty config.
func LoadConfig() (*GlobalConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &GlobalConfig{}, nil
		}
		return nil, err
	}
	var cfg GlobalConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}

func SaveConfig(cfg *GlobalConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Keep the previous config around; failures here never block the write.
	if prev, err := os.ReadFile(path); err == nil && len(prev) > 0 {
		_ = atomicWriteFile(dir, "config.yaml.bak.*.tmp", path+".bak", prev, 0o644)
	}
	return atomicWriteFile(dir, "config.yaml.*.tmp", path, b, 0o600)
}

func NormalizeWorkspaceName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("workspace name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("workspace name %q is not a plain directory name", name)
	}
	return name, nil
}
