package store

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSaveConfig_ConcurrentWriters_DoesNotCorruptConfig(t *testing.T) {
	cfgDir := t.TempDir()
	t.Setenv(ConfigDirEnv, cfgDir)

	seed := &GlobalConfig{
		CurrentWorkspace: "seed",
		Workspaces: map[string]WorkspaceConfig{
			"seed": {Server: "https://seed.example.com"},
		},
	}
	if err := SaveConfig(seed); err != nil {
		t.Fatalf("SaveConfig(seed): %v", err)
	}

	const n = 64
	errCh := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			cfg, err := LoadConfig()
			if err != nil {
				errCh <- err
				return
			}
			if cfg.Workspaces == nil {
				cfg.Workspaces = map[string]WorkspaceConfig{}
			}
			name := fmt.Sprintf("ws-%d", i)
			cfg.Workspaces[name] = WorkspaceConfig{Server: fmt.Sprintf("https://ws-%d.example.com", i)}
			cfg.CurrentWorkspace = name

			if err := SaveConfig(cfg); err != nil {
				errCh <- err
				return
			}
		}(i)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent SaveConfig: %v", err)
	}
	if t.Failed() {
		return
	}

	// The last rename wins; whatever it wrote must parse and validate.
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config.yaml corrupted/invalid: %v", err)
	}
	if _, ok := cfg.Workspaces[cfg.CurrentWorkspace]; !ok {
		t.Fatalf("current workspace %q missing from %v", cfg.CurrentWorkspace, cfg.WorkspaceNames())
	}

	ents, err := os.ReadDir(cfgDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, "config.yaml.") && strings.HasSuffix(name, ".tmp") {
			t.Fatalf("leftover temp file: %s", name)
		}
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}
	if bak, err := os.ReadFile(path + ".bak"); err == nil && len(bak) > 0 {
		var bakCfg GlobalConfig
		if err := yaml.Unmarshal(bak, &bakCfg); err != nil {
			t.Fatalf("config.yaml.bak corrupted/unparseable: %v\nraw:\n%s", err, string(bak))
		}
	}
}
