package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := `
bundle: app.js
components:
  - View
  - Chart
engine:
  provider: vm
  loadTimeout: 5s
  debug: true
  maxBatchSize: 500
inspect:
  addr: ":8090"
modules:
  react: vendor/react.js
guestConfig:
  theme: dark
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bundle != "app.js" {
		t.Errorf("Bundle = %q", cfg.Bundle)
	}
	if cfg.Engine.Provider != "vm" || cfg.Engine.LoadTimeout.Std() != 5*time.Second {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if !cfg.Engine.Debug || cfg.Engine.MaxBatchSize != 500 {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if cfg.Inspect.Addr != ":8090" {
		t.Errorf("Inspect = %+v", cfg.Inspect)
	}
	if cfg.Modules["react"] != "vendor/react.js" {
		t.Errorf("Modules = %v", cfg.Modules)
	}
	if cfg.GuestConfig["theme"] != "dark" {
		t.Errorf("GuestConfig = %v", cfg.GuestConfig)
	}
	if len(cfg.Components) != 2 || cfg.Components[1] != "Chart" {
		t.Errorf("Components = %v", cfg.Components)
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if len(cfg.Components) == 0 {
		t.Error("defaults missing component whitelist")
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	_ = os.WriteFile(path, []byte("{{nope"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("malformed yaml accepted")
	}
}
