// Package config loads the weld.yaml runner configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default configuration file name.
const ConfigFileName = "weld.yaml"

// Duration parses "30s"-style yaml values into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig is the engine section of weld.yaml.
type EngineConfig struct {
	// Provider selects the sandbox ("goja", "vm", "worker",
	// "hostrealm"); empty auto-selects.
	Provider string `yaml:"provider,omitempty"`

	// LoadTimeout bounds bundle execution, e.g. "30s".
	LoadTimeout Duration `yaml:"loadTimeout,omitempty"`

	// ScriptTimeout is the per-eval deadline for the vm provider.
	ScriptTimeout Duration `yaml:"scriptTimeout,omitempty"`

	// Debug forwards guest console output and enables descriptive
	// component resolution errors.
	Debug bool `yaml:"debug,omitempty"`

	// MaxBatchSize caps operations applied per batch.
	MaxBatchSize int `yaml:"maxBatchSize,omitempty"`
}

// InspectConfig is the diagnostics server section.
type InspectConfig struct {
	// Addr is the listen address, e.g. ":8090". Empty disables the
	// server.
	Addr string `yaml:"addr,omitempty"`
}

// Config is the complete weld.yaml schema.
type Config struct {
	// Bundle is the guest source: a file path or an http(s) URL. The
	// runner configures no object fetcher, so s3:// URIs fail to load.
	Bundle string `yaml:"bundle,omitempty"`

	// Components whitelists the component names the guest may
	// instantiate.
	Components []string `yaml:"components,omitempty"`

	// Modules maps require() names to source file paths.
	Modules map[string]string `yaml:"modules,omitempty"`

	// GuestConfig is the initial __getConfig snapshot.
	GuestConfig map[string]any `yaml:"guestConfig,omitempty"`

	Engine  EngineConfig  `yaml:"engine,omitempty"`
	Inspect InspectConfig `yaml:"inspect,omitempty"`
}

// Default returns the zero-config defaults.
func Default() *Config {
	return &Config{
		Components: []string{"View", "Text", "Image", "ScrollView", "TouchableOpacity"},
	}
}

// Load reads and parses a weld.yaml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to defaults
// otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}
