package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// SystemConfig represents the global configuration file (~/.kiln.yaml).
// It holds machine-level settings that do not belong in a bakefile.
type SystemConfig struct {
	// Store is the local OCI layout store root. Defaults to ~/.kiln/store.
	Store StoreConfig `yaml:"store"`

	// Registry configures registry transport.
	Registry RegistryConfig `yaml:"registry"`

	// Scan configures the pre-copy secret scan.
	Scan ScanConfig `yaml:"scan"`
}

// StoreConfig locates the local image store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RegistryConfig configures registry transport.
type RegistryConfig struct {
	// PlainHTTP disables TLS for registry connections. Local dev only.
	PlainHTTP bool `yaml:"plain_http"`
	// Concurrency bounds parallel blob transfers during push and pull.
	Concurrency int `yaml:"concurrency"`
}

// ScanConfig configures the secret scan that runs before source and
// config files are baked into image layers.
type ScanConfig struct {
	// Disabled turns the scan off entirely.
	Disabled bool `yaml:"disabled"`
	// WarnOnly reports findings without failing the build.
	WarnOnly bool `yaml:"warn_only"`
}

// LoadSystemConfig loads the system configuration from the specified path.
// If the file does not exist, it returns defaults without error.
func LoadSystemConfig(path string) (*SystemConfig, error) {
	cfg := &SystemConfig{}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applySystemDefaults()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}

	cfg.applySystemDefaults()

	return cfg, nil
}

func (sc *SystemConfig) applySystemDefaults() {
	if sc.Store.Path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			sc.Store.Path = filepath.Join(home, ".kiln", "store")
		} else {
			sc.Store.Path = filepath.Join(os.TempDir(), "kiln-store")
		}
	}
	if sc.Registry.Concurrency <= 0 {
		sc.Registry.Concurrency = 3
	}
}
