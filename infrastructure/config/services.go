package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadServicesConfig loads the component toggle configuration from config/components.yaml.
func LoadServicesConfig() (*ServicesConfig, error) {
	return LoadServicesConfigFromPath(filepath.Join("config", "components.yaml"))
}

// LoadServicesConfigFromPath loads the component toggle configuration from a specific path.
func LoadServicesConfigFromPath(path string) (*ServicesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read components config: %w", err)
	}

	var cfg ServicesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse components config: %w", err)
	}

	return &cfg, nil
}

// LoadServicesConfigOrDefault loads the component toggle configuration or
// returns the control plane's default wiring if no file is present.
func LoadServicesConfigOrDefault() *ServicesConfig {
	cfg, err := LoadServicesConfig()
	if err != nil {
		return DefaultServicesConfig()
	}
	return cfg
}

// DefaultServicesConfig returns the default component toggle configuration:
// every orchestrator-managed component enabled.
func DefaultServicesConfig() *ServicesConfig {
	return &ServicesConfig{
		Services: map[string]*ServiceSettings{
			"sampler": {
				Enabled:     true,
				Description: "periodic host and domain metric collection",
			},
			"retention": {
				Enabled:     true,
				Description: "segment storage, compression, and eviction",
			},
			"alertengine": {
				Enabled:     true,
				Description: "threshold evaluation and notification fan-out",
			},
			"validator": {
				Enabled:     true,
				Description: "concurrent service probing",
			},
			"recoveryengine": {
				Enabled:     true,
				Description: "dependency-ordered component recovery",
			},
			"failoverengine": {
				Enabled:     true,
				Description: "rule-based failover decisioning",
			},
		},
	}
}
