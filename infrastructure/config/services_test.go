package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultServicesConfig(t *testing.T) {
	cfg := DefaultServicesConfig()
	if cfg == nil {
		t.Fatal("DefaultServicesConfig() returned nil")
	}

	expectedComponents := []string{
		"sampler",
		"retention",
		"alertengine",
		"validator",
		"recoveryengine",
		"failoverengine",
	}

	for _, id := range expectedComponents {
		settings, ok := cfg.Services[id]
		if !ok {
			t.Errorf("missing component %q in default config", id)
			continue
		}
		if !settings.Enabled {
			t.Errorf("component %q should be enabled by default", id)
		}
		if settings.Description == "" {
			t.Errorf("component %q has no description", id)
		}
	}
}

func TestLoadServicesConfigFromPath(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "components.yaml")

		configContent := `
services:
  sampler:
    enabled: true
    description: "periodic metric collection"
`
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadServicesConfigFromPath(configPath)
		if err != nil {
			t.Fatalf("LoadServicesConfigFromPath() error = %v", err)
		}
		if cfg == nil {
			t.Fatal("LoadServicesConfigFromPath() returned nil")
		}

		svc, ok := cfg.Services["sampler"]
		if !ok {
			t.Fatal("sampler not found in config")
		}
		if !svc.Enabled {
			t.Error("component should be enabled")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := LoadServicesConfigFromPath("/nonexistent/path/components.yaml")
		if err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "components.yaml")

		if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadServicesConfigFromPath(configPath)
		if err == nil {
			t.Error("expected error for invalid yaml")
		}
	})
}

func TestLoadServicesConfigOrDefault(t *testing.T) {
	cfg := LoadServicesConfigOrDefault()
	if cfg == nil {
		t.Fatal("LoadServicesConfigOrDefault() returned nil")
	}
	if len(cfg.Services) == 0 {
		t.Error("expected non-empty component map")
	}
}
