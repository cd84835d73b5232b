// Package config loads the serve command's YAML settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the backend's runtime configuration.
type Settings struct {
	Port               int      `yaml:"port"`
	DatabasePath       string   `yaml:"database_path"`
	WorkspaceRoot      string   `yaml:"workspace_root"`
	IdleTimeoutSeconds int      `yaml:"idle_timeout_seconds"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
}

// Default returns the settings used when no config file is given.
func Default() Settings {
	return Settings{
		Port:               8000,
		DatabasePath:       "surfbench.db",
		WorkspaceRoot:      "workspaces",
		IdleTimeoutSeconds: 7200,
	}
}

// Load reads settings from a YAML file, applying defaults for absent fields.
// An empty path returns the defaults.
func Load(path string) (Settings, error) {
	settings := Default()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return settings, fmt.Errorf("config file %s: %w", path, err)
	}
	return settings, nil
}

// Validate checks field ranges.
func (s *Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if s.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("idle_timeout_seconds must be positive, got %d", s.IdleTimeoutSeconds)
	}
	return nil
}

// IdleTimeout returns the idle-timeout window as a duration.
func (s Settings) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}
