// Package config loads the process-wide TextPAIR global settings.
//
// The settings file is read exactly once at startup and the resulting
// value is passed by reference into every component; nothing in this
// package keeps global state.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variable names
const (
	EnvSettingsPath = "TEXTPAIR_GLOBAL_SETTINGS" // Override settings file path
)

// DefaultPath is where the global settings live on a standard install.
const DefaultPath = "/etc/text-pair/global_settings.yaml"

var ErrInvalidSettings = errors.New("invalid global settings")

// Settings is the process-wide configuration. Read-only for the
// lifetime of a restore run.
type Settings struct {
	Database DatabaseSettings `yaml:"database"`
	WebApp   WebAppSettings   `yaml:"web_app"`
}

// DatabaseSettings holds the PostgreSQL connection parameters.
type DatabaseSettings struct {
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	SSLMode  string `yaml:"sslmode"`
}

// WebAppSettings holds the web deployment parameters.
type WebAppSettings struct {
	// Path is the base directory the restored web application is
	// deployed under, unless overridden on the command line.
	Path string `yaml:"path"`
	// APIServer is the public URL of the live TextPAIR API endpoint.
	APIServer string `yaml:"api_server"`
}

// Default returns settings with the built-in connection defaults filled
// in. File values layer on top of these.
func Default() *Settings {
	return &Settings{
		Database: DatabaseSettings{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
	}
}

// Load reads the settings file at path. An empty path falls back to the
// TEXTPAIR_GLOBAL_SETTINGS environment variable, then to DefaultPath.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = os.Getenv(EnvSettingsPath)
	}
	if path == "" {
		path = DefaultPath
	}

	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read global settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse global settings %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return settings, nil
}

// Validate checks that every field a restore run depends on is present.
func (s *Settings) Validate() error {
	if s.Database.Name == "" {
		return fmt.Errorf("%w: database.name is required", ErrInvalidSettings)
	}
	if s.Database.User == "" {
		return fmt.Errorf("%w: database.user is required", ErrInvalidSettings)
	}
	if s.Database.Port < 1 || s.Database.Port > 65535 {
		return fmt.Errorf("%w: database.port must be between 1 and 65535", ErrInvalidSettings)
	}
	if s.WebApp.Path == "" {
		return fmt.Errorf("%w: web_app.path is required", ErrInvalidSettings)
	}
	if s.WebApp.APIServer == "" {
		return fmt.Errorf("%w: web_app.api_server is required", ErrInvalidSettings)
	}
	return nil
}
