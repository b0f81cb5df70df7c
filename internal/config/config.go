// Package config manages geocat library settings. Settings are stored as a
// TOML file and control interactive editing and catalog behavior.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	// SettingsFile is the name of the settings file inside the settings dir.
	SettingsFile = "geocat.toml"

	defaultEditTolerancePx = 7.0
	defaultOverlaySizePx   = 50.0
)

// Config represents the geocat settings.
type Config struct {
	ShowHidden      bool    `toml:"show_hidden"`       // show hidden files in the catalog
	EditTolerancePx float64 `toml:"edit_tolerance_px"` // vertex hit-test tolerance, display pixels
	OverlaySizePx   float64 `toml:"overlay_size_px"`   // template geometry size, display pixels
	path            string  // directory holding the settings file
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		ShowHidden:      true,
		EditTolerancePx: defaultEditTolerancePx,
		OverlaySizePx:   defaultOverlaySizePx,
	}
}

// Load reads settings from dir, falling back to defaults when the file is
// absent. A malformed file is an error; a missing one is not.
func Load(dir string) (*Config, error) {
	cfg := Default()
	cfg.path = dir

	data, err := os.ReadFile(filepath.Join(dir, SettingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return cfg, nil
}

// Save writes the settings to disk, creating the directory if needed.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("settings directory not set")
	}
	if err := os.MkdirAll(c.path, 0755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, SettingsFile), data, 0644)
}

// SetPath sets the directory the settings file is saved to.
func (c *Config) SetPath(dir string) { c.path = dir }
