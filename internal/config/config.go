// Package config defines the critpath configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where critpath looks for its config when --config is not given.
const DefaultPath = ".critpath/config.yaml"

// Config is the top-level critpath configuration.
type Config struct {
	DBPath     string `json:"db_path" yaml:"db_path"`
	File       string `json:"file,omitempty" yaml:"file"` // project file used instead of the store
	LogLevel   string `json:"log_level" yaml:"log_level"`
	Timezone   string `json:"timezone" yaml:"timezone"`                 // IANA name, e.g. "Europe/Berlin"
	ProjectEnd string `json:"project_end,omitempty" yaml:"project_end"` // YYYY-MM-DD
	Model      string `json:"model,omitempty" yaml:"model"`             // Claude model for infer-deps
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath:   ".critpath/critpath.db",
		LogLevel: "warn",
		Timezone: "UTC",
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields DefaultConfig.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// Validate checks the fields that need parsing.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.ProjectEndTime(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ProjectEndTime parses ProjectEnd. It returns nil when no end date is set.
func (c *Config) ProjectEndTime() (*time.Time, error) {
	if c.ProjectEnd == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", c.ProjectEnd)
	if err != nil {
		return nil, fmt.Errorf("project_end %q: %w", c.ProjectEnd, err)
	}
	return &t, nil
}
